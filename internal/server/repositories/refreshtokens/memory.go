package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// MemoryRepository keeps records in a process-local map. It is only correct
// for a single server instance and is meant for development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]models.RefreshToken
}

// NewMemoryRepository returns an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]models.RefreshToken)}
}

func (r *MemoryRepository) Create(_ context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[token.ID] = *token
	return nil
}

func (r *MemoryRepository) Find(_ context.Context, id string) (*models.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *MemoryRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.records {
		if t.UserID == userID {
			delete(r.records, id)
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.records {
		if t.IsExpired(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}
