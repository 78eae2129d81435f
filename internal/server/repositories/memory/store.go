// Package memory is a process-local implementation of repomanager.Store.
// A single mutex serializes every operation, and InTx works on a copy of the
// state that replaces the live one only when fn succeeds.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/repomanager"
)

type guardianLink struct {
	parentID, studentID string
}

type state struct {
	users       map[string]models.User
	emails      map[string]string
	guardians   map[guardianLink]struct{}
	assignments map[string]models.Assignment
	events      []models.TransitionEvent
	seq         int64
}

func newState() *state {
	return &state{
		users:       make(map[string]models.User),
		emails:      make(map[string]string),
		guardians:   make(map[guardianLink]struct{}),
		assignments: make(map[string]models.Assignment),
	}
}

func (s *state) clone() *state {
	return &state{
		users:       maps.Clone(s.users),
		emails:      maps.Clone(s.emails),
		guardians:   maps.Clone(s.guardians),
		assignments: maps.Clone(s.assignments),
		events:      slices.Clone(s.events),
		seq:         s.seq,
	}
}

// Store implements repomanager.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ repomanager.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Repos returns repositories that lock the store for each call.
func (s *Store) Repos() repomanager.Repos {
	v := &view{store: s}
	return repomanager.Repos{Users: (*userRepo)(v), Assignments: (*assignmentRepo)(v), Events: (*eventRepo)(v)}
}

// InTx holds the store lock for the whole of fn.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r repomanager.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	v := &view{st: s.state.clone()}
	r := repomanager.Repos{Users: (*userRepo)(v), Assignments: (*assignmentRepo)(v), Events: (*eventRepo)(v)}
	if err := fn(repomanager.WithRepos(ctx, r), r); err != nil {
		return err
	}
	s.state = v.st
	return nil
}

// view is either bound to the live store (locking per call) or to a
// transaction's private copy (already under the store lock).
type view struct {
	store *Store
	st    *state
}

func (v *view) do(fn func(st *state) error) error {
	if v.store == nil {
		return fn(v.st)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type userRepo view

func (r *userRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	err := (*view)(r).do(func(st *state) error {
		email := strings.ToLower(user.Email)
		if _, ok := st.emails[email]; ok {
			return common.ErrorAlreadyExists
		}
		if _, ok := st.users[user.ID]; ok {
			return common.ErrorAlreadyExists
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		u := *user
		u.PasswordHash = slices.Clone(user.PasswordHash)
		st.users[u.ID] = u
		st.emails[email] = u.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	var out *models.User
	err := (*view)(r).do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var id string
	err := (*view)(r).do(func(st *state) error {
		var ok bool
		id, ok = st.emails[strings.ToLower(email)]
		if !ok {
			return common.ErrorNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *userRepo) UpdatePasswordHash(_ context.Context, id string, hash []byte) error {
	return (*view)(r).do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return common.ErrorNotFound
		}
		u.PasswordHash = slices.Clone(hash)
		st.users[id] = u
		return nil
	})
}

func (r *userRepo) AddGuardian(_ context.Context, parentID, studentID string) error {
	return (*view)(r).do(func(st *state) error {
		st.guardians[guardianLink{parentID, studentID}] = struct{}{}
		return nil
	})
}

func (r *userRepo) IsGuardianOf(_ context.Context, parentID, studentID string) (bool, error) {
	var ok bool
	err := (*view)(r).do(func(st *state) error {
		_, ok = st.guardians[guardianLink{parentID, studentID}]
		return nil
	})
	return ok, err
}

type assignmentRepo view

func (r *assignmentRepo) Create(_ context.Context, a *models.Assignment) error {
	return (*view)(r).do(func(st *state) error {
		if _, ok := st.assignments[a.ID]; ok {
			return common.ErrorAlreadyExists
		}
		st.assignments[a.ID] = *a
		return nil
	})
}

func (r *assignmentRepo) Get(_ context.Context, id string) (*models.Assignment, error) {
	var out *models.Assignment
	err := (*view)(r).do(func(st *state) error {
		a, ok := st.assignments[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

// GetForUpdate is Get: inside InTx the store lock already excludes writers.
func (r *assignmentRepo) GetForUpdate(ctx context.Context, id string) (*models.Assignment, error) {
	return r.Get(ctx, id)
}

func (r *assignmentRepo) UpdateStatus(_ context.Context, a *models.Assignment, expectedVersion int64) error {
	return (*view)(r).do(func(st *state) error {
		cur, ok := st.assignments[a.ID]
		if !ok || cur.Version != expectedVersion {
			return common.ErrConcurrencyConflict
		}
		cur.Status = a.Status
		cur.ReopenCount = a.ReopenCount
		cur.UpdatedAt = a.UpdatedAt
		cur.Version++
		st.assignments[a.ID] = cur
		a.Version = cur.Version
		return nil
	})
}

type eventRepo view

func (r *eventRepo) Append(_ context.Context, e *models.TransitionEvent) error {
	return (*view)(r).do(func(st *state) error {
		st.seq++
		e.Seq = st.seq
		ev := *e
		ev.Metadata = maps.Clone(e.Metadata)
		st.events = append(st.events, ev)
		return nil
	})
}

func (r *eventRepo) ListByAssignment(_ context.Context, assignmentID string) ([]models.TransitionEvent, error) {
	var out []models.TransitionEvent
	err := (*view)(r).do(func(st *state) error {
		for _, e := range st.events {
			if e.UnitID == assignmentID {
				e.Metadata = maps.Clone(e.Metadata)
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b models.TransitionEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out, err
}
