// Package events stores the append-only audit log of assignment changes.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gradekeeper/internal/dbx"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.TransitionEvent) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	var from sql.NullString
	if e.FromStatus != "" {
		from = sql.NullString{String: string(e.FromStatus), Valid: true}
	}

	query :=
		`INSERT INTO assignment_events (id, assignment_id, event_type, actor_user_id, from_status, to_status, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING seq
		 `

	err = r.db.QueryRowContext(ctx, query,
		e.ID, e.UnitID, string(e.EventType), e.ActorUserID, from, string(e.ToStatus), metaJSON, e.CreatedAt).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.TransitionEvent, error) {
	query :=
		`SELECT seq, id, assignment_id, event_type, actor_user_id, from_status, to_status, metadata, created_at
		 FROM assignment_events
		 WHERE assignment_id = $1
		 ORDER BY seq
		 `

	rows, err := r.db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.TransitionEvent
	for rows.Next() {
		var (
			e         models.TransitionEvent
			eventType string
			from      sql.NullString
			to        string
			meta      []byte
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.UnitID, &eventType, &e.ActorUserID, &from, &to, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.EventType = models.EventType(eventType)
		e.FromStatus = models.Status(from.String)
		e.ToStatus = models.Status(to)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
