// Package notify tells interested parties that an assignment changed. Delivery
// is best effort and happens after the change has committed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// Notification describes one committed event of an assignment.
type Notification struct {
	SchoolID       string           `json:"school_id"`
	UnitID         string           `json:"unit_id"`
	StudentID      string           `json:"student_id"`
	OwnerTeacherID string           `json:"owner_teacher_id"`
	EventID        string           `json:"event_id"`
	EventType      models.EventType `json:"event_type"`
	ActorUserID    string           `json:"actor_user_id"`
	FromStatus     models.Status    `json:"from_status,omitempty"`
	ToStatus       models.Status    `json:"to_status"`
	At             time.Time        `json:"at"`
}

// FromEvent builds the notification for ev on a.
func FromEvent(a *models.Assignment, ev *models.TransitionEvent) Notification {
	return Notification{
		SchoolID:       a.SchoolID,
		UnitID:         a.ID,
		StudentID:      a.StudentID,
		OwnerTeacherID: a.OwnerTeacherID,
		EventID:        ev.ID,
		EventType:      ev.EventType,
		ActorUserID:    ev.ActorUserID,
		FromStatus:     ev.FromStatus,
		ToStatus:       ev.ToStatus,
		At:             ev.CreatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Channel is the Redis channel carrying a school's assignment notifications.
func Channel(schoolID string) string {
	return "gradekeeper:school:" + schoolID + ":assignments"
}

// RedisPublisher sends notifications as JSON over Redis PUBLISH.
type RedisPublisher struct {
	rdb redis.Cmdable
}

func NewRedisPublisher(rdb redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.rdb.Publish(ctx, Channel(n.SchoolID), b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// LogPublisher only writes notifications to the log.
type LogPublisher struct {
	log logging.Logger
}

func NewLogPublisher(l logging.Logger) *LogPublisher {
	if l == nil {
		l = logging.Nop{}
	}
	return &LogPublisher{log: l.With("module", "notify")}
}

func (p *LogPublisher) Publish(ctx context.Context, n Notification) error {
	p.log.Info(ctx, "assignment notification",
		"school_id", n.SchoolID, "unit_id", n.UnitID, "event_type", string(n.EventType), "to", string(n.ToStatus))
	return nil
}
