package models

import "time"

// Status is a workflow state of an assignment.
type Status string

const (
	StatusAssigned  Status = "assigned"
	StatusViewed    Status = "viewed"
	StatusSubmitted Status = "submitted"
	StatusReviewed  Status = "reviewed"
	StatusCompleted Status = "completed"
	StatusReopened  Status = "reopened"
)

// Statuses lists every workflow state in lifecycle order.
var Statuses = []Status{
	StatusAssigned,
	StatusViewed,
	StatusSubmitted,
	StatusReviewed,
	StatusCompleted,
	StatusReopened,
}

// Valid reports whether s is a known workflow state.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Assignment is the gradable unit of work whose lifecycle the workflow governs.
// Version increases on every status write and guards concurrent updates.
type Assignment struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	OwnerTeacherID string    `json:"owner_teacher_id"`
	StudentID      string    `json:"student_id"`
	Title          string    `json:"title"`
	Status         Status    `json:"status"`
	ReopenCount    int       `json:"reopen_count"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EventType classifies audit records.
type EventType string

const (
	EventCreated          EventType = "created"
	EventStatusTransition EventType = "status_transition"
)

// TransitionEvent is an immutable audit record of one change to an assignment.
// FromStatus is empty for creation events. Seq is the store's write order
// and defines history order; CreatedAt never decreases along it.
type TransitionEvent struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	UnitID      string            `json:"unit_id"`
	EventType   EventType         `json:"event_type"`
	ActorUserID string            `json:"actor_user_id"`
	FromStatus  Status            `json:"from_status,omitempty"`
	ToStatus    Status            `json:"to_status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
