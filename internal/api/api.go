// Package api holds the request and response documents shared by the gRPC
// and HTTP transports. Both encode them as JSON.
package api

import (
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

type Empty struct{}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	Principal    Principal `json:"principal"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	Principal   Principal `json:"principal"`
}

// LogoutRequest without a refresh token signs out every device.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type Principal struct {
	UserID      string `json:"user_id"`
	SchoolID    string `json:"school_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

type CreateAssignmentRequest struct {
	StudentID string `json:"student_id"`
	Title     string `json:"title"`
}

type AssignmentRef struct {
	ID string `json:"id"`
}

type TransitionRequest struct {
	ID     string `json:"id"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type Assignment struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	OwnerTeacherID string    `json:"owner_teacher_id"`
	StudentID      string    `json:"student_id"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	ReopenCount    int       `json:"reopen_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Event struct {
	ID          string            `json:"id"`
	UnitID      string            `json:"unit_id"`
	EventType   string            `json:"event_type"`
	ActorUserID string            `json:"actor_user_id"`
	FromStatus  string            `json:"from_status,omitempty"`
	ToStatus    string            `json:"to_status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type HistoryResponse struct {
	Events []Event `json:"events"`
}

type EvidenceResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Error is the HTTP error body. From, Attempted and Valid are set for
// invalid transitions only.
type Error struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	From      string   `json:"from,omitempty"`
	Attempted string   `json:"attempted,omitempty"`
	Valid     []string `json:"valid,omitempty"`
}

func FromPrincipal(p models.Principal) Principal {
	return Principal{
		UserID:      p.UserID,
		SchoolID:    p.SchoolID,
		Role:        string(p.Role),
		DisplayName: p.DisplayName,
		Email:       p.Email,
	}
}

func FromAssignment(a *models.Assignment) *Assignment {
	return &Assignment{
		ID:             a.ID,
		SchoolID:       a.SchoolID,
		OwnerTeacherID: a.OwnerTeacherID,
		StudentID:      a.StudentID,
		Title:          a.Title,
		Status:         string(a.Status),
		ReopenCount:    a.ReopenCount,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func FromEvent(e *models.TransitionEvent) *Event {
	return &Event{
		ID:          e.ID,
		UnitID:      e.UnitID,
		EventType:   string(e.EventType),
		ActorUserID: e.ActorUserID,
		FromStatus:  string(e.FromStatus),
		ToStatus:    string(e.ToStatus),
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
	}
}

// FromEvents never returns nil, so an empty history encodes as [].
func FromEvents(evs []models.TransitionEvent) []Event {
	out := make([]Event, 0, len(evs))
	for i := range evs {
		out = append(out, *FromEvent(&evs[i]))
	}
	return out
}

// StatusNames converts a status list for error payloads.
func StatusNames(ss []models.Status) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, string(s))
	}
	return out
}
