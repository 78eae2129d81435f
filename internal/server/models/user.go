package models

import "time"

// Role is a principal's role within its school.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// IsSchoolStaff reports whether r administers a school (owner or admin).
func (r Role) IsSchoolStaff() bool {
	return r == RoleOwner || r == RoleAdmin
}

// User is the persisted profile a Principal is resolved from.
type User struct {
	ID           string
	SchoolID     string
	Role         Role
	DisplayName  string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Principal is the authenticated identity of the current request together
// with its live role and school.
type Principal struct {
	UserID      string `json:"user_id"`
	SchoolID    string `json:"school_id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Principal projects the profile onto the request identity.
func (u *User) Principal() Principal {
	return Principal{
		UserID:      u.ID,
		SchoolID:    u.SchoolID,
		Role:        u.Role,
		DisplayName: u.DisplayName,
		Email:       u.Email,
	}
}
