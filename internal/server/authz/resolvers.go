package authz

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// Resource types with built-in resolvers.
const (
	ResourceAssignment = "assignment"
	ResourceStudent    = "student"
)

type AssignmentLookup interface {
	Get(ctx context.Context, id string) (*models.Assignment, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	IsGuardianOf(ctx context.Context, parentID, studentID string) (bool, error)
}

// AssignmentOwnership admits the owning teacher, the assigned student, a
// guardian of that student, and owners/admins of the assignment's school.
func AssignmentOwnership(assignments AssignmentLookup, users UserLookup) OwnershipResolver {
	return func(ctx context.Context, p models.Principal, id string) (bool, error) {
		a, err := assignments.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return OwnsAssignment(ctx, users, p, a)
	}
}

// OwnsAssignment applies the assignment rule to an already loaded row.
func OwnsAssignment(ctx context.Context, users UserLookup, p models.Principal, a *models.Assignment) (bool, error) {
	switch p.Role {
	case models.RoleOwner, models.RoleAdmin:
		return a.SchoolID == p.SchoolID, nil
	case models.RoleTeacher:
		return a.OwnerTeacherID == p.UserID && a.SchoolID == p.SchoolID, nil
	case models.RoleStudent:
		return a.StudentID == p.UserID, nil
	case models.RoleParent:
		return users.IsGuardianOf(ctx, p.UserID, a.StudentID)
	default:
		return false, nil
	}
}

// StudentOwnership admits the student themself, their guardians, and school
// staff (teachers, admins, owners) of the student's school.
func StudentOwnership(users UserLookup) OwnershipResolver {
	return func(ctx context.Context, p models.Principal, id string) (bool, error) {
		u, err := users.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return false, nil
			}
			return false, err
		}
		if u.Role != models.RoleStudent {
			return false, nil
		}

		switch p.Role {
		case models.RoleStudent:
			return u.ID == p.UserID, nil
		case models.RoleParent:
			return users.IsGuardianOf(ctx, p.UserID, u.ID)
		case models.RoleTeacher, models.RoleAdmin, models.RoleOwner:
			return u.SchoolID == p.SchoolID, nil
		default:
			return false, nil
		}
	}
}

// RegisterDefaults installs the built-in resolvers.
func RegisterDefaults(g *Guard, assignments AssignmentLookup, users UserLookup) {
	g.Register(ResourceAssignment, AssignmentOwnership(assignments, users))
	g.Register(ResourceStudent, StudentOwnership(users))
}
