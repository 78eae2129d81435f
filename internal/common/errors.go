// Package common defines shared constants and sentinel errors used across
// gradekeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Credential errors. ErrCredentialInvalid deliberately covers expired,
	// revoked and malformed credentials alike.
	ErrCredentialMissing = errors.New("missing credential")
	ErrCredentialInvalid = errors.New("invalid or expired credential")
	ErrPrincipalNotFound = errors.New("principal not found")

	// Authorization errors. ErrResourceNotFoundOrDenied is returned both for
	// absent resources and for ownership failures.
	ErrPermissionDenied         = errors.New("permission denied")
	ErrSchoolAccessDenied       = errors.New("school access denied")
	ErrResourceNotFoundOrDenied = errors.New("not found")

	// Workflow errors.
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
