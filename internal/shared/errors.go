package shared

import "errors"

var (
	// ErrValidation indicates a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("already exists")
	// ErrUnauthorized indicates failed credential or token verification.
	ErrUnauthorized = errors.New("unauthorized")
)
