package scheduling

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("resource not accessible")
	ErrPersistenceRace = errors.New("concurrent booking detected, retry manually")
	ErrNotFound        = errors.New("not found")

	// errStaleVersion is returned by writes guarded by the version column.
	errStaleVersion = errors.New("appointment modified concurrently")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthorizationError reports a reference to a resource outside the caller's
// tenant, or one that does not exist at all.
type AuthorizationError struct {
	Resource string
	ID       uuid.UUID
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s %s does not belong to this clinic", e.Resource, e.ID)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }
