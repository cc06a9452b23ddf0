package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidClaim is wrapped by every ValidationError.
	ErrInvalidClaim = errors.New("invalid claim")

	// ErrDuplicateClaim is returned when a claim ID has already been ingested.
	ErrDuplicateClaim = errors.New("claim already ingested")
)

// ValidationError reports a malformed or missing claim field.
// The claim is rejected before any analysis runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid claim: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidClaim
}
