package booking

import (
	"fmt"
	"time"
)

// ValidationError is malformed or out-of-policy input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ConflictError means the requested interval was taken. Callers should re-query
// availability instead of retrying the same slot.
type ConflictError struct {
	StaffID string
	Start   time.Time
	End     time.Time
}

func (e *ConflictError) Error() string {
	if e.StaffID == "" {
		return fmt.Sprintf("no staff available for %s-%s", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("staff %s is not available for %s-%s", e.StaffID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// TransientError wraps a store failure where nothing was written. Safe to retry with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
