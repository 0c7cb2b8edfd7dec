package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors classified at the worker/orchestrator boundary.
var (
	// ErrDuplicateContent marks an insert that hit the content-hash
	// uniqueness constraint. Absorbed as a skip, never surfaced.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrAlreadyProcessed marks the idempotency guard: the unit of work was
	// already handled and the operation short-circuits as a no-op success.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrNotFound marks a source, item, or external job that vanished.
	// Fatal for that unit of work, not retried.
	ErrNotFound = errors.New("not found")

	// ErrBudgetExhausted marks a poll or attempt ceiling being reached.
	ErrBudgetExhausted = errors.New("budget exhausted")
)

// TransientError wraps a failure expected to be retry-recoverable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried with backoff. Context
// cancellation is never transient; network timeouts always are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// ValidationError marks malformed input. Fatal, not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
