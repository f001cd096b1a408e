package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("not found")

// ValidationError rejects input before it reaches the store.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError is returned when no entity matches owner and id.
type NotFoundError struct {
	Kind  string
	Owner string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found for owner %s", e.Kind, e.ID, e.Owner)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConfigurationError marks a recurrence definition the engine cannot process.
type ConfigurationError struct {
	DefinitionID int64
	Reason       string
	Err          error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("recurrence %d misconfigured: %s", e.DefinitionID, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// StoreError wraps connectivity, timeout and driver failures. Always retryable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Retryable() bool { return true }

// WrapStore turns a store failure into a *StoreError. Domain errors pass through.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		se *StoreError
		ve *ValidationError
		ce *ConfigurationError
	)
	if errors.As(err, &se) || errors.As(err, &ve) || errors.As(err, &ce) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsRetryable reports whether err (or anything it wraps) can be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
