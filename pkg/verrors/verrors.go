// Package verrors defines the closed set of error kinds the database
// surfaces to callers. Each kind is a distinct type so callers can
// discriminate with errors.As instead of string matching.
package verrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra data. Use errors.Is
// against these, or errors.As against the typed kinds below for ones that do.
var (
	ErrReadOnly  = errors.New("operation not permitted: database is read-only")
	ErrWriteOnly = errors.New("operation not permitted: database is write-only")
	ErrCancelled = errors.New("operation cancelled")
)

// DimensionMismatchError is returned when a caller-supplied vector's length
// does not match the dimension the database was configured or inferred with.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func DimensionMismatch(expected, got int) error {
	return &DimensionMismatchError{Expected: expected, Got: got}
}

// NotFoundError is returned when a lookup of a required entity fails, i.e.
// one whose contract demands the entity already exist (in contrast to a
// plain get/delete of a possibly-absent id, which returns a zero value, not
// an error).
type NotFoundError struct {
	Kind string // "noun", "verb", "metadata", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// StorageTransientError wraps a retryable backend failure. Callers only see
// it once the configured retry budget is exhausted.
type StorageTransientError struct {
	Inner error
}

func (e *StorageTransientError) Error() string {
	return fmt.Sprintf("transient storage error: %v", e.Inner)
}

func (e *StorageTransientError) Unwrap() error { return e.Inner }

func StorageTransient(inner error) error {
	return &StorageTransientError{Inner: inner}
}

// StoragePermanentError wraps a non-retryable backend failure.
type StoragePermanentError struct {
	Inner error
}

func (e *StoragePermanentError) Error() string {
	return fmt.Sprintf("storage error: %v", e.Inner)
}

func (e *StoragePermanentError) Unwrap() error { return e.Inner }

func StoragePermanent(inner error) error {
	return &StoragePermanentError{Inner: inner}
}

// EmbeddingFailedError wraps a failure from the caller-supplied embedding
// function.
type EmbeddingFailedError struct {
	Inner error
}

func (e *EmbeddingFailedError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Inner)
}

func (e *EmbeddingFailedError) Unwrap() error { return e.Inner }

func EmbeddingFailed(inner error) error {
	return &EmbeddingFailedError{Inner: inner}
}

// InvalidInputError covers caller mistakes that are not a dimension
// mismatch: a nil id, a negative k, a non-numeric vector component, and so on.
type InvalidInputError struct {
	Why string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Why)
}

func InvalidInput(why string) error {
	return &InvalidInputError{Why: why}
}

// TimeoutError is returned when an operation exceeds its configured budget.
type TimeoutError struct {
	Budget string // the timeout group that fired, e.g. "add", "search"
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out (budget: %s)", e.Budget)
}

func Timeout(budget string) error {
	return &TimeoutError{Budget: budget}
}

// IsReadOnly, IsWriteOnly, IsCancelled report whether err is (or wraps) the
// corresponding sentinel.
func IsReadOnly(err error) bool  { return errors.Is(err, ErrReadOnly) }
func IsWriteOnly(err error) bool { return errors.Is(err, ErrWriteOnly) }
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransient reports whether err is a StorageTransientError.
func IsTransient(err error) bool {
	var te *StorageTransientError
	return errors.As(err, &te)
}
