// Package errors defines the error taxonomy shared by the queue core.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no record exists for the requested job id.
	ErrNotFound = errors.New("job not found")

	// ErrCorrupt indicates stored job data could not be deserialized or the
	// deserialized id does not match the requested id.
	ErrCorrupt = errors.New("job data corrupt")

	// ErrEmpty indicates a blocking pop returned no job within its timeout.
	// Non-fatal; the worker loop re-pops.
	ErrEmpty = errors.New("queue empty")

	// ErrBadArgument indicates invalid caller inputs, raised synchronously
	// at construction time.
	ErrBadArgument = errors.New("bad argument")
)

// StorageError wraps a Redis-level failure. The core never retries these
// automatically; the worker loop counts them toward throttle accounting.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorage wraps err as a StorageError for the named operation.
func NewStorage(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorrupt reports whether err is (or wraps) ErrCorrupt.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

// IsEmpty reports whether err is (or wraps) ErrEmpty.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmpty)
}
