package vectorindex

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by index lifecycle and data operations.
// Callers classify failures with [errors.Is].
var (
	// ErrNotFound is returned by Connect when the named index does not exist.
	ErrNotFound = errors.New("vectorindex: index not found")

	// ErrAlreadyExists is returned by CreateIndex when the named index
	// already exists. It is non-fatal: callers that only need readiness
	// should treat it as success (or use Ensure).
	ErrAlreadyExists = errors.New("vectorindex: index already exists")

	// ErrUnavailable indicates a transient backend connectivity failure.
	// Callers should retry with backoff before giving up.
	ErrUnavailable = errors.New("vectorindex: backend unavailable")

	// ErrTimeout indicates the index did not become ready within the
	// caller-supplied deadline.
	ErrTimeout = errors.New("vectorindex: timed out waiting for index")
)

// DimensionError is returned when an upserted vector's length does not match
// the index dimension. The whole batch is rejected; nothing is written.
type DimensionError struct {
	// ID is the offending vector's identifier.
	ID string
	// Got is the length of the offending vector.
	Got int
	// Want is the index dimension.
	Want int
}

// Error implements the error interface.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("vectorindex: vector %q has dimension %d, index expects %d", e.ID, e.Got, e.Want)
}

// validateDimensions rejects the batch if any vector's length differs from
// want, naming the first offending id.
func validateDimensions(vectors []Vector, want int) error {
	for _, v := range vectors {
		if len(v.Values) != want {
			return &DimensionError{ID: v.ID, Got: len(v.Values), Want: want}
		}
	}
	return nil
}
