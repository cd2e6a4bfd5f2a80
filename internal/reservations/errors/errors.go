package errors

import (
	"errors"
	"fmt"
	"strings"

	"bookly/pkg/model"
)

var (
	ErrInvalidRange = model.ErrInvalidRange

	ErrOverlap = errors.New("requested range overlaps a confirmed booking")

	ErrVersionConflict = errors.New("booking version does not match")

	ErrNotFound = errors.New("booking not found")

	ErrResourceNotFound = errors.New("resource not found")

	ErrResourceExists = errors.New("resource already exists")

	ErrResourceInUse = errors.New("resource has active bookings")

	ErrInvalidTransition = errors.New("booking status transition not allowed")

	ErrResourceHalted = errors.New("resource is halted pending reconcile")

	ErrIntegrity = errors.New("availability index integrity violated")

	ErrIdempotencyKeyReused = errors.New("idempotency key already used for a different request")
)

// OverlapError carries the confirmed ranges that blocked a request.
// It matches ErrOverlap through errors.Is.
type OverlapError struct {
	ResourceID string
	Requested  model.TimeRange
	Conflicts  []model.TimeRange
}

func (e *OverlapError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("%s: resource %s, requested %s, conflicts %s",
		ErrOverlap, e.ResourceID, e.Requested, strings.Join(parts, ", "))
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}

func AsOverlapError(err error) (*OverlapError, bool) {
	var oe *OverlapError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
