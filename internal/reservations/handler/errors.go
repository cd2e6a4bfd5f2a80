package handler

import (
	"context"
	"errors"
	"net/http"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/internal/reservations/validator"
	apperrors "bookly/pkg/errors"
	"bookly/pkg/model"
)

// toAppError maps engine errors onto the HTTP error contract. Errors that
// already are an AppError pass through.
func toAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err)
	}
	if verrs, ok := validator.AsValidationErrors(err); ok {
		return apperrors.Validation("Invalid request", verrs.Details())
	}
	if oe, ok := reservationerrors.AsOverlapError(err); ok {
		return apperrors.SlotUnavailable("Requested range overlaps a confirmed booking", map[string]any{
			"resource_id": oe.ResourceID,
			"requested":   oe.Requested,
			"conflicts":   nonNilRanges(oe.Conflicts),
		})
	}

	switch {
	case errors.Is(err, reservationerrors.ErrInvalidRange):
		return apperrors.InvalidInput("Range start must be before range end")
	case errors.Is(err, reservationerrors.ErrOverlap):
		return apperrors.SlotUnavailable("Requested range overlaps a confirmed booking", nil)
	case errors.Is(err, reservationerrors.ErrVersionConflict):
		return apperrors.VersionConflict("Booking was modified concurrently, reload and retry").WithCause(err)
	case errors.Is(err, reservationerrors.ErrNotFound):
		return apperrors.NotFound("Booking")
	case errors.Is(err, reservationerrors.ErrResourceNotFound):
		return apperrors.NotFound("Resource")
	case errors.Is(err, reservationerrors.ErrResourceExists):
		return apperrors.Conflict("Resource already exists")
	case errors.Is(err, reservationerrors.ErrResourceInUse):
		return apperrors.Conflict("Resource has confirmed or pending bookings")
	case errors.Is(err, reservationerrors.ErrInvalidTransition):
		return apperrors.Conflict(err.Error())
	case errors.Is(err, reservationerrors.ErrIdempotencyKeyReused):
		return apperrors.IdempotencyKeyReused("Idempotency key was already used for a different range")
	case errors.Is(err, reservationerrors.ErrResourceHalted):
		return apperrors.Integrity("Resource is halted until it is reconciled", err)
	case errors.Is(err, reservationerrors.ErrIntegrity):
		return apperrors.Integrity("Availability index integrity check failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("Request timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.New(apperrors.CodeTimeout, "Request cancelled", http.StatusRequestTimeout)
	}
	return apperrors.Internal("Unexpected error", err)
}

// outcomeError is the 409 body of a rejected booking request.
func outcomeError(outcome *model.Outcome) *apperrors.AppError {
	return apperrors.SlotUnavailable("Requested range overlaps a confirmed booking", map[string]any{
		"booking_id": outcome.Booking.ID,
		"status":     outcome.Booking.Status,
		"version":    outcome.Booking.Version,
		"conflicts":  nonNilRanges(outcome.Conflicts),
	})
}

func nonNilRanges(r []model.TimeRange) []model.TimeRange {
	if r == nil {
		return []model.TimeRange{}
	}
	return r
}

func statusForOutcome(outcome *model.Outcome) int {
	switch outcome.Booking.Status {
	case model.BookingStatusConfirmed:
		return http.StatusCreated
	case model.BookingStatusPending:
		return http.StatusAccepted
	}
	return http.StatusConflict
}
