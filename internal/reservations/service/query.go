package service

import (
	"context"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/pkg/model"
	"bookly/pkg/sanitizer"
)

// IsAvailable reports whether no confirmed booking overlaps r. Pending
// bookings do not occupy the resource.
func (s *reservationService) IsAvailable(ctx context.Context, resourceID string, r model.TimeRange) (bool, error) {
	if !r.Valid() {
		return false, reservationerrors.ErrInvalidRange
	}
	st, unlock, err := s.acquire(ctx, sanitizer.SanitizeResourceID(resourceID), false)
	if err != nil {
		return false, err
	}
	defer unlock()

	return len(st.index.QueryOverlaps(r.UTC())) == 0, nil
}

func (s *reservationService) FreeSlots(ctx context.Context, resourceID string, within model.TimeRange) ([]model.TimeRange, error) {
	if !within.Valid() {
		return nil, reservationerrors.ErrInvalidRange
	}
	st, unlock, err := s.acquire(ctx, sanitizer.SanitizeResourceID(resourceID), false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return st.index.FreeSlots(within.UTC()), nil
}
