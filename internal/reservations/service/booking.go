package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/internal/reservations/repository"
	"bookly/internal/reservations/resolver"
	"bookly/pkg/model"
	"bookly/pkg/sanitizer"
)

func (s *reservationService) CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Outcome, error) {
	s.sanitizeCreate(req)
	r, err := model.NewTimeRange(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Booking request validation failed", "resource_id", req.ResourceID, "error", err)
		return nil, err
	}

	st, unlock, err := s.acquire(ctx, req.ResourceID, true)
	if err != nil {
		return nil, err
	}
	outcome, evt, err := s.createLocked(ctx, st, req, r)
	if err != nil {
		unlock()
		return nil, err
	}

	var evts []model.BookingEvent
	if evt != nil {
		evts = append(evts, *evt)
	}
	s.release(ctx, st, unlock, evts)
	return outcome, nil
}

func (s *reservationService) createLocked(ctx context.Context, st *resourceState, req *model.CreateBookingRequest, r model.TimeRange) (*model.Outcome, *model.BookingEvent, error) {
	if err := s.checkWritable(st); err != nil {
		return nil, nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.bookings.FindByIdempotencyKey(ctx, st.id, req.IdempotencyKey)
		switch {
		case err == nil:
			if !existing.Range.Equal(r) {
				return nil, nil, fmt.Errorf("%w: key %q belongs to booking %s",
					reservationerrors.ErrIdempotencyKeyReused, req.IdempotencyKey, existing.ID)
			}
			s.cfg.Log.Info("Replaying idempotent booking request",
				"booking_id", existing.ID,
				"resource_id", st.id,
				"status", existing.Status,
			)
			return &model.Outcome{Booking: existing, Replayed: true}, nil, nil
		case !errors.Is(err, reservationerrors.ErrNotFound):
			return nil, nil, fmt.Errorf("look up idempotency key: %w", err)
		}
	}

	decision := s.resolver.Resolve(st.index, r, "")

	now := s.now()
	booking := &model.Booking{
		ID:             s.newID(),
		ResourceID:     st.id,
		Range:          r,
		Version:        1,
		ArrivalSeq:     st.nextSeq(),
		IdempotencyKey: req.IdempotencyKey,
		RequestedBy:    req.RequestedBy,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var eventType model.BookingEventType
	switch decision.Outcome {
	case resolver.Admit:
		booking.Status = model.BookingStatusConfirmed
		eventType = model.EventBookingConfirmed
	case resolver.Waitlist:
		booking.Status = model.BookingStatusPending
		eventType = model.EventBookingWaitlisted
	default:
		booking.Status = model.BookingStatusRejected
		eventType = model.EventBookingRejected
	}

	if err := s.commit(ctx, []repository.BookingWrite{repository.Insert(booking)}); err != nil {
		return nil, nil, s.commitFailed(st, err)
	}

	switch booking.Status {
	case model.BookingStatusConfirmed:
		if err := st.index.Insert(booking.ID, booking.Range); err != nil {
			cause := fmt.Errorf("%w: committed booking %s does not fit the index: %v",
				reservationerrors.ErrIntegrity, booking.ID, err)
			s.halt(st, cause)
			return nil, nil, cause
		}
		st.active[booking.ID] = booking
		if err := st.index.Validate(); err != nil {
			s.halt(st, err)
			return nil, nil, err
		}
	case model.BookingStatusPending:
		st.active[booking.ID] = booking
		st.waitlist = append(st.waitlist, booking.ID)
	}

	s.cfg.Log.Info("Booking request resolved",
		"booking_id", booking.ID,
		"resource_id", st.id,
		"status", booking.Status,
		"range", booking.Range.String(),
		"conflicts", len(decision.Conflicts),
	)
	evt := s.event(eventType, booking)
	return &model.Outcome{Booking: booking.Clone(), Conflicts: decision.Conflicts}, &evt, nil
}

func (s *reservationService) CancelBooking(ctx context.Context, id string, expectedVersion int64) (*model.Booking, error) {
	st, unlock, current, err := s.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	cancelled, evts, err := s.cancelLocked(ctx, st, current, expectedVersion)
	if err != nil {
		unlock()
		return nil, err
	}

	s.release(ctx, st, unlock, evts)
	return cancelled, nil
}

func (s *reservationService) cancelLocked(ctx context.Context, st *resourceState, current *model.Booking, expectedVersion int64) (*model.Booking, []model.BookingEvent, error) {
	if err := s.checkWritable(st); err != nil {
		return nil, nil, err
	}
	if err := checkVersion(current, expectedVersion); err != nil {
		return nil, nil, err
	}
	if current.Status != model.BookingStatusConfirmed {
		return nil, nil, transitionError(current, model.BookingStatusCancelled)
	}

	now := s.now()
	cancelled := current.Transition(model.BookingStatusCancelled, now)

	ix := st.index.Clone()
	if err := ix.Remove(current.ID); err != nil {
		cause := fmt.Errorf("%w: cancel %s: %v", reservationerrors.ErrIntegrity, current.ID, err)
		s.halt(st, cause)
		return nil, nil, cause
	}
	promoted, promoWrites, err := s.planPromotions(st, ix, current.Range, now)
	if err != nil {
		s.halt(st, err)
		return nil, nil, err
	}
	if err := ix.Validate(); err != nil {
		s.halt(st, err)
		return nil, nil, err
	}

	writes := append([]repository.BookingWrite{repository.Update(cancelled, current.Version)}, promoWrites...)
	if err := s.commit(ctx, writes); err != nil {
		return nil, nil, s.commitFailed(st, err)
	}

	st.index = ix
	delete(st.active, current.ID)
	s.applyPromotions(st, promoted)

	s.cfg.Log.Info("Booking cancelled",
		"booking_id", cancelled.ID,
		"resource_id", st.id,
		"version", cancelled.Version,
		"promoted", len(promoted),
	)

	evts := []model.BookingEvent{s.event(model.EventBookingCancelled, cancelled)}
	for _, b := range promoted {
		evts = append(evts, s.event(model.EventBookingPromoted, b))
	}
	return cancelled.Clone(), evts, nil
}

func (s *reservationService) RescheduleBooking(ctx context.Context, id string, newRange model.TimeRange, expectedVersion int64) (*model.Reschedule, error) {
	r, err := model.NewTimeRange(newRange.Start, newRange.End)
	if err != nil {
		return nil, err
	}

	st, unlock, current, err := s.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	result, evts, err := s.rescheduleLocked(ctx, st, current, r, expectedVersion)
	if err != nil {
		unlock()
		return nil, err
	}

	s.release(ctx, st, unlock, evts)
	return result, nil
}

func (s *reservationService) rescheduleLocked(ctx context.Context, st *resourceState, current *model.Booking, r model.TimeRange, expectedVersion int64) (*model.Reschedule, []model.BookingEvent, error) {
	if err := s.checkWritable(st); err != nil {
		return nil, nil, err
	}
	if err := checkVersion(current, expectedVersion); err != nil {
		return nil, nil, err
	}
	if current.Status != model.BookingStatusConfirmed {
		return nil, nil, transitionError(current, model.BookingStatusCancelled)
	}

	// Rescheduling never waitlists: the original slot stays held on conflict.
	if decision := s.resolver.Resolve(st.index, r, current.ID); !decision.Admitted() {
		return nil, nil, &reservationerrors.OverlapError{
			ResourceID: st.id,
			Requested:  r,
			Conflicts:  decision.Conflicts,
		}
	}

	now := s.now()
	replacement := &model.Booking{
		ID:              s.newID(),
		ResourceID:      st.id,
		Range:           r,
		Status:          model.BookingStatusConfirmed,
		Version:         1,
		ArrivalSeq:      st.nextSeq(),
		RequestedBy:     current.RequestedBy,
		Notes:           current.Notes,
		RescheduledFrom: current.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	previous := current.Transition(model.BookingStatusCancelled, now)
	previous.RescheduledTo = replacement.ID

	ix := st.index.Clone()
	if err := ix.Remove(current.ID); err != nil {
		cause := fmt.Errorf("%w: reschedule %s: %v", reservationerrors.ErrIntegrity, current.ID, err)
		s.halt(st, cause)
		return nil, nil, cause
	}
	if err := ix.Insert(replacement.ID, replacement.Range); err != nil {
		cause := fmt.Errorf("%w: reschedule %s: %v", reservationerrors.ErrIntegrity, current.ID, err)
		s.halt(st, cause)
		return nil, nil, cause
	}
	promoted, promoWrites, err := s.planPromotions(st, ix, current.Range, now)
	if err != nil {
		s.halt(st, err)
		return nil, nil, err
	}
	if err := ix.Validate(); err != nil {
		s.halt(st, err)
		return nil, nil, err
	}

	writes := []repository.BookingWrite{
		repository.Update(previous, current.Version),
		repository.Insert(replacement),
	}
	writes = append(writes, promoWrites...)
	if err := s.commit(ctx, writes); err != nil {
		return nil, nil, s.commitFailed(st, err)
	}

	st.index = ix
	delete(st.active, current.ID)
	st.active[replacement.ID] = replacement
	s.applyPromotions(st, promoted)

	s.cfg.Log.Info("Booking rescheduled",
		"booking_id", current.ID,
		"replacement_id", replacement.ID,
		"resource_id", st.id,
		"from", current.Range.String(),
		"to", replacement.Range.String(),
		"promoted", len(promoted),
	)

	evts := []model.BookingEvent{s.event(model.EventBookingRescheduled, replacement)}
	for _, b := range promoted {
		evts = append(evts, s.event(model.EventBookingPromoted, b))
	}
	return &model.Reschedule{Previous: previous.Clone(), Booking: replacement.Clone()}, evts, nil
}

// ApproveBooking confirms a pending booking by hand. The range is resolved
// again under the lock, so an approval never overrides a confirmed booking;
// a conflict leaves the booking pending and returns *OverlapError.
func (s *reservationService) ApproveBooking(ctx context.Context, id string, expectedVersion int64) (*model.Booking, error) {
	st, unlock, current, err := s.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	approved, evt, err := s.approveLocked(ctx, st, current, expectedVersion)
	if err != nil {
		unlock()
		return nil, err
	}

	s.release(ctx, st, unlock, []model.BookingEvent{evt})
	return approved, nil
}

func (s *reservationService) approveLocked(ctx context.Context, st *resourceState, current *model.Booking, expectedVersion int64) (*model.Booking, model.BookingEvent, error) {
	if err := s.checkWritable(st); err != nil {
		return nil, model.BookingEvent{}, err
	}
	if err := checkVersion(current, expectedVersion); err != nil {
		return nil, model.BookingEvent{}, err
	}
	if current.Status != model.BookingStatusPending {
		return nil, model.BookingEvent{}, transitionError(current, model.BookingStatusConfirmed)
	}

	// Approval confirms or fails under either policy.
	if decision := s.resolver.Resolve(st.index, current.Range, current.ID); !decision.Admitted() {
		return nil, model.BookingEvent{}, &reservationerrors.OverlapError{
			ResourceID: st.id,
			Requested:  current.Range,
			Conflicts:  decision.Conflicts,
		}
	}

	ix := st.index.Clone()
	if err := ix.Insert(current.ID, current.Range); err != nil {
		cause := fmt.Errorf("%w: approve %s: %v", reservationerrors.ErrIntegrity, current.ID, err)
		s.halt(st, cause)
		return nil, model.BookingEvent{}, cause
	}
	if err := ix.Validate(); err != nil {
		s.halt(st, err)
		return nil, model.BookingEvent{}, err
	}

	approved := current.Transition(model.BookingStatusConfirmed, s.now())
	if err := s.commit(ctx, []repository.BookingWrite{repository.Update(approved, current.Version)}); err != nil {
		return nil, model.BookingEvent{}, s.commitFailed(st, err)
	}

	st.index = ix
	st.active[approved.ID] = approved
	s.removeFromWaitlist(st, approved.ID)

	s.cfg.Log.Info("Booking approved",
		"booking_id", approved.ID,
		"resource_id", st.id,
		"range", approved.Range.String(),
	)
	return approved.Clone(), s.event(model.EventBookingApproved, approved), nil
}

func (s *reservationService) DeclineBooking(ctx context.Context, id string, expectedVersion int64) (*model.Booking, error) {
	st, unlock, current, err := s.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	declined, evt, err := s.declineLocked(ctx, st, current, expectedVersion)
	if err != nil {
		unlock()
		return nil, err
	}

	s.release(ctx, st, unlock, []model.BookingEvent{evt})
	return declined, nil
}

func (s *reservationService) declineLocked(ctx context.Context, st *resourceState, current *model.Booking, expectedVersion int64) (*model.Booking, model.BookingEvent, error) {
	if err := s.checkWritable(st); err != nil {
		return nil, model.BookingEvent{}, err
	}
	if err := checkVersion(current, expectedVersion); err != nil {
		return nil, model.BookingEvent{}, err
	}
	if current.Status != model.BookingStatusPending {
		return nil, model.BookingEvent{}, transitionError(current, model.BookingStatusRejected)
	}

	declined := current.Transition(model.BookingStatusRejected, s.now())
	if err := s.commit(ctx, []repository.BookingWrite{repository.Update(declined, current.Version)}); err != nil {
		return nil, model.BookingEvent{}, s.commitFailed(st, err)
	}

	delete(st.active, current.ID)
	s.removeFromWaitlist(st, current.ID)

	s.cfg.Log.Info("Booking declined", "booking_id", declined.ID, "resource_id", st.id)
	return declined.Clone(), s.event(model.EventBookingDeclined, declined), nil
}

func (s *reservationService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, reservationerrors.ErrNotFound
	}
	return s.bookings.FindByID(ctx, id)
}

func (s *reservationService) ListBookings(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	if filter.ResourceID != "" {
		filter.ResourceID = sanitizer.SanitizeResourceID(filter.ResourceID)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("unknown booking status %q", filter.Status)
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.bookings.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.bookings.Search(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return bookings, count, nil
}

// lockBooking finds the booking's resource, takes its exclusive lock and
// returns the booking as seen under that lock.
func (s *reservationService) lockBooking(ctx context.Context, id string) (*resourceState, func(), *model.Booking, error) {
	if id == "" {
		return nil, nil, nil, reservationerrors.ErrNotFound
	}
	stored, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	st, unlock, err := s.acquire(ctx, stored.ResourceID, true)
	if err != nil {
		return nil, nil, nil, err
	}
	current, err := s.current(ctx, st, id)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return st, unlock, current, nil
}

func (s *reservationService) sanitizeCreate(req *model.CreateBookingRequest) {
	req.ResourceID = sanitizer.SanitizeResourceID(req.ResourceID)
	req.IdempotencyKey = sanitizer.SanitizeIdempotencyKey(req.IdempotencyKey)
	req.RequestedBy = sanitizer.SanitizeFreeText(req.RequestedBy)
	req.Notes = sanitizer.SanitizeFreeText(req.Notes)
}

func checkVersion(b *model.Booking, expected int64) error {
	if b.Version != expected {
		return fmt.Errorf("%w: booking %s is at version %d, got %d",
			reservationerrors.ErrVersionConflict, b.ID, b.Version, expected)
	}
	return nil
}

func transitionError(b *model.Booking, to model.BookingStatus) error {
	return fmt.Errorf("%w: booking %s is %s, cannot become %s",
		reservationerrors.ErrInvalidTransition, b.ID, b.Status, to)
}
