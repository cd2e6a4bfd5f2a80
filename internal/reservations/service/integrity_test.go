package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/internal/reservations/repository"
	"bookly/pkg/model"
)

func TestCreateBooking_ContextCancelledBeforeCommit(t *testing.T) {
	f := newFixture(t, "reject")
	// Load the state with a live context first.
	f.available(t, hours(9, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.CreateBooking(ctx, &model.CreateBookingRequest{
		ResourceID: testResource,
		Start:      at(9, 0),
		End:        at(10, 0),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if !f.available(t, hours(9, 10)) {
		t.Error("abandoned request must not hold the slot")
	}
	_, total, err := f.svc.ListBookings(context.Background(), model.BookingFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListBookings unexpected error: %v", err)
	}
	if total != 0 {
		t.Errorf("expected nothing stored, got %d bookings", total)
	}
	if f.bookings.saves() != 0 {
		t.Errorf("expected no SaveAll call, got %d", f.bookings.saves())
	}
	if len(f.notifier.types()) != 0 {
		t.Errorf("expected no events, got %v", f.notifier.types())
	}

	st := f.svc.stateFor(testResource)
	if !st.loaded || st.halted != nil {
		t.Errorf("expected state kept loaded and writable, got loaded=%v halted=%v", st.loaded, st.halted)
	}
}

func TestCommit_SurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t, "reject")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.bookings.setSaveAll(func(cctx context.Context, writes []repository.BookingWrite) error {
		// The client goes away mid-commit.
		cancel()
		if err := cctx.Err(); err != nil {
			return fmt.Errorf("commit context cancelled with caller: %w", err)
		}
		if _, ok := cctx.Deadline(); !ok {
			return errors.New("commit context has no deadline")
		}
		return f.bookings.BookingRepository.SaveAll(cctx, writes)
	})

	outcome, err := f.svc.CreateBooking(ctx, &model.CreateBookingRequest{
		ResourceID: testResource,
		Start:      at(9, 0),
		End:        at(10, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Booking.Status != model.BookingStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", outcome.Booking.Status)
	}
	if f.available(t, hours(9, 10)) {
		t.Error("expected committed booking to hold the slot")
	}
	assertEvents(t, f.notifier, model.EventBookingConfirmed)
}

func TestStorageOverlapHaltsResource(t *testing.T) {
	f := newFixture(t, "reject")
	ctx := context.Background()

	f.bookings.setSaveAll(func(ctx context.Context, writes []repository.BookingWrite) error {
		return &reservationerrors.OverlapError{
			ResourceID: testResource,
			Requested:  writes[0].Booking.Range,
			Conflicts:  []model.TimeRange{hours(9, 10)},
		}
	})

	_, err := f.svc.CreateBooking(ctx, &model.CreateBookingRequest{ResourceID: testResource, Start: at(9, 0), End: at(10, 0)})
	if !errors.Is(err, reservationerrors.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}

	f.bookings.setSaveAll(nil)
	_, err = f.svc.CreateBooking(ctx, &model.CreateBookingRequest{ResourceID: testResource, Start: at(11, 0), End: at(12, 0)})
	if !errors.Is(err, reservationerrors.ErrResourceHalted) {
		t.Fatalf("expected ErrResourceHalted, got %v", err)
	}

	// Queries keep answering from the last good index.
	if !f.available(t, hours(11, 12)) {
		t.Error("expected halted resource to still answer queries")
	}

	if err := f.svc.Reconcile(ctx, testResource); err != nil {
		t.Fatalf("Reconcile unexpected error: %v", err)
	}
	outcome := f.book(t, hours(11, 12))
	if outcome.Booking.Status != model.BookingStatusConfirmed {
		t.Errorf("expected confirmed after reconcile, got %s", outcome.Booking.Status)
	}
}

func TestCorruptStorageHaltsOnLoad(t *testing.T) {
	f := newFixture(t, "reject")
	ctx := context.Background()

	overlapping := []*model.Booking{
		{ID: "b1", ResourceID: testResource, Range: hours(9, 11), Status: model.BookingStatusConfirmed, Version: 1},
		{ID: "b2", ResourceID: testResource, Range: hours(10, 12), Status: model.BookingStatusConfirmed, Version: 1},
	}
	f.bookings.setFindActive(func(ctx context.Context, resourceID string) ([]*model.Booking, error) {
		return overlapping, nil
	})

	_, err := f.svc.CreateBooking(ctx, &model.CreateBookingRequest{ResourceID: testResource, Start: at(13, 0), End: at(14, 0)})
	if !errors.Is(err, reservationerrors.ErrResourceHalted) {
		t.Fatalf("expected ErrResourceHalted, got %v", err)
	}

	if err := f.svc.Reconcile(ctx, testResource); !errors.Is(err, reservationerrors.ErrIntegrity) {
		t.Fatalf("expected reconcile to report ErrIntegrity while storage is corrupt, got %v", err)
	}

	f.bookings.setFindActive(nil)
	if err := f.svc.Reconcile(ctx, testResource); err != nil {
		t.Fatalf("Reconcile unexpected error: %v", err)
	}
	if got := f.book(t, hours(13, 14)).Booking.Status; got != model.BookingStatusConfirmed {
		t.Errorf("expected confirmed after repair, got %s", got)
	}
}

func TestStaleCommitInvalidatesState(t *testing.T) {
	f := newFixture(t, "reject")
	ctx := context.Background()
	a := f.book(t, hours(9, 10))

	// Another writer bumped the row behind the cache's back.
	f.bookings.setSaveAll(func(ctx context.Context, writes []repository.BookingWrite) error {
		return fmt.Errorf("%w: concurrent writer", reservationerrors.ErrVersionConflict)
	})
	if _, err := f.svc.CancelBooking(ctx, a.Booking.ID, 1); !errors.Is(err, reservationerrors.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if st := f.svc.stateFor(testResource); st.loaded {
		t.Error("expected state invalidated after a failed commit")
	}
	if f.available(t, hours(9, 10)) {
		t.Error("expected reloaded state to still hold the slot")
	}

	f.bookings.setSaveAll(nil)
	if _, err := f.svc.CancelBooking(ctx, a.Booking.ID, 1); err != nil {
		t.Fatalf("CancelBooking unexpected error: %v", err)
	}
}

func TestWarm_RebuildsStateFromStorage(t *testing.T) {
	first := newFixture(t, "waitlist")
	confirmed := first.book(t, hours(9, 10))
	waiting := first.book(t, hours(9, 10))
	if waiting.Booking.Status != model.BookingStatusPending {
		t.Fatalf("expected pending, got %s", waiting.Booking.Status)
	}

	// A fresh engine over the same storage, as after a restart.
	second := newFixtureWith(t, "waitlist", first.bookings, first.resources)
	if err := second.svc.Warm(context.Background()); err != nil {
		t.Fatalf("Warm unexpected error: %v", err)
	}

	st := second.svc.stateFor(testResource)
	if !st.loaded {
		t.Fatal("expected warmed state")
	}
	if st.index.Len() != 1 {
		t.Errorf("expected 1 confirmed in index, got %d", st.index.Len())
	}
	if len(st.waitlist) != 1 || st.waitlist[0] != waiting.Booking.ID {
		t.Errorf("expected waitlist [%s], got %v", waiting.Booking.ID, st.waitlist)
	}

	if _, err := second.svc.CancelBooking(context.Background(), confirmed.Booking.ID, 1); err != nil {
		t.Fatalf("CancelBooking unexpected error: %v", err)
	}
	if got := second.status(t, waiting.Booking.ID).Status; got != model.BookingStatusConfirmed {
		t.Errorf("expected waitlisted booking promoted after restart, got %s", got)
	}
}

func TestWarm_ReportsFailures(t *testing.T) {
	f := newFixture(t, "reject")
	boom := errors.New("storage unavailable")
	f.bookings.setFindActive(func(ctx context.Context, resourceID string) ([]*model.Booking, error) {
		return nil, boom
	})

	err := f.svc.Warm(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected warm failure to wrap cause, got %v", err)
	}

	// The resource loads lazily once storage recovers.
	f.bookings.setFindActive(nil)
	if !f.available(t, hours(9, 10)) {
		t.Error("expected empty resource to be available")
	}
}
