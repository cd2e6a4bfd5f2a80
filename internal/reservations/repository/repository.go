package repository

import (
	"context"

	"bookly/pkg/model"
)

// BookingWrite is one row of an atomic SaveAll. ExpectedVersion zero means
// the booking must not exist yet; otherwise the stored row must carry that
// version and is replaced by Booking.
type BookingWrite struct {
	Booking         *model.Booking
	ExpectedVersion int64
}

func Insert(b *model.Booking) BookingWrite {
	return BookingWrite{Booking: b}
}

func Update(b *model.Booking, expectedVersion int64) BookingWrite {
	return BookingWrite{Booking: b, ExpectedVersion: expectedVersion}
}

// BookingRepository persists bookings. SaveAll applies every write or none
// and refuses a state with two overlapping confirmed bookings of the same
// resource (ErrOverlap). A stale ExpectedVersion or an existing id on insert
// is reported as ErrVersionConflict.
type BookingRepository interface {
	SaveAll(ctx context.Context, writes []BookingWrite) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, resourceID, key string) (*model.Booking, error)
	// FindActiveByResource returns pending and confirmed bookings in arrival order.
	FindActiveByResource(ctx context.Context, resourceID string) ([]*model.Booking, error)
	Search(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context, filter model.BookingFilter) (int64, error)
	Ping(ctx context.Context) error
}

type ResourceRepository interface {
	Create(ctx context.Context, resource *model.Resource) error
	FindByID(ctx context.Context, id string) (*model.Resource, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Resource, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
}

func writesByResource(writes []BookingWrite) []string {
	seen := make(map[string]struct{}, len(writes))
	var ids []string
	for _, w := range writes {
		if _, ok := seen[w.Booking.ResourceID]; ok {
			continue
		}
		seen[w.Booking.ResourceID] = struct{}{}
		ids = append(ids, w.Booking.ResourceID)
	}
	return ids
}
