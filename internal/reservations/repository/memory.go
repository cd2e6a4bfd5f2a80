package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/pkg/model"
)

type memoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
}

func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{
		bookings: make(map[string]*model.Booking),
	}
}

func (r *memoryBookingRepository) SaveAll(ctx context.Context, writes []BookingWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]*model.Booking, len(writes))
	lookup := func(id string) (*model.Booking, bool) {
		if b, ok := staged[id]; ok {
			return b, true
		}
		b, ok := r.bookings[id]
		return b, ok
	}

	for _, w := range writes {
		current, exists := lookup(w.Booking.ID)
		if w.ExpectedVersion == 0 {
			if exists {
				return fmt.Errorf("%w: booking %s already exists", reservationerrors.ErrVersionConflict, w.Booking.ID)
			}
			if key := w.Booking.IdempotencyKey; key != "" {
				if dup := r.findByKeyLocked(w.Booking.ResourceID, key, staged); dup != nil {
					return fmt.Errorf("%w: idempotency key %q already used by %s", reservationerrors.ErrVersionConflict, key, dup.ID)
				}
			}
		} else {
			if !exists {
				return fmt.Errorf("%w: %s", reservationerrors.ErrNotFound, w.Booking.ID)
			}
			if current.Version != w.ExpectedVersion {
				return fmt.Errorf("%w: booking %s is at version %d, expected %d",
					reservationerrors.ErrVersionConflict, w.Booking.ID, current.Version, w.ExpectedVersion)
			}
		}
		staged[w.Booking.ID] = w.Booking.Clone()
	}

	for _, b := range staged {
		if b.Status != model.BookingStatusConfirmed {
			continue
		}
		if other := r.confirmedOverlapLocked(b, staged); other != nil {
			return &reservationerrors.OverlapError{
				ResourceID: b.ResourceID,
				Requested:  b.Range,
				Conflicts:  []model.TimeRange{other.Range},
			}
		}
	}

	for id, b := range staged {
		r.bookings[id] = b
	}
	return nil
}

func (r *memoryBookingRepository) confirmedOverlapLocked(b *model.Booking, staged map[string]*model.Booking) *model.Booking {
	check := func(other *model.Booking) bool {
		return other.ID != b.ID &&
			other.ResourceID == b.ResourceID &&
			other.Status == model.BookingStatusConfirmed &&
			other.Range.Overlaps(b.Range)
	}
	for _, other := range staged {
		if check(other) {
			return other
		}
	}
	for id, other := range r.bookings {
		if _, ok := staged[id]; ok {
			continue
		}
		if check(other) {
			return other
		}
	}
	return nil
}

func (r *memoryBookingRepository) findByKeyLocked(resourceID, key string, staged map[string]*model.Booking) *model.Booking {
	for _, b := range staged {
		if b.ResourceID == resourceID && b.IdempotencyKey == key {
			return b
		}
	}
	for _, b := range r.bookings {
		if b.ResourceID == resourceID && b.IdempotencyKey == key {
			return b
		}
	}
	return nil
}

func (r *memoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, reservationerrors.ErrNotFound
	}
	return b.Clone(), nil
}

func (r *memoryBookingRepository) FindByIdempotencyKey(ctx context.Context, resourceID, key string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b := r.findByKeyLocked(resourceID, key, nil); b != nil {
		return b.Clone(), nil
	}
	return nil, reservationerrors.ErrNotFound
}

func (r *memoryBookingRepository) FindActiveByResource(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Booking
	for _, b := range r.bookings {
		if b.ResourceID == resourceID && b.Status.IsActive() {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArrivalSeq != out[j].ArrivalSeq {
			return out[i].ArrivalSeq < out[j].ArrivalSeq
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryBookingRepository) Search(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	matched := r.match(filter)
	if offset >= int64(len(matched)) {
		return []*model.Booking{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *memoryBookingRepository) Count(ctx context.Context, filter model.BookingFilter) (int64, error) {
	return int64(len(r.match(filter))), nil
}

func (r *memoryBookingRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *memoryBookingRepository) match(filter model.BookingFilter) []*model.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Booking
	for _, b := range r.bookings {
		if filter.Matches(b) {
			out = append(out, b.Clone())
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(bookings []*model.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if !a.Range.Start.Equal(b.Range.Start) {
			return a.Range.Start.Before(b.Range.Start)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

type memoryResourceRepository struct {
	mu        sync.RWMutex
	resources map[string]*model.Resource
}

func NewMemoryResourceRepository() ResourceRepository {
	return &memoryResourceRepository{
		resources: make(map[string]*model.Resource),
	}
}

func (r *memoryResourceRepository) Create(ctx context.Context, resource *model.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[resource.ID]; ok {
		return fmt.Errorf("%w: %s", reservationerrors.ErrResourceExists, resource.ID)
	}
	c := *resource
	r.resources[resource.ID] = &c
	return nil
}

func (r *memoryResourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	if !ok {
		return nil, reservationerrors.ErrResourceNotFound
	}
	c := *res
	return &c, nil
}

func (r *memoryResourceRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Resource, error) {
	r.mu.RLock()
	all := make([]*model.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		c := *res
		all = append(all, &c)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= int64(len(all)) {
		return []*model.Resource{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *memoryResourceRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.resources)), nil
}

func (r *memoryResourceRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[id]; !ok {
		return reservationerrors.ErrResourceNotFound
	}
	delete(r.resources, id)
	return nil
}
