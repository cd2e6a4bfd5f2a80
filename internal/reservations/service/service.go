package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/internal/reservations/events"
	"bookly/internal/reservations/index"
	"bookly/internal/reservations/repository"
	"bookly/internal/reservations/resolver"
	"bookly/internal/reservations/validator"
	"bookly/pkg/config"
	"bookly/pkg/model"

	"github.com/google/uuid"
)

// errNotCommitted marks operations abandoned before the commit boundary.
var errNotCommitted = errors.New("operation abandoned before commit")

type ReservationService interface {
	CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Outcome, error)
	CancelBooking(ctx context.Context, id string, expectedVersion int64) (*model.Booking, error)
	RescheduleBooking(ctx context.Context, id string, newRange model.TimeRange, expectedVersion int64) (*model.Reschedule, error)
	ApproveBooking(ctx context.Context, id string, expectedVersion int64) (*model.Booking, error)
	DeclineBooking(ctx context.Context, id string, expectedVersion int64) (*model.Booking, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookings(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error)

	IsAvailable(ctx context.Context, resourceID string, r model.TimeRange) (bool, error)
	FreeSlots(ctx context.Context, resourceID string, within model.TimeRange) ([]model.TimeRange, error)

	CreateResource(ctx context.Context, req *model.CreateResourceRequest) (*model.Resource, error)
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	ListResources(ctx context.Context, limit int, offset int64) ([]*model.Resource, int64, error)
	DeleteResource(ctx context.Context, id string) error
	Reconcile(ctx context.Context, resourceID string) error
	Warm(ctx context.Context) error

	Ping(ctx context.Context) error
}

// resourceState is the in-memory view of one resource. The fields above
// outboxMu are guarded by mu: writers hold it exclusively from resolve
// through commit, queries hold it shared.
type resourceState struct {
	mu       sync.RWMutex
	id       string
	index    *index.Index
	active   map[string]*model.Booking
	waitlist []string
	lastSeq  int64
	halted   error
	loaded   bool
	removed  bool

	// outbox holds committed events in commit order. Writers append while
	// still holding mu; whoever finds no flush running drains it.
	outboxMu   sync.Mutex
	outbox     []queuedEvent
	publishing bool
}

type queuedEvent struct {
	ctx context.Context
	evt model.BookingEvent
}

type reservationService struct {
	bookings  repository.BookingRepository
	resources repository.ResourceRepository
	notifier  events.Notifier
	validator *validator.ReservationValidator
	resolver  *resolver.Resolver
	cfg       *config.Config

	commitTimeout time.Duration
	now           func() time.Time
	newID         func() string

	statesMu sync.Mutex
	states   map[string]*resourceState
}

func NewReservationService(
	bookings repository.BookingRepository,
	resources repository.ResourceRepository,
	notifier events.Notifier,
	validator *validator.ReservationValidator,
	cfg *config.Config,
) ReservationService {
	policy, err := resolver.ParsePolicy(cfg.ConflictPolicy)
	if err != nil {
		cfg.Log.Warn("Unknown conflict policy, falling back to reject", "policy", cfg.ConflictPolicy, "error", err)
		policy = resolver.PolicyReject
	}
	commitTimeout := cfg.CommitTimeout
	if commitTimeout <= 0 {
		commitTimeout = config.DefaultCommitTimeout
	}
	if notifier == nil {
		notifier = events.NewNoopNotifier()
	}

	return &reservationService{
		bookings:      bookings,
		resources:     resources,
		notifier:      notifier,
		validator:     validator,
		resolver:      resolver.New(policy),
		cfg:           cfg,
		commitTimeout: commitTimeout,
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:         uuid.NewString,
		states:        make(map[string]*resourceState),
	}
}

func (s *reservationService) Ping(ctx context.Context) error {
	return s.bookings.Ping(ctx)
}

// --- Resource state ---

func (s *reservationService) stateFor(resourceID string) *resourceState {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	st, ok := s.states[resourceID]
	if !ok {
		st = &resourceState{id: resourceID}
		s.states[resourceID] = st
	}
	return st
}

func (s *reservationService) dropState(st *resourceState) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	if s.states[st.id] == st {
		delete(s.states, st.id)
	}
}

// acquire returns the loaded state of a resource with its lock held and the
// matching unlock func. A shared acquire on a state that still needs loading
// takes the exclusive lock instead.
func (s *reservationService) acquire(ctx context.Context, resourceID string, exclusive bool) (*resourceState, func(), error) {
	for {
		st := s.stateFor(resourceID)

		if !exclusive {
			st.mu.RLock()
			if st.loaded && !st.removed {
				return st, st.mu.RUnlock, nil
			}
			st.mu.RUnlock()
		}

		st.mu.Lock()
		if st.removed {
			st.mu.Unlock()
			continue
		}
		if !st.loaded {
			if err := s.load(ctx, st); err != nil {
				st.removed = true
				s.dropState(st)
				st.mu.Unlock()
				return nil, nil, err
			}
		}
		return st, st.mu.Unlock, nil
	}
}

// load rebuilds the state from the repositories. Stored bookings that do not
// fit into one non-overlapping index halt the resource instead of failing the
// load, so the state can still be inspected and reconciled.
func (s *reservationService) load(ctx context.Context, st *resourceState) error {
	if _, err := s.resources.FindByID(ctx, st.id); err != nil {
		return fmt.Errorf("load resource %s: %w", st.id, err)
	}
	active, err := s.bookings.FindActiveByResource(ctx, st.id)
	if err != nil {
		return fmt.Errorf("load bookings of resource %s: %w", st.id, err)
	}

	ix := index.New(st.id)
	byID := make(map[string]*model.Booking, len(active))
	var waitlist []string
	var integrityErr error
	var lastSeq int64
	for _, b := range active {
		byID[b.ID] = b
		lastSeq = max(lastSeq, b.ArrivalSeq)
		switch b.Status {
		case model.BookingStatusConfirmed:
			if err := ix.Insert(b.ID, b.Range); err != nil && integrityErr == nil {
				integrityErr = fmt.Errorf("%w: stored booking %s does not fit the index: %v", reservationerrors.ErrIntegrity, b.ID, err)
			}
		case model.BookingStatusPending:
			waitlist = append(waitlist, b.ID)
		}
	}
	if integrityErr == nil {
		integrityErr = ix.Validate()
	}

	st.index = ix
	st.active = byID
	st.waitlist = waitlist
	st.lastSeq = max(st.lastSeq, lastSeq)
	st.loaded = true
	st.halted = nil
	if integrityErr != nil {
		s.halt(st, integrityErr)
	}

	s.cfg.Log.Debug("Resource state loaded",
		"resource_id", st.id,
		"confirmed", ix.Len(),
		"waitlisted", len(waitlist),
	)
	return nil
}

func (s *reservationService) halt(st *resourceState, cause error) {
	st.halted = cause
	s.cfg.Log.Error("Resource halted, writes refused until reconcile",
		"resource_id", st.id,
		"error", cause,
	)
}

func (s *reservationService) checkWritable(st *resourceState) error {
	if st.halted != nil {
		return fmt.Errorf("%w: %s: %v", reservationerrors.ErrResourceHalted, st.id, st.halted)
	}
	return nil
}

// commit persists writes once the caller's context is still live. From here
// on the write runs detached from client cancellation, bounded by the commit
// timeout, so an accepted request is never abandoned half way.
func (s *reservationService) commit(ctx context.Context, writes []repository.BookingWrite) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errNotCommitted, err)
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
	defer cancel()
	return s.bookings.SaveAll(cctx, writes)
}

// commitFailed reacts to a failed SaveAll with the state still locked.
func (s *reservationService) commitFailed(st *resourceState, err error) error {
	switch {
	case errors.Is(err, reservationerrors.ErrOverlap):
		cause := fmt.Errorf("%w: storage refused a write the index admitted: %v", reservationerrors.ErrIntegrity, err)
		s.halt(st, cause)
		return cause
	case errors.Is(err, errNotCommitted):
		return err
	default:
		// Stale cache or an unknown outcome: reload on next access.
		st.loaded = false
		s.cfg.Log.Warn("Commit failed, resource state invalidated",
			"resource_id", st.id,
			"error", err,
		)
		return err
	}
}

// current returns the booking as the state knows it, falling back to the
// repository for bookings that are no longer active.
func (s *reservationService) current(ctx context.Context, st *resourceState, id string) (*model.Booking, error) {
	if b, ok := st.active[id]; ok {
		return b, nil
	}
	return s.bookings.FindByID(ctx, id)
}

func (s *reservationService) removeFromWaitlist(st *resourceState, id string) {
	for i, wid := range st.waitlist {
		if wid == id {
			st.waitlist = append(st.waitlist[:i:i], st.waitlist[i+1:]...)
			return
		}
	}
}

// planPromotions walks the waitlist in arrival order and moves every
// pending booking that overlaps the freed window and now fits into ix.
func (s *reservationService) planPromotions(st *resourceState, ix *index.Index, freed model.TimeRange, at time.Time) ([]*model.Booking, []repository.BookingWrite, error) {
	if s.resolver.Policy() != resolver.PolicyWaitlist {
		return nil, nil, nil
	}
	var promoted []*model.Booking
	var writes []repository.BookingWrite
	for _, id := range st.waitlist {
		pending := st.active[id]
		if pending == nil || !pending.Range.Overlaps(freed) {
			continue
		}
		if !s.resolver.Resolve(ix, pending.Range, "").Admitted() {
			continue
		}
		if err := ix.Insert(pending.ID, pending.Range); err != nil {
			return nil, nil, fmt.Errorf("%w: promote %s: %v", reservationerrors.ErrIntegrity, pending.ID, err)
		}
		next := pending.Transition(model.BookingStatusConfirmed, at)
		promoted = append(promoted, next)
		writes = append(writes, repository.Update(next, pending.Version))
	}
	return promoted, writes, nil
}

func (s *reservationService) applyPromotions(st *resourceState, promoted []*model.Booking) {
	for _, b := range promoted {
		st.active[b.ID] = b
		s.removeFromWaitlist(st, b.ID)
	}
}

func (s *reservationService) event(t model.BookingEventType, b *model.Booking) model.BookingEvent {
	return model.BookingEvent{Type: t, Booking: b.Clone(), OccurredAt: b.UpdatedAt}
}

// nextSeq hands out the arrival sequence of a new booking. Callers hold
// the exclusive lock.
func (st *resourceState) nextSeq() int64 {
	st.lastSeq++
	return st.lastSeq
}

// release queues the events of a commit behind the ones already committed,
// drops the resource lock and then publishes. Events of one resource leave
// in commit order even when a later writer gets to publish first.
func (s *reservationService) release(ctx context.Context, st *resourceState, unlock func(), evts []model.BookingEvent) {
	if len(evts) == 0 {
		unlock()
		return
	}
	st.outboxMu.Lock()
	detached := context.WithoutCancel(ctx)
	for _, evt := range evts {
		st.outbox = append(st.outbox, queuedEvent{ctx: detached, evt: evt})
	}
	st.outboxMu.Unlock()
	unlock()

	s.flush(st)
}

// flush drains the outbox unless another caller already does. A notifier
// that writes to the same resource from inside Notify only queues.
func (s *reservationService) flush(st *resourceState) {
	st.outboxMu.Lock()
	if st.publishing {
		st.outboxMu.Unlock()
		return
	}
	st.publishing = true
	for len(st.outbox) > 0 {
		next := st.outbox[0]
		st.outbox[0] = queuedEvent{}
		st.outbox = st.outbox[1:]
		st.outboxMu.Unlock()

		s.publish(next.ctx, next.evt)

		st.outboxMu.Lock()
	}
	st.outbox = nil
	st.publishing = false
	st.outboxMu.Unlock()
}

func (s *reservationService) publish(ctx context.Context, evt model.BookingEvent) {
	nctx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	err := s.notifier.Notify(nctx, evt)
	cancel()
	if err != nil {
		s.cfg.Log.Warn("Failed to publish booking event",
			"event_type", evt.Type,
			"booking_id", evt.Booking.ID,
			"resource_id", evt.Booking.ResourceID,
			"error", err,
		)
	}
}
