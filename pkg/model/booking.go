package model

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusRejected  BookingStatus = "rejected"
)

// IsTerminal reports whether no transition can leave the status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusRejected
}

// IsActive reports whether a booking with this status still holds or waits
// for a slot.
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusRejected:
		return true
	}
	return false
}

// CanTransition encodes the booking lifecycle:
// pending -> confirmed, pending -> rejected, confirmed -> cancelled.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return to == BookingStatusConfirmed || to == BookingStatusRejected
	case BookingStatusConfirmed:
		return to == BookingStatusCancelled
	}
	return false
}

type Booking struct {
	ID              string        `json:"id" bson:"_id"`
	ResourceID      string        `json:"resource_id" bson:"resource_id"`
	Range           TimeRange     `json:"range" bson:"range"`
	Status          BookingStatus `json:"status" bson:"status"`
	Version         int64         `json:"version" bson:"version"`
	ArrivalSeq      int64         `json:"arrival_seq" bson:"arrival_seq"`
	IdempotencyKey  string        `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`
	RequestedBy     string        `json:"requested_by,omitempty" bson:"requested_by,omitempty"`
	Notes           string        `json:"notes,omitempty" bson:"notes,omitempty"`
	RescheduledFrom string        `json:"rescheduled_from,omitempty" bson:"rescheduled_from,omitempty"`
	RescheduledTo   string        `json:"rescheduled_to,omitempty" bson:"rescheduled_to,omitempty"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// Transition returns a copy of the booking moved to the given status with a
// bumped version. It does not check the lifecycle; callers use CanTransition.
func (b *Booking) Transition(to BookingStatus, at time.Time) *Booking {
	next := b.Clone()
	next.Status = to
	next.Version++
	next.UpdatedAt = at
	return next
}

// Outcome is the result of a booking request. A rejected request is a normal
// outcome, with Conflicts naming the ranges that blocked it.
type Outcome struct {
	Booking   *Booking    `json:"booking"`
	Conflicts []TimeRange `json:"conflicts,omitempty"`
	Replayed  bool        `json:"replayed,omitempty"`
}

// BookingFilter narrows booking searches. Zero values mean "any".
type BookingFilter struct {
	ResourceID string
	Status     BookingStatus
	Window     *TimeRange
}

func (f BookingFilter) Matches(b *Booking) bool {
	if f.ResourceID != "" && b.ResourceID != f.ResourceID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Window != nil && !f.Window.Overlaps(b.Range) {
		return false
	}
	return true
}

// Reschedule pairs the cancelled original with the booking that replaced it.
type Reschedule struct {
	Previous *Booking `json:"previous"`
	Booking  *Booking `json:"booking"`
}
