package model

import "time"

type BookingEventType string

const (
	EventBookingConfirmed   BookingEventType = "booking.confirmed"
	EventBookingRejected    BookingEventType = "booking.rejected"
	EventBookingWaitlisted  BookingEventType = "booking.waitlisted"
	EventBookingCancelled   BookingEventType = "booking.cancelled"
	EventBookingRescheduled BookingEventType = "booking.rescheduled"
	EventBookingPromoted    BookingEventType = "booking.promoted"
	EventBookingApproved    BookingEventType = "booking.approved"
	EventBookingDeclined    BookingEventType = "booking.declined"
)

// BookingEvent is emitted after a lifecycle change has been committed.
type BookingEvent struct {
	Type       BookingEventType `json:"type"`
	Booking    *Booking         `json:"booking"`
	OccurredAt time.Time        `json:"occurred_at"`
}
