package model

import "testing"

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusRejected, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusCancelled, false},
		{BookingStatusConfirmed, BookingStatusRejected, false},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusRejected, BookingStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBookingStatus_Classes(t *testing.T) {
	if !BookingStatusCancelled.IsTerminal() || !BookingStatusRejected.IsTerminal() {
		t.Error("cancelled and rejected must be terminal")
	}
	if BookingStatusPending.IsTerminal() || BookingStatusConfirmed.IsTerminal() {
		t.Error("pending and confirmed are not terminal")
	}
	if !BookingStatusPending.IsActive() || !BookingStatusConfirmed.IsActive() {
		t.Error("pending and confirmed must be active")
	}
	if BookingStatus("expired").Valid() {
		t.Error("unknown status must be invalid")
	}
}

func TestBooking_TransitionCopies(t *testing.T) {
	original := &Booking{
		ID:        "b-1",
		Range:     rng(9, 10),
		Status:    BookingStatusConfirmed,
		Version:   1,
		CreatedAt: at(8, 0),
		UpdatedAt: at(8, 0),
	}

	next := original.Transition(BookingStatusCancelled, at(12, 0))

	if next == original {
		t.Fatal("Transition must return a copy")
	}
	if original.Status != BookingStatusConfirmed || original.Version != 1 {
		t.Errorf("original was modified: %+v", original)
	}
	if next.Status != BookingStatusCancelled || next.Version != 2 {
		t.Errorf("expected cancelled v2, got %s v%d", next.Status, next.Version)
	}
	if !next.UpdatedAt.Equal(at(12, 0)) || !next.CreatedAt.Equal(at(8, 0)) {
		t.Errorf("unexpected timestamps: created %s updated %s", next.CreatedAt, next.UpdatedAt)
	}
}

func TestBookingFilter_Matches(t *testing.T) {
	b := &Booking{ResourceID: "room-a", Status: BookingStatusConfirmed, Range: rng(9, 10)}
	window := rng(8, 9)
	overlapping := rng(9, 12)

	tests := []struct {
		name   string
		filter BookingFilter
		want   bool
	}{
		{"empty filter", BookingFilter{}, true},
		{"same resource", BookingFilter{ResourceID: "room-a"}, true},
		{"other resource", BookingFilter{ResourceID: "room-b"}, false},
		{"other status", BookingFilter{Status: BookingStatusPending}, false},
		{"adjacent window", BookingFilter{Window: &window}, false},
		{"overlapping window", BookingFilter{Window: &overlapping}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(b); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
