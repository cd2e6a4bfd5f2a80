package validator

import (
	"strings"
	"testing"
	"time"

	"bookly/pkg/logger"
	"bookly/pkg/model"
)

func TestValidateCreateBooking(t *testing.T) {
	validator := NewReservationValidator(logger.Discard())
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		request    *model.CreateBookingRequest
		wantFields []string
	}{
		{
			name:    "valid request",
			request: &model.CreateBookingRequest{ResourceID: "room-a", Start: start, End: start.Add(time.Hour)},
		},
		{
			name: "valid with optional fields",
			request: &model.CreateBookingRequest{
				ResourceID:     "meeting-room-2",
				Start:          start,
				End:            start.Add(time.Hour),
				IdempotencyKey: "abc",
				RequestedBy:    "dana",
				Notes:          "quarterly review",
			},
		},
		{
			name:       "missing resource",
			request:    &model.CreateBookingRequest{Start: start, End: start.Add(time.Hour)},
			wantFields: []string{"resource_id"},
		},
		{
			name:       "uppercase resource id",
			request:    &model.CreateBookingRequest{ResourceID: "Room-A", Start: start, End: start.Add(time.Hour)},
			wantFields: []string{"resource_id"},
		},
		{
			name:       "resource id with trailing hyphen",
			request:    &model.CreateBookingRequest{ResourceID: "room-", Start: start, End: start.Add(time.Hour)},
			wantFields: []string{"resource_id"},
		},
		{
			name:       "resource id too long",
			request:    &model.CreateBookingRequest{ResourceID: strings.Repeat("a", maxResourceIDLength+1), Start: start, End: start.Add(time.Hour)},
			wantFields: []string{"resource_id"},
		},
		{
			name:       "missing start and end",
			request:    &model.CreateBookingRequest{ResourceID: "room-a"},
			wantFields: []string{"start", "end"},
		},
		{
			name:       "end before start",
			request:    &model.CreateBookingRequest{ResourceID: "room-a", Start: start, End: start.Add(-time.Hour)},
			wantFields: []string{"end"},
		},
		{
			name:       "end equals start",
			request:    &model.CreateBookingRequest{ResourceID: "room-a", Start: start, End: start},
			wantFields: []string{"end"},
		},
		{
			name: "oversized idempotency key",
			request: &model.CreateBookingRequest{
				ResourceID:     "room-a",
				Start:          start,
				End:            start.Add(time.Hour),
				IdempotencyKey: strings.Repeat("k", 129),
			},
			wantFields: []string{"idempotency_key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.request)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			verrs, ok := AsValidationErrors(err)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
			}
			got := map[string]bool{}
			for _, e := range verrs {
				got[e.Field] = true
			}
			for _, field := range tt.wantFields {
				if !got[field] {
					t.Errorf("expected error on %q, got %v", field, verrs)
				}
			}
			if len(verrs) != len(tt.wantFields) {
				t.Errorf("expected %d errors, got %d: %v", len(tt.wantFields), len(verrs), verrs)
			}
		})
	}
}

func TestValidateVersionedRequests(t *testing.T) {
	validator := NewReservationValidator(logger.Discard())

	if err := validator.Validate(&model.CancelBookingRequest{Version: 3}); err != nil {
		t.Errorf("expected valid cancel, got %v", err)
	}

	err := validator.Validate(&model.CancelBookingRequest{})
	verrs, ok := AsValidationErrors(err)
	if !ok || len(verrs) != 1 || verrs[0].Field != "version" {
		t.Fatalf("expected version error, got %v", err)
	}
	if verrs[0].Message != "version is required" {
		t.Errorf("unexpected message %q", verrs[0].Message)
	}

	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	err = validator.Validate(&model.RescheduleBookingRequest{Version: -1, Start: start, End: start.Add(time.Hour)})
	verrs, ok = AsValidationErrors(err)
	if !ok || len(verrs) != 1 || verrs[0].Field != "version" {
		t.Fatalf("expected version error, got %v", err)
	}
	if verrs[0].Message != "version must be at least 1" {
		t.Errorf("unexpected message %q", verrs[0].Message)
	}
}

func TestValidateCreateResource(t *testing.T) {
	validator := NewReservationValidator(logger.Discard())

	tests := []struct {
		name      string
		request   *model.CreateResourceRequest
		wantError bool
	}{
		{"id only", &model.CreateResourceRequest{ID: "desk-12"}, false},
		{"with names", &model.CreateResourceRequest{ID: "desk-12", Name: "Desk 12", DisplayName: "Desk twelve"}, false},
		{"missing id", &model.CreateResourceRequest{Name: "Desk"}, true},
		{"id with spaces", &model.CreateResourceRequest{ID: "desk 12"}, true},
		{"name too short", &model.CreateResourceRequest{ID: "desk-12", Name: "D"}, true},
		{"display name too long", &model.CreateResourceRequest{ID: "desk-12", DisplayName: strings.Repeat("x", 101)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.request)
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidationErrors_Details(t *testing.T) {
	verrs := ValidationErrors{
		{Field: "resource_id", Message: "resource_id is required"},
		{Field: "end", Message: "end must be after Start"},
	}

	fields, ok := verrs.Details()["fields"].(map[string]any)
	if !ok {
		t.Fatalf("expected fields map, got %#v", verrs.Details())
	}
	if fields["resource_id"] != "resource_id is required" || fields["end"] != "end must be after Start" {
		t.Errorf("unexpected details %v", fields)
	}
	if !strings.Contains(verrs.Error(), "2 error(s)") {
		t.Errorf("unexpected error text %q", verrs.Error())
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("expected empty message for no errors")
	}
}
