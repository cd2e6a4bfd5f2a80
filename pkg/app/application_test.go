package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookly/internal/reservations/events"
	"bookly/internal/reservations/handler"
	"bookly/internal/reservations/repository"
	"bookly/internal/reservations/service"
	"bookly/internal/reservations/validator"
	"bookly/pkg/app"
	"bookly/pkg/client"
	"bookly/pkg/config"
	apperrors "bookly/pkg/errors"
	"bookly/pkg/logger"
	"bookly/pkg/model"
)

var day = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func hours(a, b int) model.TimeRange {
	return model.TimeRange{Start: day.Add(time.Duration(a) * time.Hour), End: day.Add(time.Duration(b) * time.Hour)}
}

// newTestServer runs the full middleware stack over in-memory storage.
func newTestServer(t *testing.T, policy string) *client.ReservationClient {
	t.Helper()

	cfg := config.FromEnv()
	cfg.Log = logger.Discard()
	cfg.StorageBackend = config.StorageMemory
	cfg.IdempotencyBackend = config.IdempotencyMemory
	cfg.ConflictPolicy = policy
	cfg.RateLimitRequests = 1000

	reservationValidator := validator.NewReservationValidator(cfg.Log)
	svc := service.NewReservationService(
		repository.NewMemoryBookingRepository(),
		repository.NewMemoryResourceRepository(),
		events.NewNoopNotifier(),
		reservationValidator,
		cfg,
	)

	application := app.NewApplication(cfg)
	application.SetApp(
		handler.NewHealthHandler(svc, cfg.Log),
		handler.NewResourceHandler(svc, cfg.Log),
		handler.NewBookingHandler(svc, reservationValidator, cfg.Log),
	)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(server.Close)

	c := client.NewReservationClient(server.URL).WithClientID("test-suite")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.HTTP().WaitForHealthy(ctx); err != nil {
		t.Fatalf("server not healthy: %v", err)
	}
	return c
}

func apiError(t *testing.T, err error) *client.APIError {
	t.Helper()
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *client.APIError, got %T: %v", err, err)
	}
	return apiErr
}

func TestBookingLifecycle(t *testing.T) {
	c := newTestServer(t, config.PolicyReject)
	ctx := context.Background()

	resource, err := c.CreateResource(ctx, &model.CreateResourceRequest{ID: "meeting-room-2"})
	if err != nil {
		t.Fatalf("CreateResource() unexpected error: %v", err)
	}
	if resource.DisplayName != "Meeting Room 2" {
		t.Errorf("expected derived display name, got %q", resource.DisplayName)
	}

	first, err := c.CreateBooking(ctx, &model.CreateBookingRequest{ResourceID: "meeting-room-2", Start: hours(9, 10).Start, End: hours(9, 10).End})
	if err != nil {
		t.Fatalf("CreateBooking() unexpected error: %v", err)
	}
	if first.Booking.Status != model.BookingStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", first.Booking.Status)
	}

	_, err = c.CreateBooking(ctx, &model.CreateBookingRequest{ResourceID: "meeting-room-2", Start: hours(9, 11).Start, End: hours(9, 11).End})
	apiErr := apiError(t, err)
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != apperrors.CodeSlotUnavailable {
		t.Errorf("expected 409 SLOT_UNAVAILABLE, got %d %s", apiErr.StatusCode, apiErr.Code)
	}
	if apiErr.Details["booking_id"] == "" || apiErr.Details["status"] != string(model.BookingStatusRejected) {
		t.Errorf("expected rejected booking in details, got %v", apiErr.Details)
	}

	available, err := c.IsAvailable(ctx, "meeting-room-2", hours(10, 11))
	if err != nil || !available {
		t.Errorf("expected adjacent range available, got %v %v", available, err)
	}

	slots, err := c.FreeSlots(ctx, "meeting-room-2", hours(8, 12))
	if err != nil {
		t.Fatalf("FreeSlots() unexpected error: %v", err)
	}
	if len(slots) != 2 || !slots[0].Equal(hours(8, 9)) || !slots[1].Equal(hours(10, 12)) {
		t.Errorf("unexpected free slots %v", slots)
	}

	moved, err := c.RescheduleBooking(ctx, first.Booking.ID, first.Booking.Version, hours(14, 15))
	if err != nil {
		t.Fatalf("RescheduleBooking() unexpected error: %v", err)
	}
	if moved.Previous.Status != model.BookingStatusCancelled || !moved.Booking.Range.Equal(hours(14, 15)) {
		t.Errorf("unexpected reschedule result %+v", moved)
	}

	_, err = c.CancelBooking(ctx, moved.Booking.ID, moved.Booking.Version+5)
	if apiErr := apiError(t, err); apiErr.Code != apperrors.CodeVersionConflict {
		t.Errorf("expected VERSION_CONFLICT, got %s", apiErr.Code)
	}

	cancelled, err := c.CancelBooking(ctx, moved.Booking.ID, moved.Booking.Version)
	if err != nil {
		t.Fatalf("CancelBooking() unexpected error: %v", err)
	}
	if cancelled.Status != model.BookingStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}

	bookings, meta, err := c.ListBookings(ctx, client.BookingQuery{ResourceID: "meeting-room-2", Limit: 10})
	if err != nil {
		t.Fatalf("ListBookings() unexpected error: %v", err)
	}
	if meta.TotalCount != 3 || len(bookings) != 3 {
		t.Errorf("expected three stored bookings, got total=%d len=%d", meta.TotalCount, len(bookings))
	}

	if err := c.DeleteResource(ctx, "meeting-room-2"); err != nil {
		t.Errorf("DeleteResource() unexpected error: %v", err)
	}
	_, err = c.GetResource(ctx, "meeting-room-2")
	if apiErr := apiError(t, err); apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", apiErr.StatusCode)
	}
}

func TestWaitlistPromotion(t *testing.T) {
	c := newTestServer(t, config.PolicyWaitlist)
	ctx := context.Background()

	if _, err := c.CreateResource(ctx, &model.CreateResourceRequest{ID: "desk-1"}); err != nil {
		t.Fatalf("CreateResource() unexpected error: %v", err)
	}

	holder, err := c.CreateBooking(ctx, &model.CreateBookingRequest{ResourceID: "desk-1", Start: hours(9, 12).Start, End: hours(9, 12).End})
	if err != nil {
		t.Fatalf("CreateBooking() unexpected error: %v", err)
	}
	waiting, err := c.CreateBooking(ctx, &model.CreateBookingRequest{ResourceID: "desk-1", Start: hours(10, 11).Start, End: hours(10, 11).End})
	if err != nil {
		t.Fatalf("CreateBooking() unexpected error: %v", err)
	}
	if waiting.Booking.Status != model.BookingStatusPending {
		t.Fatalf("expected pending, got %s", waiting.Booking.Status)
	}

	_, err = c.ApproveBooking(ctx, waiting.Booking.ID, waiting.Booking.Version)
	if apiErr := apiError(t, err); apiErr.Code != apperrors.CodeSlotUnavailable {
		t.Errorf("expected SLOT_UNAVAILABLE approving into a held slot, got %s", apiErr.Code)
	}

	if _, err := c.CancelBooking(ctx, holder.Booking.ID, holder.Booking.Version); err != nil {
		t.Fatalf("CancelBooking() unexpected error: %v", err)
	}

	promoted, err := c.GetBooking(ctx, waiting.Booking.ID)
	if err != nil {
		t.Fatalf("GetBooking() unexpected error: %v", err)
	}
	if promoted.Status != model.BookingStatusConfirmed {
		t.Errorf("expected waitlisted booking promoted, got %s", promoted.Status)
	}
}

func TestIdempotentRetry(t *testing.T) {
	c := newTestServer(t, config.PolicyReject)
	ctx := context.Background()

	if _, err := c.CreateResource(ctx, &model.CreateResourceRequest{ID: "room-a"}); err != nil {
		t.Fatalf("CreateResource() unexpected error: %v", err)
	}

	body := model.CreateBookingRequest{ResourceID: "room-a", Start: hours(9, 10).Start, End: hours(9, 10).End}
	headers := map[string]string{"Idempotency-Key": "retry-1"}

	first, err := c.HTTP().POSTWithHeaders(ctx, "/api/v1/bookings", body, headers)
	if err != nil {
		t.Fatalf("first POST failed: %v", err)
	}
	second, err := c.HTTP().POSTWithHeaders(ctx, "/api/v1/bookings", body, headers)
	if err != nil {
		t.Fatalf("second POST failed: %v", err)
	}

	if first.StatusCode != http.StatusCreated || second.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %s / %s", first.ToString(), second.ToString())
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("expected identical replay, got %s and %s", first.Body, second.Body)
	}

	bookings, meta, err := c.ListBookings(ctx, client.BookingQuery{ResourceID: "room-a"})
	if err != nil {
		t.Fatalf("ListBookings() unexpected error: %v", err)
	}
	if meta.TotalCount != 1 || len(bookings) != 1 {
		t.Errorf("expected a single booking, got %d", meta.TotalCount)
	}
}

func TestRejectsNonJSONBody(t *testing.T) {
	c := newTestServer(t, config.PolicyReject)

	resp, err := c.HTTP().HTTPClient.Post(c.HTTP().BaseURL+"/api/v1/resources", "text/plain", strings.NewReader("id=room-a"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
}
