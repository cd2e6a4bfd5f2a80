package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookly/pkg/kafka"
	"bookly/pkg/model"
)

type mockPublisher struct {
	publishFunc func(ctx context.Context, msg kafka.Message) error
	published   []kafka.Message
}

func (m *mockPublisher) Publish(ctx context.Context, msg kafka.Message) error {
	if m.publishFunc != nil {
		if err := m.publishFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.published = append(m.published, msg)
	return nil
}

func confirmedEvent() model.BookingEvent {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	return model.BookingEvent{
		Type: model.EventBookingConfirmed,
		Booking: &model.Booking{
			ID:         "b-1",
			ResourceID: "room-a",
			Range:      model.TimeRange{Start: start, End: start.Add(time.Hour)},
			Status:     model.BookingStatusConfirmed,
			Version:    1,
		},
		OccurredAt: start.Add(-time.Hour),
	}
}

func TestKafkaNotifier_Notify(t *testing.T) {
	publisher := &mockPublisher{}
	notifier := NewKafkaNotifier(publisher, "bookly-reservations")

	ctx := WithCorrelationID(context.Background(), "req-42")
	if err := notifier.Notify(ctx, confirmedEvent()); err != nil {
		t.Fatalf("Notify() unexpected error: %v", err)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected one message, got %d", len(publisher.published))
	}
	msg := publisher.published[0]

	if msg.Key != "room-a" {
		t.Errorf("expected messages keyed by resource, got %q", msg.Key)
	}
	if msg.GetEventType() != string(model.EventBookingConfirmed) {
		t.Errorf("unexpected event type %q", msg.GetEventType())
	}
	if msg.GetCorrelationID() != "req-42" {
		t.Errorf("unexpected correlation id %q", msg.GetCorrelationID())
	}
	if msg.Headers[kafka.HeaderSchemaVersion] != SchemaVersion || msg.Headers[kafka.HeaderSource] != "bookly-reservations" {
		t.Errorf("unexpected headers %v", msg.Headers)
	}
	if msg.GetEventID() == "" {
		t.Error("expected event id")
	}
	if !msg.Timestamp.Equal(confirmedEvent().OccurredAt) {
		t.Errorf("expected message time to be the commit time, got %s", msg.Timestamp)
	}

	var decoded model.BookingEvent
	if err := msg.DecodeValue(&decoded); err != nil {
		t.Fatalf("DecodeValue() unexpected error: %v", err)
	}
	if decoded.Booking == nil || decoded.Booking.ID != "b-1" || decoded.Type != model.EventBookingConfirmed {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

func TestKafkaNotifier_Errors(t *testing.T) {
	publishErr := errors.New("broker unreachable")
	publisher := &mockPublisher{
		publishFunc: func(ctx context.Context, msg kafka.Message) error { return publishErr },
	}
	notifier := NewKafkaNotifier(publisher, "bookly")

	if err := notifier.Notify(context.Background(), confirmedEvent()); !errors.Is(err, publishErr) {
		t.Errorf("expected publish error wrapped, got %v", err)
	}

	err := notifier.Notify(context.Background(), model.BookingEvent{Type: model.EventBookingCancelled})
	if !errors.Is(err, kafka.ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage for event without booking, got %v", err)
	}
}

func TestNoopNotifier(t *testing.T) {
	if err := NewNoopNotifier().Notify(context.Background(), confirmedEvent()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestCorrelationID(t *testing.T) {
	if CorrelationID(context.Background()) != "" {
		t.Error("expected empty correlation id")
	}
	ctx := WithCorrelationID(context.Background(), "abc")
	if CorrelationID(ctx) != "abc" {
		t.Errorf("unexpected correlation id %q", CorrelationID(ctx))
	}
}
