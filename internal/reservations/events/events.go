// Package events publishes booking lifecycle changes after they commit.
package events

import (
	"context"
	"fmt"

	"bookly/pkg/kafka"
	"bookly/pkg/model"
)

const SchemaVersion = "1"

// Notifier receives committed lifecycle events. Delivery is best effort:
// the engine logs a failed notification and keeps the committed state.
// Calls for one resource never overlap and follow commit order.
type Notifier interface {
	Notify(ctx context.Context, event model.BookingEvent) error
}

type noopNotifier struct{}

func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(context.Context, model.BookingEvent) error {
	return nil
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaNotifier struct {
	producer Publisher
	source   string
}

// NewKafkaNotifier keys every event by resource id, so the events of one
// resource share a partition. The service hands them over one at a time in
// commit order, and the partition keeps that order for consumers.
func NewKafkaNotifier(producer Publisher, source string) Notifier {
	return &kafkaNotifier{producer: producer, source: source}
}

func (n *kafkaNotifier) Notify(ctx context.Context, event model.BookingEvent) error {
	if event.Booking == nil {
		return fmt.Errorf("%w: event %s has no booking", kafka.ErrInvalidMessage, event.Type)
	}
	msg, err := kafka.NewMessage().
		WithKey(event.Booking.ResourceID).
		WithValue(event).
		WithEventID("").
		WithEventType(string(event.Type)).
		WithSchemaVersion(SchemaVersion).
		WithSource(n.source).
		WithCorrelationID(CorrelationID(ctx)).
		WithTimestamp(event.OccurredAt).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", event.Type, err)
	}
	if err := n.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event for booking %s: %w", event.Type, event.Booking.ID, err)
	}
	return nil
}

type correlationKey struct{}

// WithCorrelationID attaches the request id that caused the events.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
