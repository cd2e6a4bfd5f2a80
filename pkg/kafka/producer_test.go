package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafka_config "bookly/pkg/kafka/config"
	"bookly/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func buildMessage(t *testing.T) Message {
	t.Helper()
	msg, err := NewMessage().
		WithKey("room-a").
		WithValue(map[string]string{"id": "b-1"}).
		WithEventType("booking.confirmed").
		WithCorrelationID("req-1").
		Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	return msg
}

func TestMessageBuilder(t *testing.T) {
	ts := time.Date(2025, 3, 3, 11, 0, 0, 0, time.FixedZone("IST", 2*3600))
	msg, err := NewMessage().
		WithKey("room-a").
		WithValue(struct {
			ID string `json:"id"`
		}{ID: "b-1"}).
		WithEventType("booking.cancelled").
		WithSchemaVersion("1").
		WithSource("bookly").
		WithCorrelationID("").
		WithTimestamp(ts).
		Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.GetEventType() != "booking.cancelled" {
		t.Errorf("unexpected event type %q", msg.GetEventType())
	}
	if _, ok := msg.Headers[HeaderCorrelationID]; ok {
		t.Error("expected empty header values to be skipped")
	}
	if msg.Headers[HeaderTimestamp] != "2025-03-03T09:00:00Z" {
		t.Errorf("expected UTC timestamp header, got %q", msg.Headers[HeaderTimestamp])
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := msg.DecodeValue(&decoded); err != nil || decoded.ID != "b-1" {
		t.Errorf("DecodeValue() = %+v, %v", decoded, err)
	}
}

func TestMessageBuilder_Errors(t *testing.T) {
	if _, err := NewMessage().WithValue("x").Build(); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := NewMessage().WithKey("k").Build(); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}
	if _, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build(); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestProducer_Publish(t *testing.T) {
	writer := &fakeWriter{}
	producer := NewProducerWithWriters(writer, nil, "bookings.lifecycle", "", time.Second)

	var order []string
	producer.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "outer")
		return next(ctx, msg)
	})
	producer.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "inner:"+msg.Topic)
		return next(ctx, msg)
	})

	if err := producer.Publish(context.Background(), buildMessage(t)); err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner:bookings.lifecycle" {
		t.Errorf("unexpected middleware order %v", order)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message written, got %d", len(writer.messages))
	}
	written := writer.messages[0]
	if string(written.Key) != "room-a" {
		t.Errorf("unexpected key %q", written.Key)
	}
	if header(written, HeaderCorrelationID) != "req-1" {
		t.Errorf("expected correlation header, got %q", header(written, HeaderCorrelationID))
	}
}

func TestProducer_DeadLetter(t *testing.T) {
	writeErr := errors.New("leader not available")
	writer := &fakeWriter{err: writeErr}
	dlq := &fakeWriter{}
	producer := NewProducerWithWriters(writer, dlq, "bookings.lifecycle", "bookings.lifecycle.dlq", time.Second)

	err := producer.Publish(context.Background(), buildMessage(t))
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected original error, got %v", err)
	}
	if len(dlq.messages) != 1 {
		t.Fatalf("expected message parked on the dead letter topic, got %d", len(dlq.messages))
	}
	parked := dlq.messages[0]
	if header(parked, HeaderOriginalTopic) != "bookings.lifecycle" {
		t.Errorf("unexpected original topic %q", header(parked, HeaderOriginalTopic))
	}
	if header(parked, HeaderDLQError) != writeErr.Error() {
		t.Errorf("unexpected dlq error header %q", header(parked, HeaderDLQError))
	}
	if header(parked, HeaderEventType) != "booking.confirmed" {
		t.Error("expected original headers kept")
	}

	dlq.err = errors.New("dlq down")
	err = producer.Publish(context.Background(), buildMessage(t))
	if err == nil || !errors.Is(err, dlq.err) {
		t.Errorf("expected dlq failure reported, got %v", err)
	}
}

func TestProducer_Close(t *testing.T) {
	writer := &fakeWriter{}
	dlq := &fakeWriter{}
	producer := NewProducerWithWriters(writer, dlq, "t", "t.dlq", 0)

	if err := producer.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("second Close() unexpected error: %v", err)
	}
	if !writer.closed || !dlq.closed {
		t.Error("expected both writers closed")
	}
	if err := producer.Publish(context.Background(), buildMessage(t)); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
}

func TestProducer_RejectsIncompleteMessages(t *testing.T) {
	producer := NewProducerWithWriters(&fakeWriter{}, nil, "t", "", 0)

	if err := producer.Publish(context.Background(), Message{Value: []byte("{}")}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if err := producer.Publish(context.Background(), Message{Key: "k"}); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}
}

func TestNewProducer_Validation(t *testing.T) {
	log := logger.Discard()

	if _, err := NewProducer(nil, log, "t", ""); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewProducer(&kafka_config.Config{}, log, "t", ""); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewProducer(&kafka_config.Config{Brokers: []string{"localhost:9092"}}, log, "", ""); err == nil {
		t.Error("expected error for empty topic")
	}

	producer, err := NewProducer(&kafka_config.Config{Brokers: []string{"localhost:9092"}}, log, "t", "t.dlq")
	if err != nil {
		t.Fatalf("NewProducer() unexpected error: %v", err)
	}
	if producer.Topic() != "t" {
		t.Errorf("unexpected topic %q", producer.Topic())
	}
	_ = producer.Close()
}

func TestCompressionAndAcks(t *testing.T) {
	if compressionCodec("none") != 0 {
		t.Error("expected no compression")
	}
	if compressionCodec("unknown") != compressionCodec("snappy") {
		t.Error("expected snappy as default")
	}
	if requiredAcks(1) != kafka.RequireOne || requiredAcks(-1) != kafka.RequireAll {
		t.Error("unexpected acks mapping")
	}
}
