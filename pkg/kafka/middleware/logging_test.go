package kafka_middleware

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"bookly/pkg/kafka"
	"bookly/pkg/logger"
)

func TestLoggingProducerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Output: &buf, Service: "test"})
	mw := LoggingProducerMiddleware(log)

	msg := kafka.Message{
		Key:     "room-a",
		Value:   []byte(`{}`),
		Topic:   "bookings.lifecycle",
		Headers: map[string]string{kafka.HeaderEventType: "booking.confirmed"},
	}

	if err := mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "Published message") || !strings.Contains(buf.String(), "booking.confirmed") {
		t.Errorf("expected publish log line, got %s", buf.String())
	}

	buf.Reset()
	sendErr := errors.New("broker down")
	if err := mw(context.Background(), msg, func(context.Context, kafka.Message) error { return sendErr }); !errors.Is(err, sendErr) {
		t.Fatalf("expected error passed through, got %v", err)
	}
	if !strings.Contains(buf.String(), "Failed to publish message") {
		t.Errorf("expected failure log line, got %s", buf.String())
	}
}
