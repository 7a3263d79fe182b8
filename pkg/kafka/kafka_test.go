package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "nil", err: nil, want: ErrorTypeUnknown},
		{name: "tagged transient", err: NewTransientError("x", nil), want: ErrorTypeTransient},
		{name: "tagged permanent", err: NewPermanentError("x", nil), want: ErrorTypePermanent},
		{name: "wrapped deadline", err: fmt.Errorf("write: %w", context.DeadlineExceeded), want: ErrorTypeTransient},
		{name: "storage conflict", err: apperrors.StorageConflict("pool busy", nil), want: ErrorTypeTransient},
		{name: "validation", err: apperrors.Validation("bad", nil), want: ErrorTypePermanent},
		{name: "network message", err: errors.New("dial tcp: Connection Refused"), want: ErrorTypeTransient},
		{name: "unknown", err: errors.New("something odd"), want: ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	transient := NewTransientError("flaky", nil)
	if !ShouldRetry(transient, 0, 3) {
		t.Error("expected retry for transient error under the limit")
	}
	if ShouldRetry(transient, 3, 3) {
		t.Error("expected no retry once the limit is reached")
	}
	if ShouldRetry(NewPermanentError("bad", nil), 0, 3) {
		t.Error("expected no retry for permanent error")
	}
}

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("calendar:c1").
		WithValue(map[string]string{"hold_id": "h1"}).
		WithEventType("hold.created").
		WithTenantID("t1").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.GetEventID() == "" {
		t.Error("expected a generated event id")
	}
	if msg.GetTenantID() != "t1" || msg.GetEventType() != "hold.created" {
		t.Errorf("unexpected headers: %v", msg.Headers)
	}

	var payload map[string]string
	if err := msg.DecodeValue(&payload); err != nil || payload["hold_id"] != "h1" {
		t.Errorf("expected payload to round trip, got %v (%v)", payload, err)
	}
}

func TestMessageBuilder_EncodeError(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestRetryCount(t *testing.T) {
	msg := Message{}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	if got := msg.GetRetryCount(); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}

func TestConsumer_ProcessMessageRetriesTransient(t *testing.T) {
	calls := 0
	c := &Consumer{
		topic:        "hold-events",
		maxRetries:   3,
		retryBackoff: time.Millisecond,
		log:          testLogger(),
		handler: func(ctx context.Context, msg Message) error {
			calls++
			if calls < 3 {
				return NewTransientError("flaky", nil)
			}
			return nil
		},
	}

	if err := c.processMessage(context.Background(), Message{Headers: map[string]string{}}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls)
	}
}

func TestConsumer_ProcessMessageStopsOnPermanent(t *testing.T) {
	calls := 0
	order := []string{}
	c := &Consumer{
		topic:        "hold-events",
		maxRetries:   3,
		retryBackoff: time.Millisecond,
		log:          testLogger(),
		handler: func(ctx context.Context, msg Message) error {
			calls++
			return NewPermanentError("bad payload", nil)
		},
	}
	c.Use(func(ctx context.Context, msg Message, next MessageHandler) error {
		order = append(order, "mw")
		return next(ctx, msg)
	})

	err := c.processMessage(context.Background(), Message{Headers: map[string]string{}})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || len(order) != 1 {
		t.Errorf("expected exactly one pass through middleware and handler, got calls=%d mw=%d", calls, len(order))
	}
}
