package events

import (
	"context"
	"errors"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/model"
	"testing"
	"time"
)

type captureProducer struct {
	msgs []kafka.Message
	err  error
}

func (c *captureProducer) Publish(_ context.Context, msg kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func sampleHold() (*model.CapacityHold, *model.CapacityHoldEvent) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	hold := &model.CapacityHold{
		ID:         "h1",
		TenantID:   "t1",
		Target:     model.HoldTarget{Type: model.TargetCapacityPool, ID: "p1"},
		TargetKey:  "capacity_pool:p1",
		EffectMode: model.EffectBlocking,
		Status:     model.HoldActive,
		Quantity:   1,
	}
	evt := &model.CapacityHoldEvent{
		ID:         "e1",
		TenantID:   "t1",
		HoldID:     "h1",
		Type:       model.HoldEventCreated,
		NextStatus: model.HoldActive,
		CreatedAt:  now,
	}
	return hold, evt
}

func TestKafkaPublisher_PublishHoldEvent(t *testing.T) {
	producer := &captureProducer{}
	pub := NewKafkaPublisher(producer, "holds")

	hold, evt := sampleHold()
	if err := pub.Publish(context.Background(), NewHoldEvent(hold, evt)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(producer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(producer.msgs))
	}
	msg := producer.msgs[0]
	if msg.Key != "capacity_pool:p1" {
		t.Errorf("expected target key as partition key, got %s", msg.Key)
	}
	if msg.GetEventType() != HoldCreated || msg.GetEventID() != "e1" || msg.GetTenantID() != "t1" {
		t.Errorf("unexpected headers: %v", msg.Headers)
	}

	env, err := DecodeEnvelope(msg)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	var payload HoldPayload
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("unexpected payload error: %v", err)
	}
	if payload.Hold.ID != "h1" || payload.Event.Type != model.HoldEventCreated {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if !env.OccurredAt.Equal(evt.CreatedAt) {
		t.Errorf("expected occurred_at %v, got %v", evt.CreatedAt, env.OccurredAt)
	}
}

func TestKafkaPublisher_PropagatesProducerError(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewKafkaPublisher(&captureProducer{err: boom}, "holds")

	hold, evt := sampleHold()
	if err := pub.Publish(context.Background(), NewHoldEvent(hold, evt)); !errors.Is(err, boom) {
		t.Errorf("expected producer error, got %v", err)
	}
}

func TestDecodeEnvelope_RejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope(kafka.Message{Value: []byte("not json")})
	if kafka.ClassifyError(err) != kafka.ErrorTypePermanent {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestMemoryPublisher(t *testing.T) {
	pub := NewMemoryPublisher()
	alert := &model.DemandAlert{ID: "a1", TenantID: "t1", TargetKey: "calendar:c1"}

	_ = pub.Publish(context.Background(), NewAlertEvent(AlertOpened, alert))
	_ = pub.Publish(context.Background(), NewAlertEvent(AlertResolved, alert))

	types := pub.Types()
	if len(types) != 2 || types[0] != AlertOpened || types[1] != AlertResolved {
		t.Errorf("unexpected types: %v", types)
	}
}
