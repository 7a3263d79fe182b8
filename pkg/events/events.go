package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	HoldCreated   = "hold.created"
	HoldExtended  = "hold.extended"
	HoldReleased  = "hold.released"
	HoldConsumed  = "hold.consumed"
	HoldCancelled = "hold.cancelled"
	HoldExpired   = "hold.expired"

	AlertOpened       = "alert.opened"
	AlertEscalated    = "alert.escalated"
	AlertAcknowledged = "alert.acknowledged"
	AlertResolved     = "alert.resolved"
	AlertExpired      = "alert.expired"
)

const SchemaVersion = "1"

// HoldEventType maps a hold ledger event onto its domain event name.
func HoldEventType(t model.HoldEventType) string {
	return "hold." + string(t)
}

// Event is a domain event before encoding. Key routes the event to a partition.
type Event struct {
	ID            string
	Type          string
	TenantID      string
	Key           string
	CorrelationID string
	OccurredAt    time.Time
	Payload       any
}

// Envelope is the wire shape of every domain event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenant_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type HoldPayload struct {
	Hold  model.CapacityHold      `json:"hold"`
	Event model.CapacityHoldEvent `json:"event"`
}

type AlertPayload struct {
	Alert model.DemandAlert `json:"alert"`
}

func NewHoldEvent(hold *model.CapacityHold, evt *model.CapacityHoldEvent) Event {
	return Event{
		ID:         evt.ID,
		Type:       HoldEventType(evt.Type),
		TenantID:   hold.TenantID,
		Key:        hold.TargetKey,
		OccurredAt: evt.CreatedAt,
		Payload:    HoldPayload{Hold: *hold, Event: *evt},
	}
}

func NewAlertEvent(eventType string, alert *model.DemandAlert) Event {
	return Event{
		Type:       eventType,
		TenantID:   alert.TenantID,
		Key:        alert.TargetKey,
		OccurredAt: alert.UpdatedAt,
		Payload:    AlertPayload{Alert: *alert},
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Encode builds the envelope for evt, assigning an id when missing.
func Encode(evt Event) (Envelope, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", evt.Type, err)
	}
	return Envelope{
		ID:         evt.ID,
		Type:       evt.Type,
		TenantID:   evt.TenantID,
		OccurredAt: evt.OccurredAt,
		Payload:    payload,
	}, nil
}

func DecodeEnvelope(msg kafka.Message) (*Envelope, error) {
	var env Envelope
	if err := msg.DecodeValue(&env); err != nil {
		return nil, kafka.NewPermanentError("deserialization failed", err)
	}
	if env.Type == "" {
		return nil, kafka.NewPermanentError("envelope has no type", nil)
	}
	return &env, nil
}

func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return kafka.NewPermanentError(fmt.Sprintf("decode %s payload", e.Type), err)
	}
	return nil
}

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type KafkaPublisher struct {
	producer messagePublisher
	source   string
}

func NewKafkaPublisher(producer messagePublisher, source string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	env, err := Encode(evt)
	if err != nil {
		return err
	}
	key := evt.Key
	if key == "" {
		key = env.TenantID
	}

	msg, err := kafka.NewMessage().
		WithKey(key).
		WithValue(env).
		WithEventID(env.ID).
		WithEventType(env.Type).
		WithTenantID(env.TenantID).
		WithCorrelationID(evt.CorrelationID).
		WithSchemaVersion(SchemaVersion).
		WithSource(p.source).
		WithTimestamp(env.OccurredAt).
		Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher keeps published envelopes in order.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Envelope
	Err    error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, evt Event) error {
	if p.Err != nil {
		return p.Err
	}
	env, err := Encode(evt)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, env)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPublisher) Events() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.events...)
}

func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

// PublishAsync publishes after the caller's transaction committed; failures are logged only.
func PublishAsync(ctx context.Context, p Publisher, log *logger.Logger, evt Event) {
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := p.Publish(pubCtx, evt); err != nil {
			log.Warn("Failed to publish domain event", "event_type", evt.Type, "tenant_id", evt.TenantID, "key", evt.Key, "error", err)
		}
	}()
}
