package model

import "time"

type EffectMode string

const (
	EffectBlocking    EffectMode = "blocking"
	EffectNonBlocking EffectMode = "non_blocking"
	EffectAdvisory    EffectMode = "advisory"
)

type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldReleased  HoldStatus = "released"
	HoldConsumed  HoldStatus = "consumed"
	HoldCancelled HoldStatus = "cancelled"
	HoldExpired   HoldStatus = "expired"
)

func (s HoldStatus) IsTerminal() bool {
	switch s {
	case HoldReleased, HoldConsumed, HoldCancelled, HoldExpired:
		return true
	default:
		return false
	}
}

type HoldAction string

const (
	HoldActionRelease HoldAction = "release"
	HoldActionCancel  HoldAction = "cancel"
	HoldActionConsume HoldAction = "consume"
	HoldActionExpire  HoldAction = "expire"
)

// holdTransitions is the complete state machine: only active holds move, and only to a terminal state.
var holdTransitions = map[HoldAction]HoldStatus{
	HoldActionRelease: HoldReleased,
	HoldActionCancel:  HoldCancelled,
	HoldActionConsume: HoldConsumed,
	HoldActionExpire:  HoldExpired,
}

// NextStatus returns the status an action moves a hold from from into.
func NextStatus(from HoldStatus, action HoldAction) (HoldStatus, bool) {
	if from != HoldActive {
		return "", false
	}
	next, ok := holdTransitions[action]
	return next, ok
}

// CapacityHold is a live or settled reservation against a target.
type CapacityHold struct {
	ID             string              `json:"id" bson:"_id"`
	TenantID       string              `json:"tenant_id" bson:"tenant_id"`
	Target         HoldTarget          `json:"target" bson:"target"`
	TargetKey      string              `json:"target_key" bson:"target_key"`
	Owner          *HoldOwner          `json:"owner,omitempty" bson:"owner,omitempty"`
	OwnerKey       string              `json:"owner_key,omitempty" bson:"owner_key,omitempty"`
	EffectMode     EffectMode          `json:"effect_mode" bson:"effect_mode"`
	Status         HoldStatus          `json:"status" bson:"status"`
	Quantity       int                 `json:"quantity" bson:"quantity"`
	StartsAt       time.Time           `json:"starts_at" bson:"starts_at"`
	EndsAt         time.Time           `json:"ends_at" bson:"ends_at"`
	ExpiresAt      *time.Time          `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	RequestKey     string              `json:"request_key,omitempty" bson:"request_key,omitempty"`
	PolicyID       string              `json:"policy_id" bson:"policy_id"`
	PolicySnapshot *CapacityHoldPolicy `json:"policy_snapshot,omitempty" bson:"policy_snapshot,omitempty"`

	PaymentIntentRef   string `json:"payment_intent_ref,omitempty" bson:"payment_intent_ref,omitempty"`
	PreauthAmountMinor int64  `json:"preauth_amount_minor,omitempty" bson:"preauth_amount_minor,omitempty"`

	PoolIDs []string `json:"pool_ids,omitempty" bson:"pool_ids,omitempty"`
	Version int      `json:"version" bson:"version"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty" bson:"released_at,omitempty"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty" bson:"consumed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty" bson:"expired_at,omitempty"`
}

// StampTerminal sets the timestamp matching a terminal status.
func (h *CapacityHold) StampTerminal(status HoldStatus, at time.Time) {
	switch status {
	case HoldReleased:
		h.ReleasedAt = &at
	case HoldConsumed:
		h.ConsumedAt = &at
	case HoldCancelled:
		h.CancelledAt = &at
	case HoldExpired:
		h.ExpiredAt = &at
	}
}

// TerminalField is the document field that carries the timestamp for status.
func TerminalField(status HoldStatus) string {
	switch status {
	case HoldReleased:
		return "released_at"
	case HoldConsumed:
		return "consumed_at"
	case HoldCancelled:
		return "cancelled_at"
	case HoldExpired:
		return "expired_at"
	default:
		return ""
	}
}

// Reserves reports whether the hold consumes pool capacity.
func (h *CapacityHold) Reserves() bool {
	return h.EffectMode == EffectBlocking
}

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
	ActorAdmin  ActorType = "admin"
)

type Actor struct {
	Type ActorType `json:"type" bson:"type"`
	ID   string    `json:"id,omitempty" bson:"id,omitempty"`
}

var SystemActor = Actor{Type: ActorSystem, ID: "hold-sweeper"}

type HoldEventType string

const (
	HoldEventCreated   HoldEventType = "created"
	HoldEventExtended  HoldEventType = "extended"
	HoldEventReleased  HoldEventType = "released"
	HoldEventConsumed  HoldEventType = "consumed"
	HoldEventCancelled HoldEventType = "cancelled"
	HoldEventExpired   HoldEventType = "expired"
)

// CapacityHoldEvent is one write-once row of a hold's transition log.
type CapacityHoldEvent struct {
	ID                 string        `json:"id" bson:"_id"`
	TenantID           string        `json:"tenant_id" bson:"tenant_id"`
	HoldID             string        `json:"hold_id" bson:"hold_id"`
	Type               HoldEventType `json:"type" bson:"type"`
	PreviousStatus     HoldStatus    `json:"previous_status,omitempty" bson:"previous_status,omitempty"`
	NextStatus         HoldStatus    `json:"next_status" bson:"next_status"`
	PreviousEffectMode EffectMode    `json:"previous_effect_mode,omitempty" bson:"previous_effect_mode,omitempty"`
	NextEffectMode     EffectMode    `json:"next_effect_mode" bson:"next_effect_mode"`
	PreviousQuantity   int           `json:"previous_quantity" bson:"previous_quantity"`
	NextQuantity       int           `json:"next_quantity" bson:"next_quantity"`
	Actor              Actor         `json:"actor" bson:"actor"`
	Reason             string        `json:"reason,omitempty" bson:"reason,omitempty"`
	CorrectsEventID    string        `json:"corrects_event_id,omitempty" bson:"corrects_event_id,omitempty"`
	CreatedAt          time.Time     `json:"created_at" bson:"created_at"`
}

// CreateHoldRequest is the input of hold creation.
type CreateHoldRequest struct {
	TenantID     string        `json:"tenant_id" validate:"required"`
	Target       HoldTarget    `json:"target"`
	Owner        *HoldOwner    `json:"owner,omitempty"`
	EffectMode   EffectMode    `json:"effect_mode" validate:"required,oneof=blocking non_blocking advisory"`
	Quantity     int           `json:"quantity" validate:"required,gt=0,max=10000"`
	StartsAt     time.Time     `json:"starts_at" validate:"required"`
	EndsAt       time.Time     `json:"ends_at" validate:"required"`
	DurationMin  int           `json:"duration_min,omitempty" validate:"gte=0"`
	PolicyScopes []PolicyScope `json:"policy_scopes,omitempty" validate:"omitempty,max=12"`
	RequestKey   string        `json:"request_key,omitempty" validate:"omitempty,max=200"`
	Actor        Actor         `json:"actor"`

	PaymentIntentRef   string `json:"payment_intent_ref,omitempty" validate:"omitempty,max=200"`
	PreauthAmountMinor int64  `json:"preauth_amount_minor,omitempty" validate:"gte=0"`
}

// TransitionResult reports the hold after a transition attempt.
// Applied is false when another transition already settled the hold.
type TransitionResult struct {
	Hold    *CapacityHold `json:"hold"`
	Applied bool          `json:"applied"`
}
