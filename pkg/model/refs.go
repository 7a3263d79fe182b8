package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRef = errors.New("invalid reference")

// OwnerType discriminates the entity that owns a calendar binding.
type OwnerType string

const (
	OwnerBiz            OwnerType = "biz"
	OwnerUser           OwnerType = "user"
	OwnerResource       OwnerType = "resource"
	OwnerService        OwnerType = "service"
	OwnerServiceProduct OwnerType = "service_product"
	OwnerOffer          OwnerType = "offer"
	OwnerOfferVersion   OwnerType = "offer_version"
	OwnerLocation       OwnerType = "location"
	OwnerCustomSubject  OwnerType = "custom_subject"
)

var calendarOwnerTypes = map[OwnerType]struct{}{
	OwnerBiz: {}, OwnerUser: {}, OwnerResource: {}, OwnerService: {}, OwnerServiceProduct: {},
	OwnerOffer: {}, OwnerOfferVersion: {}, OwnerLocation: {}, OwnerCustomSubject: {},
}

// OwnerRef points at exactly one calendar owner.
type OwnerRef struct {
	Type OwnerType `json:"type" bson:"type"`
	ID   string    `json:"id" bson:"id"`
}

func NewOwnerRef(t OwnerType, id string) (OwnerRef, error) {
	if _, ok := calendarOwnerTypes[t]; !ok {
		return OwnerRef{}, fmt.Errorf("%w: unknown owner type %q", ErrInvalidRef, t)
	}
	if strings.TrimSpace(id) == "" {
		return OwnerRef{}, fmt.Errorf("%w: owner id is empty", ErrInvalidRef)
	}
	return OwnerRef{Type: t, ID: id}, nil
}

func (r OwnerRef) Key() string { return refKey(string(r.Type), r.ID) }

// TargetType discriminates what a capacity hold is placed against.
type TargetType string

const (
	TargetCalendar      TargetType = "calendar"
	TargetCapacityPool  TargetType = "capacity_pool"
	TargetResource      TargetType = "resource"
	TargetOfferVersion  TargetType = "offer_version"
	TargetCustomSubject TargetType = "custom_subject"
)

type HoldTarget struct {
	Type TargetType `json:"type" bson:"type"`
	ID   string     `json:"id" bson:"id"`
}

func NewHoldTarget(t TargetType, id string) (HoldTarget, error) {
	switch t {
	case TargetCalendar, TargetCapacityPool, TargetResource, TargetOfferVersion, TargetCustomSubject:
	default:
		return HoldTarget{}, fmt.Errorf("%w: unknown hold target type %q", ErrInvalidRef, t)
	}
	if strings.TrimSpace(id) == "" {
		return HoldTarget{}, fmt.Errorf("%w: hold target id is empty", ErrInvalidRef)
	}
	return HoldTarget{Type: t, ID: id}, nil
}

func (t HoldTarget) Key() string { return refKey(string(t.Type), t.ID) }

// MemberType returns the pool member type a hold target maps onto, if any.
func (t HoldTarget) MemberType() (MemberType, bool) {
	switch t.Type {
	case TargetResource:
		return MemberResource, true
	case TargetOfferVersion:
		return MemberOfferVersion, true
	case TargetCustomSubject:
		return MemberCustomSubject, true
	default:
		return "", false
	}
}

type HoldOwnerType string

const (
	HoldOwnerUser             HoldOwnerType = "user"
	HoldOwnerGroupAccount     HoldOwnerType = "group_account"
	HoldOwnerSubject          HoldOwnerType = "subject"
	HoldOwnerGuestFingerprint HoldOwnerType = "guest_fingerprint"
	HoldOwnerSystem           HoldOwnerType = "system"
)

// HoldOwner identifies who placed a hold. A nil *HoldOwner is anonymous.
type HoldOwner struct {
	Type HoldOwnerType `json:"type" bson:"type"`
	ID   string        `json:"id" bson:"id"`
}

func NewHoldOwner(t HoldOwnerType, id string) (*HoldOwner, error) {
	switch t {
	case HoldOwnerUser, HoldOwnerGroupAccount, HoldOwnerSubject, HoldOwnerGuestFingerprint, HoldOwnerSystem:
	default:
		return nil, fmt.Errorf("%w: unknown hold owner type %q", ErrInvalidRef, t)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: hold owner id is empty", ErrInvalidRef)
	}
	return &HoldOwner{Type: t, ID: id}, nil
}

func (o *HoldOwner) Key() string {
	if o == nil {
		return ""
	}
	return refKey(string(o.Type), o.ID)
}

func refKey(kind, id string) string {
	return kind + ":" + id
}
