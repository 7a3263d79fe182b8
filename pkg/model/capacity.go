package model

import (
	"fmt"
	"strings"
	"time"
)

type MemberType string

const (
	MemberResource      MemberType = "resource"
	MemberOfferVersion  MemberType = "offer_version"
	MemberLocation      MemberType = "location"
	MemberCustomSubject MemberType = "custom_subject"
)

type PoolMemberRef struct {
	Type MemberType `json:"type" bson:"type"`
	ID   string     `json:"id" bson:"id"`
}

func NewPoolMemberRef(t MemberType, id string) (PoolMemberRef, error) {
	switch t {
	case MemberResource, MemberOfferVersion, MemberLocation, MemberCustomSubject:
	default:
		return PoolMemberRef{}, fmt.Errorf("%w: unknown pool member type %q", ErrInvalidRef, t)
	}
	if strings.TrimSpace(id) == "" {
		return PoolMemberRef{}, fmt.Errorf("%w: pool member id is empty", ErrInvalidRef)
	}
	return PoolMemberRef{Type: t, ID: id}, nil
}

func (m PoolMemberRef) Key() string { return refKey(string(m.Type), m.ID) }

// CapacityPool is shared inventory consumed by several members.
type CapacityPool struct {
	ID               string    `json:"id" bson:"_id"`
	TenantID         string    `json:"tenant_id" bson:"tenant_id" validate:"required"`
	Name             string    `json:"name" bson:"name" validate:"required,min=2,max=120"`
	TotalCapacity    int       `json:"total_capacity" bson:"total_capacity" validate:"gte=0"`
	OverbookCapacity int       `json:"overbook_capacity" bson:"overbook_capacity" validate:"gte=0"`
	IsActive         bool      `json:"is_active" bson:"is_active"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}

// Capacity is the hard ceiling for blocking reservations in any window.
func (p *CapacityPool) Capacity() int {
	return p.TotalCapacity + p.OverbookCapacity
}

type CapacityPoolMember struct {
	ID               string        `json:"id" bson:"_id"`
	TenantID         string        `json:"tenant_id" bson:"tenant_id" validate:"required"`
	PoolID           string        `json:"pool_id" bson:"pool_id" validate:"required"`
	Member           PoolMemberRef `json:"member" bson:"member"`
	MemberKey        string        `json:"member_key" bson:"member_key"`
	CapacityWeight   int           `json:"capacity_weight" bson:"capacity_weight" validate:"gte=0"`
	ReservedCapacity int           `json:"reserved_capacity" bson:"reserved_capacity" validate:"gte=0"`
	IsActive         bool          `json:"is_active" bson:"is_active"`
	CreatedAt        time.Time     `json:"created_at" bson:"created_at"`
}

// Units converts a hold quantity into pool units for this member.
func (m *CapacityPoolMember) Units(quantity int) int {
	w := m.CapacityWeight
	if w <= 0 {
		w = 1
	}
	return quantity * w
}

type AllocationStatus string

const (
	AllocationActive    AllocationStatus = "active"
	AllocationReleased  AllocationStatus = "released"
	AllocationCommitted AllocationStatus = "committed"
)

// CapacityAllocation is the pool-side half of a blocking hold.
// MemberKey is empty for direct pool reservations.
type CapacityAllocation struct {
	ID        string           `json:"id" bson:"_id"`
	TenantID  string           `json:"tenant_id" bson:"tenant_id"`
	PoolID    string           `json:"pool_id" bson:"pool_id"`
	HoldID    string           `json:"hold_id" bson:"hold_id"`
	MemberKey string           `json:"member_key,omitempty" bson:"member_key,omitempty"`
	Quantity  int              `json:"quantity" bson:"quantity"`
	StartsAt  time.Time        `json:"starts_at" bson:"starts_at"`
	EndsAt    time.Time        `json:"ends_at" bson:"ends_at"`
	Status    AllocationStatus `json:"status" bson:"status"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// PoolAvailability reports pool usage for one window.
type PoolAvailability struct {
	PoolID    string         `json:"pool_id"`
	Capacity  int            `json:"capacity"`
	Used      int            `json:"used"`
	Direct    int            `json:"direct"`
	ByMember  map[string]int `json:"by_member,omitempty"`
	Remaining int            `json:"remaining"`
}
