package service

import "slotkeeper/pkg/model"

// Usage is the active allocation total of one pool over one window.
type Usage struct {
	direct   int
	byMember map[string]int
}

func SumUsage(allocs []*model.CapacityAllocation) Usage {
	u := Usage{byMember: make(map[string]int)}
	for _, a := range allocs {
		if a.Status != model.AllocationActive {
			continue
		}
		if a.MemberKey == "" {
			u.direct += a.Quantity
			continue
		}
		u.byMember[a.MemberKey] += a.Quantity
	}
	return u
}

func (u Usage) total() int {
	total := u.direct
	for _, q := range u.byMember {
		total += q
	}
	return total
}

// Remaining is the capacity a reservation through memberKey may still take.
// Every other member keeps max(used, reserved) out of reach; an empty memberKey
// is a direct pool reservation and respects every member's floor.
func Remaining(pool *model.CapacityPool, members []*model.CapacityPoolMember, u Usage, memberKey string) int {
	held := u.direct
	counted := make(map[string]struct{}, len(members))
	for _, m := range members {
		counted[m.MemberKey] = struct{}{}
		used := u.byMember[m.MemberKey]
		if m.MemberKey == memberKey {
			held += used
			continue
		}
		held += max(used, m.ReservedCapacity)
	}
	// allocations of members that left the pool still occupy capacity
	for key, used := range u.byMember {
		if _, ok := counted[key]; !ok {
			held += used
		}
	}
	return pool.Capacity() - held
}
