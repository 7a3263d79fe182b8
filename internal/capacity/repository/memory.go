package repository

import (
	"context"
	capacityerrors "slotkeeper/internal/capacity/errors"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"sort"
	"sync"
	"time"
)

// MemoryCapacityRepository keeps the ledger in process memory. It backs tests and
// single-process setups; transactions are not isolated, so callers rely on pool locks.
type MemoryCapacityRepository struct {
	mu          sync.Mutex
	pools       map[string]model.CapacityPool
	members     map[string]model.CapacityPoolMember
	allocations map[string]model.CapacityAllocation
}

func NewMemoryCapacityRepository() *MemoryCapacityRepository {
	return &MemoryCapacityRepository{
		pools:       make(map[string]model.CapacityPool),
		members:     make(map[string]model.CapacityPoolMember),
		allocations: make(map[string]model.CapacityAllocation),
	}
}

func (r *MemoryCapacityRepository) CreatePool(ctx context.Context, pool *model.CapacityPool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[pool.ID] = *pool
	return nil
}

func (r *MemoryCapacityRepository) FindPool(ctx context.Context, tenantID, id string) (*model.CapacityPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[id]
	if !ok || pool.TenantID != tenantID {
		return nil, capacityerrors.ErrPoolNotFound
	}
	return &pool, nil
}

func (r *MemoryCapacityRepository) AddMember(ctx context.Context, m *model.CapacityPoolMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members {
		if existing.PoolID == m.PoolID && existing.MemberKey == m.MemberKey {
			return capacityerrors.ErrDuplicateMember
		}
	}
	r.members[m.ID] = *m
	return nil
}

func (r *MemoryCapacityRepository) ListMembers(ctx context.Context, tenantID, poolID string) ([]*model.CapacityPoolMember, error) {
	return r.filterMembers(func(m model.CapacityPoolMember) bool {
		return m.TenantID == tenantID && m.PoolID == poolID && m.IsActive
	}), nil
}

func (r *MemoryCapacityRepository) FindMemberships(ctx context.Context, tenantID, memberKey string) ([]*model.CapacityPoolMember, error) {
	return r.filterMembers(func(m model.CapacityPoolMember) bool {
		return m.TenantID == tenantID && m.MemberKey == memberKey && m.IsActive
	}), nil
}

func (r *MemoryCapacityRepository) filterMembers(keep func(model.CapacityPoolMember) bool) []*model.CapacityPoolMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CapacityPoolMember
	for _, m := range r.members {
		if keep(m) {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PoolID != out[j].PoolID {
			return out[i].PoolID < out[j].PoolID
		}
		return out[i].MemberKey < out[j].MemberKey
	})
	return out
}

func (r *MemoryCapacityRepository) InsertAllocations(ctx context.Context, allocs []*model.CapacityAllocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range allocs {
		r.allocations[a.ID] = *a
	}
	return nil
}

func (r *MemoryCapacityRepository) ListActiveOverlapping(ctx context.Context, tenantID, poolID string, w model.Window) ([]*model.CapacityAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CapacityAllocation
	for _, a := range r.allocations {
		if a.TenantID != tenantID || a.PoolID != poolID || a.Status != model.AllocationActive {
			continue
		}
		if a.StartsAt.Before(w.End) && w.Start.Before(a.EndsAt) {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r *MemoryCapacityRepository) CloseByHold(ctx context.Context, tenantID, holdID string, status model.AllocationStatus, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.allocations {
		if a.TenantID == tenantID && a.HoldID == holdID && a.Status == model.AllocationActive {
			a.Status = status
			a.ClosedAt = &at
			r.allocations[id] = a
			n++
		}
	}
	return n, nil
}

// Allocations returns a snapshot of every allocation row.
func (r *MemoryCapacityRepository) Allocations() []model.CapacityAllocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.CapacityAllocation, 0, len(r.allocations))
	for _, a := range r.allocations {
		out = append(out, a)
	}
	return out
}

func (r *MemoryCapacityRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return mongotx.NoopTransactionManager{}.ExecuteTransaction(ctx, fn)
}
