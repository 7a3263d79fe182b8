package repository

import (
	"context"
	"slices"
	holderrors "slotkeeper/internal/holds/errors"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"sort"
	"sync"
	"time"
)

// MemoryHoldRepository keeps holds and their event log in process memory.
// Conditional writes are atomic; transactions are not isolated.
type MemoryHoldRepository struct {
	mu     sync.Mutex
	holds  map[string]model.CapacityHold
	events []model.CapacityHoldEvent
}

func NewMemoryHoldRepository() *MemoryHoldRepository {
	return &MemoryHoldRepository{holds: make(map[string]model.CapacityHold)}
}

func (r *MemoryHoldRepository) Create(ctx context.Context, hold *model.CapacityHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hold.RequestKey != "" {
		for _, h := range r.holds {
			if h.TenantID == hold.TenantID && h.RequestKey == hold.RequestKey {
				return holderrors.ErrDuplicateRequestKey
			}
		}
	}
	r.holds[hold.ID] = *hold
	return nil
}

func (r *MemoryHoldRepository) FindByID(ctx context.Context, tenantID, id string) (*model.CapacityHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holds[id]
	if !ok || h.TenantID != tenantID {
		return nil, holderrors.ErrHoldNotFound
	}
	return &h, nil
}

func (r *MemoryHoldRepository) FindByRequestKey(ctx context.Context, tenantID, requestKey string) (*model.CapacityHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.holds {
		if h.TenantID == tenantID && h.RequestKey == requestKey {
			return &h, nil
		}
	}
	return nil, holderrors.ErrHoldNotFound
}

func (r *MemoryHoldRepository) List(ctx context.Context, tenantID string, f HoldFilter, limit int, offset int64) ([]*model.CapacityHold, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*model.CapacityHold
	for _, h := range r.holds {
		if h.TenantID != tenantID ||
			(f.TargetKey != "" && h.TargetKey != f.TargetKey) ||
			(f.OwnerKey != "" && h.OwnerKey != f.OwnerKey) ||
			(f.Status != "" && h.Status != f.Status) {
			continue
		}
		matched = append(matched, &h)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+int64(limit), total)
	return matched[offset:end], total, nil
}

func (r *MemoryHoldRepository) UpdateActive(ctx context.Context, hold *model.CapacityHold, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.holds[hold.ID]
	if !ok || stored.TenantID != hold.TenantID || stored.Status != model.HoldActive || stored.Version != expectedVersion {
		return holderrors.ErrVersionConflict
	}
	r.holds[hold.ID] = *hold
	return nil
}

func (r *MemoryHoldRepository) CountActiveByOwner(ctx context.Context, tenantID, ownerKey string, now time.Time) (map[model.EffectMode]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.EffectMode]int)
	for _, h := range r.holds {
		if h.TenantID != tenantID || h.OwnerKey != ownerKey || h.Status != model.HoldActive {
			continue
		}
		if h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
			continue
		}
		counts[h.EffectMode]++
	}
	return counts, nil
}

func (r *MemoryHoldRepository) Pressure(ctx context.Context, tenantID, targetKey string, since, now time.Time) (*model.HoldPressure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pressure := &model.HoldPressure{TargetKey: targetKey}
	owners := make(map[string]struct{})
	for _, h := range r.holds {
		if h.TenantID != tenantID || h.TargetKey != targetKey || h.Status != model.HoldActive {
			continue
		}
		if h.ExpiresAt == nil || !h.ExpiresAt.After(now) || h.CreatedAt.Before(since) {
			continue
		}
		if h.EffectMode == model.EffectAdvisory {
			continue
		}
		switch h.EffectMode {
		case model.EffectBlocking:
			pressure.BlockingCount++
		case model.EffectNonBlocking:
			pressure.NonBlockingCount++
		}
		if h.OwnerKey != "" {
			owners[h.OwnerKey] = struct{}{}
		}
	}
	pressure.UniqueOwnerCount = len(owners)
	return pressure, nil
}

func (r *MemoryHoldRepository) CountOverlappingBlocking(ctx context.Context, tenantID, targetKey string, w model.Window, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, h := range r.holds {
		if h.TenantID != tenantID || h.TargetKey != targetKey || h.Status != model.HoldActive || h.EffectMode != model.EffectBlocking {
			continue
		}
		if h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
			continue
		}
		if h.StartsAt.Before(w.End) && h.EndsAt.After(w.Start) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryHoldRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.CapacityHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*model.CapacityHold
	for _, h := range r.holds {
		if h.Status == model.HoldActive && h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
			expired = append(expired, &h)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].ExpiresAt.Equal(*expired[j].ExpiresAt) {
			return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt)
		}
		return expired[i].ID < expired[j].ID
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (r *MemoryHoldRepository) AppendEvent(ctx context.Context, evt *model.CapacityHoldEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *evt)
	return nil
}

func (r *MemoryHoldRepository) ListEvents(ctx context.Context, tenantID, holdID string) ([]*model.CapacityHoldEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []*model.CapacityHoldEvent
	for _, e := range r.events {
		if e.TenantID == tenantID && e.HoldID == holdID {
			events = append(events, &e)
		}
	}
	return events, nil
}

func (r *MemoryHoldRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

// Count reports how many holds are stored for the tenant.
func (r *MemoryHoldRepository) Count(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.holds {
		if h.TenantID == tenantID {
			n++
		}
	}
	return n
}

// MemoryPolicyRepository keeps hold policies in process memory.
type MemoryPolicyRepository struct {
	mu       sync.Mutex
	policies map[string]model.CapacityHoldPolicy
}

func NewMemoryPolicyRepository() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{policies: make(map[string]model.CapacityHoldPolicy)}
}

func (r *MemoryPolicyRepository) Create(ctx context.Context, p *model.CapacityHoldPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeConflict(p) {
		return holderrors.ErrActivePolicyExists
	}
	r.policies[p.ID] = *p
	return nil
}

func (r *MemoryPolicyRepository) Update(ctx context.Context, p *model.CapacityHoldPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.policies[p.ID]
	if !ok || stored.TenantID != p.TenantID {
		return holderrors.ErrPolicyNotFound
	}
	if r.activeConflict(p) {
		return holderrors.ErrActivePolicyExists
	}
	r.policies[p.ID] = *p
	return nil
}

func (r *MemoryPolicyRepository) activeConflict(p *model.CapacityHoldPolicy) bool {
	if p.Status != model.PolicyActive {
		return false
	}
	for id, other := range r.policies {
		if id != p.ID && other.TenantID == p.TenantID && other.ScopeKey == p.ScopeKey && other.Status == model.PolicyActive {
			return true
		}
	}
	return false
}

func (r *MemoryPolicyRepository) FindByID(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[id]
	if !ok || p.TenantID != tenantID {
		return nil, holderrors.ErrPolicyNotFound
	}
	return &p, nil
}

func (r *MemoryPolicyRepository) FindActiveByScopeKey(ctx context.Context, tenantID, scopeKey string) (*model.CapacityHoldPolicy, error) {
	policies, err := r.FindActiveByScopeKeys(ctx, tenantID, []string{scopeKey})
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, holderrors.ErrPolicyNotFound
	}
	return policies[0], nil
}

func (r *MemoryPolicyRepository) FindActiveByScopeKeys(ctx context.Context, tenantID string, scopeKeys []string) ([]*model.CapacityHoldPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var policies []*model.CapacityHoldPolicy
	for _, p := range r.policies {
		if p.TenantID == tenantID && p.Status == model.PolicyActive && slices.Contains(scopeKeys, p.ScopeKey) {
			policies = append(policies, &p)
		}
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })
	return policies, nil
}

func (r *MemoryPolicyRepository) List(ctx context.Context, tenantID string, limit int, offset int64) ([]*model.CapacityHoldPolicy, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var policies []*model.CapacityHoldPolicy
	for _, p := range r.policies {
		if p.TenantID == tenantID {
			policies = append(policies, &p)
		}
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].ScopeKey != policies[j].ScopeKey {
			return policies[i].ScopeKey < policies[j].ScopeKey
		}
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority < policies[j].Priority
		}
		return policies[i].ID < policies[j].ID
	})
	total := int64(len(policies))
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+int64(limit), total)
	return policies[offset:end], total, nil
}

func (r *MemoryPolicyRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}
