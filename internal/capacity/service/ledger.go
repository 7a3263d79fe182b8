package service

import (
	"context"
	"errors"
	"fmt"
	capacityerrors "slotkeeper/internal/capacity/errors"
	"slotkeeper/internal/capacity/repository"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/lock"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Share is one pool a target draws from. Member is nil for direct pool reservations.
type Share struct {
	Pool   *model.CapacityPool
	Member *model.CapacityPoolMember
}

func (s Share) memberKey() string {
	if s.Member == nil {
		return ""
	}
	return s.Member.MemberKey
}

func (s Share) units(quantity int) int {
	if s.Member == nil {
		return quantity
	}
	return s.Member.Units(quantity)
}

// LockKey is the lock guarding reservations against one pool.
func LockKey(poolID string) string {
	return "capacity_pool:" + poolID
}

type Ledger interface {
	CreatePool(ctx context.Context, pool *model.CapacityPool) error
	GetPool(ctx context.Context, tenantID, id string) (*model.CapacityPool, error)
	AddMember(ctx context.Context, m *model.CapacityPoolMember) error

	// Shares resolves the active pools a hold target consumes.
	Shares(ctx context.Context, tenantID string, target model.HoldTarget) ([]Share, error)
	// Allocate checks every share and writes one allocation per share. The caller holds
	// LockKey for every share and runs Allocate inside its own transaction.
	Allocate(ctx context.Context, tenantID, holdID string, shares []Share, quantity int, w model.Window) ([]*model.CapacityAllocation, error)

	// Reserve is a standalone direct reservation against one pool. It returns the
	// capacity left for the window after the reservation.
	Reserve(ctx context.Context, tenantID, poolID, holdID string, quantity int, w model.Window) (int, error)
	Release(ctx context.Context, tenantID, holdID string) error
	Commit(ctx context.Context, tenantID, holdID string) error
	Availability(ctx context.Context, tenantID, poolID string, w model.Window) (*model.PoolAvailability, error)
}

type ledger struct {
	repo     repository.CapacityRepository
	locker   lock.Locker
	validate *validator.Validate
	clock    clock.Clock
	cfg      *config.Config
}

func NewLedger(repo repository.CapacityRepository, locker lock.Locker, clk clock.Clock, cfg *config.Config) Ledger {
	return &ledger{
		repo:     repo,
		locker:   locker,
		validate: validator.New(),
		clock:    clk,
		cfg:      cfg,
	}
}

func (l *ledger) CreatePool(ctx context.Context, pool *model.CapacityPool) error {
	pool.ID = uuid.NewString()
	pool.Name = sanitizer.NormalizeName(pool.Name)
	pool.IsActive = true
	pool.CreatedAt = l.clock.Now()

	if err := l.validate.Struct(pool); err != nil {
		l.cfg.Log.Warn("Capacity pool validation failed",
			"tenant_id", pool.TenantID,
			"name", pool.Name,
			"error", err,
		)
		return apperrors.Validation("Capacity pool validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := l.repo.CreatePool(ctx, pool); err != nil {
		l.cfg.Log.Error("Failed to create capacity pool", "tenant_id", pool.TenantID, "error", err)
		return apperrors.Internal("Failed to create capacity pool", err)
	}

	l.cfg.Log.Info("Capacity pool created successfully",
		"id", pool.ID,
		"tenant_id", pool.TenantID,
		"total_capacity", pool.TotalCapacity,
		"overbook_capacity", pool.OverbookCapacity,
	)
	return nil
}

func (l *ledger) GetPool(ctx context.Context, tenantID, id string) (*model.CapacityPool, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Pool ID cannot be empty")
	}
	pool, err := l.repo.FindPool(ctx, tenantID, id)
	if err != nil {
		return nil, l.mapError(err, id)
	}
	return pool, nil
}

func (l *ledger) AddMember(ctx context.Context, m *model.CapacityPoolMember) error {
	pool, err := l.GetPool(ctx, m.TenantID, m.PoolID)
	if err != nil {
		return err
	}

	ref, err := model.NewPoolMemberRef(m.Member.Type, m.Member.ID)
	if err != nil {
		return apperrors.Validation("Pool member validation failed", map[string]any{
			"error": err.Error(),
		})
	}
	m.ID = uuid.NewString()
	m.Member = ref
	m.MemberKey = ref.Key()
	m.IsActive = true
	m.CreatedAt = l.clock.Now()

	if err := l.validate.Struct(m); err != nil {
		return apperrors.Validation("Pool member validation failed", map[string]any{
			"error": err.Error(),
		})
	}
	if m.ReservedCapacity > pool.Capacity() {
		return apperrors.Validation("Reserved capacity exceeds the pool capacity", map[string]any{
			"reserved_capacity": m.ReservedCapacity,
			"capacity":          pool.Capacity(),
		})
	}

	if err := l.repo.AddMember(ctx, m); err != nil {
		if errors.Is(err, capacityerrors.ErrDuplicateMember) {
			return apperrors.Conflict("Member already belongs to the pool")
		}
		return apperrors.Internal("Failed to add pool member", err)
	}

	l.cfg.Log.Info("Pool member added",
		"pool_id", m.PoolID,
		"member", m.MemberKey,
		"weight", m.CapacityWeight,
		"reserved", m.ReservedCapacity,
	)
	return nil
}

func (l *ledger) Shares(ctx context.Context, tenantID string, target model.HoldTarget) ([]Share, error) {
	if target.Type == model.TargetCapacityPool {
		pool, err := l.repo.FindPool(ctx, tenantID, target.ID)
		if err != nil {
			return nil, l.mapError(err, target.ID)
		}
		if !pool.IsActive {
			return nil, nil
		}
		return []Share{{Pool: pool}}, nil
	}

	memberType, ok := target.MemberType()
	if !ok {
		return nil, nil
	}
	ref := model.PoolMemberRef{Type: memberType, ID: target.ID}
	memberships, err := l.repo.FindMemberships(ctx, tenantID, ref.Key())
	if err != nil {
		return nil, apperrors.Internal("Failed to load pool memberships", err)
	}

	shares := make([]Share, 0, len(memberships))
	for _, m := range memberships {
		pool, err := l.repo.FindPool(ctx, tenantID, m.PoolID)
		if err != nil {
			if errors.Is(err, capacityerrors.ErrPoolNotFound) {
				continue
			}
			return nil, apperrors.Internal("Failed to load capacity pool", err)
		}
		if pool.IsActive {
			shares = append(shares, Share{Pool: pool, Member: m})
		}
	}
	return shares, nil
}

func (l *ledger) Allocate(ctx context.Context, tenantID, holdID string, shares []Share, quantity int, w model.Window) ([]*model.CapacityAllocation, error) {
	if quantity <= 0 {
		return nil, apperrors.Validation("Quantity must be positive", map[string]any{"quantity": quantity})
	}
	if !w.Valid() {
		return nil, apperrors.Validation("Window end must be after its start", nil)
	}

	now := l.clock.Now()
	allocs := make([]*model.CapacityAllocation, 0, len(shares))
	for _, share := range shares {
		usage, err := l.usage(ctx, tenantID, share.Pool.ID, w)
		if err != nil {
			return nil, err
		}
		members, err := l.repo.ListMembers(ctx, tenantID, share.Pool.ID)
		if err != nil {
			return nil, apperrors.Internal("Failed to load pool members", err)
		}

		units := share.units(quantity)
		remaining := Remaining(share.Pool, members, usage, share.memberKey())
		if units > remaining {
			l.cfg.Log.Info("Capacity reservation refused",
				"pool_id", share.Pool.ID,
				"member", share.memberKey(),
				"requested", units,
				"remaining", remaining,
			)
			return nil, apperrors.CapacityExceeded(share.Pool.ID, units, max(remaining, 0))
		}

		allocs = append(allocs, &model.CapacityAllocation{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			PoolID:    share.Pool.ID,
			HoldID:    holdID,
			MemberKey: share.memberKey(),
			Quantity:  units,
			StartsAt:  w.Start,
			EndsAt:    w.End,
			Status:    model.AllocationActive,
			CreatedAt: now,
		})
	}

	if err := l.repo.InsertAllocations(ctx, allocs); err != nil {
		return nil, apperrors.Internal("Failed to write capacity allocations", err)
	}
	return allocs, nil
}

func (l *ledger) Reserve(ctx context.Context, tenantID, poolID, holdID string, quantity int, w model.Window) (int, error) {
	pool, err := l.GetPool(ctx, tenantID, poolID)
	if err != nil {
		return 0, err
	}

	unlock, err := lock.AcquireAll(ctx, l.locker, LockKey(poolID))
	if err != nil {
		return 0, lockError(err)
	}
	defer unlock()

	var remaining int
	err = l.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		allocs, err := l.Allocate(ctx, tenantID, holdID, []Share{{Pool: pool}}, quantity, w)
		if err != nil {
			return err
		}
		usage, err := l.usage(ctx, tenantID, poolID, w)
		if err != nil {
			return err
		}
		members, err := l.repo.ListMembers(ctx, tenantID, poolID)
		if err != nil {
			return apperrors.Internal("Failed to load pool members", err)
		}
		remaining = Remaining(pool, members, usage, "")
		l.cfg.Log.Info("Capacity reserved",
			"pool_id", poolID,
			"hold_id", holdID,
			"quantity", allocs[0].Quantity,
			"remaining", remaining,
		)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (l *ledger) Release(ctx context.Context, tenantID, holdID string) error {
	return l.close(ctx, tenantID, holdID, model.AllocationReleased)
}

// Commit makes a consumed hold's allocations permanent. Committed rows leave pool tracking.
func (l *ledger) Commit(ctx context.Context, tenantID, holdID string) error {
	return l.close(ctx, tenantID, holdID, model.AllocationCommitted)
}

func (l *ledger) close(ctx context.Context, tenantID, holdID string, status model.AllocationStatus) error {
	n, err := l.repo.CloseByHold(ctx, tenantID, holdID, status, l.clock.Now())
	if err != nil {
		l.cfg.Log.Error("Failed to close capacity allocations",
			"hold_id", holdID,
			"status", status,
			"error", err,
		)
		return apperrors.Internal("Failed to update capacity allocations", err)
	}
	if n > 0 {
		l.cfg.Log.Debug("Capacity allocations closed", "hold_id", holdID, "status", status, "count", n)
	}
	return nil
}

func (l *ledger) Availability(ctx context.Context, tenantID, poolID string, w model.Window) (*model.PoolAvailability, error) {
	if !w.Valid() {
		return nil, apperrors.Validation("Window end must be after its start", nil)
	}
	pool, err := l.GetPool(ctx, tenantID, poolID)
	if err != nil {
		return nil, err
	}
	usage, err := l.usage(ctx, tenantID, poolID, w)
	if err != nil {
		return nil, err
	}
	members, err := l.repo.ListMembers(ctx, tenantID, poolID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load pool members", err)
	}

	return &model.PoolAvailability{
		PoolID:    poolID,
		Capacity:  pool.Capacity(),
		Used:      usage.total(),
		Direct:    usage.direct,
		ByMember:  usage.byMember,
		Remaining: max(Remaining(pool, members, usage, ""), 0),
	}, nil
}

func (l *ledger) usage(ctx context.Context, tenantID, poolID string, w model.Window) (Usage, error) {
	allocs, err := l.repo.ListActiveOverlapping(ctx, tenantID, poolID, w)
	if err != nil {
		return Usage{}, apperrors.Internal("Failed to load capacity allocations", err)
	}
	return SumUsage(allocs), nil
}

func (l *ledger) mapError(err error, poolID string) error {
	switch {
	case errors.Is(err, capacityerrors.ErrPoolNotFound):
		return apperrors.NotFoundWithID("Capacity pool", poolID)
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Internal(fmt.Sprintf("Failed to load capacity pool %s", poolID), err)
	}
}

func lockError(err error) error {
	if errors.Is(err, lock.ErrLockContention) {
		return apperrors.StorageConflict("Capacity pool is busy, retry the request", err)
	}
	return apperrors.Internal("Failed to lock capacity pool", err)
}
