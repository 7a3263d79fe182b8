package service

import (
	"context"
	"errors"
	"fmt"
	capacityservice "slotkeeper/internal/capacity/service"
	holderrors "slotkeeper/internal/holds/errors"
	"slotkeeper/internal/holds/repository"
	"slotkeeper/internal/holds/validator"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/events"
	"slotkeeper/pkg/lock"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
	"time"

	"github.com/google/uuid"
)

const transitionBackoff = 20 * time.Millisecond

// AvailabilityChecker evaluates a calendar before a blocking hold is placed against it.
// now anchors the calendar's booking horizon.
type AvailabilityChecker interface {
	Evaluate(ctx context.Context, tenantID, calendarID string, window model.Window, now time.Time) (*model.Verdict, error)
}

type HoldService interface {
	// Create places a hold. The boolean is false when an existing hold was returned
	// for a repeated request key.
	Create(ctx context.Context, req *model.CreateHoldRequest) (*model.CapacityHold, bool, error)
	GetByID(ctx context.Context, tenantID, id string) (*model.CapacityHold, error)
	List(ctx context.Context, tenantID string, filter repository.HoldFilter, limit int, offset int64) ([]*model.CapacityHold, int64, error)
	Events(ctx context.Context, tenantID, holdID string) ([]*model.CapacityHoldEvent, error)

	Transition(ctx context.Context, tenantID, holdID string, action model.HoldAction, actor model.Actor, reason string) (*model.TransitionResult, error)
	Release(ctx context.Context, tenantID, holdID string, actor model.Actor, reason string) (*model.TransitionResult, error)
	Cancel(ctx context.Context, tenantID, holdID string, actor model.Actor, reason string) (*model.TransitionResult, error)
	Consume(ctx context.Context, tenantID, holdID string, actor model.Actor, reason string) (*model.TransitionResult, error)
	// Expire settles an active hold whose expiry has passed. Unexpired holds are left alone.
	Expire(ctx context.Context, tenantID, holdID string) (*model.TransitionResult, error)
	Extend(ctx context.Context, tenantID, holdID string, additionalMin int, actor model.Actor) (*model.TransitionResult, error)
}

type holdService struct {
	repo      repository.HoldRepository
	policies  PolicyService
	ledger    capacityservice.Ledger
	locker    lock.Locker
	checker   AvailabilityChecker
	publisher events.Publisher
	validator *validator.HoldValidator
	clock     clock.Clock
	cfg       *config.Config
}

// NewHoldService wires the hold manager. checker may be nil, in which case calendar
// targets are not evaluated before blocking holds.
func NewHoldService(
	repo repository.HoldRepository,
	policies PolicyService,
	ledger capacityservice.Ledger,
	locker lock.Locker,
	checker AvailabilityChecker,
	publisher events.Publisher,
	validator *validator.HoldValidator,
	clk clock.Clock,
	cfg *config.Config,
) HoldService {
	return &holdService{
		repo:      repo,
		policies:  policies,
		ledger:    ledger,
		locker:    locker,
		checker:   checker,
		publisher: publisher,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *holdService) Create(ctx context.Context, req *model.CreateHoldRequest) (*model.CapacityHold, bool, error) {
	s.sanitize(req)

	if err := s.validator.ValidateRequest(req); err != nil {
		s.cfg.Log.Warn("Hold request validation failed",
			"tenant_id", req.TenantID,
			"target", req.Target.Key(),
			"error", err,
		)
		return nil, false, apperrors.Validation("Hold request validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if existing, err := s.findReplay(ctx, req); err != nil || existing != nil {
		return existing, false, err
	}

	pol, err := s.policies.Resolve(ctx, req.TenantID, policyScopes(req))
	if err != nil {
		return nil, false, err
	}
	lifetime, err := s.checkPolicy(pol, req)
	if err != nil {
		s.cfg.Log.Warn("Hold request disallowed by policy",
			"tenant_id", req.TenantID,
			"target", req.Target.Key(),
			"policy_id", pol.ID,
			"error", err,
		)
		return nil, false, err
	}

	window := model.Window{Start: req.StartsAt, End: req.EndsAt}
	var shares []capacityservice.Share
	var verdict *model.Verdict
	if req.EffectMode == model.EffectBlocking {
		if req.Target.Type == model.TargetCalendar {
			if verdict, err = s.checkCalendar(ctx, req, window); err != nil {
				return nil, false, err
			}
		}
		if shares, err = s.ledger.Shares(ctx, req.TenantID, req.Target); err != nil {
			return nil, false, err
		}
	}

	unlock, err := lock.AcquireAll(ctx, s.locker, lockKeys(req, shares)...)
	if err != nil {
		return nil, false, lockError(err)
	}
	defer unlock()

	if existing, err := s.findReplay(ctx, req); err != nil || existing != nil {
		return existing, false, err
	}
	if err := s.checkOwnerCaps(ctx, pol, req); err != nil {
		s.cfg.Log.Warn("Hold request exceeds owner cap",
			"tenant_id", req.TenantID,
			"owner", req.Owner.Key(),
			"policy_id", pol.ID,
			"error", err,
		)
		return nil, false, err
	}
	if verdict != nil && verdict.StrictNonOverlap {
		if err := s.checkOverlap(ctx, req, window); err != nil {
			return nil, false, err
		}
	}

	hold := s.newHold(req, pol, lifetime)
	created := newEvent(hold, model.HoldEventCreated, "", req.Actor, "")
	created.PreviousEffectMode = ""
	created.PreviousQuantity = 0

	err = s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if len(shares) > 0 {
			allocs, err := s.ledger.Allocate(ctx, hold.TenantID, hold.ID, shares, hold.Quantity, window)
			if err != nil {
				return err
			}
			for _, a := range allocs {
				hold.PoolIDs = append(hold.PoolIDs, a.PoolID)
			}
		}
		if err := s.repo.Create(ctx, hold); err != nil {
			return err
		}
		return s.repo.AppendEvent(ctx, created)
	})
	if err != nil {
		if len(shares) > 0 {
			s.compensate(ctx, hold)
		}
		if errors.Is(err, holderrors.ErrDuplicateRequestKey) {
			if existing, findErr := s.repo.FindByRequestKey(ctx, req.TenantID, req.RequestKey); findErr == nil {
				return existing, false, nil
			}
		}
		if apperrors.IsAppError(err) {
			return nil, false, err
		}
		s.cfg.Log.Error("Failed to create capacity hold",
			"tenant_id", req.TenantID,
			"target", hold.TargetKey,
			"error", err,
		)
		return nil, false, apperrors.Internal("Failed to create capacity hold", err)
	}

	s.cfg.Log.Info("Capacity hold created successfully",
		"id", hold.ID,
		"tenant_id", hold.TenantID,
		"target", hold.TargetKey,
		"effect_mode", hold.EffectMode,
		"quantity", hold.Quantity,
		"policy_id", hold.PolicyID,
		"pools", len(hold.PoolIDs),
	)
	events.PublishAsync(ctx, s.publisher, s.cfg.Log, events.NewHoldEvent(hold, created))
	return hold, true, nil
}

func (s *holdService) GetByID(ctx context.Context, tenantID, id string) (*model.CapacityHold, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Hold ID cannot be empty")
	}
	hold, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, s.mapError(err, id)
	}
	return hold, nil
}

func (s *holdService) List(ctx context.Context, tenantID string, filter repository.HoldFilter, limit int, offset int64) ([]*model.CapacityHold, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)
	holds, total, err := s.repo.List(ctx, tenantID, filter, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list capacity holds", err)
	}
	return holds, total, nil
}

func (s *holdService) Events(ctx context.Context, tenantID, holdID string) ([]*model.CapacityHoldEvent, error) {
	if _, err := s.GetByID(ctx, tenantID, holdID); err != nil {
		return nil, err
	}
	evts, err := s.repo.ListEvents(ctx, tenantID, holdID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list hold events", err)
	}
	return evts, nil
}

func (s *holdService) Release(ctx context.Context, tenantID, holdID string, actor model.Actor, reason string) (*model.TransitionResult, error) {
	return s.Transition(ctx, tenantID, holdID, model.HoldActionRelease, actor, reason)
}

func (s *holdService) Cancel(ctx context.Context, tenantID, holdID string, actor model.Actor, reason string) (*model.TransitionResult, error) {
	return s.Transition(ctx, tenantID, holdID, model.HoldActionCancel, actor, reason)
}

func (s *holdService) Consume(ctx context.Context, tenantID, holdID string, actor model.Actor, reason string) (*model.TransitionResult, error) {
	return s.Transition(ctx, tenantID, holdID, model.HoldActionConsume, actor, reason)
}

func (s *holdService) Expire(ctx context.Context, tenantID, holdID string) (*model.TransitionResult, error) {
	return s.Transition(ctx, tenantID, holdID, model.HoldActionExpire, model.SystemActor, "hold lifetime elapsed")
}

func (s *holdService) Transition(ctx context.Context, tenantID, holdID string, action model.HoldAction, actor model.Actor, reason string) (*model.TransitionResult, error) {
	if _, ok := model.NextStatus(model.HoldActive, action); !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Unknown hold action %q", action))
	}

	return s.mutate(ctx, tenantID, holdID, func(current *model.CapacityHold, now time.Time) (*model.CapacityHold, *model.CapacityHoldEvent, error) {
		next, ok := model.NextStatus(current.Status, action)
		if !ok {
			return nil, nil, nil
		}
		if action == model.HoldActionExpire && (current.ExpiresAt == nil || current.ExpiresAt.After(now)) {
			return nil, nil, nil
		}

		updated := *current
		updated.Status = next
		updated.Version++
		updated.UpdatedAt = now
		updated.StampTerminal(next, now)

		evt := newEvent(&updated, eventTypeFor(next), current.Status, actor, reason)
		return &updated, evt, nil
	})
}

func (s *holdService) Extend(ctx context.Context, tenantID, holdID string, additionalMin int, actor model.Actor) (*model.TransitionResult, error) {
	if additionalMin <= 0 {
		return nil, apperrors.Validation("Extension must be a positive number of minutes", map[string]any{
			"additional_min": additionalMin,
		})
	}

	return s.mutate(ctx, tenantID, holdID, func(current *model.CapacityHold, now time.Time) (*model.CapacityHold, *model.CapacityHoldEvent, error) {
		// settled or lapsed holds lose the race like any other transition
		if current.Status != model.HoldActive || current.ExpiresAt == nil || !current.ExpiresAt.After(now) {
			return nil, nil, nil
		}

		expiresAt := current.ExpiresAt.Add(time.Duration(additionalMin) * time.Minute)
		lifetime := int(expiresAt.Sub(current.CreatedAt) / time.Minute)
		if snap := current.PolicySnapshot; snap != nil && snap.MaxHoldDurationMin > 0 && lifetime > snap.MaxHoldDurationMin {
			return nil, nil, apperrors.PolicyDisallowed(current.PolicyID, "max_hold_duration_min",
				fmt.Sprintf("Extended hold lifetime of %d min exceeds the maximum of %d min", lifetime, snap.MaxHoldDurationMin))
		}

		updated := *current
		updated.ExpiresAt = &expiresAt
		updated.Version++
		updated.UpdatedAt = now

		evt := newEvent(&updated, model.HoldEventExtended, current.Status, actor, fmt.Sprintf("extended by %d min", additionalMin))
		return &updated, evt, nil
	})
}

// changeFunc derives the next hold state from the freshest stored copy. Returning a nil
// hold and nil error means there is nothing to apply.
type changeFunc func(current *model.CapacityHold, now time.Time) (*model.CapacityHold, *model.CapacityHoldEvent, error)

// mutate applies change with a compare-and-swap on (status=active, version). A lost race
// is re-read and re-derived until the hold settles or the retry budget runs out.
func (s *holdService) mutate(ctx context.Context, tenantID, holdID string, change changeFunc) (*model.TransitionResult, error) {
	attempts := max(s.cfg.TransitionRetryAttempts, 1)

	for attempt := 1; ; attempt++ {
		current, err := s.GetByID(ctx, tenantID, holdID)
		if err != nil {
			return nil, err
		}

		updated, evt, err := change(current, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if updated == nil {
			if current.Status.IsTerminal() {
				s.cfg.Log.Info("Hold transition skipped, hold already settled",
					"hold_id", holdID,
					"tenant_id", tenantID,
					"status", current.Status,
					"code", apperrors.CodeStaleTransition,
				)
			}
			return &model.TransitionResult{Hold: current, Applied: false}, nil
		}

		err = s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
			if err := s.repo.UpdateActive(ctx, updated, current.Version); err != nil {
				return err
			}
			if err := s.settleCapacity(ctx, updated); err != nil {
				return err
			}
			return s.repo.AppendEvent(ctx, evt)
		})
		if err == nil {
			s.cfg.Log.Info("Capacity hold updated successfully",
				"hold_id", updated.ID,
				"tenant_id", tenantID,
				"event", evt.Type,
				"status", updated.Status,
				"version", updated.Version,
			)
			events.PublishAsync(ctx, s.publisher, s.cfg.Log, events.NewHoldEvent(updated, evt))
			return &model.TransitionResult{Hold: updated, Applied: true}, nil
		}

		if !errors.Is(err, holderrors.ErrVersionConflict) {
			if apperrors.IsAppError(err) {
				return nil, err
			}
			s.cfg.Log.Error("Failed to update capacity hold", "hold_id", holdID, "event", evt.Type, "error", err)
			return nil, apperrors.Internal("Failed to update capacity hold", err)
		}
		if attempt >= attempts {
			s.cfg.Log.Warn("Hold update retries exhausted", "hold_id", holdID, "attempts", attempt)
			return nil, apperrors.StorageConflict("Hold was modified concurrently, retry the request", err)
		}

		s.cfg.Log.Debug("Hold version conflict, retrying", "hold_id", holdID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil, apperrors.Timeout("Hold update was cancelled")
		case <-time.After(time.Duration(attempt) * transitionBackoff):
		}
	}
}

// settleCapacity moves the hold's allocations along with a terminal transition.
func (s *holdService) settleCapacity(ctx context.Context, hold *model.CapacityHold) error {
	if !hold.Reserves() || len(hold.PoolIDs) == 0 {
		return nil
	}
	switch hold.Status {
	case model.HoldConsumed:
		return s.ledger.Commit(ctx, hold.TenantID, hold.ID)
	case model.HoldReleased, model.HoldCancelled, model.HoldExpired:
		return s.ledger.Release(ctx, hold.TenantID, hold.ID)
	default:
		return nil
	}
}

// compensate drops allocations a failed creation may have left behind on stores without transactions.
func (s *holdService) compensate(ctx context.Context, hold *model.CapacityHold) {
	if err := s.ledger.Release(context.WithoutCancel(ctx), hold.TenantID, hold.ID); err != nil {
		s.cfg.Log.Error("Failed to release allocations of a failed hold", "hold_id", hold.ID, "error", err)
	}
}

// findReplay returns the hold previously created under the request's key, if any.
func (s *holdService) findReplay(ctx context.Context, req *model.CreateHoldRequest) (*model.CapacityHold, error) {
	if req.RequestKey == "" {
		return nil, nil
	}
	existing, err := s.repo.FindByRequestKey(ctx, req.TenantID, req.RequestKey)
	if errors.Is(err, holderrors.ErrHoldNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to look up hold request key", err)
	}
	s.cfg.Log.Info("Hold request key replayed",
		"hold_id", existing.ID,
		"tenant_id", req.TenantID,
		"request_key", req.RequestKey,
	)
	return existing, nil
}

func (s *holdService) checkPolicy(p *model.CapacityHoldPolicy, req *model.CreateHoldRequest) (int, error) {
	if !p.Allows(req.EffectMode) {
		return 0, apperrors.PolicyDisallowed(p.ID, "allow_"+string(req.EffectMode)+"_holds",
			fmt.Sprintf("Policy does not allow %s holds", req.EffectMode))
	}

	lifetime := req.DurationMin
	if lifetime == 0 {
		lifetime = p.DefaultHoldDurationMin
	}
	if lifetime == 0 {
		lifetime = s.cfg.DefaultHoldDurationMin
	}
	if lifetime < p.MinHoldDurationMin {
		return 0, apperrors.PolicyDisallowed(p.ID, "min_hold_duration_min",
			fmt.Sprintf("Hold duration of %d min is below the minimum of %d min", lifetime, p.MinHoldDurationMin))
	}
	if p.MaxHoldDurationMin > 0 && lifetime > p.MaxHoldDurationMin {
		return 0, apperrors.PolicyDisallowed(p.ID, "max_hold_duration_min",
			fmt.Sprintf("Hold duration of %d min exceeds the maximum of %d min", lifetime, p.MaxHoldDurationMin))
	}

	if req.EffectMode == model.EffectBlocking && p.RequirePaymentIntentForBlockingHold {
		if req.PaymentIntentRef == "" {
			return 0, apperrors.PolicyDisallowed(p.ID, "require_payment_intent_for_blocking_hold",
				"Blocking holds require a payment intent")
		}
		if req.PreauthAmountMinor < p.MinPreauthAmountMinor {
			return 0, apperrors.PolicyDisallowed(p.ID, "min_preauth_amount_minor",
				fmt.Sprintf("Preauthorized amount %d is below the required %d", req.PreauthAmountMinor, p.MinPreauthAmountMinor))
		}
	}
	return lifetime, nil
}

// checkOwnerCaps runs under the owner lock so concurrent creations see each other's holds.
func (s *holdService) checkOwnerCaps(ctx context.Context, p *model.CapacityHoldPolicy, req *model.CreateHoldRequest) error {
	if req.Owner == nil {
		return nil
	}
	if p.MaxActiveHoldsPerOwner == 0 && p.MaxActiveBlockingHoldsPerOwner == 0 && p.MaxActiveNonBlockingHoldsPerOwner == 0 {
		return nil
	}

	counts, err := s.repo.CountActiveByOwner(ctx, req.TenantID, req.Owner.Key(), s.clock.Now())
	if err != nil {
		return apperrors.Internal("Failed to count active holds", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	switch {
	case p.MaxActiveHoldsPerOwner > 0 && total >= p.MaxActiveHoldsPerOwner:
		return apperrors.PolicyDisallowed(p.ID, "max_active_holds_per_owner",
			fmt.Sprintf("Owner already has %d active holds", total))
	case req.EffectMode == model.EffectBlocking && p.MaxActiveBlockingHoldsPerOwner > 0 &&
		counts[model.EffectBlocking] >= p.MaxActiveBlockingHoldsPerOwner:
		return apperrors.PolicyDisallowed(p.ID, "max_active_blocking_holds_per_owner",
			fmt.Sprintf("Owner already has %d active blocking holds", counts[model.EffectBlocking]))
	case req.EffectMode == model.EffectNonBlocking && p.MaxActiveNonBlockingHoldsPerOwner > 0 &&
		counts[model.EffectNonBlocking] >= p.MaxActiveNonBlockingHoldsPerOwner:
		return apperrors.PolicyDisallowed(p.ID, "max_active_non_blocking_holds_per_owner",
			fmt.Sprintf("Owner already has %d active non-blocking holds", counts[model.EffectNonBlocking]))
	}
	return nil
}

func (s *holdService) checkCalendar(ctx context.Context, req *model.CreateHoldRequest, window model.Window) (*model.Verdict, error) {
	if s.checker == nil {
		return nil, nil
	}
	verdict, err := s.checker.Evaluate(ctx, req.TenantID, req.Target.ID, window, s.clock.Now())
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		s.cfg.Log.Error("Failed to evaluate hold calendar", "calendar_id", req.Target.ID, "error", err)
		return nil, apperrors.Unavailable("Availability service")
	}
	if verdict.Available {
		return verdict, nil
	}

	var blocked []string
	for _, d := range verdict.Dependencies {
		if !d.Satisfied && d.EnforcementMode == model.EnforceHardBlock {
			blocked = append(blocked, d.RuleID)
		}
	}
	if len(blocked) > 0 {
		return nil, apperrors.DependencyUnsatisfied(req.Target.ID, blocked)
	}
	return nil, apperrors.Conflict("Calendar is not available for the requested window")
}

// checkOverlap runs under the target lock. A strict calendar takes one blocking hold per window.
func (s *holdService) checkOverlap(ctx context.Context, req *model.CreateHoldRequest, window model.Window) error {
	n, err := s.repo.CountOverlappingBlocking(ctx, req.TenantID, req.Target.Key(), window, s.clock.Now())
	if err != nil {
		return apperrors.Internal("Failed to count overlapping holds", err)
	}
	if n > 0 {
		s.cfg.Log.Tenant(req.TenantID).Warn("Hold overlaps a blocking hold on a strict calendar",
			"calendar_id", req.Target.ID,
			"overlapping", n,
		)
		return apperrors.Conflict("Calendar already has a blocking hold overlapping the requested window")
	}
	return nil
}

func (s *holdService) newHold(req *model.CreateHoldRequest, p *model.CapacityHoldPolicy, lifetimeMin int) *model.CapacityHold {
	now := s.clock.Now()
	expiresAt := now.Add(time.Duration(lifetimeMin) * time.Minute)
	snapshot := *p

	return &model.CapacityHold{
		ID:                 uuid.NewString(),
		TenantID:           req.TenantID,
		Target:             req.Target,
		TargetKey:          req.Target.Key(),
		Owner:              req.Owner,
		OwnerKey:           req.Owner.Key(),
		EffectMode:         req.EffectMode,
		Status:             model.HoldActive,
		Quantity:           req.Quantity,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		ExpiresAt:          &expiresAt,
		RequestKey:         req.RequestKey,
		PolicyID:           p.ID,
		PolicySnapshot:     &snapshot,
		PaymentIntentRef:   req.PaymentIntentRef,
		PreauthAmountMinor: req.PreauthAmountMinor,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *holdService) sanitize(req *model.CreateHoldRequest) {
	req.Target.ID = sanitizer.NormalizeKey(req.Target.ID)
	if req.Owner != nil {
		req.Owner.ID = sanitizer.NormalizeKey(req.Owner.ID)
	}
	req.RequestKey = sanitizer.NormalizeKey(req.RequestKey)
	req.PaymentIntentRef = sanitizer.NormalizeKey(req.PaymentIntentRef)
	req.StartsAt = req.StartsAt.UTC()
	req.EndsAt = req.EndsAt.UTC()
	if req.Actor.Type == "" {
		req.Actor.Type = model.ActorUser
		if req.Owner != nil {
			req.Actor.ID = req.Owner.ID
		}
	}
}

func (s *holdService) mapError(err error, id string) error {
	switch {
	case errors.Is(err, holderrors.ErrHoldNotFound):
		return apperrors.NotFoundWithID("Capacity hold", id)
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Internal("Failed to retrieve capacity hold", err)
	}
}

// policyScopes adds the hold target itself to the caller's scope set. Every hold
// target type is also a policy scope level.
func policyScopes(req *model.CreateHoldRequest) []model.PolicyScope {
	scopes := make([]model.PolicyScope, 0, len(req.PolicyScopes)+1)
	scopes = append(scopes, req.PolicyScopes...)
	return append(scopes, model.PolicyScope{Type: model.ScopeType(req.Target.Type), ID: req.Target.ID})
}

// lockKeys serializes creations that share a request key, an owner, a target or a pool.
func lockKeys(req *model.CreateHoldRequest, shares []capacityservice.Share) []string {
	keys := []string{"hold_target:" + req.TenantID + ":" + req.Target.Key()}
	if req.RequestKey != "" {
		keys = append(keys, "hold_request:"+req.TenantID+":"+req.RequestKey)
	}
	if req.Owner != nil {
		keys = append(keys, "hold_owner:"+req.TenantID+":"+req.Owner.Key())
	}
	for _, sh := range shares {
		keys = append(keys, capacityservice.LockKey(sh.Pool.ID))
	}
	return keys
}

func newEvent(hold *model.CapacityHold, t model.HoldEventType, previous model.HoldStatus, actor model.Actor, reason string) *model.CapacityHoldEvent {
	return &model.CapacityHoldEvent{
		ID:                 uuid.NewString(),
		TenantID:           hold.TenantID,
		HoldID:             hold.ID,
		Type:               t,
		PreviousStatus:     previous,
		NextStatus:         hold.Status,
		PreviousEffectMode: hold.EffectMode,
		NextEffectMode:     hold.EffectMode,
		PreviousQuantity:   hold.Quantity,
		NextQuantity:       hold.Quantity,
		Actor:              actor,
		Reason:             reason,
		CreatedAt:          hold.UpdatedAt,
	}
}

func eventTypeFor(status model.HoldStatus) model.HoldEventType {
	switch status {
	case model.HoldReleased:
		return model.HoldEventReleased
	case model.HoldConsumed:
		return model.HoldEventConsumed
	case model.HoldCancelled:
		return model.HoldEventCancelled
	default:
		return model.HoldEventExpired
	}
}

func lockError(err error) error {
	if errors.Is(err, lock.ErrLockContention) {
		return apperrors.StorageConflict("Hold target is busy, retry the request", err)
	}
	return apperrors.Internal("Failed to lock hold target", err)
}
