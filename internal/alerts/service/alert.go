package service

import (
	"context"
	"errors"
	alerterrors "slotkeeper/internal/alerts/errors"
	"slotkeeper/internal/alerts/repository"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/events"
	"slotkeeper/pkg/lock"
	"slotkeeper/pkg/model"
	"time"

	"github.com/google/uuid"
)

// liveBatch bounds one recompute pass.
const liveBatch = 1000

// PressureSource summarizes recent holds on a target.
type PressureSource interface {
	Pressure(ctx context.Context, tenantID, targetKey string, since, now time.Time) (*model.HoldPressure, error)
}

// PolicySource resolves the policy whose act-fast thresholds a target is measured against.
type PolicySource interface {
	Resolve(ctx context.Context, tenantID string, scopes []model.PolicyScope) (*model.CapacityHoldPolicy, error)
}

type AlertService interface {
	// Observe re-evaluates the target of a hold that was created or changed.
	Observe(ctx context.Context, hold *model.CapacityHold) (*model.DemandAlert, error)
	// Recompute re-evaluates every live alert and expires stale ones. It reports how many alerts changed.
	Recompute(ctx context.Context) (int, error)
	Run(ctx context.Context)

	Acknowledge(ctx context.Context, tenantID, id, by string) (*model.DemandAlert, error)
	GetByID(ctx context.Context, tenantID, id string) (*model.DemandAlert, error)
	List(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error)
}

type alertService struct {
	repo      repository.AlertRepository
	pressure  PressureSource
	policies  PolicySource
	locker    lock.Locker
	publisher events.Publisher
	clock     clock.Clock
	cfg       *config.Config
}

func NewAlertService(
	repo repository.AlertRepository,
	pressure PressureSource,
	policies PolicySource,
	locker lock.Locker,
	publisher events.Publisher,
	clk clock.Clock,
	cfg *config.Config,
) AlertService {
	return &alertService{
		repo:      repo,
		pressure:  pressure,
		policies:  policies,
		locker:    locker,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *alertService) Observe(ctx context.Context, hold *model.CapacityHold) (*model.DemandAlert, error) {
	p := hold.PolicySnapshot
	if p == nil {
		var err error
		if p, err = s.resolvePolicy(ctx, hold.TenantID, hold.Target); err != nil {
			return nil, err
		}
	}
	return s.evaluate(ctx, hold.TenantID, hold.Target, p)
}

func (s *alertService) Recompute(ctx context.Context) (int, error) {
	live, err := s.repo.ListLive(ctx, liveBatch)
	if err != nil {
		s.cfg.Log.Error("Failed to list live demand alerts", "error", err)
		return 0, apperrors.Internal("Failed to list live demand alerts", err)
	}

	changed := 0
	for _, a := range live {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		before := a.UpdatedAt

		var updated *model.DemandAlert
		if s.cfg.AlertMaxAge > 0 && s.clock.Now().Sub(a.UpdatedAt) >= s.cfg.AlertMaxAge {
			updated, err = s.expire(ctx, a)
		} else {
			var p *model.CapacityHoldPolicy
			if p, err = s.resolvePolicy(ctx, a.TenantID, a.Target); err == nil {
				updated, err = s.evaluate(ctx, a.TenantID, a.Target, p)
			}
		}
		if err != nil {
			s.cfg.Log.Warn("Failed to recompute demand alert",
				"alert_id", a.ID,
				"tenant_id", a.TenantID,
				"target", a.TargetKey,
				"error", err,
			)
			continue
		}
		if updated == nil || !updated.UpdatedAt.Equal(before) {
			changed++
		}
	}

	if changed > 0 {
		s.cfg.Log.Info("Demand alert recompute finished", "live", len(live), "changed", changed)
	}
	return changed, nil
}

// Run is the cron entry point.
func (s *alertService) Run(ctx context.Context) {
	if _, err := s.Recompute(ctx); err != nil {
		s.cfg.Log.Warn("Demand alert recompute stopped early", "error", err)
	}
}

func (s *alertService) Acknowledge(ctx context.Context, tenantID, id, by string) (*model.DemandAlert, error) {
	alert, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	unlock, err := lock.AcquireAll(ctx, s.locker, lockKey(tenantID, alert.TargetKey))
	if err != nil {
		return nil, lockError(err)
	}
	defer unlock()

	// re-read under the target lock
	if alert, err = s.GetByID(ctx, tenantID, id); err != nil {
		return nil, err
	}
	switch alert.Status {
	case model.AlertAcknowledged:
		return alert, nil
	case model.AlertOpen:
	default:
		return nil, apperrors.Conflict("Only open alerts can be acknowledged")
	}

	now := s.clock.Now()
	alert.Status = model.AlertAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = by
	alert.UpdatedAt = now
	if err := s.repo.Update(ctx, alert); err != nil {
		return nil, s.writeError(err, alert)
	}

	s.cfg.Log.Info("Demand alert acknowledged",
		"alert_id", alert.ID,
		"tenant_id", tenantID,
		"target", alert.TargetKey,
		"by", by,
	)
	events.PublishAsync(ctx, s.publisher, s.cfg.Log, events.NewAlertEvent(events.AlertAcknowledged, alert))
	return alert, nil
}

func (s *alertService) GetByID(ctx context.Context, tenantID, id string) (*model.DemandAlert, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Alert ID cannot be empty")
	}
	alert, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, alerterrors.ErrAlertNotFound) {
			return nil, apperrors.NotFoundWithID("Demand alert", id)
		}
		return nil, apperrors.Internal("Failed to retrieve demand alert", err)
	}
	return alert, nil
}

func (s *alertService) List(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)
	alerts, total, err := s.repo.List(ctx, tenantID, status, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list demand alerts", err)
	}
	return alerts, total, nil
}

// evaluate measures the target's recent hold pressure and opens, escalates, refreshes
// or resolves its live alert. It returns nil when the target has no live alert afterwards.
func (s *alertService) evaluate(ctx context.Context, tenantID string, target model.HoldTarget, p *model.CapacityHoldPolicy) (*model.DemandAlert, error) {
	th := thresholdsOf(p, s.cfg)
	targetKey := target.Key()

	unlock, err := lock.AcquireAll(ctx, s.locker, lockKey(tenantID, targetKey))
	if err != nil {
		return nil, lockError(err)
	}
	defer unlock()

	now := s.clock.Now()
	pressure, err := s.pressure.Pressure(ctx, tenantID, targetKey, now.Add(-th.window), now)
	if err != nil {
		return nil, apperrors.Internal("Failed to measure hold pressure", err)
	}
	severity, crossing := Classify(pressure, th.count, th.uniqueOwners)

	live, err := s.repo.FindLive(ctx, tenantID, targetKey)
	if errors.Is(err, alerterrors.ErrAlertNotFound) {
		live = nil
	} else if err != nil {
		return nil, apperrors.Internal("Failed to load demand alert", err)
	}

	if live == nil {
		if !crossing {
			return nil, nil
		}
		return s.open(ctx, tenantID, target, p.ID, pressure, severity, th, now)
	}

	next := *live
	next.BlockingCount = pressure.BlockingCount
	next.NonBlockingCount = pressure.NonBlockingCount
	next.UniqueOwnerCount = pressure.UniqueOwnerCount
	next.PressureScore = PressureScore(pressure)

	eventType := ""
	switch {
	case crossing:
		next.BelowThresholdSince = nil
		if severity.Exceeds(live.Severity) {
			next.Severity = severity
			next.Status = model.AlertOpen
			eventType = events.AlertEscalated
		}
	case live.BelowThresholdSince == nil:
		next.BelowThresholdSince = &now
	case now.Sub(*live.BelowThresholdSince) >= th.grace:
		next.Status = model.AlertResolved
		next.ResolvedAt = &now
		eventType = events.AlertResolved
	}

	if !changed(live, &next) {
		return live, nil
	}
	next.UpdatedAt = now
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, s.writeError(err, &next)
	}

	if eventType != "" {
		s.cfg.Log.Info("Demand alert "+eventType[len("alert."):],
			"alert_id", next.ID,
			"tenant_id", tenantID,
			"target", targetKey,
			"severity", next.Severity,
			"pressure_score", next.PressureScore,
		)
		events.PublishAsync(ctx, s.publisher, s.cfg.Log, events.NewAlertEvent(eventType, &next))
	}
	if !next.IsLive() {
		return nil, nil
	}
	return &next, nil
}

func (s *alertService) open(ctx context.Context, tenantID string, target model.HoldTarget, policyID string, pressure *model.HoldPressure, severity model.AlertSeverity, th thresholds, now time.Time) (*model.DemandAlert, error) {
	alert := &model.DemandAlert{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Target:           target,
		TargetKey:        target.Key(),
		PolicyID:         policyID,
		WindowStart:      now.Add(-th.window),
		WindowEnd:        now,
		BlockingCount:    pressure.BlockingCount,
		NonBlockingCount: pressure.NonBlockingCount,
		UniqueOwnerCount: pressure.UniqueOwnerCount,
		PressureScore:    PressureScore(pressure),
		Severity:         severity,
		Status:           model.AlertOpen,
		OpenedAt:         now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, s.writeError(err, alert)
	}

	s.cfg.Log.Info("Demand alert opened",
		"alert_id", alert.ID,
		"tenant_id", tenantID,
		"target", alert.TargetKey,
		"severity", severity,
		"pressure_score", alert.PressureScore,
	)
	events.PublishAsync(ctx, s.publisher, s.cfg.Log, events.NewAlertEvent(events.AlertOpened, alert))
	return alert, nil
}

func (s *alertService) expire(ctx context.Context, a *model.DemandAlert) (*model.DemandAlert, error) {
	unlock, err := lock.AcquireAll(ctx, s.locker, lockKey(a.TenantID, a.TargetKey))
	if err != nil {
		return nil, lockError(err)
	}
	defer unlock()

	now := s.clock.Now()
	a.Status = model.AlertExpired
	a.ExpiredAt = &now
	a.UpdatedAt = now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, s.writeError(err, a)
	}

	s.cfg.Log.Info("Demand alert expired", "alert_id", a.ID, "tenant_id", a.TenantID, "target", a.TargetKey)
	events.PublishAsync(ctx, s.publisher, s.cfg.Log, events.NewAlertEvent(events.AlertExpired, a))
	return nil, nil
}

func (s *alertService) resolvePolicy(ctx context.Context, tenantID string, target model.HoldTarget) (*model.CapacityHoldPolicy, error) {
	scope := model.PolicyScope{Type: model.ScopeType(target.Type), ID: target.ID}
	return s.policies.Resolve(ctx, tenantID, []model.PolicyScope{scope})
}

func (s *alertService) writeError(err error, a *model.DemandAlert) error {
	if errors.Is(err, alerterrors.ErrAlertNotFound) {
		return apperrors.NotFoundWithID("Demand alert", a.ID)
	}
	s.cfg.Log.Error("Failed to save demand alert",
		"alert_id", a.ID,
		"tenant_id", a.TenantID,
		"target", a.TargetKey,
		"error", err,
	)
	return apperrors.Internal("Failed to save demand alert", err)
}

func changed(before, after *model.DemandAlert) bool {
	if before.Status != after.Status || before.Severity != after.Severity {
		return true
	}
	if before.BlockingCount != after.BlockingCount ||
		before.NonBlockingCount != after.NonBlockingCount ||
		before.UniqueOwnerCount != after.UniqueOwnerCount {
		return true
	}
	return (before.BelowThresholdSince == nil) != (after.BelowThresholdSince == nil)
}

func lockKey(tenantID, targetKey string) string {
	return "demand_alert:" + tenantID + ":" + targetKey
}

func lockError(err error) error {
	if errors.Is(err, lock.ErrLockContention) {
		return apperrors.StorageConflict("Demand alert is busy, retry later", err)
	}
	return apperrors.Internal("Failed to lock demand alert", err)
}
