package service

import (
	"context"
	"errors"
	holderrors "slotkeeper/internal/holds/errors"
	"slotkeeper/internal/holds/policy"
	"slotkeeper/internal/holds/repository"
	"slotkeeper/internal/holds/validator"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"

	"github.com/google/uuid"
)

type PolicyService interface {
	Create(ctx context.Context, p *model.CapacityHoldPolicy) error
	GetByID(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error)
	List(ctx context.Context, tenantID string, limit int, offset int64) ([]*model.CapacityHoldPolicy, int64, error)
	// Activate makes the policy the single active one of its scope, retiring the previous holder.
	Activate(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error)
	Deactivate(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error)
	// Resolve returns the effective policy for scopes, or the configured default when none applies.
	Resolve(ctx context.Context, tenantID string, scopes []model.PolicyScope) (*model.CapacityHoldPolicy, error)
}

type policyService struct {
	repo      repository.PolicyRepository
	validator *validator.HoldValidator
	clock     clock.Clock
	cfg       *config.Config
}

func NewPolicyService(repo repository.PolicyRepository, validator *validator.HoldValidator, clk clock.Clock, cfg *config.Config) PolicyService {
	return &policyService{
		repo:      repo,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *policyService) Create(ctx context.Context, p *model.CapacityHoldPolicy) error {
	now := s.clock.Now()
	p.ID = uuid.NewString()
	p.Name = sanitizer.NormalizeName(p.Name)
	p.Scope.ID = sanitizer.NormalizeKey(p.Scope.ID)
	p.ScopeKey = p.Scope.Key()
	if p.Status == "" {
		p.Status = model.PolicyDraft
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.validator.ValidatePolicy(p); err != nil {
		s.cfg.Log.Warn("Hold policy validation failed",
			"tenant_id", p.TenantID,
			"scope", p.ScopeKey,
			"error", err,
		)
		return apperrors.Validation("Hold policy validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	err := s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if p.Status == model.PolicyActive {
			if err := s.retireActive(ctx, p); err != nil {
				return err
			}
		}
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return s.writeError(err, "create", p)
	}

	s.cfg.Log.Info("Hold policy created successfully",
		"id", p.ID,
		"tenant_id", p.TenantID,
		"scope", p.ScopeKey,
		"status", p.Status,
		"priority", p.Priority,
	)
	return nil
}

func (s *policyService) GetByID(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Policy ID cannot be empty")
	}
	p, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, holderrors.ErrPolicyNotFound) {
			return nil, apperrors.NotFoundWithID("Hold policy", id)
		}
		return nil, apperrors.Internal("Failed to retrieve hold policy", err)
	}
	return p, nil
}

func (s *policyService) List(ctx context.Context, tenantID string, limit int, offset int64) ([]*model.CapacityHoldPolicy, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)
	policies, total, err := s.repo.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list hold policies", err)
	}
	return policies, total, nil
}

func (s *policyService) Activate(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error) {
	return s.setStatus(ctx, tenantID, id, model.PolicyActive)
}

func (s *policyService) Deactivate(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error) {
	return s.setStatus(ctx, tenantID, id, model.PolicyInactive)
}

func (s *policyService) setStatus(ctx context.Context, tenantID, id, status string) (*model.CapacityHoldPolicy, error) {
	p, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PolicyArchived {
		return nil, apperrors.Conflict("Archived hold policies cannot change status")
	}
	if p.Status == status {
		return p, nil
	}

	p.Status = status
	p.UpdatedAt = s.clock.Now()
	err = s.repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if status == model.PolicyActive {
			if err := s.retireActive(ctx, p); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, p)
	})
	if err != nil {
		return nil, s.writeError(err, "update", p)
	}

	s.cfg.Log.Info("Hold policy status changed",
		"id", p.ID,
		"tenant_id", tenantID,
		"scope", p.ScopeKey,
		"status", status,
	)
	return p, nil
}

// retireActive moves the scope's current active policy, if any, to inactive.
func (s *policyService) retireActive(ctx context.Context, p *model.CapacityHoldPolicy) error {
	current, err := s.repo.FindActiveByScopeKey(ctx, p.TenantID, p.ScopeKey)
	if errors.Is(err, holderrors.ErrPolicyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.ID == p.ID {
		return nil
	}
	current.Status = model.PolicyInactive
	current.UpdatedAt = p.UpdatedAt
	s.cfg.Log.Info("Retiring active hold policy", "id", current.ID, "scope", current.ScopeKey, "replaced_by", p.ID)
	return s.repo.Update(ctx, current)
}

func (s *policyService) Resolve(ctx context.Context, tenantID string, scopes []model.PolicyScope) (*model.CapacityHoldPolicy, error) {
	candidates, err := s.repo.FindActiveByScopeKeys(ctx, tenantID, policy.ScopeKeys(scopes))
	if err != nil {
		return nil, apperrors.Internal("Failed to load hold policies", err)
	}

	resolved := policy.Resolve(candidates, scopes, s.clock.Now())
	if resolved == nil {
		resolved = policy.Default(s.cfg, tenantID)
	}
	s.cfg.Log.Debug("Hold policy resolved",
		"tenant_id", tenantID,
		"policy_id", resolved.ID,
		"scope", resolved.ScopeKey,
		"candidates", len(candidates),
	)
	return resolved, nil
}

func (s *policyService) writeError(err error, op string, p *model.CapacityHoldPolicy) error {
	if errors.Is(err, holderrors.ErrActivePolicyExists) {
		return apperrors.Conflict("Scope already has an active hold policy")
	}
	if errors.Is(err, holderrors.ErrPolicyNotFound) {
		return apperrors.NotFoundWithID("Hold policy", p.ID)
	}
	s.cfg.Log.Error("Failed to write hold policy",
		"operation", op,
		"id", p.ID,
		"tenant_id", p.TenantID,
		"error", err,
	)
	return apperrors.Internal("Failed to save hold policy", err)
}
