package service

import (
	"context"
	"errors"
	traceerrors "slotkeeper/internal/traces/errors"
	"slotkeeper/internal/traces/repository"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
)

type RunService interface {
	GetByID(ctx context.Context, tenantID, id string) (*model.AvailabilityResolutionRun, error)
	ListByCalendar(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.AvailabilityResolutionRun, int64, error)
}

type runService struct {
	repo repository.RunRepository
	cfg  *config.Config
}

func NewRunService(repo repository.RunRepository, cfg *config.Config) RunService {
	return &runService{repo: repo, cfg: cfg}
}

func (s *runService) GetByID(ctx context.Context, tenantID, id string) (*model.AvailabilityResolutionRun, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Run ID cannot be empty")
	}
	run, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, traceerrors.ErrRunNotFound) {
			return nil, apperrors.NotFoundWithID("Resolution run", id)
		}
		s.cfg.Log.Error("Failed to get resolution run", "run_id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve resolution run", err)
	}
	return run, nil
}

func (s *runService) ListByCalendar(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.AvailabilityResolutionRun, int64, error) {
	if calendarID == "" {
		return nil, 0, apperrors.InvalidInput("Calendar ID cannot be empty")
	}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	runs, total, err := s.repo.ListByCalendar(ctx, tenantID, calendarID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list resolution runs", "calendar_id", calendarID, "error", err)
		return nil, 0, apperrors.Internal("Failed to list resolution runs", err)
	}
	return runs, total, nil
}
