package repository

import (
	"context"
	traceerrors "slotkeeper/internal/traces/errors"
	"slotkeeper/pkg/model"
	"sort"
	"sync"
)

type MemoryRunRepository struct {
	mu   sync.Mutex
	runs map[string]model.AvailabilityResolutionRun
	// Err fails every write when set.
	Err error
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]model.AvailabilityResolutionRun)}
}

func (r *MemoryRunRepository) Insert(ctx context.Context, run *model.AvailabilityResolutionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.runs[run.ID]; !ok {
		r.runs[run.ID] = *run
	}
	return nil
}

func (r *MemoryRunRepository) FindByID(ctx context.Context, tenantID, id string) (*model.AvailabilityResolutionRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, traceerrors.ErrRunNotFound
	}
	return &run, nil
}

func (r *MemoryRunRepository) ListByCalendar(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.AvailabilityResolutionRun, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var runs []*model.AvailabilityResolutionRun
	for _, run := range r.runs {
		if run.TenantID == tenantID && run.CalendarID == calendarID {
			runs = append(runs, &run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})

	total := int64(len(runs))
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+int64(limit), total)
	return runs[offset:end], total, nil
}

func (r *MemoryRunRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
