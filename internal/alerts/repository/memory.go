package repository

import (
	"context"
	alerterrors "slotkeeper/internal/alerts/errors"
	"slotkeeper/pkg/model"
	"sort"
	"sync"
)

// MemoryAlertRepository keeps alerts in a map. Used by tests and single-node runs.
type MemoryAlertRepository struct {
	mu     sync.Mutex
	alerts map[string]model.DemandAlert
}

func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{alerts: make(map[string]model.DemandAlert)}
}

func (r *MemoryAlertRepository) Create(ctx context.Context, alert *model.DemandAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.ID] = *alert
	return nil
}

func (r *MemoryAlertRepository) Update(ctx context.Context, alert *model.DemandAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.alerts[alert.ID]; !ok || stored.TenantID != alert.TenantID {
		return alerterrors.ErrAlertNotFound
	}
	r.alerts[alert.ID] = *alert
	return nil
}

func (r *MemoryAlertRepository) FindByID(ctx context.Context, tenantID, id string) (*model.DemandAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.TenantID != tenantID {
		return nil, alerterrors.ErrAlertNotFound
	}
	return &a, nil
}

func (r *MemoryAlertRepository) FindLive(ctx context.Context, tenantID, targetKey string) (*model.DemandAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.DemandAlert
	for _, a := range r.alerts {
		if a.TenantID == tenantID && a.TargetKey == targetKey && a.IsLive() {
			if found == nil || a.OpenedAt.After(found.OpenedAt) {
				found = &a
			}
		}
	}
	if found == nil {
		return nil, alerterrors.ErrAlertNotFound
	}
	return found, nil
}

func (r *MemoryAlertRepository) List(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var alerts []*model.DemandAlert
	for _, a := range r.alerts {
		if a.TenantID == tenantID && (status == "" || a.Status == status) {
			alerts = append(alerts, &a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].UpdatedAt.Equal(alerts[j].UpdatedAt) {
			return alerts[i].UpdatedAt.After(alerts[j].UpdatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
	total := int64(len(alerts))
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+int64(limit), total)
	return alerts[offset:end], total, nil
}

func (r *MemoryAlertRepository) ListLive(ctx context.Context, limit int) ([]*model.DemandAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var alerts []*model.DemandAlert
	for _, a := range r.alerts {
		if a.IsLive() {
			alerts = append(alerts, &a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].UpdatedAt.Equal(alerts[j].UpdatedAt) {
			return alerts[i].UpdatedAt.Before(alerts[j].UpdatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}
