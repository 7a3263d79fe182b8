package service

import (
	"context"
	"io"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"time"
)

// ────────────────────────────────────────────────
// In-memory repositories for testing
// ────────────────────────────────────────────────

type memCalendarRepository struct {
	mu        sync.Mutex
	calendars map[string]*model.Calendar
	bindings  []*model.CalendarBinding
	revisions []*model.CalendarRevision

	updateFunc func(ctx context.Context, cal *model.Calendar, expectedVersion int) error
}

func newMemCalendars(cals ...*model.Calendar) *memCalendarRepository {
	m := &memCalendarRepository{calendars: make(map[string]*model.Calendar)}
	for _, c := range cals {
		m.calendars[c.ID] = c
	}
	return m
}

func (m *memCalendarRepository) Create(ctx context.Context, cal *model.Calendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cal
	m.calendars[cal.ID] = &c
	return nil
}

func (m *memCalendarRepository) FindByID(ctx context.Context, tenantID, id string) (*model.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calendars[id]
	if !ok || c.TenantID != tenantID {
		return nil, availabilityerrors.ErrCalendarNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCalendarRepository) Update(ctx context.Context, cal *model.Calendar, expectedVersion int) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, cal, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.calendars[cal.ID]
	if !ok || cur.Version != expectedVersion {
		return availabilityerrors.ErrVersionConflict
	}
	c := *cal
	m.calendars[cal.ID] = &c
	return nil
}

func (m *memCalendarRepository) AppendRevision(ctx context.Context, rev *model.CalendarRevision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions = append(m.revisions, rev)
	return nil
}

func (m *memCalendarRepository) ListRevisions(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.CalendarRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CalendarRevision
	for i := len(m.revisions) - 1; i >= 0; i-- {
		if m.revisions[i].CalendarID == calendarID {
			out = append(out, m.revisions[i])
		}
	}
	return out, nil
}

func (m *memCalendarRepository) CreateBinding(ctx context.Context, b *model.CalendarBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bindings {
		if b.IsPrimary && existing.IsPrimary && existing.IsActive && existing.OwnerRefKey == b.OwnerRefKey {
			return availabilityerrors.ErrDuplicatePrimaryBinding
		}
	}
	m.bindings = append(m.bindings, b)
	return nil
}

func (m *memCalendarRepository) FindPrimaryBinding(ctx context.Context, tenantID, ownerKey string) (*model.CalendarBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bindings {
		if b.TenantID == tenantID && b.OwnerRefKey == ownerKey && b.IsPrimary && b.IsActive {
			return b, nil
		}
	}
	return nil, availabilityerrors.ErrNotFound
}

func (m *memCalendarRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return mongotx.NoopTransactionManager{}.ExecuteTransaction(ctx, fn)
}

type memRuleRepository struct {
	mu         sync.Mutex
	overlays   []*model.Overlay
	rules      []*model.AvailabilityRule
	exclusions []*model.RuleExclusion
	templates  map[string]*model.RuleTemplate
	bindings   []*model.TemplateBinding
}

func newMemRules() *memRuleRepository {
	return &memRuleRepository{templates: make(map[string]*model.RuleTemplate)}
}

func (m *memRuleRepository) CreateOverlay(ctx context.Context, o *model.Overlay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlays = append(m.overlays, o)
	return nil
}

func (m *memRuleRepository) ListOverlays(ctx context.Context, tenantID, calendarID string) ([]*model.Overlay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Overlay
	for _, o := range m.overlays {
		if o.CalendarID == calendarID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memRuleRepository) CreateRule(ctx context.Context, rule *model.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return nil
}

func (m *memRuleRepository) FindRule(ctx context.Context, tenantID, id string) (*model.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, availabilityerrors.ErrRuleNotFound
}

func (m *memRuleRepository) SetRuleActive(ctx context.Context, tenantID, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			r.IsActive = active
			return nil
		}
	}
	return availabilityerrors.ErrRuleNotFound
}

func (m *memRuleRepository) ListActiveRules(ctx context.Context, tenantID, calendarID string) ([]*model.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AvailabilityRule
	for _, r := range m.rules {
		if r.CalendarID == calendarID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRuleRepository) CreateExclusion(ctx context.Context, ex *model.RuleExclusion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exclusions = append(m.exclusions, ex)
	return nil
}

func (m *memRuleRepository) ListExclusions(ctx context.Context, tenantID, calendarID string) ([]*model.RuleExclusion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RuleExclusion
	for _, ex := range m.exclusions {
		if ex.CalendarID == calendarID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (m *memRuleRepository) CreateTemplate(ctx context.Context, tpl *model.RuleTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *memRuleRepository) FindTemplate(ctx context.Context, tenantID, id string) (*model.RuleTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, availabilityerrors.ErrTemplateNotFound
	}
	return tpl, nil
}

func (m *memRuleRepository) CreateTemplateBinding(ctx context.Context, b *model.TemplateBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, b)
	return nil
}

func (m *memRuleRepository) ListActiveTemplateBindings(ctx context.Context, tenantID, calendarID string) ([]*model.TemplateBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TemplateBinding
	for _, b := range m.bindings {
		if b.CalendarID == calendarID && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

type memDependencyRepository struct {
	mu    sync.Mutex
	rules []*model.DependencyRule
}

func (m *memDependencyRepository) Create(ctx context.Context, rule *model.DependencyRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return nil
}

func (m *memDependencyRepository) ListActiveByCalendar(ctx context.Context, tenantID, calendarID string) ([]*model.DependencyRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DependencyRule
	for _, r := range m.rules {
		if r.DependentCalendarID == calendarID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memDependencyRepository) ListActive(ctx context.Context, tenantID string) ([]*model.DependencyRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DependencyRule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                 logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}),
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		DependencyMaxDepth:  1,
		MaxEvaluationWindow: 31 * 24 * time.Hour,
	}
}

type recordedRuns struct {
	mu   sync.Mutex
	runs []*model.AvailabilityResolutionRun
}

func (r *recordedRuns) Record(run *model.AvailabilityResolutionRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
}
