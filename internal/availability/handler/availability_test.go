package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slotkeeper/internal/availability/service"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

type mockAvailabilityService struct {
	evaluateFunc func(ctx context.Context, tenantID, calendarID string, w model.Window, ectx model.EvaluationContext) (*model.Verdict, error)
}

func (m *mockAvailabilityService) Evaluate(ctx context.Context, tenantID, calendarID string, w model.Window, ectx model.EvaluationContext) (*model.Verdict, error) {
	return m.evaluateFunc(ctx, tenantID, calendarID, w, ectx)
}

func (m *mockAvailabilityService) CheckDependencies(ctx context.Context, tenantID, calendarID string, w model.Window) (bool, []model.DependencyResult, error) {
	return true, nil, nil
}

func (m *mockAvailabilityService) Compose(ctx context.Context, tenantID, calendarID string) (*service.RuleSet, error) {
	return &service.RuleSet{}, nil
}

func newTestRouter(svc service.AvailabilityService) *httprouter.Router {
	router := httprouter.New()
	log := logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
	NewAvailabilityHandler(svc, log).RegisterRoutes(router)
	return router
}

func TestAvailabilityHandler_Evaluate(t *testing.T) {
	var gotTenant, gotCalendar string
	var gotWindow model.Window
	var gotCtx model.EvaluationContext

	svc := &mockAvailabilityService{
		evaluateFunc: func(ctx context.Context, tenantID, calendarID string, w model.Window, ectx model.EvaluationContext) (*model.Verdict, error) {
			gotTenant, gotCalendar, gotWindow, gotCtx = tenantID, calendarID, w, ectx
			return &model.Verdict{CalendarID: calendarID, Window: w, Available: true, Status: model.StateAvailable}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/calendars/cal-1/availability?start=2026-03-02T10:00:00Z&end=2026-03-02T11:00:00Z&slot_aligned=true&now=2026-03-01T09:00:00Z", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotTenant != "tenant-1" || gotCalendar != "cal-1" {
		t.Errorf("unexpected scope tenant=%q calendar=%q", gotTenant, gotCalendar)
	}
	if want := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC); !gotWindow.Start.Equal(want) {
		t.Errorf("window start = %v, want %v", gotWindow.Start, want)
	}
	if !gotCtx.RequireSlotAlignment {
		t.Error("expected slot_aligned to be forwarded")
	}
	if want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC); gotCtx.Now == nil || !gotCtx.Now.Equal(want) {
		t.Errorf("now = %v, want %v", gotCtx.Now, want)
	}

	var body struct {
		Data model.Verdict `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !body.Data.Available {
		t.Error("expected available verdict in response")
	}
}

func TestAvailabilityHandler_EvaluateErrors(t *testing.T) {
	svc := &mockAvailabilityService{
		evaluateFunc: func(ctx context.Context, tenantID, calendarID string, w model.Window, ectx model.EvaluationContext) (*model.Verdict, error) {
			return nil, apperrors.NotFoundWithID("Calendar", calendarID)
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		name   string
		url    string
		tenant string
		status int
	}{
		{"missing tenant", "/api/v1/calendars/cal-1/availability?start=2026-03-02T10:00:00Z&end=2026-03-02T11:00:00Z", "", http.StatusBadRequest},
		{"bad start", "/api/v1/calendars/cal-1/availability?start=monday&end=2026-03-02T11:00:00Z", "tenant-1", http.StatusBadRequest},
		{"bad flag", "/api/v1/calendars/cal-1/availability?start=2026-03-02T10:00:00Z&end=2026-03-02T11:00:00Z&skip_dependencies=maybe", "tenant-1", http.StatusBadRequest},
		{"service error", "/api/v1/calendars/cal-9/availability?start=2026-03-02T10:00:00Z&end=2026-03-02T11:00:00Z", "tenant-1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.tenant != "" {
				req.Header.Set("X-Tenant-ID", tt.tenant)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}
