package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
)

type mockAlertService struct {
	getFunc         func(ctx context.Context, tenantID, id string) (*model.DemandAlert, error)
	listFunc        func(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error)
	acknowledgeFunc func(ctx context.Context, tenantID, id, by string) (*model.DemandAlert, error)
}

func (m *mockAlertService) Observe(ctx context.Context, hold *model.CapacityHold) (*model.DemandAlert, error) {
	return nil, nil
}

func (m *mockAlertService) Recompute(ctx context.Context) (int, error) { return 0, nil }

func (m *mockAlertService) Run(ctx context.Context) {}

func (m *mockAlertService) Acknowledge(ctx context.Context, tenantID, id, by string) (*model.DemandAlert, error) {
	return m.acknowledgeFunc(ctx, tenantID, id, by)
}

func (m *mockAlertService) GetByID(ctx context.Context, tenantID, id string) (*model.DemandAlert, error) {
	return m.getFunc(ctx, tenantID, id)
}

func (m *mockAlertService) List(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error) {
	return m.listFunc(ctx, tenantID, status, limit, offset)
}

func newAlertRouter(svc *mockAlertService) *httprouter.Router {
	router := httprouter.New()
	NewAlertHandler(svc, logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAlertHandler_List(t *testing.T) {
	var gotStatus model.AlertStatus
	svc := &mockAlertService{
		listFunc: func(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error) {
			gotStatus = status
			return []*model.DemandAlert{{ID: "a-1", TenantID: tenantID, Status: model.AlertOpen}}, 1, nil
		},
	}
	router := newAlertRouter(svc)

	tests := []struct {
		name       string
		query      string
		wantCode   int
		wantStatus model.AlertStatus
	}{
		{"all", "", http.StatusOK, ""},
		{"open only", "?status=open", http.StatusOK, model.AlertOpen},
		{"unknown status", "?status=snoozed", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStatus = ""
			rec := serve(router, http.MethodGet, "/api/v1/alerts"+tt.query, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if gotStatus != tt.wantStatus {
				t.Errorf("expected filter %q, got %q", tt.wantStatus, gotStatus)
			}
		})
	}
}

func TestAlertHandler_GetByID(t *testing.T) {
	svc := &mockAlertService{
		getFunc: func(ctx context.Context, tenantID, id string) (*model.DemandAlert, error) {
			if id != "a-1" {
				return nil, apperrors.NotFoundWithID("Demand alert", id)
			}
			return &model.DemandAlert{ID: id, TenantID: tenantID, Severity: model.SeverityHigh}, nil
		},
	}
	router := newAlertRouter(svc)

	rec := serve(router, http.MethodGet, "/api/v1/alerts/a-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data model.DemandAlert `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Data.Severity != model.SeverityHigh {
		t.Errorf("expected high severity, got %s", body.Data.Severity)
	}

	if rec := serve(router, http.MethodGet, "/api/v1/alerts/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAlertHandler_Acknowledge(t *testing.T) {
	var gotBy string
	svc := &mockAlertService{
		acknowledgeFunc: func(ctx context.Context, tenantID, id, by string) (*model.DemandAlert, error) {
			gotBy = by
			if id == "resolved" {
				return nil, apperrors.Conflict("Only open alerts can be acknowledged")
			}
			return &model.DemandAlert{ID: id, Status: model.AlertAcknowledged, AcknowledgedBy: by}, nil
		},
	}
	router := newAlertRouter(svc)

	tests := []struct {
		name     string
		id       string
		body     string
		wantCode int
	}{
		{"acknowledged", "a-1", `{"acknowledged_by":" ops@example.com "}`, http.StatusOK},
		{"missing actor", "a-1", `{}`, http.StatusBadRequest},
		{"unknown field", "a-1", `{"by":"ops"}`, http.StatusBadRequest},
		{"settled alert", "resolved", `{"acknowledged_by":"ops"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodPost, "/api/v1/alerts/"+tt.id+"/acknowledge", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
	if gotBy != "ops" {
		t.Errorf("expected the last actor passed through, got %q", gotBy)
	}
}
