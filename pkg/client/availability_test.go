package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"testing"
	"time"
)

func TestAvailabilityClient_Evaluate(t *testing.T) {
	start := time.Date(2026, 6, 3, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	var gotPath, gotTenant string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTenant = r.Header.Get(TenantHeader)
		gotQuery = map[string]string{
			"start": r.URL.Query().Get("start"),
			"end":   r.URL.Query().Get("end"),
			"now":   r.URL.Query().Get("now"),
		}
		if r.URL.Path == "/api/v1/calendars/missing/availability" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"calendar_id":"cal-1","status":"available","available":true,"strict_non_overlap":true}}`))
	}))
	defer srv.Close()

	c := NewAvailabilityClient(srv.URL, time.Second)
	window := model.Window{Start: start, End: start.Add(time.Hour)}

	verdict, err := c.Evaluate(context.Background(), "tenant-1", "cal-1", window, now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !verdict.Available || !verdict.StrictNonOverlap {
		t.Errorf("unexpected verdict %+v", verdict)
	}
	if gotPath != "/api/v1/calendars/cal-1/availability" || gotTenant != "tenant-1" {
		t.Errorf("unexpected request %s tenant=%q", gotPath, gotTenant)
	}
	want := map[string]string{
		"start": "2026-06-03T10:00:00Z",
		"end":   "2026-06-03T11:00:00Z",
		"now":   "2026-06-01T09:00:00Z",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}

	_, err = c.Evaluate(context.Background(), "tenant-1", "missing", window, now)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
