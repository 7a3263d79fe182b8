package handler

import (
	"net/http"
	capacityservice "slotkeeper/internal/capacity/service"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"time"

	"github.com/julienschmidt/httprouter"
)

type PoolHandler struct {
	ledger capacityservice.Ledger
	log    *logger.Logger
}

func NewPoolHandler(ledger capacityservice.Ledger, log *logger.Logger) *PoolHandler {
	return &PoolHandler{
		ledger: ledger,
		log:    log,
	}
}

type reserveRequest struct {
	HoldID   string    `json:"hold_id"`
	Quantity int       `json:"quantity"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type reserveResponse struct {
	HoldID    string `json:"hold_id"`
	Remaining int    `json:"remaining"`
}

func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "CreatePool", err)
		return
	}

	var pool model.CapacityPool
	if err := httputil.DecodeJSON(r, &pool); err != nil {
		h.fail(w, "CreatePool", err)
		return
	}
	pool.TenantID = tenantID

	if err := h.ledger.CreatePool(r.Context(), &pool); err != nil {
		h.fail(w, "CreatePool", err)
		return
	}

	if err := httputil.WriteCreated(w, pool); err != nil {
		h.log.Error("failed to write created response", "handler", "CreatePool", "operation", "WriteCreated", "error", err)
	}
}

func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "GetPool", err)
		return
	}

	pool, err := h.ledger.GetPool(r.Context(), tenantID, ps.ByName("id"))
	if err != nil {
		h.fail(w, "GetPool", err)
		return
	}

	if err := httputil.WriteSuccess(w, pool); err != nil {
		h.log.Error("failed to write success response", "handler", "GetPool", "operation", "WriteSuccess", "error", err)
	}
}

func (h *PoolHandler) AddMember(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "AddMember", err)
		return
	}

	var m model.CapacityPoolMember
	if err := httputil.DecodeJSON(r, &m); err != nil {
		h.fail(w, "AddMember", err)
		return
	}
	m.TenantID = tenantID
	m.PoolID = ps.ByName("id")

	if err := h.ledger.AddMember(r.Context(), &m); err != nil {
		h.fail(w, "AddMember", err)
		return
	}

	if err := httputil.WriteCreated(w, m); err != nil {
		h.log.Error("failed to write created response", "handler", "AddMember", "operation", "WriteCreated", "error", err)
	}
}

// Availability answers GET /api/v1/pools/:id/availability?start=&end=
func (h *PoolHandler) Availability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Availability", err)
		return
	}
	window, err := httputil.ExtractWindow(r)
	if err != nil {
		h.fail(w, "Availability", err)
		return
	}

	avail, err := h.ledger.Availability(r.Context(), tenantID, ps.ByName("id"), window)
	if err != nil {
		h.fail(w, "Availability", err)
		return
	}

	if err := httputil.WriteSuccess(w, avail); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

// Reserve takes capacity directly from a pool for a reference the caller owns.
func (h *PoolHandler) Reserve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Reserve", err)
		return
	}

	var req reserveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Reserve", err)
		return
	}

	window := model.Window{Start: req.StartsAt.UTC(), End: req.EndsAt.UTC()}
	remaining, err := h.ledger.Reserve(r.Context(), tenantID, ps.ByName("id"), req.HoldID, req.Quantity, window)
	if err != nil {
		h.fail(w, "Reserve", err)
		return
	}

	if err := httputil.WriteCreated(w, reserveResponse{HoldID: req.HoldID, Remaining: remaining}); err != nil {
		h.log.Error("failed to write created response", "handler", "Reserve", "operation", "WriteCreated", "error", err)
	}
}

func (h *PoolHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Release", err)
		return
	}

	if err := h.ledger.Release(r.Context(), tenantID, ps.ByName("hold_id")); err != nil {
		h.fail(w, "Release", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *PoolHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/pools", h.CreatePool)
	router.GET("/api/v1/pools/:id", h.GetPool)
	router.POST("/api/v1/pools/:id/members", h.AddMember)
	router.GET("/api/v1/pools/:id/availability", h.Availability)
	router.POST("/api/v1/pools/:id/reservations", h.Reserve)
	router.DELETE("/api/v1/pools/:id/reservations/:hold_id", h.Release)
}

func (h *PoolHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
