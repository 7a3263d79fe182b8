package handler

import (
	"net/http"
	"slotkeeper/internal/traces/service"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type RunHandler struct {
	service service.RunService
	log     *logger.Logger
}

func NewRunHandler(service service.RunService, log *logger.Logger) *RunHandler {
	return &RunHandler{
		service: service,
		log:     log,
	}
}

func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "GetByID", err)
		return
	}

	run, err := h.service.GetByID(r.Context(), tenantID, ps.ByName("id"))
	if err != nil {
		h.fail(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, run); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RunHandler) ListByCalendar(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "ListByCalendar", err)
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.fail(w, "ListByCalendar", err)
		return
	}

	runs, total, err := h.service.ListByCalendar(r.Context(), tenantID, ps.ByName("id"), limit, offset)
	if err != nil {
		h.fail(w, "ListByCalendar", err)
		return
	}

	if err := httputil.WritePaginated(w, runs, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListByCalendar", "operation", "WritePaginated", "error", err)
	}
}

func (h *RunHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/calendars/:id/resolution-runs", h.ListByCalendar)
	router.GET("/api/v1/resolution-runs/:id", h.GetByID)
}

func (h *RunHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
