package handler

import (
	"net/http"
	"slotkeeper/internal/alerts/service"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"

	"github.com/julienschmidt/httprouter"
)

type AlertHandler struct {
	service service.AlertService
	log     *logger.Logger
}

func NewAlertHandler(service service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: service,
		log:     log,
	}
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

func (h *AlertHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "GetByID", err)
		return
	}

	alert, err := h.service.GetByID(r.Context(), tenantID, ps.ByName("id"))
	h.respond(w, "GetByID", alert, err)
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "List", err)
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.fail(w, "List", err)
		return
	}

	status := model.AlertStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.AlertOpen, model.AlertAcknowledged, model.AlertResolved, model.AlertExpired:
	default:
		h.fail(w, "List", apperrors.InvalidInput("Unknown alert status: "+string(status)))
		return
	}

	alerts, total, err := h.service.List(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		h.fail(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, alerts, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Acknowledge", err)
		return
	}

	var req acknowledgeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Acknowledge", err)
		return
	}
	if strings.TrimSpace(req.AcknowledgedBy) == "" {
		h.fail(w, "Acknowledge", apperrors.InvalidInput("acknowledged_by is required"))
		return
	}

	alert, err := h.service.Acknowledge(r.Context(), tenantID, ps.ByName("id"), strings.TrimSpace(req.AcknowledgedBy))
	h.respond(w, "Acknowledge", alert, err)
}

func (h *AlertHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/alerts", h.List)
	router.GET("/api/v1/alerts/:id", h.GetByID)
	router.POST("/api/v1/alerts/:id/acknowledge", h.Acknowledge)
}

func (h *AlertHandler) respond(w http.ResponseWriter, handler string, alert *model.DemandAlert, err error) {
	if err != nil {
		h.fail(w, handler, err)
		return
	}
	if err := httputil.WriteSuccess(w, alert); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *AlertHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
