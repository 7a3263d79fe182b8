package handler

import (
	"net/http"
	"slotkeeper/internal/availability/service"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/middleware"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AvailabilityHandler struct {
	service service.AvailabilityService
	log     *logger.Logger
}

func NewAvailabilityHandler(service service.AvailabilityService, log *logger.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: service,
		log:     log,
	}
}

type dependencyCheckResponse struct {
	Satisfied bool                     `json:"satisfied"`
	Results   []model.DependencyResult `json:"results"`
}

type ruleSetResponse struct {
	Calendar *model.Calendar          `json:"calendar"`
	Rules    []*service.EffectiveRule `json:"rules"`
}

// Evaluate answers GET /api/v1/calendars/:id/availability?start=&end=
// with optional now, slot_aligned and skip_dependencies parameters.
func (h *AvailabilityHandler) Evaluate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Evaluate", err)
		return
	}
	window, err := httputil.ExtractWindow(r)
	if err != nil {
		h.fail(w, "Evaluate", err)
		return
	}
	ectx, err := evaluationContext(r)
	if err != nil {
		h.fail(w, "Evaluate", err)
		return
	}

	verdict, err := h.service.Evaluate(r.Context(), tenantID, ps.ByName("id"), window, ectx)
	if err != nil {
		h.fail(w, "Evaluate", err)
		return
	}

	if err := httputil.WriteSuccess(w, verdict); err != nil {
		h.log.Error("failed to write success response", "handler", "Evaluate", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) CheckDependencies(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "CheckDependencies", err)
		return
	}
	window, err := httputil.ExtractWindow(r)
	if err != nil {
		h.fail(w, "CheckDependencies", err)
		return
	}

	satisfied, results, err := h.service.CheckDependencies(r.Context(), tenantID, ps.ByName("id"), window)
	if err != nil {
		h.fail(w, "CheckDependencies", err)
		return
	}

	if err := httputil.WriteSuccess(w, dependencyCheckResponse{Satisfied: satisfied, Results: results}); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckDependencies", "operation", "WriteSuccess", "error", err)
	}
}

// Compose returns the ordered effective rule set of a calendar.
func (h *AvailabilityHandler) Compose(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Compose", err)
		return
	}

	set, err := h.service.Compose(r.Context(), tenantID, ps.ByName("id"))
	if err != nil {
		h.fail(w, "Compose", err)
		return
	}

	if err := httputil.WriteSuccess(w, ruleSetResponse{Calendar: set.Calendar, Rules: set.Rules}); err != nil {
		h.log.Error("failed to write success response", "handler", "Compose", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/calendars/:id/availability", h.Evaluate)
	router.GET("/api/v1/calendars/:id/dependencies/check", h.CheckDependencies)
	router.GET("/api/v1/calendars/:id/rules", h.Compose)
}

func (h *AvailabilityHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func evaluationContext(r *http.Request) (model.EvaluationContext, error) {
	var ectx model.EvaluationContext
	var err error

	if ectx.Now, err = httputil.ExtractTime(r, "now"); err != nil {
		return ectx, err
	}
	if ectx.RequireSlotAlignment, err = httputil.ExtractBool(r, "slot_aligned"); err != nil {
		return ectx, err
	}
	if ectx.SkipDependencies, err = httputil.ExtractBool(r, "skip_dependencies"); err != nil {
		return ectx, err
	}
	ectx.RequestedBy = r.Header.Get(ChangedByHeader)
	ectx.CorrelationID = middleware.RequestIDFromContext(r.Context())
	return ectx, nil
}
