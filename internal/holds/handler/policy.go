package handler

import (
	"net/http"
	"slotkeeper/internal/holds/service"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type PolicyHandler struct {
	service service.PolicyService
	log     *logger.Logger
}

func NewPolicyHandler(service service.PolicyService, log *logger.Logger) *PolicyHandler {
	return &PolicyHandler{
		service: service,
		log:     log,
	}
}

type resolveRequest struct {
	Scopes []model.PolicyScope `json:"scopes"`
}

func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Create", err)
		return
	}

	var p model.CapacityHoldPolicy
	if err := httputil.DecodeJSON(r, &p); err != nil {
		h.fail(w, "Create", err)
		return
	}
	p.TenantID = tenantID

	if err := h.service.Create(r.Context(), &p); err != nil {
		h.fail(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, p); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *PolicyHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "GetByID", err)
		return
	}

	p, err := h.service.GetByID(r.Context(), tenantID, ps.ByName("id"))
	h.respond(w, "GetByID", p, err)
}

func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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

	policies, total, err := h.service.List(r.Context(), tenantID, limit, offset)
	if err != nil {
		h.fail(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, policies, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *PolicyHandler) Activate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Activate", err)
		return
	}

	p, err := h.service.Activate(r.Context(), tenantID, ps.ByName("id"))
	h.respond(w, "Activate", p, err)
}

func (h *PolicyHandler) Deactivate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Deactivate", err)
		return
	}

	p, err := h.service.Deactivate(r.Context(), tenantID, ps.ByName("id"))
	h.respond(w, "Deactivate", p, err)
}

// Resolve reports which policy a hold with the given scope set would run under.
func (h *PolicyHandler) Resolve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Resolve", err)
		return
	}

	var req resolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Resolve", err)
		return
	}

	p, err := h.service.Resolve(r.Context(), tenantID, req.Scopes)
	h.respond(w, "Resolve", p, err)
}

func (h *PolicyHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/hold-policies", h.Create)
	router.GET("/api/v1/hold-policies", h.List)
	router.GET("/api/v1/hold-policies/:id", h.GetByID)
	router.POST("/api/v1/hold-policies/:id/activate", h.Activate)
	router.POST("/api/v1/hold-policies/:id/deactivate", h.Deactivate)
	router.POST("/api/v1/policy-resolutions", h.Resolve)
}

func (h *PolicyHandler) respond(w http.ResponseWriter, handler string, p *model.CapacityHoldPolicy, err error) {
	if err != nil {
		h.fail(w, handler, err)
		return
	}
	if err := httputil.WriteSuccess(w, p); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *PolicyHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
