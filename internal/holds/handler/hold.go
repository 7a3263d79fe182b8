package handler

import (
	"net/http"
	"slotkeeper/internal/holds/repository"
	"slotkeeper/internal/holds/service"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/middleware"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type HoldHandler struct {
	service service.HoldService
	log     *logger.Logger
}

func NewHoldHandler(service service.HoldService, log *logger.Logger) *HoldHandler {
	return &HoldHandler{
		service: service,
		log:     log,
	}
}

type transitionRequest struct {
	Actor  model.Actor `json:"actor"`
	Reason string      `json:"reason,omitempty"`
}

type extendRequest struct {
	AdditionalMin int         `json:"additional_min"`
	Actor         model.Actor `json:"actor"`
}

// Create places a hold. A replayed request key answers 200 with the original hold.
func (h *HoldHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Create", err)
		return
	}

	var req model.CreateHoldRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Create", err)
		return
	}
	req.TenantID = tenantID
	if req.RequestKey == "" {
		req.RequestKey = middleware.RequestKeyFromContext(r.Context())
	}

	hold, created, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.fail(w, "Create", err)
		return
	}

	if !created {
		if err := httputil.WriteSuccess(w, hold); err != nil {
			h.log.Error("failed to write success response", "handler", "Create", "operation", "WriteSuccess", "error", err)
		}
		return
	}
	if err := httputil.WriteCreated(w, hold); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *HoldHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "GetByID", err)
		return
	}

	hold, err := h.service.GetByID(r.Context(), tenantID, ps.ByName("id"))
	if err != nil {
		h.fail(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, hold); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// List filters by the optional target, owner and status query parameters.
func (h *HoldHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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

	query := r.URL.Query()
	filter := repository.HoldFilter{
		TargetKey: query.Get("target"),
		OwnerKey:  query.Get("owner"),
		Status:    model.HoldStatus(query.Get("status")),
	}

	holds, total, err := h.service.List(r.Context(), tenantID, filter, limit, offset)
	if err != nil {
		h.fail(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, holds, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *HoldHandler) Events(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Events", err)
		return
	}

	evts, err := h.service.Events(r.Context(), tenantID, ps.ByName("id"))
	if err != nil {
		h.fail(w, "Events", err)
		return
	}

	if err := httputil.WriteSuccess(w, evts); err != nil {
		h.log.Error("failed to write success response", "handler", "Events", "operation", "WriteSuccess", "error", err)
	}
}

func (h *HoldHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Release", model.HoldActionRelease)
}

func (h *HoldHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Cancel", model.HoldActionCancel)
}

func (h *HoldHandler) Consume(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Consume", model.HoldActionConsume)
}

func (h *HoldHandler) Extend(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, "Extend", err)
		return
	}

	var req extendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Extend", err)
		return
	}
	actor := requestActor(r, req.Actor)

	result, err := h.service.Extend(r.Context(), tenantID, ps.ByName("id"), req.AdditionalMin, actor)
	if err != nil {
		h.fail(w, "Extend", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Extend", "operation", "WriteSuccess", "error", err)
	}
}

func (h *HoldHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/holds", h.Create)
	router.GET("/api/v1/holds", h.List)
	router.GET("/api/v1/holds/:id", h.GetByID)
	router.GET("/api/v1/holds/:id/events", h.Events)
	router.POST("/api/v1/holds/:id/release", h.Release)
	router.POST("/api/v1/holds/:id/cancel", h.Cancel)
	router.POST("/api/v1/holds/:id/consume", h.Consume)
	router.POST("/api/v1/holds/:id/extend", h.Extend)
}

// transition answers 200 whether or not the action applied; a hold already settled
// by someone else reports applied=false with its current state.
func (h *HoldHandler) transition(w http.ResponseWriter, r *http.Request, ps httprouter.Params, handler string, action model.HoldAction) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, handler, err)
		return
	}

	var req transitionRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.fail(w, handler, err)
			return
		}
	}

	result, err := h.service.Transition(r.Context(), tenantID, ps.ByName("id"), action, requestActor(r, req.Actor), req.Reason)
	if err != nil {
		h.fail(w, handler, err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *HoldHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// requestActor falls back to the hold owner header when the body names no actor.
func requestActor(r *http.Request, actor model.Actor) model.Actor {
	if actor.Type != "" {
		return actor
	}
	return model.Actor{Type: model.ActorUser, ID: r.Header.Get(middleware.HoldOwnerHeader)}
}
