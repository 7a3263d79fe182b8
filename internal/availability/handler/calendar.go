package handler

import (
	"net/http"
	"slotkeeper/internal/availability/service"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// ChangedByHeader names the admin recorded on calendar revisions.
const ChangedByHeader = "X-Changed-By"

type CalendarHandler struct {
	store service.RuleStore
	log   *logger.Logger
}

func NewCalendarHandler(store service.RuleStore, log *logger.Logger) *CalendarHandler {
	return &CalendarHandler{
		store: store,
		log:   log,
	}
}

func (h *CalendarHandler) CreateCalendar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "CreateCalendar")
	if !ok {
		return
	}

	var cal model.Calendar
	if err := httputil.DecodeJSON(r, &cal); err != nil {
		h.fail(w, "CreateCalendar", err)
		return
	}
	cal.TenantID = tenantID

	if err := h.store.CreateCalendar(r.Context(), &cal, r.Header.Get(ChangedByHeader)); err != nil {
		h.fail(w, "CreateCalendar", err)
		return
	}

	if err := httputil.WriteCreated(w, cal); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateCalendar", "operation", "WriteCreated", "error", err)
	}
}

func (h *CalendarHandler) GetCalendar(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "GetCalendar")
	if !ok {
		return
	}

	cal, err := h.store.GetCalendar(r.Context(), tenantID, ps.ByName("id"))
	if err != nil {
		h.fail(w, "GetCalendar", err)
		return
	}

	if err := httputil.WriteSuccess(w, cal); err != nil {
		h.log.Error("failed to write success response", "handler", "GetCalendar", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CalendarHandler) UpdateCalendar(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "UpdateCalendar")
	if !ok {
		return
	}

	var updates model.CalendarUpdate
	if err := httputil.DecodeJSON(r, &updates); err != nil {
		h.fail(w, "UpdateCalendar", err)
		return
	}

	cal, err := h.store.UpdateCalendar(r.Context(), tenantID, ps.ByName("id"), &updates, r.Header.Get(ChangedByHeader))
	if err != nil {
		h.fail(w, "UpdateCalendar", err)
		return
	}

	if err := httputil.WriteSuccess(w, cal); err != nil {
		h.log.Error("failed to write success response", "handler", "UpdateCalendar", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CalendarHandler) ArchiveCalendar(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "ArchiveCalendar")
	if !ok {
		return
	}

	if err := h.store.ArchiveCalendar(r.Context(), tenantID, ps.ByName("id"), r.Header.Get(ChangedByHeader)); err != nil {
		h.fail(w, "ArchiveCalendar", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *CalendarHandler) ListRevisions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "ListRevisions")
	if !ok {
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.fail(w, "ListRevisions", err)
		return
	}

	revisions, err := h.store.ListRevisions(r.Context(), tenantID, ps.ByName("id"), limit, offset)
	if err != nil {
		h.fail(w, "ListRevisions", err)
		return
	}

	if err := httputil.WritePaginated(w, revisions, int64(len(revisions)), limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListRevisions", "operation", "WritePaginated", "error", err)
	}
}

func (h *CalendarHandler) BindCalendar(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var b model.CalendarBinding
	tenantID, ok := h.decodeScoped(w, r, "BindCalendar", &b)
	if !ok {
		return
	}
	b.TenantID = tenantID
	b.CalendarID = ps.ByName("id")

	h.create(w, "BindCalendar", &b, h.store.BindCalendar(r.Context(), &b))
}

func (h *CalendarHandler) CreateOverlay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var o model.Overlay
	tenantID, ok := h.decodeScoped(w, r, "CreateOverlay", &o)
	if !ok {
		return
	}
	o.TenantID = tenantID
	o.CalendarID = ps.ByName("id")

	h.create(w, "CreateOverlay", &o, h.store.CreateOverlay(r.Context(), &o))
}

func (h *CalendarHandler) CreateRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var rule model.AvailabilityRule
	tenantID, ok := h.decodeScoped(w, r, "CreateRule", &rule)
	if !ok {
		return
	}
	rule.TenantID = tenantID
	rule.CalendarID = ps.ByName("id")

	h.create(w, "CreateRule", &rule, h.store.CreateRule(r.Context(), &rule))
}

func (h *CalendarHandler) DeactivateRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "DeactivateRule")
	if !ok {
		return
	}

	if err := h.store.DeactivateRule(r.Context(), tenantID, ps.ByName("rule_id")); err != nil {
		h.fail(w, "DeactivateRule", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *CalendarHandler) AddExclusion(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var ex model.RuleExclusion
	tenantID, ok := h.decodeScoped(w, r, "AddExclusion", &ex)
	if !ok {
		return
	}
	ex.TenantID = tenantID
	ex.CalendarID = ps.ByName("id")

	h.create(w, "AddExclusion", &ex, h.store.AddExclusion(r.Context(), &ex))
}

func (h *CalendarHandler) CreateTemplate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var tpl model.RuleTemplate
	tenantID, ok := h.decodeScoped(w, r, "CreateTemplate", &tpl)
	if !ok {
		return
	}
	tpl.TenantID = tenantID

	h.create(w, "CreateTemplate", &tpl, h.store.CreateTemplate(r.Context(), &tpl))
}

func (h *CalendarHandler) BindTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var b model.TemplateBinding
	tenantID, ok := h.decodeScoped(w, r, "BindTemplate", &b)
	if !ok {
		return
	}
	b.TenantID = tenantID
	b.CalendarID = ps.ByName("id")

	h.create(w, "BindTemplate", &b, h.store.BindTemplate(r.Context(), &b))
}

func (h *CalendarHandler) CreateDependencyRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var d model.DependencyRule
	tenantID, ok := h.decodeScoped(w, r, "CreateDependencyRule", &d)
	if !ok {
		return
	}
	d.TenantID = tenantID
	d.DependentCalendarID = ps.ByName("id")

	h.create(w, "CreateDependencyRule", &d, h.store.CreateDependencyRule(r.Context(), &d))
}

func (h *CalendarHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/calendars", h.CreateCalendar)
	router.GET("/api/v1/calendars/:id", h.GetCalendar)
	router.PATCH("/api/v1/calendars/:id", h.UpdateCalendar)
	router.DELETE("/api/v1/calendars/:id", h.ArchiveCalendar)
	router.GET("/api/v1/calendars/:id/revisions", h.ListRevisions)
	router.POST("/api/v1/calendars/:id/bindings", h.BindCalendar)
	router.POST("/api/v1/calendars/:id/overlays", h.CreateOverlay)
	router.POST("/api/v1/calendars/:id/rules", h.CreateRule)
	router.DELETE("/api/v1/calendars/:id/rules/:rule_id", h.DeactivateRule)
	router.POST("/api/v1/calendars/:id/exclusions", h.AddExclusion)
	router.POST("/api/v1/calendars/:id/templates", h.BindTemplate)
	router.POST("/api/v1/calendars/:id/dependencies", h.CreateDependencyRule)
	router.POST("/api/v1/templates", h.CreateTemplate)
}

func (h *CalendarHandler) tenant(w http.ResponseWriter, r *http.Request, handler string) (string, bool) {
	tenantID, err := httputil.ExtractTenant(r)
	if err != nil {
		h.fail(w, handler, err)
		return "", false
	}
	return tenantID, true
}

// decodeScoped checks the tenant header and decodes the body into v.
func (h *CalendarHandler) decodeScoped(w http.ResponseWriter, r *http.Request, handler string, v any) (string, bool) {
	tenantID, ok := h.tenant(w, r, handler)
	if !ok {
		return "", false
	}
	if err := httputil.DecodeJSON(r, v); err != nil {
		h.fail(w, handler, err)
		return "", false
	}
	return tenantID, true
}

func (h *CalendarHandler) create(w http.ResponseWriter, handler string, v any, err error) {
	if err != nil {
		h.fail(w, handler, err)
		return
	}
	if err := httputil.WriteCreated(w, v); err != nil {
		h.log.Error("failed to write created response", "handler", handler, "operation", "WriteCreated", "error", err)
	}
}

func (h *CalendarHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
