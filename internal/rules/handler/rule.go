package handler

import (
	"encoding/json"
	"net/http"
	"tripdesk/internal/rules/repository"
	"tripdesk/internal/rules/service"
	apperrors "tripdesk/pkg/errors"
	httputil "tripdesk/pkg/http"
	"tripdesk/pkg/logger"
	"tripdesk/pkg/middleware"
	"tripdesk/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// RuleHandler exposes the admin policy surface. Every route requires the
// ADMIN role.
type RuleHandler struct {
	service service.RuleService
	log     *logger.Logger
}

func NewRuleHandler(service service.RuleService, log *logger.Logger) *RuleHandler {
	return &RuleHandler{
		service: service,
		log:     log,
	}
}

func (h *RuleHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/admin/rules", h.Create)
	router.GET("/api/v1/admin/rules", h.GetAll)
	router.GET("/api/v1/admin/rules/:id", h.GetByID)
	router.PUT("/api/v1/admin/rules/:id", h.Update)
	router.DELETE("/api/v1/admin/rules/:id", h.Delete)
	router.POST("/api/v1/admin/rules/:id/activate", h.Activate)
	router.POST("/api/v1/admin/rules/:id/deactivate", h.Deactivate)
	router.GET("/api/v1/admin/validate-config", h.ValidateConfig)
	router.GET("/api/v1/admin/config", h.ListConfig)
	router.GET("/api/v1/admin/config/:key", h.GetConfig)
	router.PUT("/api/v1/admin/config/:key", h.UpsertConfig)
}

func (h *RuleHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		return false
	}
	if !actor.HasRole(model.RoleAdmin) {
		httputil.WriteError(w, apperrors.Forbidden("Policy administration requires the ADMIN role"))
		return false
	}
	return true
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	var rule model.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.Create(r.Context(), &rule); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteCreated(w, rule)
}

func (h *RuleHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	rule, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, rule)
}

func (h *RuleHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	query := r.URL.Query()
	filter := repository.RuleFilter{
		RuleType:       query.Get("rule_type"),
		ApplicableRole: query.Get("applicable_role"),
	}
	if activeStr := query.Get("active"); activeStr != "" {
		active := activeStr == "true"
		filter.Active = &active
	}

	rules, total, err := h.service.GetAll(r.Context(), filter, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WritePaginated(w, rules, total, limit, int(offset))
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	var rule model.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	id := ps.ByName("id")
	if err := h.service.Update(r.Context(), id, &rule); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rule.ID = id
	httputil.WriteSuccess(w, rule)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	if err := h.service.Delete(r.Context(), ps.ByName("id")); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *RuleHandler) Activate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.setActive(w, r, ps.ByName("id"), true)
}

func (h *RuleHandler) Deactivate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.setActive(w, r, ps.ByName("id"), false)
}

func (h *RuleHandler) setActive(w http.ResponseWriter, r *http.Request, id string, active bool) {
	if !h.requireAdmin(w, r) {
		return
	}

	if err := h.service.SetActive(r.Context(), id, active); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]any{"id": id, "active": active})
}

func (h *RuleHandler) ValidateConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	report, err := h.service.ValidateConfig(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, report)
}

func (h *RuleHandler) ListConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	entries, err := h.service.ListConfigEntries(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, entries)
}

func (h *RuleHandler) GetConfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	entry, err := h.service.GetConfigEntry(r.Context(), ps.ByName("key"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, entry)
}

func (h *RuleHandler) UpsertConfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.requireAdmin(w, r) {
		return
	}

	var entry model.GlobalConfigEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	entry.Key = ps.ByName("key")
	if err := h.service.UpsertConfigEntry(r.Context(), &entry); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, entry)
}
