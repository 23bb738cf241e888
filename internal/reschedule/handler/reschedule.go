package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
	"tripdesk/internal/reschedule/service"
	apperrors "tripdesk/pkg/errors"
	httputil "tripdesk/pkg/http"
	"tripdesk/pkg/logger"
	"tripdesk/pkg/middleware"
	"tripdesk/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// RescheduleRequest is the body of the commit and validate endpoints.
// NewDateTime must be RFC 3339.
type RescheduleRequest struct {
	NewDateTime string `json:"newDateTime"`
	Reason      string `json:"reason,omitempty"`
}

type RescheduleHandler struct {
	service service.RescheduleService
	log     *logger.Logger
}

func NewRescheduleHandler(service service.RescheduleService, log *logger.Logger) *RescheduleHandler {
	return &RescheduleHandler{
		service: service,
		log:     log,
	}
}

func (h *RescheduleHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings/id/:id/reschedule", h.Reschedule)
	router.POST("/api/v1/bookings/id/:id/reschedule/validate", h.Validate)
	router.GET("/api/v1/bookings/id/:id/reschedule/suggestions", h.Suggestions)
	router.GET("/api/v1/bookings/id/:id/reschedule/history", h.History)
	router.GET("/api/v1/bookings/id/:id/can-reschedule", h.CanReschedule)
}

func (h *RescheduleHandler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		return model.Actor{}, false
	}
	return actor, true
}

func (h *RescheduleHandler) parseRequest(w http.ResponseWriter, r *http.Request) (time.Time, string, bool) {
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return time.Time{}, "", false
	}
	if req.NewDateTime == "" {
		httputil.WriteError(w, apperrors.InvalidInput("newDateTime is required"))
		return time.Time{}, "", false
	}

	newStart, err := time.Parse(time.RFC3339, req.NewDateTime)
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("newDateTime must be an RFC 3339 timestamp"))
		return time.Time{}, "", false
	}

	return newStart, req.Reason, true
}

func (h *RescheduleHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	newStart, reason, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Reschedule(r.Context(), ps.ByName("id"), newStart, reason, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

func (h *RescheduleHandler) Validate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	newStart, reason, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	verdict, err := h.service.Validate(r.Context(), ps.ByName("id"), newStart, reason, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, verdict)
}

func (h *RescheduleHandler) Suggestions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	desiredParam := r.URL.Query().Get("desired")
	if desiredParam == "" {
		httputil.WriteError(w, apperrors.InvalidInput("desired is required"))
		return
	}
	desired, err := time.Parse(time.RFC3339, desiredParam)
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("desired must be an RFC 3339 timestamp"))
		return
	}

	count := 0
	if countParam := r.URL.Query().Get("count"); countParam != "" {
		count, err = strconv.Atoi(countParam)
		if err != nil || count < 0 {
			httputil.WriteError(w, apperrors.InvalidInput("count must be a non-negative integer"))
			return
		}
	}

	suggestions, err := h.service.Suggest(r.Context(), ps.ByName("id"), desired, actor, count)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, suggestions)
}

func (h *RescheduleHandler) History(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	entries, err := h.service.History(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, entries)
}

func (h *RescheduleHandler) CanReschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	result, err := h.service.CanReschedule(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}
