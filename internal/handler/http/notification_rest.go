package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"crm-notification-service/internal/domain"
	"crm-notification-service/internal/middleware"
	"crm-notification-service/internal/orchestrator"
	"crm-notification-service/internal/usecase"
	"crm-notification-service/pkg/response"
	"crm-notification-service/pkg/xerrors"

	"crm-notification-service/internal/preference"
)

type NotificationHandler struct {
	uc       *usecase.NotificationUsecase
	orch     *orchestrator.Orchestrator
	validate *validator.Validate
}

func NewNotificationHandler(uc *usecase.NotificationUsecase, orch *orchestrator.Orchestrator) *NotificationHandler {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, ok := preference.ParseHHMM(fl.Field().String())
		return ok
	})
	return &NotificationHandler{uc: uc, orch: orch, validate: v}
}

func identity(r *http.Request) (scopeID, userID string) {
	userID, _ = middleware.GetUserID(r.Context())
	scopeID, _ = middleware.GetScopeID(r.Context())
	return scopeID, userID
}

func writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		response.ErrorCode(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, xerrors.ErrInvalidQuietHours):
		response.ErrorCode(w, http.StatusBadRequest, "invalid_quiet_hours", err.Error())
	case errors.Is(err, xerrors.ErrInvalidGroupingWindow):
		response.ErrorCode(w, http.StatusBadRequest, "invalid_grouping_window", err.Error())
	case errors.Is(err, xerrors.ErrEndpointRequired):
		response.ErrorCode(w, http.StatusBadRequest, "endpoint_required", err.Error())
	case errors.Is(err, xerrors.ErrInvalidInput):
		response.ErrorCode(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, err.Error())
	}
}

// ----------------------
// Notification Handlers
// ----------------------

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	scopeID, userID := identity(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.uc.List(r.Context(), scopeID, userID, limit, offset)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	scopeID, userID := identity(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.uc.ListUnread(r.Context(), scopeID, userID, limit, offset)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) CountUnread(w http.ResponseWriter, r *http.Request) {
	scopeID, userID := identity(r)

	count, err := h.uc.CountUnread(r.Context(), scopeID, userID)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	scopeID, userID := identity(r)
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	if err := h.uc.MarkRead(r.Context(), scopeID, userID, id); err != nil {
		writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	scopeID, userID := identity(r)

	if err := h.uc.MarkAllRead(r.Context(), scopeID, userID); err != nil {
		writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type snoozeRequest struct {
	Until time.Time `json:"until" validate:"required"`
}

func (h *NotificationHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	scopeID, userID := identity(r)
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.uc.Snooze(r.Context(), scopeID, userID, id, req.Until); err != nil {
		writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Mute(w http.ResponseWriter, r *http.Request) {
	h.setMuted(w, r, true)
}

func (h *NotificationHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	h.setMuted(w, r, false)
}

func (h *NotificationHandler) setMuted(w http.ResponseWriter, r *http.Request, muted bool) {
	scopeID, userID := identity(r)
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	if err := h.uc.SetMuted(r.Context(), scopeID, userID, id, muted); err != nil {
		writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scopeID, userID := identity(r)
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	if err := h.uc.Delete(r.Context(), scopeID, userID, id); err != nil {
		writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------
// Preference Handlers
// ----------------------

type preferenceRequest struct {
	EmailEnabled          bool                                        `json:"email_enabled"`
	PushEnabled           bool                                        `json:"push_enabled"`
	InAppEnabled          bool                                        `json:"in_app_enabled"`
	TypePreferences       map[domain.EventType]domain.ChannelOverride `json:"type_preferences"`
	QuietHoursEnabled     bool                                        `json:"quiet_hours_enabled"`
	QuietHoursStart       string                                      `json:"quiet_hours_start" validate:"omitempty,hhmm"`
	QuietHoursEnd         string                                      `json:"quiet_hours_end" validate:"omitempty,hhmm"`
	MutedEntities         []domain.MutedEntity                        `json:"muted_entities"`
	GroupingEnabled       bool                                        `json:"grouping_enabled"`
	GroupingWindowSeconds int                                         `json:"grouping_window_seconds" validate:"omitempty,min=60,max=3600"`
}

func (h *NotificationHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	_, userID := identity(r)

	pref, err := h.uc.GetPreference(r.Context(), userID)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, pref)
}

func (h *NotificationHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	_, userID := identity(r)

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	pref := &domain.NotificationPreference{
		UserID:                userID,
		EmailEnabled:          req.EmailEnabled,
		PushEnabled:           req.PushEnabled,
		InAppEnabled:          req.InAppEnabled,
		TypePreferences:       req.TypePreferences,
		QuietHoursEnabled:     req.QuietHoursEnabled,
		QuietHoursStart:       req.QuietHoursStart,
		QuietHoursEnd:         req.QuietHoursEnd,
		MutedEntities:         req.MutedEntities,
		GroupingEnabled:       req.GroupingEnabled,
		GroupingWindowSeconds: req.GroupingWindowSeconds,
	}

	updated, err := h.uc.UpdatePreference(r.Context(), pref)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, updated)
}

type muteEntityRequest struct {
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   string `json:"entity_id" validate:"required"`
}

func (h *NotificationHandler) MuteEntity(w http.ResponseWriter, r *http.Request) {
	_, userID := identity(r)

	var req muteEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	pref, err := h.uc.MuteEntity(r.Context(), userID, req.EntityType, req.EntityID)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, pref)
}

func (h *NotificationHandler) UnmuteEntity(w http.ResponseWriter, r *http.Request) {
	_, userID := identity(r)

	var req muteEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	pref, err := h.uc.UnmuteEntity(r.Context(), userID, req.EntityType, req.EntityID)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, pref)
}

// ----------------------
// Push subscriptions
// ----------------------

type pushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	UserAgent string `json:"user_agent"`
}

func (h *NotificationHandler) RegisterPushSubscription(w http.ResponseWriter, r *http.Request) {
	_, userID := identity(r)

	var req pushSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := &domain.PushSubscription{
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: req.UserAgent,
	}
	saved, err := h.uc.RegisterPushSubscription(r.Context(), sub)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, saved)
}

type unregisterPushRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

func (h *NotificationHandler) UnregisterPushSubscription(w http.ResponseWriter, r *http.Request) {
	_, userID := identity(r)

	var req unregisterPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.uc.UnregisterPushSubscription(r.Context(), userID, req.Endpoint); err != nil {
		writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------
// Internal event ingest
// ----------------------

type notifyRequest struct {
	Type         domain.EventType `json:"type" validate:"required"`
	Title        string           `json:"title" validate:"required"`
	Message      string           `json:"message" validate:"required"`
	UserID       string           `json:"user_id" validate:"required"`
	OwnerScopeID string           `json:"owner_scope_id" validate:"required"`
	EntityType   string           `json:"entity_type"`
	EntityID     string           `json:"entity_id"`
}

// Notify lets out-of-process producers enqueue a notification decision. The
// in-process modules call the orchestrator directly.
func (h *NotificationHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.orch.Notify(r.Context(), &domain.Event{
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		UserID:       req.UserID,
		OwnerScopeID: req.OwnerScopeID,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
	})
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	if n == nil {
		// Suppressed (muted entity); routine outcome, not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	response.JSON(w, http.StatusAccepted, n)
}
