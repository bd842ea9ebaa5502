// Package rest exposes history, read-state and notification endpoints
// used by clients for initial load and backfill.
package rest

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/services"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New()
)

type StartConversationRequest struct {
	ParticipantID   string      `json:"participant_id" validate:"required,excludes=:"`
	ParticipantType domain.Kind `json:"participant_type" validate:"required,oneof=user employer"`
}

type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Handler struct {
	chat          services.IChatService
	notifications services.INotificationService
	monitor       *observability.MonitoringManager
	log           *slog.Logger
}

func NewHandler(chat services.IChatService, notifications services.INotificationService,
	monitor *observability.MonitoringManager, log *slog.Logger) *Handler {
	return &Handler{chat: chat, notifications: notifications, monitor: monitor, log: log}
}

// Register mounts every route on mux. API routes require a bearer token.
func (h *Handler) Register(mux *http.ServeMux, authenticator *auth.Authenticator) {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/conversations", h.listConversations)
	api.HandleFunc("POST /api/conversations", h.startConversation)
	api.HandleFunc("GET /api/conversations/{id}/messages", h.listMessages)
	api.HandleFunc("POST /api/conversations/{id}/read", h.markConversationRead)
	api.HandleFunc("GET /api/notifications", h.listNotifications)
	api.HandleFunc("POST /api/notifications/read", h.markNotificationsRead)
	api.HandleFunc("POST /api/notifications/read-all", h.markAllNotificationsRead)

	mux.Handle("/api/", auth.Middleware(authenticator, api))
	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	conversations, err := h.chat.ListConversations(identity)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *Handler) startConversation(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	var body StartConversationRequest
	if err := decode(r, &body); err != nil {
		h.fail(w, err)
		return
	}
	participant := domain.NewIdentity(body.ParticipantType, body.ParticipantID)
	conversation, err := h.chat.StartConversation(identity, participant)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, conversation)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	page, limit, err := pagination(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.chat.ListMessages(domain.ListMessagesCommand{
		ConversationID: r.PathValue("id"),
		Actor:          identity,
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, result)
}

func (h *Handler) markConversationRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if err := h.chat.MarkConversationRead(r.PathValue("id"), identity); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	page, limit, err := pagination(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.notifications.List(domain.ListNotificationsCommand{Owner: identity, Page: page, Limit: limit})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, result)
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	var body MarkReadRequest
	if err := decode(r, &body); err != nil {
		h.fail(w, err)
		return
	}
	ids, err := services.ParseIDs(body.IDs)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err = h.notifications.MarkRead(identity, ids); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if err := h.notifications.MarkAllRead(identity); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.monitor == nil {
		h.write(w, http.StatusOK, observability.Stats{Status: "ok"})
		return
	}
	h.write(w, http.StatusOK, h.monitor.GetLatest())
}

func pagination(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

// queryInt returns 0 when the parameter is absent so that defaults apply.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errors.ErrInvalidPayload, name)
	}
	return value, nil
}

func decode(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
		message = http.StatusText(status)
	}
	h.write(w, status, ErrorResponse{Code: errors.Code(err), Message: message})
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug("Unable to write response", "error", err)
	}
}
