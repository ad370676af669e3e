package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gdtech/pairgate/internal/apperrors"
	"github.com/gdtech/pairgate/internal/httputil"
	"github.com/gdtech/pairgate/internal/session"
)

// SessionLifecycle is the slice of the session manager the HTTP layer needs.
type SessionLifecycle interface {
	Create(ctx context.Context, phoneNumber string) (*session.CreateResult, error)
	GetStatus(ctx context.Context, sessionID string) (*session.StatusResult, error)
	GetByCode(ctx context.Context, code string) (*session.StatusResult, error)
	Cancel(ctx context.Context, sessionID string) error
}

type SessionHandler struct {
	manager SessionLifecycle
}

func NewSessionHandler(manager SessionLifecycle) *SessionHandler {
	return &SessionHandler{
		manager: manager,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Get("/code/{code}", h.GetByCode)
	r.Get("/{sessionID}", h.GetStatus)
	r.Delete("/{sessionID}", h.CancelSession)

	return r
}

type createSessionRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, apperrors.ValidationError("Request body must be valid JSON"))
			return
		}
	}

	result, err := h.manager.Create(ctx, req.PhoneNumber)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.ErrCodeInvalidPhoneNumber) {
			log.Error().Err(err).Msg("failed to create session")
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}

// GET /v1/sessions/{sessionID}
func (h *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("sessionID"))
		return
	}

	result, err := h.manager.GetStatus(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// GET /v1/sessions/code/{code}
func (h *SessionHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httputil.WriteError(w, apperrors.MissingRequired("code"))
		return
	}

	result, err := h.manager.GetByCode(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// DELETE /v1/sessions/{sessionID}
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("sessionID"))
		return
	}

	if err := h.manager.Cancel(r.Context(), sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
