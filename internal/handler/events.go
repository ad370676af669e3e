package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gdtech/pairgate/internal/apperrors"
	"github.com/gdtech/pairgate/internal/httputil"
	"github.com/gdtech/pairgate/internal/notify"
	"github.com/gdtech/pairgate/internal/session"
)

// EventsHandler streams session status transitions over SSE so the pairing
// page can react without polling.
type EventsHandler struct {
	broker  *notify.Broker
	manager SessionLifecycle
}

func NewEventsHandler(broker *notify.Broker, manager SessionLifecycle) *EventsHandler {
	return &EventsHandler{
		broker:  broker,
		manager: manager,
	}
}

// GET /v1/sessions/{sessionID}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("sessionID"))
		return
	}

	// Snapshot first so unknown sessions fail with a JSON 404 instead of an
	// empty stream.
	status, err := h.manager.GetStatus(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(sessionID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("sessionId", sessionID).
		Msg("sse connection established")

	h.sendEvent(w, flusher, session.StatusEvent{
		Status:      status.Status,
		PhoneNumber: status.PhoneNumber,
		QRPayload:   status.QRPayload,
		Error:       status.LastError,
	})

	ctx := r.Context()
	heartbeat := time.NewTicker(notify.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("sessionId", sessionID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("sessionId", sessionID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}
			if event.Status.Terminal() {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("sessionId", sessionID).
					Msg("sse heartbeat failed")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event session.StatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
