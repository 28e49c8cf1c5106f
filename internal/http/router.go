// Package http exposes the capture API: session lifecycle and browser-event
// ingestion for the recording extension.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/schema"
	"voice-workflow-recorder/internal/service/correlation"
	"voice-workflow-recorder/internal/service/recorder"
)

// NewRouter constructs the HTTP router for the capture API.
func NewRouter(svc *recorder.Service) http.Handler {
	h := &handlers{
		svc:       svc,
		validator: schema.New(),
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", h.startSession)
		r.Post("/sessions/{sessionID}/stop", h.stopSession)
		r.Post("/events", h.addEvent)
	})

	return r
}

type handlers struct {
	svc       *recorder.Service
	validator *schema.Validator
}

type startSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	// Audio capture happens in the browser; the server-side pipeline is
	// attached by cmd/wavfeed or a future device source, so sessions start
	// without one here.
	if err := h.svc.StartSession(r.Context(), req.SessionID, nil); err != nil {
		if errors.Is(err, correlation.ErrSessionExists) {
			writeError(w, http.StatusConflict, "session already exists")
			return
		}
		log.Error().Err(err).Str("sessionId", req.SessionID).Msg("start session")
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": req.SessionID, "status": "recording"})
}

func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	wf, err := h.svc.StopSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, correlation.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Error().Err(err).Str("sessionId", sessionID).Msg("stop session")
		writeError(w, http.StatusInternalServerError, "could not stop session")
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

func (h *handlers) addEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.BrowserEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.validator.ValidateBrowserEvent(ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.AddBrowserEvent(ev); err != nil {
		if errors.Is(err, correlation.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if errors.Is(err, correlation.ErrSessionMismatch) {
			writeError(w, http.StatusBadRequest, "event belongs to a different session")
			return
		}
		log.Error().Err(err).Str("sessionId", ev.SessionID).Msg("add event")
		writeError(w, http.StatusInternalServerError, "could not record event")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
