package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/internal/notify"
	"github.com/wolfman30/physio-voice-agent/internal/session"
	"github.com/wolfman30/physio-voice-agent/internal/tools"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

const (
	maxBodyBytes = 1 << 20
	phoneDigits  = 10
)

// SessionController is the part of the session controller the API drives.
type SessionController interface {
	Start(ctx context.Context, req session.StartRequest) (*session.Session, error)
	Get(id string) (*session.Session, error)
	End(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan notify.Event, func(), error)
}

// SessionHandler serves the UI-facing session API.
type SessionHandler struct {
	sessions SessionController
	logger   *logging.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions SessionController, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionHandler{sessions: sessions, logger: logger}
}

type sessionResponse struct {
	Session      *session.Session   `json:"session"`
	Stage        string             `json:"stage"`
	Consultation consultation.State `json:"consultation"`
}

func newSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{Session: s, Stage: string(s.Stage()), Consultation: s.Consultation()}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// Health reports liveness.
func (h *SessionHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start handles POST /sessions.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateIdentity(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s, err := h.sessions.Start(r.Context(), req)
	switch {
	case errors.Is(err, session.ErrNoJoinURL):
		writeError(w, http.StatusBadRequest, "joinUrl is required when calls cannot be created")
		return
	case err != nil:
		h.logger.Error("failed to start session", "error", err)
		writeError(w, http.StatusBadGateway, "could not start the call")
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(s))
}

// validateIdentity requires an email or a phone and checks the format of
// whichever is given.
func validateIdentity(req session.StartRequest) string {
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if email == "" && phone == "" {
		return "email or phone is required"
	}
	if email != "" {
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			return "invalid email address"
		}
	}
	if phone != "" && len(appointments.NormalizePhone(phone)) != phoneDigits {
		return "phone must have 10 digits"
	}
	return ""
}

// lookup resolves the {id} route parameter, writing 404 when it is unknown.
func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

// Get handles GET /sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// Consultation handles GET /sessions/{id}/consultation.
func (h *SessionHandler) Consultation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Consultation())
}

// End handles DELETE /sessions/{id}.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.sessions.End(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		// The session is gone either way; the error only concerns teardown.
		h.logger.Warn("session teardown incomplete", "session_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events handles POST /sessions/{id}/events, fed by a browser-hosted voice
// client.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var ev voice.Event
	if err := decodeBody(w, r, &ev); err != nil || ev.Kind == "" {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}
	if err := s.HandleEvent(r.Context(), ev); err != nil {
		if errors.Is(err, session.ErrSessionEnded) {
			writeError(w, http.StatusGone, "session ended")
			return
		}
		h.logger.Warn("event handled with errors", "session_id", s.ID, "kind", ev.Kind, "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

type toolRequest struct {
	InvocationID string          `json:"invocationId"`
	Parameters   json.RawMessage `json:"parameters"`
}

// InvokeTool handles POST /sessions/{id}/tools/{tool}. The body is the
// platform's reply either way; the status tells the client whether the tool
// ran.
func (h *SessionHandler) InvokeTool(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req toolRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := chi.URLParam(r, "tool")
	result, err := s.InvokeTool(r.Context(), name, req.InvocationID, req.Parameters)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusGone, "session ended")
	case errors.Is(err, tools.ErrUnknownTool):
		writeJSON(w, http.StatusNotFound, result)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, result)
	}
}

type slotRequest struct {
	Slot string `json:"slot"`
}

type slotResponse struct {
	Consultation consultation.State `json:"consultation"`
	Delivered    bool               `json:"delivered"`
}

// SelectSlot handles POST /sessions/{id}/slot.
func (h *SessionHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req slotRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := s.SelectSlot(r.Context(), req.Slot)
	switch {
	case errors.Is(err, session.ErrEmptySlot):
		writeError(w, http.StatusBadRequest, "slot is required")
		return
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusGone, "session ended")
		return
	case err != nil:
		// The selection is recorded; only the message to the call was lost.
		h.logger.Warn("slot selection not delivered to call", "session_id", s.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, slotResponse{Consultation: state, Delivered: err == nil})
}
