package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/physio-voice-agent/internal/notify"
)

const streamWriteTimeout = 10 * time.Second

// StreamFrame is what the UI receives on the notification stream.
type StreamFrame struct {
	Type  string        `json:"type"` // "event", "pong", "error"
	Event *notify.Event `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}

type streamInbound struct {
	Type string `json:"type"` // "ping"
}

// Stream handles GET /sessions/{id}/stream. The session's current
// consultation is sent first, followed by every notification until the
// session ends or the client goes away.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events, unsubscribe, err := h.sessions.Subscribe(ctx, id)
		if err != nil {
			_ = websocket.JSON.Send(conn, StreamFrame{Type: "error", Error: "session not found"})
			return
		}
		defer unsubscribe()

		var sendMu sync.Mutex
		send := func(frame StreamFrame) error {
			sendMu.Lock()
			defer sendMu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			return websocket.JSON.Send(conn, frame)
		}

		if snapshot, err := notify.NewEvent(id, notify.KindConsultationUpdated, notify.ConsultationUpdated{Consultation: s.Consultation()}); err == nil {
			if err := send(StreamFrame{Type: "event", Event: &snapshot}); err != nil {
				return
			}
		}

		go func() {
			defer cancel()
			for {
				var msg streamInbound
				if err := websocket.JSON.Receive(conn, &msg); err != nil {
					return
				}
				if msg.Type == "ping" {
					_ = send(StreamFrame{Type: "pong"})
				}
			}
		}()

		h.logger.Info("stream opened", "session_id", id)
		defer h.logger.Debug("stream closed", "session_id", id)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := send(StreamFrame{Type: "event", Event: &ev}); err != nil {
					h.logger.Debug("stream send failed", "session_id", id, "error", err)
					return
				}
				if ev.Kind == notify.KindSessionEnded {
					return
				}
			}
		}
	}).ServeHTTP(w, r)
}
