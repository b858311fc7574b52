package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// ErrLinkClosed is returned when writing to a link that has left the call.
var ErrLinkClosed = errors.New("voice: link closed")

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
	leaveTimeout            = 500 * time.Millisecond
	eventBuffer             = 64
)

// LinkOptions configures Dial.
type LinkOptions struct {
	HandshakeTimeout time.Duration
	Header           http.Header
	Logger           *logging.Logger
}

// Link is a websocket connection to a call's data channel. Inbound data
// messages are translated to Events; outbound writes are serialized.
type Link struct {
	conn   *websocket.Conn
	logger *logging.Logger
	events chan Event

	writeMu sync.Mutex
	done    chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// Dial joins a call by its join URL.
func Dial(ctx context.Context, joinURL string, opts LinkOptions) (*Link, error) {
	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}
	conn, _, err := dialer.DialContext(ctx, joinURL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("voice: dial %s: %w", joinURL, err)
	}
	return NewLink(conn, opts.Logger), nil
}

// NewLink wraps an established connection and starts its read loop.
func NewLink(conn *websocket.Conn, logger *logging.Logger) *Link {
	if logger == nil {
		logger = logging.Default()
	}
	l := &Link{
		conn:   conn,
		logger: logger,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Events yields inbound events until the link closes.
func (l *Link) Events() <-chan Event {
	return l.events
}

// Done is closed once the read loop has exited.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// AddMessage injects a message into the call's conversation.
func (l *Link) AddMessage(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return l.write(ctx, map[string]any{
		"type":    MessageAddMessage,
		"message": msg,
	})
}

// SendToolResult answers a client tool invocation.
func (l *Link) SendToolResult(ctx context.Context, result ClientToolResult) error {
	payload := struct {
		Type string `json:"type"`
		ClientToolResult
	}{Type: MessageClientToolResult, ClientToolResult: result}
	return l.write(ctx, payload)
}

// Leave closes the link and waits briefly for the read loop to exit. It is
// safe to call more than once.
func (l *Link) Leave(ctx context.Context) error {
	l.once.Do(func() {
		close(l.closed)
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"),
			time.Now().Add(writeTimeout))
		l.writeMu.Unlock()
		_ = l.conn.Close()
	})
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(leaveTimeout):
		return nil
	}
}

func (l *Link) write(ctx context.Context, v any) error {
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("voice: set write deadline: %w", err)
	}
	if err := l.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("voice: write message: %w", err)
	}
	return nil
}

func (l *Link) readLoop() {
	defer close(l.done)
	defer close(l.events)

	for {
		_, payload, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					l.logger.Warn("voice link read failed", "error", err)
				}
			}
			return
		}

		event, ok := l.decode(payload)
		if !ok {
			continue
		}
		select {
		case l.events <- event:
		case <-l.closed:
			return
		}
	}
}

func (l *Link) decode(payload []byte) (Event, bool) {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		l.logger.Debug("voice link dropped malformed message", "error", err)
		return Event{}, false
	}
	event, ok := msg.event()
	if !ok {
		l.logger.Debug("voice link ignored message", "type", msg.Type)
	}
	return event, ok
}

// event maps a data message to a session event. Streaming transcript deltas
// are dropped; only final utterances become events.
func (m wireMessage) event() (Event, bool) {
	switch m.Type {
	case MessageState:
		return Event{Kind: EventStatus, Status: m.State}, true
	case MessageTranscript:
		if !m.Final {
			return Event{}, false
		}
		return Event{Kind: EventTranscript, Transcript: &Transcript{
			Role:    m.Role,
			Text:    m.Text,
			Final:   true,
			Ordinal: m.Ordinal,
		}}, true
	case MessageClientToolInvocation:
		return Event{Kind: EventToolInvocation, Invocation: &ToolInvocation{
			ToolName:     m.ToolName,
			InvocationID: m.InvocationID,
			Parameters:   m.Parameters,
		}}, true
	case MessageDebug:
		return Event{Kind: EventDebug, Debug: m.Message}, true
	case MessageToolResult:
		text := m.Result
		if text == "" {
			text = m.Text
		}
		return Event{Kind: EventToolResult, ToolResult: &ToolResult{ToolName: m.ToolName, Text: text}}, true
	default:
		return Event{}, false
	}
}
