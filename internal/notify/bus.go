package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

var tracer = otel.Tracer("physio.internal.notify")

// ErrMissingSession is returned when an event or subscription has no session.
var ErrMissingSession = errors.New("notify: missing session id")

// subscriberBuffer bounds each subscriber's queue. Events for a subscriber
// that falls behind are dropped.
const subscriberBuffer = 32

// Bus fans session notifications out to subscribers. It only delivers;
// nothing is stored.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns the session's events and a func that ends the
	// subscription and closes the channel.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
}

// MemoryBus is an in-process Bus.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	logger *logging.Logger
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(logger *logging.Logger) *MemoryBus {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryBus{subs: make(map[string]map[int]chan Event), logger: logger}
}

// Publish delivers ev to every current subscriber of its session.
func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	if strings.TrimSpace(ev.SessionID) == "" {
		return ErrMissingSession
	}
	_, span := startPublish(ctx, "memory", ev)
	defer span.End()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("notify: subscriber full, dropping event", "session_id", ev.SessionID, "kind", ev.Kind)
		}
	}
	return nil
}

// Subscribe registers a subscriber for one session. The subscription also
// ends when ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, ErrMissingSession
	}
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan Event)
	}
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// Subscribers reports how many subscribers a session has.
func (b *MemoryBus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

func startPublish(ctx context.Context, backend string, ev Event) (context.Context, trace.Span) {
	return tracer.Start(ctx, "notify.publish", trace.WithAttributes(
		attribute.String("notify.backend", backend),
		attribute.String("notify.kind", string(ev.Kind)),
		attribute.String("session.id", ev.SessionID),
	))
}
