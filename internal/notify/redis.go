package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

const channelPrefix = "physio:session:"

// ChannelFor is the pub/sub channel of one session.
func ChannelFor(sessionID string) string {
	return channelPrefix + sessionID
}

// RedisBus fans notifications out through Redis pub/sub so every API
// instance can serve a session's stream.
type RedisBus struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisBus creates a bus on an existing client.
func NewRedisBus(client *redis.Client, logger *logging.Logger) *RedisBus {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBus{client: client, logger: logger}
}

// Publish sends ev on its session's channel.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if strings.TrimSpace(ev.SessionID) == "" {
		return ErrMissingSession
	}
	ctx, span := startPublish(ctx, "redis", ev)
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelFor(ev.SessionID), data).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription for one session. It returns once
// Redis has confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, ErrMissingSession
	}
	channel := ChannelFor(sessionID)
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("notify: subscribe %s: %w", channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("notify: dropping malformed event", "channel", channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				default:
					b.logger.Warn("notify: subscriber full, dropping event", "session_id", sessionID, "kind", ev.Kind)
				}
			}
		}
	}()
	return out, cancel, nil
}
