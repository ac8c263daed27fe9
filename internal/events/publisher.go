package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event names emitted by the attendance engine.
const (
	RoundStarted   = "round:started"
	RoundQRUpdated = "round:qr-updated"
	SessionEnded   = "session:ended"
)

// Event is the envelope delivered to the push-notification collaborator.
// Fan-out is keyed by session id; listeners subscribe per session.
type Event struct {
	Name      string      `json:"event"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// Publisher is the opaque publish sink the engine emits events into.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher fans events out over Redis pub/sub channels named
// "<prefix>:<sessionID>".
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisPublisher constructs a Redis-backed publisher.
func NewRedisPublisher(client *redis.Client, prefix string, logger *zap.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "session"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Publish marshals and publishes the event to the session channel.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Name, err)
	}
	channel := fmt.Sprintf("%s:%s", p.prefix, event.SessionID)
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s to %s: %w", event.Name, channel, err)
	}
	return nil
}

// NopPublisher discards events; used when publication is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
