package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoggingPublisher writes events to the structured log instead of a broker.
// Used when no stream endpoint is configured, typically in local development.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	p.logger.InfoContext(ctx, "published event",
		"module", "usage.events",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
		"payload_bytes", len(payload),
	)
	return nil
}

// RedisStreamPublisher appends events to a Redis stream, one stream per
// event type under the configured prefix. Consumers read with XREADGROUP.
type RedisStreamPublisher struct {
	client *redis.Client
	prefix string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, prefix string, maxLen int64) *RedisStreamPublisher {
	if prefix == "" {
		prefix = "usage:events"
	}
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &RedisStreamPublisher{client: client, prefix: prefix, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	stream := p.prefix + ":" + eventType
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_type":  eventType,
			"payload":     payload,
			"produced_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}
