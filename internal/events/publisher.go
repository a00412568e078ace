package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// ParseOutcome describes one finished parse attempt, successful or not.
type ParseOutcome struct {
	URL        string   `json:"url"`
	Site       string   `json:"site"`
	Strategy   string   `json:"strategy,omitempty"`
	Outcome    string   `json:"outcome"`
	Stages     []string `json:"stages,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// Publisher fans parse outcomes out to a Redis stream so downstream
// consumers can watch extraction health per site. A nil Publisher is
// valid and drops everything.
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = "parse-outcomes"
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "events"),
	}
}

// PublishParseOutcome appends an outcome event to the stream. Publishing
// is best-effort: failures are logged, never returned, so a broken Redis
// cannot fail a parse.
func (p *Publisher) PublishParseOutcome(ctx context.Context, outcome ParseOutcome) {
	if p == nil || p.redis == nil {
		return
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		p.logger.Error("failed to marshal outcome", "error", err)
		return
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"type":      "parse.finished",
			"site":      outcome.Site,
			"outcome":   outcome.Outcome,
			"event_id":  uuid.NewString(),
			"timestamp": fmt.Sprintf("%d", time.Now().UnixNano()),
		},
	}

	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		p.logger.Error("failed to publish outcome", "stream", p.stream, "error", err)
	}
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	if p == nil || p.redis == nil {
		return nil
	}
	return p.redis.Close()
}
