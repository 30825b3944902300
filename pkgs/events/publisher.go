package events

import (
	"context"
	"fmt"
	"time"

	redislib "github.com/naveenchin/tt-backend/pkgs/redis"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Sink receives relay events. Implementations must not block for long;
// publishing happens on the request path.
type Sink interface {
	Publish(ctx context.Context, event *Event) error
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }

// Publisher sends events to a Redis pub/sub channel and indexes submitted
// stages in per-contract and per-product timelines
type Publisher struct {
	redisClient *redis.Client
	keys        *redislib.KeyBuilder
	retention   time.Duration
}

var _ Sink = (*Publisher)(nil)

// NewPublisher creates a Redis event publisher. retention bounds how long
// submission records are kept; zero keeps them indefinitely.
func NewPublisher(redisClient *redis.Client, keys *redislib.KeyBuilder, retention time.Duration) (*Publisher, error) {
	if redisClient == nil || keys == nil {
		return nil, fmt.Errorf("invalid publisher configuration")
	}
	return &Publisher{
		redisClient: redisClient,
		keys:        keys,
		retention:   retention,
	}, nil
}

// Publish writes the event to the events channel in one pipeline with any
// timeline updates it implies
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	pipe := p.redisClient.Pipeline()
	pipe.Publish(ctx, p.keys.EventsChannel(), string(data))

	if event.Type == EventStageSubmitted && event.EventID != "" {
		score := float64(event.Timestamp.UnixMilli())
		member := redis.Z{Score: score, Member: event.EventID}
		pipe.ZAdd(ctx, p.keys.SubmissionTimeline(), member)
		if event.ProductID != "" {
			pipe.ZAdd(ctx, p.keys.ProductTimeline(event.ProductID), member)
		}
	}

	if event.EventID != "" && (event.Type == EventStageSubmitted || event.Type == EventStageConfirmed) {
		key := p.keys.Submission(event.EventID)
		pipe.HSet(ctx, key, "status", string(event.Type), "product_id", event.ProductID, "payload", string(event.Payload))
		if p.retention > 0 {
			pipe.Expire(ctx, key, p.retention)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// RecentSubmissions returns the most recent submitted event ids, newest first
func (p *Publisher) RecentSubmissions(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	return p.redisClient.ZRevRange(ctx, p.keys.SubmissionTimeline(), 0, limit-1).Result()
}

// Emit publishes event, logging instead of returning failures.
// sink may be nil.
func Emit(ctx context.Context, sink Sink, event *Event) {
	if sink == nil || event == nil {
		return
	}
	if err := sink.Publish(ctx, event); err != nil {
		log.WithError(err).WithField("type", event.Type).Warn("Failed to publish relay event")
	}
}
