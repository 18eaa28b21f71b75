package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

const (
	defaultPrefix    = "table:agg:"
	defaultLatestTTL = 30 * time.Minute
)

// PublisherConfig configures the aggregated record publisher.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to the interval to form channel and key names.
	Prefix    string
	LatestTTL time.Duration

	// Failures and Cooldown tune the publish breaker.
	Failures int
	Cooldown time.Duration
}

// Publisher fans aggregated records out over Redis pub/sub. For interval
// "1min" and the default prefix, every record is published on channel
// "table:agg:1min" and the newest record is kept under "table:agg:1min:latest".
type Publisher struct {
	client  *goredis.Client
	prefix  string
	ttl     time.Duration
	breaker *Breaker
}

var _ model.RecordPublisher = (*Publisher)(nil)

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	if cfg.Failures <= 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	b := NewBreaker(cfg.Failures, cfg.Cooldown)
	b.OnTransition = func(from, to BreakerState) {
		log.Printf("[redis] publish breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, prefix: cfg.Prefix, ttl: cfg.LatestTTL, breaker: b}, nil
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Channel returns the pub/sub channel for interval.
func (p *Publisher) Channel(interval string) string { return p.prefix + interval }

// PublishRecords publishes records in one pipeline and refreshes the latest
// key. Returns ErrBreakerOpen without touching Redis while the breaker is open.
func (p *Publisher) PublishRecords(ctx context.Context, interval string, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	payloads, err := EncodeRecords(interval, records)
	if err != nil {
		return err
	}
	channel := p.Channel(interval)

	return p.breaker.Do(func() error {
		pipe := p.client.Pipeline()
		for _, data := range payloads {
			pipe.Publish(ctx, channel, data)
		}
		pipe.Set(ctx, channel+":latest", payloads[len(payloads)-1], p.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish %s (%d records): %w", channel, len(records), err)
		}
		return nil
	})
}

// RecordMessage is the pub/sub payload for one aggregated record.
type RecordMessage struct {
	Interval string       `json:"interval"`
	Record   model.Record `json:"record"`
}

// EncodeRecords renders one JSON message per record.
func EncodeRecords(interval string, records []model.Record) ([]string, error) {
	out := make([]string, len(records))
	for i, r := range records {
		data, err := json.Marshal(RecordMessage{Interval: interval, Record: r})
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", r.Key, err)
		}
		out[i] = string(data)
	}
	return out, nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
