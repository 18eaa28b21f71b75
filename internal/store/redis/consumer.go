package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

const (
	rowField = "row"

	defaultStream    = "table:rows"
	defaultBatchSize = 500
	defaultBlock     = time.Second
	retryDelay       = 500 * time.Millisecond
)

// ConsumerConfig configures the ingestion stream consumer.
type ConsumerConfig struct {
	Addr     string
	Password string
	DB       int

	Stream string
	// StartID is the first stream ID read exclusively: "$" for new entries
	// only, "0" to read the stream from the beginning.
	StartID   string
	BatchSize int64
	Block     time.Duration

	// OnBatch, when set, is called after each batch with the number of
	// entries applied and the number rejected as undecodable.
	OnBatch func(applied, rejected int)
	// OnError, when set, is called for read and apply failures.
	OnError func(err error)
}

// Consumer reads raw row tuples from a Redis stream. Every stream entry
// carries a JSON array under the "row" field, e.g. {"row": "[1700000000000, 1.5, 2]"}.
type Consumer struct {
	client *goredis.Client
	cfg    ConsumerConfig
	lastID string
}

var _ model.RowSource = (*Consumer)(nil)

// NewConsumer connects to Redis and verifies the connection.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Stream == "" {
		cfg.Stream = defaultStream
	}
	if cfg.StartID == "" {
		cfg.StartID = "$"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
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

	log.Printf("[redis-consumer] connected to %s, stream %s from %s", cfg.Addr, cfg.Stream, cfg.StartID)
	return &Consumer{client: client, cfg: cfg, lastID: cfg.StartID}, nil
}

// LastID returns the ID of the last consumed entry.
func (c *Consumer) LastID() string { return c.lastID }

// Consume reads entries until ctx is cancelled. Each XREAD result is applied
// as one batch. A batch rejected by apply is logged and skipped so a single
// poisoned entry cannot stall ingestion.
func (c *Consumer) Consume(ctx context.Context, apply func(rows [][]any) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{c.cfg.Stream, c.lastID},
			Count:   c.cfg.BatchSize,
			Block:   c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[redis-consumer] XREAD error: %v", err)
			c.fail(err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, s := range streams {
			if len(s.Messages) == 0 {
				continue
			}
			rows, rejected := DecodeEntries(s.Messages)
			c.lastID = s.Messages[len(s.Messages)-1].ID
			if len(rows) > 0 {
				if err := apply(rows); err != nil {
					log.Printf("[redis-consumer] batch ending %s rejected: %v", c.lastID, err)
					c.fail(err)
					rows = nil
				}
			}
			if c.cfg.OnBatch != nil {
				c.cfg.OnBatch(len(rows), rejected)
			}
		}
	}
}

func (c *Consumer) fail(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

// DecodeEntries turns stream messages into row tuples. Entries without a
// decodable "row" field are logged and counted.
func DecodeEntries(msgs []goredis.XMessage) (rows [][]any, rejected int) {
	rows = make([][]any, 0, len(msgs))
	for _, msg := range msgs {
		row, err := DecodeRow(msg.Values)
		if err != nil {
			log.Printf("[redis-consumer] skip entry %s: %v", msg.ID, err)
			rejected++
			continue
		}
		rows = append(rows, row)
	}
	return rows, rejected
}

// DecodeRow decodes the "row" field of one entry. Numbers are kept as
// json.Number so integer keys survive without float rounding.
func DecodeRow(values map[string]interface{}) ([]any, error) {
	raw, ok := values[rowField]
	if !ok {
		return nil, fmt.Errorf("missing %q field", rowField)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("field %q has type %T", rowField, raw)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row []any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	if len(row) == 0 {
		return nil, errors.New("empty row")
	}
	return row, nil
}

// Close closes the Redis connection.
func (c *Consumer) Close() error {
	return c.client.Close()
}
