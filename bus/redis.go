package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisPublisher(client *redis.Client, stream string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, stream: stream, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: eventValues(ev, ev.Attempt),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	p.logger.InfoContext(ctx, "enqueued pipeline event",
		"topic", ev.Topic, "record_id", ev.RecordID, "attempt", ev.Attempt)
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// ConsumerConfig configures a Redis stream consumer.
type ConsumerConfig struct {
	Stream       string
	Group        string
	Consumer     string
	DLQStream    string
	BatchSize    int64
	Block        time.Duration
	MaxAttempts  int
	RequeueDelay time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.DLQStream == "" {
		c.DLQStream = c.Stream + "_dlq"
	}
}

// Delivery is a received event plus the transport bookkeeping needed
// to ack, requeue or dead-letter it.
type Delivery struct {
	Event Event
	Raw   redis.XMessage
}

// RedisConsumer reads events from a stream through a consumer group.
type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	logger *slog.Logger
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig, logger *slog.Logger) (*RedisConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	c := &RedisConsumer{client: client, cfg: cfg, logger: logger}
	if err := c.ensureGroup(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Start the group at "0" rather than "$" so messages enqueued
	// before the first worker boot are still delivered.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to cfg.Block and returns the next batch of
// deliveries. Unparseable messages are acked and dropped so they
// cannot wedge the stream.
func (c *RedisConsumer) Read(ctx context.Context) ([]Delivery, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var deliveries []Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ev, parseErr := eventFromValues(msg.ID, msg.Values)
			if parseErr != nil {
				c.logger.ErrorContext(ctx, "dropping malformed event",
					"error", parseErr, "message_id", msg.ID, "stream", c.cfg.Stream)
				_ = c.ack(ctx, msg.ID)
				continue
			}
			deliveries = append(deliveries, Delivery{Event: ev, Raw: msg})
		}
	}
	return deliveries, nil
}

// Ack marks the delivery handled.
func (c *RedisConsumer) Ack(ctx context.Context, d Delivery) error {
	return c.ack(ctx, d.Raw.ID)
}

func (c *RedisConsumer) ack(ctx context.Context, id string) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// MaxAttempts reports the retry budget before deliveries go to the DLQ.
func (c *RedisConsumer) MaxAttempts() int {
	return c.cfg.MaxAttempts
}

// Requeue acks the delivery and re-enqueues it with an incremented
// attempt counter.
func (c *RedisConsumer) Requeue(ctx context.Context, d Delivery, cause string) error {
	if err := c.ack(ctx, d.Raw.ID); err != nil {
		return fmt.Errorf("acking for requeue: %w", err)
	}

	values := eventValues(d.Event, d.Event.Attempt+1)
	if cause != "" {
		values["last_error"] = cause
	}

	if c.cfg.RequeueDelay > 0 {
		wait(ctx, c.cfg.RequeueDelay)
	}

	// The delivery is already acked; skipping the re-add on shutdown
	// would drop the event, so the XAdd runs even after cancellation.
	if err := c.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	c.logger.InfoContext(ctx, "event requeued",
		"topic", d.Event.Topic, "record_id", d.Event.RecordID,
		"next_attempt", d.Event.Attempt+1, "cause", cause)
	return nil
}

// wait sleeps for d or until the context is cancelled, whichever comes
// first.
func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SendDLQ acks the delivery and parks it on the dead letter stream.
func (c *RedisConsumer) SendDLQ(ctx context.Context, d Delivery, cause string) error {
	if err := c.ack(ctx, d.Raw.ID); err != nil {
		return fmt.Errorf("acking for dlq: %w", err)
	}

	values := eventValues(d.Event, d.Event.Attempt)
	values["error"] = cause

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	c.logger.ErrorContext(ctx, "event sent to dead letter stream",
		"topic", d.Event.Topic, "record_id", d.Event.RecordID,
		"attempt", d.Event.Attempt, "cause", cause, "dlq_stream", c.cfg.DLQStream)
	return nil
}
