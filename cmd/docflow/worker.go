package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/docflow/bus"
)

func newWorkerCmd() *cobra.Command {
	var consumerName string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a pipeline worker",
		Long:  "Consumes pipeline events from the stream, drives records through generation, review and publication, and parks poison events on the dead letter stream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *deps) error {
				if consumerName == "" {
					host, _ := os.Hostname()
					consumerName = fmt.Sprintf("%s-%d", host, os.Getpid())
				}

				consumer, err := bus.NewRedisConsumer(d.redis, bus.ConsumerConfig{
					Stream:      d.cfg.Redis.Stream,
					Group:       d.cfg.Redis.Group,
					Consumer:    consumerName,
					MaxAttempts: d.cfg.Redis.MaxAttempts,
				}, d.logger)
				if err != nil {
					return fmt.Errorf("building consumer: %w", err)
				}

				d.logger.Info("worker started",
					"stream", d.cfg.Redis.Stream,
					"group", d.cfg.Redis.Group,
					"consumer", consumerName)
				return runWorker(cmd.Context(), d, consumer)
			})
		},
	}

	cmd.Flags().StringVar(&consumerName, "consumer", "", "Consumer name within the group (default: hostname-pid)")

	return cmd
}

// runWorker reads event batches until the context is cancelled. A
// failed event is requeued with an incremented attempt counter; once
// the attempt budget is spent it goes to the dead letter stream so one
// poison event cannot wedge the pipeline.
func runWorker(ctx context.Context, d *deps, consumer *bus.RedisConsumer) error {
	for {
		deliveries, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("reading events", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, delivery := range deliveries {
			handleDelivery(ctx, d, consumer, delivery)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func handleDelivery(ctx context.Context, d *deps, consumer *bus.RedisConsumer, delivery bus.Delivery) {
	ev := delivery.Event
	err := d.pipeline.HandleEvent(ctx, ev)
	if err == nil {
		if err := consumer.Ack(ctx, delivery); err != nil {
			d.logger.Error("acking event", "event_id", ev.ID, "error", err)
		}
		return
	}

	d.logger.Error("handling event",
		"event_id", ev.ID,
		"topic", ev.Topic,
		"record_id", ev.RecordID,
		"attempt", ev.Attempt,
		"error", err)

	if ev.Attempt >= consumer.MaxAttempts() {
		if dlqErr := consumer.SendDLQ(ctx, delivery, err.Error()); dlqErr != nil {
			d.logger.Error("parking event on dead letter stream", "event_id", ev.ID, "error", dlqErr)
		}
		// Surface the terminal failure on the record for operators.
		if ev.RecordID != "" {
			if setErr := d.records.SetLastError(ctx, ev.RecordID, err.Error()); setErr != nil {
				d.logger.Error("recording last error", "record_id", ev.RecordID, "error", setErr)
			}
		}
		return
	}
	if reqErr := consumer.Requeue(ctx, delivery, err.Error()); reqErr != nil {
		d.logger.Error("requeueing event", "event_id", ev.ID, "error", reqErr)
	}
}
