// Package eventstream consumes order-lifecycle notifications from a Kafka
// topic and feeds them to the loyalty processor. It is an alternative inbound
// transport to the webhook endpoint for deployments that bridge platform
// subscriptions into a broker.
package eventstream

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
	"github.com/meridianlabs/loyalty-engine/internal/webhook"
)

// Processor handles one decoded order-lifecycle event.
type Processor interface {
	Process(ctx context.Context, ev loyalty.Event) (loyalty.Outcome, error)
}

// Deduper suppresses redelivered events; see webhook.Deduper.
type Deduper interface {
	Seen(key string) bool
	Mark(key string)
}

// Config holds the consumer's broker settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageSource is the slice of kafka.Reader the consumer drives. Offsets
// must be committed explicitly, never as a side effect of fetching.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// defaultBackoff paces retries after a failed fetch or a failed event, so a
// broker or platform outage does not turn the loop into a busy spin.
const defaultBackoff = time.Second

// Consumer reads notification envelopes from Kafka and processes them one at
// a time. An offset is committed only after its event has been handled: a
// crash mid-event leads to redelivery on restart, never loss, and the dedup
// ledger keeps redelivered applies from landing twice within one process.
type Consumer struct {
	source    messageSource
	processor Processor
	dedup     Deduper
	backoff   time.Duration
}

// NewConsumer creates a consumer on the given topic. dedup may be nil.
func NewConsumer(cfg Config, processor Processor, dedup Deduper) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Consumer{
		source:    reader,
		processor: processor,
		dedup:     dedup,
		backoff:   defaultBackoff,
	}
}

// Run consumes until the context is cancelled. Malformed and duplicate
// messages are terminal and have their offset committed; a processing
// failure keeps the offset uncommitted and the same message is retried with
// backoff until it lands or the context ends, so a platform outage pauses
// the partition instead of dropping events.
func (c *Consumer) Run(ctx context.Context) error {
	lg := zctx.From(ctx)

	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lg.Error("Fetch message failed", zap.Error(err))
			if err := c.wait(ctx); err != nil {
				return err
			}
			continue
		}

		for !c.handle(ctx, msg.Value) {
			if err := c.wait(ctx); err != nil {
				return err
			}
		}

		if err := c.source.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The event already landed; redelivery after a restart is
			// suppressed by the dedup ledger.
			lg.Error("Commit offset failed", zap.Error(err))
		}
	}
}

// wait sleeps for the backoff interval unless the context ends first.
func (c *Consumer) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.backoff):
		return nil
	}
}

// handle drives one payload through decode, dedup and the processor. It
// reports whether the message is finished: true means the offset may be
// committed, false means processing failed and the message must be retried.
func (c *Consumer) handle(ctx context.Context, payload []byte) bool {
	lg := zctx.From(ctx)

	ev, err := webhook.DecodeEvent(payload)
	if err != nil {
		lg.Warn("Dropped malformed stream message", zap.Error(err))
		return true
	}

	if c.dedup != nil && c.dedup.Seen(ev.Key()) {
		lg.Info("Duplicate stream delivery suppressed",
			zap.String("order_id", ev.OrderID),
			zap.String("event_type", string(ev.Type)),
		)
		return true
	}

	out, err := c.processor.Process(ctx, ev)
	if err != nil {
		lg.Error("Stream event processing failed",
			zap.String("order_id", ev.OrderID),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
		return false
	}
	if c.dedup != nil && out.Status == loyalty.StatusApplied {
		c.dedup.Mark(ev.Key())
	}
	return true
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.source.Close()
}
