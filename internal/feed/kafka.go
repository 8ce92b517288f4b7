package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"vendorrisk/internal/config"
)

// StartKafka consumes change events from a Kafka topic as part of a consumer
// group. Offsets are committed once a message is decoded and handed on, so a
// crash replays at most the messages in flight.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- ChangeEvent, logger *slog.Logger) {
	kc := cfg.Get().Feed.Kafka
	if !kc.Enabled {
		if logger != nil {
			logger.Info("kafka feed disabled")
		}
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kc.Brokers,
		Topic:    kc.Topic,
		GroupID:  kc.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  time.Second,
	})
	if logger != nil {
		logger.Info("kafka feed enabled", "brokers", kc.Brokers, "topic", kc.Topic, "group_id", kc.GroupID)
	}
	go consumeKafka(ctx, reader, out, logger)
}

func consumeKafka(ctx context.Context, reader *kafka.Reader, out chan<- ChangeEvent, logger *slog.Logger) {
	defer reader.Close()
	backoff := newRetry(200*time.Millisecond, 10*time.Second)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("kafka fetch failed", "err", err)
			}
			if !backoff.wait(ctx) {
				return
			}
			continue
		}
		backoff.reset()
		if events, err := Decode(msg.Value); err != nil {
			if logger != nil {
				logger.Warn("kafka message skipped", "err", err, "partition", msg.Partition, "offset", msg.Offset)
			}
		} else {
			deliver(ctx, out, events, "kafka", logger)
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil && logger != nil {
			logger.Warn("kafka commit failed", "err", err, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}
