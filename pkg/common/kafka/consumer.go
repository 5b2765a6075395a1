package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader    *kafka.Reader
	retryBase time.Duration
	retryMax  time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})

	return &Consumer{reader: reader, retryBase: time.Second, retryMax: time.Minute}
}

// Consume blocks until ctx is cancelled. A failing handler is retried with backoff on the
// same message, so the partition does not advance past it; on shutdown the message
// stays uncommitted and is redelivered to the group.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return ctx.Err()
				}
				logger.Log.WithError(err).Error("Failed to fetch message")
				continue
			}

			var event models.Event
			if err := json.Unmarshal(message.Value, &event); err != nil {
				logger.Log.WithError(err).Error("Failed to unmarshal event")
				c.reader.CommitMessages(ctx, message)
				continue
			}

			if err := c.handle(ctx, event, handler); err != nil {
				return err
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Log.WithError(err).Error("Failed to commit message")
			}
		}
	}
}

// handle runs handler until it succeeds or ctx is cancelled.
func (c *Consumer) handle(ctx context.Context, event models.Event, handler EventHandler) error {
	delay := c.retryBase
	for attempt := 1; ; attempt++ {
		err := handler(ctx, event)
		if err == nil {
			return nil
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
			"attempt":    attempt,
			"retry_in":   delay.String(),
		}).Error("Failed to process event")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if delay *= 2; delay > c.retryMax {
			delay = c.retryMax
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
