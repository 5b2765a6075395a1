package sms

import (
	"context"
	"fmt"
)

const EventSMSRequested = "sms.requested"

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

// OutboxSender hands messages to a kafka topic drained by the sms-relay service.
// A successful Send means the message was queued, not delivered.
type OutboxSender struct {
	publisher EventPublisher
	source    string
}

func NewOutboxSender(publisher EventPublisher, source string) *OutboxSender {
	return &OutboxSender{publisher: publisher, source: source}
}

func (s *OutboxSender) Send(ctx context.Context, phone, text string) error {
	if err := validatePhone(phone); err != nil {
		return err
	}
	err := s.publisher.PublishEvent(ctx, EventSMSRequested, s.source, phone, map[string]interface{}{
		"to":   phone,
		"text": text,
	})
	if err != nil {
		return fmt.Errorf("queueing sms: %w", err)
	}
	return nil
}

// DecodeOutboxEvent extracts the recipient and body from an sms.requested payload.
func DecodeOutboxEvent(data map[string]interface{}) (phone, text string, err error) {
	phone, _ = data["to"].(string)
	text, _ = data["text"].(string)
	if phone == "" || text == "" {
		return "", "", fmt.Errorf("sms event missing recipient or text")
	}
	return phone, text, nil
}
