package notifications

import (
	"context"
	"time"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const EventNotificationCreated = "notification.created"

type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Broadcaster is satisfied by *live.Hub.
type Broadcaster interface {
	Publish(n models.Notification) int
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

// Service turns state changes into notifications: stored for history, pushed to
// live subscribers and, when configured, mirrored to the audit topic.
type Service struct {
	store   Store
	hub     Broadcaster
	audit   EventPublisher
	source  string
	nowFunc func() time.Time
}

func NewService(store Store, hub Broadcaster, audit EventPublisher, source string) *Service {
	return &Service{
		store:   store,
		hub:     hub,
		audit:   audit,
		source:  source,
		nowFunc: time.Now,
	}
}

// Emit stores n and broadcasts it. Live delivery happens even when the durable write
// fails; the write error is still returned so the caller can log it.
func (s *Service) Emit(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}
	n.CreatedAt = s.nowFunc().UTC()
	n.Read = false

	storeErr := s.store.Create(ctx, &n)
	if storeErr != nil {
		logger.Log.WithError(storeErr).WithField("notification_id", n.ID).Error("failed to persist notification")
	}

	delivered := 0
	if s.hub != nil {
		delivered = s.hub.Publish(n)
	}

	if s.audit != nil {
		err := s.audit.PublishEvent(ctx, EventNotificationCreated, s.source, n.HospitalID, auditPayload(n))
		if err != nil {
			logger.Log.WithError(err).WithField("notification_id", n.ID).Warn("failed to mirror notification to audit topic")
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"notification_id": n.ID,
		"hospital_id":     n.HospitalID,
		"type":            n.Type,
		"live_delivered":  delivered,
	}).Debug("notification emitted")

	return n, storeErr
}

func auditPayload(n models.Notification) map[string]interface{} {
	payload := map[string]interface{}{
		"notification_id": n.ID,
		"hospital_id":     n.HospitalID,
		"type":            string(n.Type),
		"title":           n.Title,
		"message":         n.Message,
		"request_id":      n.RequestID,
		"donor_id":        n.DonorID,
		"created_at":      n.CreatedAt,
	}
	if len(n.Metadata) > 0 {
		payload["metadata"] = map[string]interface{}(n.Metadata)
	}
	return payload
}

// Meta builds a metadata column value.
func Meta(kv map[string]interface{}) datatypes.JSONMap {
	return datatypes.JSONMap(kv)
}
