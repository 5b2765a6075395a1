package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloodbridge/platform/pkg/common/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notification not found")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.Notification{})
}

func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("persisting notification: %w", err)
	}
	return nil
}

// ListForHospital returns the hospital's own and global notifications, newest first.
func (r *Repository) ListForHospital(ctx context.Context, hospitalID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := r.db.WithContext(ctx).
		Where("hospital_id = ? OR hospital_id = ?", hospitalID, "")
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var out []models.Notification
	err := query.
		Order("created_at DESC").
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return out, nil
}

// MarkRead acknowledges a notification visible to hospitalID.
func (r *Repository) MarkRead(ctx context.Context, id, hospitalID string) error {
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND (hospital_id = ? OR hospital_id = ?)", id, hospitalID, "").
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("marking notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
