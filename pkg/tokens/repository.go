package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository is the postgres-backed Store. The database must be opened with TranslateError.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Record{})
}

func (r *Repository) Create(ctx context.Context, rec *Record) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("persisting response token: %w", err)
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&Record{}).Where("token = ?", rec.Token).Count(&count).Error; err != nil {
		return fmt.Errorf("checking token collision: %w", err)
	}
	if count > 0 {
		return errCollision
	}
	return ErrAlreadyIssued
}

func (r *Repository) Redeem(ctx context.Context, token string, cutoff, now time.Time) (*Record, error) {
	result := r.db.WithContext(ctx).Model(&Record{}).
		Where("token = ? AND used = ? AND created_at >= ?", token, false, cutoff).
		Updates(map[string]interface{}{
			"used":    true,
			"used_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("redeeming response token: %w", result.Error)
	}

	rec, err := r.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 1 {
		return rec, nil
	}
	if err := classify(rec, cutoff); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyUsed
}

func (r *Repository) Get(ctx context.Context, token string) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading response token: %w", err)
	}
	return &rec, nil
}

func (r *Repository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Record{})
	return result.RowsAffected, result.Error
}
