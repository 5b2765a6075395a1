package responses

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloodbridge/platform/pkg/common/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("donor response not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.DonorResponse{})
}

func (r *Repository) Create(ctx context.Context, resp *models.DonorResponse) error {
	if err := r.db.WithContext(ctx).Create(resp).Error; err != nil {
		return fmt.Errorf("persisting donor response: %w", err)
	}
	return nil
}

// ListForRequest returns every response for a request, newest first.
func (r *Repository) ListForRequest(ctx context.Context, requestID string) ([]models.DonorResponse, error) {
	var out []models.DonorResponse
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("responded_at DESC").
		Order("seq DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing donor responses: %w", err)
	}
	return out, nil
}

// LastForRequestGroup returns the most recent response from a donor of group.
// Equal timestamps resolve to the row written last.
func (r *Repository) LastForRequestGroup(ctx context.Context, requestID string, group models.BloodGroup) (*models.DonorResponse, error) {
	var resp models.DonorResponse
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND blood_group = ?", requestID, group).
		Order("responded_at DESC").
		Order("seq DESC").
		First(&resp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading last donor response: %w", err)
	}
	return &resp, nil
}
