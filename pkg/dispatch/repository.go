package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloodbridge/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRequestNotFound = errors.New("blood request not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.BloodRequest{}, &notifiedDonor{})
}

func (r *Repository) Create(ctx context.Context, req *models.BloodRequest) error {
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	req.NotifiedCount = 0
	if req.NotifiedDonors == nil {
		req.NotifiedDonors = []string{}
	}
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("persisting blood request: %w", err)
	}
	return nil
}

// AppendNotified merges donorIDs into the request's notified list in one transaction.
// Donors already on the list are skipped, so the list stays duplicate free.
func (r *Repository) AppendNotified(ctx context.Context, requestID string, donorIDs []string) error {
	if len(donorIDs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]notifiedDonor, 0, len(donorIDs))
	for _, id := range donorIDs {
		rows = append(rows, notifiedDonor{RequestID: requestID, DonorID: id, NotifiedAt: now})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return err
		}
		result := tx.Model(&models.BloodRequest{}).
			Where("id = ?", requestID).
			Updates(map[string]interface{}{
				"notified_count": gorm.Expr("(SELECT COUNT(*) FROM request_notified_donors WHERE request_id = ?)", requestID),
				"updated_at":     now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRequestNotFound
		}
		return nil
	})
	if errors.Is(err, ErrRequestNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("recording notified donors: %w", err)
	}
	return nil
}

// Get loads a request together with its notified list in notification order.
func (r *Repository) Get(ctx context.Context, id string) (*models.BloodRequest, error) {
	var req models.BloodRequest
	result := r.db.WithContext(ctx).First(&req, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("loading blood request: %w", result.Error)
	}

	var rows []notifiedDonor
	err := r.db.WithContext(ctx).
		Where("request_id = ?", id).
		Order("notified_at ASC").
		Order("donor_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading notified donors: %w", err)
	}

	req.NotifiedDonors = make([]string, 0, len(rows))
	for _, row := range rows {
		req.NotifiedDonors = append(req.NotifiedDonors, row.DonorID)
	}
	return &req, nil
}
