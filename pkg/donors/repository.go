package donors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("donor not found")
	ErrPhoneTaken = errors.New("phone number already registered")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.Donor{})
}

func (r *Repository) Create(ctx context.Context, donor *models.Donor) error {
	if donor.ID == "" {
		donor.ID = uuid.New().String()
	}
	donor.CreatedAt = time.Now().UTC()

	err := r.db.WithContext(ctx).Create(donor).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrPhoneTaken
	}
	if err != nil {
		return fmt.Errorf("persisting donor: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Donor, error) {
	var donor models.Donor
	err := r.db.WithContext(ctx).First(&donor, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading donor: %w", err)
	}
	return &donor, nil
}

// FindByBloodGroups returns donors whose group is in groups, oldest registration first.
func (r *Repository) FindByBloodGroups(ctx context.Context, groups []models.BloodGroup) ([]models.Donor, error) {
	if len(groups) == 0 {
		return []models.Donor{}, nil
	}

	var out []models.Donor
	err := r.db.WithContext(ctx).
		Where("blood_group IN ?", groups).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("querying donors by blood group: %w", err)
	}
	return out, nil
}

// NormalizePhone strips formatting, keeping a leading '+'.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, ch := range raw {
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '+' && i == 0:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
