package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrHospitalNotFound = errors.New("hospital not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrSlugTaken        = errors.New("hospital slug already registered")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Hospital{}, &Account{})
}

func (r *Repository) CreateHospital(ctx context.Context, name, slug string) (*Hospital, error) {
	now := time.Now().UTC()
	h := &Hospital{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Slug:      strings.ToLower(strings.TrimSpace(slug)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).Create(h).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, fmt.Errorf("persisting hospital: %w", err)
	}
	return h, nil
}

func (r *Repository) GetHospital(ctx context.Context, id string) (*Hospital, error) {
	var h Hospital
	err := r.db.WithContext(ctx).First(&h, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHospitalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading hospital: %w", err)
	}
	return &h, nil
}

func (r *Repository) CreateAccount(ctx context.Context, acc *Account) error {
	now := time.Now().UTC()
	acc.ID = uuid.New().String()
	acc.Email = normalizeEmail(acc.Email)
	acc.CreatedAt = now
	acc.UpdatedAt = now

	err := r.db.WithContext(ctx).Create(acc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("persisting account: %w", err)
	}
	return nil
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var acc Account
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return &acc, nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (*Account, error) {
	var acc Account
	err := r.db.WithContext(ctx).First(&acc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return &acc, nil
}

func (r *Repository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Account{}).Count(&count).Error
	return count, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
