package identity

import "time"

// Hospital is the tenant every staff account and blood request belongs to.
type Hospital struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Name      string    `json:"name" gorm:"column:name"`
	Slug      string    `json:"slug" gorm:"column:slug;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"column:updated_at"`
}

func (Hospital) TableName() string {
	return "hospitals"
}

type Account struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	HospitalID   string    `json:"hospitalId" gorm:"column:hospital_id;index"`
	Email        string    `json:"email" gorm:"column:email;uniqueIndex"`
	Name         string    `json:"name" gorm:"column:name"`
	Role         string    `json:"role" gorm:"column:role;index"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	CreatedAt    time.Time `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

type BootstrapInput struct {
	HospitalName string `json:"hospitalName"`
	HospitalSlug string `json:"hospitalSlug"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Password     string `json:"password"`
}

// RegisterInput adds a staff account. Admins may target any hospital or create a new
// one by name; hospital staff can only add colleagues to their own hospital.
type RegisterInput struct {
	HospitalID   string `json:"hospitalId"`
	HospitalName string `json:"hospitalName"`
	HospitalSlug string `json:"hospitalSlug"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Password     string `json:"password"`
	Role         string `json:"role"`
}
