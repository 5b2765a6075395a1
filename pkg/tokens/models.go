package tokens

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("response token not found")
	ErrExpired     = errors.New("response token expired")
	ErrAlreadyUsed = errors.New("response token already used")

	ErrAlreadyIssued = errors.New("response token already issued for request and donor")
	errCollision     = errors.New("response token collision")
)

// DefaultTTL is how long a response link stays redeemable.
const DefaultTTL = 24 * time.Hour

type Record struct {
	Token     string     `json:"token" gorm:"primaryKey;column:token"`
	RequestID string     `json:"request_id" gorm:"column:request_id;uniqueIndex:ux_response_tokens_pair,priority:1"`
	DonorID   string     `json:"donor_id" gorm:"column:donor_id;uniqueIndex:ux_response_tokens_pair,priority:2"`
	Used      bool       `json:"used" gorm:"column:used"`
	UsedAt    *time.Time `json:"used_at,omitempty" gorm:"column:used_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at;index"`
}

func (Record) TableName() string {
	return "response_tokens"
}

// Binding is what a redeemed token authorizes.
type Binding struct {
	RequestID string    `json:"requestId"`
	DonorID   string    `json:"donorId"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Reason maps a redemption failure to the code shown on the rejected link page.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used"
	}
	return ""
}

// IsRedeemFailure reports whether err is one of the user-facing link failures.
func IsRedeemFailure(err error) bool {
	return Reason(err) != ""
}

func classify(rec *Record, cutoff time.Time) error {
	if rec.CreatedAt.Before(cutoff) {
		return ErrExpired
	}
	if rec.Used {
		return ErrAlreadyUsed
	}
	return nil
}
