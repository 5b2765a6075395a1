package dispatch

import (
	"fmt"
	"time"

	"github.com/bloodbridge/platform/pkg/common/models"
)

// Input is what a hospital files; HospitalID comes from the authenticated caller.
type Input struct {
	HospitalID   string
	HospitalName string
	BloodGroup   string
	Units        int
	Urgency      string
	Notes        string
}

type Stage string

const (
	StageToken Stage = "token"
	StageSMS   Stage = "sms"
)

// Failure is one donor that could not be reached. Failures never fail the dispatch.
type Failure struct {
	DonorID string `json:"donorId"`
	Stage   Stage  `json:"stage"`
	Error   string `json:"error"`
}

type Result struct {
	Request       *models.BloodRequest
	NotifiedCount int
	Failures      []Failure
}

// MatchError means the request was filed but the donor directory could not be
// queried, so nobody was notified. Callers must not re-file Request.
type MatchError struct {
	Request *models.BloodRequest
	Err     error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("matching donors for request %s: %v", e.Request.ID, e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// notifiedDonor is one row of a request's append-only notified list.
type notifiedDonor struct {
	RequestID  string    `gorm:"primaryKey;column:request_id"`
	DonorID    string    `gorm:"primaryKey;column:donor_id"`
	NotifiedAt time.Time `gorm:"column:notified_at"`
}

func (notifiedDonor) TableName() string {
	return "request_notified_donors"
}
