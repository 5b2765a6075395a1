package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type BloodGroup string

const (
	APositive  BloodGroup = "A+"
	ANegative  BloodGroup = "A-"
	BPositive  BloodGroup = "B+"
	BNegative  BloodGroup = "B-"
	ABPositive BloodGroup = "AB+"
	ABNegative BloodGroup = "AB-"
	OPositive  BloodGroup = "O+"
	ONegative  BloodGroup = "O-"
)

// BloodGroups lists the eight canonical ABO/Rh types.
var BloodGroups = []BloodGroup{
	APositive, ANegative, BPositive, BNegative, ABPositive, ABNegative, OPositive, ONegative,
}

func (g BloodGroup) Valid() bool {
	for _, known := range BloodGroups {
		if g == known {
			return true
		}
	}
	return false
}

// ParseBloodGroup accepts surrounding whitespace and lower case ("ab+").
func ParseBloodGroup(raw string) (BloodGroup, bool) {
	g := BloodGroup(strings.ToUpper(strings.TrimSpace(raw)))
	return g, g.Valid()
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func ParseUrgency(raw string) (Urgency, bool) {
	u := Urgency(strings.ToLower(strings.TrimSpace(raw)))
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return u, true
	}
	return u, false
}

type Donor struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	Name       string     `json:"name" gorm:"column:name"`
	Phone      string     `json:"phone" gorm:"column:phone;uniqueIndex"`
	BloodGroup BloodGroup `json:"bloodGroup" gorm:"column:blood_group;index"`
	City       string     `json:"city,omitempty" gorm:"column:city"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"column:created_at"`
}

func (Donor) TableName() string {
	return "donors"
}

// BloodRequest is created once per dispatch; NotifiedDonors is append-only and duplicate free.
type BloodRequest struct {
	ID             string     `json:"id" gorm:"primaryKey;column:id"`
	HospitalID     string     `json:"hospitalId" gorm:"column:hospital_id;index"`
	HospitalName   string     `json:"hospitalName" gorm:"column:hospital_name"`
	BloodGroup     BloodGroup `json:"bloodGroup" gorm:"column:blood_group"`
	Units          int        `json:"units" gorm:"column:units"`
	Urgency        Urgency    `json:"urgency" gorm:"column:urgency"`
	Notes          string     `json:"notes,omitempty" gorm:"column:notes"`
	NotifiedCount  int        `json:"notifiedCount" gorm:"column:notified_count"`
	NotifiedDonors []string   `json:"notifiedDonors" gorm:"-"`
	CreatedAt      time.Time  `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" gorm:"column:updated_at"`
}

func (BloodRequest) TableName() string {
	return "blood_requests"
}

// DonorResponse rows are ordered by RespondedAt, then Seq (insertion order) for ties.
type DonorResponse struct {
	Seq         uint64     `json:"-" gorm:"primaryKey;autoIncrement;column:seq"`
	ID          string     `json:"id" gorm:"column:id;uniqueIndex"`
	RequestID   string     `json:"requestId" gorm:"column:request_id;index:idx_responses_request_group,priority:1"`
	DonorID     string     `json:"donorId" gorm:"column:donor_id;index"`
	BloodGroup  BloodGroup `json:"bloodGroup" gorm:"column:blood_group;index:idx_responses_request_group,priority:2"`
	Latitude    float64    `json:"latitude" gorm:"column:latitude"`
	Longitude   float64    `json:"longitude" gorm:"column:longitude"`
	Available   bool       `json:"isAvailable" gorm:"column:available"`
	Address     string     `json:"address,omitempty" gorm:"column:address"`
	Token       string     `json:"-" gorm:"column:token;uniqueIndex"`
	RespondedAt time.Time  `json:"respondedAt" gorm:"column:responded_at;index"`
}

func (DonorResponse) TableName() string {
	return "donor_responses"
}

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification with an empty HospitalID is global.
type Notification struct {
	Seq        uint64            `json:"-" gorm:"primaryKey;autoIncrement;column:seq"`
	ID         string            `json:"id" gorm:"column:id;uniqueIndex"`
	HospitalID string            `json:"hospitalId,omitempty" gorm:"column:hospital_id;index"`
	Type       NotificationType  `json:"type" gorm:"column:type"`
	Title      string            `json:"title" gorm:"column:title"`
	Message    string            `json:"message" gorm:"column:message"`
	RequestID  string            `json:"requestId,omitempty" gorm:"column:request_id"`
	DonorID    string            `json:"donorId,omitempty" gorm:"column:donor_id"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	Read       bool              `json:"read" gorm:"column:is_read"`
	CreatedAt  time.Time         `json:"createdAt" gorm:"column:created_at;index"`
}

func (Notification) TableName() string {
	return "notifications"
}

const (
	LiveEventNotification = "notification"
	LiveEventPing         = "ping"
)

// LiveEvent is one NDJSON line on the live-update channel.
type LiveEvent struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // notification.created, sms.requested
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
