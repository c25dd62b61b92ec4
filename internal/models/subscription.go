package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// SessionRecord is one held mentorship session.
type SessionRecord struct {
	Date     time.Time `json:"date"`
	Duration int       `json:"duration"`
	Topic    string    `json:"topic"`
	Notes    string    `json:"notes,omitempty"`
	Status   string    `json:"status"`
}

type SessionHistory []SessionRecord

func (h SessionHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (h *SessionHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	return scanJSON(value, h)
}

// Subscription grants a user access to a plan for a bounded window.
type Subscription struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	UserID             uint               `gorm:"not null;index" json:"user_id"`
	User               *User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PlanType           PlanType           `gorm:"size:20;not null;index:idx_subscription_plan" json:"plan_type"`
	PlanID             uint               `gorm:"not null;index:idx_subscription_plan" json:"plan_id"`
	Status             SubscriptionStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	StartDate          time.Time          `gorm:"not null" json:"start_date"`
	EndDate            time.Time          `gorm:"not null;index" json:"end_date"`
	PaymentID          *uuid.UUID         `gorm:"type:uuid;index" json:"payment_id,omitempty"`
	Amount             decimal.Decimal    `gorm:"type:decimal(18,2);not null" json:"amount"`
	Duration           PlanDuration       `gorm:"size:20;not null" json:"duration"`
	AutoRenew          bool               `gorm:"default:true" json:"auto_renew"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	CancellationReason string             `gorm:"size:500" json:"cancellation_reason,omitempty"`
	SessionCount       int                `gorm:"default:0" json:"session_count"`
	MaxSessions        int                `gorm:"default:4" json:"max_sessions"`
	NextSessionDate    *time.Time         `json:"next_session_date,omitempty"`
	SessionHistory     SessionHistory     `gorm:"type:text" json:"session_history"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// IsCurrent reports whether the subscription is active and unexpired at now.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(now)
}
