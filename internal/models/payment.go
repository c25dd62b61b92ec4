package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentType string

const (
	PaymentTypeChallenge       PaymentType = "challenge"
	PaymentTypeSignalPlan      PaymentType = "signal_plan"
	PaymentTypeMentorship      PaymentType = "mentorship"
	PaymentTypePropFirmService PaymentType = "prop_firm_service"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeChallenge, PaymentTypeSignalPlan, PaymentTypeMentorship, PaymentTypePropFirmService:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// PaymentMetadata describes what a payment buys.
type PaymentMetadata struct {
	Type       PaymentType `gorm:"size:30;not null;index" json:"type"`
	UserEmail  string      `gorm:"size:255" json:"user_email"`
	UserName   string      `gorm:"size:200" json:"user_name"`
	EntityName string      `gorm:"size:200" json:"entity_name"`
}

// Payment is a single gateway charge.
type Payment struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                uint            `gorm:"not null;index" json:"user_id"`
	ChallengeID           *uint           `gorm:"index" json:"challenge_id,omitempty"`
	PlanID                *uint           `gorm:"index" json:"plan_id,omitempty"`
	PackageID             *uint           `gorm:"index" json:"package_id,omitempty"`
	ServiceID             *uint           `gorm:"index" json:"service_id,omitempty"`
	Amount                decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency              string          `gorm:"size:3;not null;default:USD" json:"currency"`
	Status                PaymentStatus   `gorm:"size:20;not null;default:pending;index" json:"status"`
	PaymentMethod         string          `gorm:"size:50" json:"payment_method,omitempty"`
	StripePaymentIntentID string          `gorm:"size:255;uniqueIndex" json:"stripe_payment_intent_id"`
	StripeClientSecret    string          `gorm:"size:255" json:"-"`
	StripeCustomerID      string          `gorm:"size:255" json:"stripe_customer_id,omitempty"`
	TransactionID         string          `gorm:"size:255" json:"transaction_id,omitempty"`
	FailureReason         string          `gorm:"size:500" json:"failure_reason,omitempty"`
	RefundedAmount        decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"refunded_amount"`
	Metadata              PaymentMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// AmountInCents converts the amount to the gateway's minor unit.
func (p *Payment) AmountInCents() int64 {
	return p.Amount.Shift(2).Round(0).IntPart()
}
