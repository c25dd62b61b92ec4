package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PricingType string

const (
	PricingTypeOneTime          PricingType = "one-time"
	PricingTypeMonthly          PricingType = "monthly"
	PricingTypePerformanceBased PricingType = "performance-based"
	PricingTypeHybrid           PricingType = "hybrid"
)

func (t PricingType) Valid() bool {
	switch t {
	case PricingTypeOneTime, PricingTypeMonthly, PricingTypePerformanceBased, PricingTypeHybrid:
		return true
	}
	return false
}

type PackageRequirements struct {
	MinAccountSize     float64    `gorm:"default:0" json:"min_account_size"`
	SupportedPropFirms StringList `gorm:"type:text" json:"supported_prop_firms"`
	MaxDrawdown        float64    `gorm:"default:0" json:"max_drawdown"`
	ProfitTarget       float64    `gorm:"default:0" json:"profit_target"`
	MinTradingDays     int        `gorm:"default:0" json:"min_trading_days"`
}

// PropFirmPackage is a managed-account offering.
type PropFirmPackage struct {
	ID                 uint                `gorm:"primaryKey" json:"id"`
	Name               string              `gorm:"size:200;not null" json:"name"`
	Description        string              `gorm:"size:1000" json:"description"`
	PricingType        PricingType         `gorm:"size:30;not null;default:monthly;index" json:"pricing_type"`
	Features           StringList          `gorm:"type:text" json:"features"`
	Requirements       PackageRequirements `gorm:"embedded;embeddedPrefix:req_" json:"requirements"`
	IsActive           bool                `gorm:"default:true;index" json:"is_active"`
	IsPopular          bool                `gorm:"default:false" json:"is_popular"`
	MaxClients         *int                `json:"max_clients"`
	CurrentClients     int                 `gorm:"not null;default:0" json:"current_clients"`
	SuccessRate        float64             `gorm:"default:0" json:"success_rate"`
	CoversAllPhaseFees bool                `gorm:"default:false" json:"covers_all_phase_fees"`
	ServiceFee         decimal.Decimal     `gorm:"type:decimal(18,2);not null" json:"service_fee"`
	CreatedByID        uint                `gorm:"index" json:"created_by_id"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func (PropFirmPackage) TableName() string {
	return "prop_firm_packages"
}

func (p *PropFirmPackage) IsFull() bool {
	return p.MaxClients != nil && p.CurrentClients >= *p.MaxClients
}

type ServiceStatus string

const (
	ServiceStatusAwaitingPayment ServiceStatus = "awaiting_payment"
	ServiceStatusPending         ServiceStatus = "pending"
	ServiceStatusActive          ServiceStatus = "active"
	ServiceStatusSuspended       ServiceStatus = "suspended"
	ServiceStatusCompleted       ServiceStatus = "completed"
	ServiceStatusCancelled       ServiceStatus = "cancelled"
	ServiceStatusFailed          ServiceStatus = "failed"
)

func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceStatusAwaitingPayment, ServiceStatusPending, ServiceStatusActive, ServiceStatusSuspended,
		ServiceStatusCompleted, ServiceStatusCancelled, ServiceStatusFailed:
		return true
	}
	return false
}

type PropFirmRules struct {
	MaxDailyLoss float64 `json:"max_daily_loss"`
	MaxTotalLoss float64 `json:"max_total_loss"`
	ProfitTarget float64 `json:"profit_target"`
	TradingDays  int     `json:"trading_days"` // -1 means unlimited
	MaxPositions *int    `json:"max_positions,omitempty"`
}

const DefaultFirmName = "Custom Prop Firm"

type PropFirmDetails struct {
	FirmName        string        `gorm:"size:200" json:"firm_name"`
	AccountID       string        `gorm:"size:100" json:"account_id" binding:"required"`
	AccountPassword string        `gorm:"size:255" json:"account_password" binding:"required"`
	Server          string        `gorm:"size:255" json:"server" binding:"required"`
	AccountSize     float64       `json:"account_size" binding:"required,gt=0"`
	AccountType     string        `gorm:"size:20" json:"account_type"`
	ChallengePhase  string        `gorm:"size:20;default:N/A" json:"challenge_phase"`
	Rules           PropFirmRules `gorm:"embedded;embeddedPrefix:rule_" json:"rules"`
}

type ServiceNote struct {
	AuthorID  uint      `json:"author_id"`
	Content   string    `json:"content"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type ServiceNotes []ServiceNote

func (n ServiceNotes) Value() (driver.Value, error) {
	if n == nil {
		return "[]", nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (n *ServiceNotes) Scan(value interface{}) error {
	if value == nil {
		*n = nil
		return nil
	}
	return scanJSON(value, n)
}

// PropFirmService is a user's managed prop-firm account under a package.
type PropFirmService struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	UserID             uint             `gorm:"not null;index" json:"user_id"`
	User               *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PackageID          uint             `gorm:"not null;index" json:"package_id"`
	Package            *PropFirmPackage `gorm:"foreignKey:PackageID" json:"package,omitempty"`
	Status             ServiceStatus    `gorm:"size:20;not null;default:awaiting_payment;index" json:"status"`
	CancellationReason string           `gorm:"size:500" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	Details            PropFirmDetails  `gorm:"embedded;embeddedPrefix:firm_" json:"prop_firm_details"`
	PaymentID          *uuid.UUID       `gorm:"type:uuid;index" json:"payment_id,omitempty"`
	StartDate          time.Time        `json:"start_date"`
	EndDate            time.Time        `json:"end_date"`
	Notes              ServiceNotes     `gorm:"type:text" json:"notes"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (PropFirmService) TableName() string {
	return "prop_firm_services"
}

// MaxServiceChatLength caps one service chat message.
const MaxServiceChatLength = 1000

// ServiceChatMessage is one line of the conversation between a service's
// owner and the admins managing it.
type ServiceChatMessage struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ServiceID  uint       `gorm:"not null;index:idx_service_chat,priority:1" json:"service_id"`
	SenderID   uint       `gorm:"not null" json:"sender_id"`
	Sender     *User      `gorm:"foreignKey:SenderID" json:"-"`
	SenderType SenderType `gorm:"size:10;not null" json:"sender"`
	Message    string     `gorm:"size:1000;not null" json:"message"`
	IsRead     bool       `gorm:"default:false" json:"is_read"`
	CreatedAt  time.Time  `gorm:"index:idx_service_chat,priority:2" json:"timestamp"`
}

func (ServiceChatMessage) TableName() string {
	return "prop_firm_service_chats"
}
