package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanTypeSignal     PlanType = "signal_plan"
	PlanTypeMentorship PlanType = "mentorship"
)

func (t PlanType) Valid() bool {
	return t == PlanTypeSignal || t == PlanTypeMentorship
}

type PlanDuration string

const (
	PlanDurationMonthly    PlanDuration = "monthly"
	PlanDurationQuarterly  PlanDuration = "quarterly"
	PlanDurationSemiAnnual PlanDuration = "semi-annual"
	PlanDurationAnnual     PlanDuration = "annual"
)

func (d PlanDuration) Valid() bool {
	switch d {
	case PlanDurationMonthly, PlanDurationQuarterly, PlanDurationSemiAnnual, PlanDurationAnnual:
		return true
	}
	return false
}

// EndDate returns the end of a subscription period starting at start.
// Unknown durations run for one month.
func (d PlanDuration) EndDate(start time.Time) time.Time {
	switch d {
	case PlanDurationQuarterly:
		return start.AddDate(0, 3, 0)
	case PlanDurationSemiAnnual:
		return start.AddDate(0, 6, 0)
	case PlanDurationAnnual:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// PlanBase holds the fields shared by every subscribable plan.
type PlanBase struct {
	Name               string           `gorm:"size:200;not null" json:"name"`
	Description        string           `gorm:"type:text" json:"description"`
	Price              decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"price"`
	OriginalPrice      *decimal.Decimal `gorm:"type:decimal(18,2)" json:"original_price,omitempty"`
	Duration           PlanDuration     `gorm:"size:20;not null;default:monthly" json:"duration"`
	Features           StringList       `gorm:"type:text" json:"features"`
	IsActive           bool             `gorm:"default:true;index" json:"is_active"`
	IsPopular          bool             `gorm:"default:false" json:"is_popular"`
	MaxSubscribers     *int             `json:"max_subscribers"`
	CurrentSubscribers int              `gorm:"not null;default:0" json:"current_subscribers"`
	CreatedByID        uint             `gorm:"index" json:"created_by_id"`
}

// IsFull reports whether a capped plan has no seats left.
func (p *PlanBase) IsFull() bool {
	return p.MaxSubscribers != nil && p.CurrentSubscribers >= *p.MaxSubscribers
}

// SignalPlan sells access to a trading-signal chatbox.
type SignalPlan struct {
	ID uint `gorm:"primaryKey" json:"id"`
	PlanBase
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SignalPlan) TableName() string {
	return "signal_plans"
}

// MentorshipPlan sells a number of monthly sessions with a mentor.
type MentorshipPlan struct {
	ID uint `gorm:"primaryKey" json:"id"`
	PlanBase
	MentorName          string    `gorm:"size:100" json:"mentor_name"`
	MaxSessionsPerMonth int       `gorm:"default:4" json:"max_sessions_per_month"`
	SessionDuration     int       `gorm:"default:60" json:"session_duration"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (MentorshipPlan) TableName() string {
	return "mentorship_plans"
}

// PlanTable maps a plan type to its table.
func PlanTable(t PlanType) string {
	if t == PlanTypeMentorship {
		return MentorshipPlan{}.TableName()
	}
	return SignalPlan{}.TableName()
}
