package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChallengeType string

const (
	ChallengeTypeSwing      ChallengeType = "swing"
	ChallengeTypeScalp      ChallengeType = "scalp"
	ChallengeTypeDayTrading ChallengeType = "day-trading"
	ChallengeTypeScalping   ChallengeType = "scalping"
	ChallengeTypePosition   ChallengeType = "position"
	ChallengeTypeOther      ChallengeType = "other"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeTypeSwing, ChallengeTypeScalp, ChallengeTypeDayTrading,
		ChallengeTypeScalping, ChallengeTypePosition, ChallengeTypeOther:
		return true
	}
	return false
}

type ChallengeMode string

const (
	ChallengeModeTarget ChallengeMode = "target"
	ChallengeModeRank   ChallengeMode = "rank"
)

type ParticipantStatus string

const (
	ParticipantStatusPendingSetup ParticipantStatus = "pending_setup"
	ParticipantStatusActive       ParticipantStatus = "active"
	ParticipantStatusCompleted    ParticipantStatus = "completed"
	ParticipantStatusFailed       ParticipantStatus = "failed"
	ParticipantStatusWithdrawn    ParticipantStatus = "withdrawn"
)

func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantStatusPendingSetup, ParticipantStatusActive, ParticipantStatusCompleted,
		ParticipantStatusFailed, ParticipantStatusWithdrawn:
		return true
	}
	return false
}

// Requirements are informational trading limits shown to participants.
type Requirements struct {
	MinBalance   float64 `gorm:"default:0" json:"min_balance"`
	MaxDrawdown  float64 `gorm:"default:10" json:"max_drawdown"`
	TargetProfit float64 `gorm:"default:10" json:"target_profit"`
}

// Challenge is a time-boxed trading competition
type Challenge struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	Name                string          `gorm:"size:200;not null" json:"name"`
	Type                ChallengeType   `gorm:"size:30;not null;index" json:"type"`
	AccountSize         float64         `gorm:"not null" json:"account_size"`
	Price               decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"price"`
	Prizes              PrizeTable      `gorm:"type:text" json:"prizes"`
	MaxParticipants     int             `gorm:"not null;default:100" json:"max_participants"`
	CurrentParticipants int             `gorm:"not null;default:0" json:"current_participants"`
	StartDate           time.Time       `gorm:"not null;index" json:"start_date"`
	EndDate             time.Time       `gorm:"not null;index" json:"end_date"`
	Status              ChallengeStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	ChallengeMode       ChallengeMode   `gorm:"size:20;not null;default:target" json:"challenge_mode"`
	Description         string          `gorm:"type:text;not null" json:"description"`
	Rules               StringList      `gorm:"type:text" json:"rules"`
	Requirements        Requirements    `gorm:"embedded;embeddedPrefix:req_" json:"requirements"`
	CreatedByID         uint            `gorm:"not null;index" json:"created_by_id"`
	CreatedBy           *User           `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Participants        []Participant   `gorm:"foreignKey:ChallengeID" json:"participants,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// IsFree reports whether the challenge has no entry fee.
func (c *Challenge) IsFree() bool {
	return c.Price.IsZero()
}

// IsFull reports whether every seat is taken.
func (c *Challenge) IsFull() bool {
	return c.CurrentParticipants >= c.MaxParticipants
}

// MT5Account identifies the external trading account a participant trades on.
type MT5Account struct {
	ID       string `gorm:"size:100" json:"id"`
	Password string `gorm:"size:255" json:"password"`
	Server   string `gorm:"size:255" json:"server"`
}

// Complete reports whether id, password and server are all set.
func (a MT5Account) Complete() bool {
	return a.ID != "" && a.Password != "" && a.Server != ""
}

// Masked hides the password for user-facing responses.
func (a MT5Account) Masked() MT5Account {
	if a.Password != "" {
		a.Password = "***"
	}
	return a
}

// Participant is a user's enrollment in one challenge.
type Participant struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	ChallengeID    uint              `gorm:"not null;uniqueIndex:idx_participant_challenge_user" json:"challenge_id"`
	Challenge      *Challenge        `gorm:"foreignKey:ChallengeID" json:"challenge,omitempty"`
	UserID         uint              `gorm:"not null;uniqueIndex:idx_participant_challenge_user;index" json:"user_id"`
	User           *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	JoinedAt       time.Time         `json:"joined_at"`
	Status         ParticipantStatus `gorm:"size:20;not null;default:pending_setup;index" json:"status"`
	MT5Account     MT5Account        `gorm:"embedded;embeddedPrefix:mt5_" json:"mt5_account"`
	CurrentBalance float64           `gorm:"default:0" json:"current_balance"`
	Profit         float64           `gorm:"default:0" json:"profit"`
	ProfitPercent  float64           `gorm:"default:0;index" json:"profit_percent"`
	Rank           *int              `json:"rank"`
	PaymentID      *uuid.UUID        `gorm:"type:uuid" json:"payment_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Participant) TableName() string {
	return "challenge_participants"
}

// ProfitPercent is profit relative to balance, falling back to accountSize
// when balance is zero, and 0 when both are zero.
func ProfitPercent(profit, balance, accountSize float64) float64 {
	base := balance
	if base == 0 {
		base = accountSize
	}
	if base <= 0 {
		return 0
	}
	return profit / base * 100
}

// RecomputeProfitPercent refreshes ProfitPercent from Profit and CurrentBalance.
func (p *Participant) RecomputeProfitPercent(accountSize float64) {
	p.ProfitPercent = ProfitPercent(p.Profit, p.CurrentBalance, accountSize)
}
