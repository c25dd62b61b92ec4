package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Position is a summary of one open trade.
type Position struct {
	Symbol     string  `json:"symbol"`
	Volume     float64 `json:"volume"`
	EntryPrice float64 `json:"entry_price"`
	Profit     float64 `json:"profit"`
}

type Positions []Position

func (p Positions) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Positions) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	return scanJSON(value, p)
}

// LeaderboardEntry is the global ranking snapshot for one user.
type LeaderboardEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Username      string    `gorm:"size:50" json:"username"`
	FirstName     string    `gorm:"size:100" json:"first_name"`
	LastName      string    `gorm:"size:100" json:"last_name"`
	Avatar        *string   `gorm:"size:500" json:"avatar,omitempty"`
	AccountID     string    `gorm:"size:100" json:"account_id"`
	Balance       float64   `gorm:"default:0" json:"balance"`
	Equity        float64   `gorm:"default:0" json:"equity"`
	Profit        float64   `gorm:"default:0" json:"profit"`
	Margin        float64   `gorm:"default:0" json:"margin"`
	FreeMargin    float64   `gorm:"default:0" json:"free_margin"`
	MarginLevel   float64   `gorm:"default:0" json:"margin_level"`
	ProfitPercent float64   `gorm:"default:0;index" json:"profit_percent"`
	Positions     Positions `gorm:"type:text" json:"positions"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`
}

func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}

// RankedEntry is a leaderboard row with its position in the ordering.
type RankedEntry struct {
	Rank int `json:"rank"`
	LeaderboardEntry
}
