package models

import (
	"time"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// TradingStats is the denormalized summary of a user's challenge results.
// It is always recomputed from participant rows, never incremented.
type TradingStats struct {
	TotalChallenges     int     `gorm:"default:0" json:"total_challenges"`
	CompletedChallenges int     `gorm:"default:0" json:"completed_challenges"`
	TotalProfit         float64 `gorm:"default:0" json:"total_profit"`
	WinRate             float64 `gorm:"default:0" json:"win_rate"`
	Rank                *int    `json:"rank"`
}

// MT5Credentials are the external trading-account credentials used by the
// hourly leaderboard poll.
type MT5Credentials struct {
	AccountID string `gorm:"size:100" json:"account_id"`
	Password  string `gorm:"size:255" json:"-"`
	Server    string `gorm:"size:255" json:"server"`
}

// Complete reports whether every credential field is present.
func (c MT5Credentials) Complete() bool {
	return c.AccountID != "" && c.Password != "" && c.Server != ""
}

// User represents a user in the system
type User struct {
	ID                uint               `gorm:"primaryKey" json:"id"`
	Username          string             `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email             string             `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash      string             `gorm:"size:255;not null" json:"-"`
	FirstName         string             `gorm:"size:100" json:"first_name"`
	LastName          string             `gorm:"size:100" json:"last_name"`
	Avatar            *string            `gorm:"size:500" json:"avatar,omitempty"`
	Role              UserRole           `gorm:"size:20;not null;default:user;index" json:"role"`
	IsActive          bool               `gorm:"default:true;index" json:"is_active"`
	IsPremium         bool               `gorm:"default:false;index" json:"is_premium"`
	TradingStats      TradingStats       `gorm:"embedded;embeddedPrefix:stats_" json:"trading_stats"`
	MT5Credentials    MT5Credentials     `gorm:"embedded;embeddedPrefix:mt5_" json:"mt5_credentials"`
	PushSubscriptions []PushSubscription `gorm:"foreignKey:UserID" json:"-"`
	LastLogin         *time.Time         `json:"last_login,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// PushSubscription is a browser web-push endpoint registered by a user.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Endpoint  string    `gorm:"size:1000;uniqueIndex;not null" json:"endpoint"`
	P256dh    string    `gorm:"size:255;not null" json:"p256dh"`
	Auth      string    `gorm:"size:255;not null" json:"auth"`
	Expired   bool      `gorm:"default:false;index" json:"expired"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
