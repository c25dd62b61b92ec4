package models

import (
	"time"
)

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

type TicketCategory string

const (
	TicketCategoryTechnical      TicketCategory = "technical"
	TicketCategoryBilling        TicketCategory = "billing"
	TicketCategoryGeneral        TicketCategory = "general"
	TicketCategoryFeatureRequest TicketCategory = "feature_request"
	TicketCategoryBugReport      TicketCategory = "bug_report"
)

func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryTechnical, TicketCategoryBilling, TicketCategoryGeneral,
		TicketCategoryFeatureRequest, TicketCategoryBugReport:
		return true
	}
	return false
}

type SupportTicket struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	TicketNumber string           `gorm:"size:20;uniqueIndex;not null" json:"ticket_number"`
	UserID       uint             `gorm:"not null;index" json:"user_id"`
	User         *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Subject      string           `gorm:"size:200;not null" json:"subject"`
	Category     TicketCategory   `gorm:"size:30;not null;default:general;index" json:"category"`
	Priority     TicketPriority   `gorm:"size:10;not null;default:medium;index" json:"priority"`
	Status       TicketStatus     `gorm:"size:20;not null;default:open;index" json:"status"`
	Messages     []SupportMessage `gorm:"foreignKey:TicketID" json:"messages,omitempty"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (SupportTicket) TableName() string {
	return "support_tickets"
}

type SupportMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TicketID  uint      `gorm:"not null;index" json:"ticket_id"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	IsAdmin   bool      `gorm:"default:false" json:"is_admin"`
	Content   string    `gorm:"size:2000;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (SupportMessage) TableName() string {
	return "support_messages"
}
