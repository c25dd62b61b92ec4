package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeGeneral      NotificationType = "general"
	NotificationTypeChallenge    NotificationType = "challenge"
	NotificationTypePromotion    NotificationType = "promotion"
	NotificationTypeAnnouncement NotificationType = "announcement"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeGeneral, NotificationTypeChallenge, NotificationTypePromotion, NotificationTypeAnnouncement:
		return true
	}
	return false
}

type TargetAudience string

const (
	AudienceAll                   TargetAudience = "all"
	AudienceActive                TargetAudience = "active"
	AudienceChallengeParticipants TargetAudience = "challenge_participants"
	AudiencePremium               TargetAudience = "premium"
	AudienceSignalPlanSubscribers TargetAudience = "signal_plan_subscribers"
	AudienceSpecificSignalPlan    TargetAudience = "specific_signal_plan"
	AudienceSpecificCompetition   TargetAudience = "specific_competition"
)

func (a TargetAudience) Valid() bool {
	switch a {
	case AudienceAll, AudienceActive, AudienceChallengeParticipants, AudiencePremium,
		AudienceSignalPlanSubscribers, AudienceSpecificSignalPlan, AudienceSpecificCompetition:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationStatusDraft     NotificationStatus = "draft"
	NotificationStatusScheduled NotificationStatus = "scheduled"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusFailed    NotificationStatus = "failed"
)

type DeliveryStats struct {
	TotalSent      int `gorm:"default:0" json:"total_sent"`
	DeliveredCount int `gorm:"default:0" json:"delivered_count"`
	FailedCount    int `gorm:"default:0" json:"failed_count"`
	OpenedCount    int `gorm:"default:0" json:"opened_count"`
	ClickCount     int `gorm:"default:0" json:"click_count"`
}

const (
	MaxNotificationTitle   = 100
	MaxNotificationMessage = 500
)

// Notification is an admin-authored push broadcast.
type Notification struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	Title          string             `gorm:"size:100;not null" json:"title"`
	Message        string             `gorm:"size:500;not null" json:"message"`
	Type           NotificationType   `gorm:"size:20;not null;default:general" json:"type"`
	TargetAudience TargetAudience     `gorm:"size:40;not null;default:all" json:"target_audience"`
	Status         NotificationStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	ScheduledTime  *time.Time         `gorm:"index" json:"scheduled_time,omitempty"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
	SignalPlanID   *uint              `json:"signal_plan_id,omitempty"`
	CompetitionID  *uint              `json:"competition_id,omitempty"`
	URL            string             `gorm:"size:500" json:"url,omitempty"`
	Data           JSONB              `gorm:"type:text" json:"data,omitempty"`
	DeliveryStats  DeliveryStats      `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery_stats"`
	CreatedByID    uint               `gorm:"index" json:"created_by_id"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
