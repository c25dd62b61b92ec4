package models

import (
	"time"
)

type SenderType string

const (
	SenderTypeAdmin SenderType = "admin"
	SenderTypeUser  SenderType = "user"
)

type MessageType string

const (
	MessageTypeSignal       MessageType = "signal"
	MessageTypeAnnouncement MessageType = "announcement"
	MessageTypeGeneral      MessageType = "general"
)

func (t MessageType) Valid() bool {
	return t == MessageTypeSignal || t == MessageTypeAnnouncement || t == MessageTypeGeneral
}

// MaxMessageLength bounds chat and support message content.
const MaxMessageLength = 2000

type ChatboxSettings struct {
	AllowUserMessages    bool `gorm:"default:false" json:"allow_user_messages"`
	AutoDeleteMessages   bool `gorm:"default:false" json:"auto_delete_messages"`
	MessageRetentionDays int  `gorm:"default:30" json:"message_retention_days"`
}

// Chatbox is the message room attached to one plan.
type Chatbox struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	PlanType    PlanType            `gorm:"size:20;not null;uniqueIndex:idx_chatbox_plan" json:"plan_type"`
	PlanID      uint                `gorm:"not null;uniqueIndex:idx_chatbox_plan" json:"plan_id"`
	Name        string              `gorm:"size:200" json:"name"`
	Settings    ChatboxSettings     `gorm:"embedded;embeddedPrefix:setting_" json:"settings"`
	ViewCount   int                 `gorm:"default:0" json:"view_count"`
	Messages    []ChatMessage       `gorm:"foreignKey:ChatboxID" json:"messages,omitempty"`
	Subscribers []ChatboxSubscriber `gorm:"foreignKey:ChatboxID" json:"subscribers,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (Chatbox) TableName() string {
	return "chatboxes"
}

type ChatMessage struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ChatboxID   uint        `gorm:"not null;index" json:"chatbox_id"`
	SenderID    uint        `gorm:"not null" json:"sender_id"`
	Sender      *User       `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	SenderType  SenderType  `gorm:"size:10;not null" json:"sender_type"`
	Content     string      `gorm:"size:2000;not null" json:"content"`
	MessageType MessageType `gorm:"size:20;not null;default:general" json:"message_type"`
	SignalData  JSONB       `gorm:"type:text" json:"signal_data,omitempty"`
	IsPinned    bool        `gorm:"default:false;index" json:"is_pinned"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

type ChatboxSubscriber struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ChatboxID      uint      `gorm:"not null;uniqueIndex:idx_chatbox_subscriber" json:"chatbox_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_chatbox_subscriber" json:"user_id"`
	SubscriptionID *uint     `json:"subscription_id,omitempty"`
	JoinedAt       time.Time `json:"joined_at"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
}

func (ChatboxSubscriber) TableName() string {
	return "chatbox_subscribers"
}
