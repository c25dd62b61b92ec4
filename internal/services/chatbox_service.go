package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
)

// ChatboxService manages the message rooms attached to plans.
type ChatboxService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewChatboxService(db *gorm.DB) *ChatboxService {
	return &ChatboxService{db: db, log: logger.Component("chatbox")}
}

// Viewer identifies who is reading or writing a chatbox.
type Viewer struct {
	UserID  uint
	IsAdmin bool
}

// EnsureForPlan returns the plan's chatbox, creating it on first use
func (s *ChatboxService) EnsureForPlan(ctx context.Context, tx *gorm.DB, t models.PlanType, planID uint, name string) (*models.Chatbox, error) {
	box := models.Chatbox{PlanType: t, PlanID: planID}
	err := tx.WithContext(ctx).
		Where(models.Chatbox{PlanType: t, PlanID: planID}).
		Attrs(models.Chatbox{Name: name, Settings: models.ChatboxSettings{MessageRetentionDays: 30}}).
		FirstOrCreate(&box).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure chatbox: %w", err)
	}
	return &box, nil
}

// DeleteForPlan removes a plan's chatbox with its messages and members
func (s *ChatboxService) DeleteForPlan(ctx context.Context, tx *gorm.DB, t models.PlanType, planID uint) error {
	var box models.Chatbox
	err := tx.WithContext(ctx).Where("plan_type = ? AND plan_id = ?", t, planID).First(&box).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := tx.Where("chatbox_id = ?", box.ID).Delete(&models.ChatMessage{}).Error; err != nil {
		return err
	}
	if err := tx.Where("chatbox_id = ?", box.ID).Delete(&models.ChatboxSubscriber{}).Error; err != nil {
		return err
	}
	return tx.Delete(&box).Error
}

// List returns every chatbox for the admin console
func (s *ChatboxService) List(ctx context.Context) ([]models.Chatbox, error) {
	var boxes []models.Chatbox
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&boxes).Error; err != nil {
		return nil, fmt.Errorf("failed to list chatboxes: %w", err)
	}
	return boxes, nil
}

func (s *ChatboxService) get(ctx context.Context, id uint) (*models.Chatbox, error) {
	var box models.Chatbox
	if err := s.db.WithContext(ctx).First(&box, id).Error; err != nil {
		return nil, mapNotFound(err, "Chatbox")
	}
	return &box, nil
}

// canAccess reports whether the viewer is an admin or holds a current
// subscription to the chatbox's plan.
func (s *ChatboxService) canAccess(ctx context.Context, box *models.Chatbox, v Viewer) (bool, error) {
	if v.IsAdmin {
		return true, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND plan_type = ? AND plan_id = ?", v.UserID, box.PlanType, box.PlanID).
		Where("status = ? AND end_date > ?", models.SubscriptionStatusActive, time.Now()).
		Count(&n).Error
	return n > 0, err
}

func (s *ChatboxService) authorize(ctx context.Context, box *models.Chatbox, v Viewer) error {
	ok, err := s.canAccess(ctx, box, v)
	if err != nil {
		return fmt.Errorf("failed to check chatbox access: %w", err)
	}
	if !ok {
		return ErrNoChatboxAccess
	}
	return nil
}

// GetByPlan returns the plan's chatbox and counts the view
func (s *ChatboxService) GetByPlan(ctx context.Context, t models.PlanType, planID uint, v Viewer) (*models.Chatbox, error) {
	var box models.Chatbox
	err := s.db.WithContext(ctx).Where("plan_type = ? AND plan_id = ?", t, planID).First(&box).Error
	if err != nil {
		return nil, mapNotFound(err, "Chatbox")
	}
	if err := s.authorize(ctx, &box, v); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Chatbox{}).Where("id = ?", box.ID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
		s.log.WithError(err).WithField("chatbox_id", box.ID).Warn("failed to count chatbox view")
	} else {
		box.ViewCount++
	}
	return &box, nil
}

type MessagePage struct {
	Messages   []models.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

// Messages lists a chatbox's messages, pinned first then newest first
func (s *ChatboxService) Messages(ctx context.Context, chatboxID uint, v Viewer, page PageRequest) (*MessagePage, error) {
	box, err := s.get(ctx, chatboxID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, box, v); err != nil {
		return nil, err
	}
	page = page.normalize(50)

	q := s.db.WithContext(ctx).Model(&models.ChatMessage{}).Where("chatbox_id = ?", chatboxID).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	var messages []models.ChatMessage
	err = q.Preload("Sender").
		Order("is_pinned DESC").Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.offset()).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return &MessagePage{Messages: messages, Pagination: newPagination(page, total)}, nil
}

type PostMessageRequest struct {
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"message_type"`
	SignalData  models.JSONB       `json:"signal_data"`
}

// PostMessage appends a message. Users may only post when the chatbox allows it.
func (s *ChatboxService) PostMessage(ctx context.Context, chatboxID uint, v Viewer, req *PostMessageRequest) (*models.ChatMessage, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, validationError("Message content is required", "content")
	}
	if len([]rune(content)) > models.MaxMessageLength {
		return nil, validationError(fmt.Sprintf("Message cannot exceed %d characters", models.MaxMessageLength), "content")
	}
	msgType := req.MessageType
	if msgType == "" {
		msgType = models.MessageTypeGeneral
	}
	if !msgType.Valid() {
		return nil, validationError("Invalid message type", "message_type")
	}

	box, err := s.get(ctx, chatboxID)
	if err != nil {
		return nil, err
	}
	sender := models.SenderTypeAdmin
	if !v.IsAdmin {
		if !box.Settings.AllowUserMessages {
			return nil, ErrUserMessagesDisabled
		}
		if err := s.authorize(ctx, box, v); err != nil {
			return nil, err
		}
		if msgType != models.MessageTypeGeneral {
			return nil, validationError("Only admins can post signals and announcements", "message_type")
		}
		sender = models.SenderTypeUser
	}

	msg := &models.ChatMessage{
		ChatboxID:   chatboxID,
		SenderID:    v.UserID,
		SenderType:  sender,
		Content:     content,
		MessageType: msgType,
		SignalData:  req.SignalData,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}

	if box.Settings.AutoDeleteMessages {
		if _, err := s.pruneChatbox(ctx, box, time.Now()); err != nil {
			s.log.WithError(err).WithField("chatbox_id", box.ID).Warn("message retention failed")
		}
	}
	return msg, nil
}

func (s *ChatboxService) message(ctx context.Context, chatboxID, messageID uint) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := s.db.WithContext(ctx).Where("id = ? AND chatbox_id = ?", messageID, chatboxID).First(&msg).Error
	if err != nil {
		return nil, mapNotFound(err, "Message")
	}
	return &msg, nil
}

// SetPinned pins or unpins a message
func (s *ChatboxService) SetPinned(ctx context.Context, chatboxID, messageID uint, pinned bool) (*models.ChatMessage, error) {
	msg, err := s.message(ctx, chatboxID, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(msg).Update("is_pinned", pinned).Error; err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	msg.IsPinned = pinned
	return msg, nil
}

// DeleteMessage removes a message. Users may only delete their own, and only
// while they still have access to the chatbox.
func (s *ChatboxService) DeleteMessage(ctx context.Context, chatboxID, messageID uint, v Viewer) error {
	msg, err := s.message(ctx, chatboxID, messageID)
	if err != nil {
		return err
	}
	if !v.IsAdmin {
		if msg.SenderID != v.UserID {
			return ErrForbidden
		}
		box, err := s.get(ctx, chatboxID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, box, v); err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).Delete(msg).Error
}

type ChatboxSettingsUpdate struct {
	AllowUserMessages    *bool `json:"allow_user_messages"`
	AutoDeleteMessages   *bool `json:"auto_delete_messages"`
	MessageRetentionDays *int  `json:"message_retention_days"`
}

func (s *ChatboxService) UpdateSettings(ctx context.Context, chatboxID uint, req *ChatboxSettingsUpdate) (*models.Chatbox, error) {
	if _, err := s.get(ctx, chatboxID); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if req.AllowUserMessages != nil {
		fields["setting_allow_user_messages"] = *req.AllowUserMessages
	}
	if req.AutoDeleteMessages != nil {
		fields["setting_auto_delete_messages"] = *req.AutoDeleteMessages
	}
	if req.MessageRetentionDays != nil {
		if *req.MessageRetentionDays < 1 {
			return nil, validationError("Retention must be at least one day", "message_retention_days")
		}
		fields["setting_message_retention_days"] = *req.MessageRetentionDays
	}
	if len(fields) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Chatbox{}).Where("id = ?", chatboxID).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update chatbox settings: %w", err)
		}
	}
	return s.get(ctx, chatboxID)
}

// AddSubscriber adds or reactivates a user's membership of a plan's chatbox
func (s *ChatboxService) AddSubscriber(ctx context.Context, tx *gorm.DB, t models.PlanType, planID, userID uint, subscriptionID *uint) error {
	box, err := s.EnsureForPlan(ctx, tx, t, planID, "")
	if err != nil {
		return err
	}
	member := models.ChatboxSubscriber{
		ChatboxID:      box.ID,
		UserID:         userID,
		SubscriptionID: subscriptionID,
		JoinedAt:       time.Now(),
		IsActive:       true,
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chatbox_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscription_id", "joined_at", "is_active"}),
	}).Create(&member).Error
}

// DeactivateSubscriber marks a user's membership inactive, keeping the row
func (s *ChatboxService) DeactivateSubscriber(ctx context.Context, tx *gorm.DB, t models.PlanType, planID, userID uint) error {
	sub := tx.WithContext(ctx).Model(&models.Chatbox{}).Select("id").Where("plan_type = ? AND plan_id = ?", t, planID)
	return tx.WithContext(ctx).Model(&models.ChatboxSubscriber{}).
		Where("chatbox_id IN (?) AND user_id = ?", sub, userID).
		Update("is_active", false).Error
}

// Subscribers lists a chatbox's members
func (s *ChatboxService) Subscribers(ctx context.Context, chatboxID uint) ([]models.ChatboxSubscriber, error) {
	var members []models.ChatboxSubscriber
	err := s.db.WithContext(ctx).Where("chatbox_id = ?", chatboxID).Order("joined_at ASC").Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chatbox subscribers: %w", err)
	}
	return members, nil
}

// PruneExpired deletes unpinned messages past each chatbox's retention window
func (s *ChatboxService) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	var boxes []models.Chatbox
	err := s.db.WithContext(ctx).Where("setting_auto_delete_messages = ?", true).Find(&boxes).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list chatboxes: %w", err)
	}
	var total int64
	for i := range boxes {
		n, err := s.pruneChatbox(ctx, &boxes[i], now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *ChatboxService) pruneChatbox(ctx context.Context, box *models.Chatbox, now time.Time) (int64, error) {
	days := box.Settings.MessageRetentionDays
	if days <= 0 {
		days = 30
	}
	cutoff := now.AddDate(0, 0, -days)
	res := s.db.WithContext(ctx).
		Where("chatbox_id = ? AND is_pinned = ? AND created_at < ?", box.ID, false, cutoff).
		Delete(&models.ChatMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune messages: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.WithFields(logrus.Fields{"chatbox_id": box.ID, "deleted": res.RowsAffected}).Info("pruned old messages")
	}
	return res.RowsAffected, nil
}
