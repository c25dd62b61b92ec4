package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
	"trading-challenges/internal/push"
)

// NotificationService authors push broadcasts and delivers them to the
// push endpoints of the targeted audience.
type NotificationService struct {
	db     *gorm.DB
	sender push.Sender
	log    *logrus.Entry
}

func NewNotificationService(db *gorm.DB, sender push.Sender) *NotificationService {
	return &NotificationService{db: db, sender: sender, log: logger.Component("notifications")}
}

// VAPIDPublicKey is the key browsers need to subscribe
func (s *NotificationService) VAPIDPublicKey() string {
	return s.sender.PublicKey()
}

type NotificationRequest struct {
	Title          string                  `json:"title" binding:"required,max=100"`
	Message        string                  `json:"message" binding:"required,max=500"`
	Type           models.NotificationType `json:"type"`
	TargetAudience models.TargetAudience   `json:"target_audience"`
	ScheduledTime  *time.Time              `json:"scheduled_time"`
	SignalPlanID   *uint                   `json:"signal_plan_id"`
	CompetitionID  *uint                   `json:"competition_id"`
	URL            string                  `json:"url"`
	Data           models.JSONB            `json:"data"`
}

func (r *NotificationRequest) validate() error {
	if r.Type == "" {
		r.Type = models.NotificationTypeGeneral
	}
	if !r.Type.Valid() {
		return validationError("Invalid notification type", "type")
	}
	if r.TargetAudience == "" {
		r.TargetAudience = models.AudienceAll
	}
	if !r.TargetAudience.Valid() {
		return validationError("Invalid target audience", "target_audience")
	}
	if r.TargetAudience == models.AudienceSpecificSignalPlan && r.SignalPlanID == nil {
		return validationError("A signal plan is required for this audience", "signal_plan_id")
	}
	if r.TargetAudience == models.AudienceSpecificCompetition && r.CompetitionID == nil {
		return validationError("A competition is required for this audience", "competition_id")
	}
	return nil
}

func statusFor(scheduled *time.Time, now time.Time) models.NotificationStatus {
	if scheduled != nil && scheduled.After(now) {
		return models.NotificationStatusScheduled
	}
	return models.NotificationStatusDraft
}

func (s *NotificationService) Create(ctx context.Context, adminID uint, req *NotificationRequest) (*models.Notification, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	n := &models.Notification{
		Title:          strings.TrimSpace(req.Title),
		Message:        strings.TrimSpace(req.Message),
		Type:           req.Type,
		TargetAudience: req.TargetAudience,
		Status:         statusFor(req.ScheduledTime, time.Now()),
		ScheduledTime:  req.ScheduledTime,
		SignalPlanID:   req.SignalPlanID,
		CompetitionID:  req.CompetitionID,
		URL:            req.URL,
		Data:           req.Data,
		CreatedByID:    adminID,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

func (s *NotificationService) Get(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, mapNotFound(err, "Notification")
	}
	return &n, nil
}

// Update replaces the content of an unsent notification
func (s *NotificationService) Update(ctx context.Context, id uint, req *NotificationRequest) (*models.Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status == models.NotificationStatusSent {
		return nil, ErrNotificationSent
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"title":           strings.TrimSpace(req.Title),
		"message":         strings.TrimSpace(req.Message),
		"type":            req.Type,
		"target_audience": req.TargetAudience,
		"status":          statusFor(req.ScheduledTime, time.Now()),
		"scheduled_time":  req.ScheduledTime,
		"signal_plan_id":  req.SignalPlanID,
		"competition_id":  req.CompetitionID,
		"url":             req.URL,
		"data":            req.Data,
	}
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status <> ?", id, models.NotificationStatusSent).
		Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotificationSent
	}
	return s.Get(ctx, id)
}

func (s *NotificationService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Notification{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Notification")
	}
	return nil
}

type NotificationFilter struct {
	Status string
	Type   string
	PageRequest
}

type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

func (s *NotificationService) List(ctx context.Context, f NotificationFilter) (*NotificationPage, error) {
	page := f.PageRequest.normalize(20)
	q := s.db.WithContext(ctx).Model(&models.Notification{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	var items []models.Notification
	err := q.Order("created_at DESC").Order("id DESC").Limit(page.Limit).Offset(page.offset()).Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return &NotificationPage{Notifications: items, Pagination: newPagination(page, total)}, nil
}

// audienceQuery selects the ids of the users a notification targets.
func (s *NotificationService) audienceQuery(ctx context.Context, n *models.Notification) *gorm.DB {
	db := s.db.WithContext(ctx)
	activeSubs := func(planType models.PlanType) *gorm.DB {
		return db.Model(&models.Subscription{}).Select("user_id").
			Where("plan_type = ? AND status = ? AND end_date > ?", planType, models.SubscriptionStatusActive, time.Now())
	}
	participants := db.Model(&models.Participant{}).Select("user_id").
		Where("status <> ?", models.ParticipantStatusWithdrawn)

	users := db.Model(&models.User{}).Select("id").Where("is_active = ?", true)
	switch n.TargetAudience {
	case models.AudienceActive:
		return users.Where("last_login > ?", time.Now().AddDate(0, 0, -30))
	case models.AudiencePremium:
		return users.Where("is_premium = ?", true)
	case models.AudienceChallengeParticipants:
		open := db.Model(&models.Challenge{}).Select("id").
			Where("status IN ?", []models.ChallengeStatus{models.ChallengeStatusUpcoming, models.ChallengeStatusActive})
		return users.Where("id IN (?)", participants.Where("challenge_id IN (?)", open))
	case models.AudienceSpecificCompetition:
		return users.Where("id IN (?)", participants.Where("challenge_id = ?", derefUint(n.CompetitionID)))
	case models.AudienceSignalPlanSubscribers:
		return users.Where("id IN (?)", activeSubs(models.PlanTypeSignal))
	case models.AudienceSpecificSignalPlan:
		return users.Where("id IN (?)", activeSubs(models.PlanTypeSignal).Where("plan_id = ?", derefUint(n.SignalPlanID)))
	}
	return users
}

func derefUint(p *uint) uint {
	if p == nil {
		return 0
	}
	return *p
}

// Send delivers a notification to its audience once. Endpoints the push
// service reports as gone are flagged for cleanup.
func (s *NotificationService) Send(ctx context.Context, id uint) (*models.Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	claim := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status <> ?", id, models.NotificationStatusSent).
		Updates(map[string]interface{}{"status": models.NotificationStatusSent, "sent_at": now})
	if claim.Error != nil {
		return nil, fmt.Errorf("failed to claim notification: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		return nil, ErrNotificationSent
	}

	var endpoints []models.PushSubscription
	err = s.db.WithContext(ctx).
		Where("expired = ? AND user_id IN (?)", false, s.audienceQuery(ctx, n)).
		Find(&endpoints).Error
	if err != nil {
		s.markFailed(ctx, id)
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}

	subs := make([]push.Subscription, len(endpoints))
	for i, e := range endpoints {
		subs[i] = push.Subscription{Endpoint: e.Endpoint, P256dh: e.P256dh, Auth: e.Auth}
	}
	result, err := s.sender.Send(ctx, subs, push.Payload{
		Title: n.Title,
		Body:  n.Message,
		URL:   n.URL,
		Type:  string(n.Type),
		Data:  map[string]interface{}(n.Data),
	})
	if err != nil {
		s.markFailed(ctx, id)
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}

	if len(result.Expired) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.PushSubscription{}).
			Where("endpoint IN ?", result.Expired).
			Update("expired", true).Error; err != nil {
			s.log.WithError(err).Warn("failed to flag expired push subscriptions")
		}
	}

	stats := models.DeliveryStats{
		TotalSent:      result.TotalSent,
		DeliveredCount: result.DeliveredCount,
		FailedCount:    result.FailedCount,
	}
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Updates(map[string]interface{}{
		"delivery_total_sent":      stats.TotalSent,
		"delivery_delivered_count": stats.DeliveredCount,
		"delivery_failed_count":    stats.FailedCount,
	}).Error; err != nil {
		s.log.WithError(err).WithField("notification_id", id).Warn("failed to record delivery stats")
	}

	s.log.WithFields(logrus.Fields{
		"notification_id": id,
		"sent":            result.TotalSent,
		"delivered":       result.DeliveredCount,
		"expired":         len(result.Expired),
	}).Info("notification sent")

	n.Status = models.NotificationStatusSent
	n.SentAt = &now
	n.DeliveryStats = stats
	return n, nil
}

func (s *NotificationService) markFailed(ctx context.Context, id uint) {
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).
		Update("status", models.NotificationStatusFailed).Error; err != nil {
		s.log.WithError(err).WithField("notification_id", id).Error("failed to mark notification failed")
	}
}

// SendDue sends scheduled notifications whose time has come
func (s *NotificationService) SendDue(ctx context.Context, now time.Time) (int, error) {
	var due []uint
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("status = ? AND scheduled_time <= ?", models.NotificationStatusScheduled, now).
		Pluck("id", &due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list due notifications: %w", err)
	}
	sent := 0
	for _, id := range due {
		if _, err := s.Send(ctx, id); err != nil {
			s.log.WithError(err).WithField("notification_id", id).Error("scheduled notification failed")
			continue
		}
		sent++
	}
	return sent, nil
}

// CleanupExpired deletes push subscriptions flagged as gone by earlier sends
func (s *NotificationService) CleanupExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expired = ?", true).Delete(&models.PushSubscription{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired push subscriptions: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.WithField("deleted", res.RowsAffected).Info("removed expired push subscriptions")
	}
	return res.RowsAffected, nil
}
