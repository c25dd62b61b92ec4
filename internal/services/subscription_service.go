package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
)

// SubscriptionService owns the subscription lifecycle and the plan
// subscriber counters that follow it.
type SubscriptionService struct {
	db        *gorm.DB
	chatboxes *ChatboxService
	log       *logrus.Entry
}

func NewSubscriptionService(db *gorm.DB, chatboxes *ChatboxService) *SubscriptionService {
	return &SubscriptionService{db: db, chatboxes: chatboxes, log: logger.Component("subscriptions")}
}

// Activate creates an active subscription for a completed payment. It must
// run inside the payment's completion transaction.
func (s *SubscriptionService) Activate(ctx context.Context, tx *gorm.DB, userID uint, plan *PlanInfo, paymentID uuid.UUID, amount decimal.Decimal) (*models.Subscription, error) {
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}
	now := time.Now()

	var existing int64
	err := tx.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND plan_type = ? AND plan_id = ?", userID, plan.Type, plan.ID).
		Where("status = ? AND end_date > ?", models.SubscriptionStatusActive, now).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check subscriptions: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateSubscription
	}

	ok, err := reserveSubscriber(ctx, tx, plan.Type, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve plan seat: %w", err)
	}
	if !ok {
		return nil, ErrPlanFull
	}

	sub := &models.Subscription{
		UserID:         userID,
		PlanType:       plan.Type,
		PlanID:         plan.ID,
		Status:         models.SubscriptionStatusActive,
		StartDate:      now,
		EndDate:        plan.Duration.EndDate(now),
		PaymentID:      &paymentID,
		Amount:         amount,
		Duration:       plan.Duration,
		AutoRenew:      true,
		SessionHistory: models.SessionHistory{},
	}
	if plan.Type == models.PlanTypeMentorship {
		sub.MaxSessions = plan.MaxSessions
	}
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	if plan.Type == models.PlanTypeMentorship {
		if err := s.chatboxes.AddSubscriber(ctx, tx, plan.Type, plan.ID, userID, &sub.ID); err != nil {
			return nil, fmt.Errorf("failed to add chatbox subscriber: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"plan_type":       plan.Type,
		"plan_id":         plan.ID,
		"subscription_id": sub.ID,
	}).Info("subscription activated")
	return sub, nil
}

// MySubscriptions lists a user's subscriptions, optionally filtered by status
func (s *SubscriptionService) MySubscriptions(ctx context.Context, userID uint, status string) ([]models.Subscription, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var subs []models.Subscription
	if err := q.Order("created_at DESC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// Get returns a subscription visible to the viewer
func (s *SubscriptionService) Get(ctx context.Context, id uint, v Viewer) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Preload("User").First(&sub, id).Error; err != nil {
		return nil, mapNotFound(err, "Subscription")
	}
	if !v.IsAdmin && sub.UserID != v.UserID {
		return nil, ErrForbidden
	}
	return &sub, nil
}

// Cancel ends a subscription early. An active subscription releases its
// plan seat and chatbox membership.
func (s *SubscriptionService) Cancel(ctx context.Context, id uint, v Viewer, reason string) (*models.Subscription, error) {
	sub, err := s.Get(ctx, id, v)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := time.Now()
	reason = strings.TrimSpace(reason)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, sub.Status).
			Updates(map[string]interface{}{
				"status":              models.SubscriptionStatusCancelled,
				"cancelled_at":        now,
				"cancellation_reason": reason,
				"auto_renew":          false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyCancelled
		}
		if sub.Status != models.SubscriptionStatusActive {
			return nil
		}
		return s.release(ctx, tx, sub)
	})
	if err != nil {
		return nil, wrapUnexpected(err, "failed to cancel subscription")
	}

	sub.Status = models.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.CancellationReason = reason
	sub.AutoRenew = false
	s.log.WithFields(logrus.Fields{"subscription_id": sub.ID, "user_id": sub.UserID}).Info("subscription cancelled")
	return sub, nil
}

func (s *SubscriptionService) release(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	if err := releaseSubscriber(ctx, tx, sub.PlanType, sub.PlanID); err != nil {
		return err
	}
	return s.chatboxes.DeactivateSubscriber(ctx, tx, sub.PlanType, sub.PlanID, sub.UserID)
}

// ExpireDue moves every active subscription past its end date to expired
func (s *SubscriptionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	var due []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_date <= ?", models.SubscriptionStatusActive, now).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	expired := 0
	for i := range due {
		sub := &due[i]
		changed := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Subscription{}).
				Where("id = ? AND status = ?", sub.ID, models.SubscriptionStatusActive).
				Update("status", models.SubscriptionStatusExpired)
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
			changed = true
			return s.release(ctx, tx, sub)
		})
		if err != nil {
			s.log.WithError(err).WithField("subscription_id", sub.ID).Error("failed to expire subscription")
			continue
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		s.log.WithField("expired", expired).Info("expired subscriptions")
	}
	return expired, nil
}

type SubscriptionFilter struct {
	Status   string
	PlanType string
	PageRequest
}

type SubscriptionPage struct {
	Subscriptions []models.Subscription `json:"subscriptions"`
	Pagination    Pagination            `json:"pagination"`
}

// List returns all subscriptions for admins
func (s *SubscriptionService) List(ctx context.Context, f SubscriptionFilter) (*SubscriptionPage, error) {
	page := f.PageRequest.normalize(20)
	q := s.db.WithContext(ctx).Model(&models.Subscription{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PlanType != "" {
		q = q.Where("plan_type = ?", f.PlanType)
	}
	return s.page(q, page)
}

// PlanSubscribers lists one plan's subscriptions
func (s *SubscriptionService) PlanSubscribers(ctx context.Context, t models.PlanType, planID uint, status string, page PageRequest) (*SubscriptionPage, error) {
	q := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("plan_type = ? AND plan_id = ?", t, planID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return s.page(q, page.normalize(20))
}

func (s *SubscriptionService) page(q *gorm.DB, page PageRequest) (*SubscriptionPage, error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	var subs []models.Subscription
	err := q.Preload("User").Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.offset()).Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return &SubscriptionPage{Subscriptions: subs, Pagination: newPagination(page, total)}, nil
}

type SubscriptionStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByDuration map[string]int64 `json:"by_duration"`
	ByPlanType map[string]int64 `json:"by_plan_type"`
	Revenue    decimal.Decimal  `json:"revenue"`
}

// Stats summarises subscriptions. Revenue counts every subscription that was
// ever paid for.
func (s *SubscriptionService) Stats(ctx context.Context) (*SubscriptionStats, error) {
	stats := &SubscriptionStats{
		ByStatus:   map[string]int64{},
		ByDuration: map[string]int64{},
		ByPlanType: map[string]int64{},
		Revenue:    decimal.Zero,
	}
	group := func(column string, into map[string]int64) error {
		var rows []struct {
			Label string
			Count int64
		}
		err := s.db.WithContext(ctx).Model(&models.Subscription{}).
			Select(column + " AS label, COUNT(*) AS count").
			Group(column).Scan(&rows).Error
		for _, r := range rows {
			into[r.Label] = r.Count
		}
		return err
	}
	for column, into := range map[string]map[string]int64{
		"status":    stats.ByStatus,
		"duration":  stats.ByDuration,
		"plan_type": stats.ByPlanType,
	} {
		if err := group(column, into); err != nil {
			return nil, fmt.Errorf("failed to group subscriptions by %s: %w", column, err)
		}
	}
	for _, n := range stats.ByStatus {
		stats.Total += n
	}

	var amounts []decimal.Decimal
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status <> ?", models.SubscriptionStatusPending).
		Pluck("amount", &amounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	for _, a := range amounts {
		stats.Revenue = stats.Revenue.Add(a)
	}
	return stats, nil
}

type SessionRequest struct {
	Date     *time.Time `json:"date"`
	Duration int        `json:"duration"`
	Topic    string     `json:"topic"`
	Notes    string     `json:"notes"`
	NextDate *time.Time `json:"next_session_date"`
}

// RecordSession appends a held session to a mentorship subscription
func (s *SubscriptionService) RecordSession(ctx context.Context, id uint, req *SessionRequest) (*models.Subscription, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, validationError("Missing required fields", "topic")
	}

	var sub models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sub, id).Error; err != nil {
			return mapNotFound(err, "Subscription")
		}
		if sub.PlanType != models.PlanTypeMentorship {
			return validationError("Sessions can only be recorded for mentorship subscriptions", "plan_type")
		}
		if !sub.IsCurrent(time.Now()) {
			return ErrSubscriptionInactive
		}
		if sub.SessionCount >= sub.MaxSessions {
			return ErrSessionLimit
		}

		date := time.Now()
		if req.Date != nil {
			date = *req.Date
		}
		duration := req.Duration
		if duration <= 0 {
			duration = 60
		}
		history := append(sub.SessionHistory, models.SessionRecord{
			Date:     date,
			Duration: duration,
			Topic:    strings.TrimSpace(req.Topic),
			Notes:    req.Notes,
			Status:   "completed",
		})
		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND session_count = ?", sub.ID, sub.SessionCount).
			Updates(map[string]interface{}{
				"session_count":     sub.SessionCount + 1,
				"session_history":   history,
				"next_session_date": req.NextDate,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("subscription changed concurrently")
		}
		sub.SessionCount++
		sub.SessionHistory = history
		sub.NextSessionDate = req.NextDate
		return nil
	})
	if err != nil {
		return nil, wrapUnexpected(err, "failed to record session")
	}
	return &sub, nil
}
