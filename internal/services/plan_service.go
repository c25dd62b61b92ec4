package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
)

// PlanService manages signal and mentorship plans.
type PlanService struct {
	db        *gorm.DB
	chatboxes *ChatboxService
	log       *logrus.Entry
}

func NewPlanService(db *gorm.DB, chatboxes *ChatboxService) *PlanService {
	return &PlanService{db: db, chatboxes: chatboxes, log: logger.Component("plans")}
}

type planModel interface {
	models.SignalPlan | models.MentorshipPlan
}

// PlanInfo is the type-independent view of a plan used by payments and
// subscriptions.
type PlanInfo struct {
	Type        models.PlanType     `json:"plan_type"`
	ID          uint                `json:"id"`
	Name        string              `json:"name"`
	Price       decimal.Decimal     `json:"price"`
	Duration    models.PlanDuration `json:"duration"`
	IsActive    bool                `json:"is_active"`
	IsFull      bool                `json:"is_full"`
	MaxSessions int                 `json:"max_sessions,omitempty"`
}

type PlanRequest struct {
	Name                string              `json:"name" binding:"required,max=200"`
	Description         string              `json:"description"`
	Price               *decimal.Decimal    `json:"price" binding:"required"`
	OriginalPrice       *decimal.Decimal    `json:"original_price"`
	Duration            models.PlanDuration `json:"duration"`
	Features            []string            `json:"features"`
	IsActive            *bool               `json:"is_active"`
	IsPopular           bool                `json:"is_popular"`
	MaxSubscribers      *int                `json:"max_subscribers"`
	MentorName          string              `json:"mentor_name"`
	MaxSessionsPerMonth int                 `json:"max_sessions_per_month"`
	SessionDuration     int                 `json:"session_duration"`
}

func (r *PlanRequest) base(adminID uint) (models.PlanBase, error) {
	if r.Price == nil {
		return models.PlanBase{}, validationError("Missing required fields", "price")
	}
	if r.Price.IsNegative() {
		return models.PlanBase{}, validationError("Price cannot be negative", "price")
	}
	duration := r.Duration
	if duration == "" {
		duration = models.PlanDurationMonthly
	}
	if !duration.Valid() {
		return models.PlanBase{}, validationError("Invalid plan duration", "duration")
	}
	if r.MaxSubscribers != nil && *r.MaxSubscribers < 1 {
		return models.PlanBase{}, validationError("Max subscribers must be positive", "max_subscribers")
	}
	return models.PlanBase{
		Name:           strings.TrimSpace(r.Name),
		Description:    r.Description,
		Price:          *r.Price,
		OriginalPrice:  r.OriginalPrice,
		Duration:       duration,
		Features:       models.StringList(r.Features),
		IsActive:       true,
		IsPopular:      r.IsPopular,
		MaxSubscribers: r.MaxSubscribers,
		CreatedByID:    adminID,
	}, nil
}

// PlanUpdate is a partial update; nil fields are left unchanged.
type PlanUpdate struct {
	Name                *string              `json:"name"`
	Description         *string              `json:"description"`
	Price               *decimal.Decimal     `json:"price"`
	OriginalPrice       *decimal.Decimal     `json:"original_price"`
	Duration            *models.PlanDuration `json:"duration"`
	Features            *[]string            `json:"features"`
	IsActive            *bool                `json:"is_active"`
	IsPopular           *bool                `json:"is_popular"`
	MaxSubscribers      *int                 `json:"max_subscribers"`
	MentorName          *string              `json:"mentor_name"`
	MaxSessionsPerMonth *int                 `json:"max_sessions_per_month"`
	SessionDuration     *int                 `json:"session_duration"`
}

func (u *PlanUpdate) fields(t models.PlanType) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return nil, validationError("Name cannot be empty", "name")
		}
		fields["name"] = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		fields["description"] = *u.Description
	}
	if u.Price != nil {
		if u.Price.IsNegative() {
			return nil, validationError("Price cannot be negative", "price")
		}
		fields["price"] = *u.Price
	}
	if u.OriginalPrice != nil {
		fields["original_price"] = *u.OriginalPrice
	}
	if u.Duration != nil {
		if !u.Duration.Valid() {
			return nil, validationError("Invalid plan duration", "duration")
		}
		fields["duration"] = *u.Duration
	}
	if u.Features != nil {
		fields["features"] = models.StringList(*u.Features)
	}
	if u.IsActive != nil {
		fields["is_active"] = *u.IsActive
	}
	if u.IsPopular != nil {
		fields["is_popular"] = *u.IsPopular
	}
	if u.MaxSubscribers != nil {
		if *u.MaxSubscribers < 1 {
			return nil, validationError("Max subscribers must be positive", "max_subscribers")
		}
		fields["max_subscribers"] = *u.MaxSubscribers
	}
	if t == models.PlanTypeMentorship {
		if u.MentorName != nil {
			fields["mentor_name"] = *u.MentorName
		}
		if u.MaxSessionsPerMonth != nil {
			fields["max_sessions_per_month"] = *u.MaxSessionsPerMonth
		}
		if u.SessionDuration != nil {
			fields["session_duration"] = *u.SessionDuration
		}
	}
	return fields, nil
}

func listPlans[T planModel](ctx context.Context, db *gorm.DB, activeOnly bool) ([]T, error) {
	var plans []T
	q := db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("is_popular DESC").Order("price ASC").Order("id ASC").Find(&plans).Error
	return plans, err
}

func getPlan[T planModel](ctx context.Context, db *gorm.DB, id uint) (*T, error) {
	var plan T
	if err := db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *PlanService) ListSignalPlans(ctx context.Context, activeOnly bool) ([]models.SignalPlan, error) {
	plans, err := listPlans[models.SignalPlan](ctx, s.db, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list signal plans: %w", err)
	}
	return plans, nil
}

func (s *PlanService) ListMentorshipPlans(ctx context.Context, activeOnly bool) ([]models.MentorshipPlan, error) {
	plans, err := listPlans[models.MentorshipPlan](ctx, s.db, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list mentorship plans: %w", err)
	}
	return plans, nil
}

func (s *PlanService) GetSignalPlan(ctx context.Context, id uint) (*models.SignalPlan, error) {
	plan, err := getPlan[models.SignalPlan](ctx, s.db, id)
	if err != nil {
		return nil, mapNotFound(err, "Signal plan")
	}
	return plan, nil
}

func (s *PlanService) GetMentorshipPlan(ctx context.Context, id uint) (*models.MentorshipPlan, error) {
	plan, err := getPlan[models.MentorshipPlan](ctx, s.db, id)
	if err != nil {
		return nil, mapNotFound(err, "Mentorship plan")
	}
	return plan, nil
}

// CreateSignalPlan stores the plan together with its chatbox
func (s *PlanService) CreateSignalPlan(ctx context.Context, adminID uint, req *PlanRequest) (*models.SignalPlan, error) {
	base, err := req.base(adminID)
	if err != nil {
		return nil, err
	}
	plan := &models.SignalPlan{PlanBase: base}
	if err := s.createWithChatbox(ctx, plan, models.PlanTypeSignal, func() uint { return plan.ID }, req.IsActive); err != nil {
		return nil, err
	}
	plan.IsActive = req.IsActive == nil || *req.IsActive
	return plan, nil
}

// CreateMentorshipPlan stores the plan together with its chatbox
func (s *PlanService) CreateMentorshipPlan(ctx context.Context, adminID uint, req *PlanRequest) (*models.MentorshipPlan, error) {
	base, err := req.base(adminID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.MentorName) == "" {
		return nil, validationError("Missing required fields", "mentor_name")
	}
	plan := &models.MentorshipPlan{
		PlanBase:            base,
		MentorName:          strings.TrimSpace(req.MentorName),
		MaxSessionsPerMonth: req.MaxSessionsPerMonth,
		SessionDuration:     req.SessionDuration,
	}
	if plan.MaxSessionsPerMonth <= 0 {
		plan.MaxSessionsPerMonth = 4
	}
	if plan.SessionDuration <= 0 {
		plan.SessionDuration = 60
	}
	if err := s.createWithChatbox(ctx, plan, models.PlanTypeMentorship, func() uint { return plan.ID }, req.IsActive); err != nil {
		return nil, err
	}
	plan.IsActive = req.IsActive == nil || *req.IsActive
	return plan, nil
}

func (s *PlanService) createWithChatbox(ctx context.Context, plan interface{}, t models.PlanType, id func() uint, isActive *bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return err
		}
		// is_active has a database default, so false must be written explicitly
		if isActive != nil && !*isActive {
			if err := tx.Table(models.PlanTable(t)).Where("id = ?", id()).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		_, err := s.chatboxes.EnsureForPlan(ctx, tx, t, id(), planName(plan))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	s.log.WithFields(logrus.Fields{"plan_type": t, "plan_id": id()}).Info("plan created")
	return nil
}

func planName(plan interface{}) string {
	switch p := plan.(type) {
	case *models.SignalPlan:
		return p.Name
	case *models.MentorshipPlan:
		return p.Name
	}
	return ""
}

// UpdatePlan applies a partial update to either plan type
func (s *PlanService) UpdatePlan(ctx context.Context, t models.PlanType, id uint, req *PlanUpdate) (*PlanInfo, error) {
	if _, err := s.PlanInfo(ctx, t, id); err != nil {
		return nil, err
	}
	fields, err := req.fields(t)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		err := s.db.WithContext(ctx).Table(models.PlanTable(t)).Where("id = ?", id).Updates(fields).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update plan: %w", err)
		}
	}
	if req.Name != nil {
		if err := s.db.WithContext(ctx).Model(&models.Chatbox{}).
			Where("plan_type = ? AND plan_id = ?", t, id).
			Update("name", strings.TrimSpace(*req.Name)).Error; err != nil {
			s.log.WithError(err).Warn("failed to rename plan chatbox")
		}
	}
	return s.PlanInfo(ctx, t, id)
}

// DeletePlan removes a plan and its chatbox unless someone is subscribed
func (s *PlanService) DeletePlan(ctx context.Context, t models.PlanType, id uint) error {
	if _, err := s.PlanInfo(ctx, t, id); err != nil {
		return err
	}

	var active int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("plan_type = ? AND plan_id = ? AND status = ?", t, id, models.SubscriptionStatusActive).
		Count(&active).Error
	if err != nil {
		return fmt.Errorf("failed to count subscribers: %w", err)
	}
	if active > 0 {
		return ErrPlanHasSubscribers
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.chatboxes.DeleteForPlan(ctx, tx, t, id); err != nil {
			return err
		}
		if t == models.PlanTypeMentorship {
			return tx.Delete(&models.MentorshipPlan{}, id).Error
		}
		return tx.Delete(&models.SignalPlan{}, id).Error
	})
}

// PlanInfo loads either plan type into a common shape
func (s *PlanService) PlanInfo(ctx context.Context, t models.PlanType, id uint) (*PlanInfo, error) {
	return planInfo(ctx, s.db, t, id)
}

func planInfo(ctx context.Context, db *gorm.DB, t models.PlanType, id uint) (*PlanInfo, error) {
	switch t {
	case models.PlanTypeSignal:
		plan, err := getPlan[models.SignalPlan](ctx, db, id)
		if err != nil {
			return nil, mapNotFound(err, "Signal plan")
		}
		return baseInfo(t, plan.ID, &plan.PlanBase, 0), nil
	case models.PlanTypeMentorship:
		plan, err := getPlan[models.MentorshipPlan](ctx, db, id)
		if err != nil {
			return nil, mapNotFound(err, "Mentorship plan")
		}
		return baseInfo(t, plan.ID, &plan.PlanBase, plan.MaxSessionsPerMonth), nil
	}
	return nil, validationError("Invalid plan type", "plan_type")
}

func baseInfo(t models.PlanType, id uint, b *models.PlanBase, maxSessions int) *PlanInfo {
	return &PlanInfo{
		Type:        t,
		ID:          id,
		Name:        b.Name,
		Price:       b.Price,
		Duration:    b.Duration,
		IsActive:    b.IsActive,
		IsFull:      b.IsFull(),
		MaxSessions: maxSessions,
	}
}

// reserveSubscriber increments a plan's subscriber counter unless the plan is
// inactive or full.
func reserveSubscriber(ctx context.Context, tx *gorm.DB, t models.PlanType, id uint) (bool, error) {
	res := tx.WithContext(ctx).Table(models.PlanTable(t)).
		Where("id = ? AND is_active = ?", id, true).
		Where("max_subscribers IS NULL OR current_subscribers < max_subscribers").
		Update("current_subscribers", gorm.Expr("current_subscribers + 1"))
	return res.RowsAffected == 1, res.Error
}

// releaseSubscriber decrements a plan's subscriber counter without going below zero.
func releaseSubscriber(ctx context.Context, tx *gorm.DB, t models.PlanType, id uint) error {
	return tx.WithContext(ctx).Table(models.PlanTable(t)).
		Where("id = ? AND current_subscribers > 0", id).
		Update("current_subscribers", gorm.Expr("current_subscribers - 1")).Error
}
