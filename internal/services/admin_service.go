package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
)

// AdminService backs the admin dashboard and the audit trail
type AdminService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db, log: logger.Component("admin")}
}

// AdminAction is one audited admin request
type AdminAction struct {
	AdminID      uint
	Action       string
	ResourceType string
	ResourceID   *uint
	Details      map[string]interface{}
}

// LogAction appends an entry to the audit trail
func (s *AdminService) LogAction(ctx context.Context, a AdminAction) error {
	entry := models.AdminLog{
		AdminID:      a.AdminID,
		Action:       a.Action,
		ResourceType: a.ResourceType,
		ResourceID:   a.ResourceID,
		Details:      models.JSONB(a.Details),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record admin action: %w", err)
	}
	return nil
}

type AdminLogFilter struct {
	AdminID      uint
	ResourceType string
	PageRequest
}

type AdminLogPage struct {
	Logs       []models.AdminLog `json:"logs"`
	Pagination Pagination        `json:"pagination"`
}

// Logs returns the audit trail, newest first
func (s *AdminService) Logs(ctx context.Context, f AdminLogFilter) (*AdminLogPage, error) {
	page := f.PageRequest.normalize(50)
	q := s.db.WithContext(ctx).Model(&models.AdminLog{})
	if f.AdminID != 0 {
		q = q.Where("admin_id = ?", f.AdminID)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count admin logs: %w", err)
	}
	var logs []models.AdminLog
	err := q.Preload("Admin").Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.offset()).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list admin logs: %w", err)
	}
	return &AdminLogPage{Logs: logs, Pagination: newPagination(page, total)}, nil
}

// Dashboard is the platform overview shown to admins
type Dashboard struct {
	TotalUsers          int64            `json:"total_users"`
	ActiveUsers         int64            `json:"active_users"`
	NewUsersToday       int64            `json:"new_users_today"`
	ChallengesByStatus  map[string]int64 `json:"challenges_by_status"`
	TotalParticipants   int64            `json:"total_participants"`
	ActiveSubscriptions int64            `json:"active_subscriptions"`
	OpenTickets         int64            `json:"open_tickets"`
	CompletedPayments   int64            `json:"completed_payments"`
	Revenue             decimal.Decimal  `json:"revenue"`
	RevenueToday        decimal.Decimal  `json:"revenue_today"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// Dashboard counts users, challenges, subscriptions, tickets and revenue.
// Revenue is net of refunds.
func (s *AdminService) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	d := &Dashboard{
		ChallengesByStatus: map[string]int64{},
		Revenue:            decimal.Zero,
		RevenueToday:       decimal.Zero,
		GeneratedAt:        now,
	}

	counts := []struct {
		what string
		q    *gorm.DB
		dest *int64
	}{
		{"users", db.Model(&models.User{}), &d.TotalUsers},
		{"active users", db.Model(&models.User{}).Where("is_active = ?", true), &d.ActiveUsers},
		{"new users", db.Model(&models.User{}).Where("created_at >= ?", today), &d.NewUsersToday},
		{"participants", db.Model(&models.Participant{}).Where("status <> ?", models.ParticipantStatusWithdrawn), &d.TotalParticipants},
		{"subscriptions", db.Model(&models.Subscription{}).Where("status = ?", models.SubscriptionStatusActive), &d.ActiveSubscriptions},
		{"tickets", db.Model(&models.SupportTicket{}).Where("status IN ?", []models.TicketStatus{models.TicketStatusOpen, models.TicketStatusInProgress}), &d.OpenTickets},
		{"payments", db.Model(&models.Payment{}).Where("status = ?", models.PaymentStatusCompleted), &d.CompletedPayments},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.what, err)
		}
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Challenge{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group challenges: %w", err)
	}
	for _, r := range rows {
		d.ChallengesByStatus[r.Status] = r.Count
	}

	var payments []models.Payment
	err := db.Select("amount", "refunded_amount", "completed_at").
		Where("status IN ?", []models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusCancelled}).
		Where("completed_at IS NOT NULL").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	for _, p := range payments {
		net := p.Amount.Sub(p.RefundedAmount)
		d.Revenue = d.Revenue.Add(net)
		if p.CompletedAt != nil && !p.CompletedAt.Before(today) {
			d.RevenueToday = d.RevenueToday.Add(net)
		}
	}
	return d, nil
}
