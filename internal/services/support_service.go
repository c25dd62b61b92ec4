package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
)

type SupportService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewSupportService(db *gorm.DB) *SupportService {
	return &SupportService{db: db, log: logger.Component("support")}
}

func newTicketNumber() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

type TicketRequest struct {
	Subject  string                `json:"subject" binding:"required,max=200"`
	Category models.TicketCategory `json:"category"`
	Priority models.TicketPriority `json:"priority"`
	Message  string                `json:"message" binding:"required,max=2000"`
}

func validMessage(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", validationError("Message content is required", "message")
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return "", validationError(fmt.Sprintf("Message cannot exceed %d characters", models.MaxMessageLength), "message")
	}
	return content, nil
}

// CreateTicket opens a ticket with its first message
func (s *SupportService) CreateTicket(ctx context.Context, userID uint, req *TicketRequest) (*models.SupportTicket, error) {
	content, err := validMessage(req.Message)
	if err != nil {
		return nil, err
	}
	if req.Category == "" {
		req.Category = models.TicketCategoryGeneral
	}
	if !req.Category.Valid() {
		return nil, validationError("Invalid ticket category", "category")
	}
	if req.Priority == "" {
		req.Priority = models.TicketPriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, validationError("Invalid ticket priority", "priority")
	}

	ticket := &models.SupportTicket{
		TicketNumber: newTicketNumber(),
		UserID:       userID,
		Subject:      strings.TrimSpace(req.Subject),
		Category:     req.Category,
		Priority:     req.Priority,
		Status:       models.TicketStatusOpen,
		Messages:     []models.SupportMessage{{SenderID: userID, Content: content}},
	}
	if err := s.db.WithContext(ctx).Omit("User").Create(ticket).Error; err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	s.log.WithFields(logrus.Fields{"ticket": ticket.TicketNumber, "user_id": userID}).Info("support ticket opened")
	return ticket, nil
}

// MyTickets lists the user's tickets, newest first
func (s *SupportService) MyTickets(ctx context.Context, userID uint, status string) ([]models.SupportTicket, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tickets []models.SupportTicket
	if err := q.Order("updated_at DESC").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// GetTicket returns a ticket with its conversation
func (s *SupportService) GetTicket(ctx context.Context, id uint, v Viewer) (*models.SupportTicket, error) {
	var ticket models.SupportTicket
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		First(&ticket, id).Error
	if err != nil {
		return nil, mapNotFound(err, "Ticket")
	}
	if !v.IsAdmin && ticket.UserID != v.UserID {
		return nil, ErrForbidden
	}
	return &ticket, nil
}

// AddMessage appends to the conversation. An admin reply moves an open
// ticket to in_progress; a user reply reopens a resolved one.
func (s *SupportService) AddMessage(ctx context.Context, id uint, v Viewer, content string) (*models.SupportMessage, error) {
	content, err := validMessage(content)
	if err != nil {
		return nil, err
	}
	ticket, err := s.GetTicket(ctx, id, v)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketStatusClosed {
		return nil, ErrTicketClosed
	}

	msg := &models.SupportMessage{TicketID: id, SenderID: v.UserID, IsAdmin: v.IsAdmin, Content: content}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		fields := map[string]interface{}{"updated_at": time.Now()}
		switch {
		case v.IsAdmin && ticket.Status == models.TicketStatusOpen:
			fields["status"] = models.TicketStatusInProgress
		case !v.IsAdmin && ticket.Status == models.TicketStatusResolved:
			fields["status"] = models.TicketStatusOpen
			fields["resolved_at"] = nil
		}
		return tx.Model(&models.SupportTicket{}).Where("id = ?", id).Updates(fields).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	return msg, nil
}

type TicketFilter struct {
	Status   string
	Priority string
	Category string
	Search   string
	PageRequest
}

type TicketPage struct {
	Tickets    []models.SupportTicket `json:"tickets"`
	Pagination Pagination             `json:"pagination"`
}

func (s *SupportService) ListTickets(ctx context.Context, f TicketFilter) (*TicketPage, error) {
	page := f.PageRequest.normalize(20)
	q := s.db.WithContext(ctx).Model(&models.SupportTicket{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(subject) LIKE ? OR LOWER(ticket_number) LIKE ?", like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}
	var tickets []models.SupportTicket
	err := q.Preload("User").Order("updated_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.offset()).Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return &TicketPage{Tickets: tickets, Pagination: newPagination(page, total)}, nil
}

type TicketUpdate struct {
	Status   *models.TicketStatus   `json:"status"`
	Priority *models.TicketPriority `json:"priority"`
}

func (s *SupportService) UpdateTicket(ctx context.Context, id uint, req *TicketUpdate) (*models.SupportTicket, error) {
	ticket, err := s.GetTicket(ctx, id, Viewer{IsAdmin: true})
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, validationError("Invalid ticket status", "status")
		}
		fields["status"] = *req.Status
		switch *req.Status {
		case models.TicketStatusResolved, models.TicketStatusClosed:
			if ticket.ResolvedAt == nil {
				fields["resolved_at"] = time.Now()
			}
		default:
			fields["resolved_at"] = nil
		}
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, validationError("Invalid ticket priority", "priority")
		}
		fields["priority"] = *req.Priority
	}
	if len(fields) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.SupportTicket{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update ticket: %w", err)
		}
	}
	return s.GetTicket(ctx, id, Viewer{IsAdmin: true})
}

func (s *SupportService) DeleteTicket(ctx context.Context, id uint) error {
	if _, err := s.GetTicket(ctx, id, Viewer{IsAdmin: true}); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ticket_id = ?", id).Delete(&models.SupportMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.SupportTicket{}, id).Error
	})
}

type TicketStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByPriority map[string]int64 `json:"by_priority"`
	ByCategory map[string]int64 `json:"by_category"`
}

func (s *SupportService) Stats(ctx context.Context) (*TicketStats, error) {
	stats := &TicketStats{ByStatus: map[string]int64{}, ByPriority: map[string]int64{}, ByCategory: map[string]int64{}}
	for column, into := range map[string]map[string]int64{
		"status":   stats.ByStatus,
		"priority": stats.ByPriority,
		"category": stats.ByCategory,
	} {
		var rows []struct {
			Label string
			Count int64
		}
		err := s.db.WithContext(ctx).Model(&models.SupportTicket{}).
			Select(column + " AS label, COUNT(*) AS count").
			Group(column).Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to group tickets by %s: %w", column, err)
		}
		for _, r := range rows {
			into[r.Label] = r.Count
		}
	}
	for _, n := range stats.ByStatus {
		stats.Total += n
	}
	return stats, nil
}
