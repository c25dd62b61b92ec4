package services

import (
	"context"
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

// PropFirmService manages prop firm packages and the managed-account
// services users buy under them.
type PropFirmService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewPropFirmService(db *gorm.DB) *PropFirmService {
	return &PropFirmService{db: db, log: logger.Component("prop-firm")}
}

// occupyingStatuses hold one of the package's client seats.
var occupyingStatuses = []models.ServiceStatus{
	models.ServiceStatusPending,
	models.ServiceStatusActive,
	models.ServiceStatusSuspended,
}

func occupiesSeat(s models.ServiceStatus) bool {
	for _, o := range occupyingStatuses {
		if o == s {
			return true
		}
	}
	return false
}

type PackageRequest struct {
	Name               string                     `json:"name" binding:"required,max=200"`
	Description        string                     `json:"description"`
	PricingType        models.PricingType         `json:"pricing_type"`
	Features           []string                   `json:"features"`
	Requirements       models.PackageRequirements `json:"requirements"`
	IsActive           *bool                      `json:"is_active"`
	IsPopular          bool                       `json:"is_popular"`
	MaxClients         *int                       `json:"max_clients"`
	SuccessRate        float64                    `json:"success_rate"`
	CoversAllPhaseFees bool                       `json:"covers_all_phase_fees"`
	ServiceFee         *decimal.Decimal           `json:"service_fee" binding:"required"`
}

// ListPackages returns packages, popular first
func (s *PropFirmService) ListPackages(ctx context.Context, activeOnly bool) ([]models.PropFirmPackage, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var pkgs []models.PropFirmPackage
	if err := q.Order("is_popular DESC").Order("service_fee ASC").Order("id ASC").Find(&pkgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	return pkgs, nil
}

func (s *PropFirmService) GetPackage(ctx context.Context, id uint) (*models.PropFirmPackage, error) {
	return getPackage(ctx, s.db, id)
}

func getPackage(ctx context.Context, db *gorm.DB, id uint) (*models.PropFirmPackage, error) {
	var pkg models.PropFirmPackage
	if err := db.WithContext(ctx).First(&pkg, id).Error; err != nil {
		return nil, mapNotFound(err, "Package")
	}
	return &pkg, nil
}

func (s *PropFirmService) CreatePackage(ctx context.Context, adminID uint, req *PackageRequest) (*models.PropFirmPackage, error) {
	if req.ServiceFee == nil {
		return nil, validationError("Missing required fields", "service_fee")
	}
	if req.ServiceFee.IsNegative() {
		return nil, validationError("Service fee cannot be negative", "service_fee")
	}
	pricing := req.PricingType
	if pricing == "" {
		pricing = models.PricingTypeMonthly
	}
	if !pricing.Valid() {
		return nil, validationError("Invalid pricing type", "pricing_type")
	}
	if req.MaxClients != nil && *req.MaxClients < 1 {
		return nil, validationError("Max clients must be positive", "max_clients")
	}

	pkg := &models.PropFirmPackage{
		Name:               strings.TrimSpace(req.Name),
		Description:        req.Description,
		PricingType:        pricing,
		Features:           models.StringList(req.Features),
		Requirements:       req.Requirements,
		IsActive:           true,
		IsPopular:          req.IsPopular,
		MaxClients:         req.MaxClients,
		SuccessRate:        req.SuccessRate,
		CoversAllPhaseFees: req.CoversAllPhaseFees,
		ServiceFee:         *req.ServiceFee,
		CreatedByID:        adminID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pkg).Error; err != nil {
			return err
		}
		if req.IsActive != nil && !*req.IsActive {
			pkg.IsActive = false
			return tx.Model(pkg).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create package: %w", err)
	}
	return pkg, nil
}

type PackageUpdate struct {
	Name               *string                     `json:"name"`
	Description        *string                     `json:"description"`
	PricingType        *models.PricingType         `json:"pricing_type"`
	Features           *[]string                   `json:"features"`
	Requirements       *models.PackageRequirements `json:"requirements"`
	IsActive           *bool                       `json:"is_active"`
	IsPopular          *bool                       `json:"is_popular"`
	MaxClients         *int                        `json:"max_clients"`
	SuccessRate        *float64                    `json:"success_rate"`
	CoversAllPhaseFees *bool                       `json:"covers_all_phase_fees"`
	ServiceFee         *decimal.Decimal            `json:"service_fee"`
}

func (s *PropFirmService) UpdatePackage(ctx context.Context, id uint, req *PackageUpdate) (*models.PropFirmPackage, error) {
	pkg, err := s.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, validationError("Name cannot be empty", "name")
		}
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.PricingType != nil {
		if !req.PricingType.Valid() {
			return nil, validationError("Invalid pricing type", "pricing_type")
		}
		fields["pricing_type"] = *req.PricingType
	}
	if req.Features != nil {
		fields["features"] = models.StringList(*req.Features)
	}
	if r := req.Requirements; r != nil {
		fields["req_min_account_size"] = r.MinAccountSize
		fields["req_supported_prop_firms"] = r.SupportedPropFirms
		fields["req_max_drawdown"] = r.MaxDrawdown
		fields["req_profit_target"] = r.ProfitTarget
		fields["req_min_trading_days"] = r.MinTradingDays
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.IsPopular != nil {
		fields["is_popular"] = *req.IsPopular
	}
	if req.MaxClients != nil {
		if *req.MaxClients < pkg.CurrentClients {
			return nil, validationError("Max clients cannot be below current clients", "max_clients")
		}
		fields["max_clients"] = *req.MaxClients
	}
	if req.SuccessRate != nil {
		fields["success_rate"] = *req.SuccessRate
	}
	if req.CoversAllPhaseFees != nil {
		fields["covers_all_phase_fees"] = *req.CoversAllPhaseFees
	}
	if req.ServiceFee != nil {
		if req.ServiceFee.IsNegative() {
			return nil, validationError("Service fee cannot be negative", "service_fee")
		}
		fields["service_fee"] = *req.ServiceFee
	}
	if len(fields) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.PropFirmPackage{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update package: %w", err)
		}
	}
	return s.GetPackage(ctx, id)
}

// DeletePackage removes a package that no live service depends on
func (s *PropFirmService) DeletePackage(ctx context.Context, id uint) error {
	if _, err := s.GetPackage(ctx, id); err != nil {
		return err
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PropFirmService{}).
		Where("package_id = ? AND status IN ?", id, occupyingStatuses).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("failed to count services: %w", err)
	}
	if n > 0 {
		return ErrPackageHasClients
	}
	return s.db.WithContext(ctx).Delete(&models.PropFirmPackage{}, id).Error
}

type PackageStats struct {
	TotalPackages  int64            `json:"total_packages"`
	ActivePackages int64            `json:"active_packages"`
	TotalServices  int64            `json:"total_services"`
	ByStatus       map[string]int64 `json:"services_by_status"`
	Revenue        decimal.Decimal  `json:"revenue"`
}

func (s *PropFirmService) Stats(ctx context.Context) (*PackageStats, error) {
	stats := &PackageStats{ByStatus: map[string]int64{}, Revenue: decimal.Zero}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.PropFirmPackage{}).Count(&stats.TotalPackages).Error; err != nil {
		return nil, fmt.Errorf("failed to count packages: %w", err)
	}
	if err := db.Model(&models.PropFirmPackage{}).Where("is_active = ?", true).Count(&stats.ActivePackages).Error; err != nil {
		return nil, fmt.Errorf("failed to count packages: %w", err)
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.PropFirmService{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group services: %w", err)
	}
	for _, r := range rows {
		stats.ByStatus[r.Status] = r.Count
		stats.TotalServices += r.Count
	}

	var amounts []decimal.Decimal
	err := db.Model(&models.Payment{}).
		Where("meta_type = ? AND status = ?", models.PaymentTypePropFirmService, models.PaymentStatusCompleted).
		Pluck("amount", &amounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	for _, a := range amounts {
		stats.Revenue = stats.Revenue.Add(a)
	}
	return stats, nil
}

type ServiceRequest struct {
	PackageID uint                   `json:"package_id" binding:"required"`
	Details   models.PropFirmDetails `json:"prop_firm_details"`
}

// CreateService opens a service awaiting payment after checking the
// account against the package requirements.
func (s *PropFirmService) CreateService(ctx context.Context, userID uint, req *ServiceRequest) (*models.PropFirmService, error) {
	d := req.Details
	pkg, err := s.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if err := packageAvailable(pkg); err != nil {
		return nil, err
	}
	if minSize := pkg.Requirements.MinAccountSize; minSize > 0 && d.AccountSize < minSize {
		return nil, validationError(fmt.Sprintf("Account size must be at least %.0f", minSize), "account_size")
	}
	if strings.TrimSpace(d.FirmName) == "" {
		d.FirmName = models.DefaultFirmName
	}
	if firms := pkg.Requirements.SupportedPropFirms; len(firms) > 0 && !containsFold(firms, d.FirmName) {
		return nil, validationError("Prop firm is not supported by this package", "firm_name")
	}
	if d.ChallengePhase == "" {
		d.ChallengePhase = "N/A"
	}

	now := time.Now()
	end := now.AddDate(0, 1, 0)
	if pkg.PricingType == models.PricingTypeOneTime {
		end = now.AddDate(0, 3, 0)
	}
	svc := &models.PropFirmService{
		UserID:    userID,
		PackageID: pkg.ID,
		Status:    models.ServiceStatusAwaitingPayment,
		Details:   d,
		StartDate: now,
		EndDate:   end,
		Notes:     models.ServiceNotes{},
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(svc).Error; err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	s.log.WithFields(logrus.Fields{"service_id": svc.ID, "user_id": userID, "package_id": pkg.ID}).Info("prop firm service created")
	svc.Package = pkg
	return maskService(svc), nil
}

func packageAvailable(pkg *models.PropFirmPackage) error {
	if !pkg.IsActive {
		return ErrPackageInactive
	}
	if pkg.IsFull() {
		return ErrPackageFull
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func maskService(svc *models.PropFirmService) *models.PropFirmService {
	if svc.Details.AccountPassword != "" {
		svc.Details.AccountPassword = "***"
	}
	return svc
}

// payableService loads the user's service and checks it can still be paid
func payableService(ctx context.Context, db *gorm.DB, serviceID, userID uint) (*models.PropFirmService, error) {
	var svc models.PropFirmService
	if err := db.WithContext(ctx).Preload("Package").First(&svc, serviceID).Error; err != nil {
		return nil, mapNotFound(err, "Service")
	}
	if svc.UserID != userID {
		return nil, ErrForbidden
	}
	if svc.Status != models.ServiceStatusAwaitingPayment {
		return nil, ErrServiceNotPayable
	}
	if svc.Package == nil {
		return nil, notFound("Package")
	}
	if err := packageAvailable(svc.Package); err != nil {
		return nil, err
	}
	return &svc, nil
}

// MarkPaid moves a paid service to pending review and takes a package seat.
// It must run inside the payment's completion transaction.
func (s *PropFirmService) MarkPaid(ctx context.Context, tx *gorm.DB, serviceID uint, paymentID uuid.UUID) error {
	var svc models.PropFirmService
	if err := tx.WithContext(ctx).First(&svc, serviceID).Error; err != nil {
		return mapNotFound(err, "Service")
	}
	res := tx.WithContext(ctx).Model(&models.PropFirmService{}).
		Where("id = ? AND status = ?", serviceID, models.ServiceStatusAwaitingPayment).
		Updates(map[string]interface{}{"status": models.ServiceStatusPending, "payment_id": paymentID})
	if res.Error != nil {
		return fmt.Errorf("failed to update service: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrServiceNotPayable
	}
	seat := tx.WithContext(ctx).Model(&models.PropFirmPackage{}).
		Where("id = ? AND (max_clients IS NULL OR current_clients < max_clients)", svc.PackageID).
		Update("current_clients", gorm.Expr("current_clients + 1"))
	if seat.Error != nil {
		return fmt.Errorf("failed to reserve package seat: %w", seat.Error)
	}
	if seat.RowsAffected == 0 {
		return ErrPackageFull
	}
	s.log.WithFields(logrus.Fields{"service_id": serviceID, "payment_id": paymentID}).Info("prop firm service paid")
	return nil
}

// MyServices lists a user's services with passwords masked
func (s *PropFirmService) MyServices(ctx context.Context, userID uint) ([]models.PropFirmService, error) {
	var services []models.PropFirmService
	err := s.db.WithContext(ctx).Preload("Package").Where("user_id = ?", userID).Order("created_at DESC").Find(&services).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	for i := range services {
		maskService(&services[i])
	}
	return services, nil
}

// GetService returns a service. Only admins see the account password.
func (s *PropFirmService) GetService(ctx context.Context, id uint, v Viewer) (*models.PropFirmService, error) {
	var svc models.PropFirmService
	if err := s.db.WithContext(ctx).Preload("Package").Preload("User").First(&svc, id).Error; err != nil {
		return nil, mapNotFound(err, "Service")
	}
	if v.IsAdmin {
		return &svc, nil
	}
	if svc.UserID != v.UserID {
		return nil, ErrForbidden
	}
	return maskService(&svc), nil
}

type ServiceFilter struct {
	Status    string
	PackageID uint
	PageRequest
}

type ServicePage struct {
	Services   []models.PropFirmService `json:"services"`
	Pagination Pagination               `json:"pagination"`
}

func (s *PropFirmService) ListServices(ctx context.Context, f ServiceFilter) (*ServicePage, error) {
	page := f.PageRequest.normalize(20)
	q := s.db.WithContext(ctx).Model(&models.PropFirmService{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PackageID != 0 {
		q = q.Where("package_id = ?", f.PackageID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count services: %w", err)
	}
	var services []models.PropFirmService
	err := q.Preload("Package").Preload("User").Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.offset()).Find(&services).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return &ServicePage{Services: services, Pagination: newPagination(page, total)}, nil
}

// UpdateServiceStatus sets an admin-chosen status. Leaving a seat-holding
// status frees the package seat.
func (s *PropFirmService) UpdateServiceStatus(ctx context.Context, id uint, status models.ServiceStatus, reason string) (*models.PropFirmService, error) {
	if !status.Valid() {
		return nil, validationError("Invalid service status", "status")
	}
	var svc models.PropFirmService
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&svc, id).Error; err != nil {
			return mapNotFound(err, "Service")
		}
		fields := map[string]interface{}{"status": status}
		if status == models.ServiceStatusCancelled {
			now := time.Now()
			fields["cancelled_at"] = now
			fields["cancellation_reason"] = strings.TrimSpace(reason)
			svc.CancelledAt = &now
			svc.CancellationReason = strings.TrimSpace(reason)
		}
		res := tx.Model(&models.PropFirmService{}).Where("id = ? AND status = ?", id, svc.Status).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("service %d changed concurrently", id)
		}
		if occupiesSeat(svc.Status) && !occupiesSeat(status) {
			if err := tx.Model(&models.PropFirmPackage{}).
				Where("id = ? AND current_clients > 0", svc.PackageID).
				Update("current_clients", gorm.Expr("current_clients - 1")).Error; err != nil {
				return err
			}
		}
		svc.Status = status
		return nil
	})
	if err != nil {
		return nil, wrapUnexpected(err, "failed to update service status")
	}
	return &svc, nil
}

// AddNote appends a note to a service's history
func (s *PropFirmService) AddNote(ctx context.Context, id uint, v Viewer, content string) (*models.PropFirmService, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError("Note content is required", "content")
	}
	var svc models.PropFirmService
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&svc, id).Error; err != nil {
			return mapNotFound(err, "Service")
		}
		if !v.IsAdmin && svc.UserID != v.UserID {
			return ErrForbidden
		}
		svc.Notes = append(svc.Notes, models.ServiceNote{
			AuthorID:  v.UserID,
			Content:   content,
			IsAdmin:   v.IsAdmin,
			CreatedAt: time.Now(),
		})
		return tx.Model(&models.PropFirmService{}).Where("id = ?", id).Update("notes", svc.Notes).Error
	})
	if err != nil {
		return nil, wrapUnexpected(err, "failed to add note")
	}
	if !v.IsAdmin {
		maskService(&svc)
	}
	return &svc, nil
}

// ServiceChatLine is a chat message as shown to either party.
type ServiceChatLine struct {
	models.ServiceChatMessage
	SenderName string `json:"sender_name"`
}

type ServiceChat struct {
	ServiceID uint              `json:"service_id"`
	Messages  []ServiceChatLine `json:"messages"`
	Unread    int               `json:"unread"`
}

func (s *PropFirmService) chatService(ctx context.Context, id uint, v Viewer) error {
	var svc models.PropFirmService
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&svc, id).Error; err != nil {
		return mapNotFound(err, "Service")
	}
	if !v.IsAdmin && svc.UserID != v.UserID {
		return ErrForbidden
	}
	return nil
}

func chatLine(m models.ServiceChatMessage) ServiceChatLine {
	line := ServiceChatLine{ServiceChatMessage: m, SenderName: "Admin"}
	if m.SenderType == models.SenderTypeUser && m.Sender != nil {
		line.SenderName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	return line
}

// Chat returns a service's conversation oldest first and marks the other
// party's messages as read. Unread counts what was unread before this call.
func (s *PropFirmService) Chat(ctx context.Context, serviceID uint, v Viewer) (*ServiceChat, error) {
	if err := s.chatService(ctx, serviceID, v); err != nil {
		return nil, err
	}
	var messages []models.ServiceChatMessage
	err := s.db.WithContext(ctx).Preload("Sender").Where("service_id = ?", serviceID).
		Order("created_at ASC").Order("id ASC").Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load service chat: %w", err)
	}

	other := models.SenderTypeAdmin
	if v.IsAdmin {
		other = models.SenderTypeUser
	}
	res := s.db.WithContext(ctx).Model(&models.ServiceChatMessage{}).
		Where("service_id = ? AND sender_type = ? AND is_read = ?", serviceID, other, false).
		Update("is_read", true)
	if res.Error != nil {
		s.log.WithError(res.Error).WithField("service_id", serviceID).Warn("failed to mark service chat read")
	}

	chat := &ServiceChat{ServiceID: serviceID, Messages: make([]ServiceChatLine, 0, len(messages))}
	for _, m := range messages {
		if m.SenderType == other && !m.IsRead {
			chat.Unread++
		}
		chat.Messages = append(chat.Messages, chatLine(m))
	}
	return chat, nil
}

// SendChatMessage posts to a service's conversation as its owner or an admin
func (s *PropFirmService) SendChatMessage(ctx context.Context, serviceID uint, v Viewer, message string) (*ServiceChatLine, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, validationError("Message is required", "message")
	}
	if len([]rune(message)) > models.MaxServiceChatLength {
		return nil, validationError(fmt.Sprintf("Message cannot exceed %d characters", models.MaxServiceChatLength), "message")
	}
	if err := s.chatService(ctx, serviceID, v); err != nil {
		return nil, err
	}
	sender := models.SenderTypeUser
	if v.IsAdmin {
		sender = models.SenderTypeAdmin
	}
	msg := models.ServiceChatMessage{
		ServiceID:  serviceID,
		SenderID:   v.UserID,
		SenderType: sender,
		Message:    message,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, v.UserID).Error; err == nil {
		msg.Sender = &user
	}
	line := chatLine(msg)
	return &line, nil
}
