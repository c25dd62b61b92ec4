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

	"trading-challenges/internal/gateway"
	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
	"trading-challenges/internal/repository"
)

const defaultCurrency = "USD"

// PaymentService creates gateway charges and runs the completion workflow
// that turns a paid charge into a subscription, participant or service.
type PaymentService struct {
	repo          *repository.Repository
	gateway       gateway.PaymentGateway
	challenges    *ChallengeService
	subscriptions *SubscriptionService
	propFirm      *PropFirmService
	log           *logrus.Entry
}

func NewPaymentService(
	repo *repository.Repository,
	gw gateway.PaymentGateway,
	challenges *ChallengeService,
	subscriptions *SubscriptionService,
	propFirm *PropFirmService,
) *PaymentService {
	return &PaymentService{
		repo:          repo,
		gateway:       gw,
		challenges:    challenges,
		subscriptions: subscriptions,
		propFirm:      propFirm,
		log:           logger.Component("payments"),
	}
}

type CreateIntentRequest struct {
	Type        models.PaymentType `json:"type"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency"`
	ChallengeID *uint              `json:"challenge_id"`
	PlanID      *uint              `json:"plan_id"`
	ServiceID   *uint              `json:"service_id"`
}

type IntentResult struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	ClientSecret    string          `json:"client_secret"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// CreateIntent checks that the purchase is still possible, opens a gateway
// intent and records a pending payment.
func (s *PaymentService) CreateIntent(ctx context.Context, userID uint, req *CreateIntentRequest) (*IntentResult, error) {
	if !req.Type.Valid() {
		return nil, validationError("Invalid payment type", "type")
	}
	if !req.Amount.IsPositive() {
		return nil, validationError("Amount must be greater than zero", "amount")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:       uuid.New(),
		UserID:   userID,
		Amount:   req.Amount.Round(2),
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:   models.PaymentStatusPending,
		Metadata: models.PaymentMetadata{
			Type:      req.Type,
			UserEmail: user.Email,
			UserName:  strings.TrimSpace(user.FirstName + " " + user.LastName),
		},
	}
	if payment.Currency == "" {
		payment.Currency = defaultCurrency
	}

	entityName, err := s.checkPurchase(ctx, userID, req, payment)
	if err != nil {
		return nil, err
	}
	payment.Metadata.EntityName = entityName

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		AmountCents:  payment.AmountInCents(),
		Currency:     strings.ToLower(payment.Currency),
		Description:  fmt.Sprintf("%s: %s", req.Type, entityName),
		ReceiptEmail: user.Email,
		Metadata: map[string]string{
			"payment_id": payment.ID.String(),
			"user_id":    fmt.Sprint(userID),
			"type":       string(req.Type),
		},
		IdempotencyKey: payment.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	payment.StripePaymentIntentID = intent.ID
	payment.StripeClientSecret = intent.ClientSecret
	payment.StripeCustomerID = intent.CustomerID

	if err := s.repo.DB().WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"user_id":    userID,
		"type":       req.Type,
		"amount":     payment.Amount.String(),
	}).Info("payment intent created")

	return &IntentResult{
		PaymentID:       payment.ID,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
	}, nil
}

func (s *PaymentService) loadUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.repo.DB().WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, mapNotFound(err, "User")
	}
	return &user, nil
}

// checkPurchase runs the per-type preconditions and links the payment to
// what it buys. It returns the purchased entity's display name.
func (s *PaymentService) checkPurchase(ctx context.Context, userID uint, req *CreateIntentRequest, p *models.Payment) (string, error) {
	db := s.repo.DB()
	switch req.Type {
	case models.PaymentTypeChallenge:
		if req.ChallengeID == nil {
			return "", validationError("Missing required fields", "challenge_id")
		}
		challenge, err := s.repo.GetChallengeByID(ctx, *req.ChallengeID)
		if err != nil {
			return "", mapNotFound(err, "Challenge")
		}
		if err := joinableError(challenge.Status); err != nil {
			return "", err
		}
		if challenge.CurrentParticipants >= challenge.MaxParticipants {
			return "", ErrChallengeFull
		}
		existing, err := s.repo.GetParticipant(ctx, challenge.ID, userID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return "", ErrAlreadyParticipant
		}
		p.ChallengeID = &challenge.ID
		return challenge.Name, nil

	case models.PaymentTypeSignalPlan, models.PaymentTypeMentorship:
		if req.PlanID == nil {
			return "", validationError("Missing required fields", "plan_id")
		}
		plan, err := planInfo(ctx, db, models.PlanType(req.Type), *req.PlanID)
		if err != nil {
			return "", err
		}
		if !plan.IsActive {
			return "", ErrPlanInactive
		}
		if plan.IsFull {
			return "", ErrPlanFull
		}
		var active int64
		err = db.WithContext(ctx).Model(&models.Subscription{}).
			Where("user_id = ? AND plan_type = ? AND plan_id = ?", userID, plan.Type, plan.ID).
			Where("status = ? AND end_date > ?", models.SubscriptionStatusActive, time.Now()).
			Count(&active).Error
		if err != nil {
			return "", fmt.Errorf("failed to check subscriptions: %w", err)
		}
		if active > 0 {
			return "", ErrDuplicateSubscription
		}
		p.PlanID = &plan.ID
		return plan.Name, nil

	case models.PaymentTypePropFirmService:
		if req.ServiceID == nil {
			return "", validationError("Missing required fields", "service_id")
		}
		svc, err := payableService(ctx, db, *req.ServiceID, userID)
		if err != nil {
			return "", err
		}
		p.ServiceID = &svc.ID
		p.PackageID = &svc.PackageID
		return svc.Package.Name, nil
	}
	return "", validationError("Invalid payment type", "type")
}

// ConfirmResult reports the payment after a confirmation attempt.
type ConfirmResult struct {
	Payment          *models.Payment `json:"payment"`
	AlreadyCompleted bool            `json:"already_completed"`
	Message          string          `json:"-"`
}

// Confirm checks the gateway and completes the payment when it succeeded.
// Confirming a completed payment again changes nothing.
func (s *PaymentService) Confirm(ctx context.Context, intentID string, v Viewer) (*ConfirmResult, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, validationError("Missing required fields", "payment_intent_id")
	}
	payment, err := s.byIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin && payment.UserID != v.UserID {
		return nil, ErrForbidden
	}
	if payment.Status == models.PaymentStatusCompleted {
		return &ConfirmResult{Payment: payment, AlreadyCompleted: true, Message: "Payment already completed"}, nil
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	switch {
	case intent.Status == gateway.IntentSucceeded:
		already, err := s.complete(ctx, payment, intent)
		if err != nil {
			return nil, err
		}
		payment, err = s.byIntent(ctx, intentID)
		if err != nil {
			return nil, err
		}
		if already {
			return &ConfirmResult{Payment: payment, AlreadyCompleted: true, Message: "Payment already completed"}, nil
		}
		return &ConfirmResult{Payment: payment, Message: "Payment completed successfully"}, nil

	case intent.Status.Failed():
		reason := intent.FailureMessage
		if reason == "" {
			reason = "Payment was not completed"
		}
		if err := s.markFailed(ctx, payment.ID, reason); err != nil {
			return nil, err
		}
		return nil, ruleWithMessage(ErrPaymentFailed, "Payment failed: "+reason)

	default:
		if err := s.repo.DB().WithContext(ctx).Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Update("status", models.PaymentStatusProcessing).Error; err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}
		payment.Status = models.PaymentStatusProcessing
		return &ConfirmResult{Payment: payment, Message: "Payment is " + string(intent.Status)}, nil
	}
}

// complete flips the payment to completed and applies its effects in one
// transaction. Only the caller whose UPDATE wins runs the effects; the
// others report already=true.
func (s *PaymentService) complete(ctx context.Context, p *models.Payment, intent *gateway.Intent) (already bool, err error) {
	var enrolled *models.Participant
	now := time.Now()

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		res := tx.DB().Model(&models.Payment{}).
			Where("id = ? AND status <> ?", p.ID, models.PaymentStatusCompleted).
			Updates(map[string]interface{}{
				"status":             models.PaymentStatusCompleted,
				"completed_at":       now,
				"payment_method":     intent.PaymentMethod,
				"transaction_id":     intent.ChargeID,
				"stripe_customer_id": intent.CustomerID,
				"failure_reason":     "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			already = true
			return nil
		}

		participant, err := s.applyEffects(ctx, tx, p)
		enrolled = participant
		return err
	})

	var de *DomainError
	var ve *ValidationError
	if errors.As(err, &de) || errors.As(err, &ve) {
		// The charge succeeded but the purchase can no longer be fulfilled.
		if markErr := s.markFailed(ctx, p.ID, err.Error()); markErr != nil {
			s.log.WithError(markErr).WithField("payment_id", p.ID).Error("failed to record fulfilment failure")
		}
		s.log.WithError(err).WithField("payment_id", p.ID).Warn("paid purchase could not be fulfilled; refund required")
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("failed to complete payment: %w", err)
	}

	if !already {
		s.log.WithFields(logrus.Fields{
			"payment_id": p.ID,
			"user_id":    p.UserID,
			"type":       p.Metadata.Type,
		}).Info("payment completed")
		if enrolled != nil {
			s.challenges.afterParticipantChange(enrolled)
		}
	}
	return already, nil
}

func (s *PaymentService) applyEffects(ctx context.Context, tx *repository.Repository, p *models.Payment) (*models.Participant, error) {
	switch p.Metadata.Type {
	case models.PaymentTypeChallenge:
		if p.ChallengeID == nil {
			return nil, validationError("Payment has no challenge", "challenge_id")
		}
		return s.challenges.EnrollFromPayment(ctx, tx, *p.ChallengeID, p.UserID, p.ID)

	case models.PaymentTypeSignalPlan, models.PaymentTypeMentorship:
		if p.PlanID == nil {
			return nil, validationError("Payment has no plan", "plan_id")
		}
		plan, err := planInfo(ctx, tx.DB(), models.PlanType(p.Metadata.Type), *p.PlanID)
		if err != nil {
			return nil, err
		}
		_, err = s.subscriptions.Activate(ctx, tx.DB(), p.UserID, plan, p.ID, p.Amount)
		return nil, err

	case models.PaymentTypePropFirmService:
		if p.ServiceID == nil {
			return nil, validationError("Payment has no service", "service_id")
		}
		return nil, s.propFirm.MarkPaid(ctx, tx.DB(), *p.ServiceID, p.ID)
	}
	return nil, fmt.Errorf("unknown payment type %q", p.Metadata.Type)
}

func (s *PaymentService) markFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	err := s.repo.DB().WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, models.PaymentStatusCompleted).
		Updates(map[string]interface{}{"status": models.PaymentStatusFailed, "failure_reason": reason}).Error
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return nil
}

func (s *PaymentService) byIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	err := s.repo.DB().WithContext(ctx).Where("stripe_payment_intent_id = ?", intentID).First(&p).Error
	if err != nil {
		return nil, mapNotFound(err, "Payment")
	}
	return &p, nil
}

// Get returns a payment visible to the viewer
func (s *PaymentService) Get(ctx context.Context, id uuid.UUID, v Viewer) (*models.Payment, error) {
	var p models.Payment
	if err := s.repo.DB().WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err, "Payment")
	}
	if !v.IsAdmin && p.UserID != v.UserID {
		return nil, ErrForbidden
	}
	return &p, nil
}

type PaymentFilter struct {
	UserID uint
	Status string
	Type   string
	PageRequest
}

type PaymentPage struct {
	Payments   []models.Payment `json:"payments"`
	Pagination Pagination       `json:"pagination"`
}

// List returns payments newest first. A zero UserID lists everyone's.
func (s *PaymentService) List(ctx context.Context, f PaymentFilter) (*PaymentPage, error) {
	page := f.PageRequest.normalize(20)
	q := s.repo.DB().WithContext(ctx).Model(&models.Payment{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("meta_type = ?", f.Type)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	var payments []models.Payment
	err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.offset()).Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return &PaymentPage{Payments: payments, Pagination: newPagination(page, total)}, nil
}

// Refund returns money for a completed payment. A nil amount refunds it in full.
func (s *PaymentService) Refund(ctx context.Context, id uuid.UUID, amount *decimal.Decimal) (*models.Payment, error) {
	p, err := s.Get(ctx, id, Viewer{IsAdmin: true})
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCompleted {
		return nil, ErrPaymentNotRefundable
	}
	refundAmount := p.Amount
	if amount != nil {
		if !amount.IsPositive() || amount.GreaterThan(p.Amount) {
			return nil, validationError("Refund amount must be between 0 and the payment amount", "amount")
		}
		refundAmount = amount.Round(2)
	}

	refund, err := s.gateway.Refund(ctx, p.StripePaymentIntentID, refundAmount.Shift(2).IntPart())
	if err != nil {
		return nil, fmt.Errorf("failed to refund payment: %w", err)
	}
	refunded := decimal.New(refund.AmountCents, -2)

	err = s.repo.DB().WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", p.ID, models.PaymentStatusCompleted).
		Updates(map[string]interface{}{"status": models.PaymentStatusCancelled, "refunded_amount": refunded}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}
	s.log.WithFields(logrus.Fields{"payment_id": p.ID, "refund_id": refund.ID, "amount": refunded.String()}).Info("payment refunded")

	p.Status = models.PaymentStatusCancelled
	p.RefundedAmount = refunded
	return p, nil
}
