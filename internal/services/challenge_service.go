package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
	"trading-challenges/internal/repository"
	"trading-challenges/internal/tasks"
)

const sweepConcurrency = 10

// ChallengeService owns challenge state transitions and participant admission.
type ChallengeService struct {
	repo        *repository.Repository
	stats       *StatsService
	leaderboard *LeaderboardService
	tasks       tasks.Submitter
	log         *logrus.Entry
}

func NewChallengeService(
	repo *repository.Repository,
	stats *StatsService,
	leaderboard *LeaderboardService,
	submitter tasks.Submitter,
) *ChallengeService {
	return &ChallengeService{
		repo:        repo,
		stats:       stats,
		leaderboard: leaderboard,
		tasks:       submitter,
		log:         logger.Component("challenges"),
	}
}

type CreateChallengeRequest struct {
	Name            string                 `json:"name" binding:"required,max=200"`
	Type            models.ChallengeType   `json:"type" binding:"required"`
	AccountSize     float64                `json:"account_size" binding:"required,gt=0"`
	Price           *decimal.Decimal       `json:"price"`
	Prizes          models.PrizeTable      `json:"prizes"`
	MaxParticipants int                    `json:"max_participants" binding:"omitempty,min=1"`
	StartDate       *time.Time             `json:"start_date" binding:"required"`
	EndDate         *time.Time             `json:"end_date" binding:"required"`
	Description     string                 `json:"description" binding:"required"`
	Rules           []string               `json:"rules"`
	Requirements    *models.Requirements   `json:"requirements"`
	Status          models.ChallengeStatus `json:"status"`
	ChallengeMode   models.ChallengeMode   `json:"challenge_mode"`
}

// CreateChallenge validates and stores a new challenge owned by adminID
func (s *ChallengeService) CreateChallenge(ctx context.Context, adminID uint, req *CreateChallengeRequest) (*models.Challenge, error) {
	if !req.Type.Valid() {
		return nil, validationError("Invalid challenge type", "type")
	}
	if req.StartDate == nil || req.EndDate == nil {
		return nil, validationError("Start and end dates are required", "start_date", "end_date")
	}
	if !req.StartDate.Before(*req.EndDate) {
		return nil, validationError("End date must be after start date")
	}
	if !req.StartDate.After(time.Now()) {
		return nil, validationError("Start date and time cannot be in the past")
	}
	if err := req.Prizes.Validate(); err != nil {
		return nil, validationError(err.Error(), "prizes")
	}

	status := req.Status
	if status == "" {
		status = models.ChallengeStatusDraft
	}
	if status != models.ChallengeStatusDraft && status != models.ChallengeStatusUpcoming {
		return nil, validationError("New challenges must start as draft or upcoming", "status")
	}
	mode := req.ChallengeMode
	if mode == "" {
		mode = models.ChallengeModeTarget
	}
	if mode != models.ChallengeModeTarget && mode != models.ChallengeModeRank {
		return nil, validationError("Invalid challenge mode", "challenge_mode")
	}
	maxParticipants := req.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = 100
	}
	price := decimal.Zero
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, validationError("Price cannot be negative", "price")
		}
		price = *req.Price
	}
	requirements := models.Requirements{MaxDrawdown: 10, TargetProfit: 10}
	if req.Requirements != nil {
		requirements = *req.Requirements
	}

	challenge := &models.Challenge{
		Name:            strings.TrimSpace(req.Name),
		Type:            req.Type,
		AccountSize:     req.AccountSize,
		Price:           price,
		Prizes:          req.Prizes,
		MaxParticipants: maxParticipants,
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		Status:          status,
		ChallengeMode:   mode,
		Description:     req.Description,
		Rules:           models.StringList(req.Rules),
		Requirements:    requirements,
		CreatedByID:     adminID,
	}
	if err := s.repo.CreateChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	s.log.WithFields(logrus.Fields{"challenge_id": challenge.ID, "status": challenge.Status}).Info("challenge created")
	return challenge, nil
}

// UpdateChallengeRequest is a partial update. The creator, the participant
// list and the participant counter cannot be changed through it.
type UpdateChallengeRequest struct {
	Name            *string                 `json:"name"`
	Type            *models.ChallengeType   `json:"type"`
	AccountSize     *float64                `json:"account_size"`
	Price           *decimal.Decimal        `json:"price"`
	Prizes          *models.PrizeTable      `json:"prizes"`
	MaxParticipants *int                    `json:"max_participants"`
	StartDate       *time.Time              `json:"start_date"`
	EndDate         *time.Time              `json:"end_date"`
	Description     *string                 `json:"description"`
	Rules           *[]string               `json:"rules"`
	Requirements    *models.Requirements    `json:"requirements"`
	Status          *models.ChallengeStatus `json:"status"`
	ChallengeMode   *models.ChallengeMode   `json:"challenge_mode"`
}

// UpdateChallenge applies a partial update. Status changes go through the
// transition table.
func (s *ChallengeService) UpdateChallenge(ctx context.Context, id uint, req *UpdateChallengeRequest) (*models.Challenge, error) {
	challenge, err := s.repo.GetChallengeByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "Challenge")
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, validationError("Name cannot be empty", "name")
		}
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, validationError("Invalid challenge type", "type")
		}
		fields["type"] = *req.Type
	}
	if req.AccountSize != nil {
		if *req.AccountSize <= 0 {
			return nil, validationError("Account size must be positive", "account_size")
		}
		fields["account_size"] = *req.AccountSize
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, validationError("Price cannot be negative", "price")
		}
		fields["price"] = *req.Price
	}
	if req.Prizes != nil {
		if err := req.Prizes.Validate(); err != nil {
			return nil, validationError(err.Error(), "prizes")
		}
		fields["prizes"] = *req.Prizes
	}
	if req.MaxParticipants != nil {
		if *req.MaxParticipants < 1 || *req.MaxParticipants < challenge.CurrentParticipants {
			return nil, validationError("Max participants cannot be below the current participant count", "max_participants")
		}
		fields["max_participants"] = *req.MaxParticipants
	}

	start, end := challenge.StartDate, challenge.EndDate
	if req.StartDate != nil {
		start = req.StartDate.UTC()
		fields["start_date"] = start
	}
	if req.EndDate != nil {
		end = req.EndDate.UTC()
		fields["end_date"] = end
	}
	if !start.Before(end) {
		return nil, validationError("End date must be after start date")
	}

	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Rules != nil {
		fields["rules"] = models.StringList(*req.Rules)
	}
	if req.Requirements != nil {
		fields["req_min_balance"] = req.Requirements.MinBalance
		fields["req_max_drawdown"] = req.Requirements.MaxDrawdown
		fields["req_target_profit"] = req.Requirements.TargetProfit
	}
	if req.ChallengeMode != nil {
		if *req.ChallengeMode != models.ChallengeModeTarget && *req.ChallengeMode != models.ChallengeModeRank {
			return nil, validationError("Invalid challenge mode", "challenge_mode")
		}
		fields["challenge_mode"] = *req.ChallengeMode
	}

	var transitionTo models.ChallengeStatus
	if req.Status != nil && *req.Status != challenge.Status {
		if _, err := challenge.Status.EventTo(*req.Status); err != nil {
			return nil, ruleWithMessage(ErrInvalidTransition,
				fmt.Sprintf("Cannot change challenge status from %s to %s", challenge.Status, *req.Status))
		}
		transitionTo = *req.Status
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if len(fields) > 0 {
			if err := tx.UpdateChallengeFields(ctx, id, fields); err != nil {
				return err
			}
		}
		if transitionTo != "" {
			ok, err := tx.TransitionChallengeStatus(ctx, id, challenge.Status, transitionTo)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidTransition
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapUnexpected(err, "failed to update challenge")
	}

	if transitionTo != "" {
		s.log.WithFields(logrus.Fields{"challenge_id": id, "from": challenge.Status, "to": transitionTo}).Info("challenge status changed")
	}
	return s.repo.GetChallengeByID(ctx, id)
}

// DeleteChallenge removes a challenge that has no participants
func (s *ChallengeService) DeleteChallenge(ctx context.Context, id uint) error {
	challenge, err := s.repo.GetChallengeByID(ctx, id)
	if err != nil {
		return mapNotFound(err, "Challenge")
	}
	if challenge.CurrentParticipants > 0 {
		return ErrChallengeHasParticipants
	}

	deleted, err := s.repo.DeleteChallengeIfEmpty(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	if !deleted {
		return ErrChallengeHasParticipants
	}
	return nil
}

// GetChallenge returns a challenge with its roster. MT5 accounts are never included.
func (s *ChallengeService) GetChallenge(ctx context.Context, id uint) (*models.Challenge, error) {
	challenge, err := s.repo.GetChallengeByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "Challenge")
	}
	participants, err := s.repo.ListParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	challenge.Participants = stripAccounts(participants)
	return challenge, nil
}

type ListChallengesQuery struct {
	Status string
	Type   string
	PageRequest
}

// ListChallenges filters by comma-separated statuses and types. Status
// defaults to active.
func (s *ChallengeService) ListChallenges(ctx context.Context, q ListChallengesQuery) ([]models.Challenge, Pagination, error) {
	status := q.Status
	if status == "" {
		status = string(models.ChallengeStatusActive)
	}
	filter := repository.ChallengeFilter{}
	for _, st := range splitCSV(status) {
		filter.Statuses = append(filter.Statuses, models.ChallengeStatus(st))
	}
	for _, t := range splitCSV(q.Type) {
		filter.Types = append(filter.Types, models.ChallengeType(t))
	}

	page := q.PageRequest.normalize(50)
	filter.Limit = page.Limit
	filter.Offset = page.offset()

	challenges, total, err := s.repo.ListChallenges(ctx, filter)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list challenges: %w", err)
	}
	if err := s.attachParticipants(ctx, challenges, stripAccounts); err != nil {
		return nil, Pagination{}, err
	}
	return challenges, newPagination(page, total), nil
}

// AdminChallenges lists the challenges created by adminID with full rosters
func (s *ChallengeService) AdminChallenges(ctx context.Context, adminID uint) ([]models.Challenge, error) {
	challenges, _, err := s.repo.ListChallenges(ctx, repository.ChallengeFilter{CreatedByID: adminID})
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	if err := s.attachParticipants(ctx, challenges, func(ps []models.Participant) []models.Participant { return ps }); err != nil {
		return nil, err
	}
	return challenges, nil
}

func (s *ChallengeService) attachParticipants(
	ctx context.Context,
	challenges []models.Challenge,
	redact func([]models.Participant) []models.Participant,
) error {
	ids := make([]uint, len(challenges))
	for i := range challenges {
		ids[i] = challenges[i].ID
	}
	participants, err := s.repo.ListParticipantsByChallenges(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	byChallenge := make(map[uint][]models.Participant, len(challenges))
	for _, p := range participants {
		byChallenge[p.ChallengeID] = append(byChallenge[p.ChallengeID], p)
	}
	for i := range challenges {
		challenges[i].Participants = redact(byChallenge[challenges[i].ID])
	}
	return nil
}

// UserChallenge is a challenge together with the caller's own entry in it.
type UserChallenge struct {
	models.Challenge
	Participation models.Participant `json:"participation"`
}

// MyChallenges lists the challenges userID participates in. Passwords are masked.
func (s *ChallengeService) MyChallenges(ctx context.Context, userID uint) ([]UserChallenge, error) {
	participants, err := s.repo.ListParticipantsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participations: %w", err)
	}

	out := make([]UserChallenge, 0, len(participants))
	for _, p := range participants {
		if p.Challenge == nil {
			continue
		}
		c := *p.Challenge
		p.Challenge = nil
		p.MT5Account = p.MT5Account.Masked()
		out = append(out, UserChallenge{Challenge: c, Participation: p})
	}
	return out, nil
}

type JoinResult struct {
	ChallengeID      uint                `json:"challenge_id"`
	ParticipantCount int                 `json:"participant_count"`
	Participant      *models.Participant `json:"participant"`
	SetupCompleted   bool                `json:"setup_completed"`
}

// JoinChallenge admits userID with the given MT5 account. A participant left
// in pending_setup by a payment is activated in place instead.
func (s *ChallengeService) JoinChallenge(ctx context.Context, challengeID, userID uint, account models.MT5Account) (*JoinResult, error) {
	var res JoinResult
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		challenge, err := tx.GetChallengeByID(ctx, challengeID)
		if err != nil {
			return mapNotFound(err, "Challenge")
		}
		if err := joinableError(challenge.Status); err != nil {
			return err
		}

		existing, err := tx.GetParticipant(ctx, challengeID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status != models.ParticipantStatusPendingSetup {
				return ErrAlreadyParticipant
			}
			if !account.Complete() {
				return ErrMissingAccountInfo
			}
			existing.MT5Account = account
			existing.Status = models.ParticipantStatusActive
			existing.JoinedAt = time.Now()
			if existing.CurrentBalance == 0 {
				existing.CurrentBalance = challenge.AccountSize
			}
			existing.RecomputeProfitPercent(challenge.AccountSize)
			if err := tx.SaveParticipant(ctx, existing); err != nil {
				return err
			}
			res = JoinResult{
				ChallengeID:      challengeID,
				ParticipantCount: challenge.CurrentParticipants,
				Participant:      existing,
				SetupCompleted:   true,
			}
			return nil
		}

		if !account.Complete() {
			return ErrMissingAccountInfo
		}
		ok, err := tx.ReserveSeat(ctx, challengeID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrChallengeFull
		}

		p := &models.Participant{
			ChallengeID:    challengeID,
			UserID:         userID,
			JoinedAt:       time.Now(),
			Status:         models.ParticipantStatusActive,
			MT5Account:     account,
			CurrentBalance: challenge.AccountSize,
		}
		if err := tx.CreateParticipant(ctx, p); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyParticipant
			}
			return err
		}
		res = JoinResult{
			ChallengeID:      challengeID,
			ParticipantCount: challenge.CurrentParticipants + 1,
			Participant:      p,
		}
		return nil
	})
	if err != nil {
		return nil, wrapUnexpected(err, "failed to join challenge")
	}

	s.log.WithFields(logrus.Fields{"challenge_id": challengeID, "user_id": userID}).Info("user joined challenge")
	s.afterParticipantChange(res.Participant)
	res.Participant.MT5Account = res.Participant.MT5Account.Masked()
	return &res, nil
}

func joinableError(status models.ChallengeStatus) error {
	switch status {
	case models.ChallengeStatusCompleted:
		return ErrChallengeEnded
	case models.ChallengeStatusCancelled:
		return ErrChallengeCancelled
	}
	if !status.Joinable() {
		return ErrChallengeNotJoinable
	}
	return nil
}

// EnrollFromPayment adds a pending_setup participant for a paid entry inside
// the caller's transaction. An existing participant is left untouched.
func (s *ChallengeService) EnrollFromPayment(ctx context.Context, tx *repository.Repository, challengeID, userID uint, paymentID uuid.UUID) (*models.Participant, error) {
	challenge, err := tx.GetChallengeByID(ctx, challengeID)
	if err != nil {
		return nil, mapNotFound(err, "Challenge")
	}
	if err := joinableError(challenge.Status); err != nil {
		return nil, err
	}

	existing, err := tx.GetParticipant(ctx, challengeID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	ok, err := tx.ReserveSeat(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrChallengeFull
	}

	p := &models.Participant{
		ChallengeID:    challengeID,
		UserID:         userID,
		JoinedAt:       time.Now(),
		Status:         models.ParticipantStatusPendingSetup,
		CurrentBalance: challenge.AccountSize,
		PaymentID:      &paymentID,
	}
	if err := tx.CreateParticipant(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LeaveChallenge removes the caller's entry while the challenge is still open
func (s *ChallengeService) LeaveChallenge(ctx context.Context, challengeID, userID uint) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		challenge, err := tx.GetChallengeByID(ctx, challengeID)
		if err != nil {
			return mapNotFound(err, "Challenge")
		}
		p, err := tx.GetParticipant(ctx, challengeID, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotAParticipant
		}
		return removeParticipant(ctx, tx, challenge, p)
	})
	if err != nil {
		return wrapUnexpected(err, "failed to leave challenge")
	}

	s.log.WithFields(logrus.Fields{"challenge_id": challengeID, "user_id": userID}).Info("user left challenge")
	s.stats.Schedule(userID)
	return nil
}

// RemoveParticipant is the admin variant of LeaveChallenge
func (s *ChallengeService) RemoveParticipant(ctx context.Context, challengeID, participantID uint) error {
	var userID uint
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		challenge, err := tx.GetChallengeByID(ctx, challengeID)
		if err != nil {
			return mapNotFound(err, "Challenge")
		}
		p, err := tx.GetParticipantByID(ctx, challengeID, participantID)
		if err != nil {
			return mapNotFound(err, "Participant")
		}
		userID = p.UserID
		return removeParticipant(ctx, tx, challenge, p)
	})
	if err != nil {
		return wrapUnexpected(err, "failed to remove participant")
	}
	s.stats.Schedule(userID)
	return nil
}

func removeParticipant(ctx context.Context, tx *repository.Repository, challenge *models.Challenge, p *models.Participant) error {
	if challenge.Status.IsTerminal() {
		return ErrChallengeClosed
	}
	deleted, err := tx.DeleteParticipant(ctx, p.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotAParticipant
	}
	return tx.ReleaseSeat(ctx, challenge.ID)
}

type ChallengeRoster struct {
	ChallengeID   uint                 `json:"challenge_id"`
	ChallengeName string               `json:"challenge_name"`
	Participants  []models.Participant `json:"participants"`
}

// ListParticipants returns the full roster for admins
func (s *ChallengeService) ListParticipants(ctx context.Context, challengeID uint) (*ChallengeRoster, error) {
	challenge, err := s.repo.GetChallengeByID(ctx, challengeID)
	if err != nil {
		return nil, mapNotFound(err, "Challenge")
	}
	participants, err := s.repo.ListParticipants(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return &ChallengeRoster{ChallengeID: challenge.ID, ChallengeName: challenge.Name, Participants: participants}, nil
}

// ParticipantUpdate is a partial admin edit of one participant.
type ParticipantUpdate struct {
	CurrentBalance *float64                  `json:"current_balance"`
	Profit         *float64                  `json:"profit"`
	Status         *models.ParticipantStatus `json:"status"`
	MT5Account     *models.MT5Account        `json:"mt5_account"`
}

// UpdateParticipant applies an admin edit and recomputes profit percent.
func (s *ChallengeService) UpdateParticipant(ctx context.Context, challengeID, participantID uint, req *ParticipantUpdate) (*models.Participant, error) {
	challenge, err := s.repo.GetChallengeByID(ctx, challengeID)
	if err != nil {
		return nil, mapNotFound(err, "Challenge")
	}
	p, err := s.repo.GetParticipantByID(ctx, challengeID, participantID)
	if err != nil {
		return nil, mapNotFound(err, "Participant")
	}

	if req.CurrentBalance != nil {
		if *req.CurrentBalance < 0 {
			return nil, validationError("Balance cannot be negative", "current_balance")
		}
		p.CurrentBalance = *req.CurrentBalance
	}
	if req.Profit != nil {
		p.Profit = *req.Profit
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, validationError("Invalid participant status", "status")
		}
		p.Status = *req.Status
	}
	if req.MT5Account != nil {
		p.MT5Account = *req.MT5Account
	}
	p.RecomputeProfitPercent(challenge.AccountSize)

	if err := s.repo.SaveParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update participant: %w", err)
	}

	snapshot := *p
	s.stats.Schedule(p.UserID)
	s.tasks.Submit(fmt.Sprintf("leaderboard-replace:%d", p.UserID), func(ctx context.Context) error {
		return s.leaderboard.ReplaceFromParticipant(ctx, &snapshot)
	})
	return p, nil
}

// afterParticipantChange refreshes derived data off the request path.
func (s *ChallengeService) afterParticipantChange(p *models.Participant) {
	snapshot := *p
	s.stats.Schedule(p.UserID)
	s.tasks.Submit(fmt.Sprintf("leaderboard-upsert:%d", p.UserID), func(ctx context.Context) error {
		return s.leaderboard.UpsertFromParticipant(ctx, &snapshot)
	})
}

// ChallengeAccount is the caller's own MT5 login for one challenge.
type ChallengeAccount struct {
	ParticipantID uint                     `json:"id"`
	AccountID     string                   `json:"account_id"`
	Server        string                   `json:"server"`
	Password      string                   `json:"password"`
	ChallengeID   uint                     `json:"challenge_id"`
	ChallengeName string                   `json:"challenge_name"`
	JoinedAt      time.Time                `json:"joined_at"`
	Status        models.ParticipantStatus `json:"status"`
}

// MyAccount returns the caller's MT5 account for a challenge, password included
func (s *ChallengeService) MyAccount(ctx context.Context, challengeID, userID uint) (*ChallengeAccount, error) {
	challenge, err := s.repo.GetChallengeByID(ctx, challengeID)
	if err != nil {
		return nil, mapNotFound(err, "Challenge")
	}
	p, err := s.repo.GetParticipant(ctx, challengeID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}
	if p == nil {
		return nil, &DomainError{Kind: KindNotFound, Code: ErrNotFound.Code, Message: "You are not participating in this challenge"}
	}
	if p.MT5Account.ID == "" {
		return nil, notFound("MT5 account for this challenge")
	}
	return &ChallengeAccount{
		ParticipantID: p.ID,
		AccountID:     p.MT5Account.ID,
		Server:        p.MT5Account.Server,
		Password:      p.MT5Account.Password,
		ChallengeID:   challenge.ID,
		ChallengeName: challenge.Name,
		JoinedAt:      p.JoinedAt,
		Status:        p.Status,
	}, nil
}

// ParticipantAccount is one row of the admin MT5 account listing.
type ParticipantAccount struct {
	ParticipantID uint                     `json:"id"`
	ChallengeID   uint                     `json:"challenge_id"`
	ChallengeName string                   `json:"challenge_name"`
	UserID        uint                     `json:"user_id"`
	UserName      string                   `json:"user_name"`
	UserEmail     string                   `json:"user_email"`
	MT5Account    models.MT5Account        `json:"mt5_account"`
	JoinedAt      time.Time                `json:"joined_at"`
	Status        models.ParticipantStatus `json:"status"`
}

// AdminMT5Accounts lists every participant account across challenges
func (s *ChallengeService) AdminMT5Accounts(ctx context.Context) ([]ParticipantAccount, error) {
	participants, err := s.repo.ListParticipantsWithAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load MT5 accounts: %w", err)
	}

	out := make([]ParticipantAccount, 0, len(participants))
	for _, p := range participants {
		row := ParticipantAccount{
			ParticipantID: p.ID,
			ChallengeID:   p.ChallengeID,
			UserID:        p.UserID,
			MT5Account:    p.MT5Account,
			JoinedAt:      p.JoinedAt,
			Status:        p.Status,
		}
		if p.Challenge != nil {
			row.ChallengeName = p.Challenge.Name
		}
		if p.User != nil {
			row.UserName = strings.TrimSpace(p.User.FirstName + " " + p.User.LastName)
			row.UserEmail = p.User.Email
		}
		out = append(out, row)
	}
	return out, nil
}

// SweepResult summarises one status sweep.
type SweepResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// SweepTarget is the status a challenge should move to at now, or "" when
// it should stay where it is.
func SweepTarget(c *models.Challenge, now time.Time) models.ChallengeStatus {
	switch {
	case !now.Before(c.EndDate):
		return models.ChallengeStatusCompleted
	case !now.Before(c.StartDate) && c.Status == models.ChallengeStatusUpcoming:
		return models.ChallengeStatusActive
	}
	return ""
}

// UpdateStatuses advances upcoming and active challenges by wall-clock time.
// Writes are independent; a failed write is counted and left for the next run.
func (s *ChallengeService) UpdateStatuses(ctx context.Context) (*SweepResult, error) {
	challenges, _, err := s.repo.ListChallenges(ctx, repository.ChallengeFilter{
		Statuses: []models.ChallengeStatus{models.ChallengeStatusUpcoming, models.ChallengeStatusActive},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load challenges for sweep: %w", err)
	}

	now := time.Now()
	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i := range challenges {
		c := &challenges[i]
		target := SweepTarget(c, now)
		if target == "" {
			continue
		}
		if _, err := c.Status.EventTo(target); err != nil {
			failed.Add(1)
			continue
		}
		g.Go(func() error {
			ok, err := s.repo.TransitionChallengeStatus(gctx, c.ID, c.Status, target)
			if err != nil {
				failed.Add(1)
				s.log.WithField("challenge_id", c.ID).WithError(err).Warn("status update failed")
				return nil
			}
			if ok {
				updated.Add(1)
				s.log.WithFields(logrus.Fields{
					"challenge_id": c.ID,
					"name":         c.Name,
					"from":         c.Status,
					"to":           target,
				}).Info("challenge status updated")
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &SweepResult{Checked: len(challenges), Updated: int(updated.Load()), Failed: int(failed.Load())}
	if res.Updated > 0 || res.Failed > 0 {
		s.log.WithFields(logrus.Fields{"updated": res.Updated, "failed": res.Failed}).Info("challenge sweep finished")
	}
	return res, nil
}

// CounterDrift records a challenge whose counter disagreed with its rows.
type CounterDrift struct {
	ChallengeID uint `json:"challenge_id"`
	Recorded    int  `json:"recorded"`
	Actual      int  `json:"actual"`
}

type ReconcileResult struct {
	Checked   int            `json:"checked"`
	Corrected int            `json:"corrected"`
	Drift     []CounterDrift `json:"drift"`
}

// ReconcileCounters compares every participant counter with the row count
// and rewrites the ones that drifted.
func (s *ChallengeService) ReconcileCounters(ctx context.Context) (*ReconcileResult, error) {
	challenges, _, err := s.repo.ListChallenges(ctx, repository.ChallengeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load challenges: %w", err)
	}
	counts, err := s.repo.CountParticipantsByChallenge(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}

	res := &ReconcileResult{Checked: len(challenges), Drift: []CounterDrift{}}
	for _, c := range challenges {
		actual := counts[c.ID]
		if actual == c.CurrentParticipants {
			continue
		}
		res.Drift = append(res.Drift, CounterDrift{ChallengeID: c.ID, Recorded: c.CurrentParticipants, Actual: actual})
		if err := s.repo.RecountParticipants(ctx, c.ID); err != nil {
			s.log.WithField("challenge_id", c.ID).WithError(err).Warn("counter reconcile failed")
			continue
		}
		res.Corrected++
	}
	if len(res.Drift) > 0 {
		s.log.WithField("drifted", len(res.Drift)).Warn("participant counters drifted")
	}
	return res, nil
}

type LeaderboardSyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncLeaderboard upserts every participant into the global leaderboard
func (s *ChallengeService) SyncLeaderboard(ctx context.Context) (*LeaderboardSyncResult, error) {
	participants, err := s.repo.ListAllParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	res := &LeaderboardSyncResult{}
	for i := range participants {
		if err := s.leaderboard.UpsertFromParticipant(ctx, &participants[i]); err != nil {
			res.Failed++
			s.log.WithField("participant_id", participants[i].ID).WithError(err).Warn("leaderboard sync failed")
			continue
		}
		res.Synced++
	}
	s.log.WithField("synced", res.Synced).Info("leaderboard sync completed")
	return res, nil
}

func stripAccounts(ps []models.Participant) []models.Participant {
	for i := range ps {
		ps[i].MT5Account = models.MT5Account{}
	}
	return ps
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// wrapUnexpected passes typed errors through and wraps everything else.
func wrapUnexpected(err error, msg string) error {
	var de *DomainError
	var ve *ValidationError
	if errors.As(err, &de) || errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
