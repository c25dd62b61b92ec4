package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
	"trading-challenges/internal/mt5"
	"trading-challenges/internal/repository"
)

// LeaderboardService maintains the global ranking and computes
// challenge-scoped rankings on read.
type LeaderboardService struct {
	repo        *repository.Repository
	fetcher     mt5.Fetcher
	concurrency int
	log         *logrus.Entry
}

func NewLeaderboardService(repo *repository.Repository, fetcher mt5.Fetcher, concurrency int) *LeaderboardService {
	if concurrency < 1 {
		concurrency = 5
	}
	return &LeaderboardService{
		repo:        repo,
		fetcher:     fetcher,
		concurrency: concurrency,
		log:         logger.Component("leaderboard"),
	}
}

type LeaderboardPage struct {
	Entries []models.RankedEntry `json:"leaderboard"`
	Count   int                  `json:"count"`
	Total   int64                `json:"total"`
}

// List returns the global leaderboard window starting at skip.
func (s *LeaderboardService) List(ctx context.Context, limit, skip int) (*LeaderboardPage, error) {
	if limit < 1 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	entries, err := s.repo.ListLeaderboard(ctx, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	total, err := s.repo.CountLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count leaderboard: %w", err)
	}

	ranked := make([]models.RankedEntry, len(entries))
	for i, e := range entries {
		ranked[i] = models.RankedEntry{Rank: skip + i + 1, LeaderboardEntry: e}
	}
	return &LeaderboardPage{Entries: ranked, Count: len(ranked), Total: total}, nil
}

type UserRank struct {
	Rank       int                      `json:"rank"`
	TotalUsers int64                    `json:"total_users"`
	Percentile int                      `json:"percentile"`
	Entry      *models.LeaderboardEntry `json:"stats"`
}

// GetUserRank ranks a user as one plus the number of entries strictly ahead.
func (s *LeaderboardService) GetUserRank(ctx context.Context, userID uint) (*UserRank, error) {
	entry, err := s.repo.GetLeaderboardEntry(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard entry: %w", err)
	}
	if entry == nil {
		return nil, &DomainError{Kind: KindNotFound, Code: ErrNotFound.Code, Message: "User not found in leaderboard"}
	}

	above, err := s.repo.CountLeaderboardAbove(ctx, entry.ProfitPercent)
	if err != nil {
		return nil, fmt.Errorf("failed to rank user: %w", err)
	}
	total, err := s.repo.CountLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count leaderboard: %w", err)
	}

	rank := int(above) + 1
	return &UserRank{
		Rank:       rank,
		TotalUsers: total,
		Percentile: Percentile(rank, total),
		Entry:      entry,
	}, nil
}

// Percentile is the share of entries at or below rank, rounded to a whole percent.
func Percentile(rank int, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(total-int64(rank)+1) / float64(total) * 100))
}

type TopPerformer struct {
	UserID        uint    `json:"user_id"`
	Username      string  `json:"username"`
	ProfitPercent float64 `json:"profit_percent"`
}

type LeaderboardStats struct {
	TotalUsers        int64         `json:"total_users"`
	TotalParticipants int64         `json:"total_participants"`
	TopPerformer      *TopPerformer `json:"top_performer"`
}

func (s *LeaderboardService) Stats(ctx context.Context) (*LeaderboardStats, error) {
	total, err := s.repo.CountLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count leaderboard: %w", err)
	}
	participants, err := s.repo.CountAllParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}

	stats := &LeaderboardStats{TotalUsers: total, TotalParticipants: participants}
	top, err := s.repo.ListLeaderboard(ctx, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load top performer: %w", err)
	}
	if len(top) == 1 {
		stats.TopPerformer = &TopPerformer{
			UserID:        top[0].UserID,
			Username:      top[0].Username,
			ProfitPercent: top[0].ProfitPercent,
		}
	}
	return stats, nil
}

// ListAll is the paginated admin view with a selectable sort key.
func (s *LeaderboardService) ListAll(ctx context.Context, page PageRequest, sortBy string) ([]models.LeaderboardEntry, Pagination, error) {
	page = page.normalize(50)
	entries, err := s.repo.ListLeaderboardSorted(ctx, sortBy, page.Limit, page.offset())
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	total, err := s.repo.CountLeaderboard(ctx)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count leaderboard: %w", err)
	}
	return entries, newPagination(page, total), nil
}

// LeaderboardEntryUpdate is a partial admin edit. Nil fields are unchanged.
type LeaderboardEntryUpdate struct {
	AccountID     *string           `json:"account_id"`
	Balance       *float64          `json:"balance"`
	Equity        *float64          `json:"equity"`
	Profit        *float64          `json:"profit"`
	Margin        *float64          `json:"margin"`
	FreeMargin    *float64          `json:"free_margin"`
	MarginLevel   *float64          `json:"margin_level"`
	ProfitPercent *float64          `json:"profit_percent"`
	Positions     *models.Positions `json:"positions"`
}

// UpdateEntry applies an admin edit. Supplying balance or equity recomputes
// profit percent from equity over balance.
func (s *LeaderboardService) UpdateEntry(ctx context.Context, id uint, req LeaderboardEntryUpdate) (*models.LeaderboardEntry, error) {
	entry, err := s.repo.GetLeaderboardEntryByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "Leaderboard entry")
	}

	if req.AccountID != nil {
		entry.AccountID = *req.AccountID
	}
	if req.Balance != nil {
		entry.Balance = *req.Balance
	}
	if req.Equity != nil {
		entry.Equity = *req.Equity
	}
	if req.Profit != nil {
		entry.Profit = *req.Profit
	}
	if req.Margin != nil {
		entry.Margin = *req.Margin
	}
	if req.FreeMargin != nil {
		entry.FreeMargin = *req.FreeMargin
	}
	if req.MarginLevel != nil {
		entry.MarginLevel = *req.MarginLevel
	}
	if req.Positions != nil {
		entry.Positions = *req.Positions
	}

	switch {
	case req.Balance != nil || req.Equity != nil:
		entry.ProfitPercent = equityProfitPercent(entry.Balance, entry.Equity)
	case req.ProfitPercent != nil:
		entry.ProfitPercent = *req.ProfitPercent
	}
	entry.UpdatedAt = time.Now()

	if err := s.repo.SaveLeaderboardEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to update leaderboard entry: %w", err)
	}
	return entry, nil
}

func equityProfitPercent(balance, equity float64) float64 {
	snap := mt5.AccountSnapshot{Balance: balance, Equity: equity}
	return snap.ComputedProfitPercent()
}

func (s *LeaderboardService) DeleteEntry(ctx context.Context, id uint) error {
	deleted, err := s.repo.DeleteLeaderboardEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete leaderboard entry: %w", err)
	}
	if !deleted {
		return notFound("Leaderboard entry")
	}
	return nil
}

// UpsertFromParticipant copies a participant's figures into the user's global
// entry. Zero figures keep whatever the entry already holds, so a fresh
// enrolment or a bulk sync never wipes numbers the MT5 poll wrote.
func (s *LeaderboardService) UpsertFromParticipant(ctx context.Context, p *models.Participant) error {
	return s.upsertParticipant(ctx, p, false)
}

// ReplaceFromParticipant copies a participant's figures as they are, zeros
// included. Admin edits go through here so a reset to zero sticks.
func (s *LeaderboardService) ReplaceFromParticipant(ctx context.Context, p *models.Participant) error {
	return s.upsertParticipant(ctx, p, true)
}

func (s *LeaderboardService) upsertParticipant(ctx context.Context, p *models.Participant, replace bool) error {
	var user models.User
	if err := s.repo.DB().WithContext(ctx).First(&user, p.UserID).Error; err != nil {
		return mapNotFound(err, "User")
	}
	existing, err := s.repo.GetLeaderboardEntry(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to load leaderboard entry: %w", err)
	}

	entry := existing
	if entry == nil {
		entry = &models.LeaderboardEntry{UserID: p.UserID, AccountID: "N/A"}
	}
	copyUserDisplay(entry, &user)
	if p.MT5Account.ID != "" {
		entry.AccountID = p.MT5Account.ID
	}
	if replace || p.CurrentBalance != 0 {
		entry.Balance = p.CurrentBalance
		entry.Equity = p.CurrentBalance
		entry.FreeMargin = p.CurrentBalance
	}
	if replace || p.Profit != 0 {
		entry.Profit = p.Profit
	}
	if replace || p.ProfitPercent != 0 {
		entry.ProfitPercent = p.ProfitPercent
	}
	entry.UpdatedAt = time.Now()

	if err := s.repo.UpsertLeaderboardEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
	}
	return nil
}

// UpsertFromSnapshot overwrites the user's global entry with polled MT5 data.
func (s *LeaderboardService) UpsertFromSnapshot(ctx context.Context, user *models.User, snap *mt5.AccountSnapshot) error {
	entry := &models.LeaderboardEntry{
		UserID:        user.ID,
		AccountID:     user.MT5Credentials.AccountID,
		Balance:       snap.Balance,
		Equity:        snap.Equity,
		Profit:        snap.Profit,
		Margin:        snap.Margin,
		FreeMargin:    snap.FreeMargin,
		MarginLevel:   snap.MarginLevel,
		ProfitPercent: snap.ComputedProfitPercent(),
		Positions:     make(models.Positions, 0, len(snap.Positions)),
		UpdatedAt:     time.Now(),
	}
	copyUserDisplay(entry, user)
	for _, pos := range snap.Positions {
		entry.Positions = append(entry.Positions, models.Position{
			Symbol:     pos.Symbol,
			Volume:     pos.Volume,
			EntryPrice: pos.EntryPrice,
			Profit:     pos.Profit,
		})
	}

	if err := s.repo.UpsertLeaderboardEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
	}
	return nil
}

func copyUserDisplay(entry *models.LeaderboardEntry, user *models.User) {
	entry.Username = user.Username
	entry.FirstName = user.FirstName
	entry.LastName = user.LastName
	entry.Avatar = user.Avatar
}

// SyncResult summarises one MT5 poll.
type SyncResult struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// SyncAllMT5 polls every user with complete MT5 credentials. A failure for
// one user never aborts the others.
func (s *LeaderboardService) SyncAllMT5(ctx context.Context) (*SyncResult, error) {
	var users []models.User
	err := s.repo.DB().WithContext(ctx).
		Where("mt5_account_id <> '' AND mt5_password <> '' AND mt5_server <> ''").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load users with MT5 credentials: %w", err)
	}
	if len(users) == 0 {
		s.log.Info("no users with MT5 credentials found")
		return &SyncResult{}, nil
	}

	var ok, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range users {
		user := &users[i]
		g.Go(func() error {
			if err := s.syncUser(gctx, user); err != nil {
				failed.Add(1)
				s.log.WithField("user_id", user.ID).WithError(err).Warn("MT5 sync failed for user")
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := &SyncResult{Successful: int(ok.Load()), Failed: int(failed.Load()), Total: len(users)}
	s.log.WithFields(logrus.Fields{
		"successful": res.Successful,
		"failed":     res.Failed,
		"total":      res.Total,
	}).Info("MT5 update summary")
	return res, nil
}

func (s *LeaderboardService) syncUser(ctx context.Context, user *models.User) error {
	snap, err := s.fetcher.FetchAccount(ctx, mt5.Credentials{
		AccountID: user.MT5Credentials.AccountID,
		Password:  user.MT5Credentials.Password,
		Server:    user.MT5Credentials.Server,
	})
	if err != nil {
		return err
	}
	return s.UpsertFromSnapshot(ctx, user, snap)
}

// SyncUserMT5 polls a single user on demand.
func (s *LeaderboardService) SyncUserMT5(ctx context.Context, userID uint) (*models.LeaderboardEntry, error) {
	var user models.User
	if err := s.repo.DB().WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, mapNotFound(err, "User")
	}
	if !user.MT5Credentials.Complete() {
		return nil, ErrMT5CredentialsEmpty
	}
	if err := s.syncUser(ctx, &user); err != nil {
		return nil, err
	}
	return s.repo.GetLeaderboardEntry(ctx, userID)
}

// ChallengeStanding is one row of a challenge leaderboard.
type ChallengeStanding struct {
	Rank          int                      `json:"rank"`
	UserID        uint                     `json:"user_id"`
	ParticipantID uint                     `json:"participant_id"`
	Username      string                   `json:"username"`
	FirstName     string                   `json:"first_name"`
	LastName      string                   `json:"last_name"`
	Avatar        *string                  `json:"avatar,omitempty"`
	AccountID     string                   `json:"account_id"`
	Balance       float64                  `json:"balance"`
	Equity        float64                  `json:"equity"`
	Profit        float64                  `json:"profit"`
	ProfitPercent float64                  `json:"profit_percent"`
	Status        models.ParticipantStatus `json:"status"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

type ChallengeLeaderboard struct {
	ChallengeID   uint                `json:"challenge_id"`
	ChallengeName string              `json:"challenge_name"`
	Entries       []ChallengeStanding `json:"leaderboard"`
	Count         int                 `json:"count"`
	Total         int                 `json:"total"`
}

// ForChallenge ranks a challenge's participants by profit percent. The
// window is cut after sorting.
func (s *LeaderboardService) ForChallenge(ctx context.Context, challengeID uint, limit, skip int) (*ChallengeLeaderboard, error) {
	if limit < 1 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	challenge, err := s.repo.GetChallengeByID(ctx, challengeID)
	if err != nil {
		return nil, mapNotFound(err, "Challenge")
	}
	participants, err := s.repo.ListParticipants(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	rows := make([]ChallengeStanding, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, standingFor(challenge, &p))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ProfitPercent > rows[j].ProfitPercent
	})

	total := len(rows)
	start := min(skip, total)
	end := min(start+limit, total)
	window := rows[start:end]
	for i := range window {
		window[i].Rank = skip + i + 1
	}

	return &ChallengeLeaderboard{
		ChallengeID:   challenge.ID,
		ChallengeName: challenge.Name,
		Entries:       window,
		Count:         len(window),
		Total:         total,
	}, nil
}

func standingFor(c *models.Challenge, p *models.Participant) ChallengeStanding {
	balance := p.CurrentBalance
	if balance == 0 {
		balance = c.AccountSize
	}
	pct := p.ProfitPercent
	if pct == 0 {
		pct = models.ProfitPercent(p.Profit, p.CurrentBalance, c.AccountSize)
	}
	accountID := p.MT5Account.ID
	if accountID == "" {
		accountID = "N/A"
	}

	row := ChallengeStanding{
		UserID:        p.UserID,
		ParticipantID: p.ID,
		AccountID:     accountID,
		Balance:       balance,
		Equity:        balance,
		Profit:        p.Profit,
		ProfitPercent: pct,
		Status:        p.Status,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.User != nil {
		row.Username = p.User.Username
		if row.Username == "" {
			row.Username = p.User.FirstName + " " + p.User.LastName
		}
		row.FirstName = p.User.FirstName
		row.LastName = p.User.LastName
		row.Avatar = p.User.Avatar
	}
	return row
}
