package services

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
	"trading-challenges/internal/repository"
	"trading-challenges/internal/tasks"
)

// StatsService keeps each user's denormalized trading stats in sync with
// their participant rows.
type StatsService struct {
	repo  *repository.Repository
	tasks tasks.Submitter
	log   *logrus.Entry
}

func NewStatsService(repo *repository.Repository, submitter tasks.Submitter) *StatsService {
	return &StatsService{repo: repo, tasks: submitter, log: logger.Component("stats")}
}

// WinRate is completed/total as a percentage rounded to two decimals.
func WinRate(completed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*100*100) / 100
}

// Recompute rebuilds one user's stats from scratch.
func (s *StatsService) Recompute(ctx context.Context, userID uint) error {
	totals, err := s.repo.GetParticipantTotals(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to aggregate participations: %w", err)
	}

	err = s.repo.DB().WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"stats_total_challenges":     totals.Total,
			"stats_completed_challenges": totals.Completed,
			"stats_total_profit":         totals.Profit,
			"stats_win_rate":             WinRate(totals.Completed, totals.Total),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save trading stats: %w", err)
	}
	return nil
}

// Schedule queues a recompute as a non-critical task.
func (s *StatsService) Schedule(userID uint) {
	s.tasks.Submit(fmt.Sprintf("stats-recompute:%d", userID), func(ctx context.Context) error {
		return s.Recompute(ctx, userID)
	})
}

// RecomputeResult summarises a bulk recompute.
type RecomputeResult struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// RecomputeAll recomputes every user. Individual failures are counted, not returned.
func (s *StatsService) RecomputeAll(ctx context.Context) (*RecomputeResult, error) {
	var ids []uint
	if err := s.repo.DB().WithContext(ctx).Model(&models.User{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	res := &RecomputeResult{Total: len(ids)}
	for _, id := range ids {
		if err := s.Recompute(ctx, id); err != nil {
			res.Failed++
			s.log.WithField("user_id", id).WithError(err).Warn("stats recompute failed")
			continue
		}
		res.Updated++
	}
	s.log.WithFields(logrus.Fields{"updated": res.Updated, "failed": res.Failed}).Info("bulk stats recompute finished")
	return res, nil
}
