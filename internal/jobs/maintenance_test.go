package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trading-challenges/internal/database"
	"trading-challenges/internal/models"
	"trading-challenges/internal/repository"
	"trading-challenges/internal/services"
	"trading-challenges/internal/tasks"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func TestChallengeStatusJobSweeps(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	stats := services.NewStatsService(repo, tasks.Inline{})
	lb := services.NewLeaderboardService(repo, nil, 1)
	chatboxes := services.NewChatboxService(db)
	sw := Sweepers{
		Challenges:    services.NewChallengeService(repo, stats, lb, tasks.Inline{}),
		Subscriptions: services.NewSubscriptionService(db, chatboxes),
		Chatboxes:     chatboxes,
	}

	now := time.Now()
	starting := &models.Challenge{
		Name: "Starting", Type: models.ChallengeTypeSwing, AccountSize: 10000, MaxParticipants: 10,
		StartDate: now.Add(-time.Minute), EndDate: now.Add(time.Hour),
		Status: models.ChallengeStatusUpcoming, ChallengeMode: models.ChallengeModeTarget, CreatedByID: 1,
	}
	require.NoError(t, db.Create(starting).Error)
	lapsed := &models.Subscription{
		UserID: 1, PlanType: models.PlanTypeSignal, PlanID: 1, Status: models.SubscriptionStatusActive,
		StartDate: now.AddDate(0, -1, -1), EndDate: now.Add(-time.Minute), Duration: models.PlanDurationMonthly,
	}
	require.NoError(t, db.Create(lapsed).Error)

	job := ChallengeStatusJob(time.Minute, sw)
	res, err := job.Run(context.Background())
	require.NoError(t, err)

	report := res.(*SweepReport)
	require.Equal(t, 1, report.Checked)
	require.Equal(t, 1, report.Updated)
	require.Equal(t, 1, report.SubscriptionsExpired)
	require.Empty(t, report.Warnings)

	var got models.Challenge
	require.NoError(t, db.First(&got, starting.ID).Error)
	require.Equal(t, models.ChallengeStatusActive, got.Status)

	var sub models.Subscription
	require.NoError(t, db.First(&sub, lapsed.ID).Error)
	require.Equal(t, models.SubscriptionStatusExpired, sub.Status)
}
