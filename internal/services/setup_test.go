package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trading-challenges/internal/database"
	"trading-challenges/internal/models"
	"trading-challenges/internal/mt5"
	"trading-challenges/internal/repository"
	"trading-challenges/internal/tasks"
)

// setupTestDB opens a private in-memory database with every table migrated.
// A single connection keeps the memory database alive and serialises writers.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type fakeFetcher struct {
	snapshots map[string]*mt5.AccountSnapshot
	err       error
}

func (f *fakeFetcher) FetchAccount(_ context.Context, creds mt5.Credentials) (*mt5.AccountSnapshot, error) {
	if snap, ok := f.snapshots[creds.AccountID]; ok {
		return snap, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, &mt5.ServiceError{StatusCode: 404, Detail: "account not found"}
}

type testEnv struct {
	db          *gorm.DB
	repo        *repository.Repository
	stats       *StatsService
	leaderboard *LeaderboardService
	challenges  *ChallengeService
	fetcher     *fakeFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	fetcher := &fakeFetcher{snapshots: map[string]*mt5.AccountSnapshot{}}
	stats := NewStatsService(repo, tasks.Inline{})
	lb := NewLeaderboardService(repo, fetcher, 2)
	return &testEnv{
		db:          db,
		repo:        repo,
		stats:       stats,
		leaderboard: lb,
		challenges:  NewChallengeService(repo, stats, lb, tasks.Inline{}),
		fetcher:     fetcher,
	}
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		FirstName:    strings.ToUpper(username[:1]) + username[1:],
		LastName:     "Trader",
		Role:         models.UserRoleUser,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createAdmin(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := createUser(t, db, username)
	require.NoError(t, db.Model(u).Update("role", models.UserRoleAdmin).Error)
	u.Role = models.UserRoleAdmin
	return u
}

// createChallenge inserts directly so tests can use any status and dates.
func createChallenge(t *testing.T, db *gorm.DB, status models.ChallengeStatus, maxParticipants int) *models.Challenge {
	t.Helper()
	now := time.Now()
	c := &models.Challenge{
		Name:            "Challenge " + string(status),
		Type:            models.ChallengeTypeSwing,
		AccountSize:     100000,
		MaxParticipants: maxParticipants,
		StartDate:       now.Add(-time.Hour),
		EndDate:         now.Add(24 * time.Hour),
		Status:          status,
		ChallengeMode:   models.ChallengeModeTarget,
		Description:     "test challenge",
		CreatedByID:     1,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func validAccount(id string) models.MT5Account {
	return models.MT5Account{ID: id, Password: "secret", Server: "Demo-Server"}
}

func reloadChallenge(t *testing.T, db *gorm.DB, id uint) *models.Challenge {
	t.Helper()
	var c models.Challenge
	require.NoError(t, db.First(&c, id).Error)
	return &c
}

func countParticipants(t *testing.T, db *gorm.DB, challengeID uint) int {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Participant{}).Where("challenge_id = ?", challengeID).Count(&n).Error)
	return int(n)
}
