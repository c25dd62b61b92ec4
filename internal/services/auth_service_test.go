package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trading-challenges/internal/models"
)

func newAuth(env *testEnv) *AuthService {
	return NewAuthService(env.db, env.stats).WithHashCost(bcrypt.MinCost)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuth(env)

	user, err := auth.Register(ctx, &RegisterRequest{
		Email:     "Jane.Doe@Example.com",
		Password:  "hunter22",
		FirstName: "Jane",
		LastName:  "Doe",
	})
	require.NoError(t, err)
	require.Equal(t, "jane.doe@example.com", user.Email)
	require.Equal(t, "jane_doe", user.Username)
	require.Equal(t, models.UserRoleUser, user.Role)
	require.NotEqual(t, "hunter22", user.PasswordHash)

	_, err = auth.Register(ctx, &RegisterRequest{
		Email: "jane.doe@example.com", Password: "hunter22", FirstName: "Jane", LastName: "Doe",
	})
	require.ErrorIs(t, err, ErrEmailTaken)

	// same name, different email: username gets a suffix
	second, err := auth.Register(ctx, &RegisterRequest{
		Email: "jane2@example.com", Password: "hunter22", FirstName: "Jane", LastName: "Doe",
	})
	require.NoError(t, err)
	require.NotEqual(t, user.Username, second.Username)
	require.Regexp(t, `^jane_doe_\d{4}$`, second.Username)

	_, err = auth.Login(ctx, "jane.doe@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidLogin)
	_, err = auth.Login(ctx, "nobody@example.com", "hunter22")
	require.ErrorIs(t, err, ErrInvalidLogin)

	logged, err := auth.Login(ctx, " JANE.DOE@example.com ", "hunter22")
	require.NoError(t, err)
	require.NotNil(t, logged.LastLogin)

	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)
	_, err = auth.Login(ctx, "jane.doe@example.com", "hunter22")
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestMeRefreshesTradingStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuth(env)
	user := createUser(t, env.db, "alice")
	challenge := createChallenge(t, env.db, models.ChallengeStatusActive, 10)
	require.NoError(t, env.db.Create(&models.Participant{
		ChallengeID: challenge.ID,
		UserID:      user.ID,
		Status:      models.ParticipantStatusCompleted,
		Profit:      250,
	}).Error)

	_, err := auth.Me(ctx, user.ID)
	require.NoError(t, err)

	me, err := auth.Me(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, me.TradingStats.TotalChallenges)
	require.Equal(t, 1, me.TradingStats.CompletedChallenges)
	require.InDelta(t, 100.0, me.TradingStats.WinRate, 0.001)

	_, err = auth.Me(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}
