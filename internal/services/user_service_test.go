package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-challenges/internal/models"
)

func TestUpdateProfileAndCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewUserService(env.repo)
	alice := createUser(t, env.db, "alice")
	createUser(t, env.db, "bob")

	taken := "bob"
	_, err := svc.UpdateProfile(ctx, alice.ID, &ProfileUpdate{Username: &taken})
	require.ErrorIs(t, err, ErrEmailTaken)

	name, first := "alice_fx", "Alicia"
	updated, err := svc.UpdateProfile(ctx, alice.ID, &ProfileUpdate{Username: &name, FirstName: &first})
	require.NoError(t, err)
	require.Equal(t, "alice_fx", updated.Username)
	require.Equal(t, "Alicia", updated.FirstName)

	_, err = svc.UpdateMT5Credentials(ctx, alice.ID, models.MT5Credentials{AccountID: "123"})
	require.ErrorIs(t, err, ErrMissingAccountInfo)

	updated, err = svc.UpdateMT5Credentials(ctx, alice.ID, models.MT5Credentials{AccountID: " 123 ", Password: "pw", Server: "Demo"})
	require.NoError(t, err)
	require.Equal(t, "123", updated.MT5Credentials.AccountID)
	require.True(t, updated.MT5Credentials.Complete())
}

func TestPushSubscriptionUpsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewUserService(env.repo)
	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")

	req := &PushSubscriptionRequest{Endpoint: "https://push.example.com/abc"}
	_, err := svc.AddPushSubscription(ctx, alice.ID, req)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	req.Keys.P256dh, req.Keys.Auth = "key", "auth"
	_, err = svc.AddPushSubscription(ctx, alice.ID, req)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.PushSubscription{}).Where("endpoint = ?", req.Endpoint).Update("expired", true).Error)

	// the browser re-registers the same endpoint under another account
	_, err = svc.AddPushSubscription(ctx, bob.ID, req)
	require.NoError(t, err)

	var subs []models.PushSubscription
	require.NoError(t, env.db.Find(&subs).Error)
	require.Len(t, subs, 1)
	require.Equal(t, bob.ID, subs[0].UserID)
	require.False(t, subs[0].Expired)

	require.ErrorIs(t, svc.RemovePushSubscription(ctx, alice.ID, req.Endpoint), ErrNotFound)
	require.NoError(t, svc.RemovePushSubscription(ctx, bob.ID, req.Endpoint))
}

func TestAdminListAndUpdateUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewUserService(env.repo)
	alice := createUser(t, env.db, "alice")
	createUser(t, env.db, "bob")
	createUser(t, env.db, "carol")

	page, err := svc.ListUsers(ctx, UserFilter{PageRequest: PageRequest{Page: 1, Limit: 2}})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Pagination.Total)
	require.Len(t, page.Users, 2)

	page, err = svc.ListUsers(ctx, UserFilter{Search: "ALI"})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)

	admin, inactive, premium := models.UserRoleAdmin, false, true
	updated, err := svc.AdminUpdateUser(ctx, alice.ID, &AdminUserUpdate{Role: &admin, IsActive: &inactive, IsPremium: &premium})
	require.NoError(t, err)
	require.True(t, updated.IsAdmin())
	require.False(t, updated.IsActive)
	require.True(t, updated.IsPremium)

	page, err = svc.ListUsers(ctx, UserFilter{Role: "admin"})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)

	bogus := models.UserRole("root")
	_, err = svc.AdminUpdateUser(ctx, alice.ID, &AdminUserUpdate{Role: &bogus})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestDeleteUserRespectsObligations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewUserService(env.repo)
	alice := createUser(t, env.db, "alice")
	challenge := createChallenge(t, env.db, models.ChallengeStatusActive, 10)

	participant := &models.Participant{ChallengeID: challenge.ID, UserID: alice.ID, Status: models.ParticipantStatusActive}
	require.NoError(t, env.db.Create(participant).Error)
	require.ErrorIs(t, svc.DeleteUser(ctx, alice.ID), ErrUserHasObligations)

	require.NoError(t, env.db.Model(participant).Update("status", models.ParticipantStatusWithdrawn).Error)
	now := time.Now()
	sub := &models.Subscription{
		UserID: alice.ID, PlanType: models.PlanTypeSignal, PlanID: 1,
		Status: models.SubscriptionStatusActive, StartDate: now, EndDate: now.Add(time.Hour),
		Duration: models.PlanDurationMonthly,
	}
	require.NoError(t, env.db.Create(sub).Error)
	require.ErrorIs(t, svc.DeleteUser(ctx, alice.ID), ErrUserHasObligations)

	require.NoError(t, env.db.Model(sub).Update("status", models.SubscriptionStatusExpired).Error)
	require.NoError(t, env.db.Create(&models.LeaderboardEntry{UserID: alice.ID, Username: "alice"}).Error)
	require.NoError(t, env.db.Create(&models.PushSubscription{UserID: alice.ID, Endpoint: "e", P256dh: "k", Auth: "a"}).Error)

	require.NoError(t, svc.DeleteUser(ctx, alice.ID))
	_, err := svc.GetUserByID(ctx, alice.ID)
	require.ErrorIs(t, err, ErrNotFound)

	var left int64
	require.NoError(t, env.db.Model(&models.LeaderboardEntry{}).Count(&left).Error)
	require.Zero(t, left)
	require.NoError(t, env.db.Model(&models.PushSubscription{}).Count(&left).Error)
	require.Zero(t, left)
}
