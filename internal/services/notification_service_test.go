package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-challenges/internal/models"
	"trading-challenges/internal/push"
)

type fakeSender struct {
	gone  map[string]bool
	calls [][]push.Subscription
}

func (f *fakeSender) Send(_ context.Context, subs []push.Subscription, _ push.Payload) (push.Result, error) {
	f.calls = append(f.calls, subs)
	res := push.Result{TotalSent: len(subs)}
	for _, s := range subs {
		if f.gone[s.Endpoint] {
			res.FailedCount++
			res.Expired = append(res.Expired, s.Endpoint)
			continue
		}
		res.DeliveredCount++
	}
	return res, nil
}

func (f *fakeSender) PublicKey() string { return "BPublicKey" }

func addEndpoint(t *testing.T, env *testEnv, userID uint, endpoint string) {
	t.Helper()
	require.NoError(t, env.db.Create(&models.PushSubscription{
		UserID: userID, Endpoint: endpoint, P256dh: "p", Auth: "a",
	}).Error)
}

func TestSendNotificationToPremiumUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sender := &fakeSender{gone: map[string]bool{"https://push/gone": true}}
	svc := NewNotificationService(env.db, sender)

	premium := createUser(t, env.db, "alice")
	require.NoError(t, env.db.Model(premium).Update("is_premium", true).Error)
	regular := createUser(t, env.db, "bob")
	addEndpoint(t, env, premium.ID, "https://push/alice")
	addEndpoint(t, env, premium.ID, "https://push/gone")
	addEndpoint(t, env, regular.ID, "https://push/bob")

	n, err := svc.Create(ctx, 1, &NotificationRequest{
		Title:          "New challenge",
		Message:        "Registration is open",
		TargetAudience: models.AudiencePremium,
	})
	require.NoError(t, err)
	require.Equal(t, models.NotificationStatusDraft, n.Status)

	sent, err := svc.Send(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationStatusSent, sent.Status)
	require.Equal(t, 2, sent.DeliveryStats.TotalSent)
	require.Equal(t, 1, sent.DeliveryStats.DeliveredCount)
	require.Len(t, sender.calls, 1)

	_, err = svc.Send(ctx, n.ID)
	require.ErrorIs(t, err, ErrNotificationSent)

	_, err = svc.Update(ctx, n.ID, &NotificationRequest{Title: "x", Message: "y"})
	require.ErrorIs(t, err, ErrNotificationSent)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	stored, err := svc.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.DeliveryStats.FailedCount)
}

func TestSendDueScheduledNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sender := &fakeSender{}
	svc := NewNotificationService(env.db, sender)
	user := createUser(t, env.db, "carol")
	addEndpoint(t, env, user.ID, "https://push/carol")

	at := time.Now().Add(time.Hour)
	n, err := svc.Create(ctx, 1, &NotificationRequest{Title: "Soon", Message: "Later today", ScheduledTime: &at})
	require.NoError(t, err)
	require.Equal(t, models.NotificationStatusScheduled, n.Status)

	count, err := svc.SendDue(ctx, time.Now())
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = svc.SendDue(ctx, at.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, sender.calls, 1)
	require.Len(t, sender.calls[0], 1)
}

func TestNotificationValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewNotificationService(env.db, &fakeSender{})

	tests := []struct {
		name string
		req  NotificationRequest
	}{
		{"unknown type", NotificationRequest{Title: "t", Message: "m", Type: "promo"}},
		{"bad audience", NotificationRequest{Title: "t", Message: "m", TargetAudience: "everyone"}},
		{"plan audience without plan", NotificationRequest{Title: "t", Message: "m", TargetAudience: models.AudienceSpecificSignalPlan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), 1, &tt.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
	require.Equal(t, "BPublicKey", svc.VAPIDPublicKey())
}
