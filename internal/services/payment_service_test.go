package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"trading-challenges/internal/gateway"
	"trading-challenges/internal/models"
)

type commerceEnv struct {
	*testEnv
	gateway       *gateway.MemoryGateway
	chatboxes     *ChatboxService
	plans         *PlanService
	subscriptions *SubscriptionService
	propFirm      *PropFirmService
	payments      *PaymentService
}

func newCommerceEnv(t *testing.T) *commerceEnv {
	env := newTestEnv(t)
	gw := gateway.NewMemoryGateway()
	chatboxes := NewChatboxService(env.db)
	subs := NewSubscriptionService(env.db, chatboxes)
	propFirm := NewPropFirmService(env.db)
	return &commerceEnv{
		testEnv:       env,
		gateway:       gw,
		chatboxes:     chatboxes,
		plans:         NewPlanService(env.db, chatboxes),
		subscriptions: subs,
		propFirm:      propFirm,
		payments:      NewPaymentService(env.repo, gw, env.challenges, subs, propFirm),
	}
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (e *commerceEnv) mentorshipPlan(t *testing.T, maxSubscribers *int) *models.MentorshipPlan {
	t.Helper()
	plan, err := e.plans.CreateMentorshipPlan(context.Background(), 1, &PlanRequest{
		Name:           "One to one",
		Price:          price("99.00"),
		Duration:       models.PlanDurationQuarterly,
		MentorName:     "Ana",
		MaxSubscribers: maxSubscribers,
	})
	require.NoError(t, err)
	return plan
}

// pay creates an intent for the request and confirms it as the buyer.
func (e *commerceEnv) pay(t *testing.T, userID uint, req *CreateIntentRequest) (*IntentResult, *ConfirmResult, error) {
	t.Helper()
	ctx := context.Background()
	intent, err := e.payments.CreateIntent(ctx, userID, req)
	require.NoError(t, err)
	_, err = e.gateway.ConfirmIntent(ctx, intent.PaymentIntentID)
	require.NoError(t, err)
	res, err := e.payments.Confirm(ctx, intent.PaymentIntentID, Viewer{UserID: userID})
	return intent, res, err
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "alice")
	plan := env.mentorshipPlan(t, nil)

	intent, res, err := env.pay(t, user.ID, &CreateIntentRequest{
		Type:   models.PaymentTypeMentorship,
		Amount: decimal.RequireFromString("99"),
		PlanID: &plan.ID,
	})
	require.NoError(t, err)
	require.False(t, res.AlreadyCompleted)
	require.Equal(t, models.PaymentStatusCompleted, res.Payment.Status)
	require.Equal(t, "card", res.Payment.PaymentMethod)

	again, err := env.payments.Confirm(ctx, intent.PaymentIntentID, Viewer{UserID: user.ID})
	require.NoError(t, err)
	require.True(t, again.AlreadyCompleted)
	require.Equal(t, "Payment already completed", again.Message)

	var subs []models.Subscription
	require.NoError(t, env.db.Where("user_id = ?", user.ID).Find(&subs).Error)
	require.Len(t, subs, 1)
	require.Equal(t, models.SubscriptionStatusActive, subs[0].Status)
	require.Equal(t, 4, subs[0].MaxSessions)
	require.Equal(t, subs[0].StartDate.AddDate(0, 3, 0).Unix(), subs[0].EndDate.Unix())

	stored, err := env.plans.GetMentorshipPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.CurrentSubscribers)

	box, err := env.chatboxes.GetByPlan(ctx, models.PlanTypeMentorship, plan.ID, Viewer{UserID: user.ID})
	require.NoError(t, err)
	members, err := env.chatboxes.Subscribers(ctx, box.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.True(t, members[0].IsActive)
}

func TestConfirmChallengePaymentEnrollsPendingSetup(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "bob")
	challenge := createChallenge(t, env.db, models.ChallengeStatusUpcoming, 2)

	intent, res, err := env.pay(t, user.ID, &CreateIntentRequest{
		Type:        models.PaymentTypeChallenge,
		Amount:      decimal.RequireFromString("25"),
		ChallengeID: &challenge.ID,
	})
	require.NoError(t, err)
	require.False(t, res.AlreadyCompleted)

	_, err = env.payments.Confirm(ctx, intent.PaymentIntentID, Viewer{UserID: user.ID})
	require.NoError(t, err)

	require.Equal(t, 1, reloadChallenge(t, env.db, challenge.ID).CurrentParticipants)
	require.Equal(t, 1, countParticipants(t, env.db, challenge.ID))

	p, err := env.repo.GetParticipant(ctx, challenge.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, models.ParticipantStatusPendingSetup, p.Status)

	// Supplying the account afterwards activates the same seat.
	joined, err := env.challenges.JoinChallenge(ctx, challenge.ID, user.ID, validAccount("5001"))
	require.NoError(t, err)
	require.True(t, joined.SetupCompleted)
	require.Equal(t, 1, reloadChallenge(t, env.db, challenge.ID).CurrentParticipants)
}

func TestCreateIntentPreconditions(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "carol")
	full := createChallenge(t, env.db, models.ChallengeStatusActive, 1)
	require.NoError(t, env.db.Model(full).Update("current_participants", 1).Error)
	ended := createChallenge(t, env.db, models.ChallengeStatusCompleted, 10)
	one := 1
	plan := env.mentorshipPlan(t, &one)
	require.NoError(t, env.db.Model(&models.MentorshipPlan{}).Where("id = ?", plan.ID).Update("current_subscribers", 1).Error)

	tests := []struct {
		name string
		req  CreateIntentRequest
		want error
	}{
		{"full challenge", CreateIntentRequest{Type: models.PaymentTypeChallenge, ChallengeID: &full.ID}, ErrChallengeFull},
		{"ended challenge", CreateIntentRequest{Type: models.PaymentTypeChallenge, ChallengeID: &ended.ID}, ErrChallengeNotJoinable},
		{"full plan", CreateIntentRequest{Type: models.PaymentTypeMentorship, PlanID: &plan.ID}, ErrPlanFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Amount = decimal.RequireFromString("10")
			_, err := env.payments.CreateIntent(ctx, user.ID, &tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := env.payments.CreateIntent(ctx, user.ID, &CreateIntentRequest{Type: "crypto", Amount: decimal.NewFromInt(1)})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = env.payments.CreateIntent(ctx, user.ID, &CreateIntentRequest{Type: models.PaymentTypeChallenge, ChallengeID: &ended.ID})
	require.ErrorAs(t, err, &ve)
}

func TestConfirmDeclinedPayment(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "dave")
	challenge := createChallenge(t, env.db, models.ChallengeStatusActive, 5)

	intent, err := env.payments.CreateIntent(ctx, user.ID, &CreateIntentRequest{
		Type:        models.PaymentTypeChallenge,
		Amount:      decimal.NewFromInt(25),
		ChallengeID: &challenge.ID,
	})
	require.NoError(t, err)
	_, err = env.gateway.SetStatus(intent.PaymentIntentID, gateway.IntentRequiresPaymentMethod)
	require.NoError(t, err)

	_, err = env.payments.Confirm(ctx, intent.PaymentIntentID, Viewer{UserID: user.ID})
	require.ErrorIs(t, err, ErrPaymentFailed)

	p, err := env.payments.Get(ctx, intent.PaymentID, Viewer{UserID: user.ID})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, p.Status)
	require.Equal(t, "Your card was declined.", p.FailureReason)
	require.Equal(t, 0, countParticipants(t, env.db, challenge.ID))
}

func TestConfirmProcessingAndOwnership(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	owner := createUser(t, env.db, "erin")
	other := createUser(t, env.db, "frank")
	challenge := createChallenge(t, env.db, models.ChallengeStatusActive, 5)

	intent, err := env.payments.CreateIntent(ctx, owner.ID, &CreateIntentRequest{
		Type:        models.PaymentTypeChallenge,
		Amount:      decimal.NewFromInt(25),
		ChallengeID: &challenge.ID,
	})
	require.NoError(t, err)

	_, err = env.payments.Confirm(ctx, intent.PaymentIntentID, Viewer{UserID: other.ID})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.gateway.SetStatus(intent.PaymentIntentID, gateway.IntentProcessing)
	require.NoError(t, err)
	res, err := env.payments.Confirm(ctx, intent.PaymentIntentID, Viewer{UserID: owner.ID})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusProcessing, res.Payment.Status)
}

func TestFulfilmentFailureMarksPaymentFailed(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	buyer := createUser(t, env.db, "gina")
	rival := createUser(t, env.db, "hank")
	challenge := createChallenge(t, env.db, models.ChallengeStatusActive, 1)

	intent, err := env.payments.CreateIntent(ctx, buyer.ID, &CreateIntentRequest{
		Type:        models.PaymentTypeChallenge,
		Amount:      decimal.NewFromInt(25),
		ChallengeID: &challenge.ID,
	})
	require.NoError(t, err)

	// The last seat is taken while the buyer is paying.
	_, err = env.challenges.JoinChallenge(ctx, challenge.ID, rival.ID, validAccount("7001"))
	require.NoError(t, err)

	_, err = env.gateway.ConfirmIntent(ctx, intent.PaymentIntentID)
	require.NoError(t, err)
	_, err = env.payments.Confirm(ctx, intent.PaymentIntentID, Viewer{UserID: buyer.ID})
	require.ErrorIs(t, err, ErrChallengeFull)

	p, err := env.payments.Get(ctx, intent.PaymentID, Viewer{IsAdmin: true})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, p.Status)
	require.Equal(t, 1, reloadChallenge(t, env.db, challenge.ID).CurrentParticipants)
}

func TestPropFirmPaymentFlipsServiceToPending(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "ivan")
	pkg, err := env.propFirm.CreatePackage(ctx, 1, &PackageRequest{
		Name:        "Funded",
		PricingType: models.PricingTypeOneTime,
		ServiceFee:  price("150"),
	})
	require.NoError(t, err)

	svc, err := env.propFirm.CreateService(ctx, user.ID, &ServiceRequest{
		PackageID: pkg.ID,
		Details: models.PropFirmDetails{
			AccountID:       "88001",
			AccountPassword: "pw",
			Server:          "Firm-Live",
			AccountSize:     50000,
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.ServiceStatusAwaitingPayment, svc.Status)

	_, _, err = env.pay(t, user.ID, &CreateIntentRequest{
		Type:      models.PaymentTypePropFirmService,
		Amount:    decimal.NewFromInt(150),
		ServiceID: &svc.ID,
	})
	require.NoError(t, err)

	got, err := env.propFirm.GetService(ctx, svc.ID, Viewer{UserID: user.ID})
	require.NoError(t, err)
	require.Equal(t, models.ServiceStatusPending, got.Status)
	require.NotNil(t, got.PaymentID)

	stored, err := env.propFirm.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.CurrentClients)
}

func TestRefundPayment(t *testing.T) {
	env := newCommerceEnv(t)
	ctx := context.Background()
	user := createUser(t, env.db, "judy")
	challenge := createChallenge(t, env.db, models.ChallengeStatusActive, 5)

	intent, _, err := env.pay(t, user.ID, &CreateIntentRequest{
		Type:        models.PaymentTypeChallenge,
		Amount:      decimal.RequireFromString("40.50"),
		ChallengeID: &challenge.ID,
	})
	require.NoError(t, err)

	p, err := env.payments.Refund(ctx, intent.PaymentID, nil)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCancelled, p.Status)
	require.True(t, p.RefundedAmount.Equal(decimal.RequireFromString("40.50")))

	_, err = env.payments.Refund(ctx, intent.PaymentID, nil)
	require.ErrorIs(t, err, ErrPaymentNotRefundable)

	page, err := env.payments.List(ctx, PaymentFilter{UserID: user.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Pagination.Total)
	require.WithinDuration(t, time.Now(), page.Payments[0].CreatedAt, time.Minute)
}
