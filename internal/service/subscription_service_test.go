package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/email"
	"github.com/qs3c/toolbox_server/internal/pkg/payment"
	"github.com/qs3c/toolbox_server/internal/testutil"
)

type fakeGateway struct {
	checkouts     []*payment.CheckoutRequest
	sessions      map[string]*payment.CompletedCheckout
	subscriptions map[string]*payment.Subscription
	canceled      map[string]bool
	resumed       []string
	fail          bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:      map[string]*payment.CompletedCheckout{},
		subscriptions: map[string]*payment.Subscription{},
		canceled:      map[string]bool{},
	}
}

var errGatewayDown = errors.New("gateway down")

func (g *fakeGateway) EnsureCustomer(_ context.Context, existingID, _ string, userID int64) (string, error) {
	if g.fail {
		return "", errGatewayDown
	}
	if existingID != "" {
		return existingID, nil
	}
	return "cus_" + strconv.FormatInt(userID, 10), nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req *payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.checkouts = append(g.checkouts, req)
	id := "cs_" + strconv.Itoa(len(g.checkouts))
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, sessionID string) (*payment.CompletedCheckout, error) {
	if g.fail {
		return nil, errGatewayDown
	}
	cs, ok := g.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such session")
	}
	return cs, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.example.com/" + customerID + "?return=" + returnURL, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*payment.Subscription, error) {
	if g.fail {
		return nil, errGatewayDown
	}
	s, ok := g.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return s, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, id string, atPeriodEnd bool) (*payment.Subscription, error) {
	if g.fail {
		return nil, errGatewayDown
	}
	g.canceled[id] = atPeriodEnd
	return g.subscriptions[id], nil
}

func (g *fakeGateway) ResumeSubscription(_ context.Context, id string) (*payment.Subscription, error) {
	if g.fail {
		return nil, errGatewayDown
	}
	g.resumed = append(g.resumed, id)
	return g.subscriptions[id], nil
}

// completeSession 模拟用户在支付页完成结账
func (g *fakeGateway) completeSession(sessionID string, userID, planID int64, remote *payment.Subscription) {
	g.subscriptions[remote.ID] = remote
	g.sessions[sessionID] = &payment.CompletedCheckout{
		ID:         sessionID,
		Complete:   true,
		CustomerID: "cus_" + strconv.FormatInt(userID, 10),
		Metadata: map[string]string{
			"user_id":          strconv.FormatInt(userID, 10),
			"plan_id":          strconv.FormatInt(planID, 10),
			"billing_interval": "monthly",
		},
		Subscription: remote,
	}
}

func setupSubscriptionService(t *testing.T) (*testEnv, *SubscriptionService, *fakeGateway) {
	t.Helper()
	env := setupEnv(t)
	gateway := newFakeGateway()
	svc := NewSubscriptionService(env.db, env.userRepo, env.planRepo, env.subRepo, env.paymentRepo,
		env.quota, gateway, env.notifier, env.logs, env.cfg)
	return env, svc, gateway
}

func TestSubscriptionService_Checkout(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	env.cfg.Stripe.TrialDays = 14
	free := testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1, testutil.WithPrice("9.99", "99.99"))
	unpriced := testutil.TestPlan(t, env.db, "Team", -1)
	retired := testutil.TestPlan(t, env.db, "Legacy", -1, testutil.WithPrice("1", "10"), testutil.WithInactivePlan())
	user := testutil.TestUser(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	resp, err := svc.Checkout(ctx, id, &dto.CheckoutRequest{PlanID: pro.ID, BillingInterval: model.BillingYearly})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", resp.SessionID)
	assert.NotEmpty(t, resp.CheckoutURL)

	require.Len(t, gateway.checkouts, 1)
	req := gateway.checkouts[0]
	assert.Equal(t, "price_Pro_yearly", req.PriceID)
	assert.Equal(t, int64(14), req.TrialDays)
	assert.Contains(t, req.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")

	stored, err := env.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_"+strconv.FormatInt(user.ID, 10), stored.StripeCustomerID)

	_, err = svc.Checkout(ctx, id, &dto.CheckoutRequest{PlanID: free.ID, BillingInterval: model.BillingMonthly})
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
	_, err = svc.Checkout(ctx, id, &dto.CheckoutRequest{PlanID: retired.ID, BillingInterval: model.BillingMonthly})
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
	_, err = svc.Checkout(ctx, id, &dto.CheckoutRequest{PlanID: unpriced.ID, BillingInterval: model.BillingMonthly})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = svc.Checkout(ctx, id, &dto.CheckoutRequest{PlanID: 99999, BillingInterval: model.BillingMonthly})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	gateway.fail = true
	_, err = svc.Checkout(ctx, Identity{UserID: testutil.TestUser(t, env.db).ID}, &dto.CheckoutRequest{PlanID: pro.ID, BillingInterval: model.BillingMonthly})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestSubscriptionService_ConfirmCheckout(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1, testutil.WithPrice("9.99", "99.99"))
	user := testutil.TestUser(t, env.db)
	other := testutil.TestUser(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	trialEnd := time.Now().UTC().Add(14 * 24 * time.Hour).Truncate(time.Second)
	gateway.completeSession("cs_ok", user.ID, pro.ID, &payment.Subscription{
		ID:               "sub_1",
		Status:           model.SubscriptionTrialing,
		TrialEnd:         &trialEnd,
		CurrentPeriodEnd: &trialEnd,
	})

	_, err := svc.ConfirmCheckout(ctx, Identity{UserID: other.ID}, "cs_ok")
	assert.ErrorIs(t, err, ErrCheckoutNotOwned)

	info, err := svc.ConfirmCheckout(ctx, id, "cs_ok")
	require.NoError(t, err)
	assert.Equal(t, "trialing", info.Status)
	require.NotNil(t, info.Plan)
	assert.Equal(t, "Pro", info.Plan.Name)
	assert.Equal(t, trialEnd.Format(time.RFC3339), info.TrialEnd)

	// 重复确认返回同一订阅
	again, err := svc.ConfirmCheckout(ctx, id, "cs_ok")
	require.NoError(t, err)
	assert.Equal(t, info.ID, again.ID)

	mine, err := svc.GetMine(id)
	require.NoError(t, err)
	assert.True(t, mine.Entitled)
	assert.Equal(t, "Pro", mine.EffectivePlan.Name)

	gateway.sessions["cs_open"] = &payment.CompletedCheckout{
		ID:       "cs_open",
		Metadata: map[string]string{"user_id": strconv.FormatInt(user.ID, 10)},
	}
	_, err = svc.ConfirmCheckout(ctx, id, "cs_open")
	assert.ErrorIs(t, err, ErrCheckoutIncomplete)
}

func TestSubscriptionService_ConfirmCheckout_ReplacesLive(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1, testutil.WithPrice("9.99", "99.99"))
	business := testutil.TestPlan(t, env.db, "Business", -1, testutil.WithPrice("29.99", "299.99"))
	user := testutil.TestUser(t, env.db)
	old := testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive, testutil.WithStripeSubscription("sub_old"))
	gateway.subscriptions["sub_old"] = &payment.Subscription{ID: "sub_old", Status: model.SubscriptionActive}

	periodEnd := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)
	gateway.completeSession("cs_up", user.ID, business.ID, &payment.Subscription{
		ID:               "sub_new",
		Status:           model.SubscriptionActive,
		CurrentPeriodEnd: &periodEnd,
	})

	info, err := svc.ConfirmCheckout(context.Background(), Identity{UserID: user.ID}, "cs_up")
	require.NoError(t, err)
	assert.Equal(t, "active", info.Status)
	assert.Equal(t, "Business", info.Plan.Name)

	replaced, err := env.subRepo.GetByID(old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCanceled, replaced.Status)
	assert.NotNil(t, replaced.EndDate)

	atPeriodEnd, ok := gateway.canceled["sub_old"]
	assert.True(t, ok)
	assert.False(t, atPeriodEnd)

	live, err := env.subRepo.ListLive(user.ID)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, info.ID, live[0].ID)
}

func TestSubscriptionService_ConfirmCheckout_RemoteCanceled(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1, testutil.WithPrice("9.99", "99.99"))
	business := testutil.TestPlan(t, env.db, "Business", -1, testutil.WithPrice("29.99", "299.99"))
	user := testutil.TestUser(t, env.db)
	current := testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive, testutil.WithStripeSubscription("sub_current"))

	gateway.completeSession("cs_dead", user.ID, business.ID, &payment.Subscription{
		ID:     "sub_dead",
		Status: model.SubscriptionCanceled,
	})

	_, err := svc.ConfirmCheckout(context.Background(), Identity{UserID: user.ID}, "cs_dead")
	assert.ErrorIs(t, err, ErrCheckoutCanceled)
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = env.subRepo.GetByStripeID("sub_dead")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	kept, err := env.subRepo.GetByID(current.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, kept.Status)

	mine, err := svc.GetMine(Identity{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, "Pro", mine.EffectivePlan.Name)
}

func TestSubscriptionService_CancelAndReactivate(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1)
	user := testutil.TestUser(t, env.db)
	sub := testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive, testutil.WithStripeSubscription("sub_1"))
	gateway.subscriptions["sub_1"] = &payment.Subscription{ID: "sub_1", Status: model.SubscriptionActive, CurrentPeriodEnd: sub.CurrentPeriodEnd}
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	_, err := svc.Reactivate(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	info, err := svc.Cancel(ctx, id, false)
	require.NoError(t, err)
	assert.True(t, info.CancelAtPeriodEnd)
	assert.Equal(t, "active", info.Status)
	assert.True(t, gateway.canceled["sub_1"])

	// 周期内仍享有权益
	mine, err := svc.GetMine(id)
	require.NoError(t, err)
	assert.True(t, mine.Entitled)

	info, err = svc.Reactivate(ctx, id)
	require.NoError(t, err)
	assert.False(t, info.CancelAtPeriodEnd)
	assert.Equal(t, []string{"sub_1"}, gateway.resumed)

	info, err = svc.Cancel(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, "canceled", info.Status)
	assert.NotEmpty(t, info.EndDate)

	_, err = svc.Cancel(ctx, id, true)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	mine, err = svc.GetMine(id)
	require.NoError(t, err)
	assert.False(t, mine.Entitled)
	assert.Nil(t, mine.Subscription)
	assert.Equal(t, "Free", mine.EffectivePlan.Name)
}

func TestSubscriptionService_Cancel_GatewayFailureKeepsState(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1)
	user := testutil.TestUser(t, env.db)
	sub := testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive, testutil.WithStripeSubscription("sub_1"))
	gateway.fail = true

	_, err := svc.Cancel(context.Background(), Identity{UserID: user.ID}, true)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	stored, err := env.subRepo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, stored.Status)
}

func TestSubscriptionService_BillingPortal(t *testing.T) {
	env, svc, _ := setupSubscriptionService(t)
	user := testutil.TestUser(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	_, err := svc.BillingPortal(ctx, id, "")
	assert.ErrorIs(t, err, ErrNoBillingAccount)

	require.NoError(t, env.userRepo.UpdateFields(user.ID, map[string]interface{}{"stripe_customer_id": "cus_9"}))
	resp, err := svc.BillingPortal(ctx, id, "")
	require.NoError(t, err)
	assert.Contains(t, resp.URL, "cus_9")
	assert.Contains(t, resp.URL, "http://localhost:3000/account")
}

func TestSubscriptionService_NoGateway(t *testing.T) {
	env := setupEnv(t)
	svc := NewSubscriptionService(env.db, env.userRepo, env.planRepo, env.subRepo, env.paymentRepo,
		env.quota, nil, nil, env.logs, env.cfg)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, Identity{UserID: 1}, &dto.CheckoutRequest{PlanID: 1, BillingInterval: model.BillingMonthly})
	assert.ErrorIs(t, err, ErrPaymentNotAvailable)

	n, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscriptionService_Reconcile(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1)
	alice := testutil.TestUser(t, env.db)
	bob := testutil.TestUser(t, env.db)
	carol := testutil.TestUser(t, env.db)

	trial := testutil.TestSubscription(t, env.db, alice.ID, pro.ID, model.SubscriptionTrialing, testutil.WithStripeSubscription("sub_a"))
	failing := testutil.TestSubscription(t, env.db, bob.ID, pro.ID, model.SubscriptionActive, testutil.WithStripeSubscription("sub_b"))
	gone := testutil.TestSubscription(t, env.db, carol.ID, pro.ID, model.SubscriptionPastDue, testutil.WithStripeSubscription("sub_c"))

	renewed := time.Now().UTC().AddDate(0, 2, 0).Truncate(time.Second)
	paidAt := time.Now().UTC().Truncate(time.Second)
	gateway.subscriptions["sub_a"] = &payment.Subscription{
		ID:               "sub_a",
		Status:           model.SubscriptionActive,
		CurrentPeriodEnd: &renewed,
		LatestInvoice: &payment.Invoice{
			ID: "in_1", Paid: true, Amount: decimal.RequireFromString("9.99"), Currency: "usd", PaidAt: paidAt,
		},
	}
	gateway.subscriptions["sub_b"] = &payment.Subscription{ID: "sub_b", Status: model.SubscriptionPastDue, CurrentPeriodEnd: failing.CurrentPeriodEnd}
	gateway.subscriptions["sub_c"] = &payment.Subscription{ID: "sub_c", Status: model.SubscriptionCanceled}

	changed, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	got, err := env.subRepo.GetByID(trial.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, got.Status)
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.True(t, got.CurrentPeriodEnd.Equal(renewed))

	got, err = env.subRepo.GetByID(failing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPastDue, got.Status)

	got, err = env.subRepo.GetByID(gone.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCanceled, got.Status)

	payments, err := env.paymentRepo.ListByUser(alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("9.99")))

	assert.ElementsMatch(t, []email.Kind{email.KindPaymentFailed, email.KindSubscriptionCanceled}, env.notifier.kinds())

	// 再次对账没有变化，发票不会重复记录
	changed, err = svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, changed)
	payments, err = env.paymentRepo.ListByUser(alice.ID, 10)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestSubscriptionService_Reconcile_AllFail(t *testing.T) {
	env, svc, gateway := setupSubscriptionService(t)
	pro := testutil.TestPlan(t, env.db, "Pro", -1)
	user := testutil.TestUser(t, env.db)
	testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive, testutil.WithStripeSubscription("sub_x"))
	gateway.fail = true

	_, err := svc.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestSubscriptionService_ExpireDue(t *testing.T) {
	env, svc, _ := setupSubscriptionService(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", -1)
	user := testutil.TestUser(t, env.db)
	other := testutil.TestUser(t, env.db)

	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	due := testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive,
		testutil.WithPeriodEnd(past), testutil.WithCancelAtPeriodEnd())
	renewing := testutil.TestSubscription(t, env.db, other.ID, pro.ID, model.SubscriptionActive, testutil.WithPeriodEnd(past))

	n, err := svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.subRepo.GetByID(due.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCanceled, got.Status)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(past))
	assert.False(t, got.CancelAtPeriodEnd)

	got, err = env.subRepo.GetByID(renewing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, got.Status)

	assert.Equal(t, []email.Kind{email.KindSubscriptionCanceled}, env.notifier.kinds())
}

func TestSubscriptionService_AdminList(t *testing.T) {
	env, svc, _ := setupSubscriptionService(t)
	pro := testutil.TestPlan(t, env.db, "Pro", entitlement.Unlimited)
	for i := 0; i < 3; i++ {
		user := testutil.TestUser(t, env.db)
		testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive)
	}
	user := testutil.TestUser(t, env.db)
	testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionCanceled)

	_, _, err := svc.AdminList(Identity{UserID: user.ID}, 1, 20, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, _, err = svc.AdminList(adminID, 1, 20, "expired")
	assert.ErrorIs(t, err, ErrInvalidParam)

	items, total, err := svc.AdminList(adminID, 1, 20, "active")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 3)

	_, total, err = svc.AdminList(adminID, 1, 20, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}
