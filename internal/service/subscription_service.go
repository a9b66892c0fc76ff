package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/email"
	"github.com/qs3c/toolbox_server/internal/pkg/metrics"
	"github.com/qs3c/toolbox_server/internal/pkg/payment"
	"github.com/qs3c/toolbox_server/internal/repository"
)

// PaymentGateway 支付平台
type PaymentGateway interface {
	EnsureCustomer(ctx context.Context, existingID, email string, userID int64) (string, error)
	CreateCheckoutSession(ctx context.Context, req *payment.CheckoutRequest) (*payment.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*payment.CompletedCheckout, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*payment.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*payment.Subscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*payment.Subscription, error)
}

// Notifier 异步通知（邮件队列）
type Notifier interface {
	Push(ctx context.Context, msg *email.Message) error
}

const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

type SubscriptionService struct {
	db          *gorm.DB
	userRepo    *repository.UserRepository
	planRepo    *repository.PlanRepository
	subRepo     *repository.SubscriptionRepository
	paymentRepo *repository.PaymentRepository
	quota       *QuotaService
	gateway     PaymentGateway
	notifier    Notifier
	logs        *LogService
	metrics     *metrics.Metrics
	cfg         *config.Config
	now         func() time.Time
}

func NewSubscriptionService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	planRepo *repository.PlanRepository,
	subRepo *repository.SubscriptionRepository,
	paymentRepo *repository.PaymentRepository,
	quota *QuotaService,
	gateway PaymentGateway,
	notifier Notifier,
	logs *LogService,
	cfg *config.Config,
) *SubscriptionService {
	return &SubscriptionService{
		db:          db,
		userRepo:    userRepo,
		planRepo:    planRepo,
		subRepo:     subRepo,
		paymentRepo: paymentRepo,
		quota:       quota,
		gateway:     gateway,
		notifier:    notifier,
		logs:        logs,
		metrics:     metrics.Get(),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetMine 当前订阅及生效套餐
func (s *SubscriptionService) GetMine(id Identity) (*dto.MySubscriptionResponse, error) {
	r, err := s.quota.resolve(nil, id.UserID, s.now())
	if err != nil {
		return nil, err
	}

	resp := &dto.MySubscriptionResponse{
		EffectivePlan: dto.NewPlanInfo(r.plan),
		Entitled:      r.entitled,
	}
	if r.sub != nil {
		resp.Subscription = buildSubscriptionInfo(r.sub)
	}
	return resp, nil
}

// Checkout 创建结账会话，返回支付页地址
func (s *SubscriptionService) Checkout(ctx context.Context, id Identity, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if s.gateway == nil {
		return nil, ErrPaymentNotAvailable
	}

	plan, err := s.planRepo.GetByID(req.PlanID)
	if err != nil {
		return nil, lookup("get plan", err, ErrPlanNotFound)
	}
	if !plan.IsActive || plan.Name == s.cfg.Entitlement.FreePlanName {
		return nil, ErrPlanNotPurchasable
	}
	priceID := plan.PriceID(req.BillingInterval)
	if priceID == "" {
		return nil, fmt.Errorf("%w: 套餐 %s 未配置 %s 价格", ErrInvalidConfiguration, plan.Name, req.BillingInterval)
	}

	user, err := s.userRepo.GetByID(id.UserID)
	if err != nil {
		return nil, lookup("get user", err, ErrUserNotFound)
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, &payment.CheckoutRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: withSessionID(s.successURL()),
		CancelURL:  s.cancelURL(),
		UserID:     user.ID,
		PlanID:     plan.ID,
		Interval:   req.BillingInterval,
		TrialDays:  s.cfg.Stripe.TrialDays,
	})
	if err != nil {
		s.logs.Error("subscription", "create checkout session failed", &user.ID, map[string]interface{}{"error": err.Error()})
		return nil, upstream("create checkout session", err)
	}

	return &dto.CheckoutResponse{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// ConfirmCheckout 结账返回后确认并创建本地订阅，重复确认返回已有订阅
func (s *SubscriptionService) ConfirmCheckout(ctx context.Context, id Identity, sessionID string) (*dto.SubscriptionInfo, error) {
	if s.gateway == nil {
		return nil, ErrPaymentNotAvailable
	}

	cs, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, upstream("get checkout session", err)
	}
	if cs.Metadata["user_id"] != strconv.FormatInt(id.UserID, 10) {
		return nil, ErrCheckoutNotOwned
	}
	if !cs.Complete || cs.Subscription == nil {
		return nil, ErrCheckoutIncomplete
	}
	remote := cs.Subscription

	if existing, err := s.subRepo.GetByStripeID(remote.ID); err == nil {
		return buildSubscriptionInfo(existing), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, upstream("get subscription", err)
	}
	// 远端已取消的订阅不落库，也不替换现有订阅
	if remote.Status == model.SubscriptionCanceled {
		return nil, ErrCheckoutCanceled
	}

	planID, err := strconv.ParseInt(cs.Metadata["plan_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: checkout session without plan_id", ErrInvalidConfiguration)
	}
	interval := model.BillingInterval(cs.Metadata["billing_interval"])
	if interval != model.BillingYearly {
		interval = model.BillingMonthly
	}

	now := s.now()
	var (
		created  *model.Subscription
		replaced []*model.Subscription
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subRepo := s.subRepo.WithTx(tx)

		if _, err := s.planRepo.WithTx(tx).GetByID(planID); err != nil {
			return lookup("get plan", err, ErrPlanNotFound)
		}

		// 同一用户只保留一个 active / trialing 订阅
		live, err := subRepo.ListLive(id.UserID)
		if err != nil {
			return upstream("list live subscriptions", err)
		}
		for _, old := range live {
			if err := entitlement.Apply(old, entitlement.Event{Type: entitlement.EventCancelImmediately}, now); err != nil {
				return err
			}
			if err := subRepo.Update(old); err != nil {
				return upstream("cancel previous subscription", err)
			}
			replaced = append(replaced, old)
		}

		sub, err := entitlement.NewSubscription(id.UserID, planID, interval, entitlement.Event{
			Type:      entitlement.EventCheckoutCompleted,
			TrialEnd:  remote.TrialEnd,
			PeriodEnd: remote.CurrentPeriodEnd,
		}, now)
		if err != nil {
			return err
		}
		sub.StripeSubscriptionID = &remote.ID
		if remote.Status == model.SubscriptionPastDue {
			if err := entitlement.Apply(sub, entitlement.Event{Type: entitlement.EventPaymentFailed}, now); err != nil {
				return err
			}
		}
		if remote.CancelAtPeriodEnd {
			sub.CancelAtPeriodEnd = true
		}
		if err := subRepo.Create(sub); err != nil {
			return upstream("create subscription", err)
		}

		if cs.CustomerID != "" {
			if err := s.userRepo.WithTx(tx).UpdateFields(id.UserID, map[string]interface{}{"stripe_customer_id": cs.CustomerID}); err != nil {
				return upstream("save customer id", err)
			}
		}
		created = sub
		return nil
	})
	if err != nil {
		s.metrics.SubscriptionEvent(string(entitlement.EventCheckoutCompleted), "error")
		return nil, err
	}
	s.metrics.SubscriptionEvent(string(entitlement.EventCheckoutCompleted), "applied")

	// 旧订阅在支付平台上同步取消，失败由对账任务兜底
	for _, old := range replaced {
		if old.StripeSubscriptionID == nil || *old.StripeSubscriptionID == remote.ID {
			continue
		}
		if _, err := s.gateway.CancelSubscription(ctx, *old.StripeSubscriptionID, false); err != nil {
			s.logs.Warning("subscription", "cancel replaced subscription failed", &id.UserID,
				map[string]interface{}{"subscription_id": old.ID, "error": err.Error()})
		}
	}

	s.logs.Info("subscription", "subscription created", &id.UserID,
		map[string]interface{}{"subscription_id": created.ID, "plan_id": planID, "status": string(created.Status)})

	full, err := s.subRepo.GetByID(created.ID)
	if err != nil {
		return nil, lookup("get subscription", err, ErrSubscriptionNotFound)
	}
	return buildSubscriptionInfo(full), nil
}

// Cancel 取消订阅，immediately 为 false 时在周期末取消
func (s *SubscriptionService) Cancel(ctx context.Context, id Identity, immediately bool) (*dto.SubscriptionInfo, error) {
	ev := entitlement.Event{Type: entitlement.EventCancelAtPeriodEnd}
	if immediately {
		ev.Type = entitlement.EventCancelImmediately
	}

	return s.changeOwn(ctx, id, ev, func(stripeID string) (*payment.Subscription, error) {
		return s.gateway.CancelSubscription(ctx, stripeID, !immediately)
	})
}

// Reactivate 周期结束前撤销取消
func (s *SubscriptionService) Reactivate(ctx context.Context, id Identity) (*dto.SubscriptionInfo, error) {
	ev := entitlement.Event{Type: entitlement.EventReactivate}
	return s.changeOwn(ctx, id, ev, func(stripeID string) (*payment.Subscription, error) {
		return s.gateway.ResumeSubscription(ctx, stripeID)
	})
}

// changeOwn 先在副本上校验事件，再调用支付平台，最后落库
func (s *SubscriptionService) changeOwn(ctx context.Context, id Identity, ev entitlement.Event, remoteCall func(string) (*payment.Subscription, error)) (*dto.SubscriptionInfo, error) {
	sub, err := s.subRepo.GetCurrent(id.UserID)
	if err != nil {
		return nil, lookup("get subscription", err, ErrSubscriptionNotFound)
	}

	now := s.now()
	probe := *sub
	if err := entitlement.Apply(&probe, ev, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	if sub.StripeSubscriptionID != nil {
		if s.gateway == nil {
			return nil, ErrPaymentNotAvailable
		}
		remote, err := remoteCall(*sub.StripeSubscriptionID)
		if err != nil {
			s.logs.Error("subscription", string(ev.Type)+" failed at payment processor", &id.UserID,
				map[string]interface{}{"subscription_id": sub.ID, "error": err.Error()})
			return nil, upstream(string(ev.Type), err)
		}
		if remote != nil {
			ev.PeriodEnd = remote.CurrentPeriodEnd
		}
	}

	if err := entitlement.Apply(sub, ev, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err := s.subRepo.Update(sub); err != nil {
		return nil, upstream("save subscription", err)
	}

	s.metrics.SubscriptionEvent(string(ev.Type), "applied")
	s.logs.Info("subscription", "subscription "+string(ev.Type), &id.UserID,
		map[string]interface{}{"subscription_id": sub.ID, "status": string(sub.Status)})
	return buildSubscriptionInfo(sub), nil
}

// BillingPortal 账单管理页地址
func (s *SubscriptionService) BillingPortal(ctx context.Context, id Identity, returnURL string) (*dto.BillingPortalResponse, error) {
	if s.gateway == nil {
		return nil, ErrPaymentNotAvailable
	}

	user, err := s.userRepo.GetByID(id.UserID)
	if err != nil {
		return nil, lookup("get user", err, ErrUserNotFound)
	}
	if user.StripeCustomerID == "" {
		return nil, ErrNoBillingAccount
	}
	if returnURL == "" {
		returnURL = strings.TrimRight(s.cfg.Server.FrontendURL, "/") + "/account"
	}

	url, err := s.gateway.CreatePortalSession(ctx, user.StripeCustomerID, returnURL)
	if err != nil {
		return nil, upstream("create billing portal", err)
	}
	return &dto.BillingPortalResponse{URL: url}, nil
}

// AdminList 管理后台订阅列表
func (s *SubscriptionService) AdminList(id Identity, page, pageSize int, status string) ([]*dto.SubscriptionInfo, int64, error) {
	if err := requireAdmin(id); err != nil {
		return nil, 0, err
	}
	switch model.SubscriptionStatus(status) {
	case "", model.SubscriptionTrialing, model.SubscriptionActive, model.SubscriptionPastDue, model.SubscriptionCanceled:
	default:
		return nil, 0, ErrInvalidParam
	}

	subs, total, err := s.subRepo.List(page, pageSize, status)
	if err != nil {
		return nil, 0, upstream("list subscriptions", err)
	}
	items := make([]*dto.SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		items = append(items, buildSubscriptionInfo(sub))
	}
	return items, total, nil
}

// Reconcile 拉取支付平台上的订阅状态并应用到本地，返回发生变化的订阅数
func (s *SubscriptionService) Reconcile(ctx context.Context) (int, error) {
	if s.gateway == nil {
		return 0, nil
	}

	subs, err := s.subRepo.ListSyncable()
	if err != nil {
		return 0, upstream("list syncable subscriptions", err)
	}

	changed := 0
	var failed int
	for _, sub := range subs {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		ok, err := s.reconcileOne(ctx, sub)
		if err != nil {
			failed++
			s.logs.Error("reconcile", "reconcile subscription failed", &sub.UserID,
				map[string]interface{}{"subscription_id": sub.ID, "error": err.Error()})
			continue
		}
		if ok {
			changed++
		}
	}

	log.Info().Int("checked", len(subs)).Int("changed", changed).Int("failed", failed).Msg("subscriptions reconciled")
	if failed > 0 && failed == len(subs) {
		return changed, fmt.Errorf("%w: all %d subscriptions failed to reconcile", ErrUpstreamUnavailable, failed)
	}
	return changed, nil
}

func (s *SubscriptionService) reconcileOne(ctx context.Context, sub *model.Subscription) (bool, error) {
	remote, err := s.gateway.GetSubscription(ctx, *sub.StripeSubscriptionID)
	if err != nil {
		return false, err
	}

	now := s.now()
	before := sub.Status
	changed := false

	for _, ev := range entitlement.EventsForRemote(sub, remote.Status, remote.CancelAtPeriodEnd) {
		ev.PeriodEnd = remote.CurrentPeriodEnd
		if err := entitlement.Apply(sub, ev, now); err != nil {
			s.metrics.SubscriptionEvent(string(ev.Type), "rejected")
			log.Warn().Err(err).Int64("subscription_id", sub.ID).Msg("remote event not applicable")
			continue
		}
		s.metrics.SubscriptionEvent(string(ev.Type), "applied")
		changed = true
	}

	// 续费后周期结束时间变化
	if sub.Status != model.SubscriptionCanceled && remote.CurrentPeriodEnd != nil &&
		(sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(*remote.CurrentPeriodEnd)) {
		sub.CurrentPeriodEnd = remote.CurrentPeriodEnd
		changed = true
	}

	if changed {
		if err := s.subRepo.Update(sub); err != nil {
			return false, err
		}
	}

	if inv := remote.LatestInvoice; inv != nil && inv.Paid && inv.ID != "" {
		if _, err := s.paymentRepo.Record(&model.Payment{
			UserID:          sub.UserID,
			SubscriptionID:  sub.ID,
			StripeInvoiceID: inv.ID,
			Amount:          inv.Amount,
			Currency:        inv.Currency,
			Status:          "paid",
			PaidAt:          inv.PaidAt,
		}); err != nil {
			return changed, err
		}
	}

	if before != sub.Status {
		s.notifyStatus(ctx, sub)
	}
	return changed, nil
}

// ExpireDue 结束已到周期末的订阅
func (s *SubscriptionService) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.subRepo.ListDueForExpiry(now)
	if err != nil {
		return 0, upstream("list due subscriptions", err)
	}

	expired := 0
	for _, sub := range subs {
		if err := entitlement.Apply(sub, entitlement.Event{Type: entitlement.EventPeriodElapsed}, now); err != nil {
			s.metrics.SubscriptionEvent(string(entitlement.EventPeriodElapsed), "rejected")
			continue
		}
		if err := s.subRepo.Update(sub); err != nil {
			return expired, upstream("expire subscription", err)
		}
		s.metrics.SubscriptionEvent(string(entitlement.EventPeriodElapsed), "applied")
		s.notifyStatus(ctx, sub)
		expired++
	}
	return expired, nil
}

// notifyStatus 订阅进入 past_due / canceled 时发送邮件通知
func (s *SubscriptionService) notifyStatus(ctx context.Context, sub *model.Subscription) {
	var kind email.Kind
	switch sub.Status {
	case model.SubscriptionPastDue:
		kind = email.KindPaymentFailed
	case model.SubscriptionCanceled:
		kind = email.KindSubscriptionCanceled
	default:
		return
	}
	if s.notifier == nil {
		return
	}

	user, err := s.userRepo.GetByID(sub.UserID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("notify: user not found")
		return
	}
	params := map[string]string{"billing_url": strings.TrimRight(s.cfg.Server.FrontendURL, "/") + "/account"}
	if plan, err := s.planRepo.GetByID(sub.PlanID); err == nil {
		params["plan"] = plan.Name
	}
	if sub.EndDate != nil {
		params["end_date"] = sub.EndDate.Format("2006-01-02")
	}

	if err := s.notifier.Push(ctx, &email.Message{
		Kind:   kind,
		To:     user.Email,
		Name:   user.FullName,
		Params: params,
	}); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Str("kind", string(kind)).Msg("failed to enqueue notification")
	}
}

func (s *SubscriptionService) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	customerID, err := s.gateway.EnsureCustomer(ctx, user.StripeCustomerID, user.Email, user.ID)
	if err != nil {
		return "", upstream("ensure customer", err)
	}
	if customerID != user.StripeCustomerID {
		if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"stripe_customer_id": customerID}); err != nil {
			return "", upstream("save customer id", err)
		}
		user.StripeCustomerID = customerID
	}
	return customerID, nil
}

func (s *SubscriptionService) successURL() string {
	if s.cfg.Stripe.SuccessURL != "" {
		return s.cfg.Stripe.SuccessURL
	}
	return strings.TrimRight(s.cfg.Server.FrontendURL, "/") + "/subscription/success"
}

func (s *SubscriptionService) cancelURL() string {
	if s.cfg.Stripe.CancelURL != "" {
		return s.cfg.Stripe.CancelURL
	}
	return strings.TrimRight(s.cfg.Server.FrontendURL, "/") + "/subscription/cancel"
}

// withSessionID 确保成功回跳地址带上结账会话 ID
func withSessionID(u string) string {
	if strings.Contains(u, sessionIDPlaceholder) {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id=" + sessionIDPlaceholder
}
