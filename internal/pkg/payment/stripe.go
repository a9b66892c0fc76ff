package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/model"
)

// StripeGateway 基于 stripe-go 的实现
type StripeGateway struct {
	currency string
}

func NewStripeGateway(cfg *config.StripeConfig) (*StripeGateway, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, ErrNotConfigured
	}
	stripe.Key = key

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{currency: currency}, nil
}

// EnsureCustomer 已有客户直接返回，否则新建
func (g *StripeGateway) EnsureCustomer(ctx context.Context, existingID, email string, userID int64) (string, error) {
	if existingID != "" {
		return existingID, nil
	}
	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"user_id": strconv.FormatInt(userID, 10)},
	}
	params.Context = ctx

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession 创建订阅模式的结账会话
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(req.CustomerID),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id":          strconv.FormatInt(req.UserID, 10),
			"plan_id":          strconv.FormatInt(req.PlanID, 10),
			"billing_interval": string(req.Interval),
		},
	}
	if req.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(req.TrialDays),
		}
	}
	params.Context = ctx

	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// GetCheckoutSession 查询结账会话及其订阅
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CompletedCheckout, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	params.AddExpand("subscription.latest_invoice")

	s, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get checkout session: %w", err)
	}

	out := &CompletedCheckout{
		ID:       s.ID,
		Complete: s.Status == stripe.CheckoutSessionStatusComplete,
		Metadata: s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.Subscription = convertSubscription(s.Subscription)
	}
	return out, nil
}

// CreatePortalSession 创建账单管理页会话
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return s.URL, nil
}

// GetSubscription 查询订阅当前状态
func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice")

	s, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription: %w", err)
	}
	return convertSubscription(s), nil
}

// CancelSubscription 立即取消或在周期结束时取消
func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*Subscription, error) {
	if atPeriodEnd {
		return g.setCancelAtPeriodEnd(ctx, subscriptionID, true)
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	s, err := subscription.Cancel(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: cancel subscription: %w", err)
	}
	return convertSubscription(s), nil
}

// ResumeSubscription 撤销周期结束时的取消
func (g *StripeGateway) ResumeSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return g.setCancelAtPeriodEnd(ctx, subscriptionID, false)
}

func (g *StripeGateway) setCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx

	s, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: update subscription: %w", err)
	}
	return convertSubscription(s), nil
}

// CreateProduct 为套餐创建产品
func (g *StripeGateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	params := &stripe.ProductParams{
		Name: stripe.String(name),
	}
	if description != "" {
		params.Description = stripe.String(description)
	}
	params.Context = ctx

	p, err := product.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create product: %w", err)
	}
	return p.ID, nil
}

// CreatePrice 创建按月或按年的循环价格
func (g *StripeGateway) CreatePrice(ctx context.Context, productID string, amount decimal.Decimal, interval model.BillingInterval) (string, error) {
	recurring := string(stripe.PriceRecurringIntervalMonth)
	if interval == model.BillingYearly {
		recurring = string(stripe.PriceRecurringIntervalYear)
	}
	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(ToMinorUnits(amount)),
		Currency:   stripe.String(g.currency),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(recurring),
		},
	}
	params.Context = ctx

	p, err := price.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create price: %w", err)
	}
	return p.ID, nil
}

func convertSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		RawStatus:         string(s.Status),
		Status:            MapStatus(string(s.Status)),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialEnd:          unixPtr(s.TrialEnd),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	if inv := s.LatestInvoice; inv != nil && inv.ID != "" {
		out.LatestInvoice = &Invoice{
			ID:       inv.ID,
			Paid:     inv.Status == stripe.InvoiceStatusPaid,
			Amount:   FromMinorUnits(inv.AmountPaid),
			Currency: string(inv.Currency),
		}
		if inv.StatusTransitions != nil {
			if paidAt := unixPtr(inv.StatusTransitions.PaidAt); paidAt != nil {
				out.LatestInvoice.PaidAt = *paidAt
			}
		}
	}
	return out
}
