package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/model"
)

var seq atomic.Int64

func next() int64 {
	return seq.Add(1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Email:         fmt.Sprintf("test_%d@example.com", next()),
		PasswordHash:  &passwordHash,
		FullName:      "Test User",
		IsActive:      true,
		EmailVerified: true,
	}

	for _, opt := range opts {
		opt(user)
	}

	// default:true 的字段零值不会写入，Create 后还会被回填为 true
	active := user.IsActive
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	if !active {
		user.IsActive = false
		if err := db.Model(user).Update("is_active", false).Error; err != nil {
			t.Fatalf("Failed to deactivate test user: %v", err)
		}
	}

	return user
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithPasswordHash 设置密码哈希
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithAdmin 设置为管理员
func WithAdmin() func(*model.User) {
	return func(u *model.User) {
		u.IsAdmin = true
	}
}

// WithInactiveUser 设置为停用
func WithInactiveUser() func(*model.User) {
	return func(u *model.User) {
		u.IsActive = false
	}
}

// WithUnverified 设置为未验证邮箱
func WithUnverified(code string, expiresAt time.Time) func(*model.User) {
	return func(u *model.User) {
		u.EmailVerified = false
		u.VerificationCode = &code
		u.VerificationExpiresAt = &expiresAt
	}
}

// TestPlan 创建测试套餐
func TestPlan(t *testing.T, db *gorm.DB, name string, toolLimit int, opts ...func(*model.Plan)) *model.Plan {
	t.Helper()

	plan := &model.Plan{
		Name:         name,
		Description:  name + " plan",
		PriceMonthly: decimal.Zero,
		PriceYearly:  decimal.Zero,
		ToolLimit:    toolLimit,
		Features:     model.StringArray{},
		IsActive:     true,
	}

	for _, opt := range opts {
		opt(plan)
	}

	active := plan.IsActive
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("Failed to create test plan: %v", err)
	}
	if !active {
		plan.IsActive = false
		if err := db.Model(plan).Update("is_active", false).Error; err != nil {
			t.Fatalf("Failed to deactivate test plan: %v", err)
		}
	}

	return plan
}

// TestFreePlan 创建 Free 套餐
func TestFreePlan(t *testing.T, db *gorm.DB, toolLimit int) *model.Plan {
	t.Helper()
	return TestPlan(t, db, "Free", toolLimit)
}

// WithPrice 设置价格与 Stripe 价格 ID
func WithPrice(monthly, yearly string) func(*model.Plan) {
	return func(p *model.Plan) {
		p.PriceMonthly = decimal.RequireFromString(monthly)
		p.PriceYearly = decimal.RequireFromString(yearly)
		p.StripeProductID = "prod_" + p.Name
		p.StripePriceMonthly = "price_" + p.Name + "_monthly"
		p.StripePriceYearly = "price_" + p.Name + "_yearly"
	}
}

// WithInactivePlan 设置为下架
func WithInactivePlan() func(*model.Plan) {
	return func(p *model.Plan) {
		p.IsActive = false
	}
}

// TestTool 创建测试工具
func TestTool(t *testing.T, db *gorm.DB, opts ...func(*model.Tool)) *model.Tool {
	t.Helper()

	tool := &model.Tool{
		Name:        fmt.Sprintf("Tool %d", next()),
		Description: "test tool",
		Icon:        model.IconCode,
		IsActive:    true,
	}

	for _, opt := range opts {
		opt(tool)
	}

	active := tool.IsActive
	if err := db.Create(tool).Error; err != nil {
		t.Fatalf("Failed to create test tool: %v", err)
	}
	if !active {
		tool.IsActive = false
		if err := db.Model(tool).Update("is_active", false).Error; err != nil {
			t.Fatalf("Failed to deactivate test tool: %v", err)
		}
	}

	return tool
}

// WithToolName 设置工具名
func WithToolName(name string) func(*model.Tool) {
	return func(tl *model.Tool) {
		tl.Name = name
	}
}

// WithPremium 设置为高级工具
func WithPremium() func(*model.Tool) {
	return func(tl *model.Tool) {
		tl.IsPremium = true
	}
}

// WithInactiveTool 设置为停用
func WithInactiveTool() func(*model.Tool) {
	return func(tl *model.Tool) {
		tl.IsActive = false
	}
}

// TestSubscription 创建测试订阅
func TestSubscription(t *testing.T, db *gorm.DB, userID, planID int64, status model.SubscriptionStatus, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	sub := &model.Subscription{
		UserID:           userID,
		PlanID:           planID,
		Status:           status,
		BillingInterval:  model.BillingMonthly,
		StartDate:        now,
		CurrentPeriodEnd: &periodEnd,
	}
	if status == model.SubscriptionCanceled {
		sub.EndDate = &now
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithStripeSubscription 设置 Stripe 订阅 ID
func WithStripeSubscription(id string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.StripeSubscriptionID = &id
	}
}

// WithPeriodEnd 设置当前计费周期结束时间
func WithPeriodEnd(end time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CurrentPeriodEnd = &end
	}
}

// WithCancelAtPeriodEnd 设置周期结束后取消
func WithCancelAtPeriodEnd() func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CancelAtPeriodEnd = true
	}
}

// WithStartDate 设置开始时间
func WithStartDate(start time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.StartDate = start
	}
}

// TestUsage 创建测试使用记录
func TestUsage(t *testing.T, db *gorm.DB, userID, toolID int64, status model.UsageStatus, startedAt time.Time) *model.ToolUsage {
	t.Helper()

	usage := &model.ToolUsage{
		UserID:    userID,
		ToolID:    toolID,
		Status:    status,
		StartedAt: startedAt.UTC(),
	}
	if status.IsTerminal() {
		completedAt := startedAt.UTC().Add(time.Second)
		usage.CompletedAt = &completedAt
	}

	if err := db.Create(usage).Error; err != nil {
		t.Fatalf("Failed to create test usage: %v", err)
	}

	return usage
}

// TestSystemLog 创建测试系统日志
func TestSystemLog(t *testing.T, db *gorm.DB, level, message string, createdAt time.Time) *model.SystemLog {
	t.Helper()

	entry := &model.SystemLog{
		Level:     level,
		Message:   message,
		Source:    "test",
		CreatedAt: createdAt.UTC(),
	}

	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("Failed to create test system log: %v", err)
	}

	return entry
}
