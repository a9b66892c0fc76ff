package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/repository"
)

// QuotaService 工具使用权益的读取与判定
type QuotaService struct {
	db        *gorm.DB
	planRepo  *repository.PlanRepository
	subRepo   *repository.SubscriptionRepository
	toolRepo  *repository.ToolRepository
	usageRepo *repository.UsageRepository
	cfg       *config.Config
	now       func() time.Time
}

func NewQuotaService(
	db *gorm.DB,
	planRepo *repository.PlanRepository,
	subRepo *repository.SubscriptionRepository,
	toolRepo *repository.ToolRepository,
	usageRepo *repository.UsageRepository,
	cfg *config.Config,
) *QuotaService {
	return &QuotaService{
		db:        db,
		planRepo:  planRepo,
		subRepo:   subRepo,
		toolRepo:  toolRepo,
		usageRepo: usageRepo,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *QuotaService) policy() entitlement.Policy {
	return entitlement.Policy{PastDueEntitled: s.cfg.Entitlement.PastDueEntitled}
}

// resolved 用户当前生效的套餐
type resolved struct {
	sub      *model.Subscription
	plan     *model.Plan
	limits   entitlement.PlanLimits
	entitled bool
}

// resolve 解析用户生效套餐；tx 为空时使用默认连接
func (s *QuotaService) resolve(tx *gorm.DB, userID int64, now time.Time) (*resolved, error) {
	planRepo, subRepo := s.planRepo, s.subRepo
	if tx != nil {
		planRepo, subRepo = planRepo.WithTx(tx), subRepo.WithTx(tx)
	}

	sub, err := subRepo.GetCurrent(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, upstream("get subscription", err)
		}
		sub = nil
	}

	free, err := planRepo.GetByName(s.cfg.Entitlement.FreePlanName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidConfiguration
		}
		return nil, upstream("get free plan", err)
	}

	var paid *model.Plan
	if sub != nil {
		paid = sub.Plan
	}
	plan := entitlement.ResolvePlan(sub, paid, free, s.policy(), now)
	return &resolved{
		sub:      sub,
		plan:     plan,
		limits:   entitlement.LimitsOf(plan, s.cfg.Entitlement.FreePlanName),
		entitled: plan != free,
	}, nil
}

// ListToolsWithAccess 上架工具及当前用户的使用权限
func (s *QuotaService) ListToolsWithAccess(id Identity) ([]*dto.ToolWithAccess, error) {
	now := s.now()
	r, err := s.resolve(nil, id.UserID, now)
	if err != nil {
		return nil, err
	}

	tools, err := s.toolRepo.List(true)
	if err != nil {
		return nil, upstream("list tools", err)
	}
	counts, err := s.usageRepo.CountByToolInPeriod(id.UserID, entitlement.PeriodStart(now))
	if err != nil {
		return nil, upstream("count usage", err)
	}

	items := make([]*dto.ToolWithAccess, 0, len(tools))
	for _, tool := range tools {
		decision := entitlement.Evaluate(entitlement.Input{
			Plan:       r.limits,
			Tool:       entitlement.ToolStateOf(tool),
			UsageCount: int(counts[tool.ID]),
		})
		items = append(items, buildToolWithAccess(tool, decision))
	}
	return items, nil
}

// GetToolAccess 单个工具及使用权限；停用的工具返回 "tool unavailable"
func (s *QuotaService) GetToolAccess(id Identity, toolID int64) (*dto.ToolWithAccess, error) {
	now := s.now()
	tool, err := s.toolRepo.GetByID(toolID)
	if err != nil {
		return nil, lookup("get tool", err, ErrToolNotFound)
	}

	r, err := s.resolve(nil, id.UserID, now)
	if err != nil {
		return nil, err
	}
	count, err := s.usageRepo.CountInPeriod(id.UserID, tool.ID, entitlement.PeriodStart(now))
	if err != nil {
		return nil, upstream("count usage", err)
	}

	decision := entitlement.Evaluate(entitlement.Input{
		Plan:       r.limits,
		Tool:       entitlement.ToolStateOf(tool),
		UsageCount: int(count),
	})
	return buildToolWithAccess(tool, decision), nil
}

// UsageStats 本月用量统计
func (s *QuotaService) UsageStats(id Identity) (*dto.UsageStatsResponse, error) {
	now := s.now()
	r, err := s.resolve(nil, id.UserID, now)
	if err != nil {
		return nil, err
	}

	tools, err := s.toolRepo.List(true)
	if err != nil {
		return nil, upstream("list tools", err)
	}
	counts, err := s.usageRepo.CountByToolInPeriod(id.UserID, entitlement.PeriodStart(now))
	if err != nil {
		return nil, upstream("count usage", err)
	}

	resp := &dto.UsageStatsResponse{
		Subscription:   dto.SubscriptionSummary{Plan: r.plan.Name, Status: "none"},
		UsageThisMonth: make([]*dto.ToolUsageSummary, 0, len(tools)),
	}
	if r.sub != nil {
		resp.Subscription.Status = string(r.sub.Status)
		resp.Subscription.RenewalDate = formatTimePtr(r.sub.CurrentPeriodEnd)
	}

	limit := entitlement.RemainingCount(r.limits.ToolLimit)
	if r.limits.ToolLimit == entitlement.Unlimited {
		limit = entitlement.UnlimitedRemaining()
	}

	for _, tool := range tools {
		used := counts[tool.ID]
		decision := entitlement.Evaluate(entitlement.Input{
			Plan:       r.limits,
			Tool:       entitlement.ToolStateOf(tool),
			UsageCount: int(used),
		})
		resp.UsageThisMonth = append(resp.UsageThisMonth, &dto.ToolUsageSummary{
			ToolID:     tool.ID,
			ToolName:   tool.Name,
			UsageCount: used,
			Limit:      limit,
			Remaining:  decision.RemainingUses,
			IsPremium:  tool.IsPremium,
		})
	}
	for _, c := range counts {
		resp.TotalUsageCount += c
	}
	return resp, nil
}

func buildToolWithAccess(tool *model.Tool, decision entitlement.Decision) *dto.ToolWithAccess {
	return &dto.ToolWithAccess{
		ID:          tool.ID,
		Name:        tool.Name,
		Description: tool.Description,
		Icon:        tool.Icon,
		IsActive:    tool.IsActive,
		IsPremium:   tool.IsPremium,
		Access:      decision,
	}
}
