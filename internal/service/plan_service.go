package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/repository"
)

// CatalogGateway 在支付平台创建商品和价格
type CatalogGateway interface {
	CreateProduct(ctx context.Context, name, description string) (string, error)
	CreatePrice(ctx context.Context, productID string, amount decimal.Decimal, interval model.BillingInterval) (string, error)
}

type PlanService struct {
	planRepo *repository.PlanRepository
	cfg      *config.Config
}

func NewPlanService(planRepo *repository.PlanRepository, cfg *config.Config) *PlanService {
	return &PlanService{
		planRepo: planRepo,
		cfg:      cfg,
	}
}

func (s *PlanService) freeName() string {
	return s.cfg.Entitlement.FreePlanName
}

// EnsureFreePlan 确保 Free 套餐存在且处于上架状态
func (s *PlanService) EnsureFreePlan() (*model.Plan, error) {
	plan, err := s.planRepo.GetByName(s.freeName())
	if err == nil {
		if !plan.IsActive {
			if err := s.planRepo.UpdateFields(plan.ID, map[string]interface{}{"is_active": true}); err != nil {
				return nil, upstream("activate free plan", err)
			}
			plan.IsActive = true
		}
		return plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, upstream("get free plan", err)
	}

	plan = &model.Plan{
		Name:         s.freeName(),
		Description:  "Basic access to tools",
		PriceMonthly: decimal.Zero,
		PriceYearly:  decimal.Zero,
		ToolLimit:    s.cfg.Entitlement.FreeToolLimit,
		Features:     model.StringArray{"Access to basic tools", "Limited usage per month"},
		IsActive:     true,
	}
	if !entitlement.ValidToolLimit(plan.ToolLimit) {
		return nil, ErrInvalidToolLimit
	}
	if err := s.planRepo.Create(plan); err != nil {
		return nil, upstream("create free plan", err)
	}
	return plan, nil
}

// ListPublic 公开的套餐列表
func (s *PlanService) ListPublic() ([]*dto.PlanInfo, error) {
	plans, err := s.planRepo.List(true)
	if err != nil {
		return nil, upstream("list plans", err)
	}
	return buildPlanInfos(plans), nil
}

// AdminList 管理后台套餐列表（包含下架套餐）
func (s *PlanService) AdminList(id Identity) ([]*dto.PlanInfo, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	plans, err := s.planRepo.List(false)
	if err != nil {
		return nil, upstream("list plans", err)
	}
	return buildPlanInfos(plans), nil
}

// Create 创建套餐
func (s *PlanService) Create(id Identity, req *dto.PlanRequest) (*dto.PlanInfo, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidParam
	}
	if err := validatePlanValues(req.ToolLimit, req.PriceMonthly, req.PriceYearly); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(name, 0); err != nil {
		return nil, err
	}

	plan := &model.Plan{
		Name:         name,
		Description:  req.Description,
		PriceMonthly: req.PriceMonthly,
		PriceYearly:  req.PriceYearly,
		ToolLimit:    req.ToolLimit,
		Features:     model.StringArray(req.Features),
		IsActive:     true,
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	if name == s.freeName() && !plan.IsActive {
		return nil, ErrFreePlanProtected
	}

	if err := s.planRepo.Create(plan); err != nil {
		return nil, upstream("create plan", err)
	}
	return dto.NewPlanInfo(plan), nil
}

// Update 更新套餐；Free 套餐不能改名或下架
func (s *PlanService) Update(id Identity, planID int64, req *dto.UpdatePlanRequest) (*dto.PlanInfo, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	plan, err := s.planRepo.GetByID(planID)
	if err != nil {
		return nil, lookup("get plan", err, ErrPlanNotFound)
	}
	isFree := plan.Name == s.freeName()

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalidParam
		}
		if name != plan.Name {
			if isFree || name == s.freeName() {
				return nil, ErrFreePlanProtected
			}
			if err := s.ensureUniqueName(name, plan.ID); err != nil {
				return nil, err
			}
			plan.Name = name
		}
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.PriceMonthly != nil {
		plan.PriceMonthly = *req.PriceMonthly
	}
	if req.PriceYearly != nil {
		plan.PriceYearly = *req.PriceYearly
	}
	if req.ToolLimit != nil {
		plan.ToolLimit = *req.ToolLimit
	}
	if req.Features != nil {
		plan.Features = model.StringArray(req.Features)
	}
	if req.IsActive != nil {
		if isFree && !*req.IsActive {
			return nil, ErrFreePlanProtected
		}
		plan.IsActive = *req.IsActive
	}

	if err := validatePlanValues(plan.ToolLimit, plan.PriceMonthly, plan.PriceYearly); err != nil {
		return nil, err
	}
	if err := s.planRepo.Update(plan); err != nil {
		return nil, upstream("update plan", err)
	}
	return dto.NewPlanInfo(plan), nil
}

// Deactivate 下架套餐，已有订阅不受影响
func (s *PlanService) Deactivate(id Identity, planID int64) error {
	if err := requireAdmin(id); err != nil {
		return err
	}

	plan, err := s.planRepo.GetByID(planID)
	if err != nil {
		return lookup("get plan", err, ErrPlanNotFound)
	}
	if plan.Name == s.freeName() {
		return ErrFreePlanProtected
	}
	if err := s.planRepo.UpdateFields(plan.ID, map[string]interface{}{"is_active": false}); err != nil {
		return upstream("deactivate plan", err)
	}
	return nil
}

// SyncResult 单个套餐的同步结果
type SyncResult struct {
	Plan         string
	ProductID    string
	PriceMonthly string
	PriceYearly  string
	Created      []string
}

// SyncStripe 为缺少价格的付费套餐在支付平台创建商品与价格
func (s *PlanService) SyncStripe(ctx context.Context, gateway CatalogGateway, dryRun bool) ([]*SyncResult, error) {
	plans, err := s.planRepo.List(true)
	if err != nil {
		return nil, upstream("list plans", err)
	}

	var results []*SyncResult
	for _, plan := range plans {
		if plan.Name == s.freeName() {
			continue
		}

		result := &SyncResult{
			Plan:         plan.Name,
			ProductID:    plan.StripeProductID,
			PriceMonthly: plan.StripePriceMonthly,
			PriceYearly:  plan.StripePriceYearly,
		}
		needMonthly := plan.StripePriceMonthly == "" && plan.PriceMonthly.IsPositive()
		needYearly := plan.StripePriceYearly == "" && plan.PriceYearly.IsPositive()
		if plan.StripeProductID == "" && (needMonthly || needYearly) {
			result.Created = append(result.Created, "product")
		}
		if needMonthly {
			result.Created = append(result.Created, "monthly price")
		}
		if needYearly {
			result.Created = append(result.Created, "yearly price")
		}
		results = append(results, result)

		if dryRun || len(result.Created) == 0 {
			continue
		}

		if plan.StripeProductID == "" {
			productID, err := gateway.CreateProduct(ctx, plan.Name, plan.Description)
			if err != nil {
				return results, upstream("create product", err)
			}
			plan.StripeProductID = productID
		}
		if needMonthly {
			priceID, err := gateway.CreatePrice(ctx, plan.StripeProductID, plan.PriceMonthly, model.BillingMonthly)
			if err != nil {
				return results, upstream("create monthly price", err)
			}
			plan.StripePriceMonthly = priceID
		}
		if needYearly {
			priceID, err := gateway.CreatePrice(ctx, plan.StripeProductID, plan.PriceYearly, model.BillingYearly)
			if err != nil {
				return results, upstream("create yearly price", err)
			}
			plan.StripePriceYearly = priceID
		}

		if err := s.planRepo.Update(plan); err != nil {
			return results, upstream("save stripe ids", err)
		}
		result.ProductID = plan.StripeProductID
		result.PriceMonthly = plan.StripePriceMonthly
		result.PriceYearly = plan.StripePriceYearly
	}
	return results, nil
}

func (s *PlanService) ensureUniqueName(name string, excludeID int64) error {
	exists, err := s.planRepo.ExistsByName(name, excludeID)
	if err != nil {
		return upstream("check plan name", err)
	}
	if exists {
		return ErrPlanNameExists
	}
	return nil
}

func validatePlanValues(toolLimit int, monthly, yearly decimal.Decimal) error {
	if !entitlement.ValidToolLimit(toolLimit) {
		return ErrInvalidToolLimit
	}
	if monthly.IsNegative() || yearly.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

func buildPlanInfos(plans []*model.Plan) []*dto.PlanInfo {
	items := make([]*dto.PlanInfo, 0, len(plans))
	for _, p := range plans {
		items = append(items, dto.NewPlanInfo(p))
	}
	return items
}
