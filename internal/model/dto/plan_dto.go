package dto

import (
	"github.com/shopspring/decimal"

	"github.com/qs3c/toolbox_server/internal/model"
)

// PlanRequest 创建套餐请求
type PlanRequest struct {
	Name         string          `json:"name" binding:"required,max=50"`
	Description  string          `json:"description" binding:"max=2000"`
	PriceMonthly decimal.Decimal `json:"price_monthly"`
	PriceYearly  decimal.Decimal `json:"price_yearly"`
	ToolLimit    int             `json:"tool_limit"`
	Features     []string        `json:"features"`
	IsActive     *bool           `json:"is_active,omitempty"`
}

// UpdatePlanRequest 更新套餐请求
type UpdatePlanRequest struct {
	Name         *string          `json:"name,omitempty" binding:"omitempty,max=50"`
	Description  *string          `json:"description,omitempty" binding:"omitempty,max=2000"`
	PriceMonthly *decimal.Decimal `json:"price_monthly,omitempty"`
	PriceYearly  *decimal.Decimal `json:"price_yearly,omitempty"`
	ToolLimit    *int             `json:"tool_limit,omitempty"`
	Features     []string         `json:"features,omitempty"`
	IsActive     *bool            `json:"is_active,omitempty"`
}

// PlanInfo 套餐信息
type PlanInfo struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	PriceMonthly decimal.Decimal `json:"price_monthly"`
	PriceYearly  decimal.Decimal `json:"price_yearly"`
	ToolLimit    int             `json:"tool_limit"`
	Features     []string        `json:"features"`
	IsActive     bool            `json:"is_active"`
	Purchasable  bool            `json:"purchasable"`
}

// NewPlanInfo 由模型构建
func NewPlanInfo(p *model.Plan) *PlanInfo {
	features := []string(p.Features)
	if features == nil {
		features = []string{}
	}
	return &PlanInfo{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		PriceMonthly: p.PriceMonthly,
		PriceYearly:  p.PriceYearly,
		ToolLimit:    p.ToolLimit,
		Features:     features,
		IsActive:     p.IsActive,
		Purchasable:  p.IsActive && (p.StripePriceMonthly != "" || p.StripePriceYearly != ""),
	}
}
