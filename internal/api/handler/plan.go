package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{
		planService: planService,
	}
}

// ListPublic 可购买的套餐
// GET /api/v1/plans
func (h *PlanHandler) ListPublic(c *gin.Context) {
	plans, err := h.planService.ListPublic()
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, plans)
}

// AdminList 全部套餐（含下架）
// GET /api/v1/admin/plans
func (h *PlanHandler) AdminList(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	plans, err := h.planService.AdminList(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, plans)
}

// Create 新建套餐
// POST /api/v1/admin/plans
func (h *PlanHandler) Create(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req dto.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	plan, err := h.planService.Create(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "创建成功", plan)
}

// Update 修改套餐
// PUT /api/v1/admin/plans/:id
func (h *PlanHandler) Update(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	planID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	plan, err := h.planService.Update(id, planID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "更新成功", plan)
}

// Deactivate 下架套餐，已有订阅不受影响
// DELETE /api/v1/admin/plans/:id
func (h *PlanHandler) Deactivate(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	planID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.planService.Deactivate(id, planID); err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已下架", nil)
}
