package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

type ToolHandler struct {
	quotaService *service.QuotaService
	usageService *service.UsageService
	toolService  *service.ToolService
}

func NewToolHandler(quotaService *service.QuotaService, usageService *service.UsageService, toolService *service.ToolService) *ToolHandler {
	return &ToolHandler{
		quotaService: quotaService,
		usageService: usageService,
		toolService:  toolService,
	}
}

// List 工具列表及当前用户的使用权限
// GET /api/v1/tools
func (h *ToolHandler) List(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	tools, err := h.quotaService.ListToolsWithAccess(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tools)
}

// Get 单个工具及使用权限
// GET /api/v1/tools/:id
func (h *ToolHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	toolID, ok := pathID(c, "id")
	if !ok {
		return
	}

	tool, err := h.quotaService.GetToolAccess(id, toolID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tool)
}

// StartUsage 开始使用工具，通过权益检查后立即计数
// POST /api/v1/tools/:id/usage
func (h *ToolHandler) StartUsage(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	toolID, ok := pathID(c, "id")
	if !ok {
		return
	}

	// 请求体可以为空
	var req dto.StartUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.usageService.StartUsage(c.Request.Context(), id, toolID, req.InputData)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已开始使用", resp)
}

// UpdateUsage 更新使用状态
// PUT /api/v1/usage/:id
func (h *ToolHandler) UpdateUsage(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	usageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	item, err := h.usageService.UpdateStatus(c.Request.Context(), id, usageID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, item)
}

// History 使用记录
// GET /api/v1/usage
func (h *ToolHandler) History(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	items, total, err := h.usageService.ListHistory(id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// GetUsage 使用记录详情
// GET /api/v1/usage/:id
func (h *ToolHandler) GetUsage(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	usageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := h.usageService.Get(id, usageID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, item)
}

// UsageStats 本月使用统计
// GET /api/v1/usage/stats
func (h *ToolHandler) UsageStats(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	stats, err := h.quotaService.UsageStats(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, stats)
}

// SaveProgress 保存草稿
// PUT /api/v1/tools/:id/progress
func (h *ToolHandler) SaveProgress(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	toolID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.SaveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.usageService.SaveProgress(id, toolID, req.FormData)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已保存", resp)
}

// GetProgress 获取草稿
// GET /api/v1/tools/:id/progress
func (h *ToolHandler) GetProgress(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	toolID, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.usageService.GetSavedProgress(id, toolID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// AdminList 全部工具（含下架）
// GET /api/v1/admin/tools
func (h *ToolHandler) AdminList(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	tools, err := h.toolService.AdminList(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tools)
}

// Create 新建工具
// POST /api/v1/admin/tools
func (h *ToolHandler) Create(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req dto.ToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	tool, err := h.toolService.Create(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "创建成功", tool)
}

// Update 修改工具
// PUT /api/v1/admin/tools/:id
func (h *ToolHandler) Update(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	toolID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	tool, err := h.toolService.Update(id, toolID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "更新成功", tool)
}
