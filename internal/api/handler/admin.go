package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

type AdminHandler struct {
	adminService *service.AdminService
	logService   *service.LogService
}

func NewAdminHandler(adminService *service.AdminService, logService *service.LogService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logService:   logService,
	}
}

// Stats 后台概览
// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	stats, err := h.adminService.Stats(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, stats)
}

// Users 用户列表
// GET /api/v1/admin/users?search=
func (h *AdminHandler) Users(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	items, total, err := h.adminService.ListUsers(id, page, pageSize, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Activate 启用用户
// POST /api/v1/admin/users/:id/activate
func (h *AdminHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate 停用用户
// POST /api/v1/admin/users/:id/deactivate
func (h *AdminHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// MakeAdmin 授予管理员
// POST /api/v1/admin/users/:id/make-admin
func (h *AdminHandler) MakeAdmin(c *gin.Context) {
	h.setAdmin(c, true)
}

// RemoveAdmin 撤销管理员
// POST /api/v1/admin/users/:id/remove-admin
func (h *AdminHandler) RemoveAdmin(c *gin.Context) {
	h.setAdmin(c, false)
}

func (h *AdminHandler) setActive(c *gin.Context, active bool) {
	id, ok := identity(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	user, err := h.adminService.SetActive(id, userID, active)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, user)
}

func (h *AdminHandler) setAdmin(c *gin.Context, admin bool) {
	id, ok := identity(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	user, err := h.adminService.SetAdmin(id, userID, admin)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, user)
}

// ToolUsage 各工具使用次数
// GET /api/v1/admin/tools/usage
func (h *AdminHandler) ToolUsage(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	rows, err := h.adminService.ToolUsage(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, rows)
}

// UserActivity 用户使用排行
// GET /api/v1/admin/users/activity
func (h *AdminHandler) UserActivity(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	resp, err := h.adminService.UserActivity(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Logs 系统日志
// GET /api/v1/admin/logs?level=
func (h *AdminHandler) Logs(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	items, total, err := h.logService.List(id, page, pageSize, c.Query("level"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
