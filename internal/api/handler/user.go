package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 获取当前用户信息
// GET /api/v1/user/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	profile, err := h.userService.GetProfile(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, profile)
}

// UpdateProfile 更新用户信息
// PUT /api/v1/user/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	profile, err := h.userService.UpdateProfile(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "更新成功", profile)
}

// Activity 最近使用记录
// GET /api/v1/user/activity
func (h *UserHandler) Activity(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	items, err := h.userService.Activity(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, items)
}

// Stats 使用统计
// GET /api/v1/user/stats
func (h *UserHandler) Stats(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	stats, err := h.userService.Stats(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, stats)
}
