package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// Mine 当前订阅
// GET /api/v1/subscriptions/me
func (h *SubscriptionHandler) Mine(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	resp, err := h.subscriptionService.GetMine(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Checkout 创建支付会话
// POST /api/v1/subscriptions/checkout
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.subscriptionService.Checkout(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Confirm 支付完成后确认订阅
// POST /api/v1/subscriptions/confirm
func (h *SubscriptionHandler) Confirm(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req dto.ConfirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subscriptionService.ConfirmCheckout(c.Request.Context(), id, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "订阅已生效", sub)
}

// Cancel 取消订阅，默认周期末生效
// POST /api/v1/subscriptions/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subscriptionService.Cancel(c.Request.Context(), id, req.Immediately)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "订阅已取消", sub)
}

// Reactivate 撤销周期末取消
// POST /api/v1/subscriptions/reactivate
func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	sub, err := h.subscriptionService.Reactivate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "订阅已恢复", sub)
}

// BillingPortal 账单管理地址
// POST /api/v1/subscriptions/billing-portal
func (h *SubscriptionHandler) BillingPortal(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req dto.BillingPortalRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.subscriptionService.BillingPortal(c.Request.Context(), id, req.ReturnURL)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// AdminList 订阅列表
// GET /api/v1/admin/subscriptions?status=
func (h *SubscriptionHandler) AdminList(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	items, total, err := h.subscriptionService.AdminList(id, page, pageSize, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
