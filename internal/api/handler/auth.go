package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "注册成功，请查收验证邮件", resp)
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req, clientInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

// Refresh 刷新令牌
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, clientInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Logout 退出登录
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已退出登录", nil)
}

// VerifyEmail 验证邮箱
// POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.VerifyEmail(c.Request.Context(), req.Code, clientInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "邮箱验证成功", resp)
}

// RequestPasswordReset 申请重置密码
// POST /api/v1/auth/password-reset-request
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "如果该邮箱已注册，您将收到重置密码的邮件", nil)
}

// ResetPassword 设置新密码
// POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "密码已重置", nil)
}

// GithubAuth 跳转到 GitHub 授权页
// GET /api/v1/auth/github?redirect_uri=xxx
func (h *AuthHandler) GithubAuth(c *gin.Context) {
	authURL, err := h.authService.GithubAuthURL(c.Request.Context(), c.Query("redirect_uri"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// GithubCallback GitHub 授权回调，有前端地址时把令牌放在 fragment 中跳回
// GET /api/v1/auth/github/callback?state=xxx&code=xxx
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		response.ParamError(c, "缺少 state 或 code")
		return
	}

	resp, redirectURI, err := h.authService.GithubCallback(c.Request.Context(), state, code, clientInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if redirectURI == "" {
		response.SuccessWithMessage(c, "登录成功", resp)
		return
	}

	fragment := url.Values{}
	fragment.Set("access_token", resp.AccessToken)
	fragment.Set("refresh_token", resp.RefreshToken)
	fragment.Set("expires_in", strconv.Itoa(resp.ExpiresIn))
	c.Redirect(http.StatusFound, redirectURI+"#"+fragment.Encode())
}
