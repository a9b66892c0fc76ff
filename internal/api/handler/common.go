package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/toolbox_server/internal/api/middleware"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// respondError 将 service 层错误映射为响应码
func respondError(c *gin.Context, err error) {
	var denied *service.EntitlementDeniedError
	switch {
	case errors.As(err, &denied):
		response.EntitlementError(c, denied.Reason, denied.Decision)
	case errors.Is(err, service.ErrUpstreamUnavailable):
		log.Warn().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString(middleware.RequestIDKey)).Msg("upstream unavailable")
		response.UpstreamError(c, "")
	case errors.Is(err, service.ErrNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrDuplicate):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrInvalidConfiguration):
		response.InvalidConfigError(c, err.Error())
	case errors.Is(err, service.ErrInvalidParam),
		errors.Is(err, service.ErrInvalidVerifyCode):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrEmailNotVerified),
		errors.Is(err, service.ErrUserDisabled),
		errors.Is(err, service.ErrInvalidRefresh),
		errors.Is(err, service.ErrOAuthNoEmail):
		response.AuthError(c, err.Error())
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString(middleware.RequestIDKey)).Msg("unhandled error")
		response.ServerError(c, "")
	}
}

// identity 获取调用方身份，未认证时直接返回错误响应
func identity(c *gin.Context) (service.Identity, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		response.AuthError(c, "")
	}
	return id, ok
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		response.ParamError(c, "无效的 "+name)
		return 0, false
	}
	return id, true
}

func clientInfo(c *gin.Context) dto.ClientInfo {
	return dto.ClientInfo{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}
