package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess             = 0
	CodeParamError          = 1000
	CodeAuthFailed          = 1001
	CodePermissionDenied    = 1002
	CodeResourceNotFound    = 1003
	CodeEntitlementDenied   = 1004
	CodeDuplicateAction     = 1005
	CodeInvalidConfig       = 1006
	CodeRateLimited         = 1007
	CodeServerError         = 5000
	CodeUpstreamUnavailable = 5003
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:             "success",
	CodeParamError:          "参数错误",
	CodeAuthFailed:          "认证失败",
	CodePermissionDenied:    "权限不足",
	CodeResourceNotFound:    "资源不存在",
	CodeEntitlementDenied:   "无权使用该工具",
	CodeDuplicateAction:     "重复操作",
	CodeInvalidConfig:       "配置不合法",
	CodeRateLimited:         "请求过于频繁",
	CodeServerError:         "服务器内部错误",
	CodeUpstreamUnavailable: "依赖服务暂不可用，请稍后重试",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页数据结构
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, codeMessages[CodeSuccess], data)
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}

// SuccessPage 分页成功响应
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	Success(c, PageData{Total: total, Page: page, PageSize: pageSize, Items: items})
}

// Error 错误响应，HTTP 状态码固定为 200
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 携带数据的错误响应
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{Code: code, Message: message, Data: data})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// EntitlementError 无权使用，message 为拒绝原因，data 为判定结果
func EntitlementError(c *gin.Context, reason string, decision interface{}) {
	ErrorWithData(c, CodeEntitlementDenied, reason, decision)
}

// DuplicateError 重复操作
func DuplicateError(c *gin.Context, message string) {
	Error(c, CodeDuplicateAction, message)
}

// InvalidConfigError 配置不合法
func InvalidConfigError(c *gin.Context, message string) {
	Error(c, CodeInvalidConfig, message)
}

// RateLimitError 限流，使用 429 以便客户端识别 Retry-After
func RateLimitError(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, Response{
		Code:    CodeRateLimited,
		Message: codeMessages[CodeRateLimited],
	})
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// UpstreamError 依赖服务不可用，可重试
func UpstreamError(c *gin.Context, message string) {
	Error(c, CodeUpstreamUnavailable, message)
}
