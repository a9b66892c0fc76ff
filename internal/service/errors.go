package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/entitlement"
)

var (
	ErrNotFound             = errors.New("资源不存在")
	ErrEntitlementDenied    = errors.New("无权使用该工具")
	ErrInvalidConfiguration = errors.New("配置不合法")
	ErrUpstreamUnavailable  = errors.New("依赖服务暂不可用")
	ErrPermissionDenied     = errors.New("权限不足")
	ErrInvalidParam         = errors.New("参数错误")
	ErrDuplicate            = errors.New("重复操作")
)

var (
	ErrUserNotFound         = fmt.Errorf("%w: 用户不存在", ErrNotFound)
	ErrToolNotFound         = fmt.Errorf("%w: 工具不存在", ErrNotFound)
	ErrPlanNotFound         = fmt.Errorf("%w: 套餐不存在", ErrNotFound)
	ErrUsageNotFound        = fmt.Errorf("%w: 使用记录不存在或已结束", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("%w: 没有有效的订阅", ErrNotFound)
	ErrProgressNotFound     = fmt.Errorf("%w: 没有保存的草稿", ErrNotFound)
	ErrNoBillingAccount     = fmt.Errorf("%w: 尚未创建付费账户", ErrNotFound)
)

var (
	ErrEmailExists        = fmt.Errorf("%w: 邮箱已被注册", ErrDuplicate)
	ErrPlanNameExists     = fmt.Errorf("%w: 套餐名称已存在", ErrDuplicate)
	ErrToolNameExists     = fmt.Errorf("%w: 工具名称已存在", ErrDuplicate)
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrEmailNotVerified   = errors.New("邮箱尚未验证")
	ErrInvalidVerifyCode  = errors.New("验证码无效或已过期")
	ErrUserDisabled       = errors.New("账号已被停用")
	ErrInvalidRefresh     = errors.New("refresh token 无效或已过期")
	ErrOAuthDisabled      = fmt.Errorf("%w: 未配置 GitHub 登录", ErrInvalidConfiguration)
	ErrOAuthNoEmail       = errors.New("GitHub 账号没有已验证的邮箱")
	ErrWrongPassword      = fmt.Errorf("%w: 当前密码错误", ErrInvalidParam)
	ErrInvalidOAuthState  = fmt.Errorf("%w: 登录状态无效或已过期", ErrInvalidParam)
	ErrInvalidResetToken  = fmt.Errorf("%w: 重置链接无效或已过期", ErrInvalidParam)
)

var (
	ErrPlanNotPurchasable  = fmt.Errorf("%w: 该套餐不可购买", ErrInvalidParam)
	ErrFreePlanProtected   = fmt.Errorf("%w: Free 套餐不能改名或下架", ErrInvalidConfiguration)
	ErrInvalidToolLimit    = fmt.Errorf("%w: tool_limit 必须大于等于 -1", ErrInvalidConfiguration)
	ErrInvalidPrice        = fmt.Errorf("%w: 价格不能为负数", ErrInvalidConfiguration)
	ErrInvalidIcon         = fmt.Errorf("%w: 不支持的图标", ErrInvalidParam)
	ErrInvalidUsageStatus  = fmt.Errorf("%w: 不支持的状态", ErrInvalidParam)
	ErrInvalidPayload      = fmt.Errorf("%w: 数据必须是合法的 JSON", ErrInvalidParam)
	ErrCheckoutIncomplete  = fmt.Errorf("%w: 结账尚未完成", ErrInvalidParam)
	ErrCheckoutCanceled    = fmt.Errorf("%w: 该订阅已在支付平台取消", ErrInvalidParam)
	ErrCheckoutNotOwned    = fmt.Errorf("%w: 结账会话不属于当前用户", ErrPermissionDenied)
	ErrInvalidTransition   = fmt.Errorf("%w: 当前订阅状态不允许该操作", ErrInvalidParam)
	ErrCannotModifySelf    = fmt.Errorf("%w: 不能修改自己的账号状态", ErrPermissionDenied)
	ErrCannotModifyAdmin   = fmt.Errorf("%w: 不能停用管理员", ErrPermissionDenied)
	ErrPaymentNotAvailable = fmt.Errorf("%w: 未配置支付", ErrInvalidConfiguration)
)

// EntitlementDeniedError 权益判定拒绝，携带原因和判定结果
type EntitlementDeniedError struct {
	Reason   string
	Decision entitlement.Decision
}

func (e *EntitlementDeniedError) Error() string {
	return e.Reason
}

func (e *EntitlementDeniedError) Is(target error) bool {
	return target == ErrEntitlementDenied
}

// upstream 基础设施错误统一归类为 ErrUpstreamUnavailable
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

// lookup 记录不存在时返回 notFound，其他错误归为上游错误
func lookup(op string, err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return upstream(op, err)
}

// Identity 认证后的调用方身份
type Identity struct {
	UserID  int64
	IsAdmin bool
}

func requireAdmin(id Identity) error {
	if !id.IsAdmin {
		return ErrPermissionDenied
	}
	return nil
}
