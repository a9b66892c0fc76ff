// Package entitlement 判断用户当前能否使用某个工具，以及订阅状态如何流转。
// 包内只有纯函数，不做任何 I/O，可并发调用。
package entitlement

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/qs3c/toolbox_server/internal/model"
)

// 拒绝原因
const (
	ReasonToolUnavailable      = "tool unavailable"
	ReasonRequiresSubscription = "requires subscription"
	ReasonUsageLimitReached    = "usage limit reached"
)

// Unlimited 表示不限次数
const Unlimited = -1

// Remaining 剩余次数，序列化为数字或 "unlimited"
type Remaining struct {
	Count     int
	Unlimited bool
}

func UnlimitedRemaining() Remaining {
	return Remaining{Unlimited: true}
}

func RemainingCount(n int) Remaining {
	if n < 0 {
		n = 0
	}
	return Remaining{Count: n}
}

func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.Itoa(r.Count)), nil
}

func (r *Remaining) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("invalid remaining uses %q", s)
		}
		*r = UnlimitedRemaining()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RemainingCount(n)
	return nil
}

func (r Remaining) String() string {
	if r.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(r.Count)
}

// PlanLimits 判定所需的套餐信息
type PlanLimits struct {
	Name      string
	ToolLimit int
	IsFree    bool
}

// ToolState 判定所需的工具信息
type ToolState struct {
	IsActive  bool
	IsPremium bool
}

type Input struct {
	Plan       PlanLimits
	Tool       ToolState
	UsageCount int
}

// Decision 判定结果
type Decision struct {
	HasAccess     bool      `json:"has_access"`
	Reason        *string   `json:"reason"`
	RemainingUses Remaining `json:"remaining_uses"`
}

func deny(reason string) Decision {
	return Decision{HasAccess: false, Reason: &reason, RemainingUses: RemainingCount(0)}
}

// Evaluate 按固定顺序判定：工具下线 > 付费工具 > 不限次数 > 剩余次数
func Evaluate(in Input) Decision {
	if !in.Tool.IsActive {
		return deny(ReasonToolUnavailable)
	}
	if in.Tool.IsPremium && in.Plan.IsFree {
		return deny(ReasonRequiresSubscription)
	}
	if in.Plan.ToolLimit == Unlimited {
		return Decision{HasAccess: true, RemainingUses: UnlimitedRemaining()}
	}

	used := in.UsageCount
	if used < 0 {
		used = 0
	}
	remaining := in.Plan.ToolLimit - used
	if remaining > 0 {
		return Decision{HasAccess: true, RemainingUses: RemainingCount(remaining)}
	}
	return deny(ReasonUsageLimitReached)
}

// ValidToolLimit 套餐保存前校验，-1 表示不限
func ValidToolLimit(limit int) bool {
	return limit >= Unlimited
}

// Policy 订阅权益策略
type Policy struct {
	PastDueEntitled bool
}

// Entitled 订阅当前是否享有付费套餐
func (p Policy) Entitled(sub *model.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	if sub.EndDate != nil && !now.Before(*sub.EndDate) {
		return false
	}
	// 周期末取消且周期已结束，到期任务尚未处理
	if sub.CancelAtPeriodEnd && sub.CurrentPeriodEnd != nil && !now.Before(*sub.CurrentPeriodEnd) {
		return false
	}
	switch sub.Status {
	case model.SubscriptionActive, model.SubscriptionTrialing:
		return true
	case model.SubscriptionPastDue:
		return p.PastDueEntitled
	default:
		return false
	}
}

// ResolvePlan 返回订阅对应的套餐；没有订阅或订阅无效时回落到免费套餐
func ResolvePlan(sub *model.Subscription, paid *model.Plan, free *model.Plan, policy Policy, now time.Time) *model.Plan {
	if paid != nil && policy.Entitled(sub, now) {
		return paid
	}
	return free
}

// LimitsOf 将套餐转为判定输入
func LimitsOf(plan *model.Plan, freePlanName string) PlanLimits {
	return PlanLimits{
		Name:      plan.Name,
		ToolLimit: plan.ToolLimit,
		IsFree:    plan.Name == freePlanName,
	}
}

// ToolStateOf 将工具转为判定输入
func ToolStateOf(tool *model.Tool) ToolState {
	return ToolState{IsActive: tool.IsActive, IsPremium: tool.IsPremium}
}

// PeriodStart 计费周期起点：UTC 自然月
func PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextPeriodStart 下一个周期起点
func NextPeriodStart(now time.Time) time.Time {
	return PeriodStart(now).AddDate(0, 1, 0)
}
