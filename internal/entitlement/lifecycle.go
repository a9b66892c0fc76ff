package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/toolbox_server/internal/model"
)

var ErrInvalidTransition = errors.New("invalid subscription transition")

// Transition 订阅状态变更
type Transition struct {
	From model.SubscriptionStatus
	To   model.SubscriptionStatus
}

// canceled 为终态
var validTransitions = map[Transition]bool{
	{model.SubscriptionTrialing, model.SubscriptionActive}:   true,
	{model.SubscriptionTrialing, model.SubscriptionPastDue}:  true,
	{model.SubscriptionTrialing, model.SubscriptionCanceled}: true,
	{model.SubscriptionActive, model.SubscriptionPastDue}:    true,
	{model.SubscriptionActive, model.SubscriptionCanceled}:   true,
	{model.SubscriptionPastDue, model.SubscriptionActive}:    true,
	{model.SubscriptionPastDue, model.SubscriptionCanceled}:  true,
}

// CanTransition 判断状态能否从 from 变为 to，相同状态视为刷新
func CanTransition(from, to model.SubscriptionStatus) bool {
	if from == to {
		return from != model.SubscriptionCanceled
	}
	return validTransitions[Transition{From: from, To: to}]
}

// EventType 驱动订阅变化的外部事件
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout_completed"
	EventTrialConverted    EventType = "trial_converted"
	EventPaymentFailed     EventType = "payment_failed"
	EventPaymentRecovered  EventType = "payment_recovered"
	EventGraceExpired      EventType = "grace_expired"
	EventCancelImmediately EventType = "cancel_immediately"
	EventCancelAtPeriodEnd EventType = "cancel_at_period_end"
	EventReactivate        EventType = "reactivate"
	EventPeriodElapsed     EventType = "period_elapsed"
)

type Event struct {
	Type EventType
	// EventCheckoutCompleted 使用：试用截止时间，为空表示无试用
	TrialEnd *time.Time
	// 最新的当前周期结束时间，可为空
	PeriodEnd *time.Time
}

// NewSubscription 结账完成后创建订阅，试用期未结束时为 trialing
func NewSubscription(userID, planID int64, interval model.BillingInterval, ev Event, now time.Time) (*model.Subscription, error) {
	if ev.Type != EventCheckoutCompleted {
		return nil, fmt.Errorf("%w: %s cannot create a subscription", ErrInvalidTransition, ev.Type)
	}
	sub := &model.Subscription{
		UserID:           userID,
		PlanID:           planID,
		Status:           model.SubscriptionActive,
		BillingInterval:  interval,
		StartDate:        now,
		CurrentPeriodEnd: ev.PeriodEnd,
	}
	if ev.TrialEnd != nil && ev.TrialEnd.After(now) {
		sub.Status = model.SubscriptionTrialing
		sub.TrialEnd = ev.TrialEnd
	}
	return sub, nil
}

// Apply 将事件应用到订阅上，事件不适用时返回 ErrInvalidTransition 且不修改订阅
func Apply(sub *model.Subscription, ev Event, now time.Time) error {
	next := *sub

	switch ev.Type {
	case EventTrialConverted:
		if sub.Status != model.SubscriptionTrialing {
			return invalid(sub, ev)
		}
		next.Status = model.SubscriptionActive
	case EventPaymentFailed:
		next.Status = model.SubscriptionPastDue
	case EventPaymentRecovered:
		if sub.Status != model.SubscriptionPastDue {
			return invalid(sub, ev)
		}
		next.Status = model.SubscriptionActive
	case EventGraceExpired:
		if sub.Status != model.SubscriptionPastDue {
			return invalid(sub, ev)
		}
		next.Status = model.SubscriptionCanceled
		next.EndDate = &now
	case EventCancelImmediately:
		next.Status = model.SubscriptionCanceled
		next.EndDate = &now
		next.CancelAtPeriodEnd = false
	case EventCancelAtPeriodEnd:
		if sub.Status == model.SubscriptionCanceled {
			return invalid(sub, ev)
		}
		next.CancelAtPeriodEnd = true
	case EventReactivate:
		if sub.Status == model.SubscriptionCanceled || !sub.CancelAtPeriodEnd {
			return invalid(sub, ev)
		}
		if sub.CurrentPeriodEnd != nil && !now.Before(*sub.CurrentPeriodEnd) {
			return invalid(sub, ev)
		}
		next.CancelAtPeriodEnd = false
	case EventPeriodElapsed:
		if !sub.CancelAtPeriodEnd {
			return invalid(sub, ev)
		}
		end := now
		if sub.CurrentPeriodEnd != nil {
			end = *sub.CurrentPeriodEnd
		}
		next.Status = model.SubscriptionCanceled
		next.EndDate = &end
		next.CancelAtPeriodEnd = false
	default:
		return invalid(sub, ev)
	}

	if !CanTransition(sub.Status, next.Status) {
		return invalid(sub, ev)
	}
	if ev.PeriodEnd != nil && next.Status != model.SubscriptionCanceled {
		next.CurrentPeriodEnd = ev.PeriodEnd
	}

	*sub = next
	return nil
}

func invalid(sub *model.Subscription, ev Event) error {
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Type, sub.Status)
}

// EventsForRemote 将支付方报告的订阅状态映射为需要依次应用的事件
func EventsForRemote(sub *model.Subscription, remote model.SubscriptionStatus, cancelAtPeriodEnd bool) []Event {
	if sub.Status == model.SubscriptionCanceled {
		return nil
	}

	var events []Event
	switch remote {
	case model.SubscriptionCanceled:
		return []Event{{Type: EventCancelImmediately}}
	case model.SubscriptionPastDue:
		if sub.Status != model.SubscriptionPastDue {
			events = append(events, Event{Type: EventPaymentFailed})
		}
	case model.SubscriptionActive:
		switch sub.Status {
		case model.SubscriptionTrialing:
			events = append(events, Event{Type: EventTrialConverted})
		case model.SubscriptionPastDue:
			events = append(events, Event{Type: EventPaymentRecovered})
		}
	}

	if cancelAtPeriodEnd && !sub.CancelAtPeriodEnd {
		events = append(events, Event{Type: EventCancelAtPeriodEnd})
	}
	if !cancelAtPeriodEnd && sub.CancelAtPeriodEnd {
		events = append(events, Event{Type: EventReactivate})
	}
	return events
}
