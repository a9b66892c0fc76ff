package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/testutil"
)

func TestUsageService_StartUsage_ChargesOnStart(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	// 只开始不完成，次数照样扣除
	var last *dto.StartUsageResponse
	for i := 0; i < 3; i++ {
		resp, err := env.usage.StartUsage(ctx, id, tool.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, model.UsageStarted, resp.Usage.Status)
		last = resp
	}
	assert.Equal(t, entitlement.RemainingCount(2), last.RemainingUses)

	events := env.publisher.all()
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[2].Remaining)

	access, err := env.quota.GetToolAccess(id, tool.ID)
	require.NoError(t, err)
	assert.True(t, access.Access.HasAccess)
	assert.Equal(t, entitlement.RemainingCount(2), access.Access.RemainingUses)
}

func TestUsageService_StartUsage_FreeLimitReached(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		resp, err := env.usage.StartUsage(ctx, id, tool.ID, json.RawMessage(`{"n":1}`))
		require.NoError(t, err)
		// 失败的调用同样计数
		if i%2 == 0 {
			_, err = env.usage.FailUsage(ctx, id, resp.Usage.ID, nil)
			require.NoError(t, err)
		}
	}

	_, err := env.usage.StartUsage(ctx, id, tool.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEntitlementDenied))

	var denied *EntitlementDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, entitlement.ReasonUsageLimitReached, denied.Reason)
	assert.False(t, denied.Decision.HasAccess)
	assert.Equal(t, entitlement.RemainingCount(0), denied.Decision.RemainingUses)

	count, err := env.usageRepo.CountInPeriod(user.ID, tool.ID, entitlement.PeriodStart(time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestUsageService_StartUsage_PreviousMonthNotCounted(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 2)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	env.at(now)
	testutil.TestUsage(t, env.db, user.ID, tool.ID, model.UsageCompleted, time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC))
	testutil.TestUsage(t, env.db, user.ID, tool.ID, model.UsageCompleted, time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC))

	resp, err := env.usage.StartUsage(context.Background(), Identity{UserID: user.ID}, tool.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, entitlement.RemainingCount(1), resp.RemainingUses)
}

func TestUsageService_StartUsage_ProUnlimitedPremium(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	pro := testutil.TestPlan(t, env.db, "Pro", entitlement.Unlimited)
	user := testutil.TestUser(t, env.db)
	testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionActive)
	tool := testutil.TestTool(t, env.db, testutil.WithPremium())
	id := Identity{UserID: user.ID}

	for i := 0; i < 20; i++ {
		resp, err := env.usage.StartUsage(context.Background(), id, tool.ID, nil)
		require.NoError(t, err)
		assert.True(t, resp.RemainingUses.Unlimited)
	}

	access, err := env.quota.GetToolAccess(id, tool.ID)
	require.NoError(t, err)
	assert.True(t, access.Access.HasAccess)
	assert.Nil(t, access.Access.Reason)
	assert.True(t, access.Access.RemainingUses.Unlimited)
}

func TestUsageService_StartUsage_PremiumRequiresSubscription(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db, testutil.WithPremium())

	_, err := env.usage.StartUsage(context.Background(), Identity{UserID: user.ID}, tool.ID, nil)
	var denied *EntitlementDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, entitlement.ReasonRequiresSubscription, denied.Reason)
}

func TestUsageService_StartUsage_PastDuePolicy(t *testing.T) {
	tests := []struct {
		name            string
		pastDueEntitled bool
		wantReason      string
	}{
		{name: "entitled", pastDueEntitled: true},
		{name: "falls back to free", pastDueEntitled: false, wantReason: entitlement.ReasonRequiresSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			env.cfg.Entitlement.PastDueEntitled = tt.pastDueEntitled
			testutil.TestFreePlan(t, env.db, 5)
			pro := testutil.TestPlan(t, env.db, "Pro", entitlement.Unlimited)
			user := testutil.TestUser(t, env.db)
			testutil.TestSubscription(t, env.db, user.ID, pro.ID, model.SubscriptionPastDue)
			tool := testutil.TestTool(t, env.db, testutil.WithPremium())

			_, err := env.usage.StartUsage(context.Background(), Identity{UserID: user.ID}, tool.ID, nil)
			if tt.wantReason == "" {
				require.NoError(t, err)
				return
			}
			var denied *EntitlementDeniedError
			require.True(t, errors.As(err, &denied))
			assert.Equal(t, tt.wantReason, denied.Reason)
		})
	}
}

func TestUsageService_StartUsage_InactiveTool(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db, testutil.WithInactiveTool())

	_, err := env.usage.StartUsage(context.Background(), Identity{UserID: user.ID}, tool.ID, nil)
	var denied *EntitlementDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, entitlement.ReasonToolUnavailable, denied.Reason)
}

func TestUsageService_StartUsage_Errors(t *testing.T) {
	env := setupEnv(t)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	// 缺少 Free 套餐
	_, err := env.usage.StartUsage(ctx, id, tool.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	testutil.TestFreePlan(t, env.db, 5)

	_, err = env.usage.StartUsage(ctx, id, 99999, nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.usage.StartUsage(ctx, id, tool.ID, json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	count, err := env.usageRepo.CountInPeriod(user.ID, tool.ID, entitlement.PeriodStart(time.Now().UTC()))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUsageService_StartUsage_Concurrent(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 3)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	id := Identity{UserID: user.ID}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.usage.StartUsage(context.Background(), id, tool.ID, nil); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
}

func TestUsageService_CompleteUsage_Idempotent(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	resp, err := env.usage.StartUsage(ctx, id, tool.ID, nil)
	require.NoError(t, err)

	item, err := env.usage.MarkInProgress(ctx, id, resp.Usage.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UsageInProgress, item.Status)

	item, err = env.usage.CompleteUsage(ctx, id, resp.Usage.ID, json.RawMessage(`{"rows":42}`))
	require.NoError(t, err)
	assert.Equal(t, model.UsageCompleted, item.Status)
	assert.NotEmpty(t, item.CompletedAt)
	assert.JSONEq(t, `{"rows":42}`, string(item.ResultData))

	// 重复完成或改为失败都不生效
	_, err = env.usage.CompleteUsage(ctx, id, resp.Usage.ID, json.RawMessage(`{"rows":0}`))
	assert.ErrorIs(t, err, ErrUsageNotFound)
	_, err = env.usage.FailUsage(ctx, id, resp.Usage.ID, nil)
	assert.ErrorIs(t, err, ErrUsageNotFound)

	got, err := env.usage.Get(id, resp.Usage.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UsageCompleted, got.Status)
	assert.JSONEq(t, `{"rows":42}`, string(got.ResultData))

	// 次数不退回
	access, err := env.quota.GetToolAccess(id, tool.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.RemainingCount(4), access.Access.RemainingUses)
}

func TestUsageService_UsageBelongsToOwner(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	owner := testutil.TestUser(t, env.db)
	other := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	ctx := context.Background()

	resp, err := env.usage.StartUsage(ctx, Identity{UserID: owner.ID}, tool.ID, nil)
	require.NoError(t, err)

	_, err = env.usage.CompleteUsage(ctx, Identity{UserID: other.ID}, resp.Usage.ID, nil)
	assert.ErrorIs(t, err, ErrUsageNotFound)
	_, err = env.usage.Get(Identity{UserID: other.ID}, resp.Usage.ID)
	assert.ErrorIs(t, err, ErrUsageNotFound)
}

func TestUsageService_UpdateStatus(t *testing.T) {
	env := setupEnv(t)
	testutil.TestFreePlan(t, env.db, 5)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	id := Identity{UserID: user.ID}
	ctx := context.Background()

	resp, err := env.usage.StartUsage(ctx, id, tool.ID, nil)
	require.NoError(t, err)

	_, err = env.usage.UpdateStatus(ctx, id, resp.Usage.ID, &dto.UpdateUsageRequest{Status: model.UsageStarted})
	assert.ErrorIs(t, err, ErrInvalidUsageStatus)

	_, err = env.usage.UpdateStatus(ctx, id, resp.Usage.ID, &dto.UpdateUsageRequest{Status: model.UsageInProgress})
	require.NoError(t, err)

	item, err := env.usage.UpdateStatus(ctx, id, resp.Usage.ID, &dto.UpdateUsageRequest{
		Status:     model.UsageFailed,
		ResultData: json.RawMessage(`{"error":"timeout"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, model.UsageFailed, item.Status)

	events := env.publisher.all()
	require.Len(t, events, 3)
	assert.Equal(t, string(model.UsageStarted), events[0].Status)
	assert.Equal(t, "4", events[0].Remaining)
	// 状态变化事件不携带剩余次数
	assert.Equal(t, string(model.UsageInProgress), events[1].Status)
	assert.Empty(t, events[1].Remaining)
	assert.Equal(t, string(model.UsageFailed), events[2].Status)
	assert.Empty(t, events[2].Remaining)
}

func TestUsageService_History(t *testing.T) {
	env := setupEnv(t)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		testutil.TestUsage(t, env.db, user.ID, tool.ID, model.UsageCompleted, now.Add(-time.Duration(i)*time.Hour))
	}

	items, total, err := env.usage.ListHistory(Identity{UserID: user.ID}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	assert.Equal(t, tool.Name, items[0].ToolName)
}

func TestUsageService_Progress(t *testing.T) {
	env := setupEnv(t)
	user := testutil.TestUser(t, env.db)
	tool := testutil.TestTool(t, env.db)
	id := Identity{UserID: user.ID}

	_, err := env.usage.GetSavedProgress(id, tool.ID)
	assert.ErrorIs(t, err, ErrProgressNotFound)

	_, err = env.usage.SaveProgress(id, tool.ID, json.RawMessage(`{"step":1}`))
	require.NoError(t, err)
	_, err = env.usage.SaveProgress(id, tool.ID, json.RawMessage(`{"step":2}`))
	require.NoError(t, err)

	got, err := env.usage.GetSavedProgress(id, tool.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":2}`, string(got.FormData))

	_, err = env.usage.SaveProgress(id, 99999, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrToolNotFound)
	_, err = env.usage.SaveProgress(id, tool.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
