package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/metrics"
	"github.com/qs3c/toolbox_server/internal/pkg/pubsub"
	"github.com/qs3c/toolbox_server/internal/repository"
)

// UsagePublisher 发布工具调用状态变化
type UsagePublisher interface {
	PublishUsage(ctx context.Context, ev *pubsub.UsageEvent) error
}

// UsageService 工具调用流程：判定、计费、状态流转
type UsageService struct {
	db        *gorm.DB
	userRepo  *repository.UserRepository
	toolRepo  *repository.ToolRepository
	usageRepo *repository.UsageRepository
	quota     *QuotaService
	publisher UsagePublisher
	metrics   *metrics.Metrics
	cfg       *config.Config
	now       func() time.Time
}

func NewUsageService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	toolRepo *repository.ToolRepository,
	usageRepo *repository.UsageRepository,
	quota *QuotaService,
	publisher UsagePublisher,
	cfg *config.Config,
) *UsageService {
	return &UsageService{
		db:        db,
		userRepo:  userRepo,
		toolRepo:  toolRepo,
		usageRepo: usageRepo,
		quota:     quota,
		publisher: publisher,
		metrics:   metrics.Get(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartUsage 判定权益并创建 STARTED 记录，次数在开始时扣除
func (s *UsageService) StartUsage(ctx context.Context, id Identity, toolID int64, input json.RawMessage) (*dto.StartUsageResponse, error) {
	inputData, err := opaqueJSON(input)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		usage    *model.ToolUsage
		tool     *model.Tool
		decision entitlement.Decision
	)

	// 计数与写入在同一事务内，保证同一用户下一次判定能看到本次记录
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.cfg.Entitlement.SerializeStarts {
			if _, err := s.userRepo.WithTx(tx).LockByID(id.UserID); err != nil {
				return lookup("lock user", err, ErrUserNotFound)
			}
		}

		var err error
		tool, err = s.toolRepo.WithTx(tx).GetByID(toolID)
		if err != nil {
			return lookup("get tool", err, ErrToolNotFound)
		}

		r, err := s.quota.resolve(tx, id.UserID, now)
		if err != nil {
			return err
		}

		usageRepo := s.usageRepo.WithTx(tx)
		count, err := usageRepo.CountInPeriod(id.UserID, tool.ID, entitlement.PeriodStart(now))
		if err != nil {
			return upstream("count usage", err)
		}

		decision = entitlement.Evaluate(entitlement.Input{
			Plan:       r.limits,
			Tool:       entitlement.ToolStateOf(tool),
			UsageCount: int(count),
		})
		if !decision.HasAccess {
			return &EntitlementDeniedError{Reason: *decision.Reason, Decision: decision}
		}

		usage = &model.ToolUsage{
			UserID:    id.UserID,
			ToolID:    tool.ID,
			Status:    model.UsageStarted,
			InputData: inputData,
			StartedAt: now,
		}
		if err := usageRepo.Create(usage); err != nil {
			return upstream("create usage", err)
		}
		return nil
	})
	if err != nil {
		var denied *EntitlementDeniedError
		if errors.As(err, &denied) {
			s.metrics.EntitlementDenied(denied.Reason)
		}
		return nil, err
	}

	remaining := decision.RemainingUses
	if !remaining.Unlimited {
		remaining = entitlement.RemainingCount(remaining.Count - 1)
	}

	s.metrics.UsageStarted(tool.Name)
	s.publish(ctx, usage, &remaining)

	usage.Tool = tool
	return &dto.StartUsageResponse{
		Usage:         buildUsageItem(usage),
		RemainingUses: remaining,
	}, nil
}

// MarkInProgress STARTED -> IN_PROGRESS
func (s *UsageService) MarkInProgress(ctx context.Context, id Identity, usageID int64) (*dto.UsageItem, error) {
	ok, err := s.usageRepo.MarkInProgress(usageID, id.UserID)
	if err != nil {
		return nil, upstream("mark usage in progress", err)
	}
	if !ok {
		return nil, ErrUsageNotFound
	}
	return s.reload(ctx, id, usageID)
}

// CompleteUsage 结束为 COMPLETED，只对未结束的记录生效
func (s *UsageService) CompleteUsage(ctx context.Context, id Identity, usageID int64, result json.RawMessage) (*dto.UsageItem, error) {
	return s.finish(ctx, id, usageID, model.UsageCompleted, result)
}

// FailUsage 结束为 FAILED，仍然计入次数
func (s *UsageService) FailUsage(ctx context.Context, id Identity, usageID int64, errorInfo json.RawMessage) (*dto.UsageItem, error) {
	return s.finish(ctx, id, usageID, model.UsageFailed, errorInfo)
}

// UpdateStatus 按请求状态分发
func (s *UsageService) UpdateStatus(ctx context.Context, id Identity, usageID int64, req *dto.UpdateUsageRequest) (*dto.UsageItem, error) {
	switch req.Status {
	case model.UsageInProgress:
		return s.MarkInProgress(ctx, id, usageID)
	case model.UsageCompleted:
		return s.CompleteUsage(ctx, id, usageID, req.ResultData)
	case model.UsageFailed:
		return s.FailUsage(ctx, id, usageID, req.ResultData)
	default:
		return nil, ErrInvalidUsageStatus
	}
}

func (s *UsageService) finish(ctx context.Context, id Identity, usageID int64, status model.UsageStatus, payload json.RawMessage) (*dto.UsageItem, error) {
	data, err := opaqueJSON(payload)
	if err != nil {
		return nil, err
	}

	ok, err := s.usageRepo.Finish(usageID, id.UserID, status, data, s.now())
	if err != nil {
		return nil, upstream("finish usage", err)
	}
	if !ok {
		return nil, ErrUsageNotFound
	}

	item, err := s.reload(ctx, id, usageID)
	if err != nil {
		return nil, err
	}
	s.metrics.UsageFinished(item.ToolName, string(status))
	return item, nil
}

func (s *UsageService) reload(ctx context.Context, id Identity, usageID int64) (*dto.UsageItem, error) {
	usage, err := s.usageRepo.GetByUser(usageID, id.UserID)
	if err != nil {
		return nil, lookup("get usage", err, ErrUsageNotFound)
	}
	// 次数在 start 时已扣除，状态变化不影响剩余次数，事件里不带 remaining_uses
	s.publish(ctx, usage, nil)
	return buildUsageItem(usage), nil
}

// Get 单条使用记录
func (s *UsageService) Get(id Identity, usageID int64) (*dto.UsageItem, error) {
	usage, err := s.usageRepo.GetByUser(usageID, id.UserID)
	if err != nil {
		return nil, lookup("get usage", err, ErrUsageNotFound)
	}
	return buildUsageItem(usage), nil
}

// ListHistory 分页查询使用历史
func (s *UsageService) ListHistory(id Identity, page, pageSize int) ([]*dto.UsageItem, int64, error) {
	usages, total, err := s.usageRepo.ListByUser(id.UserID, page, pageSize)
	if err != nil {
		return nil, 0, upstream("list usage", err)
	}

	items := make([]*dto.UsageItem, 0, len(usages))
	for _, u := range usages {
		items = append(items, buildUsageItem(u))
	}
	return items, total, nil
}

// SaveProgress 保存草稿，与配额无关
func (s *UsageService) SaveProgress(id Identity, toolID int64, formData json.RawMessage) (*dto.ProgressResponse, error) {
	data, err := opaqueJSON(formData)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrInvalidPayload
	}

	if _, err := s.toolRepo.GetByID(toolID); err != nil {
		return nil, lookup("get tool", err, ErrToolNotFound)
	}

	progress := &model.SavedProgress{
		UserID:   id.UserID,
		ToolID:   toolID,
		FormData: data,
		SavedAt:  s.now(),
	}
	if err := s.usageRepo.SaveProgress(progress); err != nil {
		return nil, upstream("save progress", err)
	}
	return buildProgress(progress), nil
}

// GetSavedProgress 读取草稿
func (s *UsageService) GetSavedProgress(id Identity, toolID int64) (*dto.ProgressResponse, error) {
	progress, err := s.usageRepo.GetProgress(id.UserID, toolID)
	if err != nil {
		return nil, lookup("get progress", err, ErrProgressNotFound)
	}
	return buildProgress(progress), nil
}

func (s *UsageService) publish(ctx context.Context, usage *model.ToolUsage, remaining *entitlement.Remaining) {
	if s.publisher == nil {
		return
	}
	ev := &pubsub.UsageEvent{
		UserID:  usage.UserID,
		UsageID: usage.ID,
		ToolID:  usage.ToolID,
		Status:  string(usage.Status),
	}
	if remaining != nil {
		ev.Remaining = remaining.String()
	}
	if err := s.publisher.PublishUsage(ctx, ev); err != nil {
		log.Warn().Err(err).Int64("usage_id", usage.ID).Msg("failed to publish usage event")
	}
}

func buildProgress(p *model.SavedProgress) *dto.ProgressResponse {
	return &dto.ProgressResponse{
		ToolID:   p.ToolID,
		FormData: json.RawMessage(p.FormData),
		SavedAt:  formatTime(p.SavedAt),
	}
}

// opaqueJSON 校验客户端数据是合法 JSON，空值返回 nil
func opaqueJSON(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, ErrInvalidPayload
	}
	return datatypes.JSON(raw), nil
}
