package repository

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/toolbox_server/internal/model"
)

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) WithTx(tx *gorm.DB) *UsageRepository {
	return &UsageRepository{db: tx}
}

func (r *UsageRepository) Create(usage *model.ToolUsage) error {
	return r.db.Omit("Tool").Create(usage).Error
}

// GetByUser 查询属于该用户的使用记录
func (r *UsageRepository) GetByUser(id, userID int64) (*model.ToolUsage, error) {
	var usage model.ToolUsage
	err := r.db.Preload("Tool").Where("id = ? AND user_id = ?", id, userID).First(&usage).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// CountInPeriod 统计用户某工具在周期内的使用次数，所有状态都计入
func (r *UsageRepository) CountInPeriod(userID, toolID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.ToolUsage{}).
		Where("user_id = ? AND tool_id = ? AND started_at >= ?", userID, toolID, since).
		Count(&count).Error
	return count, err
}

// CountByToolInPeriod 统计用户周期内每个工具的使用次数
func (r *UsageRepository) CountByToolInPeriod(userID int64, since time.Time) (map[int64]int64, error) {
	var rows []struct {
		ToolID int64
		Count  int64
	}
	err := r.db.Model(&model.ToolUsage{}).
		Select("tool_id, COUNT(*) AS count").
		Where("user_id = ? AND started_at >= ?", userID, since).
		Group("tool_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[int64]int64, len(rows))
	for _, row := range rows {
		result[row.ToolID] = row.Count
	}
	return result, nil
}

// MarkInProgress STARTED -> IN_PROGRESS，返回是否更新
func (r *UsageRepository) MarkInProgress(id, userID int64) (bool, error) {
	result := r.db.Model(&model.ToolUsage{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, model.UsageStarted).
		Update("status", model.UsageInProgress)
	return result.RowsAffected > 0, result.Error
}

// Finish 写入终态，只对未结束的记录生效，返回是否更新
func (r *UsageRepository) Finish(id, userID int64, status model.UsageStatus, resultData datatypes.JSON, completedAt time.Time) (bool, error) {
	fields := map[string]interface{}{
		"status":       status,
		"completed_at": completedAt,
	}
	if resultData != nil {
		fields["result_data"] = resultData
	}

	result := r.db.Model(&model.ToolUsage{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, model.OpenUsageStatuses).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// ListByUser 分页查询用户使用历史
func (r *UsageRepository) ListByUser(userID int64, page, pageSize int) ([]*model.ToolUsage, int64, error) {
	var usages []*model.ToolUsage
	var total int64

	query := r.db.Model(&model.ToolUsage{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Preload("Tool").Order("started_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&usages).Error; err != nil {
		return nil, 0, err
	}

	return usages, total, nil
}

// UserStats 用户使用统计
type UserStats struct {
	TotalUsages     int64
	DistinctTools   int64
	CompletedUsages int64
	OpenUsages      int64
}

func (r *UsageRepository) StatsByUser(userID int64) (*UserStats, error) {
	stats := &UserStats{}
	base := func() *gorm.DB {
		return r.db.Model(&model.ToolUsage{}).Where("user_id = ?", userID)
	}

	if err := base().Count(&stats.TotalUsages).Error; err != nil {
		return nil, err
	}
	if err := base().Distinct("tool_id").Count(&stats.DistinctTools).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", model.UsageCompleted).Count(&stats.CompletedUsages).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status IN ?", model.OpenUsageStatuses).Count(&stats.OpenUsages).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *UsageRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.ToolUsage{}).Count(&count).Error
	return count, err
}

// ToolUsageCount 每个工具的使用次数
type ToolUsageCount struct {
	ToolID     int64  `json:"tool_id"`
	ToolName   string `json:"tool_name"`
	UsageCount int64  `json:"usage_count"`
}

// CountPerTool 统计每个工具的使用次数（包含未被使用的工具）
func (r *UsageRepository) CountPerTool() ([]*ToolUsageCount, error) {
	var rows []*ToolUsageCount
	err := r.db.Table("tools").
		Select("tools.id AS tool_id, tools.name AS tool_name, COUNT(tool_usages.id) AS usage_count").
		Joins("LEFT JOIN tool_usages ON tool_usages.tool_id = tools.id").
		Group("tools.id, tools.name").
		Order("usage_count DESC, tools.id ASC").
		Scan(&rows).Error
	return rows, err
}

// UserUsageCount 用户使用次数排行
type UserUsageCount struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	UsageCount int64  `json:"usage_count"`
}

func (r *UsageRepository) TopUsers(limit int) ([]*UserUsageCount, error) {
	var rows []*UserUsageCount
	err := r.db.Table("tool_usages").
		Select("users.id AS user_id, users.email AS email, users.full_name AS full_name, COUNT(tool_usages.id) AS usage_count").
		Joins("JOIN users ON users.id = tool_usages.user_id").
		Group("users.id, users.email, users.full_name").
		Order("usage_count DESC, users.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// SaveProgress 保存草稿，同一用户同一工具只保留一份
func (r *UsageRepository) SaveProgress(progress *model.SavedProgress) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "tool_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"form_data", "saved_at"}),
	}).Create(progress).Error
}

func (r *UsageRepository) GetProgress(userID, toolID int64) (*model.SavedProgress, error) {
	var progress model.SavedProgress
	err := r.db.Where("user_id = ? AND tool_id = ?", userID, toolID).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}
