package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/model"
)

type SystemLogRepository struct {
	db *gorm.DB
}

func NewSystemLogRepository(db *gorm.DB) *SystemLogRepository {
	return &SystemLogRepository{db: db}
}

func (r *SystemLogRepository) Create(entry *model.SystemLog) error {
	return r.db.Create(entry).Error
}

// List 分页查询日志，level 为空时不过滤
func (r *SystemLogRepository) List(page, pageSize int, level string) ([]*model.SystemLog, int64, error) {
	var logs []*model.SystemLog
	var total int64

	query := r.db.Model(&model.SystemLog{})
	if level != "" {
		query = query.Where("level = ?", level)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// CountBefore 统计某时间之前的日志数
func (r *SystemLogRepository) CountBefore(before time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.SystemLog{}).Where("created_at < ?", before).Count(&count).Error
	return count, err
}

// ListBefore 按时间顺序查询某时间之前的日志（归档用）
func (r *SystemLogRepository) ListBefore(before time.Time, limit int) ([]*model.SystemLog, error) {
	var logs []*model.SystemLog
	err := r.db.Where("created_at < ?", before).Order("id ASC").Limit(limit).Find(&logs).Error
	return logs, err
}

// DeleteUpTo 删除 id 不大于 maxID 且早于 before 的日志
func (r *SystemLogRepository) DeleteUpTo(maxID int64, before time.Time) (int64, error) {
	result := r.db.Where("id <= ? AND created_at < ?", maxID, before).Delete(&model.SystemLog{})
	return result.RowsAffected, result.Error
}
