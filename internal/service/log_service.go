package service

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/repository"
)

// LogService 将需要在管理后台查看的事件写入 system_logs，同时输出到 zerolog
type LogService struct {
	logRepo *repository.SystemLogRepository
}

func NewLogService(logRepo *repository.SystemLogRepository) *LogService {
	return &LogService{logRepo: logRepo}
}

func (s *LogService) Info(source, message string, userID *int64, data map[string]interface{}) {
	s.record(model.LogLevelInfo, source, message, userID, data)
}

func (s *LogService) Warning(source, message string, userID *int64, data map[string]interface{}) {
	s.record(model.LogLevelWarning, source, message, userID, data)
}

func (s *LogService) Error(source, message string, userID *int64, data map[string]interface{}) {
	s.record(model.LogLevelError, source, message, userID, data)
}

func (s *LogService) record(level, source, message string, userID *int64, data map[string]interface{}) {
	var event *zerolog.Event
	switch level {
	case model.LogLevelError:
		event = log.Error()
	case model.LogLevelWarning:
		event = log.Warn()
	default:
		event = log.Info()
	}
	event = event.Str("source", source)
	if userID != nil {
		event = event.Int64("user_id", *userID)
	}
	if len(data) > 0 {
		event = event.Fields(data)
	}
	event.Msg(message)

	if s == nil || s.logRepo == nil {
		return
	}

	entry := &model.SystemLog{
		Level:   level,
		Message: message,
		Source:  source,
		UserID:  userID,
	}
	if len(data) > 0 {
		if raw, err := json.Marshal(data); err == nil {
			entry.AdditionalData = datatypes.JSON(raw)
		}
	}
	if err := s.logRepo.Create(entry); err != nil {
		log.Warn().Err(err).Str("source", source).Msg("failed to persist system log")
	}
}

// List 管理后台查询日志
func (s *LogService) List(id Identity, page, pageSize int, level string) ([]*dto.SystemLogItem, int64, error) {
	if err := requireAdmin(id); err != nil {
		return nil, 0, err
	}
	switch level {
	case "", model.LogLevelInfo, model.LogLevelWarning, model.LogLevelError:
	default:
		return nil, 0, ErrInvalidParam
	}

	logs, total, err := s.logRepo.List(page, pageSize, level)
	if err != nil {
		return nil, 0, upstream("list system logs", err)
	}

	items := make([]*dto.SystemLogItem, 0, len(logs))
	for _, l := range logs {
		item := &dto.SystemLogItem{
			ID:        l.ID,
			Level:     l.Level,
			Message:   l.Message,
			Source:    l.Source,
			UserID:    l.UserID,
			CreatedAt: formatTime(l.CreatedAt),
		}
		if len(l.AdditionalData) > 0 {
			item.AdditionalData = json.RawMessage(l.AdditionalData)
		}
		items = append(items, item)
	}
	return items, total, nil
}

const defaultArchiveBatch = 1000

// ArchiveStore 归档文件存储
type ArchiveStore interface {
	UploadArchive(from, to time.Time, data []byte) (string, error)
}

// ArchiveResult 归档结果
type ArchiveResult struct {
	Archived int64
	Objects  []string
}

// Archive 将 before 之前的日志按批写为 JSON Lines 上传后删除；dryRun 只统计数量
func (s *LogService) Archive(ctx context.Context, store ArchiveStore, before time.Time, batchSize int, dryRun bool) (*ArchiveResult, error) {
	if batchSize <= 0 {
		batchSize = defaultArchiveBatch
	}
	result := &ArchiveResult{}
	if dryRun {
		count, err := s.logRepo.CountBefore(before)
		if err != nil {
			return nil, upstream("count system logs", err)
		}
		result.Archived = count
		return result, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		logs, err := s.logRepo.ListBefore(before, batchSize)
		if err != nil {
			return result, upstream("list system logs", err)
		}
		if len(logs) == 0 {
			return result, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		from, to := logs[0].CreatedAt, logs[0].CreatedAt
		for _, l := range logs {
			if err := enc.Encode(l); err != nil {
				return result, err
			}
			if l.CreatedAt.Before(from) {
				from = l.CreatedAt
			}
			if l.CreatedAt.After(to) {
				to = l.CreatedAt
			}
		}

		key, err := store.UploadArchive(from, to, buf.Bytes())
		if err != nil {
			return result, upstream("upload archive", err)
		}
		// 上传成功后才删除，失败的批次下次重试
		deleted, err := s.logRepo.DeleteUpTo(logs[len(logs)-1].ID, before)
		if err != nil {
			return result, upstream("delete archived logs", err)
		}

		result.Archived += deleted
		result.Objects = append(result.Objects, key)
		log.Info().Str("object", key).Int64("count", deleted).Msg("system logs archived")
	}
}
