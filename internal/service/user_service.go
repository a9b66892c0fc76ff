package service

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/repository"
)

const recentActivityLimit = 10

type UserService struct {
	userRepo  *repository.UserRepository
	tokenRepo *repository.RefreshTokenRepository
	usageRepo *repository.UsageRepository
	logs      *LogService
}

func NewUserService(userRepo *repository.UserRepository, tokenRepo *repository.RefreshTokenRepository, usageRepo *repository.UsageRepository, logs *LogService) *UserService {
	return &UserService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		usageRepo: usageRepo,
		logs:      logs,
	}
}

// GetProfile 获取用户详情
func (s *UserService) GetProfile(id Identity) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(id.UserID)
	if err != nil {
		return nil, lookup("get user", err, ErrUserNotFound)
	}
	return buildUserInfo(user), nil
}

// UpdateProfile 更新姓名或密码，修改密码后其他会话的 refresh token 全部作废
func (s *UserService) UpdateProfile(id Identity, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(id.UserID)
	if err != nil {
		return nil, lookup("get user", err, ErrUserNotFound)
	}

	fields := map[string]interface{}{}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
		fields["full_name"] = user.FullName
	}

	passwordChanged := false
	if req.NewPassword != nil {
		// GitHub 注册的账号首次设置密码不需要当前密码
		if user.PasswordHash != nil {
			if req.CurrentPassword == nil ||
				bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(*req.CurrentPassword)) != nil {
				return nil, ErrWrongPassword
			}
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash := string(hashed)
		user.PasswordHash = &hash
		fields["password_hash"] = hash
		passwordChanged = true
	}

	if len(fields) == 0 {
		return buildUserInfo(user), nil
	}
	if err := s.userRepo.UpdateFields(user.ID, fields); err != nil {
		return nil, upstream("update user", err)
	}

	if passwordChanged {
		if err := s.tokenRepo.RevokeAllForUser(user.ID); err != nil {
			return nil, upstream("revoke refresh tokens", err)
		}
		s.logs.Info("user", "password changed", &user.ID, nil)
	}
	return buildUserInfo(user), nil
}

// Activity 最近的工具使用记录
func (s *UserService) Activity(id Identity) ([]*dto.UsageItem, error) {
	usages, _, err := s.usageRepo.ListByUser(id.UserID, 1, recentActivityLimit)
	if err != nil {
		return nil, upstream("list usages", err)
	}
	items := make([]*dto.UsageItem, 0, len(usages))
	for _, u := range usages {
		items = append(items, buildUsageItem(u))
	}
	return items, nil
}

// Stats 用户使用统计
func (s *UserService) Stats(id Identity) (*dto.UserStatsResponse, error) {
	stats, err := s.usageRepo.StatsByUser(id.UserID)
	if err != nil {
		return nil, upstream("usage stats", err)
	}
	return &dto.UserStatsResponse{
		TotalUsages:     stats.TotalUsages,
		ToolsUsed:       stats.DistinctTools,
		CompletedUsages: stats.CompletedUsages,
		InProgress:      stats.OpenUsages,
	}, nil
}
