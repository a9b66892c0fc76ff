package service

import (
	"time"

	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/repository"
)

const (
	activeUserWindow = 30 * 24 * time.Hour
	topUsersLimit    = 10
)

type AdminService struct {
	userRepo  *repository.UserRepository
	tokenRepo *repository.RefreshTokenRepository
	toolRepo  *repository.ToolRepository
	subRepo   *repository.SubscriptionRepository
	usageRepo *repository.UsageRepository
	quota     *QuotaService
	logs      *LogService
	now       func() time.Time
}

func NewAdminService(
	userRepo *repository.UserRepository,
	tokenRepo *repository.RefreshTokenRepository,
	toolRepo *repository.ToolRepository,
	subRepo *repository.SubscriptionRepository,
	usageRepo *repository.UsageRepository,
	quota *QuotaService,
	logs *LogService,
) *AdminService {
	return &AdminService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		toolRepo:  toolRepo,
		subRepo:   subRepo,
		usageRepo: usageRepo,
		quota:     quota,
		logs:      logs,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Stats 后台概览
func (s *AdminService) Stats(id Identity) (*dto.AdminStatsResponse, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	now := s.now()
	resp := &dto.AdminStatsResponse{SubscriptionsByStatus: map[string]int64{}}
	var err error

	if resp.TotalUsers, err = s.userRepo.Count(); err != nil {
		return nil, upstream("count users", err)
	}
	if resp.ActiveUsers, err = s.userRepo.CountLoggedInSince(now.Add(-activeUserWindow)); err != nil {
		return nil, upstream("count active users", err)
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if resp.NewUsersThisMonth, err = s.userRepo.CountCreatedSince(monthStart); err != nil {
		return nil, upstream("count new users", err)
	}
	if resp.TotalTools, err = s.toolRepo.Count(false); err != nil {
		return nil, upstream("count tools", err)
	}
	if resp.TotalUsage, err = s.usageRepo.Count(); err != nil {
		return nil, upstream("count usages", err)
	}

	counts, err := s.subRepo.CountByStatus()
	if err != nil {
		return nil, upstream("count subscriptions", err)
	}
	for status, n := range counts {
		resp.SubscriptionsByStatus[string(status)] = n
	}
	return resp, nil
}

// ListUsers 用户列表，附带当前生效套餐
func (s *AdminService) ListUsers(id Identity, page, pageSize int, search string) ([]*dto.AdminUserItem, int64, error) {
	if err := requireAdmin(id); err != nil {
		return nil, 0, err
	}

	users, total, err := s.userRepo.List(page, pageSize, search)
	if err != nil {
		return nil, 0, upstream("list users", err)
	}

	now := s.now()
	items := make([]*dto.AdminUserItem, 0, len(users))
	for _, u := range users {
		item := &dto.AdminUserItem{UserInfo: *buildUserInfo(u)}
		r, err := s.quota.resolve(nil, u.ID, now)
		if err != nil {
			return nil, 0, err
		}
		item.Plan = r.plan.Name
		items = append(items, item)
	}
	return items, total, nil
}

// SetActive 启用或停用用户，停用时作废其所有 refresh token
func (s *AdminService) SetActive(id Identity, userID int64, active bool) (*dto.UserInfo, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if userID == id.UserID {
		return nil, ErrCannotModifySelf
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, lookup("get user", err, ErrUserNotFound)
	}
	if !active && user.IsAdmin {
		return nil, ErrCannotModifyAdmin
	}

	if err := s.userRepo.UpdateFields(userID, map[string]interface{}{"is_active": active}); err != nil {
		return nil, upstream("update user", err)
	}
	user.IsActive = active

	if !active {
		if err := s.tokenRepo.RevokeAllForUser(userID); err != nil {
			return nil, upstream("revoke refresh tokens", err)
		}
	}

	action := "user activated"
	if !active {
		action = "user deactivated"
	}
	s.logs.Info("admin", action, &id.UserID, map[string]interface{}{"target_user_id": userID})
	return buildUserInfo(user), nil
}

// SetAdmin 授予或撤销管理员权限
func (s *AdminService) SetAdmin(id Identity, userID int64, admin bool) (*dto.UserInfo, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if userID == id.UserID {
		return nil, ErrCannotModifySelf
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, lookup("get user", err, ErrUserNotFound)
	}
	if err := s.userRepo.UpdateFields(userID, map[string]interface{}{"is_admin": admin}); err != nil {
		return nil, upstream("update user", err)
	}
	user.IsAdmin = admin

	action := "admin granted"
	if !admin {
		action = "admin revoked"
	}
	s.logs.Info("admin", action, &id.UserID, map[string]interface{}{"target_user_id": userID})
	return buildUserInfo(user), nil
}

// ToolUsage 每个工具的累计使用次数
func (s *AdminService) ToolUsage(id Identity) ([]*repository.ToolUsageCount, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	rows, err := s.usageRepo.CountPerTool()
	if err != nil {
		return nil, upstream("count usage per tool", err)
	}
	return rows, nil
}

// UserActivity 使用次数最多的用户
func (s *AdminService) UserActivity(id Identity) (*dto.AdminActivityResponse, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	rows, err := s.usageRepo.TopUsers(topUsersLimit)
	if err != nil {
		return nil, upstream("top users", err)
	}
	return &dto.AdminActivityResponse{TopUsers: rows}, nil
}
