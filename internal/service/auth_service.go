package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/pkg/email"
	"github.com/qs3c/toolbox_server/internal/pkg/jwt"
	"github.com/qs3c/toolbox_server/internal/pkg/oauth"
	"github.com/qs3c/toolbox_server/internal/repository"
)

const (
	verificationTTL  = 30 * time.Minute
	passwordResetTTL = 24 * time.Hour
)

// OAuthProvider 第三方登录
type OAuthProvider interface {
	Enabled() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.Profile, error)
}

// OAuthStateStore OAuth state 存储
type OAuthStateStore interface {
	Generate(ctx context.Context, redirectURI string) (string, error)
	Consume(ctx context.Context, state string) (string, error)
}

type AuthService struct {
	userRepo  *repository.UserRepository
	tokenRepo *repository.RefreshTokenRepository
	github    OAuthProvider
	states    OAuthStateStore
	notifier  Notifier
	logs      *LogService
	cfg       *config.Config
	now       func() time.Time
}

func NewAuthService(
	userRepo *repository.UserRepository,
	tokenRepo *repository.RefreshTokenRepository,
	github OAuthProvider,
	states OAuthStateStore,
	notifier Notifier,
	logs *LogService,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		github:    github,
		states:    states,
		notifier:  notifier,
		logs:      logs,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register 用户注册
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.userRepo.ExistsByEmail(emailAddr)
	if err != nil {
		return nil, upstream("check email", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	code, err := generateRandomCode(8)
	if err != nil {
		return nil, err
	}

	passwordStr := string(hashed)
	expiresAt := s.now().Add(verificationTTL)
	user := &model.User{
		Email:                 emailAddr,
		PasswordHash:          &passwordStr,
		FullName:              strings.TrimSpace(req.FullName),
		IsActive:              true,
		VerificationCode:      &code,
		VerificationExpiresAt: &expiresAt,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, upstream("create user", err)
	}

	// 开发环境自动验证邮箱
	if s.cfg.Server.Mode == "debug" {
		if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"email_verified": true}); err != nil {
			return nil, upstream("verify email", err)
		}
	} else {
		s.notify(ctx, &email.Message{
			Kind:   email.KindVerification,
			To:     user.Email,
			Name:   user.FullName,
			Params: map[string]string{"code": code},
		})
	}

	s.logs.Info("auth", "user registered", &user.ID, nil)
	return &dto.RegisterResponse{UserID: user.ID}, nil
}

// Login 用户登录
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest, client dto.ClientInfo) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, upstream("get user", err)
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	// 生产环境强制要求验证邮箱
	if !user.EmailVerified && s.cfg.Server.Mode != "debug" {
		return nil, ErrEmailNotVerified
	}

	return s.issueTokens(user, client)
}

// Refresh 使用 refresh token 换取新的令牌对，旧 token 作废
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client dto.ClientInfo) (*dto.LoginResponse, error) {
	stored, err := s.tokenRepo.GetValid(refreshToken, s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, upstream("get refresh token", err)
	}

	revoked, err := s.tokenRepo.Revoke(refreshToken)
	if err != nil {
		return nil, upstream("revoke refresh token", err)
	}
	// 并发刷新时只有一个请求能作废成功
	if !revoked {
		return nil, ErrInvalidRefresh
	}

	user, err := s.userRepo.GetByID(stored.UserID)
	if err != nil {
		return nil, lookup("get user", err, ErrInvalidRefresh)
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	return s.issueTokens(user, client)
}

// Logout 作废 refresh token，token 不存在时也视为成功
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if _, err := s.tokenRepo.Revoke(refreshToken); err != nil {
		return upstream("revoke refresh token", err)
	}
	return nil
}

// VerifyEmail 验证邮箱并登录
func (s *AuthService) VerifyEmail(ctx context.Context, code string, client dto.ClientInfo) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByVerificationCode(code)
	if err != nil {
		return nil, lookup("get user", err, ErrInvalidVerifyCode)
	}
	if user.VerificationExpiresAt == nil || s.now().After(*user.VerificationExpiresAt) {
		return nil, ErrInvalidVerifyCode
	}

	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"email_verified":          true,
		"verification_code":       nil,
		"verification_expires_at": nil,
	}); err != nil {
		return nil, upstream("verify email", err)
	}
	user.EmailVerified = true
	user.VerificationCode = nil
	user.VerificationExpiresAt = nil

	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	s.notify(ctx, &email.Message{
		Kind:   email.KindWelcome,
		To:     user.Email,
		Name:   user.FullName,
		Params: map[string]string{"free_limit": strconv.Itoa(s.cfg.Entitlement.FreeToolLimit)},
	})
	return s.issueTokens(user, client)
}

// RequestPasswordReset 发送重置密码邮件；邮箱不存在或账号停用时同样返回成功，不暴露账号是否存在
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.userRepo.GetByEmail(strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return upstream("get user", err)
	}
	if !user.IsActive {
		return nil
	}

	token := uuid.NewString()
	expiresAt := s.now().Add(passwordResetTTL)
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"reset_token":      token,
		"reset_expires_at": expiresAt,
	}); err != nil {
		return upstream("save reset token", err)
	}

	link := strings.TrimRight(s.cfg.Server.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	s.notify(ctx, &email.Message{
		Kind:   email.KindPasswordReset,
		To:     user.Email,
		Name:   user.FullName,
		Params: map[string]string{"link": link},
	})
	s.logs.Info("auth", "password reset requested", &user.ID, nil)
	return nil
}

// ResetPassword 校验重置 token 并设置新密码，同时作废所有 refresh token
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := s.userRepo.GetByResetToken(token)
	if err != nil {
		return lookup("get user", err, ErrInvalidResetToken)
	}
	if user.ResetExpiresAt == nil || !s.now().Before(*user.ResetExpiresAt) {
		return ErrInvalidResetToken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"password_hash":    string(hashed),
		"reset_token":      nil,
		"reset_expires_at": nil,
	}); err != nil {
		return upstream("reset password", err)
	}
	if err := s.tokenRepo.RevokeAllForUser(user.ID); err != nil {
		return upstream("revoke refresh tokens", err)
	}

	s.logs.Info("auth", "password reset", &user.ID, nil)
	return nil
}

// GithubAuthURL 生成 GitHub 授权地址，redirectURI 为登录完成后前端跳转地址
func (s *AuthService) GithubAuthURL(ctx context.Context, redirectURI string) (string, error) {
	if s.github == nil || !s.github.Enabled() {
		return "", ErrOAuthDisabled
	}
	state, err := s.states.Generate(ctx, redirectURI)
	if err != nil {
		return "", upstream("generate oauth state", err)
	}
	return s.github.AuthURL(state), nil
}

// GithubCallback 处理 GitHub 回调，按 github_id 或邮箱关联账号，返回令牌与前端跳转地址
func (s *AuthService) GithubCallback(ctx context.Context, state, code string, client dto.ClientInfo) (*dto.LoginResponse, string, error) {
	if s.github == nil || !s.github.Enabled() {
		return nil, "", ErrOAuthDisabled
	}

	redirectURI, err := s.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			return nil, "", ErrInvalidOAuthState
		}
		return nil, "", upstream("consume oauth state", err)
	}

	profile, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, "", upstream("github exchange", err)
	}

	user, err := s.findOrCreateGithubUser(profile)
	if err != nil {
		return nil, "", err
	}
	if !user.IsActive {
		return nil, "", ErrUserDisabled
	}

	resp, err := s.issueTokens(user, client)
	if err != nil {
		return nil, "", err
	}
	return resp, redirectURI, nil
}

func (s *AuthService) findOrCreateGithubUser(profile *oauth.Profile) (*model.User, error) {
	user, err := s.userRepo.GetByGithubID(profile.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, upstream("get user", err)
	}

	if profile.Email == "" {
		return nil, ErrOAuthNoEmail
	}
	emailAddr := strings.ToLower(profile.Email)

	// 已用同一邮箱注册的账号直接绑定
	user, err = s.userRepo.GetByEmail(emailAddr)
	if err == nil {
		githubID := profile.ProviderID
		if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
			"github_id":      githubID,
			"email_verified": true,
		}); err != nil {
			return nil, upstream("link github", err)
		}
		user.GithubID = &githubID
		user.EmailVerified = true
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, upstream("get user", err)
	}

	githubID := profile.ProviderID
	user = &model.User{
		Email:         emailAddr,
		FullName:      profile.Name,
		GithubID:      &githubID,
		IsActive:      true,
		EmailVerified: true,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, upstream("create user", err)
	}
	s.logs.Info("auth", "user registered via github", &user.ID, nil)
	return user, nil
}

// issueTokens 签发访问令牌和 refresh token，并记录登录时间
func (s *AuthService) issueTokens(user *model.User, client dto.ClientInfo) (*dto.LoginResponse, error) {
	access, err := jwt.GenerateToken(user.ID, user.IsAdmin, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	now := s.now()
	refresh := &model.RefreshToken{
		Token:      uuid.NewString(),
		UserID:     user.ID,
		ExpiresAt:  now.AddDate(0, 0, s.cfg.JWT.RefreshExpireDays),
		DeviceInfo: truncate(client.UserAgent, 255),
		IPAddress:  truncate(client.IPAddress, 50),
	}
	if err := s.tokenRepo.Create(refresh); err != nil {
		return nil, upstream("create refresh token", err)
	}

	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"last_login_at": now}); err != nil {
		return nil, upstream("update last login", err)
	}
	user.LastLoginAt = &now

	return &dto.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.JWT.ExpireHours * 3600,
		User:         buildUserInfo(user),
	}, nil
}

func (s *AuthService) notify(ctx context.Context, msg *email.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Push(ctx, msg); err != nil {
		log.Warn().Err(err).Str("kind", string(msg.Kind)).Str("to", msg.To).Msg("failed to enqueue email")
	}
}

func generateRandomCode(length int) (string, error) {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(bytes)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
