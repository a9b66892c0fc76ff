package dto

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=100"`
	Password string `json:"password" binding:"required,min=8,max=64"`
	FullName string `json:"full_name" binding:"omitempty,max=100"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	User         *UserInfo `json:"user"`
}

// RefreshRequest 刷新 token 请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// VerifyEmailRequest 邮箱验证请求
type VerifyEmailRequest struct {
	Code string `json:"code" binding:"required"`
}

// PasswordResetRequest 申请重置密码
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest 使用邮件中的 token 设置新密码
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=64"`
}

// ClientInfo 登录设备信息
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	IsActive      bool   `json:"is_active"`
	IsAdmin       bool   `json:"is_admin"`
	EmailVerified bool   `json:"email_verified"`
	LastLoginAt   string `json:"last_login_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// UpdateProfileRequest 更新用户信息请求，修改密码需提供当前密码
type UpdateProfileRequest struct {
	FullName        *string `json:"full_name,omitempty" binding:"omitempty,max=100"`
	CurrentPassword *string `json:"current_password,omitempty"`
	NewPassword     *string `json:"new_password,omitempty" binding:"omitempty,min=8,max=64"`
}

// UserStatsResponse 用户使用统计
type UserStatsResponse struct {
	TotalUsages     int64 `json:"total_usages"`
	ToolsUsed       int64 `json:"tools_used"`
	CompletedUsages int64 `json:"completed_usages"`
	InProgress      int64 `json:"in_progress"`
}
