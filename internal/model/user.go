package model

import (
	"time"
)

type User struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	Email                 string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash          *string    `gorm:"size:255" json:"-"`
	FullName              string     `gorm:"size:100" json:"full_name"`
	IsActive              bool       `gorm:"default:true" json:"is_active"`
	IsAdmin               bool       `gorm:"default:false" json:"is_admin"`
	EmailVerified         bool       `gorm:"default:false" json:"email_verified"`
	VerificationCode      *string    `gorm:"size:100;index" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetToken            *string    `gorm:"size:100;index" json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`
	GithubID              *string    `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	StripeCustomerID      string     `gorm:"size:100;index" json:"-"`
	LastLoginAt           *time.Time `json:"last_login_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type RefreshToken struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Token      string    `gorm:"size:100;uniqueIndex;not null" json:"-"`
	UserID     int64     `gorm:"not null;index" json:"user_id"`
	ExpiresAt  time.Time `gorm:"not null" json:"expires_at"`
	DeviceInfo string    `gorm:"size:255" json:"device_info"`
	IPAddress  string    `gorm:"size:50" json:"ip_address"`
	IsRevoked  bool      `gorm:"default:false" json:"is_revoked"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
