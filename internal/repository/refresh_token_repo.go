package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/model"
)

type RefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(token *model.RefreshToken) error {
	return r.db.Create(token).Error
}

// GetValid 查询未撤销且未过期的 token
func (r *RefreshTokenRepository) GetValid(token string, now time.Time) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := r.db.Where("token = ? AND is_revoked = ? AND expires_at > ?", token, false, now).First(&rt).Error
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// Revoke 撤销 token，返回是否实际撤销
func (r *RefreshTokenRepository) Revoke(token string) (bool, error) {
	result := r.db.Model(&model.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", token, false).
		Update("is_revoked", true)
	return result.RowsAffected > 0, result.Error
}

// RevokeAllForUser 撤销用户所有 token
func (r *RefreshTokenRepository) RevokeAllForUser(userID int64) error {
	return r.db.Model(&model.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true).Error
}

// DeleteExpired 删除过期 token
func (r *RefreshTokenRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at <= ?", now).Delete(&model.RefreshToken{})
	return result.RowsAffected, result.Error
}
