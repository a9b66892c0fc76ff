package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/toolbox_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(user *model.User) error {
	active := user.IsActive
	if err := r.db.Create(user).Error; err != nil {
		return err
	}
	if !active {
		user.IsActive = false
		return r.db.Model(user).Update("is_active", false).Error
	}
	return nil
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LockByID 在事务内锁定用户行（SELECT ... FOR UPDATE）
func (r *UserRepository) LockByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGithubID(githubID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("github_id = ?", githubID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByResetToken 按密码重置 token 查找
func (r *UserRepository) GetByResetToken(token string) (*model.User, error) {
	var user model.User
	err := r.db.Where("reset_token = ?", token).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByVerificationCode(code string) (*model.User, error) {
	var user model.User
	err := r.db.Where("verification_code = ?", code).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// List 分页查询用户，search 匹配邮箱或姓名
func (r *UserRepository) List(page, pageSize int, search string) ([]*model.User, int64, error) {
	var users []*model.User
	var total int64

	query := r.db.Model(&model.User{})
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("email LIKE ? OR full_name LIKE ?", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *UserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.User{}).Count(&count).Error
	return count, err
}

// CountLoggedInSince 统计某时间之后登录过的用户数
func (r *UserRepository) CountLoggedInSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("last_login_at >= ?", since).Count(&count).Error
	return count, err
}

// CountCreatedSince 统计某时间之后注册的用户数
func (r *UserRepository) CountCreatedSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}
