package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/model"
)

type ToolRepository struct {
	db *gorm.DB
}

func NewToolRepository(db *gorm.DB) *ToolRepository {
	return &ToolRepository{db: db}
}

func (r *ToolRepository) WithTx(tx *gorm.DB) *ToolRepository {
	return &ToolRepository{db: tx}
}

func (r *ToolRepository) Create(tool *model.Tool) error {
	active := tool.IsActive
	if err := r.db.Create(tool).Error; err != nil {
		return err
	}
	if !active {
		tool.IsActive = false
		return r.db.Model(tool).Update("is_active", false).Error
	}
	return nil
}

func (r *ToolRepository) GetByID(id int64) (*model.Tool, error) {
	var tool model.Tool
	err := r.db.Where("id = ?", id).First(&tool).Error
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

func (r *ToolRepository) ExistsByName(name string, excludeID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Tool{}).Where("name = ? AND id <> ?", name, excludeID).Count(&count).Error
	return count > 0, err
}

// List 查询工具，按名称排序
func (r *ToolRepository) List(activeOnly bool) ([]*model.Tool, error) {
	var tools []*model.Tool
	query := r.db.Model(&model.Tool{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("name ASC").Find(&tools).Error
	return tools, err
}

func (r *ToolRepository) Update(tool *model.Tool) error {
	return r.db.Save(tool).Error
}

func (r *ToolRepository) Count(activeOnly bool) (int64, error) {
	var count int64
	query := r.db.Model(&model.Tool{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Count(&count).Error
	return count, err
}
