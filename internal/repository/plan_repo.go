package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/model"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) WithTx(tx *gorm.DB) *PlanRepository {
	return &PlanRepository{db: tx}
}

func (r *PlanRepository) Create(plan *model.Plan) error {
	active := plan.IsActive
	if err := r.db.Create(plan).Error; err != nil {
		return err
	}
	// default:true 的零值不会写入，需要单独更新
	if !active {
		plan.IsActive = false
		return r.db.Model(plan).Update("is_active", false).Error
	}
	return nil
}

func (r *PlanRepository) GetByID(id int64) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.Where("id = ?", id).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) GetByName(name string) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.Where("name = ?", name).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ExistsByName 名称是否已被其他套餐占用
func (r *PlanRepository) ExistsByName(name string, excludeID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Plan{}).Where("name = ? AND id <> ?", name, excludeID).Count(&count).Error
	return count > 0, err
}

// List 查询套餐，按月价升序
func (r *PlanRepository) List(activeOnly bool) ([]*model.Plan, error) {
	var plans []*model.Plan
	query := r.db.Model(&model.Plan{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("price_monthly ASC, id ASC").Find(&plans).Error
	return plans, err
}

func (r *PlanRepository) Update(plan *model.Plan) error {
	return r.db.Save(plan).Error
}

func (r *PlanRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Plan{}).Where("id = ?", id).Updates(fields).Error
}
