package service

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/repository"
)

type SeedService struct {
	plans    *PlanService
	planRepo *repository.PlanRepository
	toolRepo *repository.ToolRepository
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewSeedService(plans *PlanService, planRepo *repository.PlanRepository, toolRepo *repository.ToolRepository, userRepo *repository.UserRepository, cfg *config.Config) *SeedService {
	return &SeedService{
		plans:    plans,
		planRepo: planRepo,
		toolRepo: toolRepo,
		userRepo: userRepo,
		cfg:      cfg,
	}
}

var defaultPlans = []model.Plan{
	{
		Name:         "Pro",
		Description:  "Unlimited access to every tool",
		PriceMonthly: decimal.RequireFromString("9.99"),
		PriceYearly:  decimal.RequireFromString("99.99"),
		ToolLimit:    entitlement.Unlimited,
		Features:     model.StringArray{"Unlimited usage", "Premium tools", "Email support"},
	},
	{
		Name:         "Business",
		Description:  "For teams that depend on the toolbox",
		PriceMonthly: decimal.RequireFromString("29.99"),
		PriceYearly:  decimal.RequireFromString("299.99"),
		ToolLimit:    entitlement.Unlimited,
		Features:     model.StringArray{"Unlimited usage", "Premium tools", "Priority support"},
	},
}

var defaultTools = []model.Tool{
	{Name: "Data Analyzer", Description: "Analyze and visualize your data", Icon: model.IconChartBar},
	{Name: "Text Processor", Description: "Process and transform text content", Icon: model.IconFileText},
	{Name: "Image Editor", Description: "Edit and optimize images", Icon: model.IconImage, IsPremium: true},
}

// Seed 写入初始套餐、工具和管理员，已存在的数据不会被修改；返回新建的条目
func (s *SeedService) Seed() ([]string, error) {
	var created []string

	free, err := s.planRepo.GetByName(s.cfg.Entitlement.FreePlanName)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, upstream("get free plan", err)
	}
	if free == nil {
		created = append(created, "plan "+s.cfg.Entitlement.FreePlanName)
	}
	if _, err := s.plans.EnsureFreePlan(); err != nil {
		return created, err
	}

	for i := range defaultPlans {
		plan := defaultPlans[i]
		exists, err := s.planRepo.ExistsByName(plan.Name, 0)
		if err != nil {
			return created, upstream("check plan", err)
		}
		if exists {
			continue
		}
		plan.IsActive = true
		if err := s.planRepo.Create(&plan); err != nil {
			return created, upstream("create plan", err)
		}
		created = append(created, "plan "+plan.Name)
	}

	for i := range defaultTools {
		tool := defaultTools[i]
		exists, err := s.toolRepo.ExistsByName(tool.Name, 0)
		if err != nil {
			return created, upstream("check tool", err)
		}
		if exists {
			continue
		}
		tool.IsActive = true
		if err := s.toolRepo.Create(&tool); err != nil {
			return created, upstream("create tool", err)
		}
		created = append(created, "tool "+tool.Name)
	}

	admin, err := s.seedAdmin()
	if err != nil {
		return created, err
	}
	if admin != "" {
		created = append(created, "admin "+admin)
	}
	return created, nil
}

func (s *SeedService) seedAdmin() (string, error) {
	emailAddr := strings.ToLower(strings.TrimSpace(s.cfg.Admin.Email))
	if emailAddr == "" || s.cfg.Admin.Password == "" {
		return "", nil
	}

	exists, err := s.userRepo.ExistsByEmail(emailAddr)
	if err != nil {
		return "", upstream("check admin", err)
	}
	if exists {
		return "", nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(s.cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	hash := string(hashed)
	user := &model.User{
		Email:         emailAddr,
		PasswordHash:  &hash,
		FullName:      s.cfg.Admin.FullName,
		IsActive:      true,
		IsAdmin:       true,
		EmailVerified: true,
	}
	if err := s.userRepo.Create(user); err != nil {
		return "", upstream("create admin", err)
	}
	return emailAddr, nil
}
