package service

import (
	"strings"

	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
	"github.com/qs3c/toolbox_server/internal/repository"
)

// ToolService 管理后台的工具维护
type ToolService struct {
	toolRepo *repository.ToolRepository
}

func NewToolService(toolRepo *repository.ToolRepository) *ToolService {
	return &ToolService{toolRepo: toolRepo}
}

// AdminList 所有工具（包含停用）
func (s *ToolService) AdminList(id Identity) ([]*model.Tool, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	tools, err := s.toolRepo.List(false)
	if err != nil {
		return nil, upstream("list tools", err)
	}
	return tools, nil
}

// Create 创建工具
func (s *ToolService) Create(id Identity, req *dto.ToolRequest) (*model.Tool, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidParam
	}
	if !req.Icon.Valid() {
		return nil, ErrInvalidIcon
	}
	if err := s.ensureUniqueName(name, 0); err != nil {
		return nil, err
	}

	tool := &model.Tool{
		Name:        name,
		Description: req.Description,
		Icon:        req.Icon,
		IsActive:    true,
		IsPremium:   req.IsPremium,
	}
	if req.IsActive != nil {
		tool.IsActive = *req.IsActive
	}

	if err := s.toolRepo.Create(tool); err != nil {
		return nil, upstream("create tool", err)
	}
	return tool, nil
}

// Update 更新工具
func (s *ToolService) Update(id Identity, toolID int64, req *dto.UpdateToolRequest) (*model.Tool, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	tool, err := s.toolRepo.GetByID(toolID)
	if err != nil {
		return nil, lookup("get tool", err, ErrToolNotFound)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalidParam
		}
		if name != tool.Name {
			if err := s.ensureUniqueName(name, tool.ID); err != nil {
				return nil, err
			}
			tool.Name = name
		}
	}
	if req.Description != nil {
		tool.Description = *req.Description
	}
	if req.Icon != nil {
		if !req.Icon.Valid() {
			return nil, ErrInvalidIcon
		}
		tool.Icon = *req.Icon
	}
	if req.IsActive != nil {
		tool.IsActive = *req.IsActive
	}
	if req.IsPremium != nil {
		tool.IsPremium = *req.IsPremium
	}

	if err := s.toolRepo.Update(tool); err != nil {
		return nil, upstream("update tool", err)
	}
	return tool, nil
}

func (s *ToolService) ensureUniqueName(name string, excludeID int64) error {
	exists, err := s.toolRepo.ExistsByName(name, excludeID)
	if err != nil {
		return upstream("check tool name", err)
	}
	if exists {
		return ErrToolNameExists
	}
	return nil
}
