package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"gorm.io/gorm"
)

// AllocationRepository 资源分配申请仓库
type AllocationRepository struct {
	db *gorm.DB
}

// NewAllocationRepository 创建资源分配申请仓库
func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// FindByID 根据ID查找申请单（含候选员工）
func (r *AllocationRepository) FindByID(ctx context.Context, id string) (*entity.ResourceAllocation, error) {
	var alloc entity.ResourceAllocation
	err := r.db.WithContext(ctx).
		Preload("Project").
		Preload("Requester").
		Preload("Candidates").
		Preload("Candidates.Employee").
		Where("id = ?", id).
		First(&alloc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alloc, nil
}

// Create 创建申请单（候选行一并插入）
func (r *AllocationRepository) Create(ctx context.Context, alloc *entity.ResourceAllocation) error {
	return r.db.WithContext(ctx).Create(alloc).Error
}

// Update 保存申请单
func (r *AllocationRepository) Update(ctx context.Context, alloc *entity.ResourceAllocation) error {
	return r.db.WithContext(ctx).Save(alloc).Error
}

// UpdateStatus 更新申请单状态
func (r *AllocationRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).
		Model(&entity.ResourceAllocation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// UpdateNotes 更新备注
func (r *AllocationRepository) UpdateNotes(ctx context.Context, id, notes string) error {
	return r.db.WithContext(ctx).
		Model(&entity.ResourceAllocation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"notes":      notes,
			"updated_at": time.Now(),
		}).Error
}

// SelectCandidate 勾选指定候选员工并取消其余勾选，候选不存在时返回 ErrNotFound
func (r *AllocationRepository) SelectCandidate(ctx context.Context, allocationID, employeeID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entity.AllocationCandidate{}).
			Where("allocation_id = ? AND employee_id = ?", allocationID, employeeID).
			Update("select_employee", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&entity.AllocationCandidate{}).
			Where("allocation_id = ? AND employee_id != ?", allocationID, employeeID).
			Update("select_employee", false).Error
	})
}

// ReplaceCandidates 重建候选员工表
func (r *AllocationRepository) ReplaceCandidates(ctx context.Context, allocationID string, candidates []entity.AllocationCandidate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("allocation_id = ?", allocationID).
			Delete(&entity.AllocationCandidate{}).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		return tx.Create(&candidates).Error
	})
}

// ErrDuplicateAssignment 同一申请单已生成过分配
var ErrDuplicateAssignment = errors.New("assignment already exists for allocation")

// ApproveAndSubmit 单事务内通过申请、创建分配并累加项目成本
// 事务内先按 allocation_reference 查重；唯一索引兜底并发下的竞态
func (r *AllocationRepository) ApproveAndSubmit(ctx context.Context, allocationID string, assignment *entity.ProjectAssignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.ProjectAssignment{}).
			Where("allocation_reference = ?", assignment.AllocationReference).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateAssignment
		}

		now := time.Now()
		if err := tx.Model(&entity.ResourceAllocation{}).
			Where("id = ?", allocationID).
			Updates(map[string]interface{}{
				"status":     entity.AllocationStatusApproved,
				"doc_status": entity.DocStatusSubmitted,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		if err := tx.Create(assignment).Error; err != nil {
			return err
		}

		return tx.Model(&entity.Project{}).
			Where("id = ?", assignment.ProjectID).
			Update("total_staffing_cost", gorm.Expr("total_staffing_cost + ?", assignment.EstimatedTotalCost)).Error
	})
}

// List 获取申请单列表
func (r *AllocationRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.ResourceAllocation, int64, error) {
	var allocs []entity.ResourceAllocation
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ResourceAllocation{})

	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if projectID, ok := filters["project_id"].(string); ok && projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if requestedBy, ok := filters["requested_by"].(string); ok && requestedBy != "" {
		query = query.Where("requested_by = ?", requestedBy)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Project").
		Preload("Requester").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&allocs).Error
	if err != nil {
		return nil, 0, err
	}

	return allocs, total, nil
}
