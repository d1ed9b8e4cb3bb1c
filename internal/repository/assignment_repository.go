package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"gorm.io/gorm"
)

// AssignmentRepository 项目人员分配仓库
type AssignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository 创建项目人员分配仓库
func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// FindByID 根据ID查找分配
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*entity.ProjectAssignment, error) {
	var assignment entity.ProjectAssignment
	err := r.db.WithContext(ctx).
		Preload("Project").
		Preload("Employee").
		Where("id = ?", id).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

// FindByReference 根据 allocation_reference 查找分配
func (r *AssignmentRepository) FindByReference(ctx context.Context, reference string) (*entity.ProjectAssignment, error) {
	var assignment entity.ProjectAssignment
	err := r.db.WithContext(ctx).
		Where("allocation_reference = ?", reference).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

// Create 创建分配
func (r *AssignmentRepository) Create(ctx context.Context, assignment *entity.ProjectAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

// Update 保存分配
func (r *AssignmentRepository) Update(ctx context.Context, assignment *entity.ProjectAssignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

// UpdateFields 按字段更新分配
func (r *AssignmentRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.ProjectAssignment{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// List 获取分配列表
func (r *AssignmentRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.ProjectAssignment, int64, error) {
	var assignments []entity.ProjectAssignment
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ProjectAssignment{})

	if employeeID, ok := filters["employee_id"].(string); ok && employeeID != "" {
		query = query.Where("employee_id = ?", employeeID)
	}
	if projectID, ok := filters["project_id"].(string); ok && projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if docStatus, ok := filters["doc_status"].(int); ok {
		query = query.Where("doc_status = ?", docStatus)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Project").
		Preload("Employee").
		Order("start_date ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&assignments).Error
	if err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

// ListSubmitted 获取全部已提交分配（每日状态重算用）
func (r *AssignmentRepository) ListSubmitted(ctx context.Context) ([]entity.ProjectAssignment, error) {
	var assignments []entity.ProjectAssignment
	err := r.db.WithContext(ctx).
		Select("id", "start_date", "end_date", "status").
		Where("doc_status = ?", entity.DocStatusSubmitted).
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// ApplySweep 批量写入状态变更，整批一个事务
func (r *AssignmentRepository) ApplySweep(ctx context.Context, changes map[string][]string) error {
	if len(changes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for status, ids := range changes {
			if len(ids) == 0 {
				continue
			}
			if err := tx.Model(&entity.ProjectAssignment{}).
				Where("id IN ?", ids).
				Update("status", status).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// OverlappingActiveTotals 统计每个员工在日期区间内（闭区间重叠）已提交且 Active 分配的占用比例之和
// excludeReference 非空时剔除对应分配（复核可用性时排除当前申请单）
func (r *AssignmentRepository) OverlappingActiveTotals(ctx context.Context, start, end time.Time, excludeReference string) (map[string]float64, error) {
	type row struct {
		EmployeeID string
		Total      float64
	}
	var rows []row

	query := r.db.WithContext(ctx).
		Model(&entity.ProjectAssignment{}).
		Select("employee_id, SUM(allocation_percentage) AS total").
		Where("doc_status = ? AND status = ?", entity.DocStatusSubmitted, entity.AssignmentStatusActive).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Group("employee_id")
	if excludeReference != "" {
		query = query.Where("allocation_reference != ?", excludeReference)
	}

	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	totals := make(map[string]float64, len(rows))
	for _, rw := range rows {
		totals[rw.EmployeeID] = rw.Total
	}
	return totals, nil
}

// WorkloadTotal 员工在已提交的 Planned/Active 分配上的占用比例之和
// start/end 为零值时不限定窗口；窗口判定为闭区间重叠
func (r *AssignmentRepository) WorkloadTotal(ctx context.Context, employeeID string, start, end time.Time) (float64, error) {
	var total float64
	query := r.db.WithContext(ctx).
		Model(&entity.ProjectAssignment{}).
		Select("COALESCE(SUM(allocation_percentage), 0)").
		Where("employee_id = ? AND doc_status = ?", employeeID, entity.DocStatusSubmitted).
		Where("status IN ?", []string{entity.AssignmentStatusPlanned, entity.AssignmentStatusActive})
	if !start.IsZero() && !end.IsZero() {
		query = query.Where("start_date <= ? AND end_date >= ?", end, start)
	}
	if err := query.Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// SubmitWithCost 单事务内保存提交后的分配并累加项目人力成本
func (r *AssignmentRepository) SubmitWithCost(ctx context.Context, assignment *entity.ProjectAssignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(assignment).Error; err != nil {
			return err
		}
		return tx.Model(&entity.Project{}).
			Where("id = ?", assignment.ProjectID).
			Update("total_staffing_cost", gorm.Expr("total_staffing_cost + ?", assignment.EstimatedTotalCost)).Error
	})
}

// CancelWithCost 单事务内取消分配并回冲项目人力成本
func (r *AssignmentRepository) CancelWithCost(ctx context.Context, assignment *entity.ProjectAssignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ProjectAssignment{}).
			Where("id = ?", assignment.ID).
			Updates(map[string]interface{}{
				"doc_status": entity.DocStatusCancelled,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		return tx.Model(&entity.Project{}).
			Where("id = ?", assignment.ProjectID).
			Update("total_staffing_cost", gorm.Expr("total_staffing_cost - ?", assignment.EstimatedTotalCost)).Error
	})
}

// Split 单事务内截断原分配、创建后继分配并落双方审计记录
func (r *AssignmentRepository) Split(ctx context.Context, original *entity.ProjectAssignment, successor *entity.ProjectAssignment, notes []entity.AssignmentNote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ProjectAssignment{}).
			Where("id = ?", original.ID).
			Updates(map[string]interface{}{
				"end_date":   original.EndDate,
				"status":     original.Status,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		if err := tx.Create(successor).Error; err != nil {
			return err
		}
		if err := tx.Model(&entity.Project{}).
			Where("id = ?", successor.ProjectID).
			Update("total_staffing_cost", gorm.Expr("total_staffing_cost + ?", successor.EstimatedTotalCost)).Error; err != nil {
			return err
		}
		if len(notes) > 0 {
			return tx.Create(&notes).Error
		}
		return nil
	})
}

// AddNote 追加审计记录
func (r *AssignmentRepository) AddNote(ctx context.Context, note *entity.AssignmentNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

// ListNotes 获取分配的审计记录
func (r *AssignmentRepository) ListNotes(ctx context.Context, assignmentID string) ([]entity.AssignmentNote, error) {
	var notes []entity.AssignmentNote
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at ASC").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// ListChain 获取同一 allocation_reference 根的分配链（拆分前后各代）
func (r *AssignmentRepository) ListChain(ctx context.Context, reference string) ([]entity.ProjectAssignment, error) {
	root := reference
	if idx := strings.Index(reference, "/"); idx > 0 {
		root = reference[:idx]
	}

	var assignments []entity.ProjectAssignment
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Preload("Project").
		Where("allocation_reference = ? OR allocation_reference LIKE ?", root, root+"/%").
		Order("start_date ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}
