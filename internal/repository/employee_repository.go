package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"gorm.io/gorm"
)

// EmployeeRepository 员工仓库
type EmployeeRepository struct {
	db *gorm.DB
}

// NewEmployeeRepository 创建员工仓库
func NewEmployeeRepository(db *gorm.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// FindByID 根据ID查找员工
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*entity.Employee, error) {
	var emp entity.Employee
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&emp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &emp, nil
}

// ListActive 获取全部在职员工
func (r *EmployeeRepository) ListActive(ctx context.Context) ([]entity.Employee, error) {
	var emps []entity.Employee
	err := r.db.WithContext(ctx).
		Where("status = ? AND deleted_at IS NULL", entity.EmployeeStatusActive).
		Order("employee_no ASC").
		Find(&emps).Error
	if err != nil {
		return nil, err
	}
	return emps, nil
}
