package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
)

// AvailabilityService 员工可用性计算
type AvailabilityService struct {
	employeeRepo   *repository.EmployeeRepository
	assignmentRepo *repository.AssignmentRepository
}

// NewAvailabilityService 创建可用性计算服务
func NewAvailabilityService(employeeRepo *repository.EmployeeRepository, assignmentRepo *repository.AssignmentRepository) *AvailabilityService {
	return &AvailabilityService{
		employeeRepo:   employeeRepo,
		assignmentRepo: assignmentRepo,
	}
}

// EmployeeAvailability 员工可用性结果行
type EmployeeAvailability struct {
	EmployeeID          string  `json:"employee_id"`
	EmployeeName        string  `json:"employee_name"`
	Department          string  `json:"department"`
	CurrentAllocation   float64 `json:"current_allocation"`
	AvailableAllocation float64 `json:"available_allocation"`
	HourlyCostRate      float64 `json:"hourly_cost_rate"`
	EstimatedCost       float64 `json:"estimated_cost"`
}

// AvailabilityResult 可用/不可用两组员工
type AvailabilityResult struct {
	Available   []EmployeeAvailability `json:"available_employees"`
	Unavailable []EmployeeAvailability `json:"unavailable_employees"`
}

// Compute 按日期区间与申请比例划分在职员工
// 占用 = 已提交且 Active、与区间闭区间重叠的分配比例之和（excludeReference 剔除在复核的申请单自身）
// 预估成本 = 闭区间天数 × 8 小时 × 比例 × 时薪
func (s *AvailabilityService) Compute(ctx context.Context, start, end time.Time, percentage float64, excludeReference string) (*AvailabilityResult, error) {
	if end.Before(start) {
		return nil, NewValidationError("end date %s cannot be before start date %s", entity.FormatDate(end), entity.FormatDate(start))
	}
	if percentage < 0 || percentage > 100 {
		return nil, NewValidationError("allocation percentage must be between 0 and 100, got %.2f", percentage)
	}

	employees, err := s.employeeRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active employees: %w", err)
	}

	totals, err := s.assignmentRepo.OverlappingActiveTotals(ctx, start, end, excludeReference)
	if err != nil {
		return nil, fmt.Errorf("sum overlapping allocations: %w", err)
	}

	allocatedHours := float64(entity.DaysInclusive(start, end)) * 8 * percentage / 100

	result := &AvailabilityResult{
		Available:   []EmployeeAvailability{},
		Unavailable: []EmployeeAvailability{},
	}
	for _, emp := range employees {
		current := totals[emp.ID]
		row := EmployeeAvailability{
			EmployeeID:          emp.ID,
			EmployeeName:        emp.Name,
			Department:          emp.Department,
			CurrentAllocation:   current,
			AvailableAllocation: 100 - current,
			HourlyCostRate:      emp.HourlyCostRate,
			EstimatedCost:       allocatedHours * emp.HourlyCostRate,
		}
		if row.AvailableAllocation >= percentage {
			result.Available = append(result.Available, row)
		} else {
			result.Unavailable = append(result.Unavailable, row)
		}
	}

	// 可用组按剩余额度降序，不可用组按当前占用升序（先看最接近可用的）
	sort.SliceStable(result.Available, func(i, j int) bool {
		return result.Available[i].AvailableAllocation > result.Available[j].AvailableAllocation
	})
	sort.SliceStable(result.Unavailable, func(i, j int) bool {
		return result.Unavailable[i].CurrentAllocation < result.Unavailable[j].CurrentAllocation
	})

	return result, nil
}
