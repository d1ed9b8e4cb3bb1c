package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"gorm.io/gorm"
)

// ReportRepository 报表聚合查询（只读）
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建报表仓库
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// StatusSummaryRow 按状态统计行
type StatusSummaryRow struct {
	Status         string `json:"status"`
	Count          int64  `json:"count"`
	SubmittedCount int64  `json:"submitted_count"`
}

// StatusSummary 分配按状态汇总（排除已取消单据），Planned→Active→Completed 排序
func (r *ReportRepository) StatusSummary(ctx context.Context) ([]StatusSummaryRow, error) {
	var rows []StatusSummaryRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			status,
			COUNT(*) AS count,
			COUNT(CASE WHEN doc_status = 1 THEN 1 END) AS submitted_count
		FROM project_assignments
		WHERE doc_status != 2
		GROUP BY status
		ORDER BY
			CASE status
				WHEN 'Planned' THEN 1
				WHEN 'Active' THEN 2
				WHEN 'Completed' THEN 3
			END`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AllocationStatusRow 分配状态报表行
type AllocationStatusRow struct {
	AssignmentID         string    `json:"assignment_id"`
	EmployeeID           string    `json:"employee_id"`
	EmployeeName         string    `json:"employee_name"`
	Department           string    `json:"department"`
	ProjectID            string    `json:"project_id"`
	ProjectName          string    `json:"project_name"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
	AllocationPercentage float64   `json:"allocation_percentage"`
	Status               string    `json:"status"`
	RemainingDays        int       `json:"remaining_days"`
}

// AllocationStatus 已提交分配明细（供报表与导出），remaining_days 由服务层按当日补齐
func (r *ReportRepository) AllocationStatus(ctx context.Context, status string) ([]AllocationStatusRow, error) {
	var rows []AllocationStatusRow
	query := r.db.WithContext(ctx).
		Table("project_assignments pa").
		Select(`pa.id AS assignment_id,
			pa.employee_id,
			e.name AS employee_name,
			e.department,
			pa.project_id,
			p.name AS project_name,
			pa.start_date,
			pa.end_date,
			pa.allocation_percentage,
			pa.status`).
		Joins("JOIN employees e ON e.id = pa.employee_id").
		Joins("JOIN projects p ON p.id = pa.project_id").
		Where("pa.doc_status = ?", entity.DocStatusSubmitted)
	if status != "" {
		query = query.Where("pa.status = ?", status)
	}
	err := query.Order("pa.start_date ASC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// EmployeeDashboardRow 员工看板行
type EmployeeDashboardRow struct {
	EmployeeID      string  `json:"employee_id"`
	EmployeeName    string  `json:"employee_name"`
	Department      string  `json:"department"`
	ActiveCount     int64   `json:"active_count"`
	TotalAllocation float64 `json:"total_allocation"`
	IsOverallocated bool    `json:"is_overallocated"`
}

// EmployeeDashboard 每位在职员工的进行中分配数与占用比例之和
func (r *ReportRepository) EmployeeDashboard(ctx context.Context) ([]EmployeeDashboardRow, error) {
	var rows []EmployeeDashboardRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			e.id AS employee_id,
			e.name AS employee_name,
			e.department,
			COUNT(pa.id) AS active_count,
			COALESCE(SUM(pa.allocation_percentage), 0) AS total_allocation,
			COALESCE(SUM(pa.allocation_percentage), 0) > 100 AS is_overallocated
		FROM employees e
		LEFT JOIN project_assignments pa
			ON pa.employee_id = e.id
			AND pa.doc_status = 1
			AND pa.status = 'Active'
		WHERE e.status = 'Active' AND e.deleted_at IS NULL
		GROUP BY e.id, e.name, e.department
		ORDER BY total_allocation DESC`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
