package entity

import (
	"time"
)

// ProjectAssignment 项目人员分配
// 由审批通过的资源分配申请生成，status 按日期每日重算
type ProjectAssignment struct {
	ID                   string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID            string    `json:"project_id" gorm:"size:32;not null;index"`
	EmployeeID           string    `json:"employee_id" gorm:"size:32;not null;index:idx_assignments_employee_dates"`
	StartDate            time.Time `json:"start_date" gorm:"type:date;not null;index:idx_assignments_employee_dates"`
	EndDate              time.Time `json:"end_date" gorm:"type:date;not null;index:idx_assignments_employee_dates"`
	AllocationPercentage float64   `json:"allocation_percentage" gorm:"type:decimal(5,2);not null"`
	Status               string    `json:"status" gorm:"size:16;not null;default:Planned;index"`
	DocStatus            int       `json:"doc_status" gorm:"not null;default:0;index"`
	AllocationReference  string    `json:"allocation_reference" gorm:"size:64;uniqueIndex"`
	EstimatedTotalCost   float64   `json:"estimated_total_cost" gorm:"type:decimal(15,2)"`
	CreatedBy            string    `json:"created_by" gorm:"size:32"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`

	// 关联
	Project  *Project  `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Employee *Employee `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
	Notes    []AssignmentNote `json:"notes,omitempty" gorm:"foreignKey:AssignmentID"`
}

func (ProjectAssignment) TableName() string {
	return "project_assignments"
}

// AssignmentNote 分配变更审计记录
type AssignmentNote struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	AssignmentID string    `json:"assignment_id" gorm:"size:32;not null;index"`
	Kind         string    `json:"kind" gorm:"size:32;not null"`
	Content      string    `json:"content" gorm:"type:text;not null"`
	CreatedBy    string    `json:"created_by" gorm:"size:32"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AssignmentNote) TableName() string {
	return "assignment_notes"
}

// 分配状态常量（报表按这些字符串匹配，不可改动）
const (
	AssignmentStatusPlanned   = "Planned"
	AssignmentStatusActive    = "Active"
	AssignmentStatusCompleted = "Completed"
)

// 单据状态常量
const (
	DocStatusDraft     = 0
	DocStatusSubmitted = 1
	DocStatusCancelled = 2
)

// 审计记录类型常量
const (
	NoteKindEndDateChange    = "end_date_change"
	NoteKindAllocationChange = "allocation_change"
	NoteKindSplitSuccessor   = "split_successor"
)

// ResolveStatus 根据今天与起止日期推导分配状态
// today < start → Planned；start ≤ today ≤ end → Active；today > end → Completed
// 入参必须是纯日期（无时分秒），today 由调用方传入以便测试
func ResolveStatus(today, start, end time.Time) string {
	if today.Before(start) {
		return AssignmentStatusPlanned
	}
	if today.After(end) {
		return AssignmentStatusCompleted
	}
	return AssignmentStatusActive
}

// DateOnly 截断到日历日期
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 YYYY-MM-DD 格式日期
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// FormatDate 输出 YYYY-MM-DD 格式日期
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// DaysInclusive 闭区间天数（end − start + 1）
func DaysInclusive(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

// DatesOverlap 闭区间重叠判定：start ≤ otherEnd 且 end ≥ otherStart
func DatesOverlap(start, end, otherStart, otherEnd time.Time) bool {
	return !start.After(otherEnd) && !end.Before(otherStart)
}

// RemainingDays 距结束日期的天数，结束日当天为 0
func (a *ProjectAssignment) RemainingDays(today time.Time) int {
	if today.After(a.EndDate) {
		return 0
	}
	return int(a.EndDate.Sub(today).Hours() / 24)
}
