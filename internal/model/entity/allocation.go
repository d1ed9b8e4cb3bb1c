package entity

import (
	"time"
)

// ResourceAllocation 资源分配申请
// 员工按比例投入项目的申请单，走 Draft → Requested → Approved/Rejected 流程
type ResourceAllocation struct {
	ID                   string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID            string    `json:"project_id" gorm:"size:32;not null;index"`
	StartDate            time.Time `json:"start_date" gorm:"type:date;not null"`
	EndDate              time.Time `json:"end_date" gorm:"type:date;not null"`
	AllocationPercentage float64   `json:"allocation_percentage" gorm:"type:decimal(5,2);not null"`
	Status               string    `json:"status" gorm:"size:16;not null;default:Draft;index"`
	DocStatus            int       `json:"doc_status" gorm:"not null;default:0"`
	RequestedBy          string    `json:"requested_by" gorm:"size:32;not null;index"`
	RequestDate          time.Time `json:"request_date" gorm:"type:date"`
	Notes                string    `json:"notes" gorm:"type:text"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`

	// 关联
	Project    *Project              `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Requester  *User                 `json:"requester,omitempty" gorm:"foreignKey:RequestedBy"`
	Candidates []AllocationCandidate `json:"candidates,omitempty" gorm:"foreignKey:AllocationID"`
}

func (ResourceAllocation) TableName() string {
	return "resource_allocations"
}

// AllocationCandidate 候选员工行
// 随申请单创建/销毁，记录建表时的可用性与成本快照
type AllocationCandidate struct {
	ID                  string    `json:"id" gorm:"primaryKey;size:32"`
	AllocationID        string    `json:"allocation_id" gorm:"size:32;not null;index"`
	EmployeeID          string    `json:"employee_id" gorm:"size:32;not null"`
	CurrentAllocation   float64   `json:"current_allocation" gorm:"type:decimal(5,2)"`
	AvailableAllocation float64   `json:"available_allocation" gorm:"type:decimal(5,2)"`
	HourlyCostRate      float64   `json:"hourly_cost_rate" gorm:"type:decimal(10,2)"`
	EstimatedCost       float64   `json:"estimated_cost" gorm:"type:decimal(15,2)"`
	IsAvailable         bool      `json:"is_available" gorm:"not null;default:false"`
	SelectEmployee      bool      `json:"select_employee" gorm:"not null;default:false"`
	CreatedAt           time.Time `json:"created_at"`

	// 关联
	Employee *Employee `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
}

func (AllocationCandidate) TableName() string {
	return "allocation_candidates"
}

// 申请状态常量（报表按这些字符串匹配，不可改动）
const (
	AllocationStatusDraft     = "Draft"
	AllocationStatusRequested = "Requested"
	AllocationStatusApproved  = "Approved"
	AllocationStatusRejected  = "Rejected"
)

// 角色常量
const (
	RoleApprover = "staffing_approver"
	RoleAdmin    = "staffing_admin"
)

// SelectedCandidate 返回唯一勾选的候选员工，勾选数不为 1 时返回 nil
func (a *ResourceAllocation) SelectedCandidate() *AllocationCandidate {
	var selected *AllocationCandidate
	for i := range a.Candidates {
		if a.Candidates[i].SelectEmployee {
			if selected != nil {
				return nil
			}
			selected = &a.Candidates[i]
		}
	}
	return selected
}
