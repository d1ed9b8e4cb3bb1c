package entity

import (
	"time"
)

// Employee 员工实体
type Employee struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	EmployeeNo     string     `json:"employee_no" gorm:"size:32;not null;uniqueIndex"`
	Name           string     `json:"name" gorm:"size:64;not null"`
	Department     string     `json:"department" gorm:"size:64"`
	UserID         string     `json:"user_id" gorm:"size:32;index"`
	HourlyCostRate float64    `json:"hourly_cost_rate" gorm:"type:decimal(10,2);not null;default:0"`
	Status         string     `json:"status" gorm:"size:16;not null;default:Active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at" gorm:"index"`

	// 关联
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Employee) TableName() string {
	return "employees"
}

// 员工状态常量
const (
	EmployeeStatusActive   = "Active"
	EmployeeStatusInactive = "Inactive"
)
