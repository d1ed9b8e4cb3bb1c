package entity

import (
	"time"
)

// Project 项目实体
type Project struct {
	ID                string     `json:"id" gorm:"primaryKey;size:32"`
	Code              string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name              string     `json:"name" gorm:"size:128;not null"`
	Status            string     `json:"status" gorm:"size:16;not null;default:active"`
	Description       string     `json:"description" gorm:"type:text"`
	OwnerID           string     `json:"owner_id" gorm:"size:32"`
	PlannedStart      *time.Time `json:"planned_start" gorm:"type:date"`
	PlannedEnd        *time.Time `json:"planned_end" gorm:"type:date"`
	TotalStaffingCost float64    `json:"total_staffing_cost" gorm:"type:decimal(15,2);not null;default:0"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at" gorm:"index"`

	// 关联
	Owner       *User               `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Assignments []ProjectAssignment `json:"assignments,omitempty" gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string {
	return "projects"
}
