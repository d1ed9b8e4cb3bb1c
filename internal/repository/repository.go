package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Repositories 仓库集合
type Repositories struct {
	Allocation *AllocationRepository
	Assignment *AssignmentRepository
	Employee   *EmployeeRepository
	Project    *ProjectRepository
	User       *UserRepository
	Report     *ReportRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Allocation: NewAllocationRepository(db),
		Assignment: NewAssignmentRepository(db),
		Employee:   NewEmployeeRepository(db),
		Project:    NewProjectRepository(db),
		User:       NewUserRepository(db),
		Report:     NewReportRepository(db),
	}
}
