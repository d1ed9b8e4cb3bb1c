package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationService 资源分配申请审批流服务
// 状态机：Draft → Requested → Approved / Rejected，终态仅管理员可改
type AllocationService struct {
	allocationRepo *repository.AllocationRepository
	assignmentRepo *repository.AssignmentRepository
	projectRepo    *repository.ProjectRepository
	availability   *AvailabilityService
	notify         *NotifyService
	logger         *zap.Logger
}

// NewAllocationService 创建审批流服务
func NewAllocationService(
	allocationRepo *repository.AllocationRepository,
	assignmentRepo *repository.AssignmentRepository,
	projectRepo *repository.ProjectRepository,
	availability *AvailabilityService,
	notify *NotifyService,
	logger *zap.Logger,
) *AllocationService {
	return &AllocationService{
		allocationRepo: allocationRepo,
		assignmentRepo: assignmentRepo,
		projectRepo:    projectRepo,
		availability:   availability,
		notify:         notify,
		logger:         logger,
	}
}

// CreateAllocationRequest 创建申请参数
type CreateAllocationRequest struct {
	ProjectID            string  `json:"project_id" binding:"required"`
	StartDate            string  `json:"start_date" binding:"required"`
	EndDate              string  `json:"end_date" binding:"required"`
	AllocationPercentage float64 `json:"allocation_percentage" binding:"required"`
	Notes                string  `json:"notes"`
}

// Create 创建草稿申请单并生成候选员工表
// 候选表是建单时点的可用性快照，审批时会重新核验
func (s *AllocationService) Create(ctx context.Context, req *CreateAllocationRequest, actor Actor) (*entity.ResourceAllocation, error) {
	start, err := entity.ParseDate(req.StartDate)
	if err != nil {
		return nil, NewValidationError("invalid start date %q", req.StartDate)
	}
	end, err := entity.ParseDate(req.EndDate)
	if err != nil {
		return nil, NewValidationError("invalid end date %q", req.EndDate)
	}
	if _, err := s.projectRepo.FindByID(ctx, req.ProjectID); err != nil {
		return nil, fmt.Errorf("project not found: %w", err)
	}

	result, err := s.availability.Compute(ctx, start, end, req.AllocationPercentage, "")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	alloc := &entity.ResourceAllocation{
		ID:                   strings.ReplaceAll(uuid.New().String(), "-", ""),
		ProjectID:            req.ProjectID,
		StartDate:            start,
		EndDate:              end,
		AllocationPercentage: req.AllocationPercentage,
		Status:               entity.AllocationStatusDraft,
		DocStatus:            entity.DocStatusDraft,
		RequestedBy:          actor.ID,
		RequestDate:          entity.DateOnly(now),
		Notes:                req.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.allocationRepo.Create(ctx, alloc); err != nil {
		return nil, fmt.Errorf("create allocation: %w", err)
	}

	candidates := buildCandidates(alloc.ID, result, now)
	if err := s.allocationRepo.ReplaceCandidates(ctx, alloc.ID, candidates); err != nil {
		return nil, fmt.Errorf("create candidates: %w", err)
	}

	return s.allocationRepo.FindByID(ctx, alloc.ID)
}

// buildCandidates 把可用性结果摊平成候选行，可用在前
func buildCandidates(allocationID string, result *AvailabilityResult, now time.Time) []entity.AllocationCandidate {
	candidates := make([]entity.AllocationCandidate, 0, len(result.Available)+len(result.Unavailable))
	add := func(rows []EmployeeAvailability, available bool) {
		for _, row := range rows {
			candidates = append(candidates, entity.AllocationCandidate{
				ID:                  strings.ReplaceAll(uuid.New().String(), "-", ""),
				AllocationID:        allocationID,
				EmployeeID:          row.EmployeeID,
				CurrentAllocation:   row.CurrentAllocation,
				AvailableAllocation: row.AvailableAllocation,
				HourlyCostRate:      row.HourlyCostRate,
				EstimatedCost:       row.EstimatedCost,
				IsAvailable:         available,
				CreatedAt:           now,
			})
		}
	}
	add(result.Available, true)
	add(result.Unavailable, false)
	return candidates
}

// RefreshCandidates 重算草稿申请单的候选员工表
func (s *AllocationService) RefreshCandidates(ctx context.Context, id string, actor Actor) (*entity.ResourceAllocation, error) {
	alloc, err := s.allocationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find allocation: %w", err)
	}
	if alloc.Status != entity.AllocationStatusDraft {
		return nil, NewValidationError("candidates can only be refreshed on draft allocations")
	}
	if alloc.RequestedBy != actor.ID && !actor.HasRole(entity.RoleAdmin) {
		return nil, NewPermissionError("only the requester can modify this allocation")
	}

	result, err := s.availability.Compute(ctx, alloc.StartDate, alloc.EndDate, alloc.AllocationPercentage, "")
	if err != nil {
		return nil, err
	}
	if err := s.allocationRepo.ReplaceCandidates(ctx, alloc.ID, buildCandidates(alloc.ID, result, time.Now())); err != nil {
		return nil, fmt.Errorf("replace candidates: %w", err)
	}
	return s.allocationRepo.FindByID(ctx, id)
}

// UpdateAllocationRequest 修改草稿参数
type UpdateAllocationRequest struct {
	StartDate            string   `json:"start_date"`
	EndDate              string   `json:"end_date"`
	AllocationPercentage *float64 `json:"allocation_percentage"`
	Notes                *string  `json:"notes"`
}

// Update 修改申请单
// 终态（Approved/Rejected）只有管理员可改；日期或比例变动会重建候选表
func (s *AllocationService) Update(ctx context.Context, id string, req *UpdateAllocationRequest, actor Actor) (*entity.ResourceAllocation, error) {
	alloc, err := s.allocationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find allocation: %w", err)
	}
	if alloc.Status == entity.AllocationStatusApproved || alloc.Status == entity.AllocationStatusRejected {
		if !actor.HasRole(entity.RoleAdmin) {
			return nil, NewPermissionError("allocation %s is %s and can no longer be modified", alloc.ID, alloc.Status)
		}
	} else if alloc.RequestedBy != actor.ID && !actor.HasRole(entity.RoleAdmin) {
		return nil, NewPermissionError("only the requester can modify this allocation")
	}

	termsChanged := false
	if req.StartDate != "" {
		start, err := entity.ParseDate(req.StartDate)
		if err != nil {
			return nil, NewValidationError("invalid start date %q", req.StartDate)
		}
		alloc.StartDate = start
		termsChanged = true
	}
	if req.EndDate != "" {
		end, err := entity.ParseDate(req.EndDate)
		if err != nil {
			return nil, NewValidationError("invalid end date %q", req.EndDate)
		}
		alloc.EndDate = end
		termsChanged = true
	}
	if req.AllocationPercentage != nil {
		if *req.AllocationPercentage < 0 || *req.AllocationPercentage > 100 {
			return nil, NewValidationError("allocation percentage must be between 0 and 100, got %.2f", *req.AllocationPercentage)
		}
		alloc.AllocationPercentage = *req.AllocationPercentage
		termsChanged = true
	}
	if req.Notes != nil {
		alloc.Notes = *req.Notes
	}
	if alloc.EndDate.Before(alloc.StartDate) {
		return nil, NewValidationError("end date %s cannot be before start date %s",
			entity.FormatDate(alloc.EndDate), entity.FormatDate(alloc.StartDate))
	}

	alloc.UpdatedAt = time.Now()
	if err := s.allocationRepo.Update(ctx, alloc); err != nil {
		return nil, fmt.Errorf("update allocation: %w", err)
	}

	if termsChanged && alloc.Status == entity.AllocationStatusDraft {
		result, err := s.availability.Compute(ctx, alloc.StartDate, alloc.EndDate, alloc.AllocationPercentage, "")
		if err != nil {
			return nil, err
		}
		if err := s.allocationRepo.ReplaceCandidates(ctx, alloc.ID, buildCandidates(alloc.ID, result, time.Now())); err != nil {
			return nil, fmt.Errorf("replace candidates: %w", err)
		}
	}
	return s.allocationRepo.FindByID(ctx, id)
}

// Request 发起审批：Draft → Requested
// employeeID 非空时先勾选该候选行；必须恰好勾选一名且其可用
func (s *AllocationService) Request(ctx context.Context, id, employeeID string, actor Actor) (*entity.ResourceAllocation, error) {
	alloc, err := s.allocationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find allocation: %w", err)
	}
	if alloc.Status != entity.AllocationStatusDraft {
		return nil, &InvalidTransitionError{From: alloc.Status, To: entity.AllocationStatusRequested}
	}
	if alloc.RequestedBy != actor.ID && !actor.HasRole(entity.RoleAdmin) {
		return nil, NewPermissionError("only the requester can submit this allocation")
	}

	if employeeID != "" {
		if err := s.allocationRepo.SelectCandidate(ctx, alloc.ID, employeeID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, NewValidationError("employee %s is not a candidate on this allocation", employeeID)
			}
			return nil, fmt.Errorf("select candidate: %w", err)
		}
		alloc, err = s.allocationRepo.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload allocation: %w", err)
		}
	}

	selected := alloc.SelectedCandidate()
	if selected == nil {
		return nil, NewValidationError("exactly one candidate employee must be selected")
	}
	if !selected.IsAvailable {
		return nil, NewValidationError("selected employee is not available for the requested period")
	}

	if err := s.allocationRepo.UpdateStatus(ctx, alloc.ID, entity.AllocationStatusRequested); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	alloc.Status = entity.AllocationStatusRequested

	s.logger.Info("allocation requested",
		zap.String("allocation_id", alloc.ID),
		zap.String("employee_id", selected.EmployeeID),
		zap.String("requested_by", actor.ID))

	if s.notify != nil {
		go s.notify.NotifyApprovers(context.Background(), alloc, selected)
	}
	return alloc, nil
}

// Approve 审批通过：Requested → Approved
// 复核可用性（剔除本单引用），通过后单事务生成分配并提交
func (s *AllocationService) Approve(ctx context.Context, id string, actor Actor) (*entity.ResourceAllocation, *entity.ProjectAssignment, error) {
	if !actor.HasRole(entity.RoleApprover) && !actor.HasRole(entity.RoleAdmin) {
		return nil, nil, NewPermissionError("only approvers can approve allocations")
	}
	alloc, err := s.allocationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("find allocation: %w", err)
	}
	if alloc.Status != entity.AllocationStatusRequested {
		return nil, nil, &InvalidTransitionError{From: alloc.Status, To: entity.AllocationStatusApproved}
	}
	selected := alloc.SelectedCandidate()
	if selected == nil {
		return nil, nil, NewValidationError("exactly one candidate employee must be selected")
	}

	// 先快速查重，事务内还会再守一次
	if _, err := s.assignmentRepo.FindByReference(ctx, alloc.ID); err == nil {
		return nil, nil, &ConflictError{Message: fmt.Sprintf("allocation %s already has an assignment", alloc.ID)}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("check existing assignment: %w", err)
	}

	// 审批时点复核，防止建单后该员工被其他项目占满
	result, err := s.availability.Compute(ctx, alloc.StartDate, alloc.EndDate, alloc.AllocationPercentage, alloc.ID)
	if err != nil {
		return nil, nil, err
	}
	var current *EmployeeAvailability
	for i := range result.Available {
		if result.Available[i].EmployeeID == selected.EmployeeID {
			current = &result.Available[i]
			break
		}
	}
	if current == nil {
		return nil, nil, NewValidationError("employee %s is no longer available for the requested period", selected.EmployeeID)
	}

	now := time.Now()
	assignment := &entity.ProjectAssignment{
		ID:                   strings.ReplaceAll(uuid.New().String(), "-", ""),
		ProjectID:            alloc.ProjectID,
		EmployeeID:           selected.EmployeeID,
		StartDate:            alloc.StartDate,
		EndDate:              alloc.EndDate,
		AllocationPercentage: alloc.AllocationPercentage,
		Status:               entity.ResolveStatus(entity.DateOnly(now), alloc.StartDate, alloc.EndDate),
		DocStatus:            entity.DocStatusSubmitted,
		AllocationReference:  alloc.ID,
		EstimatedTotalCost:   current.EstimatedCost,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.allocationRepo.ApproveAndSubmit(ctx, alloc.ID, assignment); err != nil {
		if errors.Is(err, repository.ErrDuplicateAssignment) {
			return nil, nil, &ConflictError{Message: fmt.Sprintf("allocation %s already has an assignment", alloc.ID)}
		}
		return nil, nil, fmt.Errorf("approve allocation: %w", err)
	}
	alloc.Status = entity.AllocationStatusApproved
	alloc.DocStatus = entity.DocStatusSubmitted

	s.logger.Info("allocation approved",
		zap.String("allocation_id", alloc.ID),
		zap.String("assignment_id", assignment.ID),
		zap.String("employee_id", selected.EmployeeID),
		zap.Float64("estimated_cost", assignment.EstimatedTotalCost),
		zap.String("approved_by", actor.ID))

	if s.notify != nil {
		go s.notify.NotifyDecision(context.Background(), alloc, selected, true, "")
	}
	return alloc, assignment, nil
}

// Reject 审批驳回：Requested → Rejected，驳回原因追加到备注
func (s *AllocationService) Reject(ctx context.Context, id, reason string, actor Actor) (*entity.ResourceAllocation, error) {
	if !actor.HasRole(entity.RoleApprover) && !actor.HasRole(entity.RoleAdmin) {
		return nil, NewPermissionError("only approvers can reject allocations")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, NewValidationError("rejection reason is required")
	}
	alloc, err := s.allocationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find allocation: %w", err)
	}
	if alloc.Status != entity.AllocationStatusRequested {
		return nil, &InvalidTransitionError{From: alloc.Status, To: entity.AllocationStatusRejected}
	}

	note := fmt.Sprintf("Rejection Reason (%s): %s", entity.FormatDate(entity.DateOnly(time.Now())), reason)
	notes := alloc.Notes
	if notes != "" {
		notes += "\n"
	}
	notes += note

	if err := s.allocationRepo.UpdateNotes(ctx, alloc.ID, notes); err != nil {
		return nil, fmt.Errorf("update notes: %w", err)
	}
	if err := s.allocationRepo.UpdateStatus(ctx, alloc.ID, entity.AllocationStatusRejected); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	alloc.Status = entity.AllocationStatusRejected
	alloc.Notes = notes

	s.logger.Info("allocation rejected",
		zap.String("allocation_id", alloc.ID),
		zap.String("rejected_by", actor.ID))

	if s.notify != nil {
		go s.notify.NotifyDecision(context.Background(), alloc, alloc.SelectedCandidate(), false, reason)
	}
	return alloc, nil
}

// Get 查询单条申请
func (s *AllocationService) Get(ctx context.Context, id string) (*entity.ResourceAllocation, error) {
	return s.allocationRepo.FindByID(ctx, id)
}

// AllocationListResult 申请单分页结果
type AllocationListResult struct {
	Items    []entity.ResourceAllocation `json:"items"`
	Total    int64                       `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}

// List 查询申请列表
func (s *AllocationService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) (*AllocationListResult, error) {
	items, total, err := s.allocationRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return &AllocationListResult{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
