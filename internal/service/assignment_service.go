package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignmentService 项目人员分配生命周期服务
type AssignmentService struct {
	assignmentRepo *repository.AssignmentRepository
	projectRepo    *repository.ProjectRepository
	employeeRepo   *repository.EmployeeRepository
	logger         *zap.Logger
}

// NewAssignmentService 创建分配服务
func NewAssignmentService(
	assignmentRepo *repository.AssignmentRepository,
	projectRepo *repository.ProjectRepository,
	employeeRepo *repository.EmployeeRepository,
	logger *zap.Logger,
) *AssignmentService {
	return &AssignmentService{
		assignmentRepo: assignmentRepo,
		projectRepo:    projectRepo,
		employeeRepo:   employeeRepo,
		logger:         logger,
	}
}

// Validate 分配单据校验：end ≥ start，比例 ∈ [0,100]，引用存在
func (s *AssignmentService) Validate(assignment *entity.ProjectAssignment) error {
	if assignment.ProjectID == "" || assignment.EmployeeID == "" {
		return NewValidationError("project and employee are required")
	}
	if assignment.EndDate.Before(assignment.StartDate) {
		return NewValidationError("end date %s cannot be before start date %s",
			entity.FormatDate(assignment.EndDate), entity.FormatDate(assignment.StartDate))
	}
	if assignment.AllocationPercentage < 0 || assignment.AllocationPercentage > 100 {
		return NewValidationError("allocation percentage must be between 0 and 100, got %.2f", assignment.AllocationPercentage)
	}
	return nil
}

// CreateAssignmentRequest 创建分配参数
type CreateAssignmentRequest struct {
	ProjectID            string  `json:"project_id" binding:"required"`
	EmployeeID           string  `json:"employee_id" binding:"required"`
	StartDate            string  `json:"start_date" binding:"required"`
	EndDate              string  `json:"end_date" binding:"required"`
	AllocationPercentage float64 `json:"allocation_percentage"`
	EstimatedTotalCost   float64 `json:"estimated_total_cost"`
}

// CreateDraft 创建草稿分配，status 按当日推导
func (s *AssignmentService) CreateDraft(ctx context.Context, req *CreateAssignmentRequest, actor Actor) (*entity.ProjectAssignment, error) {
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
	if _, err := s.employeeRepo.FindByID(ctx, req.EmployeeID); err != nil {
		return nil, fmt.Errorf("employee not found: %w", err)
	}

	now := time.Now()
	assignment := &entity.ProjectAssignment{
		ID:                   strings.ReplaceAll(uuid.New().String(), "-", ""),
		ProjectID:            req.ProjectID,
		EmployeeID:           req.EmployeeID,
		StartDate:            start,
		EndDate:              end,
		AllocationPercentage: req.AllocationPercentage,
		Status:               entity.ResolveStatus(entity.DateOnly(now), start, end),
		DocStatus:            entity.DocStatusDraft,
		EstimatedTotalCost:   req.EstimatedTotalCost,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.Validate(assignment); err != nil {
		return nil, err
	}

	if err := s.assignmentRepo.Create(ctx, assignment); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return assignment, nil
}

// Submit 提交分配：重算 status、补生成 allocation_reference、累加项目成本
func (s *AssignmentService) Submit(ctx context.Context, id string, actor Actor) (*entity.ProjectAssignment, error) {
	assignment, err := s.assignmentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	if assignment.DocStatus != entity.DocStatusDraft {
		return nil, NewValidationError("only draft assignments can be submitted")
	}
	if err := s.Validate(assignment); err != nil {
		return nil, err
	}

	today := entity.DateOnly(time.Now())
	assignment.Status = entity.ResolveStatus(today, assignment.StartDate, assignment.EndDate)
	assignment.DocStatus = entity.DocStatusSubmitted
	if assignment.AllocationReference == "" {
		assignment.AllocationReference = GenerateAssignmentReference(assignment.ID, assignment.CreatedAt)
	}
	assignment.UpdatedAt = time.Now()

	if err := s.assignmentRepo.SubmitWithCost(ctx, assignment); err != nil {
		return nil, fmt.Errorf("submit assignment: %w", err)
	}

	s.logger.Info("assignment submitted",
		zap.String("assignment_id", assignment.ID),
		zap.String("status", assignment.Status),
		zap.String("reference", assignment.AllocationReference),
	)
	return assignment, nil
}

// Cancel 取消分配并回冲提交时的项目成本
func (s *AssignmentService) Cancel(ctx context.Context, id string, actor Actor) error {
	assignment, err := s.assignmentRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find assignment: %w", err)
	}
	if assignment.DocStatus != entity.DocStatusSubmitted {
		return NewValidationError("only submitted assignments can be cancelled")
	}

	if err := s.assignmentRepo.CancelWithCost(ctx, assignment); err != nil {
		return fmt.Errorf("cancel assignment: %w", err)
	}

	s.logger.Info("assignment cancelled",
		zap.String("assignment_id", assignment.ID),
		zap.Float64("reversed_cost", assignment.EstimatedTotalCost),
	)
	return nil
}

// SweepAll 重算全部已提交分配的状态，只写有变化的行，整批一个事务
// 同一天重复执行不产生新写入；中途失败整批回滚，下次运行自愈
func (s *AssignmentService) SweepAll(ctx context.Context, today time.Time) (int, error) {
	assignments, err := s.assignmentRepo.ListSubmitted(ctx)
	if err != nil {
		return 0, fmt.Errorf("list submitted assignments: %w", err)
	}

	changes := make(map[string][]string)
	changed := 0
	for _, a := range assignments {
		next := entity.ResolveStatus(today, a.StartDate, a.EndDate)
		if next != a.Status {
			changes[next] = append(changes[next], a.ID)
			changed++
		}
	}

	if err := s.assignmentRepo.ApplySweep(ctx, changes); err != nil {
		return 0, fmt.Errorf("apply status sweep: %w", err)
	}

	if changed > 0 {
		s.logger.Info("assignment status sweep finished",
			zap.String("today", entity.FormatDate(today)),
			zap.Int("scanned", len(assignments)),
			zap.Int("updated", changed),
		)
	}
	return changed, nil
}

// RequestEndDateChange 调整已提交分配的结束日期并落审计记录
// 不立即改 status，等每日重算或下次保存修正
func (s *AssignmentService) RequestEndDateChange(ctx context.Context, id string, newEndDate time.Time, reason string, actor Actor) error {
	assignment, err := s.assignmentRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find assignment: %w", err)
	}
	if assignment.DocStatus != entity.DocStatusSubmitted {
		return NewValidationError("end date change requires a submitted assignment")
	}
	if !newEndDate.After(assignment.StartDate) {
		return NewValidationError("new end date %s must be after start date %s",
			entity.FormatDate(newEndDate), entity.FormatDate(assignment.StartDate))
	}
	if reason == "" {
		return NewValidationError("a reason is required for an end date change")
	}

	oldEnd := assignment.EndDate
	if err := s.assignmentRepo.UpdateFields(ctx, id, map[string]interface{}{
		"end_date": newEndDate,
	}); err != nil {
		return fmt.Errorf("update end date: %w", err)
	}

	note := &entity.AssignmentNote{
		ID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
		AssignmentID: id,
		Kind:         entity.NoteKindEndDateChange,
		Content: fmt.Sprintf("End date changed from %s to %s. Reason: %s",
			entity.FormatDate(oldEnd), entity.FormatDate(newEndDate), reason),
		CreatedBy: actor.ID,
		CreatedAt: time.Now(),
	}
	if err := s.assignmentRepo.AddNote(ctx, note); err != nil {
		return fmt.Errorf("add audit note: %w", err)
	}

	s.logger.Info("assignment end date changed",
		zap.String("assignment_id", id),
		zap.String("old_end", entity.FormatDate(oldEnd)),
		zap.String("new_end", entity.FormatDate(newEndDate)),
	)
	return nil
}

// RequestAllocationChange 自生效日起调整占用比例
// 原分配截断到生效日前一天，新比例的后继分配覆盖剩余区间并直接提交，返回后继ID
func (s *AssignmentService) RequestAllocationChange(ctx context.Context, id string, newPercentage float64, effectiveDate time.Time, reason string, actor Actor) (string, error) {
	assignment, err := s.assignmentRepo.FindByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("find assignment: %w", err)
	}
	if assignment.DocStatus != entity.DocStatusSubmitted {
		return "", NewValidationError("allocation change requires a submitted assignment")
	}
	if newPercentage < 0 || newPercentage > 100 {
		return "", NewValidationError("allocation percentage must be between 0 and 100, got %.2f", newPercentage)
	}
	// 生效日必须落在 (start, end] 内
	if !effectiveDate.After(assignment.StartDate) || effectiveDate.After(assignment.EndDate) {
		return "", NewValidationError("effective date %s must be within (%s, %s]",
			entity.FormatDate(effectiveDate),
			entity.FormatDate(assignment.StartDate), entity.FormatDate(assignment.EndDate))
	}
	if reason == "" {
		return "", NewValidationError("a reason is required for an allocation change")
	}

	now := time.Now()
	today := entity.DateOnly(now)
	originalEnd := assignment.EndDate
	truncatedEnd := effectiveDate.AddDate(0, 0, -1)

	successor := &entity.ProjectAssignment{
		ID:                   strings.ReplaceAll(uuid.New().String(), "-", ""),
		ProjectID:            assignment.ProjectID,
		EmployeeID:           assignment.EmployeeID,
		StartDate:            effectiveDate,
		EndDate:              originalEnd,
		AllocationPercentage: newPercentage,
		Status:               entity.ResolveStatus(today, effectiveDate, originalEnd),
		DocStatus:            entity.DocStatusSubmitted,
		AllocationReference:  fmt.Sprintf("%s/%s", assignment.AllocationReference, entity.FormatDate(effectiveDate)),
		EstimatedTotalCost:   prorateCost(assignment, effectiveDate, originalEnd, newPercentage),
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	assignment.EndDate = truncatedEnd
	assignment.Status = entity.ResolveStatus(today, assignment.StartDate, truncatedEnd)

	notes := []entity.AssignmentNote{
		{
			ID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
			AssignmentID: assignment.ID,
			Kind:         entity.NoteKindAllocationChange,
			Content: fmt.Sprintf("Allocation change effective %s: end date truncated from %s to %s, successor %s at %.2f%%. Reason: %s",
				entity.FormatDate(effectiveDate), entity.FormatDate(originalEnd),
				entity.FormatDate(truncatedEnd), successor.ID, newPercentage, reason),
			CreatedBy: actor.ID,
			CreatedAt: now,
		},
		{
			ID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
			AssignmentID: successor.ID,
			Kind:         entity.NoteKindSplitSuccessor,
			Content: fmt.Sprintf("Created by allocation change on %s, continues from %s. Reason: %s",
				assignment.ID, entity.FormatDate(effectiveDate), reason),
			CreatedBy: actor.ID,
			CreatedAt: now,
		},
	}

	if err := s.assignmentRepo.Split(ctx, assignment, successor, notes); err != nil {
		return "", fmt.Errorf("split assignment: %w", err)
	}

	s.logger.Info("assignment allocation changed",
		zap.String("assignment_id", assignment.ID),
		zap.String("successor_id", successor.ID),
		zap.Float64("new_percentage", newPercentage),
		zap.String("effective_date", entity.FormatDate(effectiveDate)),
	)
	return successor.ID, nil
}

// WorkloadResult 员工负载汇总
type WorkloadResult struct {
	EmployeeID      string  `json:"employee_id"`
	TotalAllocation float64 `json:"total_allocation"`
	IsOverallocated bool    `json:"is_overallocated"`
}

// EmployeeWorkload 员工占用比例粗算
// 直接对窗口内重叠的 Planned/Active 分配比例求和，不按子区间加权，
// 跨时段拼接的结果会偏高，调用方需自行理解口径
func (s *AssignmentService) EmployeeWorkload(ctx context.Context, employeeID string, start, end time.Time) (*WorkloadResult, error) {
	if _, err := s.employeeRepo.FindByID(ctx, employeeID); err != nil {
		return nil, fmt.Errorf("employee not found: %w", err)
	}
	total, err := s.assignmentRepo.WorkloadTotal(ctx, employeeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum workload: %w", err)
	}
	return &WorkloadResult{
		EmployeeID:      employeeID,
		TotalAllocation: total,
		IsOverallocated: total > 100,
	}, nil
}

// Get 获取分配详情
func (s *AssignmentService) Get(ctx context.Context, id string) (*entity.ProjectAssignment, error) {
	return s.assignmentRepo.FindByID(ctx, id)
}

// AssignmentListResult 分配列表结果
type AssignmentListResult struct {
	Items      []entity.ProjectAssignment `json:"items"`
	Total      int64                      `json:"total"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"page_size"`
	TotalPages int                        `json:"total_pages"`
}

// List 获取分配列表
func (s *AssignmentService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) (*AssignmentListResult, error) {
	assignments, total, err := s.assignmentRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &AssignmentListResult{
		Items:      assignments,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// AssignmentHistory 分配链与审计记录
type AssignmentHistory struct {
	Related []entity.ProjectAssignment `json:"related_assignments"`
	Notes   []entity.AssignmentNote    `json:"notes"`
}

// History 获取分配的拆分链与审计记录
func (s *AssignmentService) History(ctx context.Context, id string) (*AssignmentHistory, error) {
	assignment, err := s.assignmentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find assignment: %w", err)
	}

	history := &AssignmentHistory{
		Related: []entity.ProjectAssignment{},
		Notes:   []entity.AssignmentNote{},
	}
	if assignment.AllocationReference != "" {
		related, err := s.assignmentRepo.ListChain(ctx, assignment.AllocationReference)
		if err != nil {
			return nil, fmt.Errorf("list assignment chain: %w", err)
		}
		history.Related = related
	} else {
		history.Related = []entity.ProjectAssignment{*assignment}
	}

	notes, err := s.assignmentRepo.ListNotes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list audit notes: %w", err)
	}
	history.Notes = notes
	return history, nil
}

// GenerateAssignmentReference 生成分配引用：记录ID前缀 + 创建日期，结果确定
func GenerateAssignmentReference(id string, createdAt time.Time) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("PA-%s-%s", short, createdAt.Format("20060102"))
}

// prorateCost 按剩余区间和新比例折算后继分配的预估成本
func prorateCost(original *entity.ProjectAssignment, start, end time.Time, newPercentage float64) float64 {
	if original.AllocationPercentage == 0 {
		return 0
	}
	totalDays := entity.DaysInclusive(original.StartDate, original.EndDate)
	if totalDays <= 0 {
		return 0
	}
	dailyAtFull := original.EstimatedTotalCost / float64(totalDays) / original.AllocationPercentage * 100
	return dailyAtFull * float64(entity.DaysInclusive(start, end)) * newPercentage / 100
}
