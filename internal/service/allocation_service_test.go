package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/bitfantasy/nimo-staffing/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAllocationTest(t *testing.T) (*gorm.DB, *repository.Repositories, *AllocationService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	availability := NewAvailabilityService(repos.Employee, repos.Assignment)
	svc := NewAllocationService(repos.Allocation, repos.Assignment, repos.Project, availability, nil, zap.NewNop())

	testutil.SeedTestProject(t, db, "proj-001", "手机研发项目")
	testutil.SeedTestUser(t, db, "u-req", "申请人")
	testutil.SeedTestEmployee(t, db, "emp-001", "张三", 100)
	testutil.SeedTestEmployee(t, db, "emp-002", "李四", 150)
	return db, repos, svc
}

func futureWindow() (string, string) {
	start := entity.DateOnly(time.Now()).AddDate(0, 0, 10)
	end := start.AddDate(0, 0, 20)
	return entity.FormatDate(start), entity.FormatDate(end)
}

func createDraftAllocation(t *testing.T, svc *AllocationService, pct float64) *entity.ResourceAllocation {
	t.Helper()
	start, end := futureWindow()
	alloc, err := svc.Create(context.Background(), &CreateAllocationRequest{
		ProjectID:            "proj-001",
		StartDate:            start,
		EndDate:              end,
		AllocationPercentage: pct,
	}, Actor{ID: "u-req"})
	if err != nil {
		t.Fatalf("Create allocation failed: %v", err)
	}
	return alloc
}

func TestAllocationCreateBuildsCandidates(t *testing.T) {
	_, _, svc := setupAllocationTest(t)

	alloc := createDraftAllocation(t, svc, 50)
	if alloc.Status != entity.AllocationStatusDraft {
		t.Errorf("expected Draft status, got %s", alloc.Status)
	}
	if len(alloc.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(alloc.Candidates))
	}
	for _, c := range alloc.Candidates {
		if !c.IsAvailable {
			t.Errorf("employee %s should be available with no existing load", c.EmployeeID)
		}
		if c.SelectEmployee {
			t.Errorf("no candidate should be pre-selected")
		}
	}
}

func TestAllocationRequestRequiresSelection(t *testing.T) {
	_, _, svc := setupAllocationTest(t)
	ctx := context.Background()

	alloc := createDraftAllocation(t, svc, 50)
	_, err := svc.Request(ctx, alloc.ID, "", Actor{ID: "u-req"})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError without a selected candidate, got %v", err)
	}
}

func TestAllocationRequestOnlyByRequester(t *testing.T) {
	_, _, svc := setupAllocationTest(t)
	ctx := context.Background()

	alloc := createDraftAllocation(t, svc, 50)
	_, err := svc.Request(ctx, alloc.ID, "emp-001", Actor{ID: "u-other"})
	var permissionErr *PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("expected PermissionError for non-requester, got %v", err)
	}
}

func TestAllocationWorkflowHappyPath(t *testing.T) {
	_, repos, svc := setupAllocationTest(t)
	ctx := context.Background()
	requester := Actor{ID: "u-req"}
	approver := Actor{ID: "u-appr", Roles: []string{entity.RoleApprover}}

	alloc := createDraftAllocation(t, svc, 50)

	requested, err := svc.Request(ctx, alloc.ID, "emp-001", requester)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if requested.Status != entity.AllocationStatusRequested {
		t.Errorf("expected Requested, got %s", requested.Status)
	}

	approved, assignment, err := svc.Approve(ctx, alloc.ID, approver)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != entity.AllocationStatusApproved {
		t.Errorf("expected Approved, got %s", approved.Status)
	}
	if assignment == nil {
		t.Fatal("expected an assignment to be created")
	}
	if assignment.AllocationReference != alloc.ID {
		t.Errorf("assignment reference should be the allocation id, got %s", assignment.AllocationReference)
	}
	if assignment.EmployeeID != "emp-001" {
		t.Errorf("expected assignment for emp-001, got %s", assignment.EmployeeID)
	}
	if assignment.DocStatus != entity.DocStatusSubmitted {
		t.Errorf("expected submitted assignment, got docstatus %d", assignment.DocStatus)
	}
	if assignment.Status != entity.AssignmentStatusPlanned {
		t.Errorf("future assignment should be Planned, got %s", assignment.Status)
	}
	// 21 days * 8h * 50% * rate 100
	if assignment.EstimatedTotalCost != 8400 {
		t.Errorf("expected estimated cost 8400, got %.2f", assignment.EstimatedTotalCost)
	}

	project, _ := repos.Project.FindByID(ctx, "proj-001")
	if project.TotalStaffingCost != assignment.EstimatedTotalCost {
		t.Errorf("project cost should match assignment cost, got %.2f", project.TotalStaffingCost)
	}

	// Approving again is an invalid transition
	_, _, err = svc.Approve(ctx, alloc.ID, approver)
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError on double approve, got %v", err)
	}
}

func TestAllocationApproveRequiresRole(t *testing.T) {
	_, _, svc := setupAllocationTest(t)
	ctx := context.Background()

	alloc := createDraftAllocation(t, svc, 50)
	if _, err := svc.Request(ctx, alloc.ID, "emp-001", Actor{ID: "u-req"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	_, _, err := svc.Approve(ctx, alloc.ID, Actor{ID: "u-someone"})
	var permissionErr *PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("expected PermissionError without approver role, got %v", err)
	}
}

func TestAllocationApproveFromDraftFails(t *testing.T) {
	_, _, svc := setupAllocationTest(t)
	ctx := context.Background()
	approver := Actor{ID: "u-appr", Roles: []string{entity.RoleApprover}}

	alloc := createDraftAllocation(t, svc, 50)
	_, _, err := svc.Approve(ctx, alloc.ID, approver)
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError approving a draft, got %v", err)
	}
	if transitionErr.From != entity.AllocationStatusDraft || transitionErr.To != entity.AllocationStatusApproved {
		t.Errorf("unexpected transition %s -> %s", transitionErr.From, transitionErr.To)
	}
}

func TestAllocationDuplicateAssignmentGuard(t *testing.T) {
	db, _, svc := setupAllocationTest(t)
	ctx := context.Background()
	requester := Actor{ID: "u-req"}
	approver := Actor{ID: "u-appr", Roles: []string{entity.RoleApprover}}

	alloc := createDraftAllocation(t, svc, 50)
	if _, err := svc.Request(ctx, alloc.ID, "emp-001", requester); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, _, err := svc.Approve(ctx, alloc.ID, approver); err != nil {
		t.Fatalf("first Approve failed: %v", err)
	}

	// Force the status back and try to approve once more
	db.Model(&entity.ResourceAllocation{}).Where("id = ?", alloc.ID).
		Update("status", entity.AllocationStatusRequested)

	_, _, err := svc.Approve(ctx, alloc.ID, approver)
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError on duplicate assignment, got %v", err)
	}
}

func TestAllocationRejectAppendsReason(t *testing.T) {
	_, _, svc := setupAllocationTest(t)
	ctx := context.Background()
	requester := Actor{ID: "u-req"}
	approver := Actor{ID: "u-appr", Roles: []string{entity.RoleApprover}}

	alloc := createDraftAllocation(t, svc, 50)
	if _, err := svc.Request(ctx, alloc.ID, "emp-001", requester); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	// Reason is mandatory
	if _, err := svc.Reject(ctx, alloc.ID, "  ", approver); err == nil {
		t.Error("expected error for blank reason")
	}

	rejected, err := svc.Reject(ctx, alloc.ID, "预算不足", approver)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != entity.AllocationStatusRejected {
		t.Errorf("expected Rejected, got %s", rejected.Status)
	}
	if !strings.Contains(rejected.Notes, "Rejection Reason") || !strings.Contains(rejected.Notes, "预算不足") {
		t.Errorf("notes should carry the rejection reason, got %q", rejected.Notes)
	}

	// Rejected records are immutable for ordinary users
	notes := "try to edit"
	_, err = svc.Update(ctx, alloc.ID, &UpdateAllocationRequest{Notes: &notes}, requester)
	var permissionErr *PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("expected PermissionError editing a rejected allocation, got %v", err)
	}

	// The superuser may still edit
	admin := Actor{ID: "u-admin", Roles: []string{entity.RoleAdmin}}
	if _, err := svc.Update(ctx, alloc.ID, &UpdateAllocationRequest{Notes: &notes}, admin); err != nil {
		t.Errorf("admin edit on rejected allocation failed: %v", err)
	}
}

func TestAvailabilitySplitsByLoad(t *testing.T) {
	db, repos, _ := setupAllocationTest(t)
	ctx := context.Background()
	availability := NewAvailabilityService(repos.Employee, repos.Assignment)

	start := entity.DateOnly(time.Now()).AddDate(0, 0, -2)
	end := start.AddDate(0, 0, 12)
	// emp-001 already carries 60%, emp-002 is free
	testutil.SeedTestAssignment(t, db, "asg-100", "proj-001", "emp-001", start, end, 60)

	result, err := availability.Compute(ctx, start, end, 50, "")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(result.Available) != 1 || result.Available[0].EmployeeID != "emp-002" {
		t.Fatalf("expected only emp-002 available, got %+v", result.Available)
	}
	if len(result.Unavailable) != 1 || result.Unavailable[0].EmployeeID != "emp-001" {
		t.Fatalf("expected emp-001 unavailable, got %+v", result.Unavailable)
	}
	if result.Unavailable[0].CurrentAllocation != 60 {
		t.Errorf("expected current allocation 60, got %.2f", result.Unavailable[0].CurrentAllocation)
	}
	// 13 days * 8h * 50% * rate 150
	if result.Available[0].EstimatedCost != 7800 {
		t.Errorf("expected estimated cost 7800, got %.2f", result.Available[0].EstimatedCost)
	}

	// Excluding the seeded reference frees emp-001 again
	result, err = availability.Compute(ctx, start, end, 50, "ref-asg-100")
	if err != nil {
		t.Fatalf("Compute with exclusion failed: %v", err)
	}
	if len(result.Available) != 2 {
		t.Errorf("expected both employees available with exclusion, got %d", len(result.Available))
	}
}
