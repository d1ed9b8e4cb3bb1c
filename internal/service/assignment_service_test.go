package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/bitfantasy/nimo-staffing/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func date(s string) time.Time {
	t, err := entity.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func setupAssignmentTest(t *testing.T) (*gorm.DB, *repository.Repositories, *AssignmentService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewAssignmentService(repos.Assignment, repos.Project, repos.Employee, zap.NewNop())

	testutil.SeedTestProject(t, db, "proj-001", "手机研发项目")
	testutil.SeedTestEmployee(t, db, "emp-001", "张三", 100)
	return db, repos, svc
}

func TestAssignmentValidation(t *testing.T) {
	_, _, svc := setupAssignmentTest(t)
	ctx := context.Background()
	actor := Actor{ID: "test-user"}

	tests := []struct {
		name string
		req  CreateAssignmentRequest
	}{
		{"end before start", CreateAssignmentRequest{
			ProjectID: "proj-001", EmployeeID: "emp-001",
			StartDate: "2024-02-01", EndDate: "2024-01-01", AllocationPercentage: 50,
		}},
		{"percentage over 100", CreateAssignmentRequest{
			ProjectID: "proj-001", EmployeeID: "emp-001",
			StartDate: "2024-01-01", EndDate: "2024-01-31", AllocationPercentage: 150,
		}},
		{"negative percentage", CreateAssignmentRequest{
			ProjectID: "proj-001", EmployeeID: "emp-001",
			StartDate: "2024-01-01", EndDate: "2024-01-31", AllocationPercentage: -10,
		}},
	}
	for _, tt := range tests {
		req := tt.req
		if _, err := svc.CreateDraft(ctx, &req, actor); err == nil {
			t.Errorf("%s: expected validation error, got nil", tt.name)
		}
	}
}

func TestAssignmentSubmitAndCancelCost(t *testing.T) {
	db, repos, svc := setupAssignmentTest(t)
	ctx := context.Background()
	actor := Actor{ID: "test-user"}

	created, err := svc.CreateDraft(ctx, &CreateAssignmentRequest{
		ProjectID:            "proj-001",
		EmployeeID:           "emp-001",
		StartDate:            "2024-01-01",
		EndDate:              "2024-01-31",
		AllocationPercentage: 50,
		EstimatedTotalCost:   12400,
	}, actor)
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	if created.DocStatus != entity.DocStatusDraft {
		t.Errorf("expected draft docstatus, got %d", created.DocStatus)
	}

	submitted, err := svc.Submit(ctx, created.ID, actor)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if submitted.AllocationReference == "" {
		t.Error("expected generated allocation reference")
	}
	if !strings.HasPrefix(submitted.AllocationReference, "PA-") {
		t.Errorf("unexpected reference format: %s", submitted.AllocationReference)
	}

	project, err := repos.Project.FindByID(ctx, "proj-001")
	if err != nil {
		t.Fatalf("find project: %v", err)
	}
	if project.TotalStaffingCost != 12400 {
		t.Errorf("expected project cost 12400, got %.2f", project.TotalStaffingCost)
	}

	// Re-submitting a submitted assignment must fail
	if _, err := svc.Submit(ctx, created.ID, actor); err == nil {
		t.Error("expected error re-submitting a submitted assignment")
	}

	if err := svc.Cancel(ctx, created.ID, actor); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	project, _ = repos.Project.FindByID(ctx, "proj-001")
	if project.TotalStaffingCost != 0 {
		t.Errorf("expected project cost reversed to 0, got %.2f", project.TotalStaffingCost)
	}

	var cancelled entity.ProjectAssignment
	db.Where("id = ?", created.ID).First(&cancelled)
	if cancelled.DocStatus != entity.DocStatusCancelled {
		t.Errorf("expected cancelled docstatus, got %d", cancelled.DocStatus)
	}
}

func TestSweepAllIdempotent(t *testing.T) {
	db, _, svc := setupAssignmentTest(t)
	ctx := context.Background()

	// Finished period but status still Planned
	testutil.SeedTestAssignment(t, db, "asg-001", "proj-001", "emp-001",
		date("2024-01-10"), date("2024-01-20"), 50)
	db.Model(&entity.ProjectAssignment{}).Where("id = ?", "asg-001").Update("status", entity.AssignmentStatusPlanned)

	today := date("2024-02-01")
	updated, err := svc.SweepAll(ctx, today)
	if err != nil {
		t.Fatalf("SweepAll failed: %v", err)
	}
	if updated != 1 {
		t.Errorf("expected 1 update on first sweep, got %d", updated)
	}

	var a entity.ProjectAssignment
	db.Where("id = ?", "asg-001").First(&a)
	if a.Status != entity.AssignmentStatusCompleted {
		t.Errorf("expected Completed after sweep, got %s", a.Status)
	}

	// Same day again: nothing to write
	updated, err = svc.SweepAll(ctx, today)
	if err != nil {
		t.Fatalf("second SweepAll failed: %v", err)
	}
	if updated != 0 {
		t.Errorf("expected 0 updates on repeated sweep, got %d", updated)
	}
}

func TestRequestEndDateChange(t *testing.T) {
	db, repos, svc := setupAssignmentTest(t)
	ctx := context.Background()
	actor := Actor{ID: "test-user"}

	testutil.SeedTestAssignment(t, db, "asg-010", "proj-001", "emp-001",
		date("2024-01-01"), date("2024-01-31"), 50)

	// New end must be after start
	err := svc.RequestEndDateChange(ctx, "asg-010", date("2024-01-01"), "shrink", actor)
	if err == nil {
		t.Error("expected error for new end date not after start")
	}

	// Reason is mandatory
	if err := svc.RequestEndDateChange(ctx, "asg-010", date("2024-02-15"), "", actor); err == nil {
		t.Error("expected error for missing reason")
	}

	if err := svc.RequestEndDateChange(ctx, "asg-010", date("2024-02-15"), "project extended", actor); err != nil {
		t.Fatalf("RequestEndDateChange failed: %v", err)
	}

	a, err := repos.Assignment.FindByID(ctx, "asg-010")
	if err != nil {
		t.Fatalf("find assignment: %v", err)
	}
	if entity.FormatDate(a.EndDate) != "2024-02-15" {
		t.Errorf("expected end date 2024-02-15, got %s", entity.FormatDate(a.EndDate))
	}

	notes, err := repos.Assignment.ListNotes(ctx, "asg-010")
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Kind != entity.NoteKindEndDateChange {
		t.Fatalf("expected one end-date-change note, got %v", notes)
	}
	if !strings.Contains(notes[0].Content, "project extended") {
		t.Errorf("note should carry the reason, got %q", notes[0].Content)
	}
}

func TestRequestAllocationChangeSplit(t *testing.T) {
	db, repos, svc := setupAssignmentTest(t)
	ctx := context.Background()
	actor := Actor{ID: "test-user"}

	// 31 days at 50%, rate 100: 31*8*0.5*100 = 12400
	seeded := testutil.SeedTestAssignment(t, db, "asg-020", "proj-001", "emp-001",
		date("2024-01-01"), date("2024-01-31"), 50)
	db.Model(&entity.ProjectAssignment{}).Where("id = ?", seeded.ID).
		Update("estimated_total_cost", 12400.0)

	// Effective date outside (start, end] is rejected
	if _, err := svc.RequestAllocationChange(ctx, seeded.ID, 80, date("2024-01-01"), "ramp up", actor); err == nil {
		t.Error("expected error for effective date equal to start")
	}
	if _, err := svc.RequestAllocationChange(ctx, seeded.ID, 80, date("2024-02-10"), "ramp up", actor); err == nil {
		t.Error("expected error for effective date after end")
	}

	successorID, err := svc.RequestAllocationChange(ctx, seeded.ID, 80, date("2024-01-15"), "ramp up", actor)
	if err != nil {
		t.Fatalf("RequestAllocationChange failed: %v", err)
	}

	original, err := repos.Assignment.FindByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("find original: %v", err)
	}
	if entity.FormatDate(original.EndDate) != "2024-01-14" {
		t.Errorf("expected original truncated to 2024-01-14, got %s", entity.FormatDate(original.EndDate))
	}

	successor, err := repos.Assignment.FindByID(ctx, successorID)
	if err != nil {
		t.Fatalf("find successor: %v", err)
	}
	if entity.FormatDate(successor.StartDate) != "2024-01-15" ||
		entity.FormatDate(successor.EndDate) != "2024-01-31" {
		t.Errorf("unexpected successor period %s..%s",
			entity.FormatDate(successor.StartDate), entity.FormatDate(successor.EndDate))
	}
	if successor.AllocationPercentage != 80 {
		t.Errorf("expected successor percentage 80, got %.2f", successor.AllocationPercentage)
	}
	if successor.DocStatus != entity.DocStatusSubmitted {
		t.Errorf("expected successor submitted, got docstatus %d", successor.DocStatus)
	}
	wantRef := seeded.AllocationReference + "/2024-01-15"
	if successor.AllocationReference != wantRef {
		t.Errorf("expected successor reference %s, got %s", wantRef, successor.AllocationReference)
	}
	// Prorated: 12400/31 days at 50% => 800/day at 100%; 17 days * 80% = 10880
	if successor.EstimatedTotalCost != 10880 {
		t.Errorf("expected successor cost 10880, got %.2f", successor.EstimatedTotalCost)
	}

	// History ties both records through the shared reference root
	history, err := svc.History(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history.Related) != 2 {
		t.Errorf("expected 2 related assignments, got %d", len(history.Related))
	}
}

func TestEmployeeWorkload(t *testing.T) {
	db, _, svc := setupAssignmentTest(t)
	ctx := context.Background()

	start := entity.DateOnly(time.Now()).AddDate(0, 0, -5)
	end := entity.DateOnly(time.Now()).AddDate(0, 0, 5)
	testutil.SeedTestAssignment(t, db, "asg-030", "proj-001", "emp-001", start, end, 60)
	testutil.SeedTestAssignment(t, db, "asg-031", "proj-001", "emp-001", start, end, 50)

	result, err := svc.EmployeeWorkload(ctx, "emp-001", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("EmployeeWorkload failed: %v", err)
	}
	if result.TotalAllocation != 110 {
		t.Errorf("expected total 110, got %.2f", result.TotalAllocation)
	}
	if !result.IsOverallocated {
		t.Error("expected overallocation flag")
	}

	if _, err := svc.EmployeeWorkload(ctx, "emp-missing", time.Time{}, time.Time{}); err == nil {
		t.Error("expected error for unknown employee")
	}
}
