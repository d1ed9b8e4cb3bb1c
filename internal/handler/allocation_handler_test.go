package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/middleware"
	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/bitfantasy/nimo-staffing/internal/service"
	"github.com/bitfantasy/nimo-staffing/internal/testutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupWorkflowRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)

	logger := zap.NewNop()
	availability := service.NewAvailabilityService(repos.Employee, repos.Assignment)
	allocationSvc := service.NewAllocationService(repos.Allocation, repos.Assignment, repos.Project, availability, nil, logger)
	assignmentSvc := service.NewAssignmentService(repos.Assignment, repos.Project, repos.Employee, logger)
	reportSvc := service.NewReportService(repos.Report, nil, nil, "", logger)

	h := &Handlers{
		Allocation: NewAllocationHandler(allocationSvc, availability),
		Assignment: NewAssignmentHandler(assignmentSvc, reportSvc),
		Report:     NewReportHandler(reportSvc),
	}

	r := testutil.SetupRouter()
	v1 := testutil.AuthGroup(r, "/api/v1")

	allocations := v1.Group("/allocations")
	allocations.GET("", h.Allocation.List)
	allocations.POST("", h.Allocation.Create)
	allocations.GET("/:id", h.Allocation.Get)
	allocations.PUT("/:id", h.Allocation.Update)
	allocations.POST("/:id/refresh-candidates", h.Allocation.RefreshCandidates)
	allocations.POST("/:id/request", h.Allocation.RequestAllocation)
	allocations.POST("/:id/approve", h.Allocation.Approve)
	allocations.POST("/:id/reject", h.Allocation.Reject)

	assignments := v1.Group("/assignments")
	assignments.GET("", h.Assignment.List)
	assignments.POST("/sweep", middleware.RequireRole(entity.RoleAdmin), h.Assignment.Sweep)
	assignments.GET("/:id", h.Assignment.Get)
	assignments.GET("/:id/history", h.Assignment.History)

	reports := v1.Group("/reports")
	reports.GET("/assignment-summary", h.Report.Summary)

	testutil.SeedTestProject(t, db, "proj-001", "手机研发项目")
	testutil.SeedTestUser(t, db, "u-req", "申请人")
	testutil.SeedTestEmployee(t, db, "emp-001", "张三", 100)
	return r, db
}

func createAllocationHTTP(t *testing.T, r *gin.Engine, token string) string {
	t.Helper()
	start := entity.DateOnly(time.Now()).AddDate(0, 0, 10)
	end := start.AddDate(0, 0, 20)

	w := testutil.DoRequest(r, "POST", "/api/v1/allocations", map[string]interface{}{
		"project_id":            "proj-001",
		"start_date":            entity.FormatDate(start),
		"end_date":              entity.FormatDate(end),
		"allocation_percentage": 50,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	return data["id"].(string)
}

func TestAllocationWorkflowHTTP(t *testing.T) {
	r, _ := setupWorkflowRouter(t)
	requesterToken := testutil.GenerateTestToken("u-req", "申请人", nil)
	approverToken := testutil.ApproverTestToken("u-appr")

	allocID := createAllocationHTTP(t, r, requesterToken)

	// Submit for approval with a selected candidate
	w := testutil.DoRequest(r, "POST", "/api/v1/allocations/"+allocID+"/request",
		map[string]interface{}{"employee_id": "emp-001"}, requesterToken)
	if w.Code != http.StatusOK {
		t.Fatalf("request: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Approval without the role is forbidden
	w = testutil.DoRequest(r, "POST", "/api/v1/allocations/"+allocID+"/approve", nil, requesterToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("approve without role: expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/allocations/"+allocID+"/approve", nil, approverToken)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	allocation := data["allocation"].(map[string]interface{})
	if allocation["status"] != entity.AllocationStatusApproved {
		t.Errorf("expected Approved, got %v", allocation["status"])
	}
	assignment := data["assignment"].(map[string]interface{})
	assignmentID := assignment["id"].(string)

	// History is reachable for the created assignment
	w = testutil.DoRequest(r, "GET", "/api/v1/assignments/"+assignmentID+"/history", nil, requesterToken)
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// A second approve is a conflict
	w = testutil.DoRequest(r, "POST", "/api/v1/allocations/"+allocID+"/approve", nil, approverToken)
	if w.Code != http.StatusConflict {
		t.Fatalf("double approve: expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAllocationRejectHTTP(t *testing.T) {
	r, _ := setupWorkflowRouter(t)
	requesterToken := testutil.GenerateTestToken("u-req", "申请人", nil)
	approverToken := testutil.ApproverTestToken("u-appr")

	allocID := createAllocationHTTP(t, r, requesterToken)
	w := testutil.DoRequest(r, "POST", "/api/v1/allocations/"+allocID+"/request",
		map[string]interface{}{"employee_id": "emp-001"}, requesterToken)
	if w.Code != http.StatusOK {
		t.Fatalf("request: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Reason is mandatory
	w = testutil.DoRequest(r, "POST", "/api/v1/allocations/"+allocID+"/reject",
		map[string]interface{}{}, approverToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reject without reason: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/allocations/"+allocID+"/reject",
		map[string]interface{}{"reason": "预算不足"}, approverToken)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["status"] != entity.AllocationStatusRejected {
		t.Errorf("expected Rejected, got %v", data["status"])
	}
}

func TestSweepRequiresAdminRole(t *testing.T) {
	r, db := setupWorkflowRouter(t)

	start := entity.DateOnly(time.Now()).AddDate(0, 0, -20)
	end := start.AddDate(0, 0, 10)
	testutil.SeedTestAssignment(t, db, "asg-001", "proj-001", "emp-001", start, end, 50)
	db.Model(&entity.ProjectAssignment{}).Where("id = ?", "asg-001").
		Update("status", entity.AssignmentStatusActive)

	userToken := testutil.GenerateTestToken("u-req", "申请人", nil)
	w := testutil.DoRequest(r, "POST", "/api/v1/assignments/sweep", nil, userToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("sweep without admin: expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/assignments/sweep", nil, testutil.AdminTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("sweep: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if updated := data["updated"].(float64); updated != 1 {
		t.Errorf("expected 1 updated row, got %v", updated)
	}

	var a entity.ProjectAssignment
	db.Where("id = ?", "asg-001").First(&a)
	if a.Status != entity.AssignmentStatusCompleted {
		t.Errorf("expected Completed after sweep, got %s", a.Status)
	}
}

func TestAssignmentSummaryReport(t *testing.T) {
	r, db := setupWorkflowRouter(t)
	token := testutil.GenerateTestToken("u-req", "申请人", nil)

	today := entity.DateOnly(time.Now())
	for i := 0; i < 3; i++ {
		testutil.SeedTestAssignment(t, db, fmt.Sprintf("asg-a%d", i), "proj-001", "emp-001",
			today.AddDate(0, 0, -2), today.AddDate(0, 0, 2), 20)
	}
	testutil.SeedTestAssignment(t, db, "asg-p1", "proj-001", "emp-001",
		today.AddDate(0, 0, 5), today.AddDate(0, 0, 10), 20)

	w := testutil.DoRequest(r, "GET", "/api/v1/reports/assignment-summary", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	rows := data["rows"].([]interface{})
	if len(rows) != 2 {
		t.Fatalf("expected 2 status rows, got %d", len(rows))
	}
	first := rows[0].(map[string]interface{})
	if first["status"] != entity.AssignmentStatusPlanned {
		t.Errorf("expected Planned first, got %v", first["status"])
	}
	if first["count"].(float64) != 1 {
		t.Errorf("expected 1 planned assignment, got %v", first["count"])
	}
	second := rows[1].(map[string]interface{})
	if second["status"] != entity.AssignmentStatusActive || second["count"].(float64) != 3 {
		t.Errorf("unexpected second row %v", second)
	}
}
