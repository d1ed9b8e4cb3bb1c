package handler

import (
	"strconv"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/service"
	"github.com/gin-gonic/gin"
)

// AssignmentHandler 项目分配处理器
type AssignmentHandler struct {
	svc       *service.AssignmentService
	reportSvc *service.ReportService
}

// NewAssignmentHandler 创建分配处理器
func NewAssignmentHandler(svc *service.AssignmentService, reportSvc *service.ReportService) *AssignmentHandler {
	return &AssignmentHandler{svc: svc, reportSvc: reportSvc}
}

// List 获取分配列表
func (h *AssignmentHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := map[string]interface{}{
		"employee_id": c.Query("employee_id"),
		"project_id":  c.Query("project_id"),
		"status":      c.Query("status"),
	}
	if ds := c.Query("doc_status"); ds != "" {
		v, err := strconv.Atoi(ds)
		if err != nil {
			BadRequest(c, "invalid doc_status")
			return
		}
		filters["doc_status"] = v
	}

	result, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// Get 获取分配详情
func (h *AssignmentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "assignment ID is required")
		return
	}

	assignment, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, assignment)
}

// Create 创建分配草稿
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req service.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	assignment, err := h.svc.CreateDraft(c.Request.Context(), &req, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, assignment)
}

// Submit 提交分配
func (h *AssignmentHandler) Submit(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "assignment ID is required")
		return
	}

	assignment, err := h.svc.Submit(c.Request.Context(), id, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	h.reportSvc.InvalidateSummaryCache(c.Request.Context())
	Success(c, assignment)
}

// Cancel 取消分配
func (h *AssignmentHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "assignment ID is required")
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), id, GetActor(c)); err != nil {
		ServiceError(c, err)
		return
	}
	h.reportSvc.InvalidateSummaryCache(c.Request.Context())
	Success(c, gin.H{"id": id})
}

// EndDateChange 申请调整结束日期
func (h *AssignmentHandler) EndDateChange(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "assignment ID is required")
		return
	}

	var req struct {
		NewEndDate string `json:"new_end_date" binding:"required"`
		Reason     string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	newEnd, err := entity.ParseDate(req.NewEndDate)
	if err != nil {
		BadRequest(c, "invalid new_end_date")
		return
	}

	if err := h.svc.RequestEndDateChange(c.Request.Context(), id, newEnd, req.Reason, GetActor(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"id": id})
}

// AllocationChange 申请调整分配比例（拆单）
func (h *AssignmentHandler) AllocationChange(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "assignment ID is required")
		return
	}

	var req struct {
		NewPercentage float64 `json:"new_percentage"`
		EffectiveDate string  `json:"effective_date" binding:"required"`
		Reason        string  `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	effective, err := entity.ParseDate(req.EffectiveDate)
	if err != nil {
		BadRequest(c, "invalid effective_date")
		return
	}

	successorID, err := h.svc.RequestAllocationChange(c.Request.Context(), id, req.NewPercentage, effective, req.Reason, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	h.reportSvc.InvalidateSummaryCache(c.Request.Context())
	Success(c, gin.H{"id": id, "successor_id": successorID})
}

// History 分配变更历史（关联单据链 + 审计备注）
func (h *AssignmentHandler) History(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "assignment ID is required")
		return
	}

	history, err := h.svc.History(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, history)
}

// Workload 员工工作量
func (h *AssignmentHandler) Workload(c *gin.Context) {
	employeeID := c.Param("id")
	if employeeID == "" {
		BadRequest(c, "employee ID is required")
		return
	}

	var start, end time.Time
	var err error
	if s := c.Query("start_date"); s != "" {
		if start, err = entity.ParseDate(s); err != nil {
			BadRequest(c, "invalid start_date")
			return
		}
	}
	if e := c.Query("end_date"); e != "" {
		if end, err = entity.ParseDate(e); err != nil {
			BadRequest(c, "invalid end_date")
			return
		}
	}

	result, err := h.svc.EmployeeWorkload(c.Request.Context(), employeeID, start, end)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// Sweep 手动触发状态巡检（管理员）
func (h *AssignmentHandler) Sweep(c *gin.Context) {
	updated, err := h.svc.SweepAll(c.Request.Context(), entity.DateOnly(time.Now()))
	if err != nil {
		ServiceError(c, err)
		return
	}
	h.reportSvc.InvalidateSummaryCache(c.Request.Context())
	Success(c, gin.H{"updated": updated})
}
