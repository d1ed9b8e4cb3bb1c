package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/service"
	"github.com/gin-gonic/gin"
)

// AllocationHandler 资源分配申请处理器
type AllocationHandler struct {
	svc          *service.AllocationService
	availability *service.AvailabilityService
}

// NewAllocationHandler 创建申请处理器
func NewAllocationHandler(svc *service.AllocationService, availability *service.AvailabilityService) *AllocationHandler {
	return &AllocationHandler{svc: svc, availability: availability}
}

// List 获取申请列表
func (h *AllocationHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := map[string]interface{}{
		"status":       c.Query("status"),
		"project_id":   c.Query("project_id"),
		"requested_by": c.Query("requested_by"),
	}

	result, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// Get 获取申请详情
func (h *AllocationHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "allocation ID is required")
		return
	}

	alloc, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, alloc)
}

// Create 创建申请草稿
func (h *AllocationHandler) Create(c *gin.Context) {
	var req service.CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	alloc, err := h.svc.Create(c.Request.Context(), &req, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, alloc)
}

// Update 修改申请
func (h *AllocationHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "allocation ID is required")
		return
	}

	var req service.UpdateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	alloc, err := h.svc.Update(c.Request.Context(), id, &req, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, alloc)
}

// RefreshCandidates 重算草稿申请单的候选员工表
func (h *AllocationHandler) RefreshCandidates(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "allocation ID is required")
		return
	}

	alloc, err := h.svc.RefreshCandidates(c.Request.Context(), id, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, alloc)
}

// RequestAllocation 发起审批
func (h *AllocationHandler) RequestAllocation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "allocation ID is required")
		return
	}

	var req struct {
		EmployeeID string `json:"employee_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	alloc, err := h.svc.Request(c.Request.Context(), id, req.EmployeeID, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, alloc)
}

// Approve 审批通过
func (h *AllocationHandler) Approve(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "allocation ID is required")
		return
	}

	alloc, assignment, err := h.svc.Approve(c.Request.Context(), id, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{
		"allocation": alloc,
		"assignment": assignment,
	})
}

// Reject 审批驳回
func (h *AllocationHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequest(c, "allocation ID is required")
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "rejection reason is required")
		return
	}

	alloc, err := h.svc.Reject(c.Request.Context(), id, req.Reason, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, alloc)
}

// Availability 查询员工可用性
func (h *AllocationHandler) Availability(c *gin.Context) {
	start, err := entity.ParseDate(c.Query("start_date"))
	if err != nil {
		BadRequest(c, "invalid start_date")
		return
	}
	end, err := entity.ParseDate(c.Query("end_date"))
	if err != nil {
		BadRequest(c, "invalid end_date")
		return
	}

	var percentage float64
	if p := c.Query("allocation_percentage"); p != "" {
		percentage, err = strconv.ParseFloat(p, 64)
		if err != nil {
			BadRequest(c, "invalid allocation_percentage")
			return
		}
	}

	result, err := h.availability.Compute(c.Request.Context(), start, end, percentage, c.Query("exclude_reference"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}
