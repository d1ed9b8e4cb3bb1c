package handler

import (
	"github.com/bitfantasy/nimo-staffing/internal/service"
	"github.com/gin-gonic/gin"
)

// ReportHandler 报表处理器
type ReportHandler struct {
	svc *service.ReportService
}

// NewReportHandler 创建报表处理器
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Summary GET /reports/assignment-summary
func (h *ReportHandler) Summary(c *gin.Context) {
	rows, err := h.svc.StatusSummary(c.Request.Context())
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"rows": rows})
}

// AllocationStatus GET /reports/allocation-status
func (h *ReportHandler) AllocationStatus(c *gin.Context) {
	rows, err := h.svc.AllocationStatus(c.Request.Context(), c.Query("status"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"rows": rows})
}

// EmployeeDashboard GET /reports/employee-dashboard
func (h *ReportHandler) EmployeeDashboard(c *gin.Context) {
	rows, err := h.svc.EmployeeDashboard(c.Request.Context())
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"rows": rows})
}

// ExportAllocationStatus GET /reports/allocation-status/export
func (h *ReportHandler) ExportAllocationStatus(c *gin.Context) {
	f, filename, err := h.svc.ExportAllocationStatus(c.Request.Context(), c.Query("status"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	defer f.Close()

	h.svc.ArchiveExport(c.Request.Context(), f, filename)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
