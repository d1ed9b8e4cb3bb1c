package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	summaryCacheKey = "report:assignment_summary"
	summaryCacheTTL = 5 * time.Minute
)

// ReportService 报表服务
type ReportService struct {
	reportRepo  *repository.ReportRepository
	rdb         *redis.Client
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger
}

// NewReportService 创建报表服务
func NewReportService(
	reportRepo *repository.ReportRepository,
	rdb *redis.Client,
	minioClient *minio.Client,
	bucketName string,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		reportRepo:  reportRepo,
		rdb:         rdb,
		minioClient: minioClient,
		bucketName:  bucketName,
		logger:      logger,
	}
}

// StatusSummary 分配状态汇总，Redis 缓存 5 分钟
func (s *ReportService) StatusSummary(ctx context.Context) ([]repository.StatusSummaryRow, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, summaryCacheKey).Result()
		if err == nil {
			var rows []repository.StatusSummaryRow
			if err := json.Unmarshal([]byte(cached), &rows); err == nil {
				return rows, nil
			}
		}
	}

	rows, err := s.reportRepo.StatusSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("status summary: %w", err)
	}

	if s.rdb != nil {
		if data, err := json.Marshal(rows); err == nil {
			s.rdb.Set(ctx, summaryCacheKey, data, summaryCacheTTL)
		}
	}
	return rows, nil
}

// InvalidateSummaryCache 分配数据变动后清掉汇总缓存
func (s *ReportService) InvalidateSummaryCache(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, summaryCacheKey).Err(); err != nil {
		s.logger.Warn("invalidate summary cache failed", zap.Error(err))
	}
}

// AllocationStatus 已提交分配明细，remaining_days 按当日补齐
func (s *ReportService) AllocationStatus(ctx context.Context, status string) ([]repository.AllocationStatusRow, error) {
	rows, err := s.reportRepo.AllocationStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("allocation status: %w", err)
	}

	today := entity.DateOnly(time.Now())
	for i := range rows {
		if today.After(rows[i].EndDate) {
			rows[i].RemainingDays = 0
		} else {
			rows[i].RemainingDays = int(rows[i].EndDate.Sub(today).Hours() / 24)
		}
	}
	return rows, nil
}

// EmployeeDashboard 员工占用看板
func (s *ReportService) EmployeeDashboard(ctx context.Context) ([]repository.EmployeeDashboardRow, error) {
	rows, err := s.reportRepo.EmployeeDashboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("employee dashboard: %w", err)
	}
	return rows, nil
}

var allocationExportHeaders = []string{
	"员工", "部门", "项目", "开始日期", "结束日期", "分配比例(%)", "状态", "剩余天数",
}

// ExportAllocationStatus 导出分配状态报表为 xlsx
func (s *ReportService) ExportAllocationStatus(ctx context.Context, status string) (*excelize.File, string, error) {
	rows, err := s.AllocationStatus(ctx, status)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "分配状态"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range allocationExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx, row := range rows {
		r := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", r), row.EmployeeName)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", r), row.Department)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", r), row.ProjectName)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", r), entity.FormatDate(row.StartDate))
		f.SetCellValue(sheet, fmt.Sprintf("E%d", r), entity.FormatDate(row.EndDate))
		f.SetCellValue(sheet, fmt.Sprintf("F%d", r), row.AllocationPercentage)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", r), row.Status)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", r), row.RemainingDays)
	}

	filename := fmt.Sprintf("allocation_status_%s.xlsx", time.Now().Format("20060102_150405"))
	return f, filename, nil
}

// ArchiveExport 把导出文件归档到对象存储，未配置 MinIO 时跳过
func (s *ReportService) ArchiveExport(ctx context.Context, f *excelize.File, filename string) {
	if s.minioClient == nil {
		return
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		s.logger.Warn("archive export failed", zap.String("filename", filename), zap.Error(err))
		return
	}
	objectName := fmt.Sprintf("exports/%s", filename)
	_, err = s.minioClient.PutObject(ctx, s.bucketName, objectName, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	})
	if err != nil {
		s.logger.Warn("archive export failed", zap.String("filename", filename), zap.Error(err))
		return
	}
	s.logger.Info("export archived", zap.String("object", objectName))
}
