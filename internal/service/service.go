package service

import (
	"github.com/bitfantasy/nimo-staffing/internal/config"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Availability *AvailabilityService
	Allocation   *AllocationService
	Assignment   *AssignmentService
	Report       *ReportService
	Notify       *NotifyService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	// 初始化飞书客户端
	var feishu *FeishuClient
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" {
		feishu = NewFeishuClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
	}

	// 初始化MinIO客户端
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("minio init failed, exports will not be archived", zap.Error(err))
			minioClient = nil
		}
	}

	notify := NewNotifyService(feishu, repos.User, logger)
	availability := NewAvailabilityService(repos.Employee, repos.Assignment)

	return &Services{
		Availability: availability,
		Allocation:   NewAllocationService(repos.Allocation, repos.Assignment, repos.Project, availability, notify, logger),
		Assignment:   NewAssignmentService(repos.Assignment, repos.Project, repos.Employee, logger),
		Report:       NewReportService(repos.Report, rdb, minioClient, cfg.MinIO.Bucket, logger),
		Notify:       notify,
	}
}
