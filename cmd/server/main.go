package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/config"
	"github.com/bitfantasy/nimo-staffing/internal/handler"
	"github.com/bitfantasy/nimo-staffing/internal/middleware"
	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"github.com/bitfantasy/nimo-staffing/internal/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-staffing service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, cfg, zapLogger)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 每日状态巡检
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if cfg.Sweep.Enabled {
		go runSweepLoop(sweepCtx, cfg.Sweep.RunAt, services, zapLogger)
	}

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

// runSweepLoop 每天在配置的本地时间跑一轮状态巡检
func runSweepLoop(ctx context.Context, runAt string, services *service.Services, logger *zap.Logger) {
	hour, minute := 2, 0
	if runAt != "" {
		if t, err := time.Parse("15:04", runAt); err == nil {
			hour, minute = t.Hour(), t.Minute()
		} else {
			logger.Warn("invalid sweep.run_at, falling back to 02:00", zap.String("run_at", runAt))
		}
	}

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		updated, err := services.Assignment.SweepAll(ctx, entity.DateOnly(time.Now()))
		if err != nil {
			logger.Error("daily sweep failed", zap.Error(err))
			continue
		}
		services.Report.InvalidateSummaryCache(ctx)
		logger.Info("daily sweep finished", zap.Int("updated", updated))
	}
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1，全部需要认证
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 资源分配申请
		allocations := v1.Group("/allocations")
		{
			allocations.GET("", h.Allocation.List)
			allocations.POST("", h.Allocation.Create)
			allocations.GET("/availability", h.Allocation.Availability)
			allocations.GET("/:id", h.Allocation.Get)
			allocations.PUT("/:id", h.Allocation.Update)
			allocations.POST("/:id/refresh-candidates", h.Allocation.RefreshCandidates)
			allocations.POST("/:id/request", h.Allocation.RequestAllocation)
			allocations.POST("/:id/approve", h.Allocation.Approve)
			allocations.POST("/:id/reject", h.Allocation.Reject)
		}

		// 项目分配
		assignments := v1.Group("/assignments")
		{
			assignments.GET("", h.Assignment.List)
			assignments.POST("", h.Assignment.Create)
			assignments.POST("/sweep", middleware.RequireRole(entity.RoleAdmin), h.Assignment.Sweep)
			assignments.GET("/:id", h.Assignment.Get)
			assignments.POST("/:id/submit", h.Assignment.Submit)
			assignments.POST("/:id/cancel", h.Assignment.Cancel)
			assignments.POST("/:id/end-date-change", h.Assignment.EndDateChange)
			assignments.POST("/:id/allocation-change", h.Assignment.AllocationChange)
			assignments.GET("/:id/history", h.Assignment.History)
		}

		// 员工工作量
		v1.GET("/employees/:id/workload", h.Assignment.Workload)

		// 报表
		reports := v1.Group("/reports")
		{
			reports.GET("/assignment-summary", h.Report.Summary)
			reports.GET("/allocation-status", h.Report.AllocationStatus)
			reports.GET("/allocation-status/export", h.Report.ExportAllocationStatus)
			reports.GET("/employee-dashboard", h.Report.EmployeeDashboard)
		}
	}
}
