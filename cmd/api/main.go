package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-records-api/api/swagger"
	"github.com/noah-isme/school-records-api/internal/handler"
	"github.com/noah-isme/school-records-api/internal/middleware"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/repository"
	"github.com/noah-isme/school-records-api/internal/service"
	"github.com/noah-isme/school-records-api/internal/workflow"
	"github.com/noah-isme/school-records-api/pkg/cache"
	"github.com/noah-isme/school-records-api/pkg/config"
	"github.com/noah-isme/school-records-api/pkg/database"
	"github.com/noah-isme/school-records-api/pkg/jobs"
	"github.com/noah-isme/school-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-records-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-records-api/pkg/storage"
)

// @title School Records API
// @version 1.0.0
// @description Academic records service: accounts, rosters, assignments, grading, attendance and report cards
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database, cfg.Store)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard caching disabled", zap.Error(err))
		redisClient = nil
	}
	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to init upload storage", zap.Error(err))
	}
	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init report storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	accountRepo := repository.NewAccountRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	classRepo := repository.NewClassRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	metricsSvc := service.NewMetricsService()
	gate := service.NewGate(accountRepo, classRepo, studentRepo, logr).WithMetrics(metricsSvc)

	authSvc := service.NewAuthService(accountRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "school-records-api",
	})
	accountSvc := service.NewAccountService(accountRepo, studentRepo, teacherRepo, gate, nil, logr)
	studentSvc := service.NewStudentService(studentRepo, classRepo, accountRepo, gate, nil, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, classRepo, accountRepo, gate, nil, logr)
	classSvc := service.NewClassService(classRepo, teacherRepo, studentRepo, accountRepo, gate, nil, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, classRepo, accountRepo, gate, nil, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, studentRepo, uploadStore, accountRepo, gate, workflow.SubmitPolicy{
		AllowLate:     cfg.Submissions.AllowLate,
		AllowResubmit: cfg.Submissions.AllowResubmit,
	}, nil, logr).WithMetrics(metricsSvc)
	gradeSvc := service.NewGradeService(gradeRepo, submissionRepo, assignmentRepo, studentRepo, accountRepo, gate, nil, logr).WithMetrics(metricsSvc)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, classRepo, accountRepo, gate, nil, logr).WithMetrics(metricsSvc)
	dashboardSvc := service.NewDashboardService(accountRepo, studentRepo, teacherRepo, classRepo, assignmentRepo, submissionRepo, gradeRepo, attendanceRepo, cacheRepo, gate, cfg.Dashboard.CacheTTL, logr).WithMetrics(metricsSvc)
	reportSvc := service.NewReportService(reportRepo, studentRepo, gradeRepo, attendanceRepo, reportStore, signer, gate, nil, logr).WithMetrics(metricsSvc)

	reportQueue := jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc.AttachQueue(reportQueue)

	queueCtx, cancelQueue := context.WithCancel(context.Background())
	defer cancelQueue()
	if cfg.Reports.Enabled {
		reportQueue.Start(queueCtx)
		go cleanupReportFiles(queueCtx, reportStore, cfg.Reports.CleanupInterval, cfg.Reports.SignedURLTTL, logr)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	accountHandler := handler.NewAccountHandler(accountSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	classHandler := handler.NewClassHandler(classSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	reportHandler := handler.NewReportHandler(reportSvc, signer, reportStore, logr)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	if cfg.Reports.Enabled {
		// Download access is gated by the signed token, not a session.
		api.GET("/reports/download", reportHandler.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.Use(middleware.ResolveAccount(accountRepo))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/accounts", accountHandler.List)
	admin.POST("/accounts", accountHandler.Create)
	admin.GET("/accounts/:id", accountHandler.Get)
	admin.PUT("/accounts/:id", accountHandler.Update)
	admin.DELETE("/accounts/:id", accountHandler.Delete)
	admin.POST("/accounts/:id/children", accountHandler.LinkChild)
	admin.DELETE("/accounts/:id/children/:studentId", accountHandler.UnlinkChild)

	admin.POST("/students", studentHandler.Create)
	admin.PUT("/students/:id", studentHandler.Update)
	admin.DELETE("/students/:id", studentHandler.Delete)
	admin.POST("/students/:id/enroll", studentHandler.Enroll)
	admin.POST("/students/:id/unenroll", studentHandler.Unenroll)
	admin.POST("/students/:id/transfer", studentHandler.Transfer)

	admin.POST("/teachers", teacherHandler.Create)
	admin.PUT("/teachers/:id", teacherHandler.Update)
	admin.DELETE("/teachers/:id", teacherHandler.Delete)

	admin.POST("/classes", classHandler.Create)
	admin.PUT("/classes/:id", classHandler.Update)
	admin.DELETE("/classes/:id", classHandler.Delete)

	authed.GET("/students", studentHandler.List)
	authed.GET("/students/:id", studentHandler.Get)
	authed.GET("/students/:id/attendance/summary", attendanceHandler.Summary)
	authed.GET("/teachers", teacherHandler.List)
	authed.GET("/teachers/:id", teacherHandler.Get)
	authed.GET("/classes", classHandler.List)
	authed.GET("/classes/:id", classHandler.Get)

	authed.GET("/assignments", assignmentHandler.List)
	authed.GET("/assignments/:id", assignmentHandler.Get)
	staff := authed.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
	staff.POST("/assignments", assignmentHandler.Create)
	staff.PUT("/assignments/:id", assignmentHandler.Update)
	staff.POST("/assignments/:id/close", assignmentHandler.Close)
	staff.DELETE("/assignments/:id", assignmentHandler.Delete)

	authed.GET("/submissions", submissionHandler.List)
	authed.GET("/submissions/:id", submissionHandler.Get)
	authed.POST("/submissions", middleware.RequireRoles(models.RoleStudent), submissionHandler.Submit)
	staff.POST("/submissions/:id/grade", gradeHandler.GradeSubmission)

	authed.GET("/grades", gradeHandler.List)
	staff.POST("/grades", gradeHandler.Create)
	staff.POST("/grades/batch", gradeHandler.CreateBatch)

	authed.GET("/attendance", attendanceHandler.List)
	staff.POST("/attendance", attendanceHandler.MarkBatch)

	if cfg.Dashboard.Enabled {
		authed.GET("/dashboard", dashboardHandler.Get)
	}

	if cfg.Reports.Enabled {
		authed.POST("/reports", middleware.Audit(accountRepo, models.AuditActionCreate, "reports"), reportHandler.Request)
		authed.GET("/reports", reportHandler.ListMine)
		authed.GET("/reports/:id", reportHandler.Get)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	cancelQueue()
	if cfg.Reports.Enabled {
		reportQueue.Stop()
	}
	logr.Info("server stopped")
}

// cleanupReportFiles periodically drops rendered report files whose signed
// URLs have long expired.
func cleanupReportFiles(ctx context.Context, store *storage.LocalStorage, interval, ttl time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(2 * ttl)
			if err != nil {
				logr.Warn("report cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired report files removed", zap.Int("count", len(removed)))
			}
		}
	}
}
