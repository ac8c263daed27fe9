package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/rollcall-io/rollcall-api/api/swagger"
	"github.com/rollcall-io/rollcall-api/internal/events"
	"github.com/rollcall-io/rollcall-api/internal/handler"
	"github.com/rollcall-io/rollcall-api/internal/middleware"
	"github.com/rollcall-io/rollcall-api/internal/models"
	"github.com/rollcall-io/rollcall-api/internal/repository"
	"github.com/rollcall-io/rollcall-api/internal/service"
	"github.com/rollcall-io/rollcall-api/pkg/cache"
	"github.com/rollcall-io/rollcall-api/pkg/config"
	"github.com/rollcall-io/rollcall-api/pkg/database"
	"github.com/rollcall-io/rollcall-api/pkg/logger"
	corsmiddleware "github.com/rollcall-io/rollcall-api/pkg/middleware/cors"
	reqidmiddleware "github.com/rollcall-io/rollcall-api/pkg/middleware/requestid"
)

// @title Rollcall API
// @version 0.1.0
// @description Classroom attendance engine with rotating QR tokens
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	tokenRepo := repository.NewTokenRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	roundRepo := repository.NewRoundRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	fraudRepo := repository.NewFraudRepository(db)
	excuseRepo := repository.NewExcuseRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewRedisPublisher(redisClient, cfg.Events.ChannelPrefix, logr)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.JWT.Secret)
	tokenSvc := service.NewTokenService(tokenRepo, cfg.Tokens.TTL, cfg.Tokens.SweepInterval, metricsSvc, logr)
	tokenSvc.StartSweeper(ctx)

	policySvc := service.NewPolicyService(policyRepo, cacheRepo, cfg.Policies.CacheTTL, validate, metricsSvc, logr)
	sessionSvc := service.NewSessionService(sessionRepo, roundRepo, enrollmentRepo, tokenSvc, publisher, logr)

	// An unstarted queue drops checks instead of blocking, so the engine
	// degrades to plain recording when heuristics are disabled.
	fraudSvc := service.NewFraudService(fraudRepo, attendanceRepo, cfg.Fraud.Workers, cfg.Fraud.BufferSize, metricsSvc, logr)
	if cfg.Fraud.Enabled {
		fraudSvc.Start(ctx)
		defer fraudSvc.Stop()
	}

	attendanceSvc := service.NewAttendanceService(
		attendanceRepo, sessionRepo, roundRepo, enrollmentRepo,
		tokenSvc, policySvc, fraudSvc, publisher, metricsSvc, logr,
	)
	excuseSvc := service.NewExcuseService(excuseRepo, attendanceRepo, roundRepo, sessionRepo, enrollmentRepo, logr)

	scanHandler := handler.NewScanHandler(attendanceSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, fraudSvc)
	policyHandler := handler.NewPolicyHandler(policySvc)
	excuseHandler := handler.NewExcuseHandler(excuseSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		student := api.Group("")
		student.Use(middleware.RBAC(models.RoleStudent))
		{
			student.POST("/scans", scanHandler.Record)
			student.POST("/scans/sync", scanHandler.Sync)
			student.POST("/excuses", excuseHandler.Submit)
		}

		professor := api.Group("/sessions")
		professor.Use(middleware.RBAC(models.RoleProfessor, models.RoleAdmin))
		{
			professor.POST("", middleware.Audit(auditRepo, models.AuditActionSessionStart, "session"), sessionHandler.Start)
			professor.POST("/:id/rounds", middleware.Audit(auditRepo, models.AuditActionRoundStart, "round"), sessionHandler.StartRound)
			professor.DELETE("/:id/rounds/:roundId", middleware.Audit(auditRepo, models.AuditActionRoundClose, "round"), sessionHandler.CloseRound)
			professor.POST("/:id/rounds/:roundId/token", sessionHandler.RotateToken)
			professor.POST("/:id/end", middleware.Audit(auditRepo, models.AuditActionSessionEnd, "session"), sessionHandler.End)
			professor.GET("/:id/summary", sessionHandler.Summary)
			professor.GET("/:id/fraud-signals", sessionHandler.FraudSignals)
		}

		review := api.Group("/excuses")
		review.Use(middleware.RBAC(models.RoleProfessor, models.RoleAdmin))
		{
			review.POST("/:id/review", middleware.Audit(auditRepo, models.AuditActionExcuseReview, "excuse"), excuseHandler.Review)
		}

		admin := api.Group("/policies")
		admin.Use(middleware.RBAC(models.RoleAdmin))
		{
			admin.POST("", middleware.Audit(auditRepo, models.AuditActionPolicyCreate, "policy"), policyHandler.Create)
			admin.POST("/:id/assign", middleware.Audit(auditRepo, models.AuditActionPolicyAssign, "policy"), policyHandler.Assign)
			admin.GET("/resolve", policyHandler.Resolve)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
