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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/vaxport/vaxport-api/api/swagger"
	"github.com/vaxport/vaxport-api/internal/handler"
	"github.com/vaxport/vaxport-api/internal/middleware"
	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/repository"
	"github.com/vaxport/vaxport-api/internal/service"
	"github.com/vaxport/vaxport-api/pkg/cache"
	"github.com/vaxport/vaxport-api/pkg/config"
	"github.com/vaxport/vaxport-api/pkg/database"
	"github.com/vaxport/vaxport-api/pkg/jobs"
	"github.com/vaxport/vaxport-api/pkg/logger"
	corsmiddleware "github.com/vaxport/vaxport-api/pkg/middleware/cors"
	reqidmiddleware "github.com/vaxport/vaxport-api/pkg/middleware/requestid"
	"github.com/vaxport/vaxport-api/pkg/storage"
)

// @title VaxPort API
// @version 1.0.0
// @description Vaccination administration portal API
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API still serves without Redis; every cache lookup misses.
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	doseRepo := repository.NewDoseRecordRepository(db)
	driveRepo := repository.NewDriveRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	auditQueue := jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload %T", job.Payload)
		}
		return userRepo.CreateAuditLog(ctx, entry)
	}, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		Logger:     logr,
	})
	auditQueue.Start(context.Background())
	defer auditQueue.Stop()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	adminSvc := service.NewAdministrationService(doseRepo, patientRepo, cacheRepo, auditQueue, metricsSvc, validate, logr, cfg.Doses.CacheTTL)
	doseSvc := service.NewDoseService(doseRepo, logr, cfg.Doses.DueWindow)
	driveSvc := service.NewDriveService(driveRepo, patientRepo, adminSvc, logr)

	var certStore *storage.LocalStorage
	var certSigner *storage.SignedURLSigner
	if cfg.Certificates.Enabled {
		certStore, err = storage.NewLocalStorage(cfg.Certificates.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
		}
		certSigner = storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	}
	exportSvc := service.NewExportService(patientRepo, doseRepo, certStore, certSigner, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	adminHandler := handler.NewAdministrationHandler(adminSvc)
	doseHandler := handler.NewDoseHandler(doseSvc)
	driveHandler := handler.NewDriveHandler(driveSvc)
	exportHandler := handler.NewExportHandler(exportSvc, cfg.Doses.DueWindow)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	// Certificate downloads authenticate via the signed token itself.
	api.GET("/certificates/:token", exportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.POST("/auth/logout", authHandler.Logout)

	staff := []models.UserRole{models.RoleAdmin, models.RoleDoctor, models.RoleWorker}
	protected.POST("/administrations", middleware.RequireRoles(staff...), adminHandler.Administer)
	protected.GET("/doses", middleware.RequireRoles(staff...), doseHandler.Get)
	protected.GET("/doses/qr", middleware.RequireRoles(models.RoleAdmin, models.RoleDoctor), doseHandler.QR)
	protected.GET("/patients/:id/schedule", middleware.RBAC("ADMIN", "DOCTOR", "SELF"), doseHandler.Schedule)

	if cfg.DeepLinks.Enabled {
		deepLinkSvc := service.NewDeepLinkService(cacheRepo, metricsSvc, logr, cfg.DeepLinks.TokenTTL)
		deepLinkHandler := handler.NewDeepLinkHandler(deepLinkSvc)
		protected.GET("/deeplinks/resolve", middleware.RequireRoles(models.RoleAdmin, models.RoleDoctor), deepLinkHandler.Resolve)
		protected.POST("/deeplinks/:token/consume", middleware.RequireRoles(models.RoleAdmin, models.RoleDoctor), deepLinkHandler.Consume)
	}

	protected.GET("/drives/mine", middleware.RequireRoles(models.RoleAdmin, models.RoleWorker), driveHandler.Mine)
	protected.POST("/drives/participant-by-qr", middleware.RequireRoles(models.RoleAdmin, models.RoleWorker), driveHandler.ParticipantByQR)
	protected.POST("/drives/:id/administrations", middleware.RequireRoles(models.RoleAdmin, models.RoleWorker), driveHandler.Administer)

	protected.POST("/patients/:id/certificate", middleware.RBAC("ADMIN", "DOCTOR", "SELF"), exportHandler.Certificate)
	protected.GET("/patients/:id/records.csv", middleware.RBAC("ADMIN", "DOCTOR", "SELF"), exportHandler.RecordsCSV)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
