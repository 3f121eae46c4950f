package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/classpulse/classpulse-api/api/swagger"
	"github.com/classpulse/classpulse-api/internal/handler"
	internalmiddleware "github.com/classpulse/classpulse-api/internal/middleware"
	"github.com/classpulse/classpulse-api/internal/repository"
	"github.com/classpulse/classpulse-api/internal/service"
	"github.com/classpulse/classpulse-api/pkg/cache"
	"github.com/classpulse/classpulse-api/pkg/config"
	"github.com/classpulse/classpulse-api/pkg/database"
	"github.com/classpulse/classpulse-api/pkg/export"
	"github.com/classpulse/classpulse-api/pkg/logger"
	corsmiddleware "github.com/classpulse/classpulse-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classpulse/classpulse-api/pkg/middleware/requestid"
	"github.com/classpulse/classpulse-api/pkg/storage"
)

// @title ClassPulse API
// @version 1.0.0
// @description Classroom engagement scoring, weekly reports and at-risk detection for teachers.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable; caching and live updates disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	logRepo := repository.NewDailyLogRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "classpulse-api",
	})

	watchSvc := service.NewWatchService(service.WatchServiceParams{
		PubSub:     cacheRepo,
		Classes:    classRepo,
		Students:   studentRepo,
		Logs:       logRepo,
		Metrics:    metricsSvc,
		Logger:     logr,
		BufferSize: cfg.Watch.BufferSize,
		Enabled:    cfg.Watch.Enabled && redisClient != nil,
	})

	classSvc := service.NewClassService(service.ClassServiceParams{
		Repo:     classRepo,
		Logs:     logRepo,
		Cache:    cacheSvc,
		Notifier: watchSvc,
		Logger:   logr,
	})
	studentSvc := service.NewStudentService(service.StudentServiceParams{
		Repo:     studentRepo,
		Classes:  classRepo,
		Cache:    cacheSvc,
		Notifier: watchSvc,
		Logger:   logr,
	})
	dailyLogSvc := service.NewDailyLogService(service.DailyLogServiceParams{
		Repo:     logRepo,
		Roster:   studentRepo,
		Classes:  classRepo,
		Cache:    cacheSvc,
		Metrics:  metricsSvc,
		Notifier: watchSvc,
		Logger:   logr,
	})
	reportSvc := service.NewReportService(service.ReportServiceParams{
		Logs:          logRepo,
		Classes:       classRepo,
		Students:      studentRepo,
		Cache:         cacheSvc,
		Logger:        logr,
		EngagementBar: cfg.Reports.EngagementBar,
		CacheTTL:      cfg.Cache.TTL,
	})
	feedbackSvc := service.NewFeedbackService(reportSvc, cfg.Feedback, logr)

	localStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSvc := service.NewExportService(service.ExportServiceParams{
		Repo:    exportJobRepo,
		Reports: reportSvc,
		Storage: localStorage,
		CSV:     export.NewCSVExporter(),
		PDF:     export.NewPDFExporter(),
		Signer:  storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL),
		Metrics: metricsSvc,
		Logger:  logr,
		Config: service.ExportConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			Workers:         cfg.Reports.WorkerConcurrency,
			MaxRetries:      cfg.Reports.WorkerRetries,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportSvc.Start(ctx)
	defer exportSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	classHandler := handler.NewClassHandler(classSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	dailyLogHandler := handler.NewDailyLogHandler(dailyLogSvc)
	reportHandler := handler.NewReportHandler(reportSvc, feedbackSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	watchHandler := handler.NewWatchHandler(watchSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		// Export downloads authenticate via the signed token, not a JWT,
		// so the links work when pasted into a browser.
		api.GET("/exports/download/:token", exportHandler.Download)

		secured := api.Group("")
		secured.Use(internalmiddleware.JWT(authSvc))
		{
			secured.POST("/auth/logout", authHandler.Logout)
			secured.GET("/auth/me", authHandler.Me)
			secured.PUT("/auth/me", authHandler.UpdateProfile)

			secured.GET("/classes", classHandler.List)
			secured.POST("/classes", classHandler.Create)
			secured.GET("/classes/:id", classHandler.Get)
			secured.PUT("/classes/:id", classHandler.Update)
			secured.DELETE("/classes/:id", classHandler.Delete)
			secured.DELETE("/classes/:id/daily-logs", dailyLogHandler.PurgeClass)

			secured.GET("/students", studentHandler.List)
			secured.POST("/students", studentHandler.Create)
			secured.GET("/students/:id", studentHandler.Get)
			secured.PUT("/students/:id", studentHandler.Update)
			secured.DELETE("/students/:id", studentHandler.Delete)
			secured.GET("/students/:id/daily-logs", dailyLogHandler.ListForStudent)
			secured.DELETE("/students/:id/daily-logs", dailyLogHandler.PurgeStudent)

			secured.PUT("/daily-logs", dailyLogHandler.SaveDay)
			secured.GET("/daily-logs", dailyLogHandler.GetDay)
			secured.DELETE("/daily-logs", dailyLogHandler.PurgeRange)

			secured.GET("/reports/weeks", reportHandler.AvailableWeeks)
			secured.GET("/reports/daily", dailyLogHandler.StudentDay)
			secured.GET("/reports/students/:id", reportHandler.StudentWeekly)
			secured.GET("/reports/students/:id/feedback", reportHandler.Feedback)
			secured.GET("/reports/classes/:id", reportHandler.ClassWeekly)

			secured.POST("/exports", exportHandler.Enqueue)
			secured.GET("/exports", exportHandler.List)
			secured.GET("/exports/:id", exportHandler.Get)

			secured.GET("/watch", watchHandler.Stream)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
