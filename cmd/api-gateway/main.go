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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Timetable grid editor with conflict detection and teacher class reminders.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("failed to prepare schema", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, session cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	slots := timetable.DefaultSlotTable()
	if len(cfg.Timetable.Slots) > 0 {
		slots, err = timetable.SlotTableFromLabels(cfg.Timetable.Slots)
		if err != nil {
			logr.Fatal("invalid TIMETABLE_SLOTS", zap.Error(err))
		}
	}
	scope, ok := timetable.ParseScope(cfg.Timetable.ConflictScope)
	if !ok {
		logr.Fatal("invalid TIMETABLE_CONFLICT_SCOPE", zap.String("scope", cfg.Timetable.ConflictScope))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	sessionRepo := repository.NewSessionRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	timetableSvc := service.NewTimetableService(timetableRepo, metrics, service.TimetableConfig{
		Slots:       slots,
		Scope:       scope,
		SeedDefault: cfg.Timetable.SeedDefault,
	}, validate, logr.Named("timetable"))

	sessionSource := service.NewCachedSessionSource(sessionRepo, cacheRepo, cfg.Notifications.SessionCacheTTL, metrics, logr.Named("sessions"))

	notificationSvc := service.NewNotificationService(ctx, sessionSource, notificationRepo, metrics, service.NotificationConfig{
		PollInterval:   cfg.Notifications.PollInterval,
		ReminderWindow: cfg.Notifications.ReminderWindow,
		HistoryLimit:   cfg.Notifications.HistoryLimit,
		Slots:          slots,
	}, validate, logr.Named("notifications"))

	logQueue := jobs.NewQueue("notification-log", notificationSvc.PersistEvent, jobs.QueueConfig{
		Workers:    cfg.Notifications.QueueWorkers,
		MaxRetries: cfg.Notifications.QueueRetries,
		Logger:     logr.Named("jobs"),
	})
	logQueue.Start(context.Background())
	notificationSvc.UseQueue(logQueue)

	tokens := service.NewTokenValidator(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare export storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(timetableSvc, files, signer, service.ExportConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		}, validate, logr.Named("exports"))
		exportSvc.StartCleanup(ctx)
		exportHandler = handler.NewExportHandler(exportSvc)
	}

	readiness := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	registerRoutes(r, cfg, routeDeps{
		tokens:        tokens,
		timetables:    handler.NewTimetableHandler(timetableSvc),
		notifications: handler.NewNotificationHandler(notificationSvc, cfg.CORS.AllowedOrigins, logr.Named("stream")),
		exports:       exportHandler,
		metrics:       handler.NewMetricsHandler(metrics, readiness),
		sessionCache:  handler.NewSessionCacheHandler(sessionSource),
	})

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

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	notificationSvc.Shutdown()
	logQueue.Stop()
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("redis close failed", zap.Error(err))
	}
}

type routeDeps struct {
	tokens        middleware.TokenValidator
	timetables    *handler.TimetableHandler
	notifications *handler.NotificationHandler
	exports       *handler.ExportHandler
	metrics       *handler.MetricsHandler
	sessionCache  *handler.SessionCacheHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, deps routeDeps) {
	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if deps.exports != nil {
		api.GET("/export/:token", deps.exports.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.tokens))

	editors := middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin)
	everyone := middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)

	timetables := secured.Group("/timetables")
	timetables.GET("/:id", everyone, deps.timetables.Get)
	timetables.GET("/:id/conflicts", everyone, deps.timetables.Conflicts)
	timetables.GET("/:id/view", everyone, deps.timetables.View)
	timetables.GET("/:id/versions", everyone, deps.timetables.Versions)
	timetables.POST("/:id/sessions", editors, deps.timetables.AddSession)
	timetables.POST("/:id/sessions/move", editors, deps.timetables.MoveSession)
	timetables.DELETE("/:id/sessions", editors, deps.timetables.DeleteSession)
	timetables.PUT("/:id", editors, deps.timetables.Replace)
	timetables.POST("/:id/save", editors, deps.timetables.Save)
	if deps.exports != nil {
		timetables.POST("/:id/export", everyone, deps.exports.Export)
	}

	notifications := secured.Group("/notifications", everyone)
	notifications.GET("", deps.notifications.History)
	notifications.GET("/monitor", deps.notifications.Status)
	notifications.POST("/monitor", deps.notifications.Start)
	notifications.DELETE("/monitor", deps.notifications.Stop)
	notifications.POST("/monitor/check", deps.notifications.CheckNow)
	notifications.GET("/stream", deps.notifications.Stream)
	secured.DELETE("/notifications/cache", editors, deps.sessionCache.Invalidate)

	secured.GET("/teachers/me/agenda", everyone, deps.notifications.Agenda)
	secured.GET("/metrics/summary", editors, deps.metrics.Summary)
}
