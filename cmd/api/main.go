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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/tutorbase/tutorbase-api/api/swagger"
	"github.com/tutorbase/tutorbase-api/internal/handler"
	"github.com/tutorbase/tutorbase-api/internal/middleware"
	"github.com/tutorbase/tutorbase-api/internal/models"
	"github.com/tutorbase/tutorbase-api/internal/repository"
	"github.com/tutorbase/tutorbase-api/internal/service"
	"github.com/tutorbase/tutorbase-api/pkg/cache"
	"github.com/tutorbase/tutorbase-api/pkg/config"
	"github.com/tutorbase/tutorbase-api/pkg/database"
	"github.com/tutorbase/tutorbase-api/pkg/logger"
	corsmiddleware "github.com/tutorbase/tutorbase-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutorbase/tutorbase-api/pkg/middleware/requestid"
)

// @title TutorBase API
// @version 1.0.0
// @description Scheduling and booking engine for tutoring platforms
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.Migrate(ctx, db); err != nil {
			cancel()
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
		cancel()
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, listing cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	slotRepo := repository.NewSlotRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	periodRepo := repository.NewTeachingPeriodRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notifySvc := service.NewNotificationService(notificationRepo, cfg.Notify, logr)
	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	notifySvc.Start(notifyCtx)
	defer notifyCancel()
	defer notifySvc.Stop()

	locks := service.NewTutorLocks()
	conflictSvc := service.NewConflictService(slotRepo, sessionRepo)
	tokenSvc := service.NewTokenService(cfg.JWT)
	periodSvc := service.NewTeachingPeriodService(periodRepo, nil, logr)
	slotSvc := service.NewSlotService(slotRepo, conflictSvc, periodRepo, locks,
		cacheSvc, notifySvc, metrics, cfg.Booking, nil, logr)
	sessionSvc := service.NewSessionService(sessionRepo, conflictSvc, locks,
		notifySvc, metrics, nil, logr)

	slotHandler := handler.NewSlotHandler(slotSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	periodHandler := handler.NewTeachingPeriodHandler(periodSvc)
	notificationHandler := handler.NewNotificationHandler(notifySvc)
	conflictHandler := handler.NewConflictHandler(conflictSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))

	slots := api.Group("/slots")
	{
		slots.GET("", slotHandler.List)
		slots.GET("/:id", slotHandler.Get)
		slots.POST("", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), slotHandler.Create)
		slots.POST("/recurring", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), slotHandler.CreateRecurring)
		slots.POST("/:id/book", middleware.RequireRoles(models.RoleStudent), slotHandler.Book)
		slots.POST("/:id/approve", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), slotHandler.Approve)
		slots.POST("/:id/reject", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), slotHandler.Reject)
		slots.DELETE("/:id", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), slotHandler.Delete)
	}

	sessions := api.Group("/sessions")
	{
		sessions.GET("", sessionHandler.List)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.POST("", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), sessionHandler.Create)
		sessions.POST("/:id/complete", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), sessionHandler.Complete)
		sessions.POST("/:id/change-request", sessionHandler.RequestChange)
		sessions.POST("/:id/change-request/approve", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), sessionHandler.ApproveChange)
		sessions.POST("/:id/change-request/reject", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), sessionHandler.RejectChange)
		sessions.POST("/:id/review", middleware.RequireRoles(models.RoleStudent), sessionHandler.AttachReview)
		sessions.POST("/:id/progress-note", middleware.RequireRoles(models.RoleTutor), sessionHandler.AttachProgressNote)
	}

	periods := api.Group("/teaching-periods")
	{
		periods.GET("", periodHandler.List)
		periods.GET("/:id", periodHandler.Get)
		periods.POST("", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), periodHandler.Create)
		periods.POST("/:id/finish", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), periodHandler.Finish)
	}

	api.GET("/tutors/:id/conflicts", conflictHandler.Check)

	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
