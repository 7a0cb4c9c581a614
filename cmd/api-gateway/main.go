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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Weekly class timetable generation, preview and export
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(rdb, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduler.ProposalTTL, logr, cfg.Scheduler.CacheProposals && rdb != nil)

	catalogRepo := repository.NewCatalogRepository(db)
	slotRepo := repository.NewScheduleSlotRepository(db)
	runRepo := repository.NewTimetableRunRepository(db)

	validate := validator.New()
	timetableSvc := service.NewTimetableService(catalogRepo, slotRepo, runRepo, db, cacheSvc, metricsSvc, validate, logr, service.TimetableConfig{
		ProposalTTL: cfg.Scheduler.ProposalTTL,
		Seed:        cfg.Scheduler.Seed,
		IncludeLogs: cfg.Scheduler.IncludeLogs,
	})
	exportSvc := service.NewExportService(slotRepo, catalogRepo, logr, nil, nil, nil)
	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Scheduler.Enabled {
		queue := jobs.NewQueue("timetable", timetableSvc.HandleJob, jobs.QueueConfig{
			Workers:     cfg.Scheduler.Workers,
			MaxRetries:  cfg.Scheduler.WorkerRetries,
			RetryDelay:  cfg.Scheduler.RetryDelay,
			Logger:      logr.Named("jobs"),
			OnExhausted: timetableSvc.OnJobExhausted,
			OnDepth:     metricsSvc.SetQueueDepth,
		})
		queue.Start(ctx)
		defer queue.Stop()
		timetableSvc.SetQueue(queue)
	}

	if spec := cfg.Scheduler.SweepSchedule; spec != "" {
		sweeper, err := timetableSvc.StartSweeper(spec)
		if err != nil {
			logr.Fatal("failed to schedule proposal sweep", zap.Error(err))
		}
		defer sweeper.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(internalmiddleware.Metrics(metricsSvc))
	}

	checks := map[string]handler.Pinger{"database": db}
	if rdb != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	handler.RegisterOpsRoutes(r, handler.NewMetricsHandler(metricsSvc, checks), cfg.Metrics.Enabled)

	api := r.Group(cfg.APIPrefix)
	handler.RegisterTimetableRoutes(api, handler.NewTimetableHandler(timetableSvc, exportSvc), internalmiddleware.JWT(tokenSvc))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
