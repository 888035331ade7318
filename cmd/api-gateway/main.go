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

	_ "github.com/noah-isme/crew-bid-api/api/swagger"
	"github.com/noah-isme/crew-bid-api/internal/bootstrap"
	"github.com/noah-isme/crew-bid-api/internal/handler"
	internalmiddleware "github.com/noah-isme/crew-bid-api/internal/middleware"
	"github.com/noah-isme/crew-bid-api/internal/repository"
	"github.com/noah-isme/crew-bid-api/internal/service"
	"github.com/noah-isme/crew-bid-api/pkg/cache"
	"github.com/noah-isme/crew-bid-api/pkg/config"
	"github.com/noah-isme/crew-bid-api/pkg/database"
	"github.com/noah-isme/crew-bid-api/pkg/export"
	"github.com/noah-isme/crew-bid-api/pkg/jobs"
	"github.com/noah-isme/crew-bid-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/crew-bid-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/crew-bid-api/pkg/middleware/requestid"
	"github.com/noah-isme/crew-bid-api/pkg/storage"
)

// @title Crew Bid API
// @version 1.0.0
// @description Compiles pilot schedule preferences into ranked schedules and layered bids.
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

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	sessions, closeSessions := buildSessionStore(ctx, cfg, metricsSvc, metricsHandler, logr)
	defer closeSessions()

	var pairings service.PairingSource
	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect trip pool database", zap.Error(err))
		}
		defer db.Close()
		pairings = repository.NewPairingRepository(db)
		metricsHandler.AddReadinessCheck("postgres", database.Ping(db, 2*time.Second))
	}

	exportSvc, stopExports := buildExportService(ctx, cfg, metricsSvc, logr)
	defer stopExports()

	compiler, err := bootstrap.NewCompiler(cfg.Bid, bootstrap.Dependencies{
		Sessions: sessions,
		Pairings: pairings,
		Exports:  exportSvc,
		Metrics:  metricsSvc,
	}, validate, logr)
	if err != nil {
		logr.Fatal("failed to build bid compiler", zap.Error(err))
	}
	bidHandler := handler.NewBidHandler(compiler, exportSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	bids := api.Group("/bids")
	bids.POST("/validate", bidHandler.Validate)
	bids.POST("/optimize", bidHandler.Optimize)
	bids.POST("/layers", bidHandler.Layers)
	bids.GET("/sessions/:sessionId/candidates/:candidateId/explain", bidHandler.Explain)
	bids.GET("/sessions/:sessionId/exports/:hash", bidHandler.Export)
	bids.GET("/downloads/:token", bidHandler.Download)

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
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}

func buildSessionStore(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, health *handler.MetricsHandler, logr *zap.Logger) (service.SessionStore, func()) {
	if cfg.Session.Backend == config.SessionBackendRedis {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis session backend", zap.Error(err))
		}
		repo := repository.NewCacheRepository(client, logger.Component(logr, "cache"))
		cacheSvc := service.NewCacheService(repo, metrics, cfg.Session.IdleTTL, logger.Component(logr, "cache"))
		health.AddReadinessCheck("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx).Err()
		})
		logr.Info("bid sessions stored in redis", zap.Duration("idle_ttl", cfg.Session.IdleTTL))
		return service.NewRedisSessionStore(cacheSvc, cfg.Session.IdleTTL), func() { _ = repo.Close() }
	}

	store := service.NewMemorySessionStore(cfg.Session.IdleTTL, cfg.Session.Capacity, metrics)
	go runJanitor(ctx, cfg.Session.SweepInterval, func() {
		if evicted := store.Sweep(); evicted > 0 {
			logr.Debug("idle bid sessions evicted", zap.Int("count", evicted))
		}
	})
	logr.Info("bid sessions stored in memory",
		zap.Duration("idle_ttl", cfg.Session.IdleTTL),
		zap.Int("capacity", cfg.Session.Capacity))
	return store, func() {}
}

func buildExportService(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (*service.ExportService, func()) {
	exportLogger := logger.Component(logr, "exports")
	exportCfg := service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL}
	if !cfg.Exports.ArchiveEnabled {
		return service.NewExportService(nil, nil, nil, exportCfg, exportLogger, export.NewCSVExporter(), export.NewPDFExporter()), func() {}
	}

	archive, err := storage.NewArchive(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export archive", zap.Error(err))
	}
	signer := storage.NewTokenSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	svc := service.NewExportService(archive, signer, nil, exportCfg, exportLogger, export.NewCSVExporter(), export.NewPDFExporter())
	queue := jobs.NewQueue("bid-export-archive", svc.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		OnResult: func(_ jobs.Job, outcome jobs.Outcome) {
			metrics.RecordArchiveJob(string(outcome))
		},
		Logger: exportLogger,
	})
	svc.SetQueue(queue)
	queue.Start(ctx)

	go runJanitor(ctx, cfg.Exports.CleanupInterval, func() {
		removed, err := svc.Cleanup(0)
		if err != nil {
			exportLogger.Warn("export cleanup failed", zap.Error(err))
			return
		}
		if len(removed) > 0 {
			exportLogger.Info("expired exports removed", zap.Int("count", len(removed)))
		}
	})
	return svc, queue.Stop
}

func runJanitor(ctx context.Context, interval time.Duration, tick func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
