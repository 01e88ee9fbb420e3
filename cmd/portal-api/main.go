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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/realtime"
	"github.com/noah-isme/civic-portal-api/internal/repository"
	"github.com/noah-isme/civic-portal-api/internal/service"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/cache"
	"github.com/noah-isme/civic-portal-api/pkg/config"
	"github.com/noah-isme/civic-portal-api/pkg/database"
	"github.com/noah-isme/civic-portal-api/pkg/jobs"
	"github.com/noah-isme/civic-portal-api/pkg/logger"
	"github.com/noah-isme/civic-portal-api/pkg/storage"
	"github.com/noah-isme/civic-portal-api/pkg/telemetry"
)

// @title Civic Portal API
// @version 1.0.0
// @description Village issue reporting and fund request approvals with jurisdiction-scoped access
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, logr)
	if err != nil {
		logr.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	applied, err := database.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		logr.Info("migrations applied", zap.Strings("versions", applied))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// Cache and idempotency degrade to no-ops without Redis.
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close() //nolint:errcheck
		}
	}

	metrics := service.NewMetricsService()
	hub := realtime.NewHub(logr.Named("realtime"), realtime.WithClientGauge(metrics.SetRealtimeClients))
	defer hub.Close()

	app, err := buildApp(cfg, logr, db, rdb, metrics, hub)
	if err != nil {
		return err
	}

	if app.queue != nil {
		app.queue.Start(ctx)
		defer app.queue.Stop()
		app.reports.RecoverPendingJobs(ctx)
		app.reports.StartCleanup(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, logr, app)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(router, "civic-portal-api"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// app holds the wired services the router and background workers need.
type app struct {
	db      *sqlx.DB
	rdb     *redis.Client
	metrics *service.MetricsService
	hub     *realtime.Hub

	users        *repository.UserRepository
	auth         *service.AuthService
	userSvc      *service.UserService
	issues       *service.IssueService
	fundRequests *service.FundRequestService
	dashboard    *service.DashboardService
	meta         *service.MetaService
	reports      *service.ReportService
	queue        *jobs.Queue
}

func buildApp(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, rdb *redis.Client, metrics *service.MetricsService, hub *realtime.Hub) (*app, error) {
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	fundRepo := repository.NewFundRequestRepository(db)
	eventRepo := repository.NewEventRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(rdb, logr.Named("cache"))
	idemRepo := repository.NewIdempotencyRepository(rdb)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr.Named("cache"), cfg.Dashboard.CacheEnabled && rdb != nil)

	retry := database.RetryPolicy{
		Timeout:     cfg.Workflow.StoreTimeout,
		Backoff:     cfg.Workflow.RetryBackoff,
		MaxAttempts: cfg.Workflow.RetryAttempts,
	}
	settings := service.WorkflowSettings{
		Retry:          retry,
		IdempotencyTTL: cfg.Workflow.IdempotencyTTL,
		IssueSLA:       cfg.Workflow.IssueSLA,
	}
	priority := workflow.PriorityPolicy{
		HighAmount:   cfg.Priority.HighAmount,
		MediumAmount: cfg.Priority.MediumAmount,
		Keywords:     cfg.Priority.Keywords,
	}
	opts := []service.WorkflowOption{
		service.WithActorCheck(userRepo),
		service.WithIdempotency(idemRepo),
		service.WithCache(cacheSvc),
		service.WithMetrics(metrics),
		service.WithLogger(logr.Named("workflow")),
	}
	if cfg.Realtime.Enabled {
		opts = append(opts, service.WithPublisher(hub))
	}

	a := &app{
		db:      db,
		rdb:     rdb,
		metrics: metrics,
		hub:     hub,
		users:   userRepo,
		auth: service.NewAuthService(userRepo, validate, logr.Named("auth"), service.AuthConfig{
			AccessTokenSecret:  cfg.JWT.Secret,
			AccessTokenExpiry:  cfg.JWT.Expiration,
			RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
			Issuer:             cfg.JWT.Issuer,
			SingleSession:      cfg.JWT.SingleSession,
		}),
		userSvc:      service.NewUserService(userRepo, validate, logr.Named("users"), cacheSvc),
		issues:       service.NewIssueService(issueRepo, eventRepo, validate, settings, opts...),
		fundRequests: service.NewFundRequestService(fundRepo, issueRepo, eventRepo, priority, validate, settings, opts...),
		dashboard: service.NewDashboardService(service.DashboardServiceParams{
			Issues: issueRepo,
			Funds:  fundRepo,
			Users:  userRepo,
			Cache:  cacheSvc,
			Logger: logr.Named("dashboard"),
			Config: service.DashboardServiceConfig{
				CacheTTL:    cfg.Dashboard.CacheTTL,
				RecentLimit: cfg.Dashboard.RecentLimit,
				IssueSLA:    cfg.Workflow.IssueSLA,
				Retry:       retry,
				Priority:    priority,
			},
		}),
		meta: service.NewMetaService(cfg.Workflow.IssueSLA),
	}

	if !cfg.Reports.Enabled {
		return a, nil
	}

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("report storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(issueRepo, fundRepo, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
		MaxRows:   cfg.Reports.MaxRows,
		IssueSLA:  cfg.Workflow.IssueSLA,
		Priority:  priority,
	}, logr.Named("export"), nil, nil)

	worker := service.NewReportWorker(reportRepo, exporter, cfg.Reports.WorkerRetries, metrics, logr.Named("reports"))
	a.queue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr.Named("queue"),
	})
	a.reports = service.NewReportService(reportRepo, a.queue, exporter, validate, logr.Named("reports"), service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	return a, nil
}
