// Package main is the entrypoint for the AdsConnect API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adsconnect/adsconnect/internal/amazon"
	"github.com/adsconnect/adsconnect/internal/api"
	"github.com/adsconnect/adsconnect/internal/api/handler"
	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/cache"
	"github.com/adsconnect/adsconnect/internal/config"
	"github.com/adsconnect/adsconnect/internal/connect"
	"github.com/adsconnect/adsconnect/internal/identity"
	"github.com/adsconnect/adsconnect/internal/logger"
	"github.com/adsconnect/adsconnect/internal/metrics"
	"github.com/adsconnect/adsconnect/internal/oauth"
	"github.com/adsconnect/adsconnect/internal/queue"
	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/internal/syncer"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	log.Info("config loaded", zap.String("env", cfg.Server.Env))
	if !cfg.Amazon.HasClientCredentials() {
		log.Warn("AMAZON_CLIENT_ID or AMAZON_CLIENT_SECRET not set; Amazon operations will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	// 4. Redis for rate limits, task status and the sync queue
	redisClient, err := cache.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient)
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info("redis connected")

	// 5. Services
	m := metrics.New(prometheus.DefaultRegisterer)
	pgStore := store.NewPostgresStore(pool)
	verifier := identity.NewJWTVerifier(cfg.Identity.JWTSecret)
	amazonClient := amazon.NewHTTPClient(cfg.Amazon, log)
	syncQueue := queue.NewRedisQueue(redisClient, redisCache, log)

	refresher := oauth.NewRefresher(pgStore, amazonClient, cfg.Amazon, m, log)
	authFlow := oauth.NewAuthFlow(verifier, pgStore, amazonClient, syncQueue, cfg.Amazon, log)
	syncSvc := syncer.NewService(refresher, amazonClient, pgStore, cfg.Sync.UpsertConcurrency, m, log)
	connectSvc := connect.NewService(pgStore, log)

	worker := newWorker(syncQueue, redisCache, syncSvc, cfg.Sync, m, log)

	// 6. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		Logger:    log,
		Auth:      mw.NewAuth(pgStore, verifier, cfg.Identity.ServiceToken, log),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute, log),

		InlineSyncTimeout: cfg.Server.HandlerTimeout(),

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache),
		MetricsHandler: promhttp.Handler(),

		ExchangeHandler:     handler.NewExchangeHandler(authFlow, log),
		AuthorizeURLHandler: handler.NewAuthorizeURLHandler(authFlow, log),

		SyncProfilesHandler:  handler.NewSyncProfilesHandler(syncSvc, log),
		SyncCampaignsHandler: handler.NewSyncCampaignsHandler(syncSvc, log),
		EnqueueTaskHandler:   handler.NewEnqueueTaskHandler(syncQueue, log),
		TaskStatusHandler:    handler.NewTaskStatusHandler(redisCache, log),

		ConnectionStatusHandler: handler.NewConnectionStatusHandler(connectSvc, log),
		DisconnectHandler:       handler.NewDisconnectHandler(connectSvc, log),
		ListAdvertisersHandler:  handler.NewListAdvertisersHandler(connectSvc, log),

		CreateKeyHandler: handler.NewCreateKeyHandler(connectSvc, log),
		ListKeysHandler:  handler.NewListKeysHandler(connectSvc, log),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(connectSvc, log),
	})

	// 7. Start HTTP server and worker
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// permanentSyncErrors are failures a retry cannot fix.
var permanentSyncErrors = []error{
	oauth.ErrConfiguration,
	oauth.ErrNotConnected,
	oauth.ErrRefreshFailed,
	oauth.ErrInvalidRequest,
	syncer.ErrNoProfiles,
}

func newWorker(b queue.Broker, status queue.StatusRecorder, svc handler.Syncer, cfg config.SyncConfig, m *metrics.Metrics, log *zap.Logger) *queue.Worker {
	w := queue.NewWorker(b, status, queue.WorkerConfig{
		MaxAttempts:     cfg.MaxAttempts,
		PermanentErrors: permanentSyncErrors,
	}, m, log)

	w.Handle(models.TaskKindSyncProfiles, func(ctx context.Context, task *models.SyncTask) error {
		_, err := svc.SyncProfiles(ctx, task.UserID)
		return err
	})
	w.Handle(models.TaskKindSyncCampaigns, func(ctx context.Context, task *models.SyncTask) error {
		_, err := svc.SyncCampaigns(ctx, task.UserID, task.ProfileID)
		return err
	})
	return w
}
