// Command adsctl runs AdsConnect maintenance and sync operations from the
// command line against the same database the server uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adsconnect/adsconnect/internal/amazon"
	"github.com/adsconnect/adsconnect/internal/config"
	"github.com/adsconnect/adsconnect/internal/logger"
	"github.com/adsconnect/adsconnect/internal/oauth"
	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/internal/syncer"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(openLiveApp)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// liveApp is App backed by Postgres and the real Amazon client.
type liveApp struct {
	cfg    *config.Config
	log    *zap.Logger
	pool   *pgxpool.Pool
	tokens *oauth.Refresher
	sync   *syncer.Service
}

func openLiveApp(ctx context.Context) (App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pgStore := store.NewPostgresStore(pool)
	client := amazon.NewHTTPClient(cfg.Amazon, log)
	tokens := oauth.NewRefresher(pgStore, client, cfg.Amazon, nil, log)

	return &liveApp{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		tokens: tokens,
		sync:   syncer.NewService(tokens, client, pgStore, cfg.Sync.UpsertConcurrency, nil, log),
	}, nil
}

func (a *liveApp) Migrate(_ context.Context, dir string) error {
	return store.RunMigrations(a.cfg.Database.URL, dir)
}

func (a *liveApp) EnsureValidToken(ctx context.Context, userID string) (*oauth.ValidToken, error) {
	return a.tokens.EnsureValidToken(ctx, userID)
}

func (a *liveApp) SyncProfiles(ctx context.Context, userID string) (*syncer.ProfileSyncResult, error) {
	return a.sync.SyncProfiles(ctx, userID)
}

func (a *liveApp) SyncCampaigns(ctx context.Context, userID, profileID string) (*syncer.CampaignSyncResult, error) {
	return a.sync.SyncCampaigns(ctx, userID, profileID)
}

func (a *liveApp) Close() {
	a.pool.Close()
	_ = a.log.Sync()
}
