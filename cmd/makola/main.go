package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	corecfg "github.com/makola-lab/project-makola/internal/core/config"
	"github.com/makola-lab/project-makola/internal/core/storage/postgres"
	"github.com/makola-lab/project-makola/internal/metering"
	"github.com/makola-lab/project-makola/internal/migrations"
	"github.com/makola-lab/project-makola/internal/notify"
	"github.com/makola-lab/project-makola/internal/quota"
	"github.com/makola-lab/project-makola/internal/reconcile"
	"github.com/makola-lab/project-makola/internal/server"
	"github.com/makola-lab/project-makola/internal/session"
)

func main() {
	configPath := flag.String("config", "makola.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	entityStore := postgres.NewEntityAdapter(dbAdapter.DB())
	bucketStore := postgres.NewBucketAdapter(dbAdapter.DB())
	notificationStore := postgres.NewNotificationAdapter(dbAdapter.DB())

	eventLog, err := postgres.NewEventLogAdapter(dbAdapter.DB())
	if err != nil {
		slog.Error("Failed to initialize event log", "error", err)
		os.Exit(1)
	}
	defer eventLog.Close()

	// 3. Session-flag store (guards once-per-session reconciliation)
	var sessionStore session.Store
	sessionTTL := time.Duration(cfg.Redis.SessionTTLMin) * time.Minute
	if cfg.Redis.Enabled {
		redisStore, err := session.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, sessionTTL)
		if err != nil {
			slog.Error("Failed to initialize redis session store", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		sessionStore = redisStore
	} else {
		sessionStore = session.NewMemoryStore(sessionTTL)
		slog.Info("Redis disabled, using in-process session store")
	}

	// 4. Quota Enforcer (tier limits from YAML, built-in defaults otherwise)
	limits, fingerprint, err := quota.LoadLimits(cfg.Quota.TiersFile)
	if err != nil {
		slog.Error("Failed to load tier limits", "error", err)
		os.Exit(1)
	}
	slog.Info("Tier limits loaded", "fingerprint", fingerprint)
	enforcer := quota.NewEnforcer(entityStore, limits)

	// 5. Reconciliation + Event Recorder (the recorder feeds drift marks)
	reconciler := reconcile.NewService(entityStore, bucketStore, sessionStore)

	recorder := metering.NewRecorder(bucketStore, entityStore, eventLog, reconciler, metering.Options{
		QueueBufferSize: cfg.Metering.QueueBufferSize,
		RetryCount:      cfg.Metering.RetryCount,
		TopProducts:     cfg.Metering.TopProducts,
	})

	// 6. Notification Fan-out Engine
	resolver := notify.NewResolver(
		notificationStore,
		eventLog,
		time.Duration(cfg.Notification.RecentViewerDays)*24*time.Hour,
	)
	deliverer := notify.NewHTTPDeliverer(
		cfg.Notification.GatewayURL,
		time.Duration(cfg.Notification.RequestTimeoutSec)*time.Second,
	)
	engine := notify.NewEngine(resolver, deliverer, notificationStore, enforcer, notify.Options{
		BatchSize:       cfg.Notification.BatchSize,
		HistoryPageSize: cfg.Notification.HistoryPageSize,
	})

	// 7. HTTP Server + routes
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	recorder.RegisterRoutes(srv.Engine)
	quota.NewService(enforcer, entityStore).RegisterRoutes(srv.Engine)
	engine.RegisterRoutes(srv.Engine)
	reconciler.RegisterRoutes(srv.Engine)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go recorder.Run(ctx)

	// Periodic drain of sellers flagged dirty by dropped metering writes.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				reconciler.ReconcileDirty(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
