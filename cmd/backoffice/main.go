package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogFormat)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("backoffice exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	var (
		store users.Store
		pool  *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case app.DriverSQLite:
		sqliteStore, err := users.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		store = sqliteStore
	default:
		p, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return err
		}
		defer p.Close()
		if err := db.Migrate(ctx, p); err != nil {
			return err
		}
		pool = p
		store = users.NewPGStore(p)
	}

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Warn("redis unavailable, failed-login limiter and job queue disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	audit, inspector, closeAudit := auditSink(pool, redisClient, redisOpts, logger)
	defer closeAudit()

	metrics := observability.NewMetrics()
	api, err := app.NewAPI(app.APIDeps{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Audit:     audit,
		Metrics:   metrics,
		Redis:     redisClient,
		Inspector: inspector,
	})
	if err != nil {
		return err
	}

	created, err := api.Users.EnsureAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Warn("created bootstrap admin; rotate its password", slog.String("username", cfg.BootstrapAdminUsername))
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      api.Handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// auditSink picks where audit records go: the job queue when Redis is up,
// a direct PostgreSQL write otherwise, and nowhere for the SQLite driver.
func auditSink(pool *pgxpool.Pool, redisClient *redis.Client, opts cache.Options, logger *slog.Logger) (shared.AuditRecorder, jobs.QueueInspector, func()) {
	if pool == nil {
		logger.Info("sqlite store in use, audit trail disabled")
		return shared.DiscardAudit{}, nil, func() {}
	}
	if redisClient == nil {
		return shared.NewAuditLogger(pool), nil, func() {}
	}
	client := jobs.NewClient(opts.AsynqOpts())
	inspector := asynq.NewInspector(opts.AsynqOpts())
	return client, inspector, func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}
}
