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

	"clickbridge_backend/internal/alert"
	"clickbridge_backend/internal/clicklog"
	"clickbridge_backend/internal/conversion"
	"clickbridge_backend/internal/googleads"
	apphttp "clickbridge_backend/internal/http"
	"clickbridge_backend/internal/http/router"
	"clickbridge_backend/internal/kommo"
	"clickbridge_backend/internal/matcher"
	"clickbridge_backend/internal/webhook"
	"clickbridge_backend/migrations"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/db"
	"clickbridge_backend/platform/logger"
	"clickbridge_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	rdb := redis.NewClient(redisOpt)
	defer func() {
		_ = rdb.Close()
	}()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Shared validator instance for dependency injection
	val := validator.New()

	clicklogModule := clicklog.NewModule(rdb, cfg, log)
	kommoClient := kommo.NewClient(cfg, log)
	matcherService := matcher.NewService(clicklogModule.Store(), kommoClient, cfg.GetDefaultPhoneRegion(), log)
	adsClient := googleads.NewClient(cfg, cfg.GetDefaultPhoneRegion(), log)
	alerts := alert.NewMailer(cfg, log)

	journal := conversion.NewRepository(pool)
	queue, err := conversion.NewQueue(cfg)
	if err != nil {
		log.Error("failed to initialize upload queue", "error", err)
		panic("failed to initialize upload queue: " + err.Error())
	}
	defer func() {
		_ = queue.Close()
	}()

	orchestrator := conversion.NewOrchestrator(journal, kommoClient, matcherService, queue, cfg, log)
	worker, err := conversion.NewWorker(cfg, journal, kommoClient, adsClient, alerts, log)
	if err != nil {
		log.Error("failed to initialize upload worker", "error", err)
		panic("failed to initialize upload worker: " + err.Error())
	}

	webhookModule := webhook.NewModule(matcherService, orchestrator, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	engine := router.New(router.Options{
		Config:       cfg,
		WebhookToken: cfg.GetWebhookToken(),
		Logger:       log,
		Health:       pool,
		Modules: []apphttp.Module{
			clicklogModule,
			webhookModule,
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		worker.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
