package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/nkiryanov/escrow/internal/db"
	"github.com/nkiryanov/escrow/internal/handlers"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/repository/postgres"
	"github.com/nkiryanov/escrow/internal/service/auth"
	"github.com/nkiryanov/escrow/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/escrow/internal/service/notify"
	"github.com/nkiryanov/escrow/internal/service/payment"
	"github.com/nkiryanov/escrow/internal/service/review"
	"github.com/nkiryanov/escrow/internal/service/user"
	"github.com/nkiryanov/escrow/internal/service/withdrawal"
	"github.com/nkiryanov/escrow/internal/service/workorder"
)

const (
	shutdownTimeout     = 5 * time.Second
	notificationWorkers = 10
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	pool   *pgxpool.Pool
	queue  *river.Client[pgx.Tx]
	cache  *redis.Client
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: logger, pool: pool}

	if err := app.setup(ctx, c); err != nil {
		app.close()
		return nil, err
	}

	return app, nil
}

func (app *ServerApp) setup(ctx context.Context, c *Config) error {
	storage := postgres.NewStorage(app.pool)

	// Notifications are queued in postgres and pushed to websocket clients by the worker
	hub := notify.NewHub()
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewWorker(hub, app.logger.WithGroup("notify")))

	queue, err := river.NewClient(riverpgxv5.New(app.pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: notificationWorkers},
		},
		Workers: workers,
		Logger:  logger.Slog(app.logger.WithGroup("river")),
	})
	if err != nil {
		return fmt.Errorf("error while creating job queue. Err: %w", err)
	}
	app.queue = queue
	notifier := notify.NewQueue(queue)

	if c.RedisAddr != "" {
		app.cache, err = connectRedis(ctx, c.RedisAddr)
		if err != nil {
			return err
		}
	} else {
		app.logger.Warn("redis address is not set, Idempotency-Key is not enforced")
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage)
	if err != nil {
		return fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	userService := user.NewService(auth.DefaultHasher, storage, c.AdminUsers...)
	authService, err := auth.NewService(auth.Config{}, tokenManager, userService)
	if err != nil {
		return fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	gateway := payment.SimulatedGateway{
		BankDelay:          c.BankTransferDelay,
		ApprovedCardNumber: c.ApprovedCardNumber,
	}

	services := handlers.Services{
		Auth:        authService,
		Users:       userService,
		Payments:    payment.NewService(storage, gateway, notifier, app.logger.WithGroup("payment")),
		WorkOrders:  workorder.NewService(storage, notifier, app.logger.WithGroup("workorder")),
		Withdrawals: withdrawal.NewService(storage, notifier, app.logger.WithGroup("withdrawal")),
		Reviews:     review.NewService(storage),
		Hub:         hub,
	}

	opts := handlers.Options{
		IdempotencyTTL: c.IdempotencyTTL,
		CORSOrigins:    c.CORSOrigins,
	}
	if app.cache != nil {
		opts.Cache = app.cache
	}

	app.Handler = handlers.NewRouter(services, opts, app.logger)
	return nil
}

// Accepts both 'host:port' and 'redis://' urls
func connectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opt := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		var err error
		if opt, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Run starts job queue and http server, closes them gracefully on context cancellation
func (app *ServerApp) Run(ctx context.Context) error {
	defer app.close()

	// Queue is stopped explicitly after the http server, so in-flight jobs can finish
	if err := app.queue.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("error while starting job queue. Err: %w", err)
	}

	httpServer := &http.Server{
		Addr:    app.ListenAddr,
		Handler: app.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			app.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		app.logger.Info("HTTP server stopped")

		if err := app.queue.Stop(timeoutCtx); err != nil {
			app.logger.Error("job queue stopped with error", "error", err)
		}
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	app.logger.Info("Starting server", "address", app.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (app *ServerApp) close() {
	if app.cache != nil {
		_ = app.cache.Close()
	}
	app.pool.Close()
}
