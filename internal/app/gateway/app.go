package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/manuscript-editor/internal/aiclient"
	"github.com/magabrotheeeer/manuscript-editor/internal/cache"
	"github.com/magabrotheeeer/manuscript-editor/internal/config"
	"github.com/magabrotheeeer/manuscript-editor/internal/grpc/health"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/breaker"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
	"github.com/magabrotheeeer/manuscript-editor/internal/metrics"
	"github.com/magabrotheeeer/manuscript-editor/internal/migrations"
	"github.com/magabrotheeeer/manuscript-editor/internal/rabbitmq"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/janitor"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/repository"
)

const (
	shutdownTimeout = 15 * time.Second
	dbAttempts      = 10
	dbRetryDelay    = 3 * time.Second
)

// App представляет процесс шлюза.
type App struct {
	server  *http.Server
	grpc    *health.Server
	janitor *janitor.Janitor
	logger  *slog.Logger
	db      *repository.Storage
	cache   *cache.Cache
	conn    *amqp.Connection
	ch      *amqp.Channel
}

// waitForDB повторяет ping до готовности базы или исчерпания попыток.
func waitForDB(ctx context.Context, ping func(context.Context) error, attempts int, delay time.Duration) error {
	var err error
	for range attempts {
		if err = ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New подключает хранилище, применяет миграции и собирает сервисы.
// Redis, RabbitMQ и gRPC-сервер здоровья подключаются, только если заданы их адреса.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	ping := func(ctx context.Context) error { return repository.Ping(ctx, db) }
	if err = waitForDB(ctx, ping, dbAttempts, dbRetryDelay); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	app := &App{logger: logger, db: db}

	if v, dirty, err := migrations.Version(db.DB, cfg.MigrationsPath); err != nil {
		logger.Warn("failed to read schema version", sl.Err(err))
	} else {
		logger.Info("schema migrated", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))
	}

	if n, err := db.CountLegacyPasswords(ctx); err != nil {
		logger.Warn("failed to count legacy passwords", sl.Err(err))
	} else if n > 0 {
		logger.Info("accounts still on legacy password format", slog.Int64("count", n))
	}

	m := metrics.New()
	deps := Deps{
		Store:    db,
		Upstream: aiclient.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Upstream.Timeout),
		Metrics:  m,
	}

	if cfg.AddressRedis != "" {
		app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
		deps.Cache = app.cache
	}

	if cfg.RabbitMQ.URL != "" {
		app.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, 5, 2*time.Second)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.ch, err = rabbitmq.SetupChannel(app.conn, cfg.Exchange, cfg.RoutingKey)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		deps.Publisher = rabbitmq.NewPublisher(app.ch, cfg.Exchange, cfg.RoutingKey)
	}

	if cfg.GRPC.Address != "" {
		app.grpc = health.New(cfg.GRPC.Address, logger)
	}
	deps.Breaker = breaker.New(cfg.FailureThreshold, cfg.ResetTimeout,
		breaker.WithStateHook(func(from, to breaker.State) {
			logger.Warn("upstream circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			m.SetBreakerState(float64(to))
			if app.grpc != nil {
				app.grpc.SetUpstreamState(to)
			}
		}),
	)

	services := NewServices(logger, cfg, deps)
	app.janitor = janitor.New(db, logger, cfg.Interval)
	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      NewRouter(logger, services),
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP + cfg.Upstream.Timeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	go a.janitor.Run(ctx)

	if a.grpc != nil {
		go func() {
			if err := a.grpc.Run(ctx); err != nil {
				a.logger.Error("grpc health server stopped", sl.Err(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
