// Package bootstrap assembles the insights service from configuration.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/coder/quartz"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/AstrixelHQ/gigways/internal/config"
	"github.com/AstrixelHQ/gigways/internal/coordinator"
	"github.com/AstrixelHQ/gigways/internal/domain"
	"github.com/AstrixelHQ/gigways/internal/insights"
	"github.com/AstrixelHQ/gigways/internal/ledger"
	"github.com/AstrixelHQ/gigways/internal/persistence/memory"
	"github.com/AstrixelHQ/gigways/internal/persistence/postgres"
	"github.com/AstrixelHQ/gigways/internal/persistence/redisstore"
)

// App holds the wired service and the connections it owns.
type App struct {
	Service     *insights.Service
	Coordinator *coordinator.Coordinator
	Ledger      *ledger.Ledger
	Summaries   domain.SummaryRepository
	Pending     domain.LedgerRepository

	closers []func()
}

// Close releases every connection opened by Build, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Option configures Build.
type Option func(*options)

type options struct {
	clock quartz.Clock
}

// WithClock overrides the real clock.
func WithClock(clock quartz.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// Build selects stores for cfg.SummaryBackend and wires the service. The
// ledger lives in Postgres whenever a Postgres URL is configured, and in
// memory otherwise.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{clock: quartz.NewReal()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{}
	var pool *pgxpool.Pool
	openPool := func() (*pgxpool.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, errors.Wrap(err, "connect to postgres")
		}
		pool = p
		app.closers = append(app.closers, p.Close)
		return p, nil
	}

	switch cfg.SummaryBackend {
	case config.BackendPostgres:
		p, err := openPool()
		if err != nil {
			return nil, err
		}
		app.Summaries = postgres.NewSummaryRepository(p)
	case config.BackendRedis:
		client := redisstore.Connect(cfg.RedisAddr, cfg.RedisPassword)
		if client == nil {
			return nil, errors.New("REDIS_ADDR is required for the redis backend")
		}
		app.closers = append(app.closers, func() { closeRedis(client, logger) })
		app.Summaries = redisstore.NewSummaryStore(client)
	case config.BackendMemory:
		app.Summaries = memory.NewSummaryStore()
	default:
		return nil, errors.Newf("unknown summary backend %q", cfg.SummaryBackend)
	}

	if cfg.SummaryBackend != config.BackendMemory && cfg.PostgresURL != "" {
		p, err := openPool()
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Pending = postgres.NewLedgerRepository(p)
	} else {
		app.Pending = memory.NewLedgerStore()
	}

	calc := domain.NewCalculator(loc)
	app.Coordinator = coordinator.New(app.Summaries,
		coordinator.WithLogger(logger.With("component", "coordinator")),
		coordinator.WithClock(o.clock),
		coordinator.WithCalculator(calc),
		coordinator.WithRetryPolicy(coordinator.RetryPolicy{
			MaxAttempts: cfg.CoordinatorMaxAttempts,
			Backoff:     coordinator.ExponentialBackoff(cfg.CoordinatorBaseBackoff),
		}),
	)
	app.Ledger = ledger.New(app.Pending,
		ledger.WithLogger(logger.With("component", "ledger")),
		ledger.WithClock(o.clock),
		ledger.WithPageSize(cfg.ReplayPageSize),
		ledger.WithMaxRetries(cfg.ReplayMaxRetries),
	)
	app.Service = insights.NewService(app.Coordinator, app.Ledger, app.Summaries, logger,
		insights.WithClock(o.clock),
		insights.WithCalculator(calc),
	)

	logger.InfoContext(ctx, "insights service assembled",
		"summary_backend", cfg.SummaryBackend, "time_zone", loc.String(), "ledger_postgres", pool != nil)
	return app, nil
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close failed", "error", err)
	}
}
