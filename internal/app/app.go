// Package app assembles the search service from configuration. Both the HTTP
// server and the CLI build their dependencies here.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/adapter/browser"
	"github.com/user/price-aggregator/internal/adapter/chromedp_browser"
	"github.com/user/price-aggregator/internal/adapter/memory"
	"github.com/user/price-aggregator/internal/adapter/postgres"
	redis_adapter "github.com/user/price-aggregator/internal/adapter/redis"
	"github.com/user/price-aggregator/internal/adapter/registry"
	"github.com/user/price-aggregator/internal/adapter/restapi"
	"github.com/user/price-aggregator/internal/adapter/rod_browser"
	"github.com/user/price-aggregator/internal/adapter/sqlite"
	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
	"github.com/user/price-aggregator/internal/usecase"
	"github.com/user/price-aggregator/pkg/config"
	"github.com/user/price-aggregator/pkg/metrics"
)

// App holds the wired components and the resources that must be released.
type App struct {
	Search   usecase.SearchUseCase
	Failures repository.FailureRecorder
	// History is nil when HISTORY_DRIVER is none.
	History repository.HistoryRepository
	// Pings checks optional backing services by name.
	Pings map[string]func(context.Context) error
	// RequestTimeout covers a full search over the loaded catalog.
	RequestTimeout time.Duration

	closers []func() error
}

// New wires the service. Callers must Close the result.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*App, error) {
	a := &App{Pings: make(map[string]func(context.Context) error)}

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	b, err := a.newBrowser(cfg, logger)
	if err != nil {
		return nil, err
	}
	browserFetcher := browser.NewFetcher(b, browser.DefaultRules(), browser.Config{
		NavigationTimeout: cfg.BrowserNavTimeout,
		WaitTimeout:       cfg.BrowserWaitTimeout,
	}, m, logger)
	for _, src := range reg.ByStrategy(entity.StrategyBrowser) {
		if !browserFetcher.HasRule(src.ExtractionRule) {
			_ = a.Close()
			return nil, eris.Errorf("app: source %s uses unknown extraction rule %q", src.Name, src.ExtractionRule)
		}
	}
	apiFetcher := restapi.NewFetcher(cfg.APITimeout, m, logger)

	if err := a.openFailures(ctx, cfg, logger); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openHistory(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := usecase.Options{
		Workers:            cfg.APIWorkers,
		TaskTimeout:        cfg.TaskTimeout,
		BrowserTaskTimeout: cfg.BrowserTaskTimeout,
	}
	a.Search = usecase.NewSearchUseCase(reg, apiFetcher, browserFetcher, a.Failures, m, logger, opts)
	a.RequestTimeout = usecase.Budget(reg.List(), opts)
	logger.Info("search service ready",
		zap.Int("sources", len(reg.List())),
		zap.String("browser_driver", cfg.BrowserDriver),
		zap.String("history_driver", cfg.HistoryDriver),
		zap.Bool("redis_failures", cfg.RedisAddr != ""),
		zap.Duration("request_timeout", a.RequestTimeout),
	)
	return a, nil
}

// Close releases every opened resource, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.SourcesFile != "" {
		return registry.LoadFile(cfg.SourcesFile)
	}
	return registry.Default()
}

func (a *App) newBrowser(cfg *config.Config, logger *zap.Logger) (repository.Browser, error) {
	switch cfg.BrowserDriver {
	case "rod":
		b := rod_browser.NewRodBrowser("", logger)
		a.closers = append(a.closers, b.Close)
		return b, nil
	case "chromedp", "":
		return chromedp_browser.NewChromedpBrowser("", logger), nil
	default:
		return nil, eris.Errorf("app: unsupported browser driver %q", cfg.BrowserDriver)
	}
}

func (a *App) openFailures(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.RedisAddr == "" {
		a.Failures = memory.NewFailureRecorder(cfg.FailureLogSize, logger)
		return nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return eris.Wrapf(err, "app: connect to redis at %s", cfg.RedisAddr)
	}
	a.closers = append(a.closers, rdb.Close)
	a.Pings["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	a.Failures = redis_adapter.NewFailureRecorder(rdb, cfg.FailureLogSize)
	logger.Info("redis failure log connected", zap.String("addr", cfg.RedisAddr))
	return nil
}

func (a *App) openHistory(ctx context.Context, cfg *config.Config) error {
	switch cfg.HistoryDriver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return eris.Wrap(err, "app: connect to postgres")
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		repo := postgres.NewHistoryRepo(pool)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		a.Pings["postgres"] = pool.Ping
		a.History = repo
	case "sqlite":
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, repo.Close)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		a.History = repo
	}
	return nil
}
