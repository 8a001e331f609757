package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
	"github.com/user/price-aggregator/pkg/metrics"
)

const (
	defaultWorkers            = 4
	defaultTaskTimeout        = 30 * time.Second
	defaultBrowserTaskTimeout = 90 * time.Second
	failureRecordTimeout      = 2 * time.Second
	budgetSlack               = 15 * time.Second

	healthProbeTerm = "producto"
)

// SearchUseCase fans a query out to the registered sources and merges the results.
type SearchUseCase interface {
	// Search validates req and runs it against one or every source. Only request
	// validation errors are returned; source failures end up in the result.
	Search(ctx context.Context, req entity.SearchRequest) (*entity.AggregateResult, error)
	SearchAll(ctx context.Context, term string, limit int) *entity.AggregateResult
	// SearchOne never fails; an unknown source or a failed fetch yields an empty list.
	SearchOne(ctx context.Context, name, term string, limit int) []entity.Product
	Sources() []entity.Source
	Healthcheck(ctx context.Context) HealthReport
}

// Options bounds the orchestration.
type Options struct {
	// Workers caps concurrent API fetches. A fetch abandoned at its deadline
	// frees its slot right away, so a fetcher that ignores its context can
	// briefly push the real parallelism above Workers. APIFetchInFlight keeps
	// counting it until it returns.
	Workers            int
	TaskTimeout        time.Duration
	BrowserTaskTimeout time.Duration
}

// HealthReport is the result of a live probe against the first API source.
type HealthReport struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source,omitempty"`
	TestResult bool      `json:"test_result"`
	Error      string    `json:"error,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = defaultTaskTimeout
	}
	if o.BrowserTaskTimeout <= 0 {
		o.BrowserTaskTimeout = defaultBrowserTaskTimeout
	}
	return o
}

// Budget is the longest a full search over sources can take: the API group in
// rounds of Workers, then every browser source back to back.
func Budget(sources []entity.Source, opts Options) time.Duration {
	opts = opts.withDefaults()
	var api, browser int
	for _, src := range sources {
		switch src.Strategy {
		case entity.StrategyAPI:
			api++
		case entity.StrategyBrowser:
			browser++
		}
	}
	rounds := (api + opts.Workers - 1) / opts.Workers
	return time.Duration(rounds)*opts.TaskTimeout + time.Duration(browser)*opts.BrowserTaskTimeout + budgetSlack
}

type searchUseCase struct {
	registry       repository.SourceRegistry
	apiFetcher     repository.ProductFetcher
	browserFetcher repository.ProductFetcher
	failures       repository.FailureRecorder
	metrics        *metrics.Metrics
	logger         *zap.Logger
	opts           Options
	now            func() time.Time
}

// NewSearchUseCase wires the orchestrator. failures and m may be nil.
func NewSearchUseCase(
	registry repository.SourceRegistry,
	apiFetcher repository.ProductFetcher,
	browserFetcher repository.ProductFetcher,
	failures repository.FailureRecorder,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) SearchUseCase {
	opts = opts.withDefaults()
	return &searchUseCase{
		registry:       registry,
		apiFetcher:     apiFetcher,
		browserFetcher: browserFetcher,
		failures:       failures,
		metrics:        m,
		logger:         logger,
		opts:           opts,
		now:            time.Now,
	}
}

func (uc *searchUseCase) Sources() []entity.Source {
	return uc.registry.List()
}

func (uc *searchUseCase) Search(ctx context.Context, req entity.SearchRequest) (*entity.AggregateResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Source == "" {
		return uc.SearchAll(ctx, req.Term, req.LimitPerSource), nil
	}

	src, err := uc.registry.Resolve(req.Source)
	if err != nil {
		return nil, err
	}
	return uc.run(ctx, req.Term, req.LimitPerSource, []entity.Source{src}), nil
}

func (uc *searchUseCase) SearchAll(ctx context.Context, term string, limit int) *entity.AggregateResult {
	return uc.run(ctx, term, limit, uc.registry.List())
}

func (uc *searchUseCase) SearchOne(ctx context.Context, name, term string, limit int) []entity.Product {
	src, err := uc.registry.Resolve(name)
	if err != nil {
		uc.logger.Warn("search requested for unknown source", zap.String("source", name))
		return []entity.Product{}
	}
	if limit < 1 {
		limit = entity.DefaultLimitPerSource
	}
	if limit > entity.MaxLimitPerSource {
		limit = entity.MaxLimitPerSource
	}
	products, _ := uc.fetch(ctx, src, term, limit)
	return products
}

func (uc *searchUseCase) Healthcheck(ctx context.Context) HealthReport {
	report := HealthReport{Status: "ok", Timestamp: uc.now()}
	for _, src := range uc.registry.List() {
		if src.Strategy != entity.StrategyAPI {
			continue
		}
		products, failure := uc.fetch(ctx, src, healthProbeTerm, 1)
		report.Source = src.Name
		report.TestResult = len(products) > 0
		if failure != nil {
			report.Status = "error"
			report.Error = failure.Message
		}
		return report
	}
	report.Status = "error"
	report.Error = "no api source registered"
	return report
}

// run partitions sources by strategy. API sources go through a bounded pool;
// browser sources then run one at a time in catalog order.
func (uc *searchUseCase) run(ctx context.Context, term string, limit int, sources []entity.Source) *entity.AggregateResult {
	acc := newAccumulator(term, uc.now())

	var apiSources, browserSources []entity.Source
	for _, src := range sources {
		switch src.Strategy {
		case entity.StrategyAPI:
			apiSources = append(apiSources, src)
		case entity.StrategyBrowser:
			browserSources = append(browserSources, src)
		default:
			err := eris.Errorf("unsupported strategy %v", src.Strategy)
			acc.add(src.Name, nil, uc.record(ctx, src, err))
		}
	}

	var g errgroup.Group
	g.SetLimit(uc.opts.Workers)
	for _, src := range apiSources {
		g.Go(func() error {
			products, failure := uc.fetch(ctx, src, term, limit)
			acc.add(src.Name, products, failure)
			return nil
		})
	}
	_ = g.Wait()

	for _, src := range browserSources {
		products, failure := uc.fetch(ctx, src, term, limit)
		acc.add(src.Name, products, failure)
	}

	result := acc.result()
	uc.logger.Info("search complete",
		zap.String("term", term),
		zap.Int("sources", len(sources)),
		zap.Int("products", result.TotalProducts),
		zap.Int("failures", len(result.Failures)),
	)
	return result
}

// fetch runs one source under its own deadline. It always returns a non-nil
// slice; a failure is logged, recorded and returned as a SourceFailure.
func (uc *searchUseCase) fetch(ctx context.Context, src entity.Source, term string, limit int) ([]entity.Product, *entity.SourceFailure) {
	fetcher, timeout, err := uc.fetcherFor(src.Strategy)
	if err != nil {
		return []entity.Product{}, uc.record(ctx, src, err)
	}

	start := time.Now()
	products, err := runWithTimeout(ctx, timeout, src, func(taskCtx context.Context) ([]entity.Product, error) {
		// Tracked inside the task so an abandoned fetch still counts until it returns.
		if src.Strategy == entity.StrategyAPI && uc.metrics != nil {
			uc.metrics.APIFetchInFlight.Inc()
			defer uc.metrics.APIFetchInFlight.Dec()
		}
		return fetcher.Fetch(taskCtx, src, term, limit)
	})
	if uc.metrics != nil {
		uc.metrics.ObserveFetch(src.Name, src.Strategy.String(), repository.ClassifyError(err), time.Since(start).Seconds())
	}
	if err != nil {
		return []entity.Product{}, uc.record(ctx, src, err)
	}
	if products == nil {
		products = []entity.Product{}
	}
	return products, nil
}

func (uc *searchUseCase) fetcherFor(s entity.Strategy) (repository.ProductFetcher, time.Duration, error) {
	switch s {
	case entity.StrategyAPI:
		return uc.apiFetcher, uc.opts.TaskTimeout, nil
	case entity.StrategyBrowser:
		return uc.browserFetcher, uc.opts.BrowserTaskTimeout, nil
	default:
		return nil, 0, eris.Errorf("unsupported strategy %v", s)
	}
}

// runWithTimeout stops waiting on fn once the task deadline passes, even if fn
// ignores its context. A panic in fn is turned into an error.
func runWithTimeout(
	ctx context.Context,
	timeout time.Duration,
	src entity.Source,
	fn func(context.Context) ([]entity.Product, error),
) ([]entity.Product, error) {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		products []entity.Product
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: eris.Errorf("%s: fetcher panicked: %v", src.Name, r)}
			}
		}()
		products, err := fn(taskCtx)
		done <- outcome{products: products, err: err}
	}()

	select {
	case o := <-done:
		return o.products, o.err
	case <-taskCtx.Done():
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return nil, repository.NewFetchError(src.Name, repository.ErrFetchTimeout, eris.Errorf("task exceeded %s", timeout))
		}
		return nil, eris.Wrapf(taskCtx.Err(), "%s: search cancelled", src.Name)
	}
}

// record reports a failed source to the logs and the failure recorder.
func (uc *searchUseCase) record(ctx context.Context, src entity.Source, err error) *entity.SourceFailure {
	failure := &entity.SourceFailure{
		Source:     src.Name,
		Kind:       repository.ClassifyError(err),
		Message:    err.Error(),
		OccurredAt: uc.now(),
	}
	uc.logger.Warn("source fetch failed",
		zap.String("source", src.Name),
		zap.String("strategy", src.Strategy.String()),
		zap.String("kind", failure.Kind),
		zap.Error(err),
	)

	if uc.failures != nil {
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
		defer cancel()
		if rerr := uc.failures.Record(recCtx, *failure); rerr != nil {
			uc.logger.Error("failed to record source failure", zap.String("source", src.Name), zap.Error(rerr))
		}
	}
	return failure
}

// accumulator merges per-source results in completion order.
type accumulator struct {
	mu  sync.Mutex
	agg *entity.AggregateResult
}

func newAccumulator(term string, capturedAt time.Time) *accumulator {
	return &accumulator{agg: &entity.AggregateResult{
		Term:       term,
		CapturedAt: capturedAt,
		Products:   []entity.Product{},
		BySource:   make(map[string][]entity.Product),
	}}
}

func (a *accumulator) add(source string, products []entity.Product, failure *entity.SourceFailure) {
	if products == nil {
		products = []entity.Product{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agg.BySource[source] = products
	a.agg.Products = append(a.agg.Products, products...)
	if failure != nil {
		a.agg.Failures = append(a.agg.Failures, *failure)
	}
}

func (a *accumulator) result() *entity.AggregateResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agg.TotalProducts = len(a.agg.Products)
	a.agg.Statistics = Summarize(a.agg.Products)
	return a.agg
}
