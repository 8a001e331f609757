// Package browser fetches listings from sources that only render results in a
// real browser. It drives a repository.Browser and applies per-site rules.
package browser

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/price-aggregator/internal/adapter/restapi"
	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
	"github.com/user/price-aggregator/pkg/metrics"
	"github.com/user/price-aggregator/pkg/utils"
)

// BlockedResources are never loaded by scraping sessions.
var BlockedResources = []repository.ResourceType{
	repository.ResourceImage,
	repository.ResourceFont,
	repository.ResourceStylesheet,
	repository.ResourceMedia,
}

// Config bounds every blocking step of a browser fetch.
type Config struct {
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
}

// Fetcher implements repository.ProductFetcher with a headless browser.
// At most one session is open per Fetcher at any time.
type Fetcher struct {
	browser repository.Browser
	rules   Rules
	cfg     Config
	slot    *semaphore.Weighted
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

var _ repository.ProductFetcher = (*Fetcher)(nil)

func NewFetcher(b repository.Browser, rules Rules, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Fetcher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 15 * time.Second
	}
	return &Fetcher{
		browser: b,
		rules:   rules,
		cfg:     cfg,
		slot:    semaphore.NewWeighted(1),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// HasRule reports whether an extraction rule is registered under id.
func (f *Fetcher) HasRule(id string) bool {
	_, ok := f.rules[id]
	return ok
}

// Fetch opens an isolated session, runs the source's rule and maps the listings.
func (f *Fetcher) Fetch(ctx context.Context, src entity.Source, term string, limit int) ([]entity.Product, error) {
	rule, ok := f.rules[src.ExtractionRule]
	if !ok {
		return nil, repository.NewFetchError(src.Name, repository.ErrExtraction, eris.Errorf("no extraction rule %q", src.ExtractionRule))
	}

	if err := f.slot.Acquire(ctx, 1); err != nil {
		return nil, repository.NewFetchError(src.Name, classify(ctx, err), eris.Wrap(err, "wait for browser slot"))
	}
	defer f.slot.Release(1)

	target := utils.ExpandTemplate(src.URLTemplate, entity.TermPlaceholder, term)
	listings, err := f.scrape(ctx, rule, target, limit)
	if err != nil {
		return nil, repository.NewFetchError(src.Name, classify(ctx, err), err)
	}

	base, _ := url.Parse(target)
	capturedAt := f.now()
	products := make([]entity.Product, 0, len(listings))
	for _, l := range listings {
		products = append(products, entity.Product{
			Name:      l.Name,
			Price:     l.Price,
			Available: true,
			Source:    src.Name,
			Timestamp: capturedAt,
			URL:       resolve(base, l.URL),
			ImageURL:  resolve(base, l.ImageURL),
		})
	}

	f.logger.Info("browser fetch complete",
		zap.String("source", src.Name),
		zap.String("rule", rule.ID),
		zap.Int("products", len(products)),
	)
	return products, nil
}

func (f *Fetcher) scrape(ctx context.Context, rule Rule, target string, limit int) (listings []Listing, err error) {
	session, err := f.browser.NewSession(ctx, repository.SessionOptions{
		BlockedResources: BlockedResources,
		UserAgent:        restapi.BrowserUserAgent,
		Headers:          restapi.BrowserHeaders,
	})
	if err != nil {
		return nil, errors.Join(repository.ErrFetchNetwork, eris.Wrap(err, "open browser session"))
	}
	if f.metrics != nil {
		f.metrics.BrowserSessionsActive.Inc()
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			f.logger.Warn("failed to close browser session", zap.String("rule", rule.ID), zap.Error(cerr))
		}
		if f.metrics != nil {
			f.metrics.BrowserSessionsActive.Dec()
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
	err = session.Navigate(navCtx, target)
	cancel()
	if err != nil {
		return nil, eris.Wrapf(err, "navigate %s", target)
	}

	if err := pause(ctx, rule.InitialPause); err != nil {
		return nil, err
	}
	for i := 0; i < rule.Scrolls; i++ {
		if err := session.Scroll(ctx, rule.ScrollDelta); err != nil {
			return nil, eris.Wrap(err, "scroll")
		}
		if err := pause(ctx, rule.ScrollPause); err != nil {
			return nil, err
		}
	}

	if rule.ReadySelector != "" {
		waitCtx, cancel := context.WithTimeout(ctx, f.cfg.WaitTimeout)
		err = session.WaitVisible(waitCtx, rule.ReadySelector)
		cancel()
		if err != nil {
			return nil, errors.Join(repository.ErrExtraction, eris.Wrapf(err, "wait for %q", rule.ReadySelector))
		}
	}

	html, err := session.HTML(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "read rendered html")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Join(repository.ErrExtraction, eris.Wrap(err, "parse rendered html"))
	}
	return rule.Extract(doc, limit), nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify picks the FetchError kind for a failed browser step. A missing
// results signal counts as an extraction failure unless the whole task ran out of time.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return repository.ErrFetchTimeout
	case errors.Is(err, repository.ErrExtraction):
		return repository.ErrExtraction
	case errors.Is(err, context.DeadlineExceeded):
		return repository.ErrFetchTimeout
	default:
		return repository.ErrFetchNetwork
	}
}
