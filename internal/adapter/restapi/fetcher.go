// Package restapi fetches listings from sources that expose a JSON catalog search.
package restapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
	"github.com/user/price-aggregator/pkg/metrics"
	"github.com/user/price-aggregator/pkg/utils"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// Fetcher implements repository.ProductFetcher over HTTP GET.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

var _ repository.ProductFetcher = (*Fetcher)(nil)

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client; its Timeout is ignored in
// favour of the per-request deadline.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates an API fetcher with a hard per-request timeout.
func NewFetcher(timeout time.Duration, m *metrics.Metrics, logger *zap.Logger, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: timeout,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch queries src for term and returns at most limit products.
func (f *Fetcher) Fetch(ctx context.Context, src entity.Source, term string, limit int) ([]entity.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := utils.ExpandTemplate(src.URLTemplate, entity.TermPlaceholder, term)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, repository.NewFetchError(src.Name, repository.ErrFetchNetwork, eris.Wrap(err, "build request"))
	}
	applyHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, repository.NewFetchError(src.Name, classifyTransportError(ctx, err), eris.Wrap(err, "do request"))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, repository.NewFetchError(src.Name, repository.ErrFetchNetwork, eris.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, repository.NewFetchError(src.Name, classifyTransportError(ctx, err), eris.Wrap(err, "read body"))
	}

	if !gjson.ValidBytes(body) {
		return nil, repository.NewFetchError(src.Name, repository.ErrExtraction, eris.New("response is not valid JSON"))
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, repository.NewFetchError(src.Name, repository.ErrExtraction, eris.New("response is not a JSON array"))
	}

	products, skipped := f.extract(doc.Array(), src.Name, limit)
	for _, perr := range skipped {
		f.logger.Debug("skipping malformed record",
			zap.String("source", src.Name),
			zap.Error(perr),
		)
	}
	if len(skipped) > 0 && f.metrics != nil {
		f.metrics.RecordsSkippedTotal.WithLabelValues(src.Name).Add(float64(len(skipped)))
	}

	f.logger.Info("api fetch complete",
		zap.String("source", src.Name),
		zap.Int("products", len(products)),
		zap.Int("skipped", len(skipped)),
	)
	return products, nil
}

// extract applies the limit to the raw sequence, then parses each record on its own.
func (f *Fetcher) extract(records []gjson.Result, source string, limit int) ([]entity.Product, []*repository.RecordParseError) {
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	capturedAt := f.now()
	products := make([]entity.Product, 0, len(records))
	var skipped []*repository.RecordParseError
	for i, raw := range records {
		p, perr := parseRecord(i, raw, source, capturedAt)
		if perr != nil {
			skipped = append(skipped, perr)
			continue
		}
		products = append(products, p)
	}
	return products, skipped
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return repository.ErrFetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return repository.ErrFetchTimeout
	}
	return repository.ErrFetchNetwork
}
