package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/adapter/memory"
	"github.com/user/price-aggregator/internal/delivery/http/handler"
	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
	"github.com/user/price-aggregator/internal/usecase"
	"github.com/user/price-aggregator/pkg/metrics"
)

type fakeSearch struct {
	sources  []entity.Source
	result   *entity.AggregateResult
	err      error
	products []entity.Product
	lastReq  entity.SearchRequest
	oneCalls []string
	health   usecase.HealthReport
}

func (f *fakeSearch) Search(_ context.Context, req entity.SearchRequest) (*entity.AggregateResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSearch) SearchAll(_ context.Context, term string, limit int) *entity.AggregateResult {
	return f.result
}

func (f *fakeSearch) SearchOne(_ context.Context, name, term string, limit int) []entity.Product {
	f.oneCalls = append(f.oneCalls, name+":"+term)
	return f.products
}

func (f *fakeSearch) Sources() []entity.Source { return f.sources }

func (f *fakeSearch) Healthcheck(context.Context) usecase.HealthReport { return f.health }

type fakeHistory struct {
	saved []*entity.AggregateResult
	found []entity.Snapshot
	err   error
}

func (f *fakeHistory) Save(_ context.Context, r *entity.AggregateResult) error {
	f.saved = append(f.saved, r)
	return f.err
}

func (f *fakeHistory) FindByTerm(_ context.Context, term string, limit int) ([]entity.Snapshot, error) {
	return f.found, f.err
}

var catalog = []entity.Source{
	{Name: "plazavea", DisplayName: "Plaza Vea", Strategy: entity.StrategyAPI, URLTemplate: "https://pv.example/?q={term}"},
	{Name: "tottus", Strategy: entity.StrategyBrowser, URLTemplate: "https://tottus.example/?q={term}", ExtractionRule: "tottus"},
}

func newServer(t *testing.T, search *fakeSearch, opts ...handler.Option) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := handler.NewHandler(search, zap.NewNop(), opts...)
	return New(h, Config{
		CORSOrigins: []string{"*"},
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		Logger:      zap.NewNop(),
	})
}

func do(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fakeSearch{},
		handler.WithDependency("redis", func(context.Context) error { return nil }),
		handler.WithDependency("postgres", func(context.Context) error { return errors.New("refused") }),
	)

	rec := do(t, srv, "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"redis": "healthy", "postgres": "unhealthy"}, body["dependencies"])
}

func TestProbe(t *testing.T) {
	search := &fakeSearch{health: usecase.HealthReport{Status: "ok", Source: "plazavea", TestResult: true, Timestamp: time.Now()}}
	rec := do(t, newServer(t, search), "/api/health/probe")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["test_result"])

	search.health = usecase.HealthReport{Status: "error", Error: "no api source registered"}
	assert.Equal(t, http.StatusServiceUnavailable, do(t, newServer(t, search), "/api/health/probe").Code)
}

func TestListSources(t *testing.T) {
	rec := do(t, newServer(t, &fakeSearch{sources: catalog}), "/api/sources")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sources":[
		{"name":"plazavea","display_name":"Plaza Vea","strategy":"api"},
		{"name":"tottus","display_name":"tottus","strategy":"browser-automation"}
	]}`, rec.Body.String())
}

func TestSearch(t *testing.T) {
	result := &entity.AggregateResult{
		Term:          "arroz",
		TotalProducts: 1,
		Products:      []entity.Product{{Name: "Arroz", Price: 4.5, Source: "plazavea"}},
		BySource:      map[string][]entity.Product{"plazavea": {{Name: "Arroz", Price: 4.5, Source: "plazavea"}}},
	}
	search := &fakeSearch{sources: catalog, result: result}
	history := &fakeHistory{}
	srv := newServer(t, search, handler.WithHistory(history))

	rec := do(t, srv, "/api/search?q=arroz&limit=3&source=plazavea")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.SearchRequest{Term: "arroz", LimitPerSource: 3, Source: "plazavea"}, search.lastReq)
	body := decode[entity.AggregateResult](t, rec)
	assert.Equal(t, 1, body.TotalProducts)
	require.Len(t, history.saved, 1)
	assert.Same(t, result, history.saved[0])
}

func TestSearch_DefaultLimit(t *testing.T) {
	search := &fakeSearch{result: &entity.AggregateResult{Term: "pan", Products: []entity.Product{}}}
	srv := newServer(t, search, handler.WithDefaultLimit(4))

	require.Equal(t, http.StatusOK, do(t, srv, "/api/search?q=pan").Code)
	assert.Equal(t, 4, search.lastReq.LimitPerSource)
}

func TestSearch_HistoryFailureDoesNotFailRequest(t *testing.T) {
	search := &fakeSearch{result: &entity.AggregateResult{Term: "pan", Products: []entity.Product{}}}
	srv := newServer(t, search, handler.WithHistory(&fakeHistory{err: errors.New("disk full")}))

	assert.Equal(t, http.StatusOK, do(t, srv, "/api/search?q=pan").Code)
}

func TestSearch_Errors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"bad limit syntax", "/api/search?q=pan&limit=abc", nil, http.StatusBadRequest},
		{"empty term", "/api/search?q=", entity.ErrEmptyTerm, http.StatusBadRequest},
		{"limit too high", "/api/search?q=pan&limit=99", entity.ErrInvalidLimit, http.StatusBadRequest},
		{"unknown source", "/api/search?q=pan&source=x", repository.ErrUnknownSource, http.StatusNotFound},
		{"unexpected", "/api/search?q=pan", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newServer(t, &fakeSearch{err: tc.err}), tc.target)
			assert.Equal(t, tc.want, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestSourceProducts(t *testing.T) {
	search := &fakeSearch{sources: catalog, products: []entity.Product{{Name: "Aceite", Price: 9.9, Source: "tottus"}}}
	srv := newServer(t, search)

	rec := do(t, srv, "/api/sources/Tottus/products?q=aceite")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "tottus", body["source"])
	assert.Equal(t, float64(1), body["total"])
	assert.NotContains(t, body, "message")
	assert.Equal(t, []string{"tottus:aceite"}, search.oneCalls)
}

func TestSourceProducts_EmptyHasMessage(t *testing.T) {
	srv := newServer(t, &fakeSearch{sources: catalog, products: []entity.Product{}})

	body := decode[map[string]any](t, do(t, srv, "/api/sources/plazavea/products?q=kiwicha"))

	assert.Equal(t, float64(0), body["total"])
	assert.NotEmpty(t, body["message"])
}

func TestSourceProducts_Errors(t *testing.T) {
	srv := newServer(t, &fakeSearch{sources: catalog})

	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/sources/falabella/products?q=pan").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "/api/sources/plazavea/products").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "/api/sources/plazavea/products?q=pan&limit=51").Code)
}

func TestHistory(t *testing.T) {
	snapshots := []entity.Snapshot{{ID: 2, Term: "leche", TotalProducts: 3}}
	srv := newServer(t, &fakeSearch{}, handler.WithHistory(&fakeHistory{found: snapshots}))

	rec := do(t, srv, "/api/history?q=leche&limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Term      string            `json:"term"`
		Snapshots []entity.Snapshot `json:"snapshots"`
	}](t, rec)
	assert.Equal(t, "leche", body.Term)
	assert.Len(t, body.Snapshots, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "/api/history").Code)
}

func TestHistory_Disabled(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, do(t, newServer(t, &fakeSearch{}), "/api/history?q=leche").Code)
}

func TestFailures(t *testing.T) {
	rec := memory.NewFailureRecorder(10, zap.NewNop())
	require.NoError(t, rec.Record(context.Background(), entity.SourceFailure{Source: "tottus", Kind: "timeout"}))
	srv := newServer(t, &fakeSearch{sources: catalog}, handler.WithFailures(rec))

	resp := do(t, srv, "/api/failures/tottus?limit=5")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[struct {
		Failures []entity.SourceFailure `json:"failures"`
	}](t, resp)
	require.Len(t, body.Failures, 1)
	assert.Equal(t, "timeout", body.Failures[0].Kind)

	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/failures/nope").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, &fakeSearch{sources: catalog})
	do(t, srv, "/api/sources")

	rec := do(t, srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/sources",status="200"} 1`)
}

func TestCORS(t *testing.T) {
	srv := newServer(t, &fakeSearch{sources: catalog})
	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
