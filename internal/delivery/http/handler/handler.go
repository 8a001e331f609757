package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/delivery/http/request"
	"github.com/user/price-aggregator/internal/delivery/http/response"
	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
	"github.com/user/price-aggregator/internal/usecase"
)

const (
	defaultHistoryLimit  = 20
	defaultFailuresLimit = 20
	pingTimeout          = 2 * time.Second
	historySaveTimeout   = 5 * time.Second

	emptyListingMessage = "no products found for this term; try a broader search"
)

// PingFunc reports whether an optional dependency is reachable.
type PingFunc func(ctx context.Context) error

type Handler struct {
	search   usecase.SearchUseCase
	history  repository.HistoryRepository
	failures repository.FailureRecorder
	pings    map[string]PingFunc
	limit    int
	logger   *zap.Logger
}

type Option func(*Handler)

// WithHistory enables snapshot storage for search results and the history route.
func WithHistory(repo repository.HistoryRepository) Option {
	return func(h *Handler) { h.history = repo }
}

func WithFailures(rec repository.FailureRecorder) Option {
	return func(h *Handler) { h.failures = rec }
}

// WithDefaultLimit sets the per-source limit used when a request omits one.
func WithDefaultLimit(n int) Option {
	return func(h *Handler) { h.limit = n }
}

// WithDependency adds a named ping to the health report.
func WithDependency(name string, ping PingFunc) Option {
	return func(h *Handler) { h.pings[name] = ping }
}

func NewHandler(search usecase.SearchUseCase, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		search: search,
		pings:  make(map[string]PingFunc),
		limit:  entity.DefaultLimitPerSource,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := response.HealthResponse{Status: "ok", Timestamp: time.Now()}
	if len(h.pings) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		resp.Dependencies = make(map[string]string, len(h.pings))
		for name, ping := range h.pings {
			if err := ping(ctx); err != nil {
				h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
				resp.Dependencies[name] = "unhealthy"
				resp.Status = "degraded"
				continue
			}
			resp.Dependencies[name] = "healthy"
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleProbe runs a live one-product query against the first API source.
func (h *Handler) HandleProbe(w http.ResponseWriter, r *http.Request) {
	report := h.search.Healthcheck(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, report)
}

func (h *Handler) HandleListSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, response.NewSourcesResponse(h.search.Sources()))
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := request.ParseSearch(r, h.limit)
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.search.Search(r.Context(), req)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	if h.history != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), historySaveTimeout)
		if err := h.history.Save(ctx, result); err != nil {
			h.logger.Error("failed to save search snapshot", zap.String("term", result.Term), zap.Error(err))
		}
		cancel()
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleSourceProducts(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "name"))
	if !h.knownSource(name) {
		h.writeJSONError(w, "unknown source: "+name, http.StatusNotFound)
		return
	}

	limit, err := request.ParseLimit(r.URL.Query().Get("limit"), h.limit)
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := entity.SearchRequest{Term: r.URL.Query().Get("q"), LimitPerSource: limit, Source: name}
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	products := h.search.SearchOne(r.Context(), name, req.Term, req.LimitPerSource)
	resp := response.SourceProductsResponse{
		Source:   name,
		Term:     req.Term,
		Total:    len(products),
		Products: products,
	}
	if len(products) == 0 {
		resp.Message = emptyListingMessage
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSONError(w, "history is disabled", http.StatusNotFound)
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		h.writeJSONError(w, entity.ErrEmptyTerm.Error(), http.StatusBadRequest)
		return
	}
	limit, err := request.ParseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit)
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snapshots, err := h.history.FindByTerm(r.Context(), term, limit)
	if err != nil {
		h.logger.Error("failed to load history", zap.String("term", term), zap.Error(err))
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.HistoryResponse{Term: term, Snapshots: snapshots})
}

func (h *Handler) HandleFailures(w http.ResponseWriter, r *http.Request) {
	if h.failures == nil {
		h.writeJSONError(w, "failure log is disabled", http.StatusNotFound)
		return
	}
	name := strings.ToLower(chi.URLParam(r, "name"))
	if !h.knownSource(name) {
		h.writeJSONError(w, "unknown source: "+name, http.StatusNotFound)
		return
	}
	limit, err := request.ParseLimit(r.URL.Query().Get("limit"), defaultFailuresLimit)
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	failures, err := h.failures.Recent(r.Context(), name, limit)
	if err != nil {
		h.logger.Error("failed to load failures", zap.String("source", name), zap.Error(err))
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.FailuresResponse{Source: name, Failures: failures})
}

func (h *Handler) knownSource(name string) bool {
	for _, s := range h.search.Sources() {
		if s.Name == name {
			return true
		}
	}
	return false
}

func (h *Handler) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrEmptyTerm), errors.Is(err, entity.ErrInvalidLimit):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrUnknownSource):
		h.writeJSONError(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("search failed", zap.Error(err))
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
