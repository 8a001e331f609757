package request

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/user/price-aggregator/internal/entity"
)

// ParseSearch reads q, limit and source from the query string. An absent limit
// becomes defaultLimit; zero leaves the choice to the use case.
func ParseSearch(r *http.Request, defaultLimit int) (entity.SearchRequest, error) {
	q := r.URL.Query()
	limit, err := ParseLimit(q.Get("limit"), defaultLimit)
	if err != nil {
		return entity.SearchRequest{}, err
	}
	return entity.SearchRequest{
		Term:           strings.TrimSpace(q.Get("q")),
		LimitPerSource: limit,
		Source:         q.Get("source"),
	}, nil
}

// ParseLimit parses an optional positive integer query value.
func ParseLimit(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, entity.ErrInvalidLimit
	}
	return n, nil
}
