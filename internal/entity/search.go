package entity

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultLimitPerSource = 10
	MaxLimitPerSource     = 50
)

var (
	ErrEmptyTerm    = errors.New("search term is required")
	ErrInvalidLimit = errors.New("limit per source must be between 1 and 50")
)

// SearchRequest is the inbound query accepted by the search use case.
type SearchRequest struct {
	Term           string `json:"term"`
	LimitPerSource int    `json:"limit_per_source"`
	Source         string `json:"source,omitempty"` // empty means every registered source
}

// Normalize trims the term and source and applies the default limit.
func (r *SearchRequest) Normalize() {
	r.Term = strings.TrimSpace(r.Term)
	r.Source = strings.ToLower(strings.TrimSpace(r.Source))
	if r.LimitPerSource == 0 {
		r.LimitPerSource = DefaultLimitPerSource
	}
}

func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Term) == "" {
		return ErrEmptyTerm
	}
	if r.LimitPerSource < 1 || r.LimitPerSource > MaxLimitPerSource {
		return ErrInvalidLimit
	}
	return nil
}

// SourceFailure records why one source contributed no products to a run.
type SourceFailure struct {
	Source     string    `json:"source"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AggregateResult is the merged outcome of one orchestration run.
type AggregateResult struct {
	Term          string               `json:"term"`
	CapturedAt    time.Time            `json:"captured_at"`
	TotalProducts int                  `json:"total_products"`
	Products      []Product            `json:"products"`
	BySource      map[string][]Product `json:"by_source"`
	Statistics    Statistics           `json:"statistics"`
	Failures      []SourceFailure      `json:"failures,omitempty"`
}

// Statistics summarises a merged product list.
// Min and max fields stay nil when there are no products.
type Statistics struct {
	AveragePrice         float64        `json:"average_price"`
	MinPrice             *float64       `json:"min_price,omitempty"`
	CheapestProduct      *Product       `json:"cheapest_product,omitempty"`
	MaxPrice             *float64       `json:"max_price,omitempty"`
	MostExpensiveProduct *Product       `json:"most_expensive_product,omitempty"`
	CountBySource        map[string]int `json:"count_by_source"`
	AvailableCount       int            `json:"available_count"`
}

// Snapshot is a persisted AggregateResult, as returned by the history store.
type Snapshot struct {
	ID            int64     `json:"id"`
	Term          string    `json:"term"`
	CapturedAt    time.Time `json:"captured_at"`
	TotalProducts int       `json:"total_products"`
	AveragePrice  float64   `json:"average_price"`
	MinPrice      *float64  `json:"min_price,omitempty"`
	MaxPrice      *float64  `json:"max_price,omitempty"`
	Products      []Product `json:"products"`
}
