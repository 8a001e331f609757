package response

import (
	"time"

	"github.com/user/price-aggregator/internal/entity"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// SourceResponse is the public view of a catalog entry; URL templates stay internal.
type SourceResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Strategy    string `json:"strategy"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

func NewSourcesResponse(sources []entity.Source) SourcesResponse {
	out := SourcesResponse{Sources: make([]SourceResponse, 0, len(sources))}
	for _, s := range sources {
		out.Sources = append(out.Sources, SourceResponse{
			Name:        s.Name,
			DisplayName: s.Label(),
			Strategy:    s.Strategy.String(),
		})
	}
	return out
}

// SourceProductsResponse is the single-source listing.
type SourceProductsResponse struct {
	Source   string           `json:"source"`
	Term     string           `json:"term"`
	Total    int              `json:"total"`
	Products []entity.Product `json:"products"`
	Message  string           `json:"message,omitempty"`
}

type HistoryResponse struct {
	Term      string            `json:"term"`
	Snapshots []entity.Snapshot `json:"snapshots"`
}

type FailuresResponse struct {
	Source   string                 `json:"source"`
	Failures []entity.SourceFailure `json:"failures"`
}

// HealthResponse reports liveness plus the state of optional dependencies.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}
