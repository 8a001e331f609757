package repository

import (
	"context"

	"github.com/user/price-aggregator/internal/entity"
)

// HistoryRepository stores aggregate results outside the stateless search core.
type HistoryRepository interface {
	// Save stores one aggregate result as a snapshot.
	Save(ctx context.Context, result *entity.AggregateResult) error
	// FindByTerm returns the latest snapshots for term, newest first.
	FindByTerm(ctx context.Context, term string, limit int) ([]entity.Snapshot, error)
}
