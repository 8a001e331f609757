package repository

import (
	"context"

	"github.com/user/price-aggregator/internal/entity"
)

// FailureRecorder keeps per-source fetch failures for observability.
type FailureRecorder interface {
	Record(ctx context.Context, failure entity.SourceFailure) error
	// Recent returns up to n of the latest failures for source, newest first.
	Recent(ctx context.Context, source string, n int) ([]entity.SourceFailure, error)
}
