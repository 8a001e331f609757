// Package memory holds process-local fallbacks for the optional Redis store.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
)

// FailureRecorderImpl keeps the latest failures per source in memory and
// logs each one. Used when no Redis address is configured.
type FailureRecorderImpl struct {
	mu      sync.Mutex
	bySrc   map[string][]entity.SourceFailure
	logSize int
	logger  *zap.Logger
}

var _ repository.FailureRecorder = (*FailureRecorderImpl)(nil)

func NewFailureRecorder(logSize int, logger *zap.Logger) *FailureRecorderImpl {
	if logSize <= 0 {
		logSize = 50
	}
	return &FailureRecorderImpl{
		bySrc:   make(map[string][]entity.SourceFailure),
		logSize: logSize,
		logger:  logger,
	}
}

func (r *FailureRecorderImpl) Record(_ context.Context, failure entity.SourceFailure) error {
	r.logger.Debug("source failure recorded",
		zap.String("source", failure.Source),
		zap.String("kind", failure.Kind),
		zap.String("message", failure.Message),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	list := append([]entity.SourceFailure{failure}, r.bySrc[failure.Source]...)
	if len(list) > r.logSize {
		list = list[:r.logSize]
	}
	r.bySrc[failure.Source] = list
	return nil
}

// Recent returns up to n of the latest failures for source, newest first.
func (r *FailureRecorderImpl) Recent(_ context.Context, source string, n int) ([]entity.SourceFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.bySrc[source]
	if n < len(list) {
		list = list[:max(n, 0)]
	}
	return append([]entity.SourceFailure{}, list...), nil
}
