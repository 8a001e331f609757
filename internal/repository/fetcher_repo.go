package repository

import (
	"context"

	"github.com/user/price-aggregator/internal/entity"
)

// ProductFetcher retrieves listings for one source using one access strategy.
// On failure it returns no products and a *FetchError; callers never abort a batch on it.
type ProductFetcher interface {
	Fetch(ctx context.Context, src entity.Source, term string, limit int) ([]entity.Product, error)
}
