package repository

import "github.com/user/price-aggregator/internal/entity"

// SourceRegistry is the read-only catalog of configured sources.
type SourceRegistry interface {
	// Resolve returns the source registered under name, or ErrUnknownSource.
	Resolve(name string) (entity.Source, error)
	// List returns every source in catalog order.
	List() []entity.Source
}
