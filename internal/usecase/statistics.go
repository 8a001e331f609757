package usecase

import "github.com/user/price-aggregator/internal/entity"

// Summarize computes price statistics over products in a single pass.
// On ties the first product encountered is kept as cheapest or most expensive.
func Summarize(products []entity.Product) entity.Statistics {
	stats := entity.Statistics{CountBySource: make(map[string]int)}
	if len(products) == 0 {
		return stats
	}

	var (
		sum           float64
		cheapest      = 0
		mostExpensive = 0
	)
	for i, p := range products {
		sum += p.Price
		if p.Price < products[cheapest].Price {
			cheapest = i
		}
		if p.Price > products[mostExpensive].Price {
			mostExpensive = i
		}
		stats.CountBySource[p.Source]++
		if p.Available {
			stats.AvailableCount++
		}
	}

	minProduct := products[cheapest]
	maxProduct := products[mostExpensive]
	stats.AveragePrice = sum / float64(len(products))
	stats.MinPrice = &minProduct.Price
	stats.CheapestProduct = &minProduct
	stats.MaxPrice = &maxProduct.Price
	stats.MostExpensiveProduct = &maxProduct
	return stats
}
