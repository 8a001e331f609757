package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/price-aggregator/internal/entity"
)

func TestSummarize_Empty(t *testing.T) {
	stats := Summarize(nil)

	assert.Zero(t, stats.AveragePrice)
	assert.Nil(t, stats.MinPrice)
	assert.Nil(t, stats.MaxPrice)
	assert.Nil(t, stats.CheapestProduct)
	assert.Nil(t, stats.MostExpensiveProduct)
	assert.Empty(t, stats.CountBySource)
	assert.NotNil(t, stats.CountBySource)
	assert.Zero(t, stats.AvailableCount)
}

func TestSummarize(t *testing.T) {
	products := []entity.Product{
		{Name: "A", Price: 10, Source: "wong", Available: true},
		{Name: "B", Price: 30, Source: "metro", Available: false},
		{Name: "C", Price: 10, Source: "wong", Available: true},
	}

	stats := Summarize(products)

	assert.InDelta(t, 16.67, stats.AveragePrice, 0.005)
	require.NotNil(t, stats.MinPrice)
	require.NotNil(t, stats.MaxPrice)
	assert.Equal(t, 10.0, *stats.MinPrice)
	assert.Equal(t, 30.0, *stats.MaxPrice)
	assert.Equal(t, "A", stats.CheapestProduct.Name, "first of the tied cheapest wins")
	assert.Equal(t, "B", stats.MostExpensiveProduct.Name)
	assert.Equal(t, map[string]int{"wong": 2, "metro": 1}, stats.CountBySource)
	assert.Equal(t, 2, stats.AvailableCount)
}

func TestSummarize_SingleProduct(t *testing.T) {
	stats := Summarize([]entity.Product{{Name: "X", Price: 4.5, Source: "makro", Available: true}})

	assert.Equal(t, 4.5, stats.AveragePrice)
	assert.Equal(t, "X", stats.CheapestProduct.Name)
	assert.Equal(t, "X", stats.MostExpensiveProduct.Name)
}

func TestSummarize_DoesNotAliasInput(t *testing.T) {
	products := []entity.Product{{Name: "A", Price: 1, Source: "wong"}}
	stats := Summarize(products)

	products[0].Price = 99
	assert.Equal(t, 1.0, *stats.MinPrice)
}
