package restapi

import (
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
)

const (
	pathName     = "productName"
	pathOffer    = "items.0.sellers.0.commertialOffer"
	pathPrice    = "Price"
	pathQuantity = "AvailableQuantity"
	pathLink     = "link"
	pathImageURL = "items.0.images.0.imageUrl"
)

// parseRecord maps one raw catalog record onto a Product. Records missing
// the name, offer or price are rejected with a RecordParseError.
func parseRecord(index int, raw gjson.Result, source string, capturedAt time.Time) (entity.Product, *repository.RecordParseError) {
	if !raw.IsObject() {
		return entity.Product{}, &repository.RecordParseError{Index: index, Field: "record", Reason: "not an object"}
	}

	name := raw.Get(pathName)
	if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return entity.Product{}, &repository.RecordParseError{Index: index, Field: pathName, Reason: "missing or empty"}
	}

	offer := raw.Get(pathOffer)
	if !offer.IsObject() {
		return entity.Product{}, &repository.RecordParseError{Index: index, Field: pathOffer, Reason: "missing offer"}
	}

	price := offer.Get(pathPrice)
	if price.Type != gjson.Number {
		return entity.Product{}, &repository.RecordParseError{Index: index, Field: pathOffer + "." + pathPrice, Reason: "missing or not a number"}
	}
	if price.Num < 0 {
		return entity.Product{}, &repository.RecordParseError{Index: index, Field: pathOffer + "." + pathPrice, Reason: "negative price"}
	}
	if math.IsNaN(price.Num) || math.IsInf(price.Num, 0) {
		return entity.Product{}, &repository.RecordParseError{Index: index, Field: pathOffer + "." + pathPrice, Reason: "not finite"}
	}

	var available bool
	if qty := offer.Get(pathQuantity); qty.Type == gjson.Number {
		available = qty.Num > 0
	}

	return entity.Product{
		Name:      strings.TrimSpace(name.Str),
		Price:     price.Num,
		Available: available,
		Source:    source,
		Timestamp: capturedAt,
		URL:       raw.Get(pathLink).String(),
		ImageURL:  raw.Get(pathImageURL).String(),
	}, nil
}
