package browser

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/price-aggregator/pkg/utils"
)

// Listing is a raw (name, price) pair read from a rendered page.
type Listing struct {
	Name     string
	Price    float64
	URL      string
	ImageURL string
}

// Rule is the per-site extraction logic. The page-driving steps are declarative;
// Extract reads listings from the rendered document.
type Rule struct {
	ID string
	// InitialPause is waited once after navigation, before scrolling.
	InitialPause time.Duration
	// Scrolls synthetic wheel events of ScrollDelta pixels, each followed by ScrollPause.
	Scrolls     int
	ScrollDelta float64
	ScrollPause time.Duration
	// ReadySelector signals that results are present. Empty skips the wait.
	ReadySelector string
	Extract       func(doc *goquery.Document, limit int) []Listing
}

// Rules indexes extraction rules by id.
type Rules map[string]Rule

// DefaultRules returns the rules for the bundled browser sources.
func DefaultRules() Rules {
	return Rules{
		"tottus": {
			ID:            "tottus",
			Scrolls:       3,
			ScrollDelta:   800,
			ScrollPause:   500 * time.Millisecond,
			ReadySelector: "b.pod-subTitle",
			Extract:       extractTottus,
		},
		"makro": {
			ID:            "makro",
			InitialPause:  2 * time.Second,
			Scrolls:       2,
			ScrollDelta:   1000,
			ScrollPause:   500 * time.Millisecond,
			ReadySelector: ".showcase-description",
			Extract:       extractMakro,
		},
	}
}

// extractTottus pairs product titles with internet prices by position.
func extractTottus(doc *goquery.Document, limit int) []Listing {
	names := doc.Find("b.pod-subTitle")
	prices := doc.Find("li[data-internet-price]")

	n := min(names.Length(), prices.Length(), limit)
	out := make([]Listing, 0, n)
	for i := 0; i < n; i++ {
		name := strings.TrimSpace(names.Eq(i).Text())
		raw, _ := prices.Eq(i).Attr("data-internet-price")
		price, ok := parsePrice(raw)
		if name == "" || !ok {
			continue
		}
		out = append(out, Listing{Name: name, Price: price})
	}
	return out
}

// extractMakro reads each showcase card, preferring the unit price over the bulk price.
func extractMakro(doc *goquery.Document, limit int) []Listing {
	var out []Listing
	doc.Find(".showcase-description").EachWithBreak(func(i int, card *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		name := strings.TrimSpace(card.Find(".Showcase-mk__name").First().Text())
		if name == "" {
			return true
		}
		raw, found := card.Find(".Showcase-mk__unitPrice[data-price]").First().Attr("data-price")
		if !found {
			raw, found = card.Find(".Showcase-mk__biPrice[data-price]").First().Attr("data-price")
		}
		if !found {
			return true
		}
		price, ok := parsePrice(raw)
		if !ok {
			return true
		}
		listing := Listing{Name: name, Price: price}
		if href, ok := card.Find("a[href]").First().Attr("href"); ok {
			listing.URL = href
		}
		if src, ok := card.Find("img[src]").First().Attr("src"); ok {
			listing.ImageURL = src
		}
		out = append(out, listing)
		return true
	})
	return out
}

// parsePrice accepts "12.90", "12,90" and "S/ 12.90". Non-positive and
// non-finite prices are rejected.
func parsePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "S/")
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(s, 64)
	if err != nil || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false
	}
	return price, true
}

// resolve makes a listing link absolute against the page URL; bad links are dropped.
func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	abs, err := utils.ToAbsoluteURL(base, ref)
	if err != nil {
		return ""
	}
	return abs
}
