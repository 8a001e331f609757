package entity

import (
	"fmt"
	"strings"
)

// Strategy is the access method used to retrieve a source's listings.
type Strategy int

const (
	StrategyAPI Strategy = iota + 1
	StrategyBrowser
)

func (s Strategy) String() string {
	switch s {
	case StrategyAPI:
		return "api"
	case StrategyBrowser:
		return "browser-automation"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps the catalog spelling of a strategy onto the enum.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "api", "rest":
		return StrategyAPI, nil
	case "browser-automation", "browser", "scraping":
		return StrategyBrowser, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", raw)
	}
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TermPlaceholder is substituted with the query-escaped search term.
const TermPlaceholder = "{term}"

// Source describes one retailer the aggregator knows how to query.
// Sources are loaded once at startup and never mutated.
type Source struct {
	Name           string   `json:"name" yaml:"name"`
	DisplayName    string   `json:"display_name" yaml:"display_name"`
	Strategy       Strategy `json:"strategy" yaml:"strategy"`
	URLTemplate    string   `json:"-" yaml:"url_template"`
	ExtractionRule string   `json:"extraction_rule,omitempty" yaml:"extraction_rule"`
}

// Label returns the display name, falling back to the key.
func (s Source) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}
