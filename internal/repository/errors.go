package repository

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSource = errors.New("source is not registered")
	ErrFetchTimeout  = errors.New("fetch timed out")
	ErrFetchNetwork  = errors.New("fetch network error")
	ErrExtraction    = errors.New("extraction failed")
)

// FetchError is the non-fatal error a fetcher reports for a whole source.
// Kind is one of the sentinel errors above and is matched by errors.Is.
type FetchError struct {
	Source string
	Kind   error
	Err    error
}

func NewFetchError(source string, kind, err error) *FetchError {
	return &FetchError{Source: source, Kind: kind, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == e.Kind }

// RecordParseError describes one malformed record inside an otherwise valid response.
type RecordParseError struct {
	Index  int
	Field  string
	Reason string
}

func (e *RecordParseError) Error() string {
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Reason)
}

// ClassifyError maps an error onto the label used in metrics and failure reports.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, ErrFetchNetwork):
		return "network"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrUnknownSource):
		return "unknown_source"
	default:
		return "unknown"
	}
}
