package repository

import "context"

// ResourceType names a class of sub-resource a page may load.
type ResourceType string

const (
	ResourceImage      ResourceType = "image"
	ResourceFont       ResourceType = "font"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceMedia      ResourceType = "media"
)

// SessionOptions configures a single isolated browser session.
type SessionOptions struct {
	// BlockedResources are aborted before they are requested.
	BlockedResources []ResourceType
	UserAgent        string
	Headers          map[string]string
}

// Browser is the headless automation capability the scraper depends on.
type Browser interface {
	NewSession(ctx context.Context, opts SessionOptions) (BrowserSession, error)
}

// BrowserSession is one isolated page. Close must release every resource it holds.
type BrowserSession interface {
	// Navigate loads url and returns once the DOM has been parsed.
	Navigate(ctx context.Context, url string) error
	// Scroll dispatches a synthetic mouse-wheel event.
	Scroll(ctx context.Context, deltaY float64) error
	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// HTML returns the serialized rendered document.
	HTML(ctx context.Context) (string, error)
	Close() error
}
