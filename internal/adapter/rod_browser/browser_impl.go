// Package rod_browser implements repository.Browser with go-rod and the
// stealth evasions, as an alternative driver to chromedp.
package rod_browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/repository"
)

// Browser owns one Chrome process. Every session runs in its own incognito
// context, so cookies and storage never leak between fetches.
type Browser struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	remote   string
	logger   *zap.Logger
}

var _ repository.Browser = (*Browser)(nil)

// NewRodBrowser creates a Browser. When remoteURL is empty a local headless
// Chrome is launched lazily on the first session.
func NewRodBrowser(remoteURL string, logger *zap.Logger) *Browser {
	return &Browser{remote: remoteURL, logger: logger}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.remote
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			NoSandbox(true).
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "launch chrome")
		}
		b.launcher = l
		wsURL = u
		b.logger.Info("launched local chrome", zap.String("url", wsURL))
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		return nil, eris.Wrap(err, "connect to chrome")
	}
	b.browser = rb
	return rb, nil
}

// NewSession opens a stealth page in a fresh incognito context.
func (b *Browser) NewSession(ctx context.Context, opts repository.SessionOptions) (repository.BrowserSession, error) {
	rb, err := b.connect()
	if err != nil {
		return nil, err
	}
	incognito, err := rb.Context(ctx).Incognito()
	if err != nil {
		return nil, eris.Wrap(err, "create incognito context")
	}

	p, err := stealth.Page(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, eris.Wrap(err, "open stealth page")
	}
	s := &session{page: p, incognito: incognito}

	if opts.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			_ = s.Close()
			return nil, eris.Wrap(err, "set user agent")
		}
	}
	if headers := extraHeaders(opts.Headers); len(headers) > 0 {
		if _, err := p.SetExtraHeaders(headers); err != nil {
			_ = s.Close()
			return nil, eris.Wrap(err, "set extra headers")
		}
	}
	if len(opts.BlockedResources) > 0 {
		s.router = blockResources(p, opts.BlockedResources)
	}
	return s, nil
}

// Close shuts the shared Chrome process down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
		b.launcher = nil
	}
	return err
}

type session struct {
	page      *rod.Page
	incognito *rod.Browser
	router    *rod.HijackRouter
	once      sync.Once
}

// Navigate returns once DOMContentLoaded fired for the new document.
func (s *session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (s *session) Scroll(ctx context.Context, deltaY float64) error {
	return s.page.Context(ctx).Mouse.Scroll(0, deltaY, 1)
}

func (s *session) WaitVisible(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (s *session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if cerr := s.page.Close(); cerr != nil {
			err = cerr
		}
		if cerr := s.incognito.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// blockResources fails matching sub-resource requests before they leave the browser.
func blockResources(p *rod.Page, blocked []repository.ResourceType) *rod.HijackRouter {
	router := p.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blocked, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func shouldBlock(blocked []repository.ResourceType, rt proto.NetworkResourceType) bool {
	for _, b := range blocked {
		if resourceTypes[b] == rt {
			return true
		}
	}
	return false
}

var resourceTypes = map[repository.ResourceType]proto.NetworkResourceType{
	repository.ResourceImage:      proto.NetworkResourceTypeImage,
	repository.ResourceFont:       proto.NetworkResourceTypeFont,
	repository.ResourceStylesheet: proto.NetworkResourceTypeStylesheet,
	repository.ResourceMedia:      proto.NetworkResourceTypeMedia,
}

// extraHeaders flattens headers into rod's key, value list. Headers Chrome
// manages itself are left out.
func extraHeaders(headers map[string]string) []string {
	out := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		switch k {
		case "Connection", "User-Agent", "Upgrade-Insecure-Requests":
			continue
		}
		out = append(out, k, v)
	}
	return out
}
