package chromedp_browser

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/repository"
)

// Browser launches one headless Chrome process per session. Each session
// therefore starts with an empty profile and no shared cookies.
type Browser struct {
	execPath string
	logger   *zap.Logger
}

var _ repository.Browser = (*Browser)(nil)

// NewChromedpBrowser creates a Browser. An empty execPath lets chromedp find Chrome.
func NewChromedpBrowser(execPath string, logger *zap.Logger) *Browser {
	return &Browser{execPath: execPath, logger: logger}
}

func (b *Browser) allocatorOptions(opts repository.SessionOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if b.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.execPath))
	}
	return allocOpts
}

// NewSession starts Chrome, opens a tab and installs resource blocking and headers.
func (b *Browser) NewSession(ctx context.Context, opts repository.SessionOptions) (repository.BrowserSession, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(b.logger.Sugar().Debugf))

	s := &session{
		ctx:      tabCtx,
		cancel:   func() { cancelTab(); cancelAlloc() },
		domReady: make(chan struct{}, 1),
		logger:   b.logger,
	}

	patterns := blockPatterns(opts.BlockedResources)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *page.EventDomContentEventFired:
			select {
			case s.domReady <- struct{}{}:
			default:
			}
		case *fetch.EventRequestPaused:
			go func() {
				c := chromedp.FromContext(tabCtx)
				execCtx := cdp.WithExecutor(tabCtx, c.Target)
				if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
					b.logger.Debug("failed to block request", zap.String("url", ev.Request.URL), zap.Error(err))
				}
			}()
		}
	})

	setup := []chromedp.Action{network.Enable()}
	if headers := extraHeaders(opts.Headers); len(headers) > 0 {
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	if len(patterns) > 0 {
		setup = append(setup, fetch.Enable().WithPatterns(patterns))
	}

	// The first Run allocates the browser, so it must use the tab context itself.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(tabCtx, setup...)
	stop()
	if err != nil {
		s.cancel()
		if ctx.Err() != nil {
			err = errors.Join(ctx.Err(), err)
		}
		return nil, eris.Wrap(err, "start chrome session")
	}
	return s, nil
}

type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	domReady chan struct{}
	logger   *zap.Logger
	once     sync.Once
}

// run executes actions on the tab, bounded by the caller's ctx.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}

// Navigate issues Page.navigate and returns on DOMContentLoaded, without
// waiting for the load event.
func (s *session) Navigate(ctx context.Context, url string) error {
	select {
	case <-s.domReady:
	default:
	}

	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return eris.Errorf("page load error %s", res.ErrorText)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	select {
	case <-s.domReady:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return eris.Wrap(s.ctx.Err(), "browser closed")
	}
}

func (s *session) Scroll(ctx context.Context, deltaY float64) error {
	return s.run(ctx, input.DispatchMouseEvent(input.MouseWheel, 0, 0).WithDeltaX(0).WithDeltaY(deltaY))
}

func (s *session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close kills the tab and the Chrome process behind it.
func (s *session) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// blockPatterns builds one request-stage pattern per blocked resource type.
func blockPatterns(blocked []repository.ResourceType) []*fetch.RequestPattern {
	patterns := make([]*fetch.RequestPattern, 0, len(blocked))
	for _, rt := range blocked {
		nrt, ok := resourceTypes[rt]
		if !ok {
			continue
		}
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: nrt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

var resourceTypes = map[repository.ResourceType]network.ResourceType{
	repository.ResourceImage:      network.ResourceTypeImage,
	repository.ResourceFont:       network.ResourceTypeFont,
	repository.ResourceStylesheet: network.ResourceTypeStylesheet,
	repository.ResourceMedia:      network.ResourceTypeMedia,
}

// hopHeaders are rejected by Chrome as extra headers; the user agent is set at launch.
var hopHeaders = map[string]bool{
	"Connection":                true,
	"User-Agent":                true,
	"Upgrade-Insecure-Requests": true,
}

func extraHeaders(headers map[string]string) network.Headers {
	out := network.Headers{}
	for k, v := range headers {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = v
	}
	return out
}
