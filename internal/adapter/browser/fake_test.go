package browser

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/user/price-aggregator/internal/repository"
)

// fakeBrowser hands out scripted sessions and tracks how many are open at once.
type fakeBrowser struct {
	html       string
	navErr     error
	waitErr    error
	sessionErr error

	mu        sync.Mutex
	opts      []repository.SessionOptions
	sessions  []*fakeSession
	active    atomic.Int32
	maxActive atomic.Int32
	hold      chan struct{} // when set, Navigate blocks until it is closed
}

func (b *fakeBrowser) NewSession(_ context.Context, opts repository.SessionOptions) (repository.BrowserSession, error) {
	if b.sessionErr != nil {
		return nil, b.sessionErr
	}
	n := b.active.Add(1)
	for {
		cur := b.maxActive.Load()
		if n <= cur || b.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	s := &fakeSession{browser: b}
	b.mu.Lock()
	b.opts = append(b.opts, opts)
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s, nil
}

type fakeSession struct {
	browser  *fakeBrowser
	visited  string
	scrolls  int
	waitedOn string
	closed   bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.visited = url
	if s.browser.hold != nil {
		select {
		case <-s.browser.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.browser.navErr
}

func (s *fakeSession) Scroll(_ context.Context, _ float64) error {
	s.scrolls++
	return nil
}

func (s *fakeSession) WaitVisible(_ context.Context, selector string) error {
	s.waitedOn = selector
	return s.browser.waitErr
}

func (s *fakeSession) HTML(_ context.Context) (string, error) {
	return s.browser.html, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	s.browser.active.Add(-1)
	return nil
}
