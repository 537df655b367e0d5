// Package browser drives headless Chrome sessions for pages that need a real
// browser to act on.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

var ErrSessionClosed = errors.New("browser session closed")

// Session is one isolated browser tab. Every method is bounded by the
// session's own timeouts as well as ctx.
type Session interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	WaitForSelector(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector, value string) error
	WaitForNetworkIdle(ctx context.Context) error
	// Close releases the browser process. It is safe to call more than once.
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

type Options struct {
	NavigateTimeout time.Duration
	ActionTimeout   time.Duration
	// IdleQuiet is how long the network must stay quiet to count as idle.
	IdleQuiet time.Duration
	Width     int64
	Height    int64
	ExecPath  string
	// Headful shows the browser window; useful when debugging selectors.
	Headful bool
}

func (o Options) withDefaults() Options {
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = 30 * time.Second
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 5 * time.Second
	}
	if o.IdleQuiet <= 0 {
		o.IdleQuiet = 500 * time.Millisecond
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 1280, 800
	}
	return o
}

// ChromeLauncher starts a fresh Chrome process per session so nothing leaks
// between unsubscribe pages.
type ChromeLauncher struct {
	opts Options
}

func NewChromeLauncher(opts Options) *ChromeLauncher {
	return &ChromeLauncher{opts: opts.withDefaults()}
}

func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.WindowSize(int(l.opts.Width), int(l.opts.Height)))
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.Headful {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	// The browser outlives individual calls; callers end it with Close.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		opts:    l.opts,
		tabCtx:  tabCtx,
		tracker: newIdleTracker(),
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}
	chromedp.ListenTarget(tabCtx, s.tracker.handle)

	// The first Run starts the process and binds it to tabCtx, so it must not
	// get a derived timeout context.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.EmulateViewport(l.opts.Width, l.opts.Height),
	)
	stop()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	opts    Options
	tabCtx  context.Context
	tracker *idleTracker
	cancel  func()

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

// run executes actions in the tab, bounded by timeout and by the caller's ctx.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.opts.NavigateTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) WaitForSelector(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Type(ctx context.Context, selector, value string) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.SendKeys(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

// Select sets a <select> value and fires change so page scripts notice.
func (s *chromeSession) Select(ctx context.Context, selector, value string) error {
	fire := fmt.Sprintf(`document.querySelector(%s).dispatchEvent(new Event("change", {bubbles: true}))`, strconv.Quote(selector))
	err := s.run(ctx, s.opts.ActionTimeout,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(fire, nil),
	)
	if err != nil {
		return fmt.Errorf("select %q in %q: %w", value, selector, err)
	}
	return nil
}

func (s *chromeSession) WaitForNetworkIdle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ActionTimeout)
	defer cancel()
	return s.tracker.wait(ctx, s.opts.IdleQuiet, 50*time.Millisecond)
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.closeErr = chromedp.Cancel(s.tabCtx)
		s.cancel()
	})
	return s.closeErr
}
