package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// BrowserOptions controls how the automation browser is launched.
type BrowserOptions struct {
	Headless bool
	ExecPath string
}

// Browser wraps one chromedp browser instance scoped to a sync pass.
type Browser struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Browser returns the pass's browser, starting it on first use. Passes that
// only touch the PMS channel never pay for a browser launch.
func (s *Session) Browser(opts BrowserOptions) (*Browser, error) {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	b := &Browser{ctx: browserCtx, cancelCtx: cancelCtx, cancelAlloc: cancelAlloc}

	if err := b.injectCookies(s); err != nil {
		b.close()
		return nil, fmt.Errorf("failed to inject session cookies: %w", err)
	}

	log.Debug().Str("account", s.Account).Msg("browser session started")
	s.browser = b
	return b, nil
}

// Context returns the chromedp context for running browser actions.
func (b *Browser) Context() context.Context {
	return b.ctx
}

// injectCookies copies the session's cookie jar into the browser so the
// rendered pages carry the same authenticated identity as the HTTP client.
func (b *Browser) injectCookies(s *Session) error {
	cookies := s.Cookies()
	domain := s.BaseURL.Hostname()

	return chromedp.Run(b.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			cookieDomain := c.Domain
			if cookieDomain == "" {
				cookieDomain = domain
			}
			setter := network.SetCookie(c.Name, c.Value).
				WithDomain(cookieDomain).
				WithPath("/").
				WithSecure(true)
			if err := setter.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (b *Browser) close() {
	// Graceful browser shutdown before the allocator is torn down.
	if err := chromedp.Cancel(b.ctx); err != nil {
		log.Debug().Err(err).Msg("browser shutdown")
	}
	b.cancelCtx()
	b.cancelAlloc()
}
