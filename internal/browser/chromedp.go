// Package browser renders pages through an authenticated headless Chrome
// session.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// SessionCookie is one authentication cookie injected before navigation.
type SessionCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Config controls the headless browser.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	MaxParallel       int
	Cookies           []SessionCookie
}

// Chromedp implements archiver.Browser with headless Chrome. The session
// cookies are re-applied on every navigation, so a tab crash cannot drop the
// login state.
type Chromedp struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates the browser and its exec allocator.
func NewChromedp(cfg Config) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (b *Chromedp) Close() {
	b.allocCancel()
}

// Navigate renders one page and returns the final location plus the full DOM.
// Redirects are followed; the caller inspects Location to detect a bounce to
// a login page.
func (b *Chromedp) Navigate(ctx context.Context, url string) (archiver.PageSnapshot, error) {
	if err := b.acquire(ctx); err != nil {
		return archiver.PageSnapshot{}, err
	}
	defer b.release()

	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.navTimeout())
	defer cancel()

	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	var (
		html     string
		location string
	)
	start := time.Now()
	actions := []chromedp.Action{
		b.sessionSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return archiver.PageSnapshot{}, fmt.Errorf("chromedp run: %w", err)
	}

	return archiver.PageSnapshot{
		URL:      url,
		Location: location,
		HTML:     html,
		Duration: time.Since(start),
	}, nil
}

func (b *Chromedp) sessionSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		for _, c := range b.cfg.Cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(cookiePath(c.Path)).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("set session cookie %q: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (b *Chromedp) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Chromedp) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Chromedp) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

func cookiePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
