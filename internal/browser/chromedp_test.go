package browser

import (
	"context"
	"testing"
	"time"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	b, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if cap(b.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(b.limiter))
	}
}

func TestNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	b := &Chromedp{}
	if got := b.navTimeout(); got != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	b.cfg.NavigationTimeout = time.Second
	if got := b.navTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestCookiePathDefault(t *testing.T) {
	t.Parallel()

	if got := cookiePath(""); got != "/" {
		t.Fatalf("expected root path default, got %q", got)
	}
	if got := cookiePath("/board"); got != "/board" {
		t.Fatalf("expected path preserved, got %q", got)
	}
}

func TestNoopBrowserError(t *testing.T) {
	t.Parallel()

	b := NewNoop()
	if _, err := b.Navigate(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error from noop browser")
	}
}
