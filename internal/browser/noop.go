package browser

import (
	"context"
	"errors"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// Noop implements archiver.Browser but always errors, for builds where
// headless Chrome is not available.
type Noop struct{}

// NewNoop creates a new Noop browser.
func NewNoop() *Noop {
	return &Noop{}
}

// Navigate returns an error since this is a stub implementation.
func (Noop) Navigate(_ context.Context, _ string) (archiver.PageSnapshot, error) {
	return archiver.PageSnapshot{}, errors.New("headless browser not configured")
}
