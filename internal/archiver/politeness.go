package archiver

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// PauseController abstracts the politeness delay between extraction
// attempts so tests can skip real sleeps.
type PauseController interface {
	Pause(ctx context.Context)
}

// JitterPause sleeps a uniformly jittered duration in [Min, Max] and wakes
// early when the context finishes.
type JitterPause struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitterPause builds a JitterPause with the given bounds. Swapped or
// non-positive bounds fall back to the default 900ms-1500ms window.
func NewJitterPause(min, max time.Duration) *JitterPause {
	if min <= 0 || max < min {
		min = 900 * time.Millisecond
		max = 1500 * time.Millisecond
	}
	return &JitterPause{
		Min: min,
		Max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pause blocks for the jittered delay or until ctx is done.
func (p *JitterPause) Pause(ctx context.Context) {
	delay := p.Min
	if span := p.Max - p.Min; span > 0 {
		p.mu.Lock()
		delay += time.Duration(p.rng.Int63n(int64(span) + 1))
		p.mu.Unlock()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NoPause is a PauseController that returns immediately.
type NoPause struct{}

// Pause is a no-op.
func (NoPause) Pause(context.Context) {}
