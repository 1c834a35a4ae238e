package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source animations are measured against. Hosts use the
// wall clock; tests substitute a fake one.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// WallClock reads time.Now.
type WallClock struct{}

// Now implements Clock.
func (WallClock) Now() time.Time { return time.Now() }

// DefaultFrameInterval is roughly 30 frames per second.
const DefaultFrameInterval = 33 * time.Millisecond

// FrameTicker drives animation frames and notifies registered listeners on
// each frame. It plays the role of the host's animation-frame scheduler.
type FrameTicker struct {
	mu       sync.RWMutex
	Interval time.Duration
	clock    Clock

	// lastFrame is the time of the most recent frame.
	lastFrame time.Time

	listeners []func(time.Time)
}

// NewFrameTicker constructs a ticker. A non-positive interval falls back to
// DefaultFrameInterval; a nil clock to WallClock.
func NewFrameTicker(interval time.Duration, clock Clock) *FrameTicker {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if clock == nil {
		clock = WallClock{}
	}
	return &FrameTicker{
		Interval:  interval,
		clock:     clock,
		lastFrame: clock.Now(),
	}
}

// Now returns the time of the most recent frame.
func (ft *FrameTicker) Now() time.Time {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	return ft.lastFrame
}

// AddListener registers a callback invoked on every frame.
func (ft *FrameTicker) AddListener(fn func(time.Time)) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.listeners = append(ft.listeners, fn)
}

// Start runs the ticker in a separate goroutine until ctx is cancelled. It
// returns a channel that is closed once the goroutine has exited; no
// listener runs after that.
func (ft *FrameTicker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(ft.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			now := ft.clock.Now()
			ft.mu.Lock()
			ft.lastFrame = now
			listeners := append([]func(time.Time){}, ft.listeners...)
			ft.mu.Unlock()

			for _, fn := range listeners {
				if ctx.Err() != nil {
					return
				}
				fn(now)
			}
		}
	}()
	return done
}
