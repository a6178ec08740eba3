// Package timer provides the kernel's monotonic clock and the registry of
// sleeping tasks waiting for a deadline.
package timer

import (
	"math"
	"time"

	"gvisor.dev/gvisor/pkg/sync"
)

// Clock is a monotonic clock measured from boot.
type Clock interface {
	// Now returns the time elapsed since boot.
	Now() time.Duration
	// WaitUntil returns once Now() >= deadline.
	WaitUntil(deadline time.Duration)
}

// Micros returns the clock reading in microseconds.
func Micros(c Clock) uint64 {
	return uint64(c.Now() / time.Microsecond)
}

// Millis returns the clock reading in milliseconds.
func Millis(c Clock) uint64 {
	return uint64(c.Now() / time.Millisecond)
}

// RealClock follows the host monotonic clock.
type RealClock struct {
	boot time.Time
}

// NewRealClock returns a clock whose zero is now.
func NewRealClock() *RealClock {
	return &RealClock{boot: time.Now()}
}

// Now implements Clock.
func (c *RealClock) Now() time.Duration {
	return time.Since(c.boot)
}

// WaitUntil implements Clock.
func (c *RealClock) WaitUntil(deadline time.Duration) {
	if d := deadline - c.Now(); d > 0 {
		time.Sleep(d)
	}
}

// ManualClock only moves forward when told to. An idle processor waiting on
// a deadline jumps straight to it, which makes sleeps deterministic in tests.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Duration
	step time.Duration
}

// NewManualClock returns a manual clock reading start.
func NewManualClock(start time.Duration) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d
	}
}

// WaitUntil implements Clock.
func (c *ManualClock) WaitUntil(deadline time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline > c.now {
		c.now = deadline
	}
}

// SetStep sets how far each Tick moves the clock.
func (c *ManualClock) SetStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

// Tick moves the clock forward by the configured step. The processor calls
// it once per dispatch so busy-looping tasks still see time pass.
func (c *ManualClock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now <= math.MaxInt64-c.step {
		c.now += c.step
	}
}

// Ticker is implemented by clocks that advance per dispatch.
type Ticker interface {
	Tick()
}
