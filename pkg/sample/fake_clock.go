package sample

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a Clock that never blocks: SleepUntil jumps straight to the
// deadline and records it, so tests can assert exact pacing.
type FakeClock struct {
	mu        sync.Mutex
	now       time.Time
	deadlines []time.Time

	// Step is added to the current time on every Now call, modelling the time
	// a read or computation takes.
	Step time.Duration
	// OnSleep, if set, is called before each wait with the number of waits so
	// far. Tests use it to cancel mid-run.
	OnSleep func(n int)
}

var _ Clock = (*FakeClock)(nil)

// NewFakeClock creates a fake clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time and advances it by Step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// SleepUntil advances the clock to deadline.
func (c *FakeClock) SleepUntil(ctx context.Context, deadline time.Time) error {
	c.mu.Lock()
	n := len(c.deadlines)
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, deadline)
	if deadline.After(c.now) {
		c.now = deadline
	}
	return nil
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Deadlines returns a copy of every deadline passed to SleepUntil.
func (c *FakeClock) Deadlines() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Time, len(c.deadlines))
	copy(result, c.deadlines)
	return result
}
