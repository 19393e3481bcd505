package sample

import (
	"context"
	"time"
)

// Clock provides the time source and absolute-deadline waits used for pacing.
type Clock interface {
	Now() time.Time
	// SleepUntil blocks until deadline or until ctx is done. A deadline in
	// the past returns immediately.
	SleepUntil(ctx context.Context, deadline time.Time) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

var _ Clock = SystemClock{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// SleepUntil waits on a timer.
func (SystemClock) SleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
