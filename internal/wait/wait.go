// Package wait implements the bounded polling primitive every retry loop
// in the engine is built on: probe, then sleep, never past the deadline.
package wait

import (
	"context"
	"time"

	"github.com/karlmicha/rguils/internal/uierr"
)

// Forever disables the deadline; Sleep never fails with a timeout.
const Forever time.Duration = -1

// DefaultInterval is the pause between retry rounds
const DefaultInterval = time.Second

// Sleeper pauses for the given duration, honoring context cancellation.
// Tests substitute a recording implementation.
type Sleeper func(ctx context.Context, d time.Duration) error

// Wait tracks the budget of one polling loop. Each Sleep call pauses for
// min(interval, timeout-elapsed) and fails with a Timeout once the budget
// is spent. A zero timeout fails on the first call without sleeping.
type Wait struct {
	timeout  time.Duration
	interval time.Duration
	elapsed  time.Duration
	message  string
	sleep    Sleeper
}

// Option configures a Wait
type Option func(*Wait)

// WithInterval overrides the pause between rounds
func WithInterval(d time.Duration) Option {
	return func(w *Wait) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMessage sets the message carried by the timeout error
func WithMessage(message string) Option {
	return func(w *Wait) {
		w.message = message
	}
}

// WithSleeper replaces the real sleep, for tests
func WithSleeper(s Sleeper) Option {
	return func(w *Wait) {
		w.sleep = s
	}
}

// New creates a Wait with the given timeout. A negative timeout (Forever)
// waits without bound.
func New(timeout time.Duration, opts ...Option) *Wait {
	w := &Wait{
		timeout:  timeout,
		interval: DefaultInterval,
		message:  "wait timed out",
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Sleep pauses until the next retry round. It fails with a Timeout error
// when the budget is already spent, before sleeping, so the caller's last
// probe is never followed by a useless pause. Context cancellation fails
// with Canceled.
func (w *Wait) Sleep(ctx context.Context) error {
	if w.timeout >= 0 && w.elapsed >= w.timeout {
		return uierr.Newf(uierr.Timeout, "%s after %s", w.message, w.elapsed)
	}

	d := w.interval
	if w.timeout >= 0 {
		if remaining := w.timeout - w.elapsed; remaining < d {
			d = remaining
		}
	}

	if err := w.sleep(ctx, d); err != nil {
		return uierr.Wrap(uierr.Canceled, err, w.message)
	}
	w.elapsed += d
	return nil
}

// Elapsed returns the total time slept so far
func (w *Wait) Elapsed() time.Duration {
	return w.elapsed
}

// Unbounded reports whether the wait has no deadline
func (w *Wait) Unbounded() bool {
	return w.timeout < 0
}

// Sleep pauses for d, honoring context cancellation. It is the default
// Sleeper and doubles as a plain one-off pause.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
