package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces requests to a rate-limited source family. The gap is
// measured between request start times: a request is delayed until interval
// has passed since the previous one.
type Throttle struct {
	interval time.Duration
	lim      *rate.Limiter
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithThrottleClock sets the time source and the sleeper (for testing).
func WithThrottleClock(now func() time.Time, sleep func(context.Context, time.Duration) error) ThrottleOption {
	return func(t *Throttle) {
		t.now = now
		t.sleep = sleep
	}
}

// NewThrottle returns a Throttle allowing one request per interval.
// The first request is never delayed.
func NewThrottle(interval time.Duration, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		interval: interval,
		lim:      rate.NewLimiter(rate.Every(interval), 1),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Interval returns the minimum spacing.
func (t *Throttle) Interval() time.Duration { return t.interval }

// Wait blocks until the next request may start and returns how long it
// waited. On cancellation the reservation is returned to the limiter.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	now := t.now()
	r := t.lim.ReserveN(now, 1)
	d := r.DelayFrom(now)
	if d <= 0 {
		return 0, nil
	}
	if err := t.sleep(ctx, d); err != nil {
		r.CancelAt(t.now())
		return 0, err
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
