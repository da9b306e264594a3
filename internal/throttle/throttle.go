// Package throttle paces requests to a hot upstream endpoint process-wide.
package throttle

import (
	"context"
	"math/rand/v2"
	"time"
)

// Throttle enforces a minimum, jittered gap between consecutive callers.
// Each Wait blocks until now-last >= base + uniform(0.25*base, 0.75*base).
type Throttle struct {
	base time.Duration
	lock chan struct{}
	last time.Time

	jitter func() float64
}

// New creates a throttle with the given minimum gap. A zero base never waits.
func New(base time.Duration) *Throttle {
	return &Throttle{
		base:   base,
		lock:   make(chan struct{}, 1),
		jitter: rand.Float64,
	}
}

// Base returns the configured minimum gap.
func (t *Throttle) Base() time.Duration {
	return t.base
}

// Wait blocks until the caller may send, then records the send time.
func (t *Throttle) Wait(ctx context.Context) error {
	select {
	case t.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.lock }()

	if t.base > 0 && !t.last.IsZero() {
		gap := t.base + time.Duration(float64(t.base)*(0.25+0.5*t.jitter()))
		if wait := time.Until(t.last.Add(gap)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	t.last = time.Now()
	return nil
}
