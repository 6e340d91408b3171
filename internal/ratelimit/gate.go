// Package ratelimit spaces out calls to external sources.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time so the gate can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Gate enforces a fixed minimum interval between successive calls.
type Gate struct {
	limiter  *rate.Limiter
	clock    Clock
	interval time.Duration
}

type Option func(*Gate)

func WithClock(c Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// NewGate creates a gate that lets one call through per interval.
// A zero interval disables waiting.
func NewGate(interval time.Duration, opts ...Option) *Gate {
	g := &Gate{clock: realClock{}, interval: interval}
	for _, opt := range opts {
		opt(g)
	}
	if interval > 0 {
		g.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return g
}

// Interval returns the configured minimum spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Wait blocks until the next call is allowed or ctx is done. A nil gate
// never blocks.
func (g *Gate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil || g.limiter == nil {
		return nil
	}

	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		r.CancelAt(g.clock.Now())
		return ctx.Err()
	case <-g.clock.After(delay):
		return nil
	}
}
