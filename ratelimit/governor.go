// Package ratelimit admits backend calls under a requests-per-minute
// interval and a concurrency cap.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// window is the span used for throughput reporting.
const window = time.Minute

// Governor enforces Config for one run. Admission is interval based: a
// caller that arrives early waits exactly the time left until the next slot.
// The trailing dispatch window is kept for reporting only.
type Governor struct {
	cfg     Config
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	inFlight atomic.Int64

	mu         sync.Mutex
	dispatches []time.Time
	pauseEnd   time.Time
}

// New returns a governor for cfg.
func New(cfg Config) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Governor{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval()), 1),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}, nil
}

// Config returns the limits the governor was built with.
func (g *Governor) Config() Config { return g.cfg }

// Acquire blocks until a concurrency slot is free, any Pause has expired and
// the dispatch interval has elapsed. The returned release func must be called
// exactly once when the request finishes; extra calls are no-ops.
func (g *Governor) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := g.waitIfPaused(ctx); err != nil {
		g.sem.Release(1)
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.sem.Release(1)
		return nil, err
	}

	g.record(time.Now())
	g.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Pause holds back new dispatches for d, e.g. after an HTTP 429. Overlapping
// pauses extend to the later deadline.
func (g *Governor) Pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if end := time.Now().Add(d); end.After(g.pauseEnd) {
		g.pauseEnd = end
	}
}

// Paused reports whether a Pause is currently in effect.
func (g *Governor) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.pauseEnd)
}

func (g *Governor) waitIfPaused(ctx context.Context) error {
	for {
		g.mu.Lock()
		remaining := time.Until(g.pauseEnd)
		g.mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		// Re-check periodically; another caller may extend the pause.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(remaining, 100*time.Millisecond)):
		}
	}
}

func (g *Governor) record(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dispatches = append(g.dispatches, t)
	g.pruneLocked(t)
}

func (g *Governor) pruneLocked(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(g.dispatches) && !g.dispatches[i].After(cutoff) {
		i++
	}
	g.dispatches = g.dispatches[i:]
}

// InFlight returns the number of acquired, unreleased slots.
func (g *Governor) InFlight() int {
	return int(g.inFlight.Load())
}

// DispatchedInWindow returns how many dispatches happened in the trailing
// minute.
func (g *Governor) DispatchedInWindow() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(time.Now())
	return len(g.dispatches)
}

// Throughput returns the effective dispatch rate, in requests per second,
// over the trailing minute or since the first dispatch if that is more recent.
func (g *Governor) Throughput() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.pruneLocked(now)
	if len(g.dispatches) == 0 {
		return 0
	}
	span := now.Sub(g.dispatches[0])
	if span < time.Second {
		span = time.Second
	}
	return float64(len(g.dispatches)) / span.Seconds()
}
