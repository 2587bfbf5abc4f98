package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{RequestsPerMinute: 1, MaxConcurrentRequests: 1}.Validate())
	assert.ErrorIs(t, Config{RequestsPerMinute: 0, MaxConcurrentRequests: 1}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{RequestsPerMinute: 1, MaxConcurrentRequests: -1}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{RequestsPerMinute: 1, MaxConcurrentRequests: 1, MaxBatchSize: -5}.Validate(), ErrInvalidConfig)

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_IntervalAndDefaults(t *testing.T) {
	assert.Equal(t, time.Second, Config{RequestsPerMinute: 60}.Interval())
	assert.Equal(t, 250*time.Millisecond, Config{RequestsPerMinute: 240}.Interval())

	assert.Equal(t, 15, DefaultsFor("Gemini").RequestsPerMinute)
	assert.Equal(t, fallback, DefaultsFor("something-else"))
	assert.Equal(t, DefaultBatchSize, Config{}.BatchSize())

	merged := Config{RequestsPerMinute: 10}.Merge(DefaultsFor("groq"))
	assert.Equal(t, Config{RequestsPerMinute: 10, MaxConcurrentRequests: 3, MaxBatchSize: 20}, merged)
}

func acquireAll(t *testing.T, g *Governor, n int, hold time.Duration) (maxInFlight int64) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		current atomic.Int64
		peak    atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			c := current.Add(1)
			for {
				p := peak.Load()
				if c <= p || peak.CompareAndSwap(p, c) {
					break
				}
			}
			time.Sleep(hold)
			current.Add(-1)
		}()
	}
	wg.Wait()
	return peak.Load()
}

func TestGovernor_SpacesDispatches(t *testing.T) {
	g, err := New(Config{RequestsPerMinute: 600, MaxConcurrentRequests: 5})
	require.NoError(t, err)

	start := time.Now()
	acquireAll(t, g, 5, 0)
	// Four gaps of 100ms each.
	assert.GreaterOrEqual(t, time.Since(start), 380*time.Millisecond)
	assert.Equal(t, 5, g.DispatchedInWindow())
	assert.Equal(t, 0, g.InFlight())
}

func TestGovernor_SixtyPerMinuteTakesFourSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	g, err := New(Config{RequestsPerMinute: 60, MaxConcurrentRequests: 5})
	require.NoError(t, err)

	start := time.Now()
	acquireAll(t, g, 5, 0)
	assert.GreaterOrEqual(t, time.Since(start), 3900*time.Millisecond)
}

func TestGovernor_ConcurrencyBound(t *testing.T) {
	g, err := New(Config{RequestsPerMinute: 60000, MaxConcurrentRequests: 2})
	require.NoError(t, err)

	peak := acquireAll(t, g, 10, 20*time.Millisecond)
	assert.LessOrEqual(t, peak, int64(2))
	assert.Equal(t, 0, g.InFlight())
}

func TestGovernor_ReleaseIsIdempotent(t *testing.T) {
	g, err := New(Config{RequestsPerMinute: 60000, MaxConcurrentRequests: 1})
	require.NoError(t, err)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.InFlight())
	release()
	release()
	assert.Equal(t, 0, g.InFlight())

	release, err = g.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestGovernor_CancelWhileWaiting(t *testing.T) {
	g, err := New(Config{RequestsPerMinute: 1, MaxConcurrentRequests: 2})
	require.NoError(t, err)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	require.Error(t, err)
	// The failed attempt must not leak its concurrency slot.
	assert.Equal(t, 1, g.InFlight())
}

func TestGovernor_Pause(t *testing.T) {
	g, err := New(Config{RequestsPerMinute: 60000, MaxConcurrentRequests: 1})
	require.NoError(t, err)

	g.Pause(150 * time.Millisecond)
	assert.True(t, g.Paused())

	start := time.Now()
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	release()
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
	assert.False(t, g.Paused())
}

func TestGovernor_Throughput(t *testing.T) {
	g, err := New(Config{RequestsPerMinute: 60000, MaxConcurrentRequests: 4})
	require.NoError(t, err)
	assert.Zero(t, g.Throughput())

	acquireAll(t, g, 3, 0)
	assert.InDelta(t, 3.0, g.Throughput(), 0.01)
}
