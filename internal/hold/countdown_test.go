package hold

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now     time.Time
	tickers chan *manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{
		now:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		tickers: make(chan *manualTicker, 8),
	}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	c.tickers <- t
	return t
}

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

// tick delivers n ticks synchronously; each send completes only once the
// countdown loop has consumed it.
func (t *manualTicker) tick(n int) {
	for i := 0; i < n; i++ {
		t.ch <- time.Time{}
	}
}

// tryTick attempts one more tick without blocking; returns false when
// nothing is listening anymore.
func (t *manualTicker) tryTick() bool {
	select {
	case t.ch <- time.Time{}:
		return true
	default:
		return false
	}
}

func TestCountdownFiresExactlyOnceAtZero(t *testing.T) {
	clock := newManualClock()
	var fired int64

	c := newCountdown(clock, 3, func() { atomic.AddInt64(&fired, 1) })
	c.start()

	ticker := <-clock.tickers
	ticker.tick(3)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fired) == 1
	}, time.Second, 5*time.Millisecond)

	// The loop has exited; a stray tick can no longer be consumed.
	assert.False(t, ticker.tryTick())
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
	assert.Equal(t, 0, c.Remaining())
}

func TestCountdownRemainingDecrements(t *testing.T) {
	clock := newManualClock()
	c := newCountdown(clock, 10, func() {})
	c.start()
	defer c.Stop()

	ticker := <-clock.tickers
	ticker.tick(4)

	require.Eventually(t, func() bool {
		return c.Remaining() == 6
	}, time.Second, 5*time.Millisecond)
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	clock := newManualClock()
	var fired int64

	c := newCountdown(clock, 60, func() { atomic.AddInt64(&fired, 1) })
	c.start()

	ticker := <-clock.tickers
	ticker.tick(1)
	c.Stop()

	require.Eventually(t, func() bool {
		return !ticker.tryTick()
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(0), atomic.LoadInt64(&fired))
}

func TestCountdownStopIsIdempotent(t *testing.T) {
	clock := newManualClock()
	c := newCountdown(clock, 5, func() {})
	c.start()
	<-clock.tickers

	c.Stop()
	assert.NotPanics(t, func() { c.Stop() })
}
