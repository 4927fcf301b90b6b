package hold

import (
	"sync"
	"sync/atomic"
	"time"
)

// Countdown is the user-visible time budget of one hold. It starts at a
// fixed number of seconds, decrements once per wall-clock tick and fires
// its expiry callback exactly once when it reaches zero. Stop disposes the
// ticker when the hold leaves through any other path, so a dangling tick
// can never fire after the hold is gone.
type Countdown struct {
	clock     Clock
	remaining int64
	onExpire  func()

	stop     chan struct{}
	stopOnce sync.Once
	fireOnce sync.Once
}

func newCountdown(clock Clock, seconds int, onExpire func()) *Countdown {
	return &Countdown{
		clock:     clock,
		remaining: int64(seconds),
		onExpire:  onExpire,
		stop:      make(chan struct{}),
	}
}

func (c *Countdown) start() {
	go c.run()
}

func (c *Countdown) run() {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C():
			if atomic.AddInt64(&c.remaining, -1) <= 0 {
				c.fireOnce.Do(c.onExpire)
				return
			}
		}
	}
}

// Remaining returns the seconds left on the budget, never below zero.
func (c *Countdown) Remaining() int {
	left := atomic.LoadInt64(&c.remaining)
	if left < 0 {
		return 0
	}
	return int(left)
}

// Stop disposes the countdown without firing expiry. Safe to call more
// than once and after expiry.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
