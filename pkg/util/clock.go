package util

import (
	"sync"
	"time"
)

// Clock is the engine's notion of "now". Order windows are evaluated against
// it at settlement time, never at signing time.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// ManualClock only moves when told to. Used by tests and by the devnet
// node when it replays a fixed timeline.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(unix int64) *ManualClock {
	return &ManualClock{now: time.Unix(unix, 0)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After fires immediately with the time d from now and advances the clock
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Advance(d)
	return ch
}

func (c *ManualClock) Set(unix int64) {
	c.mu.Lock()
	c.now = time.Unix(unix, 0)
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// UnixNow returns the clock's time in unix seconds, the unit orders are signed in
func UnixNow(c Clock) uint64 {
	sec := c.Now().Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}
