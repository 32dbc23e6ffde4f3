package testsupport

import (
	"sync"
	"time"
)

// Epoch is the instant a Clock starts at unless told otherwise.
var Epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// Clock is a manual time source safe for concurrent use. Its Now method
// satisfies the func() time.Time clock options of the store packages.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock at start, or at Epoch when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = Epoch
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
