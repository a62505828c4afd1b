package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic, manually advanced Clock for tests. Timers fire
// synchronously from Advance, in deadline order, so a test can step through
// heartbeat and reconnect schedules without wall-clock waits.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	timers  []*fakeTimer
}

// NewFake creates a Fake set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake clock's current time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to fire when the clock is advanced past d.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{
		clock:    c,
		deadline: c.current.Add(d),
		f:        f,
	}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves the clock forward by d, firing due timers in deadline order.
// Callbacks run with the clock set to their own deadline, so a callback that
// re-arms a timer (a recurring heartbeat) schedules relative to that instant.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)

	for {
		timer := c.popDue(target)
		if timer == nil {
			break
		}
		c.current = timer.deadline
		f := timer.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}

	c.current = target
	c.mu.Unlock()
}

// PendingTimers reports how many timers are armed.
func (c *Fake) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// popDue removes and returns the earliest timer due at or before target,
// or nil. Caller holds c.mu.
func (c *Fake) popDue(target time.Time) *fakeTimer {
	best := -1
	for i, timer := range c.timers {
		if timer.deadline.After(target) {
			continue
		}
		if best == -1 || timer.deadline.Before(c.timers[best].deadline) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	timer := c.timers[best]
	c.timers = append(c.timers[:best], c.timers[best+1:]...)
	return timer
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	f        func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	for i, pending := range t.clock.timers {
		if pending == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

var _ Clock = (*Fake)(nil)
