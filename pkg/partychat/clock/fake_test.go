package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("timer fires when advanced past deadline", func(t *testing.T) {
		fake := NewFake(start)
		fired := false
		fake.AfterFunc(5*time.Second, func() { fired = true })

		fake.Advance(4 * time.Second)
		assert.False(t, fired)

		fake.Advance(time.Second)
		assert.True(t, fired)
		assert.Equal(t, 0, fake.PendingTimers())
	})

	t.Run("timers fire in deadline order", func(t *testing.T) {
		fake := NewFake(start)
		var order []string
		fake.AfterFunc(3*time.Second, func() { order = append(order, "b") })
		fake.AfterFunc(1*time.Second, func() { order = append(order, "a") })
		fake.AfterFunc(5*time.Second, func() { order = append(order, "c") })

		fake.Advance(10 * time.Second)
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("stopped timer does not fire", func(t *testing.T) {
		fake := NewFake(start)
		fired := false
		timer := fake.AfterFunc(time.Second, func() { fired = true })

		assert.True(t, timer.Stop())
		assert.False(t, timer.Stop())

		fake.Advance(2 * time.Second)
		assert.False(t, fired)
	})

	t.Run("rearming callback fires repeatedly within one advance", func(t *testing.T) {
		fake := NewFake(start)
		count := 0
		var rearm func()
		rearm = func() {
			count++
			fake.AfterFunc(10*time.Second, rearm)
		}
		fake.AfterFunc(10*time.Second, rearm)

		fake.Advance(35 * time.Second)
		assert.Equal(t, 3, count)
		assert.Equal(t, 1, fake.PendingTimers())
	})

	t.Run("callback observes its own deadline as now", func(t *testing.T) {
		fake := NewFake(start)
		var seen time.Time
		fake.AfterFunc(7*time.Second, func() { seen = fake.Now() })

		fake.Advance(time.Minute)
		assert.Equal(t, start.Add(7*time.Second), seen)
		assert.Equal(t, start.Add(time.Minute), fake.Now())
	})
}
