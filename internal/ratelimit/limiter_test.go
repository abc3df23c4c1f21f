package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically: sleeping advances time.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.current = c.current.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := NewLimiter()
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestWaitIfNeeded(t *testing.T) {
	t.Run("FirstFiveRequestsDoNotBlock", func(t *testing.T) {
		l, clock := newTestLimiter()

		for i := 0; i < 5; i++ {
			l.WaitIfNeeded()
		}

		assert.Empty(t, clock.slept)
		assert.Equal(t, 5, l.Stats().LastSecond)
	})

	t.Run("SixthRequestInSameSecondSleeps", func(t *testing.T) {
		l, clock := newTestLimiter()

		for i := 0; i < 6; i++ {
			l.WaitIfNeeded()
		}

		require.Len(t, clock.slept, 1)
		// oldest entry ages out after the full second window, plus buffer
		assert.Equal(t, time.Second+100*time.Millisecond, clock.slept[0])
	})

	t.Run("PerSecondWindowSlides", func(t *testing.T) {
		l, clock := newTestLimiter()

		for i := 0; i < 5; i++ {
			l.WaitIfNeeded()
		}
		clock.current = clock.current.Add(1100 * time.Millisecond)

		l.WaitIfNeeded()
		assert.Empty(t, clock.slept)
	})

	t.Run("MinuteCapEnforced", func(t *testing.T) {
		l, clock := newTestLimiter()

		// 40 requests spaced 1.2s apart never trip the second window
		for i := 0; i < 40; i++ {
			l.WaitIfNeeded()
			clock.current = clock.current.Add(1200 * time.Millisecond)
		}
		require.Empty(t, clock.slept)

		// 41st arrives 48s after the first; the first must age out
		l.WaitIfNeeded()
		require.NotEmpty(t, clock.slept)

		stats := l.Stats()
		assert.LessOrEqual(t, stats.LastMinute, 40)
	})

	t.Run("NeverMoreThanFivePerSecondWindow", func(t *testing.T) {
		l, clock := newTestLimiter()

		var stamps []time.Time
		for i := 0; i < 20; i++ {
			l.WaitIfNeeded()
			stamps = append(stamps, clock.current)
		}

		for i := range stamps {
			count := 0
			for j := i; j < len(stamps); j++ {
				if stamps[j].Sub(stamps[i]) < time.Second {
					count++
				}
			}
			assert.LessOrEqual(t, count, 5, "window starting at stamp %d", i)
		}
	})
}

func TestStats(t *testing.T) {
	t.Run("EmptyLimiter", func(t *testing.T) {
		l, _ := newTestLimiter()
		assert.Equal(t, Stats{}, l.Stats())
	})

	t.Run("CountsDecayAfterAMinute", func(t *testing.T) {
		l, clock := newTestLimiter()

		for i := 0; i < 3; i++ {
			l.WaitIfNeeded()
		}
		clock.current = clock.current.Add(61 * time.Second)

		assert.Equal(t, Stats{}, l.Stats())
	})
}
