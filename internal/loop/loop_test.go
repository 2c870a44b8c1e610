package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/coro"
	"github.com/theMackabu/ant/internal/value"
)

func TestMicrotasksDrainBeforeTimer(t *testing.T) {
	l := New(nil)
	var order []string

	l.SetTimeout(0, func() { order = append(order, "timer") })
	l.QueueMicrotask(func() { order = append(order, "micro") })

	time.Sleep(time.Millisecond)
	require.NoError(t, l.Tick(func(*coro.Coroutine) {}))
	require.Equal(t, []string{"micro", "timer"}, order)
}

func TestMicrotaskQueuedDuringMicrotaskAlsoDrains(t *testing.T) {
	l := New(nil)
	var order []string
	l.QueueMicrotask(func() {
		order = append(order, "a")
		l.QueueMicrotask(func() { order = append(order, "b") })
	})
	l.DrainMicrotasks()
	require.Equal(t, []string{"a", "b"}, order)
}

func TestClearTimeoutPreventsFiring(t *testing.T) {
	l := New(nil)
	fired := false
	id := l.SetTimeout(0, func() { fired = true })
	l.ClearTimeout(id)
	time.Sleep(time.Millisecond)
	l.DrainExpiredTimers(time.Now())
	require.False(t, fired)
}

func TestIntervalReschedules(t *testing.T) {
	l := New(nil)
	count := 0
	var id uint64
	id = l.SetInterval(0, func() {
		count++
		if count >= 3 {
			l.ClearTimeout(id)
		}
	})
	for i := 0; i < 3; i++ {
		time.Sleep(time.Millisecond)
		l.DrainExpiredTimers(time.Now())
	}
	require.Equal(t, 3, count)
}

func TestPendingReflectsOutstandingWork(t *testing.T) {
	l := New(nil)
	require.False(t, l.Pending())
	l.QueueMicrotask(func() {})
	require.True(t, l.Pending())
}

func TestDrainReadyCoroutinesResumesFIFO(t *testing.T) {
	l := New(nil)
	var order []string
	a := coro.New(func(y *coro.Yielder) (value.Value, error) { return value.Number(1), nil }, nil)
	b := coro.New(func(y *coro.Yielder) (value.Value, error) { return value.Number(2), nil }, nil)
	l.Ready().Enqueue(a)
	l.Ready().Enqueue(b)

	err := l.DrainReadyCoroutines(func(c *coro.Coroutine) {
		c.Resume(value.Undefined, false)
		if c == a {
			order = append(order, "a")
		} else {
			order = append(order, "b")
		}
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, order)
	require.True(t, a.IsDone)
	require.True(t, b.IsDone)
}
