package coro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/value"
)

func TestYieldThenResumeDeliversValue(t *testing.T) {
	c := New(func(y *Yielder) (value.Value, error) {
		first, err := y.Yield(value.Number(1))
		if err != nil {
			return value.Undefined, err
		}
		return value.Number(value.Float(first) + 1), nil
	}, nil)

	c.Resume(value.Undefined, false)
	require.False(t, c.IsDone)
	require.Equal(t, 1.0, value.Float(c.YieldValue))

	c.Resume(value.Number(41), false)
	require.True(t, c.IsDone)
	require.False(t, c.IsError)
	require.Equal(t, 42.0, value.Float(c.Result))
}

func TestAwaitSuspendsWithPromise(t *testing.T) {
	marker := value.Number(99)
	c := New(func(y *Yielder) (value.Value, error) {
		v, err := y.Await(marker)
		if err != nil {
			return value.Undefined, err
		}
		return v, nil
	}, nil)

	c.Resume(value.Undefined, false)
	require.False(t, c.IsDone)
	require.Equal(t, marker, c.AwaitedPromise)

	c.Resume(value.Number(7), false)
	require.True(t, c.IsDone)
	require.Equal(t, 7.0, value.Float(c.Result))
}

func TestAwaitRejectionPropagatesAsError(t *testing.T) {
	c := New(func(y *Yielder) (value.Value, error) {
		_, err := y.Await(value.Number(1))
		return value.Undefined, err
	}, nil)

	c.Resume(value.Undefined, false)
	c.Resume(value.Number(13), true)

	require.True(t, c.IsDone)
	require.True(t, c.IsError)
	require.Equal(t, 13.0, value.Float(c.Result))
}

func TestReadyQueueFIFO(t *testing.T) {
	var r Ready
	a := New(func(y *Yielder) (value.Value, error) { return value.Undefined, nil }, nil)
	b := New(func(y *Yielder) (value.Value, error) { return value.Undefined, nil }, nil)
	r.Enqueue(a)
	r.Enqueue(b)
	r.Enqueue(a) // duplicate enqueue of an already-queued coroutine is a no-op

	first, ok := r.Dequeue()
	require.True(t, ok)
	require.Same(t, a, first)

	second, ok := r.Dequeue()
	require.True(t, ok)
	require.Same(t, b, second)

	_, ok = r.Dequeue()
	require.False(t, ok)
}
