package promise

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

type fakeMicrotasker struct{ queue []func() }

func (f *fakeMicrotasker) QueueMicrotask(fn func()) { f.queue = append(f.queue, fn) }

func (f *fakeMicrotasker) drain() {
	for len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		next()
	}
}

type fakeInvoker struct {
	call func(fn, this value.Value, args []value.Value) (value.Value, error)
}

func (f *fakeInvoker) Call(fn, this value.Value, args []value.Value) (value.Value, error) {
	return f.call(fn, this, args)
}

func fixture(t *testing.T) (*Promises, *fakeMicrotasker) {
	t.Helper()
	a, err := arena.New(arena.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	str := strtab.New(a)
	obj := object.New(a, str)
	mt := &fakeMicrotasker{}
	inv := &fakeInvoker{call: func(fn, this value.Value, args []value.Value) (value.Value, error) {
		return value.Number(value.Float(args[0]) * 2), nil
	}}
	return New(obj, mt, inv), mt
}

func TestResolveThenFulfilled(t *testing.T) {
	p, mt := fixture(t)
	prom, err := p.New()
	require.NoError(t, err)

	require.NoError(t, p.Then(prom, value.Number(1) /* stand-in handler */, value.Undefined, 0))
	require.NoError(t, p.Resolve(prom, value.Number(21)))
	mt.drain()

	require.Equal(t, Fulfilled, p.StateOf(prom))
	require.Equal(t, 21.0, value.Float(p.ValueOf(prom)))
}

func TestResolveSettlesOnlyOnce(t *testing.T) {
	p, _ := fixture(t)
	prom, err := p.New()
	require.NoError(t, err)

	require.NoError(t, p.Resolve(prom, value.Number(1)))
	require.NoError(t, p.Resolve(prom, value.Number(2)))
	require.NoError(t, p.Reject(prom, value.Number(3)))

	require.Equal(t, Fulfilled, p.StateOf(prom))
	require.Equal(t, 1.0, value.Float(p.ValueOf(prom)))
}

func TestThenHandlerDoublesValue(t *testing.T) {
	p, mt := fixture(t)
	prom, err := p.New()
	require.NoError(t, err)

	result, err := p.New()
	require.NoError(t, err)
	require.NoError(t, p.Then(prom, value.Number(1) /* handler marker, invoked via fakeInvoker */, value.Undefined, result))
	require.NoError(t, p.Resolve(prom, value.Number(5)))
	mt.drain()

	require.Equal(t, Fulfilled, p.StateOf(result))
	require.Equal(t, 10.0, value.Float(p.ValueOf(result)))
}

func TestRejectPropagatesWithoutHandler(t *testing.T) {
	p, mt := fixture(t)
	prom, err := p.New()
	require.NoError(t, err)
	result, err := p.New()
	require.NoError(t, err)
	require.NoError(t, p.Then(prom, value.Undefined, value.Undefined, result))
	require.NoError(t, p.Reject(prom, value.Number(42)))
	mt.drain()

	require.Equal(t, Rejected, p.StateOf(result))
	require.Equal(t, 42.0, value.Float(p.ValueOf(result)))
}

func TestUnhandledRejectionFires(t *testing.T) {
	p, mt := fixture(t)
	var reason value.Value
	fired := false
	p.OnUnhandledRejection(func(r value.Value) { fired = true; reason = r })

	prom, err := p.New()
	require.NoError(t, err)
	require.NoError(t, p.Reject(prom, value.Number(9)))
	mt.drain()

	require.True(t, fired)
	require.Equal(t, 9.0, value.Float(reason))
}
