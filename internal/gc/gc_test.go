package gc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

func newState(t *testing.T) State {
	t.Helper()
	cfg := arena.Config{Min: 8192, Max: 64 * 1024 * 1024, Threshold: 16384, GrowIncrement: 8192}
	a, err := arena.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	s := strtab.New(a)
	return State{Arena: a, Objects: object.New(a, s), Strings: s}
}

func testCfg() arena.Config {
	return arena.Config{Min: 8192, Max: 64 * 1024 * 1024, Threshold: 16384, GrowIncrement: 8192}
}

// fakeWeak implements WeakTable for exercising Prune.
type fakeWeak struct {
	entries []uint64 // old offsets this table references
	alive   []uint64 // survives with these new offsets, set by Prune
	died    int
}

func (w *fakeWeak) Prune(lookup func(uint64) (uint64, bool)) {
	w.alive = w.alive[:0]
	for _, off := range w.entries {
		if newOff, ok := lookup(off); ok {
			w.alive = append(w.alive, newOff)
		} else {
			w.died++
		}
	}
}

func TestCollectKeepsReachableObjectAndDropsGarbage(t *testing.T) {
	st := newState(t)

	root, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)
	garbage, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)
	_ = garbage

	key, err := st.Strings.NewInline([]byte("name"))
	require.NoError(t, err)
	val, err := st.Strings.NewInline([]byte("alice"))
	require.NoError(t, err)
	require.NoError(t, st.Objects.Set(root, object.StringKey(key), val, 0, true))

	brkBefore := st.Arena.Brk()

	rootVal := root
	g := New(testCfg(), 0)
	newSt, reclaimed, err := g.Collect(st, []RootProvider{
		func() []*value.Value { return []*value.Value{&rootVal} },
	}, nil)
	require.NoError(t, err)
	require.Greater(t, reclaimed, uint64(0), "garbage object should have been reclaimed")
	require.Less(t, newSt.Arena.Brk(), brkBefore)

	nk, err := newSt.Strings.NewInline([]byte("name"))
	require.NoError(t, err)
	got, ok, err := newSt.Objects.Get(rootVal, object.StringKey(nk))
	require.NoError(t, err)
	require.True(t, ok)
	gotBytes, err := newSt.Strings.Bytes(got)
	require.NoError(t, err)
	require.Equal(t, "alice", string(gotBytes))
}

func TestCollectPreservesPrototypeChainAndFlags(t *testing.T) {
	st := newState(t)

	base, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)
	derived, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)
	require.NoError(t, st.Objects.SetProto(derived, base))

	k, err := st.Strings.NewInline([]byte("frozen"))
	require.NoError(t, err)
	require.NoError(t, st.Objects.Set(base, object.StringKey(k), value.Number(1), object.FlagConst|object.FlagNonconfig, true))

	rootVal := derived
	g := New(testCfg(), 0)
	newSt, _, err := g.Collect(st, []RootProvider{
		func() []*value.Value { return []*value.Value{&rootVal} },
	}, nil)
	require.NoError(t, err)

	proto, ok := newSt.Objects.GetProto(rootVal)
	require.True(t, ok)

	nk, err := newSt.Strings.NewInline([]byte("frozen"))
	require.NoError(t, err)
	v, ok, err := newSt.Objects.Get(proto, object.StringKey(nk))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.Number(1), v)

	err = newSt.Objects.Set(proto, object.StringKey(nk), value.Number(2), object.FlagConst|object.FlagNonconfig, true)
	require.ErrorIs(t, err, object.ErrNonconfigurable)
}

func TestCollectHandlesCyclicGraph(t *testing.T) {
	st := newState(t)

	a, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)
	b, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)

	ka, err := st.Strings.NewInline([]byte("b"))
	require.NoError(t, err)
	kb, err := st.Strings.NewInline([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, st.Objects.Set(a, object.StringKey(ka), b, 0, true))
	require.NoError(t, st.Objects.Set(b, object.StringKey(kb), a, 0, true))

	rootVal := a
	g := New(testCfg(), 0)
	newSt, _, err := g.Collect(st, []RootProvider{
		func() []*value.Value { return []*value.Value{&rootVal} },
	}, nil)
	require.NoError(t, err)

	nka, err := newSt.Strings.NewInline([]byte("b"))
	require.NoError(t, err)
	nb, ok, err := newSt.Objects.Get(rootVal, object.StringKey(nka))
	require.NoError(t, err)
	require.True(t, ok)

	nkb, err := newSt.Strings.NewInline([]byte("a"))
	require.NoError(t, err)
	na, ok, err := newSt.Objects.Get(nb, object.StringKey(nkb))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rootVal, na, "cycle must resolve back to the same relocated object")
}

func TestCollectPreservesDenseArray(t *testing.T) {
	st := newState(t)
	arr, err := st.Objects.New(object.KindArray)
	require.NoError(t, err)
	for i := uint64(0); i < 10; i++ {
		require.NoError(t, st.Objects.DenseSet(arr, i, value.Number(float64(i*3))))
	}

	rootVal := arr
	g := New(testCfg(), 0)
	newSt, _, err := g.Collect(st, []RootProvider{
		func() []*value.Value { return []*value.Value{&rootVal} },
	}, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(10), newSt.Objects.DenseLen(rootVal))
	for i := uint64(0); i < 10; i++ {
		v, ok := newSt.Objects.DenseGet(rootVal, i)
		require.True(t, ok)
		require.Equal(t, value.Number(float64(i*3)), v)
	}
}

func TestCollectPrunesWeakTableEntriesForDeadObjects(t *testing.T) {
	st := newState(t)
	alive, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)
	dead, err := st.Objects.New(object.KindPlain)
	require.NoError(t, err)

	weak := &fakeWeak{entries: []uint64{value.Offset(alive), value.Offset(dead)}}

	rootVal := alive
	g := New(testCfg(), 0)
	_, _, err = g.Collect(st, []RootProvider{
		func() []*value.Value { return []*value.Value{&rootVal} },
	}, []WeakTable{weak})
	require.NoError(t, err)

	require.Equal(t, 1, weak.died)
	require.Len(t, weak.alive, 1)
}

func TestShouldCollectHonorsThresholdAndOverride(t *testing.T) {
	g := New(testCfg(), 0)
	require.False(t, g.ShouldCollect(100*1024*1024))

	g.AllocSinceGC = 3 * 1024 * 1024
	require.True(t, g.ShouldCollect(4*1024*1024)) // alloc > brk/4 overrides cooldown
}
