package object

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

func newObjects(t *testing.T) *Objects {
	t.Helper()
	a, err := arena.New(arena.Config{Min: 8192, Max: 32 * 1024 * 1024, Threshold: 16384, GrowIncrement: 8192})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return New(a, strtab.New(a))
}

func strKey(t *testing.T, o *Objects, s string) Key {
	t.Helper()
	v, err := o.s.NewInline([]byte(s))
	require.NoError(t, err)
	return StringKey(v)
}

func TestGetSetBasic(t *testing.T) {
	o := newObjects(t)
	obj, err := o.New(KindPlain)
	require.NoError(t, err)

	k := strKey(t, o, "foo")
	_, ok, err := o.Get(obj, k)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, o.Set(obj, k, value.Number(42), 0, true))
	v, ok, err := o.Get(obj, k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.Number(42), v)
}

func TestSetUpdatesExisting(t *testing.T) {
	o := newObjects(t)
	obj, _ := o.New(KindPlain)
	k := strKey(t, o, "x")
	require.NoError(t, o.Set(obj, k, value.Number(1), 0, true))
	require.NoError(t, o.Set(obj, k, value.Number(2), 0, true))
	v, _, _ := o.Get(obj, k)
	require.Equal(t, value.Number(2), v)
}

func TestNonconfigurableRejectsOverwrite(t *testing.T) {
	o := newObjects(t)
	obj, _ := o.New(KindPlain)
	k := strKey(t, o, "locked")
	require.NoError(t, o.Set(obj, k, value.Number(1), FlagConst|FlagNonconfig, true))
	err := o.Set(obj, k, value.Number(2), FlagConst|FlagNonconfig, true)
	require.ErrorIs(t, err, ErrNonconfigurable)
}

func TestDeleteRejectsNonconfigurable(t *testing.T) {
	o := newObjects(t)
	obj, _ := o.New(KindPlain)
	k := strKey(t, o, "locked")
	require.NoError(t, o.Set(obj, k, value.Number(1), FlagNonconfig, true))
	_, err := o.Delete(obj, k)
	require.ErrorIs(t, err, ErrNonconfigurable)
}

func TestDeleteRemovesProperty(t *testing.T) {
	o := newObjects(t)
	obj, _ := o.New(KindPlain)
	k := strKey(t, o, "gone")
	require.NoError(t, o.Set(obj, k, value.Number(1), 0, true))
	ok, err := o.Delete(obj, k)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, _ = o.Get(obj, k)
	require.False(t, ok)
}

func TestPrototypeChainWalk(t *testing.T) {
	o := newObjects(t)
	base, _ := o.New(KindPlain)
	derived, _ := o.New(KindPlain)

	k := strKey(t, o, "inherited")
	require.NoError(t, o.Set(base, k, value.Number(7), 0, true))
	require.NoError(t, o.SetProto(derived, base))

	v, ok, err := o.Get(derived, k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.Number(7), v)

	proto, ok := o.GetProto(derived)
	require.True(t, ok)
	require.Equal(t, base, proto)
}

func TestSetProtoRejectsCycle(t *testing.T) {
	o := newObjects(t)
	a, _ := o.New(KindPlain)
	b, _ := o.New(KindPlain)
	require.NoError(t, o.SetProto(b, a))
	err := o.SetProto(a, b)
	require.Error(t, err)
}

func TestIterSkipsInternalSlots(t *testing.T) {
	o := newObjects(t)
	obj, _ := o.New(KindPlain)
	require.NoError(t, o.Set(obj, SlotKey(SlotPrototype), value.Null, FlagSlot, true))
	k1 := strKey(t, o, "a")
	k2 := strKey(t, o, "b")
	require.NoError(t, o.Set(obj, k1, value.Number(1), 0, true))
	require.NoError(t, o.Set(obj, k2, value.Number(2), 0, true))

	kvs, err := o.Iter(obj)
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	require.Equal(t, value.Number(1), kvs[0].Value)
	require.Equal(t, value.Number(2), kvs[1].Value)
}

func TestHashBucketUpgradeStillFindsAllKeys(t *testing.T) {
	o := newObjects(t)
	obj, _ := o.New(KindPlain)
	const n = 32
	for i := 0; i < n; i++ {
		k := strKey(t, o, fmt.Sprintf("key%d", i))
		require.NoError(t, o.Set(obj, k, value.Number(float64(i)), 0, true))
	}
	require.Greater(t, len(o.index), 0, "chain should have been upgraded to a hash index")
	for i := 0; i < n; i++ {
		k := strKey(t, o, fmt.Sprintf("key%d", i))
		v, ok, err := o.Get(obj, k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, value.Number(float64(i)), v)
	}
}

func TestDenseArrayGetSet(t *testing.T) {
	o := newObjects(t)
	arr, err := o.New(KindArray)
	require.NoError(t, err)

	for i := uint64(0); i < 20; i++ {
		require.NoError(t, o.DenseSet(arr, i, value.Number(float64(i*2))))
	}
	require.Equal(t, uint64(20), o.DenseLen(arr))
	for i := uint64(0); i < 20; i++ {
		v, ok := o.DenseGet(arr, i)
		require.True(t, ok)
		require.Equal(t, value.Number(float64(i*2)), v)
	}
}

func TestDenseDeleteFallsBackToSparse(t *testing.T) {
	o := newObjects(t)
	arr, _ := o.New(KindArray)
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, o.DenseSet(arr, i, value.Number(float64(i))))
	}
	require.NoError(t, o.DenseDelete(arr, 2))

	_, hasDense := o.denseOffset(arr)
	require.False(t, hasDense)

	// surviving indices should now be reachable via the ordinary property chain
	k0 := strKey(t, o, "0")
	v, ok, err := o.Get(arr, k0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.Number(0), v)
}
