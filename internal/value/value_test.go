package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmediates(t *testing.T) {
	assert.False(t, IsNumber(Undefined))
	assert.False(t, IsNumber(Null))
	assert.False(t, IsNumber(True))
	assert.False(t, IsNumber(False))

	assert.Equal(t, TagUndefined, TagOf(Undefined))
	assert.Equal(t, TagNull, TagOf(Null))
	assert.Equal(t, TagBoolean, TagOf(True))
	assert.Equal(t, TagBoolean, TagOf(False))

	assert.True(t, Truthy(True))
	assert.False(t, Truthy(False))
	assert.False(t, Truthy(Undefined))
	assert.False(t, Truthy(Null))
}

func TestNumberRoundTrip(t *testing.T) {
	for _, f := range []float64{0, math.Copysign(0, -1), 1, -1, 3.14159, math.Inf(1), math.Inf(-1), 1e300, -1e-300} {
		v := Number(f)
		require.True(t, IsNumber(v), "%v", f)
		if math.Signbit(f) && f == 0 {
			assert.True(t, math.Signbit(Float(v)))
			continue
		}
		assert.Equal(t, f, Float(v))
	}
}

func TestNumberNaNCanonicalization(t *testing.T) {
	v1 := Number(math.NaN())
	v2 := Number(math.Float64frombits(0x7FF8_0000_0000_0001)) // a different NaN payload
	assert.True(t, IsNumber(v1))
	assert.True(t, IsNumber(v2))
	assert.True(t, math.IsNaN(Float(v1)))
	assert.True(t, math.IsNaN(Float(v2)))
}

func TestHeapRoundTrip(t *testing.T) {
	v := Heap(TagObject, 12345)
	require.False(t, IsNumber(v))
	assert.Equal(t, TagObject, TagOf(v))
	assert.Equal(t, uint64(12345), Offset(v))
	assert.True(t, IsHeap(v))

	v2 := Rebuild(v, 999)
	assert.Equal(t, TagObject, TagOf(v2))
	assert.Equal(t, uint64(999), Offset(v2))
}

func TestHeapRejectsNonHeapTag(t *testing.T) {
	assert.Panics(t, func() { Heap(TagBoolean, 0) })
}

func TestHeapRejectsOversizeOffset(t *testing.T) {
	assert.Panics(t, func() { Heap(TagObject, MaxOffset+1) })
	assert.NotPanics(t, func() { Heap(TagObject, MaxOffset) })
}

func TestTruthyNumbers(t *testing.T) {
	assert.False(t, Truthy(Number(0)))
	assert.False(t, Truthy(Number(math.NaN())))
	assert.True(t, Truthy(Number(1)))
	assert.True(t, Truthy(Number(-1)))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, "undefined", TypeOf(Undefined))
	assert.Equal(t, "object", TypeOf(Null))
	assert.Equal(t, "boolean", TypeOf(True))
	assert.Equal(t, "number", TypeOf(Number(1)))
	assert.Equal(t, "string", TypeOf(Heap(TagString, 0)))
	assert.Equal(t, "function", TypeOf(Heap(TagFunction, 0)))
	assert.Equal(t, "object", TypeOf(Heap(TagObject, 0)))
	assert.Equal(t, "bigint", TypeOf(Heap(TagBigInt, 0)))
}

func TestDistinctTagsDoNotCollide(t *testing.T) {
	seen := map[Value]Tag{}
	tags := []Tag{TagObject, TagProperty, TagString, TagFunction, TagCodeRef,
		TagNativeFunction, TagError, TagArray, TagPromise, TagTypedArray,
		TagBigInt, TagPropRef, TagSymbol, TagGenerator, TagFFI}
	for _, tg := range tags {
		if !isHeapTag(tg) {
			continue
		}
		v := Heap(tg, 42)
		if other, ok := seen[v]; ok {
			t.Fatalf("tag %v and %v collide on the same bit pattern", tg, other)
		}
		seen[v] = tg
	}
}
