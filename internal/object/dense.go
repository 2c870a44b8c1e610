package object

import (
	"github.com/theMackabu/ant/internal/value"
)

// Dense buffer layout: two-word header {capacity, length} followed by
// capacity value slots (spec §4.D "Array-indexed properties may be stored
// in a dense buffer").
const denseHeaderSize = 16

// EnsureDense installs an empty dense buffer on arr if it does not already
// have one, with the given initial capacity.
func (o *Objects) EnsureDense(arr value.Value, capacity uint64) error {
	if _, ok, _ := o.Get(arr, SlotKey(SlotDenseBuffer)); ok {
		return nil
	}
	off, err := o.allocDense(capacity)
	if err != nil {
		return err
	}
	if err := o.Set(arr, SlotKey(SlotDenseBuffer), rawOffsetValue(off), FlagSlot|FlagNonconfig, true); err != nil {
		return err
	}
	return o.Set(arr, SlotKey(SlotDenseLength), value.Number(0), FlagSlot, true)
}

// rawOffsetValue / rawOffset smuggle a plain arena offset through a
// value.Value-typed property slot for a structure (the dense buffer) that
// has no Value tag of its own; only this package interprets it, via these
// two functions, so the encoding never leaks to evaluator-visible code.
func rawOffsetValue(off uint64) value.Value { return value.Value(off) }
func rawOffset(v value.Value) uint64        { return uint64(v) }

func (o *Objects) allocDense(capacity uint64) (uint64, error) {
	total := denseHeaderSize + capacity*8
	off, err := o.a.Alloc(total)
	if err != nil {
		return 0, err
	}
	buf := o.a.Bytes(off, denseHeaderSize)
	writeU64(buf[0:8], capacity)
	writeU64(buf[8:16], 0)
	return off, nil
}

func (o *Objects) denseOffset(arr value.Value) (uint64, bool) {
	v, ok, _ := o.Get(arr, SlotKey(SlotDenseBuffer))
	if !ok {
		return 0, false
	}
	return rawOffset(v), true
}

// DenseLen returns the dense buffer's logical length, or 0 if arr has none.
func (o *Objects) DenseLen(arr value.Value) uint64 {
	off, ok := o.denseOffset(arr)
	if !ok {
		return 0
	}
	return readU64(o.a.Bytes(off+8, 8))
}

func (o *Objects) denseCap(off uint64) uint64 {
	return readU64(o.a.Bytes(off, 8))
}

// DenseGet returns the value at index i of arr's dense buffer, or
// (Undefined, false) if i is out of range or arr has no dense buffer.
func (o *Objects) DenseGet(arr value.Value, i uint64) (value.Value, bool) {
	off, ok := o.denseOffset(arr)
	if !ok || i >= o.DenseLen(arr) {
		return value.Undefined, false
	}
	slot := o.a.Bytes(off+denseHeaderSize+i*8, 8)
	return value.Value(readU64(slot)), true
}

// DenseSet writes val at index i, growing the dense buffer (doubling
// capacity) if needed. Extends length to i+1 if i is beyond the current
// length (sparse holes read back as Undefined, matching plain JS arrays).
func (o *Objects) DenseSet(arr value.Value, i uint64, val value.Value) error {
	if err := o.EnsureDense(arr, 8); err != nil {
		return err
	}
	off, _ := o.denseOffset(arr)
	cap_ := o.denseCap(off)
	if i >= cap_ {
		newCap := cap_ * 2
		if newCap == 0 {
			newCap = 8
		}
		for newCap <= i {
			newCap *= 2
		}
		newOff, err := o.allocDense(newCap)
		if err != nil {
			return err
		}
		oldLen := o.DenseLen(arr)
		copy(o.a.Bytes(newOff+denseHeaderSize, oldLen*8), o.a.Bytes(off+denseHeaderSize, oldLen*8))
		writeU64(o.a.Bytes(newOff+8, 8), oldLen)
		off = newOff
		if err := o.Set(arr, SlotKey(SlotDenseBuffer), rawOffsetValue(off), FlagSlot|FlagNonconfig, true); err != nil {
			return err
		}
	}
	writeU64(o.a.Bytes(off+denseHeaderSize+i*8, 8), uint64(val))
	if i >= o.DenseLen(arr) {
		writeU64(o.a.Bytes(off+8, 8), i+1)
	}
	return nil
}

// SetDenseLen truncates or extends arr's dense buffer's logical length
// without touching existing slot contents, growing the backing buffer if
// needed (used by Array.prototype.pop/shift/length= assignment, none of
// which fit DenseSet's "only grows on write past the end" contract).
func (o *Objects) SetDenseLen(arr value.Value, n uint64) error {
	if err := o.EnsureDense(arr, n); err != nil {
		return err
	}
	off, _ := o.denseOffset(arr)
	cap_ := o.denseCap(off)
	if n > cap_ {
		newCap := cap_
		if newCap == 0 {
			newCap = 8
		}
		for newCap <= n {
			newCap *= 2
		}
		newOff, err := o.allocDense(newCap)
		if err != nil {
			return err
		}
		oldLen := o.DenseLen(arr)
		copy(o.a.Bytes(newOff+denseHeaderSize, oldLen*8), o.a.Bytes(off+denseHeaderSize, oldLen*8))
		writeU64(o.a.Bytes(newOff+8, 8), oldLen)
		off = newOff
		if err := o.Set(arr, SlotKey(SlotDenseBuffer), rawOffsetValue(off), FlagSlot|FlagNonconfig, true); err != nil {
			return err
		}
	}
	writeU64(o.a.Bytes(off+8, 8), n)
	return nil
}

// DenseDelete implements the open question resolution from SPEC_FULL.md
// §"Open Questions — resolved" #1: deleting an ARRAY-flagged dense-buffer
// index falls back to sparse mode by copying the buffer's remaining live
// slots into the ordinary property chain, then clearing the dense buffer.
func (o *Objects) DenseDelete(arr value.Value, i uint64) error {
	_, ok := o.denseOffset(arr)
	if !ok {
		return nil
	}
	n := o.DenseLen(arr)
	for idx := uint64(0); idx < n; idx++ {
		if idx == i {
			continue
		}
		v, ok := o.DenseGet(arr, idx)
		if !ok {
			continue
		}
		key, err := o.indexKey(idx)
		if err != nil {
			return err
		}
		if err := o.Set(arr, key, v, FlagArray, true); err != nil {
			return err
		}
	}
	_, err := o.Delete(arr, SlotKey(SlotDenseBuffer))
	if err != nil {
		return err
	}
	_, err = o.Delete(arr, SlotKey(SlotDenseLength))
	return err
}

func (o *Objects) indexKey(i uint64) (Key, error) {
	s, err := o.s.NewInline([]byte(itoa(i)))
	if err != nil {
		return Key{}, err
	}
	return StringKey(s), nil
}

func itoa(i uint64) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
