// Package object implements the arena-backed object/property chain
// described in spec.md §4.D: a singly-linked list of properties per object,
// O(1) tail-pointer append, a hash-bucket acceleration index once a chain
// grows past a threshold, and a dense-buffer fast path for array-indexed
// properties.
package object

import (
	"encoding/binary"
	"fmt"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

// Kind distinguishes the object header's "type tag in low bits" (spec §3).
type Kind uint8

const (
	KindPlain Kind = iota
	KindArray
	KindFunction
	KindPromise
	KindGenerator
	KindError
	KindScope
)

const (
	objectHeaderSize = 24 // header + parent-scope offset + tail-property offset
	propertySize     = 24 // header + key + value
)

// Flag bits for a property's header, per spec §3 "Property": SLOT, CONST,
// ARRAY, NONCONFIG.
type Flag uint8

const (
	FlagSlot Flag = 1 << iota
	FlagConst
	FlagArray
	FlagNonconfig
)

// SlotID identifies an internal slot (a property keyed by a reserved
// integer id rather than a string), invisible to user code except through
// dedicated accessors (spec §3 "Invariants").
type SlotID uint32

const (
	SlotPrototype SlotID = iota
	SlotBoundThis
	SlotBoundArgs
	SlotDenseBuffer
	SlotDenseLength
	SlotCoroutineState
	SlotGetter
	SlotSetter
	SlotErrorKind
	SlotUserSlotBase SlotID = 1000 // embedder-defined slots start here
)

// Key is either a string Value (StringKey) or an internal SlotID (SlotKey).
type Key struct {
	isSlot bool
	slot   SlotID
	str    value.Value
}

func StringKey(s value.Value) Key { return Key{str: s} }
func SlotKey(id SlotID) Key       { return Key{isSlot: true, slot: id} }

func (k Key) IsSlot() bool { return k.isSlot }

// chainUpgradeThreshold is the property-chain length past which an object's
// lookups are accelerated by a hash index (spec §4.D).
const chainUpgradeThreshold = 8

// Objects is the object/property-chain store over a single Arena.
type Objects struct {
	a *arena.Arena
	s *strtab.Strings

	// index accelerates Get/Set/Delete for objects whose property chain has
	// grown past chainUpgradeThreshold. Keyed by object offset, then by a
	// cheap key hash, to a list of candidate property offsets (a bucket may
	// alias multiple keys; Get still verifies exact equality before use).
	// This is a derived structure, not arena-resident: it is rebuilt by
	// internal/gc after each compaction rather than being itself a root.
	index map[uint64]map[uint64][]uint64
}

func New(a *arena.Arena, s *strtab.Strings) *Objects {
	return &Objects{a: a, s: s, index: make(map[uint64]map[uint64][]uint64)}
}

func readU64(b []byte) uint64     { return binary.LittleEndian.Uint64(b) }
func writeU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func encodeHeader(kind Kind, firstProp uint64) uint64 {
	return uint64(kind) | firstProp<<8
}

func decodeHeader(h uint64) (kind Kind, firstProp uint64) {
	return Kind(h & 0xFF), h >> 8
}

// New allocates a fresh, empty object of the given kind with no prototype.
func (o *Objects) New(kind Kind) (value.Value, error) {
	off, err := o.a.Alloc(objectHeaderSize)
	if err != nil {
		return 0, err
	}
	buf := o.a.Bytes(off, objectHeaderSize)
	writeU64(buf[0:8], encodeHeader(kind, 0))
	writeU64(buf[8:16], 0)  // parent-scope offset
	writeU64(buf[16:24], 0) // tail-property offset

	tag := value.TagObject
	switch kind {
	case KindArray:
		tag = value.TagArray
	case KindFunction:
		tag = value.TagFunction
	case KindPromise:
		tag = value.TagPromise
	case KindGenerator:
		tag = value.TagGenerator
	case KindError:
		tag = value.TagError
	}
	return value.Heap(tag, off), nil
}

func (o *Objects) header(off uint64) uint64 { return readU64(o.a.Bytes(off, 8)) }

func (o *Objects) setHeader(off uint64, h uint64) { writeU64(o.a.Bytes(off, 8), h) }

func (o *Objects) Kind(obj value.Value) Kind {
	kind, _ := decodeHeader(o.header(value.Offset(obj)))
	return kind
}

func (o *Objects) firstProp(off uint64) uint64 {
	_, first := decodeHeader(o.header(off))
	return first
}

func (o *Objects) tailProp(off uint64) uint64 {
	return readU64(o.a.Bytes(off+16, 8))
}

func (o *Objects) setTailProp(off, tail uint64) {
	writeU64(o.a.Bytes(off+16, 8), tail)
}

// ParentScope / SetParentScope access the dedicated parent-scope slot used
// when this object is a lexical scope (internal/scope).
func (o *Objects) ParentScope(obj value.Value) (value.Value, bool) {
	off := value.Offset(obj)
	p := readU64(o.a.Bytes(off+8, 8))
	if p == 0 {
		return 0, false
	}
	return value.Heap(value.TagObject, p-1), true
}

func (o *Objects) SetParentScope(obj, parent value.Value) {
	off := value.Offset(obj)
	writeU64(o.a.Bytes(off+8, 8), value.Offset(parent)+1) // +1 so offset 0 still means "no parent"
}

// propHeader layout: bits 0-3 flags, bits 4-63 next-property offset.
func encodePropHeader(next uint64, flags Flag) uint64 {
	return uint64(flags) | next<<4
}

func decodePropHeader(h uint64) (next uint64, flags Flag) {
	return h >> 4, Flag(h & 0xF)
}

func (o *Objects) propAt(off uint64) (next uint64, flags Flag, key uint64, val value.Value) {
	buf := o.a.Bytes(off, propertySize)
	h := readU64(buf[0:8])
	next, flags = decodePropHeader(h)
	key = readU64(buf[8:16])
	val = value.Value(readU64(buf[16:24]))
	return
}

func (o *Objects) setPropValue(off uint64, val value.Value) {
	writeU64(o.a.Bytes(off+16, 8), uint64(val))
}

func (o *Objects) setPropNext(off, next uint64) {
	_, flags, _, _ := o.propAt(off)
	writeU64(o.a.Bytes(off, 8), encodePropHeader(next, flags))
}

// findOwn walks obj's own property chain looking for key, returning the
// property's offset (0 if absent).
func (o *Objects) findOwn(obj value.Value, k Key) (uint64, error) {
	off := value.Offset(obj)

	if bucket, ok := o.index[off]; ok {
		h, err := o.keyHash(k)
		if err != nil {
			return 0, err
		}
		for _, candidate := range bucket[h] {
			_, flags, propKey, _ := o.propAt(candidate)
			ok, err := o.matches(propKey, flags, k)
			if err != nil {
				return 0, err
			}
			if ok {
				return candidate, nil
			}
		}
		return 0, nil
	}

	cur := o.firstProp(off)
	for cur != 0 {
		next, flags, propKey, _ := o.propAt(cur)
		ok, err := o.matches(propKey, flags, k)
		if err != nil {
			return 0, err
		}
		if ok {
			return cur, nil
		}
		cur = next
	}
	return 0, nil
}

func (o *Objects) matches(propKey uint64, flags Flag, k Key) (bool, error) {
	if k.IsSlot() {
		return flags&FlagSlot != 0 && propKey == uint64(k.slot), nil
	}
	if flags&FlagSlot != 0 {
		return false, nil
	}
	return o.s.Equal(value.Value(propKey), k.str)
}

func (o *Objects) keyHash(k Key) (uint64, error) {
	if k.IsSlot() {
		return uint64(k.slot), nil
	}
	return o.s.Hash(k.str)
}

func (o *Objects) keyOffset(k Key) uint64 {
	if k.IsSlot() {
		return uint64(k.slot)
	}
	return uint64(k.str)
}

// chainLength counts obj's own properties, capped at chainUpgradeThreshold+1
// for efficiency (callers only care whether it exceeds the threshold).
func (o *Objects) chainLength(off uint64) int {
	n := 0
	cur := o.firstProp(off)
	for cur != 0 && n <= chainUpgradeThreshold {
		next, _, _, _ := o.propAt(cur)
		cur = next
		n++
	}
	return n
}

func (o *Objects) rebuildIndexFor(off uint64) error {
	buckets := make(map[uint64][]uint64)
	cur := o.firstProp(off)
	for cur != 0 {
		next, flags, propKey, _ := o.propAt(cur)
		var h uint64
		if flags&FlagSlot != 0 {
			h = propKey
		} else {
			var err error
			h, err = o.s.Hash(value.Value(propKey))
			if err != nil {
				return err
			}
		}
		buckets[h] = append(buckets[h], cur)
		cur = next
	}
	o.index[off] = buckets
	return nil
}

// ErrNonconfigurable / ErrNotExtensible model the descriptor-honoring
// failures of Set/Delete described in spec §4.D.
var (
	ErrNonconfigurable = fmt.Errorf("object: property is non-configurable")
	ErrNotExtensible   = fmt.Errorf("object: object is not extensible")
)

// Get walks own properties then the prototype chain (spec §4.D), returning
// (value, true) on success or (Undefined, false) if absent anywhere.
func (o *Objects) Get(obj value.Value, k Key) (value.Value, bool, error) {
	cur := obj
	for {
		propOff, err := o.findOwn(cur, k)
		if err != nil {
			return 0, false, err
		}
		if propOff != 0 {
			_, _, _, val := o.propAt(propOff)
			return val, true, nil
		}
		proto, ok := o.GetProto(cur)
		if !ok || proto == value.Null || proto == value.Undefined {
			return value.Undefined, false, nil
		}
		cur = proto
	}
}

// Set inserts or updates k on obj (O(1) amortized append via the tail
// pointer), honoring CONST/NONCONFIG. extensible gates whether a *new*
// property may be added (spec §4.D's EXTENSIBLE internal slot).
func (o *Objects) Set(obj value.Value, k Key, val value.Value, flags Flag, extensible bool) error {
	off := value.Offset(obj)
	propOff, err := o.findOwn(obj, k)
	if err != nil {
		return err
	}
	if propOff != 0 {
		_, existingFlags, _, _ := o.propAt(propOff)
		if existingFlags&FlagNonconfig != 0 && existingFlags&FlagConst != 0 {
			return ErrNonconfigurable
		}
		o.setPropValue(propOff, val)
		return nil
	}
	if !extensible {
		return ErrNotExtensible
	}

	newOff, err := o.a.Alloc(propertySize)
	if err != nil {
		return err
	}
	buf := o.a.Bytes(newOff, propertySize)
	writeU64(buf[0:8], encodePropHeader(0, flags))
	writeU64(buf[8:16], o.keyOffset(k))
	writeU64(buf[16:24], uint64(val))

	tail := o.tailProp(off)
	if tail == 0 {
		kind, _ := decodeHeader(o.header(off))
		o.setHeader(off, encodeHeader(kind, newOff))
	} else {
		o.setPropNext(tail, newOff)
	}
	o.setTailProp(off, newOff)

	if _, upgraded := o.index[off]; upgraded {
		return o.rebuildIndexFor(off)
	}
	if o.chainLength(off) > chainUpgradeThreshold {
		return o.rebuildIndexFor(off)
	}
	return nil
}

// Delete unlinks k from obj's own property chain. Returns false (no error)
// if the key was absent; returns ErrNonconfigurable if present but marked
// NONCONFIG, per spec §4.D.
func (o *Objects) Delete(obj value.Value, k Key) (bool, error) {
	off := value.Offset(obj)
	var prev uint64
	cur := o.firstProp(off)
	for cur != 0 {
		next, flags, propKey, _ := o.propAt(cur)
		match, err := o.matches(propKey, flags, k)
		if err != nil {
			return false, err
		}
		if match {
			if flags&FlagNonconfig != 0 {
				return false, ErrNonconfigurable
			}
			if prev == 0 {
				kind, _ := decodeHeader(o.header(off))
				o.setHeader(off, encodeHeader(kind, next))
			} else {
				o.setPropNext(prev, next)
			}
			if o.tailProp(off) == cur {
				o.setTailProp(off, prev)
			}
			delete(o.index, off) // rebuilt by the next Set once past threshold
			return true, nil
		}
		prev = cur
		cur = next
	}
	return false, nil
}

// KV is an own enumerable property, as yielded by Iter.
type KV struct {
	Key   value.Value // always a string key; internal slots are skipped
	Value value.Value
	Flags Flag
}

// Iter returns obj's own enumerable properties (those without FlagSlot) in
// insertion order (spec §4.D).
func (o *Objects) Iter(obj value.Value) ([]KV, error) {
	off := value.Offset(obj)
	var out []KV
	cur := o.firstProp(off)
	for cur != 0 {
		next, flags, propKey, val := o.propAt(cur)
		if flags&FlagSlot == 0 {
			out = append(out, KV{Key: value.Value(propKey), Value: val, Flags: flags})
		}
		cur = next
	}
	return out, nil
}

// RawKV is one property including internal slots, as yielded by IterAll;
// exactly one of Slot (when IsSlot) or Key is meaningful.
type RawKV struct {
	IsSlot bool
	Slot   SlotID
	Key    value.Value
	Value  value.Value
	Flags  Flag
}

// IterAll returns every own property in insertion order, internal slots
// included. Only the collector walks objects at this level; user-facing
// enumeration goes through Iter.
func (o *Objects) IterAll(obj value.Value) ([]RawKV, error) {
	off := value.Offset(obj)
	var out []RawKV
	cur := o.firstProp(off)
	for cur != 0 {
		next, flags, propKey, val := o.propAt(cur)
		kv := RawKV{Value: val, Flags: flags}
		if flags&FlagSlot != 0 {
			kv.IsSlot = true
			kv.Slot = SlotID(propKey)
		} else {
			kv.Key = value.Value(propKey)
		}
		out = append(out, kv)
		cur = next
	}
	return out, nil
}

// SetProto stores proto in the dedicated SlotPrototype internal slot,
// rejecting cycles (spec §4.D/§4.F).
func (o *Objects) SetProto(obj, proto value.Value) error {
	seen := map[uint64]bool{value.Offset(obj): true}
	cur := proto
	for cur != value.Null && cur != value.Undefined {
		co := value.Offset(cur)
		if seen[co] {
			return fmt.Errorf("object: prototype chain would contain a cycle")
		}
		seen[co] = true
		next, ok := o.GetProto(cur)
		if !ok {
			break
		}
		cur = next
	}
	return o.Set(obj, SlotKey(SlotPrototype), proto, FlagSlot, true)
}

// GetProto returns obj's prototype, or (Undefined, false) if never set.
func (o *Objects) GetProto(obj value.Value) (value.Value, bool) {
	propOff, err := o.findOwn(obj, SlotKey(SlotPrototype))
	if err != nil || propOff == 0 {
		return value.Undefined, false
	}
	_, _, _, val := o.propAt(propOff)
	return val, true
}
