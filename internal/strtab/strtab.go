// Package strtab implements the runtime's string store: inline UTF-8 byte
// runs and copy-on-concat rope nodes with lazy flattening, per spec.md §4.C,
// with the exact constants pinned by the original implementation
// (SPEC_FULL.md §12).
package strtab

import (
	"encoding/binary"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/value"
)

const (
	// ropeFlag/ropeDepthShift/ropeDepthMask/ropeMaxDepth/ropeFlattenThreshold
	// are carried unchanged from original/include/gc.h.
	ropeFlag            uint64 = 1 << 63
	ropeDepthShift             = 56
	ropeDepthMask       uint64 = 0x7F
	ropeMaxDepth               = 64
	ropeFlattenThresh          = 32 * 1024
	smallStringThresh          = 32 // spec §4.C "small string threshold (e.g., 32 bytes)"
	headerSize                 = 8
	ropeNodeSize               = headerSize + 3*8 // header + left + right + cached
	ropeLengthMask      uint64 = (1 << 56) - 1     // bits 0-55: cached flattened length
)

// Strings is the string-store view over a single Arena.
type Strings struct {
	a *arena.Arena
}

func New(a *arena.Arena) *Strings {
	return &Strings{a: a}
}

func readU64(b []byte) uint64  { return binary.LittleEndian.Uint64(b) }
func writeU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func isRopeHeader(h uint64) bool { return h&ropeFlag != 0 }

func ropeDepth(h uint64) int { return int((h >> ropeDepthShift) & ropeDepthMask) }

// New inline allocates a fresh inline string node holding data verbatim.
func (s *Strings) NewInline(data []byte) (value.Value, error) {
	total := headerSize + uint64(len(data))
	off, err := s.a.Alloc(total)
	if err != nil {
		return 0, err
	}
	buf := s.a.Bytes(off, total)
	writeU64(buf[:8], uint64(len(data))<<4)
	copy(buf[8:], data)
	return value.Heap(value.TagString, off), nil
}

func (s *Strings) header(off uint64) uint64 {
	return readU64(s.a.Bytes(off, 8))
}

// depthOf returns the rope depth of v (0 for an inline string).
func (s *Strings) depthOf(v value.Value) int {
	h := s.header(value.Offset(v))
	if !isRopeHeader(h) {
		return 0
	}
	return ropeDepth(h)
}

// byteLen returns the flattened byte length of v without necessarily
// flattening it (rope nodes cache it in the low 56 bits of their header).
func (s *Strings) byteLen(v value.Value) uint64 {
	h := s.header(value.Offset(v))
	if !isRopeHeader(h) {
		return h >> 4
	}
	return h & ropeLengthMask
}

// ropeChildren reads the left/right/cached words of a rope node.
func (s *Strings) ropeChildren(off uint64) (left, right, cached value.Value) {
	buf := s.a.Bytes(off+headerSize, 24)
	return value.Value(readU64(buf[0:8])), value.Value(readU64(buf[8:16])), value.Value(readU64(buf[16:24]))
}

func (s *Strings) newRopeNode(left, right value.Value, depth int, totalLen uint64) (value.Value, error) {
	off, err := s.a.Alloc(ropeNodeSize)
	if err != nil {
		return 0, err
	}
	buf := s.a.Bytes(off, ropeNodeSize)
	header := ropeFlag | (uint64(depth)&ropeDepthMask)<<ropeDepthShift | (totalLen & ropeLengthMask)
	writeU64(buf[0:8], header)
	writeU64(buf[8:16], uint64(left))
	writeU64(buf[16:24], uint64(right))
	writeU64(buf[24:32], uint64(value.Undefined))
	return value.Heap(value.TagString, off), nil
}

// Concat implements spec §4.C's concatenation policy: short operands below
// smallStringThresh are copied into a fresh flat string; otherwise a rope
// node is built, flattening eagerly if depth or length limits are exceeded.
func (s *Strings) Concat(a, b value.Value) (value.Value, error) {
	aLen, bLen := s.byteLen(a), s.byteLen(b)
	if aLen+bLen <= smallStringThresh {
		buf := make([]byte, 0, aLen+bLen)
		ab, err := s.Bytes(a)
		if err != nil {
			return 0, err
		}
		bb, err := s.Bytes(b)
		if err != nil {
			return 0, err
		}
		buf = append(buf, ab...)
		buf = append(buf, bb...)
		return s.NewInline(buf)
	}

	depth := s.depthOf(a)
	if d := s.depthOf(b); d > depth {
		depth = d
	}
	depth++
	total := aLen + bLen

	node, err := s.newRopeNode(a, b, depth, total)
	if err != nil {
		return 0, err
	}
	if depth >= ropeMaxDepth || total >= ropeFlattenThresh {
		return s.Flatten(node)
	}
	return node, nil
}

// Flatten performs a DFS traversal of v, yielding its bytes into a fresh
// inline string, and (for rope inputs) memoizes the result in the node's
// cached slot to accelerate repeated reads.
func (s *Strings) Flatten(v value.Value) (value.Value, error) {
	off := value.Offset(v)
	h := s.header(off)
	if !isRopeHeader(h) {
		return v, nil
	}
	if _, _, cached := s.ropeChildren(off); cached != value.Undefined {
		return cached, nil
	}

	buf := make([]byte, 0, s.byteLen(v))
	buf, err := s.appendFlat(buf, v)
	if err != nil {
		return 0, err
	}
	flat, err := s.NewInline(buf)
	if err != nil {
		return 0, err
	}

	// memoize: overwrite the cached slot in place. Safe because the rope
	// node's other fields (header/left/right) are untouched.
	cacheBuf := s.a.Bytes(off+headerSize+16, 8)
	writeU64(cacheBuf, uint64(flat))
	return flat, nil
}

func (s *Strings) appendFlat(buf []byte, v value.Value) ([]byte, error) {
	off := value.Offset(v)
	h := s.header(off)
	if !isRopeHeader(h) {
		n := h >> 4
		buf = append(buf, s.a.Bytes(off+headerSize, n)...)
		return buf, nil
	}
	left, right, cached := s.ropeChildren(off)
	if cached != value.Undefined {
		b, err := s.Bytes(cached)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
	buf, err := s.appendFlat(buf, left)
	if err != nil {
		return nil, err
	}
	return s.appendFlat(buf, right)
}

// Bytes returns the flattened byte content of v, flattening transiently
// (without mutating the arena) when v is a rope.
func (s *Strings) Bytes(v value.Value) ([]byte, error) {
	off := value.Offset(v)
	h := s.header(off)
	if !isRopeHeader(h) {
		n := h >> 4
		return s.a.Bytes(off+headerSize, n), nil
	}
	return s.appendFlat(make([]byte, 0, s.byteLen(v)), v)
}

// Equal compares string content byte-for-byte.
func (s *Strings) Equal(a, b value.Value) (bool, error) {
	ab, err := s.Bytes(a)
	if err != nil {
		return false, err
	}
	bb, err := s.Bytes(b)
	if err != nil {
		return false, err
	}
	if len(ab) != len(bb) {
		return false, nil
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false, nil
		}
	}
	return true, nil
}

// Hash computes an FNV-1a hash of v's byte content, used by internal/object
// for its hash-bucket property-chain upgrade.
func (s *Strings) Hash(v value.Value) (uint64, error) {
	b, err := s.Bytes(v)
	if err != nil {
		return 0, err
	}
	return HashBytes(b), nil
}

// HashBytes computes the FNV-1a hash used for interned string keys.
func HashBytes(b []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}

// Len returns the UTF-16 code-unit length of v (surrogate pairs count as
// two), matching JS's String.prototype.length semantics (spec §4.C).
func (s *Strings) Len(v value.Value) (int, error) {
	b, err := s.Bytes(v)
	if err != nil {
		return 0, err
	}
	return UTF16Len(b), nil
}

// UTF16Len computes the UTF-16 code-unit count of UTF-8 encoded b.
func UTF16Len(b []byte) int {
	n := 0
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			i++
		case c&0xE0 == 0xC0:
			i += 2
		case c&0xF0 == 0xE0:
			i += 3
		case c&0xF8 == 0xF0:
			n++ // astral plane codepoint encodes as a UTF-16 surrogate pair
			i += 4
		default:
			i++
		}
		n++
	}
	return n
}
