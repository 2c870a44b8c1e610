package strtab

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/arena"
)

func newStrings(t *testing.T) *Strings {
	t.Helper()
	a, err := arena.New(arena.Config{Min: 4096, Max: 8 * 1024 * 1024, Threshold: 8192, GrowIncrement: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return New(a)
}

func TestInlineRoundTrip(t *testing.T) {
	s := newStrings(t)
	v, err := s.NewInline([]byte("hello"))
	require.NoError(t, err)
	b, err := s.Bytes(v)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
}

func TestConcatSmallStringsFlat(t *testing.T) {
	s := newStrings(t)
	a, err := s.NewInline([]byte("a"))
	require.NoError(t, err)
	b, err := s.NewInline([]byte("b"))
	require.NoError(t, err)

	ab, err := s.Concat(a, b)
	require.NoError(t, err)
	content, err := s.Bytes(ab)
	require.NoError(t, err)
	require.Equal(t, "ab", string(content))
	require.Equal(t, 0, s.depthOf(ab), "small concatenations should produce a flat string, not a rope")
}

func TestConcatLargeBuildsRopeAndFlattensCorrectly(t *testing.T) {
	s := newStrings(t)
	left := strings.Repeat("x", 20)
	right := strings.Repeat("y", 20)
	a, err := s.NewInline([]byte(left))
	require.NoError(t, err)
	b, err := s.NewInline([]byte(right))
	require.NoError(t, err)

	node, err := s.Concat(a, b)
	require.NoError(t, err)
	require.Equal(t, 1, s.depthOf(node))

	flat, err := s.Flatten(node)
	require.NoError(t, err)
	content, err := s.Bytes(flat)
	require.NoError(t, err)
	require.Equal(t, left+right, string(content))
}

func TestRopeDepthCapForcesFlatten(t *testing.T) {
	s := newStrings(t)
	cur, err := s.NewInline([]byte(strings.Repeat("z", 40)))
	require.NoError(t, err)

	for i := 0; i < ropeMaxDepth+2; i++ {
		leaf, err := s.NewInline([]byte(strings.Repeat("a", 40)))
		require.NoError(t, err)
		cur, err = s.Concat(cur, leaf)
		require.NoError(t, err)
		require.Less(t, s.depthOf(cur), ropeMaxDepth, "depth must never reach ropeMaxDepth: a depth-exceeding concat flattens eagerly")
	}
}

func TestEqual(t *testing.T) {
	s := newStrings(t)
	a, _ := s.NewInline([]byte("same"))
	b, _ := s.NewInline([]byte("same"))
	c, _ := s.NewInline([]byte("diff"))
	eq, err := s.Equal(a, b)
	require.NoError(t, err)
	require.True(t, eq)
	eq, err = s.Equal(a, c)
	require.NoError(t, err)
	require.False(t, eq)
}

func TestUTF16Len(t *testing.T) {
	require.Equal(t, 0, UTF16Len(nil))
	require.Equal(t, 5, UTF16Len([]byte("hello")))
	require.Equal(t, 2, UTF16Len([]byte("\xF0\x9F\x98\x80"))) // single astral emoji -> surrogate pair
}

func TestFormatFloat(t *testing.T) {
	require.Equal(t, "3", FormatFloat(3))
	require.Equal(t, "NaN", FormatFloat(math.NaN()))
	require.Equal(t, "Infinity", FormatFloat(math.Inf(1)))
	require.Equal(t, "-Infinity", FormatFloat(math.Inf(-1)))
}

func TestBase64RoundTrip(t *testing.T) {
	data := []byte{0, 1, 2, 255, 254, 10, 13, 'h', 'i'}
	enc := EncodeBase64(data)
	dec, err := DecodeBase64(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}
