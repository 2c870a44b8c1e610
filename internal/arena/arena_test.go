package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Min:           4096,
		Max:           64 * 1024 * 1024,
		Threshold:     16384,
		GrowIncrement: 8192,
	}
}

func TestAllocBasic(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	off, err := a.Alloc(16)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)
	require.Equal(t, uint64(16), a.Brk())

	off2, err := a.Alloc(3)
	require.NoError(t, err)
	require.Equal(t, uint64(16), off2)
	require.Equal(t, uint64(24), a.Brk()) // 3 rounds up to 8-byte alignment
}

func TestAllocWritesAreZeroed(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	off, err := a.Alloc(64)
	require.NoError(t, err)
	b := a.Bytes(off, 64)
	for _, c := range b {
		require.Zero(t, c)
	}
	b[0] = 0xFF

	off2, err := a.Alloc(8)
	require.NoError(t, err)
	require.NotEqual(t, off, off2)
}

func TestGrowthCrossesThreshold(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	// drive committed size past the threshold to exercise the fixed
	// increment growth path as well as the doubling path below it.
	total := uint64(0)
	for total < 32*1024 {
		_, err := a.Alloc(1024)
		require.NoError(t, err)
		total += 1024
	}
	require.GreaterOrEqual(t, a.Committed(), total)
}

func TestAllocFailsBeyondMax(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Alloc(testConfig().Max + 1)
	require.Error(t, err)
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestShrinkAfterCompaction(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	// grow committed size well beyond what's live
	_, err = a.Alloc(32 * 1024)
	require.NoError(t, err)
	committedBefore := a.Committed()

	// simulate a GC compaction that collapsed everything to a tiny brk
	a.SetBrk(8)
	require.NoError(t, a.Shrink())
	require.LessOrEqual(t, a.Committed(), committedBefore)
	require.GreaterOrEqual(t, a.Committed(), a.Brk())
}

func TestCopyFromSetsBrk(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	src := make([]byte, 100)
	for i := range src {
		src[i] = byte(i)
	}
	require.NoError(t, a.CopyFrom(src))
	require.Equal(t, uint64(100), a.Brk())
	require.Equal(t, src, a.Bytes(0, 100))
}
