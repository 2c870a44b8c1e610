package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

func newFixture(t *testing.T) (*Scopes, *strtab.Strings) {
	t.Helper()
	a, err := arena.New(arena.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	str := strtab.New(a)
	obj := object.New(a, str)
	return New(obj), str
}

func mustStr(t *testing.T, s *strtab.Strings, text string) value.Value {
	t.Helper()
	v, err := s.NewInline([]byte(text))
	require.NoError(t, err)
	return v
}

func TestDeclareAndResolveInnermostWins(t *testing.T) {
	sc, str := newFixture(t)
	global, err := sc.NewGlobal()
	require.NoError(t, err)
	child, err := sc.Push(global)
	require.NoError(t, err)

	x := mustStr(t, str, "x")
	require.NoError(t, sc.Declare(global, x, value.Number(1), false))
	require.NoError(t, sc.Declare(child, x, value.Number(2), false))

	_, v, err := sc.Resolve(child, x, true)
	require.NoError(t, err)
	require.Equal(t, 2.0, value.Float(v))

	_, v, err = sc.Resolve(global, x, true)
	require.NoError(t, err)
	require.Equal(t, 1.0, value.Float(v))
}

func TestResolveUnresolvedStrictVsNonStrict(t *testing.T) {
	sc, str := newFixture(t)
	global, err := sc.NewGlobal()
	require.NoError(t, err)
	missing := mustStr(t, str, "missing")

	_, _, err = sc.Resolve(global, missing, true)
	require.ErrorIs(t, err, ErrUnresolved)

	_, v, err := sc.Resolve(global, missing, false)
	require.NoError(t, err)
	require.Equal(t, value.Undefined, v)
}

func TestAssignNonStrictInstallsOnGlobal(t *testing.T) {
	sc, str := newFixture(t)
	global, err := sc.NewGlobal()
	require.NoError(t, err)
	child, err := sc.Push(global)
	require.NoError(t, err)

	y := mustStr(t, str, "y")
	require.NoError(t, sc.Assign(child, y, value.Number(7), false))

	_, v, err := sc.Resolve(global, y, true)
	require.NoError(t, err)
	require.Equal(t, 7.0, value.Float(v))
}

func TestAssignStrictUnresolvedFails(t *testing.T) {
	sc, str := newFixture(t)
	global, err := sc.NewGlobal()
	require.NoError(t, err)
	z := mustStr(t, str, "z")

	err = sc.Assign(global, z, value.Number(1), true)
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestForLetPerIterationBinding(t *testing.T) {
	sc, str := newFixture(t)
	global, err := sc.NewGlobal()
	require.NoError(t, err)
	x := mustStr(t, str, "x")

	var captured []value.Value
	for i := 0; i < 3; i++ {
		iter, err := sc.Push(global)
		require.NoError(t, err)
		require.NoError(t, sc.Declare(iter, x, value.Number(float64(i)), false))
		_, v, err := sc.Resolve(iter, x, true)
		require.NoError(t, err)
		captured = append(captured, v)
	}
	require.Equal(t, []float64{0, 1, 2}, []float64{value.Float(captured[0]), value.Float(captured[1]), value.Float(captured[2])})
}
