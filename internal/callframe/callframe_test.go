package callframe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/scope"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

func fixture(t *testing.T) (*Frames, *object.Objects, *strtab.Strings, value.Value) {
	t.Helper()
	a, err := arena.New(arena.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	str := strtab.New(a)
	obj := object.New(a, str)
	scopes := scope.New(obj)
	global, err := scopes.NewGlobal()
	require.NoError(t, err)
	frames, err := New(scopes, str)
	require.NoError(t, err)
	return frames, obj, str, global
}

func TestPushBindsParamsRestAndArguments(t *testing.T) {
	f, obj, str, global := fixture(t)

	pName, err := str.NewInline([]byte("a"))
	require.NoError(t, err)
	restName, err := str.NewInline([]byte("rest"))
	require.NoError(t, err)

	fn := value.Number(0) // stand-in function value for this test
	frame, err := f.Push(obj, global, "f", Position{File: "t.js", Line: 1, Column: 1},
		fn, value.Undefined, value.Undefined, value.Undefined,
		[]value.Value{pName}, restName, true,
		[]value.Value{value.Number(1), value.Number(2), value.Number(3)})
	require.NoError(t, err)
	require.Equal(t, frame.Scope, f.Scope)

	_, v, err := (scope.New(obj)).Resolve(f.Scope, pName, true)
	require.NoError(t, err)
	require.Equal(t, 1.0, value.Float(v))

	_, restVal, err := (scope.New(obj)).Resolve(f.Scope, restName, true)
	require.NoError(t, err)
	require.Equal(t, uint64(2), obj.DenseLen(restVal))

	f.Pop(frame)
	require.Equal(t, global, f.Scope)
}

func TestPushStackOverflow(t *testing.T) {
	f, obj, _, global := fixture(t)
	for i := 0; i < MaxDepth; i++ {
		_, err := f.Push(obj, global, "f", Position{}, value.Undefined, value.Undefined, value.Undefined, value.Undefined, nil, value.Undefined, false, nil)
		require.NoError(t, err)
	}
	_, err := f.Push(obj, global, "f", Position{}, value.Undefined, value.Undefined, value.Undefined, value.Undefined, nil, value.Undefined, false, nil)
	require.ErrorIs(t, err, ErrStackOverflow)
}
