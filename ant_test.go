package ant

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestEvalNumberResult(t *testing.T) {
	rt := newRuntime(t)
	v, err := rt.Eval("1 + 2")
	require.NoError(t, err)
	require.True(t, rt.IsNumber(v))
	s, err := rt.ToString(v)
	require.NoError(t, err)
	require.Equal(t, "3", s)
}

func TestBuildersAndAccessors(t *testing.T) {
	rt := newRuntime(t)

	obj, err := rt.Object()
	require.NoError(t, err)
	name, err := rt.String("ant")
	require.NoError(t, err)
	require.NoError(t, rt.Set(obj, "name", name))
	require.NoError(t, rt.Set(obj, "count", rt.Number(3)))

	got, err := rt.Get(obj, "name")
	require.NoError(t, err)
	s, err := rt.ToString(got)
	require.NoError(t, err)
	require.Equal(t, "ant", s)

	missing, err := rt.Get(obj, "nope")
	require.NoError(t, err)
	require.Equal(t, Undefined, missing)

	it, err := rt.Properties(obj)
	require.NoError(t, err)
	var keys []string
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		k, err := rt.ToString(p.Key)
		require.NoError(t, err)
		keys = append(keys, k)
	}
	require.Equal(t, []string{"name", "count"}, keys)
}

func TestNativeFunction(t *testing.T) {
	rt := newRuntime(t)
	double := rt.Function(func(r *Runtime, this Value, args []Value) (Value, error) {
		if len(args) == 0 || !r.IsNumber(args[0]) {
			return Undefined, r.Throw(TypeError, "expected a number")
		}
		n, _ := r.ToNumber(args[0])
		return r.Number(n * 2), nil
	})
	require.NoError(t, rt.Set(rt.Global(), "double", double))

	v, err := rt.Eval("double(21)")
	require.NoError(t, err)
	n, err := rt.ToNumber(v)
	require.NoError(t, err)
	require.Equal(t, 42.0, n)

	_, err = rt.Eval("double('x')")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	require.Contains(t, se.Message, "TypeError")
}

func TestCallJSFunctionFromGo(t *testing.T) {
	rt := newRuntime(t)
	v, err := rt.Eval("function add(a, b) { return a + b; } add")
	require.NoError(t, err)
	require.True(t, rt.IsCallable(v))

	sum, err := rt.Call(v, Undefined, rt.Number(2), rt.Number(40))
	require.NoError(t, err)
	n, err := rt.ToNumber(sum)
	require.NoError(t, err)
	require.Equal(t, 42.0, n)
}

func TestPromiseFromGo(t *testing.T) {
	rt := newRuntime(t)
	p, err := rt.Promise()
	require.NoError(t, err)
	require.Equal(t, PromisePending, rt.StateOf(p))

	require.NoError(t, rt.Set(rt.Global(), "p", p))
	_, err = rt.Eval("let result = 0; p.then(v => { result = v; });")
	require.NoError(t, err)

	require.NoError(t, rt.ResolvePromise(p, rt.Number(7)))
	require.NoError(t, rt.RunEventLoop())

	require.Equal(t, PromiseFulfilled, rt.StateOf(p))
	v, err := rt.Eval("result")
	require.NoError(t, err)
	n, err := rt.ToNumber(v)
	require.NoError(t, err)
	require.Equal(t, 7.0, n)
}

func TestAsyncRoundTripThroughLoop(t *testing.T) {
	rt := newRuntime(t)
	v, err := rt.Eval("async function f(){ return await Promise.resolve(5); } f()")
	require.NoError(t, err)
	h := rt.Root(v)
	require.NoError(t, rt.RunEventLoop())
	v, ok := rt.Deref(h)
	require.True(t, ok)
	rt.Unroot(h)
	require.Equal(t, PromiseFulfilled, rt.StateOf(v))
	n, err := rt.ToNumber(rt.PromiseResult(v))
	require.NoError(t, err)
	require.Equal(t, 5.0, n)
}

func TestJSONRoundTrip(t *testing.T) {
	rt := newRuntime(t)
	v, err := rt.Eval(`({ name: 'ant', nums: [1, 2.5, -3], nested: { ok: true, none: null } })`)
	require.NoError(t, err)

	s, err := rt.Stringify(v)
	require.NoError(t, err)
	require.Equal(t, `{"name":"ant","nums":[1,2.5,-3],"nested":{"ok":true,"none":null}}`, s)

	back, err := rt.ParseJSON(s)
	require.NoError(t, err)
	s2, err := rt.Stringify(back)
	require.NoError(t, err)
	require.Equal(t, s, s2)
}

func TestStringifyCycleFails(t *testing.T) {
	rt := newRuntime(t)
	v, err := rt.Eval("let o = {}; o.self = o; o")
	require.NoError(t, err)
	_, err = rt.Stringify(v)
	require.Error(t, err)
}

func TestStringifySpecialNumbers(t *testing.T) {
	rt := newRuntime(t)
	v, err := rt.Eval("[0/0, 1/0, -1/0]")
	require.NoError(t, err)
	s, err := rt.Stringify(v)
	require.NoError(t, err)
	require.Equal(t, "[null,null,null]", s)
}

func TestGCKeepsEmbedderState(t *testing.T) {
	rt := newRuntime(t)
	v, err := rt.String("survives compaction")
	require.NoError(t, err)
	h := rt.Root(v)

	// Churn the heap, then force a collection.
	_, err = rt.Eval("let junk = ''; for (let i = 0; i < 1000; i = i + 1) { junk = 'x' + i; }")
	require.NoError(t, err)
	require.NoError(t, rt.GC())

	cur, ok := rt.Deref(h)
	require.True(t, ok)
	s, err := rt.ToString(cur)
	require.NoError(t, err)
	require.Equal(t, "survives compaction", s)
	rt.Unroot(h)
}

func TestScriptErrorFormatting(t *testing.T) {
	rt := newRuntime(t, WithFilename("app.js"))
	_, err := rt.Eval("function boom(){ throw new RangeError('too big'); } boom()")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	require.Contains(t, se.Stack, "RangeError: too big")
	require.Contains(t, se.Stack, "app.js")

	plain := FormatError(err, ColorNever)
	require.NotContains(t, plain, "\x1b[")
	colored := FormatError(err, ColorAlways)
	require.Contains(t, colored, "\x1b[31m")
}

func TestOptionsValidation(t *testing.T) {
	_, err := New(WithInitialMemory(64<<20), WithMaxMemory(32<<20))
	require.Error(t, err)

	_, err = New(WithInitialMemory(0))
	require.Error(t, err)
}

func TestStdoutRedirect(t *testing.T) {
	var buf bytes.Buffer
	rt := newRuntime(t, WithStdout(&buf))
	_, err := rt.Eval("console.log('redirected')")
	require.NoError(t, err)
	require.Equal(t, "redirected\n", buf.String())
}

func TestClosedRuntime(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	_, err = rt.Eval("1")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, rt.Close(), ErrClosed)
}

func TestScratchScopeIsolation(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.PushScope()
	require.NoError(t, err)
	_, err = rt.Eval("let scratch = 41; scratch + 1")
	require.NoError(t, err)
	require.NoError(t, rt.PopScope())

	// The binding lived in the scratch scope, not on the global object.
	v, err := rt.Eval("typeof scratch")
	require.NoError(t, err)
	s, err := rt.ToString(v)
	require.NoError(t, err)
	require.Equal(t, "undefined", s)
}

func TestStatsReporting(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.Eval("let data = [1,2,3]")
	require.NoError(t, err)
	st := rt.Stats()
	require.Greater(t, st.Brk, uint64(0))
	require.GreaterOrEqual(t, st.Committed, st.Brk)
	require.Equal(t, st.Brk, rt.Brk())
}
