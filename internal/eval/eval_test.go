package eval

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/promise"
	"github.com/theMackabu/ant/internal/value"
)

func newEval(t *testing.T) *Evaluator {
	t.Helper()
	e, err := New(arena.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { e.Arena.Close() })
	return e
}

func evalNum(t *testing.T, e *Evaluator, src string) float64 {
	t.Helper()
	v, err := e.Eval(src)
	require.NoError(t, err)
	require.True(t, value.IsNumber(v), "expected a number from %q, got tag %v", src, value.TagOf(v))
	return value.Float(v)
}

func evalStr(t *testing.T, e *Evaluator, src string) string {
	t.Helper()
	v, err := e.Eval(src)
	require.NoError(t, err)
	s, err := e.ToString(v)
	require.NoError(t, err)
	return s
}

func TestEvalArithmetic(t *testing.T) {
	e := newEval(t)
	require.Equal(t, 3.0, evalNum(t, e, "1 + 2"))

	v, err := e.Eval("1 + 2")
	require.NoError(t, err)
	s, err := e.ToString(v)
	require.NoError(t, err)
	require.Equal(t, "3", s)
}

func TestEvalStringConcat(t *testing.T) {
	e := newEval(t)
	v, err := e.Eval("'a' + 'b'")
	require.NoError(t, err)
	require.Equal(t, value.TagString, value.TagOf(v))
	s, err := e.ToString(v)
	require.NoError(t, err)
	require.Equal(t, "ab", s)
	n, err := e.Strings.Len(v)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestEvalMapReduce(t *testing.T) {
	e := newEval(t)
	require.Equal(t, 14.0, evalNum(t, e,
		"let x = [1,2,3]; x.map(n => n*n).reduce((a,b)=>a+b, 0)"))
}

func TestEvalAsyncAwait(t *testing.T) {
	e := newEval(t)
	v, err := e.Eval("async function f(){ return await Promise.resolve(5); } f()")
	require.NoError(t, err)
	require.Equal(t, value.TagPromise, value.TagOf(v))

	pin := e.Root(v)
	require.NoError(t, e.RunEventLoop())
	v, ok := e.Deref(pin)
	require.True(t, ok)
	e.Unroot(pin)

	require.Equal(t, promise.Fulfilled, e.Promises.StateOf(v))
	res := e.Promises.ValueOf(v)
	require.True(t, value.IsNumber(res))
	require.Equal(t, 5.0, value.Float(res))
}

func TestEvalGenerator(t *testing.T) {
	e := newEval(t)
	v, err := e.Eval("function* g(){ yield 1; yield 2; } const it = g(); [it.next().value, it.next().value, it.next().done]")
	require.NoError(t, err)
	require.Equal(t, value.TagArray, value.TagOf(v))
	require.Equal(t, uint64(3), e.Objects.DenseLen(v))

	first, _ := e.Objects.DenseGet(v, 0)
	second, _ := e.Objects.DenseGet(v, 1)
	done, _ := e.Objects.DenseGet(v, 2)
	require.Equal(t, 1.0, value.Float(first))
	require.Equal(t, 2.0, value.Float(second))
	require.Equal(t, value.True, done)
}

func TestEvalGeneratorForOf(t *testing.T) {
	e := newEval(t)
	require.Equal(t, 6.0, evalNum(t, e,
		"function* g(){ yield 1; yield 2; yield 3; } let sum = 0; for (const n of g()) { sum += n; } sum"))
}

func TestGCAfterStringChurn(t *testing.T) {
	e := newEval(t)
	baseline := e.Arena.Brk()

	_, err := e.Eval("let i = 0; let s = ''; while (i < 100000) { s = 'chunk' + i; i = i + 1; }")
	require.NoError(t, err)

	require.NoError(t, e.CollectGarbage())
	after := e.Arena.Brk()
	require.Less(t, after, baseline+1024*1024,
		"post-GC brk %d should be within 1MiB of baseline %d", after, baseline)
}

func TestGCPreservesLiveData(t *testing.T) {
	e := newEval(t)
	_, err := e.Eval("let keep = { name: 'alpha', list: [1, 2, 3] }; let str = 'x' + 'y';")
	require.NoError(t, err)

	require.NoError(t, e.CollectGarbage())

	require.Equal(t, "alpha", evalStr(t, e, "keep.name"))
	require.Equal(t, 6.0, evalNum(t, e, "keep.list.reduce((a,b)=>a+b, 0)"))
	require.Equal(t, "xy", evalStr(t, e, "str"))
}

func TestPinnedHandleSurvivesGC(t *testing.T) {
	e := newEval(t)
	v, err := e.Strings.NewInline([]byte("pinned contents"))
	require.NoError(t, err)
	pin := e.Root(v)

	require.NoError(t, e.CollectGarbage())

	cur, ok := e.Deref(pin)
	require.True(t, ok)
	b, err := e.Strings.Bytes(cur)
	require.NoError(t, err)
	require.Equal(t, "pinned contents", string(b))
	e.Unroot(pin)
}

func TestGCPreservesPromiseInternalSlots(t *testing.T) {
	e := newEval(t)
	v, err := e.Eval("Promise.resolve(9)")
	require.NoError(t, err)
	pin := e.Root(v)

	require.NoError(t, e.CollectGarbage())

	v, ok := e.Deref(pin)
	require.True(t, ok)
	e.Unroot(pin)
	require.Equal(t, promise.Fulfilled, e.Promises.StateOf(v))
	require.Equal(t, 9.0, value.Float(e.Promises.ValueOf(v)))
}

func TestClosureCapture(t *testing.T) {
	e := newEval(t)
	require.Equal(t, 3.0, evalNum(t, e,
		"function counter(){ let n = 0; return () => { n = n + 1; return n; }; } const c = counter(); c(); c(); c()"))
}

func TestForOfClosureFreshBinding(t *testing.T) {
	e := newEval(t)
	require.Equal(t, "1,2,3", evalStr(t, e,
		"let fns = []; for (const x of [1,2,3]) { fns.push(() => x); } fns.map(f => f()).join(',')"))
}

func TestTemplateLiteral(t *testing.T) {
	e := newEval(t)
	require.Equal(t, "sum is 3!", evalStr(t, e, "let a = 1, b = 2; `sum is ${a + b}!`"))
}

func TestTryCatchFinally(t *testing.T) {
	e := newEval(t)
	require.Equal(t, "caught:boom,finally", evalStr(t, e, `
		let log = [];
		try {
			throw new Error('boom');
		} catch (err) {
			log.push('caught:' + err.message);
		} finally {
			log.push('finally');
		}
		log.join(',')`))
}

func TestThrowPropagatesWithStack(t *testing.T) {
	e := newEval(t)
	_, err := e.Eval("function inner(){ throw new TypeError('bad'); } function outer(){ return inner(); } outer()")
	require.Error(t, err)
	v, ok := ThrownValue(err)
	require.True(t, ok)

	name, found, err2 := e.getNamedProp(v, "name")
	require.NoError(t, err2)
	require.True(t, found)
	s, err2 := e.ToString(name)
	require.NoError(t, err2)
	require.Equal(t, "TypeError", s)

	stack, found, err2 := e.getNamedProp(v, "stack")
	require.NoError(t, err2)
	require.True(t, found)
	ss, err2 := e.ToString(stack)
	require.NoError(t, err2)
	require.Contains(t, ss, "TypeError: bad")
}

func TestClassesAndInheritance(t *testing.T) {
	e := newEval(t)
	require.Equal(t, "rex barks", evalStr(t, e, `
		class Animal {
			constructor(name) { this.name = name; }
			speak() { return this.name + ' makes a sound'; }
		}
		class Dog extends Animal {
			speak() { return this.name + ' barks'; }
		}
		new Dog('rex').speak()`))
}

func TestClassSuperCall(t *testing.T) {
	e := newEval(t)
	require.Equal(t, 30.0, evalNum(t, e, `
		class Base {
			constructor(x) { this.x = x; }
		}
		class Derived extends Base {
			constructor() { super(10); this.y = 20; }
			total() { return this.x + this.y; }
		}
		new Derived().total()`))
}

func TestInstanceofErrorFamily(t *testing.T) {
	e := newEval(t)
	v, err := e.Eval("new TypeError('x') instanceof Error")
	require.NoError(t, err)
	require.Equal(t, value.True, v)
}

func TestSwitchFallthrough(t *testing.T) {
	e := newEval(t)
	require.Equal(t, "two,three", evalStr(t, e, `
		let hits = [];
		switch (2) {
			case 1: hits.push('one');
			case 2: hits.push('two');
			case 3: hits.push('three'); break;
			case 4: hits.push('four');
		}
		hits.join(',')`))
}

func TestSpreadInArrayLiteral(t *testing.T) {
	e := newEval(t)
	require.Equal(t, "1,2,3,4", evalStr(t, e, "let a = [1,2]; [...a, 3, 4].join(',')"))
}

func TestMicrotaskBeforeTimer(t *testing.T) {
	e := newEval(t)
	_, err := e.Eval(`
		let order = [];
		setTimeout(() => order.push('timer'), 0);
		queueMicrotask(() => order.push('micro'));
		Promise.resolve().then(() => order.push('then'));`)
	require.NoError(t, err)
	require.NoError(t, e.RunEventLoop())
	require.Equal(t, "micro,then,timer", evalStr(t, e, "order.join(',')"))
}

func TestClearTimeout(t *testing.T) {
	e := newEval(t)
	_, err := e.Eval(`
		let fired = false;
		const id = setTimeout(() => { fired = true; }, 0);
		clearTimeout(id);`)
	require.NoError(t, err)
	require.NoError(t, e.RunEventLoop())
	v, err := e.Eval("fired")
	require.NoError(t, err)
	require.Equal(t, value.False, v)
}

func TestPromiseChainOrdering(t *testing.T) {
	e := newEval(t)
	_, err := e.Eval(`
		let seen = [];
		const p = Promise.resolve(1);
		p.then(v => seen.push('a' + v));
		p.then(v => seen.push('b' + v));`)
	require.NoError(t, err)
	require.NoError(t, e.RunEventLoop())
	require.Equal(t, "a1,b1", evalStr(t, e, "seen.join(',')"))
}

func TestAsyncErrorRejectsPromise(t *testing.T) {
	e := newEval(t)
	v, err := e.Eval("async function f(){ throw new RangeError('nope'); } f()")
	require.NoError(t, err)
	require.Equal(t, value.TagPromise, value.TagOf(v))
	pin := e.Root(v)
	require.NoError(t, e.RunEventLoop())
	v, _ = e.Deref(pin)
	e.Unroot(pin)
	require.Equal(t, promise.Rejected, e.Promises.StateOf(v))
}

func TestInterleavedAsyncFunctions(t *testing.T) {
	e := newEval(t)
	_, err := e.Eval(`
		let order = [];
		async function a() { order.push('a1'); await Promise.resolve(); order.push('a2'); }
		async function b() { order.push('b1'); await Promise.resolve(); order.push('b2'); }
		a(); b();`)
	require.NoError(t, err)
	require.NoError(t, e.RunEventLoop())
	require.Equal(t, "a1,b1,a2,b2", evalStr(t, e, "order.join(',')"))
}

func TestUnresolvedIdentifierNonStrict(t *testing.T) {
	e := newEval(t)
	v, err := e.Eval("nosuchbinding")
	require.NoError(t, err)
	require.Equal(t, value.Undefined, v)
}

func TestVarHoisting(t *testing.T) {
	e := newEval(t)
	require.Equal(t, "undefined", evalStr(t, e, "function f(){ const before = typeof v; var v = 1; return before; } f()"))
}

func TestConsoleLogWritesToStdout(t *testing.T) {
	e := newEval(t)
	var buf bytes.Buffer
	e.Stdout = &buf
	_, err := e.Eval("console.log('hello', 42)")
	require.NoError(t, err)
	require.Equal(t, "hello 42\n", buf.String())
}

func TestStatsAndDump(t *testing.T) {
	e := newEval(t)
	_, err := e.Eval("let o = { a: 1, b: 'two' };")
	require.NoError(t, err)
	st := e.Stats()
	require.Greater(t, st.Brk, uint64(0))
	require.GreaterOrEqual(t, st.Committed, st.Brk)

	v, err := e.Eval("o")
	require.NoError(t, err)
	require.Equal(t, "{ a: 1, b: 'two' }", e.Dump(v))
}
