package eval

import (
	"github.com/theMackabu/ant/internal/callframe"
	"github.com/theMackabu/ant/internal/coro"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/parser"
	"github.com/theMackabu/ant/internal/value"
)

// nativeFn is a host function bound into a NativeFunction Value; closures
// capture whatever evaluator/generator/promise state they need directly
// rather than taking an *Evaluator parameter, since most natives (bound
// generator methods, promise reaction wrappers) need more context than that.
type nativeFn func(this value.Value, args []value.Value) (value.Value, error)

// registerNative appends fn to the native-function table and returns the
// Value referencing it (spec §3 "NativeFunction").
func (e *Evaluator) registerNative(fn nativeFn) value.Value {
	id := uint64(len(e.natives))
	e.natives = append(e.natives, fn)
	return value.NativeFunction(id)
}

// slotSuperProto/slotSuperCtor are internal slots set on method/constructor
// function objects by evalClass: the former lets callSync thread the right
// `super` receiver into each Frames.Push, the latter lets evalSuperCall find
// the superclass constructor to invoke from inside `super(...)`.
var (
	slotSuperProto = object.SlotKey(object.SlotUserSlotBase + 5)
	slotSuperCtor  = object.SlotKey(object.SlotUserSlotBase + 6)
)

// nativeObjTable maps a heap-allocated KindFunction object's arena offset to
// a Go closure, the same way funcTable maps one to a *parser.FuncLit -- the
// distinction is that these functions need to carry JS-visible properties
// (Promise.resolve, Error.prototype, ...), which a bare NativeFunction
// immediate cannot, since it never addresses the arena (internal/value's
// isHeapTag list excludes it).
type nativeObjTable struct {
	m map[uint64]nativeFn
}

func newNativeObjTable() *nativeObjTable { return &nativeObjTable{m: make(map[uint64]nativeFn)} }

func (t *nativeObjTable) get(off uint64) (nativeFn, bool) {
	fn, ok := t.m[off]
	return fn, ok
}

// Prune implements gc.WeakTable.
func (t *nativeObjTable) Prune(lookup func(old uint64) (uint64, bool)) {
	next := make(map[uint64]nativeFn, len(t.m))
	for old, fn := range t.m {
		if newOff, ok := lookup(old); ok {
			next[newOff] = fn
		}
	}
	t.m = next
}

// makeNativeFunction allocates a KindFunction heap object backed by fn
// rather than a parser.FuncLit, so it can carry properties the way a
// built-in constructor (Promise, Error, ...) needs to.
func (e *Evaluator) makeNativeFunction(fn nativeFn) (value.Value, error) {
	obj, err := e.Objects.New(object.KindFunction)
	if err != nil {
		return 0, err
	}
	if e.nativeObjs == nil {
		e.nativeObjs = newNativeObjTable()
	}
	e.nativeObjs.m[value.Offset(obj)] = fn
	return obj, nil
}

// funcTable maps a live JS-function object's arena offset to the AST it
// closes over, mirroring internal/promise's Go-side pending-handler
// registry: an arena Value can't hold a Go pointer, so the association is
// kept host-side and re-keyed on every GC via Prune (gc.WeakTable).
type funcTable struct {
	m map[uint64]*parser.FuncLit
}

func newFuncTable() *funcTable { return &funcTable{m: make(map[uint64]*parser.FuncLit)} }

func (t *funcTable) set(off uint64, lit *parser.FuncLit) { t.m[off] = lit }
func (t *funcTable) get(off uint64) (*parser.FuncLit, bool) {
	lit, ok := t.m[off]
	return lit, ok
}

// Prune implements gc.WeakTable.
func (t *funcTable) Prune(lookup func(old uint64) (uint64, bool)) {
	next := make(map[uint64]*parser.FuncLit, len(t.m))
	for old, lit := range t.m {
		if newOff, ok := lookup(old); ok {
			next[newOff] = lit
		}
	}
	t.m = next
}

// genTable mirrors funcTable for live Generator objects, associating them
// with the (not-yet-exhausted) coroutine driving their iteration.
type genTable struct {
	m map[uint64]*coro.Coroutine
}

func newGenTable() *genTable { return &genTable{m: make(map[uint64]*coro.Coroutine)} }

func (t *genTable) Prune(lookup func(old uint64) (uint64, bool)) {
	next := make(map[uint64]*coro.Coroutine, len(t.m))
	for old, co := range t.m {
		if newOff, ok := lookup(old); ok {
			next[newOff] = co
		}
	}
	t.m = next
}

// coroState is the per-coroutine half of spec §4.J's enter/leave swap: a
// private call stack and scope live-stack, so interleaved suspended
// coroutines never share frame ordering with the top-level evaluator or
// each other.
type coroState struct {
	frames *callframe.Frames
	live   []value.Value
	y      *coro.Yielder

	prevFrames *callframe.Frames
	prevLive   []value.Value
}

// trackCoro registers a new coroutine, allocating its swapped-in evaluator
// state, and defers compaction while it lives (its goroutine stack may
// hold Values).
func (e *Evaluator) trackCoro(co *coro.Coroutine) error {
	frames, err := callframe.New(e.Scopes, e.Strings)
	if err != nil {
		return err
	}
	frames.Scope = e.Global
	if e.liveCoros == nil {
		e.liveCoros = make(map[*coro.Coroutine]*coroState)
	}
	e.liveCoros[co] = &coroState{frames: frames}
	return nil
}

func (e *Evaluator) untrackCoro(co *coro.Coroutine) { delete(e.liveCoros, co) }

// enterCoro swaps the coroutine's saved call stack and scope stack in;
// leaveCoro swaps them back out, capturing whatever the coroutine left
// behind for its next resume.
func (e *Evaluator) enterCoro(co *coro.Coroutine) *coroState {
	st := e.liveCoros[co]
	if st == nil {
		// Resumed after untrack (e.g. a forced generator return raced a
		// final next()); give it throwaway state so the resume is safe.
		frames, err := callframe.New(e.Scopes, e.Strings)
		if err != nil {
			return nil
		}
		frames.Scope = e.Global
		st = &coroState{frames: frames}
	}
	st.prevFrames = e.Frames
	e.Frames = st.frames
	st.prevLive = e.Scopes.SwapLive(st.live)
	return st
}

func (e *Evaluator) leaveCoro(st *coroState) {
	if st == nil {
		return
	}
	st.live = e.Scopes.SwapLive(st.prevLive)
	e.Frames = st.prevFrames
	st.prevFrames, st.prevLive = nil, nil
}

// resumeCoro performs one guarded resume with the full state swap. The
// coroutine's Yielder is captured after the first resume (the body
// publishes it into e.curY as its first action) so later entries restore
// it; e.curY always reverts to the resumer's own Yielder (or nil at top
// level) on leave.
func (e *Evaluator) resumeCoro(co *coro.Coroutine, val value.Value, isError bool) {
	prevCoro, prevY := e.curCoro, e.curY
	e.curCoro = co
	st := e.enterCoro(co)
	if st != nil && st.y != nil {
		e.curY = st.y
	}
	co.Resume(val, isError)
	if st != nil {
		st.y = e.curY
	}
	e.leaveCoro(st)
	e.curCoro, e.curY = prevCoro, prevY
	if co.IsDone {
		e.untrackCoro(co)
	}
}

// forceCoro unwinds a suspended coroutine (Generator.return) under the
// same state swap resumeCoro uses, so the body's frame pops land on its
// own call stack.
func (e *Evaluator) forceCoro(co *coro.Coroutine) {
	prevCoro, prevY := e.curCoro, e.curY
	e.curCoro = co
	st := e.enterCoro(co)
	if st != nil && st.y != nil {
		e.curY = st.y
	}
	co.Force()
	e.leaveCoro(st)
	e.curCoro, e.curY = prevCoro, prevY
	e.untrackCoro(co)
}

// makeFunction allocates a JS-function object closing over closureScope
// (spec §3 "Function"). The closure scope is stored in the object's generic
// parent-scope slot -- the same field internal/scope uses for scope
// chaining, reused here since a function object is not itself a scope but
// still benefits from the same "object -> linked ancestor" shape and the
// GC's existing evacuation of that field (internal/gc.Collect already
// follows ParentScope for every object kind, not only KindScope).
func (e *Evaluator) makeFunction(fn *parser.FuncLit, closureScope value.Value) (value.Value, error) {
	obj, err := e.Objects.New(object.KindFunction)
	if err != nil {
		return 0, err
	}
	e.Objects.SetParentScope(obj, closureScope)
	e.funcs.set(value.Offset(obj), fn)
	return obj, nil
}

// Call implements promise.Invoker and is the evaluator's single entry point
// for invoking any callable Value (spec §4.H).
func (e *Evaluator) Call(fn, this value.Value, args []value.Value) (value.Value, error) {
	e.execDepth++
	defer func() { e.execDepth-- }()
	if value.IsNumber(fn) {
		return 0, e.throw(ErrType, "value is not a function")
	}
	switch value.TagOf(fn) {
	case value.TagNativeFunction:
		idx := value.NativeIndex(fn)
		if idx >= uint64(len(e.natives)) {
			return 0, e.throw(ErrInternal, "dangling native function reference")
		}
		return e.natives[idx](this, args)
	case value.TagFunction:
		return e.callJSFunction(fn, this, args, value.Undefined)
	default:
		return 0, e.throw(ErrType, "value is not a function")
	}
}

func (e *Evaluator) callJSFunction(fn, this value.Value, args []value.Value, newTarget value.Value) (value.Value, error) {
	lit, ok := e.funcs.get(value.Offset(fn))
	if !ok {
		if e.nativeObjs != nil {
			if nfn, ok := e.nativeObjs.get(value.Offset(fn)); ok {
				return nfn(this, args)
			}
		}
		return 0, e.throw(ErrInternal, "dangling function reference")
	}
	closureScope, _ := e.Objects.ParentScope(fn)

	if lit.IsGen {
		return e.makeGenerator(lit, fn, closureScope, this, args)
	}
	if lit.IsAsync {
		return e.callAsync(lit, fn, closureScope, this, args)
	}
	return e.callSync(lit, fn, closureScope, this, args, newTarget)
}

// callSync executes an ordinary function body to completion on the current
// goroutine (spec §4.H steps 1-6, no suspension involved).
func (e *Evaluator) callSync(lit *parser.FuncLit, fn, closureScope, this value.Value, args []value.Value, newTarget value.Value) (value.Value, error) {
	params, restName, hasRest, err := e.internParams(lit)
	if err != nil {
		return 0, err
	}
	pos := callframe.Position{File: e.filename}
	if lit.Body != nil {
		l, c := lit.Pos()
		pos = callframe.Position{File: e.filename, Line: l, Column: c}
	}
	superProto := value.Undefined
	if sp, ok, err := e.Objects.Get(fn, slotSuperProto); err == nil && ok {
		superProto = sp
	}
	frame, err := e.Frames.Push(e.Objects, closureScope, lit.Name, pos, fn, this, newTarget, superProto, params, restName, hasRest, args)
	if err != nil {
		return 0, err
	}
	defer e.Frames.Pop(frame)

	if lit.ExprBody != nil {
		return e.evalExpr(lit.ExprBody, frame.Scope)
	}
	if err := e.hoist(lit.Body.Body, frame.Scope, true); err != nil {
		return 0, err
	}
	for _, stmt := range lit.Body.Body {
		c, err := e.execStmt(stmt, frame.Scope)
		if err != nil {
			return 0, err
		}
		if c.kind == compReturn {
			return c.value, nil
		}
	}
	return value.Undefined, nil
}

func (e *Evaluator) internParams(lit *parser.FuncLit) (params []value.Value, restName value.Value, hasRest bool, err error) {
	for _, p := range lit.Params {
		v, err := e.Strings.NewInline([]byte(p))
		if err != nil {
			return nil, 0, false, err
		}
		params = append(params, v)
	}
	if lit.HasRest {
		v, err := e.Strings.NewInline([]byte(lit.RestParam))
		if err != nil {
			return nil, 0, false, err
		}
		restName = v
		hasRest = true
	}
	return params, restName, hasRest, nil
}

// ---- async functions ----

// callAsync starts lit's body on a coroutine (spec §4.J): execution runs
// synchronously up to its first `await`, at which point a pending promise
// is returned to the caller and the coroutine is driven to completion by
// the await/then plumbing in resumeAndDrive.
func (e *Evaluator) callAsync(lit *parser.FuncLit, fn, closureScope, this value.Value, args []value.Value) (value.Value, error) {
	resultProm, err := e.Promises.New()
	if err != nil {
		return 0, err
	}
	body := func(y *coro.Yielder) (value.Value, error) {
		e.curY = y
		return e.callSync(lit, fn, closureScope, this, args, value.Undefined)
	}
	co := coro.New(body, args)
	if err := e.trackCoro(co); err != nil {
		return 0, err
	}
	if err := e.resumeAndDrive(co, resultProm, value.Undefined, false); err != nil {
		return 0, err
	}
	return resultProm, nil
}

// resumeAndDrive resumes co once with (val, isError) and then, based on
// what it did, either settles resultProm (coroutine finished) or attaches a
// continuation to the awaited promise (coroutine suspended on await) that
// resumes co again when it settles -- the full spec §4.J "enter/leave swap"
// loop, except the swap here is between Go goroutines via channel
// rendezvous rather than fiber stack switches (see internal/coro's package
// doc).
func (e *Evaluator) resumeAndDrive(co *coro.Coroutine, resultProm value.Value, val value.Value, isError bool) error {
	e.resumeCoro(co, val, isError)

	if co.IsDone {
		if co.IsError {
			return e.Promises.Reject(resultProm, co.Result)
		}
		return e.Promises.Resolve(resultProm, co.Result)
	}

	// Suspended on await: normalize the awaited value to a promise (spec
	// §4.J "if p is not a promise, wrap in an already-fulfilled promise"),
	// then attach reactions that re-enter this same drive loop.
	awaited := co.AwaitedPromise
	awaitedProm, err := e.toPromise(awaited)
	if err != nil {
		return err
	}
	onFulfilled := e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		v := value.Undefined
		if len(args) > 0 {
			v = args[0]
		}
		return value.Undefined, e.resumeAndDrive(co, resultProm, v, false)
	})
	onReject := e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		v := value.Undefined
		if len(args) > 0 {
			v = args[0]
		}
		return value.Undefined, e.resumeAndDrive(co, resultProm, v, true)
	})
	return e.Promises.Then(awaitedProm, onFulfilled, onReject, 0)
}

// toPromise wraps a non-promise value in an already-fulfilled promise.
func (e *Evaluator) toPromise(v value.Value) (value.Value, error) {
	if !value.IsNumber(v) && e.Objects.Kind(v) == object.KindPromise {
		return v, nil
	}
	p, err := e.Promises.New()
	if err != nil {
		return 0, err
	}
	if err := e.Promises.Resolve(p, v); err != nil {
		return 0, err
	}
	return p, nil
}

// ---- generators ----

var (
	slotGenDone = object.SlotKey(object.SlotUserSlotBase + 2)
)

// makeGenerator returns a Generator object (spec §3 "Generator"); the body
// does not run at all until .next() is first called, matching JS semantics.
func (e *Evaluator) makeGenerator(lit *parser.FuncLit, fn, closureScope, this value.Value, args []value.Value) (value.Value, error) {
	genObj, err := e.Objects.New(object.KindGenerator)
	if err != nil {
		return 0, err
	}
	body := func(y *coro.Yielder) (value.Value, error) {
		e.curY = y
		return e.callSync(lit, fn, closureScope, this, args, value.Undefined)
	}
	co := coro.New(body, args)
	if err := e.trackCoro(co); err != nil {
		return 0, err
	}
	off := value.Offset(genObj)
	if e.generators == nil {
		e.generators = newGenTable()
	}
	e.generators.m[off] = co

	nextFn := e.registerNative(func(_ value.Value, callArgs []value.Value) (value.Value, error) {
		v := value.Undefined
		if len(callArgs) > 0 {
			v = callArgs[0]
		}
		return e.generatorResume(genObj, v, false)
	})
	returnFn := e.registerNative(func(_ value.Value, callArgs []value.Value) (value.Value, error) {
		e.forceCoro(co)
		v := value.Undefined
		if len(callArgs) > 0 {
			v = callArgs[0]
		}
		return e.iterResult(v, true)
	})
	throwFn := e.registerNative(func(_ value.Value, callArgs []value.Value) (value.Value, error) {
		v := value.Undefined
		if len(callArgs) > 0 {
			v = callArgs[0]
		}
		return e.generatorResume(genObj, v, true)
	})
	if err := e.setNamedProp(genObj, "next", nextFn); err != nil {
		return 0, err
	}
	if err := e.setNamedProp(genObj, "return", returnFn); err != nil {
		return 0, err
	}
	if err := e.setNamedProp(genObj, "throw", throwFn); err != nil {
		return 0, err
	}
	return genObj, nil
}

// generatorResume drives the coroutine one step (spec §4.J "next(v) resumes
// the coroutine delivering v as the prior yield expression's result") and
// builds the {value, done} iterator-result object.
func (e *Evaluator) generatorResume(genObj, val value.Value, isError bool) (value.Value, error) {
	off := value.Offset(genObj)
	co, ok := e.generators.m[off]
	if !ok || co.IsDone {
		return e.iterResult(value.Undefined, true)
	}
	e.resumeCoro(co, val, isError)

	if co.IsDone {
		if co.IsError {
			return 0, Thrown{V: co.Result}
		}
		return e.iterResult(co.Result, true)
	}
	return e.iterResult(co.YieldValue, false)
}

func (e *Evaluator) iterResult(val value.Value, done bool) (value.Value, error) {
	obj, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return 0, err
	}
	if err := e.setNamedProp(obj, "value", val); err != nil {
		return 0, err
	}
	if err := e.setNamedProp(obj, "done", value.Bool(done)); err != nil {
		return 0, err
	}
	_ = slotGenDone
	return obj, nil
}
