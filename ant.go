// Package ant is an embeddable JavaScript runtime: a NaN-boxed value
// representation over a single compacting arena, a tree-walking evaluator,
// stackful coroutines for async/await and generators, and a cooperative
// event loop, all owned by one Runtime instance so multiple runtimes can
// coexist in a process.
//
// Basic use:
//
//	rt, err := ant.New()
//	if err != nil { ... }
//	defer rt.Close()
//	v, err := rt.Eval("1 + 2")
//	s, _ := rt.ToString(v) // "3"
//	_ = rt.RunEventLoop()  // drive pending async work
package ant

import (
	"errors"
	"io"

	"github.com/theMackabu/ant/internal/eval"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/value"
)

// Value is a NaN-boxed tagged 64-bit word: a finite number, an immediate
// (undefined/null/boolean), or a heap reference into the owning Runtime's
// arena. Values are only meaningful against the Runtime that produced them,
// and heap-referring Values are invalidated by Close.
type Value = value.Value

// Immediate values, valid for any Runtime.
var (
	Undefined = value.Undefined
	Null      = value.Null
	True      = value.True
	False     = value.False
)

// Handle is a pinned-root handle returned by Root: a stable identity for a
// Value that survives garbage collection (the Value it dereferences to may
// change as the collector relocates the underlying object).
type Handle uint64

// ErrClosed is returned by operations on a Runtime after Close.
var ErrClosed = errors.New("ant: runtime closed")

// Runtime is one JavaScript runtime instance. Not safe for concurrent use:
// the execution model is single-threaded cooperative, and all methods must
// be called from one goroutine at a time.
type Runtime struct {
	e      *eval.Evaluator
	closed bool

	// scopeStack holds the scratch scopes entered with PushScope,
	// innermost last: the pinned handle plus the scope live-stack mark to
	// release on pop.
	scopeStack []scopeEntry
}

type scopeEntry struct {
	pin  uint64
	mark int
}

// New constructs a Runtime with a growable arena. With no options the
// arena starts at 32 KiB and may grow to the default 256 GiB ceiling; use
// WithInitialMemory/WithMaxMemory to bound it (equal values give a
// fixed-size heap).
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	e, err := eval.New(cfg.arena)
	if err != nil {
		return nil, err
	}
	if cfg.gcThreshold != 0 {
		e.SetGCThreshold(cfg.gcThreshold)
	}
	if cfg.filename != "" {
		e.SetFilename(cfg.filename)
	}
	if cfg.stdout != nil {
		e.Stdout = cfg.stdout
	}
	if cfg.stderr != nil {
		e.Stderr = cfg.stderr
	}
	if cfg.diag != nil {
		e.GC.Diag = cfg.diag
		e.Loop.Diag = cfg.diag
	}
	return &Runtime{e: e}, nil
}

// Close tears the runtime down, releasing the arena. All Values and
// Handles from this runtime are invalid afterward.
func (r *Runtime) Close() error {
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	return r.e.Arena.Close()
}

func (r *Runtime) check() error {
	if r.closed {
		return ErrClosed
	}
	return nil
}

// ---- evaluation ----

// Eval parses and executes src. A JS-thrown error comes back as a
// *ScriptError carrying the thrown Value and its formatted stack; other
// errors (syntax errors surface as thrown SyntaxError values, so in
// practice: arena exhaustion, closed runtime) come back as plain Go errors.
func (r *Runtime) Eval(src string) (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	v, err := r.e.EvalIn(src, r.evalScope())
	return v, r.wrapErr(err)
}

// Call invokes fn with the given this and arguments.
func (r *Runtime) Call(fn, this Value, args ...Value) (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	v, err := r.e.Call(fn, this, args)
	return v, r.wrapErr(err)
}

// Global returns the global object, which doubles as the root scope.
func (r *Runtime) Global() Value { return r.e.Global }

// PushScope enters a fresh scratch scope chained to the current evaluation
// scope; subsequent Eval calls run inside it, so `let`/`const` bindings
// made there vanish on PopScope instead of polluting the global object.
// Returns the scope object.
func (r *Runtime) PushScope() (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	parent := r.e.Global
	if n := len(r.scopeStack); n > 0 {
		parent, _ = r.e.Deref(r.scopeStack[n-1].pin)
	}
	mark := r.e.Scopes.Mark()
	sc, err := r.e.Scopes.Push(parent)
	if err != nil {
		return Undefined, err
	}
	r.scopeStack = append(r.scopeStack, scopeEntry{pin: r.e.Root(sc), mark: mark})
	return sc, nil
}

// PopScope leaves the innermost scope entered with PushScope.
func (r *Runtime) PopScope() error {
	if err := r.check(); err != nil {
		return err
	}
	n := len(r.scopeStack)
	if n == 0 {
		return errors.New("ant: no scope to pop")
	}
	entry := r.scopeStack[n-1]
	r.e.Unroot(entry.pin)
	r.e.Scopes.Release(entry.mark)
	r.scopeStack = r.scopeStack[:n-1]
	return nil
}

// evalScope is the scope Eval executes in: the innermost pushed scope, or
// the global object.
func (r *Runtime) evalScope() Value {
	if n := len(r.scopeStack); n > 0 {
		if sc, ok := r.e.Deref(r.scopeStack[n-1].pin); ok {
			return sc
		}
	}
	return r.e.Global
}

// This returns the `this` binding of the innermost active call frame;
// useful inside a NativeFunc.
func (r *Runtime) This() Value { return r.e.Frames.This }

// CurrentFunction returns the function value of the innermost active call
// frame.
func (r *Runtime) CurrentFunction() Value { return r.e.Frames.Function }

// ProtectInitMemory write-protects the pages holding everything allocated
// so far (the snapshot/bootstrap region). Only meaningful when automatic
// compaction is disabled (SetGCThreshold with a ceiling the workload never
// reaches), since a compaction relocates the protected objects into a
// fresh arena; see DESIGN.md.
func (r *Runtime) ProtectInitMemory() error {
	if err := r.check(); err != nil {
		return err
	}
	return r.e.Arena.ProtectPrefix()
}

// SetFilename sets the file name used in stack frames for subsequent Eval
// calls.
func (r *Runtime) SetFilename(name string) { r.e.SetFilename(name) }

// SetupImportMeta installs the module-metadata object handed to
// module-loading collaborators.
func (r *Runtime) SetupImportMeta(url string) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.e.SetupImportMeta(url)
}

// ---- builders ----

// Number builds a number Value. NaN and infinities are representable.
func (r *Runtime) Number(f float64) Value { return value.Number(f) }

// Boolean builds a boolean Value.
func (r *Runtime) Boolean(b bool) Value { return value.Bool(b) }

// String allocates an inline string in the arena.
func (r *Runtime) String(s string) (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	return r.e.Strings.NewInline([]byte(s))
}

// Object allocates an empty plain object.
func (r *Runtime) Object() (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	return r.e.Objects.New(object.KindPlain)
}

// Array allocates an array holding elems.
func (r *Runtime) Array(elems ...Value) (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	arr, err := r.e.Objects.New(object.KindArray)
	if err != nil {
		return Undefined, err
	}
	for i, el := range elems {
		if err := r.e.Objects.DenseSet(arr, uint64(i), el); err != nil {
			return Undefined, err
		}
	}
	return arr, nil
}

// NativeFunc is a Go function callable from JS. Returning a non-nil error
// propagates as a JS exception if the error is a thrown value (see Throw),
// or aborts evaluation otherwise.
type NativeFunc func(rt *Runtime, this Value, args []Value) (Value, error)

// Function binds fn as a JS-callable function Value.
func (r *Runtime) Function(fn NativeFunc) Value {
	return r.e.RegisterNative(func(this value.Value, args []value.Value) (value.Value, error) {
		return fn(r, this, args)
	})
}

// ErrorKind selects the ECMAScript error family for Error and Throw.
type ErrorKind = eval.ErrorKind

const (
	GenericError   = eval.ErrGeneric
	TypeError      = eval.ErrType
	SyntaxError    = eval.ErrSyntax
	ReferenceError = eval.ErrReference
	RangeError     = eval.ErrRange
	EvalError      = eval.ErrEval
	URIError       = eval.ErrURI
	InternalError  = eval.ErrInternal
	AggregateError = eval.ErrAggregate
)

// Error builds an error-kind object with name, message, and a stack
// captured from the current call frames.
func (r *Runtime) Error(kind ErrorKind, format string, args ...any) (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	return r.e.NewErrorValue(kind, format, args...)
}

// Throw builds an error value and returns it wrapped as the Go error a
// NativeFunc should return to raise a JS exception in its caller.
func (r *Runtime) Throw(kind ErrorKind, format string, args ...any) error {
	v, err := r.e.NewErrorValue(kind, format, args...)
	if err != nil {
		return err
	}
	return eval.Thrown{V: v}
}

// Promise allocates a fresh pending promise.
func (r *Runtime) Promise() (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	return r.e.Promises.New()
}

// ---- accessors ----

// TypeOf returns the ECMAScript typeof string for v.
func (r *Runtime) TypeOf(v Value) string { return value.TypeOf(v) }

// IsNumber reports whether v is a number.
func (r *Runtime) IsNumber(v Value) bool { return value.IsNumber(v) }

// ToNumber coerces v to a number.
func (r *Runtime) ToNumber(v Value) (float64, error) { return r.e.ToNumber(v) }

// ToString coerces v to a string, flattening ropes.
func (r *Runtime) ToString(v Value) (string, error) { return r.e.ToString(v) }

// Truthy reports ECMAScript ToBoolean(v).
func (r *Runtime) Truthy(v Value) bool { return value.Truthy(v) }

// IsCallable reports whether Call would accept v as a function.
func (r *Runtime) IsCallable(v Value) bool { return r.e.IsCallable(v) }

// Get reads obj[name], walking the prototype chain; missing properties
// read as Undefined.
func (r *Runtime) Get(obj Value, name string) (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	k, err := r.e.Strings.NewInline([]byte(name))
	if err != nil {
		return Undefined, err
	}
	v, ok, err := r.e.Objects.Get(obj, object.StringKey(k))
	if err != nil || !ok {
		return Undefined, err
	}
	return v, nil
}

// Set writes obj[name] = v.
func (r *Runtime) Set(obj Value, name string, v Value) error {
	if err := r.check(); err != nil {
		return err
	}
	k, err := r.e.Strings.NewInline([]byte(name))
	if err != nil {
		return err
	}
	return r.e.Objects.Set(obj, object.StringKey(k), v, 0, true)
}

// GetProto returns obj's prototype, or Undefined if none.
func (r *Runtime) GetProto(obj Value) Value {
	p, ok := r.e.Objects.GetProto(obj)
	if !ok {
		return Undefined
	}
	return p
}

// SetProto installs proto as obj's prototype; a resulting cycle is a
// TypeError.
func (r *Runtime) SetProto(obj, proto Value) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.e.Objects.SetProto(obj, proto)
}

// Prop is one own enumerable property yielded by a PropIter.
type Prop struct {
	Key   Value
	Value Value
}

// PropIter walks an object's own enumerable properties in insertion
// order.
type PropIter struct {
	props []object.KV
	i     int
}

// Properties begins iteration over obj's own enumerable properties.
func (r *Runtime) Properties(obj Value) (*PropIter, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	kvs, err := r.e.Properties(obj)
	if err != nil {
		return nil, err
	}
	return &PropIter{props: kvs}, nil
}

// Next returns the next property, or false when exhausted.
func (it *PropIter) Next() (Prop, bool) {
	if it.i >= len(it.props) {
		return Prop{}, false
	}
	kv := it.props[it.i]
	it.i++
	return Prop{Key: kv.Key, Value: kv.Value}, true
}

// ---- promises ----

// PromiseState is a promise's settlement state.
type PromiseState int

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// StateOf reports a promise's current state.
func (r *Runtime) StateOf(p Value) PromiseState {
	return PromiseState(r.e.Promises.StateOf(p))
}

// PromiseResult returns the settled value of a fulfilled or rejected
// promise (Undefined while pending).
func (r *Runtime) PromiseResult(p Value) Value { return r.e.Promises.ValueOf(p) }

// ResolvePromise fulfills p with v; a no-op if p has already settled.
func (r *Runtime) ResolvePromise(p, v Value) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.e.Promises.Resolve(p, v)
}

// RejectPromise rejects p with reason; a no-op if p has already settled.
func (r *Runtime) RejectPromise(p, reason Value) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.e.Promises.Reject(p, reason)
}

// OnUnhandledRejection installs the callback fired for promise rejections
// that reach the end of a microtask drain with no handler attached.
func (r *Runtime) OnUnhandledRejection(fn func(reason Value)) {
	r.e.Promises.OnUnhandledRejection(fn)
}

// ---- event loop ----

// RunEventLoop drives microtasks, ready coroutines, timers, and I/O to
// completion, returning when no work remains or the loop is stopped by
// SIGINT/SIGTERM.
func (r *Runtime) RunEventLoop() error {
	if err := r.check(); err != nil {
		return err
	}
	return r.wrapErr(r.e.RunEventLoop())
}

// PollEvents performs one event-loop tick, reporting whether work remains.
func (r *Runtime) PollEvents() (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	more, err := r.e.PollEvents()
	return more, r.wrapErr(err)
}

// ---- garbage collection ----

// GC forces a compaction now (deferred to the next safe point if a
// coroutine is live).
func (r *Runtime) GC() error {
	if err := r.check(); err != nil {
		return err
	}
	return r.e.CollectGarbage()
}

// SetGCThreshold overrides the automatic allocation-trigger formula with a
// fixed byte count; zero restores the formula.
func (r *Runtime) SetGCThreshold(n uint64) { r.e.SetGCThreshold(n) }

// Root pins v so it survives collections; Deref returns its current
// location.
func (r *Runtime) Root(v Value) Handle { return Handle(r.e.Root(v)) }

// Unroot releases a pinned handle.
func (r *Runtime) Unroot(h Handle) { r.e.Unroot(uint64(h)) }

// Deref returns the current Value behind a handle.
func (r *Runtime) Deref(h Handle) (Value, bool) { return r.e.Deref(uint64(h)) }

// RootUpdate replaces the Value behind an existing handle.
func (r *Runtime) RootUpdate(h Handle, v Value) bool { return r.e.RootUpdate(uint64(h), v) }

// ---- diagnostics ----

// Stats is a point-in-time snapshot of the runtime's memory and scheduler
// state.
type Stats = eval.Stats

// Stats returns current runtime statistics.
func (r *Runtime) Stats() Stats { return r.e.Stats() }

// Brk returns the arena bump pointer: the number of heap bytes in use.
func (r *Runtime) Brk() uint64 { return r.e.Arena.Brk() }

// Dump renders v for human inspection (not JSON; see Stringify).
func (r *Runtime) Dump(v Value) string { return r.e.Dump(v) }

// SetStdout redirects the console global's output stream.
func (r *Runtime) SetStdout(w io.Writer) { r.e.Stdout = w }

// SetStderr redirects the console global's error stream.
func (r *Runtime) SetStderr(w io.Writer) { r.e.Stderr = w }

// wrapErr converts an eval.Thrown into a *ScriptError carrying the thrown
// Value and a formatted stack; other errors pass through.
func (r *Runtime) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if v, ok := eval.ThrownValue(err); ok {
		se := &ScriptError{Value: v}
		if s, serr := r.e.ToString(v); serr == nil {
			se.Message = s
		}
		if value.IsHeap(v) {
			name, _ := r.Get(v, "name")
			msg, _ := r.Get(v, "message")
			if name != Undefined {
				ns, _ := r.e.ToString(name)
				ms := ""
				if msg != Undefined {
					ms, _ = r.e.ToString(msg)
				}
				if ns != "" {
					se.Message = ns
					if ms != "" {
						se.Message = ns + ": " + ms
					}
				}
			}
			if stack, gerr := r.Get(v, "stack"); gerr == nil && stack != Undefined {
				if s, serr := r.e.ToString(stack); serr == nil {
					se.Stack = s
				}
			}
		}
		return se
	}
	return err
}
