package eval

import (
	"fmt"
	"strings"

	"github.com/theMackabu/ant/internal/coro"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/value"
)

// This file is the seam the root ant package builds the spec §6 embedder
// API on: event-loop driving, pinned handles, coercions, and diagnostics.

// ---- pinned handles ----

// Root pins v into the handle table, returning a stable id that survives
// compaction (spec §6 "root/unroot/deref/root_update"; §3 lists the pinned
// handle table among the GC roots). The table itself is a RootProvider, so
// the GC rewrites each pinned Value in place.
func (e *Evaluator) Root(v value.Value) uint64 {
	if e.pins == nil {
		e.pins = make(map[uint64]*value.Value)
	}
	e.nextPin++
	id := e.nextPin
	held := v
	e.pins[id] = &held
	return id
}

// Unroot releases a pinned handle. Unknown ids are ignored.
func (e *Evaluator) Unroot(id uint64) { delete(e.pins, id) }

// Deref returns the current (post-any-compaction) Value behind a handle.
func (e *Evaluator) Deref(id uint64) (value.Value, bool) {
	p, ok := e.pins[id]
	if !ok {
		return value.Undefined, false
	}
	return *p, true
}

// RootUpdate replaces the Value behind an existing handle.
func (e *Evaluator) RootUpdate(id uint64, v value.Value) bool {
	p, ok := e.pins[id]
	if !ok {
		return false
	}
	*p = v
	return true
}

func (e *Evaluator) pinRoots() []*value.Value {
	out := make([]*value.Value, 0, len(e.pins))
	for _, p := range e.pins {
		out = append(out, p)
	}
	return out
}

// ---- event loop driving ----

// resumeReady performs the enter/leave swap around a ready-queue coroutine
// resume (spec §4.J): it is the callback internal/loop's drain hands each
// dequeued coroutine to.
func (e *Evaluator) resumeReady(c *coro.Coroutine) {
	e.resumeCoro(c, c.Result, c.IsError)
}

// RunEventLoop drives all pending work (microtasks, ready coroutines,
// timers, I/O) to completion (spec §6 "run_event_loop", §4.K). A deferred
// collection requested while a coroutine was mid-flight runs at the
// post-drain safe point.
func (e *Evaluator) RunEventLoop() error {
	err := e.Loop.Run(e.resumeReady)
	if e.GC.NeedsGC {
		if gerr := e.CollectGarbage(); gerr != nil && err == nil {
			err = gerr
		}
	}
	return err
}

// PollEvents performs a single event-loop tick (spec §6 "poll_events") and
// reports whether work remains pending.
func (e *Evaluator) PollEvents() (bool, error) {
	if err := e.Loop.Tick(e.resumeReady); err != nil {
		return false, err
	}
	return e.Loop.Pending(), nil
}

// ---- coercions for the embedder API ----

// ToString applies the evaluator's ECMAScript ToString coercion (ropes are
// flattened, numbers formatted via strtab.FormatFloat).
func (e *Evaluator) ToString(v value.Value) (string, error) {
	return e.toStringVal(v)
}

// ToNumber applies ToNumber coercion.
func (e *Evaluator) ToNumber(v value.Value) (float64, error) {
	return e.toNumberVal(v)
}

// IsCallable reports whether Call would accept v as a function.
func (e *Evaluator) IsCallable(v value.Value) bool { return e.isCallable(v) }

// RegisterNative binds a Go function as a NativeFunction Value callable
// from JS (spec §6 "mkfun").
func (e *Evaluator) RegisterNative(fn func(this value.Value, args []value.Value) (value.Value, error)) value.Value {
	return e.registerNative(fn)
}

// NewErrorValue builds an Error-kind object of the given kind with a
// formatted stack captured from the current frame state (spec §6 "mkerr").
func (e *Evaluator) NewErrorValue(kind ErrorKind, format string, args ...any) (value.Value, error) {
	return e.newError(kind, fmt.Sprintf(format, args...))
}

// ThrownValue extracts the JS value carried by an error returned from Eval
// or Call, if it is one (spec §6: eval returns "an error-typed value").
func ThrownValue(err error) (value.Value, bool) {
	if t, ok := err.(Thrown); ok {
		return t.V, true
	}
	return value.Undefined, false
}

// SetGCThreshold overrides the allocation-trigger formula of spec §4.E
// with a fixed byte count (spec §6 "setgct"); zero restores the formula.
func (e *Evaluator) SetGCThreshold(n uint64) { e.GC.Threshold = n }

// ---- diagnostics ----

// Stats is the diagnostic snapshot behind spec §6's "stats"/"getbrk".
type Stats struct {
	Brk          uint64
	Committed    uint64
	AllocSinceGC uint64
	PinnedRoots  int
	LiveCoros    int
}

func (e *Evaluator) Stats() Stats {
	return Stats{
		Brk:          e.Arena.Brk(),
		Committed:    e.Arena.Committed(),
		AllocSinceGC: e.GC.AllocSinceGC,
		PinnedRoots:  len(e.pins),
		LiveCoros:    len(e.liveCoros),
	}
}

// Dump renders v for diagnostics (spec §6 "dump"): strings quoted, objects
// and arrays nested up to three levels deep (deeper ones print as {...} or
// [...]), everything else via ToString. Not JSON; see
// the root package's Stringify for that.
func (e *Evaluator) Dump(v value.Value) string {
	s, err := e.dump(v, 0)
	if err != nil {
		return fmt.Sprintf("<dump failed: %v>", err)
	}
	return s
}

func (e *Evaluator) dump(v value.Value, depth int) (string, error) {
	if value.IsNumber(v) {
		s, err := e.toStringVal(v)
		return s, err
	}
	switch value.TagOf(v) {
	case value.TagString:
		s, err := e.toStringVal(v)
		if err != nil {
			return "", err
		}
		return "'" + s + "'", nil
	case value.TagArray:
		if depth > 2 {
			return "[...]", nil
		}
		n := e.Objects.DenseLen(v)
		parts := make([]string, 0, n)
		for i := uint64(0); i < n; i++ {
			el, ok := e.Objects.DenseGet(v, i)
			if !ok {
				el = value.Undefined
			}
			s, err := e.dump(el, depth+1)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[ " + strings.Join(parts, ", ") + " ]", nil
	case value.TagObject, value.TagError:
		if depth > 2 {
			return "{...}", nil
		}
		kvs, err := e.Objects.Iter(v)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(kvs))
		for _, kv := range kvs {
			k, err := e.toStringVal(kv.Key)
			if err != nil {
				return "", err
			}
			vs, err := e.dump(kv.Value, depth+1)
			if err != nil {
				return "", err
			}
			parts = append(parts, k+": "+vs)
		}
		return "{ " + strings.Join(parts, ", ") + " }", nil
	default:
		return e.toStringVal(v)
	}
}

// Properties returns the own enumerable (key, value) pairs of obj in
// insertion order, the embedder-facing face of spec §6's
// prop_iter_begin/next/end.
func (e *Evaluator) Properties(obj value.Value) ([]object.KV, error) {
	return e.Objects.Iter(obj)
}

// SetupImportMeta records the module URL later handed to module-loading
// collaborators as import.meta (spec §6 "setup_import_meta"); the core
// itself only stores and exposes it as the global `importMeta`, an ordinary
// writable object with a `url` property.
func (e *Evaluator) SetupImportMeta(url string) error {
	meta, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return err
	}
	urlStr, err := e.Strings.NewInline([]byte(url))
	if err != nil {
		return err
	}
	if err := e.setNamedProp(meta, "url", urlStr); err != nil {
		return err
	}
	return e.defineGlobal("importMeta", meta)
}
