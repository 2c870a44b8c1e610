// Package promise implements the settled/pending promise model of
// spec.md §4.I on top of internal/object's internal slots: state, value,
// and a pending-handlers list, with microtask enqueue delegated to an
// injected scheduler (internal/loop) so this package stays independent of
// the event loop's concrete type, mirroring how the teacher pack's
// eventloop.Promise is consumed by goja-eventloop without eventloop
// importing the JS engine.
package promise

import (
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/value"
)

// State mirrors spec §3 "Promise... internal slots: state".
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

// Handler is one registered then() reaction: onFulfilled/onReject are JS
// function values (or Undefined if omitted, per spec §4.I "if handlers are
// absent, the parent state propagates"), and result is the promise that
// then() returned, which must itself be resolved/rejected with the
// handler's outcome.
type Handler struct {
	OnFulfilled value.Value
	OnReject    value.Value
	Result      value.Value // a Promise value
}

// Microtasker is the minimal scheduler dependency: enqueue a zero-arg
// callback to run once microtasks are next drained (spec §4.I "pending
// handlers are enqueued into the microtask queue in registration order").
type Microtasker interface {
	QueueMicrotask(fn func())
}

// Invoker calls a JS function value with the given this/args and returns
// its result or a thrown error; kept abstract so this package never
// imports internal/eval (which itself depends on internal/promise),
// avoiding an import cycle.
type Invoker interface {
	Call(fn, this value.Value, args []value.Value) (value.Value, error)
}

// Promises is the promise store over a shared object store.
type Promises struct {
	o   *object.Objects
	mt  Microtasker
	inv Invoker

	// unhandledRejection, if set, is invoked when a rejected promise is
	// garbage without ever having had a rejection handler attached by the
	// time the microtask queue drains (spec §7 "Unhandled rejections in
	// promises fire a collaborator-installed callback").
	unhandledRejection func(reason value.Value)

	reg *registry
}

func New(o *object.Objects, mt Microtasker, inv Invoker) *Promises {
	return &Promises{o: o, mt: mt, inv: inv, reg: &registry{pending: make(map[uint64][]Handler)}}
}

// Rebind points the store at a post-compaction object store; all Values it
// holds were already rewritten in place via Roots/Prune.
func (p *Promises) Rebind(o *object.Objects) { p.o = o }

// OnUnhandledRejection installs the default-CLI-style callback described
// in spec §7.
func (p *Promises) OnUnhandledRejection(fn func(reason value.Value)) {
	p.unhandledRejection = fn
}

var (
	slotState = object.SlotID(object.SlotUserSlotBase)
	slotValue = object.SlotID(object.SlotUserSlotBase + 1)
)

// Since a Handler list can't be packed into a single NaN-boxed Value, the
// pending handler queue is kept Go-side, indexed by promise arena offset
// (mirroring how internal/gc already keeps its forwarding table and
// internal/object's hash-index out of the arena: derived, non-arena-resident
// structures rebuilt/pruned around compaction rather than packed into
// 8-byte slots).
type registry struct {
	pending map[uint64][]Handler
}

func (p *Promises) pendingFor(off uint64) []Handler { return p.handlers().pending[off] }

// handlers lazily initializes the Go-side pending-handler table. Stored on
// Promises rather than per-call to survive across New/Resolve/Reject
// calls.
func (p *Promises) handlers() *registry {
	if p.reg == nil {
		p.reg = &registry{pending: make(map[uint64][]Handler)}
	}
	return p.reg
}

// New allocates a fresh pending promise (spec §3).
func (p *Promises) New() (value.Value, error) {
	v, err := p.o.New(object.KindPromise)
	if err != nil {
		return 0, err
	}
	if err := p.o.Set(v, object.SlotKey(slotState), value.Number(float64(Pending)), object.FlagSlot, true); err != nil {
		return 0, err
	}
	if err := p.o.Set(v, object.SlotKey(slotValue), value.Undefined, object.FlagSlot, true); err != nil {
		return 0, err
	}
	return v, nil
}

// StateOf returns a promise's current state.
func (p *Promises) StateOf(prom value.Value) State {
	v, ok, _ := p.o.Get(prom, object.SlotKey(slotState))
	if !ok {
		return Pending
	}
	return State(value.Float(v))
}

// ValueOf returns a settled promise's fulfillment value or rejection
// reason; Undefined while pending.
func (p *Promises) ValueOf(prom value.Value) value.Value {
	v, _, _ := p.o.Get(prom, object.SlotKey(slotValue))
	return v
}

func (p *Promises) settle(prom value.Value, state State, val value.Value) error {
	if p.StateOf(prom) != Pending {
		return nil // spec §4.I / §8: at most one of resolve/reject has effect
	}
	if err := p.o.Set(prom, object.SlotKey(slotState), value.Number(float64(state)), object.FlagSlot, true); err != nil {
		return err
	}
	if err := p.o.Set(prom, object.SlotKey(slotValue), val, object.FlagSlot, true); err != nil {
		return err
	}

	off := value.Offset(prom)
	pending := p.handlers().pending[off]
	delete(p.handlers().pending, off)

	if state == Rejected && len(pending) == 0 && p.unhandledRejection != nil {
		p.mt.QueueMicrotask(func() {
			if p.StateOf(prom) == Rejected && len(p.pendingFor(off)) == 0 {
				p.unhandledRejection(val)
			}
		})
	}

	for _, h := range pending {
		h := h
		p.mt.QueueMicrotask(func() { p.runHandler(h, state, val) })
	}
	return nil
}

// Resolve transitions prom to Fulfilled with val, unless val is itself a
// thenable promise, in which case prom adopts its eventual state (spec
// §4.I "resolve and reject transition state exactly once").
func (p *Promises) Resolve(prom, val value.Value) error {
	if p.o.Kind(val) == object.KindPromise {
		return p.Then(val, value.Undefined, value.Undefined, prom)
	}
	return p.settle(prom, Fulfilled, val)
}

// Reject transitions prom to Rejected with reason.
func (p *Promises) Reject(prom, reason value.Value) error {
	return p.settle(prom, Rejected, reason)
}

// Then registers handlers whose outcome settles result, honoring
// current-state fast dispatch and pending-state queuing (spec §4.I). When
// result is zero a fresh promise is allocated for it; that promise is not
// returned to the caller.
func (p *Promises) Then(prom, onFulfilled, onReject value.Value, result value.Value) error {
	var err error
	if result == 0 {
		result, err = p.New()
		if err != nil {
			return err
		}
	}
	h := Handler{OnFulfilled: onFulfilled, OnReject: onReject, Result: result}

	off := value.Offset(prom)
	switch p.StateOf(prom) {
	case Pending:
		p.handlers().pending[off] = append(p.handlers().pending[off], h)
	}

	switch p.StateOf(prom) {
	case Fulfilled:
		val := p.ValueOf(prom)
		delete(p.handlers().pending, off)
		p.mt.QueueMicrotask(func() { p.runHandler(h, Fulfilled, val) })
	case Rejected:
		val := p.ValueOf(prom)
		delete(p.handlers().pending, off)
		p.mt.QueueMicrotask(func() { p.runHandler(h, Rejected, val) })
	}
	return nil
}

// runHandler invokes the appropriate reaction (or propagates state when the
// handler is absent) and settles h.Result with the outcome, per spec §4.I
// "then(onFulfilled, onReject) returns a new promise".
func (p *Promises) runHandler(h Handler, state State, val value.Value) {
	handler := h.OnFulfilled
	if state == Rejected {
		handler = h.OnReject
	}
	if handler == value.Undefined || handler == 0 {
		if state == Fulfilled {
			_ = p.Resolve(h.Result, val)
		} else {
			_ = p.Reject(h.Result, val)
		}
		return
	}
	out, err := p.inv.Call(handler, value.Undefined, []value.Value{val})
	if err != nil {
		_ = p.Reject(h.Result, errorValue(err))
		return
	}
	_ = p.Resolve(h.Result, out)
}

// errorValue extracts a JS error value from a Go error when the error
// originated as a thrown JS value (internal/eval wraps thrown values in
// such an error type); otherwise it is a host error surfaced to JS as a
// generic error value by the caller (internal/eval owns that construction,
// so this is a narrow seam kept here only for the invoker boundary).
func errorValue(err error) value.Value {
	if ev, ok := err.(interface{ Value() value.Value }); ok {
		return ev.Value()
	}
	return value.Undefined
}

// Roots implements gc.RootProvider-compatible semantics for the Go-side
// pending-handler registry: every Handler's Result and any captured
// JS function values must stay reachable across a compaction even though
// they live outside the arena-resident slot chain.
func (p *Promises) Roots() []*value.Value {
	reg := p.handlers()
	out := make([]*value.Value, 0, len(reg.pending)*3)
	for k := range reg.pending {
		hs := reg.pending[k]
		for i := range hs {
			out = append(out, &hs[i].OnFulfilled, &hs[i].OnReject, &hs[i].Result)
		}
		reg.pending[k] = hs
	}
	return out
}

// Prune implements gc.WeakTable: once a promise is no longer reachable by
// any strong root, its pending-handler bucket (keyed by old arena offset)
// is dropped rather than rewritten, matching spec §4.E's weak-table
// pruning pass. Promises package registers itself as a WeakTable because
// handler buckets are keyed by offset, which changes on every compaction;
// Roots above keeps the handler *values* alive, Prune re-keys the map.
func (p *Promises) Prune(lookup func(oldOffset uint64) (newOffset uint64, alive bool)) {
	reg := p.handlers()
	next := make(map[uint64][]Handler, len(reg.pending))
	for off, hs := range reg.pending {
		if newOff, ok := lookup(off); ok {
			next[newOff] = hs
		}
	}
	reg.pending = next
}
