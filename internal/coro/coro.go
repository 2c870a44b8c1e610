// Package coro implements the stackful coroutine scheduler of spec.md
// §4.J. The spec's reference implementation backs coroutines with a C
// fiber library (one OS-thread-sized stack per async function invocation
// or generator); idiomatic Go has no portable fiber primitive, but it has
// the thing fibers exist to emulate: a goroutine with its own stack that
// can block and be resumed. This package pairs one goroutine per
// Coroutine with a pair of unbuffered, rendezvous channels so that, exactly
// as spec §5 requires, at most one goroutine is ever executing JS logic at
// a time — Resume does not return until the resumed goroutine has itself
// blocked again (on Yield/Await) or finished. See DESIGN.md for the
// decision record on this goroutine-for-fiber substitution.
package coro

import (
	"errors"

	"github.com/theMackabu/ant/internal/value"
)

// SavedState is every piece of evaluator-wide state a coroutine's
// enter/leave swap must preserve (spec §4.J "Enter/leave swap"; the field
// list matches spec §9's closing reminder that "the saved-state swap... must
// preserve every piece of evaluator state listed").
type SavedState struct {
	Scope       value.Value
	This        value.Value
	Super       value.Value
	NewTarget   value.Value
	Function    value.Value
	ForLetStack []value.Value
}

// ErrBudgetExceeded is the fatal error raised when a single event-loop tick
// resumes more coroutines than CoroPerTickLimit allows (spec §4.J "guards
// against infinite spawn loops... exceeding it is a fatal RangeError").
var ErrBudgetExceeded = errors.New("coro: coroutine-per-tick budget exceeded")

// CoroPerTickLimit is CORO_PER_TICK_LIMIT from spec §4.J.
const CoroPerTickLimit = 100000

// resumeMsg carries the value delivered into a suspended coroutine: either
// the result of whatever it awaited, or the argument passed to
// Generator.next(v).
type resumeMsg struct {
	value   value.Value
	isError bool
	done    bool // scheduler requests the coroutine unwind (e.g. Generator.return())
}

// suspendKind distinguishes why a coroutine yielded control back to its
// resumer.
type suspendKind int

const (
	suspendAwait suspendKind = iota
	suspendYield
	suspendFinished
	suspendPanicked
)

type suspendMsg struct {
	kind    suspendKind
	value   value.Value // the awaited promise, or the yielded value, or the final result
	err     error
}

// Coroutine is one suspendable JS execution (an async function invocation
// or a generator instance), per spec §3 "Coroutine record".
type Coroutine struct {
	resumeCh  chan resumeMsg
	suspendCh chan suspendMsg

	started bool

	IsReady   bool
	IsDone    bool
	IsSettled bool
	IsError   bool
	Result    value.Value

	AwaitedPromise value.Value
	YieldValue     value.Value
	BoundArgs      []value.Value

	Saved SavedState

	body   Body
	queued bool
}

// Body is the coroutine's executable body. y is the handle the body uses
// to suspend itself; the body's own return value becomes the coroutine's
// final Result.
type Body func(y *Yielder) (value.Value, error)

// Yielder is passed into a running Body, giving it the two suspension
// primitives spec §4.J defines: awaiting a promise, and yielding a value
// (generators). Both block the goroutine on suspendCh/resumeCh until the
// scheduler resumes it.
type Yielder struct {
	c *Coroutine
}

// Await suspends the coroutine until the scheduler delivers a result for
// the given (already-wrapped, per spec "if p is not a promise, wrap in an
// already-fulfilled promise") awaited promise. The caller (internal/eval's
// `await` evaluation) is responsible for attaching the resume/reject
// handlers described in spec §4.J; Await itself only performs the
// suspend/resume rendezvous.
func (y *Yielder) Await(awaited value.Value) (value.Value, error) {
	y.c.suspendCh <- suspendMsg{kind: suspendAwait, value: awaited}
	msg := <-y.c.resumeCh
	if msg.done {
		return value.Undefined, errGeneratorReturn
	}
	if msg.isError {
		return value.Undefined, jsError{msg.value}
	}
	return msg.value, nil
}

// Yield suspends the coroutine with val as the yielded value (spec §4.J
// "Generators... next(v) resumes the coroutine delivering v as the prior
// yield expression's result").
func (y *Yielder) Yield(val value.Value) (value.Value, error) {
	y.c.suspendCh <- suspendMsg{kind: suspendYield, value: val}
	msg := <-y.c.resumeCh
	if msg.done {
		return value.Undefined, errGeneratorReturn
	}
	if msg.isError {
		return value.Undefined, jsError{msg.value}
	}
	return msg.value, nil
}

// errGeneratorReturn unwinds a coroutine whose caller invoked
// Generator.return()/Generator.throw() forcing early termination; the
// evaluator's per-statement execution treats it like a `return`.
var errGeneratorReturn = errors.New("coro: generator forced to return")

// jsError wraps a JS-level thrown value so it can travel through Go's
// error-returning control flow (internal/eval unwraps it back into a
// THROW-flagged evaluation).
type jsError struct{ v value.Value }

func (e jsError) Error() string { return "coro: javascript exception" }
func (e jsError) Value() value.Value { return e.v }

// New creates a not-yet-started coroutine.
func New(body Body, args []value.Value) *Coroutine {
	return &Coroutine{
		resumeCh:  make(chan resumeMsg),
		suspendCh: make(chan suspendMsg),
		IsReady:   true,
		BoundArgs: args,
		body:      body,
	}
}

// Resume is the scheduler's sole entry/leave point into a coroutine (spec
// §4.J "Enter/leave swap"): it launches the body goroutine on first call,
// delivers val on subsequent calls, and blocks until the goroutine
// suspends again or finishes. Resume itself swaps no evaluator state: the
// caller (internal/eval's resumeCoro) installs the coroutine's saved call
// stack and scope stack around the call and restores its own afterward.
func (c *Coroutine) Resume(val value.Value, isError bool) {
	if !c.started {
		c.started = true
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.suspendCh <- suspendMsg{kind: suspendPanicked, err: panicToError(r)}
				}
			}()
			y := &Yielder{c: c}
			result, err := c.body(y)
			c.suspendCh <- suspendMsg{kind: suspendFinished, value: result, err: err}
		}()
	} else {
		c.resumeCh <- resumeMsg{value: val, isError: isError}
	}

	msg := <-c.suspendCh
	switch msg.kind {
	case suspendAwait:
		c.IsReady = false
		c.AwaitedPromise = msg.value
	case suspendYield:
		c.IsReady = false
		c.YieldValue = msg.value
	case suspendFinished:
		c.IsDone = true
		c.IsReady = true
		c.IsSettled = true
		c.IsError = msg.err != nil
		if msg.err != nil {
			// Both this package's jsError and the evaluator's thrown-value
			// wrapper expose the JS value the same way.
			if vh, ok := msg.err.(interface{ Value() value.Value }); ok {
				c.Result = vh.Value()
			} else {
				c.Result = value.Undefined
			}
		} else {
			c.Result = msg.value
		}
	case suspendPanicked:
		c.IsDone = true
		c.IsReady = true
		c.IsSettled = true
		c.IsError = true
		c.Result = value.Undefined
		_ = msg.err
	}
}

// Force delivers a forced-return signal (Generator.return()) instead of a
// normal resume value; the body observes this as errGeneratorReturn from
// whichever Await/Yield call it is blocked in.
func (c *Coroutine) Force() {
	if c.IsDone {
		return
	}
	if !c.started {
		// Never ran; nothing to unwind.
		c.IsDone = true
		c.IsReady = true
		c.IsSettled = true
		return
	}
	c.resumeCh <- resumeMsg{done: true}
	msg := <-c.suspendCh
	c.IsDone = true
	c.IsReady = true
	c.IsSettled = true
	_ = msg
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("coro: panic in coroutine body")
}

// Ready is a FIFO ready queue of coroutines awaiting their next resume
// (spec §4.J "A doubly-linked ready queue"; a slice-backed FIFO gives the
// same ordering guarantee with less machinery, mirroring how
// internal/promise keeps its own handler queues as plain Go slices rather
// than reaching for container/list when order is the only requirement).
type Ready struct {
	q []*Coroutine
}

func (r *Ready) Enqueue(c *Coroutine) {
	if c.queued {
		return
	}
	c.queued = true
	r.q = append(r.q, c)
}

func (r *Ready) Dequeue() (*Coroutine, bool) {
	if len(r.q) == 0 {
		return nil, false
	}
	c := r.q[0]
	r.q = r.q[1:]
	c.queued = false
	return c, true
}

func (r *Ready) Len() int { return len(r.q) }
