package eval

import (
	"log"
	"time"

	"github.com/theMackabu/ant/internal/value"
)

// installTimerGlobals wires setTimeout/setInterval/clearTimeout/
// clearInterval/queueMicrotask onto the global scope, backed by the
// runtime's single event loop (spec §4.K). Callback values are pinned for
// the lifetime of their registration so a compaction between scheduling and
// firing cannot move them out from under the Go closure holding them; the
// pin is released when the timer fires (one-shots), is cleared, or the
// microtask runs.
func (e *Evaluator) installTimerGlobals() error {
	if err := e.defineGlobal("setTimeout", e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		return e.scheduleTimer(args, false)
	})); err != nil {
		return err
	}
	if err := e.defineGlobal("setInterval", e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		return e.scheduleTimer(args, true)
	})); err != nil {
		return err
	}
	clearFn := e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 || !value.IsNumber(args[0]) {
			return value.Undefined, nil
		}
		id := uint64(value.Float(args[0]))
		e.Loop.ClearTimeout(id)
		if pin, ok := e.timerPins[id]; ok {
			e.Unroot(pin)
			delete(e.timerPins, id)
		}
		return value.Undefined, nil
	})
	if err := e.defineGlobal("clearTimeout", clearFn); err != nil {
		return err
	}
	if err := e.defineGlobal("clearInterval", clearFn); err != nil {
		return err
	}
	return e.defineGlobal("queueMicrotask", e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		fn := argAt(args, 0)
		if !e.isCallable(fn) {
			return 0, e.throw(ErrType, "queueMicrotask requires a function")
		}
		pin := e.Root(fn)
		e.Loop.QueueMicrotask(func() {
			cb, _ := e.Deref(pin)
			e.Unroot(pin)
			if _, err := e.Call(cb, value.Undefined, nil); err != nil {
				e.reportLoopError(err)
			}
		})
		return value.Undefined, nil
	}))
}

// scheduleTimer implements setTimeout and setInterval over loop.Loop's
// timer heap; the returned JS value is the loop's timer id, usable with
// clearTimeout/clearInterval.
func (e *Evaluator) scheduleTimer(args []value.Value, interval bool) (value.Value, error) {
	fn := argAt(args, 0)
	if !e.isCallable(fn) {
		return 0, e.throw(ErrType, "setTimeout requires a function")
	}
	delay := time.Duration(0)
	if len(args) > 1 && value.IsNumber(args[1]) {
		ms := value.Float(args[1])
		if ms > 0 {
			delay = time.Duration(ms * float64(time.Millisecond))
		}
	}
	pin := e.Root(fn)
	var extraPins []uint64
	if len(args) > 2 {
		for _, a := range args[2:] {
			extraPins = append(extraPins, e.Root(a))
		}
	}

	var id uint64
	fire := func() {
		cb, _ := e.Deref(pin)
		callArgs := make([]value.Value, len(extraPins))
		for i, p := range extraPins {
			callArgs[i], _ = e.Deref(p)
		}
		if !interval {
			e.Unroot(pin)
			for _, p := range extraPins {
				e.Unroot(p)
			}
			delete(e.timerPins, id)
		}
		if _, err := e.Call(cb, value.Undefined, callArgs); err != nil {
			e.reportLoopError(err)
		}
	}
	if interval {
		id = e.Loop.SetInterval(delay, fire)
	} else {
		id = e.Loop.SetTimeout(delay, fire)
	}
	if e.timerPins == nil {
		e.timerPins = make(map[uint64]uint64)
	}
	e.timerPins[id] = pin
	return value.Number(float64(id)), nil
}

// reportLoopError surfaces an error thrown from a timer or microtask
// callback: there is no JS frame above it to catch, so it goes to stderr
// with its formatted stack (spec §7 "Top-level unhandled errors"). Arena
// exhaustion and other Go-level failures pass through unchanged.
func (e *Evaluator) reportLoopError(err error) {
	if t, ok := err.(Thrown); ok {
		s, serr := e.toStringVal(t.V)
		if serr != nil {
			s = "uncaught exception"
		}
		if value.IsHeap(t.V) {
			if stack, found, _ := e.getNamedProp(t.V, "stack"); found && stack != value.Undefined {
				if ss, err2 := e.toStringVal(stack); err2 == nil {
					s = ss
				}
			}
		}
		e.logf("uncaught (in timer/microtask): %s", s)
		return
	}
	e.logf("event loop callback failed: %v", err)
}

func (e *Evaluator) logf(format string, args ...any) {
	if e.Loop != nil && e.Loop.Logger != nil {
		e.Loop.Logger.Printf(format, args...)
		return
	}
	log.Printf("ant: eval: "+format, args...)
}
