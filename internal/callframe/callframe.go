// Package callframe implements the invocation protocol described in
// spec.md §4.H: pushing a call frame for stack-trace reporting, creating a
// fresh function scope, binding formal parameters (including rest params
// and `arguments`), setting `this`/`super`/`new.target`, and restoring the
// previous frame's values on return.
package callframe

import (
	"errors"

	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/scope"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

// Position is a source location, used for stack-trace frames (spec §4.H
// step 1, §7 "the throwing site's file/line/column").
type Position struct {
	File   string
	Line   int
	Column int
}

// Frame is one entry in the call stack: the information needed to print a
// frame in a formatted error stack (spec §7), plus the saved evaluator
// state the frame restores on pop.
type Frame struct {
	FuncName string
	Pos      Position

	Scope     value.Value
	This      value.Value
	Super     value.Value
	NewTarget value.Value
	Function  value.Value

	// saved* mirror the evaluator-wide registers this frame temporarily
	// overrides; Frames.Pop restores them (spec §4.H step 6 "restore
	// previous this/super/new.target").
	savedScope     value.Value
	savedThis      value.Value
	savedSuper     value.Value
	savedNewTarget value.Value
	savedFunction  value.Value

	// scopeMark is the scope live-stack depth at Push time; Pop releases
	// back to it, dropping this call's function and block scopes from the
	// root set in one truncation.
	scopeMark int
}

// Frames is the call stack for one evaluator. Not safe for concurrent use
// (spec §5: exactly one evaluator runs JS at a time); a coroutine switch
// swaps the whole stack out via internal/coro, it never interleaves with
// another one.
type Frames struct {
	scopes *scope.Scopes

	// argumentsKey is "arguments" interned once at construction rather
	// than on every Push.
	argumentsKey value.Value

	stack []*Frame

	Scope     value.Value
	This      value.Value
	Super     value.Value
	NewTarget value.Value
	Function  value.Value
}

func New(scopes *scope.Scopes, strings *strtab.Strings) (*Frames, error) {
	argKey, err := strings.NewInline([]byte("arguments"))
	if err != nil {
		return nil, err
	}
	return &Frames{scopes: scopes, argumentsKey: argKey}, nil
}

// MaxDepth bounds call-frame depth the way spec §4.G bounds parse/eval
// recursion: exceeding it is a RangeError (stack overflow), not a Go
// stack-overflow crash, since the evaluator recurses through Go's own
// call stack while walking the AST.
const MaxDepth = 2048

// ErrStackOverflow is returned by Push when the call stack would exceed
// MaxDepth (spec §4.G "Parse and eval recursion depths with a ceiling").
var errStackOverflow = errors.New("callframe: maximum call stack size exceeded")

// ErrStackOverflow is the exported sentinel embedders/eval can match with
// errors.Is.
var ErrStackOverflow = errStackOverflow

// Push installs a fresh function scope parented at closureScope and
// returns the new Frame, which the caller must later pass to Pop. args are
// already-evaluated argument values; params/restName/hasRest describe the
// callee's formal parameter list. Push always builds an `arguments` array
// from args through the caller-supplied objects store o and declares it in
// the new function scope.
func (f *Frames) Push(o *object.Objects, closureScope value.Value, funcName string, pos Position, fn value.Value, this, newTarget, superProto value.Value, params []value.Value, restName value.Value, hasRest bool, args []value.Value) (*Frame, error) {
	if len(f.stack) >= MaxDepth {
		return nil, errStackOverflow
	}

	scopeMark := f.scopes.Mark()
	fnScope, err := f.scopes.Push(closureScope)
	if err != nil {
		return nil, err
	}

	for i, p := range params {
		var v value.Value = value.Undefined
		if i < len(args) {
			v = args[i]
		}
		if err := f.scopes.Declare(fnScope, p, v, false); err != nil {
			return nil, err
		}
	}
	if hasRest {
		restArr, err := o.New(object.KindArray)
		if err != nil {
			return nil, err
		}
		tailStart := len(params)
		if tailStart < len(args) {
			if err := o.EnsureDense(restArr, uint64(len(args)-tailStart)); err != nil {
				return nil, err
			}
			for i := tailStart; i < len(args); i++ {
				if err := o.DenseSet(restArr, uint64(i-tailStart), args[i]); err != nil {
					return nil, err
				}
			}
		}
		if err := f.scopes.Declare(fnScope, restName, restArr, false); err != nil {
			return nil, err
		}
	}

	argObj, err := o.New(object.KindArray)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		if err := o.EnsureDense(argObj, uint64(len(args))); err != nil {
			return nil, err
		}
		for i, a := range args {
			if err := o.DenseSet(argObj, uint64(i), a); err != nil {
				return nil, err
			}
		}
	}
	if err := f.scopes.Declare(fnScope, f.argumentsKey, argObj, false); err != nil {
		return nil, err
	}

	frame := &Frame{
		FuncName:       funcName,
		Pos:            pos,
		Scope:          fnScope,
		This:           this,
		Super:          superProto,
		NewTarget:      newTarget,
		Function:       fn,
		savedScope:     f.Scope,
		savedThis:      f.This,
		savedSuper:     f.Super,
		savedNewTarget: f.NewTarget,
		savedFunction:  f.Function,
		scopeMark:      scopeMark,
	}
	f.stack = append(f.stack, frame)
	f.Scope, f.This, f.Super, f.NewTarget, f.Function = fnScope, this, superProto, newTarget, fn
	return frame, nil
}

// Pop restores the evaluator-wide registers to their values before the
// matching Push (spec §4.H step 6). Popping out of order (not the current
// top frame) is a programmer error and panics, mirroring how the teacher
// pack's call-stack disciplines are enforced by construction rather than
// defended against at runtime.
func (f *Frames) Pop(frame *Frame) {
	n := len(f.stack)
	if n == 0 || f.stack[n-1] != frame {
		panic("callframe: Pop called out of order")
	}
	f.stack = f.stack[:n-1]
	f.scopes.Release(frame.scopeMark)
	f.Scope, f.This, f.Super, f.NewTarget, f.Function =
		frame.savedScope, frame.savedThis, frame.savedSuper, frame.savedNewTarget, frame.savedFunction
}

// Stack returns a snapshot of the current frames, innermost first, for
// building a formatted error stack (spec §7).
func (f *Frames) Stack() []Frame {
	out := make([]Frame, len(f.stack))
	for i, fr := range f.stack {
		out[len(f.stack)-1-i] = *fr
	}
	return out
}

// Roots implements gc.RootProvider: every live frame pins its scope and
// this/super/newTarget/function, plus the evaluator-wide current values.
func (f *Frames) Roots() []*value.Value {
	out := make([]*value.Value, 0, len(f.stack)*5+6)
	out = append(out, &f.argumentsKey, &f.Scope, &f.This, &f.Super, &f.NewTarget, &f.Function)
	for _, fr := range f.stack {
		out = append(out, &fr.Scope, &fr.This, &fr.Super, &fr.NewTarget, &fr.Function)
	}
	return out
}
