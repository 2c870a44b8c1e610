package eval

import (
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/parser"
	"github.com/theMackabu/ant/internal/value"
)

// evalArgs evaluates a call/new argument list, expanding any SpreadExpr
// elements in place (spec §4.G "Spread in call arguments").
func (e *Evaluator) evalArgs(argExprs []parser.Expr, sc value.Value) ([]value.Value, error) {
	var args []value.Value
	for _, a := range argExprs {
		if sp, ok := a.(*parser.SpreadExpr); ok {
			src, err := e.evalExpr(sp.X, sc)
			if err != nil {
				return nil, err
			}
			n := e.Objects.DenseLen(src)
			for i := uint64(0); i < n; i++ {
				v, _ := e.Objects.DenseGet(src, i)
				args = append(args, v)
			}
			continue
		}
		v, err := e.evalExpr(a, sc)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// evalCall evaluates a CallExpr (spec §4.H): a plain call resolves its
// callee and invokes it with this=Undefined; a member call (`obj.f(...)`)
// binds `this` to the already-evaluated object and, for Array/String
// receivers, first checks the built-in method tables so every element
// access inside a hot loop doesn't allocate a fresh natives-table entry
// (spec §8's "100k string concatenations" seed scenario exercises exactly
// this path).
func (e *Evaluator) evalCall(n *parser.CallExpr, sc value.Value) (value.Value, error) {
	if _, ok := n.Callee.(*parser.SuperExpr); ok {
		return e.evalSuperCall(n, sc)
	}

	if me, ok := n.Callee.(*parser.MemberExpr); ok {
		obj, err := e.evalExpr(me.Obj, sc)
		if err != nil {
			return 0, err
		}
		if me.Optional && (obj == value.Undefined || obj == value.Null) {
			return value.Undefined, nil
		}
		name, err := e.memberKeyString(me, sc)
		if err != nil {
			return 0, err
		}
		args, err := e.evalArgs(n.Args, sc)
		if err != nil {
			return 0, err
		}
		if e.isArray(obj) {
			if m, ok := arrayMethods()[name]; ok {
				return m(e, obj, args)
			}
		}
		if !value.IsNumber(obj) && value.IsHeap(obj) && value.TagOf(obj) == value.TagString {
			if m, ok := stringMethods[name]; ok {
				return m(e, obj, args)
			}
		}
		fn, err := e.getByName(obj, name)
		if err != nil {
			return 0, err
		}
		if n.Optional && (fn == value.Undefined || fn == value.Null) {
			return value.Undefined, nil
		}
		if !e.isCallable(fn) {
			return 0, e.throw(ErrType, "%s is not a function", name)
		}
		return e.Call(fn, obj, args)
	}

	fn, err := e.evalExpr(n.Callee, sc)
	if err != nil {
		return 0, err
	}
	if n.Optional && (fn == value.Undefined || fn == value.Null) {
		return value.Undefined, nil
	}
	args, err := e.evalArgs(n.Args, sc)
	if err != nil {
		return 0, err
	}
	if !e.isCallable(fn) {
		return 0, e.throw(ErrType, "value is not a function")
	}
	this := value.Undefined
	if bt, ok, _ := e.Objects.Get(fn, object.SlotKey(object.SlotBoundThis)); ok {
		this = bt
	}
	return e.Call(fn, this, args)
}

// evalSuperCall implements `super(...)` inside a derived class constructor:
// it invokes the superclass constructor recorded on the current function
// (slotSuperCtor) with the current frame's this/newTarget (spec's class
// model, SPEC_FULL.md's supplemented classes section).
func (e *Evaluator) evalSuperCall(n *parser.CallExpr, sc value.Value) (value.Value, error) {
	ctor, ok, err := e.Objects.Get(e.Frames.Function, slotSuperCtor)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, e.throw(ErrSyntax, "'super' keyword is only valid inside a derived class constructor")
	}
	args, err := e.evalArgs(n.Args, sc)
	if err != nil {
		return 0, err
	}
	if value.TagOf(ctor) == value.TagFunction {
		return e.callJSFunction(ctor, e.Frames.This, args, e.Frames.NewTarget)
	}
	return e.Call(ctor, e.Frames.This, args)
}

// evalNew implements `new` (spec §4.H "construct"): native-backed
// constructors (Promise, Error and friends, registered via nativeObjs) are
// just invoked and return their own result; ordinary JS functions get a
// fresh object linked to callee.prototype, invoked with this=that object,
// and the constructor's own return value only overrides it when that
// return value is itself an object (ECMAScript's long-standing rule).
func (e *Evaluator) evalNew(n *parser.NewExpr, sc value.Value) (value.Value, error) {
	callee, err := e.evalExpr(n.Callee, sc)
	if err != nil {
		return 0, err
	}
	args, err := e.evalArgs(n.Args, sc)
	if err != nil {
		return 0, err
	}
	if !e.isCallable(callee) {
		return 0, e.throw(ErrType, "value is not a constructor")
	}
	if value.TagOf(callee) == value.TagNativeFunction {
		return e.Call(callee, value.Undefined, args)
	}
	if _, ok := e.nativeObjs.get(value.Offset(callee)); ok {
		return e.Call(callee, value.Undefined, args)
	}

	obj, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return 0, err
	}
	if protoV, ok, err := e.getNamedProp(callee, "prototype"); err != nil {
		return 0, err
	} else if ok {
		if err := e.Objects.SetProto(obj, protoV); err != nil {
			return 0, err
		}
	}
	result, err := e.callJSFunction(callee, obj, args, callee)
	if err != nil {
		return 0, err
	}
	if !value.IsNumber(result) && value.IsHeap(result) {
		switch value.TagOf(result) {
		case value.TagObject, value.TagArray, value.TagFunction, value.TagError, value.TagPromise:
			return result, nil
		}
	}
	return obj, nil
}
