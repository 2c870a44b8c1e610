package eval

import (
	"errors"
	"strconv"

	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/parser"
	"github.com/theMackabu/ant/internal/token"
	"github.com/theMackabu/ant/internal/value"
)

var errUnsupportedCompoundAssign = errors.New("eval: unsupported compound assignment operator")

// parseArrayIndex reports whether name is a canonical non-negative integer
// index string (spec §4.D "Array-indexed properties"), returning the index.
func parseArrayIndex(name string) (uint64, bool) {
	if name == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.FormatUint(n, 10) != name {
		return 0, false // rejects "01", "+1", etc.
	}
	return n, true
}

// memberKeyString evaluates me's property-name component to a string,
// without touching obj (used by both evalMember and assignTo so computed
// keys are only ever evaluated once per access site).
func (e *Evaluator) memberKeyString(me *parser.MemberExpr, sc value.Value) (string, error) {
	if !me.Computed {
		return me.Prop.(*parser.Ident).Name, nil
	}
	kv, err := e.evalExpr(me.Prop, sc)
	if err != nil {
		return "", err
	}
	return e.toStringVal(kv)
}

// memberKey evaluates me's property name to an object.Key, for delete's use
// (spec §3 "delete removes an own property").
func (e *Evaluator) memberKey(me *parser.MemberExpr, sc value.Value) (object.Key, error) {
	name, err := e.memberKeyString(me, sc)
	if err != nil {
		return object.Key{}, err
	}
	nameVal, err := e.intern(name)
	if err != nil {
		return object.Key{}, err
	}
	return object.StringKey(nameVal), nil
}

// evalMember evaluates a MemberExpr, returning both its value and the
// evaluated object (evalCall's `obj.method(...)` dispatch needs the object
// to bind as `this` without re-evaluating me.Obj, which could have side
// effects).
func (e *Evaluator) evalMember(me *parser.MemberExpr, sc value.Value) (value.Value, value.Value, error) {
	obj, err := e.evalExpr(me.Obj, sc)
	if err != nil {
		return 0, 0, err
	}
	if me.Optional && (obj == value.Undefined || obj == value.Null) {
		return value.Undefined, obj, nil
	}
	name, err := e.memberKeyString(me, sc)
	if err != nil {
		return 0, 0, err
	}
	v, err := e.getByName(obj, name)
	return v, obj, err
}

// getByName resolves name on obj, special-casing array/string "length" and
// numeric indices ahead of the generic property chain (spec §4.D's dense
// buffer is not itself addressable through object.Objects.Get).
func (e *Evaluator) getByName(obj value.Value, name string) (value.Value, error) {
	if value.IsNumber(obj) || obj == value.Undefined || obj == value.Null {
		return 0, e.throw(ErrType, "cannot read properties of %s (reading '%s')", value.TypeOf(obj), name)
	}
	if e.isArray(obj) {
		if name == "length" {
			return value.Number(float64(e.Objects.DenseLen(obj))), nil
		}
		if idx, ok := parseArrayIndex(name); ok {
			if v, ok := e.Objects.DenseGet(obj, idx); ok {
				return v, nil
			}
			return value.Undefined, nil
		}
	}
	if !value.IsNumber(obj) && value.IsHeap(obj) && value.TagOf(obj) == value.TagString {
		if name == "length" {
			n, err := e.Strings.Len(obj)
			return value.Number(float64(n)), err
		}
		if idx, ok := parseArrayIndex(name); ok {
			b, err := e.Strings.Bytes(obj)
			if err != nil {
				return 0, err
			}
			if idx >= uint64(len(b)) {
				return value.Undefined, nil
			}
			return e.Strings.NewInline(b[idx : idx+1])
		}
	}
	v, ok, err := e.getNamedProp(obj, name)
	if err != nil {
		return 0, err
	}
	if ok {
		return v, nil
	}
	// Accessor-property fallback (spec §3 object literal getters, stored by
	// evalObjectLit under a "get "-prefixed key since this subset has no
	// dedicated descriptor slot for them).
	if getter, ok, err := e.getNamedProp(obj, "get "+name); err == nil && ok {
		return e.Call(getter, obj, nil)
	} else if err != nil {
		return 0, err
	}
	return value.Undefined, nil
}

// setByName is getByName's write counterpart, used by evalAssign for both
// plain `=` and its desugared compound forms.
func (e *Evaluator) setByName(obj value.Value, name string, v value.Value) error {
	if e.isArray(obj) {
		if name == "length" {
			n, err := e.toNumberVal(v)
			if err != nil {
				return err
			}
			return e.Objects.SetDenseLen(obj, uint64(n))
		}
		if idx, ok := parseArrayIndex(name); ok {
			return e.Objects.DenseSet(obj, idx, v)
		}
	}
	if setter, ok, err := e.getNamedProp(obj, "set "+name); err == nil && ok {
		_, err := e.Call(setter, obj, []value.Value{v})
		return err
	} else if err != nil {
		return err
	}
	return e.setNamedProp(obj, name, v)
}

// assignTo writes v into the binding or property target denotes (spec
// §4.G's AssignmentExpression targets: Identifier or MemberExpression).
func (e *Evaluator) assignTo(target parser.Expr, v value.Value, sc value.Value) error {
	switch t := target.(type) {
	case *parser.Ident:
		nameVal, err := e.intern(t.Name)
		if err != nil {
			return err
		}
		return e.Scopes.Assign(sc, nameVal, v, e.Strict)
	case *parser.MemberExpr:
		obj, err := e.evalExpr(t.Obj, sc)
		if err != nil {
			return err
		}
		name, err := e.memberKeyString(t, sc)
		if err != nil {
			return err
		}
		return e.setByName(obj, name, v)
	default:
		return e.throw(ErrSyntax, "invalid assignment target")
	}
}

// evalAssign implements `=` and the compound assignment operators this
// subset's token set carries (spec §4.G; internal/token only defines
// +=/-=/*=//= compound forms).
func (e *Evaluator) evalAssign(n *parser.AssignExpr, sc value.Value) (value.Value, error) {
	if n.Op == token.Assign {
		v, err := e.evalExpr(n.Value, sc)
		if err != nil {
			return 0, err
		}
		if err := e.assignTo(n.Target, v, sc); err != nil {
			return 0, err
		}
		return v, nil
	}
	old, err := e.evalExpr(n.Target, sc)
	if err != nil {
		return 0, err
	}
	rhs, err := e.evalExpr(n.Value, sc)
	if err != nil {
		return 0, err
	}
	op, err := compoundOp(n.Op)
	if err != nil {
		return 0, err
	}
	nv, err := e.applyBinary(op, old, rhs)
	if err != nil {
		return 0, err
	}
	if err := e.assignTo(n.Target, nv, sc); err != nil {
		return 0, err
	}
	return nv, nil
}

// compoundOp maps a compound-assignment token to the binary operator it
// desugars to (internal/token's assignment-operator set is limited to
// +=/-=/*=//=, spec.md's "pragmatic subset" not modeling %=/**=/bitwise
// compound forms).
func compoundOp(op token.Kind) (token.Kind, error) {
	switch op {
	case token.PlusAssign:
		return token.Plus, nil
	case token.MinusAssign:
		return token.Minus, nil
	case token.StarAssign:
		return token.Star, nil
	case token.SlashAssign:
		return token.Slash, nil
	default:
		return 0, errUnsupportedCompoundAssign
	}
}
