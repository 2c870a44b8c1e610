package eval

import (
	"math"

	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/parser"
	"github.com/theMackabu/ant/internal/token"
	"github.com/theMackabu/ant/internal/value"
)

// evalExpr evaluates expr in scope sc, returning its value (spec §4.G's
// tree-walking expression evaluation).
func (e *Evaluator) evalExpr(expr parser.Expr, sc value.Value) (value.Value, error) {
	switch n := expr.(type) {
	case *parser.NumberLit:
		return value.Number(n.Value), nil

	case *parser.StringLit:
		return e.Strings.NewInline([]byte(n.Value))

	case *parser.TemplateLit:
		return e.evalTemplate(n, sc)

	case *parser.BoolLit:
		return value.Bool(n.Value), nil

	case *parser.NullLit:
		return value.Null, nil

	case *parser.UndefinedLit:
		return value.Undefined, nil

	case *parser.Ident:
		nameVal, err := e.intern(n.Name)
		if err != nil {
			return 0, err
		}
		_, v, err := e.Scopes.Resolve(sc, nameVal, e.Strict)
		if err != nil {
			return 0, e.throw(ErrReference, "%s is not defined", n.Name)
		}
		return v, nil

	case *parser.ThisExpr:
		return e.Frames.This, nil

	case *parser.SuperExpr:
		return e.Frames.Super, nil

	case *parser.ArrayLit:
		return e.evalArrayLit(n, sc)

	case *parser.ObjectLit:
		return e.evalObjectLit(n, sc)

	case *parser.FuncLit:
		fn, err := e.makeFunction(n, sc)
		if err != nil {
			return 0, err
		}
		if n.IsArrow {
			if err := e.Objects.Set(fn, object.SlotKey(object.SlotBoundThis), e.Frames.This, object.FlagSlot, true); err != nil {
				return 0, err
			}
		}
		return fn, nil

	case *parser.ClassLit:
		return e.evalClass(n, sc)

	case *parser.UnaryExpr:
		return e.evalUnary(n, sc)

	case *parser.BinaryExpr:
		return e.evalBinary(n, sc)

	case *parser.LogicalExpr:
		return e.evalLogical(n, sc)

	case *parser.AssignExpr:
		return e.evalAssign(n, sc)

	case *parser.ConditionalExpr:
		cond, err := e.evalExpr(n.Cond, sc)
		if err != nil {
			return 0, err
		}
		if value.Truthy(cond) {
			return e.evalExpr(n.Then, sc)
		}
		return e.evalExpr(n.Else, sc)

	case *parser.CallExpr:
		return e.evalCall(n, sc)

	case *parser.NewExpr:
		return e.evalNew(n, sc)

	case *parser.MemberExpr:
		v, _, err := e.evalMember(n, sc)
		return v, err

	case *parser.AwaitExpr:
		v, err := e.evalExpr(n.X, sc)
		if err != nil {
			return 0, err
		}
		if e.curY == nil {
			return 0, e.throw(ErrSyntax, "await is only valid in async functions")
		}
		return e.curY.Await(v)

	case *parser.YieldExpr:
		return e.evalYield(n, sc)

	case *parser.SpreadExpr:
		return e.evalExpr(n.X, sc)

	default:
		return 0, e.throw(ErrInternal, "unsupported expression type")
	}
}

func (e *Evaluator) evalTemplate(n *parser.TemplateLit, sc value.Value) (value.Value, error) {
	out, err := e.Strings.NewInline([]byte(n.Quasis[0]))
	if err != nil {
		return 0, err
	}
	for i, x := range n.Exprs {
		v, err := e.evalExpr(x, sc)
		if err != nil {
			return 0, err
		}
		s, err := e.toStringVal(v)
		if err != nil {
			return 0, err
		}
		sv, err := e.Strings.NewInline([]byte(s))
		if err != nil {
			return 0, err
		}
		out, err = e.Strings.Concat(out, sv)
		if err != nil {
			return 0, err
		}
		qv, err := e.Strings.NewInline([]byte(n.Quasis[i+1]))
		if err != nil {
			return 0, err
		}
		out, err = e.Strings.Concat(out, qv)
		if err != nil {
			return 0, err
		}
	}
	return out, nil
}

func (e *Evaluator) evalArrayLit(n *parser.ArrayLit, sc value.Value) (value.Value, error) {
	arr, err := e.Objects.New(object.KindArray)
	if err != nil {
		return 0, err
	}
	if err := e.Objects.EnsureDense(arr, uint64(len(n.Elems))); err != nil {
		return 0, err
	}
	idx := uint64(0)
	for _, el := range n.Elems {
		if sp, ok := el.(*parser.SpreadExpr); ok {
			src, err := e.evalExpr(sp.X, sc)
			if err != nil {
				return 0, err
			}
			n := e.Objects.DenseLen(src)
			for i := uint64(0); i < n; i++ {
				v, _ := e.Objects.DenseGet(src, i)
				if err := e.Objects.DenseSet(arr, idx, v); err != nil {
					return 0, err
				}
				idx++
			}
			continue
		}
		v, err := e.evalExpr(el, sc)
		if err != nil {
			return 0, err
		}
		if err := e.Objects.DenseSet(arr, idx, v); err != nil {
			return 0, err
		}
		idx++
	}
	return arr, nil
}

func (e *Evaluator) evalObjectLit(n *parser.ObjectLit, sc value.Value) (value.Value, error) {
	obj, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return 0, err
	}
	for _, p := range n.Props {
		if p.Kind == parser.PropSpread {
			src, err := e.evalExpr(p.Value, sc)
			if err != nil {
				return 0, err
			}
			kvs, err := e.Objects.Iter(src)
			if err != nil {
				return 0, err
			}
			for _, kv := range kvs {
				if err := e.Objects.Set(obj, object.StringKey(kv.Key), kv.Value, 0, true); err != nil {
					return 0, err
				}
			}
			continue
		}
		var keyVal value.Value
		if p.Computed {
			kv, err := e.evalExpr(p.KeyExpr, sc)
			if err != nil {
				return 0, err
			}
			ks, err := e.toStringVal(kv)
			if err != nil {
				return 0, err
			}
			keyVal, err = e.intern(ks)
			if err != nil {
				return 0, err
			}
		} else {
			keyVal, err = e.intern(p.KeyName)
			if err != nil {
				return 0, err
			}
		}
		v, err := e.evalExpr(p.Value, sc)
		if err != nil {
			return 0, err
		}
		// Getters/setters are stored as plain function-valued properties
		// keyed by a "get "/"set " prefix (spec §3 doesn't model accessor
		// pairs on plain objects beyond what this pragmatic subset needs);
		// evalMember consults these when a plain data property is absent.
		name := p.KeyName
		switch p.Kind {
		case parser.PropGetter:
			gk, err := e.intern("get " + name)
			if err != nil {
				return 0, err
			}
			if err := e.Objects.Set(obj, object.StringKey(gk), v, 0, true); err != nil {
				return 0, err
			}
			continue
		case parser.PropSetter:
			sk, err := e.intern("set " + name)
			if err != nil {
				return 0, err
			}
			if err := e.Objects.Set(obj, object.StringKey(sk), v, 0, true); err != nil {
				return 0, err
			}
			continue
		}
		if err := e.Objects.Set(obj, object.StringKey(keyVal), v, 0, true); err != nil {
			return 0, err
		}
	}
	return obj, nil
}

func (e *Evaluator) evalUnary(n *parser.UnaryExpr, sc value.Value) (value.Value, error) {
	if n.Op == token.PlusPlus || n.Op == token.MinusMinus {
		return e.evalIncDec(n, sc)
	}
	if n.Op == token.KwTypeof {
		if id, ok := n.X.(*parser.Ident); ok {
			nameVal, err := e.intern(id.Name)
			if err != nil {
				return 0, err
			}
			_, v, err := e.Scopes.Resolve(sc, nameVal, false)
			if err != nil {
				return 0, err
			}
			s, err := e.intern(value.TypeOf(v))
			return s, err
		}
	}
	if n.Op == token.KwDelete {
		if me, ok := n.X.(*parser.MemberExpr); ok {
			obj, err := e.evalExpr(me.Obj, sc)
			if err != nil {
				return 0, err
			}
			k, err := e.memberKey(me, sc)
			if err != nil {
				return 0, err
			}
			ok, err := e.Objects.Delete(obj, k)
			if err != nil {
				return 0, err
			}
			return value.Bool(ok), nil
		}
		return value.True, nil
	}

	v, err := e.evalExpr(n.X, sc)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case token.Bang:
		return value.Bool(!value.Truthy(v)), nil
	case token.Minus:
		f, err := e.toNumberVal(v)
		if err != nil {
			return 0, err
		}
		return value.Number(-f), nil
	case token.Plus:
		f, err := e.toNumberVal(v)
		if err != nil {
			return 0, err
		}
		return value.Number(f), nil
	case token.Tilde:
		f, err := e.toNumberVal(v)
		if err != nil {
			return 0, err
		}
		return value.Number(float64(^toInt32(f))), nil
	case token.KwVoid:
		return value.Undefined, nil
	case token.KwTypeof:
		s, err := e.intern(value.TypeOf(v))
		return s, err
	default:
		return 0, e.throw(ErrInternal, "unsupported unary operator")
	}
}

func (e *Evaluator) evalIncDec(n *parser.UnaryExpr, sc value.Value) (value.Value, error) {
	old, err := e.evalExpr(n.X, sc)
	if err != nil {
		return 0, err
	}
	f, err := e.toNumberVal(old)
	if err != nil {
		return 0, err
	}
	delta := 1.0
	if n.Op == token.MinusMinus {
		delta = -1.0
	}
	nv := value.Number(f + delta)
	if err := e.assignTo(n.X, nv, sc); err != nil {
		return 0, err
	}
	if n.Prefix {
		return nv, nil
	}
	return value.Number(f), nil
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(int64(f))
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(f))
}

func (e *Evaluator) evalBinary(n *parser.BinaryExpr, sc value.Value) (value.Value, error) {
	l, err := e.evalExpr(n.L, sc)
	if err != nil {
		return 0, err
	}
	r, err := e.evalExpr(n.R, sc)
	if err != nil {
		return 0, err
	}
	return e.applyBinary(n.Op, l, r)
}

func (e *Evaluator) applyBinary(op token.Kind, l, r value.Value) (value.Value, error) {
	switch op {
	case token.Plus:
		lIsStr := !value.IsNumber(l) && value.IsHeap(l) && value.TagOf(l) == value.TagString
		rIsStr := !value.IsNumber(r) && value.IsHeap(r) && value.TagOf(r) == value.TagString
		if lIsStr || rIsStr {
			ls, err := e.toStringVal(l)
			if err != nil {
				return 0, err
			}
			rs, err := e.toStringVal(r)
			if err != nil {
				return 0, err
			}
			lv, err := e.Strings.NewInline([]byte(ls))
			if err != nil {
				return 0, err
			}
			rv, err := e.Strings.NewInline([]byte(rs))
			if err != nil {
				return 0, err
			}
			return e.Strings.Concat(lv, rv)
		}
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(lf + rf), nil
	case token.Minus:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(lf - rf), nil
	case token.Star:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(lf * rf), nil
	case token.Slash:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(lf / rf), nil
	case token.Percent:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(math.Mod(lf, rf)), nil
	case token.StarStar:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(math.Pow(lf, rf)), nil
	case token.Lt, token.Gt, token.LtEq, token.GtEq:
		return e.compare(op, l, r)
	case token.Eq:
		eq, err := e.looseEquals(l, r)
		return value.Bool(eq), err
	case token.NotEq:
		eq, err := e.looseEquals(l, r)
		return value.Bool(!eq), err
	case token.StrictEq:
		return value.Bool(strictEquals(e, l, r)), nil
	case token.StrictNotEq:
		return value.Bool(!strictEquals(e, l, r)), nil
	case token.Amp:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(float64(toInt32(lf) & toInt32(rf))), nil
	case token.Pipe:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(float64(toInt32(lf) | toInt32(rf))), nil
	case token.Caret:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(float64(toInt32(lf) ^ toInt32(rf))), nil
	case token.Shl:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(float64(toInt32(lf) << (toUint32(rf) & 31))), nil
	case token.Shr:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(float64(toInt32(lf) >> (toUint32(rf) & 31))), nil
	case token.UShr:
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		return value.Number(float64(toUint32(lf) >> (toUint32(rf) & 31))), nil
	case token.KwInstanceof:
		return e.instanceOf(l, r)
	case token.KwIn:
		k, err := e.toStringVal(l)
		if err != nil {
			return 0, err
		}
		kv, err := e.intern(k)
		if err != nil {
			return 0, err
		}
		_, ok, err := e.Objects.Get(r, object.StringKey(kv))
		return value.Bool(ok), err
	default:
		return 0, e.throw(ErrInternal, "unsupported binary operator")
	}
}

func (e *Evaluator) numPair(l, r value.Value) (float64, float64, error) {
	lf, err := e.toNumberVal(l)
	if err != nil {
		return 0, 0, err
	}
	rf, err := e.toNumberVal(r)
	if err != nil {
		return 0, 0, err
	}
	return lf, rf, nil
}

func (e *Evaluator) compare(op token.Kind, l, r value.Value) (value.Value, error) {
	lIsStr := !value.IsNumber(l) && value.IsHeap(l) && value.TagOf(l) == value.TagString
	rIsStr := !value.IsNumber(r) && value.IsHeap(r) && value.TagOf(r) == value.TagString
	var lt, eq bool
	if lIsStr && rIsStr {
		lb, err := e.Strings.Bytes(l)
		if err != nil {
			return 0, err
		}
		rb, err := e.Strings.Bytes(r)
		if err != nil {
			return 0, err
		}
		ls, rs := string(lb), string(rb)
		lt, eq = ls < rs, ls == rs
	} else {
		lf, rf, err := e.numPair(l, r)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(lf) || math.IsNaN(rf) {
			return value.False, nil
		}
		lt, eq = lf < rf, lf == rf
	}
	switch op {
	case token.Lt:
		return value.Bool(lt), nil
	case token.Gt:
		return value.Bool(!lt && !eq), nil
	case token.LtEq:
		return value.Bool(lt || eq), nil
	default: // GtEq
		return value.Bool(!lt), nil
	}
}

func (e *Evaluator) instanceOf(l, ctor value.Value) (value.Value, error) {
	if value.IsNumber(l) || !value.IsHeap(l) {
		return value.False, nil
	}
	protoV, ok, err := e.getNamedProp(ctor, "prototype")
	if err != nil || !ok {
		return value.False, err
	}
	cur, hasProto := e.Objects.GetProto(l)
	for hasProto {
		if cur == protoV {
			return value.True, nil
		}
		cur, hasProto = e.Objects.GetProto(cur)
	}
	return value.False, nil
}

func (e *Evaluator) evalLogical(n *parser.LogicalExpr, sc value.Value) (value.Value, error) {
	l, err := e.evalExpr(n.L, sc)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case token.AndAnd:
		if !value.Truthy(l) {
			return l, nil
		}
	case token.OrOr:
		if value.Truthy(l) {
			return l, nil
		}
	case token.QuestionQuestion:
		if l != value.Undefined && l != value.Null {
			return l, nil
		}
	}
	return e.evalExpr(n.R, sc)
}

func (e *Evaluator) evalYield(n *parser.YieldExpr, sc value.Value) (value.Value, error) {
	if e.curY == nil {
		return 0, e.throw(ErrSyntax, "yield is only valid in generator functions")
	}
	if n.Delegate {
		src, err := e.evalExpr(n.X, sc)
		if err != nil {
			return 0, err
		}
		nextFn, ok, err := e.getNamedProp(src, "next")
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, e.throw(ErrType, "value is not iterable")
		}
		for {
			res, err := e.Call(nextFn, src, nil)
			if err != nil {
				return 0, err
			}
			done, _, err := e.getNamedProp(res, "done")
			if err != nil {
				return 0, err
			}
			v, _, err := e.getNamedProp(res, "value")
			if err != nil {
				return 0, err
			}
			if value.Truthy(done) {
				return v, nil
			}
			if _, err := e.curY.Yield(v); err != nil {
				return 0, err
			}
		}
	}
	v := value.Undefined
	if n.X != nil {
		var err error
		v, err = e.evalExpr(n.X, sc)
		if err != nil {
			return 0, err
		}
	}
	return e.curY.Yield(v)
}
