package eval

import (
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/parser"
	"github.com/theMackabu/ant/internal/token"
	"github.com/theMackabu/ant/internal/value"
)

// execStmt executes one statement in scope sc, returning a completion
// signal (spec §4.G's tree-walking control flow: return/break/continue
// propagate as completions rather than Go panics, matching how
// internal/coro's Yielder propagates suspension through ordinary returns).
func (e *Evaluator) execStmt(stmt parser.Stmt, sc value.Value) (ctrl, error) {
	switch n := stmt.(type) {
	case *parser.ExprStmt:
		v, err := e.evalExpr(n.X, sc)
		if err != nil {
			return normalCtrl, err
		}
		e.lastValue = v
		return normalCtrl, nil

	case *parser.VarDecl:
		return normalCtrl, e.execVarDecl(n, sc)

	case *parser.BlockStmt:
		mark := e.Scopes.Mark()
		defer e.Scopes.Release(mark)
		child, err := e.Scopes.Push(sc)
		if err != nil {
			return normalCtrl, err
		}
		if err := e.hoist(n.Body, child, true); err != nil {
			return normalCtrl, err
		}
		for _, s := range n.Body {
			c, err := e.execStmt(s, child)
			if err != nil || c.kind != compNormal {
				return c, err
			}
		}
		return normalCtrl, nil

	case *parser.IfStmt:
		cond, err := e.evalExpr(n.Cond, sc)
		if err != nil {
			return normalCtrl, err
		}
		if value.Truthy(cond) {
			return e.execStmt(n.Then, sc)
		}
		if n.Else != nil {
			return e.execStmt(n.Else, sc)
		}
		return normalCtrl, nil

	case *parser.WhileStmt:
		for {
			cond, err := e.evalExpr(n.Cond, sc)
			if err != nil {
				return normalCtrl, err
			}
			if !value.Truthy(cond) {
				return normalCtrl, nil
			}
			c, err := e.execStmt(n.Body, sc)
			if err != nil {
				return normalCtrl, err
			}
			if c.kind == compBreak {
				return normalCtrl, nil
			}
			if c.kind == compReturn {
				return c, nil
			}
			e.maybeCollect()
		}

	case *parser.DoWhileStmt:
		for {
			c, err := e.execStmt(n.Body, sc)
			if err != nil {
				return normalCtrl, err
			}
			if c.kind == compBreak {
				return normalCtrl, nil
			}
			if c.kind == compReturn {
				return c, nil
			}
			cond, err := e.evalExpr(n.Cond, sc)
			if err != nil {
				return normalCtrl, err
			}
			if !value.Truthy(cond) {
				return normalCtrl, nil
			}
			e.maybeCollect()
		}

	case *parser.ForStmt:
		return e.execFor(n, sc)

	case *parser.ForOfStmt:
		return e.execForOf(n, sc)

	case *parser.ReturnStmt:
		v := value.Undefined
		if n.X != nil {
			var err error
			v, err = e.evalExpr(n.X, sc)
			if err != nil {
				return normalCtrl, err
			}
		}
		return ctrl{kind: compReturn, value: v}, nil

	case *parser.BreakStmt:
		return ctrl{kind: compBreak}, nil

	case *parser.ContinueStmt:
		return ctrl{kind: compContinue}, nil

	case *parser.ThrowStmt:
		v, err := e.evalExpr(n.X, sc)
		if err != nil {
			return normalCtrl, err
		}
		return normalCtrl, throwValue(v)

	case *parser.TryStmt:
		return e.execTry(n, sc)

	case *parser.FuncDecl:
		// Already bound by hoist(); re-executing here would shadow
		// recursive references installed before the block ran.
		return normalCtrl, nil

	case *parser.ClassDecl:
		v, err := e.evalClass(n.Class, sc)
		if err != nil {
			return normalCtrl, err
		}
		nameVal, err := e.intern(n.Class.Name)
		if err != nil {
			return normalCtrl, err
		}
		return normalCtrl, e.Scopes.Declare(sc, nameVal, v, false)

	case *parser.SwitchStmt:
		return e.execSwitch(n, sc)

	default:
		return normalCtrl, e.throw(ErrInternal, "unsupported statement type")
	}
}

func (e *Evaluator) execVarDecl(n *parser.VarDecl, sc value.Value) error {
	v := value.Undefined
	if n.Init != nil {
		var err error
		v, err = e.evalExpr(n.Init, sc)
		if err != nil {
			return err
		}
	}
	nameVal, err := e.intern(n.Name)
	if err != nil {
		return err
	}
	switch n.Kind {
	case token.KwVar:
		// Already hoisted as undefined; a plain assign walks to the
		// existing (function-scope) binding rather than shadowing it.
		return e.Scopes.Assign(sc, nameVal, v, e.Strict)
	case token.KwConst:
		return e.Scopes.Declare(sc, nameVal, v, true)
	default: // let
		return e.Scopes.Declare(sc, nameVal, v, false)
	}
}

func (e *Evaluator) execFor(n *parser.ForStmt, sc value.Value) (ctrl, error) {
	mark := e.Scopes.Mark()
	defer e.Scopes.Release(mark)
	child, err := e.Scopes.Push(sc)
	if err != nil {
		return normalCtrl, err
	}
	if n.Init != nil {
		if _, err := e.execStmt(n.Init, child); err != nil {
			return normalCtrl, err
		}
	}
	for {
		if n.Cond != nil {
			cond, err := e.evalExpr(n.Cond, child)
			if err != nil {
				return normalCtrl, err
			}
			if !value.Truthy(cond) {
				return normalCtrl, nil
			}
		}
		// Fresh per-iteration scope for bindings declared in Body. The
		// header's `let` bindings stay in the shared loop scope and are not
		// copied per iteration, so closures created in Body all see the same
		// header binding (for-of, in execForOf, does bind afresh each time).
		iterMark := e.Scopes.Mark()
		iter, err := e.Scopes.Push(child)
		if err != nil {
			return normalCtrl, err
		}
		c, err := e.execStmt(n.Body, iter)
		e.Scopes.Release(iterMark)
		if err != nil {
			return normalCtrl, err
		}
		if c.kind == compBreak {
			return normalCtrl, nil
		}
		if c.kind == compReturn {
			return c, nil
		}
		if n.Post != nil {
			if _, err := e.evalExpr(n.Post, child); err != nil {
				return normalCtrl, err
			}
		}
		e.maybeCollect()
	}
}

func (e *Evaluator) execForOf(n *parser.ForOfStmt, sc value.Value) (ctrl, error) {
	e.noGC++
	defer func() { e.noGC-- }()
	iterable, err := e.evalExpr(n.Iter, sc)
	if err != nil {
		return normalCtrl, err
	}
	nameVal, err := e.intern(n.Name)
	if err != nil {
		return normalCtrl, err
	}

	runBody := func(v value.Value) (ctrl, error) {
		mark := e.Scopes.Mark()
		defer e.Scopes.Release(mark)
		iter, err := e.Scopes.Push(sc)
		if err != nil {
			return normalCtrl, err
		}
		if err := e.Scopes.Declare(iter, nameVal, v, n.Kind == token.KwConst); err != nil {
			return normalCtrl, err
		}
		return e.execStmt(n.Body, iter)
	}

	if n.IsIn {
		kvs, err := e.Objects.Iter(iterable)
		if err != nil {
			return normalCtrl, err
		}
		for _, kv := range kvs {
			c, err := runBody(kv.Key)
			if err != nil {
				return normalCtrl, err
			}
			if c.kind == compBreak {
				return normalCtrl, nil
			}
			if c.kind == compReturn {
				return c, nil
			}
		}
		return normalCtrl, nil
	}

	if !value.IsNumber(iterable) && e.Objects.Kind(iterable) == object.KindArray {
		n := e.Objects.DenseLen(iterable)
		for i := uint64(0); i < n; i++ {
			v, _ := e.Objects.DenseGet(iterable, i)
			c, err := runBody(v)
			if err != nil {
				return normalCtrl, err
			}
			if c.kind == compBreak {
				return normalCtrl, nil
			}
			if c.kind == compReturn {
				return c, nil
			}
		}
		return normalCtrl, nil
	}

	// Generic iterator protocol: repeatedly call .next() until done (spec
	// §3 "Generator" objects satisfy this directly; any object exposing a
	// compatible next() is accepted rather than requiring Symbol.iterator,
	// which this pragmatic subset does not model).
	nextFn, ok, err := e.getNamedProp(iterable, "next")
	if err != nil {
		return normalCtrl, err
	}
	if !ok {
		return normalCtrl, e.throw(ErrType, "value is not iterable")
	}
	for {
		res, err := e.Call(nextFn, iterable, nil)
		if err != nil {
			return normalCtrl, err
		}
		done, _, err := e.getNamedProp(res, "done")
		if err != nil {
			return normalCtrl, err
		}
		if value.Truthy(done) {
			return normalCtrl, nil
		}
		v, _, err := e.getNamedProp(res, "value")
		if err != nil {
			return normalCtrl, err
		}
		c, err := runBody(v)
		if err != nil {
			return normalCtrl, err
		}
		if c.kind == compBreak {
			return normalCtrl, nil
		}
		if c.kind == compReturn {
			return c, nil
		}
	}
}

func (e *Evaluator) execTry(n *parser.TryStmt, sc value.Value) (ctrl, error) {
	c, err := e.execStmt(n.Block, sc)
	if err != nil {
		if thrown, ok := err.(Thrown); ok && n.HasCatch {
			mark := e.Scopes.Mark()
			catchScope, perr := e.Scopes.Push(sc)
			if perr != nil {
				return normalCtrl, perr
			}
			if n.CatchParam != "" {
				nameVal, perr := e.intern(n.CatchParam)
				if perr != nil {
					return normalCtrl, perr
				}
				if perr := e.Scopes.Declare(catchScope, nameVal, thrown.V, false); perr != nil {
					return normalCtrl, perr
				}
			}
			c, err = e.execStmt(n.CatchBlock, catchScope)
			e.Scopes.Release(mark)
		}
	}
	if n.FinallyBlock != nil {
		fc, ferr := e.execStmt(n.FinallyBlock, sc)
		if ferr != nil {
			return normalCtrl, ferr
		}
		if fc.kind != compNormal {
			return fc, nil
		}
	}
	return c, err
}

func (e *Evaluator) execSwitch(n *parser.SwitchStmt, sc value.Value) (ctrl, error) {
	e.noGC++
	defer func() { e.noGC-- }()
	disc, err := e.evalExpr(n.Disc, sc)
	if err != nil {
		return normalCtrl, err
	}
	mark := e.Scopes.Mark()
	defer e.Scopes.Release(mark)
	child, err := e.Scopes.Push(sc)
	if err != nil {
		return normalCtrl, err
	}
	matched := -1
	defaultIdx := -1
	for i, cs := range n.Cases {
		if len(cs.Test) == 0 {
			defaultIdx = i
			continue
		}
		tv, err := e.evalExpr(cs.Test[0], child)
		if err != nil {
			return normalCtrl, err
		}
		if strictEquals(e, tv, disc) {
			matched = i
			break
		}
	}
	if matched == -1 {
		matched = defaultIdx
	}
	if matched == -1 {
		return normalCtrl, nil
	}
	for i := matched; i < len(n.Cases); i++ {
		for _, s := range n.Cases[i].Body {
			c, err := e.execStmt(s, child)
			if err != nil {
				return normalCtrl, err
			}
			if c.kind == compBreak {
				return normalCtrl, nil
			}
			if c.kind == compReturn || c.kind == compContinue {
				return c, nil
			}
		}
	}
	return normalCtrl, nil
}
