package eval

import (
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/parser"
	"github.com/theMackabu/ant/internal/value"
)

// evalClass desugars a class declaration/expression to a constructor
// function plus a shared prototype object (spec.md's class support is one
// of SPEC_FULL.md's supplemented features: the distilled spec names
// "functions, closures" but the seed corpus and original_source both use
// class syntax freely). `extends` links the new prototype to the
// superclass's prototype and records the superclass constructor in
// slotSuperCtor so `super(...)` and `super.method()` resolve correctly.
func (e *Evaluator) evalClass(n *parser.ClassLit, sc value.Value) (value.Value, error) {
	proto, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return 0, err
	}

	var superCtor, superProto value.Value
	hasSuper := n.Super != nil
	if hasSuper {
		superCtor, err = e.evalExpr(n.Super, sc)
		if err != nil {
			return 0, err
		}
		if sp, ok, err := e.getNamedProp(superCtor, "prototype"); err != nil {
			return 0, err
		} else if ok {
			superProto = sp
			if err := e.Objects.SetProto(proto, sp); err != nil {
				return 0, err
			}
		}
	}

	var ctorLit *parser.FuncLit
	for _, m := range n.Methods {
		if !m.IsStatic && m.Kind == parser.PropNormal && m.Name == "constructor" {
			ctorLit = m.Fn
			break
		}
	}
	if ctorLit == nil {
		ctorLit = defaultConstructor(hasSuper)
	}
	ctorLit.Name = n.Name

	ctor, err := e.makeFunction(ctorLit, sc)
	if err != nil {
		return 0, err
	}
	if err := e.setNamedProp(ctor, "prototype", proto); err != nil {
		return 0, err
	}
	if err := e.setNamedProp(proto, "constructor", ctor); err != nil {
		return 0, err
	}
	if hasSuper {
		if err := e.Objects.Set(ctor, slotSuperCtor, superCtor, object.FlagSlot, true); err != nil {
			return 0, err
		}
		if err := e.Objects.Set(ctor, slotSuperProto, superProto, object.FlagSlot, true); err != nil {
			return 0, err
		}
		if err := e.Objects.SetProto(ctor, superCtor); err != nil {
			return 0, err
		}
	}

	for _, m := range n.Methods {
		if !m.IsStatic && m.Kind == parser.PropNormal && m.Name == "constructor" {
			continue
		}
		fnVal, err := e.makeFunction(m.Fn, sc)
		if err != nil {
			return 0, err
		}
		if hasSuper && !m.IsStatic {
			if err := e.Objects.Set(fnVal, slotSuperProto, superProto, object.FlagSlot, true); err != nil {
				return 0, err
			}
		}
		target := proto
		if m.IsStatic {
			target = ctor
		}
		name := m.Name
		switch m.Kind {
		case parser.PropGetter:
			name = "get " + name
		case parser.PropSetter:
			name = "set " + name
		}
		if err := e.setNamedProp(target, name, fnVal); err != nil {
			return 0, err
		}
	}

	return ctor, nil
}

// defaultConstructor synthesizes the implicit constructor JS supplies when
// a class body omits one: a derived class forwards all arguments to
// `super(...)`, a base class does nothing.
func defaultConstructor(hasSuper bool) *parser.FuncLit {
	if !hasSuper {
		return &parser.FuncLit{Body: &parser.BlockStmt{}}
	}
	return &parser.FuncLit{
		HasRest:   true,
		RestParam: "__superArgs",
		Body: &parser.BlockStmt{
			Body: []parser.Stmt{
				&parser.ExprStmt{
					X: &parser.CallExpr{
						Callee: &parser.SuperExpr{},
						Args: []parser.Expr{
							&parser.SpreadExpr{X: &parser.Ident{Name: "__superArgs"}},
						},
					},
				},
			},
		},
	}
}
