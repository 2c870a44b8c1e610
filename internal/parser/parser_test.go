package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArithmeticAndPrecedence(t *testing.T) {
	prog, err := New("1 + 2 * 3 - 4;").Parse()
	require.NoError(t, err)
	require.Len(t, prog.Body, 1)
	es := prog.Body[0].(*ExprStmt)
	bin, ok := es.X.(*BinaryExpr)
	require.True(t, ok)
	// top-level op should be '-' (lowest precedence, left associative)
	_, ok = bin.L.(*BinaryExpr)
	require.True(t, ok)
	_, ok = bin.R.(*NumberLit)
	require.True(t, ok)
}

func TestParseVarDeclAndTemplateLiteral(t *testing.T) {
	prog, err := New("let name = `hi ${1+1}`;").Parse()
	require.NoError(t, err)
	decl := prog.Body[0].(*VarDecl)
	require.Equal(t, "name", decl.Name)
	tmpl, ok := decl.Init.(*TemplateLit)
	require.True(t, ok)
	require.Equal(t, []string{"hi ", ""}, tmpl.Quasis)
	require.Len(t, tmpl.Exprs, 1)
}

func TestParseArrowFunctionAndCall(t *testing.T) {
	prog, err := New("const double = x => x * 2; double(21);").Parse()
	require.NoError(t, err)
	decl := prog.Body[0].(*VarDecl)
	fn, ok := decl.Init.(*FuncLit)
	require.True(t, ok)
	require.True(t, fn.IsArrow)
	require.Equal(t, []string{"x"}, fn.Params)
	require.NotNil(t, fn.ExprBody)

	call := prog.Body[1].(*ExprStmt).X.(*CallExpr)
	ident, ok := call.Callee.(*Ident)
	require.True(t, ok)
	require.Equal(t, "double", ident.Name)
}

func TestParseArrayMapReduceChain(t *testing.T) {
	src := `[1,2,3].map(x => x + 1).reduce((a, b) => a + b, 0);`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	require.Len(t, prog.Body, 1)
	call := prog.Body[0].(*ExprStmt).X.(*CallExpr)
	mem := call.Callee.(*MemberExpr)
	require.Equal(t, "reduce", mem.Prop.(*Ident).Name)
	require.Len(t, call.Args, 2)
}

func TestParseAsyncAwaitFunction(t *testing.T) {
	src := `async function f() { const v = await Promise.resolve(1); return v; }`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	decl := prog.Body[0].(*FuncDecl)
	require.True(t, decl.Fn.IsAsync)
	require.Equal(t, "f", decl.Fn.Name)
	vd := decl.Fn.Body.Body[0].(*VarDecl)
	_, ok := vd.Init.(*AwaitExpr)
	require.True(t, ok)
}

func TestParseGeneratorFunctionAndYield(t *testing.T) {
	src := `function* gen() { yield 1; yield* other(); }`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	decl := prog.Body[0].(*FuncDecl)
	require.True(t, decl.Fn.IsGen)
	y1 := decl.Fn.Body.Body[0].(*ExprStmt).X.(*YieldExpr)
	require.False(t, y1.Delegate)
	y2 := decl.Fn.Body.Body[1].(*ExprStmt).X.(*YieldExpr)
	require.True(t, y2.Delegate)
}

func TestParseIfForTryCatch(t *testing.T) {
	src := `
	for (let i = 0; i < 3; i = i + 1) {
		if (i == 1) { continue; } else { break; }
	}
	try { throw 1; } catch (e) { } finally { }
	`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	forStmt, ok := prog.Body[0].(*ForStmt)
	require.True(t, ok)
	require.NotNil(t, forStmt.Cond)
	tryStmt, ok := prog.Body[1].(*TryStmt)
	require.True(t, ok)
	require.True(t, tryStmt.HasCatch)
	require.NotNil(t, tryStmt.FinallyBlock)
}

func TestParseObjectAndClassLiterals(t *testing.T) {
	src := `
	const o = { a: 1, [b]: 2, c() { return 1; } };
	class Animal { constructor() {} speak() { return 1; } }
	`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	decl := prog.Body[0].(*VarDecl)
	obj := decl.Init.(*ObjectLit)
	require.Len(t, obj.Props, 3)
	require.True(t, obj.Props[1].Computed)

	classDecl := prog.Body[1].(*ClassDecl)
	require.Equal(t, "Animal", classDecl.Class.Name)
	require.Len(t, classDecl.Class.Methods, 2)
}

func TestParseSyntaxErrorReturnsErrSyntax(t *testing.T) {
	_, err := New("let = ;").Parse()
	require.Error(t, err)
	var se *ErrSyntax
	require.ErrorAs(t, err, &se)
}
