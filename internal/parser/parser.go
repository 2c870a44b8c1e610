package parser

import (
	"fmt"

	"github.com/theMackabu/ant/internal/token"
)

// ErrSyntax carries the position of a parse failure, consumed by
// internal/eval to build a SyntaxError value (spec §7).
type ErrSyntax struct {
	Msg        string
	Line, Col  int
}

func (e *ErrSyntax) Error() string {
	return fmt.Sprintf("SyntaxError: %s at %d:%d", e.Msg, e.Line, e.Col)
}

// Parser consumes a token.Lexer and produces a Program. MaxDepth bounds
// expression/statement recursion (spec §4.G "Parse... recursion depths
// with a ceiling (default 2048 parse)").
type Parser struct {
	lex       *token.Lexer
	cur, peekTok token.Token
	depth     int
	maxDepth  int
}

const DefaultMaxDepth = 2048

func New(src string) *Parser {
	p := &Parser{lex: token.NewLexer(src), maxDepth: DefaultMaxDepth}
	p.cur = p.lex.Next()
	p.peekTok = p.lex.Next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peekTok
	p.peekTok = p.lex.Next()
}

func (p *Parser) at(k token.Kind) bool  { return p.cur.Kind == k }
func (p *Parser) peekIs(k token.Kind) bool { return p.peekTok.Kind == k }

func (p *Parser) expect(k token.Kind) token.Token {
	if p.cur.Kind != k {
		panic(&ErrSyntax{Msg: fmt.Sprintf("unexpected token %v, want %v", p.cur.Kind, k), Line: p.cur.Line, Col: p.cur.Column})
	}
	t := p.cur
	p.next()
	return t
}

func (p *Parser) enter() {
	p.depth++
	if p.depth > p.maxDepth {
		panic(&ErrSyntax{Msg: "maximum parse recursion depth exceeded", Line: p.cur.Line, Col: p.cur.Column})
	}
}
func (p *Parser) leave() { p.depth-- }

func here(t token.Token) pos { return pos{Line: t.Line, Col: t.Column} }

// Parse runs the parser to completion, recovering ErrSyntax panics into a
// returned error (spec §4.G's NOEXEC/parse-only concept: a syntax error
// never partially executes).
func (p *Parser) Parse() (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*ErrSyntax); ok {
				err = se
				return
			}
			panic(r)
		}
	}()
	start := here(p.cur)
	prog = &Program{pos: start}
	for !p.at(token.EOF) {
		prog.Body = append(prog.Body, p.parseStmt())
	}
	return prog, nil
}

func (p *Parser) semi() {
	if p.at(token.Semicolon) {
		p.next()
	}
}

func (p *Parser) parseStmt() Stmt {
	p.enter()
	defer p.leave()

	switch p.cur.Kind {
	case token.LBrace:
		return p.parseBlock()
	case token.KwVar, token.KwLet, token.KwConst:
		return p.parseVarDeclStmt()
	case token.KwIf:
		return p.parseIf()
	case token.KwFor:
		return p.parseFor()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwDo:
		return p.parseDoWhile()
	case token.KwReturn:
		t := p.cur
		p.next()
		var x Expr
		if !p.at(token.Semicolon) && !p.at(token.RBrace) && !p.at(token.EOF) {
			x = p.parseExpr()
		}
		p.semi()
		return &ReturnStmt{base: base{here(t)}, X: x}
	case token.KwBreak:
		t := p.cur
		p.next()
		p.semi()
		return &BreakStmt{base{here(t)}}
	case token.KwContinue:
		t := p.cur
		p.next()
		p.semi()
		return &ContinueStmt{base{here(t)}}
	case token.KwThrow:
		t := p.cur
		p.next()
		x := p.parseExpr()
		p.semi()
		return &ThrowStmt{base: base{here(t)}, X: x}
	case token.KwTry:
		return p.parseTry()
	case token.KwFunction:
		t := p.cur
		fn := p.parseFunction(false)
		return &FuncDecl{base: base{here(t)}, Fn: fn}
	case token.KwAsync:
		if p.peekIs(token.KwFunction) {
			t := p.cur
			p.next()
			fn := p.parseFunction(true)
			return &FuncDecl{base: base{here(t)}, Fn: fn}
		}
	case token.KwClass:
		t := p.cur
		cl := p.parseClass()
		return &ClassDecl{base: base{here(t)}, Class: cl}
	case token.KwSwitch:
		return p.parseSwitch()
	case token.Semicolon:
		t := p.cur
		p.next()
		return &ExprStmt{base: base{here(t)}, X: &UndefinedLit{base{here(t)}}}
	}

	t := p.cur
	x := p.parseExpr()
	p.semi()
	return &ExprStmt{base: base{here(t)}, X: x}
}

func (p *Parser) parseBlock() *BlockStmt {
	t := p.expect(token.LBrace)
	b := &BlockStmt{base: base{here(t)}}
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		b.Body = append(b.Body, p.parseStmt())
	}
	p.expect(token.RBrace)
	return b
}

func (p *Parser) parseVarDeclStmt() Stmt {
	kind := p.cur.Kind
	t := p.cur
	p.next()
	name := p.expect(token.Ident).Lit
	var init Expr
	if p.at(token.Assign) {
		p.next()
		init = p.parseAssign()
	}
	// parseFor parses its own `let x of`/`let x in` header and does not
	// call this; a following `of`/`in` is simply left unconsumed.
	if !p.at(token.KwOf) && !p.at(token.KwIn) {
		p.semi()
	}
	return &VarDecl{base: base{here(t)}, Kind: kind, Name: name, Init: init}
}

func (p *Parser) parseIf() Stmt {
	t := p.cur
	p.next()
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	then := p.parseStmt()
	var els Stmt
	if p.at(token.KwElse) {
		p.next()
		els = p.parseStmt()
	}
	return &IfStmt{base: base{here(t)}, Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseFor() Stmt {
	t := p.cur
	p.next()
	p.expect(token.LParen)

	if p.at(token.KwLet) || p.at(token.KwConst) || p.at(token.KwVar) {
		kind := p.cur.Kind
		p.next()
		name := p.expect(token.Ident).Lit
		if p.at(token.KwOf) || p.at(token.KwIn) {
			isIn := p.at(token.KwIn)
			p.next()
			iter := p.parseExpr()
			p.expect(token.RParen)
			body := p.parseStmt()
			return &ForOfStmt{base: base{here(t)}, Kind: kind, Name: name, Iter: iter, Body: body, IsIn: isIn}
		}
		var init Expr
		if p.at(token.Assign) {
			p.next()
			init = p.parseAssign()
		}
		initStmt := &VarDecl{base: base{here(t)}, Kind: kind, Name: name, Init: init}
		return p.parseForTail(initStmt, t)
	}

	var initStmt Stmt
	if !p.at(token.Semicolon) {
		x := p.parseExpr()
		initStmt = &ExprStmt{base: base{here(t)}, X: x}
	}
	return p.parseForTail(initStmt, t)
}

func (p *Parser) parseForTail(initStmt Stmt, t token.Token) Stmt {
	p.expect(token.Semicolon)
	var cond Expr
	if !p.at(token.Semicolon) {
		cond = p.parseExpr()
	}
	p.expect(token.Semicolon)
	var post Expr
	if !p.at(token.RParen) {
		post = p.parseExpr()
	}
	p.expect(token.RParen)
	body := p.parseStmt()
	return &ForStmt{base: base{here(t)}, Init: initStmt, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseWhile() Stmt {
	t := p.cur
	p.next()
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	body := p.parseStmt()
	return &WhileStmt{base: base{here(t)}, Cond: cond, Body: body}
}

func (p *Parser) parseDoWhile() Stmt {
	t := p.cur
	p.next()
	body := p.parseStmt()
	p.expect(token.KwWhile)
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	p.semi()
	return &DoWhileStmt{base: base{here(t)}, Body: body, Cond: cond}
}

func (p *Parser) parseTry() Stmt {
	t := p.cur
	p.next()
	block := p.parseBlock()
	ts := &TryStmt{base: base{here(t)}, Block: block}
	if p.at(token.KwCatch) {
		p.next()
		ts.HasCatch = true
		if p.at(token.LParen) {
			p.next()
			ts.CatchParam = p.expect(token.Ident).Lit
			p.expect(token.RParen)
		}
		ts.CatchBlock = p.parseBlock()
	}
	if p.at(token.KwFinally) {
		p.next()
		ts.FinallyBlock = p.parseBlock()
	}
	return ts
}

func (p *Parser) parseSwitch() Stmt {
	t := p.cur
	p.next()
	p.expect(token.LParen)
	disc := p.parseExpr()
	p.expect(token.RParen)
	p.expect(token.LBrace)
	sw := &SwitchStmt{base: base{here(t)}, Disc: disc}
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		var tests []Expr
		if p.at(token.KwCase) {
			p.next()
			tests = append(tests, p.parseExpr())
		} else {
			p.expect(token.KwDefault)
		}
		p.expect(token.Colon)
		var body []Stmt
		for !p.at(token.KwCase) && !p.at(token.KwDefault) && !p.at(token.RBrace) {
			body = append(body, p.parseStmt())
		}
		sw.Cases = append(sw.Cases, SwitchCase{Test: tests, Body: body})
	}
	p.expect(token.RBrace)
	return sw
}

func (p *Parser) parseClass() *ClassLit {
	t := p.cur
	p.next()
	cl := &ClassLit{base: base{here(t)}}
	if p.at(token.Ident) {
		cl.Name = p.cur.Lit
		p.next()
	}
	if p.at(token.KwExtends) {
		p.next()
		cl.Super = p.parseLHSExpr()
	}
	p.expect(token.LBrace)
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		if p.at(token.Semicolon) {
			p.next()
			continue
		}
		m := ClassMethod{}
		if p.at(token.KwStatic) {
			m.IsStatic = true
			p.next()
		}
		if p.at(token.KwGet) && !p.peekIs(token.LParen) {
			m.Kind = PropGetter
			p.next()
		} else if p.at(token.KwSet) && !p.peekIs(token.LParen) {
			m.Kind = PropSetter
			p.next()
		}
		isAsync := false
		isGen := false
		if p.at(token.KwAsync) && !p.peekIs(token.LParen) {
			isAsync = true
			p.next()
		}
		if p.at(token.Star) {
			isGen = true
			p.next()
		}
		m.Name = p.cur.Lit
		p.next()
		m.Fn = p.parseFunctionTail(isAsync, isGen, m.Name)
		cl.Methods = append(cl.Methods, m)
	}
	p.expect(token.RBrace)
	return cl
}

func (p *Parser) parseFunction(isAsync bool) *FuncLit {
	t := p.cur
	p.expect(token.KwFunction)
	isGen := false
	if p.at(token.Star) {
		isGen = true
		p.next()
	}
	name := ""
	if p.at(token.Ident) {
		name = p.cur.Lit
		p.next()
	}
	fn := p.parseFunctionTail(isAsync, isGen, name)
	fn.pos = here(t)
	return fn
}

// parseFunctionTail parses `(params) { body }` given the name/async/
// generator modifiers already consumed.
func (p *Parser) parseFunctionTail(isAsync, isGen bool, name string) *FuncLit {
	fn := &FuncLit{Name: name, IsAsync: isAsync, IsGen: isGen}
	p.expect(token.LParen)
	for !p.at(token.RParen) {
		if p.at(token.DotDotDot) {
			p.next()
			fn.RestParam = p.expect(token.Ident).Lit
			fn.HasRest = true
			break
		}
		fn.Params = append(fn.Params, p.expect(token.Ident).Lit)
		if p.at(token.Comma) {
			p.next()
		}
	}
	p.expect(token.RParen)
	fn.Body = p.parseBlock()
	return fn
}

// ---- Expressions (precedence climbing) ----

func (p *Parser) parseExpr() Expr {
	x := p.parseAssign()
	for p.at(token.Comma) {
		p.next()
		x = p.parseAssign() // sequence expressions collapse to the last value
	}
	return x
}

var assignOps = map[token.Kind]bool{
	token.Assign: true, token.PlusAssign: true, token.MinusAssign: true,
	token.StarAssign: true, token.SlashAssign: true,
}

func (p *Parser) parseAssign() Expr {
	p.enter()
	defer p.leave()

	if p.at(token.KwYield) {
		t := p.cur
		p.next()
		delegate := false
		if p.at(token.Star) {
			delegate = true
			p.next()
		}
		var x Expr
		if !p.at(token.Semicolon) && !p.at(token.RParen) && !p.at(token.RBrace) && !p.at(token.RBracket) && !p.at(token.Comma) && !p.at(token.EOF) {
			x = p.parseAssign()
		}
		return &YieldExpr{base: base{here(t)}, X: x, Delegate: delegate}
	}

	// Arrow function lookahead: `ident =>` or `( ... ) =>`.
	if fn, ok := p.tryParseArrow(); ok {
		return fn
	}

	left := p.parseConditional()
	if assignOps[p.cur.Kind] {
		op := p.cur.Kind
		t := p.cur
		p.next()
		right := p.parseAssign()
		return &AssignExpr{base: base{here(t)}, Op: op, Target: left, Value: right}
	}
	return left
}

func (p *Parser) tryParseArrow() (Expr, bool) {
	isAsync := false
	if p.at(token.KwAsync) && (p.peekIs(token.Ident) || p.peekIs(token.LParen)) {
		// lookahead-only path: committed to async-arrow parsing below once
		// we also confirm an Arrow token follows the parameter list.
		isAsync = true
	}

	save := *p // Parser holds only value fields + pointer to lexer; snapshotting
	// the lexer position itself is not possible without re-lexing, so
	// arrow-lookahead is restricted to the single common shapes below
	// rather than full backtracking.
	_ = save

	if p.at(token.Ident) && p.peekIs(token.Arrow) {
		name := p.cur.Lit
		t := p.cur
		p.next() // ident
		p.next() // =>
		return p.finishArrow(t, []string{name}, "", false, isAsync), true
	}

	if isAsync && p.peekIs(token.Ident) {
		// `async x => ...`
		t := p.cur
		p.next() // async
		name := p.cur.Lit
		p.next() // ident
		if p.at(token.Arrow) {
			p.next()
			return p.finishArrow(t, []string{name}, "", false, true), true
		}
		// Not actually an arrow; this shape is otherwise invalid as a call
		// target in this subset, so treat as a syntax error rather than
		// silently misparsing.
		panic(&ErrSyntax{Msg: "expected => after async parameter", Line: p.cur.Line, Col: p.cur.Column})
	}

	if p.at(token.LParen) || (isAsync && p.peekIs(token.LParen)) {
		t := p.cur
		if isAsync {
			p.next() // consume async, re-enter at LParen
		}
		if ok, params, rest, hasRest := p.peekArrowParams(); ok {
			p.consumeParenParamList()
			p.expect(token.Arrow)
			return p.finishArrow(t, params, rest, hasRest, isAsync), true
		}
		if isAsync {
			panic(&ErrSyntax{Msg: "expected => after async parameter list", Line: p.cur.Line, Col: p.cur.Column})
		}
	}
	return nil, false
}

// peekArrowParams scans ahead using a throwaway lexer copy to decide
// whether `(...)` is followed by `=>`, without disturbing the real parser
// state if it is not an arrow function.
func (p *Parser) peekArrowParams() (ok bool, params []string, rest string, hasRest bool) {
	scan := *p.lex
	cur, peekTok := p.cur, p.peekTok
	lex := &scan

	// Replay current/peek tokens through a local cursor.
	toks := []token.Token{cur, peekTok}
	nextTok := func() token.Token {
		if len(toks) > 0 {
			t := toks[0]
			toks = toks[1:]
			return t
		}
		return lex.Next()
	}

	t := nextTok() // consume '('
	_ = t
	depth := 1
	var names []string
	var restName string
	var sawRest bool
	for depth > 0 {
		tk := nextTok()
		if tk.Kind == token.EOF {
			return false, nil, "", false
		}
		if tk.Kind == token.LParen {
			depth++
			continue
		}
		if tk.Kind == token.RParen {
			depth--
			continue
		}
		if depth == 1 {
			if tk.Kind == token.DotDotDot {
				sawRest = true
				continue
			}
			if tk.Kind == token.Ident {
				if sawRest {
					restName = tk.Lit
				} else {
					names = append(names, tk.Lit)
				}
			}
		}
	}
	arrowTok := nextTok()
	if arrowTok.Kind != token.Arrow {
		return false, nil, "", false
	}
	return true, names, restName, sawRest
}

// consumeParenParamList advances the real parser through `(params)` once
// peekArrowParams has confirmed it is an arrow-function parameter list.
func (p *Parser) consumeParenParamList() {
	p.expect(token.LParen)
	for !p.at(token.RParen) {
		if p.at(token.DotDotDot) {
			p.next()
		}
		if p.at(token.Ident) {
			p.next()
		}
		if p.at(token.Comma) {
			p.next()
		}
	}
	p.expect(token.RParen)
}

func (p *Parser) finishArrow(t token.Token, params []string, rest string, hasRest, isAsync bool) Expr {
	fn := &FuncLit{base: base{here(t)}, Params: params, RestParam: rest, HasRest: hasRest, IsArrow: true, IsAsync: isAsync}
	if p.at(token.LBrace) {
		fn.Body = p.parseBlock()
	} else {
		fn.ExprBody = p.parseAssign()
	}
	return fn
}

func (p *Parser) parseConditional() Expr {
	cond := p.parseNullish()
	if p.at(token.QuestionMark) {
		t := p.cur
		p.next()
		then := p.parseAssign()
		p.expect(token.Colon)
		els := p.parseAssign()
		return &ConditionalExpr{base: base{here(t)}, Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) parseNullish() Expr {
	left := p.parseOr()
	for p.at(token.QuestionQuestion) {
		t := p.cur
		p.next()
		right := p.parseOr()
		left = &LogicalExpr{base: base{here(t)}, Op: token.QuestionQuestion, L: left, R: right}
	}
	return left
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	for p.at(token.OrOr) {
		t := p.cur
		p.next()
		right := p.parseAnd()
		left = &LogicalExpr{base: base{here(t)}, Op: token.OrOr, L: left, R: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseBitOr()
	for p.at(token.AndAnd) {
		t := p.cur
		p.next()
		right := p.parseBitOr()
		left = &LogicalExpr{base: base{here(t)}, Op: token.AndAnd, L: left, R: right}
	}
	return left
}

func (p *Parser) parseBitOr() Expr {
	left := p.parseBitXor()
	for p.at(token.Pipe) {
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: token.Pipe, L: left, R: p.parseBitXor()}
	}
	return left
}

func (p *Parser) parseBitXor() Expr {
	left := p.parseBitAnd()
	for p.at(token.Caret) {
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: token.Caret, L: left, R: p.parseBitAnd()}
	}
	return left
}

func (p *Parser) parseBitAnd() Expr {
	left := p.parseEquality()
	for p.at(token.Amp) {
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: token.Amp, L: left, R: p.parseEquality()}
	}
	return left
}

var equalityOps = map[token.Kind]bool{token.Eq: true, token.NotEq: true, token.StrictEq: true, token.StrictNotEq: true}

func (p *Parser) parseEquality() Expr {
	left := p.parseRelational()
	for equalityOps[p.cur.Kind] {
		op := p.cur.Kind
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: op, L: left, R: p.parseRelational()}
	}
	return left
}

var relOps = map[token.Kind]bool{token.Lt: true, token.Gt: true, token.LtEq: true, token.GtEq: true, token.KwInstanceof: true, token.KwIn: true}

func (p *Parser) parseRelational() Expr {
	left := p.parseShift()
	for relOps[p.cur.Kind] {
		op := p.cur.Kind
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: op, L: left, R: p.parseShift()}
	}
	return left
}

var shiftOps = map[token.Kind]bool{token.Shl: true, token.Shr: true, token.UShr: true}

func (p *Parser) parseShift() Expr {
	left := p.parseAdditive()
	for shiftOps[p.cur.Kind] {
		op := p.cur.Kind
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: op, L: left, R: p.parseAdditive()}
	}
	return left
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for p.at(token.Plus) || p.at(token.Minus) {
		op := p.cur.Kind
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: op, L: left, R: p.parseMultiplicative()}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseExponent()
	for p.at(token.Star) || p.at(token.Slash) || p.at(token.Percent) {
		op := p.cur.Kind
		t := p.cur
		p.next()
		left = &BinaryExpr{base: base{here(t)}, Op: op, L: left, R: p.parseExponent()}
	}
	return left
}

func (p *Parser) parseExponent() Expr {
	left := p.parseUnary()
	if p.at(token.StarStar) {
		t := p.cur
		p.next()
		right := p.parseExponent() // right-associative
		return &BinaryExpr{base: base{here(t)}, Op: token.StarStar, L: left, R: right}
	}
	return left
}

var unaryOps = map[token.Kind]bool{
	token.Bang: true, token.Minus: true, token.Plus: true, token.Tilde: true,
	token.KwTypeof: true, token.KwVoid: true, token.KwDelete: true,
}

func (p *Parser) parseUnary() Expr {
	if unaryOps[p.cur.Kind] {
		op := p.cur.Kind
		t := p.cur
		p.next()
		x := p.parseUnary()
		return &UnaryExpr{base: base{here(t)}, Op: op, X: x, Prefix: true}
	}
	if p.at(token.PlusPlus) || p.at(token.MinusMinus) {
		op := p.cur.Kind
		t := p.cur
		p.next()
		x := p.parseUnary()
		return &UnaryExpr{base: base{here(t)}, Op: op, X: x, Prefix: true}
	}
	if p.at(token.KwAwait) {
		t := p.cur
		p.next()
		x := p.parseUnary()
		return &AwaitExpr{base: base{here(t)}, X: x}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	x := p.parseLHSExpr()
	if p.at(token.PlusPlus) || p.at(token.MinusMinus) {
		op := p.cur.Kind
		t := p.cur
		p.next()
		return &UnaryExpr{base: base{here(t)}, Op: op, X: x, Prefix: false}
	}
	return x
}

func (p *Parser) parseLHSExpr() Expr {
	var x Expr
	if p.at(token.KwNew) {
		x = p.parseNew()
	} else {
		x = p.parsePrimary()
	}
	for {
		switch {
		case p.at(token.Dot):
			t := p.cur
			p.next()
			name := p.cur.Lit
			p.next()
			x = &MemberExpr{base: base{here(t)}, Obj: x, Prop: &Ident{base: base{here(t)}, Name: name}}
		case p.at(token.QuestionDot):
			t := p.cur
			p.next()
			if p.at(token.LParen) {
				args := p.parseArgs()
				x = &CallExpr{base: base{here(t)}, Callee: x, Args: args, Optional: true}
				continue
			}
			if p.at(token.LBracket) {
				p.next()
				prop := p.parseExpr()
				p.expect(token.RBracket)
				x = &MemberExpr{base: base{here(t)}, Obj: x, Prop: prop, Computed: true, Optional: true}
				continue
			}
			name := p.cur.Lit
			p.next()
			x = &MemberExpr{base: base{here(t)}, Obj: x, Prop: &Ident{base: base{here(t)}, Name: name}, Optional: true}
		case p.at(token.LBracket):
			t := p.cur
			p.next()
			prop := p.parseExpr()
			p.expect(token.RBracket)
			x = &MemberExpr{base: base{here(t)}, Obj: x, Prop: prop, Computed: true}
		case p.at(token.LParen):
			t := p.cur
			args := p.parseArgs()
			x = &CallExpr{base: base{here(t)}, Callee: x, Args: args}
		default:
			return x
		}
	}
}

func (p *Parser) parseNew() Expr {
	t := p.cur
	p.next()
	callee := p.parseLHSExprNoCall()
	var args []Expr
	if p.at(token.LParen) {
		args = p.parseArgs()
	}
	return &NewExpr{base: base{here(t)}, Callee: callee, Args: args}
}

// parseLHSExprNoCall parses member accesses but stops before a call, so
// `new Foo().bar()` attaches the call to the NewExpr, not to the callee.
func (p *Parser) parseLHSExprNoCall() Expr {
	x := p.parsePrimary()
	for {
		switch {
		case p.at(token.Dot):
			t := p.cur
			p.next()
			name := p.cur.Lit
			p.next()
			x = &MemberExpr{base: base{here(t)}, Obj: x, Prop: &Ident{base: base{here(t)}, Name: name}}
		case p.at(token.LBracket):
			t := p.cur
			p.next()
			prop := p.parseExpr()
			p.expect(token.RBracket)
			x = &MemberExpr{base: base{here(t)}, Obj: x, Prop: prop, Computed: true}
		default:
			return x
		}
	}
}

func (p *Parser) parseArgs() []Expr {
	p.expect(token.LParen)
	var args []Expr
	for !p.at(token.RParen) {
		if p.at(token.DotDotDot) {
			t := p.cur
			p.next()
			args = append(args, &SpreadExpr{base: base{here(t)}, X: p.parseAssign()})
		} else {
			args = append(args, p.parseAssign())
		}
		if p.at(token.Comma) {
			p.next()
		}
	}
	p.expect(token.RParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	t := p.cur
	switch t.Kind {
	case token.Number:
		p.next()
		return &NumberLit{base: base{here(t)}, Value: parseNumberLit(t.Lit)}
	case token.String:
		p.next()
		return &StringLit{base: base{here(t)}, Value: t.Lit}
	case token.TemplateString:
		p.next()
		return &TemplateLit{base: base{here(t)}, Quasis: []string{t.Lit}}
	case token.TemplateHead:
		return p.parseTemplate(t)
	case token.KwTrue:
		p.next()
		return &BoolLit{base: base{here(t)}, Value: true}
	case token.KwFalse:
		p.next()
		return &BoolLit{base: base{here(t)}, Value: false}
	case token.KwNull:
		p.next()
		return &NullLit{base{here(t)}}
	case token.KwUndefined:
		p.next()
		return &UndefinedLit{base{here(t)}}
	case token.KwThis:
		p.next()
		return &ThisExpr{base{here(t)}}
	case token.KwSuper:
		p.next()
		return &SuperExpr{base{here(t)}}
	case token.Ident:
		p.next()
		return &Ident{base: base{here(t)}, Name: t.Lit}
	case token.KwAsync:
		if p.peekIs(token.KwFunction) {
			p.next()
			return p.parseFunction(true)
		}
		p.next()
		return &Ident{base: base{here(t)}, Name: "async"}
	case token.KwFunction:
		return p.parseFunction(false)
	case token.KwClass:
		return p.parseClass()
	case token.LParen:
		p.next()
		x := p.parseExpr()
		p.expect(token.RParen)
		return x
	case token.LBracket:
		return p.parseArrayLit(t)
	case token.LBrace:
		return p.parseObjectLit(t)
	}
	panic(&ErrSyntax{Msg: fmt.Sprintf("unexpected token %v", t.Kind), Line: t.Line, Col: t.Column})
}

func (p *Parser) parseTemplate(t token.Token) Expr {
	lit := &TemplateLit{base: base{here(t)}, Quasis: []string{t.Lit}}
	p.next()
	for {
		lit.Exprs = append(lit.Exprs, p.parseExpr())
		if !p.at(token.RBrace) {
			panic(&ErrSyntax{Msg: "expected } in template literal", Line: p.cur.Line, Col: p.cur.Column})
		}
		line, col := p.lex.Pos()
		nt := p.lex.ContinueTemplate(line, col)
		lit.Quasis = append(lit.Quasis, nt.Lit)
		if nt.Kind == token.TemplateTail {
			p.cur = p.lex.Next()
			p.peekTok = p.lex.Next()
			break
		}
	}
	return lit
}

func (p *Parser) parseArrayLit(t token.Token) Expr {
	p.next()
	lit := &ArrayLit{base: base{here(t)}}
	for !p.at(token.RBracket) {
		if p.at(token.DotDotDot) {
			st := p.cur
			p.next()
			lit.Elems = append(lit.Elems, &SpreadExpr{base: base{here(st)}, X: p.parseAssign()})
		} else {
			lit.Elems = append(lit.Elems, p.parseAssign())
		}
		if p.at(token.Comma) {
			p.next()
		}
	}
	p.expect(token.RBracket)
	return lit
}

func (p *Parser) parseObjectLit(t token.Token) Expr {
	p.next()
	lit := &ObjectLit{base: base{here(t)}}
	for !p.at(token.RBrace) {
		prop := ObjectProp{}
		if p.at(token.DotDotDot) {
			p.next()
			prop.Kind = PropSpread
			prop.Value = p.parseAssign()
			lit.Props = append(lit.Props, prop)
			if p.at(token.Comma) {
				p.next()
			}
			continue
		}
		if (p.at(token.KwGet) || p.at(token.KwSet)) && !p.peekIs(token.Colon) && !p.peekIs(token.Comma) && !p.peekIs(token.RBrace) && !p.peekIs(token.LParen) {
			if p.at(token.KwGet) {
				prop.Kind = PropGetter
			} else {
				prop.Kind = PropSetter
			}
			p.next()
		}
		if p.at(token.LBracket) {
			p.next()
			prop.Computed = true
			prop.KeyExpr = p.parseAssign()
			p.expect(token.RBracket)
		} else {
			prop.KeyName = p.cur.Lit
			p.next()
		}
		if p.at(token.LParen) {
			prop.Value = p.parseFunctionTail(false, false, prop.KeyName)
		} else if p.at(token.Colon) {
			p.next()
			prop.Value = p.parseAssign()
		} else {
			// shorthand { x }
			prop.Value = &Ident{base: base{here(t)}, Name: prop.KeyName}
		}
		lit.Props = append(lit.Props, prop)
		if p.at(token.Comma) {
			p.next()
		}
	}
	p.expect(token.RBrace)
	return lit
}

func parseNumberLit(lit string) float64 {
	var f float64
	if len(lit) > 2 && lit[0] == '0' && (lit[1] == 'x' || lit[1] == 'X') {
		var n uint64
		fmt.Sscanf(lit[2:], "%x", &n)
		return float64(n)
	}
	fmt.Sscanf(lit, "%g", &f)
	return f
}
