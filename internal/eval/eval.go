// Package eval implements the tree-walking evaluator of spec.md §4.G: it
// walks the internal/parser AST, allocating through internal/arena and
// internal/object/internal/strtab, resolving identifiers through
// internal/scope, maintaining call frames via internal/callframe, and
// suspending on internal/coro for async/await and generators, all driven to
// a fixed point for each top-level eval by internal/loop.
package eval

import (
	"io"
	"os"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/callframe"
	"github.com/theMackabu/ant/internal/coro"
	"github.com/theMackabu/ant/internal/gc"
	"github.com/theMackabu/ant/internal/loop"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/parser"
	"github.com/theMackabu/ant/internal/promise"
	"github.com/theMackabu/ant/internal/scope"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/token"
	"github.com/theMackabu/ant/internal/value"
)

// Evaluator owns one runtime's live state: the heap (arena/objects/strings),
// the scope/call-frame machinery, the promise store, the event loop, and the
// GC, wired together the way spec §2's data-flow diagram describes.
type Evaluator struct {
	Arena   *arena.Arena
	Objects *object.Objects
	Strings *strtab.Strings
	Scopes  *scope.Scopes
	Frames  *callframe.Frames
	GC      *gc.GC

	Promises *promise.Promises
	Loop     *loop.Loop

	Global value.Value

	Strict bool

	// Stdout/Stderr back the `console` global (SPEC_FULL.md's supplemented
	// ambient-diagnostics surface); embedders redirect them the way the CLI
	// does for `--print` without this package importing os directly beyond
	// the New-time default.
	Stdout io.Writer
	Stderr io.Writer

	funcs      *funcTable
	generators *genTable
	nativeObjs *nativeObjTable
	natives    []nativeFn
	filename   string

	// curCoro is the coroutine currently being driven by Resume, nil when
	// executing at the top level (spec §4.J "Enter/leave swap" -- eval
	// needs to know which Yielder to suspend on for await/yield).
	curCoro *coro.Coroutine
	curY    *coro.Yielder

	// lastValue tracks the value of the most recently executed top-level
	// expression statement, for RunProgram's "return the last expression's
	// value" embedder convenience (spec.md's seed scenarios are single
	// expressions evaluated via Eval).
	lastValue value.Value

	// pins is the pinned-handle table (spec §6 root/unroot/deref/
	// root_update); timerPins maps a live timer id to the pin holding its
	// callback so clearTimeout can release it.
	pins      map[uint64]*value.Value
	nextPin   uint64
	timerPins map[uint64]uint64

	// liveCoros tracks every started-but-unfinished coroutine and the
	// evaluator state swapped in around its resumes. Compaction is
	// deferred while any exist: a suspended coroutine's goroutine stack
	// holds Values the collector cannot rewrite (see the internal/gc
	// package doc's precise-roots note), so the running-coroutine GC ban of
	// spec §4.E is widened to suspended ones here.
	liveCoros map[*coro.Coroutine]*coroState

	// noGC brackets regions where the evaluator holds heap Values in Go
	// locals the root set cannot see (a for-of's iterable, a switch
	// discriminant, a for-in's key snapshot); collections requested inside
	// defer to the next safe point.
	noGC int

	// execDepth counts nested statement/call execution. A compaction
	// relocates every heap object and discards the old arena, which only a
	// Go frame holding zero Values may survive; depth zero marks exactly
	// the statement boundaries in RunProgram and the gaps between
	// event-loop callbacks, the Go port's stand-in for the original's
	// conservative stack scan.
	execDepth int

	// internCache memoizes identifier/property-name string allocations so
	// repeated lookups of the same name (every `obj.prop`, every scope
	// resolution) don't re-allocate an inline string each time. Cleared on
	// every GC since its Values address the arena being discarded; entries
	// are re-created lazily, which only costs a reallocation, never
	// incorrectness.
	internCache map[string]value.Value
}

// New constructs an Evaluator over a fresh arena sized by cfg.
func New(cfg arena.Config) (*Evaluator, error) {
	a, err := arena.New(cfg)
	if err != nil {
		return nil, err
	}
	strs := strtab.New(a)
	objs := object.New(a, strs)
	scopes := scope.New(objs)
	frames, err := callframe.New(scopes, strs)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		Arena:    a,
		Objects:  objs,
		Strings:  strs,
		Scopes:   scopes,
		Frames:   frames,
		GC:         gc.New(cfg, a.Committed()),
		funcs:      newFuncTable(),
		generators: newGenTable(),
		nativeObjs: newNativeObjTable(),
		filename:   "<anonymous>",
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	e.Loop = loop.New(nil)
	e.Promises = promise.New(objs, e.Loop, e)

	global, err := scopes.NewGlobal()
	if err != nil {
		return nil, err
	}
	e.Global = global
	e.Frames.Scope = global

	if err := e.installBuiltins(); err != nil {
		return nil, err
	}
	e.GC.LastBrk = a.Brk()
	return e, nil
}

// SetFilename controls the "file" component of stack frames (spec §7).
func (e *Evaluator) SetFilename(name string) { e.filename = name }

// Roots implements gc.RootProvider: the global scope plus every live call
// frame (delegated to Frames.Roots) pin everything reachable from user code.
func (e *Evaluator) Roots() []*value.Value {
	out := []*value.Value{&e.Global, &e.lastValue}
	out = append(out, e.Frames.Roots()...)
	out = append(out, e.Scopes.LiveRoots()...)
	out = append(out, e.pinRoots()...)
	return out
}

// WeakTables returns every WeakTable-conforming registry this evaluator owns
// (spec §4.E's weak-table pruning pass), for internal/gc.Collect's caller to
// pass through.
func (e *Evaluator) WeakTables() []gc.WeakTable {
	return []gc.WeakTable{e.Promises, e.funcs, e.generators, e.nativeObjs}
}

// CollectGarbage runs one compaction pass if a coroutine is not currently
// suspended mid-execution (spec §4.E "GC is forbidden while a coroutine is
// currently running").
func (e *Evaluator) CollectGarbage() error {
	if e.curCoro != nil || len(e.liveCoros) > 0 || e.noGC > 0 || e.execDepth > 0 {
		e.GC.NeedsGC = true
		return nil
	}
	old := gc.State{Arena: e.Arena, Objects: e.Objects, Strings: e.Strings}
	providers := []gc.RootProvider{e.Roots, e.Promises.Roots}
	next, _, err := e.GC.Collect(old, providers, e.WeakTables())
	if err != nil {
		return err
	}
	e.Arena, e.Objects, e.Strings = next.Arena, next.Objects, next.Strings
	e.Scopes.Rebind(e.Objects)
	e.Promises.Rebind(e.Objects)
	e.internCache = nil
	e.GC.NeedsGC = false
	return nil
}

// intern returns an inline string Value for name, memoized in internCache.
func (e *Evaluator) intern(name string) (value.Value, error) {
	if v, ok := e.internCache[name]; ok {
		return v, nil
	}
	v, err := e.Strings.NewInline([]byte(name))
	if err != nil {
		return 0, err
	}
	if e.internCache == nil {
		e.internCache = make(map[string]value.Value)
	}
	e.internCache[name] = v
	return v, nil
}

// setNamedProp/getNamedProp are convenience wrappers over object.Objects'
// Key-based Get/Set for the common case of a plain string property name.
func (e *Evaluator) setNamedProp(obj value.Value, name string, val value.Value) error {
	k, err := e.intern(name)
	if err != nil {
		return err
	}
	return e.Objects.Set(obj, object.StringKey(k), val, 0, true)
}

func (e *Evaluator) getNamedProp(obj value.Value, name string) (value.Value, bool, error) {
	k, err := e.intern(name)
	if err != nil {
		return 0, false, err
	}
	return e.Objects.Get(obj, object.StringKey(k))
}

// maybeCollect triggers a collection if the allocation-since-last-GC
// threshold/cooldown policy says to (spec §4.E).
func (e *Evaluator) maybeCollect() {
	e.GC.Observe(e.Arena.Brk())
	if e.curCoro != nil || len(e.liveCoros) > 0 || e.noGC > 0 || e.execDepth > 0 {
		if e.GC.ShouldCollect(e.Arena.Brk()) {
			e.GC.NeedsGC = true
		}
		return
	}
	if e.GC.NeedsGC || e.GC.ShouldCollect(e.Arena.Brk()) {
		_ = e.CollectGarbage()
	}
}

// Eval parses src (always copying it into a fresh parse, per SPEC_FULL.md's
// resolution of the "eval-created functions vs. the snapshot code arena"
// open question: every eval gets its own AST, never shared with a
// snapshot-loaded one) and executes it as a Program in the global scope.
func (e *Evaluator) Eval(src string) (value.Value, error) {
	return e.EvalIn(src, e.Global)
}

// EvalIn executes src with sc as the innermost scope (spec §6's
// mkscope/delscope let embedders evaluate in a scratch scope chained to
// the global).
func (e *Evaluator) EvalIn(src string, sc value.Value) (value.Value, error) {
	prog, err := parser.New(src).Parse()
	if err != nil {
		if se, ok := err.(*parser.ErrSyntax); ok {
			return 0, e.throw(ErrSyntax, "%s", se.Msg)
		}
		return 0, err
	}
	return e.runProgramIn(prog, sc)
}

// RunProgram executes prog's statements in the global scope, returning the
// value of the last expression statement (a convenience for embedders and
// tests; spec.md's seed scenarios are single expressions/declarations).
func (e *Evaluator) RunProgram(prog *parser.Program) (value.Value, error) {
	return e.runProgramIn(prog, e.Global)
}

func (e *Evaluator) runProgramIn(prog *parser.Program, sc value.Value) (value.Value, error) {
	if err := e.hoist(prog.Body, sc, true); err != nil {
		return 0, err
	}
	// A collection between statements relocates the scope; the pin keeps
	// this frame's reference current across iterations.
	pin := e.Root(sc)
	defer e.Unroot(pin)
	e.lastValue = value.Undefined
	for _, stmt := range prog.Body {
		cur, _ := e.Deref(pin)
		e.execDepth++
		c, err := e.execStmt(stmt, cur)
		e.execDepth--
		if err != nil {
			return 0, err
		}
		if c.kind == compReturn {
			return c.value, nil
		}
		e.maybeCollect()
	}
	return e.lastValue, nil
}

// ---- control-flow completions ----

type completionKind int

const (
	compNormal completionKind = iota
	compReturn
	compBreak
	compContinue
)

type ctrl struct {
	kind  completionKind
	label string
	value value.Value
}

var normalCtrl = ctrl{kind: compNormal}

// ---- statement hoisting ----

// hoist pre-declares `var` bindings (recursively, stopping at nested
// function/class boundaries) and top-level function declarations in sc,
// per spec §3 "var bindings are hoisted into the enclosing function scope".
// topLevel additionally hoists function declarations with their closures
// bound immediately, enabling mutual recursion among sibling declarations.
func (e *Evaluator) hoist(stmts []parser.Stmt, sc value.Value, topLevel bool) error {
	names := map[string]bool{}
	collectVarNames(stmts, names)
	for name := range names {
		nameVal, err := e.Strings.NewInline([]byte(name))
		if err != nil {
			return err
		}
		if has, _ := e.Scopes.HasOwn(sc, nameVal); !has {
			if err := e.Scopes.Declare(sc, nameVal, value.Undefined, false); err != nil {
				return err
			}
		}
	}
	if topLevel {
		for _, stmt := range stmts {
			if fd, ok := stmt.(*parser.FuncDecl); ok {
				fnVal, err := e.makeFunction(fd.Fn, sc)
				if err != nil {
					return err
				}
				nameVal, err := e.Strings.NewInline([]byte(fd.Fn.Name))
				if err != nil {
					return err
				}
				if err := e.Scopes.Declare(sc, nameVal, fnVal, false); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func collectVarNames(stmts []parser.Stmt, out map[string]bool) {
	for _, s := range stmts {
		collectVarNamesStmt(s, out)
	}
}

func collectVarNamesStmt(s parser.Stmt, out map[string]bool) {
	switch n := s.(type) {
	case *parser.VarDecl:
		if n.Kind == token.KwVar {
			out[n.Name] = true
		}
	case *parser.BlockStmt:
		collectVarNames(n.Body, out)
	case *parser.IfStmt:
		collectVarNamesStmt(n.Then, out)
		if n.Else != nil {
			collectVarNamesStmt(n.Else, out)
		}
	case *parser.ForStmt:
		if n.Init != nil {
			collectVarNamesStmt(n.Init, out)
		}
		collectVarNamesStmt(n.Body, out)
	case *parser.ForOfStmt:
		if n.Kind == token.KwVar {
			out[n.Name] = true
		}
		collectVarNamesStmt(n.Body, out)
	case *parser.WhileStmt:
		collectVarNamesStmt(n.Body, out)
	case *parser.DoWhileStmt:
		collectVarNamesStmt(n.Body, out)
	case *parser.TryStmt:
		collectVarNames(n.Block.Body, out)
		if n.CatchBlock != nil {
			collectVarNames(n.CatchBlock.Body, out)
		}
		if n.FinallyBlock != nil {
			collectVarNames(n.FinallyBlock.Body, out)
		}
	case *parser.SwitchStmt:
		for _, c := range n.Cases {
			collectVarNames(c.Body, out)
		}
	}
}
