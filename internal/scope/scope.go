// Package scope implements the parent-linked lexical scope chain described
// in spec.md §4.F: an ordinary arena object chained by a parent-scope slot,
// walked iteratively (never recursively, per spec §9 "Prototype chain walk
// and property lookup... bound C-stack usage for deep chains") to resolve
// identifiers from innermost to outermost.
package scope

import (
	"fmt"

	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/value"
)

// ErrUnresolved is returned by Resolve when strict is true and no scope in
// the chain owns the binding (spec §4.F "unresolved reads in strict mode
// raise ReferenceError").
var ErrUnresolved = fmt.Errorf("scope: reference is not defined")

// Scopes builds and walks the lexical scope chain over a shared object
// store. The global scope is the global object itself (spec §3 "The root
// scope is the global object").
type Scopes struct {
	o *object.Objects

	// live is the stack of currently-entered scopes, innermost last. The
	// parent links of the chain point outward only, so without this stack
	// a mid-execution collection could not see block scopes held in the
	// evaluator's Go locals; LiveRoots exposes it to the GC. Callers
	// bracket scope-introducing constructs with Mark/Release, and the
	// coroutine scheduler swaps whole segments via SwapLive (spec §4.J's
	// saved "scope stack").
	live []value.Value
}

func New(o *object.Objects) *Scopes {
	return &Scopes{o: o}
}

// NewGlobal allocates the root scope object. It has no parent.
func (s *Scopes) NewGlobal() (value.Value, error) {
	return s.o.New(object.KindScope)
}

// Push allocates a fresh child scope whose parent is parent. Used by the
// evaluator on block entry (`{`, `for`, `for-of`, `for-in`, `if`/`else`
// blocks) and by call machinery on function entry (spec §4.F, §4.H).
func (s *Scopes) Push(parent value.Value) (value.Value, error) {
	child, err := s.o.New(object.KindScope)
	if err != nil {
		return 0, err
	}
	s.o.SetParentScope(child, parent)
	s.live = append(s.live, child)
	return child, nil
}

// Pop returns the parent of scope, or (Undefined, false) at the root.
func (s *Scopes) Pop(sc value.Value) (value.Value, bool) {
	return s.o.ParentScope(sc)
}

// Mark returns the current live-stack depth; pair with Release.
func (s *Scopes) Mark() int { return len(s.live) }

// Release truncates the live stack back to mark, dropping the GC roots for
// every scope entered since. Scopes still referenced elsewhere (a closure's
// captured parent, an object on the heap) stay reachable through those
// references.
func (s *Scopes) Release(mark int) {
	if mark < len(s.live) {
		s.live = s.live[:mark]
	}
}

// SwapLive replaces the entire live stack, returning the previous one; the
// coroutine scheduler uses it to give each coroutine its own scope stack
// across suspensions.
func (s *Scopes) SwapLive(next []value.Value) []value.Value {
	prev := s.live
	s.live = next
	return prev
}

// LiveRoots exposes the live stack to the collector for in-place rewrite.
func (s *Scopes) LiveRoots() []*value.Value {
	out := make([]*value.Value, len(s.live))
	for i := range s.live {
		out[i] = &s.live[i]
	}
	return out
}

// Rebind points the walker at a post-compaction object store; the live
// stack's Values have already been rewritten in place via LiveRoots.
func (s *Scopes) Rebind(o *object.Objects) { s.o = o }

// key turns an identifier name into an object.Key; identifiers are always
// interned strings, never internal slots (spec §3 "Internal slots never
// escape to user JS code").
func key(name value.Value) object.Key { return object.StringKey(name) }

// Declare installs a fresh binding for name in sc, honoring const-ness.
// Used for `let`/`const` in the scope they lexically belong to, and for
// `var` in the hoisted-to function scope (the caller resolves which scope
// that is during the pre-hoisting pass, spec §4.F).
func (s *Scopes) Declare(sc, name, val value.Value, isConst bool) error {
	var flags object.Flag
	if isConst {
		flags = object.FlagConst
	}
	return s.o.Set(sc, key(name), val, flags, true)
}

// Resolve walks sc outward looking for name, returning the owning scope and
// its current value. strict controls the ReferenceError-on-miss behavior
// from spec §4.F; non-strict misses return (0, Undefined, nil), the zero
// owner marking the miss, so the caller can decide what "undefined
// reference read" means in its context (a bare identifier evaluates to
// undefined outside strict mode, per spec).
func (s *Scopes) Resolve(sc, name value.Value, strict bool) (owner value.Value, val value.Value, err error) {
	cur := sc
	k := key(name)
	for {
		v, ok, err := s.o.Get(cur, k)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			return cur, v, nil
		}
		parent, hasParent := s.o.ParentScope(cur)
		if !hasParent {
			if strict {
				return 0, value.Undefined, ErrUnresolved
			}
			return 0, value.Undefined, nil
		}
		cur = parent
	}
}

// Assign writes val to the nearest scope in sc's chain that owns name. If
// no scope owns it: strict mode raises ErrUnresolved, non-strict mode
// installs the binding on the global object (the outermost scope in the
// chain, spec §4.F "non-strict writes install on the global object").
func (s *Scopes) Assign(sc, name, val value.Value, strict bool) error {
	owner, _, err := s.Resolve(sc, name, false)
	if err != nil {
		return err
	}
	if owner != 0 {
		return s.o.Set(owner, key(name), val, 0, true)
	}
	if strict {
		return ErrUnresolved
	}
	global := sc
	for {
		parent, hasParent := s.o.ParentScope(global)
		if !hasParent {
			break
		}
		global = parent
	}
	return s.o.Set(global, key(name), val, 0, true)
}

// HasOwn reports whether sc itself (not an ancestor) declares name; used by
// the pre-hoisting pass to avoid re-declaring an existing `let`/`const`
// binding as a syntax error, and by `var` hoisting to skip names already
// bound in the function scope. Scope objects never carry a prototype, so
// object.Objects.Get's own-then-proto walk degenerates to an own-only
// lookup here.
func (s *Scopes) HasOwn(sc, name value.Value) (bool, error) {
	_, ok, err := s.o.Get(sc, key(name))
	return ok, err
}
