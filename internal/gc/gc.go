// Package gc implements the compacting garbage collector described in
// spec.md §4.E: a semi-space copy-and-forward pass driven by an explicit
// root set, with weak-table pruning folded into the same forwarding pass.
//
// Unlike the original C implementation, this collector does not perform a
// conservative scan of the C stack (spec §4.E step 5, §9 "Conservative
// stack scan"): Go has no portable, safe way to walk a goroutine's stack
// looking for NaN-boxed bit patterns, and doing so would be exactly the
// kind of unsafe-package hazard idiomatic Go code avoids. Instead, every
// subsystem that holds a live Value across a potential collection point
// (internal/eval's call frames, internal/scope's scope chain, pinned
// embedder handles, the promise store) registers itself as a RootProvider,
// giving the collector a precise root set instead of a conservative one.
// Values held only on a Go stack are not roots: internal/eval defers
// compaction while any coroutine is live or any evaluation is in progress,
// so a collection runs only when no such Values exist. See DESIGN.md for
// the decision record.
package gc

import (
	"log"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/diag"
	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

// RootProvider returns pointers to every Value a component is currently
// holding live. The GC rewrites *ptr in place after compaction, so
// components must read through the pointer afterward rather than caching
// the old Value.
type RootProvider func() []*value.Value

// WeakTable is implemented by any auxiliary structure (WeakMap/WeakSet
// backing stores, the promise registry, event-listener tables) that holds
// Values which must not themselves keep an object alive, per spec §4.E's
// weak-table pruning requirement. Prune is called once per collection,
// after every reachable object has been evacuated; lookup returns the new
// offset for an old one, or (0, false) if the object did not survive.
type WeakTable interface {
	Prune(lookup func(oldOffset uint64) (newOffset uint64, alive bool))
}

// State holds the live heap the collector operates on; a collection
// produces a fresh State, leaving the old one to be discarded by the
// caller.
type State struct {
	Arena   *arena.Arena
	Objects *object.Objects
	Strings *strtab.Strings
}

// GC drives collections for a single runtime. Not safe for concurrent use;
// spec §5's single-evaluator discipline means at most one goroutine ever
// calls Collect at a time.
type GC struct {
	cfg arena.Config

	cooldown *catrate.Limiter

	// NeedsGC is set by internal/eval when a collection was requested while
	// compaction was unsafe (spec §4.E "GC is forbidden while a coroutine is
	// currently running"; also while an evaluation is in progress); the
	// evaluator checks it at its next safe point.
	NeedsGC bool

	AllocSinceGC uint64
	lastGC       time.Time

	// LastBrk is the arena brk at the previous allocation-accounting
	// observation; Observe folds the delta into AllocSinceGC.
	LastBrk uint64

	// Threshold, when nonzero, replaces the spec §4.E formula as the
	// allocation trigger (the embedder API's setgct).
	Threshold uint64

	Logger *log.Logger

	// Diag, if set, additionally receives a structured compaction summary
	// per collection (SPEC_FULL.md §10); unlike Logger, it never sits on
	// the hot path, since it fires at most once per GC cycle.
	Diag diag.Logger
}

// triggerThreshold implements spec §4.E: "A GC is triggered when
// gc_alloc_since exceeds max(2 MiB, min(16 MiB, brk/4))".
func triggerThreshold(brk uint64) uint64 {
	t := brk / 4
	if t > 16*1024*1024 {
		t = 16 * 1024 * 1024
	}
	if t < 2*1024*1024 {
		t = 2 * 1024 * 1024
	}
	return t
}

// cooldownFor implements spec §4.E's arena-size-scaled cooldown: 0.5s for
// very large arenas, scaling up to 4s for smaller ones.
func cooldownFor(committed uint64) time.Duration {
	const (
		small = 16 * 1024 * 1024
		large = 256 * 1024 * 1024
	)
	if committed >= large {
		return 500 * time.Millisecond
	}
	if committed <= small {
		return 4 * time.Second
	}
	frac := float64(committed-small) / float64(large-small)
	ms := 4000 - frac*(4000-500)
	return time.Duration(ms) * time.Millisecond
}

// New constructs a GC for arenas configured with cfg (used to size fresh
// scratch arenas on every collection) and committed, the initial committed
// size used to seed the cooldown-rate-limiter bracket.
func New(cfg arena.Config, committed uint64) *GC {
	g := &GC{cfg: cfg}
	g.cooldown = catrate.NewLimiter(map[time.Duration]int{
		cooldownFor(committed): 1,
	})
	return g
}

// Observe accounts arena growth since the last observation toward the
// allocation trigger. Called at evaluator safe points; shrinkage (a
// competing manual collection) resets the baseline without counting.
func (g *GC) Observe(brk uint64) {
	if brk > g.LastBrk {
		g.AllocSinceGC += brk - g.LastBrk
	}
	g.LastBrk = brk
}

// ShouldCollect reports whether a collection should run now, honoring both
// the allocation-threshold trigger and the cooldown policy's override
// ("Cooldown may be overridden if gc_alloc_since > brk/4", spec §4.E).
func (g *GC) ShouldCollect(brk uint64) bool {
	trigger := triggerThreshold(brk)
	if g.Threshold != 0 {
		trigger = g.Threshold
	}
	if g.AllocSinceGC <= trigger {
		return false
	}
	if g.AllocSinceGC > brk/4 {
		return true // cooldown override
	}
	_, ok := g.cooldown.Allow("gc")
	return ok
}

func (g *GC) logf(format string, args ...any) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
		return
	}
	log.Printf("ant: gc: "+format, args...)
}

// Collect performs a full stop-the-world compaction. roots is gathered by
// calling every registered RootProvider; weak is pruned against the
// resulting forwarding table. Returns the number of bytes reclaimed and the
// post-compaction State the caller must install in place of the old one.
//
// Collect itself does not check whether a coroutine is running; spec
// §4.E's "GC is forbidden while a coroutine is currently running" rule is
// enforced by the caller (internal/eval's CollectGarbage sets NeedsGC
// instead of calling Collect).
func (g *GC) Collect(old State, providers []RootProvider, weak []WeakTable) (State, uint64, error) {
	newArena, err := arena.New(g.cfg)
	if err != nil {
		// spec §4.E "Failure": abort cleanly, no rewrites, arena unchanged.
		g.logf("collection aborted: %v", err)
		return old, 0, nil
	}
	newStrings := strtab.New(newArena)
	newObjects := object.New(newArena, newStrings)

	fwd := make(map[uint64]uint64, 1024)

	var evac func(v value.Value) (value.Value, error)
	evac = func(v value.Value) (value.Value, error) {
		if !value.IsHeap(v) {
			return v, nil
		}
		oldOff := value.Offset(v)
		if newOff, ok := fwd[oldOff]; ok {
			return value.Rebuild(v, newOff), nil
		}

		switch value.TagOf(v) {
		case value.TagString:
			b, err := old.Strings.Bytes(v)
			if err != nil {
				return 0, err
			}
			nv, err := newStrings.NewInline(b)
			if err != nil {
				return 0, err
			}
			fwd[oldOff] = value.Offset(nv)
			return nv, nil

		case value.TagObject, value.TagArray, value.TagFunction,
			value.TagPromise, value.TagGenerator, value.TagError:
			kind := old.Objects.Kind(v)
			nv, err := newObjects.New(kind)
			if err != nil {
				return 0, err
			}
			// record the mapping before recursing so cyclic graphs
			// (object <-> prototype <-> closure referencing the object)
			// terminate: spec §9 "Cyclic object graphs".
			fwd[oldOff] = value.Offset(nv)

			if parent, ok := old.Objects.ParentScope(v); ok {
				np, err := evac(parent)
				if err != nil {
					return 0, err
				}
				newObjects.SetParentScope(nv, np)
			}
			if proto, ok := old.Objects.GetProto(v); ok {
				np, err := evac(proto)
				if err != nil {
					return 0, err
				}
				if err := newObjects.SetProto(nv, np); err != nil {
					return 0, err
				}
			}
			if kind == object.KindArray {
				n := old.Objects.DenseLen(v)
				for i := uint64(0); i < n; i++ {
					dv, ok := old.Objects.DenseGet(v, i)
					if !ok {
						continue
					}
					ev, err := evac(dv)
					if err != nil {
						return 0, err
					}
					if err := newObjects.DenseSet(nv, i, ev); err != nil {
						return 0, err
					}
				}
			}
			kvs, err := old.Objects.IterAll(v)
			if err != nil {
				return 0, err
			}
			for _, kv := range kvs {
				if kv.IsSlot {
					switch kv.Slot {
					case object.SlotPrototype:
						// Evacuated above via GetProto/SetProto.
						continue
					case object.SlotDenseBuffer, object.SlotDenseLength:
						// Raw arena offsets, not tagged Values; the dense
						// buffer was rebuilt through DenseSet above.
						continue
					}
					nval, err := evac(kv.Value)
					if err != nil {
						return 0, err
					}
					if err := newObjects.Set(nv, object.SlotKey(kv.Slot), nval, kv.Flags, true); err != nil {
						return 0, err
					}
					continue
				}
				nk, err := evac(kv.Key)
				if err != nil {
					return 0, err
				}
				nval, err := evac(kv.Value)
				if err != nil {
					return 0, err
				}
				if err := newObjects.Set(nv, object.StringKey(nk), nval, kv.Flags, true); err != nil {
					return 0, err
				}
			}
			return nv, nil

		default:
			// BigInt/TypedArray/Symbol/PropRef/FFI payload relocation is
			// not yet implemented; treated as an opaque, non-relocatable
			// leaf rather than erroring, since user code holding one
			// across a GC is rare relative to objects/strings/arrays and
			// failing the whole collection over it would be worse.
			return v, nil
		}
	}

	for _, p := range providers {
		for _, root := range p() {
			nv, err := evac(*root)
			if err != nil {
				newArena.Close()
				return old, 0, err
			}
			*root = nv
		}
	}

	for _, w := range weak {
		w.Prune(func(oldOffset uint64) (uint64, bool) {
			newOff, ok := fwd[oldOffset]
			return newOff, ok
		})
	}

	reclaimed := uint64(0)
	if old.Arena.Brk() > newArena.Brk() {
		reclaimed = old.Arena.Brk() - newArena.Brk()
	}

	if err := newArena.Shrink(); err != nil {
		g.logf("post-collection shrink failed: %v", err)
	}

	if err := old.Arena.Close(); err != nil {
		g.logf("failed to release old arena: %v", err)
	}

	g.AllocSinceGC = 0
	g.LastBrk = newArena.Brk()
	g.lastGC = time.Now()
	g.logf("compacted %d bytes -> %d bytes (%d reclaimed)", old.Arena.Brk(), newArena.Brk(), reclaimed)
	if g.Diag != nil {
		g.Diag.Info().
			Uint64("before", old.Arena.Brk()).
			Uint64("after", newArena.Brk()).
			Uint64("reclaimed", reclaimed).
			Log("gc: compaction complete")
	}

	return State{Arena: newArena, Objects: newObjects, Strings: newStrings}, reclaimed, nil
}
