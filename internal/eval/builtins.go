package eval

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/value"
)

// installBuiltins populates the global scope with the host-provided surface
// this pragmatic subset carries (spec.md §1 explicitly excludes fs/fetch/
// http/ffi/lmdb/buffers/crypto/collections/json as external-collaborator
// built-in modules; everything installed here is either a core language
// facility spec §3/§4 already models values for -- Math, basic Object
// reflection, Promise, the Error family -- or a small diagnostics surface
// mirrored from original_source/src/modules/builtin.c's `Ant` namespace).
func (e *Evaluator) installBuiltins() error {
	if err := e.installMath(); err != nil {
		return err
	}
	if err := e.installObjectNS(); err != nil {
		return err
	}
	if err := e.installGlobalFuncs(); err != nil {
		return err
	}
	if err := e.installPromiseGlobal(); err != nil {
		return err
	}
	if err := e.installErrorFamily(); err != nil {
		return err
	}
	if err := e.installAntNamespace(); err != nil {
		return err
	}
	if err := e.installTimerGlobals(); err != nil {
		return err
	}
	return e.installConsole()
}

func (e *Evaluator) defineGlobal(name string, v value.Value) error {
	return e.Objects.Set(e.Global, object.StringKey(mustIntern(e, name)), v, 0, true)
}

func mustIntern(e *Evaluator, name string) value.Value {
	v, err := e.intern(name)
	if err != nil {
		// interning a short ASCII literal only fails on arena exhaustion,
		// which installBuiltins runs far too early in a fresh arena to hit.
		panic(err)
	}
	return v
}

func (e *Evaluator) nativeMethod(obj value.Value, name string, fn nativeFn) error {
	return e.setNamedProp(obj, name, e.registerNative(fn))
}

// numArg pulls argument i as a float64, returning NaN when it is missing
// (the way ECMAScript's ToNumber(undefined) does) or is not a number.
func numArg(args []value.Value, i int) float64 {
	if i >= len(args) {
		return math.NaN()
	}
	if value.IsNumber(args[i]) {
		return value.Float(args[i])
	}
	return math.NaN()
}

func (e *Evaluator) installMath() error {
	m, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return err
	}
	consts := map[string]float64{"PI": math.Pi, "E": math.E, "LN2": math.Ln2, "LN10": math.Log(10), "SQRT2": math.Sqrt2}
	for name, v := range consts {
		if err := e.setNamedProp(m, name, value.Number(v)); err != nil {
			return err
		}
	}
	unary := map[string]func(float64) float64{
		"floor": math.Floor, "ceil": math.Ceil, "round": math.Round, "trunc": math.Trunc,
		"abs": math.Abs, "sqrt": math.Sqrt, "sign": func(f float64) float64 {
			switch {
			case math.IsNaN(f):
				return math.NaN()
			case f > 0:
				return 1
			case f < 0:
				return -1
			default:
				return f
			}
		},
		"log": math.Log, "log2": math.Log2, "log10": math.Log10, "exp": math.Exp,
		"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
	}
	for name, fn := range unary {
		fn := fn
		if err := e.nativeMethod(m, name, func(_ value.Value, args []value.Value) (value.Value, error) {
			return value.Number(fn(numArg(args, 0))), nil
		}); err != nil {
			return err
		}
	}
	if err := e.nativeMethod(m, "pow", func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Number(math.Pow(numArg(args, 0), numArg(args, 1))), nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(m, "max", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Number(math.Inf(-1)), nil
		}
		best := numArg(args, 0)
		for i := 1; i < len(args); i++ {
			v := numArg(args, i)
			if math.IsNaN(v) {
				return value.Number(math.NaN()), nil
			}
			if v > best {
				best = v
			}
		}
		return value.Number(best), nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(m, "min", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Number(math.Inf(1)), nil
		}
		best := numArg(args, 0)
		for i := 1; i < len(args); i++ {
			v := numArg(args, i)
			if math.IsNaN(v) {
				return value.Number(math.NaN()), nil
			}
			if v < best {
				best = v
			}
		}
		return value.Number(best), nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(m, "random", func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Number(pseudoRandom()), nil
	}); err != nil {
		return err
	}
	return e.defineGlobal("Math", m)
}

// pseudoRandom is a minimal non-cryptographic generator: spec.md's
// Non-goals exclude a "crypto" module, and Math.random has never promised
// cryptographic strength, so a small xorshift64 started from a fixed seed
// constant (the same sequence on every run) is sufficient here rather than
// wiring math/rand for one call site.
var prngState uint64 = 0x9E3779B97F4A7C15

func pseudoRandom() float64 {
	x := prngState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	prngState = x
	return float64(x>>11) / float64(1<<53)
}

func (e *Evaluator) installObjectNS() error {
	ns, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "keys", func(_ value.Value, args []value.Value) (value.Value, error) {
		kvs, err := e.Objects.Iter(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		out := make([]value.Value, len(kvs))
		for i, kv := range kvs {
			out[i] = kv.Key
		}
		return newArray(e, out)
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "values", func(_ value.Value, args []value.Value) (value.Value, error) {
		kvs, err := e.Objects.Iter(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		out := make([]value.Value, len(kvs))
		for i, kv := range kvs {
			out[i] = kv.Value
		}
		return newArray(e, out)
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "entries", func(_ value.Value, args []value.Value) (value.Value, error) {
		kvs, err := e.Objects.Iter(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		out := make([]value.Value, len(kvs))
		for i, kv := range kvs {
			pair, err := newArray(e, []value.Value{kv.Key, kv.Value})
			if err != nil {
				return 0, err
			}
			out[i] = pair
		}
		return newArray(e, out)
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "assign", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Undefined, nil
		}
		target := args[0]
		for _, src := range args[1:] {
			kvs, err := e.Objects.Iter(src)
			if err != nil {
				return 0, err
			}
			for _, kv := range kvs {
				if err := e.Objects.Set(target, object.StringKey(kv.Key), kv.Value, 0, true); err != nil {
					return 0, err
				}
			}
		}
		return target, nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "getPrototypeOf", func(_ value.Value, args []value.Value) (value.Value, error) {
		p, ok := e.Objects.GetProto(argAt(args, 0))
		if !ok {
			return value.Null, nil
		}
		return p, nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "setPrototypeOf", func(_ value.Value, args []value.Value) (value.Value, error) {
		obj := argAt(args, 0)
		if err := e.Objects.SetProto(obj, argAt(args, 1)); err != nil {
			return 0, err
		}
		return obj, nil
	}); err != nil {
		return err
	}
	return e.defineGlobal("Object", ns)
}

func (e *Evaluator) installGlobalFuncs() error {
	if err := e.defineGlobal("parseInt", e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		s, err := e.toStringVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		radix := 10
		if len(args) > 1 && args[1] != value.Undefined {
			radix = int(numArg(args, 1))
			if radix == 0 {
				radix = 10
			}
		}
		neg := false
		if strings.HasPrefix(s, "-") {
			neg = true
			s = s[1:]
		} else if strings.HasPrefix(s, "+") {
			s = s[1:]
		}
		if (radix == 16 || radix == 10) && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
			s = s[2:]
			radix = 16
		}
		end := 0
		for end < len(s) && isDigitInRadix(s[end], radix) {
			end++
		}
		if end == 0 {
			return value.Number(math.NaN()), nil
		}
		n, err := strconv.ParseInt(s[:end], radix, 64)
		if err != nil {
			return value.Number(math.NaN()), nil
		}
		if neg {
			n = -n
		}
		return value.Number(float64(n)), nil
	})); err != nil {
		return err
	}
	if err := e.defineGlobal("parseFloat", e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		s, err := e.toStringVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		end := len(s)
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c >= '0' && c <= '9' || c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E' {
				continue
			}
			end = i
			break
		}
		f, err := strconv.ParseFloat(s[:end], 64)
		if err != nil {
			return value.Number(math.NaN()), nil
		}
		return value.Number(f), nil
	})); err != nil {
		return err
	}
	if err := e.defineGlobal("isNaN", e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		f, err := e.toNumberVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		return value.Bool(math.IsNaN(f)), nil
	})); err != nil {
		return err
	}
	return e.defineGlobal("isFinite", e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
		f, err := e.toNumberVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		return value.Bool(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
	}))
}

func isDigitInRadix(c byte, radix int) bool {
	var d int
	switch {
	case c >= '0' && c <= '9':
		d = int(c - '0')
	case c >= 'a' && c <= 'z':
		d = int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		d = int(c-'A') + 10
	default:
		return false
	}
	return d < radix
}

// installPromiseGlobal wires `new Promise(executor)` and its `resolve`/
// `reject`/`all` statics onto a native-backed constructor object (spec §3
// "Promise", §4.I).
func (e *Evaluator) installPromiseGlobal() error {
	ctor, err := e.makeNativeFunction(func(_ value.Value, args []value.Value) (value.Value, error) {
		executor := argAt(args, 0)
		prom, err := e.Promises.New()
		if err != nil {
			return 0, err
		}
		// The settle closures outlive this call (the executor may hand
		// resolve/reject to a timer); the pin keeps the promise visible to
		// the collector until the first settle.
		pin := e.Root(prom)
		settled := false
		settle := func(reject bool, v value.Value) error {
			cur, ok := e.Deref(pin)
			if !ok {
				return nil
			}
			if !settled {
				settled = true
				e.Unroot(pin)
			}
			if reject {
				return e.Promises.Reject(cur, v)
			}
			return e.Promises.Resolve(cur, v)
		}
		resolveFn := e.registerNative(func(_ value.Value, rargs []value.Value) (value.Value, error) {
			return value.Undefined, settle(false, argAt(rargs, 0))
		})
		rejectFn := e.registerNative(func(_ value.Value, rargs []value.Value) (value.Value, error) {
			return value.Undefined, settle(true, argAt(rargs, 0))
		})
		if e.isCallable(executor) {
			if _, err := e.Call(executor, value.Undefined, []value.Value{resolveFn, rejectFn}); err != nil {
				if thrown, ok := err.(Thrown); ok {
					if rerr := settle(true, thrown.V); rerr != nil {
						return 0, rerr
					}
				} else {
					return 0, err
				}
			}
		}
		return prom, nil
	})
	if err != nil {
		return err
	}
	if err := e.nativeMethod(ctor, "resolve", func(_ value.Value, args []value.Value) (value.Value, error) {
		return e.toPromise(argAt(args, 0))
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ctor, "reject", func(_ value.Value, args []value.Value) (value.Value, error) {
		p, err := e.Promises.New()
		if err != nil {
			return 0, err
		}
		return p, e.Promises.Reject(p, argAt(args, 0))
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ctor, "all", func(_ value.Value, args []value.Value) (value.Value, error) {
		return e.promiseAll(argAt(args, 0))
	}); err != nil {
		return err
	}
	return e.defineGlobal("Promise", ctor)
}

// promiseAll implements Promise.all over a JS array of (possibly
// non-promise) values: resolves with an array of results once every input
// settles fulfilled, or rejects as soon as any one rejects.
func (e *Evaluator) promiseAll(arr value.Value) (value.Value, error) {
	result, err := e.Promises.New()
	if err != nil {
		return 0, err
	}
	elems := arrElems(e, arr)
	n := len(elems)
	if n == 0 {
		empty, err := newArray(e, nil)
		if err != nil {
			return 0, err
		}
		return result, e.Promises.Resolve(result, empty)
	}
	// Results accumulate in a pinned JS array rather than a Go slice: the
	// handlers run across microtask turns, and a compaction between turns
	// would move anything only a Go slice referenced.
	resArr, err := newArray(e, make([]value.Value, n))
	if err != nil {
		return 0, err
	}
	resPin := e.Root(resArr)
	remaining := n
	settled := false
	for i, v := range elems {
		i := i
		p, err := e.toPromise(v)
		if err != nil {
			e.Unroot(resPin)
			return 0, err
		}
		onF := e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
			arr, _ := e.Deref(resPin)
			if err := e.Objects.DenseSet(arr, uint64(i), argAt(args, 0)); err != nil {
				return 0, err
			}
			remaining--
			if remaining == 0 && !settled {
				settled = true
				e.Unroot(resPin)
				return value.Undefined, e.Promises.Resolve(result, arr)
			}
			return value.Undefined, nil
		})
		onR := e.registerNative(func(_ value.Value, args []value.Value) (value.Value, error) {
			if !settled {
				settled = true
				e.Unroot(resPin)
				return value.Undefined, e.Promises.Reject(result, argAt(args, 0))
			}
			return value.Undefined, nil
		})
		if err := e.Promises.Then(p, onF, onR, 0); err != nil {
			e.Unroot(resPin)
			return 0, err
		}
	}
	return result, nil
}

// installErrorFamily wires the Error/TypeError/.../AggregateError global
// constructors (spec §3 "Error", §7's taxonomy), each backed by a native
// constructor function carrying its own `.prototype`, chained so
// `x instanceof Error` holds for every subtype.
func (e *Evaluator) installErrorFamily() error {
	baseProto, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return err
	}
	if err := e.installErrorCtor("Error", ErrGeneric, baseProto, value.Undefined); err != nil {
		return err
	}
	kinds := map[string]ErrorKind{
		"TypeError": ErrType, "SyntaxError": ErrSyntax, "ReferenceError": ErrReference,
		"RangeError": ErrRange, "EvalError": ErrEval, "URIError": ErrURI,
		"InternalError": ErrInternal, "AggregateError": ErrAggregate,
	}
	for name, kind := range kinds {
		if err := e.installErrorCtor(name, kind, 0, baseProto); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) installErrorCtor(name string, kind ErrorKind, existingProto, baseProto value.Value) error {
	proto := existingProto
	if proto == 0 {
		p, err := e.Objects.New(object.KindPlain)
		if err != nil {
			return err
		}
		if err := e.Objects.SetProto(p, baseProto); err != nil {
			return err
		}
		proto = p
	}
	ctor, err := e.makeNativeFunction(func(_ value.Value, args []value.Value) (value.Value, error) {
		msg := ""
		if len(args) > 0 && args[0] != value.Undefined {
			s, err := e.toStringVal(args[0])
			if err != nil {
				return 0, err
			}
			msg = s
		}
		obj, err := e.newError(kind, msg)
		if err != nil {
			return 0, err
		}
		if err := e.Objects.SetProto(obj, proto); err != nil {
			return 0, err
		}
		return obj, nil
	})
	if err != nil {
		return err
	}
	if err := e.setNamedProp(ctor, "prototype", proto); err != nil {
		return err
	}
	if err := e.setNamedProp(proto, "constructor", ctor); err != nil {
		return err
	}
	return e.defineGlobal(name, ctor)
}

// installAntNamespace mirrors original_source/src/modules/builtin.c's
// minimal non-excluded core surface: gc/alloc/stats diagnostics (spec §6's
// embedder-level gc/stats operations, made reachable from script too).
func (e *Evaluator) installAntNamespace() error {
	ns, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "gc", func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Undefined, e.CollectGarbage()
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "alloc", func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Number(float64(e.Arena.Brk())), nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(ns, "stats", func(_ value.Value, args []value.Value) (value.Value, error) {
		stats, err := e.Objects.New(object.KindPlain)
		if err != nil {
			return 0, err
		}
		if err := e.setNamedProp(stats, "brk", value.Number(float64(e.Arena.Brk()))); err != nil {
			return 0, err
		}
		if err := e.setNamedProp(stats, "committed", value.Number(float64(e.Arena.Committed()))); err != nil {
			return 0, err
		}
		return stats, nil
	}); err != nil {
		return err
	}
	return e.defineGlobal("Ant", ns)
}

// installConsole wires a minimal console.log/warn/error, a near-universal
// embedder convenience spec.md's Non-goals don't name (they exclude
// "terminal formatting" -- ANSI/color/progress UI -- not plain diagnostic
// output) and which original_source has no precedent for either way; kept
// intentionally small (no format-string interpolation) since this subset
// has no JSON.stringify to fall back on for object rendering.
func (e *Evaluator) installConsole() error {
	c, err := e.Objects.New(object.KindPlain)
	if err != nil {
		return err
	}
	if err := e.nativeMethod(c, "log", func(_ value.Value, args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := e.toStringVal(a)
			if err != nil {
				return 0, err
			}
			parts[i] = s
		}
		fmt.Fprintln(e.Stdout, strings.Join(parts, " "))
		return value.Undefined, nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(c, "warn", func(_ value.Value, args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := e.toStringVal(a)
			if err != nil {
				return 0, err
			}
			parts[i] = s
		}
		fmt.Fprintln(e.Stderr, strings.Join(parts, " "))
		return value.Undefined, nil
	}); err != nil {
		return err
	}
	if err := e.nativeMethod(c, "error", func(_ value.Value, args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := e.toStringVal(a)
			if err != nil {
				return 0, err
			}
			parts[i] = s
		}
		fmt.Fprintln(e.Stderr, strings.Join(parts, " "))
		return value.Undefined, nil
	}); err != nil {
		return err
	}
	return e.defineGlobal("console", c)
}
