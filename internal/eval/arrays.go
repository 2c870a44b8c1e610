package eval

import (
	"sync"

	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/value"
)

// builtinMethod is the shape of a built-in Array/String method: `this` plus
// already-evaluated arguments in, one value out (spec §4.H's calling
// convention, specialized here to avoid the natives table and JS-function
// machinery for the hot "every element access in a loop" path that
// spec.md §8's seed scenarios exercise).
type builtinMethod func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error)

func argAt(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undefined
}

func newArray(e *Evaluator, elems []value.Value) (value.Value, error) {
	arr, err := e.Objects.New(object.KindArray)
	if err != nil {
		return 0, err
	}
	if len(elems) == 0 {
		return arr, nil
	}
	if err := e.Objects.EnsureDense(arr, uint64(len(elems))); err != nil {
		return 0, err
	}
	for i, v := range elems {
		if err := e.Objects.DenseSet(arr, uint64(i), v); err != nil {
			return 0, err
		}
	}
	return arr, nil
}

func arrElems(e *Evaluator, arr value.Value) []value.Value {
	n := e.Objects.DenseLen(arr)
	out := make([]value.Value, n)
	for i := uint64(0); i < n; i++ {
		out[i], _ = e.Objects.DenseGet(arr, i)
	}
	return out
}

// arrayMethods implements the Array.prototype subset spec.md's seed
// scenarios and a realistic "complete Go repo" exercise: spread/iteration
// already covered by execForOf and evalArrayLit, these are the callable
// `arr.method(...)` forms.
var arrayMethodsOnce sync.Once
var arrayMethodsTable map[string]builtinMethod

func arrayMethods() map[string]builtinMethod {
	arrayMethodsOnce.Do(initArrayMethods)
	return arrayMethodsTable
}

func initArrayMethods() {
	arrayMethodsTable = map[string]builtinMethod{
		"push": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			n := e.Objects.DenseLen(this)
			for i, v := range args {
				if err := e.Objects.DenseSet(this, n+uint64(i), v); err != nil {
					return 0, err
				}
			}
			return value.Number(float64(e.Objects.DenseLen(this))), nil
		},
		"pop": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			n := e.Objects.DenseLen(this)
			if n == 0 {
				return value.Undefined, nil
			}
			v, _ := e.Objects.DenseGet(this, n-1)
			return v, e.Objects.SetDenseLen(this, n-1)
		},
		"shift": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			n := e.Objects.DenseLen(this)
			if n == 0 {
				return value.Undefined, nil
			}
			first, _ := e.Objects.DenseGet(this, 0)
			for i := uint64(1); i < n; i++ {
				v, _ := e.Objects.DenseGet(this, i)
				if err := e.Objects.DenseSet(this, i-1, v); err != nil {
					return 0, err
				}
			}
			return first, e.Objects.SetDenseLen(this, n-1)
		},
		"unshift": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			old := arrElems(e, this)
			combined := append(append([]value.Value{}, args...), old...)
			if err := e.Objects.SetDenseLen(this, uint64(len(combined))); err != nil {
				return 0, err
			}
			for i, v := range combined {
				if err := e.Objects.DenseSet(this, uint64(i), v); err != nil {
					return 0, err
				}
			}
			return value.Number(float64(len(combined))), nil
		},
		"slice": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			elems := arrElems(e, this)
			start, end, err := sliceBounds(e, len(elems), args)
			if err != nil {
				return 0, err
			}
			return newArray(e, elems[start:end])
		},
		"concat": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			out := arrElems(e, this)
			for _, a := range args {
				if e.isArray(a) {
					out = append(out, arrElems(e, a)...)
				} else {
					out = append(out, a)
				}
			}
			return newArray(e, out)
		},
		"join": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			sep := ","
			if len(args) > 0 && args[0] != value.Undefined {
				s, err := e.toStringVal(args[0])
				if err != nil {
					return 0, err
				}
				sep = s
			}
			elems := arrElems(e, this)
			out := ""
			for i, v := range elems {
				if i > 0 {
					out += sep
				}
				if v == value.Undefined || v == value.Null {
					continue
				}
				s, err := e.toStringVal(v)
				if err != nil {
					return 0, err
				}
				out += s
			}
			return e.Strings.NewInline([]byte(out))
		},
		"indexOf": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			elems := arrElems(e, this)
			target := argAt(args, 0)
			for i, v := range elems {
				if strictEquals(e, v, target) {
					return value.Number(float64(i)), nil
				}
			}
			return value.Number(-1), nil
		},
		"includes": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			elems := arrElems(e, this)
			target := argAt(args, 0)
			for _, v := range elems {
				if strictEquals(e, v, target) {
					return value.True, nil
				}
			}
			return value.False, nil
		},
		"reverse": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			elems := arrElems(e, this)
			for i, j := 0, len(elems)-1; i < j; i, j = i+1, j-1 {
				elems[i], elems[j] = elems[j], elems[i]
			}
			for i, v := range elems {
				if err := e.Objects.DenseSet(this, uint64(i), v); err != nil {
					return 0, err
				}
			}
			return this, nil
		},
		"forEach": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			for i, v := range elems {
				if _, err := e.Call(fn, value.Undefined, []value.Value{v, value.Number(float64(i)), this}); err != nil {
					return 0, err
				}
			}
			return value.Undefined, nil
		},
		"map": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			out := make([]value.Value, len(elems))
			for i, v := range elems {
				r, err := e.Call(fn, value.Undefined, []value.Value{v, value.Number(float64(i)), this})
				if err != nil {
					return 0, err
				}
				out[i] = r
			}
			return newArray(e, out)
		},
		"filter": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			var out []value.Value
			for i, v := range elems {
				r, err := e.Call(fn, value.Undefined, []value.Value{v, value.Number(float64(i)), this})
				if err != nil {
					return 0, err
				}
				if value.Truthy(r) {
					out = append(out, v)
				}
			}
			return newArray(e, out)
		},
		"reduce": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			i := 0
			acc := argAt(args, 1)
			if len(args) < 2 {
				if len(elems) == 0 {
					return 0, e.throw(ErrType, "Reduce of empty array with no initial value")
				}
				acc = elems[0]
				i = 1
			}
			for ; i < len(elems); i++ {
				r, err := e.Call(fn, value.Undefined, []value.Value{acc, elems[i], value.Number(float64(i)), this})
				if err != nil {
					return 0, err
				}
				acc = r
			}
			return acc, nil
		},
		"find": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			for i, v := range elems {
				r, err := e.Call(fn, value.Undefined, []value.Value{v, value.Number(float64(i)), this})
				if err != nil {
					return 0, err
				}
				if value.Truthy(r) {
					return v, nil
				}
			}
			return value.Undefined, nil
		},
		"findIndex": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			for i, v := range elems {
				r, err := e.Call(fn, value.Undefined, []value.Value{v, value.Number(float64(i)), this})
				if err != nil {
					return 0, err
				}
				if value.Truthy(r) {
					return value.Number(float64(i)), nil
				}
			}
			return value.Number(-1), nil
		},
		"some": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			for i, v := range elems {
				r, err := e.Call(fn, value.Undefined, []value.Value{v, value.Number(float64(i)), this})
				if err != nil {
					return 0, err
				}
				if value.Truthy(r) {
					return value.True, nil
				}
			}
			return value.False, nil
		},
		"every": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
			fn := argAt(args, 0)
			elems := arrElems(e, this)
			for i, v := range elems {
				r, err := e.Call(fn, value.Undefined, []value.Value{v, value.Number(float64(i)), this})
				if err != nil {
					return 0, err
				}
				if !value.Truthy(r) {
					return value.False, nil
				}
			}
			return value.True, nil
		},
	}
}

// sliceBounds implements the common negative-index-clamping rule shared by
// Array.prototype.slice and String.prototype.slice.
func sliceBounds(e *Evaluator, length int, args []value.Value) (int, int, error) {
	start, end := 0, length
	if len(args) > 0 && args[0] != value.Undefined {
		f, err := e.toNumberVal(args[0])
		if err != nil {
			return 0, 0, err
		}
		start = clampIndex(int(f), length)
	}
	if len(args) > 1 && args[1] != value.Undefined {
		f, err := e.toNumberVal(args[1])
		if err != nil {
			return 0, 0, err
		}
		end = clampIndex(int(f), length)
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

func clampIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}
