package eval

import (
	"math"
	"strconv"

	"github.com/theMackabu/ant/internal/strtab"
	"github.com/theMackabu/ant/internal/value"
)

// toStringVal implements ECMAScript ToString for the dynamic types this
// runtime models (spec §4.C/§4.D): numbers format via strtab.FormatFloat,
// strings pass through, booleans/null/undefined use their literal spelling,
// plain objects fall back to "[object Object]" and arrays to a
// comma-separated join of their elements without brackets (no
// user-overridable toString/valueOf protocol in this subset).
func (e *Evaluator) toStringVal(v value.Value) (string, error) {
	if value.IsNumber(v) {
		return strtab.FormatFloat(value.Float(v)), nil
	}
	switch value.TagOf(v) {
	case value.TagUndefined:
		return "undefined", nil
	case value.TagNull:
		return "null", nil
	case value.TagBoolean:
		if v == value.True {
			return "true", nil
		}
		return "false", nil
	case value.TagString:
		b, err := e.Strings.Bytes(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case value.TagFunction, value.TagNativeFunction:
		return "function", nil
	case value.TagArray:
		n := e.Objects.DenseLen(v)
		parts := make([]string, n)
		for i := uint64(0); i < n; i++ {
			elem, _ := e.Objects.DenseGet(v, i)
			s, err := e.toStringVal(elem)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += ","
			}
			out += p
		}
		return out, nil
	default:
		return "[object Object]", nil
	}
}

// toNumberVal implements ECMAScript ToNumber for this subset's types.
func (e *Evaluator) toNumberVal(v value.Value) (float64, error) {
	if value.IsNumber(v) {
		return value.Float(v), nil
	}
	switch value.TagOf(v) {
	case value.TagUndefined:
		return math.NaN(), nil
	case value.TagNull:
		return 0, nil
	case value.TagBoolean:
		if v == value.True {
			return 1, nil
		}
		return 0, nil
	case value.TagString:
		b, err := e.Strings.Bytes(v)
		if err != nil {
			return 0, err
		}
		s := string(b)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), nil
		}
		return f, nil
	default:
		return math.NaN(), nil
	}
}

// looseEquals implements a pragmatic `==` covering the coercions this
// runtime's value set can actually exercise (number/string/bool cross
// comparisons); reference types compare by identity, matching spec §4.D's
// object-identity semantics.
func (e *Evaluator) looseEquals(a, b value.Value) (bool, error) {
	if strictEquals(e, a, b) {
		return true, nil
	}
	aNum, bNum := value.IsNumber(a), value.IsNumber(b)
	if aNum && bNum {
		return false, nil // strictEquals already covers equal numbers
	}
	aNull := a == value.Null || a == value.Undefined
	bNull := b == value.Null || b == value.Undefined
	if aNull || bNull {
		return aNull && bNull, nil
	}
	if aNum || bNum || (!value.IsNumber(a) && value.TagOf(a) == value.TagString) || (!value.IsNumber(b) && value.TagOf(b) == value.TagString) {
		af, err := e.toNumberVal(a)
		if err != nil {
			return false, err
		}
		bf, err := e.toNumberVal(b)
		if err != nil {
			return false, err
		}
		return af == bf, nil
	}
	return false, nil
}

// strictEquals implements `===`: numbers compare by value, strings by
// content, everything else by identity (heap offset or immediate bits).
func strictEquals(e *Evaluator, a, b value.Value) bool {
	if value.IsNumber(a) && value.IsNumber(b) {
		return value.Float(a) == value.Float(b)
	}
	if value.IsNumber(a) != value.IsNumber(b) {
		return false
	}
	if value.TagOf(a) != value.TagOf(b) {
		return false
	}
	if value.TagOf(a) == value.TagString {
		eq, _ := e.Strings.Equal(a, b)
		return eq
	}
	return a == b
}

// isArray reports whether v is a heap Value tagged as an array, for
// dispatch that the value layer's more limited TypeOf string cannot make.
func (e *Evaluator) isArray(v value.Value) bool {
	return !value.IsNumber(v) && value.IsHeap(v) && value.TagOf(v) == value.TagArray
}

func (e *Evaluator) isCallable(v value.Value) bool {
	if value.IsNumber(v) {
		return false
	}
	t := value.TagOf(v)
	return t == value.TagFunction || t == value.TagNativeFunction
}
