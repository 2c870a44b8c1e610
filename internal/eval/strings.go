package eval

import (
	"strings"

	"github.com/theMackabu/ant/internal/value"
)

// stringMethods implements the String.prototype subset (spec.md's template
// literal / string-heavy seed scenarios call for real string manipulation
// beyond bare concatenation).
var stringMethods = map[string]builtinMethod{
	"charAt": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		f, err := e.toNumberVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		i := int(f)
		if i < 0 || i >= len(b) {
			return e.Strings.NewInline(nil)
		}
		return e.Strings.NewInline(b[i : i+1])
	},
	"slice": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		start, end, err := sliceBounds(e, len(b), args)
		if err != nil {
			return 0, err
		}
		return e.Strings.NewInline(b[start:end])
	},
	"substring": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		start, end := 0, len(b)
		if len(args) > 0 && args[0] != value.Undefined {
			f, err := e.toNumberVal(args[0])
			if err != nil {
				return 0, err
			}
			start = clampSubstring(int(f), len(b))
		}
		if len(args) > 1 && args[1] != value.Undefined {
			f, err := e.toNumberVal(args[1])
			if err != nil {
				return 0, err
			}
			end = clampSubstring(int(f), len(b))
		}
		if start > end {
			start, end = end, start
		}
		return e.Strings.NewInline(b[start:end])
	},
	"indexOf": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		needle, err := e.toStringVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		return value.Number(float64(strings.Index(string(b), needle))), nil
	},
	"includes": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		needle, err := e.toStringVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		return value.Bool(strings.Contains(string(b), needle)), nil
	},
	"startsWith": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		needle, err := e.toStringVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		return value.Bool(strings.HasPrefix(string(b), needle)), nil
	},
	"endsWith": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		needle, err := e.toStringVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		return value.Bool(strings.HasSuffix(string(b), needle)), nil
	},
	"toUpperCase": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		return e.Strings.NewInline([]byte(strings.ToUpper(string(b))))
	},
	"toLowerCase": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		return e.Strings.NewInline([]byte(strings.ToLower(string(b))))
	},
	"trim": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		return e.Strings.NewInline([]byte(strings.TrimSpace(string(b))))
	},
	"repeat": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		f, err := e.toNumberVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		if f < 0 {
			return 0, e.throw(ErrRange, "invalid count value")
		}
		return e.Strings.NewInline([]byte(strings.Repeat(string(b), int(f))))
	},
	"concat": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		out := this
		for _, a := range args {
			s, err := e.toStringVal(a)
			if err != nil {
				return 0, err
			}
			sv, err := e.Strings.NewInline([]byte(s))
			if err != nil {
				return 0, err
			}
			out, err = e.Strings.Concat(out, sv)
			if err != nil {
				return 0, err
			}
		}
		return out, nil
	},
	"replace": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		search, err := e.toStringVal(argAt(args, 0))
		if err != nil {
			return 0, err
		}
		repl, err := e.toStringVal(argAt(args, 1))
		if err != nil {
			return 0, err
		}
		return e.Strings.NewInline([]byte(strings.Replace(string(b), search, repl, 1)))
	},
	"split": func(e *Evaluator, this value.Value, args []value.Value) (value.Value, error) {
		b, err := e.Strings.Bytes(this)
		if err != nil {
			return 0, err
		}
		if len(args) == 0 || args[0] == value.Undefined {
			v, err := e.Strings.NewInline(b)
			if err != nil {
				return 0, err
			}
			return newArray(e, []value.Value{v})
		}
		sep, err := e.toStringVal(args[0])
		if err != nil {
			return 0, err
		}
		var parts []string
		if sep == "" {
			for _, r := range string(b) {
				parts = append(parts, string(r))
			}
		} else {
			parts = strings.Split(string(b), sep)
		}
		out := make([]value.Value, len(parts))
		for i, p := range parts {
			out[i], err = e.Strings.NewInline([]byte(p))
			if err != nil {
				return 0, err
			}
		}
		return newArray(e, out)
	},
}

func clampSubstring(i, length int) int {
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}
