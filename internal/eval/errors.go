package eval

import (
	"fmt"

	"github.com/theMackabu/ant/internal/object"
	"github.com/theMackabu/ant/internal/value"
)

// ErrorKind is the taxonomy spec.md §7 names: "Generic, Type, Syntax,
// Reference, Range, Eval, URI, Internal, Aggregate".
type ErrorKind int

const (
	ErrGeneric ErrorKind = iota
	ErrType
	ErrSyntax
	ErrReference
	ErrRange
	ErrEval
	ErrURI
	ErrInternal
	ErrAggregate
)

func (k ErrorKind) String() string {
	switch k {
	case ErrType:
		return "TypeError"
	case ErrSyntax:
		return "SyntaxError"
	case ErrReference:
		return "ReferenceError"
	case ErrRange:
		return "RangeError"
	case ErrEval:
		return "EvalError"
	case ErrURI:
		return "URIError"
	case ErrInternal:
		return "InternalError"
	case ErrAggregate:
		return "AggregateError"
	default:
		return "Error"
	}
}

var slotErrorKind = object.SlotKey(object.SlotErrorKind)

// Thrown wraps a JS value travelling through Go's error-returning control
// flow (spec §7 "Errors raised inside a call propagate upward by setting
// the thrown register"); mirrors internal/coro's jsError shape exactly so
// the same value can cross the coroutine/promise/evaluator boundary without
// re-wrapping (internal/promise.errorValue already expects a Value() method
// on an error).
type Thrown struct{ V value.Value }

func (t Thrown) Error() string { return "uncaught exception" }
func (t Thrown) Value() value.Value { return t.V }

// newError constructs an Error-kind object with name/message/stack
// properties and the SlotErrorKind internal slot (spec §3 "Error" heap
// type, §7 "a localized message, the throwing site's file/line/column, and
// a captured stack of call frames").
func (e *Evaluator) newError(kind ErrorKind, msg string) (value.Value, error) {
	obj, err := e.Objects.New(object.KindError)
	if err != nil {
		return 0, err
	}
	if err := e.Objects.Set(obj, slotErrorKind, value.Number(float64(kind)), object.FlagSlot, true); err != nil {
		return 0, err
	}
	nameStr, err := e.Strings.NewInline([]byte(kind.String()))
	if err != nil {
		return 0, err
	}
	if err := e.setNamedProp(obj, "name", nameStr); err != nil {
		return 0, err
	}
	msgStr, err := e.Strings.NewInline([]byte(msg))
	if err != nil {
		return 0, err
	}
	if err := e.setNamedProp(obj, "message", msgStr); err != nil {
		return 0, err
	}
	stack := e.formatStack(kind.String(), msg)
	stackStr, err := e.Strings.NewInline([]byte(stack))
	if err != nil {
		return 0, err
	}
	if err := e.setNamedProp(obj, "stack", stackStr); err != nil {
		return 0, err
	}
	return obj, nil
}

// formatStack builds the printable "Name: message\n  at func (file:line:col)"
// text spec §7 describes for CLI/top-level reporting.
func (e *Evaluator) formatStack(name, msg string) string {
	s := fmt.Sprintf("%s: %s", name, msg)
	for _, fr := range e.Frames.Stack() {
		funcName := fr.FuncName
		if funcName == "" {
			funcName = "<anonymous>"
		}
		s += fmt.Sprintf("\n    at %s (%s:%d:%d)", funcName, fr.Pos.File, fr.Pos.Line, fr.Pos.Column)
	}
	return s
}

// throw constructs a kind error from the formatted message and returns it
// wrapped as a Go error
// ready for an eval.go control-flow return.
func (e *Evaluator) throw(kind ErrorKind, format string, args ...any) error {
	v, err := e.newError(kind, fmt.Sprintf(format, args...))
	if err != nil {
		return err
	}
	return Thrown{V: v}
}

// throwValue wraps an already-constructed JS value (e.g. `throw expr;`) as
// the Go-level propagating error.
func throwValue(v value.Value) error { return Thrown{V: v} }
