package ant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/joeycumines/go-utilpkg/jsonenc"

	"github.com/theMackabu/ant/internal/value"
)

// Stringify renders v as JSON, following JSON.stringify semantics: NaN and
// infinities render as null, undefined and function-valued properties are
// omitted from objects and render as null in arrays, and a cyclic graph is
// an error.
func (r *Runtime) Stringify(v Value) (string, error) {
	if err := r.check(); err != nil {
		return "", err
	}
	buf, err := r.appendJSON(nil, v, map[uint64]bool{})
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *Runtime) appendJSON(dst []byte, v Value, seen map[uint64]bool) ([]byte, error) {
	if value.IsNumber(v) {
		f, _ := r.e.ToNumber(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return append(dst, "null"...), nil
		}
		return jsonenc.AppendFloat64(dst, f), nil
	}
	switch v {
	case Undefined:
		return append(dst, "null"...), nil
	case Null:
		return append(dst, "null"...), nil
	case True:
		return append(dst, "true"...), nil
	case False:
		return append(dst, "false"...), nil
	}
	switch value.TagOf(v) {
	case value.TagString:
		s, err := r.e.ToString(v)
		if err != nil {
			return nil, err
		}
		return jsonenc.AppendString(dst, s), nil
	case value.TagArray:
		off := value.Offset(v)
		if seen[off] {
			return nil, fmt.Errorf("ant: cannot stringify a cyclic structure")
		}
		seen[off] = true
		defer delete(seen, off)
		dst = append(dst, '[')
		n := r.e.Objects.DenseLen(v)
		for i := uint64(0); i < n; i++ {
			if i > 0 {
				dst = append(dst, ',')
			}
			el, ok := r.e.Objects.DenseGet(v, i)
			if !ok || !jsonRepresentable(el) {
				el = Null
			}
			var err error
			dst, err = r.appendJSON(dst, el, seen)
			if err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case value.TagObject, value.TagError:
		off := value.Offset(v)
		if seen[off] {
			return nil, fmt.Errorf("ant: cannot stringify a cyclic structure")
		}
		seen[off] = true
		defer delete(seen, off)
		dst = append(dst, '{')
		kvs, err := r.e.Properties(v)
		if err != nil {
			return nil, err
		}
		first := true
		for _, kv := range kvs {
			if !jsonRepresentable(kv.Value) {
				continue
			}
			if !first {
				dst = append(dst, ',')
			}
			first = false
			k, err := r.e.ToString(kv.Key)
			if err != nil {
				return nil, err
			}
			dst = jsonenc.AppendString(dst, k)
			dst = append(dst, ':')
			dst, err = r.appendJSON(dst, kv.Value, seen)
			if err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	default:
		return append(dst, "null"...), nil
	}
}

// jsonRepresentable reports whether v survives JSON.stringify as a
// property value (functions and undefined do not).
func jsonRepresentable(v Value) bool {
	if value.IsNumber(v) {
		return true
	}
	switch value.TagOf(v) {
	case value.TagFunction, value.TagNativeFunction, value.TagUndefined:
		return false
	}
	return true
}

// ParseJSON parses src as JSON into runtime values: objects, arrays,
// strings, numbers, booleans, and null. The inverse of Stringify for
// JSON-representable values. Decoding is token-streamed rather than
// decoded into Go maps so object properties keep their source order,
// which property-chain enumeration makes observable.
func (r *Runtime) ParseJSON(src string) (Value, error) {
	if err := r.check(); err != nil {
		return Undefined, err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(src)))
	dec.UseNumber()
	v, err := r.parseValue(dec)
	if err != nil {
		return Undefined, err
	}
	if dec.More() {
		return Undefined, r.Throw(SyntaxError, "invalid JSON: trailing data")
	}
	return v, nil
}

func (r *Runtime) parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Undefined, r.Throw(SyntaxError, "invalid JSON: %v", err)
	}
	return r.parseToken(dec, tok)
}

func (r *Runtime) parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null, nil
	case bool:
		return r.Boolean(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Undefined, r.Throw(SyntaxError, "invalid JSON number %q", t.String())
		}
		return r.Number(f), nil
	case string:
		return r.String(t)
	case json.Delim:
		switch t {
		case '[':
			var elems []Value
			for dec.More() {
				el, err := r.parseValue(dec)
				if err != nil {
					return Undefined, err
				}
				elems = append(elems, el)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Undefined, r.Throw(SyntaxError, "invalid JSON: %v", err)
			}
			return r.Array(elems...)
		case '{':
			obj, err := r.Object()
			if err != nil {
				return Undefined, err
			}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Undefined, r.Throw(SyntaxError, "invalid JSON: %v", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Undefined, r.Throw(SyntaxError, "invalid JSON object key")
				}
				v, err := r.parseValue(dec)
				if err != nil {
					return Undefined, err
				}
				if err := r.Set(obj, key, v); err != nil {
					return Undefined, err
				}
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Undefined, r.Throw(SyntaxError, "invalid JSON: %v", err)
			}
			return obj, nil
		}
	}
	return Undefined, fmt.Errorf("ant: unsupported JSON token %v", tok)
}
