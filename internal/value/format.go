package value

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/oj"
)

// String renders v. The rendering is what FromString and Parse read back:
// numbers use the shortest exact form, strings are raw at the top level and
// JSON-quoted inside arrays, and array keys are written in sorted order.
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb, true)
	return sb.String()
}

func (v Value) write(sb *strings.Builder, top bool) {
	switch v.typ {
	case Numeric:
		sb.WriteString(strconv.FormatFloat(v.num, 'g', -1, 64))
	case Boolean:
		sb.WriteString(strconv.FormatBool(v.b))
	case String:
		if top {
			sb.WriteString(v.str)
		} else {
			sb.WriteString(quote(v.str))
		}
	case Array:
		keys, _ := v.Keys()
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quote(k))
			sb.WriteString(": ")
			v.arr[k].write(sb, false)
		}
		sb.WriteByte('}')
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s) // marshalling a string cannot fail
	return string(b)
}

func indexKey(i int) string { return strconv.Itoa(i) }

func isBraced(s string) bool {
	return len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}'
}

// FromString guesses the type of s. A brace-delimited string is parsed as a
// nested array, "true" and "false" become booleans, a string that is a number
// in its entirety becomes numeric, and everything else stays a string.
func FromString(s string) (Value, error) {
	if isBraced(s) {
		return parseArray(s)
	}
	switch s {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	if f, ok := parseNumber(s); ok {
		return Num(f), nil
	}
	return Str(s), nil
}

// parseNumber reads s as a float. Digit separators are not part of the
// number grammar, so "1_000" is not a number.
func parseNumber(s string) (float64, bool) {
	if strings.ContainsRune(s, '_') {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// Parse decodes s as a value of type t. Unlike FromString, a String is taken
// verbatim even if it looks like a number or a boolean.
func Parse(s string, t Type) (Value, error) {
	switch t {
	case Numeric:
		f, ok := parseNumber(s)
		if !ok {
			return Value{}, fmt.Errorf("%w: %q is not numeric", ErrParse, s)
		}
		return Num(f), nil
	case Boolean:
		if s != "true" && s != "false" {
			return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrParse, s)
		}
		return Bool(s == "true"), nil
	case String:
		return Str(s), nil
	case Array:
		if !isBraced(s) {
			return Value{}, fmt.Errorf("%w: %q is not an array", ErrParse, s)
		}
		return parseArray(s)
	default:
		return Value{}, fmt.Errorf("%w: unknown type %s", ErrParse, t)
	}
}

func parseArray(s string) (Value, error) {
	tree, err := oj.ParseString(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %v", ErrParse, s, err)
	}
	v, err := FromAny(tree)
	if err != nil {
		return Value{}, err
	}
	if v.typ != Array {
		return Value{}, fmt.Errorf("%w: %q is not an array", ErrParse, s)
	}
	return v, nil
}

// FromAny converts an already parsed JSON tree into a Value. Objects become
// arrays keyed by member name, lists become arrays keyed "0", "1", ...
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case float64:
		return Num(t), nil
	case int64:
		return Num(float64(t)), nil
	case int:
		return Num(float64(t)), nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = ev
		}
		return Value{typ: Array, arr: m}, nil
	case []any:
		m := make(map[string]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			m[indexKey(i)] = ev
		}
		return Value{typ: Array, arr: m}, nil
	case nil:
		return Value{}, fmt.Errorf("%w: null is not representable", ErrParse)
	default:
		return Value{}, fmt.Errorf("%w: %T is not representable", ErrParse, x)
	}
}
