// Package value implements the dynamic, tagged value used for attribute values
// and query operands.
//
// A Value is one of four kinds: Numeric, Boolean, String or Array. Arrays map
// string keys to nested Values. Binary operations are only defined between
// Values of the same type; anything else fails with ErrTypeMismatch.
package value

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	// ErrTypeMismatch is returned when an operation mixes Values of different
	// types, or asks a Value for a type it does not hold.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrParse is returned for malformed textual values.
	ErrParse = errors.New("parse error")
	// ErrKeyNotFound is returned when an Array has no entry for a key.
	ErrKeyNotFound = errors.New("key not found")
)

// Type identifies the kind of data stored in a Value.
type Type uint8

const (
	Numeric Type = iota
	Boolean
	String
	Array
)

// String returns the name used for the type in the catalog.
func (t Type) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Boolean:
		return "bool"
	case String:
		return "string"
	case Array:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// TypeFromString is the inverse of Type.String.
func TypeFromString(s string) (Type, error) {
	switch s {
	case "numeric":
		return Numeric, nil
	case "bool":
		return Boolean, nil
	case "string":
		return String, nil
	case "array":
		return Array, nil
	default:
		return 0, fmt.Errorf("%w: unknown type %q", ErrParse, s)
	}
}

// Value is a tagged union. The zero Value is Numeric(0).
//
// Values behave like plain values: copying a Value never shares the entries
// of an Array with the copy.
type Value struct {
	typ Type
	num float64
	b   bool
	str string
	arr map[string]Value
}

// Num returns a Numeric value.
func Num(f float64) Value { return Value{typ: Numeric, num: f} }

// Int returns a Numeric value holding i.
func Int(i int) Value { return Num(float64(i)) }

// Bool returns a Boolean value.
func Bool(b bool) Value { return Value{typ: Boolean, b: b} }

// Str returns a String value.
func Str(s string) Value { return Value{typ: String, str: s} }

// Arr returns an Array value holding a copy of m.
func Arr(m map[string]Value) Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return Value{typ: Array, arr: out}
}

// List returns an Array keyed "0", "1", ... in the order of vs.
func List(vs ...Value) Value {
	m := make(map[string]Value, len(vs))
	for i, v := range vs {
		m[indexKey(i)] = v.clone()
	}
	return Value{typ: Array, arr: m}
}

func (v Value) clone() Value {
	if v.typ != Array {
		return v
	}
	return Arr(v.arr)
}

// Type returns the tag of v.
func (v Value) Type() Type { return v.typ }

func (v Value) expect(t Type) error {
	if v.typ != t {
		return fmt.Errorf("%w: value is %s, not %s", ErrTypeMismatch, v.typ, t)
	}
	return nil
}

// Numeric returns the number held by v.
func (v Value) Numeric() (float64, error) {
	if err := v.expect(Numeric); err != nil {
		return 0, err
	}
	return v.num, nil
}

// Boolean returns the boolean held by v.
func (v Value) Boolean() (bool, error) {
	if err := v.expect(Boolean); err != nil {
		return false, err
	}
	return v.b, nil
}

// Text returns the string held by v.
func (v Value) Text() (string, error) {
	if err := v.expect(String); err != nil {
		return "", err
	}
	return v.str, nil
}

// Map returns a copy of the entries of an Array.
func (v Value) Map() (map[string]Value, error) {
	if err := v.expect(Array); err != nil {
		return nil, err
	}
	return Arr(v.arr).arr, nil
}

// Keys returns the sorted keys of an Array.
func (v Value) Keys() ([]string, error) {
	if err := v.expect(Array); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(v.arr)), nil
}

// Get returns the entry stored under key.
func (v Value) Get(key string) (Value, error) {
	if err := v.expect(Array); err != nil {
		return Value{}, err
	}
	e, ok := v.arr[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return e.clone(), nil
}

// Set inserts or replaces the entry stored under key.
func (v *Value) Set(key string, e Value) error {
	if err := v.expect(Array); err != nil {
		return err
	}
	// copy on write: other copies of v must not observe the change
	next := Arr(v.arr).arr
	next[key] = e.clone()
	v.arr = next
	return nil
}

// Assign replaces the content of v with o. The type of v never changes.
func (v *Value) Assign(o Value) error {
	if v.typ != o.typ {
		return fmt.Errorf("%w: cannot assign %s to %s", ErrTypeMismatch, o.typ, v.typ)
	}
	*v = o.clone()
	return nil
}
