package value

import (
	"cmp"
	"fmt"
)

// Equal reports whether v and b hold the same type and content. Arrays are
// compared structurally; key order plays no role.
func (v Value) Equal(b Value) bool {
	if v.typ != b.typ {
		return false
	}
	switch v.typ {
	case Numeric:
		return v.num == b.num
	case Boolean:
		return v.b == b.b
	case String:
		return v.str == b.str
	case Array:
		if len(v.arr) != len(b.arr) {
			return false
		}
		for k, av := range v.arr {
			bv, ok := b.arr[k]
			if !ok || !av.Equal(bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders v relative to b. Only Numeric and String values are ordered.
func (v Value) Compare(b Value) (int, error) {
	if v.typ != b.typ {
		return 0, fmt.Errorf("%w: comparing %s with %s", ErrTypeMismatch, v.typ, b.typ)
	}
	switch v.typ {
	case Numeric:
		return cmp.Compare(v.num, b.num), nil
	case String:
		return cmp.Compare(v.str, b.str), nil
	default:
		return 0, fmt.Errorf("%w: %s values have no ordering", ErrTypeMismatch, v.typ)
	}
}

// Less reports v < b.
func (v Value) Less(b Value) (bool, error) {
	c, err := v.Compare(b)
	return c < 0, err
}

// LessEqual reports v <= b.
func (v Value) LessEqual(b Value) (bool, error) {
	c, err := v.Compare(b)
	return err == nil && c <= 0, err
}

// Greater reports v > b.
func (v Value) Greater(b Value) (bool, error) {
	c, err := v.Compare(b)
	return c > 0, err
}

// GreaterEqual reports v >= b.
func (v Value) GreaterEqual(b Value) (bool, error) {
	c, err := v.Compare(b)
	return err == nil && c >= 0, err
}

// Add returns v + b for Numeric values and the concatenation for Strings.
func (v Value) Add(b Value) (Value, error) {
	if v.typ != b.typ {
		return Value{}, fmt.Errorf("%w: cannot add %s and %s", ErrTypeMismatch, v.typ, b.typ)
	}
	switch v.typ {
	case Numeric:
		return Num(v.num + b.num), nil
	case String:
		return Str(v.str + b.str), nil
	default:
		return Value{}, fmt.Errorf("%w: + is not defined for %s", ErrTypeMismatch, v.typ)
	}
}

// Sub returns v - b.
func (v Value) Sub(b Value) (Value, error) {
	return v.arith("-", b, func(x, y float64) float64 { return x - y })
}

// Mul returns v * b.
func (v Value) Mul(b Value) (Value, error) {
	return v.arith("*", b, func(x, y float64) float64 { return x * y })
}

// Div returns v / b. Division by zero follows IEEE 754.
func (v Value) Div(b Value) (Value, error) {
	return v.arith("/", b, func(x, y float64) float64 { return x / y })
}

func (v Value) arith(op string, b Value, fn func(x, y float64) float64) (Value, error) {
	if v.typ != Numeric || b.typ != Numeric {
		return Value{}, fmt.Errorf("%w: %s is only defined for numeric values, got %s and %s",
			ErrTypeMismatch, op, v.typ, b.typ)
	}
	return Num(fn(v.num, b.num)), nil
}
