// Package query models requests against the catalog: conditions on attribute
// values, on source files and on dataset paths, and the exact in-memory filter
// that decides which datasets match.
package query

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/value"
)

var (
	// ErrConditionConstruction is returned when a condition cannot be built
	// from its operands.
	ErrConditionConstruction = errors.New("invalid condition")
	// ErrUnknownRequestKey is returned for query text with unsupported keys.
	ErrUnknownRequestKey = errors.New("unknown request key")
)

// Fragment is a parameterised SQL boolean expression.
type Fragment struct {
	SQL  string
	Args []any
}

// AttributeCondition is a predicate on attribute values.
//
// ValueFragment and KeyFragment translate the condition into SQL for the
// catalog prefilter. A fragment may accept more rows than Matches does, but
// never fewer.
type AttributeCondition interface {
	Matches(attr index.Attribute, reqname string) (bool, error)
	ValueFragment(column string) Fragment
	KeyFragment(column, name string) Fragment
}

// SQLValue returns the canonical representation of v as stored in the
// catalog: numbers as REAL, everything else as its rendering. NaN is stored
// as its rendering too, since SQLite turns a NaN REAL into NULL.
func SQLValue(v value.Value) any {
	if f, err := v.Numeric(); err == nil && !math.IsNaN(f) {
		return f
	}
	return v.String()
}

// ordered reports whether SQL comparison agrees with Value ordering for t.
func ordered(t value.Type) bool {
	return t == value.Numeric || t == value.String
}

// loose provides the fragments shared by all conditions: any stored value,
// selected by attribute name.
type loose struct{}

func (loose) ValueFragment(column string) Fragment {
	return Fragment{SQL: column + " IS NOT NULL"}
}

func (loose) KeyFragment(column, name string) Fragment {
	return Fragment{SQL: column + " = ?", Args: []any{name}}
}

// Equals matches attributes holding exactly Value.
type Equals struct {
	loose
	Value value.Value
}

func (c Equals) Matches(attr index.Attribute, reqname string) (bool, error) {
	return attr.Name == reqname && attr.Value.Equal(c.Value), nil
}

func (c Equals) ValueFragment(column string) Fragment {
	return Fragment{SQL: column + " = ?", Args: []any{SQLValue(c.Value)}}
}

// NotEquals matches attributes of the same type as Value holding anything
// else. Attributes of another type never match.
type NotEquals struct {
	loose
	Value value.Value
}

func (c NotEquals) Matches(attr index.Attribute, reqname string) (bool, error) {
	if attr.Name != reqname || attr.Type() != c.Value.Type() {
		return false, nil
	}
	return !attr.Value.Equal(c.Value), nil
}

// Range matches attributes v with Min <= v <= Max.
type Range struct {
	loose
	Min, Max value.Value
}

// NewRange returns a Range over [min, max]. Both bounds must share a type.
func NewRange(min, max value.Value) (Range, error) {
	if min.Type() != max.Type() {
		return Range{}, fmt.Errorf("%w: range bounds of type %s and %s", ErrConditionConstruction, min.Type(), max.Type())
	}
	return Range{Min: min, Max: max}, nil
}

func (c Range) Matches(attr index.Attribute, reqname string) (bool, error) {
	if attr.Name != reqname || attr.Type() != c.Min.Type() {
		return false, nil
	}
	lo, err := attr.Value.GreaterEqual(c.Min)
	if err != nil || !lo {
		return false, err
	}
	return attr.Value.LessEqual(c.Max)
}

func (c Range) ValueFragment(column string) Fragment {
	if !ordered(c.Min.Type()) {
		return c.loose.ValueFragment(column)
	}
	return Fragment{SQL: column + " BETWEEN ? AND ?", Args: []any{SQLValue(c.Min), SQLValue(c.Max)}}
}

// Min matches attributes of the bound's type that are >= Value.
type Min struct {
	loose
	Value value.Value
}

func (c Min) Matches(attr index.Attribute, reqname string) (bool, error) {
	return atLeast(attr, reqname, c.Value)
}

func (c Min) ValueFragment(column string) Fragment {
	return atLeastFragment(c.loose, column, c.Value)
}

// Max matches attributes of the bound's type that are >= Value, exactly like
// Min. Catalogs built against earlier releases rely on this.
type Max struct {
	loose
	Value value.Value
}

func (c Max) Matches(attr index.Attribute, reqname string) (bool, error) {
	return atLeast(attr, reqname, c.Value)
}

func (c Max) ValueFragment(column string) Fragment {
	return atLeastFragment(c.loose, column, c.Value)
}

func atLeast(attr index.Attribute, reqname string, bound value.Value) (bool, error) {
	if attr.Name != reqname || attr.Type() != bound.Type() {
		return false, nil
	}
	return attr.Value.GreaterEqual(bound)
}

func atLeastFragment(l loose, column string, bound value.Value) Fragment {
	if !ordered(bound.Type()) {
		return l.ValueFragment(column)
	}
	return Fragment{SQL: column + " >= ?", Args: []any{SQLValue(bound)}}
}

// Present matches any attribute with the requested name.
type Present struct {
	loose
}

// NewPresent returns a Present condition. Asking for absence is not
// supported.
func NewPresent(present bool) (Present, error) {
	if !present {
		return Present{}, fmt.Errorf("%w: present must be true", ErrConditionConstruction)
	}
	return Present{}, nil
}

func (Present) Matches(attr index.Attribute, reqname string) (bool, error) {
	return attr.Name == reqname, nil
}

// Or matches attributes equal to any of Values.
type Or struct {
	loose
	Values []value.Value
}

// NewOr returns an Or over values, which must be non-empty and share a type.
func NewOr(values []value.Value) (Or, error) {
	if len(values) == 0 {
		return Or{}, fmt.Errorf("%w: or needs at least one value", ErrConditionConstruction)
	}
	for _, v := range values[1:] {
		if v.Type() != values[0].Type() {
			return Or{}, fmt.Errorf("%w: or mixes %s and %s", ErrConditionConstruction, values[0].Type(), v.Type())
		}
	}
	return Or{Values: append([]value.Value(nil), values...)}, nil
}

func (c Or) Matches(attr index.Attribute, reqname string) (bool, error) {
	if attr.Name != reqname {
		return false, nil
	}
	for _, v := range c.Values {
		if attr.Value.Equal(v) {
			return true, nil
		}
	}
	return false, nil
}

func (c Or) ValueFragment(column string) Fragment {
	marks := make([]string, len(c.Values))
	args := make([]any, len(c.Values))
	for i, v := range c.Values {
		marks[i] = "?"
		args[i] = SQLValue(v)
	}
	return Fragment{SQL: column + " IN (" + strings.Join(marks, ", ") + ")", Args: args}
}

// Matches matches attributes whose rendering matches a regular expression in
// its entirety.
type Matches struct {
	loose
	re *regexp.Regexp
}

// NewMatches compiles expr into a Matches condition.
func NewMatches(expr string) (Matches, error) {
	re, err := compileFull(expr)
	if err != nil {
		return Matches{}, err
	}
	return Matches{re: re}, nil
}

func (c Matches) Matches(attr index.Attribute, reqname string) (bool, error) {
	return attr.Name == reqname && c.re.MatchString(attr.Value.String()), nil
}

func compileFull(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConditionConstruction, err)
	}
	return re, nil
}
