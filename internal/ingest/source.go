package ingest

import (
	"errors"
	"fmt"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/value"
)

var (
	// ErrSourceUnavailable is returned when a source file or one of its
	// nodes cannot be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrUnsupportedAttributeShape is returned for attribute values that have
	// no Value representation: string arrays, multi-dimensional arrays and
	// compound values.
	ErrUnsupportedAttributeShape = errors.New("unsupported attribute shape")
	// ErrMalformedContainer is returned when a container file does not follow
	// the container layout.
	ErrMalformedContainer = errors.New("malformed container")
)

// Kind classifies the nodes of a hierarchical source.
type Kind uint8

const (
	Container Kind = iota // group of further nodes
	Leaf                  // plain dataset
	Table                 // dataset of records, indexed row by row
)

func (k Kind) String() string {
	switch k {
	case Container:
		return "container"
	case Leaf:
		return "leaf"
	case Table:
		return "table"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// RawAttribute is an attribute as read from a source, before conversion.
// Value holds a Go scalar or a slice of them.
type RawAttribute struct {
	Name  string
	Value any
}

// Node is one node of an open source. Nodes returned by Child must be closed
// by the caller.
type Node interface {
	Name() string
	Kind() Kind
	Attributes() ([]RawAttribute, error)
	// Children returns the names of the child nodes in sorted order.
	Children() ([]string, error)
	Child(name string) (Node, error)
	// Rows returns the records of a Table node, one slice of fields per row.
	Rows() ([][]RawAttribute, error)
	Close() error
}

// Source is an open hierarchical data file.
type Source interface {
	File() index.File
	Root() (Node, error)
	Close() error
}

// Convert turns a raw attribute into a typed attribute. Numeric arrays of
// length one collapse to a scalar, longer ones become arrays keyed "0", "1", ...
func Convert(raw RawAttribute) (index.Attribute, error) {
	v, err := convertValue(raw.Value)
	if err != nil {
		return index.Attribute{}, fmt.Errorf("attribute %q: %w", raw.Name, err)
	}
	return index.Attribute{Name: raw.Name, Value: v}, nil
}

func convertAll(raws []RawAttribute) ([]index.Attribute, error) {
	out := make([]index.Attribute, 0, len(raws))
	for _, r := range raws {
		a, err := Convert(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func convertValue(x any) (value.Value, error) {
	if f, ok := number(x); ok {
		return value.Num(f), nil
	}
	switch t := x.(type) {
	case bool:
		return value.Bool(t), nil
	case string:
		return value.Str(t), nil
	case []int64:
		return numericList(len(t), func(i int) (float64, bool) { return float64(t[i]), true })
	case []int:
		return numericList(len(t), func(i int) (float64, bool) { return float64(t[i]), true })
	case []float64:
		return numericList(len(t), func(i int) (float64, bool) { return t[i], true })
	case []any:
		return numericList(len(t), func(i int) (float64, bool) { return number(t[i]) })
	default:
		return value.Value{}, fmt.Errorf("%w: %T", ErrUnsupportedAttributeShape, x)
	}
}

func number(x any) (float64, bool) {
	switch t := x.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func numericList(n int, at func(i int) (float64, bool)) (value.Value, error) {
	if n == 0 {
		return value.Value{}, fmt.Errorf("%w: empty array", ErrUnsupportedAttributeShape)
	}
	elems := make([]value.Value, n)
	for i := range n {
		f, ok := at(i)
		if !ok {
			return value.Value{}, fmt.Errorf("%w: only one-dimensional numeric arrays are supported", ErrUnsupportedAttributeShape)
		}
		elems[i] = value.Num(f)
	}
	if n == 1 {
		return elems[0], nil
	}
	return value.List(elems...), nil
}
