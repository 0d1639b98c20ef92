package query

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/value"
	"github.com/ohler55/ojg/oj"
)

// conditionKeys are the members that turn an attribute object into a
// condition instead of an array literal.
var conditionKeys = map[string]bool{
	"not": true, "min": true, "max": true, "present": true, "or": true, "matches": true,
}

// ParseRequests parses query text. A JSON list holds independent requests,
// a single object is one request.
func ParseRequests(text string) ([]Request, error) {
	tree, err := oj.ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", value.ErrParse, err)
	}
	switch t := tree.(type) {
	case map[string]any:
		r, err := requestFromMap(t)
		if err != nil {
			return nil, err
		}
		return []Request{r}, nil
	case []any:
		out := make([]Request, 0, len(t))
		for i, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: query entry %d is not an object", value.ErrParse, i)
			}
			r, err := requestFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("query entry %d: %w", i, err)
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: query must be an object or a list of objects", value.ErrParse)
	}
}

// ParseRequest parses query text holding exactly one request.
func ParseRequest(text string) (Request, error) {
	rs, err := ParseRequests(text)
	if err != nil {
		return Request{}, err
	}
	if len(rs) != 1 {
		return Request{}, fmt.Errorf("%w: expected one request, got %d", value.ErrParse, len(rs))
	}
	return rs[0], nil
}

func requestFromMap(m map[string]any) (Request, error) {
	var r Request
	for _, key := range slices.Sorted(maps.Keys(m)) {
		var err error
		switch key {
		case "attributes":
			r.AttrRequests, err = parseAttributes(m[key])
		case "file":
			r.FileRequests, err = parseFile(m[key])
		case "dataset":
			r.DsetRequests, err = parseDataset(m[key])
		case "searchmode":
			s, ok := m[key].(string)
			if !ok {
				return r, fmt.Errorf("%w: searchmode must be a string", value.ErrParse)
			}
			r.SearchMode, err = ParseSearchMode(s)
		default:
			return r, fmt.Errorf("%w: %q", ErrUnknownRequestKey, key)
		}
		if err != nil {
			return r, err
		}
	}
	return r, nil
}

func object(x any, what string) (map[string]any, error) {
	m, ok := x.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", value.ErrParse, what)
	}
	return m, nil
}

func parseAttributes(x any) ([]AttributeRequest, error) {
	m, err := object(x, "attributes")
	if err != nil {
		return nil, err
	}
	var out []AttributeRequest
	for _, name := range slices.Sorted(maps.Keys(m)) {
		conds, err := parseCondition(m[name])
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		for _, c := range conds {
			out = append(out, AttributeRequest{Name: name, Condition: c})
		}
	}
	return out, nil
}

func isCondition(m map[string]any) bool {
	for k := range m {
		if conditionKeys[k] {
			return true
		}
	}
	return false
}

// parseCondition turns one attribute entry into conditions. An object may
// combine several keys; "min" and "max" together form a Range.
func parseCondition(x any) ([]AttributeCondition, error) {
	m, ok := x.(map[string]any)
	if !ok || !isCondition(m) {
		v, err := value.FromAny(x)
		if err != nil {
			return nil, err
		}
		return []AttributeCondition{Equals{Value: v}}, nil
	}

	operand := func(key string) (value.Value, error) { return value.FromAny(m[key]) }
	var out []AttributeCondition
	_, hasMin := m["min"]
	_, hasMax := m["max"]
	if hasMin && hasMax {
		lo, err := operand("min")
		if err != nil {
			return nil, err
		}
		hi, err := operand("max")
		if err != nil {
			return nil, err
		}
		r, err := NewRange(lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	for _, key := range slices.Sorted(maps.Keys(m)) {
		switch key {
		case "min", "max":
			if hasMin && hasMax {
				continue
			}
			v, err := operand(key)
			if err != nil {
				return nil, err
			}
			if key == "min" {
				out = append(out, Min{Value: v})
			} else {
				out = append(out, Max{Value: v})
			}
		case "not":
			v, err := operand(key)
			if err != nil {
				return nil, err
			}
			out = append(out, NotEquals{Value: v})
		case "present":
			b, ok := m[key].(bool)
			if !ok {
				return nil, fmt.Errorf("%w: present must be a boolean", value.ErrParse)
			}
			p, err := NewPresent(b)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "or":
			list, ok := m[key].([]any)
			if !ok {
				return nil, fmt.Errorf("%w: or must be a list", value.ErrParse)
			}
			vs := make([]value.Value, 0, len(list))
			for _, e := range list {
				v, err := value.FromAny(e)
				if err != nil {
					return nil, err
				}
				vs = append(vs, v)
			}
			o, err := NewOr(vs)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		case "matches":
			expr, ok := m[key].(string)
			if !ok {
				return nil, fmt.Errorf("%w: matches must be a string", value.ErrParse)
			}
			c, err := NewMatches(expr)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		default:
			return nil, fmt.Errorf("%w: %q in attribute condition", ErrUnknownRequestKey, key)
		}
	}
	return out, nil
}

func integer(x any, what string) (int64, error) {
	switch t := x.(type) {
	case int64:
		return t, nil
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range
		if t == math.Trunc(t) && t >= math.MinInt64 && t < math.MaxInt64 {
			return int64(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be an integer", value.ErrParse, what)
}

func parseFile(x any) ([]FileCondition, error) {
	m, err := object(x, "file")
	if err != nil {
		return nil, err
	}
	var out []FileCondition
	for _, key := range slices.Sorted(maps.Keys(m)) {
		switch key {
		case "matches":
			expr, ok := m[key].(string)
			if !ok {
				return nil, fmt.Errorf("%w: file matches must be a string", value.ErrParse)
			}
			c, err := NewFileNameMatches(expr)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		case "newer", "older", "mtime":
			t, err := integer(m[key], "file "+key)
			if err != nil {
				return nil, err
			}
			switch key {
			case "newer":
				out = append(out, Newer{Mtime: t})
			case "older":
				out = append(out, Older{Mtime: t})
			default:
				out = append(out, Mtime{Mtime: t})
			}
		default:
			return nil, fmt.Errorf("%w: %q in file condition", ErrUnknownRequestKey, key)
		}
	}
	return out, nil
}

func parseDataset(x any) ([]DatasetCondition, error) {
	m, err := object(x, "dataset")
	if err != nil {
		return nil, err
	}
	var out []DatasetCondition
	for _, key := range slices.Sorted(maps.Keys(m)) {
		if key != "matches" {
			return nil, fmt.Errorf("%w: %q in dataset condition", ErrUnknownRequestKey, key)
		}
		expr, ok := m[key].(string)
		if !ok {
			return nil, fmt.Errorf("%w: dataset matches must be a string", value.ErrParse)
		}
		c, err := NewDatasetNameMatches(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseDatasetSpec parses the JSON description of one dataset entry:
//
//	{"attributes": {...}, "datasetname": "/a/b", "file": {"filename": "f", "mtime": 1}, "location": {"row": -1}}
//
// A missing location refers to the whole dataset.
func ParseDatasetSpec(text string) (index.DatasetSpec, error) {
	tree, err := oj.ParseString(text)
	if err != nil {
		return index.DatasetSpec{}, fmt.Errorf("%w: dataset spec: %v", value.ErrParse, err)
	}
	m, err := object(tree, "dataset spec")
	if err != nil {
		return index.DatasetSpec{}, err
	}
	d := index.DatasetSpec{Location: index.WholeDataset}
	for _, key := range slices.Sorted(maps.Keys(m)) {
		switch key {
		case "attributes":
			attrs, err := object(m[key], "attributes")
			if err != nil {
				return d, err
			}
			for _, name := range slices.Sorted(maps.Keys(attrs)) {
				v, err := value.FromAny(attrs[name])
				if err != nil {
					return d, fmt.Errorf("attribute %q: %w", name, err)
				}
				d.Attributes = append(d.Attributes, index.Attribute{Name: name, Value: v})
			}
		case "datasetname":
			s, ok := m[key].(string)
			if !ok {
				return d, fmt.Errorf("%w: datasetname must be a string", value.ErrParse)
			}
			d.Datasetname = s
		case "file":
			f, err := object(m[key], "file")
			if err != nil {
				return d, err
			}
			name, ok := f["filename"].(string)
			if !ok {
				return d, fmt.Errorf("%w: file needs a filename", value.ErrParse)
			}
			d.File.Filename = name
			if mt, present := f["mtime"]; present {
				if d.File.Mtime, err = integer(mt, "mtime"); err != nil {
					return d, err
				}
			}
		case "location":
			loc, err := object(m[key], "location")
			if err != nil {
				return d, err
			}
			row, err := integer(loc["row"], "location row")
			if err != nil {
				return d, err
			}
			if row < -1 || row > math.MaxInt32 {
				return d, fmt.Errorf("%w: row %d out of range", value.ErrParse, row)
			}
			d.Location.Row = int32(row)
		default:
			return d, fmt.Errorf("%w: %q in dataset spec", ErrUnknownRequestKey, key)
		}
	}
	return d, nil
}
