package query

import (
	"testing"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attr(name string, v value.Value) index.Attribute {
	return index.Attribute{Name: name, Value: v}
}

func TestAttributeConditions(t *testing.T) {
	rng, err := NewRange(value.Int(2), value.Int(5))
	require.NoError(t, err)
	or, err := NewOr([]value.Value{value.Str("a"), value.Str("c")})
	require.NoError(t, err)
	present, err := NewPresent(true)
	require.NoError(t, err)
	re, err := NewMatches("sm.*")
	require.NoError(t, err)

	tests := []struct {
		name string
		cond AttributeCondition
		attr index.Attribute
		want bool
	}{
		{"equals", Equals{Value: value.Int(7)}, attr("x", value.Int(7)), true},
		{"equals other name", Equals{Value: value.Int(7)}, attr("y", value.Int(7)), false},
		{"equals other type", Equals{Value: value.Int(7)}, attr("x", value.Str("7")), false},
		{"not equals", NotEquals{Value: value.Int(7)}, attr("x", value.Int(8)), true},
		{"not equals same", NotEquals{Value: value.Int(7)}, attr("x", value.Int(7)), false},
		{"not equals other type", NotEquals{Value: value.Int(7)}, attr("x", value.Str("8")), false},
		{"range inside", rng, attr("x", value.Int(5)), true},
		{"range below", rng, attr("x", value.Num(1.9)), false},
		{"range other type", rng, attr("x", value.Str("3")), false},
		{"min", Min{Value: value.Int(5)}, attr("x", value.Int(5)), true},
		{"min below", Min{Value: value.Int(5)}, attr("x", value.Int(4)), false},
		{"max above bound", Max{Value: value.Int(5)}, attr("x", value.Int(7)), true},
		{"max below bound", Max{Value: value.Int(5)}, attr("x", value.Int(3)), false},
		{"present", present, attr("x", value.Bool(false)), true},
		{"present other name", present, attr("y", value.Bool(false)), false},
		{"or", or, attr("x", value.Str("c")), true},
		{"or miss", or, attr("x", value.Str("b")), false},
		{"matches", re, attr("x", value.Str("smeared")), true},
		{"matches is anchored", re, attr("x", value.Str("unsmeared")), false},
		{"matches numbers by rendering", mustMatches(t, "2.*"), attr("x", value.Int(250)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Matches(tt.attr, "x")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func mustMatches(t *testing.T, expr string) Matches {
	t.Helper()
	c, err := NewMatches(expr)
	require.NoError(t, err)
	return c
}

func TestConditionConstruction(t *testing.T) {
	_, err := NewRange(value.Int(1), value.Str("2"))
	assert.ErrorIs(t, err, ErrConditionConstruction)
	_, err = NewPresent(false)
	assert.ErrorIs(t, err, ErrConditionConstruction)
	_, err = NewOr(nil)
	assert.ErrorIs(t, err, ErrConditionConstruction)
	_, err = NewOr([]value.Value{value.Int(1), value.Str("1")})
	assert.ErrorIs(t, err, ErrConditionConstruction)
	_, err = NewMatches("(")
	assert.ErrorIs(t, err, ErrConditionConstruction)
	_, err = NewFileNameMatches("[")
	assert.ErrorIs(t, err, ErrConditionConstruction)
}

func TestOrdering_UnorderableTypes(t *testing.T) {
	_, err := Min{Value: value.Bool(true)}.Matches(attr("x", value.Bool(false)), "x")
	assert.ErrorIs(t, err, value.ErrTypeMismatch)

	rng, err := NewRange(value.List(value.Int(0)), value.List(value.Int(1)))
	require.NoError(t, err)
	_, err = rng.Matches(attr("x", value.List(value.Int(0))), "x")
	assert.ErrorIs(t, err, value.ErrTypeMismatch)

	_, err = Filter(index.Index{{Attributes: []index.Attribute{attr("x", value.Bool(true))}}},
		Request{AttrRequests: []AttributeRequest{{Name: "x", Condition: Max{Value: value.Bool(false)}}}})
	assert.ErrorIs(t, err, value.ErrTypeMismatch)
}

func TestFragments(t *testing.T) {
	rng, _ := NewRange(value.Int(1), value.Int(3))
	or, _ := NewOr([]value.Value{value.Str("a"), value.Str("b")})
	boolRange, _ := NewRange(value.Bool(false), value.Bool(true))

	tests := []struct {
		name string
		cond AttributeCondition
		want Fragment
	}{
		{"equals numeric", Equals{Value: value.Int(7)}, Fragment{SQL: "v.value = ?", Args: []any{7.0}}},
		{"equals array", Equals{Value: value.List(value.Int(1))}, Fragment{SQL: "v.value = ?", Args: []any{`{"0": 1}`}}},
		{"equals bool", Equals{Value: value.Bool(true)}, Fragment{SQL: "v.value = ?", Args: []any{"true"}}},
		{"range", rng, Fragment{SQL: "v.value BETWEEN ? AND ?", Args: []any{1.0, 3.0}}},
		{"range bool", boolRange, Fragment{SQL: "v.value IS NOT NULL"}},
		{"min", Min{Value: value.Str("m")}, Fragment{SQL: "v.value >= ?", Args: []any{"m"}}},
		{"max", Max{Value: value.Int(5)}, Fragment{SQL: "v.value >= ?", Args: []any{5.0}}},
		{"not", NotEquals{Value: value.Int(5)}, Fragment{SQL: "v.value IS NOT NULL"}},
		{"or", or, Fragment{SQL: "v.value IN (?, ?)", Args: []any{"a", "b"}}},
		{"matches", mustMatches(t, "x"), Fragment{SQL: "v.value IS NOT NULL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.ValueFragment("v.value"))
			assert.Equal(t, Fragment{SQL: "a.attrname = ?", Args: []any{"hpe"}}, tt.cond.KeyFragment("a.attrname", "hpe"))
		})
	}
}

func TestFileAndDatasetConditions(t *testing.T) {
	f := index.File{Filename: "/data/run_7.h5", Mtime: 100}
	fm, err := NewFileNameMatches(`.*run_\d+\.h5`)
	require.NoError(t, err)
	assert.True(t, fm.Matches(f))
	assert.False(t, Older{Mtime: 100}.Matches(f))
	assert.True(t, Older{Mtime: 101}.Matches(f))
	assert.True(t, Newer{Mtime: 99}.Matches(f))
	assert.False(t, Newer{Mtime: 100}.Matches(f))
	assert.True(t, Mtime{Mtime: 100}.Matches(f))

	dm, err := NewDatasetNameMatches("/rqcd/.*/data")
	require.NoError(t, err)
	assert.True(t, dm.Matches("/rqcd/stoch/solve_0/data", index.WholeDataset))
	assert.False(t, dm.Matches("/rqcd/stoch/solve_0/data2", index.WholeDataset))
}

func TestFilter(t *testing.T) {
	f := index.File{Filename: "a.h5", Mtime: 10}
	idx := index.Index{
		{Datasetname: "/g/data", File: f, Location: index.DatasetChunkSpec{Row: 0},
			Attributes: []index.Attribute{attr("hpe", value.Int(4)), attr("interpolator", value.Int(7))}},
		{Datasetname: "/g/data", File: f, Location: index.DatasetChunkSpec{Row: 1},
			Attributes: []index.Attribute{attr("hpe", value.Int(5)), attr("interpolator", value.Int(7))}},
		{Datasetname: "/h/data", File: index.File{Filename: "b.h5", Mtime: 20}, Location: index.WholeDataset,
			Attributes: []index.Attribute{attr("hpe", value.Int(4))}},
	}

	got, err := Filter(idx, Request{})
	require.NoError(t, err)
	assert.Equal(t, idx, got)

	got, err = Filter(idx, Request{AttrRequests: []AttributeRequest{{Name: "hpe", Condition: Equals{Value: value.Int(4)}}}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(0), got[0].Location.Row)
	assert.Equal(t, "/h/data", got[1].Datasetname)

	got, err = Filter(idx, Request{
		AttrRequests: []AttributeRequest{{Name: "hpe", Condition: Equals{Value: value.Int(4)}}},
		FileRequests: []FileCondition{Newer{Mtime: 15}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b.h5", got[0].File.Filename)

	dm, _ := NewDatasetNameMatches("/g/.*")
	got, err = Filter(idx, Request{
		AttrRequests: []AttributeRequest{{Name: "interpolator", Condition: Present{}}},
		DsetRequests: []DatasetCondition{dm},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// refinement: adding a request never grows the result
	narrower, err := Filter(got, Request{AttrRequests: []AttributeRequest{{Name: "hpe", Condition: Max{Value: value.Int(5)}}}})
	require.NoError(t, err)
	assert.Len(t, narrower, 1)
}

func TestParseRequest(t *testing.T) {
	r, err := ParseRequest(`{
		"attributes": {
			"interpolator": 7,
			"mom": [1, 1, 1],
			"hpe": {"min": 2, "max": 5},
			"smearing": {"not": "none"},
			"tag": {"or": ["a", "b"]},
			"cfg": {"present": true},
			"name": {"matches": "s.*"},
			"kappa": {"max": 0.1}
		},
		"file": {"matches": ".*\\.h5", "newer": 5, "older": 100},
		"dataset": {"matches": "/rqcd/.*"},
		"searchmode": "average"
	}`)
	require.NoError(t, err)
	assert.Equal(t, Average, r.SearchMode)
	assert.Len(t, r.FileRequests, 3)
	assert.Len(t, r.DsetRequests, 1)

	byName := map[string]AttributeCondition{}
	for _, ar := range r.AttrRequests {
		byName[ar.Name] = ar.Condition
	}
	require.Len(t, byName, 8)
	assert.Equal(t, Equals{Value: value.Int(7)}, byName["interpolator"])
	assert.True(t, byName["mom"].(Equals).Value.Equal(value.List(value.Int(1), value.Int(1), value.Int(1))))
	assert.Equal(t, Range{Min: value.Int(2), Max: value.Int(5)}, byName["hpe"])
	assert.Equal(t, NotEquals{Value: value.Str("none")}, byName["smearing"])
	assert.IsType(t, Or{}, byName["tag"])
	assert.IsType(t, Present{}, byName["cfg"])
	assert.IsType(t, Matches{}, byName["name"])
	assert.Equal(t, Max{Value: value.Num(0.1)}, byName["kappa"])
}

func TestParseRequest_ArrayLiteral(t *testing.T) {
	r, err := ParseRequest(`{"attributes": {"params": {"a": 1, "b": "x"}}}`)
	require.NoError(t, err)
	require.Len(t, r.AttrRequests, 1)
	eq, ok := r.AttrRequests[0].Condition.(Equals)
	require.True(t, ok)
	assert.True(t, eq.Value.Equal(value.Arr(map[string]value.Value{"a": value.Int(1), "b": value.Str("x")})))
	assert.Equal(t, First, r.SearchMode)
}

func TestParseRequest_CombinedConditions(t *testing.T) {
	r, err := ParseRequest(`{"attributes": {"hpe": {"min": 2, "not": 3}}}`)
	require.NoError(t, err)
	require.Len(t, r.AttrRequests, 2)
	assert.Equal(t, Min{Value: value.Int(2)}, r.AttrRequests[0].Condition)
	assert.Equal(t, NotEquals{Value: value.Int(3)}, r.AttrRequests[1].Condition)
}

func TestParseRequests(t *testing.T) {
	rs, err := ParseRequests(`[{"attributes": {"a": 1}}, {"searchmode": "CONCATENATE"}]`)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Len(t, rs[0].AttrRequests, 1)
	assert.Equal(t, Concatenate, rs[1].SearchMode)

	_, err = ParseRequest(`[{}, {}]`)
	assert.ErrorIs(t, err, value.ErrParse)
}

func TestParseRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"malformed", `{"attributes": `, value.ErrParse},
		{"not an object", `42`, value.ErrParse},
		{"unknown key", `{"attribs": {}}`, ErrUnknownRequestKey},
		{"unknown file key", `{"file": {"size": 3}}`, ErrUnknownRequestKey},
		{"unknown dataset key", `{"dataset": {"row": 3}}`, ErrUnknownRequestKey},
		{"unknown condition key", `{"attributes": {"a": {"min": 1, "step": 2}}}`, ErrUnknownRequestKey},
		{"present false", `{"attributes": {"a": {"present": false}}}`, ErrConditionConstruction},
		{"mixed or", `{"attributes": {"a": {"or": [1, "x"]}}}`, ErrConditionConstruction},
		{"mixed range", `{"attributes": {"a": {"min": 1, "max": "x"}}}`, ErrConditionConstruction},
		{"bad regex", `{"attributes": {"a": {"matches": "("}}}`, ErrConditionConstruction},
		{"null literal", `{"attributes": {"a": null}}`, value.ErrParse},
		{"fractional mtime", `{"file": {"newer": 1.5}}`, value.ErrParse},
		{"huge mtime", `{"file": {"newer": 1e20}}`, value.ErrParse},
		{"mtime just past int64", `{"file": {"older": 9.3e18}}`, value.ErrParse},
		{"negative huge mtime", `{"file": {"mtime": -1e20}}`, value.ErrParse},
		{"bad searchmode", `{"searchmode": "LAST"}`, value.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequests(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSearchMode(t *testing.T) {
	for _, m := range []SearchMode{First, Average, Concatenate, All} {
		got, err := ParseSearchMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseSearchMode("all")
	require.NoError(t, err)
	assert.Equal(t, All, got)
}

func TestParseDatasetSpec(t *testing.T) {
	d, err := ParseDatasetSpec(`{
		"attributes": {"hpe": 4, "mom": [0, 0, 1]},
		"datasetname": "/rqcd/solve_0/data",
		"file": {"filename": "run.h5", "mtime": 1234},
		"location": {"row": 3}
	}`)
	require.NoError(t, err)
	assert.Equal(t, "/rqcd/solve_0/data", d.Datasetname)
	assert.Equal(t, index.File{Filename: "run.h5", Mtime: 1234}, d.File)
	assert.Equal(t, int32(3), d.Location.Row)
	require.Len(t, d.Attributes, 2)
	assert.Equal(t, "hpe", d.Attributes[0].Name)
	assert.True(t, d.Attributes[1].Value.Equal(value.List(value.Int(0), value.Int(0), value.Int(1))))

	d, err = ParseDatasetSpec(`{"datasetname": "/x", "file": {"filename": "f"}}`)
	require.NoError(t, err)
	assert.Equal(t, index.WholeDataset, d.Location)

	_, err = ParseDatasetSpec(`{"dataset": "/x"}`)
	assert.ErrorIs(t, err, ErrUnknownRequestKey)
	_, err = ParseDatasetSpec(`{"location": {"row": -2}}`)
	assert.ErrorIs(t, err, value.ErrParse)
}
