package index

import (
	"maps"
	"slices"
)

// Row is one record of a table-shaped leaf. Its fields become attributes of
// the dataset entry synthesized for it.
type Row struct {
	Index  int32
	Fields []Attribute
}

// Table is a table-shaped leaf recorded during traversal, together with the
// attributes inherited by the group it lives in.
type Table struct {
	File       File
	Attributes []Attribute
	Rows       []Row
}

// Tables maps a group path to the table found in that group.
type Tables map[string]Table

// Expand replaces every entry whose group holds a table by one entry per table
// row. The row entries keep the entry's attributes and path, add the row's
// fields as attributes and address the row through Location.Row.
//
// A table in a group without any plain dataset still yields its rows; those
// entries are named after the group path.
func Expand(idx Index, tables Tables) Index {
	if len(tables) == 0 {
		return idx
	}
	used := make(map[string]bool, len(tables))
	out := make(Index, 0, len(idx))
	for _, d := range idx {
		group := ParentPath(d.Datasetname)
		tbl, ok := tables[group]
		if !ok {
			out = append(out, d)
			continue
		}
		used[group] = true
		out = append(out, splitRows(d, tbl.Rows)...)
	}
	for _, group := range slices.Sorted(maps.Keys(tables)) {
		if used[group] {
			continue
		}
		tbl := tables[group]
		base := DatasetSpec{
			Attributes:  tbl.Attributes,
			Datasetname: group,
			File:        tbl.File,
			Location:    WholeDataset,
		}
		out = append(out, splitRows(base, tbl.Rows)...)
	}
	return out
}

func splitRows(d DatasetSpec, rows []Row) Index {
	out := make(Index, 0, len(rows))
	for _, r := range rows {
		out = append(out, DatasetSpec{
			Attributes:  slices.Concat(d.Attributes, r.Fields),
			Datasetname: d.Datasetname,
			File:        d.File,
			Location:    DatasetChunkSpec{Row: r.Index},
		})
	}
	return out
}
