// Package index holds the data model of the catalog: attributes, source files
// and the dataset descriptors produced by indexing.
package index

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/j4cko/hdf5-metadataindex/internal/value"
)

// Attribute is a named, typed value attached to a dataset.
type Attribute struct {
	Name  string
	Value value.Value
}

// Type returns the type of the attribute's value.
func (a Attribute) Type() value.Type { return a.Value.Type() }

// File identifies one version of a source file. The same path at two
// modification times is two different Files.
type File struct {
	Filename string
	Mtime    int64
}

// DatasetChunkSpec addresses the part of a dataset an entry refers to.
type DatasetChunkSpec struct {
	// Row is -1 for the whole dataset, otherwise one row of a table-shaped leaf.
	Row int32
}

// WholeDataset is the location of an entry that covers a complete dataset.
var WholeDataset = DatasetChunkSpec{Row: -1}

// DatasetSpec is one indexed unit: a full dataset or one row of it.
type DatasetSpec struct {
	Attributes  []Attribute
	Datasetname string // full hierarchical path, e.g. "/rqcd/solve_0/data"
	File        File
	Location    DatasetChunkSpec
}

// Index is an ordered collection of DatasetSpecs.
type Index []DatasetSpec

// UniqueFiles returns the distinct files referenced by idx, sorted by name and
// modification time.
func UniqueFiles(idx Index) []File {
	files := make([]File, 0, len(idx))
	for _, d := range idx {
		files = append(files, d.File)
	}
	slices.SortFunc(files, func(a, b File) int {
		return cmp.Or(cmp.Compare(a.Filename, b.Filename), cmp.Compare(a.Mtime, b.Mtime))
	})
	return slices.Compact(files)
}

// FullPath joins non-empty path elements into an absolute dataset path.
func FullPath(elems []string) string {
	var sb strings.Builder
	for _, e := range elems {
		if e == "" {
			continue
		}
		sb.WriteByte('/')
		sb.WriteString(e)
	}
	return sb.String()
}

// ParentPath returns the path of the group that holds the dataset at p.
func ParentPath(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Print writes a human-readable listing of idx.
func Print(w io.Writer, idx Index) error {
	for _, d := range idx {
		if _, err := fmt.Fprintf(w, "dataset %q (from file %q and row %d) has the following attributes:\n",
			d.Datasetname, d.File.Filename, d.Location.Row); err != nil {
			return err
		}
		for _, a := range d.Attributes {
			if _, err := fmt.Fprintf(w, "  - %s (%s) = %s\n", a.Name, a.Type(), a.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
