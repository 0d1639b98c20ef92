package query

import (
	"regexp"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
)

// FileCondition is a predicate on the source file of a dataset.
type FileCondition interface {
	Matches(f index.File) bool
}

// DatasetCondition is a predicate on the path and location of a dataset.
type DatasetCondition interface {
	Matches(name string, loc index.DatasetChunkSpec) bool
}

// FileNameMatches matches files whose full name matches a regular expression.
type FileNameMatches struct {
	re *regexp.Regexp
}

func NewFileNameMatches(expr string) (FileNameMatches, error) {
	re, err := compileFull(expr)
	if err != nil {
		return FileNameMatches{}, err
	}
	return FileNameMatches{re: re}, nil
}

func (c FileNameMatches) Matches(f index.File) bool { return c.re.MatchString(f.Filename) }

// Older matches files modified before Mtime.
type Older struct{ Mtime int64 }

func (c Older) Matches(f index.File) bool { return f.Mtime < c.Mtime }

// Newer matches files modified after Mtime.
type Newer struct{ Mtime int64 }

func (c Newer) Matches(f index.File) bool { return f.Mtime > c.Mtime }

// Mtime matches files modified exactly at Mtime.
type Mtime struct{ Mtime int64 }

func (c Mtime) Matches(f index.File) bool { return f.Mtime == c.Mtime }

// DatasetNameMatches matches datasets whose path matches a regular expression.
type DatasetNameMatches struct {
	re *regexp.Regexp
}

func NewDatasetNameMatches(expr string) (DatasetNameMatches, error) {
	re, err := compileFull(expr)
	if err != nil {
		return DatasetNameMatches{}, err
	}
	return DatasetNameMatches{re: re}, nil
}

func (c DatasetNameMatches) Matches(name string, _ index.DatasetChunkSpec) bool {
	return c.re.MatchString(name)
}
