// Package payload reads the complex-valued data of indexed datasets and
// combines the payloads of query results.
package payload

import (
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest"
	"github.com/j4cko/hdf5-metadataindex/internal/logger"
	"github.com/rs/zerolog"
)

var (
	// ErrMalformedPayload is returned for data that is not a list of re, im
	// pairs, or that does not have the addressed row.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrAggregationLengthMismatch is returned when payloads of different
	// lengths are averaged.
	ErrAggregationLengthMismatch = errors.New("aggregation length mismatch")
)

// Reader reads payloads from container files. Each file is opened at most
// once per Reader.
type Reader struct {
	fsys   billy.Filesystem
	log    zerolog.Logger
	opened map[string]*ingest.ContainerFile
}

type Option func(*Reader)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) { r.log = logger.Component(l, "payload") }
}

func NewReader(fsys billy.Filesystem, opts ...Option) *Reader {
	r := &Reader{fsys: fsys, log: zerolog.Nop(), opened: map[string]*ingest.ContainerFile{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// open returns the container of f, checking that the file on disk is not
// older than the indexed version.
func (r *Reader) open(f index.File) (*ingest.ContainerFile, error) {
	if c, ok := r.opened[f.Filename]; ok {
		return c, nil
	}
	c, err := ingest.OpenContainer(r.fsys, f.Filename)
	if err != nil {
		return nil, err
	}
	switch mtime := c.File().Mtime; {
	case mtime < f.Mtime:
		_ = c.Close()
		return nil, fmt.Errorf("%w: %s is older than its catalog entry (%d < %d)",
			ingest.ErrSourceUnavailable, f.Filename, mtime, f.Mtime)
	case mtime > f.Mtime:
		r.log.Warn().Str("file", f.Filename).Int64("indexed", f.Mtime).Int64("current", mtime).
			Msg("file changed since indexing, data may not match its attributes")
	}
	r.opened[f.Filename] = c
	return c, nil
}

// Read returns the payload addressed by d: the whole dataset, flattened row
// by row for two-dimensional data, or one row of it.
func (r *Reader) Read(d index.DatasetSpec) ([]complex128, error) {
	c, err := r.open(d.File)
	if err != nil {
		return nil, err
	}
	data, err := c.Data(d.Datasetname)
	if err != nil {
		return nil, err
	}
	out, err := decode(data, d.Location)
	if err != nil {
		return nil, fmt.Errorf("%s:%s: %w", d.File.Filename, d.Datasetname, err)
	}
	return out, nil
}

// Close releases all opened files.
func (r *Reader) Close() error {
	var errs []error
	for name, c := range r.opened {
		errs = append(errs, c.Close())
		delete(r.opened, name)
	}
	return errors.Join(errs...)
}

func decode(data any, loc index.DatasetChunkSpec) ([]complex128, error) {
	list, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: data is not a list", ErrMalformedPayload)
	}
	twoD := len(list) > 0
	if twoD {
		_, twoD = list[0].([]any)
	}

	if !twoD {
		if loc.Row >= 0 {
			return nil, fmt.Errorf("%w: row %d of one-dimensional data", ErrMalformedPayload, loc.Row)
		}
		return pairs(list, nil)
	}
	if loc.Row >= 0 {
		if int(loc.Row) >= len(list) {
			return nil, fmt.Errorf("%w: row %d of %d", ErrMalformedPayload, loc.Row, len(list))
		}
		row, ok := list[loc.Row].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is not a list", ErrMalformedPayload, loc.Row)
		}
		return pairs(row, nil)
	}
	var out []complex128
	for i, e := range list {
		row, ok := e.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is not a list", ErrMalformedPayload, i)
		}
		var err error
		if out, err = pairs(row, out); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}

// pairs appends the complex numbers formed by consecutive (re, im) entries.
func pairs(reals []any, dst []complex128) ([]complex128, error) {
	if len(reals)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of reals (%d)", ErrMalformedPayload, len(reals))
	}
	for i := 0; i < len(reals); i += 2 {
		re, ok1 := real64(reals[i])
		im, ok2 := real64(reals[i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: non-numeric entry at %d", ErrMalformedPayload, i)
		}
		dst = append(dst, complex(re, im))
	}
	return dst, nil
}

func real64(x any) (float64, bool) {
	switch t := x.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	}
	return 0, false
}
