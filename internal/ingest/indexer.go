package ingest

import (
	"context"
	"fmt"
	"slices"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/logger"
	"github.com/j4cko/hdf5-metadataindex/internal/metrics"
	"github.com/rs/zerolog"
)

// Indexer turns a hierarchical source into a flat Index.
type Indexer struct {
	log     zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Indexer)

func WithLogger(l zerolog.Logger) Option {
	return func(ix *Indexer) { ix.log = logger.Component(l, "ingest") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Indexer) { ix.metrics = m }
}

func NewIndexer(opts ...Option) *Indexer {
	ix := &Indexer{log: zerolog.Nop()}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// walkState collects the results of one traversal.
type walkState struct {
	file   index.File
	idx    index.Index
	tables index.Tables
}

// Index walks src from its root. Every plain leaf yields one entry carrying
// the attributes of all its ancestors and its own; tables are expanded into
// one entry per row. Any error aborts the run and no partial Index is
// returned.
func (ix *Indexer) Index(ctx context.Context, src Source) (index.Index, error) {
	root, err := src.Root()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src.File().Filename, err)
	}
	defer func() { _ = root.Close() }()

	st := &walkState{file: src.File(), tables: index.Tables{}}
	if err := ix.walk(ctx, root, nil, nil, st); err != nil {
		return nil, fmt.Errorf("index %s: %w", st.file.Filename, err)
	}

	idx := index.Expand(st.idx, st.tables)
	ix.log.Debug().
		Str("file", st.file.Filename).
		Int("leaves", len(st.idx)).
		Int("tables", len(st.tables)).
		Int("datasets", len(idx)).
		Msg("indexed file")
	ix.metrics.AddIndexed(len(idx))
	return idx, nil
}

// walk visits n. path and inherited belong to the caller and are never
// modified; children get their own copies.
func (ix *Indexer) walk(ctx context.Context, n Node, path []string, inherited []index.Attribute, st *walkState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// attributes of the root group are not indexed
	var own []index.Attribute
	if len(path) > 0 {
		raws, err := n.Attributes()
		if err != nil {
			return fmt.Errorf("%w: attributes of %s: %v", ErrSourceUnavailable, index.FullPath(path), err)
		}
		if own, err = convertAll(raws); err != nil {
			return fmt.Errorf("%s: %w", index.FullPath(path), err)
		}
	}

	switch n.Kind() {
	case Container:
		attrs := slices.Concat(inherited, own)
		names, err := n.Children()
		if err != nil {
			return fmt.Errorf("%w: children of %s: %v", ErrSourceUnavailable, index.FullPath(path), err)
		}
		for _, name := range names {
			if err := ix.walkChild(ctx, n, name, path, attrs, st); err != nil {
				return err
			}
		}
	case Leaf:
		st.idx = append(st.idx, index.DatasetSpec{
			Attributes:  slices.Concat(inherited, own),
			Datasetname: index.FullPath(path),
			File:        st.file,
			Location:    index.WholeDataset,
		})
	case Table:
		return ix.recordTable(n, path, inherited, st)
	default:
		return fmt.Errorf("%w: %s has unknown kind %s", ErrMalformedContainer, index.FullPath(path), n.Kind())
	}
	return nil
}

func (ix *Indexer) walkChild(ctx context.Context, parent Node, name string, path []string, attrs []index.Attribute, st *walkState) error {
	child, err := parent.Child(name)
	if err != nil {
		return fmt.Errorf("%w: open %s/%s: %v", ErrSourceUnavailable, index.FullPath(path), name, err)
	}
	defer func() { _ = child.Close() }()
	return ix.walk(ctx, child, append(path[:len(path):len(path)], name), attrs, st)
}

// recordTable stores the rows of a table under the path of its group. Rows
// carry the attributes of the table's ancestors and their own fields only.
func (ix *Indexer) recordTable(n Node, path []string, inherited []index.Attribute, st *walkState) error {
	group := index.ParentPath(index.FullPath(path))
	if _, dup := st.tables[group]; dup {
		ix.log.Warn().Str("file", st.file.Filename).Str("table", index.FullPath(path)).
			Msg("group already holds a table, ignoring")
		return nil
	}
	rawRows, err := n.Rows()
	if err != nil {
		return fmt.Errorf("%w: rows of %s: %v", ErrSourceUnavailable, index.FullPath(path), err)
	}
	rows := make([]index.Row, 0, len(rawRows))
	for i, raw := range rawRows {
		fields, err := convertAll(raw)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", index.FullPath(path), i, err)
		}
		rows = append(rows, index.Row{Index: int32(i), Fields: fields})
	}
	st.tables[group] = index.Table{File: st.file, Attributes: slices.Clone(inherited), Rows: rows}
	return nil
}
