package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-git/go-billy/v5"
	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest"
)

// FileState compares a catalogued file with the file on disk.
type FileState uint8

const (
	Current  FileState = iota // on-disk file has the catalogued mtime
	Outdated                  // on-disk file was modified since indexing
	Missing                   // on-disk file no longer exists
)

// Marker returns the short status tag shown in file listings.
func (s FileState) Marker() string {
	switch s {
	case Current:
		return "[ok]"
	case Outdated:
		return "[upd]"
	default:
		return "[abs]"
	}
}

// Check stats f on fsys.
func Check(fsys billy.Basic, f index.File) (FileState, error) {
	info, err := fsys.Stat(f.Filename)
	if errors.Is(err, fs.ErrNotExist) {
		return Missing, nil
	}
	if err != nil {
		return Missing, fmt.Errorf("%w: %v", ingest.ErrSourceUnavailable, err)
	}
	if info.ModTime().Unix() != f.Mtime {
		return Outdated, nil
	}
	return Current, nil
}

// UpdateFile brings the catalog entry of filename in line with the file on
// disk: an outdated file is re-indexed from its container, a missing one is
// removed, a current one is left alone. It returns the state found before the
// update.
func (c *Catalog) UpdateFile(ctx context.Context, fsys billy.Filesystem, ix *ingest.Indexer, filename string) (FileState, error) {
	f, err := c.File(ctx, filename)
	if err != nil {
		return Missing, err
	}
	state, err := Check(fsys, f)
	if err != nil {
		return state, err
	}
	switch state {
	case Missing:
		c.log.Info().Str("file", filename).Msg("file vanished, removing it from the catalog")
		return state, c.RemoveFile(ctx, filename)
	case Outdated:
		src, err := ingest.OpenContainer(fsys, filename)
		if err != nil {
			return state, err
		}
		defer func() { _ = src.Close() }()
		idx, err := ix.Index(ctx, src)
		if err != nil {
			return state, err
		}
		if len(idx) == 0 {
			// nothing to insert would leave the old version behind
			return state, c.RemoveFile(ctx, filename)
		}
		return state, c.InsertIndex(ctx, idx)
	default:
		return state, nil
	}
}
