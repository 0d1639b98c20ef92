package payload

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest/ingesttest"
	"github.com/j4cko/hdf5-metadataindex/internal/logger"
	"github.com/j4cko/hdf5-metadataindex/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Unix(1_700_000_000, 0)

// writeFile writes doc as a container named name and fixes its mtime.
func writeFile(t *testing.T, dir string, fsys billy.Filesystem, name string, doc map[string]any) index.File {
	t.Helper()
	require.NoError(t, ingesttest.WriteContainer(fsys, name, doc))
	require.NoError(t, os.Chtimes(filepath.Join(dir, name), stamp, stamp))
	return index.File{Filename: name, Mtime: stamp.Unix()}
}

func leafDoc(data any) map[string]any {
	return map[string]any{"children": map[string]any{
		"g": map[string]any{"children": map[string]any{
			"d": map[string]any{"data": data},
		}},
	}}
}

func TestReader_Shapes(t *testing.T) {
	dir := t.TempDir()
	fsys := osfs.New(dir)
	oneD := writeFile(t, dir, fsys, "one.json", leafDoc([]any{1.0, 2.0, 3.0, -4.0}))
	twoD := writeFile(t, dir, fsys, "two.json.zst", leafDoc([]any{[]any{1.0, 0.0}, []any{2.0, 0.5}}))
	odd := writeFile(t, dir, fsys, "odd.json", leafDoc([]any{1.0, 2.0, 3.0}))

	r := NewReader(fsys)
	defer func() { _ = r.Close() }()

	spec := func(f index.File, row int32) index.DatasetSpec {
		return index.DatasetSpec{Datasetname: "/g/d", File: f, Location: index.DatasetChunkSpec{Row: row}}
	}

	got, err := r.Read(spec(oneD, -1))
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(1, 2), complex(3, -4)}, got)

	got, err = r.Read(spec(twoD, -1))
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(1, 0), complex(2, 0.5)}, got)

	got, err = r.Read(spec(twoD, 1))
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(2, 0.5)}, got)

	_, err = r.Read(spec(twoD, 2))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	_, err = r.Read(spec(oneD, 0))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	_, err = r.Read(spec(odd, -1))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = r.Read(index.DatasetSpec{Datasetname: "/g/missing", File: oneD, Location: index.WholeDataset})
	assert.ErrorIs(t, err, ingest.ErrSourceUnavailable)
}

func TestReader_Staleness(t *testing.T) {
	dir := t.TempDir()
	fsys := osfs.New(dir)
	f := writeFile(t, dir, fsys, "run.json", leafDoc([]any{1.0, 1.0}))
	d := index.DatasetSpec{Datasetname: "/g/d", Location: index.WholeDataset}

	d.File = index.File{Filename: f.Filename, Mtime: f.Mtime + 10}
	_, err := NewReader(fsys).Read(d)
	assert.ErrorIs(t, err, ingest.ErrSourceUnavailable)

	var logs bytes.Buffer
	r := NewReader(fsys, WithLogger(logger.New(logger.Config{Level: "warn", Output: &logs})))
	d.File = index.File{Filename: f.Filename, Mtime: f.Mtime - 10}
	got, err := r.Read(d)
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(1, 1)}, got)
	assert.Contains(t, logs.String(), "file changed since indexing")
	assert.Contains(t, logs.String(), `"component":"payload"`)

	_, err = NewReader(fsys).Read(index.DatasetSpec{File: index.File{Filename: "gone.json"}})
	assert.ErrorIs(t, err, ingest.ErrSourceUnavailable)
}

// fakeReader serves fixed payloads by dataset name and records every read.
type fakeReader struct {
	data  map[string][]complex128
	reads []string
}

func (f *fakeReader) Read(d index.DatasetSpec) ([]complex128, error) {
	f.reads = append(f.reads, d.File.Filename+":"+d.Datasetname)
	v, ok := f.data[d.Datasetname]
	if !ok {
		return nil, errors.New("no data")
	}
	return v, nil
}

func entry(file, name string) index.DatasetSpec {
	return index.DatasetSpec{Datasetname: name, File: index.File{Filename: file}, Location: index.WholeDataset}
}

func TestAggregate(t *testing.T) {
	fr := &fakeReader{data: map[string][]complex128{
		"/a": {complex(1, 1), complex(2, 0)},
		"/b": {complex(3, -1), complex(0, 2)},
		"/c": {complex(5, 0)},
	}}

	got, err := Aggregate(nil, query.Average, fr)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Aggregate(index.Index{entry("x", "/b"), entry("x", "/a")}, query.First, fr)
	require.NoError(t, err)
	assert.Equal(t, fr.data["/b"], got)

	fr.reads = nil
	idx := index.Index{entry("x", "/a"), entry("y", "/c"), entry("x", "/b")}
	got, err = Aggregate(idx, query.Concatenate, fr)
	require.NoError(t, err)
	assert.Equal(t, []string{"x:/a", "x:/b", "y:/c"}, fr.reads, "entries are read file by file")
	assert.Equal(t, []complex128{complex(1, 1), complex(2, 0), complex(3, -1), complex(0, 2), complex(5, 0)}, got)

	all, err := Aggregate(idx, query.All, fr)
	require.NoError(t, err)
	assert.Equal(t, got, all)

	fr.reads = nil
	_, err = Aggregate(index.Index{entry("y", "/c"), entry("x", "/a")}, query.Concatenate, fr)
	require.NoError(t, err)
	assert.Equal(t, []string{"x:/a", "y:/c"}, fr.reads, "files are read in name order")

	got, err = Aggregate(index.Index{entry("x", "/a"), entry("x", "/b")}, query.Average, fr)
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(2, 0), complex(1, 1)}, got)
	assert.Equal(t, []complex128{complex(1, 1), complex(2, 0)}, fr.data["/a"], "inputs are not modified")

	_, err = Aggregate(index.Index{entry("x", "/a"), entry("x", "/c")}, query.Average, fr)
	assert.ErrorIs(t, err, ErrAggregationLengthMismatch)
}

func TestAggregate_RQCDRows(t *testing.T) {
	dir := t.TempDir()
	fsys := osfs.New(dir)
	f := writeFile(t, dir, fsys, "rqcd.json", ingesttest.Document(ingesttest.RQCD(), ingesttest.RQCDPayload))

	src, err := ingest.OpenContainer(fsys, f.Filename)
	require.NoError(t, err)
	idx, err := ingest.NewIndexer().Index(context.Background(), src)
	require.NoError(t, err)

	r := NewReader(fsys)
	defer func() { _ = r.Close() }()

	got, err := Aggregate(idx[:2], query.Average, r)
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(0.5, -0.5), complex(0.5, 0)}, got)

	got, err = Aggregate(idx[10:12], query.Concatenate, r)
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(10, -10), complex(0.5, 0), complex(11, -11), complex(0.5, 0)}, got)
}
