package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest/ingesttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mdindex runs one command line and returns its stdout.
func mdindex(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setup(t *testing.T) (dir, db, file string) {
	t.Helper()
	dir = t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	file = filepath.Join(dir, "rqcd.json")
	doc := ingesttest.Document(ingesttest.RQCD(), ingesttest.RQCDPayload)
	require.NoError(t, ingesttest.WriteContainer(osfs.New(dir), "rqcd.json", doc))
	return dir, filepath.Join(dir, "catalog.db"), file
}

func TestCLI_IndexAndQuery(t *testing.T) {
	_, db, file := setup(t)

	_, err := mdindex(t, "-c", db, "--log-level", "error", "add", file)
	require.NoError(t, err)

	out, err := mdindex(t, "-c", db, "files")
	require.NoError(t, err)
	assert.Equal(t, " [ok] "+file+"\n", out)

	out, err = mdindex(t, "-c", db, "attributes")
	require.NoError(t, err)
	assert.Contains(t, out, "hpe\tnumeric\n")
	assert.Contains(t, out, "mom\tarray\n")
	assert.Contains(t, out, "smeared\tbool\n")

	out, err = mdindex(t, "-c", db, "query", `{"attributes": {"interpolator": 7}}`)
	require.NoError(t, err)
	assert.Equal(t, 54, strings.Count(out, "has the following attributes"))
	assert.True(t, strings.HasPrefix(out, `dataset "`+ingesttest.RQCDData+`" (from file "`+file+`" and row 0)`))

	out, err = mdindex(t, "-c", db, "get",
		`{"attributes": {"interpolator": 7, "hpe": 5}, "searchmode": "concatenate"}`)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 54)
	assert.Equal(t, "27 -27", lines[0])
	assert.Equal(t, "0.5 0", lines[1])
	assert.Equal(t, "53 -53", lines[52])

	_, err = mdindex(t, "-c", db, "query", `{"colour": "red"}`)
	assert.Error(t, err)
}

func TestCLI_Maintenance(t *testing.T) {
	_, db, file := setup(t)

	_, err := mdindex(t, "-c", db, "files")
	assert.ErrorContains(t, err, "does not exist")

	_, err = mdindex(t, "-c", db, "index", file)
	require.NoError(t, err)

	_, err = mdindex(t, "-c", db, "update", file)
	assert.ErrorIs(t, err, ErrUpToDate)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(file, later, later))
	out, err := mdindex(t, "-c", db, "files")
	require.NoError(t, err)
	assert.Equal(t, "[upd] "+file+"\n", out)

	out, err = mdindex(t, "-c", db, "updateAll")
	require.NoError(t, err)
	assert.Equal(t, "updated \""+file+"\"\n", out)

	out, err = mdindex(t, "-c", db, "updateAll")
	require.NoError(t, err)
	assert.Contains(t, out, "is up to date")

	require.NoError(t, os.Remove(file))
	out, err = mdindex(t, "-c", db, "files")
	require.NoError(t, err)
	assert.Equal(t, "[abs] "+file+"\n", out)

	_, err = mdindex(t, "-c", db, "update", file)
	require.NoError(t, err)
	out, err = mdindex(t, "-c", db, "files")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCLI_Remove(t *testing.T) {
	_, db, file := setup(t)
	_, err := mdindex(t, "-c", db, "index", file)
	require.NoError(t, err)

	_, err = mdindex(t, "-c", db, "remove", file)
	require.NoError(t, err)
	out, err := mdindex(t, "-c", db, "query", `{}`)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = mdindex(t, "-c", db, "rm", file)
	assert.Error(t, err)
}

func TestCLI_ConfigAndMetrics(t *testing.T) {
	dir, db, file := setup(t)
	prom := filepath.Join(dir, "mdindex.prom")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mdindex.yaml"),
		[]byte("catalog: "+db+"\nmetrics:\n  textfile: "+prom+"\n"), 0o644))

	_, err := mdindex(t, "index", file)
	require.NoError(t, err)
	assert.FileExists(t, db)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mdindex_indexed_datasets_total 2025")

	t.Setenv("MDINDEX_SQLITE_SYNCHRONOUS", "sometimes")
	_, err = mdindex(t, "files")
	assert.ErrorContains(t, err, "sqlite.synchronous")
}

func TestCLI_Read(t *testing.T) {
	_, _, file := setup(t)

	out, err := mdindex(t, "--log-level", "error", "read",
		`{"datasetname": "`+ingesttest.RQCDData+`", "file": {"filename": "rqcd.json"}, "location": {"row": 3}}`)
	require.NoError(t, err)
	assert.Equal(t, "3 -3\n0.5 0\n", out)

	_, err = mdindex(t, "read", `{"datasetname": "/nope", "file": {"filename": "`+file+`"}}`)
	assert.Error(t, err)
	_, err = mdindex(t, "read", `{"dataset": "/x"}`)
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := mdindex(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "mdindex "))
}
