// Package catalog stores indexed datasets in a SQLite database and answers
// requests against it.
//
// Attribute names, attribute values, files and dataset locations are each
// stored once; a junction table links locations to the values of their
// attributes. Queries run in two phases: a relational prefilter selects
// candidate locations, and the exact request filter runs over the
// materialised candidates.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/j4cko/hdf5-metadataindex/internal/logger"
	"github.com/j4cko/hdf5-metadataindex/internal/metrics"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrStorage matches every *StorageError.
var ErrStorage = errors.New("catalog storage error")

// StorageError reports a failed catalog statement.
type StorageError struct {
	Op   string // catalog operation, e.g. "insert"
	Stmt string // failing SQL statement, if any
	Err  error
}

func (e *StorageError) Error() string {
	if e.Stmt == "" {
		return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v [%s]", e.Op, e.Err, compact(e.Stmt))
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func compact(stmt string) string { return strings.Join(strings.Fields(stmt), " ") }

func storageErr(op, stmt string, err error) error {
	return &StorageError{Op: op, Stmt: stmt, Err: err}
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	fileid INTEGER PRIMARY KEY,
	fname TEXT UNIQUE NOT NULL,
	mtime INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS attributes (
	attrid INTEGER PRIMARY KEY,
	attrname TEXT UNIQUE NOT NULL,
	type TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS filelocations (
	locid INTEGER PRIMARY KEY,
	locname TEXT NOT NULL,
	row INTEGER NOT NULL,
	fileid INTEGER NOT NULL REFERENCES files(fileid),
	UNIQUE (locname, row, fileid)
);
CREATE INDEX IF NOT EXISTS idx_filelocations_file ON filelocations(fileid);
CREATE TABLE IF NOT EXISTS attrvalues (
	valueid INTEGER PRIMARY KEY,
	attrid INTEGER NOT NULL REFERENCES attributes(attrid),
	value,
	UNIQUE (attrid, value)
);
CREATE TABLE IF NOT EXISTS locattrjunction (
	attrvalid INTEGER NOT NULL REFERENCES attrvalues(valueid),
	locid INTEGER NOT NULL REFERENCES filelocations(locid),
	PRIMARY KEY (attrvalid, locid)
);
CREATE INDEX IF NOT EXISTS idx_locattrjunction_loc ON locattrjunction(locid);
`

// Catalog is an open catalog database. It is not safe for concurrent writers.
type Catalog struct {
	db          *sql.DB
	synchronous string
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Catalog)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Catalog) { c.log = logger.Component(l, "catalog") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// WithSynchronous sets the SQLite synchronous pragma (OFF, NORMAL, FULL or
// EXTRA).
func WithSynchronous(mode string) Option {
	return func(c *Catalog) { c.synchronous = strings.ToUpper(mode) }
}

// Open opens or creates the catalog at path.
func Open(path string, opts ...Option) (*Catalog, error) {
	c := &Catalog{synchronous: "NORMAL", log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	switch c.synchronous {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return nil, fmt.Errorf("open catalog %s: unsupported synchronous mode %q", path, c.synchronous)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=synchronous(%s)&_pragma=busy_timeout(5000)",
		path, c.synchronous)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer, and pragmas stay attached to the only connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, storageErr("open", "create schema", err)
	}
	c.db = db
	c.log.Debug().Str("path", path).Msg("catalog opened")
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// rollback aborts tx unless it was committed.
func rollback(tx *sql.Tx) {
	_ = tx.Rollback() // no-op after Commit
}

func (c *Catalog) record(op string, err error) error {
	c.metrics.CatalogOp(op, err)
	return err
}

// queryIDs runs stmt and collects the single integer column it returns.
func queryIDs(ctx context.Context, db interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, op, stmt string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, storageErr(op, stmt, err)
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr(op, stmt, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, stmt, err)
	}
	return ids, nil
}
