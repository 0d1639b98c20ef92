package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/query"
	"github.com/j4cko/hdf5-metadataindex/internal/value"
)

const (
	stmtSelectFile     = `SELECT fileid, mtime FROM files WHERE fname = ?`
	stmtInsertFile     = `INSERT INTO files (fname, mtime) VALUES (?, ?)`
	stmtSelectAttr     = `SELECT attrid, type FROM attributes WHERE attrname = ?`
	stmtInsertAttr     = `INSERT INTO attributes (attrname, type) VALUES (?, ?)`
	stmtInsertValue    = `INSERT OR IGNORE INTO attrvalues (attrid, value) VALUES (?, ?)`
	stmtSelectValue    = `SELECT valueid FROM attrvalues WHERE attrid = ? AND value = ?`
	stmtInsertLoc      = `INSERT OR IGNORE INTO filelocations (locname, row, fileid) VALUES (?, ?, ?)`
	stmtSelectLoc      = `SELECT locid FROM filelocations WHERE locname = ? AND row = ? AND fileid = ?`
	stmtInsertJunction = `INSERT OR IGNORE INTO locattrjunction (attrvalid, locid) VALUES (?, ?)`
)

var removeStmts = []string{
	`DELETE FROM locattrjunction WHERE locid IN (SELECT locid FROM filelocations WHERE fileid = ?)`,
	`DELETE FROM filelocations WHERE fileid = ?`,
	`DELETE FROM files WHERE fileid = ?`,
}

const stmtRemoveDangling = `DELETE FROM attrvalues WHERE valueid NOT IN (SELECT attrvalid FROM locattrjunction)`

type attrDef struct {
	id  int64
	typ value.Type
}

type valueKey struct {
	attrid int64
	text   string
}

type locKey struct {
	name   string
	row    int32
	fileid int64
}

// inserter holds the prepared statements and id caches of one InsertIndex
// transaction.
type inserter struct {
	ctx   context.Context
	tx    *sql.Tx
	stmts map[string]*sql.Stmt

	files  map[index.File]int64
	attrs  map[string]attrDef
	values map[valueKey]int64
	locs   map[locKey]int64

	replaced []string
}

func (in *inserter) prepare(stmts ...string) error {
	for _, s := range stmts {
		st, err := in.tx.PrepareContext(in.ctx, s)
		if err != nil {
			return storageErr("insert", s, err)
		}
		in.stmts[s] = st
	}
	return nil
}

func (in *inserter) close() {
	for _, st := range in.stmts {
		_ = st.Close()
	}
}

// insertOrSelect runs an INSERT OR IGNORE and returns the id of the new row,
// or looks the existing row up with sel.
func (in *inserter) insertOrSelect(ins, sel string, insArgs, selArgs []any) (int64, error) {
	res, err := in.stmts[ins].ExecContext(in.ctx, insArgs...)
	if err != nil {
		return 0, storageErr("insert", ins, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, storageErr("insert", ins, err)
		}
		return id, nil
	}
	var id int64
	if err := in.stmts[sel].QueryRowContext(in.ctx, selArgs...).Scan(&id); err != nil {
		return 0, storageErr("insert", sel, err)
	}
	return id, nil
}

func (in *inserter) fileID(f index.File) (int64, error) {
	if id, ok := in.files[f]; ok {
		return id, nil
	}
	var (
		id    int64
		mtime int64
	)
	err := in.stmts[stmtSelectFile].QueryRowContext(in.ctx, f.Filename).Scan(&id, &mtime)
	switch {
	case err == nil && mtime == f.Mtime:
		in.files[f] = id
		return id, nil
	case err == nil:
		// another version of the file is catalogued: replace it
		if err := removeFileTx(in.ctx, in.tx, id); err != nil {
			return 0, err
		}
		in.replaced = append(in.replaced, f.Filename)
		clear(in.values)
		clear(in.locs)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, storageErr("insert", stmtSelectFile, err)
	}

	res, err := in.stmts[stmtInsertFile].ExecContext(in.ctx, f.Filename, f.Mtime)
	if err != nil {
		return 0, storageErr("insert", stmtInsertFile, err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, storageErr("insert", stmtInsertFile, err)
	}
	in.files[f] = id
	return id, nil
}

func (in *inserter) attrID(a index.Attribute) (int64, error) {
	def, ok := in.attrs[a.Name]
	if !ok {
		var typ string
		err := in.stmts[stmtSelectAttr].QueryRowContext(in.ctx, a.Name).Scan(&def.id, &typ)
		switch {
		case err == nil:
			if def.typ, err = value.TypeFromString(typ); err != nil {
				return 0, storageErr("insert", stmtSelectAttr, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			res, err := in.stmts[stmtInsertAttr].ExecContext(in.ctx, a.Name, a.Type().String())
			if err != nil {
				return 0, storageErr("insert", stmtInsertAttr, err)
			}
			if def.id, err = res.LastInsertId(); err != nil {
				return 0, storageErr("insert", stmtInsertAttr, err)
			}
			def.typ = a.Type()
		default:
			return 0, storageErr("insert", stmtSelectAttr, err)
		}
		in.attrs[a.Name] = def
	}
	if def.typ != a.Type() {
		return 0, storageErr("insert", "", fmt.Errorf("%w: attribute %q is registered as %s, got %s",
			value.ErrTypeMismatch, a.Name, def.typ, a.Type()))
	}
	return def.id, nil
}

func (in *inserter) valueID(attrid int64, v value.Value) (int64, error) {
	key := valueKey{attrid: attrid, text: v.String()}
	if id, ok := in.values[key]; ok {
		return id, nil
	}
	sv := query.SQLValue(v)
	id, err := in.insertOrSelect(stmtInsertValue, stmtSelectValue,
		[]any{attrid, sv}, []any{attrid, sv})
	if err != nil {
		return 0, err
	}
	in.values[key] = id
	return id, nil
}

func (in *inserter) locID(d index.DatasetSpec, fileid int64) (int64, error) {
	key := locKey{name: d.Datasetname, row: d.Location.Row, fileid: fileid}
	if id, ok := in.locs[key]; ok {
		return id, nil
	}
	args := []any{d.Datasetname, d.Location.Row, fileid}
	id, err := in.insertOrSelect(stmtInsertLoc, stmtSelectLoc, args, args)
	if err != nil {
		return 0, err
	}
	in.locs[key] = id
	return id, nil
}

func (in *inserter) insert(d index.DatasetSpec) error {
	fileid, err := in.fileID(d.File)
	if err != nil {
		return err
	}
	locid, err := in.locID(d, fileid)
	if err != nil {
		return err
	}
	for _, a := range d.Attributes {
		attrid, err := in.attrID(a)
		if err != nil {
			return err
		}
		valid, err := in.valueID(attrid, a.Value)
		if err != nil {
			return err
		}
		if _, err := in.stmts[stmtInsertJunction].ExecContext(in.ctx, valid, locid); err != nil {
			return storageErr("insert", stmtInsertJunction, err)
		}
	}
	return nil
}

// InsertIndex stores idx in one transaction. Entries already present are
// left untouched, so inserting the same Index twice changes nothing. A file
// catalogued with another modification time is replaced by the new version.
// On error nothing is stored.
func (c *Catalog) InsertIndex(ctx context.Context, idx index.Index) error {
	return c.record("insert", c.insertIndex(ctx, idx))
}

func (c *Catalog) insertIndex(ctx context.Context, idx index.Index) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("insert", "BEGIN", err)
	}
	defer rollback(tx)

	in := &inserter{
		ctx:    ctx,
		tx:     tx,
		stmts:  map[string]*sql.Stmt{},
		files:  map[index.File]int64{},
		attrs:  map[string]attrDef{},
		values: map[valueKey]int64{},
		locs:   map[locKey]int64{},
	}
	defer in.close()
	if err := in.prepare(stmtSelectFile, stmtInsertFile, stmtSelectAttr, stmtInsertAttr,
		stmtInsertValue, stmtSelectValue, stmtInsertLoc, stmtSelectLoc, stmtInsertJunction); err != nil {
		return err
	}

	for _, d := range idx {
		if err := in.insert(d); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("insert", "COMMIT", err)
	}

	for _, name := range in.replaced {
		c.log.Info().Str("file", name).Msg("replaced older version of file")
	}
	c.log.Debug().Int("datasets", len(idx)).Int("files", len(in.files)).Msg("index inserted")
	return nil
}

func removeFileTx(ctx context.Context, tx *sql.Tx, fileid int64) error {
	for _, s := range removeStmts {
		if _, err := tx.ExecContext(ctx, s, fileid); err != nil {
			return storageErr("remove", s, err)
		}
	}
	if _, err := tx.ExecContext(ctx, stmtRemoveDangling); err != nil {
		return storageErr("remove", stmtRemoveDangling, err)
	}
	return nil
}

// RemoveFile deletes every location of filename together with attribute
// values no other location refers to. Attribute definitions are kept.
func (c *Catalog) RemoveFile(ctx context.Context, filename string) error {
	return c.record("remove", c.removeFile(ctx, filename))
}

func (c *Catalog) removeFile(ctx context.Context, filename string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("remove", "BEGIN", err)
	}
	defer rollback(tx)

	var id, mtime int64
	err = tx.QueryRowContext(ctx, stmtSelectFile, filename).Scan(&id, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: file %q is not in the catalog", value.ErrKeyNotFound, filename)
	}
	if err != nil {
		return storageErr("remove", stmtSelectFile, err)
	}
	if err := removeFileTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("remove", "COMMIT", err)
	}
	c.metrics.FileRemoved()
	c.log.Debug().Str("file", filename).Msg("file removed")
	return nil
}
