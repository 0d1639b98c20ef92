package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/query"
	"github.com/j4cko/hdf5-metadataindex/internal/value"
)

// materializeChunk bounds the number of ids bound to one statement.
const materializeChunk = 500

const stmtAllLocations = `SELECT locid FROM filelocations`

// prefilterStmt selects the locations having an attribute that satisfies the
// key and value fragments of one attribute request.
func prefilterStmt(ar query.AttributeRequest) (string, []any) {
	key := ar.Condition.KeyFragment("a.attrname", ar.Name)
	val := ar.Condition.ValueFragment("v.value")
	stmt := `SELECT DISTINCT j.locid FROM locattrjunction j
		JOIN attrvalues v ON v.valueid = j.attrvalid
		JOIN attributes a ON a.attrid = v.attrid
		WHERE ` + key.SQL + ` AND ` + val.SQL
	return stmt, append(append([]any(nil), key.Args...), val.Args...)
}

func bitmapOf(op, stmt string, ids []int64) (*roaring.Bitmap, error) {
	bm := roaring.New()
	for _, id := range ids {
		if id < 0 || id > math.MaxUint32 {
			return nil, storageErr(op, stmt, fmt.Errorf("location id %d out of range", id))
		}
		bm.Add(uint32(id))
	}
	return bm, nil
}

// CandidateIDs runs the relational prefilter of r: the intersection, over all
// attribute requests, of the locations with a matching attribute. Without
// attribute requests every location is a candidate. The result contains at
// least every location that r matches.
func (c *Catalog) CandidateIDs(ctx context.Context, r query.Request) (*roaring.Bitmap, error) {
	if len(r.AttrRequests) == 0 {
		ids, err := queryIDs(ctx, c.db, "prefilter", stmtAllLocations)
		if err != nil {
			return nil, err
		}
		return bitmapOf("prefilter", stmtAllLocations, ids)
	}

	var result *roaring.Bitmap
	for _, ar := range r.AttrRequests {
		stmt, args := prefilterStmt(ar)
		ids, err := queryIDs(ctx, c.db, "prefilter", stmt, args...)
		if err != nil {
			return nil, err
		}
		bm, err := bitmapOf("prefilter", stmt, ids)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = bm
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			break
		}
	}
	return result, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Materialize loads the dataset entries with the given location ids, in id
// order.
func (c *Catalog) Materialize(ctx context.Context, ids *roaring.Bitmap) (index.Index, error) {
	all := ids.ToArray()
	out := make(index.Index, 0, len(all))
	for start := 0; start < len(all); start += materializeChunk {
		chunk := all[start:min(start+materializeChunk, len(all))]
		part, err := c.materialize(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

func (c *Catalog) materialize(ctx context.Context, ids []uint32) (index.Index, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	in := placeholders(len(ids))

	locStmt := `SELECT l.locid, l.locname, l.row, f.fname, f.mtime FROM filelocations l
		JOIN files f ON f.fileid = l.fileid
		WHERE l.locid IN (` + in + `) ORDER BY l.locid`
	rows, err := c.db.QueryContext(ctx, locStmt, args...)
	if err != nil {
		return nil, storageErr("materialize", locStmt, err)
	}
	out := make(index.Index, 0, len(ids))
	pos := make(map[int64]int, len(ids))
	for rows.Next() {
		var (
			locid int64
			d     index.DatasetSpec
		)
		if err := rows.Scan(&locid, &d.Datasetname, &d.Location.Row, &d.File.Filename, &d.File.Mtime); err != nil {
			_ = rows.Close()
			return nil, storageErr("materialize", locStmt, err)
		}
		pos[locid] = len(out)
		out = append(out, d)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, storageErr("materialize", locStmt, err)
	}

	attrStmt := `SELECT j.locid, a.attrname, a.type, v.value FROM locattrjunction j
		JOIN attrvalues v ON v.valueid = j.attrvalid
		JOIN attributes a ON a.attrid = v.attrid
		WHERE j.locid IN (` + in + `) ORDER BY j.locid, j.rowid`
	rows, err = c.db.QueryContext(ctx, attrStmt, args...)
	if err != nil {
		return nil, storageErr("materialize", attrStmt, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			locid     int64
			name, typ string
			raw       any
		)
		if err := rows.Scan(&locid, &name, &typ, &raw); err != nil {
			return nil, storageErr("materialize", attrStmt, err)
		}
		v, err := decodeValue(typ, raw)
		if err != nil {
			return nil, storageErr("materialize", attrStmt, fmt.Errorf("attribute %q: %w", name, err))
		}
		i, ok := pos[locid]
		if !ok {
			continue
		}
		out[i].Attributes = append(out[i].Attributes, index.Attribute{Name: name, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("materialize", attrStmt, err)
	}
	return out, nil
}

// decodeValue reverses query.SQLValue for a value of the named type.
func decodeValue(typ string, raw any) (value.Value, error) {
	t, err := value.TypeFromString(typ)
	if err != nil {
		return value.Value{}, err
	}
	switch x := raw.(type) {
	case float64:
		if t == value.Numeric {
			return value.Num(x), nil
		}
	case int64:
		if t == value.Numeric {
			return value.Num(float64(x)), nil
		}
	case string:
		return value.Parse(x, t)
	case []byte:
		return value.Parse(string(x), t)
	}
	return value.Value{}, fmt.Errorf("%w: stored %T for a %s value", value.ErrTypeMismatch, raw, t)
}

// Query answers r: the prefilter selects candidates, which are loaded and
// filtered exactly. Query never writes to the catalog.
func (c *Catalog) Query(ctx context.Context, r query.Request) (index.Index, error) {
	ids, err := c.CandidateIDs(ctx, r)
	if err != nil {
		return nil, err
	}
	candidates, err := c.Materialize(ctx, ids)
	if err != nil {
		return nil, err
	}
	matches, err := query.Filter(candidates, r)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveQuery(len(candidates), len(matches))
	c.log.Debug().
		Int("requests", len(r.AttrRequests)).
		Int("candidates", len(candidates)).
		Int("matches", len(matches)).
		Msg("query")
	return matches, nil
}

const stmtFiles = `SELECT fname, mtime FROM files ORDER BY fname`

// Files lists all catalogued files by name.
func (c *Catalog) Files(ctx context.Context) ([]index.File, error) {
	rows, err := c.db.QueryContext(ctx, stmtFiles)
	if err != nil {
		return nil, storageErr("files", stmtFiles, err)
	}
	defer func() { _ = rows.Close() }()
	var files []index.File
	for rows.Next() {
		var f index.File
		if err := rows.Scan(&f.Filename, &f.Mtime); err != nil {
			return nil, storageErr("files", stmtFiles, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("files", stmtFiles, err)
	}
	return files, nil
}

// File returns the catalogued version of filename.
func (c *Catalog) File(ctx context.Context, filename string) (index.File, error) {
	f := index.File{Filename: filename}
	var id int64
	err := c.db.QueryRowContext(ctx, stmtSelectFile, filename).Scan(&id, &f.Mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return f, fmt.Errorf("%w: file %q is not in the catalog", value.ErrKeyNotFound, filename)
	}
	if err != nil {
		return f, storageErr("file", stmtSelectFile, err)
	}
	return f, nil
}

// AttributeDef is a registered attribute name and its type.
type AttributeDef struct {
	Name string
	Type value.Type
}

const stmtAttributes = `SELECT attrname, type FROM attributes ORDER BY attrname`

// Attributes lists all registered attribute definitions by name.
func (c *Catalog) Attributes(ctx context.Context) ([]AttributeDef, error) {
	rows, err := c.db.QueryContext(ctx, stmtAttributes)
	if err != nil {
		return nil, storageErr("attributes", stmtAttributes, err)
	}
	defer func() { _ = rows.Close() }()
	var defs []AttributeDef
	for rows.Next() {
		var (
			d   AttributeDef
			typ string
		)
		if err := rows.Scan(&d.Name, &typ); err != nil {
			return nil, storageErr("attributes", stmtAttributes, err)
		}
		if d.Type, err = value.TypeFromString(typ); err != nil {
			return nil, storageErr("attributes", stmtAttributes, err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("attributes", stmtAttributes, err)
	}
	return defs, nil
}
