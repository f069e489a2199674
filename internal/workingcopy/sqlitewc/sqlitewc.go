// Package sqlitewc is the GPKG/SQLite working-copy driver: user tables
// live in a single SQLite file alongside Kart-private tracking tables,
// using modernc.org/sqlite so the whole module stays cgo-free.
package sqlitewc

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
	"github.com/kart-vcs/kart/internal/workingcopy"
)

// Driver is the SQLite-backed working copy. It only supports
// single-column primary keys: the trigger-based dirty tracking below
// needs to capture the pk as a single SQL value, and composite keys would
// need a generated concatenation expression per dataset. Multi-column pk
// datasets are rejected at Create time rather than silently mistracked.
type Driver struct {
	db      *sql.DB
	repo    *objstore.Repository
	refName string
	schemas map[string]workingcopy.DatasetSchema
	author  objstore.Signature
}

var _ workingcopy.Driver = (*Driver)(nil)

// Open opens (creating if absent) a SQLite database at dbPath as the
// working copy backing store for repo, tracking the branch refName.
func Open(dbPath string, repo *objstore.Repository, refName string) (*Driver, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "opening working copy %s", dbPath)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, kerr.Wrap(kerr.IntegrityError, err, "configuring working copy")
	}
	d := &Driver{
		db:      db,
		repo:    repo,
		refName: refName,
		schemas: map[string]workingcopy.DatasetSchema{},
		author:  objstore.Signature{Name: "Kart", Email: "kart@localhost"},
	}
	if err := d.ensureStateTables(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) Close() error { return d.db.Close() }

// SetAuthor overrides the commit signature Commit uses; Open defaults it
// to a generic placeholder identity.
func (d *Driver) SetAuthor(author objstore.Signature) {
	d.author = author
}

func (d *Driver) ensureStateTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kart_state (id INTEGER PRIMARY KEY CHECK (id = 1), tree_id TEXT NOT NULL, ref_name TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS kart_track (dataset_path TEXT NOT NULL, pk TEXT NOT NULL, PRIMARY KEY (dataset_path, pk))`,
		`CREATE TABLE IF NOT EXISTS kart_track_suspended (id INTEGER PRIMARY KEY CHECK (id = 1), suspended INTEGER NOT NULL DEFAULT 0)`,
		`INSERT OR IGNORE INTO kart_track_suspended (id, suspended) VALUES (1, 0)`,
	}
	for _, s := range stmts {
		if _, err := d.db.Exec(s); err != nil {
			return kerr.Wrap(kerr.IntegrityError, err, "preparing working copy state tables")
		}
	}
	return nil
}

var identifierRE = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// tableName derives the SQLite table name for a dataset path.
func tableName(datasetPath string) string {
	return "ds_" + identifierRE.ReplaceAllString(datasetPath, "_")
}

// Create builds the user table, tracking triggers and initial row
// contents for each dataset, seeded from tree.
func (d *Driver) Create(ctx context.Context, tree hash.Hash, datasets []workingcopy.DatasetSchema) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "starting working copy transaction")
	}
	defer tx.Rollback()

	for _, ds := range datasets {
		if len(ds.Schema.PKColumns()) != 1 {
			return kerr.New(kerr.InvalidOperation, "%s: sqlitewc requires a single-column primary key", ds.Dataset.Path)
		}
		if err := createUserTable(ctx, tx, ds); err != nil {
			return err
		}
		d.schemas[ds.Dataset.Path] = ds
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kart_state (id, tree_id, ref_name) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET tree_id = excluded.tree_id, ref_name = excluded.ref_name`,
		tree.String(), d.refName); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "recording working copy base tree")
	}

	if err := tx.Commit(); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "committing working copy creation")
	}

	if err := d.setTrackingSuspended(ctx, true); err != nil {
		return err
	}
	defer d.setTrackingSuspended(ctx, false)

	for _, ds := range datasets {
		if err := d.populateFromTree(ctx, ds, tree, nil); err != nil {
			return err
		}
	}
	return nil
}

func createUserTable(ctx context.Context, tx *sql.Tx, ds workingcopy.DatasetSchema) error {
	table := tableName(ds.Dataset.Path)
	pkCol := ds.Schema.PKColumns()[0]

	var cols []string
	cols = append(cols, fmt.Sprintf("%q %s PRIMARY KEY", pkCol.Name, workingcopy.SQLType(pkCol.DataType)))
	for _, c := range ds.Schema.ValueColumnsSortedByID() {
		cols = append(cols, fmt.Sprintf("%q %s", c.Name, workingcopy.SQLType(c.DataType)))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", table, strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating table for %s", ds.Dataset.Path)
	}

	for _, event := range []string{"INSERT", "UPDATE", "DELETE"} {
		pkRef := "NEW." + quoteIdent(pkCol.Name)
		if event == "DELETE" {
			pkRef = "OLD." + quoteIdent(pkCol.Name)
		}
		trigger := fmt.Sprintf(
			`CREATE TRIGGER IF NOT EXISTS %q AFTER %s ON %q
			 WHEN (SELECT suspended FROM kart_track_suspended WHERE id = 1) = 0
			 BEGIN
			   INSERT OR IGNORE INTO kart_track (dataset_path, pk) VALUES (%s, CAST(%s AS TEXT));
			 END`,
			table+"_trk_"+strings.ToLower(event), event, table, quoteLiteral(ds.Dataset.Path), pkRef)
		if _, err := tx.ExecContext(ctx, trigger); err != nil {
			return kerr.Wrap(kerr.IntegrityError, err, "creating %s trigger for %s", event, ds.Dataset.Path)
		}
	}
	return nil
}

func quoteIdent(name string) string  { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }
func quoteLiteral(s string) string   { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// populateFromTree inserts every feature row of ds found in tree. filter,
// if non-nil, restricts which feature keys are loaded (used by Reset to
// honor a caller-supplied key filter).
func (d *Driver) populateFromTree(ctx context.Context, ds workingcopy.DatasetSchema, tree hash.Hash, filter *diff.DatasetFilter) error {
	if tree.IsEmpty() {
		return nil
	}
	pkCol := ds.Schema.PKColumns()[0]
	table := tableName(ds.Dataset.Path)
	marker := ds.Dataset.FullMarkerPath()

	return workingcopy.WalkTree(ctx, d.repo, tree, func(b workingcopy.Blob) error {
		prefix := marker + "/feature/"
		if !strings.HasPrefix(b.Path, prefix) {
			return nil
		}
		rest := strings.TrimPrefix(b.Path, prefix)
		if filter != nil && !filter.Feature.Allows(rest) {
			return nil
		}
		pkBytes, err := dataset.DecodeFeatureKeyFromPath(rest)
		if err != nil {
			return err
		}
		data, err := d.repo.ReadBlob(ctx, b.Hash)
		if err != nil {
			return err
		}
		feature, err := dataset.DecodeFeature(ds.Schema, data)
		if err != nil {
			return err
		}
		pkValue, err := decodePKScalar(ds.Schema, pkCol, pkBytes)
		if err != nil {
			return err
		}
		return d.insertRow(ctx, table, ds.Schema, pkCol, pkValue, feature)
	})
}

func (d *Driver) insertRow(ctx context.Context, table string, schema dataset.Schema, pkCol dataset.Column, pkValue interface{}, feature dataset.Feature) error {
	cols := []string{pkCol.Name}
	vals := []interface{}{pkValue}
	for _, c := range schema.ValueColumnsSortedByID() {
		cols = append(cols, c.Name)
		vals = append(vals, feature[c.ID.String()])
	}

	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		quoted[i] = quoteIdent(c)
	}

	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %q (%s) VALUES (%s)", table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if _, err := d.db.ExecContext(ctx, stmt, vals...); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "populating row in %s", table)
	}
	return nil
}

// decodePKScalar decodes a single-column primary key's raw encoded bytes
// back to the scalar SQL value it should be stored as.
func decodePKScalar(schema dataset.Schema, col dataset.Column, pkBytes []byte) (interface{}, error) {
	f, err := dataset.DecodePKValue(schema, pkBytes)
	if err != nil {
		return nil, err
	}
	return f[col.ID.String()], nil
}
