// Package pgwc is the PostGIS working-copy driver: user tables live in a
// caller-chosen Postgres database alongside a small set of kart_*
// tracking tables, using jmoiron/sqlx for connection handling and
// gocraft/dbr/v2 as the query builder for Commit's fixed-shape
// kart_track/kart_state statements; the per-dataset statements, whose
// column lists vary at runtime, are built by hand. lib/pq supplies both the database/sql
// driver registration and, in populateFromTree, its COPY FROM STDIN
// protocol for bulk-loading a dataset's initial rows.
package pgwc

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gocraft/dbr/v2"
	"github.com/gocraft/dbr/v2/dialect"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
	"github.com/kart-vcs/kart/internal/workingcopy"
)

// Driver is the PostGIS-backed working copy. Like sqlitewc it only
// supports single-column primary keys, for the same reason: the
// trigger-based dirty-tracking functions below capture the pk as one text
// value per row.
type Driver struct {
	db      *sqlx.DB
	sess    *dbr.Session
	repo    *objstore.Repository
	refName string
	schemas map[string]workingcopy.DatasetSchema
	author  objstore.Signature
}

var _ workingcopy.Driver = (*Driver)(nil)

// Open connects to a Postgres/PostGIS database at dsn (a standard
// "postgres://" URL or libpq keyword string) as the working copy backing
// store for repo, tracking the branch refName.
func Open(dsn string, repo *objstore.Repository, refName string) (*Driver, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "connecting to working copy database")
	}
	conn := &dbr.Connection{DB: db.DB, Dialect: dialect.PostgreSQL}
	d := &Driver{
		db:      db,
		sess:    conn.NewSession(nil),
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
		`INSERT INTO kart_track_suspended (id, suspended) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	}
	for _, s := range stmts {
		if _, err := d.db.Exec(s); err != nil {
			return kerr.Wrap(kerr.IntegrityError, err, "preparing working copy state tables")
		}
	}
	return nil
}

var identifierRE = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func tableName(datasetPath string) string {
	return "ds_" + identifierRE.ReplaceAllString(datasetPath, "_")
}

func quoteIdent(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }
func quoteLiteral(s string) string  { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// Create builds the user table, PostGIS geometry columns, tracking
// triggers and initial row contents for each dataset, seeded from tree.
func (d *Driver) Create(ctx context.Context, tree hash.Hash, datasets []workingcopy.DatasetSchema) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "starting working copy transaction")
	}
	defer tx.Rollback()

	for _, ds := range datasets {
		if len(ds.Schema.PKColumns()) != 1 {
			return kerr.New(kerr.InvalidOperation, "%s: pgwc requires a single-column primary key", ds.Dataset.Path)
		}
		if err := createUserTable(ctx, tx, ds); err != nil {
			return err
		}
		d.schemas[ds.Dataset.Path] = ds
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kart_state (id, tree_id, ref_name) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET tree_id = excluded.tree_id, ref_name = excluded.ref_name`,
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

func createUserTable(ctx context.Context, tx *sqlx.Tx, ds workingcopy.DatasetSchema) error {
	table := tableName(ds.Dataset.Path)
	pkCol := ds.Schema.PKColumns()[0]

	var cols []string
	cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", quoteIdent(pkCol.Name), sqlTypeFor(pkCol.DataType)))
	for _, c := range ds.Schema.ValueColumnsSortedByID() {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(c.Name), sqlTypeFor(c.DataType)))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating table for %s", ds.Dataset.Path)
	}

	funcName := table + "_trk_fn"
	fn := fmt.Sprintf(`
CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $fn$
BEGIN
  IF (SELECT suspended FROM kart_track_suspended WHERE id = 1) = 0 THEN
    IF TG_OP = 'DELETE' THEN
      INSERT INTO kart_track (dataset_path, pk) VALUES (%s, OLD.%s::text) ON CONFLICT DO NOTHING;
    ELSE
      INSERT INTO kart_track (dataset_path, pk) VALUES (%s, NEW.%s::text) ON CONFLICT DO NOTHING;
    END IF;
  END IF;
  RETURN NULL;
END;
$fn$ LANGUAGE plpgsql;`,
		quoteIdent(funcName), quoteLiteral(ds.Dataset.Path), quoteIdent(pkCol.Name), quoteLiteral(ds.Dataset.Path), quoteIdent(pkCol.Name))
	if _, err := tx.ExecContext(ctx, fn); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating tracking function for %s", ds.Dataset.Path)
	}

	trigger := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s; CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s()`,
		quoteIdent(table+"_trk"), quoteIdent(table), quoteIdent(table+"_trk"), quoteIdent(table), quoteIdent(funcName))
	if _, err := tx.ExecContext(ctx, trigger); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating tracking trigger for %s", ds.Dataset.Path)
	}
	return nil
}

// sqlTypeFor maps to PostGIS-flavoured column types, falling back to the
// shared mapping workingcopy.SQLType defines for the types both backends
// agree on.
func sqlTypeFor(t dataset.DataType) string {
	if t == dataset.TypeGeometry {
		return "geometry"
	}
	return workingcopy.SQLType(t)
}
