package sqlitewc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
	"github.com/kart-vcs/kart/internal/workingcopy"
)

func testSchema() dataset.Schema {
	idCol := dataset.Column{ID: uuid.New(), Name: "id", DataType: dataset.TypeInteger, PKIndex: 1}
	nameCol := dataset.Column{ID: uuid.New(), Name: "name", DataType: dataset.TypeText}
	return dataset.Schema{Columns: []dataset.Column{idCol, nameCol}}
}

// seedTree writes one feature blob per row into a fresh tree and returns
// its root hash.
func seedTree(t *testing.T, ctx context.Context, repo *objstore.Repository, ds dataset.Dataset, schema dataset.Schema, rows map[int64]string) hash.Hash {
	t.Helper()
	idCol := schema.PKColumns()[0]
	nameCol, ok := schema.ColumnByName("name")
	require.True(t, ok)

	tb, err := objstore.NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, err)

	for id, name := range rows {
		pkBytes, err := dataset.EncodePKValue(schema, dataset.Feature{idCol.ID.String(): id})
		require.NoError(t, err)
		encoded, err := dataset.EncodeFeature(schema, dataset.Feature{idCol.ID.String(): id, nameCol.ID.String(): name})
		require.NoError(t, err)
		path := ds.FullMarkerPath() + "/" + dataset.FeaturePath(pkBytes)
		require.NoError(t, tb.Insert(ctx, path, encoded))
	}

	root, err := tb.Flush(ctx)
	require.NoError(t, err)
	return root
}

func openTestDriver(t *testing.T, repo *objstore.Repository) *Driver {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "wc.gpkg")
	d, err := Open(dbPath, repo, "refs/heads/main")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCreatePopulatesTableFromTree(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	schema := testSchema()
	ds := dataset.Dataset{Path: "mytable", Kind: dataset.KindTable, Version: 3}
	root := seedTree(t, ctx, repo, ds, schema, map[int64]string{1: "one", 2: "two"})

	d := openTestDriver(t, repo)
	require.NoError(t, d.Create(ctx, root, []workingcopy.DatasetSchema{{Dataset: ds, Schema: schema}}))

	idCol := schema.PKColumns()[0]
	var name string
	err = d.db.QueryRowContext(ctx, `SELECT name FROM `+quoteIdent(tableName("mytable"))+` WHERE `+quoteIdent(idCol.Name)+` = ?`, int64(1)).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "one", name)

	require.NoError(t, d.AssertDBTreeMatch(ctx, root))
}

func TestTriggersTrackDirtyRowsAndDiffToTreeReportsThem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	schema := testSchema()
	ds := dataset.Dataset{Path: "mytable", Kind: dataset.KindTable, Version: 3}
	root := seedTree(t, ctx, repo, ds, schema, map[int64]string{1: "one", 2: "two"})

	d := openTestDriver(t, repo)
	require.NoError(t, d.Create(ctx, root, []workingcopy.DatasetSchema{{Dataset: ds, Schema: schema}}))

	table := tableName("mytable")
	_, err = d.db.ExecContext(ctx, `UPDATE `+quoteIdent(table)+` SET name = ? WHERE id = ?`, "ONE-UPDATED", int64(1))
	require.NoError(t, err)
	_, err = d.db.ExecContext(ctx, `INSERT INTO `+quoteIdent(table)+` (id, name) VALUES (?, ?)`, int64(3), "three")
	require.NoError(t, err)
	_, err = d.db.ExecContext(ctx, `DELETE FROM `+quoteIdent(table)+` WHERE id = ?`, int64(2))
	require.NoError(t, err)

	var trackedCount int
	require.NoError(t, d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kart_track`).Scan(&trackedCount))
	assert.Equal(t, 3, trackedCount)

	repoDiff, err := d.DiffToTree(ctx)
	require.NoError(t, err)
	dd, ok := repoDiff["mytable"]
	require.True(t, ok)
	assert.Equal(t, 3, dd.Feature.Len())

	var updated, inserted, deleted bool
	dd.Feature.Ascend(func(delta diff.Delta) bool {
		switch delta.Status {
		case diff.StatusUpdate:
			updated = true
		case diff.StatusInsert:
			inserted = true
		case diff.StatusDelete:
			deleted = true
		}
		return true
	})
	assert.True(t, updated)
	assert.True(t, inserted)
	assert.True(t, deleted)
}

func TestDiffToTreeDropsNoOpRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	schema := testSchema()
	ds := dataset.Dataset{Path: "mytable", Kind: dataset.KindTable, Version: 3}
	root := seedTree(t, ctx, repo, ds, schema, map[int64]string{1: "one"})

	d := openTestDriver(t, repo)
	require.NoError(t, d.Create(ctx, root, []workingcopy.DatasetSchema{{Dataset: ds, Schema: schema}}))

	table := tableName("mytable")
	_, err = d.db.ExecContext(ctx, `UPDATE `+quoteIdent(table)+` SET name = ? WHERE id = ?`, "changed", int64(1))
	require.NoError(t, err)
	_, err = d.db.ExecContext(ctx, `UPDATE `+quoteIdent(table)+` SET name = ? WHERE id = ?`, "one", int64(1))
	require.NoError(t, err)

	repoDiff, err := d.DiffToTree(ctx)
	require.NoError(t, err)
	assert.True(t, repoDiff.Empty(), "a row edited back to its original value must not appear in the diff")
}

func TestCommitWritesTreeAndAdvancesRefAndClearsDirtySet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	schema := testSchema()
	ds := dataset.Dataset{Path: "mytable", Kind: dataset.KindTable, Version: 3}
	root := seedTree(t, ctx, repo, ds, schema, map[int64]string{1: "one", 2: "two"})

	d := openTestDriver(t, repo)
	require.NoError(t, d.Create(ctx, root, []workingcopy.DatasetSchema{{Dataset: ds, Schema: schema}}))

	table := tableName("mytable")
	_, err = d.db.ExecContext(ctx, `UPDATE `+quoteIdent(table)+` SET name = ? WHERE id = ?`, "one-updated", int64(1))
	require.NoError(t, err)

	repoDiff, err := d.DiffToTree(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repoDiff["mytable"].Feature.Len())

	newCommit, err := d.Commit(ctx, repoDiff, "update row 1")
	require.NoError(t, err)
	assert.False(t, newCommit.IsEmpty())

	head, err := repo.ResolveRef("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, newCommit, head)

	var trackedCount int
	require.NoError(t, d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kart_track`).Scan(&trackedCount))
	assert.Equal(t, 0, trackedCount)

	repoDiff2, err := d.DiffToTree(ctx)
	require.NoError(t, err)
	assert.True(t, repoDiff2.Empty())
}

func TestResetWithoutForceRefusesWhenDirty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	schema := testSchema()
	ds := dataset.Dataset{Path: "mytable", Kind: dataset.KindTable, Version: 3}
	root := seedTree(t, ctx, repo, ds, schema, map[int64]string{1: "one"})

	d := openTestDriver(t, repo)
	require.NoError(t, d.Create(ctx, root, []workingcopy.DatasetSchema{{Dataset: ds, Schema: schema}}))

	table := tableName("mytable")
	_, err = d.db.ExecContext(ctx, `UPDATE `+quoteIdent(table)+` SET name = ? WHERE id = ?`, "dirty", int64(1))
	require.NoError(t, err)

	err = d.Reset(ctx, root, diff.MatchAllFilter, false)
	require.Error(t, err)
}

func TestResetWithForceRestoresTreeContents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	schema := testSchema()
	ds := dataset.Dataset{Path: "mytable", Kind: dataset.KindTable, Version: 3}
	root := seedTree(t, ctx, repo, ds, schema, map[int64]string{1: "one"})

	d := openTestDriver(t, repo)
	require.NoError(t, d.Create(ctx, root, []workingcopy.DatasetSchema{{Dataset: ds, Schema: schema}}))

	table := tableName("mytable")
	_, err = d.db.ExecContext(ctx, `UPDATE `+quoteIdent(table)+` SET name = ? WHERE id = ?`, "dirty", int64(1))
	require.NoError(t, err)

	require.NoError(t, d.Reset(ctx, root, diff.MatchAllFilter, true))

	var name string
	require.NoError(t, d.db.QueryRowContext(ctx, `SELECT name FROM `+quoteIdent(table)+` WHERE id = ?`, int64(1)).Scan(&name))
	assert.Equal(t, "one", name)

	var trackedCount int
	require.NoError(t, d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kart_track`).Scan(&trackedCount))
	assert.Equal(t, 0, trackedCount)

	require.NoError(t, d.AssertDBTreeMatch(ctx, root))
}
