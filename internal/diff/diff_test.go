package diff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

func TestTreeDiffDetectsInsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	tbA, err := objstore.NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, err)
	require.NoError(t, tbA.Insert(ctx, "mytable/.table-dataset.v3/meta/title", []byte("My Table")))
	require.NoError(t, tbA.Insert(ctx, "mytable/.table-dataset.v3/feature/aa/bb/AAAA", []byte("one")))
	require.NoError(t, tbA.Insert(ctx, "mytable/.table-dataset.v3/feature/cc/dd/CCCC", []byte("two")))
	treeA, err := tbA.Flush(ctx)
	require.NoError(t, err)

	tbB, err := objstore.NewTreeBuilder(ctx, repo, treeA)
	require.NoError(t, err)
	require.NoError(t, tbB.Insert(ctx, "mytable/.table-dataset.v3/feature/aa/bb/AAAA", []byte("one-updated")))
	require.NoError(t, tbB.Remove(ctx, "mytable/.table-dataset.v3/feature/cc/dd/CCCC"))
	require.NoError(t, tbB.Insert(ctx, "mytable/.table-dataset.v3/feature/ee/ff/EEEE", []byte("three")))
	treeB, err := tbB.Flush(ctx)
	require.NoError(t, err)

	repoDiff, err := TreeDiff(ctx, repo, treeA, treeB, MatchAllFilter)
	require.NoError(t, err)
	require.False(t, repoDiff.Empty())

	dd, ok := repoDiff["mytable"]
	require.True(t, ok)
	require.Equal(t, 3, dd.Feature.Len())

	updated, ok := dd.Feature.Get("aa/bb/AAAA")
	require.True(t, ok)
	assert.Equal(t, StatusUpdate, updated.Status)

	deleted, ok := dd.Feature.Get("cc/dd/CCCC")
	require.True(t, ok)
	assert.Equal(t, StatusDelete, deleted.Status)

	inserted, ok := dd.Feature.Get("ee/ff/EEEE")
	require.True(t, ok)
	assert.Equal(t, StatusInsert, inserted.Status)

	assert.Equal(t, 0, dd.Meta.Len())
}

func TestTreeDiffIsEmptyForIdenticalTrees(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	tb, err := objstore.NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, err)
	require.NoError(t, tb.Insert(ctx, "mytable/.table-dataset.v3/meta/title", []byte("My Table")))
	tree1, err := tb.Flush(ctx)
	require.NoError(t, err)

	repoDiff, err := TreeDiff(ctx, repo, tree1, tree1, MatchAllFilter)
	require.NoError(t, err)
	assert.True(t, repoDiff.Empty())
}

func TestTreeDiffInversion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	tbA, err := objstore.NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, err)
	require.NoError(t, tbA.Insert(ctx, "mytable/.table-dataset.v3/feature/aa/bb/AAAA", []byte("one")))
	treeA, err := tbA.Flush(ctx)
	require.NoError(t, err)

	tbB, err := objstore.NewTreeBuilder(ctx, repo, treeA)
	require.NoError(t, err)
	require.NoError(t, tbB.Insert(ctx, "mytable/.table-dataset.v3/feature/aa/bb/AAAA", []byte("one-updated")))
	require.NoError(t, tbB.Insert(ctx, "mytable/.table-dataset.v3/feature/cc/dd/CCCC", []byte("two")))
	treeB, err := tbB.Flush(ctx)
	require.NoError(t, err)

	forward, err := TreeDiff(ctx, repo, treeA, treeB, MatchAllFilter)
	require.NoError(t, err)
	backward, err := TreeDiff(ctx, repo, treeB, treeA, MatchAllFilter)
	require.NoError(t, err)

	assert.Equal(t, backward["mytable"].Feature.Slice(), forward.Reverse()["mytable"].Feature.Slice())
}

func TestPartFilterRestrictsToSelectedKeys(t *testing.T) {
	f := PartFilter{Keys: map[string]bool{"AAAA": true}}
	assert.True(t, f.Allows("AAAA"))
	assert.False(t, f.Allows("BBBB"))
	assert.True(t, MatchAllParts.Allows("anything"))
}

func TestFilterForDatasetRespectsScope(t *testing.T) {
	f := Filter{Datasets: map[string]DatasetFilter{"mytable": MatchAllDataset}}
	_, ok := f.ForDataset("othertable")
	assert.False(t, ok)
	_, ok = f.ForDataset("mytable")
	assert.True(t, ok)
}
