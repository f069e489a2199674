package diff

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-vcs/kart/internal/annotations"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

func TestFeatureCountMatchesTreeDiffAndMemoises(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	store, err := annotations.Open(h.PrivateDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

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

	count, err := FeatureCount(ctx, store, repo, treeA, treeB, MatchAllFilter)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	cached, found, err := store.Get(ctx, annotations.FeatureCountKind, annotations.SymmetricRangeKey(treeA.String(), treeB.String()))
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, cached, 8)

	// Swapping the argument order must hit the same cache entry and return
	// the same count, since the cache key is symmetric.
	count2, err := FeatureCount(ctx, store, repo, treeB, treeA, MatchAllFilter)
	require.NoError(t, err)
	assert.Equal(t, 2, count2)
}

func TestFeatureCountFilteredBypassesCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	store, err := annotations.Open(h.PrivateDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tbA, err := objstore.NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, err)
	require.NoError(t, tbA.Insert(ctx, "mytable/.table-dataset.v3/feature/aa/bb/AAAA", []byte("one")))
	treeA, err := tbA.Flush(ctx)
	require.NoError(t, err)

	tbB, err := objstore.NewTreeBuilder(ctx, repo, treeA)
	require.NoError(t, err)
	require.NoError(t, tbB.Insert(ctx, "mytable/.table-dataset.v3/feature/aa/bb/AAAA", []byte("one-updated")))
	treeB, err := tbB.Flush(ctx)
	require.NoError(t, err)

	scoped := Filter{Datasets: map[string]DatasetFilter{"mytable": MatchAllDataset}}
	count, err := FeatureCount(ctx, store, repo, treeA, treeB, scoped)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, found, err := store.Get(ctx, annotations.FeatureCountKind, annotations.SymmetricRangeKey(treeA.String(), treeB.String()))
	require.NoError(t, err)
	assert.False(t, found, "a filtered count must never populate the whole-repository cache entry")
}
