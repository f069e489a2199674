package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kart-vcs/kart/internal/hash"
)

func TestInitTidyAndTreeBuilderRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, _, err := InitTidy(dir)
	require.NoError(t, err)

	tb, err := NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, err)

	require.NoError(t, tb.Insert(ctx, "mytable/.table-dataset.v3/meta/title", []byte("My Table")))
	require.NoError(t, tb.Insert(ctx, "mytable/.table-dataset.v3/meta/schema.json", []byte(`{"columns":[]}`)))

	root1, err := tb.Flush(ctx)
	require.NoError(t, err)
	require.False(t, root1.IsEmpty())

	// A second edit, starting from the flushed root, must preserve the
	// first edit's untouched sibling.
	tb2, err := NewTreeBuilder(ctx, repo, root1)
	require.NoError(t, err)
	require.NoError(t, tb2.Insert(ctx, "mytable/.table-dataset.v3/feature/aa/bb/AAAA", []byte("feature bytes")))
	root2, err := tb2.Flush(ctx)
	require.NoError(t, err)

	tree, err := repo.ReadTree(ctx, root2)
	require.NoError(t, err)
	dsEntry, found := findEntry(tree, "mytable")
	require.True(t, found)

	dsTree, err := repo.ReadTree(ctx, fromPlumbing(dsEntry.Hash))
	require.NoError(t, err)
	markerEntry, found := findEntry(dsTree, ".table-dataset.v3")
	require.True(t, found)

	markerTree, err := repo.ReadTree(ctx, fromPlumbing(markerEntry.Hash))
	require.NoError(t, err)
	_, hasMeta := findEntry(markerTree, "meta")
	_, hasFeature := findEntry(markerTree, "feature")
	require.True(t, hasMeta, "meta/ subtree from the first flush must survive the second")
	require.True(t, hasFeature)
}

func TestTreeBuilderRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := InitTidy(dir)
	require.NoError(t, err)

	tb, _ := NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, tb.Insert(ctx, "a/b", []byte("1")))
	require.NoError(t, tb.Insert(ctx, "a/c", []byte("2")))
	root1, err := tb.Flush(ctx)
	require.NoError(t, err)

	tb2, _ := NewTreeBuilder(ctx, repo, root1)
	require.NoError(t, tb2.Remove(ctx, "a/b"))
	root2, err := tb2.Flush(ctx)
	require.NoError(t, err)

	tree, err := repo.ReadTree(ctx, root2)
	require.NoError(t, err)
	aEntry, _ := findEntry(tree, "a")
	aTree, err := repo.ReadTree(ctx, fromPlumbing(aEntry.Hash))
	require.NoError(t, err)
	_, hasB := findEntry(aTree, "b")
	_, hasC := findEntry(aTree, "c")
	require.False(t, hasB, "removed entry must not survive flush")
	require.True(t, hasC)
}

func TestRefCASAndMergeBase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := InitTidy(dir)
	require.NoError(t, err)

	tb, _ := NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, tb.Insert(ctx, "f", []byte("1")))
	tree1, err := tb.Flush(ctx)
	require.NoError(t, err)

	c1, err := repo.WriteCommit(ctx, tree1, nil, Signature{Name: "t", Email: "t@example.com"}, "first", 0)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateRef("refs/heads/main", c1, hash.Hash{}))

	// CAS against a stale expectation must fail.
	staleExpectation := hash.Of([]byte("not the current ref value"))
	err = repo.UpdateRef("refs/heads/main", c1, staleExpectation)
	require.Error(t, err)

	tb2, _ := NewTreeBuilder(ctx, repo, tree1)
	require.NoError(t, tb2.Insert(ctx, "g", []byte("2")))
	tree2, err := tb2.Flush(ctx)
	require.NoError(t, err)
	c2, err := repo.WriteCommit(ctx, tree2, []hash.Hash{c1}, Signature{Name: "t", Email: "t@example.com"}, "second", 0)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateRef("refs/heads/main", c2, c1))

	bases, err := repo.MergeBase(ctx, c1, c2)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	require.Equal(t, c1, bases[0])
}
