package merge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

var testAuthor = objstore.Signature{Name: "Test", Email: "test@example.com"}

func commitTree(t *testing.T, ctx context.Context, repo *objstore.Repository, parent hash.Hash, edits map[string]string, removes []string) hash.Hash {
	t.Helper()
	var base hash.Hash
	if !parent.IsEmpty() {
		c, err := repo.ReadCommit(ctx, parent)
		require.NoError(t, err)
		base = hash.FromBytes(c.TreeHash[:])
	}
	tb, err := objstore.NewTreeBuilder(ctx, repo, base)
	require.NoError(t, err)
	for path, content := range edits {
		require.NoError(t, tb.Insert(ctx, path, []byte(content)))
	}
	for _, path := range removes {
		require.NoError(t, tb.Remove(ctx, path))
	}
	tree, err := tb.Flush(ctx)
	require.NoError(t, err)

	var parents []hash.Hash
	if !parent.IsEmpty() {
		parents = []hash.Hash{parent}
	}
	commit, err := repo.WriteCommit(ctx, tree, parents, testAuthor, "test commit", time.Now().Unix())
	require.NoError(t, err)
	return commit
}

func TestStartFastForwardsWhenOursIsAncestor(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	c1 := commitTree(t, ctx, repo, hash.Hash{}, map[string]string{"mytable/.table-dataset.v3/meta/title": "a"}, nil)
	c2 := commitTree(t, ctx, repo, c1, map[string]string{"mytable/.table-dataset.v3/meta/title": "b"}, nil)

	result, err := Start(ctx, repo, h.PrivateDir, c1, c2, FFAllowed, "merge", testAuthor, time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFastForward, result.Outcome)
	assert.Equal(t, c2, result.Commit)
	assert.False(t, InProgress(h.PrivateDir))
}

func TestStartReportsUpToDateWhenTheirsIsAncestor(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	c1 := commitTree(t, ctx, repo, hash.Hash{}, map[string]string{"mytable/.table-dataset.v3/meta/title": "a"}, nil)
	c2 := commitTree(t, ctx, repo, c1, map[string]string{"mytable/.table-dataset.v3/meta/title": "b"}, nil)

	result, err := Start(ctx, repo, h.PrivateDir, c2, c1, FFAllowed, "merge", testAuthor, time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpToDate, result.Outcome)
}

func TestStartMergesCleanlyWhenChangesDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	base := commitTree(t, ctx, repo, hash.Hash{}, map[string]string{
		"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "one",
		"mytable/.table-dataset.v3/feature/cc/dd/CCCC": "two",
	}, nil)
	ours := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "one-changed"}, nil)
	theirs := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/cc/dd/CCCC": "two-changed"}, nil)

	result, err := Start(ctx, repo, h.PrivateDir, ours, theirs, FFAllowed, "merge", testAuthor, time.Now().Unix())
	require.NoError(t, err)
	require.Equal(t, OutcomeMerged, result.Outcome)
	assert.False(t, result.Commit.IsEmpty())

	mergedCommit, err := repo.ReadCommit(ctx, result.Commit)
	require.NoError(t, err)
	mergedTree := hash.FromBytes(mergedCommit.TreeHash[:])
	content, err := repo.ReadBlob(ctx, mustFind(t, ctx, repo, mergedTree, "mytable/.table-dataset.v3/feature/aa/bb/AAAA"))
	require.NoError(t, err)
	assert.Equal(t, "one-changed", string(content))
}

func TestStartEntersResolvingOnOverlappingEdit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	base := commitTree(t, ctx, repo, hash.Hash{}, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "one"}, nil)
	ours := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "ours-value"}, nil)
	theirs := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "theirs-value"}, nil)

	result, err := Start(ctx, repo, h.PrivateDir, ours, theirs, FFAllowed, "merge", testAuthor, time.Now().Unix())
	require.NoError(t, err)
	require.Equal(t, OutcomeConflicts, result.Outcome)
	require.True(t, InProgress(h.PrivateDir))
	require.Len(t, result.State.Index.Conflicts, 1)

	c, ok := result.State.Index.Conflicts["mytable/.table-dataset.v3/feature/aa/bb/AAAA"]
	require.True(t, ok)
	assert.Equal(t, CategoryEditEdit, c.Category)
	assert.NotNil(t, c.Ancestor)
	assert.NotNil(t, c.Ours)
	assert.NotNil(t, c.Theirs)

	_, err = Start(ctx, repo, h.PrivateDir, ours, theirs, FFAllowed, "merge", testAuthor, time.Now().Unix())
	assert.Error(t, err, "a second merge must not start while one is already resolving")
}

func TestResolveAndFinaliseWritesTwoParentCommit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	base := commitTree(t, ctx, repo, hash.Hash{}, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "one"}, nil)
	ours := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "ours-value"}, nil)
	theirs := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "theirs-value"}, nil)

	result, err := Start(ctx, repo, h.PrivateDir, ours, theirs, FFAllowed, "merge branches", testAuthor, time.Now().Unix())
	require.NoError(t, err)
	require.Equal(t, OutcomeConflicts, result.Outcome)

	key := "mytable/.table-dataset.v3/feature/aa/bb/AAAA"
	state, err := Resolve(h.PrivateDir, key, ResolveTheirs, hash.Hash{})
	require.NoError(t, err)
	assert.True(t, state.Index.Resolved())

	reloaded, err := Load(h.PrivateDir)
	require.NoError(t, err)
	assert.True(t, reloaded.Index.Resolved(), "a resolution must survive a reload from disk")

	commit, err := Finalise(ctx, repo, reloaded, testAuthor, time.Now().Unix())
	require.NoError(t, err)
	assert.False(t, commit.IsEmpty())
	assert.False(t, InProgress(h.PrivateDir))

	c, err := repo.ReadCommit(ctx, commit)
	require.NoError(t, err)
	require.Len(t, c.ParentHashes, 2)

	content, err := repo.ReadBlob(ctx, mustFind(t, ctx, repo, hash.FromBytes(c.TreeHash[:]), key))
	require.NoError(t, err)
	assert.Equal(t, "theirs-value", string(content))
}

func TestAbortClearsSentinelsWithoutCommitting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, h, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	base := commitTree(t, ctx, repo, hash.Hash{}, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "one"}, nil)
	ours := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "ours-value"}, nil)
	theirs := commitTree(t, ctx, repo, base, map[string]string{"mytable/.table-dataset.v3/feature/aa/bb/AAAA": "theirs-value"}, nil)

	_, err = Start(ctx, repo, h.PrivateDir, ours, theirs, FFAllowed, "merge", testAuthor, time.Now().Unix())
	require.NoError(t, err)
	require.True(t, InProgress(h.PrivateDir))

	require.NoError(t, Abort(h.PrivateDir))
	assert.False(t, InProgress(h.PrivateDir))
}

func mustFind(t *testing.T, ctx context.Context, repo *objstore.Repository, root hash.Hash, path string) hash.Hash {
	t.Helper()
	paths, err := flattenTree(ctx, repo, root)
	require.NoError(t, err)
	h, ok := paths[path]
	require.True(t, ok, "%s not found in tree", path)
	return h
}
