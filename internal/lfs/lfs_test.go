package lfs

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

func TestWriteObjectIsContentAddressedAndIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	oid1, size1, err := store.WriteObject([]byte("tile bytes"))
	require.NoError(t, err)
	oid2, size2, err := store.WriteObject([]byte("tile bytes"))
	require.NoError(t, err)

	assert.Equal(t, oid1, oid2)
	assert.Equal(t, size1, size2)

	path, present, err := store.LocalPathOf(oid1)
	require.NoError(t, err)
	assert.True(t, present)
	assert.FileExists(t, path)
}

func TestLocalPathOfReportsMissingObject(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	oid := "sha256:" + dataset.Sha256Hex([]byte("never written"))
	_, present, err := store.LocalPathOf(oid)
	require.NoError(t, err)
	assert.False(t, present)
}

type stubFetcher struct {
	content []byte
}

func (f stubFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(f.content))), nil
}

func TestEnsureLocalFetchesAndVerifiesHash(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	content := []byte("fetched tile content")
	oid := "sha256:" + dataset.Sha256Hex(content)

	path, err := EnsureLocal(ctx, store, stubFetcher{content: content}, oid, int64(len(content)), "https://example.invalid/obj")
	require.NoError(t, err)
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestEnsureLocalRejectsHashMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	wrongOID := "sha256:" + dataset.Sha256Hex([]byte("expected content"))
	_, err = EnsureLocal(ctx, store, stubFetcher{content: []byte("actual different bytes")}, wrongOID, 0, "https://example.invalid/obj")
	require.Error(t, err)
}

func TestEnsureLocalReturnsExistingWithoutFetching(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	oid, _, err := store.WriteObject([]byte("already cached"))
	require.NoError(t, err)

	path, err := EnsureLocal(ctx, store, stubFetcher{}, oid, 0, "")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestLsFilesFindsTilePointers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, _, err := objstore.InitTidy(dir)
	require.NoError(t, err)

	ptr := dataset.Pointer{OID: "sha256:" + dataset.Sha256Hex([]byte("x")), Size: 1024, FormatHint: "tif"}
	ptrBytes, err := dataset.EncodeTilePointer(ptr)
	require.NoError(t, err)

	tb, err := objstore.NewTreeBuilder(ctx, repo, hash.Hash{})
	require.NoError(t, err)
	require.NoError(t, tb.Insert(ctx, "tiles/.raster-dataset.v1/tile/aa/bb/tile1.tif", ptrBytes))
	root, err := tb.Flush(ctx)
	require.NoError(t, err)

	records, err := LsFiles(ctx, repo, root)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ptr.OID, records[0].OID)
	assert.Equal(t, int64(1024), records[0].Size)
}
