package dataset

import (
	"context"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
)

// metaItemPath returns a dataset's meta item path relative to tree root,
// e.g. "nz_pa_points/.table-dataset.v3/meta/schema.json".
func metaItemPath(d Dataset, name string) string {
	return joinPath(d.FullMarkerPath(), string(PartMeta), name)
}

// GetMetaItem reads a single named meta item ("schema.json", "title",
// "crs/EPSG:4326.wkt", ...) out of tree. ok is false if the item doesn't
// exist, which is not an error: a missing meta item is how a dataset
// declares it doesn't carry that piece of optional metadata.
func GetMetaItem(ctx context.Context, repo *objstore.Repository, d Dataset, tree hash.Hash, name string) ([]byte, bool, error) {
	h, found, err := findBlobAtPath(ctx, repo, tree, metaItemPath(d, name))
	if err != nil || !found {
		return nil, false, err
	}
	data, err := repo.ReadBlob(ctx, h)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetMetaItem buffers a write of a meta item's raw bytes into tb. Passing
// nil data removes the item instead.
func SetMetaItem(ctx context.Context, tb *objstore.TreeBuilder, d Dataset, name string, data []byte) error {
	p := metaItemPath(d, name)
	if data == nil {
		return tb.Remove(ctx, p)
	}
	return tb.Insert(ctx, p, data)
}

// ListMetaItemsMatching returns the names of every meta item under d in
// tree whose name matches pattern, a path.Match-style glob (e.g.
// "crs/*", "*.json"). An empty pattern ("") matches every meta item.
func ListMetaItemsMatching(ctx context.Context, repo *objstore.Repository, d Dataset, tree hash.Hash, pattern string) ([]string, error) {
	metaRoot := joinPath(d.FullMarkerPath(), string(PartMeta))
	rootHash, found, err := findSubtree(ctx, repo, tree, metaRoot)
	if err != nil || !found {
		return nil, err
	}

	var names []string
	err = walkMetaBlobs(ctx, repo, rootHash, "", func(name string) error {
		if pattern == "" {
			names = append(names, name)
			return nil
		}
		ok, err := path.Match(pattern, name)
		if err != nil {
			return kerr.Wrap(kerr.InvalidArgument, err, "%s: invalid meta item glob", pattern)
		}
		if ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// findSubtree descends a slash-separated path from tree's root and returns
// the hash of the subtree at that path, if every component along the way
// is itself a directory entry.
func findSubtree(ctx context.Context, repo *objstore.Repository, tree hash.Hash, fullPath string) (hash.Hash, bool, error) {
	if tree.IsEmpty() || fullPath == "" {
		return hash.Hash{}, false, nil
	}
	cur := tree
	for _, part := range pathSegments(fullPath) {
		t, err := repo.ReadTree(ctx, cur)
		if err != nil {
			return hash.Hash{}, false, err
		}
		entry, ok := findEntry(t.Entries, part)
		if !ok || entry.Mode.IsFile() {
			return hash.Hash{}, false, nil
		}
		cur = hash.FromBytes(entry.Hash[:])
	}
	return cur, true, nil
}

// findBlobAtPath descends fullPath from tree's root and returns the blob
// hash at the final component, if present.
func findBlobAtPath(ctx context.Context, repo *objstore.Repository, tree hash.Hash, fullPath string) (hash.Hash, bool, error) {
	parts := pathSegments(fullPath)
	if len(parts) == 0 {
		return hash.Hash{}, false, nil
	}
	dirHash := tree
	if len(parts) > 1 {
		var found bool
		var err error
		dirHash, found, err = findSubtree(ctx, repo, tree, joinPath(parts[:len(parts)-1]...))
		if err != nil || !found {
			return hash.Hash{}, false, err
		}
	}
	t, err := repo.ReadTree(ctx, dirHash)
	if err != nil {
		return hash.Hash{}, false, err
	}
	entry, ok := findEntry(t.Entries, parts[len(parts)-1])
	if !ok || !entry.Mode.IsFile() {
		return hash.Hash{}, false, nil
	}
	return hash.FromBytes(entry.Hash[:]), true, nil
}

// walkMetaBlobs recursively visits every blob under root, calling fn with
// its path relative to root.
func walkMetaBlobs(ctx context.Context, repo *objstore.Repository, root hash.Hash, prefix string, fn func(string) error) error {
	t, err := repo.ReadTree(ctx, root)
	if err != nil {
		return err
	}
	for _, entry := range t.Entries {
		name := entry.Name
		if prefix != "" {
			name = prefix + "/" + entry.Name
		}
		if !entry.Mode.IsFile() {
			if err := walkMetaBlobs(ctx, repo, hash.FromBytes(entry.Hash[:]), name, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

func findEntry(entries []object.TreeEntry, name string) (object.TreeEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return object.TreeEntry{}, false
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
