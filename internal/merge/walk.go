package merge

import (
	"context"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

// flattenTree recursively reads a tree and returns every blob's full
// repo-relative path mapped to its hash, mirroring internal/diff's own
// tree-flattening walk (the two packages flatten independently since
// neither exports the helper, but the approach — and the fact that
// unchanged subtrees are still fully read rather than skipped by some
// hash-equality short-circuit — is deliberately identical).
func flattenTree(ctx context.Context, repo *objstore.Repository, root hash.Hash) (map[string]hash.Hash, error) {
	out := map[string]hash.Hash{}
	if root.IsEmpty() {
		return out, nil
	}
	if err := flattenInto(ctx, repo, root, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(ctx context.Context, repo *objstore.Repository, treeHash hash.Hash, prefix string, out map[string]hash.Hash) error {
	tree, err := repo.ReadTree(ctx, treeHash)
	if err != nil {
		return err
	}
	for _, entry := range tree.Entries {
		path := entry.Name
		if prefix != "" {
			path = prefix + "/" + entry.Name
		}
		h := hash.FromBytes(entry.Hash[:])
		if entry.Mode.IsFile() {
			out[path] = h
			continue
		}
		if err := flattenInto(ctx, repo, h, path, out); err != nil {
			return err
		}
	}
	return nil
}
