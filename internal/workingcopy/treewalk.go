package workingcopy

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

// Blob is one blob found while walking a tree: its full repo-relative
// path and its hash.
type Blob struct {
	Path string
	Hash hash.Hash
}

// WalkTree recursively visits every blob reachable from root, calling fn
// with its full path and hash. Used by drivers to populate user tables
// from a commit tree at Create/Reset time.
func WalkTree(ctx context.Context, repo *objstore.Repository, root hash.Hash, fn func(Blob) error) error {
	if root.IsEmpty() {
		return nil
	}
	return walkInto(ctx, repo, root, "", fn)
}

func walkInto(ctx context.Context, repo *objstore.Repository, treeHash hash.Hash, prefix string, fn func(Blob) error) error {
	tree, err := repo.ReadTree(ctx, treeHash)
	if err != nil {
		return err
	}
	for _, entry := range tree.Entries {
		path := entry.Name
		if prefix != "" {
			path = prefix + "/" + entry.Name
		}
		h := entryHash(entry)
		if entry.Mode.IsFile() {
			if err := fn(Blob{Path: path, Hash: h}); err != nil {
				return err
			}
			continue
		}
		if err := walkInto(ctx, repo, h, path, fn); err != nil {
			return err
		}
	}
	return nil
}

func entryHash(entry object.TreeEntry) hash.Hash {
	return hash.FromBytes(entry.Hash[:])
}
