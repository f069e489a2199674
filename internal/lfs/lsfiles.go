package lfs

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

// FileRecord is one tile pointer found by LsFiles.
type FileRecord struct {
	OID  string
	Size int64
	Path string
}

// LsFiles walks every blob reachable from root, decodes the tile pointers
// it finds, and returns one FileRecord per tile. Non-tile blobs and
// undecodable paths are skipped rather than erroring, since a repository
// may contain datasets LsFiles has no interest in.
func LsFiles(ctx context.Context, repo *objstore.Repository, root hash.Hash) ([]FileRecord, error) {
	var out []FileRecord
	if root.IsEmpty() {
		return out, nil
	}
	if err := walk(ctx, repo, root, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(ctx context.Context, repo *objstore.Repository, treeHash hash.Hash, prefix string, out *[]FileRecord) error {
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
		if !entry.Mode.IsFile() {
			if err := walk(ctx, repo, h, path, out); err != nil {
				return err
			}
			continue
		}

		decoded, err := dataset.DecodePath(path)
		if err != nil || decoded.Part != dataset.PartTile {
			continue
		}
		data, err := repo.ReadBlob(ctx, h)
		if err != nil {
			return err
		}
		ptr, err := dataset.DecodeTilePointer(data)
		if err != nil {
			continue
		}
		*out = append(*out, FileRecord{OID: ptr.OID, Size: ptr.Size, Path: path})
	}
	return nil
}

func entryHash(entry object.TreeEntry) hash.Hash {
	return hash.FromBytes(entry.Hash[:])
}
