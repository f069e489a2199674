// Package lfs is the large-file-storage indirection used for tiles: a
// content-addressed object cache keyed by SHA-256, a pointer-file codec
// (delegated to internal/dataset, which owns the wire format), and a
// bounded worker pool for concurrent fetches.
package lfs

import (
	"os"
	"path/filepath"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/kerr"
)

// Store is the on-disk object cache rooted at <private-dir>/lfs/objects,
// laid out with the same two-level hex fan-out as git's own loose-object
// store.
type Store struct {
	root string
}

// Open returns a Store rooted under privateDir, creating the objects
// directory if it doesn't already exist.
func Open(privateDir string) (*Store, error) {
	root := filepath.Join(privateDir, "lfs", "objects")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "creating LFS object directory %s", root)
	}
	return &Store{root: root}, nil
}

// pathFor returns the on-disk path for a SHA-256 hex digest.
func (s *Store) pathFor(hexDigest string) (string, error) {
	rel, err := dataset.TilePathFor(hexDigest)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, rel), nil
}

// WriteObject stores data under its content hash and returns the oid
// ("sha256:<hex>") and size. Writing is a write-once no-op if the object
// is already cached: the caller's content-addressing guarantees any
// existing file at that path already has the right bytes.
func (s *Store) WriteObject(data []byte) (oid string, size int64, err error) {
	hexDigest := dataset.Sha256Hex(data)
	dst, err := s.pathFor(hexDigest)
	if err != nil {
		return "", 0, err
	}
	if _, statErr := os.Stat(dst); statErr == nil {
		return "sha256:" + hexDigest, int64(len(data)), nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, kerr.Wrap(kerr.IntegrityError, err, "creating LFS fan-out directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "obj-*.tmp")
	if err != nil {
		return "", 0, kerr.Wrap(kerr.IntegrityError, err, "creating LFS tempfile")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", 0, kerr.Wrap(kerr.IntegrityError, err, "writing LFS tempfile")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, kerr.Wrap(kerr.IntegrityError, err, "closing LFS tempfile")
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", 0, kerr.Wrap(kerr.IntegrityError, err, "placing LFS object")
	}
	return "sha256:" + hexDigest, int64(len(data)), nil
}

// LocalPathOf returns the cache path an oid would occupy, and whether the
// object is actually present there. It never fetches.
func (s *Store) LocalPathOf(oid string) (path string, present bool, err error) {
	hexDigest, err := stripPrefix(oid)
	if err != nil {
		return "", false, err
	}
	path, err = s.pathFor(hexDigest)
	if err != nil {
		return "", false, err
	}
	_, statErr := os.Stat(path)
	return path, statErr == nil, nil
}

func stripPrefix(oid string) (string, error) {
	const prefix = "sha256:"
	if len(oid) <= len(prefix) || oid[:len(prefix)] != prefix {
		return "", kerr.New(kerr.InvalidArgument, "%s: not a sha256 oid", oid)
	}
	return oid[len(prefix):], nil
}
