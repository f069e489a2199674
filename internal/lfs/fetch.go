package lfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/kerr"
)

// Fetcher retrieves the raw bytes of an LFS object from a remote, given
// its url. Production callers back this with an HTTP client; tests supply
// a stub.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// EnsureLocal returns the local cache path for oid, fetching it from url
// first if it isn't already cached. The downloaded content's hash is
// verified against oid before the tempfile is renamed into place; a
// mismatch is a permanent failure and is not retried. Transient fetch
// errors are retried with bounded exponential backoff.
func EnsureLocal(ctx context.Context, store *Store, fetcher Fetcher, oid string, size int64, url string) (string, error) {
	path, present, err := store.LocalPathOf(oid)
	if err != nil {
		return "", err
	}
	if present {
		return path, nil
	}
	if url == "" {
		return "", kerr.New(kerr.NotFound, "%s: object not cached and no source url given", oid)
	}

	hexDigest, err := stripPrefix(oid)
	if err != nil {
		return "", err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)

	operation := func() error {
		rc, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return err
		}
		defer rc.Close()

		if err := downloadAndVerify(rc, path, hexDigest, size); err != nil {
			if kerrErr, ok := err.(*kerr.Error); ok && kerrErr.Kind == kerr.IntegrityError {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return "", perm.Err
		}
		return "", kerr.Wrap(kerr.IntegrityError, err, "fetching LFS object %s", oid)
	}
	return path, nil
}

// downloadAndVerify streams rc to a tempfile beside dst, checks its size
// and hash, and renames it into place. A verify failure removes the
// tempfile and returns an IntegrityError, which the retry policy treats
// as permanent rather than retrying the same bad bytes.
func downloadAndVerify(rc io.Reader, dst, wantHex string, wantSize int64) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating LFS fan-out directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "fetch-*.tmp")
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating LFS download tempfile")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, rc)
	closeErr := tmp.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return kerr.Wrap(kerr.IntegrityError, closeErr, "closing LFS download tempfile")
	}
	if wantSize > 0 && n != wantSize {
		return kerr.New(kerr.IntegrityError, "size mismatch: got %d bytes, want %d", n, wantSize)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "re-reading LFS download")
	}
	gotHex := dataset.Sha256Hex(data)
	if gotHex != wantHex {
		return kerr.New(kerr.IntegrityError, "hash mismatch: got sha256:%s, want sha256:%s", gotHex, wantHex)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "placing fetched LFS object")
	}
	return nil
}
