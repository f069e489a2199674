package objstore

import (
	"os"
	"path/filepath"

	"github.com/dolthub/fslock"

	"github.com/kart-vcs/kart/internal/kerr"
)

// AdvisoryLock is an exclusive, process-level lock backed by an OS file
// lock. The merge engine holds it while Start, Resolve and Finalise change
// the merge state. The working-copy drivers do not take it: their Reset
// and Commit run without any lock.
type AdvisoryLock struct {
	path string
	lock *fslock.Lock
}

// NewAdvisoryLock prepares (without yet acquiring) a lock backed by a file
// at path.
func NewAdvisoryLock(path string) *AdvisoryLock {
	return &AdvisoryLock{path: path, lock: fslock.New(path)}
}

// Acquire blocks until the lock is held. Callers must call Release.
func (l *AdvisoryLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating lock directory")
	}
	if err := l.lock.Lock(); err != nil {
		return kerr.Wrap(kerr.InvalidOperation, err, "acquiring lock %s", l.path)
	}
	return nil
}

// TryAcquire attempts to acquire the lock without blocking, returning
// ok=false if another process already holds it.
func (l *AdvisoryLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, kerr.Wrap(kerr.IntegrityError, err, "creating lock directory")
	}
	err := l.lock.TryLock()
	if err == nil {
		return true, nil
	}
	if err == fslock.ErrLocked {
		return false, nil
	}
	return false, kerr.Wrap(kerr.InvalidOperation, err, "acquiring lock %s", l.path)
}

// Release drops the lock.
func (l *AdvisoryLock) Release() error {
	return l.lock.Unlock()
}

// lockedIndexContent is written to the private directory's "index" file so
// that a stray invocation of the real `git` binary refuses to operate on
// Kart's own object store as a working tree. A valid git index begins with the 4-byte signature "DIRC"
// followed by a version number; writing a version git does not understand
// (but that Kart itself never reads, since it never uses this file as a
// real index) makes `git status`/`git add`/etc bail out immediately rather
// than silently corrupting Kart's state.
var lockedIndexContent = []byte("DIRC\x00\x00\x00\xff\x00\x00\x00\x00kart: this is not a real git index; see KART_README.txt\n")

// WriteLockedIndexSentinel writes the sentinel "index" file described
// above into privateDir. It is idempotent.
func WriteLockedIndexSentinel(privateDir string) error {
	path := filepath.Join(privateDir, "index")
	if err := os.WriteFile(path, lockedIndexContent, 0o644); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "writing locked-index sentinel")
	}
	return nil
}
