// Package objstore is the object store adapter: it opens a
// content-addressed git object store in either the tidy or bare on-disk
// layout, and exposes blob/tree/commit/ref primitives to the rest of the
// core. It deliberately does not know anything about datasets, features or
// tiles — that's internal/dataset's job, built on top of this package.
package objstore

import (
	"context"
	"io"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kartrepo"
	"github.com/kart-vcs/kart/internal/kerr"
)

// treeCacheSize bounds the read-through tree cache below. Trees are small
// (a single dataset subtree or less), and a repository walk touches the
// same handful of upper-level trees repeatedly within one command, so a
// modest fixed size is enough to turn the repeated re-reads in
// TreeBuilder.descend/flushNode and a tree-diff walk into cache hits
// without holding an unbounded amount of decoded tree state in memory.
const treeCacheSize = 4096

// Repository is a handle onto an open object store. It wraps a go-git
// repository rather than reimplementing the content-addressed store or
// hashing scheme: we reuse the one git (via go-git) already provides.
type Repository struct {
	handle    *kartrepo.Handle
	git       *git.Repository
	fs        *filesystem.Storage
	treeCache *lru.Cache[hash.Hash, *object.Tree]
}

// Open opens an existing repository at the given located handle.
func Open(h *kartrepo.Handle) (*Repository, error) {
	dotGit := osfs.New(h.PrivateDir)
	storer := filesystem.NewStorage(dotGit, nil)

	repo, err := git.Open(storer, nil)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "opening object store at %s", h.PrivateDir)
	}
	cache, err := lru.New[hash.Hash, *object.Tree](treeCacheSize)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "creating tree cache")
	}
	return &Repository{handle: h, git: repo, fs: storer, treeCache: cache}, nil
}

// Init creates a brand-new, empty object store at the given handle's
// private directory, initialised bare (tidy-layout Kart repositories still
// initialise their private .kart directory as a bare store internally; the
// working directory around it is what makes the layout "tidy").
func Init(h *kartrepo.Handle) (*Repository, error) {
	dotGit := osfs.New(h.PrivateDir)
	storer := filesystem.NewStorage(dotGit, nil)

	repo, err := git.Init(storer, nil)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "initialising object store at %s", h.PrivateDir)
	}
	cache, err := lru.New[hash.Hash, *object.Tree](treeCacheSize)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "creating tree cache")
	}
	return &Repository{handle: h, git: repo, fs: storer, treeCache: cache}, nil
}

// Handle returns the located repository handle this store was opened from.
func (r *Repository) Handle() *kartrepo.Handle {
	return r.handle
}

// ReadBlob returns the raw content of the blob named by h.
func (r *Repository) ReadBlob(ctx context.Context, h hash.Hash) ([]byte, error) {
	obj, err := r.git.BlobObject(toPlumbing(h))
	if err != nil {
		return nil, kerr.Wrap(kerr.NotFound, err, "blob %s", h)
	}
	rc, err := obj.Reader()
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "opening blob %s", h)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "reading blob %s", h)
	}
	return data, nil
}

// WriteBlob stores data as a new blob and returns its hash. If a blob with
// the same content already exists, the store's content addressing makes
// this a no-op write of an identical object.
func (r *Repository) WriteBlob(ctx context.Context, data []byte) (hash.Hash, error) {
	obj := r.fs.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	w, err := obj.Writer()
	if err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "opening blob writer")
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "writing blob")
	}
	if err := w.Close(); err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "closing blob writer")
	}

	h, err := r.fs.SetEncodedObject(obj)
	if err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "storing blob")
	}
	return fromPlumbing(h), nil
}

// ReadTree returns the tree named by h, serving repeated lookups of the
// same tree (common while a TreeBuilder or a tree-diff walk repeatedly
// descends into unchanged subtrees) from an in-memory cache instead of
// re-reading and re-decoding the object every time.
func (r *Repository) ReadTree(ctx context.Context, h hash.Hash) (*object.Tree, error) {
	if t, ok := r.treeCache.Get(h); ok {
		return t, nil
	}
	t, err := r.git.TreeObject(toPlumbing(h))
	if err != nil {
		return nil, kerr.Wrap(kerr.NotFound, err, "tree %s", h)
	}
	r.treeCache.Add(h, t)
	return t, nil
}

// ReadCommit returns the commit named by h.
func (r *Repository) ReadCommit(ctx context.Context, h hash.Hash) (*object.Commit, error) {
	c, err := r.git.CommitObject(toPlumbing(h))
	if err != nil {
		return nil, kerr.Wrap(kerr.NotFound, err, "commit %s", h)
	}
	return c, nil
}

// Signature mirrors the GIT_AUTHOR_*/GIT_COMMITTER_* environment contract
// from the external layout commands expect, minus the timestamp (the
// caller passes that separately to WriteCommit).
type Signature struct {
	Name  string
	Email string
}

// WriteCommit creates a new commit object pointing at treeHash with the
// given parents, author and message, and returns its hash. It does not
// move any ref; advancing a branch is a separate, explicit UpdateRef call
// so that "no partial ref update is ever visible" holds even
// when a caller writes several commits before publishing one.
func (r *Repository) WriteCommit(ctx context.Context, treeHash hash.Hash, parents []hash.Hash, author Signature, message string, when int64) (hash.Hash, error) {
	sig := object.Signature{Name: author.Name, Email: author.Email, When: time.Unix(when, 0)}

	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     toPlumbing(treeHash),
		ParentHashes: make([]plumbing.Hash, len(parents)),
	}
	for i, p := range parents {
		commit.ParentHashes[i] = toPlumbing(p)
	}

	obj := r.fs.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "encoding commit")
	}
	h, err := r.fs.SetEncodedObject(obj)
	if err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "storing commit")
	}
	return fromPlumbing(h), nil
}

// UpdateRef performs a compare-and-swap update of a named reference: the
// write only succeeds if the ref currently points at expectedOld. When
// expectedOld is the empty hash the ref is written with no check of its
// current value, whether or not it exists. This is what makes "refs
// are advanced last ... no partial ref update is ever visible"
// an enforceable property rather than a convention.
func (r *Repository) UpdateRef(refName string, newHash hash.Hash, expectedOld hash.Hash) error {
	name := plumbing.ReferenceName(refName)
	newRef := plumbing.NewHashReference(name, toPlumbing(newHash))

	var oldRef *plumbing.Reference
	if !expectedOld.IsEmpty() {
		oldRef = plumbing.NewHashReference(name, toPlumbing(expectedOld))
	}

	if err := r.fs.CheckAndSetReference(newRef, oldRef); err != nil {
		return kerr.Wrap(kerr.InvalidOperation, err, "updating ref %s", refName)
	}
	return nil
}

// ResolveRef returns the commit hash a ref currently points at.
func (r *Repository) ResolveRef(refName string) (hash.Hash, error) {
	ref, err := r.git.Reference(plumbing.ReferenceName(refName), true)
	if err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.NotFound, err, "ref %s", refName)
	}
	return fromPlumbing(ref.Hash()), nil
}

// MergeBase returns the best common ancestor(s) of two commits, delegating
// to go-git's own merge-base walk rather than reimplementing
// lowest-common-ancestor search.
func (r *Repository) MergeBase(ctx context.Context, a, b hash.Hash) ([]hash.Hash, error) {
	ca, err := r.ReadCommit(ctx, a)
	if err != nil {
		return nil, err
	}
	cb, err := r.ReadCommit(ctx, b)
	if err != nil {
		return nil, err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "computing merge base")
	}
	out := make([]hash.Hash, len(bases))
	for i, c := range bases {
		out[i] = fromPlumbing(c.Hash)
	}
	return out, nil
}

// WalkCommits iterates the commit ancestry reachable from from, calling fn
// for each commit until it returns false or the history is exhausted.
func (r *Repository) WalkCommits(ctx context.Context, from hash.Hash, fn func(*object.Commit) (bool, error)) error {
	iter, err := r.git.Log(&git.LogOptions{From: toPlumbing(from)})
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "walking commits from %s", from)
	}
	defer iter.Close()

	for {
		c, err := iter.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return kerr.Wrap(kerr.IntegrityError, err, "walking commits")
		}
		cont, err := fn(c)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

func toPlumbing(h hash.Hash) plumbing.Hash {
	var ph plumbing.Hash
	s := h.String()
	if len(s) == 40 {
		return plumbing.NewHash(s)
	}
	// 32-byte LFS-style hashes never address git objects directly; callers
	// that reach here with one have a programming error.
	copy(ph[:], h.Prefix(20))
	return ph
}

func fromPlumbing(ph plumbing.Hash) hash.Hash {
	return hash.FromBytes(ph[:])
}
