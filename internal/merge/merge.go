package merge

import (
	"context"
	"path/filepath"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
)

// FFPolicy controls whether Start may, must, or must not fast-forward.
type FFPolicy int

const (
	FFAllowed FFPolicy = iota
	FFOnly
	NoFF
)

// Outcome classifies what Start actually did.
type Outcome int

const (
	OutcomeUpToDate Outcome = iota
	OutcomeFastForward
	OutcomeMerged
	OutcomeConflicts
)

// Result is what a merge attempt produced. Commit is set for
// OutcomeFastForward and OutcomeMerged; State is set for OutcomeConflicts.
// Start never moves a ref itself (matching WriteCommit's own contract) —
// the caller advances the branch ref once it has a Commit to point at.
type Result struct {
	Outcome Outcome
	Commit  hash.Hash
	State   *State
}

func lockPath(privateDir string) string {
	return filepath.Join(privateDir, "merge.lock")
}

// Start computes the merge of theirs into ours and either fast-forwards,
// writes a clean merge commit, or persists a MergeIndex and enters the
// RESOLVING state, per the CLEAN/RESOLVING state machine.
func Start(ctx context.Context, repo *objstore.Repository, privateDir string, ours, theirs hash.Hash, policy FFPolicy, message string, author objstore.Signature, when int64) (*Result, error) {
	if InProgress(privateDir) {
		return nil, kerr.MergeInProgress()
	}
	if ours.Equals(theirs) {
		return &Result{Outcome: OutcomeUpToDate}, nil
	}

	bases, err := repo.MergeBase(ctx, ours, theirs)
	if err != nil {
		return nil, err
	}
	if len(bases) == 0 {
		return nil, kerr.New(kerr.InvalidOperation, "no common ancestor between the two branches")
	}
	base := bases[0]

	if base.Equals(theirs) {
		return &Result{Outcome: OutcomeUpToDate}, nil
	}
	if base.Equals(ours) {
		if policy == NoFF {
			// fall through to a real (if trivial) merge commit below
		} else {
			return &Result{Outcome: OutcomeFastForward, Commit: theirs}, nil
		}
	} else if policy == FFOnly {
		return nil, kerr.CannotFastForward()
	}

	lock := objstore.NewAdvisoryLock(lockPath(privateDir))
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	idx, err := threeWayMerge(ctx, repo, base, ours, theirs)
	if err != nil {
		return nil, err
	}

	if idx.Resolved() {
		commit, err := writeTreeAndCommit(ctx, repo, idx, []hash.Hash{ours, theirs}, author, message, when)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeMerged, Commit: commit}, nil
	}

	state, err := begin(privateDir, ours, theirs, message, idx)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeConflicts, State: state}, nil
}

// Finalise writes the merge commit for a fully-resolved RESOLVING merge
// and clears the sentinels, returning to CLEAN. It does not advance any
// ref; the caller does that with the returned commit hash.
func Finalise(ctx context.Context, repo *objstore.Repository, s *State, author objstore.Signature, when int64) (hash.Hash, error) {
	if !s.Index.Resolved() {
		return hash.Hash{}, kerr.HasConflicts(len(s.Index.Conflicts))
	}

	lock := objstore.NewAdvisoryLock(lockPath(s.privateDir))
	if err := lock.Acquire(); err != nil {
		return hash.Hash{}, err
	}
	defer lock.Release()

	commit, err := writeTreeAndCommit(ctx, repo, s.Index, []hash.Hash{s.OursHead, s.TheirsHead}, author, s.Message, when)
	if err != nil {
		return hash.Hash{}, err
	}
	if err := removeSentinels(s.privateDir); err != nil {
		return hash.Hash{}, err
	}
	return commit, nil
}

// Resolve loads the in-progress merge, applies one resolution to the
// conflict at path, and persists the updated index, all under the merge
// advisory lock.
func Resolve(privateDir, path string, kind ResolutionKind, withBlob hash.Hash) (*State, error) {
	lock := objstore.NewAdvisoryLock(lockPath(privateDir))
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	s, err := Load(privateDir)
	if err != nil {
		return nil, err
	}
	if err := s.Index.Resolve(path, kind, withBlob); err != nil {
		return nil, err
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

func writeTreeAndCommit(ctx context.Context, repo *objstore.Repository, idx *Index, parents []hash.Hash, author objstore.Signature, message string, when int64) (hash.Hash, error) {
	tb, err := objstore.NewTreeBuilder(ctx, repo, hash.Hash{})
	if err != nil {
		return hash.Hash{}, err
	}
	for path, h := range idx.Entries {
		if err := tb.InsertBlob(ctx, path, h); err != nil {
			return hash.Hash{}, err
		}
	}
	newTree, err := tb.Flush(ctx)
	if err != nil {
		return hash.Hash{}, err
	}
	return repo.WriteCommit(ctx, newTree, parents, author, message, when)
}

// threeWayMerge flattens base/ours/theirs into path->blob maps and applies
// the trivial-merge-first rule from spec.md §4.6: a path where ours and
// theirs agree, or where one side matches base exactly, resolves without a
// conflict; everything else becomes a conflict candidate classified by
// which sides have (or lack) an entry.
func threeWayMerge(ctx context.Context, repo *objstore.Repository, base, ours, theirs hash.Hash) (*Index, error) {
	baseTree, err := treeOf(ctx, repo, base)
	if err != nil {
		return nil, err
	}
	oursTree, err := treeOf(ctx, repo, ours)
	if err != nil {
		return nil, err
	}
	theirsTree, err := treeOf(ctx, repo, theirs)
	if err != nil {
		return nil, err
	}

	basePaths, err := flattenTree(ctx, repo, baseTree)
	if err != nil {
		return nil, err
	}
	oursPaths, err := flattenTree(ctx, repo, oursTree)
	if err != nil {
		return nil, err
	}
	theirsPaths, err := flattenTree(ctx, repo, theirsTree)
	if err != nil {
		return nil, err
	}

	allPaths := map[string]struct{}{}
	for p := range basePaths {
		allPaths[p] = struct{}{}
	}
	for p := range oursPaths {
		allPaths[p] = struct{}{}
	}
	for p := range theirsPaths {
		allPaths[p] = struct{}{}
	}

	idx := NewIndex()
	for path := range allPaths {
		bHash, bOk := basePaths[path]
		oHash, oOk := oursPaths[path]
		tHash, tOk := theirsPaths[path]

		switch {
		case pathEqual(oOk, oHash, tOk, tHash):
			if oOk {
				idx.Put(path, oHash)
			}
		case pathEqual(oOk, oHash, bOk, bHash):
			if tOk {
				idx.Put(path, tHash)
			}
		case pathEqual(tOk, tHash, bOk, bHash):
			if oOk {
				idx.Put(path, oHash)
			}
		default:
			var anc, ov, tv *Variant
			if bOk {
				anc = &Variant{Blob: bHash}
			}
			if oOk {
				ov = &Variant{Blob: oHash}
			}
			if tOk {
				tv = &Variant{Blob: tHash}
			}
			vs := VariantSet{Ancestor: anc, Ours: ov, Theirs: tv}
			idx.AddConflict(path, Conflict{VariantSet: vs, Category: classifyCategory(vs)})
		}
	}

	return idx, nil
}

func pathEqual(aOk bool, aHash hash.Hash, bOk bool, bHash hash.Hash) bool {
	if aOk != bOk {
		return false
	}
	if !aOk {
		return true
	}
	return aHash.Equals(bHash)
}

func treeOf(ctx context.Context, repo *objstore.Repository, commitHash hash.Hash) (hash.Hash, error) {
	c, err := repo.ReadCommit(ctx, commitHash)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.FromBytes(c.TreeHash[:]), nil
}
