package main

import (
	"context"
	"fmt"

	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kartrepo"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
)

// resolveRevision accepts "HEAD" or a raw commit hash. A fuller revision
// grammar (refs, ancestry operators) is out of scope; every command that
// takes a commit argument goes through this one place.
func resolveRevision(repo *objstore.Repository, rev string) (hash.Hash, error) {
	if rev == "" || rev == "HEAD" {
		h, err := repo.ResolveRef(defaultRefName)
		if err != nil {
			return hash.Hash{}, kerr.NoCommit(rev)
		}
		return h, nil
	}
	h, ok := hash.MaybeParse(rev)
	if !ok {
		return hash.Hash{}, kerr.New(kerr.InvalidArgument, "%s: not a valid commit hash", rev)
	}
	if _, err := repo.ReadCommit(context.Background(), h); err != nil {
		return hash.Hash{}, kerr.NoCommit(rev)
	}
	return h, nil
}

func treeOfCommit(ctx context.Context, repo *objstore.Repository, commit hash.Hash) (hash.Hash, error) {
	if commit.IsEmpty() {
		return hash.Hash{}, nil
	}
	c, err := repo.ReadCommit(ctx, commit)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.FromBytes(c.TreeHash[:]), nil
}

// checkoutTo (re)creates the working copy from scratch at commit and
// advances the branch ref to point at it. Used by both `clone` (first
// checkout of a freshly-cloned store) and `checkout`.
func checkoutTo(ctx context.Context, repo *objstore.Repository, h *kartrepo.Handle, commit hash.Hash) error {
	tree, err := treeOfCommit(ctx, repo, commit)
	if err != nil {
		return err
	}
	datasets, err := discoverTableDatasets(ctx, repo, tree)
	if err != nil {
		return err
	}

	wc, err := createWorkingCopy(h, repo)
	if err != nil {
		return err
	}
	if c, ok := wc.(interface{ Close() error }); ok {
		defer c.Close()
	}

	if err := wc.Create(ctx, tree, datasets); err != nil {
		return err
	}
	return repo.UpdateRef(defaultRefName, commit, hash.Hash{})
}

func cmdCheckout(ctx context.Context, rev string) error {
	h, err := kartrepo.Discover(".")
	if err != nil {
		return err
	}
	repo, err := objstore.Open(h)
	if err != nil {
		return err
	}
	commit, err := resolveRevision(repo, rev)
	if err != nil {
		return err
	}
	if err := checkoutTo(ctx, repo, h, commit); err != nil {
		return err
	}
	fmt.Printf("Checked out %s\n", commit)
	return nil
}

// cmdSwitch behaves like checkout here: both fully recreate the working
// copy at the target commit. A real implementation would diff the two
// trees and apply only the delta to preserve uncommitted edits outside
// the moved paths; that refinement is future work, not a different
// operation.
func cmdSwitch(ctx context.Context, rev string) error {
	return cmdCheckout(ctx, rev)
}

func cmdRestore(ctx context.Context, paths []string) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()
	if rc.wc == nil {
		return kerr.New(kerr.InvalidOperation, "no working copy to restore")
	}

	tree, err := rc.headTree()
	if err != nil {
		return err
	}

	filter := diff.MatchAllFilter
	if len(paths) > 0 {
		filter = diff.Filter{Datasets: map[string]diff.DatasetFilter{}}
		for _, p := range paths {
			filter.Datasets[p] = diff.MatchAllDataset
		}
	}
	if err := rc.wc.Reset(ctx, tree, filter, true); err != nil {
		return err
	}
	fmt.Println("Restored.")
	return nil
}

func cmdReset(ctx context.Context, rev string, force bool) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()
	if rc.wc == nil {
		return kerr.New(kerr.InvalidOperation, "no working copy to reset")
	}

	commit, err := resolveRevision(rc.repo, rev)
	if err != nil {
		return err
	}
	tree, err := treeOfCommit(ctx, rc.repo, commit)
	if err != nil {
		return err
	}
	if err := rc.wc.Reset(ctx, tree, diff.MatchAllFilter, force); err != nil {
		return err
	}
	if err := rc.repo.UpdateRef(defaultRefName, commit, mustHead(rc)); err != nil {
		return err
	}
	fmt.Printf("Reset to %s\n", commit)
	return nil
}

func mustHead(rc *repoCtx) hash.Hash {
	h, err := rc.headCommit()
	if err != nil {
		return hash.Hash{}
	}
	return h
}
