package main

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/annotations"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
)

// cmdBuildAnnotations precomputes and caches the exact feature-change count
// for every commit against its first parent, so that later `diff
// --only-feature-count` calls hit the cache instead of walking both trees.
// With allReachable it does this for every commit HEAD can reach; otherwise
// just HEAD itself.
func cmdBuildAnnotations(ctx context.Context, allReachable bool) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	head, err := rc.headCommit()
	if err != nil {
		return err
	}
	if head.IsEmpty() {
		return kerr.NoCommit("HEAD")
	}

	store, err := annotations.Open(rc.handle.PrivateDir)
	if err != nil {
		return err
	}
	defer store.Close()

	built := 0
	walk := func(c *object.Commit) (bool, error) {
		if len(c.ParentHashes) == 0 {
			return allReachable, nil
		}
		parentTree, err := treeOfCommit(ctx, rc.repo, hash.FromBytes(c.ParentHashes[0][:]))
		if err != nil {
			return false, err
		}
		commitTree := hash.FromBytes(c.TreeHash[:])
		if _, err := diff.FeatureCount(ctx, store, rc.repo, parentTree, commitTree, diff.MatchAllFilter); err != nil {
			return false, err
		}
		built++
		return allReachable, nil
	}

	if err := rc.repo.WalkCommits(ctx, head, walk); err != nil {
		return err
	}
	fmt.Printf("Built annotations for %d commit(s).\n", built)
	return nil
}
