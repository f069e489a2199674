package main

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
)

func cmdLog(ctx context.Context) error {
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

	return rc.repo.WalkCommits(ctx, head, func(c *object.Commit) (bool, error) {
		printCommit(hash.FromBytes(c.Hash[:]), c)
		return true, nil
	})
}

func cmdShow(ctx context.Context, rev string) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	commitHash, err := resolveRevision(rc.repo, rev)
	if err != nil {
		return err
	}
	c, err := rc.repo.ReadCommit(ctx, commitHash)
	if err != nil {
		return err
	}
	printCommit(commitHash, c)

	if len(c.ParentHashes) == 0 {
		return nil
	}
	parentCommit, err := rc.repo.ReadCommit(ctx, hash.FromBytes(c.ParentHashes[0][:]))
	if err != nil {
		return err
	}
	fromTree := hash.FromBytes(parentCommit.TreeHash[:])
	toTree := hash.FromBytes(c.TreeHash[:])

	repoDiff, err := diff.TreeDiff(ctx, rc.repo, fromTree, toTree, diff.MatchAllFilter)
	if err != nil {
		return err
	}
	printDiffText(repoDiff)
	return nil
}

func printCommit(h hash.Hash, c *object.Commit) {
	fmt.Printf("commit %s\n", h)
	fmt.Printf("Author: %s <%s>\n", c.Author.Name, c.Author.Email)
	fmt.Printf("Date:   %s\n\n", c.Author.When.Format("Mon Jan 2 15:04:05 2006 -0700"))
	fmt.Printf("    %s\n\n", c.Message)
}
