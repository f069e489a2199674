package main

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/lfs"
)

func cmdLsFiles(ctx context.Context, rev string, all bool) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	if !all {
		commit, err := resolveRevision(rc.repo, rev)
		if err != nil {
			return err
		}
		tree, err := treeOfCommit(ctx, rc.repo, commit)
		if err != nil {
			return err
		}
		return printLsFiles(ctx, rc, tree)
	}

	head, err := rc.headCommit()
	if err != nil {
		return err
	}
	if head.IsEmpty() {
		return kerr.NoCommit("HEAD")
	}
	seen := map[string]bool{}
	return rc.repo.WalkCommits(ctx, head, func(c *object.Commit) (bool, error) {
		tree := hash.FromBytes(c.TreeHash[:])
		records, err := lfs.LsFiles(ctx, rc.repo, tree)
		if err != nil {
			return false, err
		}
		for _, rec := range records {
			if seen[rec.OID] {
				continue
			}
			seen[rec.OID] = true
			printRecord(rec)
		}
		return true, nil
	})
}

func printLsFiles(ctx context.Context, rc *repoCtx, tree hash.Hash) error {
	records, err := lfs.LsFiles(ctx, rc.repo, tree)
	if err != nil {
		return err
	}
	for _, rec := range records {
		printRecord(rec)
	}
	return nil
}

func printRecord(rec lfs.FileRecord) {
	fmt.Printf("%s  %10d  %s\n", rec.OID, rec.Size, rec.Path)
}
