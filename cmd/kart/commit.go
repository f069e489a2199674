package main

import (
	"context"
	"fmt"

	"github.com/kart-vcs/kart/internal/kerr"
)

func cmdCommit(ctx context.Context, message string) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()
	if rc.wc == nil {
		return kerr.New(kerr.InvalidOperation, "no working copy to commit")
	}

	repoDiff, err := rc.wc.DiffToTree(ctx)
	if err != nil {
		return err
	}
	if repoDiff.Empty() {
		return kerr.NoChanges()
	}

	commit, err := rc.wc.Commit(ctx, repoDiff, message)
	if err != nil {
		return err
	}
	fmt.Printf("[%s] %s\n", shortHash(commit.String()), message)
	return nil
}

func shortHash(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
