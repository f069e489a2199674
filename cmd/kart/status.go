package main

import (
	"context"
	"fmt"
)

func cmdStatus(ctx context.Context) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	commit, err := rc.headCommit()
	if err != nil {
		return err
	}
	if commit.IsEmpty() {
		fmt.Println("No commits yet.")
	} else {
		fmt.Printf("HEAD at %s\n", commit)
	}

	if rc.wc == nil {
		fmt.Println("No working copy.")
		return nil
	}

	repoDiff, err := rc.wc.DiffToTree(ctx)
	if err != nil {
		return err
	}
	if repoDiff.Empty() {
		fmt.Println("Nothing to commit, working copy clean.")
		return nil
	}

	for dsPath, dd := range repoDiff {
		fmt.Printf("%s: %d uncommitted feature change(s)\n", dsPath, dd.Feature.Len())
	}
	return nil
}
