package main

import (
	"context"
	"fmt"

	"github.com/kart-vcs/kart/internal/kerr"
)

// cmdFsck checks that the working copy's recorded base tree is HEAD's tree;
// it reads no user-table rows. It does not walk the object store itself:
// go-git's own storage layer already guarantees object-graph integrity, so
// the only integrity gap kart can introduce on top of it is the working
// copy drifting from its recorded base tree.
func cmdFsck(ctx context.Context) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	if rc.wc == nil {
		fmt.Println("No working copy to check.")
		return nil
	}

	tree, err := rc.headTree()
	if err != nil {
		return err
	}
	if err := rc.wc.AssertDBTreeMatch(ctx, tree); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "working copy does not match HEAD")
	}
	fmt.Println("Working copy matches HEAD.")
	return nil
}
