package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/merge"
)

func mergePolicy(ff, noFF, ffOnly bool) merge.FFPolicy {
	switch {
	case ffOnly:
		return merge.FFOnly
	case noFF:
		return merge.NoFF
	default:
		return merge.FFAllowed
	}
}

func resolveKind(ancestor, ours, theirs, del bool, with string) merge.ResolutionKind {
	switch {
	case ancestor:
		return merge.ResolveAncestor
	case ours:
		return merge.ResolveOurs
	case theirs:
		return merge.ResolveTheirs
	case del:
		return merge.ResolveDelete
	case with != "":
		return merge.ResolveWith
	default:
		return merge.ResolveTheirs
	}
}

func cmdMerge(ctx context.Context, commitArg string, policy merge.FFPolicy, message string) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	ours, err := rc.headCommit()
	if err != nil {
		return err
	}
	if ours.IsEmpty() {
		return kerr.NoCommit("HEAD")
	}
	theirs, err := resolveRevision(rc.repo, commitArg)
	if err != nil {
		return err
	}
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", commitArg, defaultRefName)
	}

	result, err := merge.Start(ctx, rc.repo, rc.handle.PrivateDir, ours, theirs, policy, message, commitAuthor(), nowUnix())
	if err != nil {
		return err
	}

	switch result.Outcome {
	case merge.OutcomeUpToDate:
		fmt.Println("Already up to date.")
		return nil
	case merge.OutcomeFastForward:
		if err := rc.repo.UpdateRef(defaultRefName, result.Commit, ours); err != nil {
			return err
		}
		if rc.wc != nil {
			if err := checkoutTo(ctx, rc.repo, rc.handle, result.Commit); err != nil {
				return err
			}
		}
		fmt.Printf("Fast-forwarded to %s\n", result.Commit)
		return nil
	case merge.OutcomeMerged:
		if err := rc.repo.UpdateRef(defaultRefName, result.Commit, ours); err != nil {
			return err
		}
		if rc.wc != nil {
			if err := checkoutTo(ctx, rc.repo, rc.handle, result.Commit); err != nil {
				return err
			}
		}
		fmt.Printf("Merged into %s\n", result.Commit)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Automatic merge failed with %d conflict(s); resolve each with `kart resolve`; the merge commit is written once the last one is resolved.\n", len(result.State.Index.Conflicts))
		return kerr.HasConflicts(len(result.State.Index.Conflicts))
	}
}

func cmdConflicts(ctx context.Context) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	if !merge.InProgress(rc.handle.PrivateDir) {
		fmt.Println("No merge in progress.")
		return nil
	}
	state, err := merge.Load(rc.handle.PrivateDir)
	if err != nil {
		return err
	}
	for _, path := range state.Index.ConflictPaths() {
		c := state.Index.Conflicts[path]
		fmt.Printf("%s  %s\n", c.Category, path)
	}
	return nil
}

func cmdResolve(ctx context.Context, key string, kind merge.ResolutionKind, withFile string) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	var withBlob hash.Hash
	if kind == merge.ResolveWith {
		data, err := os.ReadFile(withFile)
		if err != nil {
			return kerr.Wrap(kerr.InvalidArgument, err, "reading %s", withFile)
		}
		withBlob, err = rc.repo.WriteBlob(ctx, data)
		if err != nil {
			return err
		}
	}

	state, err := merge.Resolve(rc.handle.PrivateDir, key, kind, withBlob)
	if err != nil {
		return err
	}
	if !state.Index.Resolved() {
		fmt.Printf("Resolved %s; %d conflict(s) remaining.\n", key, len(state.Index.Conflicts))
		return nil
	}

	commit, err := merge.Finalise(ctx, rc.repo, state, commitAuthor(), nowUnix())
	if err != nil {
		return err
	}
	ours, err := rc.headCommit()
	if err != nil {
		return err
	}
	if err := rc.repo.UpdateRef(defaultRefName, commit, ours); err != nil {
		return err
	}
	if rc.wc != nil {
		if err := checkoutTo(ctx, rc.repo, rc.handle, commit); err != nil {
			return err
		}
	}
	fmt.Printf("Merge finished: %s\n", commit)
	return nil
}
