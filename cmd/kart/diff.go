package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kart-vcs/kart/internal/annotations"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/kerr"
)

// cmdDiff compares either two named commits (revs has two entries) or,
// with no revisions given, the working copy against HEAD. Only the
// two-commit form can consult the annotations cache: a feature count
// against the working copy has no stable (tree, tree) key to cache
// under, so that path always counts the dirty set directly.
func cmdDiff(ctx context.Context, output, countMode string, revs []string) error {
	rc, err := openRepoCtx(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	if len(revs) == 2 {
		return cmdDiffCommits(ctx, rc, revs[0], revs[1], output, countMode)
	}
	if len(revs) != 0 {
		return kerr.New(kerr.InvalidArgument, "diff takes zero or two commit arguments")
	}
	return cmdDiffWorkingCopy(ctx, rc, output, countMode)
}

func cmdDiffCommits(ctx context.Context, rc *repoCtx, fromRev, toRev, output, countMode string) error {
	from, err := resolveRevision(rc.repo, fromRev)
	if err != nil {
		return err
	}
	to, err := resolveRevision(rc.repo, toRev)
	if err != nil {
		return err
	}
	fromTree, err := treeOfCommit(ctx, rc.repo, from)
	if err != nil {
		return err
	}
	toTree, err := treeOfCommit(ctx, rc.repo, to)
	if err != nil {
		return err
	}

	if countMode != "" {
		if countMode != "exact" && countMode != "fast" {
			return kerr.New(kerr.InvalidArgument, "%s: --only-feature-count must be exact or fast", countMode)
		}
		store, err := annotations.Open(rc.handle.PrivateDir)
		if err != nil {
			return err
		}
		defer store.Close()
		n, err := diff.FeatureCount(ctx, store, rc.repo, fromTree, toTree, diff.MatchAllFilter)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	}

	repoDiff, err := diff.TreeDiff(ctx, rc.repo, fromTree, toTree, diff.MatchAllFilter)
	if err != nil {
		return err
	}
	if repoDiff.Empty() {
		return kerr.NoChanges()
	}
	return renderDiff(repoDiff, output)
}

func cmdDiffWorkingCopy(ctx context.Context, rc *repoCtx, output, countMode string) error {
	if rc.wc == nil {
		return kerr.New(kerr.InvalidOperation, "no working copy to diff")
	}
	repoDiff, err := rc.wc.DiffToTree(ctx)
	if err != nil {
		return err
	}
	if repoDiff.Empty() {
		return kerr.NoChanges()
	}

	if countMode != "" {
		if countMode != "exact" && countMode != "fast" {
			return kerr.New(kerr.InvalidArgument, "%s: --only-feature-count must be exact or fast", countMode)
		}
		n := 0
		for _, dd := range repoDiff {
			n += dd.Feature.Len()
		}
		fmt.Println(n)
		return nil
	}
	return renderDiff(repoDiff, output)
}

func renderDiff(repoDiff diff.RepoDiff, output string) error {
	switch output {
	case "json":
		return printDiffJSON(repoDiff)
	default:
		printDiffText(repoDiff)
		return nil
	}
}

func printDiffText(repoDiff diff.RepoDiff) {
	for dsPath, dd := range repoDiff {
		dd.Meta.Ascend(func(d diff.Delta) bool { printDelta(dsPath, "meta", d); return true })
		dd.Feature.Ascend(func(d diff.Delta) bool { printDelta(dsPath, "feature", d); return true })
		dd.Tile.Ascend(func(d diff.Delta) bool { printDelta(dsPath, "tile", d); return true })
	}
}

type jsonDelta struct {
	Status string `json:"status"`
	Key    string `json:"key"`
}

func printDiffJSON(repoDiff diff.RepoDiff) error {
	out := map[string]map[string][]jsonDelta{}
	for dsPath, dd := range repoDiff {
		parts := map[string][]jsonDelta{}
		for name, dm := range map[string]*diff.DeltaMap{"meta": dd.Meta, "feature": dd.Feature, "tile": dd.Tile} {
			var deltas []jsonDelta
			dm.Ascend(func(d diff.Delta) bool {
				deltas = append(deltas, jsonDelta{Status: string(d.Status), Key: d.Key()})
				return true
			})
			if len(deltas) > 0 {
				parts[name] = deltas
			}
		}
		out[dsPath] = parts
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
