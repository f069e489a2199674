package main

import (
	"context"
	"fmt"
	"os"

	"github.com/attic-labs/kingpin"

	"github.com/kart-vcs/kart/internal/kartlog"
	"github.com/kart-vcs/kart/internal/kerr"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	app := kingpin.New("kart", "Version control for tabular and geospatial data.")
	verbose := app.Flag("verbose", "Show debug-level logging.").Short('v').Bool()

	initCmd := app.Command("init", "Create a new repository.")
	initDir := initCmd.Arg("directory", "Directory to create the repository in.").Default(".").String()

	cloneCmd := app.Command("clone", "Clone a repository into a new directory.")
	cloneURL := cloneCmd.Arg("url", "Repository to clone.").Required().String()
	cloneDir := cloneCmd.Arg("directory", "Directory to clone into.").String()

	importCmd := app.Command("import", "Import a CSV file as a new table dataset.")
	importSource := importCmd.Arg("source", "CSV file to import.").Required().String()
	importDataset := importCmd.Arg("dataset", "Dataset path to create.").Required().String()
	importPK := importCmd.Flag("pk", "Name of the column to use as the primary key.").Default("id").String()

	statusCmd := app.Command("status", "Show the working copy status.")

	diffCmd := app.Command("diff", "Show changes between two commits, or the working copy and HEAD.")
	diffOutput := diffCmd.Flag("output", "Output format: text|json.").Default("text").String()
	diffCountMode := diffCmd.Flag("only-feature-count", "Report only a feature count: exact|fast.").String()
	diffRevs := diffCmd.Arg("revisions", "Zero or two commits to compare (default: working copy vs HEAD).").Strings()

	commitCmd := app.Command("commit", "Record changes to the repository.")
	commitMessage := commitCmd.Flag("message", "Commit message.").Short('m').Required().String()

	logCmd := app.Command("log", "Show commit history.")

	showCmd := app.Command("show", "Show a commit.")
	showRev := showCmd.Arg("commit", "Commit to show.").Default("HEAD").String()

	checkoutCmd := app.Command("checkout", "Check out a commit into the working copy.")
	checkoutRev := checkoutCmd.Arg("commit", "Commit to check out.").Required().String()

	switchCmd := app.Command("switch", "Switch the working copy to another commit, keeping it up to date.")
	switchRev := switchCmd.Arg("commit", "Commit to switch to.").Required().String()

	restoreCmd := app.Command("restore", "Restore working copy paths to their committed state.")
	restorePaths := restoreCmd.Arg("paths", "Dataset paths to restore (default: everything).").Strings()

	resetCmd := app.Command("reset", "Reset the working copy to a commit.")
	resetRev := resetCmd.Arg("commit", "Commit to reset to.").Default("HEAD").String()
	resetForce := resetCmd.Flag("force", "Discard uncommitted edits instead of refusing.").Bool()

	mergeCmd := app.Command("merge", "Merge another commit into the current branch.")
	mergeCommitArg := mergeCmd.Arg("commit", "Commit to merge.").Required().String()
	mergeFF := mergeCmd.Flag("ff", "Fast-forward when possible (default).").Bool()
	mergeNoFF := mergeCmd.Flag("no-ff", "Always create a merge commit.").Bool()
	mergeFFOnly := mergeCmd.Flag("ff-only", "Refuse to merge unless a fast-forward is possible.").Bool()
	mergeMessage := mergeCmd.Flag("message", "Merge commit message.").Short('m').String()

	conflictsCmd := app.Command("conflicts", "List unresolved merge conflicts.")

	resolveCmd := app.Command("resolve", "Resolve a merge conflict.")
	resolveKey := resolveCmd.Arg("key", "Conflicting path to resolve.").Required().String()
	resolveAncestor := resolveCmd.Flag("ancestor", "Resolve using the common ancestor's version.").Bool()
	resolveOurs := resolveCmd.Flag("ours", "Resolve using our version.").Bool()
	resolveTheirs := resolveCmd.Flag("theirs", "Resolve using their version.").Bool()
	resolveDelete := resolveCmd.Flag("delete", "Resolve by deleting the path.").Bool()
	resolveWith := resolveCmd.Flag("with", "Resolve using the content of this file.").String()

	fsckCmd := app.Command("fsck", "Check that the working copy's recorded base tree matches HEAD.")

	annotationsCmd := app.Command("build-annotations", "Precompute and cache derived diff annotations.")
	annotationsAll := annotationsCmd.Flag("all-reachable", "Build annotations for every reachable commit, not just HEAD.").Bool()

	lfsCmd := app.Command("lfs+", "LFS-adjacent plumbing commands.")
	lfsLsFiles := lfsCmd.Command("ls-files", "List the LFS-tracked tile files reachable from a commit.")
	lfsRange := lfsLsFiles.Arg("range", "Commit to list files for (default: HEAD).").String()
	lfsAll := lfsLsFiles.Flag("all", "List files across every reachable commit.").Bool()

	cmdStr, err := app.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return kerr.ExitInvalidArg
	}
	kartlog.SetVerbose(*verbose)

	ctx := context.Background()

	switch cmdStr {
	case initCmd.FullCommand():
		err = cmdInit(ctx, *initDir)
	case cloneCmd.FullCommand():
		err = cmdClone(ctx, *cloneURL, *cloneDir)
	case importCmd.FullCommand():
		err = cmdImport(ctx, *importSource, *importDataset, *importPK)
	case statusCmd.FullCommand():
		err = cmdStatus(ctx)
	case diffCmd.FullCommand():
		err = cmdDiff(ctx, *diffOutput, *diffCountMode, *diffRevs)
	case commitCmd.FullCommand():
		err = cmdCommit(ctx, *commitMessage)
	case logCmd.FullCommand():
		err = cmdLog(ctx)
	case showCmd.FullCommand():
		err = cmdShow(ctx, *showRev)
	case checkoutCmd.FullCommand():
		err = cmdCheckout(ctx, *checkoutRev)
	case switchCmd.FullCommand():
		err = cmdSwitch(ctx, *switchRev)
	case restoreCmd.FullCommand():
		err = cmdRestore(ctx, *restorePaths)
	case resetCmd.FullCommand():
		err = cmdReset(ctx, *resetRev, *resetForce)
	case mergeCmd.FullCommand():
		err = cmdMerge(ctx, *mergeCommitArg, mergePolicy(*mergeFF, *mergeNoFF, *mergeFFOnly), *mergeMessage)
	case conflictsCmd.FullCommand():
		err = cmdConflicts(ctx)
	case resolveCmd.FullCommand():
		err = cmdResolve(ctx, *resolveKey, resolveKind(*resolveAncestor, *resolveOurs, *resolveTheirs, *resolveDelete, *resolveWith), *resolveWith)
	case fsckCmd.FullCommand():
		err = cmdFsck(ctx)
	case annotationsCmd.FullCommand():
		err = cmdBuildAnnotations(ctx, *annotationsAll)
	case lfsLsFiles.FullCommand():
		err = cmdLsFiles(ctx, *lfsRange, *lfsAll)
	default:
		fmt.Fprintf(os.Stderr, "kart: unknown command %q\n", cmdStr)
		return kerr.ExitInvalidArg
	}

	return reportErr(err)
}

// reportErr prints err (if any) and returns the exit code it maps to.
func reportErr(err error) int {
	if err == nil {
		return 0
	}
	if ke, ok := err.(*kerr.Error); ok {
		fmt.Fprintln(os.Stderr, colorError(ke.Error()))
		return ke.ExitCode()
	}
	fmt.Fprintln(os.Stderr, colorError(err.Error()))
	return 1
}
