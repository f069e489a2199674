// Command kart is the CLI surface over the core: it resolves a
// repository from the current directory, opens the object store and the
// configured working copy (SQLite/GPKG or PostGIS), and drives the dataset, diff, merge and
// annotations packages on the caller's behalf. It owns no domain logic of
// its own beyond argument parsing, output formatting and exit-code
// translation.
package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kartrepo"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
	"github.com/kart-vcs/kart/internal/workingcopy"
	"github.com/kart-vcs/kart/internal/workingcopy/pgwc"
	"github.com/kart-vcs/kart/internal/workingcopy/sqlitewc"
)

// defaultRefName is the branch ref every command operates against. A full
// branch-management surface (creating/deleting/listing refs) is out of
// scope; `checkout`/`switch` still work against arbitrary commits, they
// just always leave defaultRefName pointing at the result.
const defaultRefName = "refs/heads/main"

// repoCtx bundles everything a leaf command needs once a repository has
// been located: the object store, its handle, and an opened working copy
// primed with every table dataset reachable from the working copy's
// recorded base tree.
type repoCtx struct {
	ctx    context.Context
	repo   *objstore.Repository
	handle *kartrepo.Handle
	wc     workingcopy.Driver
}

func workingCopyPath(h *kartrepo.Handle) string {
	return filepath.Join(h.WorkDir, "working-copy.gpkg")
}

// openWorkingCopy opens this repository's configured working-copy backend,
// defaulting to the GPKG/SQLite driver when no config exists yet (a fresh
// `kart init` with no `kart config` run against it) or a config exists but
// names the gpkg backend explicitly. A postgres-kind config dispatches to
// pgwc instead, using WorkingCopyLocation as the connection string.
func openWorkingCopy(h *kartrepo.Handle, repo *objstore.Repository) (workingcopy.Driver, bool, error) {
	cfg, err := kartrepo.Load(h.PrivateDir)
	if err != nil {
		cfg = kartrepo.DefaultConfig()
	}

	switch cfg.WorkingCopyKind {
	case kartrepo.WorkingCopyPostgres:
		if cfg.WorkingCopyLocation == "" {
			return nil, false, kerr.New(kerr.InvalidOperation, "postgres working copy configured with no location")
		}
		wc, err := pgwc.Open(cfg.WorkingCopyLocation, repo, defaultRefName)
		if err != nil {
			return nil, false, err
		}
		wc.SetAuthor(commitAuthor())
		return wc, true, nil
	default:
		if _, err := os.Stat(workingCopyPath(h)); err != nil {
			return nil, false, nil
		}
		wc, err := sqlitewc.Open(workingCopyPath(h), repo, defaultRefName)
		if err != nil {
			return nil, false, err
		}
		wc.SetAuthor(commitAuthor())
		return wc, true, nil
	}
}

// createWorkingCopy opens (creating if necessary) this repository's
// configured working-copy backend, for use by checkout/clone when there is
// no existing working copy to detect yet.
func createWorkingCopy(h *kartrepo.Handle, repo *objstore.Repository) (workingcopy.Driver, error) {
	cfg, err := kartrepo.Load(h.PrivateDir)
	if err != nil {
		cfg = kartrepo.DefaultConfig()
	}

	if cfg.WorkingCopyKind == kartrepo.WorkingCopyPostgres {
		if cfg.WorkingCopyLocation == "" {
			return nil, kerr.New(kerr.InvalidOperation, "postgres working copy configured with no location")
		}
		wc, err := pgwc.Open(cfg.WorkingCopyLocation, repo, defaultRefName)
		if err != nil {
			return nil, err
		}
		wc.SetAuthor(commitAuthor())
		return wc, nil
	}

	wc, err := sqlitewc.Open(workingCopyPath(h), repo, defaultRefName)
	if err != nil {
		return nil, err
	}
	wc.SetAuthor(commitAuthor())
	return wc, nil
}

// openRepoCtx discovers the enclosing repository, opens its object store
// and, if present, its working copy.
func openRepoCtx(ctx context.Context) (*repoCtx, error) {
	h, err := kartrepo.Discover(".")
	if err != nil {
		return nil, err
	}
	repo, err := objstore.Open(h)
	if err != nil {
		return nil, err
	}
	rc := &repoCtx{ctx: ctx, repo: repo, handle: h}

	if h.Layout == kartrepo.Tidy {
		wc, present, err := openWorkingCopy(h, repo)
		if err != nil {
			return nil, err
		}
		if present {
			rc.wc = wc
		}
	}
	return rc, nil
}

func (rc *repoCtx) close() {
	if rc.wc != nil {
		if c, ok := rc.wc.(interface{ Close() error }); ok {
			c.Close()
		}
	}
}

// headCommit resolves the branch ref's current commit, or the empty hash
// for a freshly-initialised repository with no commits yet.
func (rc *repoCtx) headCommit() (hash.Hash, error) {
	h, err := rc.repo.ResolveRef(defaultRefName)
	if err != nil {
		return hash.Hash{}, nil
	}
	return h, nil
}

func (rc *repoCtx) headTree() (hash.Hash, error) {
	c, err := rc.headCommit()
	if err != nil || c.IsEmpty() {
		return hash.Hash{}, err
	}
	commit, err := rc.repo.ReadCommit(rc.ctx, c)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.FromBytes(commit.TreeHash[:]), nil
}

// commitAuthor builds a signature from GIT_AUTHOR_*/GIT_COMMITTER_* the
// way the external layout commands expect, falling back to a generic
// identity when neither is set.
func commitAuthor() objstore.Signature {
	name := firstNonEmpty(os.Getenv("GIT_AUTHOR_NAME"), os.Getenv("GIT_COMMITTER_NAME"), "Kart")
	email := firstNonEmpty(os.Getenv("GIT_AUTHOR_EMAIL"), os.Getenv("GIT_COMMITTER_EMAIL"), "kart@localhost")
	return objstore.Signature{Name: name, Email: email}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// discoverTableDatasets walks tree's top-level entries and returns every
// table dataset it finds, schema included, skipping point-cloud/raster
// datasets (sqlitewc only supports tabular data).
func discoverTableDatasets(ctx context.Context, repo *objstore.Repository, tree hash.Hash) ([]workingcopy.DatasetSchema, error) {
	if tree.IsEmpty() {
		return nil, nil
	}
	t, err := repo.ReadTree(ctx, tree)
	if err != nil {
		return nil, err
	}

	var out []workingcopy.DatasetSchema
	for _, entry := range t.Entries {
		if entry.Mode.IsFile() {
			continue
		}
		subtree := hash.FromBytes(entry.Hash[:])
		datasets, err := findDatasetsUnder(ctx, repo, tree, entry.Name, subtree)
		if err != nil {
			return nil, err
		}
		out = append(out, datasets...)
	}
	return out, nil
}

// findDatasetsUnder walks the subtree at (path, subtree), looking up any
// table dataset's schema.json against root: meta-item paths are always
// resolved from the repository root, not from the subtree being walked.
func findDatasetsUnder(ctx context.Context, repo *objstore.Repository, root hash.Hash, path string, subtree hash.Hash) ([]workingcopy.DatasetSchema, error) {
	t, err := repo.ReadTree(ctx, subtree)
	if err != nil {
		return nil, err
	}

	var out []workingcopy.DatasetSchema
	for _, entry := range t.Entries {
		if entry.Mode.IsFile() {
			continue
		}
		if kind, version, ok := dataset.FindMarker(entry.Name); ok {
			if kind != dataset.KindTable {
				continue
			}
			ds := dataset.Dataset{Path: path, Kind: kind, Version: version}
			raw, found, err := dataset.GetMetaItem(ctx, repo, ds, root, "schema.json")
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, kerr.New(kerr.IntegrityError, "%s: table dataset has no schema.json", path)
			}
			schema, err := dataset.DecodeSchema(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, workingcopy.DatasetSchema{Dataset: ds, Schema: schema})
			continue
		}
		childPath := strings.TrimPrefix(path+"/"+entry.Name, "/")
		children, err := findDatasetsUnder(ctx, repo, root, childPath, hash.FromBytes(entry.Hash[:]))
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}
