// Package workingcopy defines the reconciler contract shared by every
// working-copy backend (GPKG/SQLite in sqlitewc, PostGIS in pgwc) and the
// pieces of that contract that don't vary by backend: schema-aware
// column typing and migration, and the shared shape of the dirty-tracking
// model.
package workingcopy

import (
	"context"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
)

// Driver is satisfied by every working-copy backend. The core (reset,
// status, diff, commit) talks to a repository only through this
// interface; it never knows whether the backing store is a GPKG file or a
// PostGIS database.
type Driver interface {
	// Create initialises user tables and Kart's own tracking tables for
	// the given datasets, seeded from tree. Creating the tables and
	// recording tree is one transaction; the rows are loaded after it
	// commits, so a failure while loading leaves the tables in place,
	// partly filled.
	Create(ctx context.Context, tree hash.Hash, datasets []DatasetSchema) error

	// Reset makes the user-visible state equal tree's for the datasets
	// and keys filter selects. If force is false and the dirty set
	// overlaps the reset scope, it fails with kerr.DirtyWorkingCopy
	// instead of discarding uncommitted edits.
	Reset(ctx context.Context, tree hash.Hash, filter diff.Filter, force bool) error

	// DiffToTree enumerates the dirty set and produces deltas against the
	// tree currently recorded as the working copy's base.
	DiffToTree(ctx context.Context) (diff.RepoDiff, error)

	// Commit drives the dataset codec to write new blobs for repoDiff,
	// flushes a new tree, writes a commit, advances the branch ref by
	// compare-and-swap, and clears the dirty set for the committed rows.
	// All-or-nothing: any failure leaves the working copy and the ref
	// unchanged.
	Commit(ctx context.Context, repoDiff diff.RepoDiff, message string) (hash.Hash, error)

	// AssertDBTreeMatch is the cheap integrity check fsck uses: it
	// confirms the working copy's recorded base tree equals tree,
	// without walking any rows.
	AssertDBTreeMatch(ctx context.Context, tree hash.Hash) error
}

// DatasetSchema pairs a dataset handle with the schema its features are
// encoded against, the unit Create/Reset operate over.
type DatasetSchema struct {
	Dataset dataset.Dataset
	Schema  dataset.Schema
}

// TrackedRow is one row a driver's dirty-tracking mechanism has flagged
// as touched since the last reset or commit.
type TrackedRow struct {
	DatasetPath string
	PKEncoded   string // base64url-encoded primary key, matching feature path Rest
}
