package sqlitewc

import (
	"context"
	"database/sql"

	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
)

// Reset makes every tracked dataset's table match tree. Datasets not
// already known to this Driver (from Create) are left untouched: adding
// or dropping whole datasets goes through Create, not Reset.
func (d *Driver) Reset(ctx context.Context, tree hash.Hash, filter diff.Filter, force bool) error {
	if !force {
		dirty, err := d.dirtyDatasetsInScope(ctx, filter)
		if err != nil {
			return err
		}
		if len(dirty) > 0 {
			return kerr.DirtyWorkingCopy(dirty[0])
		}
	}

	if err := d.setTrackingSuspended(ctx, true); err != nil {
		return err
	}
	defer d.setTrackingSuspended(ctx, false)

	for path, ds := range d.schemas {
		dsFilter, inScope := filter.ForDataset(path)
		if !inScope {
			continue
		}
		table := tableName(path)
		if _, err := d.db.ExecContext(ctx, `DELETE FROM `+quoteIdent(table)); err != nil {
			return kerr.Wrap(kerr.IntegrityError, err, "clearing table for %s", path)
		}
		if err := d.populateFromTree(ctx, ds, tree, &dsFilter); err != nil {
			return err
		}
		if _, err := d.db.ExecContext(ctx, `DELETE FROM kart_track WHERE dataset_path = ?`, path); err != nil {
			return kerr.Wrap(kerr.IntegrityError, err, "clearing dirty set for %s", path)
		}
	}

	if _, err := d.db.ExecContext(ctx, `UPDATE kart_state SET tree_id = ? WHERE id = 1`, tree.String()); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "recording new base tree")
	}
	return nil
}

func (d *Driver) setTrackingSuspended(ctx context.Context, suspended bool) error {
	val := 0
	if suspended {
		val = 1
	}
	_, err := d.db.ExecContext(ctx, `UPDATE kart_track_suspended SET suspended = ? WHERE id = 1`, val)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "toggling dirty-tracking suspension")
	}
	return nil
}

// dirtyDatasetsInScope returns dataset paths with tracked rows that
// filter selects, used to decide whether Reset without force must refuse.
func (d *Driver) dirtyDatasetsInScope(ctx context.Context, filter diff.Filter) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT dataset_path FROM kart_track`)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "reading dirty set")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, kerr.Wrap(kerr.IntegrityError, err, "reading dirty set")
		}
		if _, inScope := filter.ForDataset(path); inScope {
			out = append(out, path)
		}
	}
	return out, nil
}

// AssertDBTreeMatch is the cheap fsck check: it compares the recorded
// base tree without touching any user table.
func (d *Driver) AssertDBTreeMatch(ctx context.Context, tree hash.Hash) error {
	var recorded string
	err := d.db.QueryRowContext(ctx, `SELECT tree_id FROM kart_state WHERE id = 1`).Scan(&recorded)
	if err == sql.ErrNoRows {
		return kerr.New(kerr.IntegrityError, "working copy has no recorded base tree")
	}
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "reading working copy base tree")
	}
	if recorded != tree.String() {
		return kerr.New(kerr.IntegrityError, "working copy base tree %s does not match %s", recorded, tree.String())
	}
	return nil
}
