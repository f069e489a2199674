package pgwc

import (
	"context"
	"strings"

	"github.com/lib/pq"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/workingcopy"
)

// populateFromTree bulk-loads ds's feature rows found in tree via
// Postgres's COPY FROM STDIN protocol (pq.CopyIn), rather than one INSERT
// per row: the initial checkout of a large dataset is exactly the case
// COPY exists for. filter, if non-nil, restricts which feature keys are
// loaded, used by Reset to honour a caller-supplied key filter.
func (d *Driver) populateFromTree(ctx context.Context, ds workingcopy.DatasetSchema, tree hash.Hash, filter *diff.DatasetFilter) error {
	if tree.IsEmpty() {
		return nil
	}
	pkCol := ds.Schema.PKColumns()[0]
	valueCols := ds.Schema.ValueColumnsSortedByID()
	table := tableName(ds.Dataset.Path)
	marker := ds.Dataset.FullMarkerPath()

	cols := make([]string, 0, len(valueCols)+1)
	cols = append(cols, pkCol.Name)
	for _, c := range valueCols {
		cols = append(cols, c.Name)
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "starting bulk load transaction for %s", ds.Dataset.Path)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, cols...))
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "preparing bulk load for %s", ds.Dataset.Path)
	}

	loadErr := workingcopy.WalkTree(ctx, d.repo, tree, func(b workingcopy.Blob) error {
		prefix := marker + "/feature/"
		if !strings.HasPrefix(b.Path, prefix) {
			return nil
		}
		rest := strings.TrimPrefix(b.Path, prefix)
		if filter != nil && !filter.Feature.Allows(rest) {
			return nil
		}
		pkBytes, err := dataset.DecodeFeatureKeyFromPath(rest)
		if err != nil {
			return err
		}
		data, err := d.repo.ReadBlob(ctx, b.Hash)
		if err != nil {
			return err
		}
		feature, err := dataset.DecodeFeature(ds.Schema, data)
		if err != nil {
			return err
		}
		pkValue, err := decodePKScalar(ds.Schema, pkCol, pkBytes)
		if err != nil {
			return err
		}

		vals := make([]interface{}, 0, len(cols))
		vals = append(vals, pkValue)
		for _, c := range valueCols {
			vals = append(vals, feature[c.ID.String()])
		}
		_, err = stmt.ExecContext(ctx, vals...)
		return err
	})
	if loadErr != nil {
		stmt.Close()
		return kerr.Wrap(kerr.IntegrityError, loadErr, "bulk loading %s", ds.Dataset.Path)
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return kerr.Wrap(kerr.IntegrityError, err, "flushing bulk load for %s", ds.Dataset.Path)
	}
	if err := stmt.Close(); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "closing bulk load for %s", ds.Dataset.Path)
	}
	if err := tx.Commit(); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "committing bulk load for %s", ds.Dataset.Path)
	}
	return nil
}

func decodePKScalar(schema dataset.Schema, col dataset.Column, pkBytes []byte) (interface{}, error) {
	f, err := dataset.DecodePKValue(schema, pkBytes)
	if err != nil {
		return nil, err
	}
	return f[col.ID.String()], nil
}
