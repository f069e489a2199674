package sqlitewc

import (
	"context"
	"strconv"
	"time"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
)

// Commit applies repoDiff's feature deltas (as produced by DiffToTree) on
// top of the working copy's recorded base tree, writes a new commit
// advancing refName, and clears the kart_track rows for whatever it just
// committed. The caller decides what subset of DiffToTree's result to
// pass in, so a partial commit (some tracked rows left dirty) is just a
// smaller repoDiff.
func (d *Driver) Commit(ctx context.Context, repoDiff diff.RepoDiff, message string) (hash.Hash, error) {
	var baseTreeStr string
	if err := d.db.QueryRowContext(ctx, `SELECT tree_id FROM kart_state WHERE id = 1`).Scan(&baseTreeStr); err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "reading working copy base tree")
	}
	baseTree, ok := hash.MaybeParse(baseTreeStr)
	if !ok && baseTreeStr != "" {
		return hash.Hash{}, kerr.New(kerr.IntegrityError, "%s: corrupt base tree id", baseTreeStr)
	}

	tb, err := objstore.NewTreeBuilder(ctx, d.repo, baseTree)
	if err != nil {
		return hash.Hash{}, err
	}

	type committedRow struct{ dsPath, pkText string }
	var committed []committedRow

	for dsPath, dd := range repoDiff {
		ds, known := d.schemas[dsPath]
		if !known {
			return hash.Hash{}, kerr.New(kerr.InvalidOperation, "%s: unknown dataset in commit diff", dsPath)
		}
		marker := ds.Dataset.FullMarkerPath()
		table := tableName(dsPath)
		pkCol := ds.Schema.PKColumns()[0]

		var applyErr error
		dd.Feature.Ascend(func(delta diff.Delta) bool {
			fullPath := marker + "/feature/" + delta.Key()

			var pkText string
			pkText, applyErr = pkTextFromFeaturePath(ds.Schema, pkCol, delta.Key())
			if applyErr != nil {
				return false
			}

			if delta.Status == diff.StatusDelete {
				applyErr = tb.Remove(ctx, fullPath)
			} else {
				var feature dataset.Feature
				feature, applyErr = d.readRowByPKText(ctx, ds.Schema, table, pkCol, pkText)
				if applyErr != nil {
					return false
				}
				var encoded []byte
				encoded, applyErr = dataset.EncodeFeature(ds.Schema, feature)
				if applyErr != nil {
					return false
				}
				applyErr = tb.Insert(ctx, fullPath, encoded)
			}
			if applyErr != nil {
				return false
			}
			committed = append(committed, committedRow{dsPath: dsPath, pkText: pkText})
			return true
		})
		if applyErr != nil {
			return hash.Hash{}, applyErr
		}
	}

	newTree, err := tb.Flush(ctx)
	if err != nil {
		return hash.Hash{}, err
	}

	parentHash, resolveErr := d.repo.ResolveRef(d.refName)
	var parents []hash.Hash
	expectedOld := hash.Hash{}
	if resolveErr == nil {
		parents = []hash.Hash{parentHash}
		expectedOld = parentHash
	}

	newCommit, err := d.repo.WriteCommit(ctx, newTree, parents, d.author, message, time.Now().Unix())
	if err != nil {
		return hash.Hash{}, err
	}

	// The working copy must be synchronised with newTree before the ref
	// moves: clearing kart_track and recording the new base tree happen in
	// one transaction first, so a failure here leaves the old ref and the
	// old (still-consistent) working copy state untouched. Only once that
	// transaction has actually committed does the ref advance, last.
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "starting commit-sync transaction")
	}
	defer tx.Rollback()

	for _, row := range committed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kart_track WHERE dataset_path = ? AND pk = ?`, row.dsPath, row.pkText); err != nil {
			return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "clearing dirty flag for %s/%s", row.dsPath, row.pkText)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE kart_state SET tree_id = ? WHERE id = 1`, newTree.String()); err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "recording new base tree after commit")
	}
	if err := tx.Commit(); err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "committing working copy sync")
	}

	if err := d.repo.UpdateRef(d.refName, newCommit, expectedOld); err != nil {
		return hash.Hash{}, err
	}
	return newCommit, nil
}

// pkTextFromFeaturePath recovers the pk column's TEXT form (matching what
// the tracking triggers record) from a feature delta's path key.
func pkTextFromFeaturePath(schema dataset.Schema, pkCol dataset.Column, rest string) (string, error) {
	pkBytes, err := dataset.DecodeFeatureKeyFromPath(rest)
	if err != nil {
		return "", err
	}
	f, err := dataset.DecodePKValue(schema, pkBytes)
	if err != nil {
		return "", err
	}
	return formatPKText(f[pkCol.ID.String()])
}

func formatPKText(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	default:
		return "", kerr.New(kerr.InvalidArgument, "unsupported primary key value type %T", v)
	}
}

func (d *Driver) readRowByPKText(ctx context.Context, schema dataset.Schema, table string, pkCol dataset.Column, pkText string) (dataset.Feature, error) {
	f, present, err := d.readRow(ctx, schema, table, pkCol, pkText)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, kerr.New(kerr.IntegrityError, "%s: row for pk %q vanished mid-commit", table, pkText)
	}
	return f, nil
}
