package pgwc

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/diff"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/workingcopy"
)

// DiffToTree enumerates kart_track and produces a RepoDiff against the
// tree recorded in kart_state, mirroring sqlitewc's over-inclusive
// dirty-tracking contract: a row the triggers flagged but whose current
// value is byte-identical to what's recorded is dropped rather than
// surfaced as a no-op delta.
func (d *Driver) DiffToTree(ctx context.Context) (diff.RepoDiff, error) {
	var baseTreeStr string
	if err := d.db.QueryRowContext(ctx, `SELECT tree_id FROM kart_state WHERE id = 1`).Scan(&baseTreeStr); err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "reading working copy base tree")
	}
	baseTree, ok := hash.MaybeParse(baseTreeStr)
	if !ok && baseTreeStr != "" {
		return nil, kerr.New(kerr.IntegrityError, "%s: corrupt base tree id", baseTreeStr)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT dataset_path, pk FROM kart_track ORDER BY dataset_path, pk`)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "reading dirty set")
	}
	defer rows.Close()

	type tracked struct{ dsPath, pkText string }
	var tracks []tracked
	for rows.Next() {
		var t tracked
		if err := rows.Scan(&t.dsPath, &t.pkText); err != nil {
			return nil, kerr.Wrap(kerr.IntegrityError, err, "reading dirty set")
		}
		tracks = append(tracks, t)
	}
	rows.Close()

	out := diff.RepoDiff{}
	for _, t := range tracks {
		ds, known := d.schemas[t.dsPath]
		if !known {
			continue
		}
		delta, hasDelta, err := d.diffRow(ctx, ds, baseTree, t.pkText)
		if err != nil {
			return nil, err
		}
		if !hasDelta {
			continue
		}
		dd, ok := out[t.dsPath]
		if !ok {
			dd = &diff.DatasetDiff{Meta: diff.NewDeltaMap(), Feature: diff.NewDeltaMap(), Tile: diff.NewDeltaMap()}
			out[t.dsPath] = dd
		}
		dd.Feature.Put(delta)
	}
	return out, nil
}

func (d *Driver) diffRow(ctx context.Context, ds workingcopy.DatasetSchema, baseTree hash.Hash, pkText string) (diff.Delta, bool, error) {
	pkCol := ds.Schema.PKColumns()[0]
	table := tableName(ds.Dataset.Path)

	newFeature, newPresent, err := d.readRow(ctx, ds.Schema, table, pkCol, pkText)
	if err != nil {
		return diff.Delta{}, false, err
	}

	var pkValue interface{}
	if newPresent {
		pkValue = newFeature[pkCol.ID.String()]
	} else {
		pkValue, err = parsePKText(pkCol.DataType, pkText)
		if err != nil {
			return diff.Delta{}, false, err
		}
	}
	pkBytes, err := dataset.EncodePKValue(ds.Schema, dataset.Feature{pkCol.ID.String(): pkValue})
	if err != nil {
		return diff.Delta{}, false, err
	}
	rest := strings.TrimPrefix(dataset.FeaturePath(pkBytes), "feature/")

	oldBytes, oldPresent, err := d.readBlobForPath(ctx, baseTree, ds.Dataset.FullMarkerPath()+"/feature/"+rest)
	if err != nil {
		return diff.Delta{}, false, err
	}

	if !oldPresent && !newPresent {
		return diff.Delta{}, false, nil
	}

	var newBytes []byte
	if newPresent {
		newBytes, err = dataset.EncodeFeature(ds.Schema, newFeature)
		if err != nil {
			return diff.Delta{}, false, err
		}
	}
	if oldPresent && newPresent && string(oldBytes) == string(newBytes) {
		return diff.Delta{}, false, nil
	}

	status := diff.StatusOf(oldPresent, newPresent, false)
	delta := diff.Delta{Status: status, OldKey: rest, NewKey: rest}
	if oldPresent {
		delta.OldHash = hash.Of(oldBytes)
	}
	if newPresent {
		delta.NewHash = hash.Of(newBytes)
	}
	return delta, true, nil
}

func (d *Driver) readRow(ctx context.Context, schema dataset.Schema, table string, pkCol dataset.Column, pkText string) (dataset.Feature, bool, error) {
	valueCols := schema.ValueColumnsSortedByID()
	selectCols := []string{quoteIdent(pkCol.Name)}
	for _, c := range valueCols {
		selectCols = append(selectCols, quoteIdent(c.Name))
	}
	query := "SELECT " + strings.Join(selectCols, ", ") + " FROM " + quoteIdent(table) + " WHERE " + quoteIdent(pkCol.Name) + "::text = $1"

	dest := make([]interface{}, len(selectCols))
	for i := range dest {
		dest[i] = new(interface{})
	}
	row := d.db.QueryRowContext(ctx, query, pkText)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, kerr.Wrap(kerr.IntegrityError, err, "reading row from %s", table)
	}

	f := dataset.Feature{}
	f[pkCol.ID.String()] = *(dest[0].(*interface{}))
	for i, c := range valueCols {
		f[c.ID.String()] = *(dest[i+1].(*interface{}))
	}
	return f, true, nil
}

func (d *Driver) readBlobForPath(ctx context.Context, tree hash.Hash, fullPath string) ([]byte, bool, error) {
	if tree.IsEmpty() {
		return nil, false, nil
	}
	var found []byte
	var present bool
	err := workingcopy.WalkTree(ctx, d.repo, tree, func(b workingcopy.Blob) error {
		if present || b.Path != fullPath {
			return nil
		}
		data, err := d.repo.ReadBlob(ctx, b.Hash)
		if err != nil {
			return err
		}
		found, present = data, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return found, present, nil
}

func parsePKText(t dataset.DataType, text string) (interface{}, error) {
	switch t {
	case dataset.TypeInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, kerr.Wrap(kerr.IntegrityError, err, "%s: not a valid integer pk", text)
		}
		return n, nil
	case dataset.TypeFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, kerr.Wrap(kerr.IntegrityError, err, "%s: not a valid float pk", text)
		}
		return f, nil
	case dataset.TypeBoolean:
		return text != "0" && text != "f" && text != "false", nil
	default:
		return text, nil
	}
}
