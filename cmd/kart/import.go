package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kartrepo"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
)

// cmdImport reads a CSV file and creates a new table dataset at datasetPath
// with one feature per row. Column types are inferred column-by-column: a
// column is TypeInteger if every row parses as one, TypeFloat if every row
// parses as a float, and TypeText otherwise. The pk column is always kept
// as TypeText unless every value in it parses as an integer, since an
// imported identifier column is more often an opaque code than a number.
func cmdImport(ctx context.Context, source, datasetPath, pkName string) error {
	f, err := os.Open(source)
	if err != nil {
		return kerr.Wrap(kerr.InvalidArgument, err, "opening %s", source)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return kerr.Wrap(kerr.InvalidArgument, err, "reading %s header", source)
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return kerr.Wrap(kerr.InvalidArgument, err, "reading %s", source)
		}
		rows = append(rows, row)
	}

	pkCol := -1
	for i, name := range header {
		if name == pkName {
			pkCol = i
		}
	}
	if pkCol == -1 {
		return kerr.New(kerr.InvalidArgument, "%s: no column named %q", source, pkName)
	}

	schema := inferSchema(header, rows, pkCol)

	h, err := kartrepo.Discover(".")
	if err != nil {
		return err
	}
	repo, err := objstore.Open(h)
	if err != nil {
		return err
	}

	head, err := repo.ResolveRef(defaultRefName)
	if err != nil {
		head = hash.Hash{}
	}
	baseTree, err := treeOfOptionalCommit(ctx, repo, head)
	if err != nil {
		return err
	}

	tb, err := objstore.NewTreeBuilder(ctx, repo, baseTree)
	if err != nil {
		return err
	}

	ds := dataset.Dataset{Path: datasetPath, Kind: dataset.KindTable, Version: 3}
	schemaData, err := dataset.EncodeSchema(schema)
	if err != nil {
		return err
	}
	if err := dataset.SetMetaItem(ctx, tb, ds, "schema.json", schemaData); err != nil {
		return err
	}
	if err := dataset.SetMetaItem(ctx, tb, ds, "title", []byte(datasetPath)); err != nil {
		return err
	}

	for _, row := range rows {
		feature := rowToFeature(schema, header, row)
		pkBytes, err := dataset.EncodePKValue(schema, feature)
		if err != nil {
			return err
		}
		data, err := dataset.EncodeFeature(schema, feature)
		if err != nil {
			return err
		}
		path := ds.FullMarkerPath() + "/" + dataset.FeaturePath(pkBytes)
		if err := tb.Insert(ctx, path, data); err != nil {
			return err
		}
	}

	newTree, err := tb.Flush(ctx)
	if err != nil {
		return err
	}
	var parents []hash.Hash
	if !head.IsEmpty() {
		parents = []hash.Hash{head}
	}
	commit, err := repo.WriteCommit(ctx, newTree, parents, commitAuthor(), fmt.Sprintf("Import %s into %s", source, datasetPath), nowUnix())
	if err != nil {
		return err
	}
	if err := repo.UpdateRef(defaultRefName, commit, head); err != nil {
		return err
	}
	fmt.Printf("Imported %d feature(s) into %s at %s\n", len(rows), datasetPath, commit)
	return nil
}

func treeOfOptionalCommit(ctx context.Context, repo *objstore.Repository, commit hash.Hash) (hash.Hash, error) {
	if commit.IsEmpty() {
		return hash.Hash{}, nil
	}
	return treeOfCommit(ctx, repo, commit)
}

func inferSchema(header []string, rows [][]string, pkCol int) dataset.Schema {
	cols := make([]dataset.Column, len(header))
	for i, name := range header {
		t := inferColumnType(rows, i)
		if i == pkCol && t != dataset.TypeInteger {
			t = dataset.TypeText
		}
		col := dataset.Column{ID: deterministicColumnID(name), Name: name, DataType: t}
		if i == pkCol {
			col.PKIndex = 1
		}
		cols[i] = col
	}
	return dataset.Schema{Columns: cols}
}

// deterministicColumnID derives a stable column UUID from its name so that
// re-importing the same CSV (schema unchanged, data updated) produces the
// same column identities rather than a fresh, unrelated set each time.
func deterministicColumnID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("kart-import-column:"+name))
}

func inferColumnType(rows [][]string, col int) dataset.DataType {
	sawInt, sawFloat := true, true
	for _, row := range rows {
		if col >= len(row) || row[col] == "" {
			continue
		}
		if _, err := strconv.ParseInt(row[col], 10, 64); err != nil {
			sawInt = false
		}
		if _, err := strconv.ParseFloat(row[col], 64); err != nil {
			sawFloat = false
		}
	}
	switch {
	case sawInt:
		return dataset.TypeInteger
	case sawFloat:
		return dataset.TypeFloat
	default:
		return dataset.TypeText
	}
}

func rowToFeature(schema dataset.Schema, header []string, row []string) dataset.Feature {
	f := dataset.Feature{}
	for i, col := range schema.Columns {
		if i >= len(row) || row[i] == "" {
			f[col.ID.String()] = nil
			continue
		}
		switch col.DataType {
		case dataset.TypeInteger:
			n, _ := strconv.ParseInt(row[i], 10, 64)
			f[col.ID.String()] = n
		case dataset.TypeFloat:
			v, _ := strconv.ParseFloat(row[i], 64)
			f[col.ID.String()] = v
		default:
			f[col.ID.String()] = row[i]
		}
	}
	return f
}
