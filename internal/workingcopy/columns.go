package workingcopy

import (
	"github.com/google/uuid"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/kerr"
)

// SQLType maps a dataset column type to the SQL type a driver's CREATE
// TABLE should declare. Both drivers currently in the pack (SQLite/GPKG
// and PostGIS) happen to agree on these names closely enough that one
// mapping serves both; a driver is free to translate further for its own
// dialect quirks.
func SQLType(t dataset.DataType) string {
	switch t {
	case dataset.TypeBoolean:
		return "BOOLEAN"
	case dataset.TypeInteger:
		return "BIGINT"
	case dataset.TypeFloat:
		return "DOUBLE PRECISION"
	case dataset.TypeText:
		return "TEXT"
	case dataset.TypeBlob:
		return "BLOB"
	case dataset.TypeDate:
		return "DATE"
	case dataset.TypeDateTime:
		return "TIMESTAMP"
	case dataset.TypeGeometry:
		return "GEOMETRY"
	default:
		return "TEXT"
	}
}

// ColumnChange classifies how a column moved between an old and new
// schema. Neither driver's Reset calls ClassifyColumnChange.
type ColumnChange int

const (
	ColumnUnchanged ColumnChange = iota
	ColumnAdded
	ColumnDropped
	ColumnWidened
	ColumnNarrowed
)

// widening ranks each type's storage width so two types can be compared
// for widen/narrow. Types outside this table (e.g. geometry, blob) are
// never considered widened: a type change into or out of them is
// classified as ColumnNarrowed.
var widening = map[dataset.DataType]int{
	dataset.TypeBoolean: 1,
	dataset.TypeInteger: 2,
	dataset.TypeFloat:   3,
	dataset.TypeText:    4,
}

// ClassifyColumnChange compares a column's declaration across two
// schemas, keyed by stable UUID rather than name so a rename is never
// mistaken for a drop-then-add.
func ClassifyColumnChange(old, new dataset.Schema, id uuid.UUID) (ColumnChange, error) {
	oldCol, oldOK := old.ColumnByID(id)
	newCol, newOK := new.ColumnByID(id)

	switch {
	case !oldOK && newOK:
		return ColumnAdded, nil
	case oldOK && !newOK:
		return ColumnDropped, nil
	case !oldOK && !newOK:
		return ColumnUnchanged, kerr.New(kerr.InvalidArgument, "column %s present in neither schema", id)
	case oldCol.DataType == newCol.DataType:
		return ColumnUnchanged, nil
	}

	oldRank, oldRanked := widening[oldCol.DataType]
	newRank, newRanked := widening[newCol.DataType]
	if oldRanked && newRanked {
		if newRank > oldRank {
			return ColumnWidened, nil
		}
		return ColumnNarrowed, nil
	}
	// A type change outside the ranked set (e.g. into/out of geometry)
	// is never an exact widen, so it is classified the same as a
	// narrowing.
	return ColumnNarrowed, nil
}
