package dataset

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"github.com/kart-vcs/kart/internal/kerr"
)

// DataType is the set of primitive and extension column types the binary
// feature codec understands.
type DataType string

const (
	TypeBoolean  DataType = "boolean"
	TypeInteger  DataType = "integer"
	TypeFloat    DataType = "float"
	TypeText     DataType = "text"
	TypeBlob     DataType = "blob"
	TypeDate     DataType = "date"
	TypeDateTime DataType = "timestamp"
	TypeGeometry DataType = "geometry"
)

// Column is one schema column. Identity is its ID (a UUID), not its Name:
// renames preserve the ID, so schema diffing and merging key on ID rather
// than on the mutable display name.
type Column struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	DataType DataType  `json:"dataType"`
	// PKIndex is the column's 1-based position in a (possibly composite)
	// primary key, or 0 if the column isn't part of the primary key.
	// Concatenation order for multi-column keys follows this ordering.
	PKIndex int `json:"pkIndex,omitempty"`
	// Size/Length/GeometryType/etc. are free-form extra metadata that
	// round-trips through schema.json without affecting encoding.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Schema is a dataset's schema.json meta-item, decoded.
type Schema struct {
	Columns []Column `json:"columns"`
}

// EncodeSchema serialises a Schema to the bytes stored at meta/schema.json.
// JSON is the wire-mandated format, not a design choice, so the
// standard library encoder is used directly rather than a third-party
// codec.
func EncodeSchema(s Schema) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, kerr.Wrap(kerr.SchemaMismatch, err, "encoding schema.json")
	}
	return append(data, '\n'), nil
}

// DecodeSchema parses a schema.json meta-item.
func DecodeSchema(data []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, kerr.Wrap(kerr.SchemaMismatch, err, "decoding schema.json")
	}
	return s, nil
}

// ColumnByID returns the column with the given ID, if present.
func (s Schema) ColumnByID(id uuid.UUID) (Column, bool) {
	for _, c := range s.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnByName returns the column with the given name, if present. Callers
// that need rename-stable identity should prefer ColumnByID once they have
// resolved a name to an ID once.
func (s Schema) ColumnByName(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PKColumns returns the primary-key columns in concatenation order: the
// columns that carry a pk index, sorted by that index.
func (s Schema) PKColumns() []Column {
	pk := make([]Column, 0, 1)
	for _, c := range s.Columns {
		if c.PKIndex > 0 {
			pk = append(pk, c)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].PKIndex < pk[j].PKIndex })
	return pk
}

// ValueColumnsSortedByID returns the non-pk columns sorted by UUID, which
// is the stable, platform-independent column ordering the binary feature
// codec packs values in.
func (s Schema) ValueColumnsSortedByID() []Column {
	cols := make([]Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.PKIndex == 0 {
			cols = append(cols, c)
		}
	}
	sort.Slice(cols, func(i, j int) bool {
		return lessUUID(cols[i].ID, cols[j].ID)
	})
	return cols
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Validate checks the structural invariants a schema must satisfy before
// it can be used to encode/decode features: at least one pk column, no
// duplicate IDs, no duplicate pk indices.
func (s Schema) Validate() error {
	if len(s.PKColumns()) == 0 {
		return kerr.New(kerr.SchemaMismatch, "schema has no primary key column")
	}
	seen := map[uuid.UUID]bool{}
	seenPK := map[int]bool{}
	for _, c := range s.Columns {
		if seen[c.ID] {
			return kerr.New(kerr.SchemaMismatch, "duplicate column id %s", c.ID)
		}
		seen[c.ID] = true
		if c.PKIndex > 0 {
			if seenPK[c.PKIndex] {
				return kerr.New(kerr.SchemaMismatch, "duplicate pkIndex %d", c.PKIndex)
			}
			seenPK[c.PKIndex] = true
		}
	}
	return nil
}
