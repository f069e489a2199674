package diff

// DatasetDiff holds the per-part delta maps for one dataset. Table
// datasets populate Feature; tile datasets populate Tile; both populate
// Meta.
type DatasetDiff struct {
	Meta    *DeltaMap
	Feature *DeltaMap
	Tile    *DeltaMap
}

func newDatasetDiff() *DatasetDiff {
	return &DatasetDiff{Meta: NewDeltaMap(), Feature: NewDeltaMap(), Tile: NewDeltaMap()}
}

// Empty reports whether this dataset has no changes at all.
func (d *DatasetDiff) Empty() bool {
	return d.Meta.Len() == 0 && d.Feature.Len() == 0 && d.Tile.Len() == 0
}

// RepoDiff is a full repository diff: dataset path -> dataset diff.
type RepoDiff map[string]*DatasetDiff

// Empty reports whether the repo diff contains no changes in any dataset.
func (r RepoDiff) Empty() bool {
	for _, d := range r {
		if !d.Empty() {
			return false
		}
	}
	return true
}

// Reverse returns a new RepoDiff with every delta in every part reversed,
// used to check reverse(diff(A,B)) == diff(B,A).
func (r RepoDiff) Reverse() RepoDiff {
	out := RepoDiff{}
	for path, d := range r {
		out[path] = &DatasetDiff{Meta: d.Meta.Reverse(), Feature: d.Feature.Reverse(), Tile: d.Tile.Reverse()}
	}
	return out
}
