package diff

import (
	"github.com/google/btree"

	"github.com/kart-vcs/kart/internal/hash"
)

// Delta is a single tagged change: {insert | update | delete, old?, new?},
// carrying both sides' keys so renames (old_key != new_key) are
// representable.
type Delta struct {
	Status  Status
	OldKey  string
	OldHash hash.Hash
	NewKey  string
	NewHash hash.Hash

	// OldPamHash/NewPamHash carry a raster tile's sidecar statistics
	// (.aux.xml) blob hash, when present, coalesced onto the tile delta it
	// belongs to rather than surfaced as a delta of its own. Zero means no
	// PAM sidecar on that side.
	OldPamHash hash.Hash
	NewPamHash hash.Hash
}

// HasPam reports whether either side of the delta carries a PAM sidecar.
func (d Delta) HasPam() bool {
	return !d.OldPamHash.IsEmpty() || !d.NewPamHash.IsEmpty()
}

// Key returns the delta's position in its owning DeltaMap: the new key for
// anything but a pure delete, otherwise the old key. This is also the
// delta's position in the stable enumeration order used for conflict
// ordering and for canonical diff comparison.
func (d Delta) Key() string {
	if d.Status == StatusDelete {
		return d.OldKey
	}
	return d.NewKey
}

// Reverse swaps old/new, turning insert into delete and vice versa, used
// to implement diff inversion (reverse(diff(A,B)) == diff(B,A)).
func (d Delta) Reverse() Delta {
	r := Delta{
		OldKey: d.NewKey, OldHash: d.NewHash, NewKey: d.OldKey, NewHash: d.OldHash,
		OldPamHash: d.NewPamHash, NewPamHash: d.OldPamHash,
	}
	switch d.Status {
	case StatusInsert:
		r.Status = StatusDelete
	case StatusDelete:
		r.Status = StatusInsert
	default:
		r.Status = d.Status
	}
	return r
}

// DeltaMap is an ordered map of deltas, keyed by Delta.Key(), backed by a
// B-tree so iteration is always in a stable sorted order — required both
// for diff-inversion symmetry and for the merge engine's conflict
// enumeration order (dataset path, then part, then key).
type DeltaMap struct {
	tree *btree.BTreeG[deltaItem]
}

type deltaItem struct {
	key   string
	delta Delta
}

func deltaItemLess(a, b deltaItem) bool { return a.key < b.key }

// NewDeltaMap returns an empty DeltaMap.
func NewDeltaMap() *DeltaMap {
	return &DeltaMap{tree: btree.NewG(32, deltaItemLess)}
}

// Put inserts or replaces the delta at its own key.
func (m *DeltaMap) Put(d Delta) {
	m.tree.ReplaceOrInsert(deltaItem{key: d.Key(), delta: d})
}

// Get returns the delta at key, if present.
func (m *DeltaMap) Get(key string) (Delta, bool) {
	item, ok := m.tree.Get(deltaItem{key: key})
	return item.delta, ok
}

// Len returns the number of deltas in the map.
func (m *DeltaMap) Len() int { return m.tree.Len() }

// Ascend calls fn for every delta in ascending key order, stopping early
// if fn returns false.
func (m *DeltaMap) Ascend(fn func(Delta) bool) {
	m.tree.Ascend(func(item deltaItem) bool { return fn(item.delta) })
}

// Slice returns every delta in ascending key order.
func (m *DeltaMap) Slice() []Delta {
	out := make([]Delta, 0, m.tree.Len())
	m.Ascend(func(d Delta) bool { out = append(out, d); return true })
	return out
}

// Reverse returns a new DeltaMap with every delta reversed, used to
// implement diff inversion.
func (m *DeltaMap) Reverse() *DeltaMap {
	out := NewDeltaMap()
	m.Ascend(func(d Delta) bool { out.Put(d.Reverse()); return true })
	return out
}
