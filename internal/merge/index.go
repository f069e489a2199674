package merge

import (
	"sort"

	"github.com/kart-vcs/kart/internal/hash"
)

// Variant is one side's version of a conflicted path: where its content
// lives (a blob hash), or absent (a nil *Variant) if that side deleted or
// never had the path.
type Variant struct {
	Blob hash.Hash
}

// VariantSet holds up to three variants of one conflicted path: the common
// ancestor's, ours, and theirs. A nil field means that side has no entry
// at this path (it was deleted there, or added only on the other side).
type VariantSet struct {
	Ancestor *Variant
	Ours     *Variant
	Theirs   *Variant
}

// Category labels why a path became a conflict candidate, matching the
// classification spec.md's merge algorithm names.
type Category string

const (
	CategoryAddAdd     Category = "add/add"
	CategoryEditEdit   Category = "edit/edit"
	CategoryEditDelete Category = "edit/delete"
	CategoryRename     Category = "rename"
)

// Conflict is one entry in the merge index's conflict set: the three
// variants plus how the classifier categorised it, kept for display by
// `conflicts --list` without having to re-derive it from the variants.
type Conflict struct {
	VariantSet
	Category Category
}

// ResolutionKind names which of the resolution shapes a user picked.
type ResolutionKind int

const (
	ResolveAncestor ResolutionKind = iota
	ResolveOurs
	ResolveTheirs
	ResolveDelete
	ResolveWith // an explicit merged blob supplied by the caller
)

// Index is the merge index: the regular, already-merged tree entries, plus
// the set of conflicts awaiting resolution. A conflict is removed from
// Conflicts and its outcome written into Entries (or, for a delete
// resolution, simply left out of Entries) the moment it is resolved — so
// "every conflict has a resolution" is exactly "Conflicts is empty" and
// there is no separate resolves bookkeeping to fall out of sync with it.
//
// Entries maps a full blob path to its content; a path resolved by keeping
// both sides (for a rename collision) is represented by two distinct
// synthetic paths rather than a special resolution shape.
type Index struct {
	Entries   map[string]hash.Hash
	Conflicts map[string]Conflict
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{Entries: map[string]hash.Hash{}, Conflicts: map[string]Conflict{}}
}

// Put records a trivially- or already-merged entry.
func (idx *Index) Put(path string, blob hash.Hash) {
	idx.Entries[path] = blob
}

// Remove deletes any entry recorded at path (a no-op if there is none).
func (idx *Index) Remove(path string) {
	delete(idx.Entries, path)
}

// AddConflict records a new conflict at path.
func (idx *Index) AddConflict(path string, c Conflict) {
	idx.Conflicts[path] = c
}

// Resolved reports whether every conflict in the index has been resolved.
func (idx *Index) Resolved() bool {
	return len(idx.Conflicts) == 0
}

// Resolve applies a resolution to the conflict at path, moving it out of
// Conflicts and its outcome into (or out of) Entries. It returns an error
// if path has no pending conflict.
func (idx *Index) Resolve(path string, kind ResolutionKind, withBlob hash.Hash) error {
	c, ok := idx.Conflicts[path]
	if !ok {
		return errNoSuchConflict(path)
	}

	var chosen *Variant
	switch kind {
	case ResolveAncestor:
		chosen = c.Ancestor
	case ResolveOurs:
		chosen = c.Ours
	case ResolveTheirs:
		chosen = c.Theirs
	case ResolveDelete:
		chosen = nil
	case ResolveWith:
		chosen = &Variant{Blob: withBlob}
	default:
		return errUnknownResolution(kind)
	}

	delete(idx.Conflicts, path)
	if chosen == nil {
		delete(idx.Entries, path)
		return nil
	}
	idx.Entries[path] = chosen.Blob
	return nil
}

// ResolveKeepBoth resolves a rename-collision conflict by keeping both
// sides under distinct synthetic paths rather than a single merged value.
func (idx *Index) ResolveKeepBoth(path, oursPath, theirsPath string) error {
	c, ok := idx.Conflicts[path]
	if !ok {
		return errNoSuchConflict(path)
	}
	delete(idx.Conflicts, path)
	if c.Ours != nil {
		idx.Entries[oursPath] = c.Ours.Blob
	}
	if c.Theirs != nil {
		idx.Entries[theirsPath] = c.Theirs.Blob
	}
	return nil
}

// ConflictPaths returns every unresolved conflict's path, in the stable
// order spec.md requires (dataset path, then part, then primary key /
// meta-name) — which falls directly out of lexicographic path ordering,
// since a dataset blob path is always "<dataset>/<marker>/<part>/<rest>"
// and every dataset shares the same marker-then-part prefix shape.
func (idx *Index) ConflictPaths() []string {
	out := make([]string, 0, len(idx.Conflicts))
	for p := range idx.Conflicts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
