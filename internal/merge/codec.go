package merge

import (
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	idxfmt "github.com/go-git/go-git/v5/plumbing/format/index"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
)

// Persisting MERGE_INDEX reuses go-git's own index file codec rather than
// inventing a bespoke on-disk format for "paths at stage 0, plus paths at
// stages 1/2/3 holding conflicting ancestor/ours/theirs variants": that
// shape is exactly what a real git index's merge stages already mean, so
// this package only has to translate Index to and from []*idxfmt.Entry,
// not design and version a new file format for the same job.
const (
	stageMerged   = idxfmt.Merged
	stageAncestor = idxfmt.AncestorMode
	stageOurs     = idxfmt.OurMode
	stageTheirs   = idxfmt.TheirMode
)

// EncodeIndex writes idx to w in git's own index file format.
func EncodeIndex(w io.Writer, idx *Index) error {
	raw := &idxfmt.Index{Version: 2}

	for path, h := range idx.Entries {
		raw.Entries = append(raw.Entries, &idxfmt.Entry{
			Name:  path,
			Mode:  filemode.Regular,
			Hash:  toPlumbing(h),
			Stage: stageMerged,
		})
	}
	for path, c := range idx.Conflicts {
		for _, variant := range []struct {
			stage idxfmt.Stage
			v     *Variant
		}{
			{stageAncestor, c.Ancestor},
			{stageOurs, c.Ours},
			{stageTheirs, c.Theirs},
		} {
			if variant.v == nil {
				continue
			}
			raw.Entries = append(raw.Entries, &idxfmt.Entry{
				Name:  path,
				Mode:  filemode.Regular,
				Hash:  toPlumbing(variant.v.Blob),
				Stage: variant.stage,
			})
		}
	}

	enc := idxfmt.NewEncoder(w)
	if err := enc.Encode(raw); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "encoding merge index")
	}
	return nil
}

// DecodeIndex reads a merge index previously written by EncodeIndex. A
// conflict's Category isn't itself part of the git index format, so it's
// re-derived on load from which of the three stages are present, using the
// same rule the classifier applies on first write.
func DecodeIndex(r io.Reader) (*Index, error) {
	raw := &idxfmt.Index{}
	dec := idxfmt.NewDecoder(r)
	if err := dec.Decode(raw); err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "decoding merge index")
	}

	idx := NewIndex()
	conflictSets := map[string]VariantSet{}

	for _, e := range raw.Entries {
		switch e.Stage {
		case stageMerged:
			idx.Entries[e.Name] = fromPlumbing(e.Hash)
		case stageAncestor:
			vs := conflictSets[e.Name]
			vs.Ancestor = &Variant{Blob: fromPlumbing(e.Hash)}
			conflictSets[e.Name] = vs
		case stageOurs:
			vs := conflictSets[e.Name]
			vs.Ours = &Variant{Blob: fromPlumbing(e.Hash)}
			conflictSets[e.Name] = vs
		case stageTheirs:
			vs := conflictSets[e.Name]
			vs.Theirs = &Variant{Blob: fromPlumbing(e.Hash)}
			conflictSets[e.Name] = vs
		}
	}

	for path, vs := range conflictSets {
		idx.Conflicts[path] = Conflict{VariantSet: vs, Category: classifyCategory(vs)}
	}

	return idx, nil
}

func classifyCategory(vs VariantSet) Category {
	switch {
	case vs.Ancestor == nil:
		return CategoryAddAdd
	case vs.Ours == nil, vs.Theirs == nil:
		return CategoryEditDelete
	default:
		return CategoryEditEdit
	}
}

func toPlumbing(h hash.Hash) plumbing.Hash {
	var ph plumbing.Hash
	copy(ph[:], h.Prefix(20))
	return ph
}

func fromPlumbing(ph plumbing.Hash) hash.Hash {
	return hash.FromBytes(ph[:])
}
