package diff

import (
	"context"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/dataset"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

// pamSuffix is how a raster tile's sidecar GDAL statistics file (a ".aux.xml"
// PAM file) relates to its tile: literally the tile's own blob path with
// this suffix appended.
const pamSuffix = ".aux.xml"

// TreeDiff walks two commit trees in lockstep (by flattening each into a
// path -> blob hash map and comparing), decodes the differing blob paths
// against the dataset marker-directory registry, and returns a RepoDiff.
// Byte-equal blobs are skipped without ever being read.
func TreeDiff(ctx context.Context, repo *objstore.Repository, a, b hash.Hash, filter Filter) (RepoDiff, error) {
	pathsA, err := flattenTree(ctx, repo, a)
	if err != nil {
		return nil, err
	}
	pathsB, err := flattenTree(ctx, repo, b)
	if err != nil {
		return nil, err
	}

	out := RepoDiff{}
	tileRaw := map[string]map[string]*tileRawChange{}
	seen := map[string]bool{}

	visit := func(path string) error {
		if seen[path] {
			return nil
		}
		seen[path] = true

		oldHash, oldPresent := pathsA[path]
		newHash, newPresent := pathsB[path]
		if oldPresent && newPresent && oldHash.Equals(newHash) {
			return nil
		}
		if !oldPresent && !newPresent {
			return nil
		}
		return classify(ctx, repo, out, tileRaw, filter, path, pathsA, pathsB, oldHash, oldPresent, newHash, newPresent)
	}

	for path := range pathsA {
		if err := visit(path); err != nil {
			return nil, err
		}
	}
	for path := range pathsB {
		if err := visit(path); err != nil {
			return nil, err
		}
	}

	if err := resolveTileDeltas(ctx, repo, out, tileRaw); err != nil {
		return nil, err
	}

	return out, nil
}

// tileRawChange accumulates a single tile's base file and PAM sidecar
// changes before they are coalesced into one Delta.
type tileRawChange struct {
	baseOldHash, baseNewHash       hash.Hash
	baseOldPresent, baseNewPresent bool
	baseChanged                    bool

	pamOldHash, pamNewHash       hash.Hash
	pamOldPresent, pamNewPresent bool
	pamChanged                   bool
}

// classify decodes a single changed path against the dataset registry and
// routes it into the right dataset/part delta map. Tile-part changes are
// not written directly into the dataset diff; they accumulate in tileRaw so
// a tile and its PAM sidecar can be coalesced into one delta afterward.
func classify(ctx context.Context, repo *objstore.Repository, out RepoDiff, tileRaw map[string]map[string]*tileRawChange, filter Filter, path string, pathsA, pathsB map[string]hash.Hash, oldHash hash.Hash, oldPresent bool, newHash hash.Hash, newPresent bool) error {
	decoded, err := dataset.DecodePath(path)
	if err != nil {
		// Paths outside any dataset marker (e.g. top-level repostructure
		// version blob) are not part of the dataset diff model.
		return nil
	}

	dsFilter, ok := filter.ForDataset(decoded.DatasetPath)
	if !ok {
		return nil
	}

	dd, ok := out[decoded.DatasetPath]
	if !ok {
		dd = newDatasetDiff()
		out[decoded.DatasetPath] = dd
	}

	status := StatusOf(oldPresent, newPresent, false)
	d := Delta{Status: status, OldKey: decoded.Rest, OldHash: oldHash, NewKey: decoded.Rest, NewHash: newHash}

	switch decoded.Part {
	case dataset.PartMeta:
		if !dsFilter.Meta.Allows(decoded.Rest) {
			return nil
		}
		dd.Meta.Put(d)
	case dataset.PartFeature:
		if !dsFilter.Feature.Allows(decoded.Rest) {
			return nil
		}
		dd.Feature.Put(d)
	case dataset.PartTile:
		if isPam, baseRest := splitPamRest(decoded.Rest); isPam {
			if !dsFilter.Tile.Allows(baseRest) {
				return nil
			}
			basePath := strings.TrimSuffix(path, pamSuffix)
			baseOldHash, baseOldPresent := pathsA[basePath]
			baseNewHash, baseNewPresent := pathsB[basePath]
			g := tileGroup(tileRaw, decoded.DatasetPath, baseRest)
			g.baseOldHash, g.baseOldPresent = baseOldHash, baseOldPresent
			g.baseNewHash, g.baseNewPresent = baseNewHash, baseNewPresent
			g.baseChanged = baseOldPresent != baseNewPresent || (baseOldPresent && baseNewPresent && !baseOldHash.Equals(baseNewHash))
			g.pamOldHash, g.pamOldPresent = oldHash, oldPresent
			g.pamNewHash, g.pamNewPresent = newHash, newPresent
			g.pamChanged = true
		} else {
			if !dsFilter.Tile.Allows(decoded.Rest) {
				return nil
			}
			g := tileGroup(tileRaw, decoded.DatasetPath, decoded.Rest)
			g.baseOldHash, g.baseOldPresent = oldHash, oldPresent
			g.baseNewHash, g.baseNewPresent = newHash, newPresent
			g.baseChanged = true
		}
	}
	return nil
}

func splitPamRest(rest string) (bool, string) {
	if strings.HasSuffix(rest, pamSuffix) {
		return true, strings.TrimSuffix(rest, pamSuffix)
	}
	return false, rest
}

func tileGroup(tileRaw map[string]map[string]*tileRawChange, datasetPath, baseRest string) *tileRawChange {
	byBase, ok := tileRaw[datasetPath]
	if !ok {
		byBase = map[string]*tileRawChange{}
		tileRaw[datasetPath] = byBase
	}
	g, ok := byBase[baseRest]
	if !ok {
		g = &tileRawChange{}
		byBase[baseRest] = g
	}
	return g
}

// resolveTileDeltas turns the accumulated per-tile raw changes into final
// Tile deltas, coalescing a tile and its PAM sidecar into one delta and
// suppressing tile-unchanged, PAM-recompute-only changes (a GDAL `-stats`
// run that only adds/removes a <Histograms>/<Metadata> block).
func resolveTileDeltas(ctx context.Context, repo *objstore.Repository, out RepoDiff, tileRaw map[string]map[string]*tileRawChange) error {
	for datasetPath, byBase := range tileRaw {
		dd, ok := out[datasetPath]
		if !ok {
			dd = newDatasetDiff()
			out[datasetPath] = dd
		}
		for baseRest, g := range byBase {
			if !g.baseChanged && g.pamChanged {
				suppress, err := suppressMinorTileChange(ctx, repo, g)
				if err != nil {
					return err
				}
				if suppress {
					continue
				}
			}

			status := StatusOf(g.baseOldPresent, g.baseNewPresent, false)
			if !g.baseChanged {
				// Base tile untouched; the delta exists purely to carry a
				// real (non-suppressed) PAM sidecar change.
				status = StatusUpdate
			}
			d := Delta{Status: status, OldKey: baseRest, NewKey: baseRest}
			if g.baseOldPresent {
				d.OldHash = g.baseOldHash
			}
			if g.baseNewPresent {
				d.NewHash = g.baseNewHash
			}
			if g.pamOldPresent {
				d.OldPamHash = g.pamOldHash
			}
			if g.pamNewPresent {
				d.NewPamHash = g.pamNewHash
			}
			dd.Tile.Put(d)
		}
		if dd.Meta.Len() == 0 && dd.Feature.Len() == 0 && dd.Tile.Len() == 0 {
			delete(out, datasetPath)
		}
	}
	return nil
}

// suppressMinorTileChange reports whether a tile's only observed change is
// GDAL re-inserting computed statistics into its PAM sidecar, in which case
// the tile is reported as unchanged.
func suppressMinorTileChange(ctx context.Context, repo *objstore.Repository, g *tileRawChange) (bool, error) {
	if g.pamOldHash.Equals(g.pamNewHash) {
		return true, nil
	}
	if !g.pamOldPresent || !g.pamNewPresent {
		// Can't diff content against "no sidecar"; treat as a real change.
		return false, nil
	}
	oldXML, err := repo.ReadBlob(ctx, g.pamOldHash)
	if err != nil {
		return false, err
	}
	newXML, err := repo.ReadBlob(ctx, g.pamNewHash)
	if err != nil {
		return false, err
	}
	return isSameXMLIgnoringStats(string(oldXML), string(newXML)), nil
}

// flattenTree recursively reads a tree and returns a map of every blob's
// full repo-relative path to its hash. Subtrees that are themselves
// unchanged between two calls are still fully read here; TreeDiff relies
// on comparing the resulting maps, not on skipping unchanged subtrees
// during the walk itself.
func flattenTree(ctx context.Context, repo *objstore.Repository, root hash.Hash) (map[string]hash.Hash, error) {
	out := map[string]hash.Hash{}
	if root.IsEmpty() {
		return out, nil
	}
	if err := flattenInto(ctx, repo, root, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(ctx context.Context, repo *objstore.Repository, treeHash hash.Hash, prefix string, out map[string]hash.Hash) error {
	tree, err := repo.ReadTree(ctx, treeHash)
	if err != nil {
		return err
	}
	for _, entry := range tree.Entries {
		path := entry.Name
		if prefix != "" {
			path = prefix + "/" + entry.Name
		}
		h := hashFromEntry(entry)
		if entry.Mode.IsFile() {
			out[path] = h
			continue
		}
		if err := flattenInto(ctx, repo, h, path, out); err != nil {
			return err
		}
	}
	return nil
}

func hashFromEntry(entry object.TreeEntry) hash.Hash {
	return hash.FromBytes(entry.Hash[:])
}
