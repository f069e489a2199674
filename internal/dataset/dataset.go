// Package dataset implements the dataset codec: encoding and
// decoding of features, meta-items and tile pointers into the blob paths
// and payloads that live inside a dataset subtree.
//
// Rather than a deep inheritance chain (Dataset -> TileDataset ->
// RasterV1/PointCloudV1, as in the source system this was distilled from),
// a Dataset here is a single tagged-variant value: a Kind plus a Version
// select which capability record (encode/decode/tile-path functions) apply,
// and those functions are free functions dispatched by a kind/version
// registry rather than virtual methods.
package dataset

import (
	"fmt"
	"strings"

	"github.com/kart-vcs/kart/internal/kerr"
)

// Kind identifies what a dataset's records represent.
type Kind string

const (
	KindTable      Kind = "table"
	KindPointCloud Kind = "point-cloud"
	KindRaster     Kind = "raster"
)

// markerDir returns the ".<kind>-dataset.vN" directory name that marks a
// dataset subtree of this kind/version.
func markerDir(kind Kind, version int) string {
	return fmt.Sprintf(".%s-dataset.v%d", kind, version)
}

// Dataset is a handle onto one dataset subtree at a given path inside some
// tree. It carries just enough to dispatch to the right codec: it does not
// itself hold feature data.
type Dataset struct {
	Path    string // the dataset's path inside the repository tree
	Kind    Kind
	Version int
}

// MarkerDir returns this dataset's marker subdirectory name.
func (d Dataset) MarkerDir() string {
	return markerDir(d.Kind, d.Version)
}

// FullMarkerPath returns the dataset's marker directory path relative to
// the tree root, e.g. "nz_pa_points/.table-dataset.v3".
func (d Dataset) FullMarkerPath() string {
	return joinPath(d.Path, d.MarkerDir())
}

// knownMarkers maps marker directory names to the (kind, version) they
// declare. This is the explicit registry that replaces runtime
// subclass-scanning in the source system.
var knownMarkers = map[string]struct {
	kind    Kind
	version int
}{
	".table-dataset.v3":       {KindTable, 3},
	".point-cloud-dataset.v1": {KindPointCloud, 1},
	".raster-dataset.v1":      {KindRaster, 1},
}

// legacyMarkerPrefixes are recognised only so that a repository reader can
// give a clear upgrade-tool pointer.
var legacyMarkerPrefixes = []string{".sno-table", ".table-dataset.v2"}

// FindMarker reports whether name is a dataset marker directory, and if so
// which kind/version it declares.
func FindMarker(name string) (Kind, int, bool) {
	if m, ok := knownMarkers[name]; ok {
		return m.kind, m.version, true
	}
	return "", 0, false
}

// IsLegacyMarker reports whether name is a recognised-but-unsupported
// legacy marker directory (V1/V2 layouts).
func IsLegacyMarker(name string) bool {
	for _, p := range legacyMarkerPrefixes {
		if name == p {
			return true
		}
	}
	return false
}

// Part identifies which section of a dataset subtree a path falls under.
type Part string

const (
	PartMeta    Part = "meta"
	PartFeature Part = "feature"
	PartTile    Part = "tile"
)

// DecodedPath is the result of splitting a full blob path at a dataset's
// marker directory.
type DecodedPath struct {
	DatasetPath string
	Part        Part
	// Rest is the part-specific remainder: a meta-item name for
	// PartMeta, a primary-key encoding for PartFeature (filled in by the
	// table codec, since decoding the pk requires the schema), or a
	// fan-out-relative tile filename for PartTile.
	Rest string
}

// DecodePath splits fullPath at the first recognised dataset marker
// directory component. It does not require the dataset's schema, so for
// table features Rest is still base64url-encoded; use
// DecodeFeatureKeyFromPath (in feature_codec.go) to recover the raw pk.
func DecodePath(fullPath string) (DecodedPath, error) {
	segments := strings.Split(fullPath, "/")
	for i, seg := range segments {
		if IsLegacyMarker(seg) {
			return DecodedPath{}, kerr.New(kerr.InvalidOperation,
				"%s: legacy dataset layout %q is not supported; run the upgrade tool", fullPath, seg)
		}
		if _, _, ok := FindMarker(seg); ok {
			datasetPath := strings.Join(segments[:i], "/")
			rest := segments[i+1:]
			if len(rest) == 0 {
				return DecodedPath{}, kerr.New(kerr.InvalidArgument, "%s: path ends at dataset marker", fullPath)
			}
			switch Part(rest[0]) {
			case PartMeta:
				return DecodedPath{DatasetPath: datasetPath, Part: PartMeta, Rest: strings.Join(rest[1:], "/")}, nil
			case PartFeature:
				return DecodedPath{DatasetPath: datasetPath, Part: PartFeature, Rest: strings.Join(rest[1:], "/")}, nil
			case PartTile:
				return DecodedPath{DatasetPath: datasetPath, Part: PartTile, Rest: strings.Join(rest[1:], "/")}, nil
			default:
				return DecodedPath{}, kerr.New(kerr.InvalidArgument, "%s: unrecognised dataset part %q", fullPath, rest[0])
			}
		}
	}
	return DecodedPath{}, kerr.New(kerr.InvalidArgument, "%s: no dataset marker found", fullPath)
}

func joinPath(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}
