package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-vcs/kart/internal/kerr"
)

// Pointer is a decoded tile pointer: the blob stored in a tile-dataset's
// tree in place of the (large, externally-stored) tile content itself.
// The wire format mirrors Git LFS pointer files so existing LFS tooling
// can recognise a Kart repository's pointer blobs on sight.
type Pointer struct {
	OID        string // "sha256:<hex>"
	Size       int64
	ExtraOID   string // secondary digest, e.g. a point-cloud's content hash; "" if absent
	FormatHint string // e.g. "gpkg", "las", "tif"
}

const pointerVersionLine = "version https://git-lfs.github.com/spec/v1"

// EncodeTilePointer renders a Pointer to its blob payload.
func EncodeTilePointer(p Pointer) ([]byte, error) {
	if !strings.HasPrefix(p.OID, "sha256:") {
		return nil, kerr.New(kerr.InvalidArgument, "tile pointer oid must be sha256:<hex>, got %q", p.OID)
	}
	var b strings.Builder
	fmt.Fprintln(&b, pointerVersionLine)
	fmt.Fprintf(&b, "oid %s\n", p.OID)
	fmt.Fprintf(&b, "size %d\n", p.Size)
	if p.ExtraOID != "" {
		fmt.Fprintf(&b, "x-kart-extra-oid %s\n", p.ExtraOID)
	}
	if p.FormatHint != "" {
		fmt.Fprintf(&b, "x-kart-format %s\n", p.FormatHint)
	}
	return []byte(b.String()), nil
}

// DecodeTilePointer parses a tile pointer blob.
func DecodeTilePointer(data []byte) (Pointer, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != pointerVersionLine {
		return Pointer{}, kerr.New(kerr.SchemaMismatch, "not a tile pointer: missing version line")
	}
	p := Pointer{}
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		switch key {
		case "oid":
			p.OID = value
		case "size":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Pointer{}, kerr.Wrap(kerr.SchemaMismatch, err, "parsing tile pointer size")
			}
			p.Size = n
		case "x-kart-extra-oid":
			p.ExtraOID = value
		case "x-kart-format":
			p.FormatHint = value
		}
	}
	if p.OID == "" {
		return Pointer{}, kerr.New(kerr.SchemaMismatch, "tile pointer missing oid")
	}
	return p, nil
}

// OIDHex returns the pointer's sha256 digest as a bare hex string, with
// the "sha256:" prefix stripped.
func (p Pointer) OIDHex() (string, error) {
	hexDigest, ok := strings.CutPrefix(p.OID, "sha256:")
	if !ok {
		return "", kerr.New(kerr.SchemaMismatch, "tile pointer oid %q is not sha256-prefixed", p.OID)
	}
	return hexDigest, nil
}

// TilePathFor returns the path of a tile object within the LFS object
// cache, given its sha256 hex digest: a two-level hex fan-out identical in
// shape to Git's own loose-object layout, so the cache directory never
// holds more than a few hundred entries per directory regardless of how
// many tiles a repository accumulates.
func TilePathFor(hexDigest string) (string, error) {
	if len(hexDigest) < 4 {
		return "", kerr.New(kerr.InvalidArgument, "sha256 hex digest too short: %q", hexDigest)
	}
	if _, err := hex.DecodeString(hexDigest); err != nil {
		return "", kerr.Wrap(kerr.InvalidArgument, err, "invalid sha256 hex digest %q", hexDigest)
	}
	return joinPath(hexDigest[0:2], hexDigest[2:4], hexDigest), nil
}

// Sha256Hex returns the lowercase hex sha256 digest of data, as used for
// both the LFS object cache key and the OID field of a tile pointer.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TilePointerPath returns a tile pointer's path relative to the dataset's
// "tile" part, given the tile's filename: a single-level hex fan-out over
// a digest of the filename's stem (the name without its final extension),
// not of the tile's content. This is distinct from TilePathFor, which
// addresses the content-keyed LFS object cache; this one addresses the
// tree-level pointer blob that records which content a given filename
// currently maps to, so it has to be stable under content changes and
// fan out on something that never moves: the name itself.
func TilePointerPath(filename string) (string, error) {
	if filename == "" {
		return "", kerr.New(kerr.InvalidArgument, "tile filename must not be empty")
	}
	if strings.ContainsRune(filename, '/') {
		return "", kerr.New(kerr.InvalidArgument, "%s: tile filename must not contain a path separator", filename)
	}
	stem := filename
	if idx := strings.LastIndexByte(filename, '.'); idx > 0 {
		stem = filename[:idx]
	}
	h := Sha256Hex([]byte(stem))
	return joinPath(string(PartTile), h[0:2], filename), nil
}
