// Package hash wraps the content hashes used across the object store, the
// LFS object cache and the annotations cache in a single comparable value
// type. Git commits/trees/blobs carry 20-byte SHA-1 hashes (computed by the
// object store adapter's go-git backend); LFS pointers and the annotations
// cache key on 32-byte SHA-256 digests per the pointer-file wire format.
// Hash stores either uniformly so callers never branch on hash width.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MaxSize is the largest digest this package stores inline.
const MaxSize = 32

// Hash is a fixed-size, comparable content hash. The zero Hash is the
// "empty" hash and is distinguishable from any real digest by IsEmpty.
type Hash struct {
	bytes [MaxSize]byte
	size  uint8
}

var empty = Hash{}

// Of returns the SHA-256 digest of data as a 32-byte Hash. This is also the
// hash scheme used for LFS object identifiers, rendered "oid sha256:<hex>".
func Of(data []byte) Hash {
	sum := sha256.Sum256(data)
	var h Hash
	copy(h.bytes[:], sum[:])
	h.size = 32
	return h
}

// FromBytes builds a Hash from raw digest bytes of length 20 or 32,
// panicking on any other length since no supported object kind produces one.
func FromBytes(b []byte) Hash {
	if len(b) != 20 && len(b) != 32 {
		panic(fmt.Sprintf("hash: unsupported digest length %d", len(b)))
	}
	var h Hash
	copy(h.bytes[:], b)
	h.size = uint8(len(b))
	return h
}

// Parse decodes a hex-encoded hash of 40 (SHA-1) or 64 (SHA-256) characters.
// It panics on malformed input, mirroring the object store's own behaviour
// of treating a corrupt hash reference as a programming error, not a
// recoverable one.
func Parse(s string) Hash {
	h, ok := MaybeParse(s)
	if !ok {
		panic(fmt.Sprintf("hash: invalid hash string %q", s))
	}
	return h
}

// MaybeParse decodes s as in Parse, returning ok=false instead of panicking.
func MaybeParse(s string) (Hash, bool) {
	switch len(s) {
	case 40, 64:
	default:
		return empty, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return empty, false
	}
	return FromBytes(raw), true
}

// IsEmpty reports whether h is the zero Hash or an all-zero digest (git's
// null object id).
func (h Hash) IsEmpty() bool {
	for _, b := range h.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// Size returns the digest length in bytes (20 or 32), or 0 for the zero Hash.
func (h Hash) Size() int {
	return int(h.size)
}

func (h Hash) slice() []byte {
	return h.bytes[:h.size]
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h.slice())
}

// SHA256Prefixed renders the hash as it appears in an LFS pointer file,
// e.g. "sha256:0123...".
func (h Hash) SHA256Prefixed() string {
	return "sha256:" + h.String()
}

// Equals reports byte-for-byte equality. Hash also supports == directly
// since it is a plain comparable struct; Equals exists for parity with the
// object store's other comparable handle types.
func (h Hash) Equals(o Hash) bool {
	return h == o
}

// Compare orders hashes by their digest bytes, shorter-prefixed first on a
// tie in the overlapping prefix (never reached in practice since all
// digests used by a single object kind share a width).
func (h Hash) Compare(o Hash) int {
	if c := bytes.Compare(h.slice(), o.slice()); c != 0 {
		return c
	}
	if h.size == o.size {
		return 0
	}
	if h.size < o.size {
		return -1
	}
	return 1
}

// Less reports whether h sorts before o; used to give deterministic
// iteration order to fan-out directories and conflict enumeration.
func (h Hash) Less(o Hash) bool {
	return h.Compare(o) < 0
}

// Prefix returns the first n bytes of the digest, used by the two-level
// fan-out directory schemes in the LFS cache and the feature path encoder.
// Panics if n exceeds the digest size.
func (h Hash) Prefix(n int) []byte {
	if n > int(h.size) {
		panic("hash: prefix longer than digest")
	}
	out := make([]byte, n)
	copy(out, h.bytes[:n])
	return out
}

// Set is an unordered collection of distinct hashes, as returned by
// HasMany-style bulk lookups against the object store or LFS cache.
type Set map[Hash]struct{}

// NewSet builds a Set from the given hashes.
func NewSet(hashes ...Hash) Set {
	s := make(Set, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Insert adds h to the set.
func (s Set) Insert(h Hash) {
	s[h] = struct{}{}
}

// Has reports whether h is a member of the set.
func (s Set) Has(h Hash) bool {
	_, ok := s[h]
	return ok
}

// Slice returns the set's members in no particular order.
func (s Set) Slice() []Hash {
	out := make([]Hash, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	return out
}
