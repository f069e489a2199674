package dataset

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
)

// Feature is a single decoded record: column ID to value, for every column
// in the owning schema (pk columns included).
type Feature map[string]interface{}

const featureBlobMagic = "K1F\x00"

// EncodeFeature packs a feature into its blob payload: a fixed-column-order
// binary format rather than a self-describing one, since the schema blob
// alongside it already carries column identity and order. Columns are
// packed in the stable order ValueColumnsSortedByID returns, after a null
// bitmap. The layout depends on the schema's whole value-column set, so
// adding or removing a column changes the bytes of every feature encoded
// against the new schema.
func EncodeFeature(s Schema, f Feature) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cols := s.ValueColumnsSortedByID()

	var buf bytes.Buffer
	buf.WriteString(featureBlobMagic)

	nullBitmap := make([]byte, (len(cols)+7)/8)
	for i, c := range cols {
		if f[c.ID.String()] == nil {
			nullBitmap[i/8] |= 1 << uint(i%8)
		}
	}
	buf.Write(nullBitmap)

	for _, c := range cols {
		v, present := f[c.ID.String()]
		if !present || v == nil {
			continue
		}
		encoded, err := encodeValue(c.DataType, v)
		if err != nil {
			return nil, kerr.Wrap(kerr.SchemaMismatch, err, "encoding column %s", c.Name)
		}
		writeLenPrefixed(&buf, encoded)
	}

	return buf.Bytes(), nil
}

// DecodeFeature unpacks a feature blob previously produced by EncodeFeature
// against the given schema. A blob produced against a structurally
// different schema (wrong magic, column count) is reported as
// kerr.SchemaMismatch rather than a generic parse error, since the
// remediation ("rebuild the dataset's features") differs from a corrupt
// object.
func DecodeFeature(s Schema, data []byte) (Feature, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cols := s.ValueColumnsSortedByID()

	r := bytes.NewReader(data)
	magic := make([]byte, len(featureBlobMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != featureBlobMagic {
		return nil, kerr.New(kerr.SchemaMismatch, "feature blob has wrong magic header")
	}

	bitmapLen := (len(cols) + 7) / 8
	nullBitmap := make([]byte, bitmapLen)
	if _, err := r.Read(nullBitmap); err != nil {
		return nil, kerr.Wrap(kerr.SchemaMismatch, err, "reading null bitmap")
	}

	out := Feature{}
	for i, c := range cols {
		isNull := nullBitmap[i/8]&(1<<uint(i%8)) != 0
		if isNull {
			out[c.ID.String()] = nil
			continue
		}
		raw, err := readLenPrefixed(r)
		if err != nil {
			return nil, kerr.Wrap(kerr.SchemaMismatch, err, "reading column %s", c.Name)
		}
		v, err := decodeValue(c.DataType, raw)
		if err != nil {
			return nil, kerr.Wrap(kerr.SchemaMismatch, err, "decoding column %s", c.Name)
		}
		out[c.ID.String()] = v
	}
	return out, nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeValue(t DataType, v interface{}) ([]byte, error) {
	switch t {
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeInteger:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(i))
		return buf[:], nil
	case TypeFloat:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		return buf[:], nil
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return []byte(s), nil
	case TypeBlob:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", v)
		}
		return b, nil
	case TypeDate, TypeDateTime:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected ISO-8601 string, got %T", v)
		}
		return []byte(s), nil
	case TypeGeometry:
		g, ok := v.(Geometry)
		if !ok {
			return nil, fmt.Errorf("expected dataset.Geometry, got %T", v)
		}
		return encodeGeometry(g), nil
	default:
		return nil, fmt.Errorf("unsupported data type %q", t)
	}
}

func decodeValue(t DataType, raw []byte) (interface{}, error) {
	switch t {
	case TypeBoolean:
		if len(raw) != 1 {
			return nil, fmt.Errorf("boolean value must be 1 byte")
		}
		return raw[0] != 0, nil
	case TypeInteger:
		if len(raw) != 8 {
			return nil, fmt.Errorf("integer value must be 8 bytes")
		}
		return int64(binary.BigEndian.Uint64(raw)), nil
	case TypeFloat:
		if len(raw) != 8 {
			return nil, fmt.Errorf("float value must be 8 bytes")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	case TypeText, TypeDate, TypeDateTime:
		return string(raw), nil
	case TypeBlob:
		return raw, nil
	case TypeGeometry:
		return decodeGeometry(raw)
	default:
		return nil, fmt.Errorf("unsupported data type %q", t)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected float, got %T", v)
	}
}

// Geometry is a WKB-encoded geometry value tagged with its spatial
// reference identifier.
type Geometry struct {
	SRID int32
	WKB  []byte
}

func encodeGeometry(g Geometry) []byte {
	var buf bytes.Buffer
	var sridBuf [4]byte
	binary.BigEndian.PutUint32(sridBuf[:], uint32(g.SRID))
	buf.Write(sridBuf[:])
	buf.Write(g.WKB)
	return buf.Bytes()
}

func decodeGeometry(raw []byte) (Geometry, error) {
	if len(raw) < 4 {
		return Geometry{}, fmt.Errorf("geometry value too short")
	}
	srid := int32(binary.BigEndian.Uint32(raw[:4]))
	wkb := make([]byte, len(raw)-4)
	copy(wkb, raw[4:])
	return Geometry{SRID: srid, WKB: wkb}, nil
}

// EncodePKValue renders a (possibly composite) primary key as the bytes
// that get hashed for fan-out and base64url-encoded for the filename
// component of a feature's path.
func EncodePKValue(s Schema, f Feature) ([]byte, error) {
	pkCols := s.PKColumns()
	if len(pkCols) == 0 {
		return nil, kerr.New(kerr.SchemaMismatch, "schema has no primary key column")
	}
	var buf bytes.Buffer
	for _, c := range pkCols {
		v, ok := f[c.ID.String()]
		if !ok || v == nil {
			return nil, kerr.New(kerr.InvalidArgument, "primary key column %s is missing or null", c.Name)
		}
		enc, err := encodeValue(c.DataType, v)
		if err != nil {
			return nil, kerr.Wrap(kerr.InvalidArgument, err, "encoding pk column %s", c.Name)
		}
		writeLenPrefixed(&buf, enc)
	}
	return buf.Bytes(), nil
}

// DecodePKValue is the inverse of EncodePKValue: given the schema's pk
// columns and the raw bytes recovered from a feature path, it returns a
// Feature populated with just those pk columns' typed values.
func DecodePKValue(s Schema, pkBytes []byte) (Feature, error) {
	pkCols := s.PKColumns()
	if len(pkCols) == 0 {
		return nil, kerr.New(kerr.SchemaMismatch, "schema has no primary key column")
	}
	r := bytes.NewReader(pkBytes)
	out := Feature{}
	for _, c := range pkCols {
		raw, err := readLenPrefixed(r)
		if err != nil {
			return nil, kerr.Wrap(kerr.InvalidArgument, err, "decoding pk column %s", c.Name)
		}
		v, err := decodeValue(c.DataType, raw)
		if err != nil {
			return nil, kerr.Wrap(kerr.InvalidArgument, err, "decoding pk column %s", c.Name)
		}
		out[c.ID.String()] = v
	}
	return out, nil
}

// FeaturePath returns the blob path for a feature relative to the
// dataset's marker directory, given its encoded primary key: a two-level
// fan-out on the pk's hash followed by the base64url-encoded pk itself.
func FeaturePath(pkBytes []byte) string {
	h := hash.Of(pkBytes)
	hexDigest := h.String()
	b64 := base64.RawURLEncoding.EncodeToString(pkBytes)
	return joinPath(string(PartFeature), hexDigest[0:2], hexDigest[2:4], b64)
}

// DecodeFeatureKeyFromPath recovers the raw pk bytes from a feature path's
// final path component (the part after the two hex fan-out segments).
func DecodeFeatureKeyFromPath(rest string) ([]byte, error) {
	segments := splitNonEmpty(rest, '/')
	if len(segments) != 3 {
		return nil, kerr.New(kerr.InvalidArgument, "%s: malformed feature path", rest)
	}
	pk, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidArgument, err, "%s: malformed pk encoding", rest)
	}
	return pk, nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
