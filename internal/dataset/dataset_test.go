package dataset

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePathSplitsAtMarker(t *testing.T) {
	d, err := DecodePath("nz_pa_points/.table-dataset.v3/feature/aa/bb/AAAA")
	require.NoError(t, err)
	assert.Equal(t, "nz_pa_points", d.DatasetPath)
	assert.Equal(t, PartFeature, d.Part)
	assert.Equal(t, "aa/bb/AAAA", d.Rest)
}

func TestDecodePathMetaItem(t *testing.T) {
	d, err := DecodePath("mytable/.table-dataset.v3/meta/schema.json")
	require.NoError(t, err)
	assert.Equal(t, PartMeta, d.Part)
	assert.Equal(t, "schema.json", d.Rest)
}

func TestDecodePathRejectsLegacyLayout(t *testing.T) {
	_, err := DecodePath("mytable/.sno-table/features/1")
	assert.Error(t, err)
}

func TestDecodePathNoMarkerFound(t *testing.T) {
	_, err := DecodePath("just/a/path")
	assert.Error(t, err)
}

func testSchema() Schema {
	return Schema{Columns: []Column{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Name: "id", DataType: TypeInteger, PKIndex: 1},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Name: "name", DataType: TypeText},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Name: "geom", DataType: TypeGeometry},
	}}
}

func TestSchemaRoundTrip(t *testing.T) {
	s := testSchema()
	data, err := EncodeSchema(s)
	require.NoError(t, err)

	decoded, err := DecodeSchema(data)
	require.NoError(t, err)
	require.Len(t, decoded.Columns, 3)
	assert.Equal(t, s.Columns[0].ID, decoded.Columns[0].ID)
}

func TestSchemaValidateRejectsNoPK(t *testing.T) {
	s := Schema{Columns: []Column{{ID: uuid.New(), Name: "x", DataType: TypeText}}}
	assert.Error(t, s.Validate())
}

func TestSchemaValidateRejectsDuplicatePK(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	s := Schema{Columns: []Column{
		{ID: id1, Name: "a", DataType: TypeInteger, PKIndex: 1},
		{ID: id2, Name: "b", DataType: TypeInteger, PKIndex: 1},
	}}
	assert.Error(t, s.Validate())
}

func TestFeatureEncodeDecodeRoundTrip(t *testing.T) {
	s := testSchema()
	f := Feature{
		"00000000-0000-0000-0000-000000000001": int64(42),
		"00000000-0000-0000-0000-000000000002": "hello",
		"00000000-0000-0000-0000-000000000003": Geometry{SRID: 4326, WKB: []byte{0x01, 0x02, 0x03}},
	}

	data, err := EncodeFeature(s, f)
	require.NoError(t, err)

	decoded, err := DecodeFeature(s, data)
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded["00000000-0000-0000-0000-000000000002"])
	geom, ok := decoded["00000000-0000-0000-0000-000000000003"].(Geometry)
	require.True(t, ok)
	assert.Equal(t, int32(4326), geom.SRID)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, geom.WKB)
}

func TestFeatureEncodeDecodeHandlesNulls(t *testing.T) {
	s := testSchema()
	f := Feature{
		"00000000-0000-0000-0000-000000000002": nil,
		"00000000-0000-0000-0000-000000000003": nil,
	}
	data, err := EncodeFeature(s, f)
	require.NoError(t, err)

	decoded, err := DecodeFeature(s, data)
	require.NoError(t, err)
	assert.Nil(t, decoded["00000000-0000-0000-0000-000000000002"])
	assert.Nil(t, decoded["00000000-0000-0000-0000-000000000003"])
}

func TestFeaturePathRoundTrip(t *testing.T) {
	s := testSchema()
	f := Feature{"00000000-0000-0000-0000-000000000001": int64(7)}
	pk, err := EncodePKValue(s, f)
	require.NoError(t, err)

	path := FeaturePath(pk)
	decoded, err := DecodePath("mytable/.table-dataset.v3/" + path)
	require.NoError(t, err)
	assert.Equal(t, PartFeature, decoded.Part)

	recoveredPK, err := DecodeFeatureKeyFromPath(decoded.Rest)
	require.NoError(t, err)
	assert.Equal(t, pk, recoveredPK)
}

func TestTilePointerRoundTrip(t *testing.T) {
	p := Pointer{OID: "sha256:" + Sha256Hex([]byte("tile bytes")), Size: 10, FormatHint: "tif"}
	data, err := EncodeTilePointer(p)
	require.NoError(t, err)

	decoded, err := DecodeTilePointer(data)
	require.NoError(t, err)
	assert.Equal(t, p.OID, decoded.OID)
	assert.Equal(t, p.Size, decoded.Size)
	assert.Equal(t, p.FormatHint, decoded.FormatHint)
}

func TestTilePathForFanOut(t *testing.T) {
	hexDigest := Sha256Hex([]byte("tile bytes"))
	path, err := TilePathFor(hexDigest)
	require.NoError(t, err)
	assert.Equal(t, hexDigest[0:2]+"/"+hexDigest[2:4]+"/"+hexDigest, path)
}
