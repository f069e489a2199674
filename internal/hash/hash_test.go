package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePanicsOnMalformed(t *testing.T) {
	assertPanics := func(s string) {
		assert.Panics(t, func() { Parse(s) })
	}

	assertPanics("foo")
	assertPanics("00000000000000000000000000000000000000x")
	assertPanics("")

	h := Parse("0000000000000000000000000000000000000000000000000000000000000000"[:64])
	assert.True(t, h.IsEmpty())
}

func TestMaybeParse(t *testing.T) {
	h, ok := MaybeParse("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	assert.True(t, ok)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.String())
	assert.Equal(t, 32, h.Size())

	_, ok = MaybeParse("not-hex-at-all-and-wrong-length")
	assert.False(t, ok)

	_, ok = MaybeParse("")
	assert.False(t, ok)
}

func TestOfIsDeterministic(t *testing.T) {
	h1 := Of([]byte("abc"))
	h2 := Of([]byte("abc"))
	assert.Equal(t, h1, h2)
	assert.Equal(t, "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h1.SHA256Prefixed())
}

func TestIsEmpty(t *testing.T) {
	var h Hash
	assert.True(t, h.IsEmpty())

	h2 := Of([]byte("x"))
	assert.False(t, h2.IsEmpty())
}

func TestLessAndCompare(t *testing.T) {
	a := FromBytes(make([]byte, 32))
	b := Of([]byte("anything"))

	assert.True(t, a.Less(b) || b.Less(a))
	assert.False(t, a.Less(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestSet(t *testing.T) {
	h1 := Of([]byte("a"))
	h2 := Of([]byte("b"))
	s := NewSet(h1)
	assert.True(t, s.Has(h1))
	assert.False(t, s.Has(h2))

	s.Insert(h2)
	assert.ElementsMatch(t, []Hash{h1, h2}, s.Slice())
}

func TestPrefixFanOut(t *testing.T) {
	h := Of([]byte("nz_pa_points_topo_150k/1"))
	p1 := h.Prefix(1)
	p2 := h.Prefix(2)
	assert.Len(t, p1, 1)
	assert.Len(t, p2, 2)
	assert.Equal(t, p1[0], p2[0])
	assert.Panics(t, func() { h.Prefix(64) })
}
