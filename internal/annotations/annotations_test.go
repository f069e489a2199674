package annotations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, FeatureCountKind, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	key := SymmetricRangeKey("aaa", "bbb")
	require.NoError(t, s.Put(ctx, FeatureCountKind, key, []byte("42")))

	value, ok, err := s.Get(ctx, FeatureCountKind, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("42"), value)
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, FeatureCountKind, "x", []byte("1")))
	require.NoError(t, s.Put(ctx, FeatureCountKind, "x", []byte("2")))

	value, ok, err := s.Get(ctx, FeatureCountKind, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), value)
}

func TestSymmetricRangeKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, SymmetricRangeKey("a", "b"), SymmetricRangeKey("b", "a"))
}
