package workingcopy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-vcs/kart/internal/dataset"
)

func TestClassifyColumnChangeAdded(t *testing.T) {
	id := uuid.New()
	old := dataset.Schema{}
	new := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "x", DataType: dataset.TypeText}}}

	change, err := ClassifyColumnChange(old, new, id)
	require.NoError(t, err)
	assert.Equal(t, ColumnAdded, change)
}

func TestClassifyColumnChangeDropped(t *testing.T) {
	id := uuid.New()
	old := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "x", DataType: dataset.TypeText}}}
	new := dataset.Schema{}

	change, err := ClassifyColumnChange(old, new, id)
	require.NoError(t, err)
	assert.Equal(t, ColumnDropped, change)
}

func TestClassifyColumnChangeWidened(t *testing.T) {
	id := uuid.New()
	old := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "x", DataType: dataset.TypeInteger}}}
	new := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "x", DataType: dataset.TypeFloat}}}

	change, err := ClassifyColumnChange(old, new, id)
	require.NoError(t, err)
	assert.Equal(t, ColumnWidened, change)
}

func TestClassifyColumnChangeNarrowed(t *testing.T) {
	id := uuid.New()
	old := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "x", DataType: dataset.TypeText}}}
	new := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "x", DataType: dataset.TypeInteger}}}

	change, err := ClassifyColumnChange(old, new, id)
	require.NoError(t, err)
	assert.Equal(t, ColumnNarrowed, change)
}

func TestClassifyColumnChangeUnchanged(t *testing.T) {
	id := uuid.New()
	old := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "x", DataType: dataset.TypeText}}}
	new := dataset.Schema{Columns: []dataset.Column{{ID: id, Name: "renamed", DataType: dataset.TypeText}}}

	change, err := ClassifyColumnChange(old, new, id)
	require.NoError(t, err)
	assert.Equal(t, ColumnUnchanged, change)
}
