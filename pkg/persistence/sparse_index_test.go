package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex() *SparseIndex {
	si := NewSparseIndex()
	si.Insert([]byte("b"), Position{Start: 0, Len: 10})
	si.Insert([]byte("f"), Position{Start: 10, Len: 20})
	si.Insert([]byte("m"), Position{Start: 30, Len: 15})
	return si
}

func TestSparseIndexLookup(t *testing.T) {
	si := buildIndex()

	// Exact first keys hit their own block.
	pos, ok := si.Lookup([]byte("b"))
	require.True(t, ok)
	assert.Equal(t, Position{Start: 0, Len: 10}, pos)

	// A key between two first keys hits the preceding block.
	pos, ok = si.Lookup([]byte("d"))
	require.True(t, ok)
	assert.Equal(t, Position{Start: 0, Len: 10}, pos)

	pos, ok = si.Lookup([]byte("g"))
	require.True(t, ok)
	assert.Equal(t, Position{Start: 10, Len: 20}, pos)

	// Past the last first key the last block covers.
	pos, ok = si.Lookup([]byte("z"))
	require.True(t, ok)
	assert.Equal(t, Position{Start: 30, Len: 15}, pos)

	// Before the first block nothing covers.
	_, ok = si.Lookup([]byte("a"))
	assert.False(t, ok)
}

func TestSparseIndexBlockFor(t *testing.T) {
	si := buildIndex()

	assert.Equal(t, 0, si.BlockFor([]byte("a")))
	assert.Equal(t, 0, si.BlockFor([]byte("b")))
	assert.Equal(t, 1, si.BlockFor([]byte("g")))
	assert.Equal(t, 2, si.BlockFor([]byte("z")))
}

func TestSparseIndexAccessors(t *testing.T) {
	si := buildIndex()

	assert.Equal(t, 3, si.Len())
	assert.Equal(t, [][]byte{[]byte("b"), []byte("f"), []byte("m")}, si.Keys())

	first, ok := si.FirstKey()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), first)

	key, pos := si.At(1)
	assert.Equal(t, []byte("f"), key)
	assert.Equal(t, Position{Start: 10, Len: 20}, pos)

	_, ok = NewSparseIndex().FirstKey()
	assert.False(t, ok)
}

func TestSparseIndexMarshalDeterministic(t *testing.T) {
	si := buildIndex()

	data1, err := si.Marshal()
	require.NoError(t, err)
	data2, err := si.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data1, data2)

	restored, err := UnmarshalSparseIndex(data1)
	require.NoError(t, err)
	assert.True(t, si.Equal(restored))

	// Round-tripping again reproduces the bytes exactly.
	data3, err := restored.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data1, data3)
}
