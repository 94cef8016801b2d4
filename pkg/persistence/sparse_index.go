package persistence

import (
	"bytes"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Position points at a contiguous run of framed commands inside a table
// file: Start is the byte offset from the file origin, Len the run length.
type Position struct {
	Start uint64 `msgpack:"s"`
	Len   uint64 `msgpack:"l"`
}

type indexEntry struct {
	Key []byte   `msgpack:"k"`
	Pos Position `msgpack:"p"`
}

// SparseIndex maps the first key of each data block to the block's byte
// range. Keys are unique and lexicographically ascending; the index is
// append-only during table construction and immutable afterwards.
type SparseIndex struct {
	entries []indexEntry
}

func NewSparseIndex() *SparseIndex {
	return &SparseIndex{}
}

// Insert appends a block entry. The build path walks the batch in key
// order, so keys arrive ascending.
func (si *SparseIndex) Insert(key []byte, pos Position) {
	si.entries = append(si.entries, indexEntry{Key: key, Pos: pos})
}

// Lookup returns the position of the greatest entry whose key is <= key:
// the block that may contain key. ok is false when key sorts before the
// first block.
func (si *SparseIndex) Lookup(key []byte) (Position, bool) {
	i := sort.Search(len(si.entries), func(i int) bool {
		return bytes.Compare(si.entries[i].Key, key) > 0
	})
	if i == 0 {
		return Position{}, false
	}
	return si.entries[i-1].Pos, true
}

func (si *SparseIndex) Len() int {
	return len(si.entries)
}

// At returns the i-th block's first key and position, in index order.
func (si *SparseIndex) At(i int) ([]byte, Position) {
	e := si.entries[i]
	return e.Key, e.Pos
}

// BlockFor returns the ordinal of the block that may contain key: the
// greatest entry whose key is <= key, or 0 when key sorts before the
// first block.
func (si *SparseIndex) BlockFor(key []byte) int {
	i := sort.Search(len(si.entries), func(i int) bool {
		return bytes.Compare(si.entries[i].Key, key) > 0
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// Keys returns the block first-keys in index order.
func (si *SparseIndex) Keys() [][]byte {
	keys := make([][]byte, 0, len(si.entries))
	for _, e := range si.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// FirstKey returns the smallest indexed key.
func (si *SparseIndex) FirstKey() ([]byte, bool) {
	if len(si.entries) == 0 {
		return nil, false
	}
	return si.entries[0].Key, true
}

// Equal reports whether two indexes hold identical entries.
func (si *SparseIndex) Equal(other *SparseIndex) bool {
	if len(si.entries) != len(other.entries) {
		return false
	}
	for i, e := range si.entries {
		o := other.entries[i]
		if !bytes.Equal(e.Key, o.Key) || e.Pos != o.Pos {
			return false
		}
	}
	return true
}

// Marshal encodes the index deterministically: entries are serialized in
// index order, so reopen reproduces the bytes exactly.
func (si *SparseIndex) Marshal() ([]byte, error) {
	return msgpack.Marshal(si.entries)
}

// UnmarshalSparseIndex decodes an index produced by Marshal.
func UnmarshalSparseIndex(data []byte) (*SparseIndex, error) {
	var entries []indexEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return &SparseIndex{entries: entries}, nil
}
