package types

// Key is an immutable byte slice type alias used for clarity.
type Key = []byte

// Value is an immutable byte slice type alias used for clarity.
type Value = []byte

// SeqN represents a monotonically increasing sequence used for WAL ordering.
type SeqN = uint64

// Gen identifies an SSTable file. Gens are assigned monotonically by the
// engine; a larger gen means a younger table.
type Gen = int64
