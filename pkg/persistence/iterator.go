package persistence

import (
	"bytes"
	"context"

	"kipdb/pkg/command"
	"kipdb/pkg/iterator"
	"kipdb/pkg/types"
)

// SsTableIter walks one table block by block, decoding each block's framed
// commands on demand. It satisfies iterator.Iterator; tombstones surface
// with a nil value, and callers filter them as needed.
type SsTableIter struct {
	ctx   context.Context
	table *SsTable

	block int
	cmds  []*command.Command
	pos   int
	err   error
}

var _ iterator.Iterator = (*SsTableIter)(nil)

// NewSsTableIter positions a fresh iterator before the first entry; call
// First, Last or Seek to place it.
func NewSsTableIter(ctx context.Context, table *SsTable) *SsTableIter {
	return &SsTableIter{ctx: ctx, table: table, block: -1}
}

// loadBlock decodes block i, or invalidates the iterator when i is out of
// range.
func (it *SsTableIter) loadBlock(i int) {
	if it.err != nil {
		return
	}
	if i < 0 || i >= it.table.sparseIndex.Len() {
		it.block, it.cmds, it.pos = -1, nil, 0
		return
	}

	_, pos := it.table.sparseIndex.At(i)
	zone, err := it.table.ReadZone(it.ctx, pos)
	if err != nil {
		it.err = err
		it.cmds = nil
		return
	}
	cmds, err := command.FromZoneToVec(zone)
	if err != nil {
		it.err = err
		it.cmds = nil
		return
	}
	it.block, it.cmds, it.pos = i, cmds, 0
}

func (it *SsTableIter) First() {
	it.loadBlock(0)
}

func (it *SsTableIter) Last() {
	it.loadBlock(it.table.sparseIndex.Len() - 1)
	if it.Valid() {
		it.pos = len(it.cmds) - 1
	}
}

// Seek places the iterator on the first entry with key >= target.
func (it *SsTableIter) Seek(target types.Key) {
	if it.table.sparseIndex.Len() == 0 {
		it.block, it.cmds = -1, nil
		return
	}

	it.loadBlock(it.table.sparseIndex.BlockFor(target))
	for it.Valid() && bytes.Compare(it.cmds[it.pos].Key, target) < 0 {
		it.Next()
	}
}

func (it *SsTableIter) Next() {
	if !it.Valid() {
		return
	}
	it.pos++
	if it.pos >= len(it.cmds) {
		it.loadBlock(it.block + 1)
	}
}

func (it *SsTableIter) Prev() {
	if !it.Valid() {
		return
	}
	it.pos--
	if it.pos < 0 {
		it.loadBlock(it.block - 1)
		if it.Valid() {
			it.pos = len(it.cmds) - 1
		}
	}
}

func (it *SsTableIter) Valid() bool {
	return it.err == nil && it.cmds != nil && it.pos >= 0 && it.pos < len(it.cmds)
}

func (it *SsTableIter) Key() types.Key {
	if !it.Valid() {
		return nil
	}
	return it.cmds[it.pos].Key
}

func (it *SsTableIter) Value() types.Value {
	if !it.Valid() {
		return nil
	}
	return it.cmds[it.pos].Value
}

func (it *SsTableIter) Err() error {
	return it.err
}

func (it *SsTableIter) Close() error {
	it.cmds = nil
	it.block = -1
	return nil
}
