package memtable

import (
	"sync/atomic"

	"kipdb/pkg/command"

	"github.com/zhangyunhao116/skipmap"
)

// Memtable buffers recent commands in a concurrent ordered map until the
// byte-size threshold is reached, then the engine swaps it out and hands
// the sorted snapshot to the flusher. Keys order bytewise, matching the
// on-disk sort.
type Memtable struct {
	threshold int64
	size      atomic.Int64
	entries   *skipmap.OrderedMap[string, *command.Command]
}

func New(threshold int64) *Memtable {
	return &Memtable{
		threshold: threshold,
		entries:   skipmap.New[string, *command.Command](),
	}
}

// Insert upserts cmd and reports whether the memtable has reached its
// threshold afterwards. Remove commands are stored as tombstones.
func (mt *Memtable) Insert(cmd *command.Command) bool {
	mt.entries.Store(string(cmd.Key), cmd)
	mt.size.Add(int64(len(cmd.Key) + len(cmd.Value) + 1))
	return mt.size.Load() >= mt.threshold
}

// Get returns the latest command for key, tombstones included.
func (mt *Memtable) Get(key []byte) (*command.Command, bool) {
	return mt.entries.Load(string(key))
}

// Snapshot returns all commands in ascending key order.
func (mt *Memtable) Snapshot() []*command.Command {
	cmds := make([]*command.Command, 0, mt.entries.Len())
	mt.entries.Range(func(_ string, cmd *command.Command) bool {
		cmds = append(cmds, cmd)
		return true
	})
	return cmds
}

func (mt *Memtable) Len() int {
	return mt.entries.Len()
}

func (mt *Memtable) IsEmpty() bool {
	return mt.entries.Len() == 0
}

// Size returns the approximate buffered byte size.
func (mt *Memtable) Size() int64 {
	return mt.size.Load()
}
