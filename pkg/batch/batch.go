package batch

import (
	"kipdb/pkg/command"
	"kipdb/pkg/types"
)

// WriteBatch groups multiple mutations so the engine can apply them in one
// call, in append order.
type WriteBatch struct {
	cmds []*command.Command
}

func New() *WriteBatch {
	return &WriteBatch{}
}

func (b *WriteBatch) Put(key types.Key, value types.Value) {
	b.cmds = append(b.cmds, command.NewSet(key, value))
}

func (b *WriteBatch) Delete(key types.Key) {
	b.cmds = append(b.cmds, command.NewRemove(key))
}

func (b *WriteBatch) Clear() {
	b.cmds = b.cmds[:0]
}

func (b *WriteBatch) Count() int {
	return len(b.cmds)
}

// Commands returns the buffered mutations in append order.
func (b *WriteBatch) Commands() []*command.Command {
	return b.cmds
}
