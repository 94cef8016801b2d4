package command

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

type Op uint8

const (
	OpSet Op = iota + 1
	OpRemove
)

// Command represents a single logical mutation: a Set carrying a key and a
// value, or a Remove carrying only a key.
type Command struct {
	Op    Op     `msgpack:"o"`
	Key   []byte `msgpack:"k"`
	Value []byte `msgpack:"v"`
}

func NewSet(key, value []byte) *Command {
	return &Command{Op: OpSet, Key: key, Value: value}
}

func NewRemove(key []byte) *Command {
	return &Command{Op: OpRemove, Key: key}
}

// KeyClone returns a copy of the command key.
func (c *Command) KeyClone() []byte {
	return bytes.Clone(c.Key)
}

func (c *Command) IsSet() bool {
	return c.Op == OpSet
}

func (c *Command) IsRemove() bool {
	return c.Op == OpRemove
}

// Marshal encodes the command body. The framing prefix is not included.
func Marshal(cmd *Command) ([]byte, error) {
	return msgpack.Marshal(cmd)
}

// Unmarshal decodes a command body produced by Marshal.
func Unmarshal(data []byte) (*Command, error) {
	var cmd Command
	if err := msgpack.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}
