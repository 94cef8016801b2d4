package command

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Frame layout: bodyLen(4, little endian) | msgpack body.
const lenPrefixSize = 4

// Appender appends raw bytes to a file, returning the offset the write
// started at and the number of bytes written.
type Appender interface {
	Append(ctx context.Context, data []byte) (start uint64, n uint64, err error)
}

// ReaderAt reads a byte range at an absolute file offset.
type ReaderAt interface {
	ReadWithPos(ctx context.Context, start uint64, n uint64) ([]byte, error)
}

// Write frames cmd and appends it, returning the frame's start offset and
// its framed length (prefix included).
func Write(ctx context.Context, w Appender, cmd *Command) (uint64, uint64, error) {
	body, err := Marshal(cmd)
	if err != nil {
		return 0, 0, err
	}
	if len(body) > math.MaxUint32 {
		return 0, 0, fmt.Errorf("command too large: %d", len(body))
	}

	framed := make([]byte, lenPrefixSize+len(body))
	binary.LittleEndian.PutUint32(framed, uint32(len(body)))
	copy(framed[lenPrefixSize:], body)

	start, n, err := w.Append(ctx, framed)
	if err != nil {
		return 0, 0, err
	}
	return start, n, nil
}

// WriteBackRealPos appends a framed command on the data path. It shares
// Write's append semantics; the name marks call sites that must record the
// real frame position for the sparse index.
func WriteBackRealPos(ctx context.Context, w Appender, cmd *Command) (uint64, uint64, error) {
	return Write(ctx, w, cmd)
}

// FromPosUnpack reads n bytes at start and decodes the single framed
// command found there. It returns nil when the zone holds no frame.
func FromPosUnpack(ctx context.Context, r ReaderAt, start uint64, n uint64) (*Command, error) {
	if n < lenPrefixSize {
		return nil, nil
	}
	zone, err := r.ReadWithPos(ctx, start, n)
	if err != nil {
		return nil, err
	}

	bodyLen := binary.LittleEndian.Uint32(zone)
	if bodyLen == 0 || uint64(bodyLen) > uint64(len(zone))-lenPrefixSize {
		return nil, nil
	}
	return Unmarshal(zone[lenPrefixSize : lenPrefixSize+bodyLen])
}

// FromZoneToVec decodes every framed command in zone, in order.
func FromZoneToVec(zone []byte) ([]*Command, error) {
	var cmds []*Command
	for off := 0; off+lenPrefixSize <= len(zone); {
		bodyLen := int(binary.LittleEndian.Uint32(zone[off:]))
		off += lenPrefixSize
		if bodyLen == 0 || off+bodyLen > len(zone) {
			return nil, fmt.Errorf("corrupt frame at offset %d: body length %d", off-lenPrefixSize, bodyLen)
		}
		cmd, err := Unmarshal(zone[off : off+bodyLen])
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
		off += bodyLen
	}
	return cmds, nil
}

// FindKeyWithZoneUnpack scans the framed commands of zone and returns the
// last command whose key equals key. Later writes within a zone supersede
// earlier ones.
func FindKeyWithZoneUnpack(zone []byte, key []byte) (*Command, error) {
	cmds, err := FromZoneToVec(zone)
	if err != nil {
		return nil, err
	}

	var found *Command
	for _, cmd := range cmds {
		if string(cmd.Key) == string(key) {
			found = cmd
		}
	}
	return found, nil
}
