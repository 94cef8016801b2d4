package persistence

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

// MetaInfoSize is the fixed footer length: five uint64 fields.
const MetaInfoSize = 40

// MetaInfo is the fixed-layout trailer occupying the last MetaInfoSize
// bytes of a table file. DataLen is the byte length of the data region and
// therefore the file offset of the sparse-index record; IndexLen is the
// framed length of that record.
type MetaInfo struct {
	Level    uint64
	Version  uint64
	DataLen  uint64
	IndexLen uint64
	PartSize uint64
}

// WriteToFile appends the footer. All fields are little-endian uint64.
func (m *MetaInfo) WriteToFile(ctx context.Context, io *IOHandler) error {
	buf := bytes.NewBuffer(make([]byte, 0, MetaInfoSize))
	if err := binary.Write(buf, binary.LittleEndian, m); err != nil {
		return fmt.Errorf("failed to encode meta info: %w", err)
	}
	if _, _, err := io.Append(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write meta info: %w", err)
	}
	return nil
}

// ReadMetaInfo reads the footer from the last MetaInfoSize bytes of the
// file.
func ReadMetaInfo(ctx context.Context, io *IOHandler) (MetaInfo, error) {
	var m MetaInfo

	size := io.Size()
	if size < MetaInfoSize {
		return m, fmt.Errorf("table file too short for meta info: %d bytes", size)
	}

	data, err := io.ReadWithPos(ctx, size-MetaInfoSize, MetaInfoSize)
	if err != nil {
		return m, err
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &m); err != nil {
		return m, fmt.Errorf("failed to decode meta info: %w", err)
	}
	return m, nil
}
