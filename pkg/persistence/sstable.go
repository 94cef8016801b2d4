package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"kipdb/pkg/command"
	"kipdb/pkg/dberrors"

	"github.com/vmihailenco/msgpack/v5"
)

// SsTable is an immutable on-disk table: data blocks of framed commands,
// a sparse-index record disguised as one more framed Set command, and a
// fixed-size MetaInfo footer. Concurrent queries are safe: nothing but the
// level field is mutated after construction.
type SsTable struct {
	metaInfo    MetaInfo
	sparseIndex *SparseIndex
	io          *IOHandler
	gen         int64
	score       Score
}

// CreateForImmutableTable persists a non-empty, ascending-sorted batch of
// commands as a new table. Commands are grouped into blocks of up to
// partSize; each block is indexed by its first key. A failed create leaves
// the file in an undefined state; the caller cleans up.
func CreateForImmutableTable(ctx context.Context, io *IOHandler, cmds []*command.Command, level uint64, partSize uint64) (*SsTable, error) {
	score, err := ScoreFromBatch(cmds)
	if err != nil {
		return nil, err
	}

	gen := io.Gen()
	sparseIndex := NewSparseIndex()

	block := make([]*command.Command, 0, partSize)
	for _, cmd := range cmds {
		block = append(block, cmd)
		if uint64(len(block)) >= partSize {
			if err := writeDataPart(ctx, io, block, sparseIndex); err != nil {
				return nil, err
			}
			block = block[:0]
		}
	}
	// The remainder forms the final, possibly short, block.
	if len(block) > 0 {
		if err := writeDataPart(ctx, io, block, sparseIndex); err != nil {
			return nil, err
		}
	}

	// Disguise the sparse index as one more framed Set command so the
	// reader reuses the data-block framing: key carries the index, value
	// the score. Its start offset is exactly the data region length.
	indexBytes, err := sparseIndex.Marshal()
	if err != nil {
		return nil, err
	}
	scoreBytes, err := msgpack.Marshal(&score)
	if err != nil {
		return nil, err
	}
	dataLen, indexLen, err := command.Write(ctx, io, command.NewSet(indexBytes, scoreBytes))
	if err != nil {
		return nil, err
	}

	metaInfo := MetaInfo{
		Level:    level,
		Version:  0,
		DataLen:  dataLen,
		IndexLen: indexLen,
		PartSize: partSize,
	}
	if err := metaInfo.WriteToFile(ctx, io); err != nil {
		return nil, err
	}
	if err := io.Flush(ctx); err != nil {
		return nil, err
	}

	slog.Info("sstable created", "gen", gen, "level", level, "blocks", sparseIndex.Len(), "data_len", dataLen)
	return &SsTable{
		metaInfo:    metaInfo,
		sparseIndex: sparseIndex,
		io:          io,
		gen:         gen,
		score:       score,
	}, nil
}

// writeDataPart appends one block of framed commands and indexes it under
// the block's first key.
func writeDataPart(ctx context.Context, io *IOHandler, block []*command.Command, sparseIndex *SparseIndex) error {
	var startPos, partLen uint64
	for i, cmd := range block {
		start, n, err := command.WriteBackRealPos(ctx, io, cmd)
		if err != nil {
			return err
		}
		if i == 0 {
			startPos = start
		}
		partLen += n
	}

	sparseIndex.Insert(block[0].KeyClone(), Position{Start: startPos, Len: partLen})
	return nil
}

// RestoreFromFile rebuilds a table handle from an existing file: footer
// first, then the framed sparse-index record. The data region is never
// scanned.
func RestoreFromFile(ctx context.Context, io *IOHandler) (*SsTable, error) {
	gen := io.Gen()

	metaInfo, err := ReadMetaInfo(ctx, io)
	if err != nil {
		return nil, err
	}
	if metaInfo.Version != 0 {
		return nil, fmt.Errorf("%w: version %d", dberrors.ErrVersionMismatch, metaInfo.Version)
	}
	slog.Info("sstable restored", "gen", gen, "level", metaInfo.Level, "data_len", metaInfo.DataLen)

	cmd, err := command.FromPosUnpack(ctx, io, metaInfo.DataLen, metaInfo.IndexLen)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, dberrors.ErrKeyNotFound
	}
	if !cmd.IsSet() {
		return nil, dberrors.ErrNotMatchCmd
	}

	sparseIndex, err := UnmarshalSparseIndex(cmd.Key)
	if err != nil {
		return nil, err
	}
	var score Score
	if err := msgpack.Unmarshal(cmd.Value, &score); err != nil {
		return nil, err
	}

	return &SsTable{
		metaInfo:    metaInfo,
		sparseIndex: sparseIndex,
		io:          io,
		gen:         gen,
		score:       score,
	}, nil
}

// LookupBlock locates the block that may contain key: the greatest
// sparse-index entry whose first key is <= key.
func (t *SsTable) LookupBlock(key []byte) (Position, bool) {
	return t.sparseIndex.Lookup(key)
}

// ReadZone reads the byte range of one block.
func (t *SsTable) ReadZone(ctx context.Context, pos Position) ([]byte, error) {
	return t.io.ReadWithPos(ctx, pos.Start, pos.Len)
}

// Query returns the last command for key within its covering block, or nil
// when the table cannot contain key.
func (t *SsTable) Query(ctx context.Context, key []byte) (*command.Command, error) {
	pos, ok := t.LookupBlock(key)
	if !ok {
		return nil, nil
	}

	zone, err := t.ReadZone(ctx, pos)
	if err != nil {
		return nil, err
	}
	return command.FindKeyWithZoneUnpack(zone, key)
}

// GetAllData reads the whole data region in one positioned read and
// returns every framed command in file order. Used by compaction, not by
// point queries.
func (t *SsTable) GetAllData(ctx context.Context) ([]*command.Command, error) {
	zone, err := t.io.ReadWithPos(ctx, 0, t.metaInfo.DataLen)
	if err != nil {
		return nil, err
	}
	return command.FromZoneToVec(zone)
}

// Level reassigns the table's level. Single-writer: callers hold the
// manifest lock during compaction.
func (t *SsTable) Level(level uint64) {
	t.metaInfo.Level = level
}

func (t *SsTable) GetLevel() int {
	return int(t.metaInfo.Level)
}

func (t *SsTable) GetVersion() uint64 {
	return t.metaInfo.Version
}

func (t *SsTable) GetGen() int64 {
	return t.gen
}

func (t *SsTable) GetScore() Score {
	return t.score
}

func (t *SsTable) MetaInfo() MetaInfo {
	return t.metaInfo
}

func (t *SsTable) SparseIndex() *SparseIndex {
	return t.sparseIndex
}

func (t *SsTable) Path() string {
	return t.io.Path()
}

func (t *SsTable) Close() error {
	return t.io.Close()
}

// CollectGen collects the gens of a group of tables.
func CollectGen(tables []*SsTable) []int64 {
	gens := make([]int64, 0, len(tables))
	for _, t := range tables {
		gens = append(gens, t.GetGen())
	}
	return gens
}

// FirstIndexWithLevel returns the manifest position of the first table in
// tables at the given level, defaulting to 0 for an empty group or a gen
// the manifest does not know.
func FirstIndexWithLevel(tables []*SsTable, manifest *Manifest, level int) int {
	if len(tables) == 0 {
		return 0
	}
	if idx, ok := manifest.GetIndex(level, tables[0].GetGen()); ok {
		return idx
	}
	return 0
}
