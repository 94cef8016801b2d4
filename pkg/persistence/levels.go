package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"kipdb/pkg/cache"
	"kipdb/pkg/command"
	"kipdb/pkg/metrics"
)

// LevelManager resolves reads across the LSM hierarchy. Table membership
// lives in the manifest as ordered gen lists; open table handles are
// memoized in a sharded LRU keyed by gen, and hot block zones are cached
// by (gen, offset). Neither cache is consulted inside SsTable itself.
type LevelManager struct {
	dir      string
	manifest *Manifest

	tableCache *cache.ShardingLruCache[int64, *SsTable]
	blockCache *cache.ShardingLruCache[string, []byte]
}

// NewLevelManager builds a level manager over dir. tableCap and blockCap
// are total cache capacities; both must align to shards.
func NewLevelManager(dir string, manifest *Manifest, tableCap, blockCap, shards int) (*LevelManager, error) {
	tableCache, err := cache.NewShardingLruCache[int64, *SsTable](tableCap, shards, cache.GenHash)
	if err != nil {
		return nil, err
	}
	blockCache, err := cache.NewShardingLruCache[string, []byte](blockCap, shards, cache.StringHash)
	if err != nil {
		return nil, err
	}

	return &LevelManager{
		dir:        dir,
		manifest:   manifest,
		tableCache: tableCache,
		blockCache: blockCache,
	}, nil
}

func (lm *LevelManager) Manifest() *Manifest {
	return lm.manifest
}

// loadTable returns the open handle for gen, restoring it from disk at
// most once while the handle stays cached.
func (lm *LevelManager) loadTable(ctx context.Context, gen int64) (*SsTable, error) {
	return lm.tableCache.GetOrInsert(gen, func(gen int64) (*SsTable, error) {
		io, err := OpenIOHandler(lm.dir, gen)
		if err != nil {
			return nil, err
		}
		table, err := RestoreFromFile(ctx, io)
		if err != nil {
			_ = io.Close()
			return nil, err
		}
		return table, nil
	})
}

// Tables loads every table of a level in manifest order.
func (lm *LevelManager) Tables(ctx context.Context, level int) ([]*SsTable, error) {
	gens := lm.manifest.LevelGens(level)
	tables := make([]*SsTable, 0, len(gens))
	for _, gen := range gens {
		table, err := lm.loadTable(ctx, gen)
		if err != nil {
			return nil, fmt.Errorf("failed to load table %d: %w", gen, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// TablesMeeting returns the tables of a level whose score meets the given
// range, in manifest order.
func (lm *LevelManager) TablesMeeting(ctx context.Context, level int, score Score) ([]*SsTable, error) {
	tables, err := lm.Tables(ctx, level)
	if err != nil {
		return nil, err
	}

	met := tables[:0]
	for _, t := range tables {
		if t.GetScore().Meets(score) {
			met = append(met, t)
		}
	}
	return met, nil
}

// Query searches levels top-down for the newest command covering key. L0
// tables may overlap and are scanned newest-first; deeper levels hold
// disjoint ranges.
func (lm *LevelManager) Query(ctx context.Context, key []byte) (*command.Command, error) {
	levels := lm.manifest.Levels()
	sort.Ints(levels)

	for _, level := range levels {
		gens := lm.manifest.LevelGens(level)
		for i := len(gens) - 1; i >= 0; i-- {
			table, err := lm.loadTable(ctx, gens[i])
			if err != nil {
				return nil, err
			}
			if !table.GetScore().InRange(key) {
				continue
			}

			cmd, err := lm.queryTable(ctx, table, key)
			if err != nil {
				return nil, err
			}
			if cmd != nil {
				return cmd, nil
			}
		}
	}
	return nil, nil
}

// queryTable resolves key within one table, going through the block cache
// so hot zones are read from disk once.
func (lm *LevelManager) queryTable(ctx context.Context, table *SsTable, key []byte) (*command.Command, error) {
	pos, ok := table.LookupBlock(key)
	if !ok {
		return nil, nil
	}

	zoneKey := fmt.Sprintf("%d:%d", table.GetGen(), pos.Start)
	zone, ok := lm.blockCache.Get(zoneKey)
	if ok {
		metrics.BlockCacheHits.Inc()
	} else {
		metrics.BlockCacheMisses.Inc()
		read, err := table.ReadZone(ctx, pos)
		if err != nil {
			return nil, err
		}
		lm.blockCache.Put(zoneKey, read)
		zone = read
	}
	return command.FindKeyWithZoneUnpack(zone, key)
}

// CreateTable persists a sorted batch as a new table at the given level
// and memoizes its handle. Manifest registration is the caller's move:
// flush appends, compaction splices.
func (lm *LevelManager) CreateTable(ctx context.Context, cmds []*command.Command, level int, partSize uint64) (*SsTable, error) {
	gen := lm.manifest.NextGen()
	io, err := OpenIOHandler(lm.dir, gen)
	if err != nil {
		return nil, err
	}

	table, err := CreateForImmutableTable(ctx, io, cmds, uint64(level), partSize)
	if err != nil {
		_ = io.Close()
		return nil, err
	}

	lm.tableCache.Put(gen, table)
	metrics.TableCount.WithLabelValues(fmt.Sprint(level)).Inc()
	return table, nil
}

// FlushTable persists a sorted batch as a new table at the end of a level.
func (lm *LevelManager) FlushTable(ctx context.Context, cmds []*command.Command, level int, partSize uint64) (*SsTable, error) {
	table, err := lm.CreateTable(ctx, cmds, level, partSize)
	if err != nil {
		return nil, err
	}
	lm.manifest.AppendTable(level, table.GetGen())
	return table, nil
}

// DropTables closes the given tables and deletes their files. Callers
// splice the manifest first so readers never see a dropped gen.
func (lm *LevelManager) DropTables(tables []*SsTable) {
	for _, table := range tables {
		gen := table.GetGen()
		if cached, ok := lm.tableCache.Remove(gen); ok {
			_ = cached.Close()
		}
		if err := os.Remove(table.Path()); err != nil {
			slog.Warn("failed to remove table file", "gen", gen, "path", table.Path(), "error", err)
		}
		metrics.TableCount.WithLabelValues(fmt.Sprint(table.GetLevel())).Dec()
	}
}

// Close releases every cached table handle.
func (lm *LevelManager) Close() {
	for _, level := range lm.manifest.Levels() {
		for _, gen := range lm.manifest.LevelGens(level) {
			if table, ok := lm.tableCache.Remove(gen); ok {
				_ = table.Close()
			}
		}
	}
}
