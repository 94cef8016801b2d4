package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"kipdb/pkg/command"
	"kipdb/pkg/config"
	"kipdb/pkg/metrics"
	"kipdb/pkg/persistence"
)

// Compactor merges a crowded level into the next one. Candidate selection
// runs on the score algebra: the source level's fused score picks the
// overlapping next-level tables, and the manifest splice lands the merged
// table at the position of the first victim.
type Compactor struct {
	mu       sync.Mutex
	levels   *persistence.LevelManager
	manifest *persistence.Manifest
	cfg      config.PersistenceConfig
}

func NewCompactor(levels *persistence.LevelManager, manifest *persistence.Manifest, cfg config.PersistenceConfig) *Compactor {
	return &Compactor{
		levels:   levels,
		manifest: manifest,
		cfg:      cfg,
	}
}

// MaybeCompact runs a major compaction when level holds at least the
// configured table count. One compaction runs at a time.
func (c *Compactor) MaybeCompact(ctx context.Context, level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tables, err := c.levels.Tables(ctx, level)
	if err != nil {
		return err
	}
	if len(tables) < c.cfg.Compaction.Threshold {
		return nil
	}
	return c.majorCompaction(ctx, level, tables)
}

func (c *Compactor) majorCompaction(ctx context.Context, level int, tables []*persistence.SsTable) error {
	score, err := persistence.FuseTableScores(tables)
	if err != nil {
		return err
	}

	next, err := c.levels.TablesMeeting(ctx, level+1, score)
	if err != nil {
		return err
	}
	index := persistence.FirstIndexWithLevel(next, c.manifest, level+1)

	// Merge oldest-first so newer commands overwrite older ones: the
	// next level predates the source level, and within a level the
	// manifest orders tables oldest to newest.
	ordered := make([]*persistence.SsTable, 0, len(next)+len(tables))
	ordered = append(ordered, next...)
	ordered = append(ordered, tables...)

	merged := make(map[string]*command.Command)
	for _, t := range ordered {
		cmds, err := t.GetAllData(ctx)
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			merged[string(cmd.Key)] = cmd
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Tombstones fall away once nothing deeper can hold the key.
	dropTombstones := c.isBottom(level + 1)
	out := make([]*command.Command, 0, len(keys))
	for _, k := range keys {
		cmd := merged[k]
		if dropTombstones && cmd.IsRemove() {
			continue
		}
		out = append(out, cmd)
	}

	removeGens := append(persistence.CollectGen(tables), persistence.CollectGen(next)...)
	var insertGens []int64
	if len(out) > 0 {
		newTable, err := c.levels.CreateTable(ctx, out, level+1, c.cfg.SSTable.PartSize)
		if err != nil {
			return err
		}
		insertGens = []int64{newTable.GetGen()}
	}

	c.manifest.SpliceTables(level+1, index, removeGens, insertGens)
	c.levels.DropTables(ordered)
	if err := c.manifest.Save(); err != nil {
		return err
	}

	metrics.CompactionTotal.Inc()
	slog.Info("major compaction done",
		"level", level, "merged_tables", len(ordered), "out_commands", len(out))
	return nil
}

// isBottom reports whether no level deeper than target holds tables.
func (c *Compactor) isBottom(target int) bool {
	for _, level := range c.manifest.Levels() {
		if level > target && len(c.manifest.LevelGens(level)) > 0 {
			return false
		}
	}
	return true
}
