package store

import (
	"context"
	"fmt"
	"log/slog"

	"kipdb/pkg/listener"
	"kipdb/pkg/memtable"
	"kipdb/pkg/metrics"
	"kipdb/pkg/types"
)

type flushJob struct {
	mt  *memtable.Memtable
	seq types.SeqN
}

// Flusher drains rotated memtables in the background and persists each as
// a level-0 table.
type Flusher struct {
	*listener.Listener[flushJob]
}

func NewFlusher(in <-chan flushJob, s *Store) *Flusher {
	f := &Flusher{}
	f.Listener = listener.New(in, func(job flushJob) error {
		return s.flushSnapshot(context.Background(), job)
	})
	return f
}

// flushSnapshot persists one rotated memtable, advances the persistent
// sequence and kicks compaction when level 0 reaches the threshold.
func (s *Store) flushSnapshot(ctx context.Context, job flushJob) error {
	cmds := job.mt.Snapshot()
	if len(cmds) == 0 {
		s.dropImm(job.mt)
		return nil
	}

	if _, err := s.levels.FlushTable(ctx, cmds, 0, s.cfg.Persistence.SSTable.PartSize); err != nil {
		return fmt.Errorf("failed to flush memtable: %w", err)
	}
	s.manifest.SetPersistentSeq(job.seq)
	if err := s.manifest.Save(); err != nil {
		return err
	}
	s.dropImm(job.mt)
	metrics.FlushTotal.Inc()
	slog.Info("memtable flushed", "commands", len(cmds), "seq", job.seq)

	if !s.closed.Load() {
		if err := s.compactor.MaybeCompact(ctx, 0); err != nil {
			slog.Error("compaction failed", "level", 0, "error", err)
		}
	}
	return nil
}
