package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"kipdb/pkg/batch"
	"kipdb/pkg/command"
	"kipdb/pkg/config"
	"kipdb/pkg/listener"
	"kipdb/pkg/memtable"
	"kipdb/pkg/persistence"
	"kipdb/pkg/types"
	"kipdb/pkg/wal"
)

type iJournal interface {
	listener.Job

	Append(e wal.Entry)
	Done() <-chan types.SeqN
	Replay(start types.SeqN, callback func(wal.Entry) error) error
	Close() error
}

// Store is the engine: commands go WAL -> memtable, overflowing memtables
// rotate into the immutable list and flush to level-0 tables, reads walk
// memtable -> immutables -> levels.
type Store struct {
	cfg *config.Config
	jr  iJournal
	seq atomic.Uint64

	mu  sync.RWMutex
	mem *memtable.Memtable
	imm []*memtable.Memtable

	levels    *persistence.LevelManager
	manifest  *persistence.Manifest
	flusher   *Flusher
	compactor *Compactor
	flushCh   chan flushJob

	closed atomic.Bool
	close  func()
}

func New(cfg *config.Config, jr iJournal) (*Store, error) {
	if jr == nil {
		return nil, ErrWALNotInitialized
	}

	manifest := persistence.NewManifest(cfg.Persistence.RootPath)
	if err := manifest.Load(); err != nil {
		return nil, err
	}

	cacheCfg := cfg.Persistence.Cache
	levels, err := persistence.NewLevelManager(
		cfg.Persistence.RootPath, manifest,
		cacheCfg.TableCapacity, cacheCfg.BlockCapacity, cacheCfg.Shards,
	)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:      cfg,
		jr:       jr,
		mem:      memtable.New(cfg.Memtable.FlushThresholdBytes),
		levels:   levels,
		manifest: manifest,
	}
	s.seq.Store(manifest.PersistentSeq())
	s.compactor = NewCompactor(levels, manifest, cfg.Persistence)

	if err := s.restoreFromJournal(); err != nil {
		return nil, err
	}

	s.flushCh = make(chan flushJob, cfg.Memtable.FlushChanBuffSize)
	s.flusher = NewFlusher(s.flushCh, s)

	ctx := context.Background()
	s.flusher.Start(ctx)
	s.jr.Start(ctx)

	// Drain journal acks; durability per entry is the WAL's concern and
	// the channel must not back up the writer.
	go func() {
		for range s.jr.Done() {
		}
	}()

	s.close = func() {
		s.flusher.Stop()
		s.jr.Stop()
	}
	return s, nil
}

// restoreFromJournal replays commands newer than the last flushed sequence
// back into the memtable.
func (s *Store) restoreFromJournal() error {
	return s.jr.Replay(s.seq.Load()+1, func(entry wal.Entry) error {
		if entry.SeqNum > s.seq.Load() {
			s.seq.Store(entry.SeqNum)
		}
		s.mem.Insert(entry.Cmd)
		return nil
	})
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key types.Key, value types.Value) error {
	return s.apply(ctx, command.NewSet(key, value))
}

// Remove deletes key by writing a tombstone.
func (s *Store) Remove(ctx context.Context, key types.Key) error {
	return s.apply(ctx, command.NewRemove(key))
}

// Write applies the batch's commands in append order, each under its own
// sequence number. The batch is not applied atomically: writes from other
// goroutines can interleave with it, and on error the commands applied so
// far stay applied.
func (s *Store) Write(ctx context.Context, b *batch.WriteBatch) error {
	for _, cmd := range b.Commands() {
		if err := s.apply(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, cmd *command.Command) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seq := s.seq.Add(1)
	s.jr.Append(wal.Entry{SeqNum: seq, Cmd: cmd})

	s.mu.Lock()
	var job *flushJob
	if overflow := s.mem.Insert(cmd); overflow {
		full := s.mem
		s.imm = append(s.imm, full)
		s.mem = memtable.New(s.cfg.Memtable.FlushThresholdBytes)
		job = &flushJob{mt: full, seq: seq}
	}
	s.mu.Unlock()

	// The send happens outside s.mu: the flusher takes the same lock to
	// drop a flushed memtable, and the channel may be full.
	if job != nil {
		s.flushCh <- *job
	}
	return nil
}

// Get returns the newest value for key, or found == false when the key is
// absent or tombstoned.
func (s *Store) Get(ctx context.Context, key types.Key) (types.Value, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrStoreClosed
	}

	s.mu.RLock()
	cmd, ok := s.mem.Get(key)
	if !ok {
		for i := len(s.imm) - 1; i >= 0 && !ok; i-- {
			cmd, ok = s.imm[i].Get(key)
		}
	}
	s.mu.RUnlock()

	if ok {
		if cmd.IsRemove() {
			return nil, false, nil
		}
		return cmd.Value, true, nil
	}

	cmd, err := s.levels.Query(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query levels: %w", err)
	}
	if cmd == nil || cmd.IsRemove() {
		return nil, false, nil
	}
	return cmd.Value, true, nil
}

// Flush synchronously persists the active memtable as a level-0 table.
func (s *Store) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.mu.Lock()
	full := s.mem
	seq := s.seq.Load()
	if full.IsEmpty() {
		s.mu.Unlock()
		return nil
	}
	s.imm = append(s.imm, full)
	s.mem = memtable.New(s.cfg.Memtable.FlushThresholdBytes)
	s.mu.Unlock()

	return s.flushSnapshot(ctx, flushJob{mt: full, seq: seq})
}

// dropImm removes a flushed memtable from the immutable list.
func (s *Store) dropImm(mt *memtable.Memtable) {
	s.mu.Lock()
	for i, im := range s.imm {
		if im == mt {
			s.imm = append(s.imm[:i], s.imm[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// Close drains pending work, flushes the active memtable and releases all
// table handles.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.close()

	ctx := context.Background()
	s.mu.Lock()
	pending := append([]*memtable.Memtable{}, s.imm...)
	if !s.mem.IsEmpty() {
		pending = append(pending, s.mem)
	}
	seq := s.seq.Load()
	s.mu.Unlock()

	for _, mt := range pending {
		if err := s.flushSnapshot(ctx, flushJob{mt: mt, seq: seq}); err != nil {
			return err
		}
	}

	s.levels.Close()
	if err := s.manifest.Save(); err != nil {
		return err
	}
	return s.jr.Close()
}
