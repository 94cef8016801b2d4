package store

import (
	"context"
	"testing"

	"kipdb/pkg/batch"
	"kipdb/pkg/command"
	"kipdb/pkg/config"
	"kipdb/pkg/wal"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Persistence.RootPath = t.TempDir()
	cfg.Persistence.SSTable.PartSize = 2
	return cfg
}

func newTestStore(t *testing.T, cfg *config.Config) *Store {
	t.Helper()

	journal, err := wal.New(cfg.Persistence.RootPath)
	if err != nil {
		t.Fatalf("Failed to create WAL: %v", err)
	}
	s, err := New(cfg, journal)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := newTestStore(t, &cfg)
	defer s.Close()

	if err := s.Set(ctx, []byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, found, err := s.Get(ctx, []byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("Expected to find key1")
	}
	if string(value) != "value1" {
		t.Fatalf("Expected 'value1', got '%s'", value)
	}

	_, found, err = s.Get(ctx, []byte("missing"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("Expected missing key to be absent")
	}
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := newTestStore(t, &cfg)
	defer s.Close()

	if err := s.Set(ctx, []byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Remove(ctx, []byte("key1")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	value, found, err := s.Get(ctx, []byte("key1"))
	if err != nil {
		t.Fatalf("Get after remove failed: %v", err)
	}
	if found {
		t.Fatalf("Expected key1 to be removed, but found value: %s", value)
	}
}

func TestStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := newTestStore(t, &cfg)
	defer s.Close()

	if err := s.Set(ctx, []byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, []byte("key1"), []byte("value2")); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}

	value, found, err := s.Get(ctx, []byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || string(value) != "value2" {
		t.Fatalf("Expected 'value2', got found=%v value='%s'", found, value)
	}
}

func TestStore_GetAfterFlush(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := newTestStore(t, &cfg)
	defer s.Close()

	if err := s.Set(ctx, []byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// The memtable is empty now; the read comes from a level-0 table.
	value, found, err := s.Get(ctx, []byte("key1"))
	if err != nil {
		t.Fatalf("Get after flush failed: %v", err)
	}
	if !found || string(value) != "value1" {
		t.Fatalf("Expected 'value1' from level 0, got found=%v value='%s'", found, value)
	}
}

func TestStore_ReopenFromDisk(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	s := newTestStore(t, &cfg)
	if err := s.Set(ctx, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, []byte("k2"), []byte("v2")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := newTestStore(t, &cfg)
	defer reopened.Close()

	for key, want := range map[string]string{"k1": "v1", "k2": "v2"} {
		value, found, err := reopened.Get(ctx, []byte(key))
		if err != nil {
			t.Fatalf("Get %s after reopen failed: %v", key, err)
		}
		if !found || string(value) != want {
			t.Fatalf("Expected '%s' for %s, got found=%v value='%s'", want, key, found, value)
		}
	}
}

func TestStore_ReplayUnflushedWrites(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	// Journal an entry that never reached a table, as a crash before the
	// flush would leave it.
	journal, err := wal.New(cfg.Persistence.RootPath)
	if err != nil {
		t.Fatalf("Failed to create WAL: %v", err)
	}
	journal.Start(ctx)
	journal.Append(wal.Entry{SeqNum: 1, Cmd: command.NewSet([]byte("k"), []byte("v"))})
	<-journal.Done()
	journal.Stop()
	if err := journal.Close(); err != nil {
		t.Fatalf("WAL close failed: %v", err)
	}

	s := newTestStore(t, &cfg)
	defer s.Close()

	value, found, err := s.Get(ctx, []byte("k"))
	if err != nil {
		t.Fatalf("Get after replay failed: %v", err)
	}
	if !found || string(value) != "v" {
		t.Fatalf("Expected replayed 'v', got found=%v value='%s'", found, value)
	}
}

func TestStore_WriteBatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := newTestStore(t, &cfg)
	defer s.Close()

	b := batch.New()
	b.Put([]byte("b1"), []byte("v1"))
	b.Put([]byte("b2"), []byte("v2"))
	b.Delete([]byte("b1"))
	if b.Count() != 3 {
		t.Fatalf("Expected 3 buffered commands, got %d", b.Count())
	}

	if err := s.Write(ctx, b); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_, found, err := s.Get(ctx, []byte("b1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("Expected b1 to be deleted by the batch")
	}

	value, found, err := s.Get(ctx, []byte("b2"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || string(value) != "v2" {
		t.Fatalf("Expected 'v2', got found=%v value='%s'", found, value)
	}
}

func TestStore_ClosedErrors(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := newTestStore(t, &cfg)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Set(ctx, []byte("k"), []byte("v")); err != ErrStoreClosed {
		t.Fatalf("Expected ErrStoreClosed, got %v", err)
	}
	if _, _, err := s.Get(ctx, []byte("k")); err != ErrStoreClosed {
		t.Fatalf("Expected ErrStoreClosed, got %v", err)
	}
}
