package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"kipdb/pkg/types"
)

// Manifest tracks which gens live at which level, orders them within each
// level, and allocates new gens and WAL sequence checkpoints. It persists
// as a JSON snapshot next to the table files.
type Manifest struct {
	mu       sync.RWMutex
	filePath string
	metadata manifestData
}

type manifestData struct {
	NextGen       int64           `json:"next_gen"`
	Levels        map[int][]int64 `json:"levels"`
	Version       int             `json:"version"`
	PersistentSeq types.SeqN      `json:"persistent_seq"`
}

func NewManifest(dataDir string) *Manifest {
	return &Manifest{
		filePath: filepath.Join(dataDir, "MANIFEST"),
		metadata: manifestData{
			NextGen: 1,
			Levels:  make(map[int][]int64),
			Version: 1,
		},
	}
}

// Load reads the manifest from disk, creating a fresh one when absent.
func (m *Manifest) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.filePath); os.IsNotExist(err) {
		return m.save()
	}

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m.metadata); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.metadata.Levels == nil {
		m.metadata.Levels = make(map[int][]int64)
	}
	return nil
}

func (m *Manifest) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save()
}

func (m *Manifest) save() error {
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// NextGen allocates the next table generation.
func (m *Manifest) NextGen() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.metadata.NextGen
	m.metadata.NextGen++
	return gen
}

// GetIndex returns the position of gen within its level's ordered gen
// list.
func (m *Manifest) GetIndex(level int, gen int64) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, g := range m.metadata.Levels[level] {
		if g == gen {
			return i, true
		}
	}
	return 0, false
}

// LevelGens returns the ordered gens of a level.
func (m *Manifest) LevelGens(level int) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gens := make([]int64, len(m.metadata.Levels[level]))
	copy(gens, m.metadata.Levels[level])
	return gens
}

// Levels returns the populated level numbers.
func (m *Manifest) Levels() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	levels := make([]int, 0, len(m.metadata.Levels))
	for level := range m.metadata.Levels {
		levels = append(levels, level)
	}
	return levels
}

// AppendTable records gen at the end of a level.
func (m *Manifest) AppendTable(level int, gen int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata.Levels[level] = append(m.metadata.Levels[level], gen)
}

// SpliceTables removes removeGens from their levels and inserts insertGens
// at position index of the target level. Used by compaction to replace a
// merged run in place.
func (m *Manifest) SpliceTables(level int, index int, removeGens []int64, insertGens []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	remove := make(map[int64]struct{}, len(removeGens))
	for _, g := range removeGens {
		remove[g] = struct{}{}
	}
	for lvl, gens := range m.metadata.Levels {
		kept := gens[:0]
		for _, g := range gens {
			if _, drop := remove[g]; !drop {
				kept = append(kept, g)
			}
		}
		m.metadata.Levels[lvl] = kept
	}

	gens := m.metadata.Levels[level]
	if index > len(gens) {
		index = len(gens)
	}
	spliced := make([]int64, 0, len(gens)+len(insertGens))
	spliced = append(spliced, gens[:index]...)
	spliced = append(spliced, insertGens...)
	spliced = append(spliced, gens[index:]...)
	m.metadata.Levels[level] = spliced
}

// PersistentSeq returns the WAL sequence already covered by flushed
// tables.
func (m *Manifest) PersistentSeq() types.SeqN {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata.PersistentSeq
}

// SetPersistentSeq records the WAL sequence covered by the latest flush.
func (m *Manifest) SetPersistentSeq(seq types.SeqN) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq > m.metadata.PersistentSeq {
		m.metadata.PersistentSeq = seq
	}
}
