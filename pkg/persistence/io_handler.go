package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// IOHandler is a generation-tagged file handle offering positioned reads
// and appends. Appends serialize behind a mutex; positioned reads go
// through ReadAt and are safe for concurrent use.
type IOHandler struct {
	gen  int64
	path string
	file *os.File

	mu   sync.Mutex
	size uint64
}

// TablePath returns the file path for the table with the given gen.
func TablePath(dir string, gen int64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.sst", gen))
}

// OpenIOHandler opens (or creates) the table file for gen under dir.
func OpenIOHandler(dir string, gen int64) (*IOHandler, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create table directory: %w", err)
	}

	path := TablePath(dir, gen)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open table file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat table file: %w", err)
	}

	return &IOHandler{
		gen:  gen,
		path: path,
		file: file,
		size: uint64(info.Size()),
	}, nil
}

func (io *IOHandler) Gen() int64 {
	return io.gen
}

func (io *IOHandler) Path() string {
	return io.path
}

// Size returns the current append offset.
func (io *IOHandler) Size() uint64 {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.size
}

// ReadWithPos reads exactly n bytes starting at start.
func (io *IOHandler) ReadWithPos(ctx context.Context, start uint64, n uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	if _, err := io.file.ReadAt(buf, int64(start)); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at %d from %s: %w", n, start, io.path, err)
	}
	return buf, nil
}

// Append writes data at the end of the file, returning the offset the
// write started at and the number of bytes written.
func (io *IOHandler) Append(ctx context.Context, data []byte) (uint64, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	io.mu.Lock()
	defer io.mu.Unlock()

	start := io.size
	if _, err := io.file.WriteAt(data, int64(start)); err != nil {
		return 0, 0, fmt.Errorf("failed to append to %s: %w", io.path, err)
	}
	io.size += uint64(len(data))
	return start, uint64(len(data)), nil
}

// Flush forces written data to stable storage.
func (io *IOHandler) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := io.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", io.path, err)
	}
	return nil
}

func (io *IOHandler) Close() error {
	return io.file.Close()
}
