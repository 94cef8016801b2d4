package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"kipdb/pkg/command"
	"kipdb/pkg/listener"
	"kipdb/pkg/types"
)

// Entry is one journaled command tagged with its sequence number.
type Entry struct {
	SeqNum types.SeqN
	Cmd    *command.Command
}

// WAL journals commands before they reach the memtable. Appends go through
// a channel to a background writer that fsyncs per entry and acks on the
// done channel.
type WAL struct {
	*listener.Listener[Entry]

	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	filePath string

	inputCh chan Entry
	doneCh  chan types.SeqN
}

// New creates a WAL under dir.
func New(dir string) (*WAL, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty WAL dir")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	filePath := filepath.Join(dir, "wal.log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	w := &WAL{
		file:     file,
		writer:   bufio.NewWriter(file),
		filePath: filePath,
		inputCh:  make(chan Entry, 3),
		doneCh:   make(chan types.SeqN, 3),
	}
	w.Listener = listener.New(w.inputCh, w.writeFile, w.stop)
	return w, nil
}

func (w *WAL) Append(entry Entry) {
	w.inputCh <- entry
}

// writeFile runs on the listener goroutine for each appended entry.
func (w *WAL) writeFile(entry Entry) error {
	if err := w.writeEntry(entry); err != nil {
		return fmt.Errorf("failed to write WAL entry: %w", err)
	}

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}

	w.doneCh <- entry.SeqNum
	return nil
}

// Replay feeds every journaled entry with SeqNum >= start to callback, in
// append order.
func (w *WAL) Replay(start types.SeqN, callback func(Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL before replay: %w", err)
	}

	file, err := os.Open(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to open WAL for reading: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("failed to close WAL read file", "error", cerr)
		}
	}()

	reader := bufio.NewReader(file)
	for {
		entry, err := readEntry(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read WAL entry: %w", err)
		}
		if entry.SeqNum < start {
			continue
		}

		if err := callback(entry); err != nil {
			return fmt.Errorf("WAL replay callback failed: %w", err)
		}
	}
	return nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush WAL on close: %w", err)
		}
		w.writer = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close WAL file: %w", err)
		}
		w.file = nil
	}
	return nil
}

// Entry layout: seqNum(8) | bodyLen(4) | command body.
func (w *WAL) writeEntry(entry Entry) error {
	if w.writer == nil {
		return fmt.Errorf("WAL writer is nil")
	}

	if err := binary.Write(w.writer, binary.LittleEndian, entry.SeqNum); err != nil {
		return err
	}

	body, err := command.Marshal(entry.Cmd)
	if err != nil {
		return err
	}
	if len(body) > math.MaxUint32 {
		return fmt.Errorf("command too large: %d", len(body))
	}
	if err := binary.Write(w.writer, binary.LittleEndian, uint32(len(body))); err != nil {
		return err
	}
	if _, err := w.writer.Write(body); err != nil {
		return err
	}
	return nil
}

func readEntry(reader *bufio.Reader) (Entry, error) {
	var entry Entry

	if err := binary.Read(reader, binary.LittleEndian, &entry.SeqNum); err != nil {
		return entry, err
	}

	var bodyLen uint32
	if err := binary.Read(reader, binary.LittleEndian, &bodyLen); err != nil {
		return entry, err
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(reader, body); err != nil {
		return entry, err
	}

	cmd, err := command.Unmarshal(body)
	if err != nil {
		return entry, err
	}
	entry.Cmd = cmd
	return entry, nil
}

func (w *WAL) Done() <-chan types.SeqN {
	return w.doneCh
}

func (w *WAL) stop() {
	close(w.inputCh)
	close(w.doneCh)
}
