// Package results persists sweep measurements and frame compositions as
// append-only CSV tables and joins them through a SQLite catalog.
package results

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gwlsn/codecbench/internal/logger"
)

// ErrHeaderMismatch is returned when an existing table was written with a
// different set of columns.
var ErrHeaderMismatch = errors.New("results header mismatch")

// Table is an append-only CSV file with a fixed header. The header is
// written exactly once, when the file is created or found empty. Every
// Append is a single write followed by an fsync, so a crash loses at most
// the row being written.
// Table is safe for concurrent use but callers that care about row order
// must serialize their appends.
type Table struct {
	path   string
	header []string

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Open opens the table at path, creating it (and its directory) if needed.
// An existing non-empty file must start with header. A trailing partial
// row left by an interrupted writer is truncated away.
func Open(path string, header []string) (*Table, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header for %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create results directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open results table: %w", err)
	}

	t := &Table{path: path, header: slices.Clone(header), f: f}
	if err := t.prepare(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) prepare() error {
	data, err := io.ReadAll(t.f)
	if err != nil {
		return fmt.Errorf("read results table: %w", err)
	}

	if n := len(data); n > 0 && data[n-1] != '\n' {
		keep := bytes.LastIndexByte(data, '\n') + 1
		logger.Warn("Truncating partial row", "path", t.path, "bytes", n-keep)
		if err := t.f.Truncate(int64(keep)); err != nil {
			return fmt.Errorf("truncate partial row: %w", err)
		}
		data = data[:keep]
	}

	if len(data) == 0 {
		return t.writeRecord(t.header)
	}

	first, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return fmt.Errorf("%w: %s: unreadable header: %v", ErrHeaderMismatch, t.path, err)
	}
	if !slices.Equal(first, t.header) {
		return fmt.Errorf("%w: %s has %v, want %v", ErrHeaderMismatch, t.path, first, t.header)
	}
	return nil
}

// Append writes one row. The record must have one field per header column.
func (t *Table) Append(record []string) error {
	if len(record) != len(t.header) {
		return fmt.Errorf("row has %d fields, table %s has %d columns", len(record), t.path, len(t.header))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("results table %s is closed", t.path)
	}
	return t.writeRecord(record)
}

func (t *Table) writeRecord(record []string) error {
	line, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if _, err := t.f.Write(line); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := t.f.Sync(); err != nil {
		return fmt.Errorf("sync results table: %w", err)
	}
	return nil
}

// Path returns the file backing the table.
func (t *Table) Path() string {
	return t.path
}

// Close closes the table. Calling it more than once is harmless.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.f.Close()
}

func encodeRecord(record []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(record); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return buf.Bytes(), nil
}

// readTable loads every data row of the table at path, checking its header.
func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	first, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrHeaderMismatch, path, err)
	}
	if !slices.Equal(first, header) {
		return nil, fmt.Errorf("%w: %s has %v, want %v", ErrHeaderMismatch, path, first, header)
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
