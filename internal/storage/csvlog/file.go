// Package csvlog appends observations to the training corpus and audit log
// CSV files.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is one append-only CSV file with a fixed header. The header is
// written only when the file is new or empty.
type File struct {
	path   string
	header []string

	// mu serializes appends so rows never interleave and the
	// header-if-empty check cannot race with another first writer.
	mu sync.Mutex
}

// NewFile creates a handle for path. Nothing is written until Append.
func NewFile(path string, header []string) *File {
	return &File{
		path:   path,
		header: append([]string(nil), header...),
	}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Append writes one record, preceded by the header if the file is empty.
func (f *File) Append(record []string) error {
	if len(record) != len(f.header) {
		return fmt.Errorf("record has %d fields, header has %d", len(record), len(f.header))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.path, err)
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return fmt.Errorf("stat %s: %w", f.path, err)
	}

	w := csv.NewWriter(fh)
	if info.Size() == 0 {
		if err := w.Write(f.header); err != nil {
			fh.Close()
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if err := w.Write(record); err != nil {
		fh.Close()
		return fmt.Errorf("writing record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fh.Close()
		return fmt.Errorf("flushing %s: %w", f.path, err)
	}

	if err := fh.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", f.path, err)
	}
	return nil
}
