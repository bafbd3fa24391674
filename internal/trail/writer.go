package trail

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends trail events to one JSONL file. One unit of work gets one
// file. Unlike an audit log there is no tamper evidence and no per-line
// sync: losing the tail of a trail on a crash only costs analysis input.
type Writer struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// Create opens a fresh trail file, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("trail: create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("trail: open file: %w", err)
	}
	return &Writer{path: path, file: file}, nil
}

// Path returns the trail file path.
func (w *Writer) Path() string { return w.path }

// Record appends one event, stamping its timestamp if unset.
func (w *Writer) Record(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("trail: writer closed")
	}

	line, err := json.Marshal(ev.Stamp())
	if err != nil {
		return fmt.Errorf("trail: marshal event: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("trail: write event: %w", err)
	}
	return nil
}

// Close syncs and closes the file. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("trail: sync: %w", err)
	}
	return f.Close()
}
