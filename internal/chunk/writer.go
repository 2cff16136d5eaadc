package chunk

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxSize caps a chunk file at 10 MiB unless overridden.
const DefaultMaxSize = 10 * 1024 * 1024

// WriteError reports a failed chunk write. Partially written chunk files are
// left on disk for inspection.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write chunk %s: %v", e.Path, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Writer splits a stream of whole text records into numbered part files named
// {baseName}.jsonl.part{N}. A record is never split across files: a new part
// starts only when the current one has already reached the size cap and the
// next record is about to be written.
type Writer struct {
	dir      string
	baseName string
	maxSize  int64

	cur     *os.File
	curSize int64
	paths   []string
}

func NewWriter(dir, baseName string, maxSize int64) *Writer {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Writer{dir: dir, baseName: baseName, maxSize: maxSize}
}

// Write appends one whole record to the current chunk, rolling to the next
// part file first if the current one is full.
func (w *Writer) Write(record []byte) error {
	if w.cur == nil || w.curSize >= w.maxSize {
		if err := w.roll(); err != nil {
			return err
		}
	}
	n, err := w.cur.Write(record)
	w.curSize += int64(n)
	if err != nil {
		return &WriteError{Path: w.currentPath(), Err: err}
	}
	return nil
}

func (w *Writer) roll() error {
	if err := w.closeCurrent(); err != nil {
		return err
	}
	name := fmt.Sprintf("%s.jsonl.part%d", w.baseName, len(w.paths)+1)
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	w.cur = f
	w.curSize = 0
	w.paths = append(w.paths, path)
	return nil
}

// Close finalizes the current part and returns the ordered list of part
// paths produced so far.
func (w *Writer) Close() ([]string, error) {
	if err := w.closeCurrent(); err != nil {
		return w.paths, err
	}
	return w.paths, nil
}

func (w *Writer) closeCurrent() error {
	if w.cur == nil {
		return nil
	}
	err := w.cur.Close()
	w.cur = nil
	if err != nil {
		return &WriteError{Path: w.currentPath(), Err: err}
	}
	return nil
}

func (w *Writer) currentPath() string {
	if len(w.paths) == 0 {
		return filepath.Join(w.dir, w.baseName)
	}
	return w.paths[len(w.paths)-1]
}
