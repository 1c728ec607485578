package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// chunkWriter splits a stream of appended bytes into fixed-size
// parts/<index>.part files (spec §6: "snapshot-<height>/{manifest,
// parts/<index>.part, parts.sha256}").
type chunkWriter struct {
	dir       string
	chunkSize int

	index   int
	file    *os.File
	written int
}

func newChunkWriter(dir string, chunkSize int) *chunkWriter {
	return &chunkWriter{dir: dir, chunkSize: chunkSize}
}

func (w *chunkWriter) Write(b []byte) error {
	for len(b) > 0 {
		if w.file == nil {
			if err := w.openNext(); err != nil {
				return err
			}
		}
		room := w.chunkSize - w.written
		n := len(b)
		if n > room {
			n = room
		}
		if _, err := w.file.Write(b[:n]); err != nil {
			return fmt.Errorf("snapshot: write chunk %d: %w", w.index, err)
		}
		w.written += n
		b = b[n:]
		if w.written >= w.chunkSize {
			if err := w.file.Close(); err != nil {
				return fmt.Errorf("snapshot: close chunk %d: %w", w.index, err)
			}
			w.file = nil
		}
	}
	return nil
}

func (w *chunkWriter) openNext() error {
	path := filepath.Join(w.dir, fmt.Sprintf("%d.part", w.index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create chunk %d: %w", w.index, err)
	}
	w.file = f
	w.written = 0
	w.index++
	return nil
}

// Close finalizes the last in-progress chunk (if any) and returns the
// total number of parts written.
func (w *chunkWriter) Close() (int, error) {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return 0, fmt.Errorf("snapshot: close final chunk: %w", err)
		}
		w.file = nil
	}
	return w.index, nil
}
