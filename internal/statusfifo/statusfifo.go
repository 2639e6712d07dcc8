// Package statusfifo writes boot-status tokens to a named pipe for an
// external process to watch, per spec.md §6's --status-fifo flag.
package statusfifo

import (
	"fmt"
	"os"

	"github.com/everest-core/manager/internal/readiness"
)

// Writer opens path (expected to already exist as a FIFO, created by
// the caller's deployment tooling via mkfifo) and writes each status as
// a newline-terminated token.
type Writer struct {
	path string
}

// New returns a Writer targeting path. The FIFO is opened lazily on
// first Write so that creating a Writer never blocks waiting for a
// reader to attach.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Write implements readiness.StatusSink, opening the FIFO for each
// write and closing it immediately after: a reader attaching after the
// status already fired would otherwise never see it on a long-lived
// open handle.
func (w *Writer) Write(s readiness.Status) error {
	f, err := os.OpenFile(w.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("statusfifo: open %s: %w", w.path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(string(s) + "\n"); err != nil {
		return fmt.Errorf("statusfifo: write %s: %w", w.path, err)
	}
	return nil
}

var _ readiness.StatusSink = (*Writer)(nil)
