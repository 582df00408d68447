// Package healthfile writes the single-line liveness file vrnetlab's
// supervision loop exposes to container health checks.
package healthfile

import (
	"fmt"
	"os"
)

// Writer writes "<code> <message>" to a fixed path, truncating on every
// write so only the most recent status is ever visible.
type Writer struct {
	Path string
}

// New returns a Writer for the given path (spec.md's default is /health).
func New(path string) *Writer {
	return &Writer{Path: path}
}

// Starting reports code 1, the state before every appliance VM has
// completed its bootstrap dialogue at least once.
func (w *Writer) Starting() error {
	return w.write(1, "starting")
}

// Running reports code 0, written exactly once, the first time every VM
// under supervision has reached the Running state.
func (w *Writer) Running() error {
	return w.write(0, "running")
}

// Unhealthy reports a nonzero code with a caller-supplied message, used
// when a VM falls out of Running after having reached it once.
func (w *Writer) Unhealthy(message string) error {
	return w.write(1, message)
}

func (w *Writer) write(code int, message string) error {
	content := fmt.Sprintf("%d %s\n", code, message)
	if err := os.WriteFile(w.Path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("healthfile: write %s: %w", w.Path, err)
	}
	return nil
}
