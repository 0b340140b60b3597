package engine

import (
	"fmt"
	"io"
	"sync"
)

// inputRelay wraps the child's stdin pipe with mutex protection so that
// concurrent sends never interleave partial writes.
type inputRelay struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
}

func newInputRelay(w io.WriteCloser) *inputRelay {
	return &inputRelay{w: w}
}

// SendLine writes text followed by a newline to the child's stdin.
func (r *inputRelay) SendLine(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("stdin pipe closed")
	}
	_, err := io.WriteString(r.w, text+"\n")
	return err
}

func (r *inputRelay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		r.w.Close()
		r.closed = true
	}
}
