package engine

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"
)

const (
	readBufferSize = 4096

	// flushThreshold caps how much text without a newline is held back
	// before it is emitted as a chunk anyway.
	flushThreshold = 4096

	// flushInterval bounds the latency of partial lines, so prompts and
	// other unbuffered output without a trailing newline still appear.
	flushInterval = 50 * time.Millisecond
)

// pump moves bytes from one pipe into sequenced chunks until the stream
// ends. Complete lines are emitted immediately; a trailing partial line is
// emitted once it grows past flushThreshold or after flushInterval of
// silence. A read error other than normal closure is logged and treated as
// end of stream.
func (s *session) pump(r io.Reader, stream Stream, logger *slog.Logger) {
	defer s.pumps.Done()

	var (
		mu      sync.Mutex
		pending []byte
		timer   *time.Timer
	)

	flush := func() {
		mu.Lock()
		defer mu.Unlock()
		if len(pending) == 0 {
			return
		}
		text := string(pending)
		pending = nil
		s.emitChunk(stream, text)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			mu.Lock()
			if timer != nil {
				timer.Stop()
				timer = nil
			}
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := string(pending[:i+1])
				pending = pending[i+1:]
				s.emitChunk(stream, line)
			}
			if len(pending) >= flushThreshold {
				s.emitChunk(stream, string(pending))
				pending = nil
			}
			if len(pending) > 0 {
				timer = time.AfterFunc(flushInterval, flush)
			}
			mu.Unlock()
		}
		if err != nil {
			if !isExpectedClose(err) {
				logger.Warn("stream read error, treating as end of stream",
					"session", s.id, "stream", string(stream), "err", err)
			}
			break
		}
	}

	mu.Lock()
	if timer != nil {
		timer.Stop()
	}
	if len(pending) > 0 {
		s.emitChunk(stream, string(pending))
		pending = nil
	}
	mu.Unlock()
}

// isExpectedClose reports whether a read error is the normal consequence
// of the process exiting or the pipe being closed underneath the pump.
func isExpectedClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, fs.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
