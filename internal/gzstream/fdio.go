//go:build linux || darwin

package gzstream

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	gerrors "gzstream/internal/errors"
	"gzstream/internal/poll"
)

// fdWriter writes compressed output to a non-blocking descriptor in
// chunks of at most chunk bytes, waiting for writability whenever the
// socket buffer is full.
type fdWriter struct {
	fd      int
	chunk   int
	timeout time.Duration // per Write call
	sent    int64
}

func (w *fdWriter) Write(p []byte) (int, error) {
	deadline := time.Now().Add(w.timeout)
	written := 0
	for written < len(p) {
		part := p[written:]
		if w.chunk > 0 && len(part) > w.chunk {
			part = part[:w.chunk]
		}
		n, err := unix.Write(w.fd, part)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return written, fmt.Errorf("%w: %w", gerrors.ErrTimeout, unix.EAGAIN)
			}
			if werr := poll.WaitWritable(w.fd, remaining); werr != nil {
				if gerrors.Is(werr, gerrors.ErrTimeout) {
					return written, fmt.Errorf("%w: %w", gerrors.ErrTimeout, unix.EAGAIN)
				}
				return written, werr
			}
			continue
		case err != nil:
			return written, err
		}
		written += n
		w.sent += int64(n)
	}
	return written, nil
}
