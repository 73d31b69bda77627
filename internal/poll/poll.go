//go:build linux || darwin

// Package poll is the readiness multiplexer: it asks whether any of a
// small set of descriptors has pending I/O, waiting no longer than a
// fixed timeout.  Both peers use it so that no socket operation ever
// suspends indefinitely.
package poll

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	gerrors "gzstream/internal/errors"
)

// Interest selects which readiness a Watch asks about.
type Interest int16

const (
	Readable Interest = unix.POLLIN
	Writable Interest = unix.POLLOUT
)

// Watch is one descriptor of interest.
type Watch struct {
	FD       int
	Interest Interest
}

// Multiplexer reports which watched descriptors are ready.  An empty
// result with a nil error means the wait timed out.
type Multiplexer interface {
	Wait(set ...Watch) ([]int, error)

	// Linger consumes whatever remains of the timeout since start.
	// Callers use it after a failed Wait so an error can never turn
	// into a tight loop.
	Linger(start time.Time)
}

// Poller implements Multiplexer with poll(2).
type Poller struct {
	Timeout time.Duration
}

// New returns a Poller with the given per-wait timeout.
func New(timeout time.Duration) *Poller {
	return &Poller{Timeout: timeout}
}

// Wait polls set until at least one descriptor is ready or Timeout
// elapses.  Interrupted waits are resumed with the remaining time.
func (p *Poller) Wait(set ...Watch) ([]int, error) {
	pfds := make([]unix.PollFd, len(set))
	for i, w := range set {
		pfds[i] = unix.PollFd{Fd: int32(w.FD), Events: int16(w.Interest)}
	}

	deadline := time.Now().Add(p.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		n, err := unix.Poll(pfds, int(remaining/time.Millisecond))
		if err == unix.EINTR {
			if remaining == 0 {
				return nil, nil
			}
			continue
		}
		if err != nil {
			return nil, gerrors.Wrap("poll", describe(set), err)
		}
		if n == 0 {
			return nil, nil
		}
		return collect(pfds, set)
	}
}

// Linger sleeps for the part of Timeout not yet spent since start.
func (p *Poller) Linger(start time.Time) {
	if d := p.Timeout - time.Since(start); d > 0 {
		time.Sleep(d)
	}
}

// WaitWritable waits up to timeout for fd to accept more output.  It
// returns ErrTimeout if the descriptor never became writable.
func WaitWritable(fd int, timeout time.Duration) error {
	ready, err := New(timeout).Wait(Watch{FD: fd, Interest: Writable})
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		return gerrors.ErrTimeout
	}
	return nil
}

func collect(pfds []unix.PollFd, set []Watch) ([]int, error) {
	var ready []int
	for i, pfd := range pfds {
		if pfd.Revents&unix.POLLNVAL != 0 {
			return nil, gerrors.Wrap("poll", describe(set[i:i+1]), unix.EBADF)
		}
		// Hang-ups and errors count as ready: the next read or write
		// on the descriptor reports the actual condition.
		if pfd.Revents&(pfd.Events|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, set[i].FD)
		}
	}
	return ready, nil
}

func describe(set []Watch) string {
	parts := make([]string, len(set))
	for i, w := range set {
		parts[i] = fmt.Sprintf("fd=%d", w.FD)
	}
	return strings.Join(parts, ",")
}
