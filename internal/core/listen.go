//go:build linux || darwin

package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gzstream/internal/capability"
	"gzstream/internal/gzstream"
	"gzstream/internal/message"
	"gzstream/internal/metrics"
	"gzstream/internal/poll"
	"gzstream/internal/session"
	"gzstream/internal/transport"
	"gzstream/util"
)

// ServerMode is the Session Loop.  It owns the listening socket and at
// most one active connection, and watches exactly one of them per poll:
// the listener while the slot is empty, the connection otherwise.  New
// connections wait in the backlog until the active one ends.
type ServerMode struct {
	Host       string // bind address; "" is the wildcard
	Port       int
	Backlog    int
	BufferSize int // raw read granularity of each accepted stream
	ReadSize   int // decoded bytes requested per read
	MaxMessage int

	PollInterval time.Duration
	Poller       poll.Multiplexer // defaults to poll(2) with PollInterval

	Capability capability.Capability
	Metrics    *metrics.Collector
	Logger     *util.Logger

	// Ready, when set, receives the bound address once listening
	// succeeded.
	Ready chan<- string

	idle atomic.Int64
}

// IdleCount returns the number of consecutive polls that timed out.
func (m *ServerMode) IdleCount() int64 { return m.idle.Load() }

// Run listens and serves connections one at a time until ctx is done
// or a capability requests a stop.  Only setup failures are returned;
// everything after listening succeeded is handled inside the loop.
func (m *ServerMode) Run(ctx context.Context) error {
	ln, err := transport.Listen(ctx, m.Host, m.Port, m.backlog())
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	defer ln.Close()

	m.Logger.Info("Server listening on %s (fd %d)", ln.Addr, ln.FD)
	if m.Ready != nil {
		select {
		case m.Ready <- ln.Addr:
		case <-ctx.Done():
			return nil
		}
	}

	poller := m.Poller
	if poller == nil {
		poller = poll.New(m.pollInterval())
	}

	var slot *session.Session
	defer func() {
		if slot != nil {
			m.closeSlot(slot, "server shutting down")
		}
	}()

	buf := make([]byte, m.readSize())
	for {
		if ctx.Err() != nil {
			m.Logger.Verbose("Server stopping: %v", ctx.Err())
			return nil
		}

		// Decoded bytes already buffered in the stream need no poll.
		if slot != nil && slot.Stream.Pending() {
			if m.service(ctx, &slot, buf) {
				return nil
			}
			continue
		}

		watch := poll.Watch{FD: ln.FD, Interest: poll.Readable}
		if slot != nil {
			watch.FD = slot.FD
		}

		start := time.Now()
		ready, err := poller.Wait(watch)
		if err != nil {
			m.idle.Store(0)
			m.Logger.Warn("Server poll(fd %d) failed: %v", watch.FD, err)
			m.Metrics.RecordError(err.Error())
			poller.Linger(start)
			continue
		}
		if len(ready) == 0 {
			n := m.idle.Add(1)
			m.Metrics.IdlePoll()
			m.Logger.Progress(int(n))
			continue
		}
		m.idle.Store(0)
		m.Logger.Info("Server %d=poll(fd %d)", len(ready), watch.FD)

		if slot == nil {
			slot = m.accept(ln)
			continue
		}
		if m.service(ctx, &slot, buf) {
			return nil
		}
	}
}

// accept takes one connection and prepares its stream.  Every failure
// leaves the slot empty and the loop Listening.
func (m *ServerMode) accept(ln *transport.Listener) *session.Session {
	fd, peer, err := ln.Accept()
	if err != nil {
		m.Logger.Warn("Server accept on %s: %v", ln.Addr, err)
		m.Metrics.RecordError(err.Error())
		return nil
	}

	if err := transport.SetNonblock(fd); err != nil {
		m.Logger.Warn("Server set non-blocking on fd %d: %v", fd, err)
		m.Metrics.RecordError(err.Error())
		transport.CloseFD(fd)
		return nil
	}
	m.Logger.Info("Server accepted connection from %s (fd %d)", peer, fd)

	stream, err := gzstream.OpenRead(fd)
	if err != nil {
		m.Logger.Warn("Server open stream on fd %d: %v", fd, err)
		m.Metrics.RecordError(err.Error())
		transport.CloseFD(fd)
		return nil
	}
	if err := stream.SetBuffer(m.BufferSize); err != nil {
		m.Logger.Warn("Server configure stream on fd %d: %v", fd, err)
		m.Metrics.RecordError(err.Error())
		stream.Close()
		return nil
	}

	m.Metrics.ConnectionOpened()
	return session.New(stream, peer, m.MaxMessage, m.Logger)
}

// service performs one read on the active stream.  It reports whether
// the loop should stop.
func (m *ServerMode) service(ctx context.Context, slot **session.Session, buf []byte) bool {
	sess := *slot
	before := sess.Stream.BytesIn()
	n, status, err := sess.Stream.Read(buf)
	m.Metrics.BytesReceived(sess.Stream.BytesIn() - before)

	switch status {
	case gzstream.StatusPending:
		m.Logger.Debug("Server fd %d: no decoded output yet", sess.FD)
		return false

	case gzstream.StatusData:
		chunk := buf[:n]
		sess.Record(n)
		m.Metrics.BytesDecoded(int64(n))
		m.Logger.Info("Server %d=read(fd %d) buf=>[%s]", n, sess.FD, util.Printable(chunk))
		return m.deliver(ctx, slot, capability.Delivery{
			Chunk:    chunk,
			Messages: sess.Assembler.Feed(chunk),
		})

	case gzstream.StatusEndOfStream:
		m.flush(ctx, sess)
		m.closeSlot(sess, "end of stream")

	default:
		code, msg := sess.Stream.LastError()
		m.Logger.Warn("Server fd %d: %v", sess.FD, err)
		m.Metrics.RecordError(fmt.Sprintf("%d=[%s]", code, msg))
		m.flush(ctx, sess)
		m.closeSlot(sess, fmt.Sprintf("stream error %d=[%s]", code, msg))
	}
	*slot = nil
	return false
}

// deliver hands a read to the capability.  A stop request closes the
// slot and ends the loop; other capability errors are only logged.
func (m *ServerMode) deliver(ctx context.Context, slot **session.Session, d capability.Delivery) bool {
	if m.Capability == nil {
		return false
	}
	err := m.Capability.Handle(ctx, *slot, d)
	switch {
	case errors.Is(err, capability.ErrStop):
		m.closeSlot(*slot, err.Error())
		*slot = nil
		return true
	case err != nil:
		m.Logger.Warn("Server fd %d: %v", (*slot).FD, err)
		m.Metrics.RecordError(err.Error())
	}
	return false
}

// flush delivers an unterminated tail left when the stream ended.
func (m *ServerMode) flush(ctx context.Context, sess *session.Session) {
	tail, ok := sess.Assembler.Flush()
	if !ok || m.Capability == nil {
		return
	}
	if err := m.Capability.Handle(ctx, sess, capability.Delivery{Messages: []message.Message{tail}}); err != nil &&
		!errors.Is(err, capability.ErrStop) {
		m.Logger.Warn("Server fd %d: %v", sess.FD, err)
	}
}

func (m *ServerMode) closeSlot(sess *session.Session, reason string) {
	if err := sess.Close(); err != nil {
		m.Logger.Warn("Server close fd %d: %v", sess.FD, err)
	}
	m.Metrics.ConnectionClosed()
	m.Logger.Info("Server closed %s: %s (%s)", sess, reason, sess.Summary())
}

func (m *ServerMode) backlog() int {
	if m.Backlog > 0 {
		return m.Backlog
	}
	return 10
}

func (m *ServerMode) readSize() int {
	if m.ReadSize > 0 {
		return m.ReadSize
	}
	return 128
}

func (m *ServerMode) pollInterval() time.Duration {
	if m.PollInterval > 0 {
		return m.PollInterval
	}
	return time.Second
}
