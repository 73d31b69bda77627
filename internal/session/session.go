//go:build linux || darwin

// Package session represents the server's single active connection:
// the accepted descriptor bound to its read-mode compression stream,
// plus the per-connection state the Session Loop reports on.
//
// The descriptor and the stream come and go together.  A Session is
// only ever built from an opened, configured stream, and Close tears
// both down at once, so "slot empty" is simply a nil *Session.
package session

import (
	"fmt"
	"time"

	"gzstream/internal/gzstream"
	"gzstream/internal/message"
	"gzstream/util"
)

// Session encapsulates one accepted connection.  Capabilities operate
// on sessions rather than raw descriptors.
type Session struct {
	FD        int
	Peer      string
	Stream    *gzstream.Stream
	Assembler *message.Assembler
	Logger    *util.Logger

	Opened  time.Time
	Reads   int   // reads that returned decoded data
	Decoded int64 // decoded bytes delivered
}

// New creates a Session owning stream.  maxMessage bounds reassembled
// messages; 0 disables the bound.
func New(stream *gzstream.Stream, peer string, maxMessage int, logger *util.Logger) *Session {
	return &Session{
		FD:        stream.FD(),
		Peer:      peer,
		Stream:    stream,
		Assembler: message.NewAssembler(maxMessage),
		Logger:    logger,
		Opened:    time.Now(),
	}
}

// Record counts a delivered chunk of n decoded bytes.
func (s *Session) Record(n int) {
	s.Reads++
	s.Decoded += int64(n)
}

// Close closes the stream, which closes the descriptor.
func (s *Session) Close() error {
	return s.Stream.Close()
}

func (s *Session) String() string {
	return fmt.Sprintf("fd %d from %s", s.FD, s.Peer)
}

// Summary describes the connection's traffic for the closing log line.
func (s *Session) Summary() string {
	return fmt.Sprintf("%d reads, %d decoded bytes from %d compressed in %s",
		s.Reads, s.Decoded, s.Stream.BytesIn(),
		time.Since(s.Opened).Truncate(time.Millisecond))
}
