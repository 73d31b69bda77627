//go:build linux || darwin

// Package gzstream wraps a connected, non-blocking socket descriptor
// as a gzip stream.  A read-mode Stream decodes incrementally: each
// Read performs at most one raw read of the configured buffer size and
// returns whatever decoded bytes that made available.  A write-mode
// Stream sync-flushes after every chunk so the receiver can decode it
// without waiting for later writes.
//
// A Stream owns its descriptor: Close releases the codec state and
// closes the descriptor, and must be called exactly once.
package gzstream

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"

	gerrors "gzstream/internal/errors"
)

// Codec status codes, numbered like the classic gzip library's.
const (
	CodeOK     = 0
	CodeErrno  = -1
	CodeStream = -2
	CodeData   = -3
	CodeMem    = -4
	CodeBuf    = -5
)

const (
	// DefaultBufferSize is the raw I/O granularity until SetBuffer.
	DefaultBufferSize = 8192

	// MaxBufferSize is the largest granularity SetBuffer accepts.
	MaxBufferSize = 1 << 20

	// DefaultWriteTimeout bounds how long one write waits for a full
	// socket buffer to drain.
	DefaultWriteTimeout = 10 * time.Second
)

// Status classifies the outcome of one Read.
type Status int

const (
	// StatusData means n > 0 decoded bytes were returned.
	StatusData Status = iota
	// StatusPending means the read consumed no decodable input yet:
	// the socket would block, or the bytes read completed no output.
	StatusPending
	// StatusEndOfStream means the peer finished the gzip member cleanly.
	StatusEndOfStream
	// StatusError means the codec or the socket failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusData:
		return "data"
	case StatusPending:
		return "pending"
	case StatusEndOfStream:
		return "end-of-stream"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type mode int

const (
	modeRead mode = iota
	modeWrite
)

func (m mode) String() string {
	if m == modeWrite {
		return "w"
	}
	return "r"
}

// Stream is a gzip stream bound to one socket descriptor.
type Stream struct {
	fd     int
	mode   mode
	size   int  // raw I/O granularity
	used   bool // I/O has started; the granularity is fixed from here on
	closed bool

	// read mode
	dec     *decoder
	raw     []byte
	bytesIn int64
	readErr error // socket failure that ended the input

	// write mode
	zw  *gzip.Writer
	out *fdWriter
}

// OpenRead attaches a decoder to fd.
func OpenRead(fd int) (*Stream, error) {
	if err := checkFD(fd); err != nil {
		return nil, err
	}
	return &Stream{
		fd:   fd,
		mode: modeRead,
		size: DefaultBufferSize,
		dec:  newDecoder(),
	}, nil
}

// OpenWrite attaches a compressor at the given gzip level to fd.
func OpenWrite(fd, level int) (*Stream, error) {
	if err := checkFD(fd); err != nil {
		return nil, err
	}
	out := &fdWriter{fd: fd, chunk: DefaultBufferSize, timeout: DefaultWriteTimeout}
	zw, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		return nil, &gerrors.StreamError{
			Kind: gerrors.ErrAdapterOpen,
			FD:   fd,
			Code: CodeStream,
			Msg:  err.Error(),
		}
	}
	return &Stream{
		fd:   fd,
		mode: modeWrite,
		size: DefaultBufferSize,
		zw:   zw,
		out:  out,
	}, nil
}

func checkFD(fd int) error {
	if fd < 0 {
		return &gerrors.StreamError{
			Kind: gerrors.ErrAdapterOpen, FD: fd, Code: CodeErrno,
			Msg: unix.EBADF.Error(), Errno: unix.EBADF,
		}
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0); err != nil {
		errno := gerrors.Errno(err)
		return &gerrors.StreamError{
			Kind: gerrors.ErrAdapterOpen, FD: fd, Code: CodeErrno,
			Msg: err.Error(), Errno: errno,
		}
	}
	return nil
}

// FD returns the owned descriptor.
func (s *Stream) FD() int { return s.fd }

// SetBuffer sets the raw I/O granularity.  It must be called before the
// first Read or WriteFlush.  On failure the stream is left open; the
// caller still owns it and must Close it.
func (s *Stream) SetBuffer(size int) error {
	switch {
	case s.closed:
		return s.closedErr(gerrors.ErrAdapterConfig)
	case s.used:
		return s.configErr(fmt.Sprintf("buffer size %d rejected: stream already in use", size))
	case size < 1 || size > MaxBufferSize:
		return s.configErr(fmt.Sprintf("buffer size %d rejected: want 1-%d", size, MaxBufferSize))
	}
	s.size = size
	if s.out != nil {
		s.out.chunk = size
	}
	return nil
}

// SetWriteTimeout bounds how long one WriteFlush or Close may wait on a
// full socket buffer.
func (s *Stream) SetWriteTimeout(d time.Duration) {
	if s.out != nil && d > 0 {
		s.out.timeout = d
	}
}

// ── read mode ────────────────────────────────────────────────────────

// Read performs at most one raw read of the descriptor and returns up
// to len(p) decoded bytes.  Decoded bytes that do not fit stay buffered
// and are returned by later calls before any further raw read.
func (s *Stream) Read(p []byte) (int, Status, error) {
	if s.closed {
		return 0, StatusError, s.closedErr(gerrors.ErrStream)
	}
	if s.mode != modeRead {
		return 0, StatusError, s.streamErr(CodeStream, "stream not open for reading", 0)
	}
	s.used = true

	if n := s.dec.take(p); n > 0 {
		return n, StatusData, nil
	}
	if s.dec.finished() {
		return s.terminal()
	}

	if s.raw == nil {
		s.raw = make([]byte, s.size)
	}
	n, err := unix.Read(s.fd, s.raw)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, StatusPending, nil
	case err != nil:
		s.readErr = err
		s.dec.closeInput()
		return s.terminal()
	case n == 0:
		s.dec.closeInput()
	default:
		s.bytesIn += int64(n)
		s.dec.feed(s.raw[:n])
	}

	if n := s.dec.take(p); n > 0 {
		return n, StatusData, nil
	}
	if s.dec.finished() {
		return s.terminal()
	}
	return 0, StatusPending, nil
}

// Pending reports whether the next Read can complete without the
// descriptor becoming readable: decoded bytes are buffered, or the
// stream has reached its end and has not reported it yet.
func (s *Stream) Pending() bool {
	if s.closed || s.mode != modeRead {
		return false
	}
	return s.dec.buffered() > 0 || s.dec.finished()
}

// LastError returns the codec code and message describing why the
// stream ended, or CodeOK and "" while it is still running.
func (s *Stream) LastError() (int, string) {
	if s.mode != modeRead {
		return CodeOK, ""
	}
	if s.readErr != nil {
		return classify(s.readErr)
	}
	if !s.dec.finished() || s.dec.err == io.EOF {
		return CodeOK, ""
	}
	return classify(s.dec.err)
}

// BytesIn returns the number of compressed bytes read.
func (s *Stream) BytesIn() int64 { return s.bytesIn }

func (s *Stream) terminal() (int, Status, error) {
	if s.readErr != nil {
		code, msg := classify(s.readErr)
		return 0, StatusError, s.streamErr(code, msg, gerrors.Errno(s.readErr))
	}
	if s.dec.err == io.EOF {
		return 0, StatusEndOfStream, nil
	}
	code, msg := classify(s.dec.err)
	return 0, StatusError, s.streamErr(code, msg, gerrors.Errno(s.dec.err))
}

// ── write mode ───────────────────────────────────────────────────────

// WriteFlush compresses p and sync-flushes so the receiver can decode
// it on its own.  The gzip member stays open for further writes.
func (s *Stream) WriteFlush(p []byte) error {
	if s.closed {
		return s.closedErr(gerrors.ErrWrite)
	}
	if s.mode != modeWrite {
		return &gerrors.StreamError{Kind: gerrors.ErrWrite, FD: s.fd, Code: CodeStream,
			Msg: "stream not open for writing"}
	}
	s.used = true

	n, err := s.zw.Write(p)
	if err != nil || n != len(p) {
		code, msg := classify(err)
		if err == nil {
			code, msg = CodeErrno, "short write"
		}
		return &gerrors.StreamError{
			Kind: gerrors.ErrWrite, FD: s.fd, Code: code, Msg: msg,
			Errno: gerrors.Errno(err), Written: n, Requested: len(p),
		}
	}

	if err := s.zw.Flush(); err != nil {
		code, msg := classify(err)
		return &gerrors.StreamError{
			Kind: gerrors.ErrFlush, FD: s.fd, Code: code, Msg: msg,
			Errno: gerrors.Errno(err),
		}
	}
	return nil
}

// BytesOut returns the number of compressed bytes written.
func (s *Stream) BytesOut() int64 {
	if s.out == nil {
		return 0
	}
	return s.out.sent
}

// ── teardown ─────────────────────────────────────────────────────────

// Close ends the stream and closes the descriptor.  In write mode it
// first terminates the gzip member so the peer sees a clean end.
func (s *Stream) Close() error {
	if s.closed {
		return s.closedErr(gerrors.ErrClosed)
	}
	s.closed = true

	var finishErr error
	switch s.mode {
	case modeRead:
		s.dec.closeInput()
	case modeWrite:
		if err := s.zw.Close(); err != nil {
			code, msg := classify(err)
			finishErr = &gerrors.StreamError{
				Kind: gerrors.ErrFlush, FD: s.fd, Code: code, Msg: "finish: " + msg,
				Errno: gerrors.Errno(err),
			}
		}
	}

	if err := unix.Close(s.fd); err != nil && finishErr == nil {
		errno := gerrors.Errno(err)
		return s.streamErr(CodeErrno, err.Error(), errno)
	}
	return finishErr
}

// ── error helpers ────────────────────────────────────────────────────

func (s *Stream) streamErr(code int, msg string, errno syscall.Errno) error {
	return &gerrors.StreamError{Kind: gerrors.ErrStream, FD: s.fd, Code: code, Msg: msg, Errno: errno}
}

func (s *Stream) configErr(msg string) error {
	return &gerrors.StreamError{Kind: gerrors.ErrAdapterConfig, FD: s.fd, Code: CodeStream, Msg: msg}
}

func (s *Stream) closedErr(kind error) error {
	return &gerrors.StreamError{
		Kind: kind, FD: s.fd, Code: CodeStream,
		Msg: fmt.Sprintf("%v (mode %s)", gerrors.ErrClosed, s.mode),
	}
}

// classify maps a codec or I/O error onto a status code and message.
func classify(err error) (int, string) {
	var corrupt flate.CorruptInputError
	var errno syscall.Errno
	switch {
	case err == nil:
		return CodeOK, ""
	case errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF:
		return CodeBuf, "unexpected end of file"
	case errors.Is(err, gzip.ErrHeader):
		return CodeData, "incorrect header check"
	case errors.Is(err, gzip.ErrChecksum):
		return CodeData, "incorrect data check"
	case errors.As(err, &corrupt):
		return CodeData, err.Error()
	case errors.As(err, &errno):
		return CodeErrno, errno.Error()
	case errors.Is(err, gerrors.ErrTimeout):
		return CodeErrno, err.Error()
	default:
		return CodeStream, err.Error()
	}
}
