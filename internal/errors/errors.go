// Package errors provides domain-specific error types for gzstream.
//
// These types carry structured context (operation, address, descriptor,
// codec code, saved errno) so callers can log a complete diagnostic at
// the point of failure without consulting any process-wide error state.
package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrAdapterOpen   = errors.New("compression stream open failed")
	ErrAdapterConfig = errors.New("compression stream configure failed")
	ErrWrite         = errors.New("compressed write failed")
	ErrFlush         = errors.New("compressed flush failed")
	ErrStream        = errors.New("compressed stream error")
	ErrConnect       = errors.New("could not connect")
	ErrListen        = errors.New("could not socket/bind/listen")
	ErrClosed        = errors.New("stream is closed")
	ErrTimeout       = errors.New("operation timed out")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a descriptor-level network
// operation.
type NetworkError struct {
	Op        string // operation: "socket", "bind", "listen", "accept", "connect", "poll"
	Addr      string // network address involved
	Err       error  // underlying error, usually a syscall.Errno
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StreamError is a Compression Stream Adapter failure.  Kind is one of
// the Err* sentinels above and is matched by [errors.Is].
type StreamError struct {
	Kind      error
	FD        int
	Code      int           // codec status code (see gzstream.Code*)
	Msg       string        // codec message
	Errno     syscall.Errno // saved errno of the failing I/O call, 0 if none
	Written   int           // bytes accepted (write errors only)
	Requested int           // bytes requested (write errors only)
}

func (e *StreamError) Error() string {
	s := fmt.Sprintf("%v (fd %d): %d=[%s]", e.Kind, e.FD, e.Code, e.Msg)
	if e.Requested > 0 {
		s += fmt.Sprintf("; wrote %d of %d", e.Written, e.Requested)
	}
	if e.Errno != 0 {
		s += fmt.Sprintf("; errno=%d[%s]", int(e.Errno), e.Errno.Error())
	}
	return s
}

// Is matches the sentinel kind.
func (e *StreamError) Is(target error) bool { return target == e.Kind }

// Unwrap exposes the saved errno, if any.
func (e *StreamError) Unwrap() error {
	if e.Errno == 0 {
		return nil
	}
	return e.Errno
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// Errno extracts the saved errno from err, or 0.
func Errno(err error) syscall.Errno {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Errno
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

// classifyRetryable inspects standard library error types.  Refused,
// reset and unreachable peers count as retryable so a client can wait
// for a server that is still starting.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN, syscall.EINTR, syscall.ECONNABORTED, syscall.EMFILE,
			syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT,
			syscall.EHOSTUNREACH, syscall.ENETUNREACH:
			return true
		}
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use gzstream/internal/errors as a drop-in
// replacement for the standard library in common operations.

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
