// Package config defines the runtime configuration for gzstream and the
// layers that fill it: defaults, an optional yaml file, STREAMGZ_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"strconv"
	"time"

	gerrors "gzstream/internal/errors"
)

// Mode selects which peers run in this process.
type Mode int

const (
	ModeServer    Mode = iota // <port>
	ModeClient                // <port> <host> tokens...
	ModeCoLocated             // <port> --client-fork <host> tokens...
)

func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeClient:
		return "client"
	case ModeCoLocated:
		return "co-located"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// HasClient reports whether the mode sends messages.
func (m Mode) HasClient() bool { return m == ModeClient || m == ModeCoLocated }

// HasServer reports whether the mode runs the Session Loop.
func (m Mode) HasServer() bool { return m == ModeServer || m == ModeCoLocated }

// Config holds every tuneable for a single gzstream run.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Mode           Mode
	Port           int
	Host           string // client target
	BindHost       string // server listen address; "" is the wildcard
	Backlog        int
	ConnectTimeout time.Duration
	ConnectRetries int // extra connect attempts after a refusal

	// ── Stream ───────────────────────────────────────────────────────
	BufferSize   int // raw socket I/O granularity of each stream
	ReadSize     int // decoded bytes requested per server read
	MaxMessage   int // longest client payload, terminator included
	Level        int // gzip level
	WriteTimeout time.Duration

	// ── Timing ───────────────────────────────────────────────────────
	PollInterval  time.Duration
	DelayInterval time.Duration // pause for each --delay token
	StartupDelay  time.Duration // co-located client wait after the server is ready

	// ── Client ───────────────────────────────────────────────────────
	Tokens     []string // raw message arguments, in order
	FirstToken int      // argument index of Tokens[0], for diagnostics

	// ── Server policy ────────────────────────────────────────────────
	StopKeyword string
	Echo        bool

	// ── Output ───────────────────────────────────────────────────────
	Verbose     int
	MetricsAddr string
	ConfigFile  string
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port in 0-65535.  0 asks the kernel to
// choose.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 0-65535", port)
	}
	return port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Every failure is a *errors.ConfigError.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &gerrors.ConfigError{Field: "port", Value: c.Port, Message: "out of range 0-65535"}
	}
	if c.Mode == ModeClient && c.Port == 0 {
		return &gerrors.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "a client needs a concrete port",
			Hint:    "port 0 only makes sense for a server, which reports the port it was given",
		}
	}
	if c.Mode.HasClient() && c.Host == "" {
		return &gerrors.ConfigError{
			Field:   "host",
			Message: "required in client modes",
			Hint:    "usage: gzstream <port> [--client-fork] <host> [msg|--delay]...",
		}
	}

	if c.BufferSize < 1 || c.BufferSize > MaxBufferSize {
		return &gerrors.ConfigError{
			Field: "buffer-size", Value: c.BufferSize,
			Message: fmt.Sprintf("must be 1-%d", MaxBufferSize),
		}
	}
	if c.ReadSize < 1 {
		return &gerrors.ConfigError{Field: "read-size", Value: c.ReadSize, Message: "must be positive"}
	}
	if c.MaxMessage < 1 {
		return &gerrors.ConfigError{Field: "max-message", Value: c.MaxMessage, Message: "must be positive"}
	}
	if c.Level < MinLevel || c.Level > MaxLevel {
		return &gerrors.ConfigError{
			Field: "level", Value: c.Level,
			Message: fmt.Sprintf("must be %d-%d", MinLevel, MaxLevel),
			Hint:    "-1 selects the gzip default, -2 Huffman-only",
		}
	}
	if c.Backlog < 1 {
		return &gerrors.ConfigError{Field: "backlog", Value: c.Backlog, Message: "must be positive"}
	}

	if c.PollInterval <= 0 {
		return &gerrors.ConfigError{
			Field: "poll-interval", Value: c.PollInterval, Message: "must be positive",
			Hint: "a zero timeout turns the Session Loop into a busy loop",
		}
	}
	for _, d := range []struct {
		field string
		v     time.Duration
	}{
		{"delay-interval", c.DelayInterval},
		{"startup-delay", c.StartupDelay},
	} {
		if d.v < 0 {
			return &gerrors.ConfigError{Field: d.field, Value: d.v, Message: "must not be negative"}
		}
	}
	if c.ConnectTimeout <= 0 {
		return &gerrors.ConfigError{Field: "connect-timeout", Value: c.ConnectTimeout, Message: "must be positive"}
	}
	if c.ConnectRetries < 0 {
		return &gerrors.ConfigError{Field: "connect-retries", Value: c.ConnectRetries, Message: "must not be negative"}
	}
	if c.WriteTimeout <= 0 {
		return &gerrors.ConfigError{Field: "write-timeout", Value: c.WriteTimeout, Message: "must be positive"}
	}

	if c.StopKeyword != "" && !c.Mode.HasServer() {
		return &gerrors.ConfigError{
			Field: "stop-keyword", Value: c.StopKeyword,
			Message: "only applies to a server",
		}
	}
	if c.Verbose < 0 || c.Verbose > 3 {
		return &gerrors.ConfigError{Field: "verbose", Value: c.Verbose, Message: "must be 0-3"}
	}
	return nil
}
