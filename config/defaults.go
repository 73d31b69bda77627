package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultBufferSize is deliberately tiny so nearly every payload
	// reaches the decoder across several partial reads.
	DefaultBufferSize = 16

	// DefaultReadSize is how many decoded bytes one server read asks for.
	DefaultReadSize = 128

	// DefaultMaxMessage is the longest client payload, terminator
	// included.  Longer literals are skipped.
	DefaultMaxMessage = 128

	// DefaultPollInterval bounds every readiness wait.
	DefaultPollInterval = time.Second

	// DefaultDelayInterval is the pause taken for each --delay token.
	DefaultDelayInterval = time.Second

	// DefaultConnectTimeout bounds one connect attempt per address.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds how long a write waits on a full socket.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultLevel is the gzip library default.
	DefaultLevel = -1

	// DefaultBacklog is the listen queue length.
	DefaultBacklog = 10

	// DefaultVerbose shows poll, accept, read and close diagnostics.
	DefaultVerbose = 1

	// MaxBufferSize mirrors the largest granularity a stream accepts.
	MaxBufferSize = 1 << 20

	// MinLevel and MaxLevel bound the accepted gzip levels.
	MinLevel = -2
	MaxLevel = 9
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Mode:           ModeServer,
		Backlog:        DefaultBacklog,
		ConnectTimeout: DefaultConnectTimeout,
		BufferSize:     DefaultBufferSize,
		ReadSize:       DefaultReadSize,
		MaxMessage:     DefaultMaxMessage,
		Level:          DefaultLevel,
		WriteTimeout:   DefaultWriteTimeout,
		PollInterval:   DefaultPollInterval,
		DelayInterval:  DefaultDelayInterval,
		Verbose:        DefaultVerbose,
	}
}
