//go:build linux || darwin

// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"gzstream/config"
	"gzstream/internal/core"
	"gzstream/internal/metrics"
	"gzstream/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X gzstream/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// clientFork selects the co-located mode.
const clientFork = "--client-fork"

// ErrUsage marks command-line mistakes.
var ErrUsage = errors.New("usage")

// Execute parses args and runs the selected gzstream mode.
func Execute(ctx context.Context, args []string) error {
	// ── lower layers: defaults, file, environment ────────────────
	cfg := config.Default()
	if path := configPath(args); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return err
	}

	fs := flag.NewFlagSet("gzstream", flag.ContinueOnError)
	// Everything after <port> is positional, including "--delay".
	fs.SetInterspersed(false)

	// ── connection ───────────────────────────────────────────────
	fs.StringVar(&cfg.BindHost, "bind", cfg.BindHost, "Server listen address (default: all IPv4 addresses)")
	fs.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "Server listen backlog")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Client connect timeout per address")
	fs.IntVar(&cfg.ConnectRetries, "connect-retries", cfg.ConnectRetries, "Client reconnect attempts after a refused connect")

	// ── stream ───────────────────────────────────────────────────
	fs.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "Raw socket I/O granularity in bytes")
	fs.IntVar(&cfg.ReadSize, "read-size", cfg.ReadSize, "Decoded bytes requested per server read")
	fs.IntVar(&cfg.MaxMessage, "max-message", cfg.MaxMessage, "Longest client message in bytes, terminator included")
	fs.IntVar(&cfg.Level, "level", cfg.Level, "gzip compression level (-2..9, -1 = default)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Client wait for a full socket buffer")

	// ── timing ───────────────────────────────────────────────────
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Readiness poll timeout")
	fs.DurationVar(&cfg.DelayInterval, "delay-interval", cfg.DelayInterval, "Pause taken for each --delay token")
	fs.DurationVar(&cfg.StartupDelay, "startup-delay", cfg.StartupDelay, "Co-located client wait after the server is listening")

	// ── server policy ────────────────────────────────────────────
	fs.StringVar(&cfg.StopKeyword, "stop-keyword", cfg.StopKeyword, "Stop the server when this message arrives")
	fs.BoolVar(&cfg.Echo, "stdout", cfg.Echo, "Write each received message to stdout")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	var quiet bool
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.StringVar(&cfg.ConfigFile, "config", config.ConfigPathFromEnv(), "yaml configuration file")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("gzstream %s\n", version)
		return nil
	}

	cfg.Verbose += verbose
	if quiet {
		cfg.Verbose = 0
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		printUsage(fs)
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("gzstream %s: %s on port %d, %d tokens\n", version, cfg.Mode, cfg.Port, len(cfg.Tokens))
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	stats := metrics.New()

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, stats, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	mode, err := core.Build(cfg, logger, stats)
	if err != nil {
		return err
	}
	logger.Verbose("gzstream %s running as %s", version, cfg.Mode)

	err = mode.Run(ctx)
	logger.Verbose("metrics: %s", stats.JSON())
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional handles
//
//	<port>
//	<port> <host> [msg|--delay]...
//	<port> --client-fork <host> [msg|--delay]...
//
// Token indexes count <port> as argument 1.
func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) == 0 {
		if cfg.Port != 0 {
			cfg.Mode = config.ModeServer
			return nil
		}
		return fmt.Errorf("%w: <port> is required", ErrUsage)
	}

	port, err := config.ParsePort(remaining[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	cfg.Port = port

	rest := remaining[1:]
	switch {
	case len(rest) == 0:
		cfg.Mode = config.ModeServer
	case rest[0] == clientFork:
		if len(rest) < 2 {
			return fmt.Errorf("%w: %s needs a server host", ErrUsage, clientFork)
		}
		cfg.Mode = config.ModeCoLocated
		cfg.Host = rest[1]
		cfg.Tokens = rest[2:]
		cfg.FirstToken = 4
	default:
		cfg.Mode = config.ModeClient
		cfg.Host = rest[0]
		cfg.Tokens = rest[1:]
		cfg.FirstToken = 3
	}
	return nil
}

// configPath finds --config before the full flag set exists, so the
// file can sit below the environment and the flags.
func configPath(args []string) string {
	fs := flag.NewFlagSet("gzstream", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	path := fs.String("config", config.ConfigPathFromEnv(), "")
	fs.BoolP("help", "h", false, "")
	if err := fs.Parse(args); err != nil {
		return config.ConfigPathFromEnv()
	}
	return *path
}

// serveMetrics exposes stats at addr/metrics until the returned stop
// function is called.
func serveMetrics(addr string, stats *metrics.Collector, logger *util.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(stats))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server: %v", err)
		}
	}()
	logger.Verbose("metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `gzstream – gzip sync-flush streaming harness v%s

A one-connection-at-a-time server that decodes a gzip stream as it
arrives on a non-blocking socket, and a client that sync-flushes every
message so it can be decoded on its own.

Usage:
  gzstream [options] <port>                                   Server
  gzstream [options] <port> <host> [msg|--delay]...           Client
  gzstream [options] <port> --client-fork <host> [msg|--delay]...
                                                              Both, in one process

Options (before <port>):
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  STREAMGZ_<OPTION>  overrides defaults and the config file, e.g.
                     STREAMGZ_BUFFER_SIZE=64, STREAMGZ_POLL_INTERVAL=250ms

Examples:
  gzstream 4444                                     Serve on 4444
  gzstream 4444 srvrhst message1 --delay message2   Send two messages
  gzstream --stop-keyword -stopserver- 4444 --client-fork 127.0.0.1 msg1 --delay -stopserver-
`)
}
