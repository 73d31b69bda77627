package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix starts every supported environment variable.
const EnvPrefix = "STREAMGZ_"

// ── Environment variable mapping ─────────────────────────────────────
//
// Boolean values accept "1", "true", "yes" (case-insensitive).
// Durations accept Go syntax ("250ms") or plain integer seconds.

// ConfigPathFromEnv returns STREAMGZ_CONFIG.
func ConfigPathFromEnv() string {
	return os.Getenv(EnvPrefix + "CONFIG")
}

// LoadFromEnv overlays environment variables onto cfg.  Only set,
// non-empty variables override the existing value.  A malformed value
// is reported instead of silently ignored.  This should be called
// BEFORE CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) error {
	e := envReader{}

	if v := os.Getenv(EnvPrefix + "BIND"); v != "" {
		cfg.BindHost = v
	}
	e.int("PORT", &cfg.Port)
	e.int("BACKLOG", &cfg.Backlog)
	e.duration("CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	e.int("CONNECT_RETRIES", &cfg.ConnectRetries)

	// Stream
	e.int("BUFFER_SIZE", &cfg.BufferSize)
	e.int("READ_SIZE", &cfg.ReadSize)
	e.int("MAX_MESSAGE", &cfg.MaxMessage)
	e.int("LEVEL", &cfg.Level)
	e.duration("WRITE_TIMEOUT", &cfg.WriteTimeout)

	// Timing
	e.duration("POLL_INTERVAL", &cfg.PollInterval)
	e.duration("DELAY_INTERVAL", &cfg.DelayInterval)
	e.duration("STARTUP_DELAY", &cfg.StartupDelay)

	// Server policy
	if v := os.Getenv(EnvPrefix + "STOP_KEYWORD"); v != "" {
		cfg.StopKeyword = v
	}
	if envBool(EnvPrefix + "STDOUT") {
		cfg.Echo = true
	}

	// Output
	e.int("VERBOSE", &cfg.Verbose)
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	return e.err
}

// ── helpers ──────────────────────────────────────────────────────────

// envReader remembers the first malformed variable.
type envReader struct {
	err error
}

func (e *envReader) int(key string, dst *int) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	d, err := parseDuration(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = d
}

func (e *envReader) fail(key, v string) {
	if e.err == nil {
		e.err = fmt.Errorf("%s%s=%q: malformed value", EnvPrefix, key, v)
	}
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// parseDuration accepts "1.5s" style durations and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second, nil
	}
	return time.ParseDuration(v)
}
