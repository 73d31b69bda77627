//go:build linux || darwin

package core

import (
	"fmt"
	"os"

	"gzstream/config"
	"gzstream/internal/capability"
	"gzstream/internal/message"
	"gzstream/internal/metrics"
	"gzstream/internal/retry"
	"gzstream/internal/transport"
	"gzstream/util"
)

// Build constructs the appropriate Mode from the given configuration.
// The configuration is expected to have passed Validate.
func Build(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) (Mode, error) {
	switch cfg.Mode {
	case config.ModeServer:
		return buildServer(cfg, logger, stats), nil
	case config.ModeClient:
		return buildClient(cfg, logger, stats), nil
	case config.ModeCoLocated:
		return &CoLocatedMode{
			Server:       buildServer(cfg, logger, stats),
			Client:       buildClient(cfg, logger, stats),
			StartupDelay: cfg.StartupDelay,
			Logger:       logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode %v", cfg.Mode)
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildServer(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) *ServerMode {
	return &ServerMode{
		Host:         cfg.BindHost,
		Port:         cfg.Port,
		Backlog:      cfg.Backlog,
		BufferSize:   cfg.BufferSize,
		ReadSize:     cfg.ReadSize,
		MaxMessage:   cfg.MaxMessage,
		PollInterval: cfg.PollInterval,
		Capability:   buildCapability(cfg),
		Metrics:      stats,
		Logger:       logger,
	}
}

func buildClient(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) *ClientMode {
	return &ClientMode{
		Dialer:        &transport.TCPDialer{Timeout: cfg.ConnectTimeout, Logger: logger},
		Retry:         &retry.Backoff{Attempts: cfg.ConnectRetries + 1},
		Host:          cfg.Host,
		Port:          cfg.Port,
		Tokens:        message.Parse(cfg.Tokens, cfg.FirstToken),
		MaxMessage:    cfg.MaxMessage,
		Level:         cfg.Level,
		BufferSize:    cfg.BufferSize,
		WriteTimeout:  cfg.WriteTimeout,
		DelayInterval: cfg.DelayInterval,
		Metrics:       stats,
		Logger:        logger,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// buildCapability selects what the server does with decoded data.
func buildCapability(cfg *config.Config) capability.Capability {
	chain := capability.Chain{capability.Log{}}
	if cfg.Echo {
		chain = append(chain, &capability.Echo{W: os.Stdout})
	}
	if cfg.StopKeyword != "" {
		chain = append(chain, capability.StopOnKeyword{Keyword: cfg.StopKeyword})
	}
	return chain
}
