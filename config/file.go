package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the yaml shape.  Pointer fields distinguish "absent"
// from an explicit zero.
type fileConfig struct {
	Port           *int           `yaml:"port"`
	Bind           *string        `yaml:"bind"`
	Backlog        *int           `yaml:"backlog"`
	ConnectTimeout *time.Duration `yaml:"connect_timeout"`
	ConnectRetries *int           `yaml:"connect_retries"`

	BufferSize   *int           `yaml:"buffer_size"`
	ReadSize     *int           `yaml:"read_size"`
	MaxMessage   *int           `yaml:"max_message"`
	Level        *int           `yaml:"level"`
	WriteTimeout *time.Duration `yaml:"write_timeout"`

	PollInterval  *time.Duration `yaml:"poll_interval"`
	DelayInterval *time.Duration `yaml:"delay_interval"`
	StartupDelay  *time.Duration `yaml:"startup_delay"`

	StopKeyword *string `yaml:"stop_keyword"`
	Stdout      *bool   `yaml:"stdout"`

	Verbose     *int    `yaml:"verbose"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

// LoadFile overlays the yaml file at path onto cfg.  Unknown keys are
// rejected so a typo does not silently fall back to a default.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	setInt(&cfg.Port, fc.Port)
	setString(&cfg.BindHost, fc.Bind)
	setInt(&cfg.Backlog, fc.Backlog)
	setDuration(&cfg.ConnectTimeout, fc.ConnectTimeout)
	setInt(&cfg.ConnectRetries, fc.ConnectRetries)

	setInt(&cfg.BufferSize, fc.BufferSize)
	setInt(&cfg.ReadSize, fc.ReadSize)
	setInt(&cfg.MaxMessage, fc.MaxMessage)
	setInt(&cfg.Level, fc.Level)
	setDuration(&cfg.WriteTimeout, fc.WriteTimeout)

	setDuration(&cfg.PollInterval, fc.PollInterval)
	setDuration(&cfg.DelayInterval, fc.DelayInterval)
	setDuration(&cfg.StartupDelay, fc.StartupDelay)

	setString(&cfg.StopKeyword, fc.StopKeyword)
	if fc.Stdout != nil {
		cfg.Echo = *fc.Stdout
	}

	setInt(&cfg.Verbose, fc.Verbose)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)

	cfg.ConfigFile = path
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}
