package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/labdeck/internal/backend"
)

type fileConfig struct {
	CommandEndpoint   string `toml:"command_endpoint"`
	TelemetryEndpoint string `toml:"telemetry_endpoint"`
	Steps             int    `toml:"steps"`
	Tick              string `toml:"tick"`
	TickMS            int64  `toml:"tick_ms"`
}

func loadServerConfig(path string) (backend.Config, error) {
	cfg := backend.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return backend.Config{}, fmt.Errorf("load backend config: %w", err)
	}

	if meta.IsDefined("command_endpoint") {
		if ep := strings.TrimSpace(raw.CommandEndpoint); ep != "" {
			cfg.CommandEndpoint = ep
		}
	}

	if meta.IsDefined("telemetry_endpoint") {
		if ep := strings.TrimSpace(raw.TelemetryEndpoint); ep != "" {
			cfg.TelemetryEndpoint = ep
		}
	}

	if meta.IsDefined("steps") {
		cfg.Steps = raw.Steps
	}

	if meta.IsDefined("tick") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Tick))
		if err != nil {
			return backend.Config{}, fmt.Errorf("parse tick: %w", err)
		}
		cfg.Tick = d
	}

	if meta.IsDefined("tick_ms") {
		cfg.Tick = time.Duration(raw.TickMS) * time.Millisecond
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return backend.Config{}, fmt.Errorf("unknown backend config key %q", undecoded[0].String())
	}

	return cfg, cfg.Validate()
}
