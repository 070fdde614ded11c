package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/labdeck/internal/testutil/testlog"
)

func TestLoadServerConfigOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadServerConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.CommandEndpoint != "tcp://127.0.0.1:6555" || cfg.TelemetryEndpoint != "tcp://127.0.0.1:6556" {
		t.Fatalf("unexpected endpoints: %+v", cfg)
	}
	if cfg.Steps != 3 || cfg.Tick != 250*time.Millisecond {
		t.Fatalf("unexpected workload: steps=%d tick=%v", cfg.Steps, cfg.Tick)
	}
}

func TestLoadServerConfigKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "backend.toml")
	if err := os.WriteFile(path, []byte("tick_ms = 20\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Steps != 5 || cfg.CommandEndpoint != "tcp://127.0.0.1:5555" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Tick != 20*time.Millisecond {
		t.Fatalf("unexpected tick: %v", cfg.Tick)
	}
}

func TestLoadServerConfigRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cases := map[string]string{
		"tick":    "tick = \"later\"\n",
		"steps":   "steps = 0\n",
		"unknown": "worker_count = 4\n",
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loadServerConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
