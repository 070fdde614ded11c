package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

// LabdeckConfig is the host process configuration (labdeck.toml).
type LabdeckConfig struct {
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Bridge  BridgeConfig  `toml:"bridge"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// BackendConfig describes the supervised execution backend. With Managed
// false the host connects to an externally run backend instead.
type BackendConfig struct {
	Managed      bool     `toml:"managed"`
	Command      string   `toml:"command"`
	Args         []string `toml:"args"`
	Dir          string   `toml:"dir"`
	Env          []string `toml:"env"`
	StopGrace    Duration `toml:"stop_grace"`
	ReadyTimeout Duration `toml:"ready_timeout"`
}

type BridgeConfig struct {
	CommandEndpoint   string   `toml:"command_endpoint"`
	TelemetryEndpoint string   `toml:"telemetry_endpoint"`
	Topics            []string `toml:"topics"`
	RequestTimeout    Duration `toml:"request_timeout"`
	DialRetry         Duration `toml:"dial_retry"`
	DialMaxRetries    int      `toml:"dial_max_retries"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func DefaultLabdeckConfig() LabdeckConfig {
	return LabdeckConfig{
		Server: ServerConfig{
			Addr:        "127.0.0.1:8080",
			CorsOrigins: []string{"http://localhost:5173"},
		},
		Backend: BackendConfig{
			Managed:      true,
			Command:      "labbackend",
			Args:         []string{},
			Env:          []string{},
			StopGrace:    Duration(2 * time.Second),
			ReadyTimeout: Duration(10 * time.Second),
		},
		Bridge: BridgeConfig{
			CommandEndpoint:   "tcp://127.0.0.1:5555",
			TelemetryEndpoint: "tcp://127.0.0.1:5556",
			Topics:            []string{"progress", "result"},
			RequestTimeout:    Duration(30 * time.Second),
			DialRetry:         Duration(250 * time.Millisecond),
			DialMaxRetries:    10,
		},
	}
}

// LoadLabdeckConfig reads path over the defaults. Keys missing from the file
// keep their default value.
func LoadLabdeckConfig(path string) (LabdeckConfig, error) {
	cfg := DefaultLabdeckConfig()
	if err := loadToml(path, &cfg); err != nil {
		return LabdeckConfig{}, err
	}
	if err := ValidateLabdeckConfig(cfg); err != nil {
		return LabdeckConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateLabdeckConfig(cfg LabdeckConfig) error {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr required", ErrInvalidConfig)
	}
	if cfg.Backend.Managed && strings.TrimSpace(cfg.Backend.Command) == "" {
		return fmt.Errorf("%w: backend.command required when managed", ErrInvalidConfig)
	}
	if cfg.Backend.StopGrace < 0 || cfg.Backend.ReadyTimeout < 0 {
		return fmt.Errorf("%w: backend durations must be >= 0", ErrInvalidConfig)
	}
	for name, ep := range map[string]string{
		"bridge.command_endpoint":   cfg.Bridge.CommandEndpoint,
		"bridge.telemetry_endpoint": cfg.Bridge.TelemetryEndpoint,
	} {
		if !strings.HasPrefix(strings.TrimSpace(ep), "tcp://") {
			return fmt.Errorf("%w: %s must be a tcp:// endpoint, got %q", ErrInvalidConfig, name, ep)
		}
	}
	if len(cfg.Bridge.Topics) == 0 {
		return fmt.Errorf("%w: bridge.topics must not be empty", ErrInvalidConfig)
	}
	if cfg.Bridge.RequestTimeout < 0 {
		return fmt.Errorf("%w: bridge.request_timeout must be >= 0", ErrInvalidConfig)
	}
	return nil
}
