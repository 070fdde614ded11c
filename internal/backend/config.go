package backend

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("backend: invalid config")

// Config defines the backend's endpoints and simulated workload.
type Config struct {
	CommandEndpoint   string
	TelemetryEndpoint string
	Steps             int
	Tick              time.Duration
}

func DefaultConfig() Config {
	return Config{
		CommandEndpoint:   "tcp://127.0.0.1:5555",
		TelemetryEndpoint: "tcp://127.0.0.1:5556",
		Steps:             5,
		Tick:              time.Second,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.CommandEndpoint) == "" || strings.TrimSpace(c.TelemetryEndpoint) == "" {
		return fmt.Errorf("%w: endpoints required", ErrInvalidConfig)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be > 0", ErrInvalidConfig)
	}
	if c.Tick < 0 {
		return fmt.Errorf("%w: tick must be >= 0", ErrInvalidConfig)
	}
	return nil
}
