package bridge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("bridge: invalid config")

const (
	TopicProgress = "progress"
	TopicResult   = "result"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines bridge endpoints and reliability settings.
type Config struct {
	CommandEndpoint   string
	TelemetryEndpoint string
	Topics            []string
	// RequestTimeout bounds one command exchange. Zero means no bound.
	RequestTimeout time.Duration
	DialRetry      time.Duration
	DialMaxRetries int
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		CommandEndpoint:   "tcp://127.0.0.1:5555",
		TelemetryEndpoint: "tcp://127.0.0.1:5556",
		Topics:            []string{TopicProgress, TopicResult},
		RequestTimeout:    30 * time.Second,
		DialRetry:         250 * time.Millisecond,
		DialMaxRetries:    10,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// Validate rejects configs that could never connect.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CommandEndpoint) == "" {
		return fmt.Errorf("%w: command endpoint required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.TelemetryEndpoint) == "" {
		return fmt.Errorf("%w: telemetry endpoint required", ErrInvalidConfig)
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("%w: at least one topic required", ErrInvalidConfig)
	}
	for _, topic := range c.Topics {
		if strings.TrimSpace(topic) == "" || strings.ContainsAny(topic, " \t") {
			return fmt.Errorf("%w: bad topic %q", ErrInvalidConfig, topic)
		}
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: request timeout must be >= 0", ErrInvalidConfig)
	}
	return nil
}
