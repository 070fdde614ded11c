package config

import (
	"strings"

	"github.com/danmuck/labdeck/internal/bridge"
	"github.com/danmuck/labdeck/internal/supervisor"
)

// BridgeOptions maps the [bridge] table onto bridge.Config.
func (c LabdeckConfig) BridgeOptions() bridge.Config {
	out := bridge.DefaultConfig()
	out.CommandEndpoint = strings.TrimSpace(c.Bridge.CommandEndpoint)
	out.TelemetryEndpoint = strings.TrimSpace(c.Bridge.TelemetryEndpoint)
	out.Topics = append([]string(nil), c.Bridge.Topics...)
	out.RequestTimeout = c.Bridge.RequestTimeout.Std()
	out.DialRetry = c.Bridge.DialRetry.Std()
	out.DialMaxRetries = c.Bridge.DialMaxRetries
	return out
}

// SupervisorOptions maps the [backend] table onto supervisor.Config. The
// readiness probes target the bridge endpoints.
func (c LabdeckConfig) SupervisorOptions() supervisor.Config {
	out := supervisor.DefaultConfig()
	out.Command = strings.TrimSpace(c.Backend.Command)
	out.Args = append([]string(nil), c.Backend.Args...)
	out.Dir = c.Backend.Dir
	out.Env = append([]string(nil), c.Backend.Env...)
	out.StopGrace = c.Backend.StopGrace.Std()
	out.ReadyTimeout = c.Backend.ReadyTimeout.Std()
	out.ReadyAddrs = []string{c.Bridge.CommandEndpoint, c.Bridge.TelemetryEndpoint}
	return out
}
