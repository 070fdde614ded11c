package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/labdeck/internal/bridge"
	"github.com/danmuck/labdeck/internal/config"
	"github.com/danmuck/labdeck/internal/kiosk"
	"github.com/danmuck/labdeck/internal/logging"
	"github.com/danmuck/labdeck/internal/supervisor"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "labdeck config path (defaults built in)")
	flag.Parse()

	logging.ConfigureRuntime("labdeck")
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "labdeck: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.DefaultLabdeckConfig()
	if configPath != "" {
		loaded, err := config.LoadLabdeckConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sup *supervisor.Supervisor
	if cfg.Backend.Managed {
		sup = supervisor.New(cfg.SupervisorOptions())
		if err := sup.Start(ctx); err != nil {
			return err
		}
		if err := sup.WaitReady(ctx); err != nil {
			// The bridge still connects; channels that never come up stay down.
			log.Warn().Msgf("labdeck backend not ready err=%v", err)
		}
		defer func() {
			status, err := sup.Stop()
			if err != nil && !errors.Is(err, supervisor.ErrNotStarted) {
				log.Warn().Msgf("labdeck backend stop err=%v", err)
				return
			}
			log.Info().Msgf("labdeck backend stopped code=%d", status.ExitCode)
		}()
	}

	b, err := bridge.Connect(ctx, cfg.BridgeOptions())
	if b == nil {
		return err
	}
	if err != nil {
		log.Warn().Msgf("labdeck bridge degraded err=%v", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Msgf("labdeck bridge close err=%v", err)
		}
	}()

	opts := kiosk.Options{
		Commander:   b,
		Telemetry:   b,
		Tasks:       b,
		Health:      b,
		CorsOrigins: cfg.Server.CorsOrigins,
	}
	if sup != nil {
		opts.BackendStatus = sup.Status
	}
	app, err := kiosk.New(opts)
	if err != nil {
		return err
	}
	return app.Serve(ctx, cfg.Server.Addr)
}
