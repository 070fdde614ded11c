package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/labdeck/internal/backend"
	"github.com/danmuck/labdeck/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "backend config path (defaults built in)")
	flag.Parse()

	logging.ConfigureRuntime("labbackend")
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "labbackend: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := backend.DefaultConfig()
	if configPath != "" {
		loaded, err := loadServerConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := backend.NewServer(cfg)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info().Msgf("labbackend running commands=%q updates=%q", cfg.CommandEndpoint, cfg.TelemetryEndpoint)

	<-ctx.Done()
	log.Info().Msg("labbackend shutting down")
	return srv.Close()
}
