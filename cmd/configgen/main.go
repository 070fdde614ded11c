package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/labdeck/internal/config"
	"github.com/danmuck/labdeck/internal/logging"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

func main() {
	kind := flag.String("kind", "labdeck", "config kind: "+strings.Join(config.Kinds(), "|"))
	output := flag.String("output", "", "output path for the template, - for stdout")
	validate := flag.Bool("validate", false, "validate a labdeck config and print the resolved values")
	input := flag.String("input", "labdeck.toml", "config path for -validate")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logging.ConfigureRuntime("configgen")

	if *validate {
		if err := validateLabdeck(*input); err != nil {
			log.Fatal().Msgf("configgen validate path=%q err=%v", *input, err)
		}
		return
	}

	target := *output
	if target == "" {
		target = strings.ToLower(strings.TrimSpace(*kind)) + ".toml"
	}
	if target == "-" {
		template, err := config.Template(*kind)
		if err != nil {
			log.Fatal().Msgf("configgen template kind=%q err=%v", *kind, err)
		}
		fmt.Print(template)
		return
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Msgf("configgen write kind=%q path=%q err=%v", *kind, target, err)
	}
	log.Info().Msgf("configgen wrote kind=%q path=%q", *kind, target)
}

// validateLabdeck loads path over the defaults and prints the effective
// config, so omitted keys show their default.
func validateLabdeck(path string) error {
	cfg, err := config.LoadLabdeckConfig(path)
	if err != nil {
		return err
	}
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	log.Info().Msgf("configgen validated path=%q", path)
	_, err = os.Stdout.Write(raw)
	return err
}
