package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/danmuck/onegate/internal/gate"
	"github.com/danmuck/onegate/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/onegated/config.toml", "path to onegated config")
	link := flag.String("link", "", "deep link the process was launched with")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := resolveServiceConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onegated: %v\n", err)
		os.Exit(1)
	}
	cfg.LaunchLink = *link

	svc := gate.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "onegated: %v\n", err)
		os.Exit(1)
	}
}

// resolveServiceConfig falls back to defaults when the config file is absent.
func resolveServiceConfig(path string) (gate.ServiceConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("onegated config not found, using defaults")
		return gate.DefaultServiceConfig(), nil
	}
	return loadServiceConfig(path)
}
