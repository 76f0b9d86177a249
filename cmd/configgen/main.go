package main

import (
	"flag"
	"log"

	"github.com/danmuck/onegate/internal/config"
)

const defaultConfigPath = "cmd/onegated/config.toml"

func main() {
	kind := flag.String("kind", "onegate", "config kind: onegate|onegate-prod")
	output := flag.String("output", defaultConfigPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultConfigPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if _, err := config.LoadOnegateConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated onegate config at %s", *input)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
