package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"rotator/cmd/internal/app"
)

func main() {
	fs := pflag.NewFlagSet("rotator", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", os.Getenv("ROTATOR_CONFIG"), "path to a YAML config file (env vars override it)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rotator [--config path]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}

	if err := app.Run(*configPath); err != nil {
		log.Fatal(err)
	}
}
