package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/kidzoona/kiosk/internal/cli"
	"github.com/kidzoona/kiosk/internal/config"
)

const quickStart = `kiosk - playground check-in and coin payment controller

Quick start:
  kiosk serve -d /dev/ttyACM0           Run the device link and HTTP API
  kiosk quote -r 100 -k 2 --kids-socks 2
  kiosk monitor                         Watch the live payment status

For help:
  kiosk --help                          All commands and flags
  kiosk config generate > .kiosk.yaml   Start a config file
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	ctx := kong.Parse(&c,
		kong.Name("kiosk"),
		kong.Description("Kiosk payment controller: drives the sock dispenser and coin acceptor over serial and records paid visits"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		// Config defaults; overridden by CLI flags if specified
		cli.Vars(cfg),
	)

	// An explicit --config replaces the discovered file
	if c.ConfigFile != "" {
		cfg, err = config.LoadFromFile(c.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	globals := cli.NewGlobalsWithConfig(&c, cfg)
	if err := ctx.Run(globals); err != nil {
		os.Exit(1)
	}
}
