// Package cli defines the kiosk command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kidzoona/kiosk/internal/config"
)

// Version information (set at build time)
var (
	Version = "dev"
	Commit  = "none"
)

// CLI is the root command
type CLI struct {
	Format     string `short:"f" default:"${config_format}" enum:"ndjson,text" help:"Output format (ndjson or text)"`
	Quiet      bool   `short:"q" help:"Suppress non-essential output"`
	Verbose    bool   `short:"v" help:"Debug logging"`
	ConfigFile string `name:"config" short:"c" type:"path" help:"Config file (default: search .kiosk.yaml, ~/.kiosk.yaml, /etc/kiosk/kiosk.yaml)"`

	Serve   ServeCmd   `cmd:"" help:"Run the kiosk server: device link, payment sessions and HTTP API"`
	Quote   QuoteCmd   `cmd:"" help:"Price a visit and show the device command without charging"`
	Charge  ChargeCmd  `cmd:"" help:"Run one charge against the device from the terminal"`
	Tickets TicketsCmd `cmd:"" help:"List and manage stored registrations"`
	Monitor MonitorCmd `cmd:"" help:"Watch the payment status of a running server"`
	Config  ConfigCmd  `cmd:"" help:"Show or generate configuration"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Vars feeds configured defaults into flag definitions before parsing
func Vars(cfg *config.Config) kong.Vars {
	if cfg == nil {
		cfg = config.Default()
	}
	return kong.Vars{
		"config_format": cfg.Format,
	}
}

// Globals holds global flags and the resolved configuration
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
}

// NewGlobalsWithConfig creates Globals from parsed flags and loaded config
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Globals{
		Format:  c.Format,
		Quiet:   c.Quiet,
		Verbose: c.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
}

// Debug prints to stderr when --verbose is set
func (g *Globals) Debug(format string, args ...any) {
	if g.Verbose {
		fmt.Fprintf(g.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// VersionCmd shows version information
type VersionCmd struct{}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return emitJSON(globals.Stdout, map[string]any{
			"type":          "version",
			"schemaVersion": outputSchemaVersion,
			"version":       Version,
			"commit":        Commit,
		})
	}
	fmt.Fprintf(globals.Stdout, "kiosk version %s (%s)\n", Version, Commit)
	return nil
}
