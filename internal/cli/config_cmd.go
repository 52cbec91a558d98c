package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kidzoona/kiosk/internal/config"
)

// ConfigCmd groups configuration commands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show which config file is in use"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a config file with all defaults"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// Run executes the show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	data, err := yaml.Marshal(globals.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if globals.Format == "ndjson" {
		// Round-trip through YAML so durations print as "3m0s" rather than nanoseconds
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		doc["type"] = "config"
		doc["schemaVersion"] = outputSchemaVersion
		doc["file"] = config.ConfigFile()
		return emitJSON(globals.Stdout, doc)
	}

	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	if path := config.ConfigFile(); path != "" {
		fmt.Fprintf(globals.Stdout, "# from %s\n", path)
	} else {
		fmt.Fprintln(globals.Stdout, "# defaults and environment only")
	}
	_, err = globals.Stdout.Write(data)
	return err
}

// ConfigPathCmd prints the config file path
type ConfigPathCmd struct{}

// Run executes the path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()
	if globals.Format == "ndjson" {
		return emitJSON(globals.Stdout, map[string]any{
			"type":          "config_path",
			"schemaVersion": outputSchemaVersion,
			"path":          path,
		})
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found; using defaults and KIOSK_* environment variables")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}

// ConfigGenerateCmd writes a default config file
type ConfigGenerateCmd struct {
	Output string `short:"o" type:"path" help:"Write to file instead of stdout"`
}

const configHeader = `# kiosk configuration file
# Place at ./.kiosk.yaml, ~/.kiosk.yaml or /etc/kiosk/kiosk.yaml.
# Every key can be overridden with KIOSK_<SECTION>_<KEY>, e.g. KIOSK_SERIAL_PATH.
`

// Run executes the generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	content := append([]byte(configHeader), data...)

	if c.Output == "" {
		_, err := globals.Stdout.Write(content)
		return err
	}
	if err := os.WriteFile(c.Output, content, 0o644); err != nil {
		return outputErrorCommon(globals, "WRITE_FAILED", err.Error())
	}
	if !globals.Quiet {
		fmt.Fprintf(globals.Stderr, "Wrote %s\n", c.Output)
	}
	return nil
}
