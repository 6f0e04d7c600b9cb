package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/slimevr-wrangler/joybridge/internal/configpaths"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ConfigCmd groups config-related subcommands, mirroring the teacher's
// ConfigCommand/ConfigInit split in internal/cmd/config.go.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Generate a configuration template"`
	Show ConfigShowCmd `cmd:"" help:"Print the default configuration"`
}

// ConfigInitCmd scaffolds a configuration file for the bridge.
type ConfigInitCmd struct {
	Format string `help:"Output format" enum:"json,yaml,toml" default:"json"`
	Output string `help:"Destination file path (defaults to the current directory)"`
	Force  bool   `help:"Overwrite if the file already exists"`
}

// Run writes a template containing Default() in the requested format, the
// same way the teacher's ConfigInit.Run reflects over its command structs.
func (c *ConfigInitCmd) Run() error {
	format := normalizeFormat(c.Format)
	if format == "" {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}

	dest := c.Output
	if dest == "" {
		dest = "joybridge." + format
	}
	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := configpaths.EnsureDir(dest); err != nil {
		return err
	}

	settings := Default()
	var data []byte
	var err error
	switch format {
	case "json":
		data, err = json.MarshalIndent(settings, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(settings)
	case "toml":
		data, err = toml.Marshal(settings)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// ConfigShowCmd prints the settings snapshot the bridge starts with before
// any config file or control-API edits are applied.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run() error {
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

func normalizeFormat(f string) string {
	switch strings.ToLower(f) {
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	default:
		return ""
	}
}
