// Package config holds the persistent settings of strcluster.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"strcluster/internal/cluster"
	"strcluster/internal/engine"
)

// Config is read from YAML and overridden by command line flags.
type Config struct {
	Debug   bool   `yaml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	DataDir string `yaml:"data_dir" json:"dataDir" jsonschema:"title=Data Directory,description=Directory for logs and profiles"`

	// filter toggles, the initial state of every session
	HideNonMatching bool `yaml:"hide_non_matching" json:"hideNonMatching" jsonschema:"title=Hide no match,default=true"`
	CollapseNoFunc  bool `yaml:"collapse_no_func" json:"collapseNoFunc" jsonschema:"title=Collapse 0_sub"`
	UseRegex        bool `yaml:"regex" json:"regex" jsonschema:"title=Regex"`
	LiveSearch      bool `yaml:"live_search" json:"liveSearch" jsonschema:"title=Live search,description=Filter on every keystroke instead of on submit,default=true"`

	// engine
	MinStringLength int  `yaml:"min_string_length" json:"minStringLength" validate:"gte=1,lte=4096" jsonschema:"title=Minimum string length,minimum=1,maximum=4096,default=4"`
	Unterminated    bool `yaml:"unterminated" json:"unterminated" jsonschema:"title=Unterminated strings,description=Also accept strings not followed by NUL"`
	Demangle        bool `yaml:"demangle" json:"demangle" jsonschema:"title=Demangle,description=Show demangled C++ function names,default=true"`

	// panel
	FunctionColumnPercent int    `yaml:"function_column_percent" json:"functionColumnPercent" validate:"gte=5,lte=80" jsonschema:"title=Function column width,description=Maximum width of the function column in percent of the panel,minimum=5,maximum=80,default=20"`
	Hotkey                string `yaml:"hotkey" json:"hotkey" validate:"required" jsonschema:"title=Hotkey,description=Key opening the string panel,default=alt+s"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		HideNonMatching:       true,
		LiveSearch:            true,
		MinStringLength:       4,
		Demangle:              true,
		FunctionColumnPercent: 20,
		Hotkey:                "alt+s",
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Options returns the initial filter toggles.
func (c Config) Options() cluster.Options {
	return cluster.Options{
		UseRegex:        c.UseRegex,
		HideNonMatching: c.HideNonMatching,
		CollapseNoFunc:  c.CollapseNoFunc,
		LiveSearch:      c.LiveSearch,
	}
}

// EngineOptions returns the settings of the ELF engine.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		MinStringLength: c.MinStringLength,
		Unterminated:    c.Unterminated,
		Demangle:        c.Demangle,
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/strcluster/config.yaml, or the
// platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user config directory: %w", err)
	}
	return filepath.Join(dir, "strcluster", "config.yaml"), nil
}

// Load reads path on top of the defaults. A missing file is not an error
// when path is the default location, so an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
