// Package config loads provisioning configuration: compiled-in defaults,
// optionally overridden by an envforge.yaml file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the optional config file looked up in the working
// directory.
const DefaultFileName = "envforge.yaml"

// Config drives the provisioning workflow.
type Config struct {
	// Interpreter is the required interpreter version, e.g. "3.11".
	Interpreter string `yaml:"interpreter"`

	// EnvDir is the isolated environment directory, relative to the
	// working directory.
	EnvDir string `yaml:"env_dir"`

	// Manifest is the dependency manifest file name, relative to the
	// working directory.
	Manifest string `yaml:"manifest"`

	// TracePath, when set, is where the canonical provisioning trace is
	// written. Relative paths resolve under the working directory.
	TracePath string `yaml:"trace"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Interpreter: "3.11",
		EnvDir:      ".venv",
		Manifest:    "requirements.txt",
	}
}

// Load reads the config file at path, layered over Defaults. A missing file
// is not an error: the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Interpreter) == "" {
		return fmt.Errorf("interpreter version required")
	}
	if strings.TrimSpace(c.EnvDir) == "" {
		return fmt.Errorf("environment dir required")
	}
	if !filepath.IsLocal(c.EnvDir) {
		return fmt.Errorf("environment dir must stay inside the working directory (got %q)", c.EnvDir)
	}
	if strings.TrimSpace(c.Manifest) == "" {
		return fmt.Errorf("manifest name required")
	}
	return nil
}
