// Package config loads the epubxmeta configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/yuanying/epubxmeta/internal/mapping"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "EPUBXMETA_CONFIG"

// DefaultFile is used when neither a flag nor EnvVar names a file.
const DefaultFile = "epubxmeta.yaml"

const defaultDatabase = "sqlite3://file:library.sqlite?cache=shared&mode=rwc"

type Config struct {
	Database     string            `yaml:"database,omitempty"`
	Contributors map[string]string `yaml:"contributors,omitempty"`
	Titles       map[string]string `yaml:"titles,omitempty"`
	LinkAuthors  bool              `yaml:"link_authors"`
	KeepExisting KeepExisting      `yaml:"keep_existing"`
	Logging      Logging           `yaml:"logging,omitempty"`
}

// KeepExisting selects whether non-empty library columns survive an import.
type KeepExisting struct {
	Manual bool `yaml:"manual"`
	Auto   bool `yaml:"auto"`
}

type Logging struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Database:     defaultDatabase,
		Contributors: map[string]string{},
		Titles:       map[string]string{},
		KeepExisting: KeepExisting{Manual: false, Auto: true},
	}
}

// Path returns flagValue if set, then the EnvVar value, then DefaultFile.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvVar); p != "" {
		return p
	}
	return DefaultFile
}

// Load reads the YAML file at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.Contributors == nil {
		cfg.Contributors = map[string]string{}
	}
	if cfg.Titles == nil {
		cfg.Titles = map[string]string{}
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Prefs returns the field mapping described by c.
func (c Config) Prefs() mapping.Prefs {
	p := mapping.Prefs{
		Contributors: make(map[string]string, len(c.Contributors)),
		Titles:       make(map[string]string, len(c.Titles)),
		LinkAuthors:  c.LinkAuthors,
		KeepManual:   c.KeepExisting.Manual,
		KeepAuto:     c.KeepExisting.Auto,
	}
	for role, column := range c.Contributors {
		p.Contributors[strings.TrimSpace(role)] = strings.TrimSpace(column)
	}
	for role, column := range c.Titles {
		p.Titles[strings.TrimSpace(role)] = strings.TrimSpace(column)
	}
	return p
}

// DatabaseURI splits Database into a driver name and a data source, the
// way "sqlite3://file:library.sqlite" reads.
func (c Config) DatabaseURI() (driver, source string, err error) {
	driver, source, ok := strings.Cut(c.Database, "://")
	if !ok || driver == "" || source == "" {
		return "", "", fmt.Errorf("invalid database URI %q", c.Database)
	}
	return driver, source, nil
}
