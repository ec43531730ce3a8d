// server/config.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "90s" / "10m" style values in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the server's runtime configuration; flags override the file.
type Config struct {
	Addr           string   `yaml:"addr"`
	CatalogPath    string   `yaml:"catalog"`
	LogLevel       string   `yaml:"loglevel"`
	LogDir         string   `yaml:"logdir"`
	MaxConnections int      `yaml:"maxConnections"`
	IdleReap       Duration `yaml:"idleReap"`
	Debug          bool     `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8017",
		LogLevel:       "info",
		MaxConnections: 128,
		IdleReap:       Duration(10 * time.Minute),
	}
}

// LoadConfig reads a YAML config file over the defaults; a missing path
// just returns the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(b, &config); err != nil {
		return config, fmt.Errorf("%s: %w", path, err)
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultConfig().MaxConnections
	}
	if config.IdleReap <= 0 {
		config.IdleReap = DefaultConfig().IdleReap
	}
	return config, nil
}
