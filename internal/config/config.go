// Package config handles veil configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level veil configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Store    StoreConfig    `yaml:"store"`
	Debounce DebounceConfig `yaml:"debounce"`
	API      APIConfig      `yaml:"api"`
	Pages    []string       `yaml:"pages"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote     string        `yaml:"remote"`   // ws:// URL of an external Chrome, empty = launch
	Headless   bool          `yaml:"headless"` // default headful, the user clicks elements
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DebounceConfig controls mutation-driven re-apply batching.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// APIConfig controls the control surface.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Store.Path == "" {
		c.Store.Path = "veil.db"
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 500 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 200
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8391"
	}
}
