package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultRetentionLines bounds the output history kept per command run.
	DefaultRetentionLines = 5000

	// DefaultMirrorAddr is where the mirror server listens when enabled
	// without an explicit address.
	DefaultMirrorAddr = "127.0.0.1:8420"
)

// Config is the declarative menu definition loaded from YAML.
type Config struct {
	MenuTitle      string    `yaml:"menu_title"`
	Icon           string    `yaml:"icon"`
	Logo           string    `yaml:"logo"`
	Shell          string    `yaml:"shell"`
	RetentionLines int       `yaml:"retention_lines"`
	Mirror         Mirror    `yaml:"mirror"`
	MenuItems      []Section `yaml:"menu_items"`
}

// Mirror configures the detached WebSocket mirror view.
type Mirror struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Section is one top-level menu button grouping related commands.
type Section struct {
	Name  string `yaml:"name"`
	Items []Item `yaml:"items"`
}

// Item is one command button. Command is an opaque shell command string;
// the application does not parse, validate, or sandbox it.
type Item struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
	Help    string `yaml:"help"`
}

// Load reads and validates a config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MenuTitle == "" {
		c.MenuTitle = "Menu Application"
	}
	if c.Shell == "" {
		if shell := os.Getenv("SHELL"); shell != "" {
			c.Shell = shell
		} else {
			c.Shell = "/bin/sh"
		}
	}
	if c.RetentionLines <= 0 {
		c.RetentionLines = DefaultRetentionLines
	}
	if c.Mirror.Enabled && c.Mirror.Listen == "" {
		c.Mirror.Listen = DefaultMirrorAddr
	}
}

// Validate checks structural requirements: every section needs a name,
// every item needs a name and a command.
func (c *Config) Validate() error {
	for i, section := range c.MenuItems {
		if section.Name == "" {
			return fmt.Errorf("menu_items[%d]: missing name", i)
		}
		if len(section.Items) == 0 {
			return fmt.Errorf("menu_items[%d] (%s): no items", i, section.Name)
		}
		for j, item := range section.Items {
			if item.Name == "" {
				return fmt.Errorf("menu_items[%d] (%s): items[%d]: missing name", i, section.Name, j)
			}
			if item.Command == "" {
				return fmt.Errorf("menu_items[%d] (%s): items[%d] (%s): missing command", i, section.Name, j, item.Name)
			}
		}
	}
	return nil
}
