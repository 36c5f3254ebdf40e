package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the host-level settings the plugin lifecycle tooling needs
type Config struct {
	// PluginsDir is where installed plugin packages live
	PluginsDir string `json:"pluginsDir,omitempty"`

	// StateFile is the lifecycle state document for this workspace
	StateFile string `json:"stateFile,omitempty"`

	// Debug enables verbose logging
	Debug bool `json:"debug,omitempty"`

	// SavedAt records when the file was last written
	SavedAt time.Time `json:"savedAt"`
}

// DefaultConfigPath returns the per-user config file location
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".lattice", "config.json"), nil
}

// Default returns the configuration used when no config file exists
func Default() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return &Config{
		PluginsDir: filepath.Join(homeDir, ".lattice", "plugins"),
		StateFile:  filepath.Join(homeDir, ".lattice", "plugin-state.json"),
	}, nil
}

// Load reads configuration from the given path, falling back to defaults
// when the file does not exist. Fields missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to the given path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
