package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the engine's persistent configuration preferences.
type Config struct {
	StateDir    string `json:"state_dir,omitempty"`    // Root for sessions, stats, archives (default: <config dir>/uatflow)
	ScenarioDir string `json:"scenario_dir,omitempty"` // Where scenario YAML definitions live
	BaseURL     string `json:"base_url,omitempty"`     // Default base URL for link resolution
	Mode        string `json:"mode,omitempty"`         // production or debug
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	return &Manager{
		configDir: filepath.Join(configDir, "uatflow"),
	}, nil
}

// NewManagerAt creates a manager rooted at an explicit directory (tests,
// alternate deployments).
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk, fills defaults, and applies
// environment overrides (UATFLOW_STATE_DIR, UATFLOW_SCENARIO_DIR,
// UATFLOW_BASE_URL, UATFLOW_MODE). A missing file yields defaults.
func (m *Manager) Load() (*Config, error) {
	cfg := &Config{}

	path := m.GetConfigPath()
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config json: %w", err)
		}
	}

	if v := os.Getenv("UATFLOW_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("UATFLOW_SCENARIO_DIR"); v != "" {
		cfg.ScenarioDir = v
	}
	if v := os.Getenv("UATFLOW_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("UATFLOW_MODE"); v != "" {
		cfg.Mode = v
	}

	if cfg.StateDir == "" {
		cfg.StateDir = m.configDir
	}
	if cfg.ScenarioDir == "" {
		cfg.ScenarioDir = filepath.Join(cfg.StateDir, "scenarios")
	}
	if cfg.Mode == "" {
		cfg.Mode = "production"
	}

	return cfg, nil
}

// Save writes the configuration to disk.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := m.GetConfigPath()
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}

// Derived state-layout paths. Everything transient or durable the engine
// owns lives under StateDir.

func (c *Config) SessionsRoot() string   { return c.StateDir }
func (c *Config) ScreenshotsDir() string { return filepath.Join(c.StateDir, "screenshots") }
func (c *Config) ReportsDir() string     { return filepath.Join(c.StateDir, "reports") }
func (c *Config) ArchiveRoot() string    { return filepath.Join(c.StateDir, "archive") }
func (c *Config) LogsDir() string        { return filepath.Join(c.StateDir, "logs") }
func (c *Config) HistoryDBPath() string  { return filepath.Join(c.StateDir, "history.db") }
func (c *Config) SearchIndexPath() string {
	return filepath.Join(c.StateDir, "reports.bleve")
}
