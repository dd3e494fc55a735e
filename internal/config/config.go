package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port  string `json:"port"`
		Debug bool   `json:"debug"`
	} `json:"server"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Reference struct {
		// RefreshURL is the base URL of the remote reference-table
		// store. Empty disables refresh; the embedded tables are used
		// for the lifetime of the process.
		RefreshURL             string `json:"refresh_url"`
		RefreshIntervalMinutes int    `json:"refresh_interval_minutes"`
	} `json:"reference"`

	Auth struct {
		SessionTTLHours int `json:"session_ttl_hours"`
	} `json:"auth"`
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// Default returns the configuration used when no config file exists. The
// port matches what the scanning client expects.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

func applyDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = "5000"
	}
	if config.Database.Path == "" {
		config.Database.Path = "eatproof.db"
	}
	if config.Reference.RefreshIntervalMinutes <= 0 {
		config.Reference.RefreshIntervalMinutes = 30
	}
	if config.Auth.SessionTTLHours <= 0 {
		config.Auth.SessionTTLHours = 24 * 7
	}
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("EATPROOF_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}
