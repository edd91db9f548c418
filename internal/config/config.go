package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultAPIBaseURL is the production REST endpoint.
	DefaultAPIBaseURL = "https://api.swappio.app/api"
	// DefaultSocketURL is the production realtime endpoint.
	DefaultSocketURL = "wss://rt.swappio.app/socket"
	// DefaultWebBaseURL is the public web frontend, used for share links.
	DefaultWebBaseURL = "https://swappio.app"
)

// Config represents the global ~/.swappio/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	APIBaseURL     string `toml:"api_base_url"`
	SocketURL      string `toml:"socket_url"`
	WebBaseURL     string `toml:"web_base_url"`
}

// Load reads config from the given path. Missing or unset endpoint fields
// fall back to the production defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Default returns a config with all defaults applied, used when no
// config file exists yet.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.SocketURL == "" {
		c.SocketURL = DefaultSocketURL
	}
	if c.WebBaseURL == "" {
		c.WebBaseURL = DefaultWebBaseURL
	}
}
