package config

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	ServerEndpointAddr string
	SessionPath        string
	RequestTimeout     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.SessionPath = defaultSessionPath()
	c.RequestTimeout = 10 * time.Second
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gatekeeper-session.db"
	}
	return filepath.Join(dir, "gatekeeper", "session.db")
}

// Load applies defaults and then overlays path, if set.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
