package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is used when no --config flag is given.
const DefaultConfigFile = "pbctl.yaml"

// LoadFile reads and parses the configuration from a YAML or TOML file.
// The format is chosen by extension: .toml is TOML, anything else is YAML.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
		}
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills in unset global settings.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderIONOS
	}
	if c.IONOS.Endpoint == "" {
		c.IONOS.Endpoint = DefaultIONOSEndpoint
	}
	if c.IONOS.Depth == 0 {
		c.IONOS.Depth = DefaultIONOSDepth
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
	if c.Polling.Interval == 0 {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.MaxAttempts == 0 {
		c.Polling.MaxAttempts = DefaultMaxPollAttempts
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = DefaultNotifySubject
	}
}

// ApplyEnv fills credentials from the environment and applies polling overrides.
func (c *Config) ApplyEnv() {
	if c.IONOS.Username == "" {
		c.IONOS.Username = os.Getenv("IONOS_USERNAME")
	}
	if c.IONOS.Password == "" {
		c.IONOS.Password = os.Getenv("IONOS_PASSWORD")
	}
	if c.HCloud.Token == "" {
		c.HCloud.Token = os.Getenv("HCLOUD_TOKEN")
	}

	t := LoadTimeouts(c.Polling)
	c.Polling.Interval = t.PollInterval
	c.Polling.MaxAttempts = t.MaxPollAttempts
}
