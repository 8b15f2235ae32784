package config

import (
	"errors"
	"fmt"
	"sort"
)

// ValidProviders contains the supported live control-plane providers.
var ValidProviders = map[string]bool{
	ProviderIONOS:  true,
	ProviderHCloud: true,
}

// Validate checks global settings. Individual server entries are validated
// by NewRegistry so that one broken label never blocks the others.
func (c *Config) Validate() error {
	var errs []error

	if !ValidProviders[c.Provider] {
		errs = append(errs, fmt.Errorf("provider %q is not supported (use %q or %q)", c.Provider, ProviderIONOS, ProviderHCloud))
	}
	if c.Polling.Interval <= 0 {
		errs = append(errs, fmt.Errorf("polling.interval must be positive, got %s", c.Polling.Interval))
	}
	if c.Polling.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("polling.maxAttempts must be positive, got %d", c.Polling.MaxAttempts))
	}
	if c.SSH.Port < 0 || c.SSH.Port > 65535 {
		errs = append(errs, fmt.Errorf("ssh.port %d is out of range", c.SSH.Port))
	}

	for _, name := range sortedKeys(c.Profiles) {
		p := c.Profiles[name]
		if p.Cores <= 0 || p.RAM <= 0 {
			errs = append(errs, fmt.Errorf("profile %q: cores and ram must be positive", name))
		}
	}

	for _, name := range sortedKeys(c.Groups) {
		for _, label := range c.Groups[name].Servers {
			if _, ok := c.Servers[label]; !ok {
				errs = append(errs, fmt.Errorf("group %q references unknown server %q", name, label))
			}
		}
	}

	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
