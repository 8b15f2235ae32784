package config

import (
	"os"
	"strconv"
	"time"
)

// Polling and transport defaults.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollAttempts = 36 // 3 minutes at the default interval
	DefaultSSHPort         = 22
	DefaultSSHDialTimeout  = 10 * time.Second
	DefaultIONOSEndpoint   = "https://api.ionos.com/cloudapi/v6"
	DefaultIONOSDepth      = 1
	DefaultNotifySubject   = "pbctl.events"
)

// Timeouts holds tuning values that can be overridden from the environment.
type Timeouts struct {
	PollInterval    time.Duration // Interval between confirmation polls
	MaxPollAttempts int           // Attempts before a poll session gives up
	SSHDialTimeout  time.Duration // TCP connect timeout for SSH
}

// LoadTimeouts returns the configured polling settings with environment
// overrides applied. If an environment variable is not set or invalid, the
// value from polling (or the built-in default) is used.
//
// Environment Variables:
//   - PBCTL_POLL_INTERVAL (default: 5s)
//   - PBCTL_MAX_POLL_ATTEMPTS (default: 36)
//   - PBCTL_SSH_DIAL_TIMEOUT (default: 10s)
func LoadTimeouts(polling PollingConfig) *Timeouts {
	interval := polling.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := polling.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxPollAttempts
	}

	return &Timeouts{
		PollInterval:    parseDuration("PBCTL_POLL_INTERVAL", interval),
		MaxPollAttempts: parseInt("PBCTL_MAX_POLL_ATTEMPTS", attempts),
		SSHDialTimeout:  parseDuration("PBCTL_SSH_DIAL_TIMEOUT", DefaultSSHDialTimeout),
	}
}

// parseDuration parses a positive duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a positive integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return defaultVal
	}

	return i
}
