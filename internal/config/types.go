package config

import "time"

// Supported control-plane providers.
const (
	ProviderIONOS  = "ionos"
	ProviderHCloud = "hcloud"
)

// Config is the on-disk configuration.
type Config struct {
	// Provider selects the live control-plane gateway: "ionos" or "hcloud".
	Provider string `yaml:"provider" toml:"provider"`

	IONOS  IONOSConfig  `yaml:"ionos" toml:"ionos"`
	HCloud HCloudConfig `yaml:"hcloud" toml:"hcloud"`

	// Datacenters maps a datacenter label to the provider's datacenter ID.
	Datacenters map[string]string `yaml:"datacenters" toml:"datacenters"`

	// Servers maps a server label to its ID and datacenter label.
	Servers map[string]ServerEntry `yaml:"servers" toml:"servers"`

	// Groups name sets of server labels for bulk operations.
	Groups map[string]GroupEntry `yaml:"groups" toml:"groups"`

	// Profiles are named resource specifications for update operations.
	Profiles map[string]ProfileEntry `yaml:"profiles" toml:"profiles"`

	SSH     SSHConfig     `yaml:"ssh" toml:"ssh"`
	Polling PollingConfig `yaml:"polling" toml:"polling"`
	Notify  NotifyConfig  `yaml:"notify" toml:"notify"`
}

// IONOSConfig holds IONOS Cloud (formerly ProfitBricks) API settings.
// Username and password fall back to IONOS_USERNAME and IONOS_PASSWORD.
type IONOSConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Depth    int    `yaml:"depth" toml:"depth"`
}

// HCloudConfig holds Hetzner Cloud API settings. Token falls back to HCLOUD_TOKEN.
type HCloudConfig struct {
	Token string `yaml:"token" toml:"token"`
}

// ServerEntry is one configured server.
type ServerEntry struct {
	ID         string `yaml:"id" toml:"id"`
	Datacenter string `yaml:"datacenter" toml:"datacenter"`
}

// GroupEntry is a named set of server labels.
type GroupEntry struct {
	Servers []string `yaml:"servers" toml:"servers"`
}

// ProfileEntry is a named resource specification. RAM is in MB.
type ProfileEntry struct {
	Cores int `yaml:"cores" toml:"cores"`
	RAM   int `yaml:"ram" toml:"ram"`
}

// SSHConfig holds process-wide SSH defaults and per-label overrides.
type SSHConfig struct {
	// Host is the default SSH host. The placeholder {label} is replaced by
	// the server label, e.g. "{label}.example.net".
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	User string `yaml:"user" toml:"user"`
	Key  string `yaml:"key" toml:"key"`

	Servers map[string]SSHOverride `yaml:"servers" toml:"servers"`
}

// SSHOverride replaces SSH defaults for a single server label.
type SSHOverride struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	User string `yaml:"user" toml:"user"`
	Key  string `yaml:"key" toml:"key"`
}

// PollingConfig tunes the confirmation pollers.
type PollingConfig struct {
	Interval    time.Duration `yaml:"interval" toml:"interval"`
	MaxAttempts int           `yaml:"maxAttempts" toml:"maxAttempts"`
}

// NotifyConfig configures publication of terminal outcomes to NATS.
// Publication is disabled when NATSURL is empty.
type NotifyConfig struct {
	NATSURL string `yaml:"natsURL" toml:"natsURL"`
	Subject string `yaml:"subject" toml:"subject"`
}
