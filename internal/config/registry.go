package config

import (
	"fmt"
	"strings"

	"github.com/imamik/pbctl/internal/gateway"
)

// hostPlaceholder in ssh.host is replaced by the server label.
const hostPlaceholder = "{label}"

// ConfigError reports a label that is missing or misconfigured.
// No gateway call is attempted for such labels.
type ConfigError struct {
	Kind   string // "server", "datacenter", "profile" or "group"
	Name   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Name, e.Reason)
}

// ServerConfig is the resolved addressing data for one server label.
type ServerConfig struct {
	Label           string
	DatacenterLabel string
	DatacenterID    string
	ServerID        string
	SSHHost         string
	SSHPort         int
	SSHUser         string
	SSHKeyPath      string
}

// SSHTarget returns the SSH address of the server.
func (s ServerConfig) SSHTarget() gateway.Target {
	return gateway.Target{
		Label:   s.Label,
		Host:    s.SSHHost,
		Port:    s.SSHPort,
		User:    s.SSHUser,
		KeyPath: s.SSHKeyPath,
	}
}

type resolution struct {
	server ServerConfig
	err    error
}

// Registry is the validated, immutable label lookup built once at startup.
type Registry struct {
	servers     map[string]resolution
	datacenters map[string]string
	profiles    map[string]gateway.Profile
	groups      map[string][]string
	labels      []string
}

// NewRegistry validates every server entry of cfg and records the outcome per
// label. It never fails as a whole; broken labels resolve to their ConfigError.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{
		servers:     make(map[string]resolution, len(cfg.Servers)),
		datacenters: make(map[string]string, len(cfg.Datacenters)),
		profiles:    make(map[string]gateway.Profile, len(cfg.Profiles)),
		groups:      make(map[string][]string, len(cfg.Groups)),
		labels:      sortedKeys(cfg.Servers),
	}

	for label, id := range cfg.Datacenters {
		r.datacenters[label] = id
	}
	for name, p := range cfg.Profiles {
		r.profiles[name] = gateway.Profile{Cores: p.Cores, RAM: p.RAM}
	}
	for name, g := range cfg.Groups {
		r.groups[name] = append([]string(nil), g.Servers...)
	}
	for _, label := range r.labels {
		server, err := resolveServer(cfg, label)
		r.servers[label] = resolution{server: server, err: err}
	}

	return r
}

// resolveServer builds the ServerConfig for label, failing closed on any gap.
func resolveServer(cfg *Config, label string) (ServerConfig, error) {
	entry := cfg.Servers[label]
	fail := func(format string, args ...any) (ServerConfig, error) {
		return ServerConfig{}, &ConfigError{Kind: "server", Name: label, Reason: fmt.Sprintf(format, args...)}
	}

	if entry.ID == "" {
		return fail("no server id configured")
	}
	if entry.Datacenter == "" {
		return fail("no datacenter configured")
	}
	dcID, ok := cfg.Datacenters[entry.Datacenter]
	if !ok || dcID == "" {
		return fail("datacenter %q is not configured", entry.Datacenter)
	}

	override := cfg.SSH.Servers[label]

	host := override.Host
	if host == "" {
		host = strings.ReplaceAll(cfg.SSH.Host, hostPlaceholder, label)
	}
	if host == "" {
		return fail("no SSH host configured (set ssh.host or ssh.servers.%s.host)", label)
	}

	port := override.Port
	if port == 0 {
		port = cfg.SSH.Port
	}
	if port == 0 {
		port = DefaultSSHPort
	}

	user := override.User
	if user == "" {
		user = cfg.SSH.User
	}
	if user == "" {
		return fail("no SSH user configured (set ssh.user or ssh.servers.%s.user)", label)
	}

	key := override.Key
	if key == "" {
		key = cfg.SSH.Key
	}

	return ServerConfig{
		Label:           label,
		DatacenterLabel: entry.Datacenter,
		DatacenterID:    dcID,
		ServerID:        entry.ID,
		SSHHost:         host,
		SSHPort:         port,
		SSHUser:         user,
		SSHKeyPath:      key,
	}, nil
}

// Resolve returns the server configuration recorded for label.
func (r *Registry) Resolve(label string) (ServerConfig, error) {
	res, ok := r.servers[label]
	if !ok {
		return ServerConfig{}, &ConfigError{Kind: "server", Name: label, Reason: "not configured"}
	}
	return res.server, res.err
}

// Datacenter returns the datacenter ID for a datacenter label.
func (r *Registry) Datacenter(label string) (string, error) {
	id, ok := r.datacenters[label]
	if !ok || id == "" {
		return "", &ConfigError{Kind: "datacenter", Name: label, Reason: "not configured"}
	}
	return id, nil
}

// Datacenters returns a copy of the datacenter label to ID mapping.
func (r *Registry) Datacenters() map[string]string {
	out := make(map[string]string, len(r.datacenters))
	for label, id := range r.datacenters {
		out[label] = id
	}
	return out
}

// Profile returns the named resource profile.
func (r *Registry) Profile(name string) (gateway.Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return gateway.Profile{}, &ConfigError{Kind: "profile", Name: name, Reason: "does not exist"}
	}
	return p, nil
}

// Group returns the server labels of the named group.
func (r *Registry) Group(name string) ([]string, error) {
	labels, ok := r.groups[name]
	if !ok {
		return nil, &ConfigError{Kind: "group", Name: name, Reason: "not configured"}
	}
	if len(labels) == 0 {
		return nil, &ConfigError{Kind: "group", Name: name, Reason: "has no servers"}
	}
	return append([]string(nil), labels...), nil
}

// Labels returns every configured server label in sorted order, including
// labels that fail to resolve.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.labels...)
}

// Problems returns the ConfigError of every label that failed validation.
func (r *Registry) Problems() []error {
	var errs []error
	for _, label := range r.labels {
		if err := r.servers[label].err; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
