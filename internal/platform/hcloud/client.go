package hcloud

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/metrics"
	"github.com/imamik/pbctl/internal/util/retry"
)

const provider = "hcloud"

// Client implements gateway.ControlPlane using the Hetzner Cloud API.
type Client struct {
	client    *hcloud.Client
	retryOpts []retry.Option
}

var _ gateway.ControlPlane = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithRetryOptions overrides the backoff used for locked resources.
func WithRetryOptions(opts ...retry.Option) ClientOption {
	return func(c *Client) {
		c.retryOpts = opts
	}
}

// NewClient creates a new Client for the given API token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		client: hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("pbctl", "")),
		retryOpts: []retry.Option{
			retry.WithMaxRetries(5),
			retry.WithInitialDelay(time.Second),
			retry.WithMaxDelay(10 * time.Second),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// withRetry runs fn, retrying locked and rate-limited responses. Auth and
// not-found failures come back as gateway.PermanentError.
func (c *Client) withRetry(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	opts := append([]retry.Option{retry.WithRetryIf(isRetryable)}, c.retryOpts...)
	err := retry.Do(ctx, fn, opts...)
	metrics.RecordAPICall(provider, call, metrics.Result(err))
	if isPermanent(err) {
		return gateway.Permanent(err)
	}
	return err
}

func parseID(kind, id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id: %s", kind, id)
	}
	return n, nil
}

// ListDatacenters returns every Hetzner datacenter.
func (c *Client) ListDatacenters(ctx context.Context) ([]gateway.Datacenter, error) {
	var dcs []*hcloud.Datacenter
	err := c.withRetry(ctx, "ListDatacenters", func(ctx context.Context) error {
		var err error
		dcs, err = c.client.Datacenter.All(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list datacenters: %w", err)
	}

	out := make([]gateway.Datacenter, 0, len(dcs))
	for _, dc := range dcs {
		d := gateway.Datacenter{ID: strconv.FormatInt(dc.ID, 10), Name: dc.Name}
		if dc.Location != nil {
			d.Location = dc.Location.Name
		}
		out = append(out, d)
	}
	return out, nil
}

// ListServers returns the servers placed in the datacenter.
func (c *Client) ListServers(ctx context.Context, datacenterID string) ([]gateway.Server, error) {
	dcID, err := parseID("datacenter", datacenterID)
	if err != nil {
		return nil, err
	}

	var servers []*hcloud.Server
	err = c.withRetry(ctx, "ListServers", func(ctx context.Context) error {
		var err error
		servers, err = c.client.Server.All(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	var out []gateway.Server
	for _, s := range servers {
		if s.Datacenter == nil || s.Datacenter.ID != dcID {
			continue
		}
		out = append(out, *toServer(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetServer returns the current state of a server.
func (c *Client) GetServer(ctx context.Context, _, serverID string) (*gateway.Server, error) {
	server, err := c.getServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return toServer(server), nil
}

func (c *Client) getServer(ctx context.Context, serverID string) (*hcloud.Server, error) {
	id, err := parseID("server", serverID)
	if err != nil {
		return nil, err
	}

	var server *hcloud.Server
	err = c.withRetry(ctx, "GetServer", func(ctx context.Context) error {
		var err error
		server, _, err = c.client.Server.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	if server == nil {
		return nil, gateway.Permanent(fmt.Errorf("server not found: %s", serverID))
	}
	return server, nil
}

// StartServer clears the inactive label and powers the server on.
// It returns once the API has accepted the power-on action.
func (c *Client) StartServer(ctx context.Context, _, serverID string) error {
	server, err := c.getServer(ctx, serverID)
	if err != nil {
		return err
	}
	if err := c.setMachineLabel(ctx, server, ""); err != nil {
		return err
	}

	err = c.withRetry(ctx, "StartServer", func(ctx context.Context) error {
		_, _, err := c.client.Server.Poweron(ctx, server)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to power on server: %w", err)
	}
	return nil
}

// StopServer marks the server inactive and powers it off.
func (c *Client) StopServer(ctx context.Context, _, serverID string) error {
	server, err := c.getServer(ctx, serverID)
	if err != nil {
		return err
	}
	if err := c.setMachineLabel(ctx, server, inactiveValue); err != nil {
		return err
	}

	err = c.withRetry(ctx, "StopServer", func(ctx context.Context) error {
		_, _, err := c.client.Server.Poweroff(ctx, server)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to poweroff server: %w", err)
	}
	return nil
}

func (c *Client) setMachineLabel(ctx context.Context, server *hcloud.Server, value string) error {
	if server.Labels[MachineStateLabel] == value {
		return nil
	}
	labels := withLabel(server.Labels, MachineStateLabel, value)
	err := c.withRetry(ctx, "UpdateLabels", func(ctx context.Context) error {
		_, _, err := c.client.Server.Update(ctx, server, hcloud.ServerUpdateOpts{Labels: labels})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update server labels: %w", err)
	}
	server.Labels = labels
	return nil
}

// UpdateServer rescales the server to the server type matching profile.
// Hetzner only allows this while the server is off.
func (c *Client) UpdateServer(ctx context.Context, _, serverID string, profile gateway.Profile) (*gateway.Server, error) {
	server, err := c.getServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	serverType, err := c.findServerType(ctx, server, profile)
	if err != nil {
		return nil, err
	}

	err = c.withRetry(ctx, "UpdateServer", func(ctx context.Context) error {
		_, _, err := c.client.Server.ChangeType(ctx, server, hcloud.ServerChangeTypeOpts{
			ServerType:  serverType,
			UpgradeDisk: false,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to change server type: %w", err)
	}

	server.ServerType = serverType
	return toServer(server), nil
}

// findServerType returns the non-deprecated server type with the profile's
// cores and memory and the server's current architecture.
func (c *Client) findServerType(ctx context.Context, server *hcloud.Server, profile gateway.Profile) (*hcloud.ServerType, error) {
	var types []*hcloud.ServerType
	err := c.withRetry(ctx, "ListServerTypes", func(ctx context.Context) error {
		var err error
		types, err = c.client.ServerType.All(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server types: %w", err)
	}

	var arch hcloud.Architecture
	if server.ServerType != nil {
		arch = server.ServerType.Architecture
	}

	for _, st := range types {
		if st.IsDeprecated() || st.Cores != profile.Cores || memoryMB(st) != profile.RAM {
			continue
		}
		if arch == "" || st.Architecture == arch {
			return st, nil
		}
	}
	return nil, fmt.Errorf("no %s server type with %s", arch, profile)
}
