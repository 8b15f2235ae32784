package ionos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/metrics"
	"github.com/imamik/pbctl/internal/util/retry"
)

const provider = "ionos"

// Client is a minimal IONOS Cloud API client for server power management.
type Client struct {
	endpoint   string
	username   string
	password   string
	depth      int
	httpClient *http.Client
	retryOpts  []retry.Option
}

var _ gateway.ControlPlane = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithEndpoint replaces the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithRetryOptions overrides the backoff used for retryable responses.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Client) {
		c.retryOpts = opts
	}
}

// NewClient creates a client from the ionos configuration section.
func NewClient(cfg config.IONOSConfig, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		depth:      cfg.Depth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryOpts: []retry.Option{
			retry.WithMaxRetries(4),
			retry.WithInitialDelay(time.Second),
			retry.WithMaxDelay(10 * time.Second),
		},
	}
	if c.endpoint == "" {
		c.endpoint = config.DefaultIONOSEndpoint
	}
	if c.depth <= 0 {
		c.depth = config.DefaultIONOSDepth
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Messages   []apiMessage
}

type apiMessage struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("API error (status %d)", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		msgs = append(msgs, m.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, strings.Join(msgs, "; "))
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func isRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// isPermanent reports rejected credentials and unknown resources.
func isPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

type errorBody struct {
	HTTPStatus int          `json:"httpStatus"`
	Messages   []apiMessage `json:"messages"`
}

type datacenterResource struct {
	ID         string `json:"id"`
	Properties struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	} `json:"properties"`
}

type serverResource struct {
	ID       string `json:"id"`
	Metadata struct {
		State string `json:"state"`
	} `json:"metadata"`
	Properties struct {
		Name    string `json:"name"`
		Cores   int    `json:"cores"`
		RAM     int    `json:"ram"`
		VMState string `json:"vmState"`
	} `json:"properties"`
}

type collection[T any] struct {
	Items []T `json:"items"`
}

func (r *serverResource) toServer(datacenterID string) *gateway.Server {
	return &gateway.Server{
		ID:           r.ID,
		Name:         r.Properties.Name,
		DatacenterID: datacenterID,
		State:        gateway.MachineState(r.Metadata.State),
		VMState:      gateway.ServerState(r.Properties.VMState),
		Cores:        r.Properties.Cores,
		RAM:          r.Properties.RAM,
	}
}

// ListDatacenters returns every virtual data center visible to the account.
func (c *Client) ListDatacenters(ctx context.Context) ([]gateway.Datacenter, error) {
	var resp collection[datacenterResource]
	if err := c.call(ctx, "ListDatacenters", http.MethodGet, "/datacenters", nil, "datacenters", &resp); err != nil {
		return nil, fmt.Errorf("list datacenters: %w", err)
	}

	out := make([]gateway.Datacenter, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, gateway.Datacenter{
			ID:       item.ID,
			Name:     item.Properties.Name,
			Location: item.Properties.Location,
		})
	}
	return out, nil
}

// ListServers returns the servers of a datacenter.
func (c *Client) ListServers(ctx context.Context, datacenterID string) ([]gateway.Server, error) {
	var resp collection[serverResource]
	path := fmt.Sprintf("/datacenters/%s/servers", datacenterID)
	if err := c.call(ctx, "ListServers", http.MethodGet, path, nil, "servers", &resp); err != nil {
		return nil, fmt.Errorf("list servers in %s: %w", datacenterID, err)
	}

	out := make([]gateway.Server, 0, len(resp.Items))
	for i := range resp.Items {
		out = append(out, *resp.Items[i].toServer(datacenterID))
	}
	return out, nil
}

// GetServer returns the current state of a server.
func (c *Client) GetServer(ctx context.Context, datacenterID, serverID string) (*gateway.Server, error) {
	var resp serverResource
	path := fmt.Sprintf("/datacenters/%s/servers/%s", datacenterID, serverID)
	if err := c.call(ctx, "GetServer", http.MethodGet, path, nil, "server", &resp); err != nil {
		return nil, fmt.Errorf("get server %s: %w", serverID, err)
	}
	return resp.toServer(datacenterID), nil
}

// StartServer powers a server on. The API accepts the request asynchronously.
func (c *Client) StartServer(ctx context.Context, datacenterID, serverID string) error {
	path := fmt.Sprintf("/datacenters/%s/servers/%s/start", datacenterID, serverID)
	if err := c.call(ctx, "StartServer", http.MethodPost, path, nil, "", nil); err != nil {
		return fmt.Errorf("start server %s: %w", serverID, err)
	}
	return nil
}

// StopServer powers a server off and deallocates it (INACTIVE).
func (c *Client) StopServer(ctx context.Context, datacenterID, serverID string) error {
	path := fmt.Sprintf("/datacenters/%s/servers/%s/stop", datacenterID, serverID)
	if err := c.call(ctx, "StopServer", http.MethodPost, path, nil, "", nil); err != nil {
		return fmt.Errorf("stop server %s: %w", serverID, err)
	}
	return nil
}

// UpdateServer sets cores and RAM of a server.
func (c *Client) UpdateServer(ctx context.Context, datacenterID, serverID string, profile gateway.Profile) (*gateway.Server, error) {
	body, err := json.Marshal(map[string]int{
		"cores": profile.Cores,
		"ram":   profile.RAM,
	})
	if err != nil {
		return nil, err
	}

	var resp serverResource
	path := fmt.Sprintf("/datacenters/%s/servers/%s", datacenterID, serverID)
	if err := c.call(ctx, "UpdateServer", http.MethodPatch, path, body, "server", &resp); err != nil {
		return nil, fmt.Errorf("update server %s: %w", serverID, err)
	}
	return resp.toServer(datacenterID), nil
}

// call performs one API call. Only 429 and 503 responses are retried;
// 401, 403 and 404 are returned as gateway.PermanentError.
func (c *Client) call(ctx context.Context, name, method, path string, body []byte, resource string, out any) error {
	opts := append([]retry.Option{retry.WithRetryIf(isRetryable)}, c.retryOpts...)
	err := retry.Do(ctx, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		return c.do(req, resource, out)
	}, opts...)
	metrics.RecordAPICall(provider, name, metrics.Result(err))
	if isPermanent(err) {
		return gateway.Permanent(err)
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, r)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		q := req.URL.Query()
		q.Set("depth", strconv.Itoa(c.depth))
		req.URL.RawQuery = q.Encode()
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, resource string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Messages = eb.Messages
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &gateway.ParseError{Resource: resource, Err: err}
	}
	return nil
}
