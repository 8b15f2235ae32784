package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/util/retry"
)

const defaultRetryDelay = 500 * time.Millisecond

// defaultKeyFiles are tried in order when a target has no key configured.
var defaultKeyFiles = []string{"~/.ssh/id_ed25519", "~/.ssh/id_rsa"}

// Config holds SSH client configuration.
type Config struct {
	// DialTimeout bounds the TCP connect and the SSH handshake.
	// If zero, config.DefaultSSHDialTimeout is used.
	DialTimeout time.Duration

	// DialRetries is the number of extra connection attempts after a failed
	// TCP connect. Authentication failures are never retried.
	DialRetries int

	// RetryDelay is the initial delay between connection attempts.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback

	Logger *zap.Logger
}

// Client executes commands on remote servers. It is safe for concurrent use.
type Client struct {
	config Config

	mu      sync.Mutex
	signers map[string]ssh.Signer
}

var _ gateway.SSH = (*Client)(nil)

// NewClient creates an SSH client with defaults applied to cfg.
func NewClient(cfg Config) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = config.DefaultSSHDialTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HostKeyCallback == nil {
		// #nosec G106
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		config:  cfg,
		signers: make(map[string]ssh.Signer),
	}
}

// Exec runs command on target and waits for its exit status.
//
// A command that exits non-zero is reported through ExecResult.ExitCode with
// a nil error. Closing ctx aborts the connection.
func (c *Client) Exec(ctx context.Context, target gateway.Target, command string) (*gateway.ExecResult, error) {
	signer, err := c.signer(target.KeyPath)
	if err != nil {
		return nil, err
	}

	client, err := c.connect(ctx, target, signer)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ssh: open session on %s: %w", target.Address(), err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.config.Logger.Debug("running command",
		zap.String("label", target.Label),
		zap.String("address", target.Address()),
		zap.String("command", command),
	)

	runErr := session.Run(command)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	result := &gateway.ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *ssh.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		return nil, fmt.Errorf("ssh: run command on %s: %w", target.Address(), runErr)
	}

	return result, nil
}

// connect dials target and completes the SSH handshake, retrying failed
// TCP connects up to DialRetries times.
func (c *Client) connect(ctx context.Context, target gateway.Target, signer ssh.Signer) (*ssh.Client, error) {
	clientConfig := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}
	addr := target.Address()

	var client *ssh.Client
	err := retry.Do(ctx, func(ctx context.Context) error {
		dialer := net.Dialer{Timeout: c.config.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("ssh: dial %s: %w", addr, err)
		}

		// Bound the handshake; the deadline is cleared once the session is up.
		_ = conn.SetDeadline(time.Now().Add(c.config.DialTimeout))
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
		stop()
		if err != nil {
			_ = conn.Close()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return retry.Fatal(ctxErr)
			}
			return retry.Fatal(fmt.Errorf("ssh: handshake with %s: %w", addr, err))
		}
		_ = conn.SetDeadline(time.Time{})

		client = ssh.NewClient(sshConn, chans, reqs)
		return nil
	},
		retry.WithMaxRetries(c.config.DialRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			c.config.Logger.Debug("ssh connect failed, retrying",
				zap.String("address", addr),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		var fatal *retry.FatalError
		if errors.As(err, &fatal) {
			return nil, fatal.Err
		}
		return nil, err
	}
	return client, nil
}

// signer returns the parsed private key at keyPath, loading it on first use.
func (c *Client) signer(keyPath string) (ssh.Signer, error) {
	candidates := []string{keyPath}
	if keyPath == "" {
		candidates = defaultKeyFiles
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for _, candidate := range candidates {
		path, err := expandHome(candidate)
		if err != nil {
			return nil, err
		}
		if s, ok := c.signers[path]; ok {
			return s, nil
		}

		// #nosec G304
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = fmt.Errorf("ssh: read private key: %w", err)
			continue
		}
		s, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("ssh: parse private key %s: %w", path, err)
		}
		c.signers[path] = s
		return s, nil
	}
	return nil, lastErr
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ssh: resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
