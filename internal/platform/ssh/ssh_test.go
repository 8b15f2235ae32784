package ssh

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/util/keygen"
)

type commandHandler func(command string) (stdout string, status uint32)

// testServer is an in-process SSH server that accepts one client key and
// answers exec requests through handler.
type testServer struct {
	addr    string
	hostKey ssh.PublicKey
	keyPath string

	mu       sync.Mutex
	commands []string
}

func newTestServer(t *testing.T, handler commandHandler) *testServer {
	t.Helper()

	hostPair, err := keygen.GenerateEd25519KeyPair("host")
	require.NoError(t, err)
	hostSigner, err := hostPair.Signer()
	require.NoError(t, err)

	clientPair, err := keygen.GenerateEd25519KeyPair("client")
	require.NoError(t, err)
	clientKey, _, _, _, err := ssh.ParseAuthorizedKey(clientPair.PublicKey)
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, clientPair.WriteFiles(keyPath))

	serverConfig := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientKey.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	serverConfig.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ts := &testServer{
		addr:    ln.Addr().String(),
		hostKey: hostSigner.PublicKey(),
		keyPath: keyPath,
	}

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go ts.serveConn(nc, serverConfig, handler)
		}
	}()

	return ts
}

func (ts *testServer) serveConn(nc net.Conn, cfg *ssh.ServerConfig, handler commandHandler) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go ts.serveSession(channel, requests, handler)
	}
}

func (ts *testServer) serveSession(channel ssh.Channel, requests <-chan *ssh.Request, handler commandHandler) {
	defer func() { _ = channel.Close() }()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		ts.mu.Lock()
		ts.commands = append(ts.commands, payload.Command)
		ts.mu.Unlock()

		stdout, status := handler(payload.Command)
		_, _ = channel.Write([]byte(stdout))
		_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}

func (ts *testServer) target(t *testing.T) gateway.Target {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ts.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return gateway.Target{Label: "one", Host: host, Port: port, User: "root", KeyPath: ts.keyPath}
}

func (ts *testServer) Commands() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.commands...)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	assert.Equal(t, config.DefaultSSHDialTimeout, c.config.DialTimeout)
	assert.Equal(t, defaultRetryDelay, c.config.RetryDelay)
	assert.NotNil(t, c.config.HostKeyCallback)
	assert.NotNil(t, c.config.Logger)
}

func TestExec_ZeroExit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(command string) (string, uint32) {
		return "active\n", 0
	})
	c := NewClient(Config{HostKeyCallback: ssh.FixedHostKey(ts.hostKey)})

	res, err := c.Exec(context.Background(), ts.target(t), "systemctl is-active nginx")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "active\n", res.Stdout)
	assert.Equal(t, []string{"systemctl is-active nginx"}, ts.Commands())
}

func TestExec_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(string) (string, uint32) {
		return "inactive\n", 3
	})
	c := NewClient(Config{})

	res, err := c.Exec(context.Background(), ts.target(t), "systemctl is-active nginx")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestExec_IndependentConnections(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(command string) (string, uint32) {
		return command, 0
	})
	c := NewClient(Config{})
	target := ts.target(t)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := "echo " + strconv.Itoa(i)
			res, err := c.Exec(context.Background(), target, cmd)
			assert.NoError(t, err)
			if res != nil {
				assert.Equal(t, cmd, res.Stdout)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ts.Commands(), 5)
}

func TestExec_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := newTestServer(t, func(string) (string, uint32) {
		<-release
		return "", 0
	})
	t.Cleanup(func() { close(release) })

	c := NewClient(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := c.Exec(ctx, ts.target(t), "sleep 60")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExec_Unreachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	pair, err := keygen.GenerateEd25519KeyPair("")
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "id")
	require.NoError(t, pair.WriteFiles(keyPath))

	c := NewClient(Config{DialTimeout: time.Second})
	res, err := c.Exec(context.Background(), gateway.Target{
		Host: "127.0.0.1", Port: addr.Port, User: "root", KeyPath: keyPath,
	}, "true")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "ssh: dial")
}

func TestExec_WrongKeyIsNotRetried(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(string) (string, uint32) { return "", 0 })

	other, err := keygen.GenerateEd25519KeyPair("")
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "other")
	require.NoError(t, other.WriteFiles(keyPath))

	target := ts.target(t)
	target.KeyPath = keyPath

	c := NewClient(Config{DialRetries: 3, RetryDelay: time.Millisecond})
	_, err = c.Exec(context.Background(), target, "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake")
	assert.Empty(t, ts.Commands())
}

func TestExec_HostKeyMismatch(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(string) (string, uint32) { return "", 0 })

	other, err := keygen.GenerateEd25519KeyPair("")
	require.NoError(t, err)
	otherSigner, err := other.Signer()
	require.NoError(t, err)

	c := NewClient(Config{HostKeyCallback: ssh.FixedHostKey(otherSigner.PublicKey())})
	_, err = c.Exec(context.Background(), ts.target(t), "true")
	require.Error(t, err)
	assert.Empty(t, ts.Commands())
}

func TestSigner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pair, err := keygen.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	path := filepath.Join(dir, "id_rsa")
	require.NoError(t, pair.WriteFiles(path))

	c := NewClient(Config{})

	s1, err := c.signer(path)
	require.NoError(t, err)
	s2, err := c.signer(path)
	require.NoError(t, err)
	assert.True(t, s1 == s2, "signer should be cached per path")

	_, err = c.signer(filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "read private key")
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/ops")

	got, err := expandHome("~/.ssh/id_rsa")
	require.NoError(t, err)
	assert.Equal(t, "/home/ops/.ssh/id_rsa", got)

	got, err = expandHome("/etc/keys/id")
	require.NoError(t, err)
	assert.Equal(t, "/etc/keys/id", got)
}
