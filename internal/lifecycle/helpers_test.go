package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/notify"
	"github.com/imamik/pbctl/internal/simulator"
)

const (
	serverLabelOne   = "serverLabelOne"
	serverLabelTwo   = "serverLabelTwo"
	serverLabelThree = "serverLabelThree"
)

func testRegistry() *config.Registry {
	return config.NewRegistry(&config.Config{
		Provider: config.ProviderIONOS,
		Datacenters: map[string]string{
			"datacenterLabel1": "dc-1",
			"datacenterLabel2": "dc-2",
		},
		Servers: map[string]config.ServerEntry{
			serverLabelOne:   {ID: "srv-1", Datacenter: "datacenterLabel1"},
			serverLabelTwo:   {ID: "srv-2", Datacenter: "datacenterLabel1"},
			serverLabelThree: {ID: "srv-3", Datacenter: "datacenterLabel2"},

			// No datacenter: resolves to a ConfigError.
			"serverLabelBroken": {ID: "srv-4"},
		},
		Groups: map[string]config.GroupEntry{
			"groupLabelAll": {Servers: []string{serverLabelOne, serverLabelTwo, serverLabelThree}},
		},
		Profiles: map[string]config.ProfileEntry{
			"dev":  {Cores: 1, RAM: 2048},
			"prod": {Cores: 8, RAM: 10240},
		},
		SSH: config.SSHConfig{
			Host: "{label}.example.net",
			Port: 22,
			User: "deploy",
			Key:  "/home/deploy/.ssh/id_ed25519",
			Servers: map[string]config.SSHOverride{
				serverLabelThree: {Port: 5000, User: "operator"},
			},
		},
	})
}

// newSimulated returns an orchestrator whose selector points at a fresh
// simulator with short timing.
func newSimulated(t *testing.T, outcomes simulator.Outcomes, maxAttempts int, opts ...Option) (*Orchestrator, *simulator.Simulator) {
	t.Helper()

	sim := simulator.New(simulator.Options{
		Latency:      time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  maxAttempts,
		Outcomes:     outcomes,
	})
	t.Cleanup(func() { _ = sim.Close() })

	reg := testRegistry()
	require.NoError(t, SeedSimulator(context.Background(), sim, reg))

	sel := NewSelector(Backend{})
	sel.UseSimulated(sim)
	return New(reg, sel, opts...), sim
}

// fakeControlPlane reports a fixed state from GetServer. When block is set,
// the first GetServer call waits for it to be closed.
type fakeControlPlane struct {
	mu      sync.Mutex
	calls   map[string]int
	state   gateway.Server
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func newFakeControlPlane(machine gateway.MachineState, vm gateway.ServerState) *fakeControlPlane {
	return &fakeControlPlane{
		calls: make(map[string]int),
		state: gateway.Server{ID: "srv-1", State: machine, VMState: vm},
	}
}

func (f *fakeControlPlane) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[call]++
}

func (f *fakeControlPlane) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeControlPlane) ListDatacenters(context.Context) ([]gateway.Datacenter, error) {
	f.record("ListDatacenters")
	return nil, nil
}

func (f *fakeControlPlane) ListServers(context.Context, string) ([]gateway.Server, error) {
	f.record("ListServers")
	return nil, nil
}

func (f *fakeControlPlane) GetServer(ctx context.Context, _, _ string) (*gateway.Server, error) {
	f.record("GetServer")
	if f.block != nil {
		f.once.Do(func() {
			close(f.started)
			select {
			case <-f.block:
			case <-ctx.Done():
			}
		})
	}
	srv := f.state
	return &srv, nil
}

func (f *fakeControlPlane) StartServer(context.Context, string, string) error {
	f.record("StartServer")
	return nil
}

func (f *fakeControlPlane) StopServer(context.Context, string, string) error {
	f.record("StopServer")
	return nil
}

func (f *fakeControlPlane) UpdateServer(context.Context, string, string, gateway.Profile) (*gateway.Server, error) {
	f.record("UpdateServer")
	return nil, nil
}

// recordingSSH records targets and exits 0.
type recordingSSH struct {
	mu      sync.Mutex
	targets []gateway.Target
}

func (r *recordingSSH) Exec(_ context.Context, target gateway.Target, _ string) (*gateway.ExecResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return &gateway.ExecResult{}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}
