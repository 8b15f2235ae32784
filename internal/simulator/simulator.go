package simulator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imamik/pbctl/internal/gateway"
)

// Defaults for a simulated backend.
const (
	DefaultLatency      = time.Second
	DefaultMaxAttempts  = 10
	DefaultCores        = 1
	DefaultRAM          = 2048
	serviceInactiveCode = 3
	shutdownFailedCode  = 1
)

// ErrSimulatedFailure is returned by operations whose class is not allowed.
var ErrSimulatedFailure = errors.New("simulated failure")

// Options configures a Simulator.
type Options struct {
	// Latency is the delay before every reply. Transitions complete three
	// latencies after the reply.
	Latency time.Duration
	// PollInterval is the poll interval used while the simulator is active.
	// Defaults to four latencies so a command attempt fits in its timeout.
	PollInterval time.Duration
	// MaxAttempts is the poll attempt bound used while the simulator is active.
	MaxAttempts int
	Outcomes    Outcomes
	Store       Store
	Logger      *zap.Logger
}

type serverRef struct {
	datacenterID string
	id           string
}

// Simulator implements gateway.ControlPlane and gateway.SSH in process.
type Simulator struct {
	latency      time.Duration
	pollInterval time.Duration
	maxAttempts  int
	outcomes     Outcomes
	store        Store
	logger       *zap.Logger

	mu          sync.RWMutex
	datacenters []gateway.Datacenter
	labels      map[string]serverRef
	calls       map[string]int

	opMu    sync.Map
	pending sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

var (
	_ gateway.ControlPlane = (*Simulator)(nil)
	_ gateway.SSH          = (*Simulator)(nil)
)

// New creates a simulator. A zero Latency means replies are immediate.
func New(opts Options) *Simulator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 4 * opts.Latency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Outcomes == nil {
		opts.Outcomes = Outcomes{}
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Simulator{
		latency:      opts.Latency,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		outcomes:     opts.Outcomes,
		store:        opts.Store,
		logger:       opts.Logger.With(zap.String("backend", "simulated")),
		labels:       make(map[string]serverRef),
		calls:        make(map[string]int),
		done:         make(chan struct{}),
	}
}

// PollInterval returns the poll interval to use with this simulator.
func (s *Simulator) PollInterval() time.Duration { return s.pollInterval }

// MaxAttempts returns the poll attempt bound to use with this simulator.
func (s *Simulator) MaxAttempts() int { return s.maxAttempts }

// Outcomes returns the allowed outcome set.
func (s *Simulator) Outcomes() Outcomes { return s.outcomes }

// AddDatacenter registers a datacenter.
func (s *Simulator) AddDatacenter(id, name, location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, dc := range s.datacenters {
		if dc.ID == id {
			s.datacenters[i] = gateway.Datacenter{ID: id, Name: name, Location: location}
			return
		}
	}
	s.datacenters = append(s.datacenters, gateway.Datacenter{ID: id, Name: name, Location: location})
}

// AddServer registers a server reachable by label. A server already in the
// store keeps its state; new servers start as (INACTIVE, SHUTOFF).
func (s *Simulator) AddServer(ctx context.Context, label, datacenterID, id, name string) error {
	s.mu.Lock()
	s.labels[label] = serverRef{datacenterID: datacenterID, id: id}
	s.mu.Unlock()

	_, err := s.store.GetMachine(ctx, datacenterID, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.store.SaveMachine(ctx, &Machine{
		Label:        label,
		ID:           id,
		DatacenterID: datacenterID,
		Name:         name,
		State:        gateway.MachineInactive,
		VMState:      gateway.ServerShutoff,
		Cores:        DefaultCores,
		RAM:          DefaultRAM,
		UpdatedAt:    time.Now().UTC(),
	})
}

// SetState overwrites the effective state of a server.
func (s *Simulator) SetState(ctx context.Context, datacenterID, id string, machine gateway.MachineState, vm gateway.ServerState) error {
	mtx := s.acquireOpLock(datacenterID, id)
	defer mtx.Unlock()

	m, err := s.store.GetMachine(ctx, datacenterID, id)
	if err != nil {
		return err
	}
	m.State, m.VMState = machine, vm
	m.Version++
	m.UpdatedAt = time.Now().UTC()
	return s.store.SaveMachine(ctx, m)
}

// Calls returns how often each gateway method was invoked.
func (s *Simulator) Calls() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.calls))
	for k, v := range s.calls {
		out[k] = v
	}
	return out
}

// TotalCalls returns the number of gateway calls of any kind.
func (s *Simulator) TotalCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.calls {
		n += v
	}
	return n
}

// Wait blocks until every scheduled transition has run.
func (s *Simulator) Wait() {
	s.pending.Wait()
}

// Close cancels pending transitions and closes the store.
func (s *Simulator) Close() error {
	s.once.Do(func() { close(s.done) })
	s.pending.Wait()
	return s.store.Close()
}

func (s *Simulator) record(call string) {
	s.mu.Lock()
	s.calls[call]++
	s.mu.Unlock()
	s.logger.Debug(call + " called")
}

// sleep waits one latency or until ctx ends.
func (s *Simulator) sleep(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ListDatacenters returns the registered datacenters sorted by ID.
func (s *Simulator) ListDatacenters(ctx context.Context) ([]gateway.Datacenter, error) {
	s.record("ListDatacenters")
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := append([]gateway.Datacenter(nil), s.datacenters...)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListServers returns every server in the datacenter.
func (s *Simulator) ListServers(ctx context.Context, datacenterID string) ([]gateway.Server, error) {
	s.record("ListServers")
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	if !s.hasDatacenter(datacenterID) {
		return nil, fmt.Errorf("datacenter %s: %w", datacenterID, ErrNotFound)
	}
	machines, err := s.store.ListMachines(ctx, datacenterID)
	if err != nil {
		return nil, err
	}
	out := make([]gateway.Server, 0, len(machines))
	for _, m := range machines {
		out = append(out, *m.Snapshot())
	}
	return out, nil
}

// GetServer returns the current snapshot without changing any state.
func (s *Simulator) GetServer(ctx context.Context, datacenterID, serverID string) (*gateway.Server, error) {
	s.record("GetServer")
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	m, err := s.store.GetMachine(ctx, datacenterID, serverID)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", serverID, err)
	}
	return m.Snapshot(), nil
}

// StartServer sets (INACTIVE, SHUTOFF), replies after one latency and, if
// start is allowed, reaches (AVAILABLE, RUNNING) three latencies later.
func (s *Simulator) StartServer(ctx context.Context, datacenterID, serverID string) error {
	s.record("StartServer")
	return s.powerCommand(ctx, datacenterID, serverID, OutcomeStart,
		gateway.MachineInactive, gateway.ServerShutoff,
		gateway.MachineAvailable, gateway.ServerRunning)
}

// StopServer sets (AVAILABLE, SHUTOFF), replies after one latency and, if
// stop is allowed, reaches (INACTIVE, SHUTOFF) three latencies later.
func (s *Simulator) StopServer(ctx context.Context, datacenterID, serverID string) error {
	s.record("StopServer")
	return s.powerCommand(ctx, datacenterID, serverID, OutcomeStop,
		gateway.MachineAvailable, gateway.ServerShutoff,
		gateway.MachineInactive, gateway.ServerShutoff)
}

func (s *Simulator) powerCommand(ctx context.Context, datacenterID, serverID string, class Outcome,
	midMachine gateway.MachineState, midVM gateway.ServerState,
	endMachine gateway.MachineState, endVM gateway.ServerState,
) error {
	version, err := s.transition(ctx, datacenterID, serverID, midMachine, midVM)
	if err != nil {
		return err
	}
	if err := s.sleep(ctx); err != nil {
		return err
	}
	if !s.outcomes.Allows(class) {
		return fmt.Errorf("%s server %s: %w", class, serverID, ErrSimulatedFailure)
	}
	s.schedule(datacenterID, serverID, version, endMachine, endVM)
	return nil
}

// UpdateServer applies the profile after one latency if update is allowed.
func (s *Simulator) UpdateServer(ctx context.Context, datacenterID, serverID string, profile gateway.Profile) (*gateway.Server, error) {
	s.record("UpdateServer")
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	if !s.outcomes.Allows(OutcomeUpdate) {
		return nil, fmt.Errorf("update server %s: %w", serverID, ErrSimulatedFailure)
	}

	mtx := s.acquireOpLock(datacenterID, serverID)
	defer mtx.Unlock()

	m, err := s.store.GetMachine(ctx, datacenterID, serverID)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", serverID, err)
	}
	m.Cores, m.RAM = profile.Cores, profile.RAM
	m.Version++
	m.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveMachine(ctx, m); err != nil {
		return nil, err
	}
	return m.Snapshot(), nil
}

// Exec runs a command on the server registered under target.Label. The
// shutdown command powers the server off if shutdown is allowed; any other
// command exits 0 only if service-check is allowed.
func (s *Simulator) Exec(ctx context.Context, target gateway.Target, command string) (*gateway.ExecResult, error) {
	s.record("Exec")
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ref, ok := s.labels[target.Label]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ssh: dial %s: no route to host", target.Address())
	}

	if command != gateway.ShutdownCommand {
		if s.outcomes.Allows(OutcomeServiceCheck) {
			return &gateway.ExecResult{ExitCode: 0}, nil
		}
		return &gateway.ExecResult{ExitCode: serviceInactiveCode, Stdout: "inactive"}, nil
	}

	if !s.outcomes.Allows(OutcomeShutdown) {
		return &gateway.ExecResult{ExitCode: shutdownFailedCode, Stderr: "shutdown: permission denied"}, nil
	}
	version, err := s.transition(ctx, ref.datacenterID, ref.id, gateway.MachineAvailable, gateway.ServerRunning)
	if err != nil {
		return nil, err
	}
	s.schedule(ref.datacenterID, ref.id, version, gateway.MachineAvailable, gateway.ServerShutoff)
	return &gateway.ExecResult{ExitCode: 0}, nil
}

// transition sets the state now and returns the new version.
func (s *Simulator) transition(ctx context.Context, datacenterID, serverID string, machine gateway.MachineState, vm gateway.ServerState) (int, error) {
	mtx := s.acquireOpLock(datacenterID, serverID)
	defer mtx.Unlock()

	m, err := s.store.GetMachine(ctx, datacenterID, serverID)
	if err != nil {
		return 0, fmt.Errorf("server %s: %w", serverID, err)
	}
	m.State, m.VMState = machine, vm
	m.Version++
	m.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveMachine(ctx, m); err != nil {
		return 0, err
	}
	return m.Version, nil
}

// schedule completes a transition three latencies from now unless another
// command touched the server in the meantime.
func (s *Simulator) schedule(datacenterID, serverID string, version int, machine gateway.MachineState, vm gateway.ServerState) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		timer := time.NewTimer(3 * s.latency)
		defer timer.Stop()
		select {
		case <-s.done:
			return
		case <-timer.C:
		}

		mtx := s.acquireOpLock(datacenterID, serverID)
		defer mtx.Unlock()

		ctx := context.Background()
		m, err := s.store.GetMachine(ctx, datacenterID, serverID)
		if err != nil || m.Version != version {
			return
		}
		m.State, m.VMState = machine, vm
		m.UpdatedAt = time.Now().UTC()
		if err := s.store.SaveMachine(ctx, m); err != nil {
			s.logger.Error("save transition", zap.String("server", serverID), zap.Error(err))
			return
		}
		s.logger.Debug("transition complete",
			zap.String("server", serverID),
			zap.String("machine", string(machine)),
			zap.String("vm", string(vm)),
		)
	}()
}

func (s *Simulator) hasDatacenter(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dc := range s.datacenters {
		if dc.ID == id {
			return true
		}
	}
	return false
}

// acquireOpLock serializes state changes per server.
func (s *Simulator) acquireOpLock(datacenterID, serverID string) *sync.Mutex {
	v, _ := s.opMu.LoadOrStore(machineKey(datacenterID, serverID), &sync.Mutex{})
	mtx := v.(*sync.Mutex)
	mtx.Lock()
	return mtx
}
