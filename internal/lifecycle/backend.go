package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/simulator"
)

// Backend names.
const (
	BackendLive      = "live"
	BackendSimulated = "simulated"
)

// SimulatedMaxAttempts is the poll bound used with a simulator that does not
// set its own.
const SimulatedMaxAttempts = simulator.DefaultMaxAttempts

// Backend is the gateway pair and polling bounds operations run against.
type Backend struct {
	Name         string
	ControlPlane gateway.ControlPlane
	SSH          gateway.SSH
	MaxAttempts  int
	Interval     time.Duration
}

// Selector holds the active Backend. It is safe for concurrent use.
type Selector struct {
	mu      sync.RWMutex
	live    Backend
	current Backend
}

// NewSelector creates a selector with live as the active backend.
func NewSelector(live Backend) *Selector {
	if live.Name == "" {
		live.Name = BackendLive
	}
	if live.MaxAttempts <= 0 {
		live.MaxAttempts = config.DefaultMaxPollAttempts
	}
	if live.Interval <= 0 {
		live.Interval = config.DefaultPollInterval
	}
	return &Selector{live: live, current: live}
}

// UseLive restores the live gateways and polling bounds.
func (s *Selector) UseLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.live
}

// UseSimulated routes both gateways to sim and shrinks the polling bounds to
// the simulator's.
func (s *Selector) UseSimulated(sim *simulator.Simulator) {
	attempts := sim.MaxAttempts()
	if attempts <= 0 {
		attempts = SimulatedMaxAttempts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Backend{
		Name:         BackendSimulated,
		ControlPlane: sim,
		SSH:          sim,
		MaxAttempts:  attempts,
		Interval:     sim.PollInterval(),
	}
}

// Current returns a copy of the active backend.
func (s *Selector) Current() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SeedSimulator registers every datacenter and every resolvable server label
// of reg with sim. Servers already present in the simulator's store keep
// their state.
func SeedSimulator(ctx context.Context, sim *simulator.Simulator, reg *config.Registry) error {
	for label, id := range reg.Datacenters() {
		sim.AddDatacenter(id, label, "")
	}
	for _, label := range reg.Labels() {
		srv, err := reg.Resolve(label)
		if err != nil {
			continue
		}
		if err := sim.AddServer(ctx, label, srv.DatacenterID, srv.ServerID, label); err != nil {
			return fmt.Errorf("failed to seed simulated server %s: %w", label, err)
		}
	}
	return nil
}
