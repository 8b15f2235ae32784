package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/pbctl/internal/gateway"
)

const (
	testDC     = "dc-1"
	testServer = "srv-1"
	testLabel  = "serverLabelOne"
)

func newTestSimulator(t *testing.T, outcomes Outcomes) *Simulator {
	t.Helper()
	sim := New(Options{Latency: 5 * time.Millisecond, Outcomes: outcomes})
	sim.AddDatacenter(testDC, "datacenterLabel1", "de/fra")
	require.NoError(t, sim.AddServer(context.Background(), testLabel, testDC, testServer, "test name"))
	t.Cleanup(func() { _ = sim.Close() })
	return sim
}

func state(t *testing.T, sim *Simulator) (gateway.MachineState, gateway.ServerState) {
	t.Helper()
	srv, err := sim.GetServer(context.Background(), testDC, testServer)
	require.NoError(t, err)
	return srv.State, srv.VMState
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	sim := New(Options{Latency: 200 * time.Millisecond})
	assert.Equal(t, 800*time.Millisecond, sim.PollInterval())
	assert.Equal(t, DefaultMaxAttempts, sim.MaxAttempts())
	assert.Empty(t, sim.Outcomes())
}

func TestSimulator_NewServerDefaults(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, AllowAll())

	srv, err := sim.GetServer(context.Background(), testDC, testServer)
	require.NoError(t, err)
	assert.Equal(t, gateway.MachineInactive, srv.State)
	assert.Equal(t, gateway.ServerShutoff, srv.VMState)
	assert.Equal(t, DefaultCores, srv.Cores)
	assert.Equal(t, DefaultRAM, srv.RAM)
	assert.Equal(t, "test name", srv.Name)
}

func TestSimulator_GetServerIsReadOnly(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, AllowAll())

	for i := 0; i < 5; i++ {
		machine, vm := state(t, sim)
		assert.Equal(t, gateway.MachineInactive, machine)
		assert.Equal(t, gateway.ServerShutoff, vm)
	}
	sim.Wait()
	assert.Equal(t, 5, sim.Calls()["GetServer"])
}

func TestSimulator_StartAllowed(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, Allow(OutcomeStart))
	ctx := context.Background()

	require.NoError(t, sim.SetState(ctx, testDC, testServer, gateway.MachineAvailable, gateway.ServerShutoff))
	require.NoError(t, sim.StartServer(ctx, testDC, testServer))

	machine, vm := state(t, sim)
	assert.Equal(t, gateway.MachineInactive, machine)
	assert.Equal(t, gateway.ServerShutoff, vm)

	sim.Wait()
	machine, vm = state(t, sim)
	assert.Equal(t, gateway.MachineAvailable, machine)
	assert.Equal(t, gateway.ServerRunning, vm)
}

func TestSimulator_StartDisallowed(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, Allow(OutcomeStop))

	err := sim.StartServer(context.Background(), testDC, testServer)
	require.ErrorIs(t, err, ErrSimulatedFailure)

	sim.Wait()
	machine, vm := state(t, sim)
	assert.Equal(t, gateway.MachineInactive, machine)
	assert.Equal(t, gateway.ServerShutoff, vm)
}

func TestSimulator_StopAllowed(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, Allow(OutcomeStop))
	ctx := context.Background()

	require.NoError(t, sim.SetState(ctx, testDC, testServer, gateway.MachineAvailable, gateway.ServerRunning))
	require.NoError(t, sim.StopServer(ctx, testDC, testServer))

	machine, vm := state(t, sim)
	assert.Equal(t, gateway.MachineAvailable, machine)
	assert.Equal(t, gateway.ServerShutoff, vm)

	sim.Wait()
	machine, _ = state(t, sim)
	assert.Equal(t, gateway.MachineInactive, machine)
}

func TestSimulator_LaterCommandWinsOverPendingTransition(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, AllowAll())
	ctx := context.Background()

	require.NoError(t, sim.StartServer(ctx, testDC, testServer))
	require.NoError(t, sim.StopServer(ctx, testDC, testServer))
	sim.Wait()

	machine, vm := state(t, sim)
	assert.Equal(t, gateway.MachineInactive, machine)
	assert.Equal(t, gateway.ServerShutoff, vm)
}

func TestSimulator_Update(t *testing.T) {
	t.Parallel()

	sim := newTestSimulator(t, Allow(OutcomeUpdate))
	srv, err := sim.UpdateServer(context.Background(), testDC, testServer, gateway.Profile{Cores: 8, RAM: 10240})
	require.NoError(t, err)
	assert.Equal(t, 8, srv.Cores)
	assert.Equal(t, 10240, srv.RAM)

	denied := newTestSimulator(t, Outcomes{})
	_, err = denied.UpdateServer(context.Background(), testDC, testServer, gateway.Profile{Cores: 8, RAM: 10240})
	assert.ErrorIs(t, err, ErrSimulatedFailure)
}

func TestSimulator_ExecServiceCheck(t *testing.T) {
	t.Parallel()
	target := gateway.Target{Label: testLabel, Host: "h", Port: 22}

	allowed := newTestSimulator(t, Allow(OutcomeServiceCheck))
	res, err := allowed.Exec(context.Background(), target, "service freeswitch status")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	denied := newTestSimulator(t, Outcomes{})
	res, err = denied.Exec(context.Background(), target, "service freeswitch status")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestSimulator_ExecShutdown(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, Allow(OutcomeShutdown))
	target := gateway.Target{Label: testLabel}

	res, err := sim.Exec(context.Background(), target, gateway.ShutdownCommand)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	machine, vm := state(t, sim)
	assert.Equal(t, gateway.MachineAvailable, machine)
	assert.Equal(t, gateway.ServerRunning, vm)

	sim.Wait()
	machine, vm = state(t, sim)
	assert.Equal(t, gateway.MachineAvailable, machine)
	assert.Equal(t, gateway.ServerShutoff, vm)
}

func TestSimulator_ExecUnknownHost(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, AllowAll())

	_, err := sim.Exec(context.Background(), gateway.Target{Label: "ghost", Host: "ghost", Port: 22}, "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost:22")
}

func TestSimulator_Lists(t *testing.T) {
	t.Parallel()
	sim := newTestSimulator(t, AllowAll())
	ctx := context.Background()
	require.NoError(t, sim.AddServer(ctx, "serverLabelTwo", testDC, "srv-0", "second"))

	dcs, err := sim.ListDatacenters(ctx)
	require.NoError(t, err)
	require.Len(t, dcs, 1)
	assert.Equal(t, "datacenterLabel1", dcs[0].Name)

	servers, err := sim.ListServers(ctx, testDC)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "srv-0", servers[0].ID)
	assert.Equal(t, "srv-1", servers[1].ID)

	_, err = sim.ListServers(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSimulator_ContextCancelled(t *testing.T) {
	t.Parallel()
	sim := New(Options{Latency: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.GetServer(ctx, testDC, testServer)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Outcomes
		wantErr bool
	}{
		{"all", AllowAll(), false},
		{"none", Outcomes{}, false},
		{"", Outcomes{}, false},
		{"start, stop", Allow(OutcomeStart, OutcomeStop), false},
		{"service-check", Allow(OutcomeServiceCheck), false},
		{"start,reboot", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOutcomes(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutcomes_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "service-check,start", Allow(OutcomeStart, OutcomeServiceCheck).String())
}
