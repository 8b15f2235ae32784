package poll

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imamik/pbctl/internal/gateway"
)

var running = Target{Machine: gateway.MachineAvailable, Server: gateway.ServerRunning}

func TestStateChange_Converges(t *testing.T) {
	t.Parallel()

	states := []gateway.Server{
		{ID: "s1", State: gateway.MachineInactive, VMState: gateway.ServerShutoff},
		{ID: "s1", State: gateway.MachineBusy, VMState: gateway.ServerNoState},
		{ID: "s1", State: gateway.MachineAvailable, VMState: gateway.ServerRunning, Cores: 1, RAM: 2048},
	}
	calls := 0
	query := func(context.Context) (*gateway.Server, error) {
		srv := states[calls]
		calls++
		return &srv, nil
	}

	srv, err := StateChange(context.Background(), fastOptions(10), running, query)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, gateway.MachineAvailable, srv.State)
	assert.Equal(t, gateway.ServerRunning, srv.VMState)
	assert.Equal(t, 2048, srv.RAM)
}

func TestStateChange_PartialMatchIsNotEnough(t *testing.T) {
	t.Parallel()

	calls := 0
	query := func(context.Context) (*gateway.Server, error) {
		calls++
		return &gateway.Server{State: gateway.MachineAvailable, VMState: gateway.ServerShutoff}, nil
	}

	_, err := StateChange(context.Background(), fastOptions(4), running, query)

	var exhausted *PollExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, 4, calls)
	assert.NoError(t, exhausted.Last)
}

func TestStateChange_QueryErrorsAreLoggedAndRetried(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	opts := fastOptions(5)
	opts.Logger = zap.New(core)

	calls := 0
	query := func(context.Context) (*gateway.Server, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("503 service unavailable")
		}
		return &gateway.Server{State: gateway.MachineAvailable, VMState: gateway.ServerRunning}, nil
	}

	srv, err := StateChange(context.Background(), opts, running, query)
	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.Equal(t, 3, calls)

	failures := logs.FilterMessage("state query failed").All()
	require.Len(t, failures, 2)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	assert.Equal(t, "serverLabelOne", failures[0].ContextMap()["label"])
}

func TestStateChange_ExhaustionAfterRecoveredQuery(t *testing.T) {
	t.Parallel()

	transient := errors.New("transient 503")
	calls := 0
	query := func(context.Context) (*gateway.Server, error) {
		calls++
		if calls == 1 {
			return nil, transient
		}
		return &gateway.Server{State: gateway.MachineInactive, VMState: gateway.ServerShutoff}, nil
	}

	_, err := StateChange(context.Background(), fastOptions(4), running, query)

	var exhausted *PollExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, calls)
	assert.Nil(t, exhausted.Last)
	assert.NotErrorIs(t, err, transient)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestStateChange_PermanentQueryErrorEndsPolling(t *testing.T) {
	t.Parallel()

	notFound := errors.New("server not found: 42")
	calls := 0
	query := func(context.Context) (*gateway.Server, error) {
		calls++
		return nil, gateway.Permanent(notFound)
	}

	srv, err := StateChange(context.Background(), fastOptions(10), running, query)
	assert.Nil(t, srv)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, notFound)
	assert.True(t, gateway.IsPermanent(err))

	var exhausted *PollExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestTarget_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "AVAILABLE/RUNNING", running.String())
}
