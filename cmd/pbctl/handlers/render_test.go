package handlers

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/lifecycle"
)

func TestRenderServer(t *testing.T) {
	got := renderServer("web-1", &gateway.Server{
		State: gateway.MachineAvailable, VMState: gateway.ServerRunning, Cores: 2, RAM: 4096,
	})
	assert.Contains(t, got, "web-1")
	assert.Contains(t, got, "AVAILABLE")
	assert.Contains(t, got, "RUNNING")
	assert.Contains(t, got, "2 cores · 4096 MB")

	bare := renderServer("web-2", &gateway.Server{State: gateway.MachineBusy, VMState: gateway.ServerNoState})
	assert.NotContains(t, bare, "cores")
}

func TestRenderServers(t *testing.T) {
	got := renderServers("Servers in dc", []gateway.Server{
		{ID: "srv-1", Name: "a-very-long-server-name", State: gateway.MachineInactive, VMState: gateway.ServerShutoff, Cores: 1, RAM: 2048},
		{ID: "srv-2", Name: "b", State: gateway.MachineAvailable, VMState: gateway.ServerRunning, Cores: 4, RAM: 8192},
	})

	lines := strings.Split(strings.TrimSpace(got), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[1], "NAME")
	assert.Contains(t, lines[2], "a-very-long-server-name")
	assert.Contains(t, lines[3], "8192")

	assert.Contains(t, renderServers("Empty", nil), "no servers")
}

func TestRenderGroup(t *testing.T) {
	got := renderGroup("office", lifecycle.OpStart, []lifecycle.GroupResult{
		{Label: "one", Server: &gateway.Server{State: gateway.MachineAvailable, VMState: gateway.ServerRunning}},
		{Label: "two", Err: errors.New("max attempts exceeded")},
	})
	assert.Contains(t, got, "start office")
	assert.Contains(t, got, "✓ one")
	assert.Contains(t, got, "✗ two")
	assert.Contains(t, got, "max attempts exceeded")
}

func TestStateStyle(t *testing.T) {
	assert.Equal(t, okStyle, stateStyle("RUNNING"))
	assert.Equal(t, dimStyle, stateStyle("SHUTOFF"))
	assert.Equal(t, failStyle, stateStyle("CRASHED"))
	assert.Equal(t, busyStyle, stateStyle("BUSY"))
}
