// Package gateway defines the contracts between the lifecycle orchestrator and
// the remote systems it drives: a control-plane API that owns server power
// state, and an SSH transport that runs commands on the servers themselves.
//
// Live implementations live under internal/platform; the simulator in
// internal/simulator implements both interfaces in memory.
package gateway

import (
	"context"
	"fmt"
)

// ShutdownCommand powers the operating system off. It is backgrounded so the
// SSH session returns an exit status before the connection drops.
const ShutdownCommand = "shutdown -P now shutdown-now&"

// MachineState is the control-plane power state of a server.
type MachineState string

// Machine states reported by the control plane.
const (
	MachineAvailable MachineState = "AVAILABLE"
	MachineInactive  MachineState = "INACTIVE"
	MachineBusy      MachineState = "BUSY"
	MachineDeploying MachineState = "DEPLOYING"
	MachineFailed    MachineState = "FAILED"
	MachineUnknown   MachineState = "UNKNOWN"
)

// ServerState is the state of the virtual machine as seen by the hypervisor.
type ServerState string

// Server (VM) states reported by the control plane.
const (
	ServerRunning   ServerState = "RUNNING"
	ServerShutoff   ServerState = "SHUTOFF"
	ServerShutdown  ServerState = "SHUTDOWN"
	ServerPaused    ServerState = "PAUSED"
	ServerBlocked   ServerState = "BLOCKED"
	ServerCrashed   ServerState = "CRASHED"
	ServerSuspended ServerState = "SUSPENDED"
	ServerNoState   ServerState = "NOSTATE"
)

// Datacenter is a control-plane datacenter (virtual data center).
type Datacenter struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// Server is a snapshot of a server as reported by the control plane.
type Server struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DatacenterID string       `json:"datacenterId"`
	State        MachineState `json:"state"`
	VMState      ServerState  `json:"vmState"`
	Cores        int          `json:"cores"`
	RAM          int          `json:"ram"`
}

// Matches reports whether the server's effective state is the given pair.
func (s *Server) Matches(machine MachineState, vm ServerState) bool {
	return s != nil && s.State == machine && s.VMState == vm
}

// Profile is a resource specification applied by UpdateServer. RAM is in MB.
type Profile struct {
	Cores int `json:"cores"`
	RAM   int `json:"ram"`
}

func (p Profile) String() string {
	return fmt.Sprintf("%d cores, %d MB RAM", p.Cores, p.RAM)
}

// Target addresses a server over SSH.
type Target struct {
	// Label is the configured server label. Transports use it for error
	// messages; the simulator uses it to find the server.
	Label   string
	Host    string
	Port    int
	User    string
	KeyPath string
}

// Address returns host:port.
func (t Target) Address() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// ExecResult is the outcome of a command that ran to completion.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ControlPlane manages server power state and resources through the provider API.
type ControlPlane interface {
	ListDatacenters(ctx context.Context) ([]Datacenter, error)
	ListServers(ctx context.Context, datacenterID string) ([]Server, error)
	GetServer(ctx context.Context, datacenterID, serverID string) (*Server, error)
	StartServer(ctx context.Context, datacenterID, serverID string) error
	StopServer(ctx context.Context, datacenterID, serverID string) error
	UpdateServer(ctx context.Context, datacenterID, serverID string, profile Profile) (*Server, error)
}

// SSH runs commands on servers.
//
// Exec opens an independent connection per call. A nil error means the
// command produced an exit status, which may be non-zero. An error means no
// exit status was observed: the connection failed, the session broke, or ctx
// ended first.
type SSH interface {
	Exec(ctx context.Context, target Target, command string) (*ExecResult, error)
}
