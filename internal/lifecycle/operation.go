package lifecycle

import (
	"fmt"

	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/poll"
)

// Operation names a lifecycle operation.
type Operation string

// Operations. The first four are tracked; the rest are single calls.
const (
	OpStart           Operation = "start"
	OpStop            Operation = "stop"
	OpShutdown        Operation = "shutdown"
	OpShutdownStop    Operation = "shutdown-stop"
	OpStatus          Operation = "status"
	OpListServers     Operation = "list-servers"
	OpListDatacenters Operation = "list-datacenters"
	OpUpdate          Operation = "update"
	OpCheck           Operation = "check"
)

// TargetState is the effective state that confirms a tracked operation.
type TargetState struct {
	poll.Target
	Message string
}

var targets = map[Operation]TargetState{
	OpStart:    {Target: poll.Target{Machine: gateway.MachineAvailable, Server: gateway.ServerRunning}, Message: "Server started!"},
	OpStop:     {Target: poll.Target{Machine: gateway.MachineInactive, Server: gateway.ServerShutoff}, Message: "Server stopped!"},
	OpShutdown: {Target: poll.Target{Machine: gateway.MachineAvailable, Server: gateway.ServerShutoff}, Message: "Server shut down!"},
}

// TargetFor returns the target state of a tracked operation.
func TargetFor(op Operation) (TargetState, bool) {
	t, ok := targets[op]
	return t, ok
}

// GroupOperations are the operations RunGroup accepts.
var GroupOperations = []Operation{OpStart, OpStop, OpShutdown, OpShutdownStop}

// ParseGroupOperation validates a group operation name.
func ParseGroupOperation(s string) (Operation, error) {
	for _, op := range GroupOperations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unsupported group operation %q (use start, stop, shutdown or shutdown-stop)", s)
}
