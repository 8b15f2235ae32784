package hcloud

import (
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/pbctl/internal/gateway"
)

// Label marking a powered-off server as deallocated (INACTIVE).
const (
	MachineStateLabel = "pbctl/machine-state"
	inactiveValue     = "inactive"
)

// effectiveState maps a Hetzner server to the machine/VM state pair.
func effectiveState(s *hcloud.Server) (gateway.MachineState, gateway.ServerState) {
	switch s.Status {
	case hcloud.ServerStatusRunning:
		return gateway.MachineAvailable, gateway.ServerRunning
	case hcloud.ServerStatusOff:
		if s.Labels[MachineStateLabel] == inactiveValue {
			return gateway.MachineInactive, gateway.ServerShutoff
		}
		return gateway.MachineAvailable, gateway.ServerShutoff
	case hcloud.ServerStatusInitializing:
		return gateway.MachineDeploying, gateway.ServerNoState
	case hcloud.ServerStatusStarting,
		hcloud.ServerStatusStopping,
		hcloud.ServerStatusMigrating,
		hcloud.ServerStatusRebuilding,
		hcloud.ServerStatusDeleting:
		return gateway.MachineBusy, gateway.ServerNoState
	default:
		return gateway.MachineUnknown, gateway.ServerNoState
	}
}

func toServer(s *hcloud.Server) *gateway.Server {
	machine, vm := effectiveState(s)
	out := &gateway.Server{
		ID:      strconv.FormatInt(s.ID, 10),
		Name:    s.Name,
		State:   machine,
		VMState: vm,
	}
	if s.Datacenter != nil {
		out.DatacenterID = strconv.FormatInt(s.Datacenter.ID, 10)
	}
	if s.ServerType != nil {
		out.Cores = s.ServerType.Cores
		out.RAM = memoryMB(s.ServerType)
	}
	return out
}

// memoryMB converts the server type memory (GB) to MB.
func memoryMB(st *hcloud.ServerType) int {
	return int(st.Memory * 1024)
}

// withLabel returns a copy of labels with key set to value, or removed when
// value is empty.
func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	if value == "" {
		delete(out, key)
	} else {
		out[key] = value
	}
	return out
}
