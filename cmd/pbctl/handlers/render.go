package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/lifecycle"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	failStyle   = lipgloss.NewStyle().Foreground(colorRed)
	busyStyle   = lipgloss.NewStyle().Foreground(colorYellow)
)

// stateStyle colors a state by how "up" it is.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case string(gateway.MachineAvailable), string(gateway.ServerRunning):
		return okStyle
	case string(gateway.MachineInactive), string(gateway.ServerShutoff), string(gateway.ServerShutdown):
		return dimStyle
	case string(gateway.MachineFailed), string(gateway.ServerCrashed):
		return failStyle
	default:
		return busyStyle
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// serverView is the JSON shape of one server.
type serverView struct {
	Label string `json:"label,omitempty"`
	*gateway.Server
}

// renderServer produces a one-line summary of a server snapshot.
func renderServer(label string, srv *gateway.Server) string {
	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(titleStyle.Render(label))
	b.WriteString("  ")
	b.WriteString(stateStyle(string(srv.State)).Render(string(srv.State)))
	b.WriteString(dimStyle.Render(" / "))
	b.WriteString(stateStyle(string(srv.VMState)).Render(string(srv.VMState)))
	if srv.Cores > 0 || srv.RAM > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d cores · %d MB", srv.Cores, srv.RAM)))
	}
	b.WriteString("\n")
	return b.String()
}

// renderServers produces a table of servers.
func renderServers(title string, servers []gateway.Server) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  " + title))
	b.WriteString("\n")

	if len(servers) == 0 {
		b.WriteString(dimStyle.Render("  no servers"))
		b.WriteString("\n")
		return b.String()
	}

	nameWidth := len("NAME")
	idWidth := len("ID")
	for _, s := range servers {
		nameWidth = max(nameWidth, len(s.Name))
		idWidth = max(idWidth, len(s.ID))
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-*s  %-*s  %-10s  %-9s  %5s  %7s",
		nameWidth, "NAME", idWidth, "ID", "STATE", "VM", "CORES", "RAM")))
	b.WriteString("\n")
	for _, s := range servers {
		b.WriteString(fmt.Sprintf("  %-*s  %s  ", nameWidth, s.Name, dimStyle.Render(fmt.Sprintf("%-*s", idWidth, s.ID))))
		b.WriteString(stateStyle(string(s.State)).Render(fmt.Sprintf("%-10s", s.State)))
		b.WriteString("  ")
		b.WriteString(stateStyle(string(s.VMState)).Render(fmt.Sprintf("%-9s", s.VMState)))
		b.WriteString(fmt.Sprintf("  %5d  %7d\n", s.Cores, s.RAM))
	}
	return b.String()
}

// renderDatacenters produces a list of datacenters.
func renderDatacenters(dcs []gateway.Datacenter) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Datacenters"))
	b.WriteString("\n")
	for _, dc := range dcs {
		b.WriteString(fmt.Sprintf("  %s  %s", dc.Name, dimStyle.Render(dc.ID)))
		if dc.Location != "" {
			b.WriteString(dimStyle.Render("  " + dc.Location))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderGroup produces one line per server of a group run.
func renderGroup(group string, op lifecycle.Operation, results []lifecycle.GroupResult) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  %s %s", op, group)))
	b.WriteString("\n")
	for _, r := range results {
		if r.Err != nil {
			b.WriteString(failStyle.Render("  ✗"))
			b.WriteString(" " + r.Label)
			b.WriteString(dimStyle.Render("  " + r.Err.Error()))
			b.WriteString("\n")
			continue
		}
		b.WriteString(okStyle.Render("  ✓"))
		b.WriteString(renderServer(r.Label, r.Server)[1:])
	}
	return b.String()
}
