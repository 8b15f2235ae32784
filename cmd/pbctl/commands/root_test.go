package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "pbctl", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestRoot_HasSubcommands(t *testing.T) {
	cmd := Root()

	expectedSubcommands := []string{
		"start", "stop", "shutdown", "shutdown-stop", "group",
		"status", "servers", "datacenters", "update", "check", "check-fs",
		"keygen", "version",
	}

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}
	for _, expected := range expectedSubcommands {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}
	assert.Len(t, cmd.Commands(), len(expectedSubcommands))
}

func TestRoot_GlobalFlags(t *testing.T) {
	cmd := Root()

	for _, name := range []string{"config", "backend", "sim-outcomes", "sim-latency", "sim-state-dir", "verbose", "json", "trace", "metrics-file"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	f := cmd.PersistentFlags().Lookup("config")
	assert.Equal(t, "c", f.Shorthand)
	assert.Equal(t, "pbctl.yaml", f.DefValue)
}

func TestArgsValidation(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr string
	}{
		{args: []string{"start"}, wantErr: "accepts 1 arg(s)"},
		{args: []string{"update", "web-1"}, wantErr: "accepts 2 arg(s)"},
		{args: []string{"check", "web-1"}, wantErr: "requires at least 2 arg(s)"},
		{args: []string{"group", "reboot", "office"}, wantErr: `unsupported group operation "reboot"`},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			cmd := Root()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
