package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/lifecycle"
	"github.com/imamik/pbctl/internal/util/keygen"
)

// Tracked handles start, stop, shutdown and shutdown-stop.
func Tracked(ctx context.Context, opts *Options, op lifecycle.Operation, label string) error {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	fn, err := s.orch.Tracked(op)
	if err != nil {
		return err
	}

	var result error
	<-lifecycle.Dispatch(ctx, func(ctx context.Context) (*gateway.Server, error) {
		return fn(ctx, label)
	}, func(srv *gateway.Server, err error) {
		if err != nil {
			result = fmt.Errorf("%s %s failed: %w", op, label, err)
			return
		}
		result = s.printServer(label, srv)
	})
	return result
}

// Status handles the status command.
func Status(ctx context.Context, opts *Options, label string) error {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	srv, err := s.orch.GetServer(ctx, label)
	if err != nil {
		return err
	}
	return s.printServer(label, srv)
}

// Servers handles the servers command.
func Servers(ctx context.Context, opts *Options, datacenterLabel string) error {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	servers, err := s.orch.ListServers(ctx, datacenterLabel)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(output, servers)
	}
	_, err = fmt.Fprint(output, renderServers("Servers in "+datacenterLabel, servers))
	return err
}

// Datacenters handles the datacenters command.
func Datacenters(ctx context.Context, opts *Options) error {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	dcs, err := s.orch.ListDatacenters(ctx)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(output, dcs)
	}
	_, err = fmt.Fprint(output, renderDatacenters(dcs))
	return err
}

// Update handles the update command.
func Update(ctx context.Context, opts *Options, label, profile string) error {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	srv, err := s.orch.UpdateServer(ctx, label, profile)
	if err != nil {
		return err
	}
	return s.printServer(label, srv)
}

// Check handles the check and check-fs commands.
func Check(ctx context.Context, opts *Options, label, command string) error {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.orch.CheckCommand(ctx, label, command)
	if err != nil {
		return fmt.Errorf("check %s failed: %w", label, err)
	}
	if opts.JSON {
		return writeJSON(output, res)
	}
	_, err = fmt.Fprintf(output, "%s %s\n", okStyle.Render("  ✓"), fmt.Sprintf("%s: %q exited 0", label, command))
	return err
}

// Group handles the group command.
func Group(ctx context.Context, opts *Options, op lifecycle.Operation, group string, parallel int) error {
	s, err := newSession(ctx, opts, lifecycle.WithGroupLimit(parallel))
	if err != nil {
		return err
	}
	defer s.Close()

	results, runErr := s.orch.RunGroup(ctx, group, op)
	if results == nil {
		return runErr
	}

	if opts.JSON {
		views := make([]groupView, len(results))
		for i, r := range results {
			views[i] = groupView{Label: r.Label, Server: r.Server}
			if r.Err != nil {
				views[i].Error = r.Err.Error()
			}
		}
		if err := writeJSON(output, views); err != nil {
			return err
		}
	} else if _, err := fmt.Fprint(output, renderGroup(group, op, results)); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("%s %s failed:\n%w", op, group, runErr)
	}
	return nil
}

type groupView struct {
	Label  string          `json:"label"`
	Server *gateway.Server `json:"server,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Keygen handles the keygen command.
func Keygen(w io.Writer, path, keyType string, bits int) error {
	kp, err := keygen.Generate(keyType, bits)
	if err != nil {
		return err
	}
	if err := kp.WriteFiles(path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Wrote %s and %s.pub\n%s", path, path, kp.PublicKey)
	return err
}

func (s *session) printServer(label string, srv *gateway.Server) error {
	if s.opts.JSON {
		return writeJSON(output, serverView{Label: label, Server: srv})
	}
	_, err := fmt.Fprint(output, renderServer(label, srv))
	return err
}
