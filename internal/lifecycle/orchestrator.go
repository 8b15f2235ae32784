package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/metrics"
	"github.com/imamik/pbctl/internal/notify"
	"github.com/imamik/pbctl/internal/poll"
	"github.com/imamik/pbctl/internal/telemetry"
)

// Orchestrator runs operations on configured servers against the backend
// selected by its Selector. It is safe for concurrent use.
type Orchestrator struct {
	registry   *config.Registry
	selector   *Selector
	logger     *zap.Logger
	tracer     trace.Tracer
	publisher  notify.Publisher
	groupLimit int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithPublisher sets where terminal outcomes are published.
func WithPublisher(p notify.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithGroupLimit bounds how many servers a group operation drives at once.
func WithGroupLimit(n int) Option {
	return func(o *Orchestrator) {
		o.groupLimit = n
	}
}

// New creates an Orchestrator.
func New(registry *config.Registry, selector *Selector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		selector:  selector,
		logger:    zap.NewNop(),
		tracer:    telemetry.Noop(),
		publisher: notify.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Selector returns the backend selector.
func (o *Orchestrator) Selector() *Selector {
	return o.selector
}

// StartTracked powers the server on and waits for (AVAILABLE, RUNNING).
func (o *Orchestrator) StartTracked(ctx context.Context, label string) (*gateway.Server, error) {
	return o.track(ctx, OpStart, label)
}

// StopTracked powers the server off and waits for (INACTIVE, SHUTOFF).
func (o *Orchestrator) StopTracked(ctx context.Context, label string) (*gateway.Server, error) {
	return o.track(ctx, OpStop, label)
}

// ShutdownTracked shuts the operating system down over SSH and waits for
// (AVAILABLE, SHUTOFF).
func (o *Orchestrator) ShutdownTracked(ctx context.Context, label string) (*gateway.Server, error) {
	return o.track(ctx, OpShutdown, label)
}

// ShutdownStopTracked shuts the server down gracefully, then stops it. The
// stop runs regardless of the shutdown outcome and determines the result.
func (o *Orchestrator) ShutdownStopTracked(ctx context.Context, label string) (*gateway.Server, error) {
	if _, err := o.ShutdownTracked(ctx, label); err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) || ctx.Err() != nil {
			return nil, err
		}
		o.logger.Warn("graceful shutdown failed, stopping anyway",
			zap.String("label", label),
			zap.Error(err),
		)
	}
	return o.StopTracked(ctx, label)
}

// Tracked returns the blocking function for a tracked operation.
func (o *Orchestrator) Tracked(op Operation) (func(context.Context, string) (*gateway.Server, error), error) {
	switch op {
	case OpStart:
		return o.StartTracked, nil
	case OpStop:
		return o.StopTracked, nil
	case OpShutdown:
		return o.ShutdownTracked, nil
	case OpShutdownStop:
		return o.ShutdownStopTracked, nil
	default:
		return nil, fmt.Errorf("%s is not a tracked operation", op)
	}
}

// track runs RESOLVE_CONFIG -> ISSUE_COMMAND -> POLL for op on label.
func (o *Orchestrator) track(ctx context.Context, op Operation, label string) (*gateway.Server, error) {
	target, ok := TargetFor(op)
	if !ok {
		return nil, fmt.Errorf("%s is not a tracked operation", op)
	}

	var final *gateway.Server
	err := o.observe(ctx, op, label, true, func(ctx context.Context, run *run) error {
		var srv config.ServerConfig
		if err := run.step(ctx, "resolve", func(context.Context) error {
			var err error
			srv, err = o.registry.Resolve(label)
			return err
		}); err != nil {
			return err
		}

		backend := o.selector.Current()
		run.backend(backend.Name)

		if err := run.step(ctx, "issue", func(ctx context.Context) error {
			return o.issue(ctx, backend, op, srv)
		}); err != nil {
			return err
		}
		run.logger.Debug("command issued, waiting for target state", zap.Stringer("target", target.Target))

		return run.step(ctx, "poll", func(ctx context.Context) error {
			var err error
			final, err = poll.StateChange(ctx, o.pollOptions(backend, run.logger, label), target.Target,
				func(ctx context.Context) (*gateway.Server, error) {
					return backend.ControlPlane.GetServer(ctx, srv.DatacenterID, srv.ServerID)
				})
			return err
		})
	}, func(run *run) {
		run.server = final
		run.logger.Info(target.Message)
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// issue sends the command that starts op.
func (o *Orchestrator) issue(ctx context.Context, backend Backend, op Operation, srv config.ServerConfig) error {
	switch op {
	case OpStart:
		if backend.ControlPlane == nil {
			return gateway.Wrap(string(op), srv.Label, gateway.ErrNotConfigured)
		}
		return gateway.Wrap(string(op), srv.Label, backend.ControlPlane.StartServer(ctx, srv.DatacenterID, srv.ServerID))
	case OpStop:
		if backend.ControlPlane == nil {
			return gateway.Wrap(string(op), srv.Label, gateway.ErrNotConfigured)
		}
		return gateway.Wrap(string(op), srv.Label, backend.ControlPlane.StopServer(ctx, srv.DatacenterID, srv.ServerID))
	case OpShutdown:
		if backend.SSH == nil || backend.ControlPlane == nil {
			return gateway.Wrap(string(op), srv.Label, gateway.ErrNotConfigured)
		}
		res, err := backend.SSH.Exec(ctx, srv.SSHTarget(), gateway.ShutdownCommand)
		if err != nil {
			return gateway.Wrap(string(op), srv.Label, err)
		}
		if res.ExitCode != 0 {
			return gateway.Wrap(string(op), srv.Label, fmt.Errorf("shutdown command exited with status %d", res.ExitCode))
		}
		return nil
	default:
		return fmt.Errorf("%s is not a tracked operation", op)
	}
}

// GetServer returns the current snapshot of the server. It never changes state.
func (o *Orchestrator) GetServer(ctx context.Context, label string) (*gateway.Server, error) {
	var out *gateway.Server
	err := o.observe(ctx, OpStatus, label, false, func(ctx context.Context, run *run) error {
		srv, err := o.registry.Resolve(label)
		if err != nil {
			return err
		}
		backend := o.selector.Current()
		run.backend(backend.Name)
		if backend.ControlPlane == nil {
			return gateway.Wrap("get server", label, gateway.ErrNotConfigured)
		}
		out, err = backend.ControlPlane.GetServer(ctx, srv.DatacenterID, srv.ServerID)
		return gateway.Wrap("get server", label, err)
	}, func(run *run) { run.server = out })
	return out, err
}

// ListServers lists the servers of a configured datacenter.
func (o *Orchestrator) ListServers(ctx context.Context, datacenterLabel string) ([]gateway.Server, error) {
	var out []gateway.Server
	err := o.observe(ctx, OpListServers, datacenterLabel, false, func(ctx context.Context, run *run) error {
		id, err := o.registry.Datacenter(datacenterLabel)
		if err != nil {
			return err
		}
		backend := o.selector.Current()
		run.backend(backend.Name)
		if backend.ControlPlane == nil {
			return gateway.Wrap("list servers", datacenterLabel, gateway.ErrNotConfigured)
		}
		out, err = backend.ControlPlane.ListServers(ctx, id)
		return gateway.Wrap("list servers", datacenterLabel, err)
	}, nil)
	return out, err
}

// ListDatacenters lists every datacenter visible to the control plane.
func (o *Orchestrator) ListDatacenters(ctx context.Context) ([]gateway.Datacenter, error) {
	var out []gateway.Datacenter
	err := o.observe(ctx, OpListDatacenters, "", false, func(ctx context.Context, run *run) error {
		backend := o.selector.Current()
		run.backend(backend.Name)
		if backend.ControlPlane == nil {
			return gateway.Wrap("list datacenters", "", gateway.ErrNotConfigured)
		}
		var err error
		out, err = backend.ControlPlane.ListDatacenters(ctx)
		return gateway.Wrap("list datacenters", "", err)
	}, nil)
	return out, err
}

// UpdateServer applies the named profile to the server.
func (o *Orchestrator) UpdateServer(ctx context.Context, label, profileName string) (*gateway.Server, error) {
	var out *gateway.Server
	err := o.observe(ctx, OpUpdate, label, true, func(ctx context.Context, run *run) error {
		srv, err := o.registry.Resolve(label)
		if err != nil {
			return err
		}
		profile, err := o.registry.Profile(profileName)
		if err != nil {
			return err
		}
		backend := o.selector.Current()
		run.backend(backend.Name)
		if backend.ControlPlane == nil {
			return gateway.Wrap("update", label, gateway.ErrNotConfigured)
		}
		run.logger.Info("applying profile", zap.String("profile", profileName), zap.Stringer("resources", profile))
		out, err = backend.ControlPlane.UpdateServer(ctx, srv.DatacenterID, srv.ServerID, profile)
		return gateway.Wrap("update", label, err)
	}, func(run *run) { run.server = out })
	return out, err
}

// CheckCommand runs command on the server until it exits 0.
func (o *Orchestrator) CheckCommand(ctx context.Context, label, command string) (*gateway.ExecResult, error) {
	var out *gateway.ExecResult
	err := o.observe(ctx, OpCheck, label, true, func(ctx context.Context, run *run) error {
		srv, err := o.registry.Resolve(label)
		if err != nil {
			return err
		}
		backend := o.selector.Current()
		run.backend(backend.Name)
		if backend.SSH == nil {
			return gateway.Wrap("check", label, gateway.ErrNotConfigured)
		}
		target := srv.SSHTarget()
		out, err = poll.CheckCommand(ctx, o.pollOptions(backend, run.logger, label), command,
			func(ctx context.Context, command string) (*gateway.ExecResult, error) {
				return backend.SSH.Exec(ctx, target, command)
			})
		return err
	}, func(run *run) { run.logger.Info("command succeeded") })
	return out, err
}

func (o *Orchestrator) pollOptions(backend Backend, logger *zap.Logger, label string) poll.Options {
	return poll.Options{
		Interval:    backend.Interval,
		MaxAttempts: backend.MaxAttempts,
		Label:       label,
		Logger:      logger,
	}
}

// run carries the per-invocation bookkeeping of observe.
type run struct {
	op     *telemetry.Operation
	logger *zap.Logger
	server *gateway.Server
}

func (r *run) step(ctx context.Context, id string, fn func(context.Context) error) error {
	return r.op.RunStep(ctx, id, fn)
}

func (r *run) backend(name string) {
	r.logger = r.logger.With(zap.String("backend", name))
	r.op.Annotate(attribute.String("pbctl.backend", name))
}

// observe wraps one operation with a span, metrics, logging and, when
// publish is set, an outcome event. onSuccess runs before the event is built.
func (o *Orchestrator) observe(ctx context.Context, op Operation, label string, publish bool,
	fn func(context.Context, *run) error, onSuccess func(*run)) error {
	id := uuid.NewString()
	started := time.Now()

	logger := o.logger.With(zap.String("operation", string(op)), zap.String("id", id))
	if label != "" {
		logger = logger.With(zap.String("label", label))
	}
	r := &run{
		op:     telemetry.Start(ctx, o.tracer, string(op), label),
		logger: logger,
	}

	err := fn(r.op.Context(), r)
	duration := time.Since(started)

	if err != nil {
		r.logger.Error("operation failed", zap.Error(err), zap.Duration("duration", duration))
	} else if onSuccess != nil {
		onSuccess(r)
	}
	r.op.End(err)
	metrics.RecordOperation(string(op), metrics.Result(err), duration.Seconds())

	if publish {
		o.publish(ctx, r, outcomeEvent(id, op, label, r.server, err, duration))
	}
	return err
}

func (o *Orchestrator) publish(ctx context.Context, r *run, ev notify.Event) {
	if err := o.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.Warn("failed to publish outcome", zap.Error(err))
	}
}

// outcomeEvent builds the published outcome of one operation.
func outcomeEvent(id string, op Operation, label string, srv *gateway.Server, err error, duration time.Duration) notify.Event {
	ev := notify.Event{
		ID:        id,
		Operation: string(op),
		Label:     label,
		Success:   err == nil,
		Duration:  duration,
		Time:      time.Now().UTC(),
	}
	if srv != nil {
		ev.Machine = string(srv.State)
		ev.VM = string(srv.VMState)
	}
	if err != nil {
		ev.Error = err.Error()
		var exhausted *poll.PollExhaustedError
		if errors.As(err, &exhausted) {
			ev.Attempts = exhausted.Attempts
		}
	}
	return ev
}
