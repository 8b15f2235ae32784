// Package handlers implements the pbctl commands.
//
// Each handler builds a session from the global options (configuration,
// logger, backend, tracer, notifier), runs one orchestrator operation and
// renders the outcome as styled text or JSON.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/lifecycle"
	"github.com/imamik/pbctl/internal/logging"
	"github.com/imamik/pbctl/internal/metrics"
	"github.com/imamik/pbctl/internal/notify"
	"github.com/imamik/pbctl/internal/platform/hcloud"
	"github.com/imamik/pbctl/internal/platform/ionos"
	"github.com/imamik/pbctl/internal/platform/ssh"
	"github.com/imamik/pbctl/internal/simulator"
	"github.com/imamik/pbctl/internal/telemetry"
)

// Backend flag values.
const (
	BackendLive = "live"
	BackendSim  = "sim"
)

// FreeSWITCHStatusCommand is the check run by check-fs.
const FreeSWITCHStatusCommand = "service freeswitch status"

// Options holds the global flags.
type Options struct {
	ConfigPath  string
	Backend     string
	SimOutcomes string
	SimLatency  time.Duration
	SimStateDir string
	Verbose     bool
	JSON        bool
	Trace       bool
	MetricsFile string
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	output    io.Writer = os.Stdout
	logOutput io.Writer = os.Stderr

	loadConfigFile = config.LoadFile

	newControlPlane = func(cfg *config.Config) (gateway.ControlPlane, error) {
		switch cfg.Provider {
		case config.ProviderHCloud:
			if cfg.HCloud.Token == "" {
				return nil, errors.New("hcloud token not set (use hcloud.token or HCLOUD_TOKEN)")
			}
			return hcloud.NewClient(cfg.HCloud.Token), nil
		default:
			if cfg.IONOS.Username == "" || cfg.IONOS.Password == "" {
				return nil, errors.New("IONOS credentials not set (use ionos.username/password or IONOS_USERNAME/IONOS_PASSWORD)")
			}
			return ionos.NewClient(cfg.IONOS), nil
		}
	}

	newSSH = func(timeouts *config.Timeouts, logger *zap.Logger) gateway.SSH {
		return ssh.NewClient(ssh.Config{
			DialTimeout: timeouts.SSHDialTimeout,
			Logger:      logger.Named("ssh"),
		})
	}

	connectNotifier = func(url, subject string, logger *zap.Logger) (notify.Publisher, error) {
		return notify.Connect(url, subject, logger)
	}
)

// session is everything one command invocation needs.
type session struct {
	opts    *Options
	orch    *lifecycle.Orchestrator
	logger  *zap.Logger
	closers []func()
}

// newSession loads the configuration and wires the orchestrator to the
// backend selected by opts. extra options are applied last.
func newSession(ctx context.Context, opts *Options, extra ...lifecycle.Option) (*session, error) {
	logger := logging.New(logOutput, opts.Verbose)
	s := &session{opts: opts, logger: logger}

	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	registry := config.NewRegistry(cfg)
	for _, problem := range registry.Problems() {
		logger.Debug("server not usable", zap.Error(problem))
	}

	timeouts := config.LoadTimeouts(cfg.Polling)
	live := lifecycle.Backend{
		MaxAttempts: timeouts.MaxPollAttempts,
		Interval:    timeouts.PollInterval,
	}

	switch opts.Backend {
	case BackendLive, "":
		cp, err := newControlPlane(cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		live.ControlPlane = cp
		live.SSH = newSSH(timeouts, logger)
	case BackendSim:
	default:
		s.Close()
		return nil, fmt.Errorf("unknown backend %q (use %s or %s)", opts.Backend, BackendLive, BackendSim)
	}

	selector := lifecycle.NewSelector(live)
	if opts.Backend == BackendSim {
		sim, err := s.newSimulator(ctx, registry)
		if err != nil {
			s.Close()
			return nil, err
		}
		selector.UseSimulated(sim)
	}

	orchOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithPublisher(s.newPublisher(cfg.Notify)),
	}
	if opts.Trace {
		tracer, shutdown, err := telemetry.Setup(logOutput)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}
		s.closers = append(s.closers, func() { _ = shutdown(context.Background()) })
		orchOpts = append(orchOpts, lifecycle.WithTracer(tracer))
	}

	s.orch = lifecycle.New(registry, selector, append(orchOpts, extra...)...)
	return s, nil
}

func (s *session) newSimulator(ctx context.Context, registry *config.Registry) (*simulator.Simulator, error) {
	outcomes, err := simulator.ParseOutcomes(s.opts.SimOutcomes)
	if err != nil {
		return nil, err
	}

	var store simulator.Store = simulator.NewMemoryStore()
	if s.opts.SimStateDir != "" {
		store, err = simulator.OpenBadgerStore(s.opts.SimStateDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open simulator state: %w", err)
		}
	}

	sim := simulator.New(simulator.Options{
		Latency:  s.opts.SimLatency,
		Outcomes: outcomes,
		Store:    store,
		Logger:   s.logger,
	})
	s.closers = append(s.closers, func() { _ = sim.Close() })

	if err := lifecycle.SeedSimulator(ctx, sim, registry); err != nil {
		return nil, err
	}
	s.logger.Debug("using simulated backend",
		zap.Stringer("outcomes", outcomes),
		zap.Duration("latency", s.opts.SimLatency),
	)
	return sim, nil
}

func (s *session) newPublisher(cfg config.NotifyConfig) notify.Publisher {
	if cfg.NATSURL == "" {
		return notify.Nop{}
	}
	pub, err := connectNotifier(cfg.NATSURL, cfg.Subject, s.logger.Named("notify"))
	if err != nil {
		s.logger.Warn("event publishing disabled", zap.Error(err))
		return notify.Nop{}
	}
	s.closers = append(s.closers, pub.Close)
	return pub
}

// Close releases the session's resources, writes the metrics file and
// flushes the logger. newSession calls it on every error path.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil

	if s.opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(s.opts.MetricsFile); err != nil {
			s.logger.Warn("failed to write metrics file", zap.String("path", s.opts.MetricsFile), zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}
