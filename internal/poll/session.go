package poll

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/metrics"
	"github.com/imamik/pbctl/internal/util/retry"
)

// Kind names what a session confirms.
type Kind string

// Session kinds.
const (
	KindState   Kind = "state"
	KindCommand Kind = "command"
)

// Session results reported to metrics.
const (
	resultConverged = "converged"
	resultExhausted = "exhausted"
	resultAborted   = "aborted"
	resultCancelled = "cancelled"
)

// Options tunes a poll session. Zero values fall back to the configured defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Label       string
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = config.DefaultPollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = config.DefaultMaxPollAttempts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Probe performs one attempt. It returns done=true once the target
// condition holds. A non-nil error counts as a failed attempt; errors marked
// with retry.Fatal end the session.
type Probe func(ctx context.Context, attempt int) (done bool, err error)

// Session is one bounded confirmation loop.
type Session struct {
	ID          string
	Kind        Kind
	Label       string
	Interval    time.Duration
	MaxAttempts int

	attempt int
	logger  *zap.Logger
}

// NewSession creates a session of the given kind.
func NewSession(kind Kind, opts Options) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Session{
		ID:          id,
		Kind:        kind,
		Label:       opts.Label,
		Interval:    opts.Interval,
		MaxAttempts: opts.MaxAttempts,
		logger: opts.Logger.With(
			zap.String("session", id),
			zap.String("kind", string(kind)),
			zap.String("label", opts.Label),
		),
	}
}

// Attempt returns the number of probes run so far.
func (s *Session) Attempt() int {
	return s.attempt
}

// Run probes immediately, then once per interval, until probe reports done,
// MaxAttempts probes have failed, or ctx is cancelled. A probe error marked
// with retry.Fatal ends the session with the unwrapped error. The ticker is
// stopped on every return path.
func (s *Session) Run(ctx context.Context, probe Probe) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	var last error
	for {
		s.attempt++
		metrics.RecordPollAttempt(string(s.Kind))

		done, err := probe(ctx, s.attempt)
		if done {
			s.logger.Debug("poll converged", zap.Int("attempt", s.attempt))
			metrics.RecordPollSession(string(s.Kind), resultConverged)
			return nil
		}
		if ctx.Err() != nil {
			metrics.RecordPollSession(string(s.Kind), resultCancelled)
			return ctx.Err()
		}
		var fatal *retry.FatalError
		if errors.As(err, &fatal) {
			s.logger.Debug("poll aborted", zap.Int("attempt", s.attempt), zap.Error(fatal.Err))
			metrics.RecordPollSession(string(s.Kind), resultAborted)
			return fatal.Err
		}
		last = err

		if s.attempt >= s.MaxAttempts {
			s.logger.Warn("poll attempts exhausted", zap.Int("attempts", s.attempt))
			metrics.RecordPollSession(string(s.Kind), resultExhausted)
			return &PollExhaustedError{Kind: s.Kind, Label: s.Label, Attempts: s.attempt, Last: last}
		}

		select {
		case <-ctx.Done():
			metrics.RecordPollSession(string(s.Kind), resultCancelled)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
