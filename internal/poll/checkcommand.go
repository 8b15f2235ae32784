package poll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imamik/pbctl/internal/gateway"
)

// ExecFunc runs command on the remote host once.
type ExecFunc func(ctx context.Context, command string) (*gateway.ExecResult, error)

// AttemptTimeout bounds a single SSH attempt strictly below one interval.
func AttemptTimeout(interval time.Duration) time.Duration {
	if interval <= 2*time.Second {
		return interval / 2
	}
	return interval - time.Second
}

// CheckCommand runs command once per interval until it exits 0 and returns
// that result. Non-zero exits and connection failures are logged at debug
// level and count against the same attempt budget.
func CheckCommand(ctx context.Context, opts Options, command string, exec ExecFunc) (*gateway.ExecResult, error) {
	s := NewSession(KindCommand, opts)
	timeout := AttemptTimeout(s.Interval)
	logger := s.logger.With(zap.String("command", command))

	var final *gateway.ExecResult
	err := s.Run(ctx, func(ctx context.Context, attempt int) (bool, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, err := exec(attemptCtx, command)
		if err != nil {
			logger.Debug("ssh attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return false, err
		}
		if res.ExitCode != 0 {
			logger.Debug("command not ready",
				zap.Int("attempt", attempt),
				zap.Int("exit_code", res.ExitCode),
			)
			return false, fmt.Errorf("command exited with status %d", res.ExitCode)
		}
		final = res
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}
