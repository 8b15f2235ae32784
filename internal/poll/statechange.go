package poll

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/util/retry"
)

// Target is the effective state a tracked operation must reach.
type Target struct {
	Machine gateway.MachineState
	Server  gateway.ServerState
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.Machine, t.Server)
}

// QueryFunc fetches the current server snapshot.
type QueryFunc func(ctx context.Context) (*gateway.Server, error)

// StateChange polls query until the returned snapshot matches target and
// returns that snapshot. A failed query is logged, consumes an attempt and
// polling continues, unless the error is a gateway.PermanentError, which ends
// polling at once. The PollExhaustedError carries the error of the final
// attempt.
func StateChange(ctx context.Context, opts Options, target Target, query QueryFunc) (*gateway.Server, error) {
	s := NewSession(KindState, opts)
	logger := s.logger.With(zap.Stringer("target", target))

	var final *gateway.Server
	err := s.Run(ctx, func(ctx context.Context, attempt int) (bool, error) {
		srv, err := query(ctx)
		if err != nil {
			logger.Error("state query failed", zap.Int("attempt", attempt), zap.Error(err))
			if gateway.IsPermanent(err) {
				return false, retry.Fatal(err)
			}
			return false, err
		}

		logger.Debug("server state",
			zap.Int("attempt", attempt),
			zap.String("machine", string(srv.State)),
			zap.String("vm", string(srv.VMState)),
		)
		if !srv.Matches(target.Machine, target.Server) {
			return false, nil
		}
		final = srv
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}
