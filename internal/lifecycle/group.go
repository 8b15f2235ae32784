package lifecycle

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/imamik/pbctl/internal/gateway"
	"github.com/imamik/pbctl/internal/util/async"
)

// GroupResult is the outcome of a group operation on one server.
type GroupResult struct {
	Label  string
	Server *gateway.Server
	Err    error
}

// RunGroup runs the tracked operation op on every server of the named group
// in parallel. It returns one result per server in group order, and the
// failures joined into a single error.
func (o *Orchestrator) RunGroup(ctx context.Context, group string, op Operation) ([]GroupResult, error) {
	labels, err := o.registry.Group(group)
	if err != nil {
		return nil, err
	}
	fn, err := o.Tracked(op)
	if err != nil {
		return nil, err
	}

	o.logger.Info("running group operation",
		zap.String("group", group),
		zap.String("operation", string(op)),
		zap.Int("servers", len(labels)),
	)

	var mu sync.Mutex
	results := make([]GroupResult, len(labels))
	tasks := make([]async.Task, len(labels))
	for i, label := range labels {
		tasks[i] = async.Task{
			Name: label,
			Func: func(ctx context.Context) error {
				srv, err := fn(ctx, label)
				mu.Lock()
				results[i] = GroupResult{Label: label, Server: srv, Err: err}
				mu.Unlock()
				return err
			},
		}
	}

	err = async.RunParallel(ctx, tasks, o.groupLimit)
	return results, err
}
