package async

import (
	"context"
	"errors"
	"fmt"
)

// Task is a named unit of work.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel runs tasks concurrently, at most limit at a time (limit <= 0
// means no limit), and waits for all of them. Failures are joined in task
// order, each prefixed with its task name.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "serverLabelOne", Func: startOne},
//	    {Name: "serverLabelTwo", Func: startTwo},
//	}
//	if err := RunParallel(ctx, tasks, 0); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task, limit int) error {
	if len(tasks) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}

	type result struct {
		index int
		err   error
	}

	sem := make(chan struct{}, limit)
	resultChan := make(chan result, len(tasks))

	for i, task := range tasks {
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			resultChan <- result{index: i, err: task.Func(ctx)}
		}()
	}

	errs := make([]error, len(tasks))
	for range len(tasks) {
		res := <-resultChan
		if res.err != nil {
			errs[res.index] = fmt.Errorf("%s: %w", tasks[res.index].Name, res.err)
		}
	}

	return errors.Join(errs...)
}
