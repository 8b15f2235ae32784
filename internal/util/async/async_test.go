package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallel_Success(t *testing.T) {
	t.Parallel()
	var count atomic.Int32

	tasks := make([]Task, 3)
	for i := range tasks {
		tasks[i] = Task{Name: "task", Func: func(context.Context) error {
			count.Add(1)
			return nil
		}}
	}

	require.NoError(t, RunParallel(context.Background(), tasks, 0))
	assert.Equal(t, int32(3), count.Load())
}

func TestRunParallel_EmptyTasks(t *testing.T) {
	t.Parallel()
	assert.NoError(t, RunParallel(context.Background(), nil, 0))
	assert.NoError(t, RunParallel(context.Background(), []Task{}, 2))
}

func TestRunParallel_JoinsErrorsInTaskOrder(t *testing.T) {
	t.Parallel()
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")

	tasks := []Task{
		{Name: "first", Func: func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return err1
		}},
		{Name: "ok", Func: func(context.Context) error { return nil }},
		{Name: "second", Func: func(context.Context) error { return err2 }},
	}

	err := RunParallel(context.Background(), tasks, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
	assert.Equal(t, "first: error 1\nsecond: error 2", err.Error())
}

func TestRunParallel_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []Task{
		{Name: "task", Func: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		}},
	}

	err := RunParallel(ctx, tasks, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunParallel_WaitsForAllTasks(t *testing.T) {
	t.Parallel()
	var completed atomic.Int32

	tasks := []Task{
		{Name: "fast-fail", Func: func(context.Context) error {
			return errors.New("fast fail")
		}},
		{Name: "slow-1", Func: func(context.Context) error {
			time.Sleep(30 * time.Millisecond)
			completed.Add(1)
			return nil
		}},
		{Name: "slow-2", Func: func(context.Context) error {
			time.Sleep(30 * time.Millisecond)
			completed.Add(1)
			return nil
		}},
	}

	require.Error(t, RunParallel(context.Background(), tasks, 0))
	assert.Equal(t, int32(2), completed.Load())
}

func TestRunParallel_Limit(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name  string
		limit int
		want  int32
	}{
		{name: "unlimited", limit: 0, want: 5},
		{name: "two", limit: 2, want: 2},
		{name: "above task count", limit: 10, want: 5},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var peak, current atomic.Int32

			tasks := make([]Task, 5)
			for i := range tasks {
				tasks[i] = Task{Name: "task", Func: func(context.Context) error {
					c := current.Add(1)
					for {
						old := peak.Load()
						if c <= old || peak.CompareAndSwap(old, c) {
							break
						}
					}
					time.Sleep(30 * time.Millisecond)
					current.Add(-1)
					return nil
				}}
			}

			require.NoError(t, RunParallel(context.Background(), tasks, tt.limit))
			assert.Equal(t, tt.want, peak.Load())
		})
	}
}
