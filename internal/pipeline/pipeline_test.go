package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gh0st0ne/fuzzbench/internal/gcb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu    sync.Mutex
	order []string
	fail  map[string]error
	hooks map[string]func(ctx context.Context) error
}

func (r *fakeRunner) RunStep(ctx context.Context, step gcb.Step) error {
	r.mu.Lock()
	r.order = append(r.order, step.ID)
	r.mu.Unlock()

	if hook := r.hooks[step.ID]; hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return r.fail[step.ID]
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func mustBuild(t *testing.T, steps []gcb.Step) *gcb.Build {
	t.Helper()
	b, err := gcb.New(steps, nil)
	require.NoError(t, err)
	return b
}

func TestRunRespectsWaitFor(t *testing.T) {
	build := mustBuild(t, []gcb.Step{
		{ID: "a", Name: "img", WaitFor: []string{gcb.StartImmediately}},
		{ID: "b", Name: "img", WaitFor: []string{"a"}},
		{ID: "c", Name: "img", WaitFor: []string{"a"}},
		{ID: "d", Name: "img", WaitFor: []string{"b", "c"}},
	})

	runner := &fakeRunner{}
	exec := NewExecutor(runner, zap.NewNop(), 4)
	require.NoError(t, exec.Run(context.Background(), build))

	order := runner.ran()
	require.Len(t, order, 4)
	assert.Less(t, indexOf(order, "a"), indexOf(order, "b"))
	assert.Less(t, indexOf(order, "a"), indexOf(order, "c"))
	assert.Less(t, indexOf(order, "b"), indexOf(order, "d"))
	assert.Less(t, indexOf(order, "c"), indexOf(order, "d"))
}

func TestRunImplicitWaitAll(t *testing.T) {
	// no wait_for means each step waits on every earlier one
	build := mustBuild(t, []gcb.Step{
		{ID: "first", Name: "img"},
		{ID: "second", Name: "img"},
		{ID: "third", Name: "img"},
	})

	runner := &fakeRunner{}
	exec := NewExecutor(runner, zap.NewNop(), 4)
	require.NoError(t, exec.Run(context.Background(), build))

	assert.Equal(t, []string{"first", "second", "third"}, runner.ran())
}

func TestRunStartMarkerReleasesStep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// both steps must be in flight at once or the barrier deadlocks
	// and the context expires
	var barrier sync.WaitGroup
	barrier.Add(2)
	meet := func(ctx context.Context) error {
		barrier.Done()
		done := make(chan struct{})
		go func() {
			barrier.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	build := mustBuild(t, []gcb.Step{
		{ID: "long", Name: "img"},
		{ID: "eager", Name: "img", WaitFor: []string{gcb.StartImmediately}},
	})

	runner := &fakeRunner{hooks: map[string]func(context.Context) error{
		"long":  meet,
		"eager": meet,
	}}
	exec := NewExecutor(runner, zap.NewNop(), 2)
	require.NoError(t, exec.Run(ctx, build))
}

func TestRunFailureSkipsDependents(t *testing.T) {
	build := mustBuild(t, []gcb.Step{
		{ID: "a", Name: "img", WaitFor: []string{gcb.StartImmediately}},
		{ID: "b", Name: "img", WaitFor: []string{"a"}},
		{ID: "c", Name: "img", WaitFor: []string{"b"}},
	})

	errBoom := errors.New("builder exploded")
	runner := &fakeRunner{fail: map[string]error{"b": errBoom}}
	exec := NewExecutor(runner, zap.NewNop(), 2)

	err := exec.Run(context.Background(), build)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "build plan failed for b")

	order := runner.ran()
	assert.Equal(t, -1, indexOf(order, "c"), "downstream step must be skipped, ran %v", order)
}

func TestRunRejectsInvalidPlan(t *testing.T) {
	build := mustBuild(t, []gcb.Step{
		{ID: "a", Name: "img", WaitFor: []string{"later"}},
		{ID: "later", Name: "img"},
	})

	runner := &fakeRunner{}
	exec := NewExecutor(runner, zap.NewNop(), 2)

	err := exec.Run(context.Background(), build)
	require.Error(t, err)
	assert.ErrorContains(t, err, "does not name an earlier step")
	assert.Empty(t, runner.ran(), "nothing may run when the plan is invalid")
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	build := mustBuild(t, []gcb.Step{
		{ID: "a", Name: "img"},
	})

	runner := &fakeRunner{hooks: map[string]func(context.Context) error{
		"a": func(ctx context.Context) error { return ctx.Err() },
	}}
	exec := NewExecutor(runner, zap.NewNop(), 1)

	err := exec.Run(ctx, build)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
