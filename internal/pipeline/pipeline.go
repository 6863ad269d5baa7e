package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Gh0st0ne/fuzzbench/internal/gcb"

	"go.uber.org/zap"
)

// Runner executes a single build step.
type Runner interface {
	RunStep(ctx context.Context, step gcb.Step) error
}

const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateFailed
)

type node struct {
	id         string
	step       gcb.Step
	depCount   atomic.Int32
	dependents []*node
	state      atomic.Int32
	err        error
	skipOnce   sync.Once
}

// Executor runs a build plan's steps concurrently, releasing each step
// once its wait_for dependencies finished. A step without wait_for
// waits on every earlier step; the start marker releases a step
// immediately.
type Executor struct {
	runner  Runner
	logger  *zap.Logger
	workers int

	wg sync.WaitGroup
}

func NewExecutor(runner Runner, logger *zap.Logger, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		runner:  runner,
		logger:  logger,
		workers: workers,
	}
}

// Run executes the plan and returns the first root cause failure,
// naming every failed step. The plan is validated before anything
// starts.
func (e *Executor) Run(ctx context.Context, build *gcb.Build) error {
	if err := gcb.Validate(build); err != nil {
		return err
	}

	nodes := buildNodes(build.Steps())
	if len(nodes) == 0 {
		return nil
	}

	readyChan := make(chan *node, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			readyChan <- n
			rootCount++
		}
	}
	e.logger.Debug("Starting build plan",
		zap.Int("steps", len(nodes)),
		zap.Int("roots", rootCount),
		zap.Int("workers", e.workers))

	e.wg.Add(len(nodes))
	for i := 0; i < e.workers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)

	var failed []string
	var rootCause error
	for _, n := range nodes {
		if n.state.Load() != stateFailed {
			continue
		}
		e.logger.Error("Step failed", zap.String("step", n.id), zap.Error(n.err))
		if n.err != nil && !strings.HasPrefix(n.err.Error(), "skipped") && !errors.Is(n.err, context.Canceled) {
			failed = append(failed, n.id)
			if rootCause == nil {
				rootCause = n.err
			}
		}
	}

	if rootCause != nil {
		return fmt.Errorf("build plan failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("build plan interrupted: %w", err)
	}
	return nil
}

func (e *Executor) worker(ctx context.Context, readyChan chan *node, cancel context.CancelFunc, workerID int) {
	for n := range readyChan {
		logger := e.logger.With(zap.Int("worker", workerID), zap.String("step", n.id))

		if ctx.Err() != nil {
			n.skipOnce.Do(func() {
				logger.Warn("Context canceled, skipping step")
				n.state.Store(stateFailed)
				n.err = ctx.Err()
				e.wg.Done()
				e.skipDependents(n)
			})
			continue
		}

		logger.Debug("Running step", zap.String("image", n.step.Name))
		n.state.Store(stateRunning)
		err := e.runner.RunStep(ctx, n.step)
		if err != nil {
			logger.Error("Step execution failed", zap.Error(err))
			n.state.Store(stateFailed)
			n.err = err
			cancel()
			e.skipDependents(n)
			e.wg.Done()
			continue
		}

		logger.Debug("Step finished")
		n.state.Store(stateDone)
		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
}

// skipDependents marks everything downstream of a failed step as
// failed so the wait group drains.
func (e *Executor) skipDependents(n *node) {
	for _, dependent := range n.dependents {
		dependent.skipOnce.Do(func() {
			e.logger.Warn("Skipping step, upstream failed",
				zap.String("step", dependent.id),
				zap.String("upstream", n.id))
			dependent.state.Store(stateFailed)
			dependent.err = fmt.Errorf("skipped, upstream step %q failed", n.id)
			e.wg.Done()
			e.skipDependents(dependent)
		})
	}
}

// buildNodes wires the dependency graph the wait_for entries induce.
// Validation already guaranteed every reference names an earlier step.
func buildNodes(steps []gcb.Step) []*node {
	nodes := make([]*node, len(steps))
	byID := make(map[string]*node, len(steps))

	for i, step := range steps {
		id := step.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i)
		}
		nodes[i] = &node{id: id, step: step}
	}

	for i, step := range steps {
		var deps []*node
		if len(step.WaitFor) == 0 {
			deps = nodes[:i]
		} else {
			for _, ref := range step.WaitFor {
				if ref == gcb.StartImmediately {
					continue
				}
				if dep, ok := byID[ref]; ok {
					deps = append(deps, dep)
				}
			}
		}

		seen := make(map[*node]struct{}, len(deps))
		for _, dep := range deps {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			dep.dependents = append(dep.dependents, nodes[i])
			nodes[i].depCount.Add(1)
		}

		if step.ID != "" {
			byID[step.ID] = nodes[i]
		}
	}

	return nodes
}
