package gcb

import (
	"fmt"
	"strings"
)

// ValidationError aggregates build plan validation issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "build plan validation failed"
	}
	return "build plan validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// Validate checks the structural invariants of a build plan: every
// step names a builder image, ids are unique, wait_for entries
// reference ids of earlier steps or the start marker, and the explicit
// dependency graph stays acyclic.
func Validate(b *Build) error {
	issues := &ValidationError{}

	if len(b.steps) == 0 {
		issues.Add("build plan has no steps")
	}

	declared := make(map[string]struct{}, len(b.steps))
	adj := make(map[string][]string, len(b.steps))
	for i, step := range b.steps {
		label := step.ID
		if label == "" {
			label = fmt.Sprintf("step[%d]", i)
		}

		if strings.TrimSpace(step.Name) == "" {
			issues.Add(fmt.Sprintf("%s: builder image name is required", label))
		}

		if step.ID != "" {
			if _, dup := declared[step.ID]; dup {
				issues.Add(fmt.Sprintf("duplicate step id %q", step.ID))
			}
		}

		for _, dep := range step.WaitFor {
			if dep == StartImmediately {
				continue
			}
			if dep == step.ID {
				issues.Add(fmt.Sprintf("%s: waits for itself", label))
				continue
			}
			if _, ok := declared[dep]; !ok {
				issues.Add(fmt.Sprintf("%s: wait_for %q does not name an earlier step", label, dep))
				continue
			}
			if step.ID != "" {
				adj[dep] = append(adj[dep], step.ID)
			}
		}

		if step.ID != "" {
			declared[step.ID] = struct{}{}
		}
	}

	if hasCycle(adj, declared) {
		issues.Add("wait_for graph contains a cycle")
	}

	for i, image := range b.images {
		if strings.TrimSpace(image) == "" {
			issues.Add(fmt.Sprintf("images[%d] is empty", i))
		}
	}

	return issues.OrNil()
}

func hasCycle(adj map[string][]string, nodes map[string]struct{}) bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var visit func(string) bool
	visit = func(node string) bool {
		switch state[node] {
		case visiting:
			return true
		case done:
			return false
		}
		state[node] = visiting
		for _, next := range adj[node] {
			if visit(next) {
				return true
			}
		}
		state[node] = done
		return false
	}

	for node := range nodes {
		if state[node] == unvisited {
			if visit(node) {
				return true
			}
		}
	}
	return false
}
