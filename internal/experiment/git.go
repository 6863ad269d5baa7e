package experiment

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitHash returns the hash of the last commit in dir.
func GitHash(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CheckNoLocalChanges fails when dir carries uncommitted changes, so
// an experiment always runs against a reproducible tree.
func CheckNoLocalChanges(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "diff")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("git diff: %w", err)
	}
	if len(strings.TrimSpace(string(output))) > 0 {
		return fmt.Errorf("local uncommitted changes found in %s", dir)
	}
	return nil
}
