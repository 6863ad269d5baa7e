package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"

	"github.com/Gh0st0ne/fuzzbench/internal/gcb"

	"go.uber.org/zap"
)

// DockerRunner executes build steps as containers on the local docker
// daemon. The daemon socket is mounted into every step so docker
// builder steps can drive the host daemon, the way the hosted build
// service does it.
type DockerRunner struct {
	logger    *zap.Logger
	workspace string // host directory mounted at /workspace
}

func NewDockerRunner(logger *zap.Logger, workspace string) *DockerRunner {
	return &DockerRunner{
		logger:    logger,
		workspace: workspace,
	}
}

// CheckDocker verifies that the local docker daemon answers.
func CheckDocker(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker not available: %w", err)
	}
	return nil
}

func (r *DockerRunner) RunStep(ctx context.Context, step gcb.Step) error {
	workdir := "/workspace"
	if step.Dir != "" {
		workdir = path.Join(workdir, step.Dir)
	}

	args := []string{
		"run", "--rm",
		"-v", r.workspace + ":/workspace",
		"-v", "/var/run/docker.sock:/var/run/docker.sock",
		"-w", workdir,
	}
	for _, env := range step.Env {
		args = append(args, "-e", env)
	}
	if step.Entrypoint != "" {
		args = append(args, "--entrypoint", step.Entrypoint)
	}
	args = append(args, step.Name)
	args = append(args, step.Args...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	r.logger.Debug("Running step container", zap.String("command", cmd.String()))

	if err := cmd.Run(); err != nil {
		label := step.ID
		if label == "" {
			label = step.Name
		}
		return fmt.Errorf("run step %s: %w", label, err)
	}
	return nil
}
