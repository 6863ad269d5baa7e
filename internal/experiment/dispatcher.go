package experiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// dispatcherCommand bootstraps the dispatcher inside its container:
// pull the experiment input from the filestore, unpack the source tree
// and hand over to the dispatcher process. A shell opens on failure so
// the run can be inspected.
const dispatcherCommand = `rsync -r "${EXPERIMENT_FILESTORE}/${EXPERIMENT}/input/" ${WORK} && ` +
	`mkdir ${WORK}/src && ` +
	`tar -xvzf ${WORK}/src.tar.gz -C ${WORK}/src && ` +
	`PYTHONPATH=${WORK}/src ${WORK}/src/experiment/dispatcher.py || ` +
	`/bin/bash`

// Dispatcher launches the experiment runner for a materialized config.
type Dispatcher interface {
	CreateAsync(ctx context.Context) error
	Start(ctx context.Context) error
}

// NewDispatcher picks the dispatcher implementation for a config.
// Cloud experiments are dispatched by the hosted deployment, not from
// here.
func NewDispatcher(config *PlatformConfig, logger *zap.Logger) (Dispatcher, error) {
	if config.LocalExperiment {
		return &LocalDispatcher{config: config, logger: logger}, nil
	}
	return nil, errors.New("cloud experiments are dispatched by the deployment, set local_experiment: true to run here")
}

// LocalDispatcher runs the dispatcher container against the local
// docker daemon with posix filestores.
type LocalDispatcher struct {
	config *PlatformConfig
	logger *zap.Logger
}

// CreateAsync is a noop for local experiments, there is no instance to
// provision.
func (d *LocalDispatcher) CreateAsync(ctx context.Context) error {
	return nil
}

func (d *LocalDispatcher) Start(ctx context.Context) error {
	filestorePath, err := filepath.Abs(d.config.ExperimentFilestore)
	if err != nil {
		return fmt.Errorf("resolve experiment filestore: %w", err)
	}
	if err := os.MkdirAll(filestorePath, 0o755); err != nil {
		return fmt.Errorf("create experiment filestore: %w", err)
	}

	registry := "gcr.io/fuzzbench"
	if d.config.CloudProject != "" {
		registry = "gcr.io/" + d.config.CloudProject
	}
	instanceName := "d-" + d.config.Experiment

	args := []string{
		"run",
		"--rm",
		"-v", "/var/run/docker.sock:/var/run/docker.sock",
		"-v", fmt.Sprintf("%s:%s", d.config.ExperimentFilestore, d.config.ExperimentFilestore),
		"-v", fmt.Sprintf("%s:%s", d.config.ReportFilestore, d.config.ReportFilestore),
		"-e", "INSTANCE_NAME=" + instanceName,
		"-e", "EXPERIMENT=" + d.config.Experiment,
		"-e", "CLOUD_PROJECT=" + d.config.CloudProject,
		"-e", fmt.Sprintf("SQL_DATABASE_URL=sqlite:///%s", filepath.Join(filestorePath, "local.db")),
		"-e", "EXPERIMENT_FILESTORE=" + d.config.ExperimentFilestore,
		"-e", "REPORT_FILESTORE=" + d.config.ReportFilestore,
		"-e", "LOCAL_EXPERIMENT=True",
		"--cap-add=SYS_PTRACE",
		"--cap-add=SYS_NICE",
		"--name=dispatcher-container",
		registry + "/dispatcher-image",
		"/bin/bash",
		"-c",
		dispatcherCommand,
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	d.logger.Info("Starting local dispatcher",
		zap.String("experiment", d.config.Experiment),
		zap.String("instance", instanceName))
	d.logger.Debug("Dispatcher command", zap.String("command", cmd.String()))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run dispatcher container: %w", err)
	}
	return nil
}
