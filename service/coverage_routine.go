package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/experiment"
	"github.com/Gh0st0ne/fuzzbench/internal/gcb"
	"github.com/Gh0st0ne/fuzzbench/internal/messaging"
	"github.com/Gh0st0ne/fuzzbench/internal/scheduler"
	"github.com/Gh0st0ne/fuzzbench/models"
	"github.com/Gh0st0ne/fuzzbench/pkg/metrics"
	"github.com/Gh0st0ne/fuzzbench/pkg/telemetry"
	"github.com/Gh0st0ne/fuzzbench/repository"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CoverageStatusKey = "global:coverage_status:%s:%s" // experiment, benchmark
)

// storedPlan is the JSON form of a rendered build plan kept in the
// coverage_builds table.
type storedPlan struct {
	Steps  []gcb.Step `json:"steps"`
	Images []string   `json:"images"`
}

// CoverageRoutine renders one coverage build plan per running
// experiment and benchmark, hands the plans to the builders and
// records the outcomes they report.
type CoverageRoutine struct {
	config            *config.AppConfig
	experimentService ExperimentService
	buildRepo         repository.BuildRepository
	rabbitMQ          messaging.RabbitMQ
	redisClient       *redis.Client
	metrics           *metrics.Metrics
	logger            *zap.Logger
	tracerFactory     *telemetry.TracerFactory
}

type CoverageRoutineParams struct {
	fx.In

	Config            *config.AppConfig
	ExperimentService ExperimentService
	BuildRepo         repository.BuildRepository
	RabbitMQ          messaging.RabbitMQ
	RedisClient       *redis.Client
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	TracerFactory     *telemetry.TracerFactory
}

func NewCoverageRoutine(params CoverageRoutineParams) scheduler.ScheduleRoutine {
	return &CoverageRoutine{
		config:            params.Config,
		experimentService: params.ExperimentService,
		buildRepo:         params.BuildRepo,
		rabbitMQ:          params.RabbitMQ,
		redisClient:       params.RedisClient,
		metrics:           params.Metrics,
		logger:            params.Logger,
		tracerFactory:     params.TracerFactory,
	}
}

func (r *CoverageRoutine) Run() error {
	if err := r.ensureBuildPlans(); err != nil {
		return err
	}
	if err := r.publishPendingBuilds(); err != nil {
		return err
	}
	return r.reconcileRunningBuilds()
}

func (r *CoverageRoutine) Cancel() {
}

func (r *CoverageRoutine) Name() string {
	return "coverage_routine"
}

// ensureBuildPlans renders and stores a plan for every running
// experiment and benchmark pair that does not have one yet.
func (r *CoverageRoutine) ensureBuildPlans() error {
	experiments, err := r.experimentService.GetRunningExperiments()
	if err != nil {
		return err
	}

	for _, exp := range experiments {
		for _, benchmark := range r.config.Benchmarks {
			_, err := r.buildRepo.GetCoverageBuild(exp.ID, benchmark)
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				r.logger.Error("Failed to look up coverage build",
					zap.String("experiment", exp.Name),
					zap.String("benchmark", benchmark),
					zap.Error(err),
				)
				continue
			}
			if err := r.createBuildPlan(&exp, benchmark); err != nil {
				r.logger.Error("Failed to create coverage build plan",
					zap.String("experiment", exp.Name),
					zap.String("benchmark", benchmark),
					zap.Error(err),
				)
				continue
			}
		}
	}

	return nil
}

func (r *CoverageRoutine) createBuildPlan(exp *models.Experiment, benchmark string) error {
	benchmarkConfig, err := experiment.ReadBenchmark(r.config.BenchmarksDir, benchmark)
	if err != nil {
		return err
	}

	plan, err := gcb.CoveragePlan()
	if err != nil {
		return err
	}

	binariesDir := fmt.Sprintf("gs://%s/%s/coverage-binaries", r.config.Filestore.Bucket, exp.Name)
	expanded, err := plan.Expand(gcb.CoverageSubstitutions(
		r.config.DockerRegistry,
		benchmark,
		benchmarkConfig.Project,
		benchmarkConfig.OSSFuzzBuilderHash,
		binariesDir,
	))
	if err != nil {
		return err
	}
	if err := gcb.Validate(expanded); err != nil {
		return err
	}

	raw, err := json.Marshal(storedPlan{Steps: expanded.Steps(), Images: expanded.Images()})
	if err != nil {
		return err
	}

	build := models.CoverageBuild{
		ExperimentID: exp.ID,
		Benchmark:    benchmark,
		Status:       models.BuildStatusPending,
		Plan:         datatypes.JSON(raw),
	}
	if err := r.buildRepo.CreateCoverageBuild(&build); err != nil {
		return err
	}

	r.logger.Info("Planned coverage build",
		zap.String("experiment", exp.Name),
		zap.String("benchmark", benchmark),
		zap.Strings("images", expanded.Images()),
	)
	return nil
}

func (r *CoverageRoutine) publishPendingBuilds() error {
	builds, err := r.buildRepo.GetPendingBuilds()
	if err != nil {
		return err
	}

	for _, build := range builds {
		if err := r.onBuildReceived(&build); err != nil {
			r.logger.Error("Failed to publish coverage build",
				zap.String("experiment", build.Experiment.Name),
				zap.String("benchmark", build.Benchmark),
				zap.Error(err),
			)
			continue // Skip to the next build if publishing fails
		}
	}

	return nil
}

func (r *CoverageRoutine) onBuildReceived(build *models.CoverageBuild) error {
	span := fmt.Sprintf("FuzzBench:CoverageBuild:%s:%s", build.Experiment.Name, build.Benchmark)

	var tracer telemetry.Tracer
	experimentCtx, err := r.redisClient.Get(
		context.Background(),
		fmt.Sprintf(ExperimentTraceCtxKey, build.Experiment.Name),
	).Result()
	if err == nil && experimentCtx != "" {
		tracer = r.tracerFactory.NewTracerSpawnedFrom(context.Background(), experimentCtx, span)
	} else {
		tracer = r.tracerFactory.NewTracer(context.Background(), span)
	}
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.CoverageBuild).
		WithExperiment(build.Experiment.Name).
		WithBenchmark(build.Benchmark))
	tracer.Start()
	defer tracer.End()

	planYAML, images, err := r.renderPlan(build)
	if err != nil {
		tracer.SetStatus(codes.Error, "Failed to render build plan")
		return err
	}
	tracer.WithAttributes(telemetry.EmptySpanAttributes().WithBuildImages(images))

	if err := r.publishBuild(build, planYAML, tracer.Export()); err != nil {
		tracer.SetStatus(codes.Error, "Failed to publish build plan")
		return err
	}

	if err := r.buildRepo.UpdateBuildStatus(build.ID, models.BuildStatusRunning); err != nil {
		tracer.SetStatus(codes.Error, "Failed to mark build as running")
		return err
	}
	r.metrics.CoverageBuilds.WithLabelValues("published").Inc()

	return nil
}

// renderPlan turns the stored plan back into the yaml the builders run.
func (r *CoverageRoutine) renderPlan(build *models.CoverageBuild) ([]byte, []string, error) {
	var stored storedPlan
	if err := json.Unmarshal(build.Plan, &stored); err != nil {
		return nil, nil, fmt.Errorf("failed to decode stored plan: %w", err)
	}
	plan, err := gcb.New(stored.Steps, stored.Images)
	if err != nil {
		return nil, nil, err
	}
	data, err := plan.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return data, stored.Images, nil
}

func (r *CoverageRoutine) publishBuild(build *models.CoverageBuild, planYAML []byte, tracingPayload string) error {
	message := messaging.CoverageBuildMessage{
		MessageID:    uuid.NewString(),
		Experiment:   build.Experiment.Name,
		Benchmark:    build.Benchmark,
		Plan:         string(planYAML),
		TraceContext: tracingPayload,
	}

	// figure out the priority
	var priority uint8
	switch build.Experiment.Type {
	case models.ExperimentTypeBug:
		priority = 4
	default:
		priority = 3
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(message); err != nil {
		return err
	}

	ch := r.rabbitMQ.GetChannel()
	defer ch.Close()

	return ch.Publish(
		messaging.DirectExchange,     // exchange
		messaging.CoverageBuildQueue, // routing key
		false,                        // mandatory
		false,                        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        buffer.Bytes(),
			Priority:    priority,
		},
	)
}

// reconcileRunningBuilds folds the outcomes builders report through
// redis back into the coverage_builds table.
func (r *CoverageRoutine) reconcileRunningBuilds() error {
	builds, err := r.buildRepo.GetRunningBuilds()
	if err != nil {
		return err
	}

	for _, build := range builds {
		key := fmt.Sprintf(CoverageStatusKey, build.Experiment.Name, build.Benchmark)
		status, err := r.redisClient.Get(context.Background(), key).Result()
		if err == redis.Nil {
			continue // still building
		}
		if err != nil {
			r.logger.Error("Failed to read coverage build status",
				zap.String("experiment", build.Experiment.Name),
				zap.String("benchmark", build.Benchmark),
				zap.Error(err),
			)
			continue
		}

		var finished models.BuildStatusEnum
		switch status {
		case "succeeded":
			finished = models.BuildStatusSucceeded
		case "failed":
			finished = models.BuildStatusFailed
		default:
			r.logger.Warn("Unknown coverage build status",
				zap.String("experiment", build.Experiment.Name),
				zap.String("benchmark", build.Benchmark),
				zap.String("status", status),
			)
			continue
		}

		if err := r.buildRepo.MarkBuildFinished(build.ID, finished, time.Now()); err != nil {
			r.logger.Error("Failed to mark coverage build as finished",
				zap.String("experiment", build.Experiment.Name),
				zap.String("benchmark", build.Benchmark),
				zap.Error(err),
			)
			continue
		}
		r.metrics.CoverageBuilds.WithLabelValues(string(finished)).Inc()

		if err := r.redisClient.Del(context.Background(), key).Err(); err != nil {
			r.logger.Error("Failed to clear coverage build status",
				zap.String("experiment", build.Experiment.Name),
				zap.String("benchmark", build.Benchmark),
				zap.Error(err),
			)
		}

		r.logger.Info("Coverage build finished",
			zap.String("experiment", build.Experiment.Name),
			zap.String("benchmark", build.Benchmark),
			zap.String("status", string(finished)),
		)
	}

	return nil
}
