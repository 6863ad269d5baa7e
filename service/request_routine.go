package service

import (
	"context"
	"fmt"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/experiment"
	"github.com/Gh0st0ne/fuzzbench/internal/requests"
	"github.com/Gh0st0ne/fuzzbench/internal/scheduler"
	"github.com/Gh0st0ne/fuzzbench/pkg/metrics"
	"github.com/Gh0st0ne/fuzzbench/pkg/telemetry"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	GlobalExperimentStatusKey = "global:experiment_status"
	ExperimentTraceCtxKey     = "global:trace_context:%s"
)

// RequestRoutine watches the experiment requests file and turns entries
// that are not in the database yet into pending experiments.
type RequestRoutine struct {
	config            *config.AppConfig
	experimentService ExperimentService
	redisClient       *redis.Client
	metrics           *metrics.Metrics
	logger            *zap.Logger
	tracerFactory     *telemetry.TracerFactory
}

type RequestRoutineParams struct {
	fx.In

	Config            *config.AppConfig
	ExperimentService ExperimentService
	RedisClient       *redis.Client
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	TracerFactory     *telemetry.TracerFactory
}

func NewRequestRoutine(params RequestRoutineParams) scheduler.ScheduleRoutine {
	return &RequestRoutine{
		config:            params.Config,
		experimentService: params.ExperimentService,
		redisClient:       params.RedisClient,
		metrics:           params.Metrics,
		logger:            params.Logger,
		tracerFactory:     params.TracerFactory,
	}
}

func (r *RequestRoutine) Run() error {
	file, err := requests.Load(r.config.RequestsPath)
	if err != nil {
		r.logger.Error("Failed to load requests file",
			zap.String("path", r.config.RequestsPath),
			zap.Error(err),
		)
		return err
	}

	var knownFuzzers []string
	if r.config.FuzzersDir != "" {
		knownFuzzers, err = experiment.KnownFuzzers(r.config.FuzzersDir)
		if err != nil {
			r.logger.Error("Failed to list known fuzzers",
				zap.String("dir", r.config.FuzzersDir),
				zap.Error(err),
			)
			return err
		}
	}

	if err := requests.Validate(file, knownFuzzers); err != nil {
		r.metrics.ValidationErrors.Inc()
		r.logger.Error("Requests file failed validation",
			zap.String("path", r.config.RequestsPath),
			zap.Error(err),
		)
		return err
	}

	paused := file.Paused()
	if paused {
		r.metrics.ServicePaused.Set(1)
		r.logger.Warn("Requests file carries the pause sentinel, dispatch is paused")
	} else {
		r.metrics.ServicePaused.Set(0)
	}
	if err := r.experimentService.SetPaused(paused); err != nil {
		r.logger.Error("Failed to store pause state", zap.Error(err))
		return err
	}

	names, err := r.experimentService.GetExperimentNames()
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[name] = struct{}{}
	}

	// Entries are newest first; walk backwards so older requests are
	// registered first.
	reqs := file.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		req := reqs[i]
		if _, ok := known[req.Experiment]; ok {
			continue
		}
		if err := r.onRequestReceived(&req); err != nil {
			r.logger.Error("Failed to register experiment request",
				zap.String("experiment", req.Experiment),
				zap.Error(err),
			)
			continue // Skip to the next request if registration fails
		}
	}

	return nil
}

func (r *RequestRoutine) Cancel() {
}

func (r *RequestRoutine) Name() string {
	return "request_routine"
}

func (r *RequestRoutine) onRequestReceived(req *requests.Request) error {
	span := fmt.Sprintf("FuzzBench:Requested:%s", req.Experiment)
	tracer := r.tracerFactory.NewTracer(context.Background(), span)
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Scheduling).
		WithExperiment(req.Experiment).
		WithRequestsFile(r.config.RequestsPath))
	tracer.Start()
	defer tracer.End()

	registered, err := r.experimentService.RegisterRequest(*req)
	if err != nil {
		r.logger.Error("Failed to register experiment", zap.String("experiment", req.Experiment), zap.Error(err))
		tracer.SetStatus(codes.Error, "Failed to register experiment")
		return err
	}
	r.metrics.ExperimentsRequested.Inc()

	// set experiment status as "requested" in redis
	if err := r.setRedisExperimentStatus(registered.Name); err != nil {
		r.logger.Error("Failed to set experiment status in redis", zap.String("experiment", registered.Name), zap.Error(err))
		tracer.SetStatus(codes.Error, "Failed to register experiment")
		return err
	}
	// export the span
	tracingPayload := tracer.Export()
	if err := r.setRedisExperimentTracingContext(registered.Name, tracingPayload); err != nil {
		r.logger.Error("Failed to set experiment tracing context in redis",
			zap.String("experiment", registered.Name),
			zap.Error(err),
		)
		tracer.SetStatus(codes.Error, "Failed to set experiment tracing context")
		return err
	}

	r.logger.Info("Registered experiment request",
		zap.String("experiment", registered.Name),
		zap.Strings("fuzzers", registered.Fuzzers),
		zap.Int("trials", registered.Trials),
	)
	return nil
}

// set experiment status as "requested" in redis
func (r *RequestRoutine) setRedisExperimentStatus(name string) error {
	err := r.redisClient.Set(
		context.Background(),
		GlobalExperimentStatusKey+":"+name, // e.g., global:experiment_status:<name>
		"requested",
		0,
	).Err()
	if err != nil {
		r.logger.Error("Failed to set experiment status in redis",
			zap.String("experiment", name),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *RequestRoutine) setRedisExperimentTracingContext(name, tracingPayload string) error {
	return r.redisClient.Set(
		context.Background(),
		fmt.Sprintf(ExperimentTraceCtxKey, name), // e.g., global:trace_context:<name>
		tracingPayload,
		0,
	).Err()
}
