package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/messaging"
	"github.com/Gh0st0ne/fuzzbench/internal/scheduler"
	"github.com/Gh0st0ne/fuzzbench/models"
	"github.com/Gh0st0ne/fuzzbench/pkg/metrics"
	"github.com/Gh0st0ne/fuzzbench/pkg/telemetry"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DispatchRoutine hands pending experiments to the runners: it expands
// them into trials, publishes the trial messages and announces the
// experiment on the broadcast exchange.
type DispatchRoutine struct {
	config            *config.AppConfig
	experimentService ExperimentService
	rabbitMQ          messaging.RabbitMQ
	redisClient       *redis.Client
	metrics           *metrics.Metrics
	logger            *zap.Logger
	tracerFactory     *telemetry.TracerFactory
}

type DispatchRoutineParams struct {
	fx.In

	Config            *config.AppConfig
	ExperimentService ExperimentService
	RabbitMQ          messaging.RabbitMQ
	RedisClient       *redis.Client
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	TracerFactory     *telemetry.TracerFactory
}

func NewDispatchRoutine(params DispatchRoutineParams) scheduler.ScheduleRoutine {
	return &DispatchRoutine{
		config:            params.Config,
		experimentService: params.ExperimentService,
		rabbitMQ:          params.RabbitMQ,
		redisClient:       params.RedisClient,
		metrics:           params.Metrics,
		logger:            params.Logger,
		tracerFactory:     params.TracerFactory,
	}
}

func (r *DispatchRoutine) Run() error {
	paused, err := r.experimentService.IsPaused()
	if err != nil {
		r.logger.Error("Failed to read pause state", zap.Error(err))
		return err
	}
	if paused {
		r.logger.Info("Dispatch is paused, leaving pending experiments alone")
		return nil
	}

	experiments, err := r.experimentService.GetPendingExperiments()
	if err != nil {
		return err
	}

	if batch := r.config.SchedulerConfig.DispatchBatchSize; batch > 0 && len(experiments) > batch {
		experiments = experiments[:batch]
	}

	for _, exp := range experiments {
		if err := r.onExperimentReceived(&exp); err != nil {
			r.logger.Error("Failed to dispatch experiment",
				zap.String("experiment", exp.Name),
				zap.Error(err),
			)
			continue // Skip to the next experiment if dispatching fails
		}
	}

	return nil
}

func (r *DispatchRoutine) Cancel() {
}

func (r *DispatchRoutine) Name() string {
	return "dispatch_routine"
}

func (r *DispatchRoutine) onExperimentReceived(exp *models.Experiment) error {
	span := fmt.Sprintf("FuzzBench:Dispatching:%s", exp.Name)

	// Continue the trace the request routine started, if it survived.
	var tracer telemetry.Tracer
	requestedCtx, err := r.redisClient.Get(
		context.Background(),
		fmt.Sprintf(ExperimentTraceCtxKey, exp.Name),
	).Result()
	if err == nil && requestedCtx != "" {
		tracer = r.tracerFactory.NewTracerSpawnedFrom(context.Background(), requestedCtx, span)
	} else {
		tracer = r.tracerFactory.NewTracer(context.Background(), span)
	}
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Dispatching).
		WithExperiment(exp.Name).
		WithTrialCount(exp.Trials).
		WithDispatchTime(time.Now()))
	tracer.Start()
	defer tracer.End()

	// The dispatch span becomes the experiment's root context; every
	// trial message and the redis copy carry the same payload.
	tracingPayload := tracer.Export()

	if err := r.dispatchExperiment(exp, tracingPayload); err != nil {
		tracer.SetStatus(codes.Error, "Failed to dispatch experiment")
		return err
	}

	// set experiment status as "running" in redis
	if err := r.setRedisExperimentStatus(exp.Name, "running"); err != nil {
		tracer.SetStatus(codes.Error, "Failed to dispatch experiment")
		return err
	}
	if err := r.setRedisExperimentTracingContext(exp.Name, tracingPayload); err != nil {
		r.logger.Error("Failed to set experiment tracing context in redis",
			zap.String("experiment", exp.Name),
			zap.Error(err),
		)
		tracer.SetStatus(codes.Error, "Failed to set experiment tracing context")
		return err
	}

	return nil
}

func (r *DispatchRoutine) dispatchExperiment(exp *models.Experiment, tracingPayload string) error {
	// Check failure count
	failureCount, err := r.experimentService.GetFailureCount(exp.Name)
	if err != nil {
		r.logger.Error("Failed to get failure count",
			zap.String("experiment", exp.Name),
			zap.Error(err))
		return err
	}

	if failureCount >= r.config.SchedulerConfig.MaxDispatchRetries {
		r.logger.Warn("Experiment has failed too many times, marking as errored",
			zap.String("experiment", exp.Name),
			zap.Int("failure_count", failureCount),
		)
		if err := r.experimentService.MarkExperimentAsError(exp.Name); err != nil {
			r.logger.Error("Failed to mark experiment as errored",
				zap.String("experiment", exp.Name),
				zap.Error(err),
			)
			return err
		}
		if err := r.setRedisExperimentStatus(exp.Name, "errored"); err != nil {
			r.logger.Error("Failed to set errored status in redis",
				zap.String("experiment", exp.Name),
				zap.Error(err))
		}
		// Clean up the failure count
		if err := r.experimentService.ResetFailureCount(exp.Name); err != nil {
			r.logger.Error("Failed to reset failure count",
				zap.String("experiment", exp.Name),
				zap.Error(err))
		}
		return fmt.Errorf("experiment %s exceeded %d dispatch attempts", exp.Name, failureCount)
	}

	trials, err := r.experimentService.EnsureTrials(*exp, r.config.Benchmarks)
	if err != nil {
		r.logger.Error("Failed to expand experiment into trials",
			zap.String("experiment", exp.Name),
			zap.Error(err),
		)
		r.incrementFailureCount(exp.Name)
		return err
	}

	if err := r.publishTrials(exp, trials, tracingPayload); err != nil {
		r.logger.Error("Failed to publish trials",
			zap.String("experiment", exp.Name),
			zap.Error(err),
		)
		r.incrementFailureCount(exp.Name)
		return err
	}

	if err := r.broadcastExperiment(exp); err != nil {
		r.logger.Error("Failed to broadcast experiment",
			zap.String("experiment", exp.Name),
			zap.Error(err),
		)
		r.incrementFailureCount(exp.Name)
		return err
	}

	if err := r.experimentService.MarkExperimentAsDispatched(exp.Name); err != nil {
		r.logger.Error("Failed to mark experiment as dispatched",
			zap.String("experiment", exp.Name),
			zap.Error(err),
		)
		r.incrementFailureCount(exp.Name)
		return err
	}

	// Success - remove any failure count
	if err := r.experimentService.ResetFailureCount(exp.Name); err != nil {
		r.logger.Error("Failed to reset failure count",
			zap.String("experiment", exp.Name),
			zap.Error(err))
	}

	r.metrics.ExperimentsDispatched.Inc()
	r.logger.Info("Successfully dispatched experiment",
		zap.String("experiment", exp.Name),
		zap.Int("trials", len(trials)),
	)

	return nil
}

// publishTrials routes one message per trial to the trial queue.
func (r *DispatchRoutine) publishTrials(exp *models.Experiment, trials []models.Trial, tracingPayload string) error {
	ch := r.rabbitMQ.GetChannel()
	defer ch.Close()

	for _, trial := range trials {
		message := messaging.TrialMessage{
			MessageID:    uuid.NewString(),
			Experiment:   exp.Name,
			Fuzzer:       trial.Fuzzer,
			Benchmark:    trial.Benchmark,
			TrialID:      trial.ID,
			MaxTotalTime: r.config.ExperimentDefaults.MaxTotalTime,
			TraceContext: tracingPayload,
		}

		var buffer bytes.Buffer
		encoder := json.NewEncoder(&buffer)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(message); err != nil {
			return err
		}

		err := ch.Publish(
			messaging.DirectExchange, // exchange
			messaging.TrialQueue,     // routing key
			false,                    // mandatory
			false,                    // immediate
			amqp.Publishing{
				ContentType: "application/json",
				Body:        buffer.Bytes(),
			},
		)
		if err != nil {
			return err
		}
		r.metrics.TrialsPublished.Inc()
	}

	return nil
}

// broadcastExperiment announces the experiment to every queue bound to
// the broadcast exchange and remembers it for the finish routine.
func (r *DispatchRoutine) broadcastExperiment(exp *models.Experiment) error {
	message := messaging.ExperimentMessage{
		MessageID:  uuid.NewString(),
		Experiment: exp.Name,
		Fuzzers:    exp.Fuzzers,
		Benchmarks: r.config.Benchmarks,
		Status:     string(models.ExperimentStatusRunning),
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(message); err != nil {
		return err
	}

	ch := r.rabbitMQ.GetChannel()
	defer ch.Close()

	err := ch.Publish(
		messaging.ExperimentBroadcastExchange, // exchange
		"",                                    // routing key
		false,                                 // mandatory
		false,                                 // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        buffer.Bytes(),
		},
	)
	if err != nil {
		return err
	}

	// Save broadcasted experiment to Redis
	if err := r.experimentService.SaveBroadcastedExperiment(exp.Name); err != nil {
		r.logger.Error("Failed to save broadcasted experiment to Redis",
			zap.String("experiment", exp.Name),
			zap.Error(err))
		return err
	}

	return nil
}

func (r *DispatchRoutine) incrementFailureCount(name string) {
	count, err := r.experimentService.IncrementFailureCount(name)
	if err != nil {
		r.logger.Error("Failed to increment failure count",
			zap.String("experiment", name),
			zap.Error(err))
	} else {
		r.logger.Debug("Incremented failure count",
			zap.String("experiment", name),
			zap.Int("count", count))
	}
}

func (r *DispatchRoutine) setRedisExperimentStatus(name, status string) error {
	return r.redisClient.Set(
		context.Background(),
		GlobalExperimentStatusKey+":"+name, // e.g., global:experiment_status:<name>
		status,
		0,
	).Err()
}

func (r *DispatchRoutine) setRedisExperimentTracingContext(name, tracingPayload string) error {
	return r.redisClient.Set(
		context.Background(),
		fmt.Sprintf(ExperimentTraceCtxKey, name), // e.g., global:trace_context:<name>
		tracingPayload,
		0,
	).Err()
}
