package service

import (
	"context"
	"time"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/scheduler"
	"github.com/Gh0st0ne/fuzzbench/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// FinishGracePeriod pads the experiment deadline so trailing
	// measure and report work can drain before the experiment closes.
	FinishGracePeriod = time.Hour
)

// FinishRoutine closes dispatched experiments once their running time
// is up.
type FinishRoutine struct {
	config            *config.AppConfig
	experimentService ExperimentService
	redisClient       *redis.Client
	logger            *zap.Logger
}

func NewFinishRoutine(config *config.AppConfig, s ExperimentService, redisClient *redis.Client, logger *zap.Logger) scheduler.ScheduleRoutine {
	return &FinishRoutine{
		config:            config,
		experimentService: s,
		redisClient:       redisClient,
		logger:            logger,
	}
}

func (r *FinishRoutine) Run() error {
	// Get all broadcasted experiments
	names, err := r.experimentService.GetBroadcastedExperiments()
	if err != nil {
		r.logger.Error("Failed to get broadcasted experiments", zap.Error(err))
		return err
	}

	now := time.Now()
	maxTotalTime := time.Duration(r.config.ExperimentDefaults.MaxTotalTime) * time.Second

	for _, name := range names {
		logger := r.logger.With(zap.String("experiment", name))

		exp, err := r.experimentService.GetExperiment(name)
		if err != nil {
			logger.Error("Failed to get experiment", zap.Error(err))
			continue
		}

		// Errored experiments are not coming back; drop them from the set
		if exp.Status == models.ExperimentStatusErrored {
			if err := r.experimentService.RemoveBroadcastedExperiment(name); err != nil {
				logger.Error("Failed to remove broadcasted experiment", zap.Error(err))
			}
			continue
		}

		if exp.DispatchedAt == nil {
			continue
		}

		// Check if experiment has passed its running time
		deadline := exp.DispatchedAt.Add(maxTotalTime + FinishGracePeriod)
		if deadline.Before(now) {
			r.logger.Info("Experiment passed deadline", zap.String("experiment", name))
			if err := r.setFinishedStatus(name); err != nil {
				logger.Error("Failed to set finished status", zap.Error(err))
				continue
			}

			// Mark as finished
			if err := r.experimentService.MarkExperimentAsFinished(name); err != nil {
				logger.Error("Failed to mark experiment as finished", zap.Error(err))
			}

			// Remove from broadcasted experiments
			if err := r.experimentService.RemoveBroadcastedExperiment(name); err != nil {
				logger.Error("Failed to remove broadcasted experiment", zap.Error(err))
			}
		}
	}

	return nil
}

func (r *FinishRoutine) setFinishedStatus(name string) error {
	err := r.redisClient.Set(
		context.Background(),
		GlobalExperimentStatusKey+":"+name, // e.g., global:experiment_status:<name>
		"finished",
		0,
	).Err()
	if err != nil {
		r.logger.Error("Failed to set finished status", zap.String("experiment", name), zap.Error(err))
		return err
	}
	return nil
}

func (r *FinishRoutine) Cancel() {
}

func (r *FinishRoutine) Name() string {
	return "finish_routine"
}
