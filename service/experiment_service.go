package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/requests"
	"github.com/Gh0st0ne/fuzzbench/models"
	"github.com/Gh0st0ne/fuzzbench/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	DispatchFailureCountKey   = "scheduler:dispatch_failure_count"
	BroadcastedExperimentsKey = "scheduler:broadcasted_experiments"
	ServicePausedKey          = "scheduler:service_paused"
)

type ExperimentService interface {
	// New experiments
	GetPendingExperiments() ([]models.Experiment, error)
	GetRunningExperiments() ([]models.Experiment, error)
	GetExperimentNames() ([]string, error)
	GetExperiment(name string) (models.Experiment, error)
	RegisterRequest(req requests.Request) (models.Experiment, error)
	// modify the status of the experiment
	MarkExperimentAsDispatched(name string) error
	MarkExperimentAsError(name string) error
	MarkExperimentAsFinished(name string) error
	// trial expansion
	EnsureTrials(experiment models.Experiment, benchmarks []string) ([]models.Trial, error)
	// pause sentinel state
	SetPaused(paused bool) error
	IsPaused() (bool, error)
	// failure count
	IncrementFailureCount(name string) (int, error)
	GetFailureCount(name string) (int, error)
	ResetFailureCount(name string) error
	// Broadcasted experiment management
	SaveBroadcastedExperiment(name string) error
	GetBroadcastedExperiments() ([]string, error)
	RemoveBroadcastedExperiment(name string) error
}

type ExperimentServiceParams struct {
	fx.In

	ExperimentRepo repository.ExperimentRepository
	Config         *config.AppConfig
	Logger         *zap.Logger
	RedisClient    *redis.Client
}

type ExperimentServiceImpl struct {
	experimentRepo repository.ExperimentRepository
	defaults       config.ExperimentDefaults
	logger         *zap.Logger
	redisClient    *redis.Client
}

func NewExperimentService(params ExperimentServiceParams) ExperimentService {
	return &ExperimentServiceImpl{
		experimentRepo: params.ExperimentRepo,
		defaults:       params.Config.ExperimentDefaults,
		logger:         params.Logger,
		redisClient:    params.RedisClient,
	}
}

func (s *ExperimentServiceImpl) GetPendingExperiments() ([]models.Experiment, error) {
	return s.experimentRepo.GetPendingExperiments()
}

func (s *ExperimentServiceImpl) GetRunningExperiments() ([]models.Experiment, error) {
	return s.experimentRepo.GetRunningExperiments()
}

func (s *ExperimentServiceImpl) GetExperimentNames() ([]string, error) {
	return s.experimentRepo.GetExperimentNames()
}

func (s *ExperimentServiceImpl) GetExperiment(name string) (models.Experiment, error) {
	return s.experimentRepo.GetExperimentByName(name)
}

// RegisterRequest records one validated entry from the requests file,
// filling in defaults the entry left out.
func (s *ExperimentServiceImpl) RegisterRequest(req requests.Request) (models.Experiment, error) {
	trials := req.Trials
	if trials == 0 {
		trials = s.defaults.Trials
	}
	experimentType := models.ExperimentTypeEnum(req.Type)
	if req.Type == "" {
		experimentType = models.ExperimentTypeCode
	}

	experiment := models.Experiment{
		Name:        req.Experiment,
		Fuzzers:     datatypes.NewJSONSlice(req.Fuzzers),
		Description: req.Description,
		Trials:      trials,
		Type:        experimentType,
		Status:      models.ExperimentStatusPending,
	}
	if err := s.experimentRepo.CreateExperiment(&experiment); err != nil {
		return models.Experiment{}, fmt.Errorf("failed to create experiment %s: %w", req.Experiment, err)
	}
	return experiment, nil
}

func (s *ExperimentServiceImpl) MarkExperimentAsDispatched(name string) error {
	return s.experimentRepo.MarkDispatched(name, time.Now())
}

func (s *ExperimentServiceImpl) MarkExperimentAsError(name string) error {
	return s.experimentRepo.UpdateExperimentStatus(name, models.ExperimentStatusErrored)
}

func (s *ExperimentServiceImpl) MarkExperimentAsFinished(name string) error {
	return s.experimentRepo.UpdateExperimentStatus(name, models.ExperimentStatusFinished)
}

// EnsureTrials expands an experiment into one trial row per fuzzer,
// benchmark and repetition. Rows are only created once; re-dispatching
// after a publish failure reuses the existing ones.
func (s *ExperimentServiceImpl) EnsureTrials(experiment models.Experiment, benchmarks []string) ([]models.Trial, error) {
	count, err := s.experimentRepo.CountTrials(experiment.ID)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		trials := make([]models.Trial, 0, len(experiment.Fuzzers)*len(benchmarks)*experiment.Trials)
		for _, fuzzer := range experiment.Fuzzers {
			for _, benchmark := range benchmarks {
				for range experiment.Trials {
					trials = append(trials, models.Trial{
						ExperimentID: experiment.ID,
						Fuzzer:       fuzzer,
						Benchmark:    benchmark,
					})
				}
			}
		}
		if err := s.experimentRepo.CreateTrials(trials); err != nil {
			return nil, fmt.Errorf("failed to create trials for %s: %w", experiment.Name, err)
		}
		s.logger.Info("Created trials",
			zap.String("experiment", experiment.Name),
			zap.Int("count", len(trials)),
		)
	}

	return s.experimentRepo.GetTrials(experiment.ID)
}

func (s *ExperimentServiceImpl) SetPaused(paused bool) error {
	value := "false"
	if paused {
		value = "true"
	}
	return s.redisClient.Set(context.Background(), ServicePausedKey, value, 0).Err()
}

func (s *ExperimentServiceImpl) IsPaused() (bool, error) {
	value, err := s.redisClient.Get(context.Background(), ServicePausedKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *ExperimentServiceImpl) IncrementFailureCount(name string) (int, error) {
	key := DispatchFailureCountKey + ":" + name
	count, err := s.redisClient.Incr(context.Background(), key).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *ExperimentServiceImpl) GetFailureCount(name string) (int, error) {
	key := DispatchFailureCountKey + ":" + name
	count, err := s.redisClient.Get(context.Background(), key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *ExperimentServiceImpl) ResetFailureCount(name string) error {
	key := DispatchFailureCountKey + ":" + name
	return s.redisClient.Del(context.Background(), key).Err()
}

// SaveBroadcastedExperiment saves an experiment name to the broadcasted experiments set in Redis
func (s *ExperimentServiceImpl) SaveBroadcastedExperiment(name string) error {
	return s.redisClient.SAdd(context.Background(), BroadcastedExperimentsKey, name).Err()
}

// GetBroadcastedExperiments returns all experiment names from the broadcasted experiments set
func (s *ExperimentServiceImpl) GetBroadcastedExperiments() ([]string, error) {
	return s.redisClient.SMembers(context.Background(), BroadcastedExperimentsKey).Result()
}

// RemoveBroadcastedExperiment removes an experiment name from the broadcasted experiments set
func (s *ExperimentServiceImpl) RemoveBroadcastedExperiment(name string) error {
	return s.redisClient.SRem(context.Background(), BroadcastedExperimentsKey, name).Err()
}
