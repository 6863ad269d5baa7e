package service

import (
	"testing"
	"time"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/requests"
	"github.com/Gh0st0ne/fuzzbench/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeExperimentRepo keeps experiments and trials in memory, assigning
// ids the way the database would.
type fakeExperimentRepo struct {
	experiments  []models.Experiment
	trials       []models.Trial
	trialBatches int
}

func (f *fakeExperimentRepo) GetExperimentByName(name string) (models.Experiment, error) {
	for _, exp := range f.experiments {
		if exp.Name == name {
			return exp, nil
		}
	}
	return models.Experiment{}, gorm.ErrRecordNotFound
}

func (f *fakeExperimentRepo) GetExperimentNames() ([]string, error) {
	names := make([]string, 0, len(f.experiments))
	for _, exp := range f.experiments {
		names = append(names, exp.Name)
	}
	return names, nil
}

func (f *fakeExperimentRepo) GetPendingExperiments() ([]models.Experiment, error) {
	return f.byStatus(models.ExperimentStatusPending), nil
}

func (f *fakeExperimentRepo) GetRunningExperiments() ([]models.Experiment, error) {
	return f.byStatus(models.ExperimentStatusRunning), nil
}

func (f *fakeExperimentRepo) byStatus(status models.ExperimentStatusEnum) []models.Experiment {
	var out []models.Experiment
	for _, exp := range f.experiments {
		if exp.Status == status {
			out = append(out, exp)
		}
	}
	return out
}

func (f *fakeExperimentRepo) CreateExperiment(experiment *models.Experiment) error {
	experiment.ID = uint(len(f.experiments) + 1)
	f.experiments = append(f.experiments, *experiment)
	return nil
}

func (f *fakeExperimentRepo) UpdateExperimentStatus(name string, status models.ExperimentStatusEnum) error {
	for i := range f.experiments {
		if f.experiments[i].Name == name {
			f.experiments[i].Status = status
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeExperimentRepo) MarkDispatched(name string, dispatchedAt time.Time) error {
	for i := range f.experiments {
		if f.experiments[i].Name == name {
			f.experiments[i].Status = models.ExperimentStatusRunning
			f.experiments[i].DispatchedAt = &dispatchedAt
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeExperimentRepo) CreateTrials(trials []models.Trial) error {
	f.trialBatches++
	for _, trial := range trials {
		trial.ID = uint(len(f.trials) + 1)
		f.trials = append(f.trials, trial)
	}
	return nil
}

func (f *fakeExperimentRepo) GetTrials(experimentID uint) ([]models.Trial, error) {
	var out []models.Trial
	for _, trial := range f.trials {
		if trial.ExperimentID == experimentID {
			out = append(out, trial)
		}
	}
	return out, nil
}

func (f *fakeExperimentRepo) CountTrials(experimentID uint) (int64, error) {
	trials, _ := f.GetTrials(experimentID)
	return int64(len(trials)), nil
}

func newTestService(repo *fakeExperimentRepo) ExperimentService {
	return NewExperimentService(ExperimentServiceParams{
		ExperimentRepo: repo,
		Config: &config.AppConfig{
			ExperimentDefaults: config.ExperimentDefaults{Trials: 7, MaxTotalTime: 3600},
		},
		Logger: zap.NewNop(),
	})
}

func TestRegisterRequestAppliesDefaults(t *testing.T) {
	repo := &fakeExperimentRepo{}
	svc := newTestService(repo)

	experiment, err := svc.RegisterRequest(requests.Request{
		Experiment: "2026-08-24-aflpp",
		Fuzzers:    []string{"aflplusplus", "libfuzzer"},
	})
	require.NoError(t, err)

	assert.Equal(t, uint(1), experiment.ID)
	assert.Equal(t, 7, experiment.Trials)
	assert.Equal(t, models.ExperimentTypeCode, experiment.Type)
	assert.Equal(t, models.ExperimentStatusPending, experiment.Status)
	assert.Equal(t, []string{"aflplusplus", "libfuzzer"}, []string(experiment.Fuzzers))
}

func TestRegisterRequestKeepsOverrides(t *testing.T) {
	repo := &fakeExperimentRepo{}
	svc := newTestService(repo)

	experiment, err := svc.RegisterRequest(requests.Request{
		Experiment: "2026-08-24-bug-hunt",
		Fuzzers:    []string{"honggfuzz"},
		Trials:     3,
		Type:       "bug",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, experiment.Trials)
	assert.Equal(t, models.ExperimentTypeBug, experiment.Type)
}

func TestEnsureTrialsExpandsOnce(t *testing.T) {
	repo := &fakeExperimentRepo{}
	svc := newTestService(repo)

	experiment, err := svc.RegisterRequest(requests.Request{
		Experiment: "2026-08-24-aflpp",
		Fuzzers:    []string{"aflplusplus", "libfuzzer"},
		Trials:     2,
	})
	require.NoError(t, err)

	benchmarks := []string{"libpng-1.6.38", "zlib", "curl"}
	trials, err := svc.EnsureTrials(experiment, benchmarks)
	require.NoError(t, err)

	// 2 fuzzers x 3 benchmarks x 2 repetitions
	assert.Len(t, trials, 12)
	assert.Equal(t, 1, repo.trialBatches)

	// a retry returns the same rows instead of creating more
	trials, err = svc.EnsureTrials(experiment, benchmarks)
	require.NoError(t, err)
	assert.Len(t, trials, 12)
	assert.Equal(t, 1, repo.trialBatches)

	perPair := map[[2]string]int{}
	for _, trial := range trials {
		assert.Equal(t, experiment.ID, trial.ExperimentID)
		perPair[[2]string{trial.Fuzzer, trial.Benchmark}]++
	}
	assert.Len(t, perPair, 6)
	for pair, count := range perPair {
		assert.Equal(t, 2, count, "pair %v", pair)
	}
}
