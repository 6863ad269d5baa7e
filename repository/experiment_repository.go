package repository

import (
	"time"

	"github.com/Gh0st0ne/fuzzbench/models"

	"gorm.io/gorm"
)

type ExperimentRepository interface {
	GetExperimentByName(name string) (models.Experiment, error)
	GetExperimentNames() ([]string, error)
	GetPendingExperiments() ([]models.Experiment, error)
	GetRunningExperiments() ([]models.Experiment, error)
	CreateExperiment(experiment *models.Experiment) error
	UpdateExperimentStatus(name string, status models.ExperimentStatusEnum) error
	MarkDispatched(name string, dispatchedAt time.Time) error
	CreateTrials(trials []models.Trial) error
	GetTrials(experimentID uint) ([]models.Trial, error)
	CountTrials(experimentID uint) (int64, error)
}

type ExperimentRepositoryImpl struct {
	db *gorm.DB
}

func NewExperimentRepository(db *gorm.DB) ExperimentRepository {
	return &ExperimentRepositoryImpl{db: db}
}

func (r *ExperimentRepositoryImpl) GetExperimentByName(name string) (models.Experiment, error) {
	var experiment models.Experiment
	result := r.db.Where("name = ?", name).First(&experiment)
	if result.Error != nil {
		return models.Experiment{}, result.Error
	}
	return experiment, nil
}

// names of every experiment ever recorded, used to tell new requests
// from ones the service already dispatched
func (r *ExperimentRepositoryImpl) GetExperimentNames() ([]string, error) {
	var names []string
	result := r.db.Model(&models.Experiment{}).
		Order("id ASC").
		Pluck("name", &names)
	if result.Error != nil {
		return nil, result.Error
	}
	return names, nil
}

func (r *ExperimentRepositoryImpl) GetPendingExperiments() ([]models.Experiment, error) {
	var experiments []models.Experiment
	result := r.db.Where("status = ?", models.ExperimentStatusPending).
		Order("id ASC").
		Find(&experiments)
	if result.Error != nil {
		return nil, result.Error
	}
	return experiments, nil
}

func (r *ExperimentRepositoryImpl) GetRunningExperiments() ([]models.Experiment, error) {
	var experiments []models.Experiment
	result := r.db.Where("status = ?", models.ExperimentStatusRunning).
		Order("id ASC").
		Find(&experiments)
	if result.Error != nil {
		return nil, result.Error
	}
	return experiments, nil
}

func (r *ExperimentRepositoryImpl) CreateExperiment(experiment *models.Experiment) error {
	result := r.db.Create(experiment)
	return result.Error
}

func (r *ExperimentRepositoryImpl) UpdateExperimentStatus(name string, status models.ExperimentStatusEnum) error {
	result := r.db.Model(&models.Experiment{}).
		Where("name = ?", name).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	return result.Error
}

func (r *ExperimentRepositoryImpl) MarkDispatched(name string, dispatchedAt time.Time) error {
	result := r.db.Model(&models.Experiment{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"status":        models.ExperimentStatusRunning,
			"dispatched_at": dispatchedAt,
			"updated_at":    time.Now(),
		})
	return result.Error
}

func (r *ExperimentRepositoryImpl) CreateTrials(trials []models.Trial) error {
	if len(trials) == 0 {
		return nil
	}
	result := r.db.CreateInBatches(trials, 100)
	return result.Error
}

func (r *ExperimentRepositoryImpl) GetTrials(experimentID uint) ([]models.Trial, error) {
	var trials []models.Trial
	result := r.db.Where("experiment_id = ?", experimentID).
		Order("id ASC").
		Find(&trials)
	if result.Error != nil {
		return nil, result.Error
	}
	return trials, nil
}

func (r *ExperimentRepositoryImpl) CountTrials(experimentID uint) (int64, error) {
	var count int64
	result := r.db.Model(&models.Trial{}).
		Where("experiment_id = ?", experimentID).
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}
