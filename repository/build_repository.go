package repository

import (
	"time"

	"github.com/Gh0st0ne/fuzzbench/models"

	"gorm.io/gorm"
)

type BuildRepository interface {
	CreateCoverageBuild(build *models.CoverageBuild) error
	GetCoverageBuild(experimentID uint, benchmark string) (models.CoverageBuild, error)
	GetPendingBuilds() ([]models.CoverageBuild, error)
	GetRunningBuilds() ([]models.CoverageBuild, error)
	UpdateBuildStatus(buildID uint, status models.BuildStatusEnum) error
	MarkBuildFinished(buildID uint, status models.BuildStatusEnum, finishedAt time.Time) error
}

type BuildRepositoryImpl struct {
	db *gorm.DB
}

func NewBuildRepository(db *gorm.DB) BuildRepository {
	return &BuildRepositoryImpl{db: db}
}

func (r *BuildRepositoryImpl) CreateCoverageBuild(build *models.CoverageBuild) error {
	result := r.db.Create(build)
	return result.Error
}

func (r *BuildRepositoryImpl) GetCoverageBuild(experimentID uint, benchmark string) (models.CoverageBuild, error) {
	var build models.CoverageBuild
	result := r.db.Where("experiment_id = ? AND benchmark = ?", experimentID, benchmark).
		First(&build)
	if result.Error != nil {
		return models.CoverageBuild{}, result.Error
	}
	return build, nil
}

func (r *BuildRepositoryImpl) GetPendingBuilds() ([]models.CoverageBuild, error) {
	var builds []models.CoverageBuild
	result := r.db.Preload("Experiment").
		Where("status = ?", models.BuildStatusPending).
		Order("id ASC").
		Find(&builds)
	if result.Error != nil {
		return nil, result.Error
	}
	return builds, nil
}

func (r *BuildRepositoryImpl) GetRunningBuilds() ([]models.CoverageBuild, error) {
	var builds []models.CoverageBuild
	result := r.db.Preload("Experiment").
		Where("status = ?", models.BuildStatusRunning).
		Order("id ASC").
		Find(&builds)
	if result.Error != nil {
		return nil, result.Error
	}
	return builds, nil
}

func (r *BuildRepositoryImpl) UpdateBuildStatus(buildID uint, status models.BuildStatusEnum) error {
	result := r.db.Model(&models.CoverageBuild{}).
		Where("id = ?", buildID).
		Update("status", status)
	return result.Error
}

func (r *BuildRepositoryImpl) MarkBuildFinished(buildID uint, status models.BuildStatusEnum, finishedAt time.Time) error {
	result := r.db.Model(&models.CoverageBuild{}).
		Where("id = ?", buildID).
		Updates(map[string]any{"status": status, "finished_at": finishedAt})
	return result.Error
}
