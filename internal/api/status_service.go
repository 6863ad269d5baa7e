package api

import (
	"fmt"

	"github.com/Gh0st0ne/fuzzbench/models"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// StatusService manages the status information of the application.
type StatusService struct {
	db *gorm.DB
}

type StatusServiceParams struct {
	fx.In
	DB *gorm.DB
}

// NewStatusService creates a new StatusService instance.
func NewStatusService(params StatusServiceParams) *StatusService {
	return &StatusService{
		db: params.DB,
	}
}

// GetExperimentCount returns the number of experiments that are pending or running
func (s *StatusService) GetExperimentCount() (int64, error) {
	var count int64
	result := s.db.Model(&models.Experiment{}).
		Where("status IN ?", []string{
			string(models.ExperimentStatusPending),
			string(models.ExperimentStatusRunning),
		}).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to get experiment count: %w", result.Error)
	}
	return count, nil
}
