package api

import (
	"fmt"
	"time"

	"github.com/Gh0st0ne/fuzzbench/models"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// ExperimentService exposes read-only views of requested experiments.
type ExperimentService struct {
	db *gorm.DB
}

type ExperimentServiceParams struct {
	fx.In
	DB *gorm.DB
}

// NewExperimentService creates a new ExperimentService instance.
func NewExperimentService(params ExperimentServiceParams) *ExperimentService {
	return &ExperimentService{
		db: params.DB,
	}
}

// ExperimentSummary is the wire form of one experiment row.
type ExperimentSummary struct {
	Name         string     `json:"name"`
	Fuzzers      []string   `json:"fuzzers"`
	Trials       int        `json:"trials"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// ListExperiments returns every experiment, newest request first.
func (s *ExperimentService) ListExperiments() ([]ExperimentSummary, error) {
	var experiments []models.Experiment
	result := s.db.Order("created_at DESC").Find(&experiments)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", result.Error)
	}

	summaries := make([]ExperimentSummary, 0, len(experiments))
	for _, exp := range experiments {
		summaries = append(summaries, ExperimentSummary{
			Name:         exp.Name,
			Fuzzers:      exp.Fuzzers,
			Trials:       exp.Trials,
			Type:         string(exp.Type),
			Status:       string(exp.Status),
			CreatedAt:    exp.CreatedAt,
			DispatchedAt: exp.DispatchedAt,
		})
	}
	return summaries, nil
}
