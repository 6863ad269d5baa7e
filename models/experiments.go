package models

import (
	"time"

	"gorm.io/datatypes"
)

// ---------------------------------------------------------------------
// Enum types
// ---------------------------------------------------------------------

type ExperimentTypeEnum string

const (
	ExperimentTypeCode ExperimentTypeEnum = "code"
	ExperimentTypeBug  ExperimentTypeEnum = "bug"
)

type ExperimentStatusEnum string

const (
	ExperimentStatusPending  ExperimentStatusEnum = "pending"
	ExperimentStatusRunning  ExperimentStatusEnum = "running"
	ExperimentStatusErrored  ExperimentStatusEnum = "errored"
	ExperimentStatusFinished ExperimentStatusEnum = "finished"
)

type BuildStatusEnum string

const (
	BuildStatusPending   BuildStatusEnum = "pending"
	BuildStatusRunning   BuildStatusEnum = "running"
	BuildStatusSucceeded BuildStatusEnum = "succeeded"
	BuildStatusFailed    BuildStatusEnum = "failed"
)

// ---------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------

// Experiment represents the experiments table. One row per requested
// experiment; Name carries the date-prefixed identifier from the
// requests file and stays unique across the lifetime of the service.
type Experiment struct {
	ID           uint                        `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name         string                      `gorm:"column:name;not null;unique" json:"name"`
	Fuzzers      datatypes.JSONSlice[string] `gorm:"column:fuzzers;type:jsonb;not null" json:"fuzzers"`
	Description  string                      `gorm:"column:description" json:"description,omitempty"`
	Trials       int                         `gorm:"column:trials;not null" json:"trials"`
	Type         ExperimentTypeEnum          `gorm:"column:type;not null;default:code" json:"type"`
	Status       ExperimentStatusEnum        `gorm:"column:status;not null;default:pending" json:"status"`
	CreatedAt    time.Time                   `gorm:"column:created_at;default:now()" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at;default:now()" json:"updated_at"`
	DispatchedAt *time.Time                  `gorm:"column:dispatched_at" json:"dispatched_at,omitempty"`
}

func (Experiment) TableName() string {
	return "experiments"
}

// Trial represents the trials table. Each trial is one fuzzer x
// benchmark run inside an experiment.
type Trial struct {
	ID           uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	ExperimentID uint       `gorm:"column:experiment_id;not null" json:"experiment_id"`
	Fuzzer       string     `gorm:"column:fuzzer;not null" json:"fuzzer"`
	Benchmark    string     `gorm:"column:benchmark;not null" json:"benchmark"`
	TimeStarted  *time.Time `gorm:"column:time_started" json:"time_started,omitempty"`
	TimeEnded    *time.Time `gorm:"column:time_ended" json:"time_ended,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;default:now()" json:"created_at"`

	Experiment Experiment `gorm:"foreignKey:ExperimentID;references:ID" json:"-"`
}

func (Trial) TableName() string {
	return "trials"
}

// CoverageBuild represents the coverage_builds table. One row per
// benchmark whose coverage binaries were built for an experiment; Plan
// stores the rendered build plan the workers executed.
type CoverageBuild struct {
	ID           uint            `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	ExperimentID uint            `gorm:"column:experiment_id;not null" json:"experiment_id"`
	Benchmark    string          `gorm:"column:benchmark;not null" json:"benchmark"`
	Status       BuildStatusEnum `gorm:"column:status;not null;default:pending" json:"status"`
	Plan         datatypes.JSON  `gorm:"column:plan;type:jsonb" json:"plan,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at;default:now()" json:"created_at"`
	FinishedAt   *time.Time      `gorm:"column:finished_at" json:"finished_at,omitempty"`

	Experiment Experiment `gorm:"foreignKey:ExperimentID;references:ID" json:"-"`
}

func (CoverageBuild) TableName() string {
	return "coverage_builds"
}
