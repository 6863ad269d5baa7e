package api

import (
	"errors"
	"fmt"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/experiment"
	"github.com/Gh0st0ne/fuzzbench/internal/requests"

	"go.uber.org/fx"
)

// RequestsService reports the state of the experiment requests file.
type RequestsService struct {
	config *config.AppConfig
}

type RequestsServiceParams struct {
	fx.In
	Config *config.AppConfig
}

// NewRequestsService creates a new RequestsService instance.
func NewRequestsService(params RequestsServiceParams) *RequestsService {
	return &RequestsService{
		config: params.Config,
	}
}

// RequestsState describes the requests file as the scheduler sees it.
type RequestsState struct {
	Path         string   `json:"path"`
	Valid        bool     `json:"valid"`
	Paused       bool     `json:"paused"`
	RequestCount int      `json:"request_count"`
	Issues       []string `json:"issues,omitempty"`
}

// GetRequestsState loads and validates the requests file. Validation issues
// are part of the state, not an error; only an unreadable file errors.
func (s *RequestsService) GetRequestsState() (*RequestsState, error) {
	file, err := requests.Load(s.config.RequestsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load requests file: %w", err)
	}

	var knownFuzzers []string
	if s.config.FuzzersDir != "" {
		knownFuzzers, err = experiment.KnownFuzzers(s.config.FuzzersDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list fuzzers: %w", err)
		}
	}

	state := &RequestsState{
		Path:         s.config.RequestsPath,
		Valid:        true,
		Paused:       file.Paused(),
		RequestCount: len(file.Requests()),
	}

	if err := requests.Validate(file, knownFuzzers); err != nil {
		var verr *requests.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		state.Valid = false
		state.Issues = verr.Issues
	}

	return state, nil
}
