package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// StatusResponse represents the response from the status endpoint
type StatusResponse struct {
	ExperimentCount int64 `json:"experiment_count"`
}

// QueueResponse represents the response from the queue endpoint
type QueueResponse struct {
	QueueName string `json:"queue_name"`
	Length    int64  `json:"length"`
}

// handleHealth returns the health status of the application
func handleHealth(healthService *HealthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := healthService.IsReady()
		logger.Info("received health check request", zap.Bool("ready", ready))
		if !ready {
			http.Error(w, "Not ready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}
}

// handleStatus returns the current number of pending and running experiments
func handleStatus(statusService *StatusService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := statusService.GetExperimentCount()
		if err != nil {
			logger.Error("received status request, but failed to get experiment count", zap.Error(err))
			http.Error(w, "Failed to get experiment count", http.StatusInternalServerError)
			return
		}
		logger.Info("received status request", zap.Int64("experiment_count", count))

		response := StatusResponse{
			ExperimentCount: count,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

// handleQueue returns the current length of the specified queue (NACKed + pending)
func handleQueue(queueService *QueueService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queueName := r.URL.Query().Get("queue")
		if queueName == "" {
			http.Error(w, "Queue name is required", http.StatusBadRequest)
			return
		}

		logger.Info("received queue length request", zap.String("queueName", queueName))

		length, err := queueService.GetQueueLength(queueName)
		if err != nil {
			logger.Error("received queue length request, but failed to get queue length", zap.Error(err))
			http.Error(w, "Failed to get queue length", http.StatusInternalServerError)
			return
		}

		response := QueueResponse{
			QueueName: queueName,
			Length:    length,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

// handleRequests returns the validation state of the requests file
func handleRequests(requestsService *RequestsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := requestsService.GetRequestsState()
		if err != nil {
			logger.Error("received requests state request, but failed to read requests file", zap.Error(err))
			http.Error(w, "Failed to read requests file", http.StatusInternalServerError)
			return
		}
		logger.Info("received requests state request",
			zap.Bool("valid", state.Valid),
			zap.Bool("paused", state.Paused),
			zap.Int("request_count", state.RequestCount),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(state)
	}
}

// handleExperiments returns every requested experiment, newest first
func handleExperiments(experimentService *ExperimentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info("received experiments request")

		summaries, err := experimentService.ListExperiments()
		if err != nil {
			logger.Error("received experiments request, but failed to list experiments", zap.Error(err))
			http.Error(w, "Failed to list experiments", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(summaries)
	}
}
