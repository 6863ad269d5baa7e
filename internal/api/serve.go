package api

import (
	"context"
	"net/http"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/pkg/metrics"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServerParams struct {
	fx.In
	Lifecycle         fx.Lifecycle
	HealthService     *HealthService
	StatusService     *StatusService
	QueueService      *QueueService
	ExperimentService *ExperimentService
	RequestsService   *RequestsService
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	Config            *config.AppConfig
}

// NewAPIServer creates a new HTTP server for API endpoints.
func NewAPIServer(params ServerParams) *http.Server {
	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", handleHealth(params.HealthService, params.Logger))

	// Status endpoint
	mux.HandleFunc("/status", handleStatus(params.StatusService, params.Logger))

	// Queue endpoint
	mux.HandleFunc("/queue", handleQueue(params.QueueService, params.Logger))

	// Experiments endpoint
	mux.HandleFunc("/experiments", handleExperiments(params.ExperimentService, params.Logger))

	// Requests file state endpoint
	mux.HandleFunc("/requests", handleRequests(params.RequestsService, params.Logger))

	// Prometheus endpoint
	mux.Handle("/metrics", params.Metrics.Handler())

	server := &http.Server{
		Addr:    ":8080",
		Handler: mux,
	}

	// Start health check goroutines
	go params.HealthService.waitForDatabase(params.Logger)
	go params.HealthService.waitForRequestsFile(params.Logger, params.Config)

	// Register lifecycle hooks
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					params.Logger.Fatal("failed to start API server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})

	return server
}

var Module = fx.Module("api",
	fx.Provide(
		NewHealthService,
		NewStatusService,
		NewQueueService,
		NewExperimentService,
		NewRequestsService,
	),
	fx.Invoke(
		NewAPIServer,
	),
)
