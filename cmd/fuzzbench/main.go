package main

import (
	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/api"
	"github.com/Gh0st0ne/fuzzbench/internal/messaging"
	"github.com/Gh0st0ne/fuzzbench/internal/scheduler"
	"github.com/Gh0st0ne/fuzzbench/pkg/database"
	"github.com/Gh0st0ne/fuzzbench/pkg/logger"
	"github.com/Gh0st0ne/fuzzbench/pkg/metrics"
	"github.com/Gh0st0ne/fuzzbench/pkg/telemetry"
	"github.com/Gh0st0ne/fuzzbench/pkg/watchdog"
	"github.com/Gh0st0ne/fuzzbench/repository"
	"github.com/Gh0st0ne/fuzzbench/service"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,           // inject config
			logger.NewLogger,            // inject logger
			database.NewDBConnection,    // inject db connection
			database.NewRedisClient,     // inject redis client
			messaging.NewRabbitMQ,       // inject rabbitmq service
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject tracer factory
			metrics.NewMetrics,          // inject prometheus metrics
			watchdog.NewWatchDogFactory, // inject watchdog factory
			scheduler.NewScheduler,      // inject scheduler
		),
		repository.Module,
		service.Module,
		api.Module,
		fx.Invoke(
			messaging.InitializeMQ,
			scheduler.WatchRequests,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
	app.Run()
}
