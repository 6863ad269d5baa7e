package scheduler

import (
	"context"
	"path/filepath"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/pkg/watchdog"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type WatchParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Scheduler *Scheduler
	Factory   *watchdog.WatchDogFactory
	Config    *config.AppConfig
	Logger    *zap.Logger
}

// WatchRequests nudges the scheduler whenever the requests file
// changes, so new entries are picked up before the next tick.
func WatchRequests(params WatchParams) {
	watchCtx, cancel := context.WithCancel(context.Background())
	notifyChan := make(chan string, 16)

	requestsPath, err := filepath.Abs(params.Config.RequestsPath)
	if err != nil {
		params.Logger.Error("Failed to resolve requests path",
			zap.String("path", params.Config.RequestsPath),
			zap.Error(err),
		)
		cancel()
		return
	}

	dog := params.Factory.New(watchCtx, notifyChan, func(path string) bool {
		return filepath.Base(path) == filepath.Base(requestsPath)
	})
	dog.AddFile(requestsPath)

	go func() {
		for path := range notifyChan {
			params.Logger.Debug("Requests file changed", zap.String("path", path))
			params.Scheduler.Nudge()
		}
	}()

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
