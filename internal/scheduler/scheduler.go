package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Gh0st0ne/fuzzbench/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// register a routine to be run periodically
type ScheduleRoutine interface {
	Run() error
	Name() string
	Cancel()
}

type SchedulerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Config    *config.AppConfig
	Routines  []ScheduleRoutine `group:"routines"`
}

type Scheduler struct {
	logger   *zap.Logger
	interval time.Duration
	shutdown chan struct{}
	nudge    chan struct{}
	routines map[string]ScheduleRoutine
}

func NewScheduler(params SchedulerParams) *Scheduler {
	routines := make(map[string]ScheduleRoutine)

	// Register all routines from the injected group
	for _, routine := range params.Routines {
		routines[routine.Name()] = routine
	}

	scheduler := &Scheduler{
		logger:   params.Logger,
		interval: params.Config.SchedulerConfig.SchedulingInterval,
		routines: routines,
		shutdown: make(chan struct{}),
		nudge:    make(chan struct{}, 1),
	}

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(scheduler.shutdown)
			return nil
		},
	})

	return scheduler
}

// Nudge wakes the scheduler before the next tick. Safe to call from any
// goroutine; nudges arriving while one is already pending are dropped.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Add a mutex to prevent concurrent processing
	var processing sync.Mutex

	for {
		// Try to acquire the lock, skip if already processing
		if processing.TryLock() {
			// Release the lock when done
			go func() {
				defer processing.Unlock()
				for _, routine := range s.routines {
					s.logger.Debug("Running routine", zap.String("name", routine.Name()))
					if err := routine.Run(); err != nil {
						s.logger.Error("Failed to run routine", zap.Error(err))
					} else {
						s.logger.Debug("Routine completed", zap.String("name", routine.Name()))
					}
				}
			}()
		} else {
			s.logger.Warn("Previous scheduling pass still in progress, skipping this tick")
		}

		select {
		case <-s.shutdown:
			return
		case <-s.nudge:
			continue
		case <-ticker.C:
			continue
		}
	}
}
