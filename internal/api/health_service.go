package api

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/Gh0st0ne/fuzzbench/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// RetryInterval is the time to wait between health check attempts
	RetryInterval = time.Second
)

// HealthService manages the health status of the application and its dependencies.
type HealthService struct {
	ready int32 // 0 - not ready, 1 - ready for one requirement, 2 - ready for all requirements
	db    *gorm.DB
}

type HealthServiceParams struct {
	fx.In
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewHealthService creates a new HealthService instance.
func NewHealthService(params HealthServiceParams) *HealthService {
	return &HealthService{
		ready: 0,
		db:    params.DB,
	}
}

// IsReady returns true if all health check requirements are met.
func (h *HealthService) IsReady() bool {
	return atomic.LoadInt32(&h.ready) == 2
}

// incrementReady increments the ready counter atomically.
func (h *HealthService) incrementReady() {
	atomic.AddInt32(&h.ready, 1)
}

// waitForDatabase pings the database until it answers.
func (h *HealthService) waitForDatabase(logger *zap.Logger) {
	for {
		sqlDB, err := h.db.DB()
		if err == nil {
			if err = sqlDB.Ping(); err == nil {
				h.incrementReady()
				logger.Info("database is reachable")
				return
			}
		}
		logger.Info("database is not ready, retrying", zap.Duration("interval", RetryInterval), zap.Error(err))
		time.Sleep(RetryInterval)
	}
}

// waitForRequestsFile waits for the experiment requests file to appear.
func (h *HealthService) waitForRequestsFile(logger *zap.Logger, config *config.AppConfig) {
	for {
		if _, err := os.Stat(config.RequestsPath); err == nil {
			h.incrementReady()
			logger.Info("requests file is readable", zap.String("path", config.RequestsPath))
			return
		}
		logger.Info("requests file is not ready, retrying",
			zap.String("path", config.RequestsPath),
			zap.Duration("interval", RetryInterval),
		)
		time.Sleep(RetryInterval)
	}
}
