package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HealthChecker monitors database connection health. database/sql re-dials
// broken pool connections on its own, so the checker only tracks state and
// short-circuits queries while the database is down.
type HealthChecker struct {
	db            *sql.DB
	checkInterval time.Duration
	logger        *slog.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	ticker        *time.Ticker
	mu            sync.RWMutex
	isHealthy     bool
	lastError     error
	lastChecked   time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB, checkInterval time.Duration, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{
		db:            db,
		checkInterval: checkInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
		isHealthy:     true,
	}
}

// Start begins monitoring the database connection
func (chc *HealthChecker) Start() {
	chc.ticker = time.NewTicker(chc.checkInterval)

	go func() {
		for {
			select {
			case <-chc.stopChan:
				chc.ticker.Stop()
				return
			case <-chc.ticker.C:
				chc.checkConnection()
			}
		}
	}()
}

// Stop stops monitoring the database connection. It is safe to call twice.
func (chc *HealthChecker) Stop() {
	chc.stopOnce.Do(func() {
		close(chc.stopChan)
	})
}

// checkConnection pings the database and flips the health flag
func (chc *HealthChecker) checkConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := chc.db.PingContext(ctx)

	chc.mu.Lock()
	defer chc.mu.Unlock()

	chc.lastChecked = time.Now()
	chc.lastError = err
	if err != nil {
		if chc.isHealthy {
			chc.logger.Error("❌ Database connection health check failed", slog.String("error", err.Error()))
		}
		chc.isHealthy = false
		return
	}

	if !chc.isHealthy {
		chc.logger.Info("✓ Database connection restored")
	}
	chc.isHealthy = true
}

// Status returns the health flag with the last check time and error
func (chc *HealthChecker) Status() (bool, time.Time, error) {
	chc.mu.RLock()
	defer chc.mu.RUnlock()
	return chc.isHealthy, chc.lastChecked, chc.lastError
}

// EnsureConnection ensures the connection is healthy before executing a query.
// An unhealthy connection is re-pinged so a recovered database is picked up
// before the next tick.
func (chc *HealthChecker) EnsureConnection(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := chc.db.PingContext(pingCtx)

	chc.mu.Lock()
	defer chc.mu.Unlock()

	chc.lastChecked = time.Now()
	chc.lastError = err
	if err != nil {
		chc.isHealthy = false
		return fmt.Errorf("database connection check failed: %w", err)
	}
	if !chc.isHealthy {
		chc.logger.Info("✓ Database connection restored")
	}
	chc.isHealthy = true
	return nil
}
