package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// DatabaseManager handles all database operations
type DatabaseManager struct {
	db            *sql.DB
	dsn           string
	healthChecker *HealthChecker
	logger        *slog.Logger
}

// NewDatabaseManager connects to dsn and starts health checking
func NewDatabaseManager(dsn string, logger *slog.Logger) (*DatabaseManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := connectDatabase(dsn)
	if err != nil {
		return nil, err
	}

	dm := &DatabaseManager{
		db:            db,
		dsn:           dsn,
		healthChecker: NewHealthChecker(db, 30*time.Second, logger),
		logger:        logger,
	}

	dm.healthChecker.Start()

	return dm, nil
}

// GetDB returns the underlying database connection
func (dm *DatabaseManager) GetDB() *sql.DB {
	return dm.db
}

// Close closes the database connection and stops health checking
func (dm *DatabaseManager) Close() error {
	if dm.healthChecker != nil {
		dm.healthChecker.Stop()
	}
	if dm.db != nil {
		return dm.db.Close()
	}
	return nil
}

// QueryWithHealthCheck executes a query with connection health verification
func (dm *DatabaseManager) QueryWithHealthCheck(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.QueryContext(ctx, query, args...)
}

// QueryRowWithHealthCheck executes a query that returns a single row with health check.
// The error is set when the connection is unhealthy, so callers can tell an
// outage apart from sql.ErrNoRows.
func (dm *DatabaseManager) QueryRowWithHealthCheck(ctx context.Context, query string, args ...interface{}) (*sql.Row, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.QueryRowContext(ctx, query, args...), nil
}

// ExecWithHealthCheck executes a statement with connection health verification
func (dm *DatabaseManager) ExecWithHealthCheck(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.db.ExecContext(ctx, query, args...)
}

// ConnectionStatus returns the health flag with the time and error of the
// last check
func (dm *DatabaseManager) ConnectionStatus() (bool, time.Time, error) {
	return dm.healthChecker.Status()
}

// Init applies all pending migrations
func (dm *DatabaseManager) Init() error {
	dm.logger.Info("Running database migrations...")

	if err := RunMigrations(dm.dsn, MigrateUp); err != nil && !errors.Is(err, ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dm.logger.Info("✓ Database initialization completed successfully")
	return nil
}

// connectDatabase opens and verifies a connection pool for dsn
func connectDatabase(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Postgres error code the store reacts to
const pqUniqueViolation = "23505"

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
