package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/cache"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/ingest"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// Ingester runs submissions through the ingestion pipeline
type Ingester interface {
	Ingest(ctx context.Context, sub ingest.Submission) (*ingest.Result, error)
}

// ReadingStore is what the query endpoints read from
type ReadingStore interface {
	GetLatest(ctx context.Context, deviceID string) (*models.SensorReading, error)
	GetHistorical(ctx context.Context, params models.ReadingQueryParams) ([]models.SensorReading, error)
	GetChartData(ctx context.Context, params models.ReadingQueryParams) (*models.ChartData, error)
	GetStatistics(ctx context.Context, params models.ReadingQueryParams) (*models.Statistics, error)
	ListDeviceStatus(ctx context.Context, offlineAfter time.Duration) ([]models.DeviceStatus, error)
}

// HealthReporter reports database connectivity and when it was last checked
type HealthReporter interface {
	ConnectionStatus() (bool, time.Time, error)
}

// CalibrationStatus reports whether a calibration model is loaded
type CalibrationStatus interface {
	Available() bool
}

// RouteOptions holds the dependencies of the HTTP layer
type RouteOptions struct {
	Pipeline       Ingester
	Store          ReadingStore
	Cache          *cache.WriteReductionCache
	Health         HealthReporter
	Calibration    CalibrationStatus
	Metrics        http.Handler
	APIKeyHeader   string
	AllowedOrigins []string
	// OfflineAfter marks devices offline in the device status listing
	OfflineAfter time.Duration
	Logger       *slog.Logger
}

// RouteManager handles all API routes
type RouteManager struct {
	pipeline       Ingester
	store          ReadingStore
	cache          *cache.WriteReductionCache
	health         HealthReporter
	calibration    CalibrationStatus
	metrics        http.Handler
	apiKeyHeader   string
	allowedOrigins []string
	offlineAfter   time.Duration
	logger         *slog.Logger
	Router         *mux.Router
}

// NewRouteManager creates a new RouteManager instance
func NewRouteManager(opts RouteOptions) *RouteManager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-Key"
	}
	if opts.OfflineAfter <= 0 {
		opts.OfflineAfter = 10 * time.Minute
	}
	return &RouteManager{
		pipeline:       opts.Pipeline,
		store:          opts.Store,
		cache:          opts.Cache,
		health:         opts.Health,
		calibration:    opts.Calibration,
		metrics:        opts.Metrics,
		apiKeyHeader:   opts.APIKeyHeader,
		allowedOrigins: opts.AllowedOrigins,
		offlineAfter:   opts.OfflineAfter,
		logger:         opts.Logger,
		Router:         mux.NewRouter(),
	}
}

// Setup configures all API routes
func (rm *RouteManager) Setup() {
	r := rm.Router
	r.Use(rm.corsMiddleware)
	r.Use(rm.loggingMiddleware)

	// Global OPTIONS handler - catches all preflight requests
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Health check
	r.HandleFunc("/health", rm.healthHandler).Methods("GET")

	if rm.metrics != nil {
		r.Handle("/metrics", rm.metrics).Methods("GET")
	}

	// Device webhook (API key required)
	devices := r.PathPrefix("/devices/api").Subrouter()
	devices.Use(rm.deviceKeyMiddleware)
	devices.HandleFunc("/webhook", rm.webhookHandler).Methods("POST")

	// API v1 routes
	api := r.PathPrefix("/api/v1").Subrouter()
	rm.setupAPIRoutes(api)
}

// setupAPIRoutes configures all API v1 routes
func (rm *RouteManager) setupAPIRoutes(api *mux.Router) {
	// Ingestion
	api.HandleFunc("/sensor-data", rm.sensorDataHandler).Methods("POST")

	// Dashboard queries
	api.HandleFunc("/latest", rm.latestHandler).Methods("GET")
	api.HandleFunc("/historical", rm.historicalHandler).Methods("GET")
	api.HandleFunc("/statistics", rm.statisticsHandler).Methods("GET")
	api.HandleFunc("/chart-data", rm.chartDataHandler).Methods("GET")
	api.HandleFunc("/device-status", rm.deviceStatusHandler).Methods("GET")
	api.HandleFunc("/realtime", rm.realtimeHandler).Methods("GET")
}
