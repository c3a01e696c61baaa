package api

import (
	"time"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// WebhookResponse is returned by the device webhook. DataID is nil when the
// reading was only cached.
type WebhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	DataID  *int64 `json:"data_id"`
}

// IngestResponse is returned by the generic ingestion API
type IngestResponse struct {
	Cached          bool               `json:"cached"`
	SavedToDatabase bool               `json:"saved_to_database"`
	Data            models.ReadingView `json:"data"`
	ID              *int64             `json:"id,omitempty"`
}

// HistoricalResponse wraps the readings of a window, oldest first
type HistoricalResponse struct {
	DeviceID string               `json:"device_id,omitempty"`
	Hours    int                  `json:"hours"`
	Count    int                  `json:"count"`
	Data     []models.ReadingView `json:"data"`
}

// RealtimeResponse is the cached latest reading and the persistence schedule
type RealtimeResponse struct {
	Latest      *models.ReadingView `json:"latest"`
	ReceivedAt  *time.Time          `json:"received_at"`
	LastSavedAt *time.Time          `json:"last_saved_at"`
	NextSaveDue *time.Time          `json:"next_save_due"`

	PersistIntervalSeconds int `json:"persist_interval_seconds"`
}

// HealthStatus represents the API health status
type HealthStatus struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
	Database    string `json:"database"`
	Calibration string `json:"calibration"`

	DatabaseCheckedAt string `json:"database_checked_at,omitempty"`
	DatabaseError     string `json:"database_error,omitempty"`
}
