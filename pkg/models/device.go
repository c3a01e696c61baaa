package models

import (
	"time"

	"github.com/google/uuid"
)

// Device lifecycle states
const (
	DeviceStatusActive      = "active"
	DeviceStatusInactive    = "inactive"
	DeviceStatusMaintenance = "maintenance"
)

// Device is a registered air quality monitor
type Device struct {
	ID              uuid.UUID  `json:"id"`
	DeviceID        string     `json:"device_id"`
	DeviceName      string     `json:"device_name"`
	Location        string     `json:"location,omitempty"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	IsOnline        bool       `json:"is_online"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	FirmwareVersion string     `json:"firmware_version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DeviceIdentity is what a resolved credential maps to
type DeviceIdentity struct {
	ID       uuid.UUID `json:"id"`
	DeviceID string    `json:"device_id"`
	Name     string    `json:"device_name"`
}

// DeviceStatus tracks liveness per device identifier, including devices
// that only ever reported through the unauthenticated ingestion API
type DeviceStatus struct {
	DeviceID        string    `json:"device_id"`
	DeviceName      string    `json:"device_name"`
	IsOnline        bool      `json:"is_online"`
	LastSeen        time.Time `json:"last_seen"`
	IPAddress       string    `json:"ip_address,omitempty"`
	FirmwareVersion string    `json:"firmware_version"`
}
