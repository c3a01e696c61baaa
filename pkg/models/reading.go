package models

import (
	"fmt"
	"time"
)

// SensorReading is a single finalized record produced per device tick.
// AQI and Category are always filled in together by the aqi package.
type SensorReading struct {
	ID            int64     `json:"id,omitempty"`
	DeviceID      string    `json:"device_id"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	RawGas        float64   `json:"raw_gas"`
	RawDust       float64   `json:"raw_dust"`
	CorrectedGas  float64   `json:"gas_level"`
	CorrectedDust float64   `json:"dust_density"`
	AQI           int       `json:"aqi"`
	Category      Category  `json:"air_quality_status"`
	Calibrated    bool      `json:"calibrated"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReadingQueryParams holds the query parameters shared by the dashboard endpoints
type ReadingQueryParams struct {
	DeviceID string
	Hours    int
	Limit    int
}

// MaxLookbackHours bounds the hours parameter of every query endpoint (one year)
const MaxLookbackHours = 24 * 366

// Validate checks if the query parameters are valid
func (p *ReadingQueryParams) Validate() error {
	if p.Hours < 1 || p.Hours > MaxLookbackHours {
		return fmt.Errorf("hours must be between 1 and %d", MaxLookbackHours)
	}

	if p.Limit < 1 || p.Limit > 10000 {
		return fmt.Errorf("limit must be between 1 and 10000")
	}

	if len(p.DeviceID) > 100 {
		return fmt.Errorf("device_id must be at most 100 characters")
	}

	return nil
}

// Since returns the lower bound of the lookback window relative to now
func (p *ReadingQueryParams) Since(now time.Time) time.Time {
	return now.Add(-time.Duration(p.Hours) * time.Hour)
}
