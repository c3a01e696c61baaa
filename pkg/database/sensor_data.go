package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// AppendSensorData inserts a finalized reading and returns its record id.
// Records are never updated or deleted.
func (dm *DatabaseManager) AppendSensorData(ctx context.Context, reading *models.SensorReading) (int64, error) {
	query := `
        INSERT INTO sensor_data (
            device_id, temperature, humidity, raw_gas, raw_dust,
            gas_level, dust_density, aqi, air_quality_status, calibrated, timestamp
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id
    `

	row, err := dm.QueryRowWithHealthCheck(ctx, query,
		reading.DeviceID,
		reading.Temperature,
		reading.Humidity,
		reading.RawGas,
		reading.RawDust,
		reading.CorrectedGas,
		reading.CorrectedDust,
		reading.AQI,
		string(reading.Category),
		reading.Calibrated,
		reading.Timestamp.UTC(),
	)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert sensor data: %w", err)
	}
	return id, nil
}

// UpsertDeviceStatus creates or refreshes the liveness row of a device.
// last_seen never moves backwards.
func (dm *DatabaseManager) UpsertDeviceStatus(ctx context.Context, status models.DeviceStatus) error {
	if status.FirmwareVersion == "" {
		status.FirmwareVersion = "1.0.0"
	}

	query := `
        INSERT INTO device_status (device_id, device_name, is_online, last_seen, ip_address, firmware_version, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
        ON CONFLICT (device_id) DO UPDATE SET
            device_name      = EXCLUDED.device_name,
            is_online        = EXCLUDED.is_online,
            last_seen        = GREATEST(device_status.last_seen, EXCLUDED.last_seen),
            ip_address       = COALESCE(NULLIF(EXCLUDED.ip_address, ''), device_status.ip_address),
            firmware_version = EXCLUDED.firmware_version,
            updated_at       = CURRENT_TIMESTAMP
    `

	_, err := dm.ExecWithHealthCheck(ctx, query,
		status.DeviceID,
		status.DeviceName,
		status.IsOnline,
		status.LastSeen.UTC(),
		status.IPAddress,
		status.FirmwareVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device status: %w", err)
	}
	return nil
}

// ListDeviceStatus returns every device status row, most recently seen first.
// Devices silent for longer than offlineAfter are reported offline.
func (dm *DatabaseManager) ListDeviceStatus(ctx context.Context, offlineAfter time.Duration) ([]models.DeviceStatus, error) {
	query := `
        SELECT device_id, device_name, is_online, last_seen, ip_address, firmware_version
        FROM device_status
        ORDER BY last_seen DESC
    `

	rows, err := dm.QueryWithHealthCheck(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query device status: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	statuses := []models.DeviceStatus{}
	for rows.Next() {
		var s models.DeviceStatus
		if err := rows.Scan(&s.DeviceID, &s.DeviceName, &s.IsOnline, &s.LastSeen, &s.IPAddress, &s.FirmwareVersion); err != nil {
			return nil, fmt.Errorf("failed to scan device status: %w", err)
		}
		if offlineAfter > 0 && now.Sub(s.LastSeen) > offlineAfter {
			s.IsOnline = false
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

const sensorDataColumns = `
    id, device_id, temperature, humidity, raw_gas, raw_dust,
    gas_level, dust_density, aqi, air_quality_status, calibrated, timestamp
`

func scanReading(row rowScanner) (*models.SensorReading, error) {
	var r models.SensorReading
	var category string
	err := row.Scan(
		&r.ID,
		&r.DeviceID,
		&r.Temperature,
		&r.Humidity,
		&r.RawGas,
		&r.RawDust,
		&r.CorrectedGas,
		&r.CorrectedDust,
		&r.AQI,
		&category,
		&r.Calibrated,
		&r.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	r.Category = models.Category(category)
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

// GetLatest returns the newest persisted reading, optionally for one device.
// models.ErrNotFound is returned when there is none.
func (dm *DatabaseManager) GetLatest(ctx context.Context, deviceID string) (*models.SensorReading, error) {
	query := `SELECT ` + sensorDataColumns + ` FROM sensor_data`
	args := []interface{}{}
	if deviceID != "" {
		query += ` WHERE device_id = $1`
		args = append(args, deviceID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT 1`

	row, err := dm.QueryRowWithHealthCheck(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	reading, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest reading: %w", err)
	}
	return reading, nil
}

// windowFilter builds the shared WHERE clause of the window queries
func windowFilter(params models.ReadingQueryParams, now time.Time) (string, []interface{}) {
	whereClause := " WHERE timestamp >= $1"
	args := []interface{}{params.Since(now)}

	if params.DeviceID != "" {
		whereClause += fmt.Sprintf(" AND device_id = $%d", len(args)+1)
		args = append(args, params.DeviceID)
	}
	return whereClause, args
}

// GetHistorical returns the newest params.Limit readings inside the window in
// ascending time order
func (dm *DatabaseManager) GetHistorical(ctx context.Context, params models.ReadingQueryParams) ([]models.SensorReading, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	whereClause, args := windowFilter(params, time.Now())
	query := `SELECT ` + sensorDataColumns + ` FROM sensor_data` + whereClause +
		fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, params.Limit)

	rows, err := dm.QueryWithHealthCheck(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical data: %w", err)
	}
	defer rows.Close()

	readings := []models.SensorReading{}
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest first from the query, oldest first for callers
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}

// GetChartData returns the window as column series for charts
func (dm *DatabaseManager) GetChartData(ctx context.Context, params models.ReadingQueryParams) (*models.ChartData, error) {
	readings, err := dm.GetHistorical(ctx, params)
	if err != nil {
		return nil, err
	}
	chart := models.NewChartData(readings)
	return &chart, nil
}

// GetStatistics aggregates the window per metric and counts readings per category
func (dm *DatabaseManager) GetStatistics(ctx context.Context, params models.ReadingQueryParams) (*models.Statistics, error) {
	if params.Limit == 0 {
		params.Limit = 1
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	whereClause, args := windowFilter(params, time.Now())
	query := `
        SELECT
            COUNT(*),
            AVG(temperature), MIN(temperature), MAX(temperature),
            AVG(humidity), MIN(humidity), MAX(humidity),
            AVG(gas_level), MIN(gas_level), MAX(gas_level),
            AVG(dust_density), MIN(dust_density), MAX(dust_density),
            AVG(aqi)::DOUBLE PRECISION, MIN(aqi)::DOUBLE PRECISION, MAX(aqi)::DOUBLE PRECISION
        FROM sensor_data` + whereClause

	row, err := dm.QueryRowWithHealthCheck(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	stats := &models.Statistics{
		QualityDistribution: make(map[models.Category]int, len(models.Categories)),
		TimeRangeHours:      params.Hours,
	}
	for _, c := range models.Categories {
		stats.QualityDistribution[c] = 0
	}

	var agg [15]sql.NullFloat64
	dest := []interface{}{&stats.TotalRecords}
	for i := range agg {
		dest = append(dest, &agg[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to aggregate sensor data: %w", err)
	}

	metrics := []*models.MetricStats{&stats.Temperature, &stats.Humidity, &stats.GasLevel, &stats.DustDensity, &stats.AQI}
	for i, m := range metrics {
		m.Avg = nullFloat(agg[i*3])
		m.Min = nullFloat(agg[i*3+1])
		m.Max = nullFloat(agg[i*3+2])
	}

	rows, err := dm.QueryWithHealthCheck(ctx,
		`SELECT air_quality_status, COUNT(*) FROM sensor_data`+whereClause+` GROUP BY air_quality_status`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan quality distribution: %w", err)
		}
		stats.QualityDistribution[models.Category(category)] = count
	}
	return stats, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
