package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/aqi"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// storeTestReadings appends count readings one minute apart, ending now
func storeTestReadings(t *testing.T, dm *DatabaseManager, deviceID string, count int, dustFunc func(int) float64) []models.SensorReading {
	t.Helper()

	start := time.Now().UTC().Add(-time.Duration(count) * time.Minute)
	var stored []models.SensorReading
	for i := 0; i < count; i++ {
		dust := dustFunc(i)
		index, category := aqi.Classify(dust)
		reading := models.SensorReading{
			DeviceID:      deviceID,
			Temperature:   20 + float64(i),
			Humidity:      50,
			RawGas:        100,
			RawDust:       dust,
			CorrectedGas:  100,
			CorrectedDust: dust,
			AQI:           index,
			Category:      category,
			Timestamp:     start.Add(time.Duration(i) * time.Minute),
		}

		id, err := dm.AppendSensorData(context.Background(), &reading)
		if err != nil {
			t.Fatalf("Failed to append reading: %v", err)
		}
		reading.ID = id
		stored = append(stored, reading)
	}
	return stored
}

func TestAppendSensorData_GetLatest(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()

	if _, err := dm.GetLatest(ctx, ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty table, got %v", err)
	}

	stored := storeTestReadings(t, dm, "ESP32_001", 3, func(i int) float64 { return float64(10 * (i + 1)) })
	storeTestReadings(t, dm, "ESP32_002", 1, func(int) float64 { return 5 })

	latest, err := dm.GetLatest(ctx, "ESP32_001")
	if err != nil {
		t.Fatalf("Expected latest reading: %v", err)
	}
	if latest.ID != stored[2].ID || latest.AQI != 30 || latest.Category != models.CategoryGood {
		t.Errorf("Unexpected latest reading %+v", latest)
	}

	if _, err := dm.GetLatest(ctx, "ESP32_404"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown device, got %v", err)
	}
}

func TestGetHistorical(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	stored := storeTestReadings(t, dm, "ESP32_001", 10, func(i int) float64 { return float64(i) })

	readings, err := dm.GetHistorical(context.Background(), models.ReadingQueryParams{DeviceID: "ESP32_001", Hours: 1, Limit: 4})
	if err != nil {
		t.Fatalf("Expected historical data: %v", err)
	}
	if len(readings) != 4 {
		t.Fatalf("Expected 4 readings, got %d", len(readings))
	}

	// newest four, oldest first
	for i, r := range readings {
		if r.ID != stored[6+i].ID {
			t.Errorf("Position %d: expected id %d, got %d", i, stored[6+i].ID, r.ID)
		}
	}

	if _, err := dm.GetHistorical(context.Background(), models.ReadingQueryParams{Hours: 0, Limit: 4}); err == nil {
		t.Error("Expected validation error for hours=0")
	}
}

func TestGetStatistics(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()

	empty, err := dm.GetStatistics(ctx, models.ReadingQueryParams{Hours: 24})
	if err != nil {
		t.Fatalf("Expected statistics on empty table: %v", err)
	}
	if empty.TotalRecords != 0 || empty.AQI.Avg != nil {
		t.Errorf("Expected empty statistics, got %+v", empty)
	}
	if len(empty.QualityDistribution) != len(models.Categories) {
		t.Error("Expected every category in the distribution")
	}

	// 10 and 30 are GOOD, 80 is MODERATE
	dust := []float64{10, 30, 80}
	storeTestReadings(t, dm, "ESP32_001", len(dust), func(i int) float64 { return dust[i] })

	stats, err := dm.GetStatistics(ctx, models.ReadingQueryParams{Hours: 24, DeviceID: "ESP32_001"})
	if err != nil {
		t.Fatalf("Expected statistics: %v", err)
	}
	if stats.TotalRecords != 3 || stats.TimeRangeHours != 24 {
		t.Errorf("Unexpected totals %+v", stats)
	}
	if *stats.DustDensity.Min != 10 || *stats.DustDensity.Max != 80 {
		t.Errorf("Unexpected dust min/max %v/%v", *stats.DustDensity.Min, *stats.DustDensity.Max)
	}
	if *stats.AQI.Max != 65 {
		t.Errorf("Expected max aqi 65, got %v", *stats.AQI.Max)
	}
	if stats.QualityDistribution[models.CategoryGood] != 2 || stats.QualityDistribution[models.CategoryModerate] != 1 {
		t.Errorf("Unexpected distribution %v", stats.QualityDistribution)
	}
}

func TestGetChartData(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	storeTestReadings(t, dm, "ESP32_001", 5, func(i int) float64 { return float64(i * 10) })

	chart, err := dm.GetChartData(context.Background(), models.ReadingQueryParams{Hours: 6, Limit: 100})
	if err != nil {
		t.Fatalf("Expected chart data: %v", err)
	}
	if len(chart.Labels) != 5 || len(chart.AQI) != 5 {
		t.Fatalf("Expected 5 points, got %d", len(chart.Labels))
	}
	if chart.DustDensity[4] != 40 {
		t.Errorf("Expected last dust 40, got %v", chart.DustDensity[4])
	}
}

func TestUpsertDeviceStatus(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	status := models.DeviceStatus{DeviceID: "ESP32_001", DeviceName: "Kitchen", IsOnline: true, LastSeen: now, IPAddress: "10.0.0.9"}
	if err := dm.UpsertDeviceStatus(ctx, status); err != nil {
		t.Fatalf("Expected insert to succeed: %v", err)
	}

	// an older sighting does not move last_seen back and keeps the address
	status.LastSeen = now.Add(-time.Hour)
	status.IPAddress = ""
	if err := dm.UpsertDeviceStatus(ctx, status); err != nil {
		t.Fatalf("Expected update to succeed: %v", err)
	}

	statuses, err := dm.ListDeviceStatus(ctx, 0)
	if err != nil {
		t.Fatalf("Expected list to succeed: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("Expected one status row, got %d", len(statuses))
	}
	if !statuses[0].LastSeen.Equal(now) || statuses[0].IPAddress != "10.0.0.9" || statuses[0].FirmwareVersion != "1.0.0" {
		t.Errorf("Unexpected status %+v", statuses[0])
	}

	stale, err := dm.ListDeviceStatus(ctx, time.Nanosecond)
	if err != nil {
		t.Fatalf("Expected list to succeed: %v", err)
	}
	if stale[0].IsOnline {
		t.Error("Expected silent device to be reported offline")
	}
}
