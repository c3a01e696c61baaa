package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/api"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/aqi"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

const (
	defaultHistoryHours = 24
	defaultChartHours   = 6
	maxHistoryPoints    = 500
	maxChartPoints      = 100
)

// latestHandler returns the newest persisted reading
// Query params:
//   - device_id: restrict to one device
func (rm *RouteManager) latestHandler(w http.ResponseWriter, r *http.Request) {
	if !rm.requireStore(w) {
		return
	}

	reading, err := rm.store.GetLatest(r.Context(), r.URL.Query().Get("device_id"))
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No data available", "")
		return
	}
	if err != nil {
		rm.queryFailed(w, "latest reading", err)
		return
	}

	writeJSON(w, http.StatusOK, aqi.View(*reading))
}

// historicalHandler returns up to 500 readings of the window, oldest first
// Query params:
//   - hours: lookback window (default: 24)
//   - device_id: restrict to one device
func (rm *RouteManager) historicalHandler(w http.ResponseWriter, r *http.Request) {
	params, ok := parseReadingQueryParams(w, r, defaultHistoryHours, maxHistoryPoints)
	if !ok || !rm.requireStore(w) {
		return
	}

	readings, err := rm.store.GetHistorical(r.Context(), params)
	if err != nil {
		rm.queryFailed(w, "historical data", err)
		return
	}

	views := make([]models.ReadingView, 0, len(readings))
	for _, reading := range readings {
		views = append(views, aqi.View(reading))
	}

	writeJSON(w, http.StatusOK, api.HistoricalResponse{
		DeviceID: params.DeviceID,
		Hours:    params.Hours,
		Count:    len(views),
		Data:     views,
	})
}

// statisticsHandler returns aggregates of the window
// Query params:
//   - hours: lookback window (default: 24)
//   - device_id: restrict to one device
func (rm *RouteManager) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	params, ok := parseReadingQueryParams(w, r, defaultHistoryHours, 1)
	if !ok || !rm.requireStore(w) {
		return
	}

	stats, err := rm.store.GetStatistics(r.Context(), params)
	if err != nil {
		rm.queryFailed(w, "statistics", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// chartDataHandler returns up to 100 points of the window as chart series
// Query params:
//   - hours: lookback window (default: 6)
//   - device_id: restrict to one device
func (rm *RouteManager) chartDataHandler(w http.ResponseWriter, r *http.Request) {
	params, ok := parseReadingQueryParams(w, r, defaultChartHours, maxChartPoints)
	if !ok || !rm.requireStore(w) {
		return
	}

	chart, err := rm.store.GetChartData(r.Context(), params)
	if err != nil {
		rm.queryFailed(w, "chart data", err)
		return
	}

	writeJSON(w, http.StatusOK, chart)
}

// deviceStatusHandler lists the liveness of every device seen
func (rm *RouteManager) deviceStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !rm.requireStore(w) {
		return
	}

	statuses, err := rm.store.ListDeviceStatus(r.Context(), rm.offlineAfter)
	if err != nil {
		rm.queryFailed(w, "device status", err)
		return
	}

	writeJSON(w, http.StatusOK, statuses)
}

// realtimeHandler returns the cached latest reading, persisted or not
func (rm *RouteManager) realtimeHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := rm.cache.Snapshot()

	resp := api.RealtimeResponse{
		ReceivedAt:             snapshot.ReceivedAt,
		LastSavedAt:            snapshot.LastSavedAt,
		NextSaveDue:            snapshot.NextSaveDue,
		PersistIntervalSeconds: int(rm.cache.Interval().Seconds()),
	}
	if snapshot.Latest != nil {
		view := aqi.View(*snapshot.Latest)
		resp.Latest = &view
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseReadingQueryParams reads hours and device_id and writes a 400 on bad input
func parseReadingQueryParams(w http.ResponseWriter, r *http.Request, defaultHours, limit int) (models.ReadingQueryParams, bool) {
	params := models.ReadingQueryParams{
		DeviceID: r.URL.Query().Get("device_id"),
		Hours:    defaultHours,
		Limit:    limit,
	}

	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid hours: %q", hoursStr), "hours")
			return params, false
		}
		params.Hours = hours
	}

	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return params, false
	}
	return params, true
}

func (rm *RouteManager) requireStore(w http.ResponseWriter) bool {
	if rm.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not configured", "")
		return false
	}
	return true
}

func (rm *RouteManager) queryFailed(w http.ResponseWriter, what string, err error) {
	rm.logger.Error("❌ Failed to query "+what, slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "Failed to query "+what, "")
}
