package main

import (
	"net/http"
	"time"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/api"
)

// healthHandler returns server health status
func (rm *RouteManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := api.HealthStatus{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     version,
		Database:    "disabled",
		Calibration: "raw",
	}

	if rm.health != nil {
		healthy, checkedAt, err := rm.health.ConnectionStatus()
		if healthy {
			health.Database = "healthy"
		} else {
			health.Database = "unhealthy"
			health.Status = "degraded"
		}
		if !checkedAt.IsZero() {
			health.DatabaseCheckedAt = checkedAt.UTC().Format(time.RFC3339)
		}
		if err != nil {
			health.DatabaseError = err.Error()
		}
	}
	if rm.calibration != nil && rm.calibration.Available() {
		health.Calibration = "model"
	}

	writeJSON(w, http.StatusOK, health)
}
