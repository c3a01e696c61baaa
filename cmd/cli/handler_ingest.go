package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/api"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/aqi"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/ingest"
)

// webhookHandler accepts readings from authenticated devices
func (rm *RouteManager) webhookHandler(w http.ResponseWriter, r *http.Request) {
	result, err := rm.ingestRequest(w, r, ingest.SourceWebhook, deviceKeyFromContext(r.Context()), true)
	if err != nil {
		rm.writeIngestError(w, err)
		return
	}

	resp := api.WebhookResponse{Status: "success", Message: "Data received"}
	if result.Persisted {
		id := result.RecordID
		resp.DataID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

// sensorDataHandler accepts readings through the unauthenticated ingestion API
func (rm *RouteManager) sensorDataHandler(w http.ResponseWriter, r *http.Request) {
	result, err := rm.ingestRequest(w, r, ingest.SourceAPI, "", false)
	if err != nil {
		rm.writeIngestError(w, err)
		return
	}

	resp := api.IngestResponse{
		Cached:          result.Cached,
		SavedToDatabase: result.Persisted,
		Data:            aqi.View(result.Reading),
	}
	if result.Persisted {
		id := result.RecordID
		resp.ID = &id
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (rm *RouteManager) ingestRequest(w http.ResponseWriter, r *http.Request, source ingest.Source, credential string, requireCredential bool) (*ingest.Result, error) {
	payload, err := ingest.DecodePayload(http.MaxBytesReader(w, r.Body, ingest.MaxPayloadBytes))
	if err != nil {
		return nil, err
	}

	return rm.pipeline.Ingest(r.Context(), ingest.Submission{
		Source:            source,
		Payload:           payload,
		Credential:        credential,
		RequireCredential: requireCredential,
		RemoteIP:          clientIP(r),
	})
}

// writeIngestError maps the ingestion error taxonomy to status codes
func (rm *RouteManager) writeIngestError(w http.ResponseWriter, err error) {
	var validationErr *ingest.ValidationError
	switch {
	case errors.Is(err, ingest.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Invalid API key", "")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error(), validationErr.Field)
	case errors.Is(err, ingest.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "Invalid JSON", "")
	case errors.Is(err, ingest.ErrStorageUnavailable):
		rm.logger.Error("❌ Device directory unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "Device directory unavailable", "")
	default:
		rm.logger.Error("❌ Failed to ingest reading", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to process reading", "")
	}
}
