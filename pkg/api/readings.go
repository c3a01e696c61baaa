package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/ingest"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// PostWebhook submits a reading as an authenticated device. The client must
// be configured WithAPIKey.
func (c *Client) PostWebhook(ctx context.Context, payload *ingest.Payload) (*WebhookResponse, error) {
	var resp WebhookResponse
	if err := c.doRequest(ctx, http.MethodPost, "/devices/api/webhook", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostSensorData submits a reading through the unauthenticated ingestion API
func (c *Client) PostSensorData(ctx context.Context, payload *ingest.Payload) (*IngestResponse, error) {
	var resp IngestResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/sensor-data", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryOptions narrows the query endpoints. Zero values use server defaults.
type QueryOptions struct {
	DeviceID string
	Hours    int
}

func (o QueryOptions) encode(path string) string {
	params := url.Values{}
	if o.DeviceID != "" {
		params.Set("device_id", o.DeviceID)
	}
	if o.Hours > 0 {
		params.Set("hours", strconv.Itoa(o.Hours))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return path
}

// Latest returns the newest persisted reading. A 404 *APIError means none.
func (c *Client) Latest(ctx context.Context, deviceID string) (*models.ReadingView, error) {
	var view models.ReadingView
	if err := c.doRequest(ctx, http.MethodGet, QueryOptions{DeviceID: deviceID}.encode("/api/v1/latest"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Historical returns the readings of the window, oldest first
func (c *Client) Historical(ctx context.Context, opts QueryOptions) (*HistoricalResponse, error) {
	var resp HistoricalResponse
	if err := c.doRequest(ctx, http.MethodGet, opts.encode("/api/v1/historical"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Statistics returns the aggregates of the window
func (c *Client) Statistics(ctx context.Context, opts QueryOptions) (*models.Statistics, error) {
	var stats models.Statistics
	if err := c.doRequest(ctx, http.MethodGet, opts.encode("/api/v1/statistics"), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ChartData returns the window as chart series
func (c *Client) ChartData(ctx context.Context, opts QueryOptions) (*models.ChartData, error) {
	var chart models.ChartData
	if err := c.doRequest(ctx, http.MethodGet, opts.encode("/api/v1/chart-data"), nil, &chart); err != nil {
		return nil, err
	}
	return &chart, nil
}

// DeviceStatus lists the liveness of every device seen
func (c *Client) DeviceStatus(ctx context.Context) ([]models.DeviceStatus, error) {
	var statuses []models.DeviceStatus
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/device-status", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Realtime returns the cached latest reading
func (c *Client) Realtime(ctx context.Context) (*RealtimeResponse, error) {
	var resp RealtimeResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/realtime", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
