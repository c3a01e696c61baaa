// Package ingest turns raw device submissions into calibrated, classified
// sensor readings and decides which of them reach durable storage.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/aqi"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/cache"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// Source names the entry point a submission arrived through
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceAPI     Source = "api"
	SourceMQTT    Source = "mqtt"
)

// DeviceDirectory resolves device credentials. Resolve records the sighting
// (last seen, online, ip address) and returns models.ErrNotFound for unknown
// credentials or models.ErrDeviceInactive for disabled devices.
type DeviceDirectory interface {
	Resolve(ctx context.Context, credential, ipAddress string) (*models.DeviceIdentity, error)
}

// Corrector maps raw dust and gas to corrected values; the bool is false on fallback
type Corrector interface {
	Correct(rawDust, rawGas, temperature, humidity float64) (float64, float64, bool)
}

// Store is the durable side of the pipeline
type Store interface {
	AppendSensorData(ctx context.Context, reading *models.SensorReading) (int64, error)
	UpsertDeviceStatus(ctx context.Context, status models.DeviceStatus) error
}

// Publisher fans processed readings out to live consumers
type Publisher interface {
	Publish(ctx context.Context, reading models.SensorReading) error
}

// Observer is told about every finished submission, accepted or not
type Observer interface {
	IngestFinished(source Source, result *Result, err error, elapsed time.Duration)
}

// Submission is one inbound reading with its transport context
type Submission struct {
	Source            Source
	Payload           *Payload
	Credential        string
	RequireCredential bool
	RemoteIP          string
}

// Result describes an accepted reading. The reading is always cached;
// Persisted is true when it was also appended to the store.
type Result struct {
	Reading    models.SensorReading
	Device     *models.DeviceIdentity
	ReceivedAt time.Time
	Cached     bool
	Persisted  bool
	RecordID   int64
	StorageErr error
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithStore enables durable writes
func WithStore(store Store) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithDirectory sets the credential resolver used for authenticated submissions
func WithDirectory(directory DeviceDirectory) Option {
	return func(p *Pipeline) {
		p.directory = directory
	}
}

// WithPublisher adds a live fan-out target
func WithPublisher(publisher Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

// WithObserver adds an ingestion observer such as the metrics collector
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// WithDefaultDeviceID is used when an unauthenticated payload names no device
func WithDefaultDeviceID(deviceID string) Option {
	return func(p *Pipeline) {
		p.defaultDeviceID = deviceID
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock replaces time.Now for arrival timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Pipeline runs authenticate, validate, correct, classify, cache and persist
// for every submission. It is safe for concurrent use.
type Pipeline struct {
	cache           *cache.WriteReductionCache
	corrector       Corrector
	store           Store
	directory       DeviceDirectory
	publisher       Publisher
	observer        Observer
	defaultDeviceID string
	logger          *slog.Logger
	now             func() time.Time
}

// NewPipeline creates a pipeline around the given cache and corrector
func NewPipeline(c *cache.WriteReductionCache, corrector Corrector, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:     c,
		corrector: corrector,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache exposes the write-reduction cache for status endpoints
func (p *Pipeline) Cache() *cache.WriteReductionCache {
	return p.cache
}

// Ingest processes one submission. Rejections return ErrUnauthorized,
// ErrMalformedPayload or a *ValidationError. Storage failures on the write
// path do not fail the call; they are reported in Result.StorageErr.
func (p *Pipeline) Ingest(ctx context.Context, sub Submission) (result *Result, err error) {
	start := p.now()
	if p.observer != nil {
		defer func() {
			p.observer.IngestFinished(sub.Source, result, err, p.now().Sub(start))
		}()
	}

	identity, err := p.identify(ctx, sub)
	if err != nil {
		return nil, err
	}

	deviceID := p.defaultDeviceID
	if identity != nil {
		deviceID = identity.DeviceID
	} else if sub.Payload != nil && sub.Payload.DeviceID != "" {
		deviceID = sub.Payload.DeviceID
	}

	validated, err := Validate(sub.Payload, deviceID)
	if err != nil {
		return nil, err
	}
	if validated.IPAddress == "" {
		validated.IPAddress = sub.RemoteIP
	}

	reading, receivedAt := p.cache.UpdateLatest(p.buildReading(validated))

	result = &Result{Device: identity, ReceivedAt: receivedAt, Cached: true}
	p.persist(ctx, &reading, result)
	result.Reading = reading

	p.recordStatus(ctx, validated, identity, receivedAt)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, reading); err != nil {
			p.logger.Warn("Failed to publish reading",
				slog.String("device_id", reading.DeviceID),
				slog.String("error", err.Error()))
		}
	}

	return result, nil
}

func (p *Pipeline) identify(ctx context.Context, sub Submission) (*models.DeviceIdentity, error) {
	if !sub.RequireCredential {
		return nil, nil
	}
	if sub.Credential == "" || p.directory == nil {
		return nil, ErrUnauthorized
	}

	// the address a device reports wins over the transport address
	ipAddress := sub.RemoteIP
	if sub.Payload != nil {
		if reported := strings.TrimSpace(sub.Payload.IPAddress); reported != "" {
			ipAddress = reported
		}
	}

	identity, err := p.directory.Resolve(ctx, sub.Credential, ipAddress)
	switch {
	case err == nil:
		return identity, nil
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrDeviceInactive):
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	default:
		return nil, fmt.Errorf("failed to resolve device credential: %w: %w", ErrStorageUnavailable, err)
	}
}

// buildReading leaves Timestamp zero unless the device sent one; the cache
// stamps it on arrival
func (p *Pipeline) buildReading(v *Validated) models.SensorReading {
	dust, gas, calibrated := p.corrector.Correct(v.RawDust, v.RawGas, v.Temperature, v.Humidity)
	index, category := aqi.Classify(dust)

	var timestamp time.Time
	if v.Timestamp != nil && !v.Timestamp.IsZero() {
		timestamp = v.Timestamp.UTC()
	}

	return models.SensorReading{
		DeviceID:      v.DeviceID,
		Temperature:   v.Temperature,
		Humidity:      v.Humidity,
		RawGas:        v.RawGas,
		RawDust:       v.RawDust,
		CorrectedGas:  gas,
		CorrectedDust: dust,
		AQI:           index,
		Category:      category,
		Calibrated:    calibrated,
		Timestamp:     timestamp,
	}
}

// persist claims the write window and appends the reading. A failed append
// releases the claim so the next arrival retries.
func (p *Pipeline) persist(ctx context.Context, reading *models.SensorReading, result *Result) {
	if p.store == nil || !p.cache.TryBeginPersist() {
		return
	}

	id, err := p.store.AppendSensorData(ctx, reading)
	if err != nil {
		p.cache.ReleasePersist()
		result.StorageErr = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		p.logger.Error("❌ Failed to persist reading, kept in cache only",
			slog.String("device_id", reading.DeviceID),
			slog.String("error", err.Error()))
		return
	}

	p.cache.MarkPersisted()
	reading.ID = id
	result.Persisted = true
	result.RecordID = id
}

func (p *Pipeline) recordStatus(ctx context.Context, v *Validated, identity *models.DeviceIdentity, seen time.Time) {
	if p.store == nil {
		return
	}

	status := models.DeviceStatus{
		DeviceID:        v.DeviceID,
		DeviceName:      v.DeviceID,
		IsOnline:        true,
		LastSeen:        seen.UTC(),
		IPAddress:       v.IPAddress,
		FirmwareVersion: v.FirmwareVersion,
	}
	if identity != nil && identity.Name != "" {
		status.DeviceName = identity.Name
	}

	if err := p.store.UpsertDeviceStatus(ctx, status); err != nil {
		p.logger.Warn("Failed to update device status",
			slog.String("device_id", v.DeviceID),
			slog.String("error", err.Error()))
	}
}
