package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/cache"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/calibration"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

type fakeDirectory struct {
	mu       sync.Mutex
	devices  map[string]models.DeviceIdentity
	inactive map[string]bool
	err      error
	lastSeen map[string]time.Time
	lastIP   map[string]string
	now      func() time.Time
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		devices: map[string]models.DeviceIdentity{
			"good-key": {ID: uuid.New(), DeviceID: "ESP32_001", Name: "Living room"},
		},
		inactive: map[string]bool{},
		lastSeen: map[string]time.Time{},
		lastIP:   map[string]string{},
		now:      time.Now,
	}
}

func (f *fakeDirectory) Resolve(_ context.Context, credential, ipAddress string) (*models.DeviceIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	identity, ok := f.devices[credential]
	if !ok {
		return nil, models.ErrNotFound
	}
	if f.inactive[credential] {
		return nil, models.ErrDeviceInactive
	}
	if seen := f.now(); seen.After(f.lastSeen[identity.DeviceID]) {
		f.lastSeen[identity.DeviceID] = seen
	}
	if ipAddress != "" {
		f.lastIP[identity.DeviceID] = ipAddress
	}
	return &identity, nil
}

type fakeStore struct {
	mu       sync.Mutex
	readings []models.SensorReading
	statuses map[string]models.DeviceStatus
	fail     bool
	delay    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: map[string]models.DeviceStatus{}}
}

func (f *fakeStore) AppendSensorData(_ context.Context, reading *models.SensorReading) (int64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return 0, errors.New("connection refused")
	}
	f.readings = append(f.readings, *reading)
	return int64(len(f.readings)), nil
}

func (f *fakeStore) UpsertDeviceStatus(_ context.Context, status models.DeviceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statuses[status.DeviceID] = status
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []models.SensorReading
}

func (f *fakePublisher) Publish(_ context.Context, reading models.SensorReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, reading)
	return nil
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingObserver) IngestFinished(_ Source, _ *Result, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestPipeline(t *testing.T, corrector Corrector, opts ...Option) (*Pipeline, *fakeStore, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := newFakeStore()
	c := cache.New(5*time.Minute, cache.WithClock(clk.Now))
	all := append([]Option{
		WithStore(store),
		WithDirectory(newFakeDirectory()),
		WithDefaultDeviceID("ESP32_001"),
		WithClock(clk.Now),
	}, opts...)
	return NewPipeline(c, corrector, all...), store, clk
}

func noModel() Corrector {
	return calibration.NewCalibratorWithModel(nil, nil)
}

func webhook(payload *Payload, credential string) Submission {
	return Submission{
		Source:            SourceWebhook,
		Payload:           payload,
		Credential:        credential,
		RequireCredential: true,
		RemoteIP:          "192.168.1.50",
	}
}

func TestIngest_RawFallbackClassification(t *testing.T) {
	p, store, _ := newTestPipeline(t, noModel())

	result, err := p.Ingest(context.Background(), webhook(NewPayload("", 22, 55, 40, 30), "good-key"))
	require.NoError(t, err)

	assert.Equal(t, 30, result.Reading.AQI)
	assert.Equal(t, models.CategoryGood, result.Reading.Category)
	assert.Equal(t, 30.0, result.Reading.CorrectedDust)
	assert.False(t, result.Reading.Calibrated)
	assert.True(t, result.Cached)
	assert.True(t, result.Persisted)
	assert.Equal(t, int64(1), result.RecordID)
	assert.Equal(t, int64(1), result.Reading.ID)
	assert.Equal(t, "ESP32_001", result.Reading.DeviceID)
	assert.Equal(t, 1, store.count())

	status := store.statuses["ESP32_001"]
	assert.True(t, status.IsOnline)
	assert.Equal(t, "Living room", status.DeviceName)
	assert.Equal(t, "192.168.1.50", status.IPAddress)
}

func TestIngest_HumidityCorrectionLowersDust(t *testing.T) {
	c := calibration.NewCalibrator("../calibration/testdata/humidity_forest.yaml", nil)
	p, _, _ := newTestPipeline(t, c)

	result, err := p.Ingest(context.Background(), webhook(NewPayload("", 25, 90, 50, 150), "good-key"))
	require.NoError(t, err)

	assert.True(t, result.Reading.Calibrated)
	assert.Less(t, result.Reading.CorrectedDust, 150.0)
	assert.Equal(t, 150.0, result.Reading.RawDust)

	// index and category follow the corrected value only
	assert.Equal(t, 78, result.Reading.AQI)
	assert.Equal(t, models.CategoryModerate, result.Reading.Category)
}

func TestIngest_Unauthorized(t *testing.T) {
	directory := newFakeDirectory()
	directory.inactive["retired-key"] = true
	directory.devices["retired-key"] = models.DeviceIdentity{DeviceID: "ESP32_OLD"}

	testCases := []struct {
		name       string
		credential string
	}{
		{name: "Missing credential", credential: ""},
		{name: "Unknown credential", credential: "nope"},
		{name: "Inactive device", credential: "retired-key"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, store, _ := newTestPipeline(t, noModel(), WithDirectory(directory))

			_, err := p.Ingest(context.Background(), webhook(NewPayload("", 22, 55, 40, 30), tc.credential))
			assert.ErrorIs(t, err, ErrUnauthorized)
			assert.Nil(t, p.Cache().Latest())
			assert.Equal(t, 0, store.count())
		})
	}
}

func TestIngest_DirectoryOutage(t *testing.T) {
	directory := newFakeDirectory()
	directory.err = errors.New("dial tcp: connection refused")
	p, _, _ := newTestPipeline(t, noModel(), WithDirectory(directory))

	_, err := p.Ingest(context.Background(), webhook(NewPayload("", 22, 55, 40, 30), "good-key"))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestIngest_ResolveIsStableAndMonotonic(t *testing.T) {
	directory := newFakeDirectory()
	clk := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	directory.now = clk.Now
	p, _, _ := newTestPipeline(t, noModel(), WithDirectory(directory))

	var previous time.Time
	var firstID uuid.UUID
	for i := 0; i < 5; i++ {
		result, err := p.Ingest(context.Background(), webhook(NewPayload("", 22, 55, 40, 30), "good-key"))
		require.NoError(t, err)
		if i == 0 {
			firstID = result.Device.ID
		}
		assert.Equal(t, firstID, result.Device.ID)

		seen := directory.lastSeen["ESP32_001"]
		assert.False(t, seen.Before(previous))
		previous = seen
		clk.Advance(time.Second)
	}
}

func TestIngest_ResolveRecordsReportedIPAddress(t *testing.T) {
	testCases := []struct {
		name     string
		reported string
		want     string
	}{
		{name: "Reported address", reported: "10.0.0.42", want: "10.0.0.42"},
		{name: "Blank falls back to remote address", reported: "  ", want: "203.0.113.9"},
		{name: "Missing falls back to remote address", reported: "", want: "203.0.113.9"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			directory := newFakeDirectory()
			p, store, _ := newTestPipeline(t, noModel(), WithDirectory(directory))

			payload := NewPayload("", 22, 55, 40, 30)
			payload.IPAddress = tc.reported
			sub := webhook(payload, "good-key")
			sub.RemoteIP = "203.0.113.9"

			_, err := p.Ingest(context.Background(), sub)
			require.NoError(t, err)
			assert.Equal(t, tc.want, directory.lastIP["ESP32_001"])
			assert.Equal(t, tc.want, store.statuses["ESP32_001"].IPAddress)
		})
	}
}

func TestIngest_ValidationRejectsBeforeCaching(t *testing.T) {
	p, store, _ := newTestPipeline(t, noModel())

	payload, err := DecodePayloadBytes([]byte(`{"temperature": 25, "humidity": 60, "gas_level": 50}`))
	require.NoError(t, err)

	_, err = p.Ingest(context.Background(), Submission{Source: SourceAPI, Payload: payload})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, MissingField, ve.Kind)
	assert.Equal(t, "dust_density", ve.Field)
	assert.Nil(t, p.Cache().Latest())
	assert.Equal(t, 0, store.count())
}

func TestIngest_ClientAQIIgnored(t *testing.T) {
	p, _, _ := newTestPipeline(t, noModel())

	payload, err := DecodePayloadBytes([]byte(`{"device_id": "ESP32_007", "temperature": 25, "humidity": 60, "gas_level": 50, "dust_density": 80, "aqi": 5, "air_quality_status": "GOOD"}`))
	require.NoError(t, err)

	result, err := p.Ingest(context.Background(), Submission{Source: SourceAPI, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, 65, result.Reading.AQI)
	assert.Equal(t, models.CategoryModerate, result.Reading.Category)
	assert.Equal(t, "ESP32_007", result.Reading.DeviceID)
}

func TestIngest_DefaultDeviceID(t *testing.T) {
	p, _, clk := newTestPipeline(t, noModel())

	result, err := p.Ingest(context.Background(), Submission{Source: SourceAPI, Payload: NewPayload("", 25, 60, 50, 10)})
	require.NoError(t, err)
	assert.Equal(t, "ESP32_001", result.Reading.DeviceID)
	// stamped on arrival
	assert.Equal(t, clk.Now(), result.Reading.Timestamp)
	assert.Equal(t, clk.Now(), result.ReceivedAt)
}

func TestIngest_WriteReduction(t *testing.T) {
	p, store, clk := newTestPipeline(t, noModel())
	ctx := context.Background()

	first, err := p.Ingest(ctx, webhook(NewPayload("", 22, 55, 40, 10), "good-key"))
	require.NoError(t, err)
	assert.True(t, first.Persisted)

	clk.Advance(10 * time.Second)
	second, err := p.Ingest(ctx, webhook(NewPayload("", 22, 55, 40, 20), "good-key"))
	require.NoError(t, err)
	assert.False(t, second.Persisted)
	assert.True(t, second.Cached)
	assert.Equal(t, 20, p.Cache().Latest().AQI)

	clk.Advance(5 * time.Minute)
	third, err := p.Ingest(ctx, webhook(NewPayload("", 22, 55, 40, 30), "good-key"))
	require.NoError(t, err)
	assert.True(t, third.Persisted)
	assert.Equal(t, 2, store.count())
}

func TestIngest_StorageFailureDegradesToCache(t *testing.T) {
	p, store, clk := newTestPipeline(t, noModel())
	store.fail = true
	ctx := context.Background()

	result, err := p.Ingest(ctx, webhook(NewPayload("", 22, 55, 40, 42), "good-key"))
	require.NoError(t, err)
	assert.False(t, result.Persisted)
	assert.True(t, result.Cached)
	assert.ErrorIs(t, result.StorageErr, ErrStorageUnavailable)
	assert.Equal(t, 42, p.Cache().Latest().AQI)

	assert.Nil(t, p.Cache().Snapshot().LastSavedAt)

	// the next arrival retries right away
	store.fail = false
	clk.Advance(time.Second)
	retry, err := p.Ingest(ctx, webhook(NewPayload("", 22, 55, 40, 43), "good-key"))
	require.NoError(t, err)
	assert.True(t, retry.Persisted)
}

func TestIngest_ConcurrentArrivalsWriteOnce(t *testing.T) {
	// a clock that ticks on every read gives each arrival a unique time
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	now := func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Microsecond)
	}
	store := newFakeStore()
	store.delay = 5 * time.Millisecond
	p := NewPipeline(cache.New(5*time.Minute, cache.WithClock(now)), noModel(),
		WithStore(store),
		WithClock(now),
	)

	const arrivals = 50
	results := make([]*Result, arrivals)
	var wg sync.WaitGroup
	for i := 0; i < arrivals; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := NewPayload(fmt.Sprintf("ESP32_%03d", i), 22, 55, 40, float64(i))
			result, err := p.Ingest(context.Background(), Submission{Source: SourceAPI, Payload: payload})
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.count())

	var last *Result
	for _, r := range results {
		require.NotNil(t, r)
		if last == nil || r.ReceivedAt.After(last.ReceivedAt) {
			last = r
		}
	}

	latest := p.Cache().Latest()
	require.NotNil(t, latest)
	assert.Equal(t, last.Reading.DeviceID, latest.DeviceID)
	assert.Equal(t, last.Reading.Timestamp, latest.Timestamp)
	assert.Equal(t, last.ReceivedAt, *p.Cache().Snapshot().ReceivedAt)
}

func TestIngest_PublishesAndObserves(t *testing.T) {
	publisher := &fakePublisher{}
	observer := &recordingObserver{}
	p, _, _ := newTestPipeline(t, noModel(), WithPublisher(publisher), WithObserver(observer))

	_, err := p.Ingest(context.Background(), webhook(NewPayload("", 22, 55, 40, 10), "good-key"))
	require.NoError(t, err)
	_, err = p.Ingest(context.Background(), webhook(NewPayload("", 22, 55, 40, 10), "bad-key"))
	require.Error(t, err)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "ESP32_001", publisher.published[0].DeviceID)

	require.Len(t, observer.errs, 2)
	assert.NoError(t, observer.errs[0])
	assert.ErrorIs(t, observer.errs[1], ErrUnauthorized)
}

func TestIngest_WithoutStoreIsCacheOnly(t *testing.T) {
	c := cache.New(time.Minute)
	p := NewPipeline(c, noModel(), WithDefaultDeviceID("ESP32_001"))

	result, err := p.Ingest(context.Background(), Submission{Source: SourceAPI, Payload: NewPayload("", 25, 60, 50, 10)})
	require.NoError(t, err)
	assert.False(t, result.Persisted)
	assert.NotNil(t, c.Latest())
}

func TestIngest_ExplicitTimestamp(t *testing.T) {
	p, _, _ := newTestPipeline(t, noModel())

	payload, err := DecodePayloadBytes([]byte(`{"temperature": 25, "humidity": 60, "gas_level": 50, "dust_density": 10, "timestamp": "2026-02-28T23:59:00+07:00"}`))
	require.NoError(t, err)

	result, err := p.Ingest(context.Background(), Submission{Source: SourceAPI, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 16, 59, 0, 0, time.UTC), result.Reading.Timestamp)
}
