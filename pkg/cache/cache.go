// Package cache holds the most recent reading in memory and decides when a
// reading is due to be written to the database.
package cache

import (
	"sync"
	"time"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// DefaultPersistInterval is the minimum spacing between two persisted readings
const DefaultPersistInterval = 5 * time.Minute

// Option configures a WriteReductionCache
type Option func(*WriteReductionCache)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(c *WriteReductionCache) {
		c.now = now
	}
}

// WriteReductionCache remembers the latest reading and the last successful
// persist. Every method is safe for concurrent use. The zero time of
// lastPersisted means nothing has been persisted yet.
type WriteReductionCache struct {
	mu            sync.Mutex
	interval      time.Duration
	now           func() time.Time
	latest        *models.SensorReading
	receivedAt    time.Time
	lastPersisted time.Time
	claimed       bool
}

// New creates a cache that lets one reading through per interval. A non
// positive interval falls back to DefaultPersistInterval.
func New(interval time.Duration, opts ...Option) *WriteReductionCache {
	if interval <= 0 {
		interval = DefaultPersistInterval
	}
	c := &WriteReductionCache{
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval returns the configured persist interval
func (c *WriteReductionCache) Interval() time.Duration {
	return c.interval
}

// UpdateLatest stores a copy of reading as the latest one and returns it with
// its arrival time. A reading without a timestamp is stamped with the arrival
// time under the cache lock, so stamped timestamps follow the order of updates.
func (c *WriteReductionCache) UpdateLatest(reading models.SensorReading) (models.SensorReading, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivedAt = c.now()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = c.receivedAt.UTC()
	}
	c.latest = &reading
	return reading, c.receivedAt
}

// Latest returns a copy of the latest reading, or nil before the first update
func (c *WriteReductionCache) Latest() *models.SensorReading {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest == nil {
		return nil
	}
	reading := *c.latest
	return &reading
}

// ShouldPersist reports whether a reading arriving now would be persisted.
// It does not claim the slot; use TryBeginPersist for that.
func (c *WriteReductionCache) ShouldPersist() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dueLocked(c.now())
}

func (c *WriteReductionCache) dueLocked(now time.Time) bool {
	if c.claimed {
		return false
	}
	return c.lastPersisted.IsZero() || now.Sub(c.lastPersisted) >= c.interval
}

// TryBeginPersist atomically checks the interval and claims the persist slot.
// At most one caller wins until the slot is released or marked persisted.
func (c *WriteReductionCache) TryBeginPersist() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dueLocked(c.now()) {
		return false
	}
	c.claimed = true
	return true
}

// MarkPersisted records a successful write and releases the claim
func (c *WriteReductionCache) MarkPersisted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastPersisted = c.now()
	c.claimed = false
}

// ReleasePersist gives up a claim after a failed write so the next reading
// is tried again. The last persisted time is left untouched.
func (c *WriteReductionCache) ReleasePersist() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.claimed = false
}

// Snapshot returns the cache state for the realtime endpoint
func (c *WriteReductionCache) Snapshot() models.RealtimeSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var snapshot models.RealtimeSnapshot
	if c.latest != nil {
		reading := *c.latest
		snapshot.Latest = &reading
		receivedAt := c.receivedAt
		snapshot.ReceivedAt = &receivedAt
	}
	if !c.lastPersisted.IsZero() {
		lastSaved := c.lastPersisted
		nextDue := c.lastPersisted.Add(c.interval)
		snapshot.LastSavedAt = &lastSaved
		snapshot.NextSaveDue = &nextDue
	}
	return snapshot
}
