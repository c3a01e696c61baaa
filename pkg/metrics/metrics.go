// Package metrics exposes ingestion counters in the Prometheus text format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/ingest"
)

const namespace = "aqi"

// Outcome labels of the ingested counter
const (
	OutcomeAccepted     = "accepted"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInvalid      = "invalid"
	OutcomeUnavailable  = "unavailable"
	OutcomeError        = "error"
)

// Collector implements ingest.Observer on its own registry
type Collector struct {
	registry *prometheus.Registry

	ingested            *prometheus.CounterVec
	persisted           prometheus.Counter
	cachedOnly          prometheus.Counter
	storageFailures     prometheus.Counter
	calibrationFallback prometheus.Counter
	duration            *prometheus.HistogramVec
	lastAQI             *prometheus.GaugeVec
}

// NewCollector creates the collectors and registers them together with the
// Go runtime and process collectors
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Submissions processed, by entry point and outcome.",
		}, []string{"source", "outcome"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_persisted_total",
			Help:      "Readings appended to the database.",
		}),
		cachedOnly: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_cached_only_total",
			Help:      "Accepted readings that were only kept in the cache.",
		}),
		storageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Failed attempts to append a reading.",
		}),
		calibrationFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibration_fallback_total",
			Help:      "Readings stored with raw values because no model applied.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent processing one submission.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"source"}),
		lastAQI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_index",
			Help:      "Most recent air quality index per device.",
		}, []string{"device_id"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.ingested,
		c.persisted,
		c.cachedOnly,
		c.storageFailures,
		c.calibrationFallback,
		c.duration,
		c.lastAQI,
	)
	return c
}

// Registry returns the registry the collectors live on
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry for scraping
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// IngestFinished implements ingest.Observer
func (c *Collector) IngestFinished(source ingest.Source, result *ingest.Result, err error, elapsed time.Duration) {
	c.duration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
	c.ingested.WithLabelValues(string(source), Outcome(err)).Inc()

	if err != nil || result == nil {
		return
	}

	if result.Persisted {
		c.persisted.Inc()
	} else {
		c.cachedOnly.Inc()
	}
	if result.StorageErr != nil {
		c.storageFailures.Inc()
	}
	if !result.Reading.Calibrated {
		c.calibrationFallback.Inc()
	}
	c.lastAQI.WithLabelValues(result.Reading.DeviceID).Set(float64(result.Reading.AQI))
}

// Outcome maps an ingestion error to its label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ingest.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ingest.ErrMalformedPayload), ingest.IsValidationError(err):
		return OutcomeInvalid
	case errors.Is(err, ingest.ErrStorageUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
