// Package realtime fans processed readings out to live dashboards over NATS.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/aqi"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "aqi.readings"

// Conn is the part of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes every reading on <prefix>.<device_id>
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewPublisher wraps an existing connection
func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Connect dials url and returns a publisher that owns the connection
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("airmaestro"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("✓ NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := NewPublisher(nc, prefix, logger)
	p.nc = nc
	logger.Info("✓ Connected to NATS", slog.String("url", nc.ConnectedUrl()), slog.String("subject_prefix", p.prefix))
	return p, nil
}

// Subject returns the subject readings of deviceID are published on
func (p *Publisher) Subject(deviceID string) string {
	return p.prefix + "." + subjectToken(deviceID)
}

// Publish sends the reading as a models.ReadingView JSON document. NATS publishing is fire and forget, so
// the context is only checked up front.
func (p *Publisher) Publish(ctx context.Context, reading models.SensorReading) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	data, err := json.Marshal(aqi.View(reading))
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	if err := p.conn.Publish(p.Subject(reading.DeviceID), data); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}
	return nil
}

// Close drains the connection if the publisher owns one
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// subjectToken turns a device id into a single subject token
func subjectToken(deviceID string) string {
	if deviceID == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, deviceID)
}
