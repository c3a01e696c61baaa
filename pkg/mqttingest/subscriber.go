// Package mqttingest feeds readings published by devices over MQTT into the
// ingestion pipeline. Devices publish JSON to a topic such as aqi/<device>/data
// and authenticate with an "api-key" user property.
package mqttingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/ingest"
)

// APIKeyProperty is the MQTT v5 user property carrying the device key
const APIKeyProperty = "api-key"

// Ingester is the part of the pipeline the subscriber drives
type Ingester interface {
	Ingest(ctx context.Context, sub ingest.Submission) (*ingest.Result, error)
}

// Config holds the broker connection settings
type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
	// ReconnectDelay is the pause between connection attempts
	ReconnectDelay time.Duration
}

// Subscriber keeps one MQTT session open and resubscribes after drops
type Subscriber struct {
	address        string
	topic          string
	clientID       string
	reconnectDelay time.Duration
	ingester       Ingester
	logger         *slog.Logger

	mu     sync.Mutex
	client *paho.Client
	lost   chan struct{}
	done   chan struct{}
}

// NewSubscriber validates cfg and prepares a subscriber
func NewSubscriber(cfg Config, ingester Ingester, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}

	address, err := brokerAddress(cfg.BrokerURL)
	if err != nil {
		return nil, err
	}

	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("mqtt topic must not be empty")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "airmaestro-" + uuid.NewString()[:8]
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	return &Subscriber{
		address:        address,
		topic:          topic,
		clientID:       clientID,
		reconnectDelay: delay,
		ingester:       ingester,
		logger:         logger,
		done:           make(chan struct{}),
	}, nil
}

// brokerAddress turns tcp://host:port or mqtt://host:port into host:port
func brokerAddress(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mqtt broker url: %w", err)
	}
	switch u.Scheme {
	case "tcp", "mqtt":
	default:
		return "", fmt.Errorf("unsupported mqtt scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("mqtt broker url has no host")
	}
	if u.Port() == "" {
		return net.JoinHostPort(u.Hostname(), "1883"), nil
	}
	return u.Host, nil
}

// Start connects and subscribes once, then keeps the session alive in the
// background until ctx is cancelled. The first connection error is returned.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	go s.supervise(ctx)
	return nil
}

// Done is closed once the subscriber stopped after ctx was cancelled
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) supervise(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.Lock()
		lost := s.lost
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.disconnect()
			return
		case <-lost:
		}

		s.logger.Warn("MQTT connection lost, reconnecting", slog.String("broker", s.address))
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
			if err := s.connect(ctx); err != nil {
				s.logger.Error("❌ MQTT reconnect failed", slog.String("error", err.Error()))
				continue
			}
			break
		}
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to dial mqtt broker: %w", err)
	}

	lost := make(chan struct{})
	var lostOnce sync.Once
	markLost := func() { lostOnce.Do(func() { close(lost) }) }

	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				s.handle(ctx, pr.Packet)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			s.logger.Warn("MQTT client error", slog.String("error", err.Error()))
			markLost()
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			s.logger.Warn("MQTT broker closed the session", slog.Int("reason_code", int(d.ReasonCode)))
			markLost()
		},
	})

	if _, err := client.Connect(dialCtx, &paho.Connect{
		ClientID:   s.clientID,
		KeepAlive:  30,
		CleanStart: true,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	if _, err := client.Subscribe(dialCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.topic, QoS: 1}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
	}

	s.mu.Lock()
	s.client = client
	s.lost = lost
	s.mu.Unlock()

	s.logger.Info("✓ Subscribed to MQTT readings",
		slog.String("broker", s.address),
		slog.String("topic", s.topic))
	return nil
}

func (s *Subscriber) disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
}

// handle runs one published message through the pipeline. Rejected
// messages are logged and dropped; MQTT has no response channel.
func (s *Subscriber) handle(ctx context.Context, msg *paho.Publish) {
	payload, err := ingest.DecodePayloadBytes(msg.Payload)
	if err != nil {
		s.logger.Warn("Dropping malformed MQTT reading",
			slog.String("topic", msg.Topic),
			slog.String("error", err.Error()))
		return
	}
	if payload.DeviceID == "" {
		payload.DeviceID = DeviceFromTopic(s.topic, msg.Topic)
	}

	var credential string
	if msg.Properties != nil {
		for _, prop := range msg.Properties.User {
			if prop.Key == APIKeyProperty {
				credential = prop.Value
				break
			}
		}
	}

	result, err := s.ingester.Ingest(ctx, ingest.Submission{
		Source:            ingest.SourceMQTT,
		Payload:           payload,
		Credential:        credential,
		RequireCredential: true,
	})
	if err != nil {
		s.logger.Warn("Rejected MQTT reading",
			slog.String("topic", msg.Topic),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Debug("MQTT reading accepted",
		slog.String("device_id", result.Reading.DeviceID),
		slog.Int("aqi", result.Reading.AQI),
		slog.Bool("saved_to_database", result.Persisted))
}

// DeviceFromTopic returns the topic level matched by the first single-level
// wildcard of filter, or "" when there is none
func DeviceFromTopic(filter, topic string) string {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")
	for i, level := range filterLevels {
		if i >= len(topicLevels) {
			return ""
		}
		if level == "+" {
			return topicLevels[i]
		}
		if level == "#" {
			return ""
		}
	}
	return ""
}
