// Package emitter publishes viewer session events to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

// Event types
const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
)

// Payload formats
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Event describes one session lifecycle transition
type Event struct {
	Type      string    `json:"type" msgpack:"type"`
	SessionID string    `json:"session_id" msgpack:"session_id"`
	Location  string    `json:"location" msgpack:"location"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`

	// Set on session_ended only
	Outcome       string  `json:"outcome,omitempty" msgpack:"outcome,omitempty"`
	Error         string  `json:"error,omitempty" msgpack:"error,omitempty"`
	ErrorCategory string  `json:"error_category,omitempty" msgpack:"error_category,omitempty"`
	UptimeSeconds float64 `json:"uptime_s,omitempty" msgpack:"uptime_s,omitempty"`
	Frames        uint64  `json:"frames,omitempty" msgpack:"frames,omitempty"`
	FPSMean       float64 `json:"fps_mean,omitempty" msgpack:"fps_mean,omitempty"`
	Restarts      int     `json:"restarts,omitempty" msgpack:"restarts,omitempty"`
	Width         int     `json:"width,omitempty" msgpack:"width,omitempty"`
	Height        int     `json:"height,omitempty" msgpack:"height,omitempty"`
}

// Encode serializes ev in the given format
func Encode(ev Event, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.Marshal(ev)
	case FormatMsgpack:
		return msgpack.Marshal(ev)
	default:
		return nil, fmt.Errorf("unsupported event format %q", format)
	}
}

// Config contains the broker settings
type Config struct {
	Broker         string // host:port, or a full tcp:// / ssl:// / ws:// URL
	ClientID       string
	Topic          string // Events go to {Topic}/{event type}
	QoS            byte
	Format         string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// MQTTEmitter publishes events to an MQTT broker
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// New creates an emitter. Connect must be called before Publish.
func New(cfg Config) *MQTTEmitter {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes the connection to the broker.
// The client reconnects on its own after a connection loss.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(e.cfg.ConnectTimeout):
		return fmt.Errorf("mqtt connection timeout after %s", e.cfg.ConnectTimeout)
	case <-ctx.Done():
		return fmt.Errorf("mqtt connection cancelled: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish sends ev to {Topic}/{ev.Type}
func (e *MQTTEmitter) Publish(ev Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := Encode(ev, e.cfg.Format)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to encode event: %w", err)
	}

	topic := Topic(e.cfg.Topic, ev.Type)

	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(e.cfg.PublishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: event published",
		"topic", topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the broker connection
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250) // ms grace period
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns a snapshot of the emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

// Topic joins the base topic and the event type
func Topic(base, eventType string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return eventType
	}
	return base + "/" + eventType
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
