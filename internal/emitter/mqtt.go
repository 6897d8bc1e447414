// Package emitter publishes coaching output to an MQTT broker: edge cues
// (confirmation and critical alerts), per-frame feedback, and health.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/visiona/shotcoach/internal/composition"
	"github.com/visiona/shotcoach/internal/config"
)

// CueEvent is the wire format for an edge-triggered coaching cue.
type CueEvent struct {
	InstanceID string `json:"instance_id"`
	Event      string `json:"event"` // "confirm" or "critical"
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Guidance   string `json:"guidance"`
	FrameSeq   uint64 `json:"frame_seq"`
	TraceID    string `json:"trace_id,omitempty"`
	Timestamp  int64  `json:"timestamp_ms"`
}

// FeedbackEvent is the wire format for continuous per-frame feedback.
type FeedbackEvent struct {
	InstanceID string `json:"instance_id"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Guidance   string `json:"guidance"`
	FrameSeq   uint64 `json:"frame_seq"`
	TraceID    string `json:"trace_id,omitempty"`
	Timestamp  int64  `json:"timestamp_ms"`
}

// MQTTEmitter publishes coaching events to an MQTT broker.
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // exported for the health reporter

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter.
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection with automatic reconnection.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
		)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// PublishCue publishes an edge-triggered cue (confirmation or critical
// alert) to the cues topic.
func (e *MQTTEmitter) PublishCue(event string, fb composition.Feedback, frameSeq uint64, traceID string) error {
	cue := CueEvent{
		InstanceID: e.cfg.InstanceID,
		Event:      event,
		Severity:   fb.Severity.String(),
		Message:    fb.Message,
		Guidance:   fb.Guidance.String(),
		FrameSeq:   frameSeq,
		TraceID:    traceID,
		Timestamp:  time.Now().UnixMilli(),
	}
	return e.publishJSON(e.cfg.MQTT.Topics.Cues, e.qos("cues"), cue)
}

// PublishFeedback publishes the current per-frame feedback to the feedback
// topic.
func (e *MQTTEmitter) PublishFeedback(fb composition.Feedback, frameSeq uint64, traceID string) error {
	event := FeedbackEvent{
		InstanceID: e.cfg.InstanceID,
		Severity:   fb.Severity.String(),
		Message:    fb.Message,
		Guidance:   fb.Guidance.String(),
		FrameSeq:   frameSeq,
		TraceID:    traceID,
		Timestamp:  time.Now().UnixMilli(),
	}
	return e.publishJSON(e.cfg.MQTT.Topics.Feedback, e.qos("feedback"), event)
}

// PublishHealth publishes a pre-marshaled health payload.
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	if !e.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	token := e.Client.Publish(e.cfg.MQTT.Topics.Health, e.qos("health"), false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

func (e *MQTTEmitter) publishJSON(topic string, qos byte, v any) error {
	if !e.isConnected() {
		e.recordError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		e.recordError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.recordError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.recordError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("event published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
	)

	return nil
}

// Disconnect closes the MQTT connection.
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns emitter statistics.
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

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) recordError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

func (e *MQTTEmitter) qos(kind string) byte {
	if qos, ok := e.cfg.MQTT.QoS[kind]; ok {
		return qos
	}
	return 0
}
