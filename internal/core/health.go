package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the coaching service.
type HealthStatus struct {
	Status        string  `json:"status"` // "healthy", "degraded", "unhealthy"
	InstanceID    string  `json:"instance_id"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	StreamUp      bool    `json:"stream_connected"`
	MQTTUp        bool    `json:"mqtt_connected"`
	FramesIn      uint64  `json:"frames_in"`
	Analyzed      uint64  `json:"frames_analyzed"`
	Dropped       uint64  `json:"frames_dropped"`
	DropRate      float64 `json:"drop_rate"`
	DetectorStats any     `json:"detector,omitempty"`
}

// JSON marshals the status for the MQTT health topic.
func (h HealthStatus) JSON() ([]byte, error) {
	return json.Marshal(h)
}

// HealthCheck collects the current health status across components.
func (c *Coach) HealthCheck() HealthStatus {
	c.mu.RLock()
	running := c.isRunning
	started := c.started
	c.mu.RUnlock()

	status := HealthStatus{
		Status:     "healthy",
		InstanceID: c.cfg.InstanceID,
	}
	if !started.IsZero() {
		status.UptimeSeconds = int64(time.Since(started).Seconds())
	}

	if c.stream != nil {
		status.StreamUp = c.stream.Stats().IsConnected
	}
	if c.emitter != nil && c.emitter.Client != nil && c.emitter.Client.IsConnected() {
		status.MQTTUp = true
	}

	if c.pipe != nil {
		ps := c.pipe.Stats()
		status.FramesIn = ps.FramesIn
		status.Analyzed = ps.FramesAnalyzed
		status.Dropped = ps.FramesDropped
		if ps.FramesIn > 0 {
			status.DropRate = float64(ps.FramesDropped) / float64(ps.FramesIn)
		}
	}
	if c.det != nil {
		status.DetectorStats = c.det.Metrics()
	}

	switch {
	case !running:
		status.Status = "unhealthy"
	case !status.StreamUp || !status.MQTTUp:
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health (simple liveness check).
func (c *Coach) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()

	var uptime int64
	if !started.IsZero() {
		uptime = int64(time.Since(started).Seconds())
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": uptime,
	})
}

// ReadinessHandler handles /readiness (detailed readiness check).
func (c *Coach) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := c.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// MetricsHandler handles /metrics in a plain-text exposition format.
func (c *Coach) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	health := c.HealthCheck()
	inst := c.cfg.InstanceID
	fmt.Fprintf(w, "shotcoach_uptime_seconds{instance=%q} %d\n", inst, health.UptimeSeconds)
	fmt.Fprintf(w, "shotcoach_frames_in_total{instance=%q} %d\n", inst, health.FramesIn)
	fmt.Fprintf(w, "shotcoach_frames_analyzed_total{instance=%q} %d\n", inst, health.Analyzed)
	fmt.Fprintf(w, "shotcoach_frames_dropped_total{instance=%q} %d\n", inst, health.Dropped)
	fmt.Fprintf(w, "shotcoach_drop_rate{instance=%q} %.4f\n", inst, health.DropRate)
}

// StartHealthServer starts the HTTP health server. Non-blocking.
func (c *Coach) StartHealthServer(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.LivenessHandler)
	mux.HandleFunc("/readiness", c.ReadinessHandler)
	mux.HandleFunc("/metrics", c.MetricsHandler)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health server",
		"addr", addr,
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()

	return nil
}
