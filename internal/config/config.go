// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coaching daemon configuration.
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig   `yaml:"camera"`
	Stream           StreamConfig   `yaml:"stream"`
	Display          DisplayConfig  `yaml:"display"`
	Detector         DetectorConfig `yaml:"detector"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Health           HealthConfig   `yaml:"health"`
}

// CameraConfig contains capture source settings.
type CameraConfig struct {
	// RTSPURL is the capture endpoint. Empty means synthetic frames
	// (mock source), useful for development without a camera.
	RTSPURL string `yaml:"rtsp_url"`
	// Mirrored selects front-camera preview semantics: screen
	// coordinates are flipped horizontally relative to the sensor
	Mirrored bool `yaml:"mirrored"`
	// Rotation of the raw buffer in degrees (0, 90, 180, 270)
	Rotation int `yaml:"rotation"`
}

// StreamConfig contains frame acquisition settings.
type StreamConfig struct {
	Resolution      string  `yaml:"resolution"` // "640x480"
	FPS             float64 `yaml:"fps"`
	WarmupDurationS int     `yaml:"warmup_duration_s"`
}

// DisplayConfig describes the preview surface frames are mapped onto.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DetectorConfig contains pose detector subprocess settings.
type DetectorConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	ModelPath  string   `yaml:"model_path"`
	Confidence float64  `yaml:"confidence"`
	// Extended enables the centering and distance rules on top of the
	// core tilt/headroom analysis
	Extended bool `yaml:"extended"`
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates.
type MQTTTopics struct {
	Cues     string `yaml:"cues"`
	Feedback string `yaml:"feedback"`
	Health   string `yaml:"health"`
}

// HealthConfig contains the HTTP health endpoint settings.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
