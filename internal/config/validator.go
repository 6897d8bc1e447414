package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	switch cfg.Camera.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("camera.rotation must be 0, 90, 180 or 270, got %d", cfg.Camera.Rotation)
	}

	if cfg.Stream.Resolution == "" {
		cfg.Stream.Resolution = "640x480"
	}
	if _, _, err := ParseResolution(cfg.Stream.Resolution); err != nil {
		return fmt.Errorf("stream.resolution: %w", err)
	}
	if cfg.Stream.FPS <= 0 {
		return fmt.Errorf("stream.fps must be > 0")
	}
	if cfg.Stream.WarmupDurationS < 0 {
		return fmt.Errorf("stream.warmup_duration_s must be >= 0")
	}

	if cfg.Display.Width <= 0 || cfg.Display.Height <= 0 {
		return fmt.Errorf("display dimensions must be > 0, got %dx%d",
			cfg.Display.Width, cfg.Display.Height)
	}

	if cfg.Detector.Command == "" {
		return fmt.Errorf("detector.command is required")
	}
	if cfg.Detector.Confidence == 0 {
		cfg.Detector.Confidence = 0.5
	}
	if cfg.Detector.Confidence < 0 || cfg.Detector.Confidence > 1 {
		return fmt.Errorf("detector.confidence must be in [0,1], got %.2f", cfg.Detector.Confidence)
	}

	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT.Topics.Cues == "" {
		cfg.MQTT.Topics.Cues = fmt.Sprintf("shotcoach/cues/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Feedback == "" {
		cfg.MQTT.Topics.Feedback = fmt.Sprintf("shotcoach/feedback/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("shotcoach/health/%s", cfg.InstanceID)
	}
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"cues":     1,
			"feedback": 0,
			"health":   0,
		}
	}

	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":8080"
	}

	return nil
}

// ParseResolution splits a "WIDTHxHEIGHT" string into its dimensions.
func ParseResolution(res string) (width, height int, err error) {
	parts := strings.SplitN(res, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q (want WIDTHxHEIGHT)", res)
	}
	width, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q", parts[0])
	}
	height, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q", parts[1])
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("resolution must be positive, got %dx%d", width, height)
	}
	return width, height, nil
}
