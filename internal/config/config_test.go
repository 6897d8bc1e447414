package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
instance_id: coach-dev-01
camera:
  rtsp_url: rtsp://localhost:8554/front
  mirrored: true
  rotation: 0
stream:
  resolution: 640x480
  fps: 15
  warmup_duration_s: 3
display:
  width: 1080
  height: 2400
detector:
  command: ./detector.py
  model_path: ./models/pose.onnx
  confidence: 0.5
  extended: true
mqtt:
  broker: localhost:1883
`

// Scenario: a complete config parses, and the omitted topics/QoS/health
// fields are filled with instance-scoped defaults.
func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.InstanceID != "coach-dev-01" {
		t.Fatalf("InstanceID = %q", cfg.InstanceID)
	}
	if !cfg.Camera.Mirrored {
		t.Fatal("camera.mirrored should be true")
	}
	if cfg.MQTT.Topics.Cues != "shotcoach/cues/coach-dev-01" {
		t.Fatalf("default cues topic = %q", cfg.MQTT.Topics.Cues)
	}
	if cfg.MQTT.QoS["cues"] != 1 {
		t.Fatalf("default cues qos = %d, want 1", cfg.MQTT.QoS["cues"])
	}
	if cfg.ShutdownTimeoutS != 5 {
		t.Fatalf("default shutdown timeout = %d, want 5", cfg.ShutdownTimeoutS)
	}
	if cfg.Health.Addr != ":8080" {
		t.Fatalf("default health addr = %q", cfg.Health.Addr)
	}
}

// Scenario: required and constrained fields each fail validation with an
// error naming the field.
func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing instance id", func(c *Config) { c.InstanceID = "" }, "instance_id"},
		{"uppercase instance id", func(c *Config) { c.InstanceID = "Coach01" }, "instance_id"},
		{"bad rotation", func(c *Config) { c.Camera.Rotation = 45 }, "rotation"},
		{"zero fps", func(c *Config) { c.Stream.FPS = 0 }, "fps"},
		{"bad resolution", func(c *Config) { c.Stream.Resolution = "640by480" }, "resolution"},
		{"zero display", func(c *Config) { c.Display.Width = 0 }, "display"},
		{"missing detector command", func(c *Config) { c.Detector.Command = "" }, "detector.command"},
		{"confidence out of range", func(c *Config) { c.Detector.Confidence = 1.5 }, "confidence"},
		{"missing broker", func(c *Config) { c.MQTT.Broker = "" }, "mqtt.broker"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(cfg)
			err = Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

// Scenario: the resolution string round-trips into dimensions.
func TestParseResolution(t *testing.T) {
	w, h, err := ParseResolution("1920x1080")
	if err != nil {
		t.Fatalf("ParseResolution: %v", err)
	}
	if w != 1920 || h != 1080 {
		t.Fatalf("got %dx%d", w, h)
	}

	for _, bad := range []string{"", "640", "x480", "640x", "-1x480", "0x0"} {
		if _, _, err := ParseResolution(bad); err == nil {
			t.Fatalf("ParseResolution(%q) should fail", bad)
		}
	}
}

// Scenario: a missing file and malformed YAML both surface as load errors.
func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "instance_id: [unclosed")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
