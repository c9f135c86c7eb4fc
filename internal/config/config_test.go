package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camera.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
shutdown_timeout: 2s
camera:
  backend: gst
  source: test
  id: 1
  width: 320
  height: 240
  fps: 15
  focus: continuous-video
  zoom: "150"
  effect: mono
  scene: night
  rotation: 90
  layout: nv21
sink:
  kind: mqtt
  mqtt:
    broker: localhost:1883
    client_id: cam-ward-3
    qos: 1
    min_interval: 500ms
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ShutdownTimeout != 2*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 2s", cfg.ShutdownTimeout)
	}
	c := cfg.Camera
	if c.Backend != "gst" || c.Source != "test" || c.ID != 1 || c.Width != 320 || c.Height != 240 {
		t.Errorf("camera = %+v", c)
	}
	if c.Focus != "continuous-video" || c.Zoom != "150" || c.Effect != "mono" || c.Scene != "night" {
		t.Errorf("camera modes = %+v", c)
	}
	if c.Rotation != 90 || c.Layout != "nv21" || c.FPS != 15 {
		t.Errorf("camera rotation/layout/fps = %d/%s/%d", c.Rotation, c.Layout, c.FPS)
	}
	if c.Device != "/dev/video%d" {
		t.Errorf("default device template = %q", c.Device)
	}

	m := cfg.Sink.MQTT
	if m.Broker != "localhost:1883" || m.QoS != 1 || m.MinInterval != 500*time.Millisecond {
		t.Errorf("mqtt = %+v", m)
	}
	if m.FrameTopic != "care/camera/cam-ward-3/frames" || m.ErrorTopic != "care/camera/cam-ward-3/errors" {
		t.Errorf("default topics = %q, %q", m.FrameTopic, m.ErrorTopic)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	t.Log("✅ full configuration loaded")
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	if cfg.ShutdownTimeout != time.Second {
		t.Errorf("ShutdownTimeout = %v, want 1s", cfg.ShutdownTimeout)
	}
	if cfg.Camera.Backend != "sim" || cfg.Camera.Width != 640 || cfg.Camera.Height != 480 {
		t.Errorf("camera defaults = %+v", cfg.Camera)
	}
	if cfg.Camera.Layout != "i420" {
		t.Errorf("layout default = %q", cfg.Camera.Layout)
	}
	if cfg.Sink.Kind != "none" || cfg.Sink.File.Format != "png" || cfg.Sink.File.Every != 1 {
		t.Errorf("sink defaults = %+v", cfg.Sink)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"unknown backend", func(c *config.Config) { c.Camera.Backend = "usb" }, "backend"},
		{"unknown gst source", func(c *config.Config) { c.Camera.Backend, c.Camera.Source = "gst", "rtsp" }, "source"},
		{"negative id", func(c *config.Config) { c.Camera.ID = -1 }, "id"},
		{"half geometry", func(c *config.Config) { c.Camera.Width = 640 }, "width and height"},
		{"fps too high", func(c *config.Config) { c.Camera.FPS = 240 }, "fps"},
		{"unknown layout", func(c *config.Config) { c.Camera.Layout = "yuy2" }, "layout"},
		{"negative timeout", func(c *config.Config) { c.ShutdownTimeout = -time.Second }, "shutdown_timeout"},
		{"unknown sink", func(c *config.Config) { c.Sink.Kind = "kafka" }, "kind"},
		{"file without dir", func(c *config.Config) { c.Sink.Kind = "file" }, "file.dir"},
		{"bad file format", func(c *config.Config) { c.Sink.File.Format = "bmp" }, "file.format"},
		{"bad quality", func(c *config.Config) { c.Sink.File.Quality = 101 }, "file.quality"},
		{"mqtt without broker", func(c *config.Config) { c.Sink.Kind = "mqtt" }, "mqtt.broker"},
		{"bad qos", func(c *config.Config) { c.Sink.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
	if _, err := config.Load(writeConfig(t, "camera: [not, a, map]")); err == nil {
		t.Error("Load of malformed YAML should fail")
	}
	if _, err := config.Load(writeConfig(t, "camera:\n  backend: usb\n")); err == nil {
		t.Error("Load of an invalid config should fail")
	}
}
