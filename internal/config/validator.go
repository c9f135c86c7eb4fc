package config

import (
	"fmt"
	"time"
)

// Validate checks cfg and fills defaults in place
func Validate(cfg *Config) error {
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be >= 0")
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = time.Second
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := validateSink(&cfg.Sink); err != nil {
		return fmt.Errorf("sink: %w", err)
	}

	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown (must be debug, info, warn or error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q unknown (must be text or json)", cfg.Log.Format)
	}

	return nil
}

func validateCamera(c *CameraConfig) error {
	switch c.Backend {
	case "":
		c.Backend = "sim"
	case "sim", "gst":
	default:
		return fmt.Errorf("backend %q unknown (must be sim or gst)", c.Backend)
	}
	if c.Backend == "gst" {
		switch c.Source {
		case "":
			c.Source = "v4l2"
		case "v4l2", "test":
		default:
			return fmt.Errorf("source %q unknown (must be v4l2 or test)", c.Source)
		}
		if c.Device == "" {
			c.Device = "/dev/video%d"
		}
	}

	if c.ID < 0 {
		return fmt.Errorf("id must be >= 0")
	}
	if c.Width == 0 && c.Height == 0 {
		c.Width, c.Height = 640, 480
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be > 0, got %dx%d", c.Width, c.Height)
	}
	if c.FPS < 0 || c.FPS > 120 {
		return fmt.Errorf("fps must be 0-120, got %d", c.FPS)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}

	switch c.Layout {
	case "":
		c.Layout = "i420"
	case "i420", "yv12", "nv21", "nv12":
	default:
		return fmt.Errorf("layout %q unknown (must be i420, yv12, nv21 or nv12)", c.Layout)
	}
	return nil
}

func validateSink(s *SinkConfig) error {
	switch s.Kind {
	case "":
		s.Kind = "none"
	case "none", "file", "mqtt":
	default:
		return fmt.Errorf("kind %q unknown (must be none, file or mqtt)", s.Kind)
	}

	if s.Kind == "file" {
		if s.File.Dir == "" {
			return fmt.Errorf("file.dir is required")
		}
	}
	switch s.File.Format {
	case "":
		s.File.Format = "png"
	case "png", "jpeg":
	default:
		return fmt.Errorf("file.format %q unknown (must be png or jpeg)", s.File.Format)
	}
	if s.File.Quality == 0 {
		s.File.Quality = 90
	}
	if s.File.Quality < 1 || s.File.Quality > 100 {
		return fmt.Errorf("file.quality must be 1-100, got %d", s.File.Quality)
	}
	if s.File.Every <= 0 {
		s.File.Every = 1
	}

	m := &s.MQTT
	if s.Kind == "mqtt" && m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if m.ClientID == "" {
		m.ClientID = "camera-capture"
	}
	if m.FrameTopic == "" {
		m.FrameTopic = fmt.Sprintf("care/camera/%s/frames", m.ClientID)
	}
	if m.ErrorTopic == "" {
		m.ErrorTopic = fmt.Sprintf("care/camera/%s/errors", m.ClientID)
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	if m.MinInterval < 0 {
		return fmt.Errorf("mqtt.min_interval must be >= 0")
	}
	if m.Quality == 0 {
		m.Quality = 75
	}
	if m.Quality < 1 || m.Quality > 100 {
		return fmt.Errorf("mqtt.quality must be 1-100, got %d", m.Quality)
	}
	return nil
}
