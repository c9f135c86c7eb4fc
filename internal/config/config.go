package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the camera-capture service configuration
type Config struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // worker quit bound (default: 1s)
	Camera          CameraConfig  `yaml:"camera"`
	Sink            SinkConfig    `yaml:"sink"`
	Log             LogConfig     `yaml:"log"`
}

// CameraConfig selects the backend and the requested preview parameters
type CameraConfig struct {
	Backend  string `yaml:"backend"`  // sim, gst
	Source   string `yaml:"source"`   // gst only: v4l2, test
	ID       int    `yaml:"id"`       // camera id
	Device   string `yaml:"device"`   // gst only: device node template, e.g. /dev/video%d
	Width    int    `yaml:"width"`    // requested preview width
	Height   int    `yaml:"height"`   // requested preview height
	FPS      int    `yaml:"fps"`      // gst only: 0 keeps the source rate
	Focus    string `yaml:"focus"`    // auto, continuous-video, fixed, ...
	Zoom     string `yaml:"zoom"`     // zoom ratio x100, e.g. "150"
	Effect   string `yaml:"effect"`   // none, mono, sepia, ...
	Scene    string `yaml:"scene"`    // auto, night, ...
	Rotation int    `yaml:"rotation"` // clockwise degrees
	Layout   string `yaml:"layout"`   // i420, yv12, nv21, nv12
	Workers  int    `yaml:"workers"`  // converter band workers (0 = NumCPU)
}

// SinkConfig selects where delivered frames go
type SinkConfig struct {
	Kind string     `yaml:"kind"` // none, file, mqtt
	File FileConfig `yaml:"file"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// FileConfig configures snapshot files
type FileConfig struct {
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"`  // png, jpeg
	Quality int    `yaml:"quality"` // jpeg quality 1-100
	Every   int    `yaml:"every"`   // write every Nth frame
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker      string        `yaml:"broker"` // host:port
	ClientID    string        `yaml:"client_id"`
	FrameTopic  string        `yaml:"frame_topic"`
	ErrorTopic  string        `yaml:"error_topic"`
	QoS         byte          `yaml:"qos"`
	MinInterval time.Duration `yaml:"min_interval"` // throttle between published frames
	Quality     int           `yaml:"quality"`      // jpeg quality of published frames
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration that runs the simulated camera with no
// sink.
func Default() *Config {
	cfg := &Config{}
	// Validate only fills defaults on an empty config.
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: default configuration invalid: %v", err))
	}
	return cfg
}

// Load reads, parses and validates a YAML configuration file
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
