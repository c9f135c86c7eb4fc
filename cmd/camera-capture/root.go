package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/gstdevice"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/yuv"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/simdevice"
)

type rootOptions struct {
	ConfigPath string
	Debug      bool
	LogFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "camera-capture",
		Short: "Camera preview capture to RGBA frames",
		Long: `camera-capture opens a camera, negotiates preview parameters, converts
every YUV 4:2:0 preview frame to RGBA, rotates it and hands it to a sink
(snapshot files or an MQTT broker).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to YAML configuration file")
	flags.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.LogFormat, "log-format", "", "Log format: text or json (overrides config)")

	cmd.RegisterFlagCompletionFunc("log-format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newProbeCommand(opts))

	return cmd
}

// loadConfig reads the configuration file when given and applies the global
// flags. The returned config has not been validated when flags changed it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Debug {
		cfg.Log.Level = "debug"
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("invalid log format %q (must be text or json)", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// backend is an opened driver plus what the run loop needs from it.
type backend struct {
	driver   cameracapture.Driver
	renderer cameracapture.Renderer
	// sim is set for the simulated backend, which needs frames pumped in
	sim *simdevice.Driver
	// layout is the chroma layout both the device and the converter use
	layout yuv.Layout
}

func newBackend(cfg config.CameraConfig, logger *slog.Logger) (*backend, error) {
	layout, err := yuv.ParseLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "sim":
		driver := simdevice.NewDriver(nil, logger)
		return &backend{driver: driver, renderer: simdevice.NewRenderer(), sim: driver, layout: layout}, nil

	case "gst":
		driver, err := gstdevice.NewDriver(gstdevice.Config{
			Source:         cfg.Source,
			DeviceTemplate: cfg.Device,
			FPS:            cfg.FPS,
			Layout:         layout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &backend{driver: driver, renderer: gstdevice.NewRenderer(), layout: layout}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

