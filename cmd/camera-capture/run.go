package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/simdevice"
)

type runOptions struct {
	Backend       string
	CameraID      int
	Width         int
	Height        int
	Rotation      int
	Focus         string
	Zoom          string
	Effect        string
	Scene         string
	Layout        string
	Sink          string
	OutputDir     string
	Broker        string
	SimFPS        int
	Duration      time.Duration
	StatsInterval time.Duration
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture preview frames until interrupted",
		Example: `  camera-capture run
  camera-capture run --width 320 --height 240 --rotation 90 --sink file --output ./frames
  camera-capture run --config camera.yaml --backend gst --sink mqtt --broker localhost:1883
  camera-capture run --duration 10s --stats-interval 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := newLogger(cfg.Log, os.Stdout)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if opts.Duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Duration)
				defer cancel()
			}
			return runCapture(ctx, cfg, opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Backend, "backend", "sim", "Camera backend: sim or gst")
	flags.IntVar(&opts.CameraID, "camera", 0, "Camera id")
	flags.IntVar(&opts.Width, "width", 640, "Requested preview width")
	flags.IntVar(&opts.Height, "height", 480, "Requested preview height")
	flags.IntVar(&opts.Rotation, "rotation", 0, "Clockwise rotation in degrees")
	flags.StringVar(&opts.Focus, "focus", "", "Focus mode")
	flags.StringVar(&opts.Zoom, "zoom", "", "Zoom ratio x100 (e.g. 150)")
	flags.StringVar(&opts.Effect, "effect", "", "Color effect")
	flags.StringVar(&opts.Scene, "scene", "", "Scene mode")
	flags.StringVar(&opts.Layout, "layout", "i420", "Chroma layout: i420, yv12, nv21 or nv12")
	flags.StringVar(&opts.Sink, "sink", "none", "Frame sink: none, file or mqtt")
	flags.StringVarP(&opts.OutputDir, "output", "o", "", "Snapshot directory (file sink)")
	flags.StringVar(&opts.Broker, "broker", "", "MQTT broker host:port (mqtt sink)")
	flags.IntVar(&opts.SimFPS, "sim-fps", 15, "Frame rate of the simulated camera")
	flags.DurationVar(&opts.Duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	flags.DurationVar(&opts.StatsInterval, "stats-interval", 5*time.Second, "Statistics reporting interval (0 disables)")

	cmd.RegisterFlagCompletionFunc("backend", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"sim", "gst"}, cobra.ShellCompDirectiveNoFileComp
	})
	cmd.RegisterFlagCompletionFunc("sink", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"none", "file", "mqtt"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// apply copies explicitly set flags over the file configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("backend") {
		cfg.Camera.Backend = o.Backend
	}
	if changed("camera") {
		cfg.Camera.ID = o.CameraID
	}
	if changed("width") {
		cfg.Camera.Width = o.Width
	}
	if changed("height") {
		cfg.Camera.Height = o.Height
	}
	if changed("rotation") {
		cfg.Camera.Rotation = o.Rotation
	}
	if changed("focus") {
		cfg.Camera.Focus = o.Focus
	}
	if changed("zoom") {
		cfg.Camera.Zoom = o.Zoom
	}
	if changed("effect") {
		cfg.Camera.Effect = o.Effect
	}
	if changed("scene") {
		cfg.Camera.Scene = o.Scene
	}
	if changed("layout") {
		cfg.Camera.Layout = o.Layout
	}
	if changed("sink") {
		cfg.Sink.Kind = o.Sink
	}
	if changed("output") {
		cfg.Sink.File.Dir = o.OutputDir
	}
	if changed("broker") {
		cfg.Sink.MQTT.Broker = o.Broker
	}
}

// frameSink is a Sink that can report and clean up.
type frameSink struct {
	cameracapture.Sink
	onError func(error)
	summary func() string
	close   func() error
}

func newFrameSink(cfg config.SinkConfig, logger *slog.Logger) (*frameSink, error) {
	switch cfg.Kind {
	case "file":
		fs, err := emitter.NewFileSink(cfg.File, logger)
		if err != nil {
			return nil, err
		}
		return &frameSink{
			Sink: fs,
			summary: func() string {
				st := fs.Stats()
				return fmt.Sprintf("%d written, %d failed, last %s", st.Written, st.Failed, st.Last)
			},
		}, nil

	case "mqtt":
		ms, err := emitter.NewMQTTSink(cfg.MQTT, logger)
		if err != nil {
			return nil, err
		}
		return &frameSink{
			Sink:    ms,
			onError: ms.PublishError,
			summary: func() string {
				st := ms.Stats()
				return fmt.Sprintf("%d published, %d throttled, %d dropped, %d errors",
					st.Published, st.Throttled, st.Dropped, st.Errors)
			},
			close: ms.Close,
		}, nil

	default:
		var n atomic.Uint64
		return &frameSink{
			Sink:    cameracapture.SinkFunc(func(cameracapture.Frame) { n.Add(1) }),
			summary: func() string { return fmt.Sprintf("%d discarded", n.Load()) },
		}, nil
	}
}

func runCapture(ctx context.Context, cfg *config.Config, opts *runOptions, logger *slog.Logger) error {
	printBanner(cfg)

	be, err := newBackend(cfg.Camera, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	sink, err := newFrameSink(cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	if sink.close != nil {
		defer sink.close()
	}

	ctrl, err := cameracapture.NewController(be.driver, be.renderer, sink,
		cameracapture.WithLogger(logger),
		cameracapture.WithShutdownTimeout(cfg.ShutdownTimeout),
		cameracapture.WithChromaLayout(be.layout),
		cameracapture.WithConverterWorkers(cfg.Camera.Workers),
	)
	if err != nil {
		return err
	}

	params := cameracapture.OpenParams{
		CameraID:        cfg.Camera.ID,
		Width:           cfg.Camera.Width,
		Height:          cfg.Camera.Height,
		Focus:           cfg.Camera.Focus,
		Zoom:            cfg.Camera.Zoom,
		Effect:          cfg.Camera.Effect,
		Scene:           cfg.Camera.Scene,
		RotationDegrees: cfg.Camera.Rotation,
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "camera error: %v\n", err)
			if sink.onError != nil {
				sink.onError(err)
			}
		},
	}
	if err := ctrl.Start(params); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	neg := ctrl.Negotiated()
	logger.Info("capture started",
		"resolution", neg.Size.String(),
		"focus", neg.FocusMode,
		"effect", neg.ColorEffect,
		"scene", neg.SceneMode,
		"zoom_ratio", neg.ZoomRatio,
		"rotation", neg.RotationDegrees,
	)

	if be.sim != nil {
		if dev := be.sim.Device(cfg.Camera.ID); dev != nil {
			fps := max(opts.SimFPS, 1)
			go simdevice.Pump(ctx, dev, time.Second/time.Duration(fps), simdevice.ColorBarsLayout(neg.Size.Width, neg.Size.Height, be.layout))
		}
	}

	if opts.StatsInterval > 0 {
		go reportStats(ctx, opts.StatsInterval, ctrl, sink.summary)
	}

	<-ctx.Done()
	logger.Info("shutdown requested, stopping capture")

	if err := ctrl.Stop(); err != nil {
		logger.Error("stop did not complete cleanly, forcing", "error", err)
		ctrl.ForceStop()
	}
	printFinalStats(ctrl.Stats(), sink.summary())
	return nil
}
