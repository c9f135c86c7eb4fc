package main

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/simdevice"
)

func TestProbe_SimulatedCamera(t *testing.T) {
	driver := simdevice.NewDriver(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	caps, err := probe(driver, 0)
	if err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	if driver.OpenDevices() != 0 {
		t.Error("probe left the camera open")
	}

	var out bytes.Buffer
	printCapabilities(&out, 0, caps)
	for _, want := range []string{"Camera 0", "640x480", "continuous-video", "sepia", "night", "100, 150, 200, 300"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("capabilities output missing %q:\n%s", want, out.String())
		}
	}

	if _, err := probe(driver, 9); err == nil {
		t.Error("probe of an unknown camera should fail")
	}
}

func TestRunOptions_FlagsOverrideConfig(t *testing.T) {
	cmd := newRunCommand(&rootOptions{})
	if err := cmd.ParseFlags([]string{"--width", "320", "--height", "240", "--rotation", "270", "--sink", "file", "-o", "/tmp/x"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Camera.Focus = "fixed"
	opts := &runOptions{}
	// Flag values live in the options bound at construction; re-read them.
	opts.Width, _ = cmd.Flags().GetInt("width")
	opts.Height, _ = cmd.Flags().GetInt("height")
	opts.Rotation, _ = cmd.Flags().GetInt("rotation")
	opts.Sink, _ = cmd.Flags().GetString("sink")
	opts.OutputDir, _ = cmd.Flags().GetString("output")
	opts.apply(cmd, cfg)

	if cfg.Camera.Width != 320 || cfg.Camera.Height != 240 || cfg.Camera.Rotation != 270 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Sink.Kind != "file" || cfg.Sink.File.Dir != "/tmp/x" {
		t.Errorf("sink = %+v", cfg.Sink)
	}
	if cfg.Camera.Focus != "fixed" {
		t.Errorf("unset flag overrode focus: %q", cfg.Camera.Focus)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg     config.LogConfig
		wantErr bool
	}{
		{config.LogConfig{Level: "info", Format: "text"}, false},
		{config.LogConfig{Level: "debug", Format: "json"}, false},
		{config.LogConfig{Level: "loud", Format: "text"}, true},
		{config.LogConfig{Level: "info", Format: "xml"}, true},
	}
	defer slog.SetDefault(slog.Default())
	for _, tt := range tests {
		_, err := newLogger(tt.cfg, io.Discard)
		if (err != nil) != tt.wantErr {
			t.Errorf("newLogger(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}

func TestRunCapture_SimToFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	cfg := config.Default()
	cfg.Camera.Width, cfg.Camera.Height = 320, 240
	cfg.Camera.Rotation = 90
	cfg.Sink.Kind = "file"
	cfg.Sink.File.Dir = dir
	cfg.Sink.File.Every = 1
	if err := config.Validate(cfg); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	opts := &runOptions{SimFPS: 20}
	if err := runCapture(ctx, cfg, opts, logger); err != nil {
		t.Fatalf("runCapture() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("no snapshots written")
	}
	t.Logf("✅ %d snapshots written in 500ms", len(entries))
}

func TestRunCapture_SimHonoursChromaLayout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, layout := range []string{"i420", "yv12", "nv21", "nv12"} {
		t.Run(layout, func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.Default()
			cfg.Camera.Width, cfg.Camera.Height = 320, 240
			cfg.Camera.Layout = layout
			cfg.Sink.Kind = "file"
			cfg.Sink.File.Dir = dir
			if err := config.Validate(cfg); err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			if err := runCapture(ctx, cfg, &runOptions{SimFPS: 20}, logger); err != nil {
				t.Fatalf("runCapture() error = %v", err)
			}

			entries, err := os.ReadDir(dir)
			if err != nil || len(entries) == 0 {
				t.Fatalf("no snapshots written (err=%v)", err)
			}
			f, err := os.Open(filepath.Join(dir, entries[0].Name()))
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			img, err := png.Decode(f)
			if err != nil {
				t.Fatal(err)
			}

			// Leftmost bar is white, the seventh is blue.
			tests := []struct {
				x    int
				want color.RGBA
			}{
				{0, color.RGBA{255, 255, 255, 255}},
				{250, color.RGBA{0, 0, 255, 255}},
			}
			for _, tt := range tests {
				if got := color.RGBAModel.Convert(img.At(tt.x, 10)).(color.RGBA); got != tt.want {
					t.Errorf("pixel at x=%d = %v, want %v", tt.x, got, tt.want)
				}
			}
		})
	}
}
