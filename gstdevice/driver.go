// Package gstdevice is a camera backend built on GStreamer.
//
// Each opened device is one pipeline:
//
//	v4l2src → videoconvert → videoscale → videobalance → videorate →
//	capsfilter(4:2:0) → tee ─┬→ queue → appsink        (frame callback)
//	                        └→ queue → fakesink        (preview target)
//
// The preview branch is the dummy rendering target: StartPreview refuses to
// run until one is attached, and the frames it receives are discarded.
// With Source "test" a live videotestsrc replaces v4l2src.
package gstdevice

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyzimmer/go-gst/gst"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/yuv"
)

const (
	// SourceV4L2 captures from /dev/videoN
	SourceV4L2 = "v4l2"
	// SourceTest generates a live test pattern
	SourceTest = "test"
)

// Config configures a Driver.
type Config struct {
	// Source is SourceV4L2 (default) or SourceTest
	Source string
	// DeviceTemplate maps a camera id to a device node (default "/dev/video%d")
	DeviceTemplate string
	// Sizes are the preview sizes offered to negotiation, in order of
	// preference
	Sizes []cameracapture.Size
	// FPS caps the delivered frame rate (0 keeps the source rate)
	FPS int
	// Layout is the 4:2:0 format negotiated with the source (default I420)
	Layout yuv.Layout
}

// DefaultSizes are offered when Config.Sizes is empty.
var DefaultSizes = []cameracapture.Size{
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 320, Height: 240},
}

// Color effects and scene modes implemented with videobalance.
var (
	colorEffects = []string{"none", "mono"}
	sceneModes   = []string{"auto", "night"}
	focusModes   = []string{"fixed"}
)

// Driver opens GStreamer capture pipelines.
type Driver struct {
	cfg    Config
	logger *slog.Logger
}

// NewDriver validates cfg and checks that GStreamer and the source element
// are available.
func NewDriver(cfg Config, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = SourceV4L2
	}
	if cfg.Source != SourceV4L2 && cfg.Source != SourceTest {
		return nil, fmt.Errorf("gstdevice: unknown source %q", cfg.Source)
	}
	if cfg.DeviceTemplate == "" {
		cfg.DeviceTemplate = "/dev/video%d"
	}
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = DefaultSizes
	}
	if cfg.FPS < 0 || cfg.FPS > 120 {
		return nil, fmt.Errorf("gstdevice: invalid FPS %d (must be 0-120)", cfg.FPS)
	}

	switch cfg.Layout {
	case yuv.LayoutI420, yuv.LayoutYV12, yuv.LayoutNV21, yuv.LayoutNV12:
	default:
		return nil, fmt.Errorf("gstdevice: unsupported layout %s", cfg.Layout)
	}

	if err := CheckAvailable(cfg.Source); err != nil {
		return nil, fmt.Errorf("gstdevice: GStreamer not available: %w", err)
	}

	logger.Info("gstdevice: driver ready",
		"source", cfg.Source,
		"device_template", cfg.DeviceTemplate,
		"sizes", len(cfg.Sizes),
		"fps", cfg.FPS,
		"layout", cfg.Layout.String(),
	)
	return &Driver{cfg: cfg, logger: logger}, nil
}

// CheckAvailable initializes GStreamer and verifies that the elements the
// pipeline needs can be created.
func CheckAvailable(source string) error {
	gst.Init(nil)
	factories := []string{sourceFactory(source), "videoconvert", "videoscale", "videobalance", "tee", "appsink"}
	for _, name := range factories {
		elem, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("cannot create %s element: %w", name, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}

func sourceFactory(source string) string {
	if source == SourceTest {
		return "videotestsrc"
	}
	return "v4l2src"
}

// Open implements cameracapture.Driver.
func (d *Driver) Open(id int) (cameracapture.Device, error) {
	node := ""
	if d.cfg.Source == SourceV4L2 {
		node = fmt.Sprintf(d.cfg.DeviceTemplate, id)
		if _, err := os.Stat(node); err != nil {
			return nil, fmt.Errorf("gstdevice: camera %d: %w", id, err)
		}
	}

	p, err := buildPipeline(d.cfg, node)
	if err != nil {
		return nil, fmt.Errorf("gstdevice: camera %d: %w", id, err)
	}

	d.logger.Info("gstdevice: camera opened",
		"camera_id", id,
		"source", d.cfg.Source,
		"device", node,
	)
	return newDevice(id, d.cfg, p, d.logger), nil
}

// Capabilities returns what every device of this driver offers.
func (d *Driver) Capabilities() cameracapture.Capabilities {
	return capabilities(d.cfg)
}

func capabilities(cfg Config) cameracapture.Capabilities {
	return cameracapture.Capabilities{
		PreviewSizes: append([]cameracapture.Size(nil), cfg.Sizes...),
		FocusModes:   focusModes,
		ColorEffects: colorEffects,
		SceneModes:   sceneModes,
	}
}
