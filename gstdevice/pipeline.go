package gstdevice

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/yuv"
)

// pipeline holds references to the elements touched after construction.
type pipeline struct {
	pipeline   *gst.Pipeline
	balance    *gst.Element
	capsfilter *gst.Element
	tee        *gst.Element
	appsink    *app.Sink
}

// buildPipeline creates the capture pipeline in the NULL state. The preview
// branch is linked later by SetPreviewTarget.
func buildPipeline(cfg Config, node string) (*pipeline, error) {
	gst.Init(nil)

	p, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement(sourceFactory(cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	if cfg.Source == SourceTest {
		src.SetProperty("is-live", true)
		src.SetProperty("pattern", 0) // smpte bars
	} else {
		src.SetProperty("device", node)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}
	balance, err := gst.NewElement("videobalance")
	if err != nil {
		return nil, fmt.Errorf("failed to create videobalance: %w", err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	rate.SetProperty("drop-only", true)
	rate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(cfg.Sizes[0], cfg.FPS, cfg.Layout)))

	tee, err := gst.NewElement("tee")
	if err != nil {
		return nil, fmt.Errorf("failed to create tee: %w", err)
	}
	queue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}
	queue.SetProperty("max-size-buffers", uint(1))
	queue.SetProperty("leaky", 2) // downstream: drop old frames

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	p.AddMany(src, convert, scale, balance, rate, capsfilter, tee, queue, appsink.Element)
	if err := gst.ElementLinkMany(src, convert, scale, balance, rate, capsfilter, tee, queue, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	return &pipeline{
		pipeline:   p,
		balance:    balance,
		capsfilter: capsfilter,
		tee:        tee,
		appsink:    appsink,
	}, nil
}

// buildCaps returns the raw video caps string for size, fps and layout.
// GStreamer names the 4:2:0 formats the same way yuv.Layout prints them.
func buildCaps(size cameracapture.Size, fps int, layout yuv.Layout) string {
	caps := fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d", layout, size.Width, size.Height)
	if fps > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", fps)
	}
	return caps
}

// balanceFor returns videobalance saturation, brightness and contrast for
// an effect and scene.
func balanceFor(effect, scene string) (saturation, brightness, contrast float64) {
	saturation, brightness, contrast = 1.0, 0.0, 1.0
	if effect == "mono" {
		saturation = 0.0
	}
	if scene == "night" {
		brightness, contrast = 0.15, 1.2
	}
	return saturation, brightness, contrast
}

// destroy moves the pipeline to NULL, releasing the source device.
func (p *pipeline) destroy() error {
	if p == nil || p.pipeline == nil {
		return nil
	}
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}
