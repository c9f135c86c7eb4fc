package gstdevice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
)

var (
	// ErrReleased is returned by every method after Release
	ErrReleased = errors.New("gstdevice: device released")
	// ErrNoTarget is returned by StartPreview without a preview target
	ErrNoTarget = errors.New("gstdevice: no preview target attached")
)

// Device is one GStreamer capture pipeline.
type Device struct {
	id     int
	cfg    Config
	p      *pipeline
	logger *slog.Logger

	mu         sync.Mutex
	settings   cameracapture.Settings
	size       cameracapture.Size
	surface    *Surface
	linked     bool
	previewing bool
	released   bool
	onFrame    cameracapture.FrameCallback
	onError    cameracapture.ErrorCallback
	cancel     context.CancelFunc
	monitorWG  sync.WaitGroup

	frames  atomic.Uint64
	bytes   atomic.Uint64
	dropped atomic.Uint64
}

func newDevice(id int, cfg Config, p *pipeline, logger *slog.Logger) *Device {
	d := &Device{
		id:     id,
		cfg:    cfg,
		p:      p,
		logger: logger,
		size:   cfg.Sizes[0],
	}
	p.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onSample,
	})
	return d
}

// onSample hands the mapped buffer to the frame callback without copying.
// The mapping is held until the callback returns.
func (d *Device) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		d.logger.Warn("gstdevice: failed to pull sample, skipping frame", "camera_id", d.id)
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		d.logger.Warn("gstdevice: sample without buffer, skipping frame", "camera_id", d.id)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()

	d.frames.Add(1)
	d.bytes.Add(uint64(len(data)))

	d.mu.Lock()
	cb := d.onFrame
	d.mu.Unlock()
	if cb == nil {
		d.dropped.Add(1)
		return gst.FlowOK
	}
	cb(data)
	return gst.FlowOK
}

// Capabilities implements cameracapture.Device.
func (d *Device) Capabilities() (cameracapture.Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return cameracapture.Capabilities{}, ErrReleased
	}
	return capabilities(d.cfg), nil
}

// SetParameters implements cameracapture.Device. Size goes to the
// capsfilter; color effect and scene go to videobalance. Focus and zoom are
// not supported by this backend.
func (d *Device) SetParameters(s cameracapture.Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if d.previewing {
		return fmt.Errorf("gstdevice: cannot change parameters while previewing")
	}
	if s.PreviewSize.Width <= 0 || s.PreviewSize.Height <= 0 {
		return fmt.Errorf("gstdevice: invalid preview size %s", s.PreviewSize)
	}
	if s.ZoomIndex >= 0 {
		return fmt.Errorf("gstdevice: zoom not supported")
	}

	d.p.capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(s.PreviewSize, d.cfg.FPS, d.cfg.Layout)))
	saturation, brightness, contrast := balanceFor(s.ColorEffect, s.SceneMode)
	d.p.balance.SetProperty("saturation", saturation)
	d.p.balance.SetProperty("brightness", brightness)
	d.p.balance.SetProperty("contrast", contrast)

	d.settings = s
	d.size = s.PreviewSize

	d.logger.Debug("gstdevice: parameters committed",
		"camera_id", d.id,
		"size", s.PreviewSize.String(),
		"effect", s.ColorEffect,
		"scene", s.SceneMode,
	)
	return nil
}

// PreviewSize implements cameracapture.Device.
func (d *Device) PreviewSize() (cameracapture.Size, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return cameracapture.Size{}, ErrReleased
	}
	return d.size, nil
}

// SetPreviewTarget implements cameracapture.Device. The target's surface
// must come from a gstdevice Renderer; its branch is linked behind the tee.
// nil unlinks and removes the current branch.
func (d *Device) SetPreviewTarget(t *cameracapture.PreviewTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		if t == nil {
			return nil
		}
		return ErrReleased
	}

	if t == nil {
		return d.unlinkSurfaceLocked()
	}

	surface, ok := t.Surface().(*Surface)
	if !ok {
		return ErrForeignSurface
	}
	if surface.isReleased() {
		return fmt.Errorf("gstdevice: preview surface already released")
	}
	if d.previewing {
		return fmt.Errorf("gstdevice: cannot change preview target while previewing")
	}
	if err := d.unlinkSurfaceLocked(); err != nil {
		return err
	}

	d.p.pipeline.AddMany(surface.queue, surface.sink)
	if err := gst.ElementLinkMany(d.p.tee, surface.queue, surface.sink); err != nil {
		d.removeLocked(surface)
		return fmt.Errorf("gstdevice: failed to link preview branch: %w", err)
	}
	d.surface = surface
	d.linked = true

	d.logger.Debug("gstdevice: preview target attached",
		"camera_id", d.id,
		"texture", surface.Texture(),
	)
	return nil
}

func (d *Device) unlinkSurfaceLocked() error {
	if !d.linked {
		d.surface = nil
		return nil
	}
	surface := d.surface
	d.surface, d.linked = nil, false
	return d.removeLocked(surface)
}

// removeLocked takes a surface branch out of the pipeline. Removing an
// element from its bin also unlinks its pads.
func (d *Device) removeLocked(s *Surface) error {
	var errs []error
	for _, elem := range []*gst.Element{s.queue, s.sink} {
		if err := d.p.pipeline.Remove(elem); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("gstdevice: failed to remove preview branch: %w", errors.Join(errs...))
	}
	return nil
}

// SetFrameCallback implements cameracapture.Device. The callback is read
// once per sample, so a cleared callback is never started again.
func (d *Device) SetFrameCallback(cb cameracapture.FrameCallback) {
	d.mu.Lock()
	d.onFrame = cb
	d.mu.Unlock()
}

// SetErrorCallback implements cameracapture.Device.
func (d *Device) SetErrorCallback(cb cameracapture.ErrorCallback) {
	d.mu.Lock()
	d.onError = cb
	d.mu.Unlock()
}

// StartPreview implements cameracapture.Device. It moves the pipeline to
// PLAYING and starts the bus monitor.
func (d *Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if d.previewing {
		return nil
	}
	if !d.linked {
		return ErrNoTarget
	}

	if err := d.p.pipeline.SetState(gst.StatePlaying); err != nil {
		d.p.pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstdevice: failed to set pipeline to PLAYING: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.previewing = true
	d.monitorWG.Add(1)
	go func() {
		defer d.monitorWG.Done()
		d.monitorBus(ctx)
	}()

	d.logger.Info("gstdevice: preview started",
		"camera_id", d.id,
		"size", d.size.String(),
	)
	return nil
}

// StopPreview implements cameracapture.Device.
func (d *Device) StopPreview() error {
	d.mu.Lock()
	if !d.previewing {
		d.mu.Unlock()
		return nil
	}
	d.previewing = false
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.monitorWG.Wait()

	if err := d.p.destroy(); err != nil {
		return fmt.Errorf("gstdevice: stop preview: %w", err)
	}
	d.logger.Info("gstdevice: preview stopped",
		"camera_id", d.id,
		"frames", d.frames.Load(),
		"bytes", d.bytes.Load(),
	)
	return nil
}

// Release implements cameracapture.Device.
func (d *Device) Release() error {
	stopErr := d.StopPreview()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	d.onFrame, d.onError = nil, nil
	unlinkErr := d.unlinkSurfaceLocked()
	destroyErr := d.p.destroy()

	d.logger.Info("gstdevice: camera released", "camera_id", d.id)
	return errors.Join(stopErr, unlinkErr, destroyErr)
}

// FramesReceived returns the number of samples pulled from the appsink.
func (d *Device) FramesReceived() uint64 { return d.frames.Load() }

// monitorBus polls the pipeline bus until ctx is cancelled and forwards
// errors to the error callback.
func (d *Device) monitorBus(ctx context.Context) {
	bus := d.p.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			d.raise(&cameracapture.DeviceError{
				Category: cameracapture.ErrCategoryStream,
				Err:      errors.New("end of stream"),
			})

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyError(gerr)
			d.logger.Error("gstdevice: pipeline error",
				"camera_id", d.id,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
			)
			d.raise(&cameracapture.DeviceError{
				Category: category,
				Err:      errors.New(gerr.Error()),
			})

		case gst.MessageStateChanged:
			if msg.Source() == d.p.pipeline.GetName() {
				old, new := msg.ParseStateChanged()
				d.logger.Debug("gstdevice: pipeline state changed",
					"camera_id", d.id,
					"from", old,
					"to", new,
				)
			}
		}
	}
}

func (d *Device) raise(err error) {
	d.mu.Lock()
	cb := d.onError
	d.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
