package simdevice

import (
	"log/slog"
	"sync"
	"sync/atomic"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
)

// Device is a simulated opened camera.
type Device struct {
	id     int
	cam    Camera
	logger *slog.Logger

	mu         sync.Mutex
	settings   cameracapture.Settings
	size       cameracapture.Size
	target     *cameracapture.PreviewTarget
	onFrame    cameracapture.FrameCallback
	onError    cameracapture.ErrorCallback
	previewing bool

	// deliverMu is held while a callback runs, so SetFrameCallback(nil)
	// can wait for it.
	deliverMu sync.Mutex
	frames    chan []byte
	quit      chan struct{}
	wg        sync.WaitGroup

	released  atomic.Bool
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func newDevice(id int, cam Camera, logger *slog.Logger) *Device {
	d := &Device{
		id:     id,
		cam:    cam,
		logger: logger,
		frames: make(chan []byte, 16),
		quit:   make(chan struct{}),
	}
	if len(cam.Capabilities.PreviewSizes) > 0 {
		d.size = cam.Capabilities.PreviewSizes[0]
	}
	d.settings.ZoomIndex = -1
	d.wg.Add(1)
	go d.deliver()
	return d
}

// deliver is the driver delivery goroutine.
func (d *Device) deliver() {
	defer d.wg.Done()
	for {
		select {
		case data := <-d.frames:
			d.deliverMu.Lock()
			d.mu.Lock()
			cb, on := d.onFrame, d.previewing
			d.mu.Unlock()
			if cb != nil && on {
				cb(data)
				d.delivered.Add(1)
			} else {
				d.dropped.Add(1)
			}
			d.deliverMu.Unlock()
		case <-d.quit:
			return
		}
	}
}

// Capabilities implements cameracapture.Device.
func (d *Device) Capabilities() (cameracapture.Capabilities, error) {
	if d.released.Load() {
		return cameracapture.Capabilities{}, ErrReleased
	}
	return d.cam.Capabilities, nil
}

// SetParameters implements cameracapture.Device.
func (d *Device) SetParameters(s cameracapture.Settings) error {
	if d.released.Load() {
		return ErrReleased
	}
	if d.cam.FailSetParameters {
		return errorf("camera %d rejected parameters", d.id)
	}
	size := s.PreviewSize
	if d.cam.AdjustSize != nil {
		size = d.cam.AdjustSize(size)
	}
	d.mu.Lock()
	d.settings = s
	d.size = size
	d.mu.Unlock()
	return nil
}

// PreviewSize implements cameracapture.Device.
func (d *Device) PreviewSize() (cameracapture.Size, error) {
	if d.released.Load() {
		return cameracapture.Size{}, ErrReleased
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size, nil
}

// Settings returns the last committed settings.
func (d *Device) Settings() cameracapture.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// SetPreviewTarget implements cameracapture.Device.
func (d *Device) SetPreviewTarget(t *cameracapture.PreviewTarget) error {
	if d.released.Load() {
		return ErrReleased
	}
	d.mu.Lock()
	d.target = t
	d.mu.Unlock()
	return nil
}

// SetFrameCallback implements cameracapture.Device. Clearing the callback
// waits for an in-flight delivery to return.
func (d *Device) SetFrameCallback(cb cameracapture.FrameCallback) {
	d.mu.Lock()
	d.onFrame = cb
	d.mu.Unlock()
	if cb == nil {
		d.deliverMu.Lock()
		d.deliverMu.Unlock()
	}
}

// SetErrorCallback implements cameracapture.Device.
func (d *Device) SetErrorCallback(cb cameracapture.ErrorCallback) {
	d.mu.Lock()
	d.onError = cb
	d.mu.Unlock()
}

// StartPreview implements cameracapture.Device.
func (d *Device) StartPreview() error {
	if d.released.Load() {
		return ErrReleased
	}
	if d.cam.FailStartPreview {
		return errorf("camera %d failed to start streaming", d.id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return ErrNoTarget
	}
	d.previewing = true
	d.logger.Debug("simdevice: preview started", "camera_id", d.id, "resolution", d.size.String())
	return nil
}

// StopPreview implements cameracapture.Device.
func (d *Device) StopPreview() error {
	if d.released.Load() {
		return ErrReleased
	}
	d.mu.Lock()
	d.previewing = false
	d.mu.Unlock()
	return nil
}

// Release implements cameracapture.Device. It stops the delivery goroutine.
func (d *Device) Release() error {
	if !d.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	d.mu.Lock()
	d.previewing = false
	d.onFrame = nil
	d.onError = nil
	d.target = nil
	d.mu.Unlock()
	close(d.quit)
	d.wg.Wait()
	d.logger.Debug("simdevice: released", "camera_id", d.id)
	return nil
}

// Feed queues one raw frame for delivery. It reports false when the device
// is released or its queue is full.
func (d *Device) Feed(data []byte) bool {
	if d.released.Load() {
		return false
	}
	select {
	case d.frames <- data:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Deliver invokes the frame callback synchronously on the calling goroutine,
// bypassing the queue. It reports whether a callback ran.
func (d *Device) Deliver(data []byte) bool {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	d.mu.Lock()
	cb, on := d.onFrame, d.previewing
	d.mu.Unlock()
	if cb == nil || !on {
		return false
	}
	cb(data)
	d.delivered.Add(1)
	return true
}

// RaiseError reports a runtime error through the registered error callback.
func (d *Device) RaiseError(category cameracapture.ErrorCategory, err error) {
	d.mu.Lock()
	cb := d.onError
	d.mu.Unlock()
	if cb != nil {
		cb(&cameracapture.DeviceError{Category: category, Err: err})
	}
}

// Target returns the attached preview target, or nil.
func (d *Device) Target() *cameracapture.PreviewTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

// Previewing reports whether the device is streaming.
func (d *Device) Previewing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.previewing
}

// Released reports whether Release was called.
func (d *Device) Released() bool {
	return d.released.Load()
}

// Delivered counts frames handed to the frame callback.
func (d *Device) Delivered() uint64 {
	return d.delivered.Load()
}
