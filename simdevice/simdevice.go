// Package simdevice provides an in-memory camera driver and renderer for
// tests, demos and machines without camera hardware.
//
// Frames pushed with Device.Feed are delivered on the device's own delivery
// goroutine, one at a time, like a real driver. The renderer counts live
// textures and surfaces so leaks are observable.
package simdevice

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
)

var (
	// ErrNoSuchCamera is returned by Open for ids the driver does not know.
	ErrNoSuchCamera = errors.New("simdevice: no such camera")
	// ErrReleased is returned by every call on a released device.
	ErrReleased = errors.New("simdevice: device released")
	// ErrNoTarget is returned by StartPreview without a preview target.
	ErrNoTarget = errors.New("simdevice: no preview target attached")
)

// Camera describes one simulated camera.
type Camera struct {
	Capabilities cameracapture.Capabilities
	// AdjustSize, when set, rewrites the committed preview size the way
	// some drivers round requests.
	AdjustSize func(cameracapture.Size) cameracapture.Size
	// FailOpen makes Open fail for this camera
	FailOpen bool
	// FailSetParameters makes SetParameters fail
	FailSetParameters bool
	// FailStartPreview makes StartPreview fail
	FailStartPreview bool
}

// DefaultCamera supports 640x480 and 320x240 with a handful of modes.
func DefaultCamera() Camera {
	return Camera{
		Capabilities: cameracapture.Capabilities{
			PreviewSizes: []cameracapture.Size{
				{Width: 640, Height: 480},
				{Width: 320, Height: 240},
			},
			FocusModes:    []string{"auto", "continuous-video", "fixed"},
			ColorEffects:  []string{"none", "mono", "sepia"},
			SceneModes:    []string{"auto", "night"},
			ZoomSupported: true,
			ZoomRatios:    []int{100, 150, 200, 300},
		},
	}
}

// Driver is a cameracapture.Driver over a fixed set of simulated cameras.
type Driver struct {
	mu      sync.Mutex
	cameras map[int]Camera
	devices map[int]*Device
	logger  *slog.Logger
	opened  atomic.Int64
}

// NewDriver returns a driver that serves cameras by id.
func NewDriver(cameras map[int]Camera, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if cameras == nil {
		cameras = map[int]Camera{0: DefaultCamera()}
	}
	return &Driver{
		cameras: cameras,
		devices: make(map[int]*Device),
		logger:  logger,
	}
}

// Open implements cameracapture.Driver.
func (d *Driver) Open(id int) (cameracapture.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cam, ok := d.cameras[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchCamera, id)
	}
	if cam.FailOpen {
		return nil, fmt.Errorf("simdevice: camera %d failed to open", id)
	}
	if dev, busy := d.devices[id]; busy && !dev.released.Load() {
		return nil, fmt.Errorf("simdevice: camera %d is busy", id)
	}

	dev := newDevice(id, cam, d.logger)
	d.devices[id] = dev
	d.opened.Add(1)
	return dev, nil
}

// Device returns the most recently opened device for id, or nil.
func (d *Driver) Device(id int) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[id]
}

// OpenDevices counts devices that were opened and not yet released.
func (d *Driver) OpenDevices() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, dev := range d.devices {
		if !dev.released.Load() {
			n++
		}
	}
	return n
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("simdevice: "+format, args...)
}
