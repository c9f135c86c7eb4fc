// Package cameracapture turns a camera's YUV 4:2:0 preview stream into
// rotated RGBA frames.
//
// A Controller owns one worker goroutine. Start opens the camera on the
// worker, negotiates preview parameters against the device capabilities,
// attaches a dummy preview target and starts streaming; it returns once the
// worker has done all of that or failed. Every raw frame is checked against
// the negotiated size, converted to RGBA, rotated and handed to a Sink on the
// device's delivery goroutine. Stop tears the session down on the worker and
// waits for it to exit, bounded by the shutdown timeout. ForceStop releases
// the device from the calling goroutine when the worker may be wedged.
//
// # Quick Start
//
// With the simulated backend:
//
//	driver := simdevice.NewDriver(nil, nil)
//	sink := cameracapture.SinkFunc(func(f cameracapture.Frame) {
//	    log.Printf("frame %d: %v", f.Seq, f.Image.Bounds())
//	})
//
//	ctrl, err := cameracapture.NewController(driver, simdevice.NewRenderer(), sink)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = ctrl.Start(cameracapture.OpenParams{
//	    Width:           640,
//	    Height:          480,
//	    Focus:           "continuous-video",
//	    RotationDegrees: 90,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Stop()
//
//	dev := driver.Device(0)
//	go simdevice.Pump(ctx, dev, 66*time.Millisecond, simdevice.ColorBars(640, 480))
//
// For real cameras use gstdevice.NewDriver and gstdevice.NewRenderer.
//
// # Negotiation
//
// Requested values that the device does not support are never errors:
//
//   - Preview size: exact match, else the first supported size
//   - Focus, color effect, scene: exact match, else left at the device default
//   - Zoom: a ratio x100 ("150"); applied by index when the device supports zoom
//
// The size committed by the device is read back after SetParameters and that
// read-back size governs the frame length check.
//
// # Frame Format
//
// Raw frames are planar or semi-planar 4:2:0 of exactly width*height*3/2
// bytes (I420 by default, see WithChromaLayout). Delivered images are
// *image.RGBA with alpha 255, rotated clockwise by OpenParams.RotationDegrees.
// Frames of any other length are dropped and counted in CaptureStats.
//
// # Lifecycle
//
//	Idle ──Start──▶ Running ──Stop/ForceStop──▶ Stopped
//	  └──────────Start fails / ForceStop──────────▲
//
// A Controller is single use. Stop and ForceStop are idempotent. After Stop
// returns no frame reaches the Sink. ForceStop does not wait for a frame
// already inside the Sink: that one frame may still complete, but no new
// frame is delivered once ForceStop returns.
package cameracapture
