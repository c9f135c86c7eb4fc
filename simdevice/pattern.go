package simdevice

import (
	"context"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/yuv"
)

// bar is one SMPTE-style color bar in limited-range YUV.
type bar struct{ y, u, v byte }

var bars = []bar{
	{235, 128, 128}, // white
	{210, 16, 146},  // yellow
	{170, 166, 16},  // cyan
	{145, 54, 34},   // green
	{106, 202, 222}, // magenta
	{81, 90, 240},   // red
	{41, 240, 110},  // blue
	{16, 128, 128},  // black
}

// ColorBars returns an I420 frame of vertical color bars.
func ColorBars(width, height int) []byte {
	return ColorBarsLayout(width, height, yuv.LayoutI420)
}

// ColorBarsLayout returns a frame of vertical color bars with its chroma
// stored in the given layout.
func ColorBarsLayout(width, height int, layout yuv.Layout) []byte {
	frame := make([]byte, yuv.FrameSize(width, height))
	luma := frame[:width*height]
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			luma[y*width+x] = bars[x*len(bars)/width].y
		}
	}

	cw, ch := (width+1)/2, (height+1)/2
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			b := bars[min(cx*2, width-1)*len(bars)/width]
			yuv.PutChroma(layout, frame, width, height, cx, cy, b.u, b.v)
		}
	}
	return frame
}

// Pump feeds a copy of frame to d every interval until ctx is done or the
// device is released. Frames that do not fit the delivery queue are
// dropped, like a sensor that keeps running.
func Pump(ctx context.Context, d *Device, interval time.Duration, frame []byte) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.Released() {
				return
			}
			buf := make([]byte, len(frame))
			copy(buf, frame)
			d.Feed(buf)
		}
	}
}
