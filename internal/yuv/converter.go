package yuv

import (
	"fmt"
	"image"
	"log/slog"
	"runtime"
)

// Stats reports buffer reuse of a Converter.
type Stats struct {
	// InputAllocs counts input staging (re)allocations.
	InputAllocs uint64
	// OutputAllocs counts output staging/pixel array (re)allocations.
	OutputAllocs uint64
	// Conversions counts successful conversions.
	Conversions uint64
	// AllocatedBytes is the size of all live staging buffers.
	AllocatedBytes int
	// PoolRunning is true while the conversion pool goroutines are alive.
	PoolRunning bool
	// Closed is true once the converter released its resources.
	Closed bool
}

// Converter turns 4:2:0 frames into packed RGBA, reusing its staging buffers
// while the frame geometry stays the same.
//
// A Converter is not safe for concurrent use. If it becomes unreachable
// without Close, a finalizer releases it and logs a warning.
type Converter struct {
	*converter
}

type converter struct {
	layout  Layout
	logger  *slog.Logger
	workers int
	eng     *engine // started on first use

	in    []byte // input staging, sized to the last seen frame length
	inLen int

	stage  []byte // engine output staging
	pix    []byte // packed RGBA handed back to callers
	width  int
	height int

	stats  Stats
	closed bool
}

// New creates a converter for frames in the given layout. workers sets the
// size of the conversion pool; values below 1 use GOMAXPROCS.
func New(layout Layout, workers int, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	c := &Converter{&converter{
		layout:  layout,
		logger:  logger,
		workers: workers,
	}}
	runtime.SetFinalizer(c, (*Converter).finalize)
	return c
}

// Layout returns the chroma layout the converter expects.
func (c *Converter) Layout() Layout {
	return c.layout
}

// Prepare sizes every buffer for a width×height frame without converting.
func (c *Converter) Prepare(width, height int) error {
	if c.closed {
		return ErrClosed
	}
	if width <= 0 || height <= 0 {
		return ErrInvalidGeometry
	}
	c.ensureInput(FrameSize(width, height))
	c.ensureOutput(width, height)
	return nil
}

// Convert converts frame and returns the packed RGBA pixels
// (width*height*4 bytes). The returned slice is owned by the converter and
// is overwritten by the next call.
func (c *Converter) Convert(frame []byte, width, height int) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidGeometry
	}
	if len(frame) != FrameSize(width, height) || len(frame) < width*height {
		return nil, ErrFrameLength
	}

	c.ensureInput(len(frame))
	c.ensureOutput(width, height)
	if c.eng == nil {
		c.eng = newEngine(c.workers)
	}

	copy(c.in, frame)
	c.eng.convert(c.stage, newPlanes(c.layout, c.in, width, height))
	copy(c.pix, c.stage)
	c.stats.Conversions++
	return c.pix, nil
}

// ConvertInto converts frame and writes the pixels into dst, whose bounds
// must be exactly width×height.
func (c *Converter) ConvertInto(dst *image.RGBA, frame []byte, width, height int) error {
	if dst == nil {
		return ErrInvalidGeometry
	}
	b := dst.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return ErrInvalidGeometry
	}
	pix, err := c.Convert(frame, width, height)
	if err != nil {
		return err
	}
	rowBytes := width * 4
	if dst.Stride == rowBytes {
		copy(dst.Pix, pix)
		return nil
	}
	for y := 0; y < height; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowBytes], pix[y*rowBytes:(y+1)*rowBytes])
	}
	return nil
}

// Stats returns a snapshot of the allocation counters.
func (c *Converter) Stats() Stats {
	s := c.stats
	s.AllocatedBytes = len(c.in) + len(c.stage) + len(c.pix)
	s.Closed = c.closed
	s.PoolRunning = c.eng != nil
	return s
}

// Close releases the staging buffers and the conversion pool, which is
// started by the first conversion. Closing twice,
// or closing an unused converter, is a no-op.
func (c *Converter) Close() error {
	runtime.SetFinalizer(c, nil)
	c.release()
	return nil
}

func (c *Converter) finalize() {
	if c.closed {
		return
	}
	c.logger.Warn("yuv: converter was not closed, releasing from finalizer",
		"layout", c.layout.String(),
		"resolution", formatSize(c.width, c.height),
	)
	c.release()
}

func (c *converter) release() {
	if c.closed {
		return
	}
	c.closed = true
	c.in, c.stage, c.pix = nil, nil, nil
	c.inLen, c.width, c.height = 0, 0, 0
	if c.eng != nil {
		c.eng.release()
		c.eng = nil
	}
}

// ensureInput reallocates the input staging buffer iff n differs from the
// last seen frame length.
func (c *converter) ensureInput(n int) {
	if c.in != nil && c.inLen == n {
		return
	}
	c.inLen = n
	c.in = make([]byte, n)
	c.stats.InputAllocs++
}

// ensureOutput reallocates the output buffers iff the geometry changed.
func (c *converter) ensureOutput(width, height int) {
	if c.pix != nil && c.width == width && c.height == height {
		return
	}
	c.width, c.height = width, height
	n := width * height * 4
	c.stage = make([]byte, n)
	c.pix = make([]byte, n)
	c.stats.OutputAllocs++
}

func formatSize(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
