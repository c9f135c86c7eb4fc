package yuv

import (
	"bytes"
	"errors"
	"image"
	"log/slog"
	"math/rand"
	"runtime"
	"strings"
	"testing"
	"time"
)

func randomFrame(r *rand.Rand, w, h int) []byte {
	frame := make([]byte, FrameSize(w, h))
	r.Read(frame)
	return frame
}

// uniformFrame builds a frame where every pixel has the same Y, U and V.
func uniformFrame(layout Layout, w, h int, y, u, v byte) []byte {
	frame := make([]byte, FrameSize(w, h))
	n := w * h
	for i := 0; i < n; i++ {
		frame[i] = y
	}
	chroma := frame[n:]
	switch layout {
	case LayoutNV21:
		for i := 0; i+1 < len(chroma); i += 2 {
			chroma[i], chroma[i+1] = v, u
		}
	case LayoutNV12:
		for i := 0; i+1 < len(chroma); i += 2 {
			chroma[i], chroma[i+1] = u, v
		}
	case LayoutYV12:
		half := len(chroma) / 2
		for i := 0; i < half; i++ {
			chroma[i], chroma[half+i] = v, u
		}
	default:
		half := len(chroma) / 2
		for i := 0; i < half; i++ {
			chroma[i], chroma[half+i] = u, v
		}
	}
	return frame
}

func TestPixel_ReferenceValues(t *testing.T) {
	tests := []struct {
		name    string
		y, u, v byte
		r, g, b byte
	}{
		{"black", 16, 128, 128, 0, 0, 0},
		{"white", 235, 128, 128, 255, 255, 255},
		{"red", 81, 90, 240, 255, 0, 0},
		{"mid grey", 126, 128, 128, 128, 128, 128},
		{"clamped low", 0, 128, 128, 0, 0, 0},
		{"clamped high", 255, 255, 255, 255, 125, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := pixel(tt.y, tt.u, tt.v)
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("pixel(%d,%d,%d) = (%d,%d,%d), want (%d,%d,%d)",
					tt.y, tt.u, tt.v, r, g, b, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestConvert_OutputSizeForValidGeometries(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	sizes := []struct{ w, h int }{
		{2, 2}, {1, 2}, {3, 2}, {2, 3}, {7, 4}, {16, 16}, {33, 18}, {640, 480}, {1280, 720},
	}

	c := New(LayoutI420, 4, nil)
	defer c.Close()

	for _, sz := range sizes {
		for _, layout := range []Layout{LayoutI420, LayoutYV12, LayoutNV21, LayoutNV12} {
			c.layout = layout
			frame := randomFrame(r, sz.w, sz.h)
			out, err := c.Convert(frame, sz.w, sz.h)
			if err != nil {
				t.Fatalf("%s %dx%d: unexpected error: %v", layout, sz.w, sz.h, err)
			}
			if len(out) != sz.w*sz.h*4 {
				t.Fatalf("%s %dx%d: got %d bytes, want %d", layout, sz.w, sz.h, len(out), sz.w*sz.h*4)
			}
			for i := 3; i < len(out); i += 4 {
				if out[i] != 0xff {
					t.Fatalf("%s %dx%d: alpha at %d = %d, want 255", layout, sz.w, sz.h, i, out[i])
				}
			}
		}
	}
}

func TestConvert_ChromaLayouts(t *testing.T) {
	for _, layout := range []Layout{LayoutI420, LayoutYV12, LayoutNV21, LayoutNV12} {
		t.Run(layout.String(), func(t *testing.T) {
			c := New(layout, 1, nil)
			defer c.Close()

			out, err := c.Convert(uniformFrame(layout, 4, 4, 81, 90, 240), 4, 4)
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			for i := 0; i < len(out); i += 4 {
				if out[i] != 255 || out[i+1] != 0 || out[i+2] != 0 {
					t.Fatalf("pixel %d = %v, want pure red", i/4, out[i:i+4])
				}
			}
		})
	}
}

func TestConvert_ReusesBuffersForStableGeometry(t *testing.T) {
	c := New(LayoutI420, 2, nil)
	defer c.Close()

	frame := make([]byte, FrameSize(64, 48))
	for i := 0; i < 5; i++ {
		if _, err := c.Convert(frame, 64, 48); err != nil {
			t.Fatalf("Convert() error = %v", err)
		}
	}

	s := c.Stats()
	if s.OutputAllocs != 1 {
		t.Errorf("OutputAllocs = %d after 5 same-size conversions, want 1", s.OutputAllocs)
	}
	if s.InputAllocs != 1 {
		t.Errorf("InputAllocs = %d after 5 same-size conversions, want 1", s.InputAllocs)
	}
	if s.Conversions != 5 {
		t.Errorf("Conversions = %d, want 5", s.Conversions)
	}

	// Change width: exactly one reallocation before the next conversion.
	frame = make([]byte, FrameSize(32, 48))
	for i := 0; i < 3; i++ {
		if _, err := c.Convert(frame, 32, 48); err != nil {
			t.Fatalf("Convert() error = %v", err)
		}
	}
	s = c.Stats()
	if s.OutputAllocs != 2 || s.InputAllocs != 2 {
		t.Errorf("after width change: OutputAllocs=%d InputAllocs=%d, want 2 and 2", s.OutputAllocs, s.InputAllocs)
	}

	// Going back to an older size is a new size again.
	frame = make([]byte, FrameSize(64, 48))
	if _, err := c.Convert(frame, 64, 48); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	s = c.Stats()
	if s.OutputAllocs != 3 || s.InputAllocs != 3 {
		t.Errorf("after returning to 64x48: OutputAllocs=%d InputAllocs=%d, want 3 and 3", s.OutputAllocs, s.InputAllocs)
	}
}

func TestConvert_SwappedGeometryKeepsInputBuffer(t *testing.T) {
	c := New(LayoutI420, 1, nil)
	defer c.Close()

	if _, err := c.Convert(make([]byte, FrameSize(64, 48)), 64, 48); err != nil {
		t.Fatal(err)
	}
	// Same byte length, different geometry: only the output side reallocates.
	if _, err := c.Convert(make([]byte, FrameSize(48, 64)), 48, 64); err != nil {
		t.Fatal(err)
	}
	s := c.Stats()
	if s.InputAllocs != 1 {
		t.Errorf("InputAllocs = %d, want 1", s.InputAllocs)
	}
	if s.OutputAllocs != 2 {
		t.Errorf("OutputAllocs = %d, want 2", s.OutputAllocs)
	}
}

func TestConvert_RejectsBadInput(t *testing.T) {
	c := New(LayoutI420, 1, nil)
	defer c.Close()

	if _, err := c.Convert(make([]byte, 10), 4, 4); !errors.Is(err, ErrFrameLength) {
		t.Errorf("short frame: err = %v, want ErrFrameLength", err)
	}
	if _, err := c.Convert(make([]byte, 24), 0, 4); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("zero width: err = %v, want ErrInvalidGeometry", err)
	}
	if s := c.Stats(); s.AllocatedBytes != 0 {
		t.Errorf("rejected frames allocated %d bytes", s.AllocatedBytes)
	}
}

func TestConvert_ParallelMatchesInline(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	frame := randomFrame(r, 320, 240)

	inline := New(LayoutNV21, 1, nil)
	defer inline.Close()
	parallel := New(LayoutNV21, 8, nil)
	defer parallel.Close()

	a, err := inline.Convert(frame, 320, 240)
	if err != nil {
		t.Fatal(err)
	}
	b, err := parallel.Convert(frame, 320, 240)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("parallel conversion differs from inline conversion")
	}
}

func TestConvertInto(t *testing.T) {
	c := New(LayoutI420, 2, nil)
	defer c.Close()

	frame := uniformFrame(LayoutI420, 8, 6, 235, 128, 128)

	t.Run("exact image", func(t *testing.T) {
		dst := image.NewRGBA(image.Rect(0, 0, 8, 6))
		if err := c.ConvertInto(dst, frame, 8, 6); err != nil {
			t.Fatalf("ConvertInto() error = %v", err)
		}
		for _, p := range dst.Pix {
			if p != 255 {
				t.Fatal("expected an all-white image")
			}
		}
	})

	t.Run("sub image with wider stride", func(t *testing.T) {
		big := image.NewRGBA(image.Rect(0, 0, 16, 6))
		dst := big.SubImage(image.Rect(4, 0, 12, 6)).(*image.RGBA)
		if err := c.ConvertInto(dst, frame, 8, 6); err != nil {
			t.Fatalf("ConvertInto() error = %v", err)
		}
		if got := big.RGBAAt(0, 0); got.A != 0 {
			t.Errorf("pixel outside the sub image was written: %v", got)
		}
		if got := big.RGBAAt(4, 5); got.R != 255 || got.A != 255 {
			t.Errorf("pixel inside the sub image = %v, want white", got)
		}
	})

	t.Run("bounds mismatch", func(t *testing.T) {
		dst := image.NewRGBA(image.Rect(0, 0, 6, 8))
		if err := c.ConvertInto(dst, frame, 8, 6); !errors.Is(err, ErrInvalidGeometry) {
			t.Errorf("err = %v, want ErrInvalidGeometry", err)
		}
	})
}

func TestClose_Idempotent(t *testing.T) {
	t.Run("unused", func(t *testing.T) {
		c := New(LayoutI420, 4, nil)
		if err := c.Close(); err != nil {
			t.Fatalf("first Close() = %v", err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("second Close() = %v", err)
		}
	})

	t.Run("after use", func(t *testing.T) {
		c := New(LayoutI420, 4, nil)
		if err := c.Prepare(64, 64); err != nil {
			t.Fatal(err)
		}
		if c.Stats().AllocatedBytes == 0 {
			t.Fatal("Prepare() did not allocate")
		}
		c.Close()
		c.Close()

		s := c.Stats()
		if !s.Closed || s.AllocatedBytes != 0 {
			t.Errorf("after Close: Closed=%v AllocatedBytes=%d", s.Closed, s.AllocatedBytes)
		}
		if _, err := c.Convert(make([]byte, FrameSize(64, 64)), 64, 64); !errors.Is(err, ErrClosed) {
			t.Errorf("Convert after Close: err = %v, want ErrClosed", err)
		}
		if err := c.Prepare(64, 64); !errors.Is(err, ErrClosed) {
			t.Errorf("Prepare after Close: err = %v, want ErrClosed", err)
		}
	})
}

func TestFinalize_ReleasesLeakedConverter(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	c := New(LayoutNV21, 4, logger)
	if _, err := c.Convert(make([]byte, FrameSize(64, 48)), 64, 48); err != nil {
		t.Fatal(err)
	}
	if s := c.Stats(); s.AllocatedBytes == 0 || !s.PoolRunning {
		t.Fatalf("before finalize: %+v", s)
	}

	c.finalize()

	s := c.Stats()
	if !s.Closed || s.AllocatedBytes != 0 || s.PoolRunning {
		t.Errorf("after finalize: Closed=%v AllocatedBytes=%d PoolRunning=%v", s.Closed, s.AllocatedBytes, s.PoolRunning)
	}
	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "not closed") {
		t.Errorf("finalize did not log a warning: %q", out)
	}
	if !strings.Contains(out, "resolution=64x48") {
		t.Errorf("warning misses the resolution: %q", out)
	}

	logs.Reset()
	if err := c.Close(); err != nil {
		t.Errorf("Close() after finalize = %v", err)
	}
	c.finalize()
	if logs.Len() != 0 {
		t.Errorf("finalizing a closed converter logged: %q", logs.String())
	}
	t.Log("✅ leaked converter released and reported")
}

func TestConverter_PoolStartsOnFirstConversion(t *testing.T) {
	settle := func() int {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		return runtime.NumGoroutine()
	}
	before := settle()

	converters := make([]*Converter, 8)
	for i := range converters {
		converters[i] = New(LayoutI420, 4, nil)
		if err := converters[i].Prepare(64, 64); err != nil {
			t.Fatal(err)
		}
	}
	if n := settle(); n > before {
		t.Errorf("unused converters started %d goroutines", n-before)
	}

	for _, c := range converters {
		if _, err := c.Convert(make([]byte, FrameSize(64, 64)), 64, 64); err != nil {
			t.Fatal(err)
		}
		if !c.Stats().PoolRunning {
			t.Error("pool not running after a conversion")
		}
	}
	for _, c := range converters {
		c.Close()
	}
	if n := settle(); n > before {
		t.Errorf("Close left %d goroutines running", n-before)
	}
}

func TestPutChroma_MatchesLayout(t *testing.T) {
	const w, h = 8, 6
	for _, l := range []Layout{LayoutI420, LayoutYV12, LayoutNV21, LayoutNV12} {
		t.Run(l.String(), func(t *testing.T) {
			want := uniformFrame(l, w, h, 81, 90, 240)

			got := make([]byte, FrameSize(w, h))
			for i := 0; i < w*h; i++ {
				got[i] = 81
			}
			for cy := 0; cy < (h+1)/2; cy++ {
				for cx := 0; cx < (w+1)/2; cx++ {
					PutChroma(l, got, w, h, cx, cy, 90, 240)
				}
			}
			if !bytes.Equal(got, want) {
				t.Errorf("PutChroma frame = %v, want %v", got, want)
			}
		})
	}
}

func TestParseLayout(t *testing.T) {
	for _, l := range []Layout{LayoutI420, LayoutYV12, LayoutNV21, LayoutNV12} {
		got, err := ParseLayout(l.String())
		if err != nil || got != l {
			t.Errorf("ParseLayout(%q) = %v, %v", l.String(), got, err)
		}
	}
	if _, err := ParseLayout("RGB"); err == nil {
		t.Error("ParseLayout(RGB) should fail")
	}
}
