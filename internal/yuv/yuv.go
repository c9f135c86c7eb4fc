// Package yuv converts planar and semi-planar YUV 4:2:0 camera frames into
// packed RGBA.
//
// The numeric transform is pinned to the integer BT.601 limited-range mapping
// used by hardware YUV-to-RGB intrinsics, so output is bit-compatible with
// them:
//
//	Y' = Y - 16, U' = U - 128, V' = V - 128
//	R  = clamp((298*Y' + 409*V' + 128) >> 8)
//	G  = clamp((298*Y' - 100*U' - 208*V' + 128) >> 8)
//	B  = clamp((298*Y' + 516*U' + 128) >> 8)
//	A  = 255
package yuv

import (
	"errors"
	"fmt"
)

// Layout identifies how the two chroma planes follow the luma plane.
type Layout int

const (
	// LayoutI420 is Y, then a U plane, then a V plane.
	LayoutI420 Layout = iota
	// LayoutYV12 is Y, then a V plane, then a U plane.
	LayoutYV12
	// LayoutNV21 is Y, then interleaved V/U pairs (Android preview default).
	LayoutNV21
	// LayoutNV12 is Y, then interleaved U/V pairs.
	LayoutNV12
)

// String returns the conventional fourcc-style name of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutI420:
		return "I420"
	case LayoutYV12:
		return "YV12"
	case LayoutNV21:
		return "NV21"
	case LayoutNV12:
		return "NV12"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout maps a layout name (case-sensitive, as printed by String) to a
// Layout.
func ParseLayout(name string) (Layout, error) {
	switch name {
	case "", "I420", "i420":
		return LayoutI420, nil
	case "YV12", "yv12":
		return LayoutYV12, nil
	case "NV21", "nv21":
		return LayoutNV21, nil
	case "NV12", "nv12":
		return LayoutNV12, nil
	default:
		return LayoutI420, fmt.Errorf("yuv: unknown chroma layout %q", name)
	}
}

var (
	// ErrClosed is returned by conversions on a closed converter.
	ErrClosed = errors.New("yuv: converter closed")
	// ErrInvalidGeometry is returned for non-positive dimensions or a
	// destination image whose bounds do not match the frame.
	ErrInvalidGeometry = errors.New("yuv: invalid geometry")
	// ErrFrameLength is returned when a frame is not width*height*3/2 bytes.
	ErrFrameLength = errors.New("yuv: frame length does not match geometry")
)

// FrameSize returns the byte length of a 4:2:0 frame of the given size.
func FrameSize(width, height int) int {
	return width * height * 3 / 2
}

func clamp8(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// pixel applies the pinned BT.601 transform to one sample triple.
func pixel(y, u, v byte) (r, g, b byte) {
	yy := int32(y) - 16
	uu := int32(u) - 128
	vv := int32(v) - 128
	r = clamp8((298*yy + 409*vv + 128) >> 8)
	g = clamp8((298*yy - 100*uu - 208*vv + 128) >> 8)
	b = clamp8((298*yy + 516*uu + 128) >> 8)
	return r, g, b
}

// planes describes where the chroma samples of a frame live.
type planes struct {
	layout Layout
	width  int
	height int
	luma   []byte
	chroma []byte
	cw     int // chroma samples per row
}

func newPlanes(layout Layout, src []byte, width, height int) planes {
	n := width * height
	return planes{
		layout: layout,
		width:  width,
		height: height,
		luma:   src[:n],
		chroma: src[n:],
		cw:     (width + 1) / 2,
	}
}

// uv returns the chroma pair for pixel (x, y). Samples that fall outside the
// chroma region (odd geometries) read as neutral grey.
func (p *planes) uv(x, y int) (u, v byte) {
	cx, cy := x>>1, y>>1
	switch p.layout {
	case LayoutNV21, LayoutNV12:
		off := cy*p.cw*2 + cx*2
		if off+1 >= len(p.chroma) {
			return 128, 128
		}
		if p.layout == LayoutNV21 {
			return p.chroma[off+1], p.chroma[off]
		}
		return p.chroma[off], p.chroma[off+1]
	default:
		plane := len(p.chroma) / 2
		off := cy*p.cw + cx
		if off >= plane {
			return 128, 128
		}
		first, second := p.chroma[off], p.chroma[plane+off]
		if p.layout == LayoutYV12 {
			return second, first
		}
		return first, second
	}
}

// put stores the chroma pair of chroma sample (cx, cy). Samples outside the
// chroma region are ignored.
func (p *planes) put(cx, cy int, u, v byte) {
	switch p.layout {
	case LayoutNV21, LayoutNV12:
		off := cy*p.cw*2 + cx*2
		if off+1 >= len(p.chroma) {
			return
		}
		if p.layout == LayoutNV21 {
			u, v = v, u
		}
		p.chroma[off], p.chroma[off+1] = u, v
	default:
		plane := len(p.chroma) / 2
		off := cy*p.cw + cx
		if off >= plane {
			return
		}
		if p.layout == LayoutYV12 {
			u, v = v, u
		}
		p.chroma[off], p.chroma[plane+off] = u, v
	}
}

// PutChroma writes the chroma pair of chroma sample (cx, cy) into a
// width×height frame in the given layout. frame must hold
// FrameSize(width, height) bytes.
func PutChroma(layout Layout, frame []byte, width, height, cx, cy int, u, v byte) {
	p := newPlanes(layout, frame, width, height)
	p.put(cx, cy, u, v)
}

// convertRows writes RGBA rows [y0, y1) of the frame described by p into
// dst, which holds width*height*4 bytes.
func convertRows(dst []byte, p planes, y0, y1 int) {
	for y := y0; y < y1; y++ {
		row := p.luma[y*p.width : (y+1)*p.width]
		out := dst[y*p.width*4 : (y+1)*p.width*4]
		for x, lum := range row {
			u, v := p.uv(x, y)
			r, g, b := pixel(lum, u, v)
			o := out[x*4 : x*4+4 : x*4+4]
			o[0] = r
			o[1] = g
			o[2] = b
			o[3] = 0xff
		}
	}
}
