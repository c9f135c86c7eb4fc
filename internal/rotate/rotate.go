// Package rotate rotates RGBA frames clockwise by a fixed angle.
package rotate

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Normalize maps any angle in degrees into [0, 360).
func Normalize(degrees int) int {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return d
}

// Bounds returns the size of src after a clockwise rotation by degrees.
func Bounds(width, height, degrees int) (int, int) {
	switch d := Normalize(degrees); d {
	case 0, 180:
		return width, height
	case 90, 270:
		return height, width
	default:
		rad := float64(d) * math.Pi / 180
		sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
		w := int(math.Ceil(float64(width)*cos + float64(height)*sin - 1e-9))
		h := int(math.Ceil(float64(width)*sin + float64(height)*cos - 1e-9))
		return w, h
	}
}

// Rotate returns a new image holding src rotated clockwise by degrees.
// src is never modified and the result never aliases it.
func Rotate(src *image.RGBA, degrees int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	switch d := Normalize(degrees); d {
	case 0:
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w*4], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	case 90:
		return permute(src, h, w, func(x, y int) (int, int) { return y, h - 1 - x })
	case 180:
		return permute(src, w, h, func(x, y int) (int, int) { return w - 1 - x, h - 1 - y })
	case 270:
		return permute(src, h, w, func(x, y int) (int, int) { return w - 1 - y, x })
	default:
		return arbitrary(src, d)
	}
}

// permute builds a dw×dh image where dst(x, y) = src(from(x, y)), with source
// coordinates relative to src's origin.
func permute(src *image.RGBA, dw, dh int, from func(x, y int) (int, int)) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+dw*4]
		for x := 0; x < dw; x++ {
			sx, sy := from(x, y)
			si := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			copy(row[x*4:x*4+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// arbitrary renders the rotated bounding box with nearest-neighbour
// sampling. Uncovered corners stay transparent.
func arbitrary(src *image.RGBA, degrees int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := Bounds(w, h, degrees)
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	rad := float64(degrees) * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	// Move the source centre to the origin, rotate clockwise in image
	// coordinates (y down), then move to the destination centre.
	sx, sy := float64(b.Min.X)+float64(w)/2, float64(b.Min.Y)+float64(h)/2
	dx, dy := float64(dw)/2, float64(dh)/2
	m := f64.Aff3{
		cos, -sin, dx - cos*sx + sin*sy,
		sin, cos, dy - sin*sx - cos*sy,
	}
	draw.NearestNeighbor.Transform(dst, m, src, b, draw.Src, nil)
	return dst
}
