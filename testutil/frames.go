package testutil

import (
	"image"

	"github.com/otic/vision/feature"
)

// RGB is an opaque 8-bit color.
type RGB struct {
	R, G, B uint8
}

// Reference colors, each well inside a single 4-bins-per-channel bin.
var (
	Red   = RGB{200, 40, 40}
	Green = RGB{40, 200, 40}
	Blue  = RGB{40, 40, 200}
	White = RGB{230, 230, 230}
	Black = RGB{20, 20, 20}
)

// Solid returns a w×h RGB frame filled with c.
func Solid(w, h int, c RGB) feature.PixelBuffer {
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
	}
	return feature.PixelBuffer{Width: w, Height: h, Format: feature.FormatRGB, Pix: pix}
}

// Patched returns a w×h RGB frame filled with base and painted with patch
// inside every given rectangle.
func Patched(w, h int, base, patch RGB, rects ...image.Rectangle) feature.PixelBuffer {
	buf := Solid(w, h, base)
	bounds := image.Rect(0, 0, w, h)
	for _, r := range rects {
		r = r.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				i := (y*w + x) * 3
				buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = patch.R, patch.G, patch.B
			}
		}
	}
	return buf
}

// Perturb returns a copy of buf with every channel shifted by brightness and
// uniform noise in [-noise, noise], clamped to [0, 255]. Alpha is untouched.
func (r *RNG) Perturb(buf feature.PixelBuffer, brightness, noise int) feature.PixelBuffer {
	out := buf
	out.Pix = make([]byte, len(buf.Pix))
	ch := buf.Channels()

	for i, v := range buf.Pix {
		if ch == 4 && i%4 == 3 {
			out.Pix[i] = v
			continue
		}
		delta := brightness
		if noise > 0 {
			delta += r.Intn(2*noise+1) - noise
		}
		out.Pix[i] = clamp(int(v) + delta)
	}
	return out
}

func clamp(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
