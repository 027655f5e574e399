package feature

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	// Registered decoders for Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidInput is returned for empty, truncated or unsupported frames.
var ErrInvalidInput = errors.New("invalid input")

// PixelFormat is the memory layout of a PixelBuffer.
type PixelFormat uint8

const (
	// FormatUnknown is the zero value and always rejected.
	FormatUnknown PixelFormat = iota
	// FormatRGB stores 3 bytes per pixel.
	FormatRGB
	// FormatRGBA stores 4 bytes per pixel, alpha not premultiplied. Alpha is
	// not part of the descriptor.
	FormatRGBA
)

// Channels returns the number of bytes per pixel, or 0 for unknown formats.
func (f PixelFormat) Channels() int {
	switch f {
	case FormatRGB:
		return 3
	case FormatRGBA:
		return 4
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB:
		return "RGB"
	case FormatRGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// FormatForChannels maps a channel count onto a PixelFormat.
func FormatForChannels(channels int) PixelFormat {
	switch channels {
	case 3:
		return FormatRGB
	case 4:
		return FormatRGBA
	default:
		return FormatUnknown
	}
}

// PixelBuffer is a raw 8-bit frame handed over by the capture side.
// It is owned by the caller and must not be modified during a recognition call.
type PixelBuffer struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// NewPixelBuffer wraps pix, inferring the format from the channel count.
func NewPixelBuffer(width, height, channels int, pix []byte) PixelBuffer {
	return PixelBuffer{
		Width:  width,
		Height: height,
		Format: FormatForChannels(channels),
		Pix:    pix,
	}
}

// Channels returns the number of bytes per pixel.
func (b PixelBuffer) Channels() int {
	return b.Format.Channels()
}

// Validate checks the buffer against its declared geometry.
func (b PixelBuffer) Validate() error {
	ch := b.Format.Channels()
	if ch == 0 {
		return fmt.Errorf("%w: unsupported pixel format %s", ErrInvalidInput, b.Format)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: zero-size buffer %dx%d", ErrInvalidInput, b.Width, b.Height)
	}
	want := b.Width * b.Height * ch
	if len(b.Pix) != want {
		return fmt.Errorf("%w: buffer length %d, expected %d (%dx%dx%d)",
			ErrInvalidInput, len(b.Pix), want, b.Width, b.Height, ch)
	}
	return nil
}

// toImage exposes the buffer as an opaque image.Image. Alpha is ignored: the
// color channels are binned as stored, so translucency never darkens a color.
// Opaque RGBA frames are not copied.
func (b PixelBuffer) toImage() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Format == FormatRGBA && b.opaque() {
		return &image.NRGBA{Pix: b.Pix, Stride: b.Width * 4, Rect: rect}
	}

	ch := b.Format.Channels()
	img := image.NewNRGBA(rect)
	for i, j := 0, 0; i < len(b.Pix); i, j = i+ch, j+4 {
		copy(img.Pix[j:j+3], b.Pix[i:i+3])
		img.Pix[j+3] = 0xff
	}
	return img
}

func (b PixelBuffer) opaque() bool {
	for i := 3; i < len(b.Pix); i += 4 {
		if b.Pix[i] != 0xff {
			return false
		}
	}
	return true
}

// FromImage converts any image into an RGBA PixelBuffer.
func FromImage(img image.Image) PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, 0, w*h*4)

	if src, ok := img.(*image.NRGBA); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			off := src.PixOffset(bounds.Min.X, y)
			pix = append(pix, src.Pix[off:off+w*4]...)
		}
		return PixelBuffer{Width: w, Height: h, Format: FormatRGBA, Pix: pix}
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B, c.A)
		}
	}
	return PixelBuffer{Width: w, Height: h, Format: FormatRGBA, Pix: pix}
}

// Decode reads an encoded frame (PNG, JPEG, GIF, BMP, TIFF or WebP).
func Decode(r io.Reader) (PixelBuffer, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return PixelBuffer{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	buf := FromImage(img)
	if err := buf.Validate(); err != nil {
		return PixelBuffer{}, err
	}
	return buf, nil
}
