package feature

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

const (
	// DefaultAnalysisSize is the side length frames are resampled to.
	DefaultAnalysisSize = 64
	// DefaultBinsPerChannel yields a 4×4×4 = 64 bin histogram.
	DefaultBinsPerChannel = 4

	minAnalysisSize = 2
	maxAnalysisSize = 1024
)

// boxKernel averages every source pixel covered by a destination pixel when
// downscaling (x/image widens the support by the scale factor).
var boxKernel = &draw.Kernel{Support: 0.5, At: func(float64) float64 { return 1 }}

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// AnalysisSize is the width and height frames are resampled to.
	AnalysisSize int
	// BinsPerChannel is the number of quantization bins per RGB channel.
	BinsPerChannel int
}

// Extractor computes descriptors. It is stateless and safe for concurrent use.
type Extractor struct {
	size int
	bins int
}

// NewExtractor creates an Extractor with the given options applied on top of
// the defaults.
func NewExtractor(optFns ...func(o *ExtractorOptions)) (*Extractor, error) {
	opts := ExtractorOptions{
		AnalysisSize:   DefaultAnalysisSize,
		BinsPerChannel: DefaultBinsPerChannel,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.AnalysisSize < minAnalysisSize || opts.AnalysisSize > maxAnalysisSize {
		return nil, fmt.Errorf("analysis size %d out of range [%d,%d]", opts.AnalysisSize, minAnalysisSize, maxAnalysisSize)
	}
	if opts.BinsPerChannel < MinBinsPerChannel || opts.BinsPerChannel > MaxBinsPerChannel {
		return nil, fmt.Errorf("bins per channel %d out of range [%d,%d]", opts.BinsPerChannel, MinBinsPerChannel, MaxBinsPerChannel)
	}

	return &Extractor{size: opts.AnalysisSize, bins: opts.BinsPerChannel}, nil
}

// BinsPerChannel returns the configured histogram resolution.
func (e *Extractor) BinsPerChannel() int { return e.bins }

// AnalysisSize returns the configured resampling size.
func (e *Extractor) AnalysisSize() int { return e.size }

// Extract computes the descriptor of buf.
func (e *Extractor) Extract(buf PixelBuffer) (Descriptor, error) {
	if err := buf.Validate(); err != nil {
		return Descriptor{}, err
	}

	scaled := e.resample(buf)

	n := HistogramLen(e.bins)
	counts := make([]uint32, n)
	quadCounts := make([][]uint32, Quadrants)
	for q := range quadCounts {
		quadCounts[q] = make([]uint32, n)
	}

	half := e.size / 2
	for y := 0; y < e.size; y++ {
		row := scaled.Pix[y*scaled.Stride : y*scaled.Stride+e.size*4]
		for x := 0; x < e.size; x++ {
			p := row[x*4 : x*4+4]
			bin := e.binOf(p[0], p[1], p[2])
			counts[bin]++

			q := 0
			if x >= half {
				q++
			}
			if y >= half {
				q += 2
			}
			quadCounts[q][bin]++
		}
	}

	total := float64(e.size * e.size)
	hist := make([]float64, n)
	for i, c := range counts {
		hist[i] = float64(c) / total
	}

	d := Descriptor{Bins: e.bins, Histogram: hist}
	for q := range quadCounts {
		d.Spatial[q] = uint16(dominant(quadCounts[q]))
	}
	return d, nil
}

// resample scales the frame to the analysis resolution. Downscaling uses area
// averaging; frames smaller than the analysis size are enlarged without
// interpolation so no synthetic colors appear.
func (e *Extractor) resample(buf PixelBuffer) *image.RGBA {
	src := buf.toImage()
	dst := image.NewRGBA(image.Rect(0, 0, e.size, e.size))

	if buf.Width >= e.size && buf.Height >= e.size {
		boxKernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	} else {
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return dst
}

func (e *Extractor) binOf(r, g, b uint8) int {
	rb := int(r) * e.bins >> 8
	gb := int(g) * e.bins >> 8
	bb := int(b) * e.bins >> 8
	return (rb*e.bins+gb)*e.bins + bb
}

// dominant returns the most frequent bin, ties resolved to the lowest index.
func dominant(counts []uint32) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}
