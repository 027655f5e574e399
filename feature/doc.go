// Package feature turns raw camera frames into fixed-size color descriptors.
//
// A Descriptor combines a normalized, quantized RGB histogram with a coarse
// spatial signature (the dominant histogram bin of each image quadrant). Its
// size depends only on the configured bin count, never on the frame
// resolution, which keeps visual tokens fixed-size and cheap to compare.
//
// # Usage
//
//	ext, _ := feature.NewExtractor()
//	buf, _ := feature.Decode(file)   // PNG, JPEG, GIF, BMP, TIFF, WebP
//	desc, err := ext.Extract(buf)
//
// Extraction is pure and deterministic: the same buffer always yields a
// bit-identical descriptor.
package feature
